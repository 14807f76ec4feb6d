// Package dataset loads columnar text classification data and produces
// reproducible train/test partitions.
//
// The expected input is a CSV file with a header row containing at least a
// "text" and a "label" column. Labels are kept as raw strings; Encode maps
// them to dense class indices for use with gonum matrices.
package dataset

import (
	"encoding/csv"
	"io"
	"math/rand/v2"
	"os"
	"sort"

	"gonum.org/v1/gonum/mat"

	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// Dataset holds parallel slices of raw documents and their string labels.
type Dataset struct {
	Texts  []string
	Labels []string
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Texts)
}

// Load reads a CSV file with a header row and extracts the "text" and
// "label" columns. Rows with too few fields are rejected rather than
// skipped: the file either parses completely or the load fails.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, textpipeErrors.Wrapf(err, "failed to open dataset %q", path)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read parses CSV rows from r. The first row must be a header naming a
// "text" and a "label" column; their positions are free.
func Read(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, textpipeErrors.ErrEmptyData
	}
	if err != nil {
		return nil, textpipeErrors.Wrap(err, "failed to read dataset header")
	}

	textCol, labelCol := -1, -1
	for i, name := range header {
		switch name {
		case "text":
			textCol = i
		case "label":
			labelCol = i
		}
	}
	if textCol < 0 {
		return nil, textpipeErrors.NewValidationError("text", "required column missing from header", header)
	}
	if labelCol < 0 {
		return nil, textpipeErrors.NewValidationError("label", "required column missing from header", header)
	}

	ds := &Dataset{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, textpipeErrors.Wrap(err, "failed to read dataset row")
		}
		ds.Texts = append(ds.Texts, rec[textCol])
		ds.Labels = append(ds.Labels, rec[labelCol])
	}

	if ds.Len() == 0 {
		return nil, textpipeErrors.ErrEmptyData
	}
	return ds, nil
}

// Classes returns the sorted set of distinct labels.
func (d *Dataset) Classes() []string {
	seen := make(map[string]struct{}, len(d.Labels))
	for _, l := range d.Labels {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return classes
}

// Encode maps string labels to dense class indices in sorted label order
// and returns them as a column vector alongside the class list.
func (d *Dataset) Encode() (*mat.VecDense, []string) {
	classes := d.Classes()
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	y := mat.NewVecDense(d.Len(), nil)
	for i, l := range d.Labels {
		y.SetVec(i, float64(index[l]))
	}
	return y, classes
}

// Subset returns a new Dataset containing the rows at the given indices.
func (d *Dataset) Subset(indices []int) *Dataset {
	sub := &Dataset{
		Texts:  make([]string, len(indices)),
		Labels: make([]string, len(indices)),
	}
	for i, idx := range indices {
		sub.Texts[i] = d.Texts[idx]
		sub.Labels[i] = d.Labels[idx]
	}
	return sub
}

// TrainTestSplit partitions the dataset into disjoint train and test sets.
// testSize is the fraction of rows assigned to the test set, and the same
// seed always yields the same partition.
func (d *Dataset) TrainTestSplit(testSize float64, seed int64) (train, test *Dataset, err error) {
	if d.Len() == 0 {
		return nil, nil, textpipeErrors.ErrEmptyData
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, textpipeErrors.NewValidationError("testSize", "must be in (0, 1)", testSize)
	}

	n := d.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	nTest := int(float64(n) * testSize)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}

	test = d.Subset(indices[:nTest])
	train = d.Subset(indices[nTest:])
	return train, test, nil
}

// Subsample draws size rows without replacement, shuffled with the given
// seed. If size >= Len the whole dataset is returned shuffled.
func (d *Dataset) Subsample(size int, seed int64) (*Dataset, error) {
	if d.Len() == 0 {
		return nil, textpipeErrors.ErrEmptyData
	}
	if size <= 0 {
		return nil, textpipeErrors.NewValidationError("size", "must be positive", size)
	}

	n := d.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	if size > n {
		size = n
	}
	return d.Subset(indices[:size]), nil
}
