// Package ensemble provides bagged tree-ensemble classifiers.
package ensemble

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/core/parallel"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
	"github.com/YuminosukeSato/textpipe/tree"
)

// RandomForestClassifier fits NEstimators decision trees on bootstrap
// samples, each considering a random feature subset per split, and predicts
// by majority vote. Exported fields round-trip through gob.
type RandomForestClassifier struct {
	State *model.StateManager

	// Hyperparameters
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // per-split feature count; 0 means sqrt(n_features)
	RandomState     int64

	// Fitted state
	Trees       []*tree.DecisionTreeClassifier
	ClassLabels []int
}

// ForestOption is a functional option for RandomForestClassifier.
type ForestOption func(*RandomForestClassifier)

// NewRandomForestClassifier creates a random forest classifier.
func NewRandomForestClassifier(opts ...ForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		State:           model.NewStateManager(),
		NEstimators:     100,
		Criterion:       "gini",
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		RandomState:     0,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.NEstimators = n }
}

// WithForestCriterion sets the split impurity criterion of every tree.
func WithForestCriterion(criterion string) ForestOption {
	return func(rf *RandomForestClassifier) { rf.Criterion = criterion }
}

// WithForestMaxDepth bounds the depth of every tree.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MaxDepth = depth }
}

// WithForestMinSamplesSplit sets the minimum samples to split a node.
func WithForestMinSamplesSplit(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MinSamplesSplit = n }
}

// WithForestMinSamplesLeaf sets the minimum samples in a leaf.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MinSamplesLeaf = n }
}

// WithForestMaxFeatures sets the per-split feature subset size.
func WithForestMaxFeatures(n int) ForestOption {
	return func(rf *RandomForestClassifier) { rf.MaxFeatures = n }
}

// WithForestRandomState seeds bootstrap sampling and feature subsets.
func WithForestRandomState(seed int64) ForestOption {
	return func(rf *RandomForestClassifier) { rf.RandomState = seed }
}

// ModelKind tags the model family for hyperparameter grid selection.
func (rf *RandomForestClassifier) ModelKind() model.Kind {
	return model.KindRandomForest
}

// Fit trains the forest. Trees are grown in parallel across CPU cores;
// each tree's bootstrap sample and feature sampling are seeded from the
// forest seed and the tree index, so results do not depend on scheduling.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.NEstimators < 1 {
		return textpipeErrors.NewValidationError("n_estimators", "must be at least 1", rf.NEstimators)
	}

	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return textpipeErrors.ErrEmptyData
	}
	if nSamples != yRows {
		return textpipeErrors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}

	rf.State.Reset()

	seen := make(map[int]bool)
	for i := 0; i < nSamples; i++ {
		seen[int(y.At(i, 0))] = true
	}
	rf.ClassLabels = make([]int, 0, len(seen))
	for c := range seen {
		rf.ClassLabels = append(rf.ClassLabels, c)
	}
	sort.Ints(rf.ClassLabels)

	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(nFeatures)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	rf.Trees = make([]*tree.DecisionTreeClassifier, rf.NEstimators)
	errs := make([]error, rf.NEstimators)

	parallel.Parallelize(rf.NEstimators, func(start, end int) {
		for t := start; t < end; t++ {
			treeSeed := rf.RandomState + int64(t)
			r := rand.New(rand.NewPCG(uint64(treeSeed), uint64(treeSeed)))

			// Bootstrap sample with replacement.
			bootX := mat.NewDense(nSamples, nFeatures, nil)
			bootY := mat.NewDense(nSamples, 1, nil)
			for i := 0; i < nSamples; i++ {
				src := r.IntN(nSamples)
				for j := 0; j < nFeatures; j++ {
					bootX.Set(i, j, X.At(src, j))
				}
				bootY.Set(i, 0, y.At(src, 0))
			}

			dt := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.Criterion),
				tree.WithMaxDepth(rf.MaxDepth),
				tree.WithMinSamplesSplit(rf.MinSamplesSplit),
				tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithTreeRandomState(treeSeed),
			)
			if err := dt.Fit(bootX, bootY); err != nil {
				errs[t] = textpipeErrors.Wrapf(err, "tree %d failed", t)
				return
			}
			rf.Trees[t] = dt
		}
	})

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	rf.State.SetDimensions(nFeatures, nSamples)
	rf.State.SetFitted()
	return nil
}

// classIndex maps a class label to its position in ClassLabels.
func (rf *RandomForestClassifier) classIndex(label int) int {
	for i, c := range rf.ClassLabels {
		if c == label {
			return i
		}
	}
	return -1
}

// votes accumulates per-class votes of every tree for each row of X. A
// bootstrap sample can miss a class entirely, so votes are mapped through
// the forest's class labels rather than the tree's.
func (rf *RandomForestClassifier) votes(X mat.Matrix) (*mat.Dense, error) {
	nSamples, _ := X.Dims()
	counts := mat.NewDense(nSamples, len(rf.ClassLabels), nil)

	for _, dt := range rf.Trees {
		pred, err := dt.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < nSamples; i++ {
			k := rf.classIndex(int(pred.At(i, 0)))
			counts.Set(i, k, counts.At(i, k)+1)
		}
	}
	return counts, nil
}

// Predict returns the majority vote of the forest for each row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("RandomForestClassifier", "Predict")
	}

	counts, err := rf.votes(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best, bestCount := 0, -1.0
		for k := range rf.ClassLabels {
			if c := counts.At(i, k); c > bestCount {
				best, bestCount = k, c
			}
		}
		predictions.Set(i, 0, float64(rf.ClassLabels[best]))
	}
	return predictions, nil
}

// PredictProba returns the fraction of trees voting for each class.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !rf.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("RandomForestClassifier", "PredictProba")
	}

	counts, err := rf.votes(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	total := float64(len(rf.Trees))
	for i := 0; i < nSamples; i++ {
		for k := range rf.ClassLabels {
			counts.Set(i, k, counts.At(i, k)/total)
		}
	}
	return counts, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}

	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples), nil
}

// Classes returns the unique class labels seen during fitting.
func (rf *RandomForestClassifier) Classes() []int {
	out := make([]int, len(rf.ClassLabels))
	copy(out, rf.ClassLabels)
	return out
}

// GetParams returns the model hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"criterion":         rf.Criterion,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"random_state":      rf.RandomState,
	}
}

// SetParams sets hyperparameters and discards fitted state.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "n_estimators":
			rf.NEstimators, ok = value.(int)
		case "criterion":
			rf.Criterion, ok = value.(string)
		case "max_depth":
			rf.MaxDepth, ok = value.(int)
		case "min_samples_split":
			rf.MinSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			rf.MinSamplesLeaf, ok = value.(int)
		case "max_features":
			rf.MaxFeatures, ok = value.(int)
		case "random_state":
			rf.RandomState, ok = value.(int64)
		default:
			return textpipeErrors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return textpipeErrors.NewValidationError(key, "wrong value type", value)
		}
	}
	rf.State.Reset()
	rf.Trees = nil
	return nil
}

// Save persists the fitted forest with gob.
func (rf *RandomForestClassifier) Save(path string) error {
	return model.SaveModel(rf, path)
}

// Load restores a forest saved with Save.
func (rf *RandomForestClassifier) Load(path string) error {
	return model.LoadModel(rf, path)
}
