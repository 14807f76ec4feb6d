// Package tree provides a CART decision tree classifier.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// Node is a single node of a fitted tree. Exported so trees round-trip
// through gob.
type Node struct {
	IsLeaf    bool
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node

	// ClassCounts holds the training sample count per class index reaching
	// this node; predictions and probabilities derive from it.
	ClassCounts []float64
}

func (n *Node) depth() int {
	if n == nil || n.IsLeaf {
		return 0
	}
	left, right := n.Left.depth(), n.Right.depth()
	if left > right {
		return left + 1
	}
	return right + 1
}

func (n *Node) leaves() int {
	if n == nil {
		return 0
	}
	if n.IsLeaf {
		return 1
	}
	return n.Left.leaves() + n.Right.leaves()
}

// DecisionTreeClassifier implements a CART classification tree with gini or
// entropy impurity.
type DecisionTreeClassifier struct {
	State *model.StateManager

	// Hyperparameters
	Criterion       string // "gini" or "entropy"
	MaxDepth        int    // 0 means unbounded
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features considered per split; 0 means all
	RandomState     int64

	// Fitted state
	Root        *Node
	ClassLabels []int
	Importances []float64 // normalized impurity decrease per feature

	rng *rand.Rand
}

// TreeOption is a functional option for DecisionTreeClassifier.
type TreeOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a decision tree classifier.
func NewDecisionTreeClassifier(opts ...TreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		State:           model.NewStateManager(),
		Criterion:       "gini",
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		RandomState:     0,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the split impurity criterion.
func WithCriterion(criterion string) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.Criterion = criterion }
}

// WithMaxDepth bounds the tree depth.
func WithMaxDepth(depth int) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.MaxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples required in a leaf.
func WithMinSamplesLeaf(n int) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.MinSamplesLeaf = n }
}

// WithMaxFeatures limits how many features are considered per split. A
// random subset of this size is drawn at every split, which is how a random
// forest decorrelates its trees.
func WithMaxFeatures(n int) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.MaxFeatures = n }
}

// WithTreeRandomState seeds the per-split feature sampling.
func WithTreeRandomState(seed int64) TreeOption {
	return func(dt *DecisionTreeClassifier) { dt.RandomState = seed }
}

// Fit grows the tree on X with integer class labels y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	if dt.Criterion != "gini" && dt.Criterion != "entropy" {
		return textpipeErrors.NewValidationError("criterion", "must be gini or entropy", dt.Criterion)
	}
	if dt.MinSamplesSplit < 2 {
		return textpipeErrors.NewValidationError("min_samples_split", "must be at least 2", dt.MinSamplesSplit)
	}
	if dt.MinSamplesLeaf < 1 {
		return textpipeErrors.NewValidationError("min_samples_leaf", "must be at least 1", dt.MinSamplesLeaf)
	}

	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return textpipeErrors.ErrEmptyData
	}
	if nSamples != yRows {
		return textpipeErrors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}

	dt.State.Reset()
	dt.rng = rand.New(rand.NewPCG(uint64(dt.RandomState), uint64(dt.RandomState)))

	// Map labels to contiguous class indices.
	seen := make(map[int]bool)
	for i := 0; i < nSamples; i++ {
		seen[int(y.At(i, 0))] = true
	}
	dt.ClassLabels = make([]int, 0, len(seen))
	for c := range seen {
		dt.ClassLabels = append(dt.ClassLabels, c)
	}
	sort.Ints(dt.ClassLabels)
	classIdx := make(map[int]int, len(dt.ClassLabels))
	for i, c := range dt.ClassLabels {
		classIdx[c] = i
	}

	target := make([]int, nSamples)
	for i := 0; i < nSamples; i++ {
		target[i] = classIdx[int(y.At(i, 0))]
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	dt.Importances = make([]float64, nFeatures)
	dt.Root = dt.grow(X, target, indices, 0)
	dt.normalizeImportances()

	dt.State.SetDimensions(nFeatures, nSamples)
	dt.State.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) nClasses() int {
	return len(dt.ClassLabels)
}

// grow recursively builds the subtree over the samples at indices.
func (dt *DecisionTreeClassifier) grow(X mat.Matrix, target, indices []int, depth int) *Node {
	counts := make([]float64, dt.nClasses())
	for _, idx := range indices {
		counts[target[idx]]++
	}

	node := &Node{ClassCounts: counts}

	if dt.isPure(counts) ||
		len(indices) < dt.MinSamplesSplit ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) {
		node.IsLeaf = true
		return node
	}

	feature, threshold, gain := dt.bestSplit(X, target, indices, counts)
	if gain <= 0 {
		node.IsLeaf = true
		return node
	}

	var left, right []int
	for _, idx := range indices {
		if X.At(idx, feature) <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	dt.Importances[feature] += gain * float64(len(indices))

	node.Feature = feature
	node.Threshold = threshold
	node.Left = dt.grow(X, target, left, depth+1)
	node.Right = dt.grow(X, target, right, depth+1)
	return node
}

func (dt *DecisionTreeClassifier) isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// bestSplit scans candidate thresholds of the considered features and
// returns the split with the largest impurity decrease.
func (dt *DecisionTreeClassifier) bestSplit(X mat.Matrix, target, indices []int, counts []float64) (feature int, threshold, gain float64) {
	_, nFeatures := X.Dims()
	n := float64(len(indices))
	parentImpurity := dt.impurity(counts, n)

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0

	for _, f := range dt.candidateFeatures(nFeatures) {
		// Sort sample indices by this feature's value.
		sorted := make([]int, len(indices))
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return X.At(sorted[i], f) < X.At(sorted[j], f)
		})

		leftCounts := make([]float64, dt.nClasses())
		rightCounts := make([]float64, dt.nClasses())
		copy(rightCounts, counts)

		for i := 0; i < len(sorted)-1; i++ {
			c := target[sorted[i]]
			leftCounts[c]++
			rightCounts[c]--

			v, next := X.At(sorted[i], f), X.At(sorted[i+1], f)
			if v == next {
				continue
			}

			nLeft, nRight := i+1, len(sorted)-i-1
			if nLeft < dt.MinSamplesLeaf || nRight < dt.MinSamplesLeaf {
				continue
			}

			weighted := (float64(nLeft)*dt.impurity(leftCounts, float64(nLeft)) +
				float64(nRight)*dt.impurity(rightCounts, float64(nRight))) / n
			if g := parentImpurity - weighted; g > bestGain {
				bestGain = g
				bestFeature = f
				bestThreshold = (v + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

// candidateFeatures returns the feature indices considered at one split.
func (dt *DecisionTreeClassifier) candidateFeatures(nFeatures int) []int {
	all := make([]int, nFeatures)
	for i := range all {
		all[i] = i
	}
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= nFeatures {
		return all
	}
	dt.rng.Shuffle(nFeatures, func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	return all[:dt.MaxFeatures]
}

func (dt *DecisionTreeClassifier) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if dt.Criterion == "entropy" {
		entropy := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				entropy -= p * math.Log2(p)
			}
		}
		return entropy
	}
	gini := 1.0
	for _, c := range counts {
		p := c / n
		gini -= p * p
	}
	return gini
}

func (dt *DecisionTreeClassifier) normalizeImportances() {
	total := 0.0
	for _, imp := range dt.Importances {
		total += imp
	}
	if total == 0 {
		return
	}
	for i := range dt.Importances {
		dt.Importances[i] /= total
	}
}

// leaf walks the tree to the leaf for one sample.
func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, row int) *Node {
	node := dt.Root
	for !node.IsLeaf {
		if X.At(row, node.Feature) <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// Predict returns the majority class of the reached leaf for each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("DecisionTreeClassifier", "Predict")
	}

	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		leaf := dt.leaf(X, i)
		best, bestCount := 0, -1.0
		for c, count := range leaf.ClassCounts {
			if count > bestCount {
				best, bestCount = c, count
			}
		}
		predictions.Set(i, 0, float64(dt.ClassLabels[best]))
	}
	return predictions, nil
}

// PredictProba returns the class distribution of the reached leaf per row.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !dt.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("DecisionTreeClassifier", "PredictProba")
	}

	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, dt.nClasses(), nil)
	for i := 0; i < nSamples; i++ {
		leaf := dt.leaf(X, i)
		total := 0.0
		for _, c := range leaf.ClassCounts {
			total += c
		}
		for c, count := range leaf.ClassCounts {
			probas.Set(i, c, count/total)
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.ClassLabels))
	copy(out, dt.ClassLabels)
	return out
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.Root.depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.Root.leaves()
}

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.Importances))
	copy(out, dt.Importances)
	return out
}

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.Criterion,
		"max_depth":         dt.MaxDepth,
		"min_samples_split": dt.MinSamplesSplit,
		"min_samples_leaf":  dt.MinSamplesLeaf,
		"max_features":      dt.MaxFeatures,
		"random_state":      dt.RandomState,
	}
}

// SetParams sets hyperparameters and discards fitted state.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "criterion":
			dt.Criterion, ok = value.(string)
		case "max_depth":
			dt.MaxDepth, ok = value.(int)
		case "min_samples_split":
			dt.MinSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.MinSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.MaxFeatures, ok = value.(int)
		case "random_state":
			dt.RandomState, ok = value.(int64)
		default:
			return textpipeErrors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return textpipeErrors.NewValidationError(key, "wrong value type", value)
		}
	}
	dt.State.Reset()
	return nil
}

// Save persists the fitted tree with gob.
func (dt *DecisionTreeClassifier) Save(path string) error {
	return model.SaveModel(dt, path)
}

// Load restores a tree saved with Save.
func (dt *DecisionTreeClassifier) Load(path string) error {
	return model.LoadModel(dt, path)
}
