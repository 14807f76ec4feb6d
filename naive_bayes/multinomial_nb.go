// Package naive_bayes provides naive Bayes classifiers for count features.
package naive_bayes

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// MultinomialNB implements multinomial naive Bayes, the classic baseline for
// word-count features. It supports incremental fitting through PartialFit,
// so a classifier can keep learning from document batches. Exported fields
// round-trip through gob.
type MultinomialNB struct {
	State *model.StateManager

	// Hyperparameters
	Alpha    float64 // additive smoothing
	FitPrior bool    // learn class priors from data; false means uniform

	// Accumulated sufficient statistics
	ClassLabels  []int
	ClassCount   []float64   // samples per class
	FeatureCount [][]float64 // summed feature counts per class
	SamplesSeen  int
}

// NBOption is a functional option for MultinomialNB.
type NBOption func(*MultinomialNB)

// NewMultinomialNB creates a multinomial naive Bayes classifier.
func NewMultinomialNB(opts ...NBOption) *MultinomialNB {
	nb := &MultinomialNB{
		State:    model.NewStateManager(),
		Alpha:    1.0,
		FitPrior: true,
	}
	for _, opt := range opts {
		opt(nb)
	}
	return nb
}

// WithAlpha sets the additive smoothing parameter.
func WithAlpha(alpha float64) NBOption {
	return func(nb *MultinomialNB) { nb.Alpha = alpha }
}

// WithFitPrior controls whether class priors are learned from the data.
func WithFitPrior(fit bool) NBOption {
	return func(nb *MultinomialNB) { nb.FitPrior = fit }
}

// Fit trains the classifier from scratch, discarding accumulated counts.
func (nb *MultinomialNB) Fit(X, y mat.Matrix) error {
	nb.State.Reset()
	nb.ClassLabels = nil
	nb.ClassCount = nil
	nb.FeatureCount = nil
	nb.SamplesSeen = 0

	nSamples, _ := X.Dims()
	seen := make(map[int]bool)
	for i := 0; i < nSamples; i++ {
		seen[int(y.At(i, 0))] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	return nb.PartialFit(X, y, classes)
}

// PartialFit updates the accumulated counts with one batch. The full class
// list must be passed on the first call so later batches may omit classes;
// subsequent calls ignore the argument.
func (nb *MultinomialNB) PartialFit(X, y mat.Matrix, classes []int) error {
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return textpipeErrors.ErrEmptyData
	}
	if nSamples != yRows {
		return textpipeErrors.NewDimensionError("MultinomialNB.PartialFit", nSamples, yRows, 0)
	}

	if nb.ClassLabels == nil {
		if len(classes) == 0 {
			return textpipeErrors.NewValidationError("classes", "required on the first PartialFit call", classes)
		}
		nb.ClassLabels = make([]int, len(classes))
		copy(nb.ClassLabels, classes)
		sort.Ints(nb.ClassLabels)
		nb.ClassCount = make([]float64, len(nb.ClassLabels))
		nb.FeatureCount = make([][]float64, len(nb.ClassLabels))
		for k := range nb.FeatureCount {
			nb.FeatureCount[k] = make([]float64, nFeatures)
		}
	}

	if seenFeatures, _ := nb.State.GetDimensions(); seenFeatures != 0 && seenFeatures != nFeatures {
		return textpipeErrors.NewDimensionError("MultinomialNB.PartialFit", seenFeatures, nFeatures, 1)
	}

	classIdx := make(map[int]int, len(nb.ClassLabels))
	for i, c := range nb.ClassLabels {
		classIdx[c] = i
	}

	for i := 0; i < nSamples; i++ {
		k, ok := classIdx[int(y.At(i, 0))]
		if !ok {
			return textpipeErrors.NewValueError("MultinomialNB.PartialFit", "label outside the declared classes")
		}
		nb.ClassCount[k]++
		for j := 0; j < nFeatures; j++ {
			v := X.At(i, j)
			if v < 0 {
				return textpipeErrors.NewValueError("MultinomialNB.PartialFit", "count features must be non-negative")
			}
			nb.FeatureCount[k][j] += v
		}
	}

	nb.SamplesSeen += nSamples
	nb.State.SetDimensions(nFeatures, nb.SamplesSeen)
	nb.State.SetFitted()
	return nil
}

// NSamplesSeen returns the total number of samples accumulated so far.
func (nb *MultinomialNB) NSamplesSeen() int {
	return nb.SamplesSeen
}

// jointLogLikelihood computes the unnormalized per-class log posterior of
// every row of X.
func (nb *MultinomialNB) jointLogLikelihood(X mat.Matrix) *mat.Dense {
	nSamples, nFeatures := X.Dims()
	nClasses := len(nb.ClassLabels)

	logPrior := make([]float64, nClasses)
	if nb.FitPrior {
		for k := range logPrior {
			logPrior[k] = math.Log(nb.ClassCount[k] / float64(nb.SamplesSeen))
		}
	} else {
		uniform := -math.Log(float64(nClasses))
		for k := range logPrior {
			logPrior[k] = uniform
		}
	}

	// Smoothed per-class feature log probabilities.
	featureLogProb := make([][]float64, nClasses)
	for k := 0; k < nClasses; k++ {
		total := 0.0
		for j := 0; j < nFeatures; j++ {
			total += nb.FeatureCount[k][j] + nb.Alpha
		}
		featureLogProb[k] = make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			featureLogProb[k][j] = math.Log((nb.FeatureCount[k][j] + nb.Alpha) / total)
		}
	}

	joint := mat.NewDense(nSamples, nClasses, nil)
	for i := 0; i < nSamples; i++ {
		for k := 0; k < nClasses; k++ {
			ll := logPrior[k]
			for j := 0; j < nFeatures; j++ {
				if v := X.At(i, j); v != 0 {
					ll += v * featureLogProb[k][j]
				}
			}
			joint.Set(i, k, ll)
		}
	}
	return joint
}

// Predict returns the most probable class label for each row of X.
func (nb *MultinomialNB) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !nb.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("MultinomialNB", "Predict")
	}

	joint := nb.jointLogLikelihood(X)
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best, bestLL := 0, math.Inf(-1)
		for k := range nb.ClassLabels {
			if ll := joint.At(i, k); ll > bestLL {
				best, bestLL = k, ll
			}
		}
		predictions.Set(i, 0, float64(nb.ClassLabels[best]))
	}
	return predictions, nil
}

// PredictLogProba returns normalized per-class log probabilities.
func (nb *MultinomialNB) PredictLogProba(X mat.Matrix) (mat.Matrix, error) {
	if !nb.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("MultinomialNB", "PredictLogProba")
	}

	joint := nb.jointLogLikelihood(X)
	nSamples, _ := X.Dims()
	nClasses := len(nb.ClassLabels)

	for i := 0; i < nSamples; i++ {
		// log-sum-exp normalization per row.
		maxLL := math.Inf(-1)
		for k := 0; k < nClasses; k++ {
			if ll := joint.At(i, k); ll > maxLL {
				maxLL = ll
			}
		}
		sum := 0.0
		for k := 0; k < nClasses; k++ {
			sum += math.Exp(joint.At(i, k) - maxLL)
		}
		logSum := maxLL + math.Log(sum)
		for k := 0; k < nClasses; k++ {
			joint.Set(i, k, joint.At(i, k)-logSum)
		}
	}
	return joint, nil
}

// PredictProba returns per-class probability estimates.
func (nb *MultinomialNB) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	logProba, err := nb.PredictLogProba(X)
	if err != nil {
		return nil, err
	}

	nSamples, nClasses := logProba.Dims()
	probas := mat.NewDense(nSamples, nClasses, nil)
	for i := 0; i < nSamples; i++ {
		for k := 0; k < nClasses; k++ {
			probas.Set(i, k, math.Exp(logProba.At(i, k)))
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (nb *MultinomialNB) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := nb.Predict(X)
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

// Classes returns the class labels in sorted order.
func (nb *MultinomialNB) Classes() []int {
	out := make([]int, len(nb.ClassLabels))
	copy(out, nb.ClassLabels)
	return out
}

// GetParams returns the model hyperparameters.
func (nb *MultinomialNB) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":     nb.Alpha,
		"fit_prior": nb.FitPrior,
	}
}

// SetParams sets hyperparameters and discards accumulated counts.
func (nb *MultinomialNB) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "alpha":
			nb.Alpha, ok = value.(float64)
		case "fit_prior":
			nb.FitPrior, ok = value.(bool)
		default:
			return textpipeErrors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return textpipeErrors.NewValidationError(key, "wrong value type", value)
		}
	}
	nb.State.Reset()
	nb.ClassLabels = nil
	nb.ClassCount = nil
	nb.FeatureCount = nil
	nb.SamplesSeen = 0
	return nil
}

// Save persists the fitted classifier with gob.
func (nb *MultinomialNB) Save(path string) error {
	return model.SaveModel(nb, path)
}

// Load restores a classifier saved with Save.
func (nb *MultinomialNB) Load(path string) error {
	return model.LoadModel(nb, path)
}
