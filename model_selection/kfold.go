// Package model_selection provides train/test splitting, k-fold
// cross-validation and exhaustive grid search over hyperparameter grids.
package model_selection

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// KFoldSplitter defines the interface for cross-validation splitters.
type KFoldSplitter interface {
	Split(X, y mat.Matrix) []CVFold
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation.
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements a k-fold cross-validation splitter.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a new k-fold splitter. Fewer than 2 splits is an error;
// there is no silent default.
func NewKFold(nSplits int, shuffle bool, randomSeed int) (*KFold, error) {
	if nSplits < 2 {
		return nil, textpipeErrors.NewValidationError("nSplits", "k-fold needs at least 2 splits", nSplits)
	}
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}, nil
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold. The folds are disjoint
// and cover every sample exactly once as a test sample.
func (kf *KFold) Split(X, _ mat.Matrix) []CVFold {
	nSamples, _ := X.Dims()

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomSeed), uint64(kf.RandomSeed)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]CVFold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	currentIdx := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}

		testIndices := make([]int, testSize)
		copy(testIndices, indices[currentIdx:currentIdx+testSize])

		inTest := make(map[int]bool, testSize)
		for _, idx := range testIndices {
			inTest[idx] = true
		}
		trainIndices := make([]int, 0, nSamples-testSize)
		for _, idx := range indices {
			if !inTest[idx] {
				trainIndices = append(trainIndices, idx)
			}
		}

		folds[i] = CVFold{
			TrainIndices: trainIndices,
			TestIndices:  testIndices,
		}

		currentIdx += testSize
	}

	return folds
}

// CVResult stores the per-fold held-out scores of one cross-validation run.
type CVResult struct {
	TestScores []float64
}

// MeanScore returns the mean held-out score.
func (cv *CVResult) MeanScore() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, score := range cv.TestScores {
		sum += score
	}
	return sum / float64(len(cv.TestScores))
}

// StdScore returns the sample standard deviation of the held-out scores.
func (cv *CVResult) StdScore() float64 {
	if len(cv.TestScores) <= 1 {
		return 0.0
	}

	mean := cv.MeanScore()
	sumSq := 0.0
	for _, score := range cv.TestScores {
		diff := score - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(cv.TestScores)-1))
}

// Estimator is the contract cross-validation and grid search fit per fold:
// a supervised model over numeric features whose hyperparameters can be
// replaced between candidates.
type Estimator interface {
	Fit(X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	SetParams(params map[string]interface{}) error
}

// StringEstimator is the text counterpart of Estimator, satisfied by a
// pipeline whose head stage consumes raw documents.
type StringEstimator interface {
	FitStrings(docs []string, y mat.Matrix) error
	PredictStrings(docs []string) (mat.Matrix, error)
	SetParams(params map[string]interface{}) error
}

// ScoreFunc compares held-out labels with predictions and returns a score
// where higher is better.
type ScoreFunc func(yTrue, yPred *mat.VecDense) (float64, error)

// CrossValidate fits the estimator once per fold and scores it on the
// held-out fold. Folds are evaluated sequentially so a fixed seed produces
// an identical sequence of fits.
func CrossValidate(est Estimator, X, y mat.Matrix, splitter KFoldSplitter, scoring ScoreFunc) (*CVResult, error) {
	if scoring == nil {
		return nil, textpipeErrors.NewValidationError("scoring", "score function is required", nil)
	}

	folds := splitter.Split(X, y)
	result := &CVResult{TestScores: make([]float64, len(folds))}

	for foldIdx, fold := range folds {
		trainX, trainY := subsetMatrix(X, fold.TrainIndices), subsetVec(y, fold.TrainIndices)
		testX, testY := subsetMatrix(X, fold.TestIndices), subsetVec(y, fold.TestIndices)

		if err := est.Fit(trainX, trainY); err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d training failed", foldIdx)
		}
		pred, err := est.Predict(testX)
		if err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d prediction failed", foldIdx)
		}
		score, err := scoring(testY, toVec(pred))
		if err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d scoring failed", foldIdx)
		}
		result.TestScores[foldIdx] = score
	}

	return result, nil
}

// CrossValidateStrings is CrossValidate for estimators over raw documents.
func CrossValidateStrings(est StringEstimator, docs []string, y mat.Matrix, splitter KFoldSplitter, scoring ScoreFunc) (*CVResult, error) {
	if scoring == nil {
		return nil, textpipeErrors.NewValidationError("scoring", "score function is required", nil)
	}
	if len(docs) == 0 {
		return nil, textpipeErrors.ErrEmptyData
	}

	X := mat.NewDense(len(docs), 1, nil) // splitter only needs row count
	folds := splitter.Split(X, y)
	result := &CVResult{TestScores: make([]float64, len(folds))}

	for foldIdx, fold := range folds {
		trainDocs, trainY := subsetStrings(docs, fold.TrainIndices), subsetVec(y, fold.TrainIndices)
		testDocs, testY := subsetStrings(docs, fold.TestIndices), subsetVec(y, fold.TestIndices)

		if err := est.FitStrings(trainDocs, trainY); err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d training failed", foldIdx)
		}
		pred, err := est.PredictStrings(testDocs)
		if err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d prediction failed", foldIdx)
		}
		score, err := scoring(testY, toVec(pred))
		if err != nil {
			return nil, textpipeErrors.Wrapf(err, "fold %d scoring failed", foldIdx)
		}
		result.TestScores[foldIdx] = score
	}

	return result, nil
}

// subsetMatrix extracts the rows of X at the given indices.
func subsetMatrix(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	sub := mat.NewDense(len(indices), cols, nil)
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			sub.Set(i, j, X.At(idx, j))
		}
	}
	return sub
}

// subsetVec extracts the first-column values of y at the given indices.
func subsetVec(y mat.Matrix, indices []int) *mat.VecDense {
	sub := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		sub.SetVec(i, y.At(idx, 0))
	}
	return sub
}

func subsetStrings(docs []string, indices []int) []string {
	sub := make([]string, len(indices))
	for i, idx := range indices {
		sub[i] = docs[idx]
	}
	return sub
}

// toVec views the first column of m as a vector.
func toVec(m mat.Matrix) *mat.VecDense {
	if v, ok := m.(*mat.VecDense); ok {
		return v
	}
	rows, _ := m.Dims()
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}
