package model_selection

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// TrainTestSplit partitions numeric features and labels into disjoint train
// and test sets. testSize is the fraction of rows held out; the same seed
// always yields the same partition.
func TrainTestSplit(X, y mat.Matrix, testSize float64, seed int64) (trainX, testX *mat.Dense, trainY, testY *mat.VecDense, err error) {
	nSamples, _ := X.Dims()
	if nSamples == 0 {
		return nil, nil, nil, nil, textpipeErrors.ErrEmptyData
	}
	yRows, _ := y.Dims()
	if yRows != nSamples {
		return nil, nil, nil, nil, textpipeErrors.NewDimensionError("TrainTestSplit", nSamples, yRows, 0)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, textpipeErrors.NewValidationError("testSize", "must be in (0, 1)", testSize)
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(nSamples, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	nTest := int(float64(nSamples) * testSize)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= nSamples {
		nTest = nSamples - 1
	}

	testX = subsetMatrix(X, indices[:nTest])
	trainX = subsetMatrix(X, indices[nTest:])
	testY = subsetVec(y, indices[:nTest])
	trainY = subsetVec(y, indices[nTest:])
	return trainX, testX, trainY, testY, nil
}

// Subsample draws size rows of X and y without replacement, shuffled with
// the given seed. If size >= the row count the full data is returned
// shuffled.
func Subsample(X, y mat.Matrix, size int, seed int64) (*mat.Dense, *mat.VecDense, error) {
	nSamples, _ := X.Dims()
	if nSamples == 0 {
		return nil, nil, textpipeErrors.ErrEmptyData
	}
	if size <= 0 {
		return nil, nil, textpipeErrors.NewValidationError("size", "must be positive", size)
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	r.Shuffle(nSamples, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	if size > nSamples {
		size = nSamples
	}
	return subsetMatrix(X, indices[:size]), subsetVec(y, indices[:size]), nil
}
