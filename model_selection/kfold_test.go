package model_selection

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

func mustKFold(t *testing.T, nSplits int, shuffle bool, seed int) *KFold {
	t.Helper()
	kf, err := NewKFold(nSplits, shuffle, seed)
	if err != nil {
		t.Fatalf("NewKFold failed: %v", err)
	}
	return kf
}

func TestKFoldSplit(t *testing.T) {
	tests := []struct {
		name     string
		nSamples int
		nSplits  int
		shuffle  bool
	}{
		{"Even split", 12, 3, false},
		{"Uneven split", 10, 3, false},
		{"Shuffled", 12, 3, true},
		{"Five fold", 25, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X := mat.NewDense(tt.nSamples, 2, nil)
			y := mat.NewVecDense(tt.nSamples, nil)

			kf := mustKFold(t, tt.nSplits, tt.shuffle, 42)
			folds := kf.Split(X, y)

			if len(folds) != tt.nSplits {
				t.Fatalf("Expected %d folds, got %d", tt.nSplits, len(folds))
			}

			// Every sample is a test sample exactly once.
			testCount := make(map[int]int)
			for _, fold := range folds {
				if len(fold.TrainIndices)+len(fold.TestIndices) != tt.nSamples {
					t.Errorf("Fold covers %d samples, want %d",
						len(fold.TrainIndices)+len(fold.TestIndices), tt.nSamples)
				}
				for _, idx := range fold.TestIndices {
					testCount[idx]++
				}

				// Train and test are disjoint within a fold.
				inTest := make(map[int]bool)
				for _, idx := range fold.TestIndices {
					inTest[idx] = true
				}
				for _, idx := range fold.TrainIndices {
					if inTest[idx] {
						t.Errorf("Index %d in both train and test", idx)
					}
				}
			}
			for i := 0; i < tt.nSamples; i++ {
				if testCount[i] != 1 {
					t.Errorf("Sample %d held out %d times, want 1", i, testCount[i])
				}
			}
		})
	}
}

func TestKFoldDeterminism(t *testing.T) {
	X := mat.NewDense(20, 1, nil)
	y := mat.NewVecDense(20, nil)

	folds1 := mustKFold(t, 3, true, 7).Split(X, y)
	folds2 := mustKFold(t, 3, true, 7).Split(X, y)

	for i := range folds1 {
		for j := range folds1[i].TestIndices {
			if folds1[i].TestIndices[j] != folds2[i].TestIndices[j] {
				t.Fatalf("Fold %d differs with the same seed", i)
			}
		}
	}
}

func TestKFoldMinimumSplits(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		if _, err := NewKFold(n, false, 0); err == nil {
			t.Errorf("NewKFold(%d) should fail, k-fold needs at least 2 splits", n)
		}
	}
}

func TestCVResultStats(t *testing.T) {
	cv := &CVResult{TestScores: []float64{0.8, 0.9, 1.0}}

	if math.Abs(cv.MeanScore()-0.9) > 1e-9 {
		t.Errorf("MeanScore() = %v, want 0.9", cv.MeanScore())
	}
	if math.Abs(cv.StdScore()-0.1) > 1e-9 {
		t.Errorf("StdScore() = %v, want 0.1", cv.StdScore())
	}

	empty := &CVResult{}
	if empty.MeanScore() != 0 || empty.StdScore() != 0 {
		t.Error("Empty result should have zero mean and std")
	}
}

func TestCrossValidate(t *testing.T) {
	est := &countingEstimator{label: 1}
	X := mat.NewDense(9, 1, nil)
	y := mat.NewVecDense(9, nil)
	for i := 0; i < 9; i++ {
		y.SetVec(i, 1)
	}

	scoring := func(yTrue, yPred *mat.VecDense) (float64, error) {
		correct := 0
		for i := 0; i < yTrue.Len(); i++ {
			if yTrue.AtVec(i) == yPred.AtVec(i) {
				correct++
			}
		}
		return float64(correct) / float64(yTrue.Len()), nil
	}

	result, err := CrossValidate(est, X, y, mustKFold(t, 3, false, 0), scoring)
	if err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}

	if est.fitCalls != 3 {
		t.Errorf("fitCalls = %d, want 3", est.fitCalls)
	}
	if math.Abs(result.MeanScore()-1.0) > 1e-9 {
		t.Errorf("MeanScore() = %v, want 1.0", result.MeanScore())
	}
}

func TestCrossValidateNilScoring(t *testing.T) {
	X := mat.NewDense(6, 1, nil)
	y := mat.NewVecDense(6, nil)
	if _, err := CrossValidate(&countingEstimator{}, X, y, mustKFold(t, 3, false, 0), nil); err == nil {
		t.Error("Expected error for nil scoring")
	}
}

type noopStringEstimator struct{}

func (noopStringEstimator) FitStrings([]string, mat.Matrix) error { return nil }
func (noopStringEstimator) PredictStrings([]string) (mat.Matrix, error) {
	return nil, nil
}
func (noopStringEstimator) SetParams(map[string]interface{}) error { return nil }

func TestCrossValidateStringsEmptyCorpus(t *testing.T) {
	scoring := func(yTrue, yPred *mat.VecDense) (float64, error) { return 0, nil }
	y := mat.NewVecDense(1, nil)

	for _, docs := range [][]string{nil, {}} {
		_, err := CrossValidateStrings(noopStringEstimator{}, docs, y, mustKFold(t, 3, false, 0), scoring)
		if !errors.Is(err, textpipeErrors.ErrEmptyData) {
			t.Errorf("CrossValidateStrings with no documents = %v, want ErrEmptyData", err)
		}
	}
}

func TestTrainTestSplitMatrices(t *testing.T) {
	X := mat.NewDense(20, 2, nil)
	y := mat.NewVecDense(20, nil)
	for i := 0; i < 20; i++ {
		X.Set(i, 0, float64(i))
		y.SetVec(i, float64(i))
	}

	trainX, testX, trainY, testY, err := TrainTestSplit(X, y, 0.25, 42)
	if err != nil {
		t.Fatalf("TrainTestSplit failed: %v", err)
	}

	tr, _ := trainX.Dims()
	te, _ := testX.Dims()
	if tr != 15 || te != 5 {
		t.Errorf("Partition sizes = %d/%d, want 15/5", tr, te)
	}

	// Rows stay aligned with their labels.
	seen := make(map[float64]bool)
	for i := 0; i < tr; i++ {
		if trainX.At(i, 0) != trainY.AtVec(i) {
			t.Errorf("Train row %d misaligned with label", i)
		}
		seen[trainY.AtVec(i)] = true
	}
	for i := 0; i < te; i++ {
		if testX.At(i, 0) != testY.AtVec(i) {
			t.Errorf("Test row %d misaligned with label", i)
		}
		if seen[testY.AtVec(i)] {
			t.Errorf("Sample %v in both partitions", testY.AtVec(i))
		}
	}
}

func TestSubsampleMatrices(t *testing.T) {
	X := mat.NewDense(10, 1, nil)
	y := mat.NewVecDense(10, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		y.SetVec(i, float64(i))
	}

	subX, subY, err := Subsample(X, y, 4, 42)
	if err != nil {
		t.Fatalf("Subsample failed: %v", err)
	}
	rows, _ := subX.Dims()
	if rows != 4 {
		t.Errorf("Subsample rows = %d, want 4", rows)
	}
	for i := 0; i < rows; i++ {
		if subX.At(i, 0) != subY.AtVec(i) {
			t.Errorf("Subsample row %d misaligned with label", i)
		}
	}

	subX2, _, err := Subsample(X, y, 4, 42)
	if err != nil {
		t.Fatalf("Subsample failed: %v", err)
	}
	for i := 0; i < rows; i++ {
		if subX.At(i, 0) != subX2.At(i, 0) {
			t.Fatalf("Subsamples differ with the same seed")
		}
	}
}
