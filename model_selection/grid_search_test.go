package model_selection

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// countingEstimator records every Fit call and predicts a constant label
// chosen by its current parameters.
type countingEstimator struct {
	fitCalls int
	setCalls []map[string]interface{}
	label    float64
}

func (c *countingEstimator) Fit(X, y mat.Matrix) error {
	c.fitCalls++
	return nil
}

func (c *countingEstimator) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, _ := X.Dims()
	pred := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		pred.SetVec(i, c.label)
	}
	return pred, nil
}

func (c *countingEstimator) SetParams(params map[string]interface{}) error {
	c.setCalls = append(c.setCalls, params)
	if v, ok := params["label"]; ok {
		c.label = v.(float64)
	}
	return nil
}

func TestParamGridCombinations(t *testing.T) {
	grid := ParamGrid{
		"solver":      {"lbfgs", "newton-cg"},
		"multi_class": {"ovr", "multinomial"},
	}

	combos := grid.Combinations()
	if len(combos) != 4 {
		t.Fatalf("Expected 4 combinations, got %d", len(combos))
	}

	// Sorted-key enumeration: multi_class varies slowest.
	if combos[0]["multi_class"] != "ovr" || combos[0]["solver"] != "lbfgs" {
		t.Errorf("combos[0] = %v", combos[0])
	}
	if combos[3]["multi_class"] != "multinomial" || combos[3]["solver"] != "newton-cg" {
		t.Errorf("combos[3] = %v", combos[3])
	}

	// Deterministic across calls.
	again := grid.Combinations()
	for i := range combos {
		for k, v := range combos[i] {
			if again[i][k] != v {
				t.Fatalf("Enumeration order differs at combination %d", i)
			}
		}
	}
}

func TestParamGridWithPrefix(t *testing.T) {
	grid := ParamGrid{"solver": {"lbfgs"}}
	prefixed := grid.WithPrefix("model")
	if _, ok := prefixed["model__solver"]; !ok {
		t.Errorf("Expected key model__solver, got %v", prefixed)
	}
}

func TestGridFor(t *testing.T) {
	lrGrid, err := GridFor(model.KindLogisticRegression)
	if err != nil {
		t.Fatalf("GridFor(KindLogisticRegression) failed: %v", err)
	}
	if len(lrGrid.Combinations()) != 4 {
		t.Errorf("Logistic grid has %d combinations, want 4", len(lrGrid.Combinations()))
	}
	if len(lrGrid["solver"]) != 2 || len(lrGrid["multi_class"]) != 2 {
		t.Errorf("Unexpected logistic grid: %v", lrGrid)
	}

	rfGrid, err := GridFor(model.KindRandomForest)
	if err != nil {
		t.Fatalf("GridFor(KindRandomForest) failed: %v", err)
	}
	if len(rfGrid["min_samples_split"]) != 2 || len(rfGrid["n_estimators"]) != 2 {
		t.Errorf("Unexpected forest grid: %v", rfGrid)
	}

	if _, err := GridFor(model.KindUnknown); !errors.Is(err, textpipeErrors.ErrUnknownModelKind) {
		t.Errorf("GridFor(KindUnknown) error = %v, want ErrUnknownModelKind", err)
	}
}

func TestGridSearchCVFitCount(t *testing.T) {
	// 4 combinations x 3 folds is exactly 12 search fits, plus one final
	// refit on the full input with the winning combination.
	est := &countingEstimator{}
	grid := ParamGrid{
		"a": {1, 2},
		"b": {10, 20},
	}
	gs := NewGridSearchCV(est, grid, mustKFold(t, 3, true, 42))

	X := mat.NewDense(30, 2, nil)
	y := mat.NewVecDense(30, nil)
	for i := 0; i < 30; i++ {
		y.SetVec(i, float64(i%2))
	}

	if err := gs.FitStrings(nil, y); err == nil {
		t.Error("FitStrings on a numeric-only estimator should fail")
	}

	if err := gs.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if est.fitCalls != 13 {
		t.Errorf("fitCalls = %d, want 12 fold fits + 1 refit", est.fitCalls)
	}
	last := est.setCalls[len(est.setCalls)-1]
	if last["a"] != gs.BestParams["a"] || last["b"] != gs.BestParams["b"] {
		t.Errorf("final SetParams %v should carry BestParams %v", last, gs.BestParams)
	}
	if len(gs.Results) != 4 {
		t.Errorf("len(Results) = %d, want 4", len(gs.Results))
	}
}

func TestGridSearchCVBestInGrid(t *testing.T) {
	est := &countingEstimator{}
	grid := ParamGrid{"label": {0.0, 1.0}}
	gs := NewGridSearchCV(est, grid, mustKFold(t, 3, false, 0))

	// All-ones labels: the constant-1 candidate wins with a perfect score.
	X := mat.NewDense(12, 1, nil)
	y := mat.NewVecDense(12, nil)
	for i := 0; i < 12; i++ {
		y.SetVec(i, 1)
	}

	if err := gs.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if gs.BestParams["label"] != 1.0 {
		t.Errorf("BestParams = %v, want label=1", gs.BestParams)
	}
	if math.Abs(gs.BestScore-1.0) > 1e-9 {
		t.Errorf("BestScore = %v, want 1.0", gs.BestScore)
	}

	// The winner must be a member of the declared grid.
	found := false
	for _, v := range grid["label"] {
		if gs.BestParams["label"] == v {
			found = true
		}
	}
	if !found {
		t.Errorf("Best value %v is not in the declared grid", gs.BestParams["label"])
	}

	if gs.BestParamsString() != "label=1" {
		t.Errorf("BestParamsString() = %q", gs.BestParamsString())
	}
}

func TestGridSearchCVEmptyGrid(t *testing.T) {
	gs := NewGridSearchCV(&countingEstimator{}, ParamGrid{}, mustKFold(t, 3, false, 0))
	X := mat.NewDense(6, 1, nil)
	y := mat.NewVecDense(6, nil)
	if err := gs.Fit(X, y); err == nil {
		t.Error("Expected error for empty grid")
	}
}
