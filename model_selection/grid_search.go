package model_selection

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/metrics"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// ParamGrid maps a parameter name to its candidate values. The search space
// is the cross-product of all value lists.
type ParamGrid map[string][]interface{}

// Combinations enumerates every parameter combination in the grid. Keys are
// iterated in sorted order so enumeration is deterministic.
func (g ParamGrid) Combinations() []map[string]interface{} {
	if len(g) == 0 {
		return nil
	}

	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]interface{}{{}}
	for _, key := range keys {
		values := g[key]
		next := make([]map[string]interface{}, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, v := range values {
				extended := make(map[string]interface{}, len(combo)+1)
				for ck, cv := range combo {
					extended[ck] = cv
				}
				extended[key] = v
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

// WithPrefix returns a copy of the grid with every key qualified as
// "step__param", the form a pipeline's SetParams routes to a named step.
func (g ParamGrid) WithPrefix(step string) ParamGrid {
	prefixed := make(ParamGrid, len(g))
	for k, v := range g {
		prefixed[step+"__"+k] = v
	}
	return prefixed
}

// GridFor returns the declared hyperparameter grid for a model family.
// An unknown kind is an error; there is no fallback family.
func GridFor(kind model.Kind) (ParamGrid, error) {
	switch kind {
	case model.KindLogisticRegression:
		return ParamGrid{
			"multi_class": {"ovr", "multinomial"},
			"solver":      {"lbfgs", "newton-cg"},
		}, nil
	case model.KindRandomForest:
		return ParamGrid{
			"min_samples_split": {2, 8},
			"n_estimators":      {25, 50},
		}, nil
	default:
		return nil, textpipeErrors.Wrapf(textpipeErrors.ErrUnknownModelKind, "no hyperparameter grid for kind %q", kind)
	}
}

// CandidateResult records the cross-validated performance of one parameter
// combination.
type CandidateResult struct {
	Params    map[string]interface{}
	MeanScore float64
	StdScore  float64
}

// GridSearchCV performs exhaustive cross-validated search over a parameter
// grid: for each combination it sets the candidate parameters on the
// estimator, runs k-fold cross-validation, and keeps the combination with
// the highest mean held-out score. The total work is exactly
// |combinations| x k estimator fits, which is why callers typically search
// over a subsample.
type GridSearchCV struct {
	estimator interface{}
	paramGrid ParamGrid
	splitter  KFoldSplitter
	scoring   ScoreFunc

	// BestParams is the winning combination after Fit; always a member of
	// the declared grid.
	BestParams map[string]interface{}
	// BestScore is the mean held-out score of BestParams.
	BestScore float64
	// Results holds every candidate's cross-validated scores.
	Results []CandidateResult

	fitted bool
}

// NewGridSearchCV creates a grid search over the given estimator. The
// estimator must satisfy Estimator (numeric features) or StringEstimator
// (raw documents), matching which Fit variant is called. Scoring defaults
// to micro-averaged F1.
func NewGridSearchCV(estimator interface{}, paramGrid ParamGrid, splitter KFoldSplitter) *GridSearchCV {
	return &GridSearchCV{
		estimator: estimator,
		paramGrid: paramGrid,
		splitter:  splitter,
		scoring: func(yTrue, yPred *mat.VecDense) (float64, error) {
			return metrics.MicroF1(yTrue, yPred)
		},
	}
}

// SetScoring replaces the score function used to rank candidates.
func (gs *GridSearchCV) SetScoring(scoring ScoreFunc) {
	gs.scoring = scoring
}

// Fit searches the grid over numeric features.
func (gs *GridSearchCV) Fit(X, y mat.Matrix) error {
	est, ok := gs.estimator.(Estimator)
	if !ok {
		return textpipeErrors.NewValidationError("estimator", "does not implement Fit/Predict/SetParams over matrices", fmt.Sprintf("%T", gs.estimator))
	}
	if err := gs.search(func(params map[string]interface{}) (*CVResult, error) {
		if err := est.SetParams(params); err != nil {
			return nil, err
		}
		return CrossValidate(est, X, y, gs.splitter, gs.scoring)
	}); err != nil {
		return err
	}

	// Refit on the full input with the winning combination so the caller
	// gets a usable estimator back.
	if err := est.SetParams(gs.BestParams); err != nil {
		return err
	}
	return est.Fit(X, y)
}

// FitStrings searches the grid over raw documents.
func (gs *GridSearchCV) FitStrings(docs []string, y mat.Matrix) error {
	est, ok := gs.estimator.(StringEstimator)
	if !ok {
		return textpipeErrors.NewValidationError("estimator", "does not implement FitStrings/PredictStrings/SetParams", fmt.Sprintf("%T", gs.estimator))
	}
	if err := gs.search(func(params map[string]interface{}) (*CVResult, error) {
		if err := est.SetParams(params); err != nil {
			return nil, err
		}
		return CrossValidateStrings(est, docs, y, gs.splitter, gs.scoring)
	}); err != nil {
		return err
	}

	if err := est.SetParams(gs.BestParams); err != nil {
		return err
	}
	return est.FitStrings(docs, y)
}

// search runs cross-validation once per combination via evaluate and
// records the best mean score.
func (gs *GridSearchCV) search(evaluate func(params map[string]interface{}) (*CVResult, error)) error {
	combos := gs.paramGrid.Combinations()
	if len(combos) == 0 {
		return textpipeErrors.NewValidationError("paramGrid", "grid has no parameter combinations", gs.paramGrid)
	}

	gs.Results = make([]CandidateResult, 0, len(combos))
	gs.BestParams = nil
	gs.BestScore = 0
	gs.fitted = false

	for _, params := range combos {
		cv, err := evaluate(params)
		if err != nil {
			return textpipeErrors.Wrapf(err, "candidate %v failed", params)
		}

		result := CandidateResult{
			Params:    params,
			MeanScore: cv.MeanScore(),
			StdScore:  cv.StdScore(),
		}
		gs.Results = append(gs.Results, result)

		if gs.BestParams == nil || result.MeanScore > gs.BestScore {
			gs.BestParams = params
			gs.BestScore = result.MeanScore
		}
	}

	gs.fitted = true
	return nil
}

// BestParamsString renders the winning combination as "key=value" pairs in
// sorted key order.
func (gs *GridSearchCV) BestParamsString() string {
	if !gs.fitted {
		return ""
	}
	keys := make([]string, 0, len(gs.BestParams))
	for k := range gs.BestParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, gs.BestParams[k]))
	}
	return strings.Join(parts, ", ")
}
