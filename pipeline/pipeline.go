// Package pipeline implements a scikit-learn compatible Pipeline for chaining
// transformers and estimators into a single composed estimator.
package pipeline

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/pkg/errors"
	"github.com/YuminosukeSato/textpipe/pkg/log"
)

var globalProvider log.LoggerProvider

// SetLoggerProvider replaces the logger provider used by new pipelines.
func SetLoggerProvider(p log.LoggerProvider) {
	globalProvider = p
}

// Step is a single stage in the pipeline: a (name, transformer/estimator)
// pair. Every stage but the last must satisfy model.Transformer or
// model.StringTransformer; the final stage must satisfy model.Fitter (and
// model.Predictor for prediction).
type Step struct {
	Name      string      // Name of this step (for identification and parameter routing)
	Estimator interface{} // Transformer, StringTransformer or Estimator
}

// Pipeline chains multiple transforms and a final estimator behind the same
// Fit/Predict contract as a single estimator. Stage order is fixed at
// construction and never reordered; refitting the pipeline refits every stage
// in order, discarding prior fitted state.
type Pipeline struct {
	state  *model.StateManager
	logger log.Logger

	steps   []Step
	verbose bool

	namedSteps map[string]interface{}
}

// New creates a new Pipeline with the given steps. Step names must be unique
// and must not contain the "__" parameter separator.
func New(steps ...Step) *Pipeline {
	namedSteps := make(map[string]interface{})
	for _, step := range steps {
		namedSteps[step.Name] = step.Estimator
	}

	p := &Pipeline{
		steps:      steps,
		namedSteps: namedSteps,
	}

	p.state = model.NewStateManager()
	if globalProvider == nil {
		globalProvider = log.NewZerologProvider(log.ToLogLevel("info"))
	}
	p.logger = globalProvider.GetLoggerWithName("Pipeline")

	return p
}

// Make is a convenience constructor similar to sklearn's make_pipeline; it
// generates names step1..stepN for the given estimators.
func Make(estimators ...interface{}) *Pipeline {
	steps := make([]Step, len(estimators))
	for i, estimator := range estimators {
		steps[i] = Step{Name: fmt.Sprintf("step%d", i+1), Estimator: estimator}
	}
	return New(steps...)
}

// Fit trains the pipeline: every non-final stage is fitted on the current
// data and then transforms it for the next stage; the final stage is only
// fitted. Prior fitted state inside each stage is overwritten.
func (p *Pipeline) Fit(X, y mat.Matrix) error {
	if len(p.steps) == 0 {
		return errors.New("pipeline has no steps")
	}

	rows, _ := X.Dims()
	p.logger.Info("fitting pipeline",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		"steps", len(p.steps),
	)

	Xt := X
	var err error

	for i := 0; i < len(p.steps)-1; i++ {
		step := p.steps[i]

		transformer, ok := step.Estimator.(model.Transformer)
		if !ok {
			return errors.NewValidationError(
				"pipeline step",
				"all intermediate steps must be transformers",
				step.Name,
			)
		}

		if err = transformer.Fit(Xt); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to fit step '%s'", step.Name))
		}

		Xt, err = transformer.Transform(Xt)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", step.Name))
		}
	}

	if err := p.fitFinal(Xt, y); err != nil {
		return err
	}

	p.state.SetFitted()
	return nil
}

// FitStrings trains a pipeline whose first stage consumes raw documents: the
// head stage must implement model.StringTransformer, the remaining stages
// follow the same contract as Fit.
func (p *Pipeline) FitStrings(docs []string, y mat.Matrix) error {
	if len(p.steps) == 0 {
		return errors.New("pipeline has no steps")
	}

	head := p.steps[0]
	st, ok := head.Estimator.(model.StringTransformer)
	if !ok {
		return errors.NewValidationError(
			"pipeline step",
			"first step must accept raw documents",
			head.Name,
		)
	}

	p.logger.Info("fitting pipeline on raw documents",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(docs),
		"steps", len(p.steps),
	)

	if err := st.FitStrings(docs); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to fit step '%s'", head.Name))
	}
	Xt, err := st.TransformStrings(docs)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", head.Name))
	}

	if len(p.steps) == 1 {
		p.state.SetFitted()
		return nil
	}

	rest := &Pipeline{
		state:      model.NewStateManager(),
		logger:     p.logger,
		steps:      p.steps[1:],
		namedSteps: p.namedSteps,
	}
	if err := rest.Fit(Xt, y); err != nil {
		return err
	}

	p.state.SetFitted()
	return nil
}

// fitFinal fits the last stage on the fully transformed data.
func (p *Pipeline) fitFinal(Xt, y mat.Matrix) error {
	finalStep := p.steps[len(p.steps)-1]

	fitter, ok := finalStep.Estimator.(model.Fitter)
	if !ok {
		return errors.NewValidationError(
			"pipeline final step",
			"final step must have Fit method",
			finalStep.Name,
		)
	}
	if err := fitter.Fit(Xt, y); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to fit final step '%s'", finalStep.Name))
	}
	return nil
}

// Predict applies the transforms to X and predicts with the final estimator.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Predict")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.predictFinal(Xt)
}

// PredictStrings transforms raw documents through the head stage and the
// remaining transforms, then predicts with the final estimator.
func (p *Pipeline) PredictStrings(docs []string) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "PredictStrings")
	}

	Xt, err := p.transformStrings(docs)
	if err != nil {
		return nil, err
	}
	return p.predictFinal(Xt)
}

func (p *Pipeline) predictFinal(Xt mat.Matrix) (mat.Matrix, error) {
	finalStep := p.steps[len(p.steps)-1]

	predictor, ok := finalStep.Estimator.(model.Predictor)
	if !ok {
		return nil, errors.NewValidationError(
			"pipeline final step",
			"final step must have Predict method for prediction",
			finalStep.Name,
		)
	}
	return predictor.Predict(Xt)
}

// Transform applies every stage's transform to X. Only valid when the final
// stage is itself a transformer.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "Transform")
	}

	Xt := X
	var err error

	for _, step := range p.steps {
		transformer, ok := step.Estimator.(model.Transformer)
		if !ok {
			return nil, errors.NewValidationError(
				"pipeline step",
				"all steps must be transformers for Transform",
				step.Name,
			)
		}

		Xt, err = transformer.Transform(Xt)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", step.Name))
		}
	}
	return Xt, nil
}

// FitPredict fits the pipeline and predicts on the same data.
func (p *Pipeline) FitPredict(X, y mat.Matrix) (mat.Matrix, error) {
	if err := p.Fit(X, y); err != nil {
		return nil, err
	}
	return p.Predict(X)
}

// PredictProba applies the transforms to X and calls PredictProba on the
// final estimator.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !p.state.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "PredictProba")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}

	finalStep := p.steps[len(p.steps)-1]
	if predictor, ok := finalStep.Estimator.(interface {
		PredictProba(mat.Matrix) (mat.Matrix, error)
	}); ok {
		return predictor.PredictProba(Xt)
	}

	return nil, errors.NewValidationError(
		"pipeline final step",
		"final step must have PredictProba method",
		finalStep.Name,
	)
}

// Score transforms X and scores the final estimator against y.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	if !p.state.IsFitted() {
		return 0, errors.NewNotFittedError("Pipeline", "Score")
	}

	Xt, err := p.transform(X)
	if err != nil {
		return 0, err
	}

	finalStep := p.steps[len(p.steps)-1]
	if scorer, ok := finalStep.Estimator.(model.Scorer); ok {
		return scorer.Score(Xt, y)
	}

	return 0, errors.NewValidationError(
		"pipeline final step",
		"final step must have Score method",
		finalStep.Name,
	)
}

// GetParams returns the pipeline parameters together with every step's
// parameters, each qualified as "step__param".
func (p *Pipeline) GetParams() map[string]interface{} {
	params := make(map[string]interface{})
	params["verbose"] = p.verbose

	for _, step := range p.steps {
		getter, ok := step.Estimator.(model.ParameterGetter)
		if !ok {
			continue
		}
		for key, value := range getter.GetParams() {
			params[fmt.Sprintf("%s__%s", step.Name, key)] = value
		}
	}
	return params
}

// SetParams sets pipeline parameters. Keys of the form "step__param" route
// to the named step's SetParams; the pipeline's own parameters are set
// directly. Routed steps lose their fitted state, so the pipeline must be
// refitted afterwards.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	routed := make(map[string]map[string]interface{})

	for key, value := range params {
		if name, param, ok := strings.Cut(key, "__"); ok {
			if _, exists := p.namedSteps[name]; !exists {
				return errors.NewValidationError(key, "no pipeline step with this name", name)
			}
			if routed[name] == nil {
				routed[name] = make(map[string]interface{})
			}
			routed[name][param] = value
			continue
		}

		switch key {
		case "verbose":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError("verbose", "must be a bool", value)
			}
			p.verbose = b
		default:
			return errors.NewValidationError(key, "unknown pipeline parameter", value)
		}
	}

	for name, stepParams := range routed {
		setter, ok := p.namedSteps[name].(model.ParameterSetter)
		if !ok {
			return errors.NewValidationError(name, "step does not support SetParams", stepParams)
		}
		if err := setter.SetParams(stepParams); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to set parameters on step '%s'", name))
		}
	}

	if len(routed) > 0 {
		p.state.Reset()
	}
	return nil
}

// NamedSteps returns the steps as a map for access by name.
func (p *Pipeline) NamedSteps() map[string]interface{} {
	return p.namedSteps
}

// Steps returns a copy of the step list in pipeline order.
func (p *Pipeline) Steps() []Step {
	steps := make([]Step, len(p.steps))
	copy(steps, p.steps)
	return steps
}

// transform applies all transforms except the final estimator.
func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	Xt := X
	var err error

	for i := 0; i < len(p.steps)-1; i++ {
		step := p.steps[i]
		transformer, ok := step.Estimator.(model.Transformer)
		if !ok {
			return nil, errors.NewValidationError(
				"pipeline step",
				"intermediate steps must be transformers",
				step.Name,
			)
		}

		Xt, err = transformer.Transform(Xt)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", step.Name))
		}
	}
	return Xt, nil
}

// transformStrings applies the head string stage, then the remaining
// non-final transforms.
func (p *Pipeline) transformStrings(docs []string) (mat.Matrix, error) {
	head := p.steps[0]
	st, ok := head.Estimator.(model.StringTransformer)
	if !ok {
		return nil, errors.NewValidationError(
			"pipeline step",
			"first step must accept raw documents",
			head.Name,
		)
	}

	Xt, err := st.TransformStrings(docs)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", head.Name))
	}

	for i := 1; i < len(p.steps)-1; i++ {
		step := p.steps[i]
		transformer, ok := step.Estimator.(model.Transformer)
		if !ok {
			return nil, errors.NewValidationError(
				"pipeline step",
				"intermediate steps must be transformers",
				step.Name,
			)
		}
		Xt, err = transformer.Transform(Xt)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", step.Name))
		}
	}
	return Xt, nil
}
