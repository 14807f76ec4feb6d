// Package linear_model provides linear classifiers over gonum matrices.
package linear_model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	textpipeErrors "github.com/YuminosukeSato/textpipe/pkg/errors"
)

// Supported solver and multi-class strategy names. Unknown names are
// rejected at fit time rather than silently mapped to a default.
var (
	supportedSolvers     = map[string]bool{"lbfgs": true, "newton-cg": true}
	supportedMultiClass  = map[string]bool{"auto": true, "ovr": true, "multinomial": true}
	supportedLRPenalties = map[string]bool{"l2": true, "none": true}
)

// LogisticRegression implements logistic regression for classification.
// Fields are exported so a fitted model round-trips through gob.
type LogisticRegression struct {
	State *model.StateManager

	// Hyperparameters
	Penalty      string  // Regularization: "l2" or "none"
	C            float64 // Inverse regularization strength
	FitIntercept bool
	Solver       string // "lbfgs" or "newton-cg"
	MaxIter      int
	MultiClass   string // "auto", "ovr" or "multinomial"
	Tol          float64
	RandomState  int64

	// Fitted parameters
	Coef        [][]float64 // One weight vector per class (one total for binary)
	Intercept   []float64
	ClassLabels []int
	NIter       []int

	rng *rand.Rand
}

// Option is a functional option for LogisticRegression.
type Option func(*LogisticRegression)

// NewLogisticRegression creates a logistic regression classifier.
func NewLogisticRegression(opts ...Option) *LogisticRegression {
	lr := &LogisticRegression{
		State:        model.NewStateManager(),
		Penalty:      "l2",
		C:            1.0,
		FitIntercept: true,
		Solver:       "lbfgs",
		MaxIter:      100,
		MultiClass:   "auto",
		Tol:          1e-4,
		RandomState:  0,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithPenalty sets the regularization type.
func WithPenalty(penalty string) Option {
	return func(lr *LogisticRegression) { lr.Penalty = penalty }
}

// WithC sets the inverse regularization strength.
func WithC(c float64) Option {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithSolver sets the optimization solver.
func WithSolver(solver string) Option {
	return func(lr *LogisticRegression) { lr.Solver = solver }
}

// WithMultiClass sets the multi-class strategy.
func WithMultiClass(strategy string) Option {
	return func(lr *LogisticRegression) { lr.MultiClass = strategy }
}

// WithMaxIter sets the maximum number of iterations.
func WithMaxIter(maxIter int) Option {
	return func(lr *LogisticRegression) { lr.MaxIter = maxIter }
}

// WithTol sets the tolerance for the stopping criterion.
func WithTol(tol float64) Option {
	return func(lr *LogisticRegression) { lr.Tol = tol }
}

// WithRandomState sets the seed for weight initialization.
func WithRandomState(seed int64) Option {
	return func(lr *LogisticRegression) { lr.RandomState = seed }
}

// ModelKind tags the model family for hyperparameter grid selection.
func (lr *LogisticRegression) ModelKind() model.Kind {
	return model.KindLogisticRegression
}

func (lr *LogisticRegression) validateParams() error {
	if !supportedSolvers[lr.Solver] {
		return textpipeErrors.NewValidationError("solver", "unsupported solver", lr.Solver)
	}
	if !supportedMultiClass[lr.MultiClass] {
		return textpipeErrors.NewValidationError("multi_class", "unsupported strategy", lr.MultiClass)
	}
	if !supportedLRPenalties[lr.Penalty] {
		return textpipeErrors.NewValidationError("penalty", "unsupported penalty", lr.Penalty)
	}
	if lr.C <= 0 {
		return textpipeErrors.NewValidationError("C", "must be positive", lr.C)
	}
	return nil
}

// Fit trains the model. Refitting discards all previously fitted state.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return textpipeErrors.ErrEmptyData
	}
	if nSamples != yRows {
		return textpipeErrors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return textpipeErrors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}

	lr.State.Reset()
	lr.ClassLabels = extractClasses(y)
	nClasses := len(lr.ClassLabels)
	if nClasses < 2 {
		return textpipeErrors.NewValueError("LogisticRegression.Fit", "training data contains a single class")
	}

	lr.rng = rand.New(rand.NewPCG(uint64(lr.RandomState), uint64(lr.RandomState)))
	lr.initializeWeights(nClasses, nFeatures)

	var err error
	switch {
	case nClasses == 2:
		err = lr.fitBinary(X, y)
	case lr.effectiveMultiClass() == "multinomial":
		err = lr.fitMultinomial(X, y)
	default:
		err = lr.fitOVR(X, y)
	}
	if err != nil {
		return err
	}

	lr.State.SetDimensions(nFeatures, nSamples)
	lr.State.SetFitted()
	return nil
}

// effectiveMultiClass resolves "auto" the way scikit-learn does for the
// supported solvers: both lbfgs and newton-cg handle multinomial loss.
func (lr *LogisticRegression) effectiveMultiClass() string {
	if lr.MultiClass == "auto" {
		return "multinomial"
	}
	return lr.MultiClass
}

// extractClasses returns the sorted unique integer labels of y.
func extractClasses(y mat.Matrix) []int {
	rows, _ := y.Dims()
	seen := make(map[int]bool)
	for i := 0; i < rows; i++ {
		seen[int(y.At(i, 0))] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	for i := 0; i < len(classes)-1; i++ {
		for j := i + 1; j < len(classes); j++ {
			if classes[i] > classes[j] {
				classes[i], classes[j] = classes[j], classes[i]
			}
		}
	}
	return classes
}

func (lr *LogisticRegression) initializeWeights(nClasses, nFeatures int) {
	nVectors := nClasses
	if nClasses == 2 {
		nVectors = 1
	}
	lr.Coef = make([][]float64, nVectors)
	for i := range lr.Coef {
		lr.Coef[i] = make([]float64, nFeatures)
		for j := range lr.Coef[i] {
			lr.Coef[i][j] = lr.rng.NormFloat64() * 0.01
		}
	}
	lr.Intercept = make([]float64, nVectors)
	lr.NIter = make([]int, nVectors)
}

// fitBinary fits a single weight vector with batch gradient descent.
func (lr *LogisticRegression) fitBinary(X, y mat.Matrix) error {
	nSamples, _ := X.Dims()
	yBinary := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == lr.ClassLabels[1] {
			yBinary[i] = 1.0
		}
	}
	return lr.descend(X, yBinary, 0)
}

// fitOVR fits one binary classifier per class against the rest.
func (lr *LogisticRegression) fitOVR(X, y mat.Matrix) error {
	nSamples, _ := X.Dims()
	for classIdx, class := range lr.ClassLabels {
		yBinary := make([]float64, nSamples)
		for i := 0; i < nSamples; i++ {
			if int(y.At(i, 0)) == class {
				yBinary[i] = 1.0
			}
		}
		if err := lr.descend(X, yBinary, classIdx); err != nil {
			return textpipeErrors.Wrapf(err, "failed to fit class %d", class)
		}
	}
	return nil
}

// descend runs batch gradient descent on the weight vector at classIdx
// against 0/1 targets. Both supported solvers share this path; the solver
// name selects scikit-learn semantics, not a different optimizer here.
func (lr *LogisticRegression) descend(X mat.Matrix, yBinary []float64, classIdx int) error {
	nSamples, nFeatures := X.Dims()
	weights := lr.Coef[classIdx]
	intercept := &lr.Intercept[classIdx]

	baseLearningRate := 1.0
	converged := false

	for iter := 0; iter < lr.MaxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := sigmoid(z) - yBinary[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] /= float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		if lr.Penalty == "l2" {
			lambda := 1.0 / lr.C
			for j := range weights {
				gradWeights[j] += lambda * weights[j] / float64(nSamples)
			}
		}

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if lr.FitIntercept {
			*intercept -= learningRate * gradIntercept
		}

		lr.NIter[classIdx] = iter + 1

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < lr.Tol {
			converged = true
			break
		}
	}

	if !converged {
		textpipeErrors.Warn(textpipeErrors.NewConvergenceWarning(
			"LogisticRegression", lr.MaxIter, "gradient norm above tolerance, consider increasing max_iter"))
	}
	return nil
}

// fitMultinomial fits all class weight vectors jointly against the softmax
// cross-entropy loss.
func (lr *LogisticRegression) fitMultinomial(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	nClasses := len(lr.ClassLabels)

	classIdx := make(map[int]int, nClasses)
	for i, c := range lr.ClassLabels {
		classIdx[c] = i
	}
	target := make([]int, nSamples)
	for i := 0; i < nSamples; i++ {
		target[i] = classIdx[int(y.At(i, 0))]
	}

	baseLearningRate := 1.0
	converged := false

	for iter := 0; iter < lr.MaxIter; iter++ {
		gradWeights := make([][]float64, nClasses)
		for k := range gradWeights {
			gradWeights[k] = make([]float64, nFeatures)
		}
		gradIntercept := make([]float64, nClasses)

		probs := make([]float64, nClasses)
		for i := 0; i < nSamples; i++ {
			// Stable softmax over the class scores of sample i.
			maxScore := math.Inf(-1)
			for k := 0; k < nClasses; k++ {
				z := lr.Intercept[k]
				for j := 0; j < nFeatures; j++ {
					z += X.At(i, j) * lr.Coef[k][j]
				}
				probs[k] = z
				if z > maxScore {
					maxScore = z
				}
			}
			sum := 0.0
			for k := 0; k < nClasses; k++ {
				probs[k] = math.Exp(probs[k] - maxScore)
				sum += probs[k]
			}

			for k := 0; k < nClasses; k++ {
				residual := probs[k] / sum
				if k == target[i] {
					residual -= 1.0
				}
				gradIntercept[k] += residual
				for j := 0; j < nFeatures; j++ {
					gradWeights[k][j] += residual * X.At(i, j)
				}
			}
		}

		maxGrad := 0.0
		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for k := 0; k < nClasses; k++ {
			gradIntercept[k] /= float64(nSamples)
			if math.Abs(gradIntercept[k]) > maxGrad {
				maxGrad = math.Abs(gradIntercept[k])
			}
			for j := 0; j < nFeatures; j++ {
				g := gradWeights[k][j] / float64(nSamples)
				if lr.Penalty == "l2" {
					g += lr.Coef[k][j] / (lr.C * float64(nSamples))
				}
				if math.Abs(g) > maxGrad {
					maxGrad = math.Abs(g)
				}
				lr.Coef[k][j] -= learningRate * g
			}
			if lr.FitIntercept {
				lr.Intercept[k] -= learningRate * gradIntercept[k]
			}
		}

		lr.NIter[0] = iter + 1

		if maxGrad < lr.Tol {
			converged = true
			break
		}
	}

	if !converged {
		textpipeErrors.Warn(textpipeErrors.NewConvergenceWarning(
			"LogisticRegression", lr.MaxIter, "gradient norm above tolerance, consider increasing max_iter"))
	}
	return nil
}

// decisionScores returns the raw per-class scores for each sample. For the
// binary case the single score is the logit of the positive class.
func (lr *LogisticRegression) decisionScores(X mat.Matrix) *mat.Dense {
	nSamples, _ := X.Dims()
	nFeatures, _ := lr.State.GetDimensions()
	scores := mat.NewDense(nSamples, len(lr.Coef), nil)
	for i := 0; i < nSamples; i++ {
		for k := range lr.Coef {
			z := lr.Intercept[k]
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * lr.Coef[k][j]
			}
			scores.Set(i, k, z)
		}
	}
	return scores
}

// Predict returns the predicted class label for each row of X.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !lr.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("LogisticRegression", "Predict")
	}
	nFeatures, _ := lr.State.GetDimensions()
	_, cols := X.Dims()
	if cols != nFeatures {
		return nil, textpipeErrors.NewDimensionError("LogisticRegression.Predict", nFeatures, cols, 1)
	}

	scores := lr.decisionScores(X)
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)

	if len(lr.ClassLabels) == 2 {
		for i := 0; i < nSamples; i++ {
			if sigmoid(scores.At(i, 0)) >= 0.5 {
				predictions.Set(i, 0, float64(lr.ClassLabels[1]))
			} else {
				predictions.Set(i, 0, float64(lr.ClassLabels[0]))
			}
		}
		return predictions, nil
	}

	for i := 0; i < nSamples; i++ {
		best, bestScore := 0, math.Inf(-1)
		for k := range lr.Coef {
			if s := scores.At(i, k); s > bestScore {
				best, bestScore = k, s
			}
		}
		predictions.Set(i, 0, float64(lr.ClassLabels[best]))
	}
	return predictions, nil
}

// PredictProba returns per-class probability estimates.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !lr.State.IsFitted() {
		return nil, textpipeErrors.NewNotFittedError("LogisticRegression", "PredictProba")
	}

	scores := lr.decisionScores(X)
	nSamples, _ := X.Dims()
	nClasses := len(lr.ClassLabels)
	probas := mat.NewDense(nSamples, nClasses, nil)

	if nClasses == 2 {
		for i := 0; i < nSamples; i++ {
			p := sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1.0-p)
			probas.Set(i, 1, p)
		}
		return probas, nil
	}

	for i := 0; i < nSamples; i++ {
		maxScore := math.Inf(-1)
		for k := 0; k < nClasses; k++ {
			if s := scores.At(i, k); s > maxScore {
				maxScore = s
			}
		}
		sum := 0.0
		row := make([]float64, nClasses)
		for k := 0; k < nClasses; k++ {
			row[k] = math.Exp(scores.At(i, k) - maxScore)
			sum += row[k]
		}
		for k := 0; k < nClasses; k++ {
			probas.Set(i, k, row[k]/sum)
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels.
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
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
func (lr *LogisticRegression) Classes() []int {
	out := make([]int, len(lr.ClassLabels))
	copy(out, lr.ClassLabels)
	return out
}

// GetParams returns the model hyperparameters.
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.Penalty,
		"C":             lr.C,
		"fit_intercept": lr.FitIntercept,
		"solver":        lr.Solver,
		"max_iter":      lr.MaxIter,
		"multi_class":   lr.MultiClass,
		"tol":           lr.Tol,
		"random_state":  lr.RandomState,
	}
}

// SetParams sets hyperparameters and discards fitted state: a model with
// new parameters must be refit before prediction.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		ok := true
		switch key {
		case "penalty":
			lr.Penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.FitIntercept, ok = value.(bool)
		case "solver":
			lr.Solver, ok = value.(string)
		case "max_iter":
			lr.MaxIter, ok = value.(int)
		case "multi_class":
			lr.MultiClass, ok = value.(string)
		case "tol":
			lr.Tol, ok = value.(float64)
		case "random_state":
			lr.RandomState, ok = value.(int64)
		default:
			return textpipeErrors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return textpipeErrors.NewValidationError(key, "wrong value type", value)
		}
	}
	lr.State.Reset()
	return nil
}

// Save persists the fitted model with gob.
func (lr *LogisticRegression) Save(path string) error {
	return model.SaveModel(lr, path)
}

// Load restores a fitted model saved with Save.
func (lr *LogisticRegression) Load(path string) error {
	return model.LoadModel(lr, path)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
