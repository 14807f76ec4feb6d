// Package model provides the shared interfaces, state management and
// persistence used by every estimator and transformer in textpipe.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for models that can be trained.
type Fitter interface {
	// Fit trains the model on X with targets y.
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for models that can predict.
type Predictor interface {
	// Predict returns predictions for the input data.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator is the basic supervised-learning contract.
type Estimator interface {
	Fitter
	Predictor
}

// Transformer is the interface for feature transformations over numeric data.
type Transformer interface {
	// Fit learns the parameters required for the transformation.
	Fit(X mat.Matrix) error

	// Transform applies the transformation to X.
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform fits and transforms in one call.
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// StringTransformer is the interface for transformations whose input is raw
// text rather than a numeric matrix. A vectorizer at the head of a pipeline
// implements this in addition to (or instead of) Transformer.
type StringTransformer interface {
	// FitStrings learns the parameters required for the transformation.
	FitStrings(docs []string) error

	// TransformStrings maps raw documents to a numeric feature matrix.
	TransformStrings(docs []string) (mat.Matrix, error)
}

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns an aggregate quality score of the prediction against y
	// (mean accuracy for classifiers).
	Score(X mat.Matrix, y mat.Matrix) (float64, error)
}

// Classifier combines the interfaces of classification models.
type Classifier interface {
	Estimator
	Scorer

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique classes seen during fitting.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter
// modification. SetParams discards fitted state tied to the old parameters;
// callers refit afterwards.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	// Save saves the model to a file.
	Save(path string) error

	// Load loads the model from a file.
	Load(path string) error
}
