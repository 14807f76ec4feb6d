package model

// Kind identifies the family a persisted model belongs to. It replaces
// string inspection of concrete type names: estimators declare their kind
// through KindTagger, and consumers such as hyperparameter grid selection
// switch on the tag. An artifact reloaded from disk therefore resolves its
// kind at load time, not by matching class-name substrings.
type Kind int

const (
	// KindUnknown is the zero value; consumers must treat it as an error,
	// never fall through to some default model family.
	KindUnknown Kind = iota

	// KindLogisticRegression tags linear logistic-regression classifiers.
	KindLogisticRegression

	// KindRandomForest tags bagged tree-ensemble classifiers.
	KindRandomForest
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindLogisticRegression:
		return "logistic_regression"
	case KindRandomForest:
		return "random_forest"
	default:
		return "unknown"
	}
}

// KindTagger is implemented by estimators that declare their model family.
type KindTagger interface {
	// ModelKind returns the family tag of the estimator.
	ModelKind() Kind
}
