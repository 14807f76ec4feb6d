package preprocessing

import (
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// CountVectorizer converts a collection of raw text documents into a matrix
// of token counts, compatible with scikit-learn's CountVectorizer. Tokens are
// lowercased words of at least two characters; the vocabulary is learned
// during fit and frozen afterwards.
type CountVectorizer struct {
	State *model.StateManager // Public for gob encoding

	// Vocabulary maps a term to its column index. Indices follow the
	// lexicographic order of the terms so repeated fits on the same corpus
	// produce identical layouts.
	Vocabulary map[string]int

	// MaxFeatures caps the vocabulary to the most frequent terms when
	// positive (ties broken lexicographically). Zero means no cap.
	MaxFeatures int

	// Lowercase controls case folding before tokenization (default: true).
	Lowercase bool
}

// NewCountVectorizer creates a CountVectorizer with default settings.
func NewCountVectorizer() *CountVectorizer {
	return &CountVectorizer{
		State:     model.NewStateManager(),
		Lowercase: true,
	}
}

// tokenize splits a document into word tokens of length >= 2, mirroring the
// default scikit-learn token pattern.
func (v *CountVectorizer) tokenize(doc string) []string {
	if v.Lowercase {
		doc = strings.ToLower(doc)
	}
	fields := strings.FieldsFunc(doc, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// FitStrings learns the vocabulary from docs, discarding any vocabulary from
// a previous fit.
func (v *CountVectorizer) FitStrings(docs []string) error {
	if len(docs) == 0 {
		return errors.NewModelError("CountVectorizer.FitStrings", "empty corpus", errors.ErrEmptyData)
	}

	v.State.Reset()

	counts := make(map[string]int)
	for _, doc := range docs {
		for _, tok := range v.tokenize(doc) {
			counts[tok]++
		}
	}
	if len(counts) == 0 {
		return errors.NewModelError("CountVectorizer.FitStrings", "no terms extracted", errors.ErrEmptyVocabulary)
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		// Keep the most frequent terms; lexicographic order breaks ties so
		// the selection is deterministic.
		sort.SliceStable(terms, func(i, j int) bool {
			if counts[terms[i]] != counts[terms[j]] {
				return counts[terms[i]] > counts[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.MaxFeatures]
		sort.Strings(terms)
	}

	v.Vocabulary = make(map[string]int, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
	}

	v.State.SetDimensions(len(terms), len(docs))
	v.State.SetFitted()
	return nil
}

// TransformStrings maps docs to a (len(docs) × vocabulary size) count matrix.
// Terms outside the fitted vocabulary are ignored.
func (v *CountVectorizer) TransformStrings(docs []string) (mat.Matrix, error) {
	if !v.State.IsFitted() {
		return nil, errors.NewNotFittedError("CountVectorizer", "TransformStrings")
	}
	if len(docs) == 0 {
		return nil, errors.ErrEmptyData
	}

	result := mat.NewDense(len(docs), len(v.Vocabulary), nil)
	for i, doc := range docs {
		for _, tok := range v.tokenize(doc) {
			if j, ok := v.Vocabulary[tok]; ok {
				result.Set(i, j, result.At(i, j)+1)
			}
		}
	}
	return result, nil
}

// FitTransformStrings fits the vocabulary and returns the count matrix.
func (v *CountVectorizer) FitTransformStrings(docs []string) (mat.Matrix, error) {
	if err := v.FitStrings(docs); err != nil {
		return nil, err
	}
	return v.TransformStrings(docs)
}

// FeatureNames returns the vocabulary terms in column order.
func (v *CountVectorizer) FeatureNames() []string {
	names := make([]string, len(v.Vocabulary))
	for term, idx := range v.Vocabulary {
		names[idx] = term
	}
	return names
}

// GetParams returns the vectorizer's parameters.
func (v *CountVectorizer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_features": v.MaxFeatures,
		"lowercase":    v.Lowercase,
	}
}

// SetParams sets the vectorizer's parameters and discards the fitted
// vocabulary.
func (v *CountVectorizer) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "max_features":
			n, ok := value.(int)
			if !ok {
				return errors.NewValidationError("max_features", "must be an int", value)
			}
			v.MaxFeatures = n
		case "lowercase":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError("lowercase", "must be a bool", value)
			}
			v.Lowercase = b
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	v.Vocabulary = nil
	v.State.Reset()
	return nil
}
