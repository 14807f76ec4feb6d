package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// TfidfTransformer rescales a count matrix to TF-IDF, compatible with
// scikit-learn's TfidfTransformer (smooth idf, l2 row normalization).
type TfidfTransformer struct {
	State *model.StateManager // Public for gob encoding

	// Idf holds the per-term inverse document frequency learned during Fit.
	Idf []float64

	// NFeatures is the number of terms seen during Fit.
	NFeatures int

	// SmoothIdf adds one to document frequencies, as if an extra document
	// contained every term once (default: true).
	SmoothIdf bool

	// Norm enables l2 normalization of each output row (default: true).
	Norm bool
}

// NewTfidfTransformer creates a TfidfTransformer with default settings.
func NewTfidfTransformer() *TfidfTransformer {
	return &TfidfTransformer{
		State:     model.NewStateManager(),
		SmoothIdf: true,
		Norm:      true,
	}
}

// Fit learns the idf vector from a count matrix, discarding any previous fit.
func (t *TfidfTransformer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("TfidfTransformer.Fit", "empty data", errors.ErrEmptyData)
	}

	t.State.Reset()
	t.NFeatures = c
	t.Idf = make([]float64, c)

	for j := 0; j < c; j++ {
		df := 0
		for i := 0; i < r; i++ {
			if X.At(i, j) > 0 {
				df++
			}
		}
		if t.SmoothIdf {
			t.Idf[j] = math.Log(float64(1+r)/float64(1+df)) + 1
		} else {
			if df == 0 {
				df = 1
			}
			t.Idf[j] = math.Log(float64(r)/float64(df)) + 1
		}
	}

	t.State.SetDimensions(c, r)
	t.State.SetFitted()
	return nil
}

// Transform rescales a count matrix by the fitted idf weights and, when Norm
// is set, l2-normalizes each row.
func (t *TfidfTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !t.State.IsFitted() {
		return nil, errors.NewNotFittedError("TfidfTransformer", "Transform")
	}

	r, c := X.Dims()
	if c != t.NFeatures {
		return nil, errors.NewDimensionError("TfidfTransformer.Transform", t.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		norm := 0.0
		for j := 0; j < c; j++ {
			w := X.At(i, j) * t.Idf[j]
			result.Set(i, j, w)
			norm += w * w
		}
		if t.Norm && norm > 0 {
			norm = math.Sqrt(norm)
			for j := 0; j < c; j++ {
				result.Set(i, j, result.At(i, j)/norm)
			}
		}
	}
	return result, nil
}

// FitTransform fits on X and returns the transformed X.
func (t *TfidfTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// GetParams returns the transformer's parameters.
func (t *TfidfTransformer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"smooth_idf": t.SmoothIdf,
		"norm":       t.Norm,
	}
}

// TfidfVectorizer maps raw documents straight to TF-IDF features. It is
// itself a composition of sub-steps, a CountVectorizer feeding a
// TfidfTransformer, persisted and reloaded as one artifact.
type TfidfVectorizer struct {
	State *model.StateManager // Public for gob encoding

	Count *CountVectorizer
	Tfidf *TfidfTransformer
}

// NewTfidfVectorizer creates a TfidfVectorizer with default sub-steps.
func NewTfidfVectorizer() *TfidfVectorizer {
	return &TfidfVectorizer{
		State: model.NewStateManager(),
		Count: NewCountVectorizer(),
		Tfidf: NewTfidfTransformer(),
	}
}

// FitStrings learns the vocabulary and idf weights from docs.
func (v *TfidfVectorizer) FitStrings(docs []string) error {
	v.State.Reset()

	counts, err := v.Count.FitTransformStrings(docs)
	if err != nil {
		return err
	}
	if err := v.Tfidf.Fit(counts); err != nil {
		return err
	}

	nFeatures, _ := v.Count.State.GetDimensions()
	v.State.SetDimensions(nFeatures, len(docs))
	v.State.SetFitted()
	return nil
}

// TransformStrings maps docs to a TF-IDF feature matrix.
func (v *TfidfVectorizer) TransformStrings(docs []string) (mat.Matrix, error) {
	if !v.State.IsFitted() {
		return nil, errors.NewNotFittedError("TfidfVectorizer", "TransformStrings")
	}

	counts, err := v.Count.TransformStrings(docs)
	if err != nil {
		return nil, err
	}
	return v.Tfidf.Transform(counts)
}

// FitTransformStrings fits on docs and returns the TF-IDF matrix.
func (v *TfidfVectorizer) FitTransformStrings(docs []string) (mat.Matrix, error) {
	if err := v.FitStrings(docs); err != nil {
		return nil, err
	}
	return v.TransformStrings(docs)
}

// GetParams returns the parameters of both sub-steps, qualified by sub-step
// name the way pipeline parameters are.
func (v *TfidfVectorizer) GetParams() map[string]interface{} {
	params := make(map[string]interface{})
	for k, val := range v.Count.GetParams() {
		params["count__"+k] = val
	}
	for k, val := range v.Tfidf.GetParams() {
		params["tfidf__"+k] = val
	}
	return params
}
