// Package preprocessing provides feature extraction and scaling transformers
// with a scikit-learn compatible Fit/Transform contract.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/core/model"
	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// StandardScaler standardizes features to zero mean and unit variance,
// compatible with scikit-learn's StandardScaler.
type StandardScaler struct {
	State *model.StateManager // Public for gob encoding

	// Mean holds the per-feature mean computed during Fit.
	Mean []float64

	// Scale holds the per-feature standard deviation computed during Fit.
	Scale []float64

	// NFeatures is the number of features seen during Fit.
	NFeatures int

	// WithMean controls whether the mean is subtracted (default: true).
	WithMean bool

	// WithStd controls whether features are divided by the standard
	// deviation (default: true).
	WithStd bool
}

// NewStandardScaler creates a new StandardScaler.
//
// Example:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		State:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault creates a StandardScaler with default settings.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit computes the per-feature mean and standard deviation from X, replacing
// any statistics learned by a previous Fit.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.State.Reset()
	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	if s.WithMean {
		for j := 0; j < c; j++ {
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			s.Mean[j] = sum / float64(r)
		}
	}

	if s.WithStd {
		for j := 0; j < c; j++ {
			sumSquares := 0.0
			for i := 0; i < r; i++ {
				diff := X.At(i, j) - s.Mean[j]
				sumSquares += diff * diff
			}
			s.Scale[j] = math.Sqrt(sumSquares / float64(r))

			// A near-zero deviation would divide by zero.
			if math.Abs(s.Scale[j]) < 1e-8 {
				s.Scale[j] = 1.0
			}
		}
	} else {
		for j := 0; j < c; j++ {
			s.Scale[j] = 1.0
		}
	}

	s.State.SetDimensions(c, r)
	s.State.SetFitted()
	return nil
}

// Transform standardizes X using the statistics learned by Fit.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.State.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// FitTransform fits on X and returns the transformed X.
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardized data back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.State.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return result, nil
}

// GetParams returns the scaler's parameters.
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String returns a readable representation of the scaler.
func (s *StandardScaler) String() string {
	if !s.State.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
