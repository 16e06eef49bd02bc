package spectral

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PCAModel is the persisted projection artifact: a mean vector and an
// orthonormal component matrix trained offline. It is immutable after load
// and shared read-only across concurrent inferences.
type PCAModel struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`

	components *mat.Dense
}

// Dimensions returns (input dimensionality, projected dimensionality).
func (m *PCAModel) Dimensions() (in, out int) {
	return len(m.Mean), len(m.Components)
}

// finalize validates the matrix shape and builds the dense form used by
// Project. Called once at bundle load.
func (m *PCAModel) finalize() error {
	in := len(m.Mean)
	out := len(m.Components)
	if in == 0 || out == 0 {
		return fmt.Errorf("pca model is empty")
	}
	flat := make([]float64, 0, out*in)
	for i, row := range m.Components {
		if len(row) != in {
			return fmt.Errorf("pca component %d has %d values, mean has %d: %w",
				i, len(row), in, ErrDimensionMismatch)
		}
		flat = append(flat, row...)
	}
	m.components = mat.NewDense(out, in, flat)
	return nil
}

// Project computes (features - mean) · componentsᵀ, yielding one value per
// principal component. Deterministic, no randomness. A length mismatch is a
// fatal configuration error.
func (m *PCAModel) Project(features []float64) ([]float64, error) {
	in, out := m.Dimensions()
	if len(features) != in {
		return nil, fmt.Errorf("pca projection: got %d features, model expects %d: %w",
			len(features), in, ErrDimensionMismatch)
	}
	if m.components == nil {
		if err := m.finalize(); err != nil {
			return nil, err
		}
	}

	centered := mat.NewVecDense(in, nil)
	for i, v := range features {
		centered.SetVec(i, v-m.Mean[i])
	}

	projected := mat.NewVecDense(out, nil)
	projected.MulVec(m.components, centered)
	return projected.RawVector().Data, nil
}
