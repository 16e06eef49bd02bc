package spectral

import (
	"fmt"
	"math"
)

// Species is one of the four grain species the model was trained on.
type Species string

const (
	SpeciesSoja      Species = "soja"
	SpeciesSorgo     Species = "sorgo"
	SpeciesMilheto   Species = "milheto"
	SpeciesChickpea  Species = "grão-de-bico"
	speciesClassSize         = 4
)

// KnownSpecies is the closed label set. A model artifact carrying any other
// label is rejected at load time.
var KnownSpecies = map[Species]bool{
	SpeciesSoja:     true,
	SpeciesSorgo:    true,
	SpeciesMilheto:  true,
	SpeciesChickpea: true,
}

// SpeciesModel is the linear one-vs-rest SVM over the PCA-space vector,
// with per-class Platt coefficients mapping raw margins to probabilities.
type SpeciesModel struct {
	Classes []Species   `json:"classes"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
	PlattA  []float64   `json:"platt_a"`
	PlattB  []float64   `json:"platt_b"`
}

func (m *SpeciesModel) validate(pcaDims int) error {
	if len(m.Classes) != speciesClassSize {
		return fmt.Errorf("species model has %d classes, expected %d", len(m.Classes), speciesClassSize)
	}
	for _, class := range m.Classes {
		if !KnownSpecies[class] {
			return fmt.Errorf("class %q: %w", class, ErrUnknownSpecies)
		}
	}
	if len(m.Weights) != len(m.Classes) || len(m.Bias) != len(m.Classes) ||
		len(m.PlattA) != len(m.Classes) || len(m.PlattB) != len(m.Classes) {
		return fmt.Errorf("species model arrays disagree on class count")
	}
	for i, w := range m.Weights {
		if len(w) != pcaDims {
			return fmt.Errorf("class %q weights have %d values, pca emits %d: %w",
				m.Classes[i], len(w), pcaDims, ErrDimensionMismatch)
		}
	}
	return nil
}

// Prediction is the classifier output: the winning species with its
// calibrated confidence and the full probability distribution.
type Prediction struct {
	Species       Species
	Confidence    float64 // percent, 0-100
	Probabilities map[Species]float64
}

// Classify applies each class's linear decision function to the PCA vector,
// maps the margins through the Platt sigmoids, normalizes the resulting
// probabilities and returns the argmax. Raw margins are never reported as
// confidences. Deterministic for a fixed model and input.
func (m *SpeciesModel) Classify(pcaVector []float64) (Prediction, error) {
	probs := make([]float64, len(m.Classes))
	var total float64
	for i := range m.Classes {
		if len(m.Weights[i]) != len(pcaVector) {
			return Prediction{}, fmt.Errorf("classify: got %d-dim vector, class %q expects %d: %w",
				len(pcaVector), m.Classes[i], len(m.Weights[i]), ErrDimensionMismatch)
		}
		margin := m.Bias[i]
		for j, w := range m.Weights[i] {
			margin += w * pcaVector[j]
		}
		p := plattSigmoid(margin, m.PlattA[i], m.PlattB[i])
		probs[i] = p
		total += p
	}
	if total <= 0 {
		// All sigmoids underflowed; fall back to a uniform distribution so
		// a well-formed (if uninformative) prediction is still produced.
		for i := range probs {
			probs[i] = 1
		}
		total = float64(len(probs))
	}

	best := 0
	for i := range probs {
		probs[i] /= total
		if probs[i] > probs[best] {
			best = i
		}
	}

	species := m.Classes[best]
	if !KnownSpecies[species] {
		return Prediction{}, fmt.Errorf("class %q: %w", species, ErrUnknownSpecies)
	}

	distribution := make(map[Species]float64, len(m.Classes))
	for i, class := range m.Classes {
		distribution[class] = probs[i]
	}

	return Prediction{
		Species:       species,
		Confidence:    probs[best] * 100,
		Probabilities: distribution,
	}, nil
}

// plattSigmoid maps a decision margin to a probability via the calibrated
// sigmoid 1 / (1 + exp(a*margin + b)).
func plattSigmoid(margin, a, b float64) float64 {
	exponent := a*margin + b
	// Clamp to keep exp() finite for extreme margins.
	if exponent > 500 {
		return 0
	}
	if exponent < -500 {
		return 1
	}
	return 1 / (1 + math.Exp(exponent))
}
