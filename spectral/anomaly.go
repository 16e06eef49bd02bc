package spectral

import (
	"fmt"
	"math"
)

// Hybrid anomaly detection: a per-species One-Class SVM boundary test plus a
// per-species MAD (median absolute deviation) outlier rule over the same
// PCA-space vector. The combination is conservative: a sample must pass BOTH
// tests to be reported NORMAL, and a low classifier confidence forces
// ANOMALY regardless, since mixed or contaminated samples tend to land
// between species clusters with diluted probabilities.

// AnomalyStatus is the final verdict of the hybrid detector.
type AnomalyStatus string

const (
	StatusNormal  AnomalyStatus = "NORMAL"
	StatusAnomaly AnomalyStatus = "ANOMALY"
)

const (
	// madConsistency rescales the MAD to a standard-deviation-equivalent
	// under normality.
	madConsistency = 1.4826

	// madZThreshold is the robust z-score above which a single dimension
	// counts as a violation.
	madZThreshold = 3.0

	// madMinViolations is how many dimensions must violate before the MAD
	// test as a whole fails.
	madMinViolations = 2

	// lowConfidenceCutoff forces ANOMALY below this confidence percent.
	lowConfidenceCutoff = 60.0
)

// OneClassModel is the trained species-specific boundary: an RBF-kernel
// One-Class SVM reduced to its support vectors, dual coefficients, kernel
// width and offset.
type OneClassModel struct {
	SupportVectors [][]float64 `json:"support_vectors"`
	Coefficients   []float64   `json:"coefficients"`
	Gamma          float64     `json:"gamma"`
	Rho            float64     `json:"rho"`
}

// Score evaluates the decision function Σ αᵢ·exp(-γ‖x-svᵢ‖²) - ρ. A
// non-negative score means the sample lies inside the learned boundary.
func (m *OneClassModel) Score(x []float64) (float64, error) {
	var sum float64
	for i, sv := range m.SupportVectors {
		if len(sv) != len(x) {
			return 0, fmt.Errorf("one-class score: got %d-dim vector, support vector has %d: %w",
				len(x), len(sv), ErrDimensionMismatch)
		}
		var dist2 float64
		for j := range sv {
			d := x[j] - sv[j]
			dist2 += d * d
		}
		sum += m.Coefficients[i] * math.Exp(-m.Gamma*dist2)
	}
	return sum - m.Rho, nil
}

// MADStats carries the per-dimension median and MAD learned for one species.
type MADStats struct {
	Medians []float64 `json:"medians"`
	Scales  []float64 `json:"mads"`
}

// ViolationCount returns how many dimensions of x sit beyond the robust
// z-score threshold |x - median| / (1.4826 * MAD) > 3. A collapsed scale
// (MAD = 0) counts any departure from the median as a violation. Increasing
// the deviation in any one dimension can only keep or grow the count, which
// keeps the detector monotonic in MAD distance.
func (s *MADStats) ViolationCount(x []float64) (int, error) {
	if len(x) != len(s.Medians) || len(s.Medians) != len(s.Scales) {
		return 0, fmt.Errorf("mad test: got %d-dim vector, stats have %d medians and %d scales: %w",
			len(x), len(s.Medians), len(s.Scales), ErrDimensionMismatch)
	}
	violations := 0
	for i := range x {
		deviation := math.Abs(x[i] - s.Medians[i])
		scale := madConsistency * s.Scales[i]
		if scale <= 0 {
			if deviation > 0 {
				violations++
			}
			continue
		}
		if deviation/scale > madZThreshold {
			violations++
		}
	}
	return violations, nil
}

// AnomalyModel bundles both tests for one species.
type AnomalyModel struct {
	Boundary OneClassModel `json:"boundary"`
	MAD      MADStats      `json:"mad"`
}

func (m *AnomalyModel) validate(species Species, dims int) error {
	if len(m.Boundary.SupportVectors) == 0 {
		return fmt.Errorf("species %q has no one-class support vectors", species)
	}
	if len(m.Boundary.Coefficients) != len(m.Boundary.SupportVectors) {
		return fmt.Errorf("species %q: %d coefficients for %d support vectors",
			species, len(m.Boundary.Coefficients), len(m.Boundary.SupportVectors))
	}
	for i, sv := range m.Boundary.SupportVectors {
		if len(sv) != dims {
			return fmt.Errorf("species %q support vector %d has %d values, pca emits %d: %w",
				species, i, len(sv), dims, ErrDimensionMismatch)
		}
	}
	if len(m.MAD.Medians) != dims || len(m.MAD.Scales) != dims {
		return fmt.Errorf("species %q mad stats have %d/%d values, pca emits %d: %w",
			species, len(m.MAD.Medians), len(m.MAD.Scales), dims, ErrDimensionMismatch)
	}
	return nil
}

// AnomalyDetails exposes the individual test outcomes alongside the final
// status, with the field names the dashboard renders.
type AnomalyDetails struct {
	SVMScore      float64 `json:"svm_score"`
	SVMFlagged    bool    `json:"svm_detectou"`
	MADViolations int     `json:"mad_violacoes"`
	MADFlagged    bool    `json:"mad_detectou"`
	LowConfidence bool    `json:"confianca_baixa"`
	Policy        string  `json:"logica_usada"`
}

// anomalyPolicy is the documented combination rule.
const anomalyPolicy = "pass-both + low-confidence alert (<60%)"

// Detect runs both tests against the PCA-space vector and combines them
// conservatively: NORMAL only when the boundary test and the MAD test both
// pass and the classifier confidence is at least 60%.
func (m *AnomalyModel) Detect(pcaVector []float64, confidence float64) (AnomalyDetails, AnomalyStatus, error) {
	score, err := m.Boundary.Score(pcaVector)
	if err != nil {
		return AnomalyDetails{}, "", err
	}
	violations, err := m.MAD.ViolationCount(pcaVector)
	if err != nil {
		return AnomalyDetails{}, "", err
	}

	details := AnomalyDetails{
		SVMScore:      round4(score),
		SVMFlagged:    score < 0,
		MADViolations: violations,
		MADFlagged:    violations >= madMinViolations,
		LowConfidence: confidence < lowConfidenceCutoff,
		Policy:        anomalyPolicy,
	}

	status := StatusNormal
	if details.SVMFlagged || details.MADFlagged || details.LowConfidence {
		status = StatusAnomaly
	}
	return details, status, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
