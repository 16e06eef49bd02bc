package spectral

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ModelBundle is the complete trained inference artifact: the PCA basis, the
// species classifier and one anomaly model per species, exported from the
// training pipeline as a single JSON file. Loaded once at startup, validated
// for internal consistency and then shared read-only by every inference.
type ModelBundle struct {
	Bands   []string                  `json:"bands"`
	Indices []string                  `json:"indices"`
	PCA     PCAModel                  `json:"pca"`
	Species SpeciesModel              `json:"species"`
	Anomaly map[Species]*AnomalyModel `json:"anomaly"`
}

// LoadModelBundle reads and validates a trained bundle. Any structural
// inconsistency (dimension mismatches, labels outside the closed species
// set, a species without an anomaly model) fails the load; a process must
// never serve inferences from a partially valid artifact.
func LoadModelBundle(path string) (*ModelBundle, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load model bundle: %w", err)
	}
	var bundle ModelBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unable to parse model bundle: %w", err)
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Validate checks the bundle's internal consistency and precomputes the
// dense projection matrix.
func (b *ModelBundle) Validate() error {
	if err := b.PCA.finalize(); err != nil {
		return err
	}
	in, out := b.PCA.Dimensions()

	expected := NumReducedBands + NumIndices
	if in != expected {
		return fmt.Errorf("pca mean has %d values, feature vector carries %d: %w",
			in, expected, ErrDimensionMismatch)
	}
	if len(b.Bands) != 0 && len(b.Bands) != NumReducedBands {
		return fmt.Errorf("bundle names %d bands, reduced layout has %d", len(b.Bands), NumReducedBands)
	}

	if err := b.Species.validate(out); err != nil {
		return err
	}

	for _, class := range b.Species.Classes {
		anomaly, ok := b.Anomaly[class]
		if !ok || anomaly == nil {
			return fmt.Errorf("species %q has no anomaly model", class)
		}
		if err := anomaly.validate(class, out); err != nil {
			return err
		}
	}
	for species := range b.Anomaly {
		if !KnownSpecies[species] {
			return fmt.Errorf("anomaly model for %q: %w", species, ErrUnknownSpecies)
		}
	}
	return nil
}

// AnomalyFor returns the anomaly model for a species. Validation guarantees
// one exists for every trained class.
func (b *ModelBundle) AnomalyFor(species Species) (*AnomalyModel, error) {
	anomaly, ok := b.Anomaly[species]
	if !ok {
		return nil, fmt.Errorf("no anomaly model for %q: %w", species, ErrUnknownSpecies)
	}
	return anomaly, nil
}
