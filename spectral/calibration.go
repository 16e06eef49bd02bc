package spectral

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CalibrationReference carries per-band black-level and full-illumination
// reference values captured against a dark cap and a white standard. It is
// loaded once at startup and shared read-only across all inferences; a
// recalibration builds a fresh reference and swaps it in whole.
type CalibrationReference struct {
	Dark  [NumBands]float64 `json:"dark"`
	White [NumBands]float64 `json:"white"`
}

// LoadCalibrationReference reads a dark/white reference pair from a JSON
// file persisted by the calibration routine.
func LoadCalibrationReference(path string) (*CalibrationReference, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load calibration reference: %w", err)
	}
	var ref CalibrationReference
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("unable to parse calibration reference: %w", err)
	}
	return &ref, nil
}

// DegenerateBands returns the positions where white <= dark. Those bands
// cannot be normalized and always calibrate to zero reflectance.
func (r *CalibrationReference) DegenerateBands() []int {
	var degenerate []int
	for i := range r.Dark {
		if r.White[i]-r.Dark[i] <= 0 {
			degenerate = append(degenerate, i)
		}
	}
	return degenerate
}

// Calibrate converts raw intensities into reflectance in [0,1] against the
// dark/white references. A band whose dynamic range collapsed (white <= dark)
// yields 0 rather than an error; the sensor occasionally reports such bands
// under poor illumination and a degraded measurement is still usable.
func Calibrate(raw RawSpectrum, dark, white [NumBands]float64) ReflectanceSpectrum {
	var out ReflectanceSpectrum
	for i := 0; i < NumBands; i++ {
		denom := white[i] - dark[i]
		if denom <= 0 {
			continue
		}
		value := (raw[i] - dark[i]) / denom
		if value < 0 {
			value = 0
		} else if value > 1 {
			value = 1
		}
		out[i] = value
	}
	return out
}

// Calibrate applies the stored reference to a raw spectrum.
func (r *CalibrationReference) Calibrate(raw RawSpectrum) ReflectanceSpectrum {
	return Calibrate(raw, r.Dark, r.White)
}
