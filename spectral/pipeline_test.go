package spectral

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	bundle := buildTestBundle()
	if err := bundle.Validate(); err != nil {
		t.Fatalf("test bundle invalid: %v", err)
	}
	return NewPipeline(buildTestReference(), bundle)
}

func TestAnalyzeWhiteReference(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	ref := pipeline.Calibration()

	// Raw == white calibrates to all-ones reflectance, which the test bundle
	// projects onto the soja corner.
	result, err := pipeline.Analyze(RawSpectrum(ref.White))
	if err != nil {
		t.Fatal(err)
	}
	if result.Species != SpeciesSoja {
		t.Errorf("expected soja, got %s", result.Species)
	}
	if result.Status != StatusNormal {
		t.Errorf("expected NORMAL at the class centroid, got %s (details %+v)", result.Status, result.Anomaly)
	}
	if result.Confidence < 90 {
		t.Errorf("expected decisive confidence, got %.1f%%", result.Confidence)
	}
	// Flat all-ones reflectance: NDVI and slope vanish, the ratio indices
	// approach one.
	if result.Indices.NDVI != 0 || result.Indices.SlopeAlt != 0 {
		t.Errorf("flat spectrum should zero NDVI and slope: %+v", result.Indices)
	}
	if result.Indices.Water != 1 || result.Indices.Lipid != 1 {
		t.Errorf("flat spectrum ratios should round to 1: %+v", result.Indices)
	}
	if result.Timestamp.IsZero() {
		t.Error("result carries no timestamp")
	}
}

func TestAnalyzeDarkReferenceStillClassifies(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	ref := pipeline.Calibration()

	// An all-dark acquisition is degenerate input, not an error: every stage
	// stays finite and a valid label comes out.
	result, err := pipeline.Analyze(RawSpectrum(ref.Dark))
	if err != nil {
		t.Fatal(err)
	}
	if !KnownSpecies[result.Species] {
		t.Errorf("unknown species %q in result", result.Species)
	}
	if result.Species != SpeciesSorgo {
		t.Errorf("test bundle places the origin in sorgo, got %s", result.Species)
	}
	if result.Status != StatusNormal && result.Status != StatusAnomaly {
		t.Errorf("invalid status %q", result.Status)
	}
}

func TestAnalyzeWithReferenceOverride(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)

	override := &CalibrationReference{}
	for i := 0; i < NumBands; i++ {
		override.Dark[i] = 0
		override.White[i] = 4095
	}
	var raw RawSpectrum
	for i := range raw {
		raw[i] = 4095 // saturated against the override white
	}

	result, err := pipeline.AnalyzeWithReference(raw, override)
	if err != nil {
		t.Fatal(err)
	}
	if result.Species != SpeciesSoja {
		t.Errorf("override calibration should land on soja, got %s", result.Species)
	}

	_, err = pipeline.AnalyzeWithReference(raw, nil)
	if err == nil || !strings.Contains(err.Error(), "RECEIVED") {
		t.Errorf("nil reference should abort at RECEIVED, got %v", err)
	}
}

func TestAnalyzeWithoutModel(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(buildTestReference(), nil)
	_, err := pipeline.Analyze(RawSpectrum{})
	if err == nil || !strings.Contains(err.Error(), "no model loaded") {
		t.Fatalf("expected a missing-model error, got %v", err)
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	oldRef := pipeline.Calibration()
	oldModel := pipeline.Model()

	newRef := buildTestReference()
	newRef.White[0] = 2200
	newModel := buildTestBundle()
	if err := newModel.Validate(); err != nil {
		t.Fatal(err)
	}
	pipeline.Reload(newRef, newModel)

	if pipeline.Calibration() != newRef || pipeline.Model() != newModel {
		t.Error("reload did not swap the active state")
	}
	if pipeline.Calibration() == oldRef || pipeline.Model() == oldModel {
		t.Error("old state still active after reload")
	}
}

type sourceFunc func() (RawSpectrum, error)

func (f sourceFunc) Read() (RawSpectrum, error) { return f() }

func TestAnalyzeSource(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	white := pipeline.Calibration().White

	result, err := pipeline.AnalyzeSource(sourceFunc(func() (RawSpectrum, error) {
		return RawSpectrum(white), nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.Species != SpeciesSoja {
		t.Errorf("expected soja, got %s", result.Species)
	}

	readErr := errors.New("sensor offline")
	_, err = pipeline.AnalyzeSource(sourceFunc(func() (RawSpectrum, error) {
		return RawSpectrum{}, readErr
	}))
	if !errors.Is(err, readErr) {
		t.Errorf("acquisition failure not propagated: %v", err)
	}
}

func TestClassificationResultWireFormat(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	result, err := pipeline.Analyze(RawSpectrum(pipeline.Calibration().White))
	if err != nil {
		t.Fatal(err)
	}
	result.DeviceID = "bench-01"

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	payload := string(data)
	for _, field := range []string{
		`"especie"`, `"confianca"`, `"status"`, `"probabilidades"`,
		`"indices"`, `"detalhes_anomalia"`, `"timestamp"`, `"device_id"`,
		`"I1_NDVI"`, `"svm_score"`, `"mad_violacoes"`, `"confianca_baixa"`,
	} {
		if !strings.Contains(payload, field) {
			t.Errorf("wire payload missing field %s", field)
		}
	}

	var decoded ClassificationResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Species != result.Species || decoded.Confidence != result.Confidence ||
		decoded.Status != result.Status || decoded.DeviceID != result.DeviceID {
		t.Error("result did not survive the JSON round trip")
	}
	if !decoded.Timestamp.Truncate(time.Millisecond).Equal(result.Timestamp.Truncate(time.Millisecond)) {
		t.Error("timestamp drifted through serialization")
	}
}

func TestProbabilitiesReportedAsPercentages(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t)
	result, err := pipeline.Analyze(RawSpectrum(pipeline.Calibration().White))
	if err != nil {
		t.Fatal(err)
	}

	var total float64
	for species, p := range result.Probabilities {
		if p < 0 || p > 100 {
			t.Errorf("probability for %s outside percent range: %f", species, p)
		}
		total += p
	}
	// Percentages rounded to one decimal still need to sum close to 100.
	if total < 99 || total > 101 {
		t.Errorf("probabilities sum to %.2f%%", total)
	}
}
