package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grain-classification/analyses"
	"grain-classification/devices"
	"grain-classification/models"
	"grain-classification/spectral"
)

// handlerFixtureBundle mirrors the hand-crafted inference setup used by the
// core package tests: the PCA basis picks out the first six reduced bands and
// the soja class peaks at all-ones reflectance, so posting the white
// reference as a spectrum yields a confident soja/NORMAL result.
func handlerFixtureBundle(t *testing.T) *spectral.ModelBundle {
	t.Helper()

	featureDims := spectral.NumReducedBands + spectral.NumIndices
	mean := make([]float64, featureDims)
	components := make([][]float64, 6)
	for i := range components {
		row := make([]float64, featureDims)
		row[i] = 1
		components[i] = row
	}

	anomalyAt := func(center []float64) *spectral.AnomalyModel {
		return &spectral.AnomalyModel{
			Boundary: spectral.OneClassModel{
				SupportVectors: [][]float64{center},
				Coefficients:   []float64{1},
				Gamma:          0.5,
				Rho:            0.01,
			},
			MAD: spectral.MADStats{
				Medians: center,
				Scales:  []float64{1, 1, 1, 1, 1, 1},
			},
		}
	}

	bundle := &spectral.ModelBundle{
		PCA: spectral.PCAModel{Mean: mean, Components: components},
		Species: spectral.SpeciesModel{
			Classes: []spectral.Species{
				spectral.SpeciesSoja, spectral.SpeciesSorgo,
				spectral.SpeciesMilheto, spectral.SpeciesChickpea,
			},
			Weights: [][]float64{
				{4, 4, 4, 4, 4, 4},
				{-4, -4, -4, -4, -4, -4},
				{4, -4, 4, -4, 0, 0},
				{-4, 4, -4, 4, 0, 0},
			},
			Bias:   []float64{-12, 0, -10, -10},
			PlattA: []float64{-1, -1, -1, -1},
			PlattB: []float64{0, 0, 0, 0},
		},
		Anomaly: map[spectral.Species]*spectral.AnomalyModel{
			spectral.SpeciesSoja:     anomalyAt([]float64{1, 1, 1, 1, 1, 1}),
			spectral.SpeciesSorgo:    anomalyAt([]float64{0, 0, 0, 0, 0, 0}),
			spectral.SpeciesMilheto:  anomalyAt([]float64{1, 0, 1, 0, 0.5, 0.5}),
			spectral.SpeciesChickpea: anomalyAt([]float64{0, 1, 0, 1, 0.5, 0.5}),
		},
	}
	if err := bundle.Validate(); err != nil {
		t.Fatalf("fixture bundle invalid: %v", err)
	}
	return bundle
}

func handlerFixturePipeline(t *testing.T) *spectral.Pipeline {
	t.Helper()
	ref := &spectral.CalibrationReference{}
	for i := 0; i < spectral.NumBands; i++ {
		ref.Dark[i] = 100
		ref.White[i] = 1100
	}
	return spectral.NewPipeline(ref, handlerFixtureBundle(t))
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.RemoteAddr = "10.0.0.5:41234"
	recorder := httptest.NewRecorder()
	handler(recorder, request)
	return recorder
}

func TestPollHandlerDeliversCommand(t *testing.T) {
	registry := devices.NewRegistry()
	handler := newPollHandler(registry)

	recorder := postJSON(t, handler, "/esp32/poll", models.Heartbeat{DeviceID: "esp32-01", Status: "idle"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("poll returned %d", recorder.Code)
	}
	var command devices.Command
	if err := json.Unmarshal(recorder.Body.Bytes(), &command); err != nil {
		t.Fatal(err)
	}
	if command.Name != "status" {
		t.Errorf("idle poll should return a status no-op, got %q", command.Name)
	}

	registry.QueueCommand("esp32-01", "analyze")
	recorder = postJSON(t, handler, "/esp32/poll", models.Heartbeat{DeviceID: "esp32-01", Status: "idle"})
	if err := json.Unmarshal(recorder.Body.Bytes(), &command); err != nil {
		t.Fatal(err)
	}
	if command.Name != "analyze" {
		t.Errorf("queued command not delivered, got %q", command.Name)
	}
}

func TestPollHandlerRejectsGarbage(t *testing.T) {
	handler := newPollHandler(devices.NewRegistry())

	request := httptest.NewRequest(http.MethodPost, "/esp32/poll", strings.NewReader("not json"))
	recorder := httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("malformed heartbeat returned %d", recorder.Code)
	}

	request = httptest.NewRequest(http.MethodGet, "/esp32/poll", nil)
	recorder = httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET poll returned %d", recorder.Code)
	}
}

func TestResultHandlerClassifiesSpectrum(t *testing.T) {
	pipeline := handlerFixturePipeline(t)
	history := analyses.NewHistory(nil)

	var broadcasted *spectral.ClassificationResult
	handler := newResultHandler(pipeline, history, func(r *spectral.ClassificationResult) {
		broadcasted = r
	})

	spectrum := make([]float64, spectral.NumBands)
	for i := range spectrum {
		spectrum[i] = 1100 // the white reference
	}
	recorder := postJSON(t, handler, "/esp32/result", models.SpectrumReport{
		DeviceID: "esp32-01",
		Spectrum: spectrum,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("result returned %d: %s", recorder.Code, recorder.Body.String())
	}

	var result spectral.ClassificationResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Species != spectral.SpeciesSoja {
		t.Errorf("expected soja, got %s", result.Species)
	}
	if result.DeviceID != "esp32-01" {
		t.Errorf("device id not attached: %q", result.DeviceID)
	}
	if history.Len() != 1 {
		t.Errorf("result not recorded in history, len=%d", history.Len())
	}
	if broadcasted == nil || broadcasted.Species != result.Species {
		t.Error("result not handed to the broadcast hook")
	}
}

func TestResultHandlerRejectsWrongBandCount(t *testing.T) {
	pipeline := handlerFixturePipeline(t)
	handler := newResultHandler(pipeline, analyses.NewHistory(nil), nil)

	recorder := postJSON(t, handler, "/esp32/result", models.SpectrumReport{
		DeviceID: "esp32-01",
		Spectrum: []float64{1, 2, 3},
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("short spectrum returned %d", recorder.Code)
	}
}

func TestResultHandlerRejectsPartialCalibrationOverride(t *testing.T) {
	pipeline := handlerFixturePipeline(t)
	handler := newResultHandler(pipeline, analyses.NewHistory(nil), nil)

	spectrum := make([]float64, spectral.NumBands)
	dark := make([]float64, spectral.NumBands)
	recorder := postJSON(t, handler, "/esp32/result", models.SpectrumReport{
		DeviceID: "esp32-01",
		Spectrum: spectrum,
		Dark:     dark, // white missing
	})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("partial calibration override returned %d", recorder.Code)
	}
}

func TestResultHandlerAcceptsFullCalibrationOverride(t *testing.T) {
	pipeline := handlerFixturePipeline(t)
	handler := newResultHandler(pipeline, analyses.NewHistory(nil), nil)

	spectrum := make([]float64, spectral.NumBands)
	dark := make([]float64, spectral.NumBands)
	white := make([]float64, spectral.NumBands)
	for i := range spectrum {
		spectrum[i] = 4095
		white[i] = 4095
	}
	recorder := postJSON(t, handler, "/esp32/result", models.SpectrumReport{
		DeviceID: "esp32-01",
		Spectrum: spectrum,
		Dark:     dark,
		White:    white,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("override analysis returned %d: %s", recorder.Code, recorder.Body.String())
	}
	var result spectral.ClassificationResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Species != spectral.SpeciesSoja {
		t.Errorf("saturated spectrum against override white should land on soja, got %s", result.Species)
	}
}

func TestAnalyzeCommandHandlerAutoTargeting(t *testing.T) {
	registry := devices.NewRegistry()
	handler := newAnalyzeCommandHandler(registry)

	recorder := postJSON(t, handler, "/command/analyze", map[string]string{"device_id": "auto"})
	if recorder.Code != http.StatusNotFound {
		t.Errorf("auto with no active device returned %d", recorder.Code)
	}

	registry.Heartbeat("esp32-02", "10.0.0.6", "idle")
	recorder = postJSON(t, handler, "/command/analyze", map[string]string{"device_id": "auto"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("auto targeting returned %d", recorder.Code)
	}
	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response["device_id"] != "esp32-02" {
		t.Errorf("command targeted %q", response["device_id"])
	}

	// The queued command reaches the device on its next poll.
	command, ok := registry.Heartbeat("esp32-02", "10.0.0.6", "idle")
	if !ok || command.Name != "analyze" {
		t.Errorf("queued command missing: ok=%v name=%q", ok, command.Name)
	}
}

func TestLastAnalysisHandlerEmpty(t *testing.T) {
	handler := newLastAnalysisHandler(analyses.NewHistory(nil))

	request := httptest.NewRequest(http.MethodGet, "/last_analysis", nil)
	recorder := httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("empty last_analysis returned %d", recorder.Code)
	}
	if body := strings.TrimSpace(recorder.Body.String()); body != "{}" {
		t.Errorf("empty history should serve {}, got %s", body)
	}
}

func TestStatusHandlerReportsModel(t *testing.T) {
	pipeline := handlerFixturePipeline(t)
	registry := devices.NewRegistry()
	registry.Heartbeat("esp32-01", "10.0.0.5", "idle")
	handler := newStatusHandler(pipeline, registry, nil)

	request := httptest.NewRequest(http.MethodGet, "/status", nil)
	recorder := httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status returned %d", recorder.Code)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["modelo_carregado"] != true {
		t.Error("status should report a loaded model")
	}
	if status["devices_connected"].(float64) != 1 {
		t.Errorf("expected 1 connected device, got %v", status["devices_connected"])
	}
	if status["bandas_device"].(float64) != spectral.NumBands {
		t.Errorf("device band count wrong: %v", status["bandas_device"])
	}
}

func TestExportHandlerServesCSV(t *testing.T) {
	history := analyses.NewHistory(nil)
	handler := newExportHandler(history)

	request := httptest.NewRequest(http.MethodGet, "/export", nil)
	recorder := httptest.NewRecorder()
	handler(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("export returned %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("export content type %q", ct)
	}
	if cd := recorder.Header().Get("Content-Disposition"); !strings.Contains(cd, "analise_graos_") {
		t.Errorf("export filename missing: %q", cd)
	}
	if !strings.Contains(recorder.Body.String(), "Especie") {
		t.Error("csv header missing from export")
	}
}
