package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"time"

	"grain-classification/analyses"
	"grain-classification/db"
	"grain-classification/devices"
	"grain-classification/models"
	"grain-classification/spectral"
	"grain-classification/utils"

	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// newPollHandler serves the device heartbeat loop: register the device,
// hand back a pending command if one is queued, otherwise a status no-op.
func newPollHandler(registry *devices.Registry) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var heartbeat models.Heartbeat
		if err := json.NewDecoder(r.Body).Decode(&heartbeat); err != nil {
			logger.ErrorContext(ctx, "failed to parse heartbeat", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "invalid heartbeat payload")
			return
		}
		if heartbeat.DeviceID == "" {
			heartbeat.DeviceID = "unknown"
		}

		command, ok := registry.Heartbeat(heartbeat.DeviceID, remoteIP(r), heartbeat.Status)
		if !ok {
			command = devices.Command{Name: "status", IssuedAt: time.Now()}
		} else {
			logger.InfoContext(ctx, "delivering command",
				slog.String("deviceID", heartbeat.DeviceID),
				slog.String("command", command.Name),
			)
		}
		writeJSON(w, http.StatusOK, command)
	}
}

// newResultHandler receives an 18-band spectrum from a device, runs the
// inference pipeline and returns the classification.
func newResultHandler(pipeline *spectral.Pipeline, history *analyses.History, broadcast func(*spectral.ClassificationResult)) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var report models.SpectrumReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			logger.ErrorContext(ctx, "failed to parse spectrum report", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusBadRequest, "invalid spectrum payload")
			return
		}

		raw, err := rawSpectrumFromReport(report.Spectrum)
		if err != nil {
			logger.ErrorContext(ctx, "rejected spectrum report",
				slog.String("deviceID", report.DeviceID),
				slog.Any("error", xerrors.New(err)),
			)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		started := time.Now()

		var result *spectral.ClassificationResult
		if ref, ok, refErr := referenceFromReport(report); refErr != nil {
			logger.ErrorContext(ctx, "rejected calibration override",
				slog.String("deviceID", report.DeviceID),
				slog.Any("error", xerrors.New(refErr)),
			)
			writeJSONError(w, http.StatusBadRequest, refErr.Error())
			return
		} else if ok {
			result, err = pipeline.AnalyzeWithReference(raw, ref)
		} else {
			result, err = pipeline.Analyze(raw)
		}
		if err != nil {
			logger.ErrorContext(ctx, "inference failed",
				slog.String("deviceID", report.DeviceID),
				slog.Any("error", xerrors.New(err)),
			)
			writeJSONError(w, http.StatusInternalServerError, "inference failed")
			return
		}
		result.DeviceID = report.DeviceID

		logger.InfoContext(ctx, "classification complete",
			slog.String("deviceID", report.DeviceID),
			slog.String("especie", string(result.Species)),
			slog.Float64("confianca", result.Confidence),
			slog.String("status", string(result.Status)),
			slog.Float64("latency_ms", time.Since(started).Seconds()*1000),
		)

		history.Add(result)
		if broadcast != nil {
			broadcast(result)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func rawSpectrumFromReport(values []float64) (spectral.RawSpectrum, error) {
	var raw spectral.RawSpectrum
	if len(values) != spectral.NumBands {
		return raw, fmt.Errorf("expected %d bands, received %d", spectral.NumBands, len(values))
	}
	copy(raw[:], values)
	return raw, nil
}

// referenceFromReport builds a calibration override when the device shipped
// its own dark/white capture. Partial pairs are rejected rather than mixed
// with the stored reference.
func referenceFromReport(report models.SpectrumReport) (*spectral.CalibrationReference, bool, error) {
	if len(report.Dark) == 0 && len(report.White) == 0 {
		return nil, false, nil
	}
	if len(report.Dark) != spectral.NumBands || len(report.White) != spectral.NumBands {
		return nil, false, fmt.Errorf("calibration override needs %d dark and %d white values",
			spectral.NumBands, spectral.NumBands)
	}
	var ref spectral.CalibrationReference
	copy(ref.Dark[:], report.Dark)
	copy(ref.White[:], report.White)
	return &ref, true, nil
}

// newAnalyzeCommandHandler queues an analyze command for a device; "auto"
// targets the most recently active one.
func newAnalyzeCommandHandler(registry *devices.Registry) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var request struct {
			DeviceID string `json:"device_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		deviceID := request.DeviceID
		if deviceID == "" || deviceID == "auto" {
			id, ok := registry.MostRecentActive()
			if !ok {
				writeJSONError(w, http.StatusNotFound, "no active device")
				return
			}
			deviceID = id
		}

		registry.QueueCommand(deviceID, "analyze")
		logger.InfoContext(ctx, "queued analyze command", slog.String("deviceID", deviceID))
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "command_queued",
			"device_id": deviceID,
		})
	}
}

func newDevicesHandler(registry *devices.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, registry.List())
	}
}

func newLastAnalysisHandler(history *analyses.History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		last := history.Last()
		if last == nil {
			writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, last)
	}
}

func newHistoryHandler(history *analyses.History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, history.All())
	}
}

func newExportHandler(history *analyses.History) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		filename := fmt.Sprintf("analise_graos_%s.csv", time.Now().Format("20060102_150405"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
		if err := history.WriteCSV(w); err != nil {
			logger.ErrorContext(context.Background(), "csv export failed", slog.Any("error", xerrors.New(err)))
		}
	}
}

func newStatusHandler(pipeline *spectral.Pipeline, registry *devices.Registry, store db.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		model := pipeline.Model()
		status := map[string]interface{}{
			"status":            "online",
			"modelo_carregado":  model != nil,
			"especies":          model.Species.Classes,
			"devices_connected": registry.ActiveCount(),
			"bandas_modelo":     spectral.NumReducedBands,
			"bandas_device":     spectral.NumBands,
			"indices_usados":    spectral.IndexNames(),
			"timestamp":         time.Now(),
		}
		if store != nil {
			if total, err := store.TotalAnalyses(); err == nil {
				status["total_analises"] = total
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func newConfigHandler(pipeline *spectral.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		model := pipeline.Model()
		_, pcaComponents := model.PCA.Dimensions()
		calibration := pipeline.Calibration()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"especies":           model.Species.Classes,
			"bandas_espectrais":  spectral.ReducedBandNames(),
			"indices_calculados": spectral.IndexNames(),
			"pca_componentes":    pcaComponents,
			"banda_removida":     "r485",
			"bandas_degeneradas": calibration.DegenerateBands(),
			"deteccao_anomalia": map[string]interface{}{
				"logica":           "pass-both + low-confidence alert (<60%)",
				"violacoes_mad":    2,
				"limiar_confianca": 60,
			},
		})
	}
}

// newReloadHandler rebuilds the calibration/model bundle from disk and swaps
// it in atomically, leaving in-flight inferences on the old snapshot.
func newReloadHandler(pipeline *spectral.Pipeline, calibrationPath, modelPath string) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		calibration, err := spectral.LoadCalibrationReference(calibrationPath)
		if err != nil {
			logger.ErrorContext(ctx, "calibration reload failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "calibration reload failed")
			return
		}
		model, err := spectral.LoadModelBundle(modelPath)
		if err != nil {
			logger.ErrorContext(ctx, "model reload failed", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "model reload failed")
			return
		}

		pipeline.Reload(calibration, model)
		logger.InfoContext(ctx, "reloaded calibration and model")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
