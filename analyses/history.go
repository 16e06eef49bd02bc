package analyses

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"grain-classification/db"
	"grain-classification/models"
	"grain-classification/spectral"
	"grain-classification/utils"
)

// historyLimit bounds the in-memory ring served to the dashboard. Older
// entries survive only in the persistent store.
const historyLimit = 100

// History keeps the recent classification results in memory for the
// dashboard's polling endpoints and mirrors every entry into the optional
// persistent store.
type History struct {
	mu      sync.RWMutex
	entries []*spectral.ClassificationResult
	store   db.Client
}

// NewHistory builds a history. store may be nil when persistence is
// disabled.
func NewHistory(store db.Client) *History {
	return &History{store: store}
}

// Add records a finished analysis. The in-memory ring is bounded; the
// persistent write is best-effort and never fails the serving path.
func (h *History) Add(result *spectral.ClassificationResult) {
	h.mu.Lock()
	h.entries = append(h.entries, result)
	if len(h.entries) > historyLimit {
		h.entries = h.entries[len(h.entries)-historyLimit:]
	}
	h.mu.Unlock()

	if h.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		utils.LogError(context.Background(), "failed to encode analysis for storage", err)
		return
	}
	record := &models.Analysis{
		Timestamp:  result.Timestamp,
		DeviceID:   result.DeviceID,
		Species:    string(result.Species),
		Confidence: result.Confidence,
		Status:     string(result.Status),
		Result:     payload,
	}
	if err := h.store.StoreAnalysis(record); err != nil {
		utils.LogError(context.Background(), "failed to persist analysis", err)
	} else {
		utils.GetLogger().Debug("persisted analysis",
			slog.String("id", record.ID),
			slog.String("especie", record.Species),
		)
	}
}

// Restore refills the ring from the persistent store so the dashboard keeps
// its history across a server restart. Records that no longer decode are
// skipped. A nil store is a no-op.
func (h *History) Restore() {
	if h.store == nil {
		return
	}
	records, err := h.store.RecentAnalyses(historyLimit)
	if err != nil {
		utils.LogError(context.Background(), "failed to restore analysis history", err)
		return
	}

	restored := make([]*spectral.ClassificationResult, 0, len(records))
	// RecentAnalyses is newest-first; the ring is kept oldest-first.
	for i := len(records) - 1; i >= 0; i-- {
		var result spectral.ClassificationResult
		if err := json.Unmarshal(records[i].Result, &result); err != nil {
			continue
		}
		restored = append(restored, &result)
	}

	h.mu.Lock()
	h.entries = restored
	h.mu.Unlock()
	utils.GetLogger().Info("restored analysis history", slog.Int("entries", len(restored)))
}

// Last returns the most recent result, or nil.
func (h *History) Last() *spectral.ClassificationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// All returns the ring newest-first.
func (h *History) All() []*spectral.ClassificationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*spectral.ClassificationResult, len(h.entries))
	for i, entry := range h.entries {
		out[len(h.entries)-1-i] = entry
	}
	return out
}

// Len returns the current ring size.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// csvHeader matches the dataset-export format the dashboard offers for
// download.
var csvHeader = []string{
	"Timestamp", "Device ID", "Especie", "Confianca %", "Status",
	"I1_NDVI", "I2_Water", "I3_Lipid", "I4_Slope_Alt",
	"SVM Score", "SVM Anomalia", "MAD Violacoes", "MAD Anomalia", "Confianca Baixa",
}

// WriteCSV streams the ring as CSV, oldest first.
func (h *History) WriteCSV(w io.Writer) error {
	h.mu.RLock()
	entries := make([]*spectral.ClassificationResult, len(h.entries))
	copy(entries, h.entries)
	h.mu.RUnlock()

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("error writing csv header: %w", err)
	}
	for _, entry := range entries {
		row := []string{
			entry.Timestamp.Format(time.RFC3339),
			entry.DeviceID,
			string(entry.Species),
			formatFloat(entry.Confidence),
			string(entry.Status),
			formatFloat(entry.Indices.NDVI),
			formatFloat(entry.Indices.Water),
			formatFloat(entry.Indices.Lipid),
			formatFloat(entry.Indices.SlopeAlt),
			formatFloat(entry.Anomaly.SVMScore),
			strconv.FormatBool(entry.Anomaly.SVMFlagged),
			strconv.Itoa(entry.Anomaly.MADViolations),
			strconv.FormatBool(entry.Anomaly.MADFlagged),
			strconv.FormatBool(entry.Anomaly.LowConfidence),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
