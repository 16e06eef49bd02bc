package models

import (
	"encoding/json"
	"time"
)

// SpectrumReport is the payload the acquisition device posts after a capture
// cycle: 18 raw intensities in fixed band order, optionally accompanied by
// the dark/white reference pair measured during the device's own calibration
// routine. When the references are omitted the server falls back to its
// persisted calibration file.
type SpectrumReport struct {
	DeviceID string    `json:"device_id"`
	Status   string    `json:"status,omitempty"`
	Spectrum []float64 `json:"spectrum"`
	Dark     []float64 `json:"dark,omitempty"`
	White    []float64 `json:"white,omitempty"`
}

// Heartbeat is the payload of the device poll loop.
type Heartbeat struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// Analysis is a stored classification record. The full result is kept as
// raw JSON so the history endpoint can replay exactly what was served.
type Analysis struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	DeviceID   string          `json:"device_id,omitempty"`
	Species    string          `json:"especie"`
	Confidence float64         `json:"confianca"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result"`
}
