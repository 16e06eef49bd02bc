package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"grain-classification/models"
	"grain-classification/spectral"
)

// Simulates the acquisition device: polls for commands and, when told to
// analyze, posts a synthetic 18-band spectrum. Useful for exercising the
// dashboard without hardware on the bench.

type mockSensor struct {
	rng *rand.Rand
}

// Read produces a plausible grain-like raw spectrum: mid-range counts with
// a gentle red-edge rise and per-band noise.
func (s *mockSensor) Read() (spectral.RawSpectrum, error) {
	var raw spectral.RawSpectrum
	for i := range raw {
		base := 800.0 + 40.0*float64(i)
		raw[i] = base + s.rng.Float64()*60.0
	}
	return raw, nil
}

func main() {
	serverURL := flag.String("server", "http://localhost:5000", "classification server base URL")
	deviceID := flag.String("device", "mock-device-01", "device identifier")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	sensor := &mockSensor{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	client := &http.Client{Timeout: 10 * time.Second}

	log.Printf("mock device %s polling %s every %s", *deviceID, *serverURL, *interval)

	for {
		command, err := poll(client, *serverURL, *deviceID)
		if err != nil {
			log.Printf("poll failed: %v", err)
			time.Sleep(*interval)
			continue
		}

		if command == "analyze" {
			log.Println("analyze command received, capturing spectrum")
			if err := sendSpectrum(client, *serverURL, *deviceID, sensor); err != nil {
				log.Printf("failed to send spectrum: %v", err)
			}
		}
		time.Sleep(*interval)
	}
}

func poll(client *http.Client, serverURL, deviceID string) (string, error) {
	payload, err := json.Marshal(models.Heartbeat{DeviceID: deviceID, Status: "idle"})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(serverURL+"/esp32/poll", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("poll returned %s", resp.Status)
	}

	var command struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&command); err != nil {
		return "", err
	}
	return command.Command, nil
}

func sendSpectrum(client *http.Client, serverURL, deviceID string, source spectral.SpectrumSource) error {
	raw, err := source.Read()
	if err != nil {
		return err
	}
	report := models.SpectrumReport{
		DeviceID: deviceID,
		Spectrum: raw[:],
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	resp, err := client.Post(serverURL+"/esp32/result", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("result returned %s", resp.Status)
	}

	var result spectral.ClassificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	log.Printf("classified as %s (%.1f%%) - %s", result.Species, result.Confidence, result.Status)
	return nil
}
