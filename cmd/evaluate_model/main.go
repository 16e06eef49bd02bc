package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"grain-classification/spectral"
)

// Batch-evaluates a labeled spectra CSV against a trained bundle. Each row
// carries a species label followed by 18 raw band intensities; the file is
// expected to come from the dataset-export tooling.

// EvaluationConfig holds evaluation parameters
type EvaluationConfig struct {
	ModelPath       string
	CalibrationPath string
	DatasetPath     string
	Verbose         bool
}

// ClassMetrics tracks per-class performance
type ClassMetrics struct {
	ClassName     string
	TotalSamples  int
	CorrectCount  int
	Accuracy      float64
	AvgConfidence float64
	AnomalyCount  int
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation Pipeline ===")
	log.Printf("Model: %s\n", config.ModelPath)
	log.Printf("Dataset: %s\n", config.DatasetPath)
	log.Println()

	calibration, err := spectral.LoadCalibrationReference(config.CalibrationPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load calibration: %v", err)
	}
	model, err := spectral.LoadModelBundle(config.ModelPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}
	pipeline := spectral.NewPipeline(calibration, model)

	samples, err := loadDataset(config.DatasetPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load dataset: %v", err)
	}
	log.Printf("Loaded %d labeled spectra\n", len(samples))
	log.Println()

	started := time.Now()
	perClass := make(map[string]*ClassMetrics)
	confusion := make(map[string]map[string]int)
	total, correct := 0, 0

	for _, sample := range samples {
		result, err := pipeline.Analyze(sample.raw)
		if err != nil {
			log.Printf("WARNING: inference failed for %s sample: %v", sample.label, err)
			continue
		}

		metrics, ok := perClass[sample.label]
		if !ok {
			metrics = &ClassMetrics{ClassName: sample.label}
			perClass[sample.label] = metrics
		}
		metrics.TotalSamples++
		metrics.AvgConfidence += result.Confidence
		if result.Status == spectral.StatusAnomaly {
			metrics.AnomalyCount++
		}

		predicted := string(result.Species)
		if confusion[sample.label] == nil {
			confusion[sample.label] = make(map[string]int)
		}
		confusion[sample.label][predicted]++

		total++
		if predicted == sample.label {
			correct++
			metrics.CorrectCount++
		} else if config.Verbose {
			log.Printf("  MISS: true=%s predicted=%s confidence=%.1f%%",
				sample.label, predicted, result.Confidence)
		}
	}

	elapsed := time.Since(started)

	fmt.Println()
	fmt.Println("=== Results ===")
	if total > 0 {
		fmt.Printf("Overall accuracy: %d/%d (%.1f%%)\n", correct, total, 100*float64(correct)/float64(total))
	}
	fmt.Printf("Processing time: %s\n\n", elapsed)

	names := make([]string, 0, len(perClass))
	for name := range perClass {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-16s %8s %8s %10s %10s %9s\n", "Class", "Samples", "Correct", "Accuracy", "AvgConf", "Anomaly")
	for _, name := range names {
		m := perClass[name]
		if m.TotalSamples > 0 {
			m.Accuracy = 100 * float64(m.CorrectCount) / float64(m.TotalSamples)
			m.AvgConfidence /= float64(m.TotalSamples)
		}
		fmt.Printf("%-16s %8d %8d %9.1f%% %9.1f%% %9d\n",
			m.ClassName, m.TotalSamples, m.CorrectCount, m.Accuracy, m.AvgConfidence, m.AnomalyCount)
	}

	fmt.Println("\nConfusion matrix (rows = true label):")
	for _, trueName := range names {
		fmt.Printf("  %-16s", trueName)
		for _, predName := range names {
			fmt.Printf(" %5d", confusion[trueName][predName])
		}
		fmt.Println()
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}
	flag.StringVar(&config.ModelPath, "model", "config/model.json", "path to the model bundle")
	flag.StringVar(&config.CalibrationPath, "calibration", "config/calibration.json", "path to the calibration reference")
	flag.StringVar(&config.DatasetPath, "dataset", "", "labeled spectra CSV (label + 18 raw values per row)")
	flag.BoolVar(&config.Verbose, "verbose", false, "log every misclassification")
	flag.Parse()

	if config.DatasetPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	return config
}

type labeledSpectrum struct {
	label string
	raw   spectral.RawSpectrum
}

func loadDataset(path string) ([]labeledSpectrum, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var samples []labeledSpectrum
	for i, row := range rows {
		if i == 0 && row[0] == "label" {
			continue // header
		}
		if len(row) != 1+spectral.NumBands {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i+1, len(row), 1+spectral.NumBands)
		}
		sample := labeledSpectrum{label: row[0]}
		for j := 0; j < spectral.NumBands; j++ {
			value, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+2, err)
			}
			sample.raw[j] = value
		}
		samples = append(samples, sample)
	}
	return samples, nil
}
