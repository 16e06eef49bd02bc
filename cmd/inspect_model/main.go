package main

import (
	"flag"
	"fmt"
	"log"

	"grain-classification/spectral"
)

// Prints a summary of a trained model bundle and runs the structural checks
// the server performs at startup.
func main() {
	modelPath := flag.String("model", "config/model.json", "path to the model bundle")
	calibrationPath := flag.String("calibration", "", "optional calibration reference to check")
	flag.Parse()

	bundle, err := spectral.LoadModelBundle(*modelPath)
	if err != nil {
		log.Fatalf("model bundle failed validation: %v", err)
	}

	in, out := bundle.PCA.Dimensions()
	fmt.Printf("Model bundle: %s\n", *modelPath)
	fmt.Printf("  feature dimensionality: %d (%d bands + %d indices)\n",
		in, spectral.NumReducedBands, spectral.NumIndices)
	fmt.Printf("  pca components:         %d\n", out)
	fmt.Printf("  species:                %v\n", bundle.Species.Classes)
	for _, species := range bundle.Species.Classes {
		anomaly := bundle.Anomaly[species]
		fmt.Printf("  %-14s %3d support vectors, gamma=%.4f rho=%.4f\n",
			species, len(anomaly.Boundary.SupportVectors), anomaly.Boundary.Gamma, anomaly.Boundary.Rho)
	}

	if *calibrationPath == "" {
		return
	}
	ref, err := spectral.LoadCalibrationReference(*calibrationPath)
	if err != nil {
		log.Fatalf("calibration reference failed to load: %v", err)
	}
	degenerate := ref.DegenerateBands()
	if len(degenerate) == 0 {
		fmt.Println("Calibration reference: all bands usable")
		return
	}
	fmt.Printf("Calibration reference: %d degenerate bands at positions %v\n", len(degenerate), degenerate)
	for _, idx := range degenerate {
		fmt.Printf("  band %dnm: dark=%.4f white=%.4f\n", spectral.Wavelengths[idx], ref.Dark[idx], ref.White[idx])
	}
}
