package spectral

import (
	"math"
	"testing"
)

func TestComputeIndicesKnownValues(t *testing.T) {
	t.Parallel()

	var reduced ReducedSpectrum
	reduced[reducedR535] = 0.20
	reduced[reducedR645] = 0.42
	reduced[reducedR680] = 0.30
	reduced[reducedR760] = 0.50
	reduced[reducedR810] = 0.60
	reduced[reducedR860] = 0.45
	reduced[reducedR940] = 0.40

	indices := ComputeIndices(reduced)

	const tolerance = 1e-9
	if math.Abs(indices.NDVI-(0.60-0.30)/(0.60+0.30+indexEpsilon)) > tolerance {
		t.Errorf("NDVI = %f", indices.NDVI)
	}
	if math.Abs(indices.Water-0.40/(0.50+indexEpsilon)) > tolerance {
		t.Errorf("Water = %f", indices.Water)
	}
	if math.Abs(indices.Lipid-0.45/(0.30+indexEpsilon)) > tolerance {
		t.Errorf("Lipid = %f", indices.Lipid)
	}
	if math.Abs(indices.SlopeAlt-(0.42-0.20)/slopeBaseline) > tolerance {
		t.Errorf("SlopeAlt = %f", indices.SlopeAlt)
	}
}

func TestComputeIndicesZeroDenominatorsStayFinite(t *testing.T) {
	t.Parallel()

	// An all-dark acquisition drives every variable denominator to zero.
	var reduced ReducedSpectrum
	indices := ComputeIndices(reduced)

	for name, value := range map[string]float64{
		"NDVI":     indices.NDVI,
		"Water":    indices.Water,
		"Lipid":    indices.Lipid,
		"SlopeAlt": indices.SlopeAlt,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			t.Errorf("%s is not finite: %f", name, value)
		}
	}
	if indices.NDVI != 0 || indices.Water != 0 || indices.Lipid != 0 || indices.SlopeAlt != 0 {
		t.Errorf("all-zero spectrum should yield zero indices, got %+v", indices)
	}
}

func TestBuildFeatureVectorLayout(t *testing.T) {
	t.Parallel()

	var reduced ReducedSpectrum
	for i := range reduced {
		reduced[i] = float64(i) * 0.05
	}
	indices := ComputeIndices(reduced)

	features := BuildFeatureVector(reduced, indices)
	if len(features) != NumReducedBands+NumIndices {
		t.Fatalf("feature vector has %d values", len(features))
	}
	for i := 0; i < NumReducedBands; i++ {
		if features[i] != reduced[i] {
			t.Errorf("feature %d should be band value %f, got %f", i, reduced[i], features[i])
		}
	}
	values := indices.Values()
	for i := 0; i < NumIndices; i++ {
		if features[NumReducedBands+i] != values[i] {
			t.Errorf("feature %d should be index value %f, got %f",
				NumReducedBands+i, values[i], features[NumReducedBands+i])
		}
	}
}

func TestIndexNamesMatchValuesOrder(t *testing.T) {
	t.Parallel()

	names := IndexNames()
	if len(names) != NumIndices {
		t.Fatalf("expected %d index names, got %d", NumIndices, len(names))
	}
	expected := []string{"I1_NDVI", "I2_Water", "I3_Lipid", "I4_Slope_Alt"}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("index name %d: expected %s, got %s", i, want, names[i])
		}
	}
}
