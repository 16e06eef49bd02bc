package spectral

// Derived spectral indices computed from the reduced 17-band layout. The
// band positions are fixed by the training corpus; the epsilon guard in the
// variable denominators matches the trained model's preprocessing, so the
// indices are always finite (no NaN is ever produced or propagated).

// indexEpsilon keeps near-zero denominators from blowing up an index.
const indexEpsilon = 1e-10

// slopeBaseline is the nanometer distance between the 645 and 535 channels.
const slopeBaseline = 110.0

// Indices holds the four derived indices, serialized with the column names
// the trained model and the dashboard expect.
type Indices struct {
	NDVI     float64 `json:"I1_NDVI"`
	Water    float64 `json:"I2_Water"`
	Lipid    float64 `json:"I3_Lipid"`
	SlopeAlt float64 `json:"I4_Slope_Alt"`
}

// ComputeIndices derives the four indices from a reduced spectrum.
func ComputeIndices(reduced ReducedSpectrum) Indices {
	r535 := reduced[reducedR535]
	r645 := reduced[reducedR645]
	r680 := reduced[reducedR680]
	r760 := reduced[reducedR760]
	r810 := reduced[reducedR810]
	r860 := reduced[reducedR860]
	r940 := reduced[reducedR940]

	return Indices{
		NDVI:     (r810 - r680) / (r810 + r680 + indexEpsilon),
		Water:    r940 / (r760 + indexEpsilon),
		Lipid:    r860 / (r680 + indexEpsilon),
		SlopeAlt: (r645 - r535) / slopeBaseline,
	}
}

// Values returns the indices in their fixed feature order.
func (ix Indices) Values() [NumIndices]float64 {
	return [NumIndices]float64{ix.NDVI, ix.Water, ix.Lipid, ix.SlopeAlt}
}

// NumIndices is the count of derived indices appended to the feature vector.
const NumIndices = 4

// IndexNames lists the index columns in feature order.
func IndexNames() []string {
	return []string{"I1_NDVI", "I2_Water", "I3_Lipid", "I4_Slope_Alt"}
}

// BuildFeatureVector concatenates the reduced bands and the derived indices
// in the order the trained artifacts expect: 17 bands then 4 indices.
func BuildFeatureVector(reduced ReducedSpectrum, indices Indices) []float64 {
	features := make([]float64, 0, NumReducedBands+NumIndices)
	features = append(features, reduced[:]...)
	values := indices.Values()
	features = append(features, values[:]...)
	return features
}
