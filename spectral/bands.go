package spectral

import "strconv"

// Band layout of the AS7265x triad sensor used by the acquisition device.
//
// The device reports 18 channels in a fixed nanometer order. The 485 nm
// channel showed a coefficient of variation above 100% in the calibration
// corpus and is excluded from every trained artifact, so the reduced
// 17-band layout below is part of the model contract, not a runtime choice.

// NumBands is the channel count delivered by the acquisition device.
const NumBands = 18

// NumReducedBands is the channel count after dropping the unstable band.
const NumReducedBands = 17

// unstableBandIndex is the position of the 485 nm channel in the raw order.
const unstableBandIndex = 3

// Wavelengths lists the nanometer center of each raw channel, in wire order.
var Wavelengths = [NumBands]int{
	410, 435, 460, 485, 510, 535, 560, 585, 610,
	645, 680, 705, 730, 760, 810, 860, 900, 940,
}

// Positions of the bands the index engine reads, in the reduced 17-band
// ordering (485 nm already removed).
const (
	reducedR535 = 4
	reducedR645 = 8
	reducedR680 = 9
	reducedR760 = 12
	reducedR810 = 13
	reducedR860 = 14
	reducedR940 = 16
)

// RawSpectrum holds one acquisition cycle of per-band intensities.
type RawSpectrum [NumBands]float64

// ReflectanceSpectrum holds dark/white-normalized values, each in [0,1].
type ReflectanceSpectrum [NumBands]float64

// ReducedSpectrum is a ReflectanceSpectrum with the 485 nm band removed.
// Band identity is preserved by position.
type ReducedSpectrum [NumReducedBands]float64

// RemoveUnstableBand drops the 485 nm channel, keeping the remaining 17
// values in their original order.
func RemoveUnstableBand(spectrum ReflectanceSpectrum) ReducedSpectrum {
	var reduced ReducedSpectrum
	copy(reduced[:unstableBandIndex], spectrum[:unstableBandIndex])
	copy(reduced[unstableBandIndex:], spectrum[unstableBandIndex+1:])
	return reduced
}

// ReducedBandNames returns the column names of the reduced layout ("r410",
// "r435", ...) as used by model artifacts.
func ReducedBandNames() []string {
	names := make([]string, 0, NumReducedBands)
	for i, wl := range Wavelengths {
		if i == unstableBandIndex {
			continue
		}
		names = append(names, bandName(wl))
	}
	return names
}

func bandName(wavelength int) string {
	return "r" + strconv.Itoa(wavelength)
}

// SpectrumSource abstracts the acquisition collaborator that produces raw
// spectra. The pipeline never reads hardware directly; tests and the mock
// device supply fixed arrays through this interface.
type SpectrumSource interface {
	Read() (RawSpectrum, error)
}
