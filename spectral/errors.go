package spectral

import "errors"

// Fatal configuration errors. Each aborts the current inference only; the
// shared model and calibration state are never touched by a failed call.
var (
	// ErrDimensionMismatch reports a feature vector whose length does not
	// match the loaded model. It is never silently truncated or padded.
	ErrDimensionMismatch = errors.New("feature dimension does not match model")

	// ErrUnknownSpecies reports a label outside the closed species set,
	// which means the model artifact and the pipeline are out of sync.
	ErrUnknownSpecies = errors.New("species label outside the trained set")
)
