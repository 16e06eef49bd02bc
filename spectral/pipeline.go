package spectral

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// ClassificationResult packages one finished inference. Field names follow
// the external contract the acquisition device and the dashboard already
// speak. Created fresh per call, never mutated afterwards.
type ClassificationResult struct {
	Species       Species             `json:"especie"`
	Confidence    float64             `json:"confianca"`
	Status        AnomalyStatus       `json:"status"`
	Probabilities map[Species]float64 `json:"probabilidades"`
	Indices       Indices             `json:"indices"`
	Anomaly       AnomalyDetails      `json:"detalhes_anomalia"`
	Timestamp     time.Time           `json:"timestamp"`
	DeviceID      string              `json:"device_id,omitempty"`
}

// stage names the steps of the inference state machine, in order. Every
// inference walks all of them sequentially; a fatal error short-circuits to
// the error exit with the failing stage recorded in the message.
type stage string

const (
	stageReceived       stage = "RECEIVED"
	stageCalibrated     stage = "CALIBRATED"
	stageReduced        stage = "REDUCED"
	stageIndexed        stage = "INDEXED"
	stageProjected      stage = "PROJECTED"
	stageClassified     stage = "CLASSIFIED"
	stageAnomalyChecked stage = "ANOMALY_CHECKED"
)

// pipelineState is the immutable bundle an inference snapshots at entry.
// Reloads build a new state and swap the pointer, so an in-flight call never
// observes a partially updated model.
type pipelineState struct {
	calibration *CalibrationReference
	model       *ModelBundle
}

// Pipeline is the inference orchestrator. Each Analyze call is stateless and
// independent; arbitrary concurrent calls are safe because the only shared
// data is the atomically swapped read-only state.
type Pipeline struct {
	state atomic.Pointer[pipelineState]
}

// NewPipeline builds an orchestrator around a loaded calibration reference
// and model bundle.
func NewPipeline(calibration *CalibrationReference, model *ModelBundle) *Pipeline {
	p := &Pipeline{}
	p.state.Store(&pipelineState{calibration: calibration, model: model})
	return p
}

// Reload swaps in a new calibration/model pair atomically.
func (p *Pipeline) Reload(calibration *CalibrationReference, model *ModelBundle) {
	p.state.Store(&pipelineState{calibration: calibration, model: model})
}

// Calibration returns the currently active reference.
func (p *Pipeline) Calibration() *CalibrationReference {
	return p.state.Load().calibration
}

// Model returns the currently active bundle.
func (p *Pipeline) Model() *ModelBundle {
	return p.state.Load().model
}

// Analyze runs one raw spectrum through the full pipeline using the stored
// calibration reference.
func (p *Pipeline) Analyze(raw RawSpectrum) (*ClassificationResult, error) {
	snapshot := p.state.Load()
	return run(raw, snapshot.calibration, snapshot.model)
}

// AnalyzeWithReference runs one raw spectrum using a caller-supplied
// dark/white pair, for devices that ship their own calibration capture with
// each acquisition. The model is still snapshotted from the pipeline.
func (p *Pipeline) AnalyzeWithReference(raw RawSpectrum, ref *CalibrationReference) (*ClassificationResult, error) {
	return run(raw, ref, p.state.Load().model)
}

// run walks the inference state machine. No stage is skipped or retried; a
// fatal condition aborts the call and no partial result is returned.
func run(raw RawSpectrum, ref *CalibrationReference, model *ModelBundle) (*ClassificationResult, error) {
	current := stageReceived
	fail := func(err error) (*ClassificationResult, error) {
		return nil, fmt.Errorf("inference aborted at %s: %w", current, err)
	}
	if model == nil {
		return fail(fmt.Errorf("no model loaded"))
	}
	if ref == nil {
		return fail(fmt.Errorf("no calibration reference loaded"))
	}

	reflectance := ref.Calibrate(raw)
	current = stageCalibrated

	reduced := RemoveUnstableBand(reflectance)
	current = stageReduced

	indices := ComputeIndices(reduced)
	current = stageIndexed

	features := BuildFeatureVector(reduced, indices)
	pcaVector, err := model.PCA.Project(features)
	if err != nil {
		return fail(err)
	}
	current = stageProjected

	prediction, err := model.Species.Classify(pcaVector)
	if err != nil {
		return fail(err)
	}
	current = stageClassified

	anomalyModel, err := model.AnomalyFor(prediction.Species)
	if err != nil {
		return fail(err)
	}
	details, status, err := anomalyModel.Detect(pcaVector, prediction.Confidence)
	if err != nil {
		return fail(err)
	}
	current = stageAnomalyChecked

	return &ClassificationResult{
		Species:       prediction.Species,
		Confidence:    round1(prediction.Confidence),
		Status:        status,
		Probabilities: roundDistribution(prediction.Probabilities),
		Indices: Indices{
			NDVI:     round4(indices.NDVI),
			Water:    round4(indices.Water),
			Lipid:    round4(indices.Lipid),
			SlopeAlt: round4(indices.SlopeAlt),
		},
		Anomaly:   details,
		Timestamp: time.Now(),
	}, nil
}

// AnalyzeSource reads one spectrum from an acquisition collaborator and
// classifies it.
func (p *Pipeline) AnalyzeSource(source SpectrumSource) (*ClassificationResult, error) {
	raw, err := source.Read()
	if err != nil {
		return nil, fmt.Errorf("spectrum acquisition failed: %w", err)
	}
	return p.Analyze(raw)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func roundDistribution(probs map[Species]float64) map[Species]float64 {
	rounded := make(map[Species]float64, len(probs))
	for species, p := range probs {
		rounded[species] = round1(p * 100)
	}
	return rounded
}
