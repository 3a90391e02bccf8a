package pipeline

import (
	"errors"
	"fmt"
)

// Stage names reported in StageError and logs.
const (
	StageLoadModel = "load_model"
	StageResolve   = "resolve"
	StageClean     = "clean"
	StageAggregate = "aggregate"
	StageTransform = "transform"
	StageCluster   = "cluster"
	StageLabel     = "label"
	StagePersist   = "persist"
)

// StageError identifies the stage a run failed in. It is always the
// outermost error returned by Pipeline.Run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ModelUnavailableError reports an inference run with no usable persisted
// model: an artifact is missing, or the stored pair was not written by the
// same fit.
type ModelUnavailableError struct {
	Model  string
	Key    string // first missing or mismatched artifact key
	Reason string // empty when the artifact is missing
}

func (e *ModelUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("model %q unavailable: %s; train the model again", e.Model, e.Reason)
	}
	return fmt.Sprintf("model %q unavailable: artifact %s not found; train the model first", e.Model, e.Key)
}

// ErrFitInProgress is returned by non-blocking fit runs while another fit
// holds the pipeline.
var ErrFitInProgress = errors.New("pipeline: a fit is already in progress")

// StageOf returns the failing stage of err, or "" if err did not come from
// a stage.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
