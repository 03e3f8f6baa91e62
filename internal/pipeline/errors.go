package pipeline

import (
	"fmt"
)

// AdapterError wraps a failure of the source data adapter. It is fatal for
// the run and is not retried by the pipeline.
type AdapterError struct {
	Source string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// TransformationError reports a raw record whose structure cannot be mapped,
// such as a missing accounts collection or a duplicate account id.
type TransformationError struct {
	Path   string
	Reason string
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transform %s: %s", e.Path, e.Reason)
}

// ValidationError reports generated text that does not conform to the
// insight schema. It consumes a generation attempt.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Path, e.Reason)
}

// GenerationFailure is returned once every generation attempt has failed.
// LastRawText holds the last text returned by the model, if any.
type GenerationFailure struct {
	Attempts    int
	LastRawText string
	LastErr     error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("insight generation failed after %d attempt(s): %v", e.Attempts, e.LastErr)
}

func (e *GenerationFailure) Unwrap() error { return e.LastErr }

// RunError is the envelope returned by the driver when a stage fails.
// Diagnostics is set once the transform stage has completed.
type RunError struct {
	Stage       string
	RunKey      RunKey
	Diagnostics *Diagnostics
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: stage %s: %v", e.RunKey, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
