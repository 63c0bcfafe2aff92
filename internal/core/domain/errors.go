package domain

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a pipeline failure for retry classification and for
// operator-facing document status.
type ErrorKind string

const (
	ErrKindTransientIO     ErrorKind = "transient_io"
	ErrKindExternalService ErrorKind = "external_service"
	ErrKindValidation      ErrorKind = "validation"
	ErrKindLockContention  ErrorKind = "lock_contention"
	ErrKindTimeout         ErrorKind = "timeout"
	ErrKindCancelled       ErrorKind = "cancelled"
)

// PipelineError wraps a stage failure with its classification kind.
type PipelineError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewTransientError(stage Stage, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindTransientIO, Stage: stage, Err: err}
}

func NewExternalServiceError(stage Stage, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindExternalService, Stage: stage, Err: err}
}

func NewValidationError(stage Stage, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindValidation, Stage: stage, Err: err}
}

func NewTimeoutError(stage Stage, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindTimeout, Stage: stage, Err: err}
}

// ErrLockContention signals that another worker currently holds the document
// lock. It is a reschedule signal, not a failure.
var ErrLockContention = &PipelineError{Kind: ErrKindLockContention, Err: errors.New("document lock held elsewhere")}

// KindOf extracts the error kind, defaulting unclassified errors to
// transient IO so unknown blips get retried rather than escalated.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindTransientIO
}
