package models

import (
	"errors"
	"fmt"
)

// Error kinds of a folder run. Only ErrAuth, ErrProvisioning and ErrWrite
// abort a run; the others are absorbed where they originate.
var (
	// ErrAuth is returned when the credential is missing, invalid or expired.
	ErrAuth = errors.New("unauthorized")

	// ErrDiscovery marks a folder or image listing failure.
	ErrDiscovery = errors.New("discovery failed")

	// ErrExtraction marks an OCR failure for a single image.
	ErrExtraction = errors.New("text extraction failed")

	// ErrProvisioning is returned when the destination spreadsheet could not
	// be found, created or linked to its folder.
	ErrProvisioning = errors.New("destination provisioning failed")

	// ErrWrite is returned when extracted values could not be written.
	ErrWrite = errors.New("destination write failed")
)

// PipelineError wraps a failure with the operation and kind it belongs to.
type PipelineError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Op is the operation that failed (e.g., "ListImages", "Resolve").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// DestinationID is set on write failures so a retry can target the same document.
	DestinationID string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the error kind as well as anything in the wrapped chain.
func (e *PipelineError) Is(target error) bool {
	return e.Kind == target
}

func newPipelineError(kind error, op string, err error, details string) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err, Details: details}
}

// NewAuthError creates an ErrAuth-kind error.
func NewAuthError(op string, err error, details string) *PipelineError {
	return newPipelineError(ErrAuth, op, err, details)
}

// NewDiscoveryError creates an ErrDiscovery-kind error.
func NewDiscoveryError(op string, err error, details string) *PipelineError {
	return newPipelineError(ErrDiscovery, op, err, details)
}

// NewExtractionError creates an ErrExtraction-kind error.
func NewExtractionError(op string, err error, details string) *PipelineError {
	return newPipelineError(ErrExtraction, op, err, details)
}

// NewProvisioningError creates an ErrProvisioning-kind error.
func NewProvisioningError(op string, err error, details string) *PipelineError {
	return newPipelineError(ErrProvisioning, op, err, details)
}

// NewWriteError creates an ErrWrite-kind error for the given destination.
func NewWriteError(op string, err error, destinationID string) *PipelineError {
	e := newPipelineError(ErrWrite, op, err, "")
	e.DestinationID = destinationID
	return e
}

// IsFatal reports whether err aborts a folder run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrProvisioning) || errors.Is(err, ErrWrite)
}
