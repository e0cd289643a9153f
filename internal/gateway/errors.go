package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"ocrgateway/pkg/models"
)

// Error classes. Every error returned by the gateway matches exactly one of
// them with errors.Is.
var (
	// ErrValidation is matched by *ValidationError: the request is malformed or
	// incomplete. Detected before any storage or engine call.
	ErrValidation = errors.New("invalid request")

	// ErrStorage is returned when no signed URL could be minted for the object.
	ErrStorage = errors.New("signed URL could not be issued")

	// ErrIO is returned when the uploaded content could not be read.
	ErrIO = errors.New("uploaded file could not be read")

	// ErrNetwork is returned when the call to the recognition engine did not complete.
	ErrNetwork = errors.New("recognition engine could not be reached")

	// ErrEngine is matched by *EngineError: the engine answered with a non-2xx status.
	ErrEngine = errors.New("recognition engine rejected the document")
)

// ValidationError names the offending field and the rule it violated.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (%s): %s", e.Field, e.Rule, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Error wraps a failure of one gateway step with its class.
type Error struct {
	// Op is the step that failed (e.g., "ResolveReference", "RecognizeFile").
	Op string

	// Kind is one of ErrStorage, ErrIO or ErrNetwork.
	Kind error

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway: %s failed: %v: %s: %v", e.Op, e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("gateway: %s failed: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error class as well as anything in the wrapped chain.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(op string, kind, err error, details string) *Error {
	return &Error{Op: op, Kind: kind, Err: err, Details: details}
}

// EngineError is the error form of a failed Result.
type EngineError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("recognition engine answered %d: %s", e.StatusCode, FailureMessage)
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// ResultError returns an *EngineError when r is a failure, nil otherwise.
func ResultError(r *models.Result) error {
	if r == nil || r.Failure == nil {
		return nil
	}
	return &EngineError{StatusCode: r.Failure.StatusCode, Body: r.Failure.Details}
}
