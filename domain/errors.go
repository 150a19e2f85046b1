package domain

import (
	"errors"
	"fmt"
)

// Import failure kinds. Every one of them is terminal for the current import.
var (
	ErrInvalidURL          = errors.New("InvalidUrl")
	ErrFetchFailed         = errors.New("FetchFailed")
	ErrDecodeFailed        = errors.New("DecodeFailed")
	ErrUploadFailed        = errors.New("UploadFailed")
	ErrShapeCreationFailed = errors.New("ShapeCreationFailed")

	// ErrIgnoredMessage is returned by the UI adapter for message types it does not handle.
	ErrIgnoredMessage = errors.New("ignored message")
)

// ImportError carries the failure kind, a human readable message and the underlying cause.
type ImportError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *ImportError) Error() string {
	return e.Message
}

func (e *ImportError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func NewImportError(kind error, cause error, format string, args ...any) *ImportError {
	return &ImportError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf returns the failure kind of err, or nil when err is not an import failure.
func KindOf(err error) error {
	var importErr *ImportError
	if errors.As(err, &importErr) {
		return importErr.Kind
	}
	return nil
}

// KindName is the label used for logs and metrics.
func KindName(err error) string {
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	if err == nil {
		return "none"
	}
	return "Unknown"
}
