package resource

import (
	"errors"
	"fmt"
	"io/fs"
)

// ============================================================================
// Standard Resource Errors
// ============================================================================

// These sentinels classify every failure that crosses a backend boundary.
// Backends wrap native errors (storage engine, protocol library) into an
// *IOError carrying one of them, so callers only ever test with errors.Is:
//
//	data, err := r.ReadAll(ctx)
//	if errors.Is(err, resource.ErrNotFound) {
//	    ...
//	}
var (
	// ErrNotFound indicates the resource (or one of its parents) does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrPermission indicates the backend refused access.
	ErrPermission = errors.New("permission denied")

	// ErrBackend is the generic transport or storage failure.
	ErrBackend = errors.New("backend failure")

	// ErrNotSupported indicates the backend does not implement the
	// primitive for this resource or type. This is a permanent error.
	ErrNotSupported = errors.New("operation not supported")
)

// Reason is the sub-classification of an IOError.
type Reason int

const (
	ReasonFailure Reason = iota
	ReasonNotFound
	ReasonPermission
	ReasonUnsupported
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not found"
	case ReasonPermission:
		return "permission denied"
	case ReasonUnsupported:
		return "not supported"
	default:
		return "failure"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonNotFound:
		return ErrNotFound
	case ReasonPermission:
		return ErrPermission
	case ReasonUnsupported:
		return ErrNotSupported
	default:
		return ErrBackend
	}
}

// IOError is the single I/O error kind surfaced by resource operations.
type IOError struct {
	Op     string
	URI    string
	Reason Reason
	Err    error
}

func (e *IOError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.URI, e.Reason)
	if e.Err != nil && !errors.Is(e.Reason.sentinel(), e.Err) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the reason sentinel and the native cause.
func (e *IOError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason.sentinel()}
	}
	return []error{e.Reason.sentinel(), e.Err}
}

// NewIOError builds an IOError.
func NewIOError(op, uri string, reason Reason, err error) *IOError {
	return &IOError{Op: op, URI: uri, Reason: reason, Err: err}
}

// Unsupported reports that a primitive is missing for r.
func Unsupported(op string, r *Resource) error {
	return NewIOError(op, r.String(), ReasonUnsupported, nil)
}

// ReasonOf classifies err. Errors that are not resource errors are failures.
func ReasonOf(err error) Reason {
	var ioErr *IOError
	switch {
	case errors.As(err, &ioErr):
		return ioErr.Reason
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ReasonNotFound
	case errors.Is(err, ErrPermission), errors.Is(err, fs.ErrPermission):
		return ReasonPermission
	case errors.Is(err, ErrNotSupported), errors.Is(err, errors.ErrUnsupported):
		return ReasonUnsupported
	default:
		return ReasonFailure
	}
}

// Wrap converts an arbitrary error into an IOError for op on uri. IOErrors
// and ConfigErrors are returned unchanged; nil stays nil.
func Wrap(op, uri string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	return NewIOError(op, uri, ReasonOf(err), err)
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool {
	return err != nil && ReasonOf(err) == ReasonNotFound
}

// ConfigError is a contract violation: a missing configured root, an
// invalid URI, a primitive combination that can never work. It is kept
// apart from IOError because retrying or probing will not fix it.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return "configuration error: " + e.Msg + ": " + e.Err.Error()
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
