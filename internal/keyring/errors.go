package keyring

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a backend wraps exactly one of these,
// so callers can test with errors.Is.
var (
	// ErrStoreOpen is returned when the named store cannot be opened.
	ErrStoreOpen = errors.New("store cannot be opened")

	// ErrItemNotFound is returned by get and delete for a missing item.
	ErrItemNotFound = errors.New("item not found")

	// ErrNative covers every other failure reported by the native layer.
	ErrNative = errors.New("native store failure")

	// ErrSearchList is returned when a store file operation and the search
	// list update disagree, leaving a partially applied state.
	ErrSearchList = errors.New("search list update failed")

	// ErrUnsupported is returned for operations a backend does not offer.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInvalidInput is returned before any native call for malformed
	// arguments such as an empty service.
	ErrInvalidInput = errors.New("invalid input")
)

// Op names the logical operation an error occurred in.
type Op string

const (
	OpGet           Op = "get"
	OpSet           Op = "set"
	OpDelete        Op = "delete"
	OpList          Op = "list"
	OpCreate        Op = "create"
	OpDeleteKeyring Op = "delete_keyring"
	OpListKeyrings  Op = "list_keyrings"
)

const unknownError = "unknown error"

// Error is the normalized failure report shared by all backends.
type Error struct {
	Backend string
	Op      Op
	Kind    error
	Message string
	// Status is the native status code, or 0 when there is none.
	Status int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error in '%s': %s", e.Backend, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(backend string, op Op, kind error, message string) *Error {
	if message == "" {
		message = unknownError
	}
	return &Error{Backend: backend, Op: op, Kind: kind, Message: message}
}

// OpOf returns the operation recorded in err, if err is a normalized error.
func OpOf(err error) (Op, bool) {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Op, true
	}
	return "", false
}

func checkService(backend string, op Op, service string) error {
	if service == "" {
		return newError(backend, op, ErrInvalidInput, "service must not be empty")
	}
	return nil
}
