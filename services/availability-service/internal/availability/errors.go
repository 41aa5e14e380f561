package availability

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so the transport layer can map them.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindConfigurationNotFound
	KindStorageUnavailable
	KindAmbiguousLocalTime
	KindInvalidConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConfigurationNotFound:
		return "not_found"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindAmbiguousLocalTime:
		return "ambiguous_local_time"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("configuration not found")
	ErrStorage      = errors.New("storage unavailable")
	ErrAmbiguous    = errors.New("ambiguous local time")
	ErrBadConfig    = errors.New("invalid configuration")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on the kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrNotFound:
		return e.Kind == KindConfigurationNotFound
	case ErrStorage:
		return e.Kind == KindStorageUnavailable
	case ErrAmbiguous:
		return e.Kind == KindAmbiguousLocalTime
	case ErrBadConfig:
		return e.Kind == KindInvalidConfiguration
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func invalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func notFound(op string, err error) error {
	return &Error{Kind: KindConfigurationNotFound, Op: op, Err: err}
}

func storageFailure(op string, err error) error {
	return &Error{Kind: KindStorageUnavailable, Op: op, Err: err}
}

func badConfig(op string, err error) error {
	return &Error{Kind: KindInvalidConfiguration, Op: op, Err: err}
}
