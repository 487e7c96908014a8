package errors

import (
	"errors"
)

var (
	_ error = (*wrappedError)(nil)
)

// Kind classifies an error for propagation policy.
type Kind uint8

const (
	// KindUnknown means the error carries no classification.
	KindUnknown Kind = iota
	// KindTransientIO covers network and timeout failures; retryable.
	KindTransientIO
	// KindValidation covers staleness, limit and payload failures; not retried.
	KindValidation
	// KindSafetyBlocked covers kill-switch / circuit-breaker blocks.
	KindSafetyBlocked
	// KindInvariant covers caller bugs; fail fast, not recoverable.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindValidation:
		return "validation_failure"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindInvariant:
		return "programming_invariant"
	default:
		return "unknown"
	}
}

func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func Wrap(err error, text string) error {
	return WrapKind(err, text, KindUnknown)
}

// Transient wraps err as a retryable I/O failure.
func Transient(err error, text string) error {
	return WrapKind(err, text, KindTransientIO)
}

// Validation wraps err as a user-facing validation failure.
func Validation(err error, text string) error {
	return WrapKind(err, text, KindValidation)
}

// Blocked wraps err as a safety block.
func Blocked(err error, text string) error {
	return WrapKind(err, text, KindSafetyBlocked)
}

// Invariant wraps err as a programming invariant violation.
func Invariant(err error, text string) error {
	return WrapKind(err, text, KindInvariant)
}

// WrapKind wraps err with a message and classification. An empty message
// still attaches the kind.
func WrapKind(err error, text string, kind Kind) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 && kind == KindUnknown {
		return err
	}

	return &wrappedError{
		err:  err,
		msg:  text,
		kind: kind,
	}
}

// KindOf walks the error chain and returns the outermost classification.
func KindOf(err error) Kind {
	for err != nil {
		if w, ok := err.(*wrappedError); ok {
			if w.kind != KindUnknown {
				return w.kind
			}
			err = w.err
			continue
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

type wrappedError struct {
	err  error
	msg  string
	kind Kind
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}
	if len(err.msg) == 0 {
		return err.err.Error()
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}
