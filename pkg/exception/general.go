package exception

import "errors"

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDisposed        = errors.New("coordinator disposed")
	ErrInternal        = errors.New("internal error")
	ErrFillsDisabled   = errors.New("recent fills disabled by configuration")
)
