package exception

import "errors"

var (
	ErrSubscribeCallbackMismatch = errors.New("subscription: callback mismatch for shared channel")
	ErrSubscribeCanceled         = errors.New("subscription: pending subscribe canceled")
	ErrSubscribeEmptyChannel     = errors.New("subscription: empty channel")
	ErrSubscribeEmptyOwner       = errors.New("subscription: empty owner id")
	ErrSubscribeNilCallback      = errors.New("subscription: nil callback")
	ErrSubscribeFailed           = errors.New("subscription: subscribe failed")
	ErrUnsubscribeUnknownOwner   = errors.New("subscription: owner does not hold channel")
)
