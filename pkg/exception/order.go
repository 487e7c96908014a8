package exception

import "errors"

var (
	ErrOrderInvalidForm       = errors.New("order: invalid form")
	ErrOrderNotPreviewed      = errors.New("order: confirm without a successful preview")
	ErrOrderAlreadyConfirming = errors.New("order: confirmation already in flight")
	ErrOrderStaleField        = errors.New("order: safety-relevant field is stale or missing")
	ErrOrderPositionLimit     = errors.New("order: position limit exceeded")
	ErrOrderNotionalLimit     = errors.New("order: notional limit exceeded")
	ErrOrderExposureLimit     = errors.New("order: total exposure limit exceeded")
	ErrOrderBuyingPower       = errors.New("order: insufficient buying power")
	ErrOrderUnusablePrice     = errors.New("order: no usable price for validation")
	ErrOrderSubmitFailed      = errors.New("order: submission call failed")
)
