package domain

import "errors"

var (
	ErrMissingOrderID     = errors.New("missing order id")
	ErrMissingDriverID    = errors.New("missing driver id")
	ErrMissingRiderID     = errors.New("missing rider id")
	ErrMissingUserID      = errors.New("missing user id")
	ErrMissingEvent       = errors.New("missing event name")
	ErrOrderStatusUnknown = errors.New("order status unknown")
	ErrClientClosed       = errors.New("client closed")
)
