package models

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAmountMismatch         = errors.New("amount mismatch")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrInvalidArgument        = errors.New("invalid argument")
)
