package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by storage when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoIdentity is returned before any I/O when no wallet identity is configured.
	ErrNoIdentity = errors.New("no identity configured")
	// ErrLimitExceeded is wrapped by LimitExceededError.
	ErrLimitExceeded = errors.New("spending limit exceeded")
	// ErrInvalidTransition is returned when a state change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRequestExpired is returned when acting on an expired payment request.
	ErrRequestExpired = errors.New("payment request expired")
	// ErrInvalidAmount is returned for zero amounts.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// LimitExceededError reports which budget a reservation would overrun.
type LimitExceededError struct {
	Scope     string
	Limit     uint64
	Spent     uint64
	Requested uint64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: spent %d + requested %d > limit %d", e.Scope, e.Spent, e.Requested, e.Limit)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}
