// Copyright (c) 2025 BVK Chaitanya

package exchange

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures so that retry decisions don't depend on
// the human-readable failure text.
type Kind int

const (
	// Permanent failures (bad credentials, invalid symbol, insufficient
	// funds, validation) must not be retried.
	Permanent Kind = iota

	// Transient failures (timeouts, rate limits, connectivity, exchange side
	// overload) can be retried after a backoff.
	Transient

	// WouldCross indicates that a passive order was rejected because it
	// would have executed immediately as a taker.
	WouldCross

	// NotFound indicates that the exchange has no record of the order.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Permanent:
		return "PERMANENT"
	case Transient:
		return "TRANSIENT"
	case WouldCross:
		return "WOULD_CROSS"
	case NotFound:
		return "NOT_FOUND"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrTransient         = errors.New("transient gateway failure")
	ErrPermanent         = errors.New("permanent gateway failure")
	ErrWouldCrossAsTaker = errors.New("order would immediately match as taker")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNoFund            = errors.New("insufficient balance")
)

// Error is the error type returned by gateway implementations.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Err  error
}

// NewError returns a gateway error of the given kind.
func NewError(kind Kind, op string, code int, err error) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match the sentinel error of the error kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == Transient
	case ErrPermanent:
		return e.Kind == Permanent
	case ErrWouldCrossAsTaker:
		return e.Kind == WouldCross
	case ErrOrderNotFound:
		return e.Kind == NotFound
	}
	return false
}

// KindOf returns the kind of a gateway error. Errors that were not produced
// by a gateway are treated as permanent.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return Permanent
}

// IsTransient returns true if the operation can be retried.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == Transient
}
