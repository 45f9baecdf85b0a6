package booking

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// PaymentStatus tracks how much of a booking has been paid or refunded.
type PaymentStatus string

const (
	PaymentUnpaid          PaymentStatus = "UNPAID"
	PaymentPartial         PaymentStatus = "PARTIAL"
	PaymentFullyPaid       PaymentStatus = "FULLY_PAID"
	PaymentPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
	PaymentFullyRefunded   PaymentStatus = "FULLY_REFUNDED"
)

var (
	// ErrInvalidStatusTransition is returned for a disallowed status change.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrInvalidPaymentTransition is returned for a disallowed payment status change.
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
)

// InvalidTransitionError names the rejected transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// CanTransitionTo reports whether s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range statusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target if the move from s is allowed.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, &InvalidTransitionError{From: s, To: target}
	}
	return target, nil
}

// ParseStatus converts a string to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", errors.Errorf("unknown booking status %q", v)
	}
	return s, nil
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:          {PaymentPartial, PaymentFullyPaid},
	PaymentPartial:         {PaymentPartial, PaymentFullyPaid, PaymentPartialRefunded, PaymentFullyRefunded},
	PaymentFullyPaid:       {PaymentPartialRefunded, PaymentFullyRefunded},
	PaymentPartialRefunded: {},
	PaymentFullyRefunded:   {},
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[p]
	return ok
}

// TransitionTo returns target if the move from p is allowed.
func (p PaymentStatus) TransitionTo(target PaymentStatus) (PaymentStatus, error) {
	for _, t := range paymentTransitions[p] {
		if t == target {
			return target, nil
		}
	}
	return p, errors.Wrapf(ErrInvalidPaymentTransition, "%s -> %s", p, target)
}

// ParsePaymentStatus converts a string to a PaymentStatus.
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	p := PaymentStatus(v)
	if !p.Valid() {
		return "", errors.Errorf("unknown payment status %q", v)
	}
	return p, nil
}
