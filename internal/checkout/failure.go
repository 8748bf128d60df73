package checkout

import (
	"errors"
)

type FailureKind string

const (
	// FailureValidation is user-correctable input or cart state.
	FailureValidation FailureKind = "validation"
	// FailureConflict means a coupon limit was used up by someone else.
	FailureConflict FailureKind = "conflict"
	// FailureTransient covers timeouts and provider outages; the user may retry.
	FailureTransient FailureKind = "transient"
	// FailureFatal means money moved but no order exists.
	FailureFatal FailureKind = "fatal"
)

// Failure is stored on the session and returned as the operation's error.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	ErrCannotCancel       = errors.New("cannot cancel while the order is being submitted")
	ErrStaleSession       = errors.New("checkout session was modified concurrently")
)

const (
	msgCartEmpty           = "Your cart is empty"
	msgMultipleRestaurants = "Your cart contains items from more than one restaurant. Please order from one restaurant at a time."
	msgRestaurantClosed    = "This restaurant is currently closed."
	msgRestaurantMissing   = "This restaurant is no longer available."
	msgCouponUnavailable   = "We couldn't check that coupon right now. You can continue without it or try again."
	msgCouponConflict      = "Coupon no longer valid"
	msgSubmitRetry         = "We couldn't place your order. Please try again."
	msgPaymentUnavailable  = "Payment is temporarily unavailable. Please try again."
	msgPaymentIncomplete   = "Your payment has not been completed."
	msgCartChanged         = "Your cart has changed. Please review it and try again."
	msgTryAgain            = "Something went wrong. Please try again."
	msgCardUnavailable     = "Card payments are not available right now. Please pay with cash."
)

func validation(msg string) *Failure {
	return &Failure{Kind: FailureValidation, Message: msg}
}

func transient(msg string) *Failure {
	return &Failure{Kind: FailureTransient, Message: msg, Retryable: true}
}
