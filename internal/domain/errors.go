package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	ErrNotFound           = errors.New("not found")
)

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

func (e ValidationError) Unwrap() error { return e.Err }

// InvalidPhoneNumber is the validation error for a number outside the Kenyan mobile ranges.
func InvalidPhoneNumber(phone string) error {
	return ValidationError{Field: "phoneNumber", Msg: fmt.Sprintf("%q is not a Kenyan mobile number", phone), Err: ErrInvalidPhoneNumber}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

type ConflictError struct {
	Resource string
	Msg      string
}

func (e ConflictError) Error() string {
	if e.Resource == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
}

// SeatConflictError is returned when the store rejects a booking because the seat is taken.
type SeatConflictError struct {
	RouteFrom  string
	RouteTo    string
	Date       string
	SeatNumber int
	Err        error
}

func (e SeatConflictError) Error() string {
	return fmt.Sprintf("seat %d on %s-%s for %s is already booked", e.SeatNumber, e.RouteFrom, e.RouteTo, e.Date)
}

func (e SeatConflictError) Unwrap() error { return e.Err }

// AuthError means the gateway rejected our credentials or could not issue a token.
type AuthError struct {
	Err error
}

func (e AuthError) Error() string {
	return fmt.Sprintf("gateway authentication failed: %v", e.Err)
}

func (e AuthError) Unwrap() error { return e.Err }

// GatewayError is a non-success answer from the payment provider.
type GatewayError struct {
	Code    string
	Message string
}

func (e GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

type NetworkError struct {
	Op  string
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e NetworkError) Unwrap() error { return e.Err }

type TimeoutError struct {
	Op  string
	Err error
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out", e.Op)
}

func (e TimeoutError) Unwrap() error { return e.Err }

// OrphanedPushError means the push reached the payer's phone but the payment could not be
// recorded locally. It needs manual reconciliation.
type OrphanedPushError struct {
	PaymentID         string
	BookingID         string
	UserID            string
	PhoneNumber       string
	Amount            int64
	MerchantRequestID string
	CheckoutRequestID string
	Err               error
}

func (e OrphanedPushError) Error() string {
	return fmt.Sprintf("push %s sent for booking %s but payment %s was not recorded: %v",
		e.CheckoutRequestID, e.BookingID, e.PaymentID, e.Err)
}

func (e OrphanedPushError) Unwrap() error { return e.Err }

type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

// StoreError classifies a raw store failure: deadlines become TimeoutError, everything else
// StoreUnavailableError. Typed domain errors pass through untouched.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsSeatConflict(err) || IsNotFound(err) || IsConflict(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError{Op: op, Err: err}
	}
	return StoreUnavailableError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsSeatConflict(err error) bool {
	var target SeatConflictError
	return errors.As(err, &target)
}

func IsAuth(err error) bool {
	var target AuthError
	return errors.As(err, &target)
}

func IsGateway(err error) bool {
	var target GatewayError
	return errors.As(err, &target)
}

func IsTimeout(err error) bool {
	var target TimeoutError
	return errors.As(err, &target)
}

func IsNetwork(err error) bool {
	var target NetworkError
	return errors.As(err, &target)
}

func IsOrphanedPush(err error) bool {
	var target OrphanedPushError
	return errors.As(err, &target)
}

func IsStoreUnavailable(err error) bool {
	var target StoreUnavailableError
	return errors.As(err, &target)
}

// Retryable reports whether the caller may retry with backoff. A retry must start a new
// invocation so the gateway password is regenerated.
func Retryable(err error) bool {
	if IsOrphanedPush(err) || IsAuth(err) {
		return false
	}
	return IsGateway(err) || IsNetwork(err) || IsTimeout(err)
}
