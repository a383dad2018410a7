// Package apperr defines the error taxonomy shared by the order, token,
// voucher and revenue packages and its mapping onto transport status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidInput
	KindBusinessRule
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindBusinessRule:
		return "business_rule_violation"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error is a classified, comparable error. Two *Error values match under
// errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrOrderNotFound       = New(KindNotFound, "order_not_found", "order not found")
	ErrProductNotFound     = New(KindNotFound, "product_not_found", "product not found")
	ErrVoucherNotFound     = New(KindNotFound, "voucher_not_found", "voucher not found")
	ErrInvalidToken        = New(KindNotFound, "invalid_token", "invalid access token")
	ErrInvalidInput        = New(KindInvalidInput, "invalid_input", "invalid input")
	ErrInvalidPricingInput = New(KindInvalidInput, "invalid_pricing_input", "invalid pricing input")
	ErrInvalidCart         = New(KindInvalidInput, "invalid_cart", "invalid cart")
	ErrInvalidStatus       = New(KindInvalidInput, "invalid_status", "invalid order status")
	ErrIllegalCancellation = New(KindBusinessRule, "illegal_cancellation", "order can no longer be cancelled")
	ErrIllegalTransition   = New(KindBusinessRule, "illegal_transition", "illegal order status transition")
	ErrVoucherExpired      = New(KindBusinessRule, "voucher_expired", "voucher has expired")
	ErrVoucherNotYetActive = New(KindBusinessRule, "voucher_not_yet_active", "voucher is not active yet")
	ErrVoucherNotOwned     = New(KindBusinessRule, "voucher_not_owned", "voucher belongs to another customer")
	ErrMinimumOrderNotMet  = New(KindBusinessRule, "minimum_order_not_met", "order subtotal below voucher minimum")
	ErrTokenExpired        = New(KindBusinessRule, "token_expired", "access token has expired")
	ErrTokenAlreadyIssued  = New(KindBusinessRule, "token_already_issued", "access token already issued for order")
	ErrIdempotencyConflict = New(KindBusinessRule, "idempotency_conflict", "idempotency key already used for a different order")
	ErrUpstreamFailure     = New(KindUpstream, "upstream_failure", "upstream dependency failed")
)

// KindOf reports the kind of the first *Error found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

func HTTPStatus(err error) int {
	if errors.Is(err, ErrTokenExpired) {
		return http.StatusGone
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindBusinessRule:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
