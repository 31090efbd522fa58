package types

import "errors"

// Error is the typed error surfaced by every pipeline component. Code is one
// of the constants below; Data optionally carries structured context.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an *Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error codes. Authorization and validation failures are deterministic and
// must not be retried with the same input; INSUFFICIENT_BALANCE is transient;
// EXPIRED requires a fresh authorization.
const (
	ErrForbidden               = "FORBIDDEN"
	ErrInvalidSignature        = "INVALID_SIGNATURE"
	ErrInvalidAmount           = "INVALID_AMOUNT"
	ErrNotAllowedToken         = "NOT_ALLOWED_TOKEN"
	ErrFeeExceedsAmount        = "FEE_EXCEEDS_AMOUNT"
	ErrInsufficientBalance     = "INSUFFICIENT_BALANCE"
	ErrInsufficientAllowance   = "INSUFFICIENT_ALLOWANCE"
	ErrExpired                 = "EXPIRED"
	ErrReentrantCall           = "REENTRANT_CALL"
	ErrUnknownProcessor        = "UNKNOWN_PROCESSOR"
	ErrDuplicateProcessor      = "DUPLICATE_PROCESSOR"
	ErrZeroAddress             = "ZERO_ADDRESS"
	ErrInvalidFeeBps           = "INVALID_FEE_BPS"
	ErrInvalidConfig           = "INVALID_CONFIG"
	ErrWhitelistFull           = "WHITELIST_FULL"
	ErrTokenAlreadyWhitelisted = "TOKEN_ALREADY_WHITELISTED"
	ErrUnknownPayment          = "UNKNOWN_PAYMENT"
)

// CodeOf extracts the pipeline error code from err, or "" when err is not a
// pipeline error.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
