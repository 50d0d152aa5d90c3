package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("payment not found")
	ErrNotPending       = errors.New("payment is no longer pending")
	ErrGatewayDisabled  = errors.New("payment gateway is not configured")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAmountMismatch   = errors.New("amount does not match payment")
	ErrInvalidReference = errors.New("patient does not exist")
	ErrCheckoutStarted  = errors.New("checkout already started with another method")
	ErrWrongGateway     = errors.New("callback gateway does not match the payment's checkout")
)

// GatewayError reports a non-success answer from a payment gateway.
type GatewayError struct {
	Gateway string
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway error %d: %s", e.Gateway, e.Code, e.Message)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
