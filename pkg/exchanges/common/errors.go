package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure classes shared by every trading source.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrExchangeRejected    = errors.New("exchange rejected request")
	ErrTimeout             = errors.New("exchange call timed out")
	ErrRateLimited         = errors.New("exchange rate limit reached")
)

// APIError is a decoded exchange error body.
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Unwrap maps Binance error codes onto the shared failure classes.
func (e *APIError) Unwrap() error {
	switch {
	case e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus == http.StatusTeapot || e.Code == -1003:
		return ErrRateLimited
	case e.Code == -2010 && strings.Contains(strings.ToLower(e.Message), "insufficient balance"):
		return ErrInsufficientBalance
	case e.Code == -1013 || e.Code == -1111 || e.Code == -1100:
		return ErrInvalidQuantity
	case e.Code == -1007:
		return ErrTimeout
	default:
		return ErrExchangeRejected
	}
}

// WrapTransport turns context deadline failures into ErrTimeout.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransient reports failures that should simply be retried next cycle.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded)
}
