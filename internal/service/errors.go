package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation  = errors.New("invalid data")
	ErrAuth        = errors.New("invalid or expired token")
	ErrRateLimited = errors.New("rate limited")
	ErrStore       = errors.New("store unavailable")
	ErrForbidden   = errors.New("forbidden")
)

// RateLimitError is returned when a send or a session reissue is throttled.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Reason
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// RetryAfter extracts the retry hint from a rate-limit error.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// PublicMessage returns the text that may be shown to the client for err.
func PublicMessage(err error) string {
	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		return rl.Reason
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrAuth):
		return "Invalid token"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	default:
		return "Internal server error"
	}
}
