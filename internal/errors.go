package internal

import (
	"errors"
	"fmt"
	"net/http"

	"roomrelay/internal/storage"
)

// error kinds surfaced by the HTTP layer
var (
	ErrBadInput = errors.New("bad input")
	ErrIO       = errors.New("io")
	ErrUpstream = errors.New("upstream")
)

func badInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadInput, fmt.Sprintf(format, args...))
}

func ioFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func upstreamFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
