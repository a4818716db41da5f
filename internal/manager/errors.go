package manager

import (
	"errors"
	"net/http"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string   { return "too busy: " + e.reason }
func (e tooBusyError) StatusCode() int { return http.StatusTooManyRequests }

// Reason names the saturated stage (queue or slot).
func (e tooBusyError) Reason() string { return e.reason }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// notReadyError is returned while the model is loading or after a failed load.
type notReadyError struct {
	state  State
	detail string
}

func (e notReadyError) Error() string {
	if e.detail != "" {
		return "model not ready (" + string(e.state) + "): " + e.detail
	}
	return "model not ready (" + string(e.state) + ")"
}

func (e notReadyError) StatusCode() int { return http.StatusServiceUnavailable }

// IsNotReady reports whether err means the model cannot serve yet (return 503).
func IsNotReady(err error) bool {
	var e notReadyError
	return errors.As(err, &e)
}

// validationError rejects a malformed request before generation.
type validationError struct{ msg string }

func (e validationError) Error() string   { return e.msg }
func (e validationError) StatusCode() int { return http.StatusBadRequest }

// ErrValidation constructs a validationError.
func ErrValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err is a request validation failure (return 400).
func IsValidation(err error) bool {
	var e validationError
	return errors.As(err, &e)
}
