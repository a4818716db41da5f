package backend

import (
	"errors"
	"net/http"
)

// ModelLoadError reports that a backend could not be constructed because its
// files are missing, malformed, or its runtime is not built in.
type ModelLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ModelLoadError) Error() string {
	msg := "model load failed"
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// StatusCode maps load failures to 503 for the HTTP layer.
func (e *ModelLoadError) StatusCode() int { return http.StatusServiceUnavailable }

// IsModelLoadError reports whether err is or wraps a ModelLoadError.
func IsModelLoadError(err error) bool {
	var e *ModelLoadError
	return errors.As(err, &e)
}

// GenerationError reports a failed forward pass or runtime call during an
// active generation.
type GenerationError struct {
	Step int
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation failed"
	}
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) StatusCode() int { return http.StatusInternalServerError }

// IsGenerationError reports whether err is or wraps a GenerationError.
func IsGenerationError(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}
