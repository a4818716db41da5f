package streaming

import (
	"context"
	"errors"
	"net/http"

	"nanochatd/internal/generator"
	"nanochatd/pkg/types"
)

// StatusClientClosed is the non-standard status used for runs cancelled by
// the client.
const StatusClientClosed = 499

// Collect drains run into a single non-streamed completion and closes it.
func Collect(run *generator.Run, opts Options) (types.ChatCompletion, error) {
	defer run.Close()
	for run.Next() {
	}
	if run.State() == generator.StateFailed {
		return types.ChatCompletion{}, run.Err()
	}
	s := New(nil, nil, opts)
	p, c := run.Usage()
	return types.ChatCompletion{
		ID:      s.opts.ID,
		Object:  ObjectCompletion,
		Created: s.created,
		Model:   opts.Model,
		Choices: []types.CompletionChoice{{
			Message:      types.ChatMessage{Role: "assistant", Content: run.Text()},
			FinishReason: run.State().FinishReason(),
		}},
		Usage: types.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c},
	}, nil
}

// StatusOf maps err to an HTTP status. Errors exposing StatusCode() decide
// for themselves.
func StatusOf(err error) int {
	var he interface{ StatusCode() int }
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, context.Canceled):
		return StatusClientClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ErrorPayload renders err in the OpenAI error shape.
func ErrorPayload(err error) types.ErrorResponse {
	code := StatusOf(err)
	return types.ErrorResponse{Error: types.ErrorDetail{
		Message: err.Error(),
		Type:    errorType(code),
		Code:    code,
	}}
}

func errorType(code int) string {
	switch code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusNotFound:
		return "invalid_request_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case StatusClientClosed:
		return "cancelled"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	return "server_error"
}
