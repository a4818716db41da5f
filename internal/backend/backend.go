// Package backend defines the model capabilities used by the decoding loop
// and the two engines that provide them: a tensor graph backend (gomlx over
// ONNX) and a quantized GGUF backend (llama.cpp).
package backend

import (
	"context"
)

// Kind names a backend engine.
type Kind string

const (
	KindTensor    Kind = "tensor"
	KindQuantized Kind = "quantized"
)

// ParseKind accepts the engine name or a common alias.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "tensor", "onnx", "gomlx":
		return KindTensor, true
	case "quantized", "gguf", "llama":
		return KindQuantized, true
	}
	return "", false
}

// Model is what every loaded engine provides.
type Model interface {
	// VocabSize is fixed for the lifetime of the model.
	VocabSize() int
	Close() error
}

// Backend computes next-token logits over the full context. Implementations
// must be safe for concurrent Forward calls.
type Backend interface {
	Model
	// Forward returns one logit per vocabulary id for the position after
	// tokens.
	Forward(ctx context.Context, tokens []int) ([]float32, error)
}

// StreamOptions are the sampling settings handed to a runtime that samples
// internally.
type StreamOptions struct {
	MaxTokens     int
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
	Seed          int
	Stop          []string
}

// Streamer is an engine that runs its own decode loop and reports each
// produced text piece. Returning an error from onPiece stops the runtime.
type Streamer interface {
	Model
	Stream(ctx context.Context, prompt string, opts StreamOptions, onPiece func(piece string) error) error
}

// Limits are the per-engine clamp bounds for sampling parameters.
type Limits struct {
	MinTemperature     float64
	MaxTemperature     float64
	DefaultTemperature float64
	MaxTokens          int
	DefaultMaxTokens   int
	MaxTopK            int
	DefaultTopK        int
}

// LimitsFor returns the clamp bounds of kind.
func LimitsFor(kind Kind) Limits {
	l := Limits{
		MinTemperature:     0.0001,
		MaxTemperature:     2.0,
		DefaultTemperature: 0.7,
		MaxTokens:          4096,
		DefaultMaxTokens:   512,
		MaxTopK:            200,
		DefaultTopK:        50,
	}
	if kind == KindQuantized {
		l.MinTemperature = 0.1
		l.MaxTokens = 1024
	}
	return l
}

// Info describes a loaded model.
type Info struct {
	Kind      Kind
	Name      string
	Path      string
	Device    string
	VocabSize int
	// EOS is the end-of-sequence id, or -1 when the tokenizer must resolve it.
	EOS       int
	Tokenizer any
}
