package manager

import (
	"nanochatd/internal/backend"
	"nanochatd/internal/generator"
	"nanochatd/internal/tokenizer"
)

// State represents the readiness of the model handle.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Handle is the loaded model plus its tokenizer. It is created once and is
// read-only afterwards.
type Handle struct {
	Model     backend.Model
	Tokenizer *tokenizer.Adapter
	EOS       int
	Limits    backend.Limits
	Info      backend.Info

	gen *generator.Generator
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State State
	Info  backend.Info
	Err   string
}
