// Package tokenizer adapts a model tokenizer to the id/text mapping used by
// the decoding loop. Missing capabilities degrade to a byte-level strategy
// chosen once at construction.
package tokenizer

import (
	"fmt"
	"unicode"

	"github.com/rs/zerolog"
)

const (
	// SentinelToken seeds an otherwise empty context.
	SentinelToken = 1
	// DefaultEOS is used when the end marker cannot be encoded.
	DefaultEOS = 2
	// EndMarker is the textual end-of-turn marker of the chat template.
	EndMarker = "<|end|>"
	// Placeholder is returned for ids that cannot be decoded.
	Placeholder = "?"
)

// Encoder is the encode capability of a real tokenizer.
type Encoder interface {
	Encode(text string) []int
}

// Decoder is the decode capability of a real tokenizer.
type Decoder interface {
	Decode(ids []int) string
}

// TokenizeError records a failure inside the underlying tokenizer. It is
// logged and recovered, never returned to callers of Adapter.
type TokenizeError struct {
	Op  string
	Err error
}

func (e *TokenizeError) Error() string { return "tokenize " + e.Op + ": " + e.Err.Error() }

func (e *TokenizeError) Unwrap() error { return e.Err }

// Adapter maps text to token ids and back.
type Adapter struct {
	enc   Encoder
	dec   Decoder
	vocab int
	log   zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used to report recovered tokenizer failures.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.log = l } }

// WithVocabSize bounds Decode to ids in [0, n). Zero disables the check.
func WithVocabSize(n int) Option { return func(a *Adapter) { a.vocab = n } }

// New inspects tok for Encoder and Decoder capabilities. tok may be nil, in
// which case both directions use the byte fallback.
func New(tok any, opts ...Option) *Adapter {
	a := &Adapter{log: zerolog.Nop()}
	if e, ok := tok.(Encoder); ok {
		a.enc = e
	}
	if d, ok := tok.(Decoder); ok {
		a.dec = d
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// HasEncoder reports whether a real encoder is in use.
func (a *Adapter) HasEncoder() bool { return a.enc != nil }

// HasDecoder reports whether a real decoder is in use.
func (a *Adapter) HasDecoder() bool { return a.dec != nil }

// Strategy names the selected encode/decode strategies, e.g. "real/bytes".
func (a *Adapter) Strategy() string {
	enc, dec := "bytes", "bytes"
	if a.enc != nil {
		enc = "real"
	}
	if a.dec != nil {
		dec = "real"
	}
	return enc + "/" + dec
}

// Encode converts text to ids. A panicking encoder falls back to bytes.
func (a *Adapter) Encode(text string) []int {
	if a.enc == nil {
		return encodeBytes(text)
	}
	ids, err := a.safeEncode(text)
	if err != nil {
		a.log.Warn().Err(err).Msg("encoder failed; using byte fallback")
		return encodeBytes(text)
	}
	return ids
}

func (a *Adapter) safeEncode(text string) (ids []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TokenizeError{Op: "encode", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.enc.Encode(text), nil
}

func encodeBytes(text string) []int {
	b := []byte(text)
	ids := make([]int, len(b))
	for i, c := range b {
		ids[i] = int(c)
	}
	return ids
}

// Decode converts a single id to its text fragment. It never panics; any
// failure yields Placeholder.
func (a *Adapter) Decode(id int) string {
	if id < 0 || (a.vocab > 0 && id >= a.vocab) {
		a.log.Debug().Int("token_id", id).Msg("decode: id out of range")
		return Placeholder
	}
	if a.dec == nil {
		return decodeByte(id)
	}
	s, err := a.safeDecode(id)
	if err != nil {
		a.log.Warn().Err(err).Int("token_id", id).Msg("decode failed")
		return Placeholder
	}
	return s
}

func (a *Adapter) safeDecode(id int) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TokenizeError{Op: "decode", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.dec.Decode([]int{id}), nil
}

func decodeByte(id int) string {
	if id < 0 || id > 255 {
		return Placeholder
	}
	r := rune(id)
	if unicode.IsPrint(r) || r == '\n' || r == '\t' {
		return string(r)
	}
	return Placeholder
}

// ResolveEOS encodes marker with the real encoder and returns its first id.
// Without a real encoder, or when encoding yields nothing, it returns
// fallback.
func (a *Adapter) ResolveEOS(marker string, fallback int) int {
	if a.enc == nil {
		return fallback
	}
	ids, err := a.safeEncode(marker)
	if err != nil || len(ids) == 0 {
		return fallback
	}
	return ids[0]
}
