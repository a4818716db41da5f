package backend

import (
	"fmt"
	"math"
	"strings"

	gguf "github.com/gpustack/gguf-parser-go"
)

// GGUFMetadata is the header and key/value table of a GGUF file.
type GGUFMetadata struct {
	Version     uint32
	TensorCount uint64
	kv          gguf.GGUFMetadataKVs
}

// ReadGGUFMetadata parses the header and metadata table of the GGUF file at
// path. Tensor data is not read.
func ReadGGUFMetadata(path string) (*GGUFMetadata, error) {
	f, err := gguf.ParseGGUFFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse gguf %s: %w", path, err)
	}
	if v := uint32(f.Header.Version); v < 2 {
		return nil, fmt.Errorf("unsupported GGUF version %d", v)
	}
	return &GGUFMetadata{
		Version:     uint32(f.Header.Version),
		TensorCount: f.Header.TensorCount,
		kv:          f.Header.MetadataKV,
	}, nil
}

// Value returns the raw value of key.
func (m *GGUFMetadata) Value(key string) (any, bool) {
	e, ok := m.kv.Get(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// String returns the string value of key.
func (m *GGUFMetadata) String(key string) string {
	v, _ := m.Value(key)
	s, _ := v.(string)
	return s
}

// Int returns the integer value of key, converting any integer width.
func (m *GGUFMetadata) Int(key string) (int, bool) {
	v, _ := m.Value(key)
	return toInt(v)
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case uint8:
		return int(x), true
	case int8:
		return int(x), true
	case uint16:
		return int(x), true
	case int16:
		return int(x), true
	case uint32:
		return int(x), true
	case int32:
		return int(x), true
	case uint64:
		if x > math.MaxInt32 {
			return 0, false
		}
		return int(x), true
	case int64:
		return int(x), true
	}
	return 0, false
}

// Architecture is general.architecture, e.g. "llama".
func (m *GGUFMetadata) Architecture() string { return m.String("general.architecture") }

// ContextLength is <arch>.context_length when present.
func (m *GGUFMetadata) ContextLength() int {
	n, _ := m.Int(m.Architecture() + ".context_length")
	return n
}

// Tokens is tokenizer.ggml.tokens.
func (m *GGUFMetadata) Tokens() []string {
	v, _ := m.Value("tokenizer.ggml.tokens")
	arr, ok := v.(gguf.GGUFMetadataKVArrayValue)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr.Array))
	for _, e := range arr.Array {
		s, _ := e.(string)
		out = append(out, s)
	}
	return out
}

// EOSTokenID is tokenizer.ggml.eos_token_id, or -1.
func (m *GGUFMetadata) EOSTokenID() int {
	if n, ok := m.Int("tokenizer.ggml.eos_token_id"); ok {
		return n
	}
	return -1
}

// Vocab is a GGUF token table usable as a tokenizer Decoder.
type Vocab struct {
	tokens []string
	index  map[string]int
	spm    bool
}

// NewVocab builds a Vocab from the metadata token table.
func NewVocab(md *GGUFMetadata) *Vocab {
	toks := md.Tokens()
	v := &Vocab{
		tokens: toks,
		index:  make(map[string]int, len(toks)),
		spm:    md.String("tokenizer.ggml.model") == "llama",
	}
	for i, t := range toks {
		if _, dup := v.index[t]; !dup {
			v.index[t] = i
		}
	}
	return v
}

// Size is the number of tokens.
func (v *Vocab) Size() int { return len(v.tokens) }

// Decode renders ids as text, undoing the word-boundary markers used by
// sentencepiece ("▁") and byte-level BPE ("Ġ", "Ċ").
func (v *Vocab) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(v.tokens) {
			continue
		}
		b.WriteString(v.render(v.tokens[id]))
	}
	return b.String()
}

func (v *Vocab) render(tok string) string {
	if v.spm {
		return strings.ReplaceAll(tok, "▁", " ")
	}
	return strings.NewReplacer("Ġ", " ", "Ċ", "\n").Replace(tok)
}

// PieceID maps a decoded text piece back to its id, or -1.
func (v *Vocab) PieceID(piece string) int {
	if id, ok := v.index[piece]; ok {
		return id
	}
	var alt string
	if v.spm {
		alt = strings.ReplaceAll(piece, " ", "▁")
	} else {
		alt = strings.NewReplacer(" ", "Ġ", "\n", "Ċ").Replace(piece)
	}
	if id, ok := v.index[alt]; ok {
		return id
	}
	return -1
}
