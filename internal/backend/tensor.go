package backend

import (
	"github.com/gomlx/go-huggingface/hub"
)

const defaultMaxSeqLen = 2048

// TensorOptions configure the tensor backend.
type TensorOptions struct {
	// Repo provides the tokenizer files; it must already be downloaded.
	Repo *hub.Repo
	// ModelPath is the local ONNX graph.
	ModelPath string
	// Device selects the graph engine (e.g. "xla:cuda", "go"). Empty picks
	// the default engine for the host.
	Device string
	// MaxSeqLen caps the context window fed to each forward pass.
	MaxSeqLen int
}

func (o TensorOptions) maxSeqLen() int {
	if o.MaxSeqLen > 0 {
		return o.MaxSeqLen
	}
	return defaultMaxSeqLen
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// window returns the trailing part of tokens that fits in max positions.
func window(tokens []int, max int) []int {
	if len(tokens) > max {
		return tokens[len(tokens)-max:]
	}
	return tokens
}

// padSequence builds batch-1 input ids, attention mask and positions padded
// to targetLen.
func padSequence(tokens []int, padID, targetLen int) (ids, mask, pos [][]int64) {
	i64 := make([]int64, targetLen)
	m64 := make([]int64, targetLen)
	p64 := make([]int64, targetLen)
	for i := 0; i < targetLen; i++ {
		if i < len(tokens) {
			i64[i] = int64(tokens[i])
			m64[i] = 1
			p64[i] = int64(i)
			continue
		}
		i64[i] = int64(padID)
	}
	return [][]int64{i64}, [][]int64{m64}, [][]int64{p64}
}
