//go:build gomlx

package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	_ "github.com/gomlx/gomlx/backends/default"

	"nanochatd/internal/tokenizer"
)

// TensorBuilt reports whether this binary includes the tensor backend.
const TensorBuilt = true

type tensorModel struct {
	// one graph execution at a time per engine
	mu      sync.Mutex
	engine  backends.Backend
	vars    *mlctx.Context
	model   *onnx.Model
	padID   int
	hasMask bool
	hasPos  bool
	maxSeq  int
	vocab   int
}

// LoadTensor reads the ONNX graph and tokenizer, binds the weights to a graph
// engine chosen once here, and runs a warm-up pass to fix the vocabulary
// size.
func LoadTensor(opts TensorOptions) (Backend, Info, error) {
	if opts.Repo == nil {
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "no tokenizer repository"}
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "model file missing", Err: err}
	}
	tok, err := tokenizers.New(opts.Repo)
	if err != nil {
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "tokenizer", Err: err}
	}
	model, err := onnx.ReadFile(opts.ModelPath)
	if err != nil {
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "malformed ONNX graph", Err: err}
	}

	names, inShapes := model.Inputs()
	inputs := make(map[string]bool, len(names))
	kv := make(map[string]any)
	for i, name := range names {
		inputs[name] = true
		if strings.HasPrefix(name, "past_key_values") {
			// full recompute each step: the past is always empty
			dims := inShapes[i].Dimensions
			kv[name] = tensors.FromShape(shapes.Make(dtypes.Float32, 1, dims[1], 0, dims[3]))
		}
	}
	if len(kv) > 0 {
		model.WithInputsAsConstants(kv)
	}
	vars := mlctx.New()
	if err := model.VariablesToContext(vars); err != nil {
		model.Close()
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "weights", Err: err}
	}
	engine, err := newEngine(opts.Device)
	if err != nil {
		model.Close()
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "graph engine", Err: err}
	}
	padID, err := tok.SpecialTokenID(api.TokPad)
	if err != nil {
		padID = 0
	}
	tm := &tensorModel{
		engine:  engine,
		vars:    vars,
		model:   model,
		padID:   padID,
		hasMask: inputs["attention_mask"],
		hasPos:  inputs["position_ids"],
		maxSeq:  opts.maxSeqLen(),
	}
	logits, err := tm.forward([]int{tokenizer.SentinelToken})
	if err != nil || len(logits) == 0 {
		tm.Close()
		return nil, Info{}, &ModelLoadError{Path: opts.ModelPath, Reason: "warm-up forward pass", Err: err}
	}
	tm.vocab = len(logits)
	info := Info{
		Kind:      KindTensor,
		Name:      filepath.Base(opts.ModelPath),
		Path:      opts.ModelPath,
		Device:    engine.Name(),
		VocabSize: tm.vocab,
		EOS:       -1,
		Tokenizer: tok,
	}
	return tm, info, nil
}

func newEngine(device string) (backends.Backend, error) {
	if device == "" || device == "auto" {
		return backends.New()
	}
	return backends.NewWithConfig(device)
}

func (t *tensorModel) VocabSize() int { return t.vocab }

// Forward runs the whole context through the graph and returns the logits of
// the last position.
func (t *tensorModel) Forward(ctx context.Context, tokens []int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty context")
	}
	return t.forward(tokens)
}

func (t *tensorModel) forward(tokens []int) (logits []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("graph execution: %v", r)
		}
	}()
	toks := window(tokens, t.maxSeq)
	seqLen := len(toks)
	target := min(nextPow2(seqLen), t.maxSeq)
	ids, mask, pos := padSequence(toks, t.padID, target)

	t.mu.Lock()
	defer t.mu.Unlock()
	out := mlctx.MustExecOnce(
		t.engine, t.vars.Reuse(),
		func(ctx *mlctx.Context, idNode, maskNode, posNode *graph.Node) *graph.Node {
			g := idNode.Graph()
			in := map[string]*graph.Node{"input_ids": idNode}
			if t.hasMask {
				in["attention_mask"] = maskNode
			}
			if t.hasPos {
				in["position_ids"] = posNode
			}
			// outputs[0]: [batch, seq, vocab]
			all := t.model.CallGraph(ctx, g, in)[0]
			vocab := all.Shape().Dimensions[2]
			last := graph.DynamicSlice(all, []*graph.Node{
				graph.Const(g, int32(0)), graph.Const(g, int32(seqLen-1)), graph.Const(g, int32(0)),
			}, []int{1, 1, vocab})
			return graph.Reshape(last, vocab)
		},
		ids, mask, pos,
	)
	return tensors.MustCopyFlatData[float32](out), nil
}

func (t *tensorModel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		t.model.Close()
		t.model = nil
	}
	if t.engine != nil {
		t.engine.Finalize()
		t.engine = nil
	}
	return nil
}
