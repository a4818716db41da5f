//go:build llama

package backend

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"
)

// QuantizedBuilt reports whether this binary includes the llama runtime.
const QuantizedBuilt = true

// llamaModel owns the loaded runtime. The runtime keeps a single token
// callback per model, so predictions are serialized.
type llamaModel struct {
	engine  *EngineLock
	model   *llama.LLama
	threads int
	vocab   *Vocab
}

func openLlama(path string, ctxSize, threads, gpuLayers int, vocab *Vocab) (Streamer, error) {
	mo := []llama.ModelOption{
		llama.SetContext(ctxSize),
	}
	if gpuLayers > 0 {
		mo = append(mo, llama.SetGPULayers(gpuLayers))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Reason: "llama runtime", Err: err}
	}
	return &llamaModel{engine: NewEngineLock(), model: m, threads: threads, vocab: vocab}, nil
}

func (l *llamaModel) VocabSize() int { return l.vocab.Size() }

// PieceID maps a streamed piece back to a vocabulary id, or -1.
func (l *llamaModel) PieceID(piece string) int { return l.vocab.PieceID(piece) }

// Serial marks the model as queueing callers on its engine lock.
func (l *llamaModel) Serial() {}

// Stream runs a prediction and forwards each piece. It waits for the engine
// until ctx is done, and returns when the runtime finishes or onPiece fails.
func (l *llamaModel) Stream(ctx context.Context, prompt string, opts StreamOptions, onPiece func(string) error) error {
	if err := l.engine.Lock(ctx); err != nil {
		return err
	}
	defer l.engine.Unlock()
	if l.model == nil {
		return errors.New("llama model not initialized")
	}
	var stopErr error
	l.model.SetTokenCallback(func(tok string) bool {
		if err := ctx.Err(); err != nil {
			stopErr = err
			return false
		}
		if err := onPiece(tok); err != nil {
			stopErr = err
			return false
		}
		return true
	})
	_, err := l.model.Predict(prompt, predictOptions(opts, l.threads)...)
	if stopErr != nil {
		return stopErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (l *llamaModel) Close() error {
	_ = l.engine.Lock(context.Background())
	defer l.engine.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// predictOptions converts stream options into go-llama.cpp options.
func predictOptions(o StreamOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, o.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(o.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(o.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if o.Seed != 0 {
		po = append(po, llama.SetSeed(o.Seed))
	}
	if len(o.Stop) > 0 {
		po = append(po, llama.SetStopWords(o.Stop...))
	}
	return po
}
