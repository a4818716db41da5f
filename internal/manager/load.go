package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nanochatd/internal/backend"
	"nanochatd/internal/generator"
	"nanochatd/internal/registry"
	"nanochatd/internal/tokenizer"
)

// Loader builds the model handle. It runs at most once per Manager.
type Loader func(ctx context.Context) (*Handle, error)

// Start begins loading the model in the background unless loading is lazy.
// ctx bounds the load; cancel it on shutdown.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.LazyLoad {
		return
	}
	m.startLoad(ctx)
}

// Wait blocks until the load attempt has finished.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) startLoad(parent context.Context) {
	m.loadOnce.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		m.mu.Lock()
		m.loadCancel = cancel
		m.mu.Unlock()
		go func() {
			defer cancel()
			m.load(ctx)
		}()
	})
}

func (m *Manager) load(ctx context.Context) {
	defer close(m.loaded)
	start := time.Now()
	m.cfg.Publisher.Publish(Event{Name: EventLoadStart, ModelID: m.cfg.ModelID, Fields: map[string]any{"backend": string(m.cfg.Kind)}})
	m.cfg.Metrics.setLoadState(StateLoading)
	m.log.Info().Str("model", m.cfg.ModelID).Str("backend", string(m.cfg.Kind)).Msg("loading model")

	h, err := m.loadHandle(ctx)
	dur := time.Since(start)

	m.mu.Lock()
	if err == nil && m.closed.Load() {
		err = errors.New("manager closed during load")
		_ = h.Model.Close()
	}
	if err != nil {
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		m.cfg.Metrics.setLoadState(StateError)
		m.log.Error().Err(err).Dur("dur", dur).Msg("model load failed")
		m.cfg.Publisher.Publish(Event{Name: EventLoadError, ModelID: m.cfg.ModelID, Fields: map[string]any{"error": err.Error()}})
		return
	}
	m.handle = h
	m.state = StateReady
	m.err = ""
	m.loadDur = dur
	m.mu.Unlock()
	m.cfg.Metrics.setLoadState(StateReady)
	m.log.Info().Str("model", m.cfg.ModelID).Str("device", h.Info.Device).Int("vocab", h.Info.VocabSize).
		Int("eos", h.EOS).Str("tokenizer", h.Tokenizer.Strategy()).Dur("dur", dur).Msg("model ready")
	m.cfg.Publisher.Publish(Event{Name: EventLoadReady, ModelID: m.cfg.ModelID, Fields: map[string]any{"device": h.Info.Device, "load_ms": dur.Milliseconds()}})
}

func (m *Manager) loadHandle(ctx context.Context) (h *Handle, err error) {
	if m.cfg.Loader == nil {
		return nil, &backend.ModelLoadError{Reason: "no loader configured"}
	}
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, &backend.ModelLoadError{Reason: "loader panic", Err: fmt.Errorf("%v", r)}
		}
	}()
	h, err = m.cfg.Loader(ctx)
	if err != nil {
		return nil, err
	}
	if h == nil || h.Model == nil {
		return nil, &backend.ModelLoadError{Reason: "loader returned no model"}
	}
	if h.Tokenizer == nil {
		h.Tokenizer = tokenizer.New(nil, tokenizer.WithLogger(m.cfg.Logger))
	}
	if h.Limits == (backend.Limits{}) {
		h.Limits = backend.LimitsFor(m.cfg.Kind)
	}
	gen, err := generator.New(generator.Config{
		Model:     h.Model,
		Tokenizer: h.Tokenizer,
		EOS:       h.EOS,
		Pool:      m.pool,
		Logger:    m.cfg.Logger.With().Str("component", "generator").Logger(),
	})
	if err != nil {
		_ = h.Model.Close()
		return nil, &backend.ModelLoadError{Reason: "model capability", Err: err}
	}
	h.gen = gen
	return h, nil
}

// handleFor returns the ready handle or a notReady error. With lazy
// loading, the first caller starts the load and every caller waits for it.
func (m *Manager) handleFor(ctx context.Context) (*Handle, error) {
	if m.closed.Load() {
		return nil, notReadyError{state: StateError, detail: "shutting down"}
	}
	if m.cfg.LazyLoad {
		m.startLoad(context.WithoutCancel(ctx))
		if err := m.Wait(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateReady && m.handle != nil {
		return m.handle, nil
	}
	return nil, notReadyError{state: m.state, detail: m.err}
}

// LoadOptions configure the default loader.
type LoadOptions struct {
	Kind    backend.Kind
	Fetcher *registry.Fetcher
	Source  registry.Source
	// Device and MaxSeqLen apply to the tensor backend.
	Device    string
	MaxSeqLen int
	// ContextSize, Threads and GPULayers apply to the quantized backend.
	ContextSize int
	Threads     int
	GPULayers   int
	Logger      zerolog.Logger
}

// NewLoader resolves the model artifact, fetching it when missing, and
// opens it with the configured backend.
func NewLoader(o LoadOptions) Loader {
	return func(ctx context.Context) (*Handle, error) {
		if o.Fetcher == nil {
			o.Fetcher = registry.NewFetcher(registry.FetchOptions{Logger: o.Logger})
		}
		src := o.Source
		src.Kind = o.Kind
		art, err := o.Fetcher.Resolve(ctx, src)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			model backend.Model
			info  backend.Info
		)
		switch o.Kind {
		case backend.KindTensor:
			model, info, err = backend.LoadTensor(backend.TensorOptions{
				Repo:      art.Repo,
				ModelPath: art.Path,
				Device:    o.Device,
				MaxSeqLen: o.MaxSeqLen,
			})
		case backend.KindQuantized:
			model, info, err = backend.LoadQuantized(backend.QuantizedOptions{
				Path:        art.Path,
				ContextSize: o.ContextSize,
				Threads:     o.Threads,
				GPULayers:   o.GPULayers,
			})
		default:
			return nil, &backend.ModelLoadError{Path: art.Path, Reason: "unknown backend " + string(o.Kind)}
		}
		if err != nil {
			return nil, err
		}
		return newHandle(model, info, o.Logger), nil
	}
}

func newHandle(model backend.Model, info backend.Info, log zerolog.Logger) *Handle {
	tok := tokenizer.New(info.Tokenizer,
		tokenizer.WithLogger(log.With().Str("component", "tokenizer").Logger()),
		tokenizer.WithVocabSize(info.VocabSize))
	eos := info.EOS
	if eos < 0 {
		eos = tok.ResolveEOS(tokenizer.EndMarker, tokenizer.DefaultEOS)
	}
	return &Handle{
		Model:     model,
		Tokenizer: tok,
		EOS:       eos,
		Limits:    backend.LimitsFor(info.Kind),
		Info:      info,
	}
}
