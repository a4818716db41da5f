package manager

import (
	"context"
	"errors"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"nanochatd/internal/generator"
	"nanochatd/internal/streaming"
	"nanochatd/pkg/types"
)

// ChatCompletion validates req, waits for a generation slot and writes the
// response to w: SSE events when req.Streaming(), otherwise one JSON
// object. An error is returned only when nothing has been written yet, so
// the caller can still choose the status code.
func (m *Manager) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error {
	msgs, err := validateMessages(req.Messages)
	if err != nil {
		return err
	}
	h, err := m.handleFor(ctx)
	if err != nil {
		return err
	}
	policy, err := buildPolicy(req, h.Limits)
	if err != nil {
		return err
	}
	if m.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.InferTimeout)
		defer cancel()
	}

	// rejections are counted once, by the HTTP layer
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := streaming.Options{Model: req.Model, IncludeUsage: req.IncludeUsage()}
	if opts.Model == "" {
		opts.Model = m.cfg.ModelID
	}
	opts.ID = streaming.NewID()
	log := m.log.With().Str("completion_id", opts.ID).Logger()
	log.Debug().Int("messages", len(msgs)).Float64("temperature", policy.Temperature).
		Int("max_tokens", policy.MaxTokens).Int("top_k", policy.TopK).Float64("top_p", policy.TopP).
		Bool("stream", req.Streaming()).Msg("generation start")
	m.cfg.Publisher.Publish(Event{Name: EventGenerationStart, ModelID: m.cfg.ModelID, Fields: map[string]any{"id": opts.ID}})
	m.cfg.Metrics.inflightGauge.Inc()
	defer m.cfg.Metrics.inflightGauge.Dec()

	start := time.Now()
	run := h.gen.Start(ctx, msgs, policy)
	if req.Streaming() {
		err = streaming.New(w, flush, opts).Stream(run)
	} else {
		var out types.ChatCompletion
		if out, err = streaming.Collect(run, opts); err == nil {
			err = writeJSON(w, flush, out)
		}
	}
	m.finishGeneration(run, opts.ID, time.Since(start))
	return err
}

func (m *Manager) finishGeneration(run *generator.Run, id string, dur time.Duration) {
	_, completion := run.Usage()
	m.tokensTotal.Add(uint64(completion))
	m.generationsTotal.Add(1)
	mt := m.cfg.Metrics
	mt.tokens.Add(float64(completion))
	mt.finishes.WithLabelValues(run.State().String()).Inc()
	mt.duration.Observe(dur.Seconds())
	if ttft := run.TimeToFirstStep(); ttft > 0 {
		mt.ttft.Observe(ttft.Seconds())
	}
	fields := map[string]any{"id": id, "state": run.State().String(), "tokens": completion, "dur_ms": dur.Milliseconds()}
	if err := run.Err(); err != nil {
		fields["error"] = err.Error()
		if !errors.Is(err, context.Canceled) {
			m.mu.Lock()
			m.err = err.Error()
			m.mu.Unlock()
		}
	}
	m.cfg.Publisher.Publish(Event{Name: EventGenerationEnd, ModelID: m.cfg.ModelID, Fields: fields})
}

func writeJSON(w io.Writer, flush func(), v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}
