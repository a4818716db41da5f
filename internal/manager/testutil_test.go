package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nanochatd/internal/backend"
	"nanochatd/internal/tokenizer"
	"nanochatd/pkg/types"
)

// fakeModel prefers token (call-1) % vocab and can block each Forward.
type fakeModel struct {
	mu     sync.Mutex
	vocab  int
	calls  int
	gate   chan struct{}
	closed bool
}

func (f *fakeModel) VocabSize() int { return f.vocab }

func (f *fakeModel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeModel) Forward(ctx context.Context, tokens []int) ([]float32, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	out := make([]float32, f.vocab)
	out[(n-1)%f.vocab] = 10
	return out, nil
}

type words []string

func (w words) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(w[id])
	}
	return b.String()
}

// fixedLoader returns a handle around m; vocab id 3 is EOS.
func fixedLoader(m *fakeModel) Loader {
	return func(ctx context.Context) (*Handle, error) {
		return &Handle{
			Model:     m,
			Tokenizer: tokenizer.New(words{"Hi", " there", "!", ""}),
			EOS:       3,
			Info:      backend.Info{Kind: backend.KindTensor, Device: "cpu", VocabSize: m.vocab, Path: "/models/fake.onnx"},
		}, nil
	}
}

func failingLoader(ctx context.Context) (*Handle, error) {
	return nil, &backend.ModelLoadError{Path: "/nope.gguf", Reason: "model file missing", Err: errors.New("no such file")}
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Kind == "" {
		cfg.Kind = backend.KindTensor
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func startReady(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m := newTestManager(t, cfg)
	m.Start(context.Background())
	if err := m.Wait(testCtx(t)); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !m.Ready() {
		t.Fatalf("not ready: %+v", m.Snapshot())
	}
	return m
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func userReq(content string) types.ChatCompletionRequest {
	return types.ChatCompletionRequest{Messages: []types.ChatMessage{{Role: "user", Content: content}}}
}

func ptr[T any](v T) *T { return &v }

// errWriter writes once, then returns an error on subsequent writes.
type errWriter struct{ wrote int }

func (e *errWriter) Write(p []byte) (int, error) {
	if e.wrote == 0 {
		e.wrote += len(p)
		return len(p), nil
	}
	return 0, errors.New("write fail")
}
