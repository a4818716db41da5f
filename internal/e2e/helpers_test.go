package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"nanochatd/internal/backend"
	"nanochatd/internal/httpapi"
	"nanochatd/internal/manager"
	"nanochatd/internal/tokenizer"
)

// scriptModel emits script[i % len(script)] on call i. delay slows every
// Forward; gate, when set, blocks each Forward until closed.
type scriptModel struct {
	mu     sync.Mutex
	script []int
	calls  int
	delay  time.Duration
	gate   chan struct{}
}

func (s *scriptModel) VocabSize() int { return 4 }
func (s *scriptModel) Close() error   { return nil }

func (s *scriptModel) Forward(ctx context.Context, tokens []int) ([]float32, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	id := s.script[s.calls%len(s.script)]
	s.calls++
	s.mu.Unlock()
	out := make([]float32, 4)
	out[id] = 20
	return out, nil
}

// words decodes id i to words[i]; id 3 is the end marker.
type words []string

func (w words) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(w) {
			b.WriteString(w[id])
		}
	}
	return b.String()
}

func scriptLoader(m *scriptModel) manager.Loader {
	return func(ctx context.Context) (*manager.Handle, error) {
		return &manager.Handle{
			Model:     m,
			Tokenizer: tokenizer.New(words{"Hi", " there", "!", ""}),
			EOS:       3,
			Info:      backend.Info{Kind: backend.KindQuantized, Device: "cpu", VocabSize: 4, Path: "/models/nanochat-Q4_K_M.gguf"},
		}, nil
	}
}

// newServer builds the manager and the HTTP mux around cfg. With ready set,
// it waits for the model load.
func newServer(t *testing.T, cfg manager.ManagerConfig, ready bool) (*httptest.Server, *manager.Manager) {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = manager.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Kind == "" {
		cfg.Kind = backend.KindQuantized
	}
	mgr := manager.NewWithConfig(cfg)
	mgr.Start(context.Background())
	if ready {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := mgr.Wait(ctx); err != nil || !mgr.Ready() {
			t.Fatalf("model not ready: %v %+v", err, mgr.Snapshot())
		}
	}
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// sseData returns the payload of every data event in body.
func sseData(t *testing.T, body []byte) []string {
	t.Helper()
	var out []string
	for _, ev := range strings.Split(strings.TrimSuffix(string(body), "\n\n"), "\n\n") {
		if !strings.HasPrefix(ev, "data: ") {
			t.Fatalf("malformed event %q in %q", ev, body)
		}
		out = append(out, strings.TrimPrefix(ev, "data: "))
	}
	return out
}

const hello = `{"messages":[{"role":"user","content":"Hello"}]`
