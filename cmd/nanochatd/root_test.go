package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"nanochatd/pkg/types"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestEnvConfig(t *testing.T) {
	c := envConfig(envFrom(map[string]string{
		"NANOCHATD_ADDR":         ":9000",
		"NANOCHATD_BACKEND":      "onnx",
		"NANOCHATD_LAZY_LOAD":    "true",
		"NANOCHATD_CORS_ORIGINS": "http://a, http://b",
		"HF_TOKEN":               "hf_x",
	}))
	if c.Addr != ":9000" || c.Backend != "onnx" || !c.LazyLoad || c.HFToken != "hf_x" {
		t.Fatalf("cfg=%+v", c)
	}
	if !c.CORSEnabled || len(c.CORSAllowedOrigins) != 2 {
		t.Fatalf("cors=%+v", c)
	}
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nanochatd.yaml")
	yaml := "addr: \":1111\"\nbackend: tensor\nmodel_id: from-file\nmax_queue_depth: 4\ngpu_layers: 7\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	o := &options{getenv: envFrom(map[string]string{"NANOCHATD_ADDR": ":2222", "NANOCHATD_CONFIG": path})}
	root := newRootCmdWith(o)
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	if err := serve.ParseFlags([]string{"--model-id", "from-flag", "--gpu-layers", "3"}); err != nil {
		t.Fatal(err)
	}
	if err := o.resolve(serve); err != nil {
		t.Fatal(err)
	}
	c := o.cfg
	if c.ModelID != "from-flag" || c.Addr != ":2222" || c.Backend != "tensor" || c.MaxQueueDepth != 4 {
		t.Fatalf("cfg=%+v", c)
	}
	if c.GPULayers == nil || *c.GPULayers != 3 {
		t.Fatalf("gpu layers=%v", c.GPULayers)
	}
	// defaults fill the rest
	if c.CacheDir != "~/.cache/nanochatd" || c.MaxWaitSeconds != 30 {
		t.Fatalf("defaults=%+v", c)
	}
	if repo, file := c.HubSource(); repo != "sdobson/nanochat" || file != "onnx/model.onnx" {
		t.Fatalf("hub=%s %s", repo, file)
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	root := newRootCmd(envFrom(nil))
	root.SetArgs([]string{"version", "--backend", "pytorch"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("err=%v", err)
	}
}

func TestBadConfigFile(t *testing.T) {
	root := newRootCmd(envFrom(nil))
	root.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "x.ini")})
	root.SetErr(io.Discard)
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("err=%v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(envFrom(nil))
	root.SetArgs([]string{"version"})
	root.SetOut(&out)
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "nanochatd dev") {
		t.Fatalf("out=%q", out.String())
	}
}

func TestModelsCmd(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"nanochat-Q4_K_M.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var out bytes.Buffer
	root := newRootCmd(envFrom(nil))
	root.SetArgs([]string{"models", "--json", "--models-dir", dir})
	root.SetOut(&out)
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	var resp types.ModelsResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("json %q: %v", out.String(), err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Quant != "Q4_K_M" {
		t.Fatalf("resp=%+v", resp)
	}

	out.Reset()
	root = newRootCmd(envFrom(nil))
	root.SetArgs([]string{"models", "--models-dir", dir})
	root.SetOut(&out)
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "QUANT") || !strings.Contains(out.String(), "nanochat-Q4_K_M.gguf") {
		t.Fatalf("table=%q", out.String())
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(envFrom(nil))
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestDownloadVerify(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.onnx")
	weights := []byte("graph and weights")
	if err := os.WriteFile(model, weights, 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(weights)
	want := hex.EncodeToString(sum[:])
	base := []string{"download", "--backend", "tensor", "--model-path", model, "--cache-dir", filepath.Join(dir, "cache")}

	out, err := run(t, append(base, "--sha256", want)...)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "cached "+model) || !strings.Contains(out, "verified "+model) || !strings.Contains(out, want) {
		t.Fatalf("out=%q", out)
	}

	out, err = run(t, append(base, "--verify")...)
	if err != nil || !strings.Contains(out, "structure, sha256") {
		t.Fatalf("out=%q err=%v", out, err)
	}

	if _, err := run(t, append(base, "--sha256", strings.Repeat("0", 64))...); err == nil || !strings.Contains(err.Error(), "integrity") {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestCacheCmd(t *testing.T) {
	cache := t.TempDir()
	blobs := filepath.Join(cache, "models--org--m", "blobs")
	if err := os.MkdirAll(blobs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blobs, "b"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "cache", "size", "--cache-dir", cache)
	if err != nil || !strings.HasPrefix(out, "2048\t2.0 KiB\t") {
		t.Fatalf("size out=%q err=%v", out, err)
	}
	out, err = run(t, "cache", "clean", "--cache-dir", cache, "--repo", "org/other")
	if err != nil || out != "freed 0 B\n" {
		t.Fatalf("clean other out=%q err=%v", out, err)
	}
	out, err = run(t, "cache", "clean", "--cache-dir", cache, "--repo", "org/m")
	if err != nil || out != "freed 2.0 KiB\n" {
		t.Fatalf("clean out=%q err=%v", out, err)
	}
	if _, err := os.Stat(blobs); !os.IsNotExist(err) {
		t.Fatalf("repo still cached: %v", err)
	}
}

func TestHumanBytes(t *testing.T) {
	for n, want := range map[int64]string{0: "0 B", 1023: "1023 B", 1536: "1.5 KiB", 3 << 30: "3.0 GiB"} {
		if got := humanBytes(n); got != want {
			t.Fatalf("humanBytes(%d)=%q want %q", n, got, want)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", "json")
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("log=%q", buf.String())
	}
	buf.Reset()
	fl := newLogger(&buf, "bogus", "console")
	fl.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Fatalf("log=%q", buf.String())
	}
}

func TestServeLazyAnswersHealthAndStops(t *testing.T) {
	listening := make(chan net.Addr, 1)
	o := &options{
		getenv:   envFrom(map[string]string{"NANOCHATD_LAZY_LOAD": "1"}),
		onListen: func(a net.Addr) { listening <- a },
	}
	root := newRootCmdWith(o)
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--models-dir", t.TempDir(), "--log-level", "error"})
	root.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	var addr net.Addr
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr.String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var h types.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&h)
	_ = resp.Body.Close()
	if err != nil || h.Status != "loading" || h.Ready || h.Backend != "quantized" {
		t.Fatalf("health=%+v err=%v", h, err)
	}
	resp, err = http.Get("http://" + addr.String() + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not stop")
	}
}
