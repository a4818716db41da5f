package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"nanochatd/pkg/types"
)

type mockService struct {
	models  []types.Model
	status  types.StatusResponse
	health  types.HealthResponse
	info    types.InfoResponse
	ready   bool
	chatErr error
	lastReq types.ChatCompletionRequest
}

func (m *mockService) ListModels() []types.Model      { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse   { return m.status }
func (m *mockService) Health() types.HealthResponse   { return m.health }
func (m *mockService) Info() types.InfoResponse       { return m.info }
func (m *mockService) Ready() bool                    { return m.ready }
func (m *mockService) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error {
	m.lastReq = req
	if m.chatErr != nil {
		return m.chatErr
	}
	if !req.Streaming() {
		_, _ = io.WriteString(w, `{"object":"chat.completion"}`+"\n")
		return nil
	}
	// two events then [DONE]
	for _, ev := range []string{`{"choices":[{"delta":{"content":"hi"}}]}`, `{"choices":[{"delta":{},"finish_reason":"stop"}]}`, "[DONE]"} {
		_, _ = io.WriteString(w, "data: "+ev+"\n\n")
		if flush != nil {
			flush()
		}
	}
	return nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

type busyError struct{}

func (busyError) Error() string   { return "too busy: queue" }
func (busyError) StatusCode() int { return http.StatusTooManyRequests }
func (busyError) Reason() string  { return "queue" }

func postChat(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	r := NewMux(svc)
	for _, path := range []string{"/v1/models", "/models"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
			t.Fatalf("content-type=%s", ct)
		}
		var body types.ModelsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("json: %v", err)
		}
		if body.Object != "list" || len(body.Data) != 2 {
			t.Fatalf("body=%+v", body)
		}
	}
}

func TestModelsHandlerEmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", Workers: 3}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Workers != 3 || body.State != "ready" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAlwaysAnswers(t *testing.T) {
	svc := &mockService{health: types.HealthResponse{Status: "loading", Backend: "quantized"}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Status != "loading" || body.Ready {
		t.Fatalf("body=%+v err=%v", body, err)
	}
}

func TestInfoAddsNameAndVersion(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("")
	svc := &mockService{info: types.InfoResponse{Model: "sdobson/nanochat", Device: "cpu"}}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	var body types.InfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Name != "nanochatd" || body.Version != "1.2.3" || body.Model != "sdobson/nanochat" {
		t.Fatalf("body=%+v", body)
	}
}

func TestReadyz(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	for _, state := range []string{"loading", "error"} {
		svc := &mockService{health: types.HealthResponse{Status: state}}
		w := httptest.NewRecorder()
		NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", w.Code)
		}
		if w.Body.String() != state {
			t.Fatalf("body=%q", w.Body.String())
		}
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestChatStreamsSSE(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	for _, path := range []string{"/v1/chat/completions", "/chat/completions"} {
		w := postChat(r, path, chatBody)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("content-type=%q", ct)
		}
		if w.Header().Get("Cache-Control") != "no-cache" || w.Header().Get("Content-Encoding") != "" {
			t.Fatalf("headers=%v", w.Header())
		}
		events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
		if len(events) != 3 || events[2] != "data: [DONE]" {
			t.Fatalf("events=%q", events)
		}
		if !w.Flushed {
			t.Fatalf("expected flushes")
		}
	}
}

func TestChatNonStreamJSON(t *testing.T) {
	svc := &mockService{}
	w := postChat(NewMux(svc), "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}],"stream":false}`)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status=%d headers=%v", w.Code, w.Header())
	}
	if svc.lastReq.Streaming() {
		t.Fatalf("stream flag lost")
	}
}

func TestChatDecodesSamplingFields(t *testing.T) {
	svc := &mockService{}
	body := `{"messages":[{"role":"user","content":"hi"}],"temperature":0.2,"max_completion_tokens":9,"top_k":5,"stop":"END","stream_options":{"include_usage":true}}`
	if w := postChat(NewMux(svc), "/v1/chat/completions", body); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	req := svc.lastReq
	if *req.Temperature != 0.2 || *req.MaxCompletionTokens != 9 || *req.TopK != 5 || len(req.Stop) != 1 || !req.IncludeUsage() {
		t.Fatalf("req=%+v", req)
	}
}

func TestChatBadJSON(t *testing.T) {
	w := postChat(NewMux(&mockService{}), "/v1/chat/completions", "not-json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error.Type != "invalid_request_error" {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		typ  string
	}{
		{mockHTTPError{msg: "Too many messages (max 500)", code: http.StatusBadRequest}, 400, "invalid_request_error"},
		{mockHTTPError{msg: "model not ready (loading)", code: http.StatusServiceUnavailable}, 503, "service_unavailable"},
		{busyError{}, 429, "rate_limit_error"},
		{io.EOF, 500, "server_error"},
	}
	for _, c := range cases {
		w := postChat(NewMux(&mockService{chatErr: c.err}), "/v1/chat/completions", chatBody)
		if w.Code != c.code {
			t.Fatalf("%v: status=%d", c.err, w.Code)
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("json: %v", err)
		}
		if body.Error.Type != c.typ || body.Error.Code != c.code || body.Error.Message != c.err.Error() {
			t.Fatalf("%v: body=%+v", c.err, body)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type=%q", ct)
		}
	}
}

func TestChatUnsupportedMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(chatBody))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	big := make([]byte, (1<<20)+10)
	for i := range big {
		big[i] = 'a'
	}
	w := postChat(NewMux(&mockService{}), "/v1/chat/completions", string(big))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestContentTypeCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(chatBody))
	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with mixed-case content-type, got %d", w.Code)
	}
}
