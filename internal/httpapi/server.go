package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nanochatd/internal/streaming"
	"nanochatd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Health() types.HealthResponse
	Info() types.InfoResponse
	Ready() bool
	// ChatCompletion writes the whole response to w. A returned error means
	// nothing was written, unless w itself failed.
	ChatCompletion(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}

	chat := chatHandler(svc)
	r.Post("/v1/chat/completions", chat)
	r.Post("/chat/completions", chat)

	// JSON endpoints; SSE is never compressed
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		models := modelsHandler(svc)
		r.Get("/v1/models", models)
		r.Get("/models", models)
		r.Get("/health", healthHandler(svc))
		r.Get("/status", statusHandler(svc))
		r.Get("/info", infoHandler(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(svc.Health().Status))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

func corsOptions() cors.Options {
	o := cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: corsAllowedMethods,
		AllowedHeaders: corsAllowedHeaders,
		MaxAge:         300,
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"*"}
	}
	if len(o.AllowedMethods) == 0 {
		o.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(o.AllowedHeaders) == 0 {
		o.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
	return o
}

// chatHandler serves an OpenAI-compatible chat completion.
//
// @Summary      Create a chat completion
// @Description  Streams chat.completion.chunk events as text/event-stream unless stream is false.
// @Tags         chat
// @Accept       json
// @Produce      text/event-stream
// @Produce      json
// @Param        request  body      types.ChatCompletionRequest  true  "Chat request"
// @Success      200      {object}  types.ChatCompletionChunk
// @Failure      400      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/chat/completions [post]
func chatHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// an oversized body is reported the same way
			writeJSONError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
			return
		}

		start := time.Now()
		rid := middleware.GetReqID(r.Context())
		lvl := requestLogLevel(r)
		if lvl >= LevelInfo {
			logger().Info().Str("request_id", rid).Str("path", r.URL.Path).
				Int("messages", len(req.Messages)).Bool("stream", req.Streaming()).Msg("chat start")
		}

		cw := &chatWriter{w: w, stream: req.Streaming()}
		writer := io.Writer(cw)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(cw, &loggingLineWriter{id: rid})
		}
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
		defer cancel()
		err := svc.ChatCompletion(ctx, req, writer, flush)
		status := http.StatusOK
		switch {
		case err == nil:
		case cw.started || r.Context().Err() != nil:
			// the response is already committed or the client is gone
			status = streaming.StatusOf(err)
		default:
			var busy interface{ Reason() string }
			if streaming.StatusOf(err) == http.StatusTooManyRequests {
				reason := ""
				if errors.As(err, &busy) {
					reason = busy.Reason()
				}
				IncrementBackpressure(reason)
			}
			status = writeServiceError(w, err)
		}

		if lvl >= LevelInfo || (lvl >= LevelError && status >= http.StatusInternalServerError) {
			ev := logger().Info()
			if status >= http.StatusInternalServerError {
				ev = logger().Error()
			}
			ev.Str("request_id", rid).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("chat end")
		}
	}
}

// chatWriter commits the response headers on the first write, so an error
// returned before any output can still choose the status.
type chatWriter struct {
	w       http.ResponseWriter
	stream  bool
	started bool
}

func (cw *chatWriter) Write(p []byte) (int, error) {
	if !cw.started {
		cw.started = true
		h := cw.w.Header()
		if cw.stream {
			h.Set("Content-Type", streaming.ContentType)
			h.Set("Cache-Control", "no-cache")
			h.Set("X-Accel-Buffering", "no")
		} else {
			h.Set("Content-Type", "application/json")
		}
		cw.w.WriteHeader(http.StatusOK)
	}
	return cw.w.Write(p)
}

// modelsHandler lists the served model and local model files.
//
// @Summary  List models
// @Tags     models
// @Produce  json
// @Success  200  {object}  types.ModelsResponse
// @Router   /v1/models [get]
func modelsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := svc.ListModels()
		if data == nil {
			data = []types.Model{}
		}
		writeJSON(w, types.ModelsResponse{Object: "list", Data: data})
	}
}

// healthHandler reports readiness without blocking on the model load.
//
// @Summary  Health
// @Tags     ops
// @Produce  json
// @Success  200  {object}  types.HealthResponse
// @Router   /health [get]
func healthHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Health())
	}
}

// statusHandler returns queue, load and counter state.
//
// @Summary  Status
// @Tags     ops
// @Produce  json
// @Success  200  {object}  types.StatusResponse
// @Router   /status [get]
func statusHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	}
}

// infoHandler describes the server and the served model.
//
// @Summary  Info
// @Tags     ops
// @Produce  json
// @Success  200  {object}  types.InfoResponse
// @Router   /info [get]
func infoHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := svc.Info()
		in.Name, in.Version = serverName, serverVersion
		writeJSON(w, in)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(b, '\n'))
}
