package types

// Model is one entry of GET /v1/models.
type Model struct {
	// Stable identifier for the model.
	// example: nanochat-d32
	ID string `json:"id" example:"nanochat-d32"`
	// Always model.
	Object string `json:"object" example:"model"`
	// example: 1700000000
	Created int64 `json:"created" example:"1700000000"`
	// example: nanochatd
	OwnedBy string `json:"owned_by" example:"nanochatd"`
	// Backend able to serve the model: tensor or quantized.
	// example: quantized
	Backend string `json:"backend,omitempty" example:"quantized"`
	// Path on disk, when known.
	// example: /home/user/models/nanochat.Q4_K_M.gguf
	Path string `json:"path,omitempty" example:"/home/user/models/nanochat.Q4_K_M.gguf"`
	// Quantization level parsed from the file name.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Architecture from GGUF metadata.
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// True for the model currently served.
	Active bool `json:"active,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /v1/models.
type ModelsResponse struct {
	// Always list.
	Object string  `json:"object" example:"list"`
	Data   []Model `json:"data"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// loading, ready or error.
	// example: ready
	Status string `json:"status" example:"ready"`
	Ready  bool   `json:"ready"`
	// example: quantized
	Backend string `json:"backend" example:"quantized"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Failure detail while status is error.
	Detail string `json:"detail,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state: loading, ready or error.
	// example: ready
	State string `json:"state" example:"ready"`
	// example: nanochat-d32
	Model string `json:"model" example:"nanochat-d32"`
	// example: quantized
	Backend string `json:"backend" example:"quantized"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// example: 65536
	VocabSize int `json:"vocab_size" example:"65536"`
	// Requests waiting for a generation slot.
	QueueLen int `json:"queue_len"`
	// Generations currently running.
	Inflight int `json:"inflight"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Forward-pass worker slots.
	// example: 4
	Workers int `json:"workers" example:"4"`
	// Total generated tokens since start.
	TokensTotal uint64 `json:"tokens_total"`
	// Completed generations since start.
	GenerationsTotal uint64 `json:"generations_total"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Load duration in milliseconds, once ready.
	LoadMillis int64 `json:"load_ms,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	// example: nanochatd
	Name string `json:"name" example:"nanochatd"`
	// example: 0.1.0
	Version string `json:"version" example:"0.1.0"`
	// example: sdobson/nanochat
	Model string `json:"model" example:"sdobson/nanochat"`
	// example: quantized
	Backend string `json:"backend" example:"quantized"`
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Model file in use, once loaded.
	Path string `json:"path,omitempty"`
	// example: 65536
	VocabSize int `json:"vocab_size,omitempty" example:"65536"`
}
