package manager

import (
	"time"

	"github.com/rs/zerolog"

	"nanochatd/internal/backend"
	"nanochatd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	// MaxMessages bounds the conversation length of one request.
	MaxMessages = 500
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// ModelID is echoed in responses and listed first by ListModels.
	ModelID string
	Kind    backend.Kind
	// Registry lists additional local models for /v1/models.
	Registry []types.Model
	// Loader builds the handle; required.
	Loader Loader
	// LazyLoad defers loading until the first request.
	LazyLoad bool
	// Workers bounds concurrent forward passes and running generations;
	// 0 uses the number of CPUs.
	Workers       int
	MaxQueueDepth int
	MaxWait       time.Duration
	// InferTimeout caps one generation; 0 disables.
	InferTimeout time.Duration
	Logger       zerolog.Logger
	Publisher    EventPublisher
	Metrics      *Metrics
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.InferTimeout < 0 {
		cfg.InferTimeout = 0
	}
	if cfg.Kind == "" {
		cfg.Kind = backend.KindQuantized
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "nanochat"
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = defaultMetrics
	}
	return newManager(cfg)
}
