package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nanochatd/internal/generator"
	"nanochatd/pkg/types"
)

type Manager struct {
	cfg ManagerConfig
	log zerolog.Logger

	mu         sync.RWMutex
	state      State
	err        string
	handle     *Handle
	loadDur    time.Duration
	loadOnce   sync.Once
	loaded     chan struct{}
	loadCancel func()

	pool *generator.Pool
	// Queueing primitives
	genCh   chan struct{} // running generations
	queueCh chan struct{} // queue slots

	startTime        time.Time
	tokensTotal      atomic.Uint64
	generationsTotal atomic.Uint64
	closed           atomic.Bool
}

func newManager(cfg ManagerConfig) *Manager {
	pool := generator.NewPool(cfg.Workers)
	return &Manager{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		state:     StateLoading,
		loaded:    make(chan struct{}),
		pool:      pool,
		genCh:     make(chan struct{}, pool.Size()),
		queueCh:   make(chan struct{}, cfg.MaxQueueDepth),
		startTime: time.Now(),
	}
}

// Ready reports whether the model handle is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.handle != nil
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err}
	if m.handle != nil {
		s.Info = m.handle.Info
	}
	return s
}

// ListModels returns the served model first, then local models.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	served := types.Model{
		ID:      m.cfg.ModelID,
		Object:  "model",
		Created: m.startTime.Unix(),
		OwnedBy: "nanochatd",
		Backend: string(m.cfg.Kind),
		Active:  true,
	}
	if m.handle != nil {
		served.Path = m.handle.Info.Path
	}
	m.mu.RUnlock()
	out := make([]types.Model, 0, len(m.cfg.Registry)+1)
	out = append(out, served)
	for _, mdl := range m.cfg.Registry {
		if served.Path != "" && mdl.Path == served.Path {
			continue
		}
		out = append(out, mdl)
	}
	return out
}

// Close cancels a pending load and releases the model handle.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	cancel := m.loadCancel
	h := m.handle
	m.handle = nil
	if m.state == StateReady {
		m.state = StateError
		m.err = "closed"
	}
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if h == nil {
		return nil
	}
	m.log.Info().Str("model", m.cfg.ModelID).Msg("closing model")
	return h.Model.Close()
}
