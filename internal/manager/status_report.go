package manager

import (
	"time"

	"nanochatd/pkg/types"
)

// Health is the readiness view served by /health.
func (m *Manager) Health() types.HealthResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.HealthResponse{
		Status:  string(m.state),
		Ready:   m.state == StateReady && m.handle != nil,
		Backend: string(m.cfg.Kind),
	}
	if m.handle != nil {
		resp.Device = m.handle.Info.Device
	}
	if m.state == StateError {
		resp.Detail = m.err
	}
	return resp
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		State:            string(m.state),
		Model:            m.cfg.ModelID,
		Backend:          string(m.cfg.Kind),
		QueueLen:         len(m.queueCh) - len(m.genCh),
		Inflight:         len(m.genCh),
		MaxQueueDepth:    cap(m.queueCh),
		Workers:          m.pool.Size(),
		TokensTotal:      m.tokensTotal.Load(),
		GenerationsTotal: m.generationsTotal.Load(),
		LastError:        m.err,
		UptimeSeconds:    int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix:   now.Unix(),
	}
	if resp.QueueLen < 0 {
		resp.QueueLen = 0
	}
	if m.handle != nil {
		resp.Device = m.handle.Info.Device
		resp.VocabSize = m.handle.Info.VocabSize
		resp.LoadMillis = m.loadDur.Milliseconds()
	}
	return resp
}

// Info describes the served model for /info. Name and Version are left to
// the caller.
func (m *Manager) Info() types.InfoResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.InfoResponse{Model: m.cfg.ModelID, Backend: string(m.cfg.Kind)}
	if m.handle != nil {
		resp.Device = m.handle.Info.Device
		resp.Path = m.handle.Info.Path
		resp.VocabSize = m.handle.Info.VocabSize
	}
	return resp
}
