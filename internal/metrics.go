package internal

import (
	"sync/atomic"
)

// Metrics holds process wide counters reported on /metrics.
type Metrics struct {
	registrations atomic.Uint64
	logins        atomic.Uint64
	activeConns   atomic.Int64
	uploads       atomic.Uint64
	uploadBytes   atomic.Uint64
	evictedFiles  atomic.Uint64
	evictedBytes  atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRegistration() {
	m.registrations.Add(1)
}

func (m *Metrics) IncLogin() {
	m.logins.Add(1)
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) AddUpload(size int64) {
	m.uploads.Add(1)
	m.uploadBytes.Add(uint64(size))
}

func (m *Metrics) AddEvicted(files int, bytes int64) {
	m.evictedFiles.Add(uint64(files))
	m.evictedBytes.Add(uint64(bytes))
}

// Snapshot returns the counters keyed by their reported names.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"registrations_total": m.registrations.Load(),
		"logins_total":        m.logins.Load(),
		"active_connections":  m.activeConns.Load(),
		"uploads_total":       m.uploads.Load(),
		"upload_bytes_total":  m.uploadBytes.Load(),
		"evicted_files_total": m.evictedFiles.Load(),
		"evicted_bytes_total": m.evictedBytes.Load(),
	}
}
