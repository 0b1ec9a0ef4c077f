package app

import "sync/atomic"

// Metrics are process-wide counters for the presence subsystem.
type Metrics struct {
	Connections    int64
	AuthFailures   int64
	Joins          int64
	MovesAccepted  int64
	MovesThrottled int64
	MovesRejected  int64
	MovesDropped   int64 // store failures
	MapChanges     int64
	MapResets      int64
	FramesSent     int64
	FramesDropped  int64
	Kicks          int64
}

func (m *Metrics) IncConnections()    { atomic.AddInt64(&m.Connections, 1) }
func (m *Metrics) IncAuthFailures()   { atomic.AddInt64(&m.AuthFailures, 1) }
func (m *Metrics) IncJoins()          { atomic.AddInt64(&m.Joins, 1) }
func (m *Metrics) IncMovesAccepted()  { atomic.AddInt64(&m.MovesAccepted, 1) }
func (m *Metrics) IncMovesThrottled() { atomic.AddInt64(&m.MovesThrottled, 1) }
func (m *Metrics) IncMovesRejected()  { atomic.AddInt64(&m.MovesRejected, 1) }
func (m *Metrics) IncMovesDropped()   { atomic.AddInt64(&m.MovesDropped, 1) }
func (m *Metrics) IncMapChanges()     { atomic.AddInt64(&m.MapChanges, 1) }
func (m *Metrics) IncMapResets()      { atomic.AddInt64(&m.MapResets, 1) }
func (m *Metrics) IncKicks()          { atomic.AddInt64(&m.Kicks, 1) }
func (m *Metrics) AddFrames(sent, dropped int) {
	atomic.AddInt64(&m.FramesSent, int64(sent))
	atomic.AddInt64(&m.FramesDropped, int64(dropped))
}

// Snapshot returns a read-only copy for the HTTP API.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"connections":     atomic.LoadInt64(&m.Connections),
		"auth_failures":   atomic.LoadInt64(&m.AuthFailures),
		"joins":           atomic.LoadInt64(&m.Joins),
		"moves_accepted":  atomic.LoadInt64(&m.MovesAccepted),
		"moves_throttled": atomic.LoadInt64(&m.MovesThrottled),
		"moves_rejected":  atomic.LoadInt64(&m.MovesRejected),
		"moves_dropped":   atomic.LoadInt64(&m.MovesDropped),
		"map_changes":     atomic.LoadInt64(&m.MapChanges),
		"map_resets":      atomic.LoadInt64(&m.MapResets),
		"frames_sent":     atomic.LoadInt64(&m.FramesSent),
		"frames_dropped":  atomic.LoadInt64(&m.FramesDropped),
		"kicks":           atomic.LoadInt64(&m.Kicks),
	}
}
