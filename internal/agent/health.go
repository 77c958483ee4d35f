package agent

import (
	"sync/atomic"
	"time"
)

// HealthStatus is written by the heartbeat loop and read by the probe
// listener.
type HealthStatus struct {
	lastAttemptAt       atomic.Int64
	lastSuccessAt       atomic.Int64
	lastSucceeded       atomic.Bool
	consecutiveFailures atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{}
}

func (h *HealthStatus) MarkSuccess(ts time.Time) {
	h.lastAttemptAt.Store(ts.UnixNano())
	h.lastSuccessAt.Store(ts.UnixNano())
	h.lastSucceeded.Store(true)
	h.consecutiveFailures.Store(0)
}

func (h *HealthStatus) MarkFailure(ts time.Time) {
	h.lastAttemptAt.Store(ts.UnixNano())
	h.lastSucceeded.Store(false)
	h.consecutiveFailures.Add(1)
}

// Healthy reports whether the most recent heartbeat was accepted.
func (h *HealthStatus) Healthy() bool {
	return h.lastSucceeded.Load()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"last_heartbeat_ok":    h.lastSucceeded.Load(),
		"consecutive_failures": h.consecutiveFailures.Load(),
	}
	if v := h.lastAttemptAt.Load(); v > 0 {
		out["last_attempt_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastSuccessAt.Load(); v > 0 {
		out["last_success_at"] = time.Unix(0, v).UTC()
	}
	return out
}
