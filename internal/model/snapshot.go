package model

import "math"

// StatusOnline is the only status this agent ever reports.
const StatusOnline = "online"

// StatsSnapshot is the set of host metrics gathered in one cycle.
// Optional fields are nil when they could not be measured.
type StatsSnapshot struct {
	CurrentConnections int      `json:"current_connections"`
	CPUUsage           *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage        *float64 `json:"memory_usage,omitempty"`
	BandwidthIn        *uint64  `json:"bandwidth_in,omitempty"`
	BandwidthOut       *uint64  `json:"bandwidth_out,omitempty"`
	Status             string   `json:"status"`
}

// MinimalSnapshot is what a degraded collector reports.
func MinimalSnapshot() StatsSnapshot {
	return StatsSnapshot{CurrentConnections: 0, Status: StatusOnline}
}

// Heartbeat is the JSON body delivered to the controller.
type Heartbeat struct {
	StatsSnapshot
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// ProxyStatus is the subset of the local proxy status page we consume.
type ProxyStatus struct {
	ActiveConnections int
}

// HeartbeatAck is the controller's reply to an accepted heartbeat.
type HeartbeatAck struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID       int64  `json:"id"`
		Status   string `json:"status"`
		IsActive bool   `json:"is_active"`
	} `json:"data"`
}

// Percent rounds v to two decimals and returns a pointer for optional fields.
func Percent(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

func Counter(v uint64) *uint64 {
	return &v
}
