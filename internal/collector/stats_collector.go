package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"lb-heartbeat-agent/internal/model"
)

// ErrStatsDegraded marks a snapshot that fell back to MinimalSnapshot.
var ErrStatsDegraded = errors.New("host stats degraded")

// StatsCollector gathers host-level metrics. The returned snapshot is always
// well formed; a non-nil error only explains why it was degraded.
type StatsCollector interface {
	Collect(ctx context.Context) (model.StatsSnapshot, error)
}

// HostCollector reads CPU, memory, connection and bandwidth figures through
// gopsutil.
type HostCollector struct {
	cpuWindow time.Duration
}

// NewHostCollector samples CPU over window. A zero window compares against
// the previous call instead of blocking.
func NewHostCollector(window time.Duration) *HostCollector {
	if window < 0 {
		window = 0
	}
	return &HostCollector{cpuWindow: window}
}

func (c *HostCollector) Collect(ctx context.Context) (model.StatsSnapshot, error) {
	snap, err := c.collect(ctx)
	if err != nil {
		return model.MinimalSnapshot(), fmt.Errorf("%w: %v", ErrStatsDegraded, err)
	}
	return snap, nil
}

func (c *HostCollector) collect(ctx context.Context) (model.StatsSnapshot, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("net connections: %w", err)
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, c.cpuWindow, false)
	if err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpuPercent) == 0 {
		return model.StatsSnapshot{}, errors.New("cpu percent: no samples")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("virtual memory: %w", err)
	}

	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return model.StatsSnapshot{}, fmt.Errorf("net io counters: %w", err)
	}
	if len(counters) == 0 {
		return model.StatsSnapshot{}, errors.New("net io counters: no interfaces")
	}

	return model.StatsSnapshot{
		CurrentConnections: len(conns),
		CPUUsage:           model.Percent(cpuPercent[0]),
		MemoryUsage:        model.Percent(vm.UsedPercent),
		BandwidthIn:        model.Counter(counters[0].BytesRecv),
		BandwidthOut:       model.Counter(counters[0].BytesSent),
		Status:             model.StatusOnline,
	}, nil
}

// MinimalCollector is used when host stats are unavailable on this platform.
type MinimalCollector struct{}

func (MinimalCollector) Collect(context.Context) (model.StatsSnapshot, error) {
	return model.MinimalSnapshot(), nil
}

// SelectStatsCollector checks once whether host stats can be read and picks
// the implementation for the lifetime of the process.
func SelectStatsCollector(ctx context.Context, logger *slog.Logger, window time.Duration) StatsCollector {
	if _, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.Warn("host stats not available, using basic stats", "error", err)
		return MinimalCollector{}
	}
	return NewHostCollector(window)
}
