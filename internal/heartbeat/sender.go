// Package heartbeat builds and delivers the periodic status report sent from
// this load balancer to the controller.
package heartbeat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"lb-heartbeat-agent/internal/config"
	"lb-heartbeat-agent/internal/model"
)

// StatsSource supplies the host-level part of a heartbeat.
type StatsSource interface {
	Collect(ctx context.Context) (model.StatsSnapshot, error)
}

// ProxyProbe supplies the proxy's own connection count, which overrides the
// host figure when available.
type ProxyProbe interface {
	Probe(ctx context.Context) (model.ProxyStatus, error)
}

// Sender performs one heartbeat per Send call: collect, merge, ping, POST.
type Sender struct {
	cfg    config.Config
	stats  StatsSource
	proxy  ProxyProbe
	client *Client
	logger *slog.Logger
}

// NewSender wires a sender. proxy may be nil when no local status page exists.
func NewSender(cfg config.Config, stats StatsSource, proxy ProxyProbe, httpClient *http.Client, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		stats:  stats,
		proxy:  proxy,
		client: NewClient(cfg.ControllerURL, cfg.APIKey, cfg.AgentVersion, httpClient),
		logger: logger,
	}
}

// Send returns nil only when the controller answered 200. Failures are
// *Error values; config, transport and status failures are logged here,
// unexpected ones are left to the caller.
func (s *Sender) Send(ctx context.Context) error {
	if !s.cfg.HasController() {
		s.logger.Error("heartbeat configuration error", "error", ErrMissingConfig)
		return configError(ErrMissingConfig)
	}

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID)

	snap, err := s.stats.Collect(ctx)
	if err != nil {
		logger.Warn("host stats unavailable, using basic stats", "error", err)
	}

	if s.proxy != nil {
		status, err := s.proxy.Probe(ctx)
		if err != nil {
			logger.Debug("could not get proxy stats", "error", err)
		} else {
			snap.CurrentConnections = status.ActiveConnections
		}
	}

	latency, err := s.client.Ping(ctx)
	if err != nil {
		s.logFailure(logger, err)
		return err
	}

	hb := model.Heartbeat{StatsSnapshot: snap, ResponseTimeMs: latency.Milliseconds()}
	ack, err := s.client.Deliver(ctx, hb, requestID)
	if err != nil {
		s.logFailure(logger, err)
		return err
	}

	logger.Info("heartbeat sent successfully",
		"connections", hb.CurrentConnections,
		"cpu_percent", valueOrZero(hb.CPUUsage),
		"memory_percent", valueOrZero(hb.MemoryUsage),
		"response_time_ms", hb.ResponseTimeMs,
		"controller_status", ack.Data.Status,
	)
	return nil
}

func (s *Sender) logFailure(logger *slog.Logger, err error) {
	he, ok := err.(*Error)
	if !ok {
		return
	}
	switch he.Kind {
	case KindConfig:
		logger.Error("heartbeat configuration error", "error", he.Err)
	case KindTransport:
		logger.Error("failed to send heartbeat", "error", he.Err)
	case KindStatus:
		logger.Error("heartbeat failed", "status", he.StatusCode, "body", he.Body)
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
