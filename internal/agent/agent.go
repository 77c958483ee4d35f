package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"lb-heartbeat-agent/internal/collector"
	"lb-heartbeat-agent/internal/config"
	"lb-heartbeat-agent/internal/heartbeat"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	scheduler *collector.Scheduler
	health    *HealthStatus
	probe     *health.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	stats := collector.SelectStatsCollector(context.Background(), logger, cfg.CPUSampleWindow)
	return newAgent(cfg, logger, heartbeat.NewSender(
		cfg,
		stats,
		collector.NewProxyStatusProbe(cfg.ProxyStatusURL, nil),
		&http.Client{},
		logger,
	)), nil
}

func newAgent(cfg config.Config, logger *slog.Logger, sender collector.HeartbeatSender) *Agent {
	a := &Agent{
		cfg:    cfg,
		logger: logger,
		health: NewHealthStatus(),
		probe:  newProbeHealth(),
	}
	wrapped := &healthSender{sender: sender, health: a.health, probe: a.probe}
	a.scheduler = collector.NewScheduler(logger, wrapped, cfg.Interval, cfg.ErrorBackoff)
	return a
}

// Run blocks until the loop stops. SIGINT/SIGTERM stop the loop after the
// current cycle; a second signal or the shutdown timeout forces the return.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting heartbeat service", "name", a.cfg.Name, "version", a.cfg.AgentVersion)
	a.logger.Info("reporting to controller", "url", a.cfg.ControllerURL)
	a.logger.Info("heartbeat interval", "interval", a.cfg.Interval)
	if !a.cfg.HasController() {
		a.logger.Error("MAIN_SERVER_URL or API_KEY not configured, heartbeats will be skipped")
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Startup failure or parent ctx cancelled.
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, finishing current cycle", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Debug("final health", "snapshot", a.health.Snapshot())
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, hOpts)
	if cfg.LogJSON {
		h = slog.NewJSONHandler(os.Stdout, hOpts)
	}
	return slog.New(h).With("service", "lb-heartbeat")
}

// healthSender records each outcome for the probe listener.
type healthSender struct {
	sender collector.HeartbeatSender
	health *HealthStatus
	probe  *health.Server
}

func (s *healthSender) Send(ctx context.Context) error {
	// A panic is still a failed cycle; the scheduler recovers it after us.
	defer func() {
		if r := recover(); r != nil {
			s.health.MarkFailure(time.Now().UTC())
			setProbeStatus(s.probe, false)
			panic(r)
		}
	}()

	err := s.sender.Send(ctx)
	if err != nil {
		s.health.MarkFailure(time.Now().UTC())
	} else {
		s.health.MarkSuccess(time.Now().UTC())
	}
	setProbeStatus(s.probe, err == nil)
	return err
}
