package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"lb-heartbeat-agent/internal/heartbeat"
)

// HeartbeatSender performs one delivery attempt.
type HeartbeatSender interface {
	Send(ctx context.Context) error
}

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Scheduler drives heartbeats on a fixed interval. Sends never overlap: the
// next interval starts only after the previous send returned.
type Scheduler struct {
	logger       *slog.Logger
	sender       HeartbeatSender
	interval     time.Duration
	errorBackoff time.Duration
	state        atomic.Int32
}

func NewScheduler(logger *slog.Logger, sender HeartbeatSender, interval, errorBackoff time.Duration) *Scheduler {
	if errorBackoff < 0 {
		errorBackoff = 0
	}
	return &Scheduler{
		logger:       logger,
		sender:       sender,
		interval:     interval,
		errorBackoff: errorBackoff,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run sends one heartbeat immediately, then one per interval until ctx is
// cancelled. Cancellation is only observed between sends; a send in flight
// is bounded by its own timeouts.
func (s *Scheduler) Run(ctx context.Context) error {
	s.state.Store(int32(StateStarting))

	if err := s.cycle(ctx); err != nil && heartbeat.KindOf(err) == heartbeat.KindUnexpected {
		s.logger.Error("unexpected error sending initial heartbeat", "error", err)
	}
	s.state.Store(int32(StateRunning))

	for {
		if !s.sleepWithContext(ctx, s.interval) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		err := s.cycle(ctx)
		if err == nil || heartbeat.KindOf(err) != heartbeat.KindUnexpected {
			continue
		}
		s.logger.Error("error in heartbeat loop", "error", err, "backoff", s.errorBackoff)
		// The backoff is added before the regular interval sleep, not in place of it.
		if !s.sleepWithContext(ctx, s.errorBackoff) {
			break
		}
	}

	s.state.Store(int32(StateStopping))
	s.logger.Info("heartbeat service stopped")
	s.state.Store(int32(StateStopped))
	return nil
}

func (s *Scheduler) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heartbeat panic: %v", r)
		}
	}()
	return s.sender.Send(context.WithoutCancel(ctx))
}

// sleepWithContext reports whether the full duration elapsed.
func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
