package collector

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lb-heartbeat-agent/internal/heartbeat"
)

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	inFlight atomic.Int32
	overlap  atomic.Bool
	results  []func() error
	sent     chan struct{}
}

func newFakeSender(results ...func() error) *fakeSender {
	return &fakeSender{results: results, sent: make(chan struct{}, 64)}
}

func (f *fakeSender) Send(ctx context.Context) error {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	n := f.calls
	f.calls++
	var next func() error
	if n < len(f.results) {
		next = f.results[n]
	}
	f.mu.Unlock()

	defer func() { f.sent <- struct{}{} }()
	if next == nil {
		return nil
	}
	return next()
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitSends(t *testing.T, f *fakeSender, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d", i+1)
		}
	}
}

func runScheduler(ctx context.Context, s *Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestSchedulerSendsImmediatelyThenOnInterval(t *testing.T) {
	sender := newFakeSender()
	s := NewScheduler(discardLogger(), sender, 20*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 3)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State = %v, want stopped", s.State())
	}
	if sender.overlap.Load() {
		t.Error("sends overlapped")
	}
}

func TestSchedulerInitialFailureDoesNotAbortStartup(t *testing.T) {
	sender := newFakeSender(func() error {
		return &heartbeat.Error{Kind: heartbeat.KindTransport, Err: errors.New("connection refused")}
	})
	s := NewScheduler(discardLogger(), sender, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 2)
	cancel()
	<-done
}

func TestSchedulerStopsDuringSleepWithoutSending(t *testing.T) {
	sender := newFakeSender()
	s := NewScheduler(discardLogger(), sender, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 1)
	deadline := time.Now().Add(time.Second)
	for s.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop during inter-tick sleep")
	}
	if got := sender.Calls(); got != 1 {
		t.Errorf("Send calls = %d, want 1 (no send after shutdown)", got)
	}
}

func TestSchedulerSendInFlightIgnoresShutdown(t *testing.T) {
	var sawCancel atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	sender := newFakeSender(func() error { return nil })
	s := NewScheduler(discardLogger(), senderFunc(func(ctx context.Context) error {
		close(started)
		<-release
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return sender.Send(ctx)
	}), time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	<-started
	cancel()
	close(release)
	<-done

	if sawCancel.Load() {
		t.Error("in-flight send observed shutdown cancellation")
	}
	if sender.Calls() != 1 {
		t.Errorf("Send calls = %d, want 1", sender.Calls())
	}
}

func TestSchedulerBacksOffOnUnexpectedError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sender := newFakeSender(
		nil,
		func() error { return errors.New("boom") },
	)
	backoff := 150 * time.Millisecond
	s := NewScheduler(logger, sender, 10*time.Millisecond, backoff)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 2)
	failedAt := time.Now()
	waitSends(t, sender, 1)
	gap := time.Since(failedAt)
	cancel()
	<-done

	if gap < backoff {
		t.Errorf("next send after unexpected error came after %v, want >= %v", gap, backoff)
	}
	if !strings.Contains(buf.String(), "error in heartbeat loop") {
		t.Errorf("expected unexpected error to be logged, got: %q", buf.String())
	}
}

func TestSchedulerNoBackoffForKnownFailures(t *testing.T) {
	sender := newFakeSender(
		nil,
		func() error { return &heartbeat.Error{Kind: heartbeat.KindStatus, StatusCode: 500} },
		func() error { return &heartbeat.Error{Kind: heartbeat.KindConfig, Err: heartbeat.ErrMissingConfig} },
	)
	s := NewScheduler(discardLogger(), sender, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 4)
	cancel()
	<-done
}

func TestSchedulerRecoversPanics(t *testing.T) {
	sender := newFakeSender(
		func() error { panic("collector exploded") },
		func() error { panic("again") },
	)
	s := NewScheduler(discardLogger(), sender, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	waitSends(t, sender, 3)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

type senderFunc func(ctx context.Context) error

func (f senderFunc) Send(ctx context.Context) error { return f(ctx) }
