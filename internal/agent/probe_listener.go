package agent

import (
	"context"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HeartbeatService is the grpc.health.v1 service name reported by the probe
// listener. The empty service name mirrors it.
const HeartbeatService = "lb.heartbeat"

// listenProbe binds the probe address before the loop starts so a bad
// address fails startup instead of a running agent.
func (a *Agent) listenProbe() (net.Listener, error) {
	addr := strings.TrimSpace(a.cfg.ProbeListenAddr)
	if addr == "" {
		return nil, fmt.Errorf("empty probe listen address")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	a.logger.Info("probe endpoint listening", "addr", ln.Addr().String())
	return ln, nil
}

// serveProbe serves the gRPC health service on ln until ctx is cancelled.
func (a *Agent) serveProbe(ctx context.Context, ln net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, a.probe)

	go func() {
		<-ctx.Done()
		a.probe.Shutdown()
		srv.GracefulStop()
	}()

	if err := srv.Serve(ln); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve probe endpoint %s: %w", ln.Addr(), err)
	}
	return nil
}

func newProbeHealth() *health.Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(HeartbeatService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func setProbeStatus(h *health.Server, ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus("", status)
	h.SetServingStatus(HeartbeatService, status)
}
