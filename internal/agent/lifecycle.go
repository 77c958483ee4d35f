package agent

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"
)

func (a *Agent) run(ctx context.Context) error {
	var probeLn net.Listener
	if strings.TrimSpace(a.cfg.ProbeListenAddr) != "" {
		ln, err := a.listenProbe()
		if err != nil {
			return err
		}
		probeLn = ln
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if probeLn != nil {
		g.Go(func() error {
			return a.serveProbe(gctx, probeLn)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
