package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/particlelife/internal/world"
)

// Runner drives a Plugin from a World. The simulation side extracts a
// snapshot into a mailbox at a fixed rate; the render side takes the
// latest snapshot and renders a frame with it.
type Runner struct {
	Plugin *Plugin

	// FPS is the extraction rate. Default 60.
	FPS int

	// Frames stops the runner after that many rendered frames. Zero
	// runs until the context is done.
	Frames int

	Logger *slog.Logger
}

// Run blocks until ctx is done or Frames frames have been rendered.
// Frame errors are logged and the loop continues.
func (r *Runner) Run(ctx context.Context, w *world.World) error {
	fps := r.FPS
	if fps <= 0 {
		fps = 60
	}
	interval := time.Second / time.Duration(fps)
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	mailbox := world.NewMailbox()

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		mailbox.Send(w.Extract())
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				mailbox.Send(w.Extract())
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		last := time.Now().Add(-interval)
		for rendered := 0; r.Frames == 0 || rendered < r.Frames; rendered++ {
			var snap world.Snapshot
			select {
			case <-ctx.Done():
				return nil
			case snap = <-mailbox.C():
			}
			now := time.Now()
			dt := float32(now.Sub(last).Seconds())
			last = now
			if err := r.Plugin.Frame(&snap, dt); err != nil {
				log.Warn("app: frame failed", "err", err)
			}
		}
		log.Info("app: frame limit reached", "frames", r.Frames)
		return nil
	})

	return g.Wait()
}
