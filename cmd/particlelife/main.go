// Command particlelife runs the GPU particle-life simulation headless.
//
// It opens a GPU backend, compiles the simulation kernels, spawns one
// particle system drawing into an offscreen target and runs the frame
// loop until the frame limit or an interrupt.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/particlelife"
	"github.com/gogpu/particlelife/backend/native"
	"github.com/gogpu/particlelife/gpucore"
	"github.com/gogpu/particlelife/internal/app"
	"github.com/gogpu/particlelife/internal/metrics"
	"github.com/gogpu/particlelife/internal/particle"
	"github.com/gogpu/particlelife/internal/pipeline"
	"github.com/gogpu/particlelife/internal/watch"
	"github.com/gogpu/particlelife/internal/world"
)

func main() {
	var (
		configPath  = flag.String("config", "", "load configuration from a .json/.yaml file or preset name")
		watchConfig = flag.Bool("watch", false, "reload -config when it changes")
		backend     = flag.String("backend", "vulkan", "GPU backend: vulkan, noop or record")
		width       = flag.Uint("width", app.DefaultWidth, "render target width")
		height      = flag.Uint("height", app.DefaultHeight, "render target height")
		frames      = flag.Int("frames", 0, "stop after this many frames (0 = until interrupted)")
		fps         = flag.Int("fps", 60, "frames per second")
		n           = flag.Int("n", 0, "override particle count")
		seed        = flag.Uint64("seed", 0, "random seed (0 = time based)")
		bounce      = flag.Bool("bounce", false, "bounce particles off the edges instead of wrapping")
		metricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on this address")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	particlelife.SetLogger(logger)

	cfg := runConfig{
		configPath:  *configPath,
		watch:       *watchConfig,
		backend:     *backend,
		width:       uint32(*width),
		height:      uint32(*height),
		frames:      *frames,
		fps:         *fps,
		n:           *n,
		seed:        *seed,
		bounce:      *bounce,
		metricsAddr: *metricsAddr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("particlelife: %v", err)
	}
}

type runConfig struct {
	configPath  string
	watch       bool
	backend     string
	width       uint32
	height      uint32
	frames      int
	fps         int
	n           int
	seed        uint64
	bounce      bool
	metricsAddr string
}

func run(ctx context.Context, rc runConfig, logger *slog.Logger) error {
	if rc.seed == 0 {
		rc.seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(rc.seed, rc.seed>>32))

	simCfg, path, err := loadConfig(rc.configPath, rng)
	if err != nil {
		return err
	}
	if rc.n > 0 {
		simCfg.N = rc.n
	}
	if err := simCfg.Validate(); err != nil {
		return err
	}

	adapter, closeAdapter, err := openBackend(rc.backend)
	if err != nil {
		return err
	}
	defer closeAdapter()

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	opts := app.Options{
		Width:   rc.width,
		Height:  rc.height,
		Seed:    rc.seed,
		Logger:  logger,
		Metrics: collectors,
	}
	if rc.bounce {
		opts.Defines = pipeline.Defines{"BOUNCE_EDGES": 1}
	}
	if rc.backend != "vulkan" {
		// Neither the noop device nor the recorder executes SPIR-V.
		opts.Compiler = pipeline.CompilerFunc(func(string) ([]uint32, error) {
			return []uint32{0x07230203, 0x00010000}, nil
		})
	}
	plugin, err := app.New(adapter, opts)
	if err != nil {
		return err
	}
	defer plugin.Close()

	target, err := plugin.CreateTarget(rc.width, rc.height)
	if err != nil {
		return err
	}
	w := world.New(simCfg, rng)
	w.Spawn(target)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = plugin.WaitReady(waitCtx)
	cancel()
	if err != nil {
		// The nodes keep failed kernels suspended; report and keep running.
		logger.Error("kernels failed to compile", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	if rc.metricsAddr != "" {
		srv := metrics.NewServer(rc.metricsAddr, reg)
		g.Go(func() error {
			logger.Info("serving metrics", "addr", rc.metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if rc.watch && path != "" {
		watcher, err := watch.New(path, w.SetConfig, watch.Options{Rng: rng, Logger: logger, Metrics: collectors})
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(runCtx) })
	}

	g.Go(func() error {
		defer stopRun()
		runner := &app.Runner{Plugin: plugin, FPS: rc.fps, Frames: rc.frames, Logger: logger}
		return runner.Run(runCtx, w)
	})

	err = g.Wait()
	logger.Info("stopped", "frames", plugin.Frames())
	return err
}

// loadConfig resolves path as a file or as a preset name under
// particle.PresetDir. An empty path yields a random default configuration.
func loadConfig(path string, rng *rand.Rand) (particle.SimulationConfig, string, error) {
	if path == "" {
		return particle.Default(rng), "", nil
	}
	if particle.CheckFormat(path) != nil {
		preset, err := particle.PresetPath(particle.PresetDir, path)
		if err != nil {
			return particle.SimulationConfig{}, "", err
		}
		path = preset
	}
	cfg, err := particle.LoadConfig(path, rng)
	if err != nil {
		return particle.SimulationConfig{}, "", err
	}
	return cfg, path, nil
}

func openBackend(name string) (gpucore.GPUAdapter, func(), error) {
	switch name {
	case "vulkan":
		dev, err := native.OpenStandalone()
		if err != nil {
			return nil, nil, err
		}
		return dev.Adapter(), dev.Close, nil
	case "noop":
		dev, err := native.OpenNoop()
		if err != nil {
			return nil, nil, err
		}
		return dev.Adapter(), dev.Close, nil
	case "record":
		return gpucore.NewRecordingAdapter(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}
