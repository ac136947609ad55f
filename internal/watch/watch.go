// Package watch reloads a particle configuration file when it changes on
// disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/particlelife/internal/metrics"
	"github.com/gogpu/particlelife/internal/particle"
)

// DefaultDebounce is how long the watcher waits after the last write
// before reloading. Editors often save in several steps.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a ConfigWatcher.
type Options struct {
	Debounce time.Duration
	Rng      *rand.Rand
	Logger   *slog.Logger
	Metrics  *metrics.Collectors
}

// ConfigWatcher calls onChange with the freshly loaded configuration each
// time the watched file is written or created.
type ConfigWatcher struct {
	path     string
	onChange func(particle.SimulationConfig)
	opts     Options
	log      *slog.Logger

	// last is the most recently delivered configuration.
	last *particle.SimulationConfig
}

// New returns a watcher for path. Nothing is watched until Run.
func New(path string, onChange func(particle.SimulationConfig), opts Options) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := particle.CheckFormat(abs); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ConfigWatcher{path: abs, onChange: onChange, opts: opts, log: log}, nil
}

// Run watches the file's directory until ctx is done. Watching the
// directory rather than the file survives editors that replace the file
// on save. Reload errors are logged and the previous configuration stays
// in effect.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}
	w.log.Info("watch: watching config", "path", w.path)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watch: stopped", "path", w.path)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				w.log.Debug("watch: change detected", "file", ev.Name, "op", ev.Op.String())
				debounce.Reset(w.opts.Debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: watcher error", "err", err)

		case <-debounce.C:
			w.reload()
		}
	}
}

func (w *ConfigWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

func (w *ConfigWatcher) reload() {
	cfg, err := particle.LoadConfig(w.path, w.opts.Rng)
	w.opts.Metrics.ConfigReload(err)
	if err != nil {
		w.log.Warn("watch: reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}
	if w.last != nil && unchanged(cfg, *w.last) {
		w.log.Debug("watch: config unchanged", "path", w.path)
		return
	}
	w.log.Info("watch: config reloaded", "path", w.path, "n", cfg.N, "m", cfg.M)
	last := cfg.Clone()
	w.last = &last
	w.onChange(cfg)
}

// unchanged reports whether a and b differ by no more than float noise,
// the attraction matrix included.
func unchanged(a, b particle.SimulationConfig) bool {
	return a.Hash() == b.Hash() && a.Equal(b) && a.MatrixEqual(b)
}
