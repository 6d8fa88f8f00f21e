// Package watch submits .docx files dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/intake"
)

// DefaultDebounce is how long a file must stay quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	Dir      string
	Debounce time.Duration
	// DoneDir receives files that were processed successfully. Empty leaves
	// them in place.
	DoneDir string
	Handle  Handler
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Watcher debounces filesystem events per file and runs Handle for each .docx
// that stopped changing. Files are handled one at a time.
type Watcher struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]clock.Timer
	stopped bool

	procMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates a watcher. Run starts it.
func New(cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		log:     log.With("component", "watch", "dir", cfg.Dir),
		pending: make(map[string]clock.Timer),
	}
}

// Run watches until ctx is done. Files already in the directory are queued
// on start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.schedule(ctx, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}
	w.log.Info("watching for documents", "debounce", w.cfg.Debounce)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				w.schedule(ctx, event.Name)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				w.cancel(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// Eligible reports whether a file name is a document the watcher submits.
// Office lock files and hidden files are skipped.
func Eligible(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return intake.IsDocx(base, intake.DetectContentType(base, nil))
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	if !Eligible(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = w.cfg.Clock.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.process(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.procMu.Lock()
	defer w.procMu.Unlock()

	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	log := w.log.With("file", filepath.Base(path))
	start := time.Now()
	if err := w.cfg.Handle(ctx, path); err != nil {
		log.Warn("document failed", "err", err)
		return
	}
	log.Info("document processed", "duration", time.Since(start))

	if w.cfg.DoneDir == "" {
		return
	}
	if err := os.MkdirAll(w.cfg.DoneDir, 0755); err != nil {
		log.Warn("cannot create done directory", "err", err)
		return
	}
	if err := os.Rename(path, filepath.Join(w.cfg.DoneDir, filepath.Base(path))); err != nil {
		log.Warn("cannot move processed document", "err", err)
	}
}
