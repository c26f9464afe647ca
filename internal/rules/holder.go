package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 200 * time.Millisecond

// Holder publishes the current engine and swaps it atomically on reload.
// Evaluations already in flight keep the engine they started with.
type Holder struct {
	cur atomic.Pointer[Engine]
}

// NewHolder returns a holder serving e (the default engine when nil).
func NewHolder(e *Engine) *Holder {
	if e == nil {
		e = Default()
	}
	h := &Holder{}
	h.cur.Store(e)
	return h
}

// Engine returns the engine currently in use.
func (h *Holder) Engine() *Engine { return h.cur.Load() }

// Evaluate delegates to the current engine.
func (h *Holder) Evaluate(ctx MessageContext) Result { return h.cur.Load().Evaluate(ctx) }

// Reload rebuilds the engine from path. On error the previous engine stays.
func (h *Holder) Reload(path string) error {
	e, err := LoadFile(path)
	if err != nil {
		return err
	}
	h.cur.Store(e)
	return nil
}

// Watch reloads the engine whenever the file at path is written or replaced.
// The parent directory is watched so editors that save via rename are seen.
// Watch returns once the watcher is running; it stops when ctx is done.
func (h *Holder) Watch(ctx context.Context, path string) error {
	clean := filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(clean)); err != nil {
		_ = w.Close()
		return fmt.Errorf("rules: watch %s: %w", filepath.Dir(clean), err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		reload := func() {
			if err := h.Reload(clean); err != nil {
				log.Warn().Err(err).Str("path", clean).Msg("rules reload failed; keeping previous engine")
				return
			}
			log.Info().Str("path", clean).Int("rules", len(h.Engine().Rules())).Msg("rules reloaded")
		}
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != clean {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", clean).Msg("rules watcher error")
			}
		}
	}()
	return nil
}
