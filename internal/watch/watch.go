// Package watch re-runs an analysis when its input exports change on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/strikezone/internal/checksum"
)

// DefaultDebounce is the quiet period after the last file event before the
// inputs are re-checked.
const DefaultDebounce = 300 * time.Millisecond

// Callback is invoked after at least one watched file changed content.
type Callback func(ctx context.Context)

// Watch observes the given files until ctx is cancelled and calls cb once
// per burst of changes. The parent directories are watched so editors that
// replace files by rename are still seen. A burst that leaves every file's
// SHA-256 digest unchanged does not trigger cb. The current contents are the
// baseline; cb is not called at startup.
func Watch(ctx context.Context, paths []string, debounce time.Duration, logger *slog.Logger, cb Callback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := w.Add(dir); err != nil {
			return err
		}
		dirs[dir] = struct{}{}
	}

	sums := digests(watched, logger)
	logger.Info("watcher: started", slog.Int("files", len(watched)))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			next := digests(watched, logger)
			if len(next) < len(watched) {
				// A file is mid-replace or gone; wait for the next event.
				continue
			}
			if equal(sums, next) {
				logger.Debug("watcher: inputs unchanged")
				continue
			}
			sums = next
			logger.Info("watcher: inputs changed, re-running")
			cb(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ok := watched[filepath.Clean(ev.Name)]; !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				logger.Debug("watcher: event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// digests returns the checksum of every readable watched file.
func digests(paths map[string]struct{}, logger *slog.Logger) map[string]string {
	out := make(map[string]string, len(paths))
	for p := range paths {
		sum, err := checksum.File(p)
		if err != nil {
			logger.Warn("watcher: checksum failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		out[p] = sum
	}
	return out
}

func equal(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
