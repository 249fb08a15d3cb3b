package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"docqa/internal/contextutil"
)

// DefaultDebounce is how long the watcher waits for file events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers onChange when documents under the loader's root change.
// Bursts of events within the debounce window produce a single call.
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	onChange func(ctx context.Context)
}

// NewWatcher creates a new Watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(loader *Loader, debounce time.Duration, onChange func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		loader:   loader,
		debounce: debounce,
		onChange: onChange,
	}
}

// Run watches until ctx is cancelled. onChange runs on the watcher goroutine,
// so a slow rebuild delays the next one instead of overlapping it.
func (w *Watcher) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = fw.Close()
	}()

	if err := w.addTree(fw, w.loader.Root()); err != nil {
		return err
	}
	logger.InfoContext(ctx, "watching documents", "root", w.loader.Root(), "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New directories need their own watch
				_ = w.addTree(fw, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			logger.DebugContext(ctx, "document changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "file watcher error", "error", err)

		case <-fire:
			fire = nil
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.loader.Root(), event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return w.loader.Matches(filepath.ToSlash(rel))
}

// addTree watches dir and every non-hidden directory below it. Paths that are
// not directories are ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.loader.Root() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
