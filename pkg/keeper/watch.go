package keeper

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/core-tools/shell-guardian-go/pkg/errors"
	"github.com/core-tools/shell-guardian-go/pkg/logging"
	"github.com/core-tools/shell-guardian-go/pkg/survival"
)

// storeWatcher turns filesystem events on survival locations into pass
// triggers. Parent directories are watched rather than the files
// themselves, because rename-based repairs and deletions would otherwise
// drop the watch.
type storeWatcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string]bool
	events   chan<- struct{}
	debounce time.Duration
	logger   logging.Logger
}

func newStoreWatcher(store *survival.Store, events chan<- struct{}, logger logging.Logger) (*storeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError("failed to create filesystem watcher", err)
	}

	paths := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, location := range store.Locations() {
		paths[filepath.Clean(location.Path)] = true
		dirs[filepath.Dir(location.Path)] = true
	}

	added := 0
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warnf("Cannot watch directory %s: %v", dir, err)
			continue
		}
		added++
	}
	if added == 0 {
		watcher.Close()
		return nil, errors.NewIOError("no survival location directory could be watched", nil)
	}

	return &storeWatcher{
		watcher:  watcher,
		paths:    paths,
		events:   events,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// run pumps watcher events until the context ends. Events are debounced so
// a burst of writes (or the keeper's own repairs) triggers at most one
// extra pass.
func (w *storeWatcher) run(ctx context.Context) {
	defer w.watcher.Close()

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.paths[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			w.logger.Debugf("Survival location event: %s %s", event.Op, event.Name)
			if debounce == nil {
				debounce = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(w.debounce)
			}

		case <-fire:
			debounce = nil
			select {
			case w.events <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Filesystem watcher error: %v", err)
		}
	}
}
