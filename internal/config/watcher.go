package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/milanglacier/aichat/internal/logging"
)

// watchDebounce coalesces the burst of events an editor's atomic save
// produces into one reload.
const watchDebounce = 500 * time.Millisecond

// WatchFiles emits on the returned channel whenever one of the given files
// changes, debounced. The watcher runs until ctx is cancelled; the channel
// is closed on shutdown.
func WatchFiles(ctx context.Context, files ...string) <-chan struct{} {
	reload := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.ConfigWarn("failed to create file watcher: %v", err)
		close(reload)
		return reload
	}

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			logging.ConfigWarn("cannot resolve watch path %s: %v", file, err)
			continue
		}
		// Watch the directory: editors replace files on save, and a watch
		// on the old inode would go silent.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			logging.ConfigWarn("cannot watch %s: %v", abs, err)
		}
	}

	watched := make(map[string]bool, len(files))
	for _, file := range files {
		if abs, err := filepath.Abs(file); err == nil {
			watched[abs] = true
		}
	}

	go func() {
		defer watcher.Close()
		defer close(reload)

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if abs, err := filepath.Abs(event.Name); err != nil || !watched[abs] {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					logging.ConfigDebug("change detected: %s", event.Name)
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.ConfigWarn("file watcher error: %v", err)
			}
		}
	}()

	return reload
}
