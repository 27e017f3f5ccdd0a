package resultcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/esm-dev/esm-resolver/resolver"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// WatchOptions configures Cache.Watch.
type WatchOptions struct {
	// Debounce is the quiet period after the last event before the pending
	// events are applied.
	Debounce time.Duration
	// OnInvalidate is called after each batch of events with the number of
	// dropped results.
	OnInvalidate func(events []resolver.FileEvent, n int)
}

// Watch watches the directory tree of root and invalidates the cache on
// every filesystem change until ctx is done.
func (c *Cache) Watch(ctx context.Context, root string, options WatchOptions) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warnf("watch: skip %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	var (
		lock    sync.Mutex
		pending []resolver.FileEvent
		timer   *time.Timer
	)
	flush := func() {
		lock.Lock()
		events := pending
		pending = nil
		lock.Unlock()
		if len(events) == 0 || ctx.Err() != nil {
			return
		}
		n := c.Invalidate(events...)
		if options.OnInvalidate != nil {
			options.OnInvalidate(events, n)
		}
	}
	defer func() {
		lock.Lock()
		if timer != nil {
			timer.Stop()
		}
		lock.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			event, ok := fileEventOf(evt)
			if !ok {
				continue
			}
			if event.Type == resolver.EventCreate {
				// new directories are watched too
				if fi, err := os.Stat(evt.Name); err == nil && fi.IsDir() {
					if err := fsw.Add(evt.Name); err != nil {
						log.Warnf("watch: add %s: %v", evt.Name, err)
					}
				}
			}
			lock.Lock()
			pending = append(pending, event)
			if timer == nil {
				timer = time.AfterFunc(debounce, flush)
			} else {
				timer.Reset(debounce)
			}
			lock.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch: %v", err)
		}
	}
}

func fileEventOf(evt fsnotify.Event) (resolver.FileEvent, bool) {
	var typ resolver.EventType
	switch {
	case evt.Has(fsnotify.Create):
		typ = resolver.EventCreate
	case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
		typ = resolver.EventDelete
	case evt.Has(fsnotify.Write):
		typ = resolver.EventUpdate
	default:
		return resolver.FileEvent{}, false
	}
	return resolver.FileEvent{Type: typ, Path: evt.Name}, true
}
