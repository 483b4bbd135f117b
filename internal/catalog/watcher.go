package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/partgrid/internal/manifest"
)

// watcher reports debounced manifest changes below a set of paths.
type watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration
	onChange  chan struct{}
	errors    chan error
	done      chan struct{}
	stopOnce  sync.Once
}

func newWatcher(paths []string, debounce time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &watcher{
		fsWatcher: fsw,
		paths:     paths,
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		errors:    make(chan error, 1),
		done:      make(chan struct{}),
	}, nil
}

// start adds every directory under the configured paths (or the parent
// directory of a file path) and begins the event loop.
func (w *watcher) start() (<-chan struct{}, error) {
	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := w.fsWatcher.Add(filepath.Dir(p)); err != nil {
				return nil, fmt.Errorf("watching directory %s: %w", filepath.Dir(p), err)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.fsWatcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", p, err)
		}
	}

	go w.loop()
	return w.onChange, nil
}

func (w *watcher) stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isManifestEvent(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsWatcher.Add(event.Name)
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send: one queued signal is enough.
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func isManifestEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasSuffix(event.Name, manifest.Extension) {
		return true
	}
	// A new directory may already contain manifests.
	return event.Op&fsnotify.Create != 0 && filepath.Ext(event.Name) == ""
}
