// Package watcher signals when plugin search directories change.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/kiln/internal/log"
	"github.com/zjrosen/kiln/internal/plugin"
)

// Watcher watches plugin search directories and the plugin directories
// inside them. Bursts of events collapse into one signal.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	roots     map[string]bool
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	Dirs     []string
	Debounce time.Duration
}

// DefaultConfig returns a config with a 300ms debounce.
func DefaultConfig(dirs []string) Config {
	return Config{
		Dirs:     dirs,
		Debounce: 300 * time.Millisecond,
	}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	roots := make(map[string]bool, len(cfg.Dirs))
	for _, dir := range cfg.Dirs {
		roots[filepath.Clean(dir)] = true
	}
	return &Watcher{
		fsWatcher: fsw,
		roots:     roots,
		debounce:  cfg.Debounce,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches every existing search dir and returns the signal channel.
// Missing search dirs are skipped.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for root := range w.roots {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			log.Debug(log.CatWatcher, "Not watching missing plugin dir", "dir", root)
			continue
		}
		if err := w.addTree(root, 2); err != nil {
			return nil, err
		}
	}

	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher. Calling it twice is safe.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// addTree watches dir and its subdirectories down to depth levels. Two
// levels cover search dir -> @scope -> plugin.
func (w *Watcher) addTree(dir string, depth int) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	if depth == 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		next := depth - 1
		if !strings.HasPrefix(entry.Name(), "@") {
			next = 0
		}
		if err := w.addTree(filepath.Join(dir, entry.Name()), next); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) loop() {
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
			w.track(event)
			if !w.isRelevantEvent(event) {
				continue
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
			log.ErrorErr(log.CatWatcher, "Watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// track starts watching plugin directories created after Start.
func (w *Watcher) track(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 || !w.isRoot(filepath.Dir(event.Name)) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	depth := 0
	if strings.HasPrefix(filepath.Base(event.Name), "@") {
		depth = 1
	}
	if err := w.addTree(event.Name, depth); err != nil {
		log.ErrorErr(log.CatWatcher, "Failed to watch new plugin dir", err, "dir", event.Name)
	}
}

func (w *Watcher) isRoot(dir string) bool {
	if w.roots[dir] {
		return true
	}
	return strings.HasPrefix(filepath.Base(dir), "@") && w.roots[filepath.Dir(dir)]
}

// isRelevantEvent reports manifest edits and plugin directories appearing
// or disappearing.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if base == plugin.ManifestFile || base == "plugin.yml" {
		return true
	}
	return w.isRoot(filepath.Dir(event.Name)) && !strings.HasPrefix(base, ".")
}
