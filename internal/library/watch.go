package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Change kinds reported by Watch.
const (
	ChangeSaved   = "saved"
	ChangeRemoved = "removed"
)

// Change is a settled modification of one script file.
type Change struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// DefaultDebounce absorbs the burst of events a single editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Watch reports script changes in the library directory until ctx ends.
// Events for a name are coalesced over debounce; onChange runs on timer
// goroutines and must be safe for concurrent use.
func (l *Library) Watch(ctx context.Context, debounce time.Duration, logger *zap.Logger, onChange func(Change)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("library")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}
	logger.Info("watching scripts", zap.String("dir", l.dir))

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, Ext) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			mu.Lock()
			if t, exists := pending[name]; exists {
				t.Stop()
			}
			pending[name] = time.AfterFunc(debounce, func() {
				mu.Lock()
				delete(pending, name)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				c := Change{Name: name, Kind: ChangeSaved}
				if _, err := os.Stat(filepath.Join(l.dir, name)); err != nil {
					c.Kind = ChangeRemoved
				}
				logger.Debug("script changed", zap.String("name", c.Name), zap.String("kind", c.Kind))
				onChange(c)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
