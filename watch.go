// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package skylut

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ParamsWatcher is a ParamsSource backed by the [atmosphere] table of a
// TOML config file. The file is re-read whenever it changes on disk. A file
// that fails to parse or validate is logged and the last good parameters are
// kept.
//
// Params is safe to call from any goroutine.
type ParamsWatcher struct {
	path    string
	cur     atomic.Pointer[Params]
	reloads atomic.Uint64
	log     *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatchParams loads path and starts watching it.
func WatchParams(path string) (*ParamsWatcher, error) {
	w := &ParamsWatcher{
		path: filepath.Clean(path),
		log:  Logger(),
		done: make(chan struct{}),
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}

	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("skylut: watch %s: %w", path, err)
	}
	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.watcher.Close()
		return nil, fmt.Errorf("skylut: watch %s: %w", path, err)
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Params returns the most recently loaded parameters.
func (w *ParamsWatcher) Params() Params {
	return *w.cur.Load()
}

// Reloads returns how many times the parameters were successfully loaded.
func (w *ParamsWatcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Reload re-reads the file immediately.
func (w *ParamsWatcher) Reload() error {
	c, err := LoadConfig(w.path)
	if err != nil {
		return err
	}
	p := c.Atmosphere
	w.cur.Store(&p)
	w.reloads.Add(1)
	return nil
}

// Close stops watching. Params keeps returning the last loaded value.
func (w *ParamsWatcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *ParamsWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create:
				if err := w.Reload(); err != nil {
					w.log.Warn("skylut: keeping previous atmosphere", "path", w.path, "error", err)
					continue
				}
				w.log.Debug("skylut: atmosphere reloaded", "path", w.path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("skylut: watcher error", "path", w.path, "error", err)
		}
	}
}
