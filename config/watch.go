package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// WatchDebounce coalesces the burst of events an editor save produces.
const WatchDebounce = 100 * time.Millisecond

// Watch reloads path after every change and passes each valid result to
// apply. Load errors go to onErr and the previous configuration stays in
// effect. Watch blocks until ctx ends and returns ctx.Err().
//
// The parent directory is watched so that editors replacing the file by
// rename keep being observed.
func Watch(ctx context.Context, path string, apply func(Config), onErr func(error)) error {
	if apply == nil {
		return fmt.Errorf("config: nil apply func")
	}
	if onErr == nil {
		onErr = func(error) {}
	}
	full, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	full, err = filepath.Abs(full)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(full)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return ctx.Err()
			}
			if filepath.Clean(ev.Name) != full {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(WatchDebounce)
			}
		case <-pending:
			pending = nil
			c, err := Load(full)
			if err != nil {
				onErr(err)
				continue
			}
			apply(c)
		case err, ok := <-w.Errors:
			if !ok {
				return ctx.Err()
			}
			onErr(err)
		}
	}
}
