package maintain

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/hurttlocker/recall/internal/record"
)

// WatchedTypes are the memory types whose files change as interactions
// complete.
var WatchedTypes = []string{TypeHistory, TypePersistent}

// Watch indexes files created or written under the history and persistent
// roots until ctx is done. New subdirectories are watched as they appear.
func (c *Coordinator) Watch(ctx context.Context) error {
	return c.watch(ctx, nil)
}

func (c *Coordinator) watch(ctx context.Context, ready func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	watched := 0
	for _, t := range WatchedTypes {
		root, ok := c.roots[t]
		if !ok {
			continue
		}
		n, err := addTree(w, root)
		if err != nil {
			c.log.WithError(err).WithField("memory_type", t).Warn("cannot watch memory root")
			continue
		}
		watched += n
	}
	if watched == 0 {
		return errors.New("no memory root to watch")
	}
	c.log.Infof("watching %d directories", watched)
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handle(ctx, w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.WithError(err).Warn("watcher error")
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if _, err := addTree(w, ev.Name); err != nil {
				c.log.WithError(err).Warnf("cannot watch %s", ev.Name)
			}
		}
		return
	}
	if info.Size() == 0 || !record.Supported(ev.Name) {
		return
	}
	if out := c.UpdateFile(ctx, ev.Name, "", ""); !out.Applied {
		c.log.WithField("path", ev.Name).Debugf("not indexed: %s", out.Reason)
	}
}

// addTree watches dir and every directory below it.
func addTree(w *fsnotify.Watcher, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
