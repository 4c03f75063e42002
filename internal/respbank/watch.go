package respbank

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of events editors and atomic writers
// produce for a single logical change.
const debounceWindow = 500 * time.Millisecond

// Watch rebuilds the index whenever the source file changes, until ctx is
// canceled. The parent directory is watched rather than the file itself so
// rename-over writes keep being seen.
func (b *Bank) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(b.sourcePath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(b.sourcePath)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := b.Build(ctx); err != nil {
				b.log.Warn("response index rebuild failed, keeping previous index", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("response bank watcher error", "error", err)
		}
	}
}
