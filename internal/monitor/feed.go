package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iksnae/mcp-sentinel/internal"
)

// ChangeFeed paces the tailer. Next blocks until the store may have changed
// and returns ctx.Err() once ctx is cancelled.
type ChangeFeed interface {
	Next(ctx context.Context) error
	Close() error
}

// PollFeed fires on a fixed interval
type PollFeed struct {
	ticker *time.Ticker
}

// NewPollFeed creates a feed firing every interval
func NewPollFeed(interval time.Duration) *PollFeed {
	return &PollFeed{ticker: time.NewTicker(interval)}
}

func (f *PollFeed) Next(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.ticker.C:
		return nil
	}
}

func (f *PollFeed) Close() error {
	f.ticker.Stop()
	return nil
}

// NotifyFeed fires on file system notifications for log files under root,
// and on a fallback interval so missed events only delay processing.
type NotifyFeed struct {
	root     string
	watcher  *fsnotify.Watcher
	fallback *time.Ticker
	watched  map[string]struct{}
	logger   *internal.Logger
}

// NewNotifyFeed watches root and every directory below it. root may not exist
// yet; it is picked up on a later fallback tick.
func NewNotifyFeed(root string, fallback time.Duration, logger *internal.Logger) (*NotifyFeed, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	f := &NotifyFeed{
		root:     root,
		watcher:  w,
		fallback: time.NewTicker(fallback),
		watched:  make(map[string]struct{}),
		logger:   logger,
	}
	f.addWatches()
	return f, nil
}

// addWatches registers every directory under root not yet watched
func (f *NotifyFeed) addWatches() {
	_ = filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := f.watched[path]; ok {
			return nil
		}
		if err := f.watcher.Add(path); err != nil {
			f.logger.Debugf("watch %s: %v", path, err)
			return nil
		}
		f.watched[path] = struct{}{}
		return nil
	})
}

func (f *NotifyFeed) Next(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.fallback.C:
			f.addWatches()
			return nil
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warnf("watcher: %v", err)
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			if f.relevant(ev) {
				f.drain()
				return nil
			}
		}
	}
}

func (f *NotifyFeed) relevant(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			f.addWatches()
			return true
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return strings.HasSuffix(ev.Name, ".jsonl")
}

// drain discards notifications already queued so a burst of writes costs one poll
func (f *NotifyFeed) drain() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				f.addWatches()
			}
		default:
			return
		}
	}
}

func (f *NotifyFeed) Close() error {
	f.fallback.Stop()
	return f.watcher.Close()
}
