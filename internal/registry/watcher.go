package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher turns file events into coalesced reload requests.
// Events only enqueue a signal; a single consumer performs the reloads.
type watcher struct {
	dir      string
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	reload   func()

	requests chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func startWatcher(dir string, debounce time.Duration, logger *slog.Logger, reload func()) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &watcher{
		dir:      dir,
		fs:       fsw,
		debounce: debounce,
		logger:   logger,
		reload:   reload,
		requests: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(2)
	go w.watchEvents()
	go w.consume()
	return w, nil
}

const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

func (w *watcher) watchEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&relevantOps == 0 || !IsAgentDocument(event.Name) {
				continue
			}
			w.request()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("agent watcher error", "dir", w.dir, "error", err)
		}
	}
}

// request enqueues a reload without blocking; a pending request absorbs new ones.
func (w *watcher) request() {
	select {
	case w.requests <- struct{}{}:
	default:
	}
}

func (w *watcher) consume() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.requests:
		}

		timer := time.NewTimer(w.debounce)
	settle:
		for {
			select {
			case <-w.done:
				timer.Stop()
				return
			case <-w.requests:
				timer.Reset(w.debounce)
			case <-timer.C:
				break settle
			}
		}
		w.reload()
	}
}

func (w *watcher) close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
