package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// autoDebounce is how long the watcher waits after the last filesystem
// event before triggering a sync run, so a burst of writes (e.g. an
// editor's save-as-temp-then-rename) collapses into one sync.
const autoDebounce = 2 * time.Second

// AutoWatcher implements `sync auto`: watch every pair's local path
// recursively with fsnotify and re-run SyncRun on debounce. Grounded on
// pkg/sync/file_watcher.go's event loop and per-path debounce-timer
// map (here one timer per pair), simplified so the timer calls SyncRun
// directly instead of emitting a typed SyncEvent stream, since this
// domain only ever reacts with "run sync for this pair," not a taxonomy
// of event kinds.
type AutoWatcher struct {
	watcher *fsnotify.Watcher
	conn    *Conn
	pairs   []SyncPair

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stop    chan struct{}
	stopped sync.Once
}

// NewAutoWatcher recursively watches every pair's local directory.
func NewAutoWatcher(conn *Conn, pairs []SyncPair) (*AutoWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	aw := &AutoWatcher{
		watcher: w,
		conn:    conn,
		pairs:   pairs,
		timers:  make(map[string]*time.Timer),
		stop:    make(chan struct{}),
	}

	for _, pair := range pairs {
		if err := aw.addRecursive(pair.LocalPath); err != nil {
			w.Close()
			return nil, err
		}
	}

	return aw, nil
}

func (aw *AutoWatcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return aw.watcher.Add(path)
		}
		return nil
	})
}

// Run blocks, reacting to filesystem events until Stop is called.
func (aw *AutoWatcher) Run() {
	for {
		select {
		case <-aw.stop:
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			aw.handleEvent(event)
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func (aw *AutoWatcher) handleEvent(event fsnotify.Event) {
	pair := aw.pairForPath(event.Name)
	if pair == nil {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			aw.watcher.Add(event.Name)
		}
	}

	aw.debounce(pair.LocalPath, func() {
		if err := aw.conn.SyncRun(*pair); err != nil {
			fmt.Fprintf(os.Stderr, "auto sync of %s failed: %v\n", pair.LocalPath, err)
		}
	})
}

func (aw *AutoWatcher) pairForPath(path string) *SyncPair {
	for i := range aw.pairs {
		p := &aw.pairs[i]
		if hasPathPrefix(path, p.LocalPath) {
			return p
		}
	}
	return nil
}

func hasPathPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func (aw *AutoWatcher) debounce(key string, fn func()) {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if t, ok := aw.timers[key]; ok {
		t.Stop()
	}
	aw.timers[key] = time.AfterFunc(autoDebounce, fn)
}

// Stop terminates the watcher and releases its fsnotify handle.
func (aw *AutoWatcher) Stop() {
	aw.stopped.Do(func() {
		close(aw.stop)
		aw.watcher.Close()
	})
}
