package session

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	signalsDirName = ".coralph/signals"
	stopFileName   = "stop"
)

// StopWatcher watches for an out-of-band stop request. Touching the
// stop file under .coralph/signals/ asks the driver to finish the
// current iteration and exit cleanly.
type StopWatcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
	notify  chan struct{}
	closed  chan struct{}
}

// NewStopWatcher starts watching workDir's signals directory, creating
// it if needed. A stop file left over from an earlier run is cleared
// so it cannot cancel the new run.
func NewStopWatcher(workDir string) (*StopWatcher, error) {
	dir := filepath.Join(workDir, signalsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	sw := &StopWatcher{
		dir:    dir,
		notify: make(chan struct{}),
		closed: make(chan struct{}),
	}
	if err := sw.Clear(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	sw.watcher = watcher
	go sw.watch()
	return sw, nil
}

func (sw *StopWatcher) stopPath() string {
	return filepath.Join(sw.dir, stopFileName)
}

func (sw *StopWatcher) watch() {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != stopFileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.markStopped()
			}
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		case <-sw.closed:
			return
		}
	}
}

func (sw *StopWatcher) markStopped() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.stopped = true
	close(sw.notify)
}

// Stopped returns a channel closed once a stop has been requested.
func (sw *StopWatcher) Stopped() <-chan struct{} {
	return sw.notify
}

// ShouldStop reports whether a stop has been requested, checking the
// filesystem as a fallback in case a watch event was missed.
func (sw *StopWatcher) ShouldStop() bool {
	sw.mu.Lock()
	stopped := sw.stopped
	sw.mu.Unlock()
	if stopped {
		return true
	}
	if _, err := os.Stat(sw.stopPath()); err == nil {
		sw.markStopped()
		return true
	}
	return false
}

// Clear removes the stop file so the next run starts clean.
func (sw *StopWatcher) Clear() error {
	err := os.Remove(sw.stopPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops watching. The stop file is left in place.
func (sw *StopWatcher) Close() error {
	select {
	case <-sw.closed:
		return nil
	default:
	}
	close(sw.closed)
	if sw.watcher != nil {
		return sw.watcher.Close()
	}
	return nil
}
