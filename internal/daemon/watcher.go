package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/steveyegge/dlwatch/internal/relocate"
)

// Change classifies a notification about a watched file.
type Change int

const (
	// Created means the name appeared in the directory.
	Created Change = iota + 1
	// Written means data was written to an existing file.
	Written
	// Removed means the name was deleted or renamed away.
	Removed
)

var changeNames = map[Change]string{
	Created: "created",
	Written: "written",
	Removed: "removed",
}

func (c Change) String() string {
	if name, ok := changeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Notification reports a change to a file in the watched directory whose name
// ends in the watcher's suffix.
type Notification struct {
	Path   string // absolute
	Change Change
}

type watcherState int

const (
	stateIdle watcherState = iota
	stateWatching
	stateClosed
)

// ErrWatcherClosed is returned by Start after Close.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher delivers notifications for one directory, non-recursively, backed
// by fsnotify. Names not ending in the suffix, entries of subdirectories and
// chmod-only events are dropped.
type Watcher struct {
	dir    string
	suffix string

	fsw   *fsnotify.Watcher
	out   chan Notification
	errs  chan error
	quit  chan struct{}
	loop  sync.WaitGroup
	mu    sync.Mutex
	state watcherState
}

// NewWatcher prepares a watcher for dir. Nothing is delivered until Start.
func NewWatcher(dir, suffix string) (*Watcher, error) {
	if suffix == "" {
		suffix = relocate.DefaultSuffix
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:    abs,
		suffix: suffix,
		fsw:    fsw,
		out:    make(chan Notification, 100),
		errs:   make(chan error, 10),
		quit:   make(chan struct{}),
	}, nil
}

// Start subscribes to the directory. It fails if the directory cannot be
// watched, or if the watcher is already started or closed.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateWatching:
		return fmt.Errorf("already watching %s", w.dir)
	case stateClosed:
		return ErrWatcherClosed
	}

	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}

	w.state = stateWatching
	w.loop.Add(1)
	go w.forward()
	return nil
}

// Close ends the subscription and closes both channels once the forwarding
// goroutine has exited. Repeated calls return nil. Close is also valid on a
// watcher that was never started.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.state == stateClosed {
		w.mu.Unlock()
		return nil
	}
	w.state = stateClosed
	w.mu.Unlock()

	close(w.quit)
	err := w.fsw.Close()
	w.loop.Wait()

	close(w.out)
	close(w.errs)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Notifications is closed by Close.
func (w *Watcher) Notifications() <-chan Notification {
	return w.out
}

// Errors carries fsnotify backend errors, such as event queue overflow.
// It is closed by Close.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Dir returns the absolute watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Watching reports whether Start succeeded and Close has not been called.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateWatching
}

func (w *Watcher) forward() {
	defer w.loop.Done()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			n, keep := w.translate(ev)
			if !keep {
				continue
			}
			select {
			case w.out <- n:
			case <-w.quit:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-w.quit:
				return
			}
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) (Notification, bool) {
	if !relocate.Matches(ev.Name, w.suffix) {
		return Notification{}, false
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil || filepath.Dir(path) != w.dir {
		return Notification{}, false
	}
	change, ok := classify(ev.Op)
	if !ok {
		return Notification{}, false
	}
	return Notification{Path: path, Change: change}, true
}

// classify maps an fsnotify op to a Change. A rename reports the old name as
// Removed; the new name, if still in the directory, arrives as Created.
func classify(op fsnotify.Op) (Change, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Written, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	}
	return 0, false
}
