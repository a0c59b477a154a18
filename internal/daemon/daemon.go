package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/steveyegge/dlwatch/internal/relocate"
)

// Config holds configuration for the daemon.
type Config struct {
	// Suffix is the filename suffix of files to relocate
	Suffix string

	// SettleDelay is how long to wait after a notification before copying
	SettleDelay time.Duration

	// SeenLimit is the seen-set size above which it is cleared
	SeenLimit int

	// PollInterval is how often to rescan the watched directory in addition
	// to filesystem notifications. Zero disables rescanning.
	PollInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger

	// Recorder receives successful relocations (optional)
	Recorder relocate.Recorder

	// LockPath is a lock file held while the daemon runs, so that only one
	// instance watches at a time. Empty disables locking.
	LockPath string
}

// ErrAlreadyRunning is returned by Start when another process holds the lock.
var ErrAlreadyRunning = errors.New("another dlwatch instance is already running")

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	rc := relocate.DefaultConfig()
	return &Config{
		Suffix:      rc.Suffix,
		SettleDelay: rc.SettleDelay,
		SeenLimit:   rc.SeenLimit,
		Logger:      log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates directory sweeping, file watching, and relocation.
type Daemon struct {
	watchDir  string
	targetDir string
	config    *Config

	relocator *relocate.Relocator
	watcher   *Watcher
	lock      *flock.Flock

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// New creates a new Daemon instance with default configuration.
//
// The daemon requires:
//   - watchDir: Directory to watch (not recursive)
//   - targetDir: Directory matching files are moved into (created if absent)
//
// Use Start() to begin sweeping and watching.
func New(watchDir, targetDir string) (*Daemon, error) {
	return NewWithConfig(watchDir, targetDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(watchDir, targetDir string, config *Config) (*Daemon, error) {
	if watchDir == "" {
		return nil, fmt.Errorf("watchDir cannot be empty")
	}
	if targetDir == "" {
		return nil, fmt.Errorf("targetDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	absWatch, err := filepath.Abs(watchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target directory: %w", err)
	}
	if absWatch == absTarget {
		return nil, fmt.Errorf("watch and target directory must differ: %s", absWatch)
	}

	relocator, err := relocate.NewWithConfig(absTarget, &relocate.Config{
		Suffix:      config.Suffix,
		SettleDelay: config.SettleDelay,
		SeenLimit:   config.SeenLimit,
		Logger:      config.Logger,
		Recorder:    config.Recorder,
	})
	if err != nil {
		return nil, err
	}

	watcher, err := NewWatcher(absWatch, relocator.Suffix())
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	d := &Daemon{
		watchDir:  absWatch,
		targetDir: absTarget,
		config:    config,
		relocator: relocator,
		watcher:   watcher,
		ready:     make(chan struct{}),
	}
	if config.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.LockPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
		d.lock = flock.New(config.LockPath)
	}
	return d, nil
}

// WatchDir returns the absolute watched directory.
func (d *Daemon) WatchDir() string {
	return d.watchDir
}

// TargetDir returns the absolute target directory.
func (d *Daemon) TargetDir() string {
	return d.targetDir
}

// Ready is closed once the startup sweep has finished and the watch is
// established.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Stats returns the relocation counters accumulated so far.
func (d *Daemon) Stats() relocate.Stats {
	return d.relocator.Stats()
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Acquire the instance lock, if configured
// 2. Sweep files already present in the watched directory
// 3. Start watching for file changes
// 4. Relocate matching files as create/modify events arrive
// 5. Rescan every PollInterval, if set
//
// This blocks until ctx is cancelled. The only errors returned are startup
// failures; relocation failures are logged and never end the loop.
func (d *Daemon) Start(ctx context.Context) error {
	logger := d.config.Logger
	logger.Println("Starting daemon")

	if d.lock != nil {
		ok, err := d.lock.TryLock()
		if err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to acquire lock %s: %w", d.config.LockPath, err)
		}
		if !ok {
			_ = d.Stop()
			return fmt.Errorf("%w (lock held: %s)", ErrAlreadyRunning, d.config.LockPath)
		}
	}

	summary, err := d.relocator.Sweep(ctx, d.watchDir)
	if ctx.Err() != nil {
		logger.Println("Shutdown signal received")
		return d.Stop()
	}
	if err != nil {
		_ = d.Stop()
		return fmt.Errorf("initial sweep failed: %w", err)
	}
	logger.Printf("Initial sweep: %d relocated, %d failed, %d skipped",
		summary.Relocated, summary.Failed, summary.Skipped)

	if err := d.watcher.Start(); err != nil {
		_ = d.Stop()
		return err
	}
	logger.Printf("Watching: %s", d.watchDir)

	var poll <-chan time.Time
	if d.config.PollInterval > 0 {
		ticker := time.NewTicker(d.config.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	d.readyOnce.Do(func() { close(d.ready) })

	for {
		select {
		case <-ctx.Done():
			logger.Println("Shutdown signal received")
			return d.Stop()

		case n, ok := <-d.watcher.Notifications():
			if !ok {
				return nil
			}
			d.handle(ctx, n)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return nil
			}
			logger.Printf("Watcher error: %v", err)

		case <-poll:
			if _, err := d.relocator.Rescan(ctx, d.watchDir); err != nil && ctx.Err() == nil {
				logger.Printf("Rescan error: %v", err)
			}
		}
	}
}

// handle relocates the file for Created and Written notifications. Both run
// the same logic; the seen-set absorbs the duplicate.
func (d *Daemon) handle(ctx context.Context, n Notification) {
	var trigger relocate.Trigger
	switch n.Change {
	case Created:
		trigger = relocate.TriggerCreate
	case Written:
		trigger = relocate.TriggerModify
	default:
		return
	}

	d.relocator.Relocate(ctx, n.Path, trigger)
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
			d.stopErr = err
		}
		if d.lock != nil && d.lock.Locked() {
			if err := d.lock.Unlock(); err != nil {
				d.config.Logger.Printf("Warning: failed to release lock: %v", err)
			}
		}
		d.config.Logger.Println("Daemon stopped")
	})
	return d.stopErr
}
