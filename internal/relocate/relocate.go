// Package relocate moves matching files from a watched directory into a
// target directory, exactly once per path.
//
// A relocation is a copy into the target directory followed by deletion of
// the original. Copy and delete are not one atomic step: a crash between them
// leaves the file in both places.
package relocate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultSuffix is the filename suffix that marks a file for relocation.
const DefaultSuffix = ".data.json"

// Recorder receives every successful relocation. It is used for the optional
// history ledger.
type Recorder interface {
	RecordRelocation(ctx context.Context, res Result) error
}

// Config holds configuration for a Relocator.
type Config struct {
	// Suffix is the literal filename suffix a file must end with.
	Suffix string

	// SettleDelay is how long to wait after a notification before copying,
	// so the producing process can finish writing. Sweeps skip it.
	SettleDelay time.Duration

	// SeenLimit caps the seen-set. When it holds more than SeenLimit paths
	// it is cleared. Zero disables the cap.
	SeenLimit int

	// Logger for relocation activity
	Logger *log.Logger

	// Recorder is optional.
	Recorder Recorder
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Suffix:      DefaultSuffix,
		SettleDelay: 500 * time.Millisecond,
		SeenLimit:   1000,
		Logger:      log.New(os.Stderr, "[relocate] ", log.LstdFlags),
	}
}

// Relocator copies matching files into a target directory and removes the
// originals. It is safe for concurrent use.
type Relocator struct {
	targetDir string
	config    *Config
	seen      *seenSet

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Relocator with default configuration.
func New(targetDir string) (*Relocator, error) {
	return NewWithConfig(targetDir, DefaultConfig())
}

// NewWithConfig creates a Relocator with custom configuration. The target
// directory is created if it does not exist.
func NewWithConfig(targetDir string, config *Config) (*Relocator, error) {
	if targetDir == "" {
		return nil, fmt.Errorf("targetDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Suffix == "" {
		config.Suffix = DefaultSuffix
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target directory: %w", err)
	}
	if err := os.MkdirAll(absTarget, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target directory %s: %w", absTarget, err)
	}

	return &Relocator{
		targetDir: absTarget,
		config:    config,
		seen:      newSeenSet(config.SeenLimit),
	}, nil
}

// TargetDir returns the absolute target directory.
func (r *Relocator) TargetDir() string {
	return r.targetDir
}

// Suffix returns the filename suffix this Relocator acts on.
func (r *Relocator) Suffix() string {
	return r.config.Suffix
}

// Matches reports whether name (a bare filename or a path) ends with the
// relocation suffix.
func (r *Relocator) Matches(name string) bool {
	return Matches(name, r.config.Suffix)
}

// Matches reports whether the base name of path ends with suffix.
func Matches(path, suffix string) bool {
	return strings.HasSuffix(filepath.Base(path), suffix)
}

// Relocate moves the file at path into the target directory.
//
// Errors never propagate out of Relocate: they are logged and reported in the
// returned Result. A failed relocation is not retried; the next notification
// for the same path tries again.
func (r *Relocator) Relocate(ctx context.Context, path string, trigger Trigger) Result {
	res := r.relocate(ctx, path, trigger)
	if res.At.IsZero() {
		res.At = time.Now()
	}
	r.count(res.Outcome)
	return res
}

func (r *Relocator) relocate(ctx context.Context, path string, trigger Trigger) Result {
	logger := r.config.Logger
	res := Result{
		Path:    path,
		Target:  filepath.Join(r.targetDir, filepath.Base(path)),
		Trigger: trigger,
	}

	if !r.Matches(path) {
		res.Outcome = Skipped
		return res
	}

	info, statErr := os.Stat(path)
	exists := statErr == nil
	var modTime time.Time
	if exists {
		modTime = info.ModTime()
	}

	if r.seen.contains(path, exists, modTime) {
		logger.Printf("Already processed, skipping: %s", path)
		res.Outcome = Duplicate
		return res
	}

	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			logger.Printf("Detected %s but it no longer exists", path)
			res.Outcome = Vanished
			return res
		}
		logger.Printf("Error processing %s: %v", path, statErr)
		res.Outcome = Failed
		res.Err = statErr
		return res
	}

	if !info.Mode().IsRegular() {
		res.Outcome = Skipped
		res.Err = ErrNotRegular
		return res
	}

	if trigger != TriggerSweep && r.config.SettleDelay > 0 {
		if err := sleepContext(ctx, r.config.SettleDelay); err != nil {
			logger.Printf("Error processing %s: %v", path, err)
			res.Outcome = Failed
			res.Err = err
			return res
		}

		// The producer may have rewritten or removed the file while we waited.
		info, statErr = os.Stat(path)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				logger.Printf("Detected %s but it no longer exists", path)
				res.Outcome = Vanished
				return res
			}
			logger.Printf("Error processing %s: %v", path, statErr)
			res.Outcome = Failed
			res.Err = statErr
			return res
		}
		if !info.Mode().IsRegular() {
			res.Outcome = Skipped
			res.Err = ErrNotRegular
			return res
		}
	}

	n, err := copyFile(path, res.Target, info)
	if err != nil {
		logger.Printf("Error processing %s: %v", path, err)
		res.Outcome = Failed
		res.Err = err
		return res
	}
	logger.Printf("Copied: %s -> %s", path, res.Target)

	if err := removeFunc(path); err != nil {
		logger.Printf("Error processing %s: failed to delete original: %v", path, err)
		res.Outcome = Failed
		res.Err = fmt.Errorf("failed to delete original: %w", err)
		return res
	}
	logger.Printf("Deleted original: %s", path)

	r.seen.add(path, info.ModTime())

	res.Outcome = Relocated
	res.Bytes = n
	res.At = time.Now()

	if r.config.Recorder != nil {
		if err := r.config.Recorder.RecordRelocation(ctx, res); err != nil {
			logger.Printf("Warning: failed to record relocation of %s: %v", path, err)
		}
	}

	return res
}

// Sweep relocates every matching file currently in dir. It does not recurse
// and does not apply the settle delay. Only a failure to list dir is returned
// as an error; per-file failures are counted in the summary.
func (r *Relocator) Sweep(ctx context.Context, dir string) (SweepSummary, error) {
	return r.scan(ctx, dir, TriggerSweep)
}

// Rescan is Sweep for files that may still be being written: it applies the
// settle delay to each match. The daemon uses it as a polling fallback.
func (r *Relocator) Rescan(ctx context.Context, dir string) (SweepSummary, error) {
	return r.scan(ctx, dir, TriggerPoll)
}

func (r *Relocator) scan(ctx context.Context, dir string, trigger Trigger) (SweepSummary, error) {
	var summary SweepSummary

	entries, err := os.ReadDir(dir)
	if err != nil {
		return summary, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if entry.IsDir() || !r.Matches(entry.Name()) {
			continue
		}

		summary.Scanned++
		res := r.Relocate(ctx, filepath.Join(dir, entry.Name()), trigger)
		switch res.Outcome {
		case Relocated:
			summary.Relocated++
		case Failed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	return summary, nil
}

// SeenCount returns the current size of the seen-set.
func (r *Relocator) SeenCount() int {
	return r.seen.len()
}

// Stats returns a snapshot of the outcome counters.
func (r *Relocator) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Relocator) count(o Outcome) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	switch o {
	case Relocated:
		r.stats.Relocated++
	case Duplicate:
		r.stats.Duplicates++
	case Vanished:
		r.stats.Vanished++
	case Skipped:
		r.stats.Skipped++
	case Failed:
		r.stats.Failed++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
