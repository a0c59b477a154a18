package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDirs creates temporary watch and target directories.
func setupTestDirs(t *testing.T) (watchDir, targetDir string) {
	t.Helper()

	tmpDir := t.TempDir()
	watchDir = filepath.Join(tmpDir, "Downloads")
	targetDir = filepath.Join(tmpDir, "workspace", "public", "data")

	if err := os.MkdirAll(watchDir, 0755); err != nil {
		t.Fatalf("Failed to create watch dir: %v", err)
	}
	return watchDir, targetDir
}

func testConfig() *Config {
	config := DefaultConfig()
	config.SettleDelay = 50 * time.Millisecond
	config.Logger = log.New(io.Discard, "", 0)
	return config
}

// startDaemon runs d.Start in the background and waits until it is watching.
// The returned function cancels the daemon and waits for Start to return.
func startDaemon(t *testing.T, d *Daemon) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("Timeout waiting for daemon to become ready")
	}

	return func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for daemon to stop")
			return nil
		}
	}
}

// waitForFile polls until path exists or the timeout expires.
func waitForFile(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestNewWithConfig(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	tests := []struct {
		name      string
		watchDir  string
		targetDir string
		wantErr   bool
	}{
		{"valid", watchDir, targetDir, false},
		{"empty watch dir", "", targetDir, true},
		{"empty target dir", watchDir, "", true},
		{"same directory", watchDir, watchDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewWithConfig(tt.watchDir, tt.targetDir, testConfig())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				_ = d.Stop()
			}
		})
	}
}

func TestNewWithConfig_CreatesTargetDir(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	d, err := NewWithConfig(watchDir, targetDir, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.Stop()

	if info, err := os.Stat(targetDir); err != nil || !info.IsDir() {
		t.Errorf("Target dir should exist after construction: %v", err)
	}
	if d.TargetDir() != targetDir {
		t.Errorf("TargetDir() = %q, want %q", d.TargetDir(), targetDir)
	}
}

func TestDaemon_InitialSweep(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	src := filepath.Join(watchDir, "report.data.json")
	if err := os.WriteFile(src, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	other := filepath.Join(watchDir, "photo.jpg")
	if err := os.WriteFile(other, []byte("jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	d, err := NewWithConfig(watchDir, targetDir, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)

	// The sweep is synchronous, so this holds as soon as the daemon is ready.
	data, err := os.ReadFile(filepath.Join(targetDir, "report.data.json"))
	if err != nil {
		t.Fatalf("File not relocated by initial sweep: %v", err)
	}
	if string(data) != "0123456789" {
		t.Errorf("Target content = %q, want %q", data, "0123456789")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source should be deleted after sweep")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("Non-matching file should remain")
	}

	if err := stop(); err != nil {
		t.Errorf("Start() returned error on shutdown: %v", err)
	}

	if got := d.Stats().Relocated; got != 1 {
		t.Errorf("Stats().Relocated = %d, want 1", got)
	}
}

func TestDaemon_RelocatesNewFile(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	d, err := NewWithConfig(watchDir, targetDir, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	src := filepath.Join(watchDir, "export.data.json")
	if err := os.WriteFile(src, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	dst := filepath.Join(targetDir, "export.data.json")
	if !waitForFile(dst, 5*time.Second) {
		t.Fatal("Timeout waiting for file to be relocated")
	}

	// Give the source deletion and any trailing events a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source should be deleted after relocation")
	}

	time.Sleep(300 * time.Millisecond)
	if got := d.Stats().Relocated; got != 1 {
		t.Errorf("Stats().Relocated = %d, want exactly 1", got)
	}
	if got := d.Stats().Failed; got != 0 {
		t.Errorf("Stats().Failed = %d, want 0", got)
	}
}

func TestDaemon_IgnoresNonMatchingFiles(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	d, err := NewWithConfig(watchDir, targetDir, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	src := filepath.Join(watchDir, "notes.json")
	if err := os.WriteFile(src, []byte(`{}`), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	time.Sleep(500 * time.Millisecond)

	if _, err := os.Stat(src); err != nil {
		t.Error("Non-matching file should remain in watch dir")
	}
	if _, err := os.Stat(filepath.Join(targetDir, "notes.json")); !os.IsNotExist(err) {
		t.Error("Non-matching file should not be copied")
	}
}

func TestDaemon_MissingWatchDir(t *testing.T) {
	_, targetDir := setupTestDirs(t)
	missing := filepath.Join(t.TempDir(), "nope")

	d, err := NewWithConfig(missing, targetDir, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	if err := d.Start(context.Background()); err == nil {
		t.Error("Start() should fail when the watch directory does not exist")
	}
}

func TestDaemon_CancelledDuringSweep(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	for _, name := range []string{"a.data.json", "b.data.json"} {
		if err := os.WriteFile(filepath.Join(watchDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}

	config := testConfig()
	config.LockPath = filepath.Join(t.TempDir(), "dlwatch.lock")
	d, err := NewWithConfig(watchDir, targetDir, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() with cancelled context = %v, want nil", err)
	}

	// The lock must be released so a later run can start.
	next, err := NewWithConfig(watchDir, targetDir, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, next)
	if err := stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestDaemon_PollInterval(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)

	config := testConfig()
	config.PollInterval = 100 * time.Millisecond

	d, err := NewWithConfig(watchDir, targetDir, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)

	src := filepath.Join(watchDir, "polled.data.json")
	if err := os.WriteFile(src, []byte("p"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if !waitForFile(filepath.Join(targetDir, "polled.data.json"), 5*time.Second) {
		t.Fatal("Timeout waiting for file to be relocated")
	}

	if err := stop(); err != nil {
		t.Errorf("Start() returned error on shutdown: %v", err)
	}
}

func TestDaemon_LockPreventsSecondInstance(t *testing.T) {
	watchDir, targetDir := setupTestDirs(t)
	lockPath := filepath.Join(t.TempDir(), "run", "dlwatch.lock")

	config := testConfig()
	config.LockPath = lockPath
	first, err := NewWithConfig(watchDir, targetDir, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, first)

	config2 := testConfig()
	config2.LockPath = lockPath
	second, err := NewWithConfig(watchDir, targetDir, config2)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	err = second.Start(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Second Start() = %v, want ErrAlreadyRunning", err)
	}

	if err := stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Lock is released on stop.
	third, err := NewWithConfig(watchDir, targetDir, config2)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop = startDaemon(t, third)
	if err := stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
