package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, path string, reloads chan *Config) {
	t.Helper()
	w, err := NewWatcher(path, WatchConfig{Debounce: Duration(20 * time.Millisecond)}, func(cfg *Config) {
		reloads <- cfg
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)

	// Give fsnotify a moment to register the directory.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcherDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "retry:\n  attempts: 3\n")

	reloads := make(chan *Config, 1)
	startWatcher(t, path, reloads)

	writeConfig(t, path, "retry:\n  attempts: 7\n")

	select {
	case cfg := <-reloads:
		if cfg.Retry.Attempts != 7 {
			t.Errorf("attempts = %d, want 7", cfg.Retry.Attempts)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload arrived")
	}
}

func TestWatcherSkipsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "")

	reloads := make(chan *Config, 1)
	startWatcher(t, path, reloads)

	writeConfig(t, path, "retry:\n  attempts: zero\n")

	select {
	case cfg := <-reloads:
		t.Errorf("broken config should not be delivered, got %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "")

	reloads := make(chan *Config, 1)
	startWatcher(t, path, reloads)

	writeConfig(t, filepath.Join(dir, "config.yaml.swp"), "scratch")
	writeConfig(t, filepath.Join(dir, "notes.txt"), "unrelated")

	select {
	case <-reloads:
		t.Error("unrelated files should not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, "")

	reloads := make(chan *Config, 8)
	startWatcher(t, path, reloads)

	for i := 0; i < 5; i++ {
		writeConfig(t, path, "state:\n  max_users: 64\n")
		time.Sleep(2 * time.Millisecond)
	}

	// Wait out the debounce window plus slack, then count deliveries.
	time.Sleep(500 * time.Millisecond)
	if n := len(reloads); n != 1 {
		t.Errorf("got %d reloads, want 1", n)
	}
}
