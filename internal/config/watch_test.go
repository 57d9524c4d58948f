package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	c := DefaultConfig()
	c.ADListWorkers = 4
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := WatchFile(path)
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer w.Close()

	c.ADListWorkers = 9
	if err := c.Save(path); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	select {
	case reloaded := <-w.Reloaded:
		if reloaded.ADListWorkers != 9 {
			t.Fatalf("expected reloaded config to see the update, got ADListWorkers=%d", reloaded.ADListWorkers)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for debounced reload")
	}
}
