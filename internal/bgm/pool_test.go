package bgm

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestPickFromEmptyPool checks an empty directory yields no track.
func TestPickFromEmptyPool(t *testing.T) {
	pool := NewPool(t.TempDir(), nil)
	pool.Start()
	defer pool.Close()

	if _, ok := pool.Pick(); ok {
		t.Fatal("Pick() from empty pool should report no track")
	}
}

// TestPickFromMissingDirectory checks a missing directory is legal.
func TestPickFromMissingDirectory(t *testing.T) {
	pool := NewPool(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	pool.rescan()

	if _, ok := pool.Pick(); ok {
		t.Fatal("Pick() from missing directory should report no track")
	}
}

// TestScanFiltersAudioFiles checks only audio extensions enter the pool.
func TestScanFiltersAudioFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "track.mp3"))
	writeFile(t, filepath.Join(dir, "other.WAV"))
	writeFile(t, filepath.Join(dir, "readme.txt"))

	pool := NewPool(dir, nil)
	pool.rescan()

	if pool.Len() != 2 {
		t.Fatalf("pool size = %d, want 2", pool.Len())
	}
}

// TestPickUsesInjectedRandom checks the pick index comes from the source.
func TestPickUsesInjectedRandom(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mp3"))
	writeFile(t, filepath.Join(dir, "b.mp3"))

	pool := NewPool(dir, nil)
	pool.randFn = func(n int) int { return n - 1 }
	pool.rescan()

	track, ok := pool.Pick()
	if !ok {
		t.Fatal("Pick() should return a track")
	}
	if filepath.Base(track) != "b.mp3" {
		t.Fatalf("track = %q, want b.mp3", track)
	}
}

// TestWatcherPicksUpNewTracks checks the pool refreshes on new files.
func TestWatcherPicksUpNewTracks(t *testing.T) {
	dir := t.TempDir()
	pool := NewPool(dir, nil)
	pool.Start()
	defer pool.Close()

	writeFile(t, filepath.Join(dir, "fresh.mp3"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.Len() == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("pool did not pick up the new track")
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
