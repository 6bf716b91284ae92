package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/trackrl/buffer"
)

func TestFrameStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	store, err := NewFrameStore(dir)
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	if store.Dir() != dir {
		t.Errorf("store directory is %v, want %v", store.Dir(), dir)
	}

	frame := []float64{0, 128. / 255, 1}
	data, err := buffer.EncodeFrame(frame, 3, 1)
	if err != nil {
		t.Fatalf("could not encode frame: %v", err)
	}
	if err := store.Put(7, data); err != nil {
		t.Fatalf("could not store frame: %v", err)
	}

	decoded, w, h, err := store.Frame(7)
	if err != nil {
		t.Fatalf("could not load frame: %v", err)
	}
	if w != 3 || h != 1 {
		t.Errorf("frame dimensions are %v x %v, want 3 x 1", w, h)
	}
	for i, want := range frame {
		if decoded[i] != want {
			t.Errorf("pixel %v is %v, want %v", i, decoded[i], want)
		}
	}

	if _, _, _, err := store.Frame(8); err == nil {
		t.Error("loading a missing frame should error")
	}
}

func TestFrameStoreCachesDecodedFrames(t *testing.T) {
	store, err := NewFrameStore(t.TempDir())
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}

	data, err := buffer.EncodeFrame([]float64{1, 0}, 2, 1)
	if err != nil {
		t.Fatalf("could not encode frame: %v", err)
	}
	if err := store.Put(3, data); err != nil {
		t.Fatalf("could not store frame: %v", err)
	}
	if _, _, _, err := store.Frame(3); err != nil {
		t.Fatalf("could not load frame: %v", err)
	}

	// A cached frame is served even after its file disappears
	if err := os.Remove(filepath.Join(store.Dir(), "3.png")); err != nil {
		t.Fatal(err)
	}
	decoded, w, h, err := store.Frame(3)
	if err != nil {
		t.Fatalf("cached frame should still load: %v", err)
	}
	if w != 2 || h != 1 || decoded[0] != 1 || decoded[1] != 0 {
		t.Errorf("cached frame is %v (%v x %v), want [1 0] (2 x 1)",
			decoded, w, h)
	}

	// Pruning drops the cache entry along with the file
	if err := store.Prune(4); err != nil {
		t.Fatalf("could not prune: %v", err)
	}
	if _, _, _, err := store.Frame(3); err == nil {
		t.Error("pruned frame should not load")
	}
}

func TestFrameStorePrune(t *testing.T) {
	store, err := NewFrameStore(t.TempDir())
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}

	data, err := buffer.EncodeFrame([]float64{0.5}, 1, 1)
	if err != nil {
		t.Fatalf("could not encode frame: %v", err)
	}
	for _, id := range []uint64{0, 1, 2, 5} {
		if err := store.Put(id, data); err != nil {
			t.Fatalf("could not store frame %v: %v", id, err)
		}
	}

	// Unrelated files in the directory are left alone
	stray := filepath.Join(store.Dir(), "notes.txt")
	if err := os.WriteFile(stray, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Prune(2); err != nil {
		t.Fatalf("could not prune: %v", err)
	}

	for _, id := range []uint64{0, 1} {
		if _, _, _, err := store.Frame(id); err == nil {
			t.Errorf("frame %v should have been pruned", id)
		}
	}
	for _, id := range []uint64{2, 5} {
		if _, _, _, err := store.Frame(id); err != nil {
			t.Errorf("frame %v should have survived: %v", id, err)
		}
	}
	if _, err := os.Stat(stray); err != nil {
		t.Errorf("stray file should have survived: %v", err)
	}
}
