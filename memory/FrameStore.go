package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/samuelfneumann/trackrl/buffer"
)

// frameCacheSize bounds the number of decoded frames held in RAM.
// History windows of rows sampled in the same batch overlap, so most
// frame reads after the first in a window hit the cache instead of
// decoding the stored PNG again.
const frameCacheSize = 512

// decodedFrame is a cached frame along with its dimensions
type decodedFrame struct {
	data []float64
	w, h int
}

// FrameStore stores compressed camera frames on disk so that a large
// replay memory does not need to hold every decoded frame in RAM.
// Frames are keyed by a monotonically increasing reference number and
// stored as PNG files, with a bounded cache of recently decoded frames
// in front of the files. A FrameStore is not safe for concurrent use.
type FrameStore struct {
	dir   string
	cache *lru.Cache[uint64, decodedFrame]
}

// NewFrameStore returns a new FrameStore which stores frames in dir,
// creating the directory if it does not exist.
func NewFrameStore(dir string) (*FrameStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newFrameStore: could not create "+
			"directory: %v", err)
	}

	cache, err := lru.New[uint64, decodedFrame](frameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("newFrameStore: %v", err)
	}
	return &FrameStore{dir: dir, cache: cache}, nil
}

// Dir returns the directory in which frames are stored
func (f *FrameStore) Dir() string {
	return f.dir
}

// Put stores the PNG-encoded frame data under the reference id
func (f *FrameStore) Put(id uint64, data []byte) error {
	f.cache.Remove(id)
	if err := os.WriteFile(f.path(id), data, 0o644); err != nil {
		return fmt.Errorf("put: could not write frame %v: %v", id, err)
	}
	return nil
}

// Frame returns the decoded frame stored under the reference id along
// with its width and height. The returned slice may be shared with the
// store's cache and must not be modified.
func (f *FrameStore) Frame(id uint64) ([]float64, int, int, error) {
	if cached, ok := f.cache.Get(id); ok {
		return cached.data, cached.w, cached.h, nil
	}

	data, err := os.ReadFile(f.path(id))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("frame: could not read frame %v: %v",
			id, err)
	}

	frame, w, h, err := buffer.DecodeFrame(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("frame: could not decode frame %v: %v",
			id, err)
	}

	f.cache.Add(id, decodedFrame{data: frame, w: w, h: h})
	return frame, w, h, nil
}

// Prune removes every stored frame whose reference id is strictly
// below the given id. Frames that have been trimmed from the front of
// a replay memory are pruned so that disk usage tracks memory usage.
func (f *FrameStore) Prune(below uint64) error {
	for _, id := range f.cache.Keys() {
		if id < below {
			f.cache.Remove(id)
		}
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("prune: could not read directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".png")
		if name == entry.Name() {
			continue
		}

		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}

		if id < below {
			path := filepath.Join(f.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("prune: could not remove frame %v: %v",
					id, err)
			}
		}
	}
	return nil
}

// path returns the file path at which the frame with reference id is
// stored
func (f *FrameStore) path(id uint64) string {
	return filepath.Join(f.dir, fmt.Sprintf("%d.png", id))
}
