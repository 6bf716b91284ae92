package tracker

import (
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/trackrl/timestep"
)

func TestEpisodeLengthTrack(t *testing.T) {
	track := NewEpisodeLength("unused")

	track.Track(step(ts.First, 0, 0))
	track.Track(step(ts.Mid, 1, 1))
	track.Track(step(ts.Mid, 1, 2))
	track.Track(step(ts.Last, 1, 3))
	track.Track(step(ts.Last, 1, 7))

	want := []float64{3, 7}
	if len(track.episodeLengths) != len(want) {
		t.Fatalf("unexpected length count \n\twant(%v) \n\thave(%v)",
			len(want), len(track.episodeLengths))
	}
	for i, length := range want {
		if track.episodeLengths[i] != length {
			t.Errorf("unexpected length for episode %v \n\twant(%v) "+
				"\n\thave(%v)", i, length, track.episodeLengths[i])
		}
	}
}

func TestEpisodeLengthSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "lengths.bin")
	track := NewEpisodeLength(filename)

	track.Track(step(ts.Last, 1, 12))
	if err := track.Save(); err != nil {
		t.Fatalf("could not save lengths: %v", err)
	}

	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load lengths: %v", err)
	}
	if len(data) != 1 || data[0] != 12 {
		t.Errorf("unexpected loaded data \n\twant([12]) \n\thave(%v)",
			data)
	}
}
