package buffer

import "testing"

func TestBufferDrainMovesOut(t *testing.T) {
	b := NewBuffer()

	for i := 0; i < 3; i++ {
		b.Append(Sample{Reward: float64(i)})
	}
	if b.Len() != 3 {
		t.Fatalf("unexpected length \n\twant(%v) \n\thave(%v)", 3, b.Len())
	}

	samples := b.Drain()
	if len(samples) != 3 {
		t.Fatalf("unexpected drained length \n\twant(%v) \n\thave(%v)", 3,
			len(samples))
	}
	for i, s := range samples {
		if s.Reward != float64(i) {
			t.Errorf("samples drained out of order \n\twant(%v) "+
				"\n\thave(%v)", float64(i), s.Reward)
		}
	}

	if b.Len() != 0 {
		t.Errorf("buffer not empty after drain \n\thave(%v)", b.Len())
	}
	if drained := b.Drain(); len(drained) != 0 {
		t.Errorf("drained an empty buffer \n\thave(%v)", len(drained))
	}

	// The buffer keeps accepting samples after a drain
	b.Append(Sample{})
	if b.Len() != 1 {
		t.Errorf("unexpected length after drain \n\twant(%v) \n\thave(%v)",
			1, b.Len())
	}
}

func TestBufferEpisodeStats(t *testing.T) {
	b := NewBuffer()

	// First episode: rewards 1 and 2
	b.Append(Sample{Reward: 1})
	b.Append(Sample{Reward: 2, Done: true})

	// Second episode starts, then the buffer is drained mid-episode
	b.Append(Sample{Reward: 3})
	b.Drain()
	b.Append(Sample{Reward: 4, Done: true})

	stats := b.Stats()
	if len(stats.Returns) != 2 {
		t.Fatalf("unexpected number of episodes \n\twant(%v) \n\thave(%v)",
			2, len(stats.Returns))
	}
	if stats.Returns[0] != 3 || stats.Returns[1] != 7 {
		t.Errorf("unexpected returns \n\twant(%v) \n\thave(%v)",
			[]float64{3, 7}, stats.Returns)
	}
	if stats.Lengths[0] != 2 || stats.Lengths[1] != 2 {
		t.Errorf("unexpected lengths \n\twant(%v) \n\thave(%v)",
			[]int{2, 2}, stats.Lengths)
	}

	// Stats are moved out, not copied
	if !b.Stats().Empty() {
		t.Error("second Stats call returned episodes again")
	}
}

func TestBufferStatsMidEpisode(t *testing.T) {
	b := NewBuffer()
	b.Append(Sample{Reward: 1})

	if !b.Stats().Empty() {
		t.Error("unfinished episode reported in stats")
	}

	b.Append(Sample{Reward: 1, Done: true})
	stats := b.Stats()
	if len(stats.Returns) != 1 || stats.Returns[0] != 2 {
		t.Errorf("unexpected returns \n\twant(%v) \n\thave(%v)",
			[]float64{2}, stats.Returns)
	}
}
