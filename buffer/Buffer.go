package buffer

// EpisodeStats summarizes the episodes finished while filling a Buffer
type EpisodeStats struct {
	Returns []float64
	Lengths []int
}

// Empty returns whether no episodes finished
func (e EpisodeStats) Empty() bool {
	return len(e.Returns) == 0
}

// Buffer accumulates compressed samples between flushes to the
// trainer. It also tracks per-episode returns and lengths across
// flush boundaries, since an episode rarely ends exactly when the
// buffer is shipped.
//
// Buffer is not safe for concurrent use; a rollout worker fills and
// drains it from a single goroutine.
type Buffer struct {
	samples []Sample

	episodeReturn float64
	episodeSteps  int

	finishedReturns []float64
	finishedLengths []int
}

// NewBuffer returns an empty Buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a sample to the buffer and folds it into the running
// episode statistics
func (b *Buffer) Append(s Sample) {
	b.samples = append(b.samples, s)

	b.episodeReturn += s.Reward
	b.episodeSteps++
	if s.Done {
		b.finishedReturns = append(b.finishedReturns, b.episodeReturn)
		b.finishedLengths = append(b.finishedLengths, b.episodeSteps)
		b.episodeReturn = 0
		b.episodeSteps = 0
	}
}

// Len returns the number of samples waiting to be drained
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Drain moves the buffered samples out of the buffer. Episode
// statistics are unaffected: an episode spanning several drains is
// still counted once.
func (b *Buffer) Drain() []Sample {
	samples := b.samples
	b.samples = nil
	return samples
}

// Stats moves the statistics of episodes finished since the last call
// out of the buffer
func (b *Buffer) Stats() EpisodeStats {
	stats := EpisodeStats{
		Returns: b.finishedReturns,
		Lengths: b.finishedLengths,
	}
	b.finishedReturns = nil
	b.finishedLengths = nil
	return stats
}
