package memory

import "errors"

// MemoryError implements errors unique to a replay memory.
type MemoryError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *MemoryError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *MemoryError) Unwrap() error {
	return e.Err
}

var errEmptyMemory = errors.New("memory empty")

var errInsufficientSamples = errors.New("minimum sample count not yet reached")

var errChecksumMismatch = errors.New("sample checksum mismatch")

// IsEmptyMemory returns whether or not an error reports that a replay
// memory holds no reconstructable transitions.
func IsEmptyMemory(err error) bool {
	return errors.Is(err, errEmptyMemory)
}

// IsInsufficientSamples returns whether or not an error reports that
// there are too few samples in the memory to draw a full batch.
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}

// IsChecksumMismatch returns whether or not an error reports that an
// appended sample failed checksum verification. A mismatch means the
// sample was corrupted or re-encoded somewhere between the worker and
// the memory.
func IsChecksumMismatch(err error) bool {
	return errors.Is(err, errChecksumMismatch)
}
