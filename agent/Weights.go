package agent

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Weights holds the named parameter matrices of an agent. Weights are
// the currency of weight broadcasts: a trainer extracts them from its
// learning agent, ships them over the wire, and rollout workers
// install them into their policies with SetWeights.
type Weights map[string]*mat.Dense

// Clone returns a deep copy of the weights. Mutating the clone leaves
// the receiver untouched.
func (w Weights) Clone() Weights {
	clone := make(Weights, len(w))
	for name, matrix := range w {
		clone[name] = mat.DenseCopyOf(matrix)
	}
	return clone
}

// weightsEntry pairs a weight name with its serialized matrix
type weightsEntry struct {
	Name string
	Data []byte
}

// GobEncode implements the gob.GobEncoder interface. Entries are
// encoded in sorted name order so that equal weights always encode to
// equal bytes.
func (w Weights) GobEncode() ([]byte, error) {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]weightsEntry, len(names))
	for i, name := range names {
		data, err := w[name].MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("gobEncode: could not marshal "+
				"weights %q: %v", name, err)
		}
		entries[i] = weightsEntry{Name: name, Data: data}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode weights: %v",
			err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (w *Weights) GobDecode(data []byte) error {
	var entries []weightsEntry
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&entries); err != nil {
		return fmt.Errorf("gobDecode: could not decode weights: %v", err)
	}

	decoded := make(Weights, len(entries))
	for _, entry := range entries {
		var matrix mat.Dense
		if err := matrix.UnmarshalBinary(entry.Data); err != nil {
			return fmt.Errorf("gobDecode: could not unmarshal "+
				"weights %q: %v", entry.Name, err)
		}
		decoded[entry.Name] = &matrix
	}

	*w = decoded
	return nil
}
