package memory

import "testing"

func TestUniformSelector(t *testing.T) {
	s := NewUniformSelector(5, 42)
	if s.BatchSize() != 5 {
		t.Errorf("batch size is %v, want 5", s.BatchSize())
	}

	indices := s.choose(10)
	if len(indices) != 5 {
		t.Fatalf("chose %v indices, want 5", len(indices))
	}
	for _, i := range indices {
		if i < 0 || i >= 10 {
			t.Errorf("index %v out of range [0, 10)", i)
		}
	}
}

func TestFifoSelector(t *testing.T) {
	s := NewFifoSelector(3)
	if s.BatchSize() != 3 {
		t.Errorf("batch size is %v, want 3", s.BatchSize())
	}

	indices := s.choose(10)
	if len(indices) != 3 {
		t.Fatalf("chose %v indices, want 3", len(indices))
	}
	for i, index := range indices {
		if index != i {
			t.Errorf("index %v is %v, want the oldest items in order",
				i, index)
		}
	}

	// Fewer items than the batch size truncates the selection
	indices = s.choose(2)
	if len(indices) != 2 {
		t.Errorf("chose %v indices from 2 items, want 2", len(indices))
	}
}

func TestCreateSelector(t *testing.T) {
	for _, selectorType := range []SelectorType{Uniform, Fifo} {
		s, err := CreateSelector(selectorType, 4, 1)
		if err != nil {
			t.Errorf("could not create %v selector: %v", selectorType, err)
		}
		if s.BatchSize() != 4 {
			t.Errorf("%v selector has batch size %v, want 4",
				selectorType, s.BatchSize())
		}
	}

	if _, err := CreateSelector(SelectorType("bogus"), 4, 1); err == nil {
		t.Error("unknown selector type should error")
	}
}
