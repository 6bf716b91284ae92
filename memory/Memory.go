// Package memory implements the trainer-side replay memory. Samples
// streamed from rollout workers hold only the scalar portion of an
// observation, the latest camera or lidar frame, and the action that
// the observation followed. The memory stores these in columns and
// reconstructs full transitions on demand by re-assembling the frame
// history and action tail from neighbouring rows, so that each
// observation is held in RAM (or on disk) exactly once no matter how
// long the history is.
package memory

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/trackrl/buffer"
	"github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/utils/intutils"
)

// Config describes a replay Memory
type Config struct {
	// Capacity is the maximum number of sampleable transitions held.
	// Once exceeded, the oldest rows are dropped.
	Capacity int

	// BatchSize is the number of transitions drawn by SampleBatch
	BatchSize int

	// HistoryLen is the number of consecutive frames making up the
	// frame portion of a full observation
	HistoryLen int

	// ActionTailLen is the number of previous actions making up the
	// action tail portion of a full observation
	ActionTailLen int

	// Discount is the discount applied to non-terminal transitions
	Discount float64

	// SampleMethod determines how SampleBatch chooses rows
	SampleMethod SelectorType

	// Seed seeds the sampling source
	Seed int64

	// CRCDebug enables end-to-end checksum verification of every
	// appended sample
	CRCDebug bool

	// SpillDir, if set, is a directory to which PNG-encoded frames
	// are written instead of being decoded and held in RAM
	SpillDir string
}

// minSamples returns the number of rows that must precede a row
// before that row can anchor a full observation
func (c Config) minSamples() int {
	return intutils.Max(c.HistoryLen, c.ActionTailLen)
}

// Validate returns an error if the Config describes an illegal Memory
func (c Config) Validate() error {
	if c.HistoryLen < 1 {
		return fmt.Errorf("history length must be positive \n\twant(>= 1)"+
			" \n\thave(%v)", c.HistoryLen)
	}
	if c.ActionTailLen < 1 {
		return fmt.Errorf("action tail length must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.ActionTailLen)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive \n\twant(>= 1)"+
			" \n\thave(%v)", c.BatchSize)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1] \n\thave(%v)",
			c.Discount)
	}
	if min := c.minSamples() + 2; c.Capacity < min {
		return fmt.Errorf("capacity too small for history and action "+
			"tail \n\twant(>= %v) \n\thave(%v)", min, c.Capacity)
	}
	return nil
}

// ReturnStats summarizes the episodes completed within samples
// appended to a Memory
type ReturnStats struct {
	Episodes   int
	MeanReturn float64
	MeanLength float64
}

// Memory is a replay memory over streamed samples. Rather than storing
// complete transitions, it stores one row per environment step - the
// action taken, the scalar observation portion, the single newest
// frame, the reward, and the episode-end flag - and reconstructs full
// transitions by windowing over consecutive rows. Row i+1 holds the
// observation which followed the action in row i+1, so a transition
// anchored at row n pairs the observation ending at row n-1 with the
// action of row n and the observation ending at row n.
//
// A Memory is not safe for concurrent use.
type Memory struct {
	conf       Config
	minSamples int
	sampler    Selector
	store      *FrameStore
	rng        *rand.Rand

	// Column storage, one entry per appended sample. A nil frames
	// entry means the frame was spilled to the store under the
	// parallel refs entry.
	actions [][]float64
	scalars [][]float64
	frames  [][]float64
	refs    []uint64
	rewards []float64
	dones   []bool

	// Dimensions are fixed by the first appended sample
	actionDims int
	scalarDims int
	frameW     int
	frameH     int

	nextRef uint64

	// Episode accounting for training statistics
	epReturn        float64
	epLength        int
	finishedReturns []float64
	finishedLengths []int
}

// NewMemory returns a new Memory described by conf
func NewMemory(conf Config) (*Memory, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("newMemory: %v", err)
	}

	sampler, err := CreateSelector(conf.SampleMethod, conf.BatchSize,
		conf.Seed)
	if err != nil {
		return nil, fmt.Errorf("newMemory: %v", err)
	}

	var store *FrameStore
	if conf.SpillDir != "" {
		store, err = NewFrameStore(conf.SpillDir)
		if err != nil {
			return nil, fmt.Errorf("newMemory: %v", err)
		}
	}

	return &Memory{
		conf:       conf,
		minSamples: conf.minSamples(),
		sampler:    sampler,
		store:      store,
		rng:        rand.New(rand.NewSource(conf.Seed)),
	}, nil
}

// Config returns the Config which describes the Memory
func (m *Memory) Config() Config {
	return m.conf
}

// Len returns the number of transitions that can currently be sampled.
// Each transition needs a full frame history and action tail behind it
// and one row ahead of it for the next action, so the first usable
// rows and the newest row are excluded.
func (m *Memory) Len() int {
	n := len(m.actions) - m.minSamples - 1
	if n < 0 {
		return 0
	}
	return n
}

// Capacity returns the maximum number of sampleable transitions
func (m *Memory) Capacity() int {
	return m.conf.Capacity
}

// BatchSize returns the number of transitions drawn by SampleBatch
func (m *Memory) BatchSize() int {
	return m.sampler.BatchSize()
}

// Append adds a single sample to the Memory, trimming the oldest rows
// if the Memory exceeds its capacity
func (m *Memory) Append(s buffer.Sample) error {
	frame, w, h, err := m.resolveFrame(s)
	if err != nil {
		return &MemoryError{Op: "append", Err: err}
	}

	if len(m.actions) == 0 {
		if len(s.Action) < 1 {
			return &MemoryError{
				Op:  "append",
				Err: fmt.Errorf("sample has no action"),
			}
		}
		m.actionDims = len(s.Action)
		m.scalarDims = len(s.Obs.Scalars)
		m.frameW = w
		m.frameH = h
	}

	if len(s.Action) != m.actionDims {
		return &MemoryError{
			Op: "append",
			Err: fmt.Errorf("inconsistent action dimensions \n\twant(%v)"+
				" \n\thave(%v)", m.actionDims, len(s.Action)),
		}
	}
	if len(s.Obs.Scalars) != m.scalarDims {
		return &MemoryError{
			Op: "append",
			Err: fmt.Errorf("inconsistent scalar dimensions \n\twant(%v)"+
				" \n\thave(%v)", m.scalarDims, len(s.Obs.Scalars)),
		}
	}
	if w != m.frameW || h != m.frameH {
		return &MemoryError{
			Op: "append",
			Err: fmt.Errorf("inconsistent frame dimensions "+
				"\n\twant(%v x %v) \n\thave(%v x %v)", m.frameW, m.frameH,
				w, h),
		}
	}

	if m.conf.CRCDebug {
		if s.CRC == 0 {
			return &MemoryError{
				Op:  "append",
				Err: fmt.Errorf("sample carries no checksum"),
			}
		}
		if buffer.CRC(s.Action, s.Obs.Scalars, frame, s.Reward,
			s.Done) != s.CRC {
			return &MemoryError{Op: "append", Err: errChecksumMismatch}
		}
	}

	// Spill before touching the columns so a failed write cannot
	// leave them ragged
	var ref uint64
	spilled := m.store != nil && s.Obs.Encoded != nil
	if spilled {
		ref = m.nextRef
		if err := m.store.Put(ref, s.Obs.Encoded); err != nil {
			return &MemoryError{Op: "append", Err: err}
		}
		m.nextRef++
		frame = nil
	}

	m.actions = append(m.actions, append([]float64(nil), s.Action...))
	m.scalars = append(m.scalars, append([]float64(nil),
		s.Obs.Scalars...))
	m.rewards = append(m.rewards, s.Reward)
	m.dones = append(m.dones, s.Done)
	m.frames = append(m.frames, frame)
	m.refs = append(m.refs, ref)

	m.epReturn += s.Reward
	m.epLength++
	if s.Done {
		m.finishedReturns = append(m.finishedReturns, m.epReturn)
		m.finishedLengths = append(m.finishedLengths, m.epLength)
		m.epReturn = 0
		m.epLength = 0
	}

	return m.trim()
}

// AppendBatch adds each sample in samples to the Memory in order
func (m *Memory) AppendBatch(samples []buffer.Sample) error {
	for i, s := range samples {
		if err := m.Append(s); err != nil {
			return fmt.Errorf("appendBatch: sample %v: %v", i, err)
		}
	}
	return nil
}

// resolveFrame validates the frame portion of a sample and returns it
// decoded along with its dimensions. Encoded frames are decoded even
// when they will be spilled so that corrupt data is caught on append
// rather than on sampling.
func (m *Memory) resolveFrame(s buffer.Sample) ([]float64, int, int,
	error) {
	switch {
	case s.Obs.Frame != nil && s.Obs.Encoded != nil:
		return nil, 0, 0, fmt.Errorf("sample has both a raw and an " +
			"encoded frame")

	case s.Obs.Frame != nil:
		w, h := s.Obs.FrameW, s.Obs.FrameH
		if w < 1 || h < 1 || len(s.Obs.Frame) != w*h {
			return nil, 0, 0, fmt.Errorf("frame of length %v does not "+
				"match dimensions %v x %v", len(s.Obs.Frame), w, h)
		}
		return append([]float64(nil), s.Obs.Frame...), w, h, nil

	case s.Obs.Encoded != nil:
		frame, w, h, err := buffer.DecodeFrame(s.Obs.Encoded)
		if err != nil {
			return nil, 0, 0, err
		}
		return frame, w, h, nil

	default:
		return nil, 0, 0, fmt.Errorf("sample has no frame")
	}
}

// trim drops the oldest rows until the Memory is within its capacity,
// pruning any spilled frames which no remaining row references
func (m *Memory) trim() error {
	keep := m.conf.Capacity + m.minSamples + 1
	if len(m.actions) <= keep {
		return nil
	}
	cut := len(m.actions) - keep

	// Drop references so the trimmed rows can be collected
	for i := 0; i < cut; i++ {
		m.actions[i] = nil
		m.scalars[i] = nil
		m.frames[i] = nil
	}
	m.actions = m.actions[cut:]
	m.scalars = m.scalars[cut:]
	m.frames = m.frames[cut:]
	m.refs = m.refs[cut:]
	m.rewards = m.rewards[cut:]
	m.dones = m.dones[cut:]

	if m.store == nil {
		return nil
	}

	below := m.nextRef
	for i, frame := range m.frames {
		if frame == nil {
			below = m.refs[i]
			break
		}
	}
	if err := m.store.Prune(below); err != nil {
		return &MemoryError{Op: "append", Err: err}
	}
	return nil
}

// frameAt returns the decoded frame of row i, reading it back from the
// store if it was spilled
func (m *Memory) frameAt(i int) ([]float64, error) {
	if m.frames[i] != nil {
		return m.frames[i], nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("row %v has no frame and no store "+
			"exists", i)
	}

	frame, w, h, err := m.store.Frame(m.refs[i])
	if err != nil {
		return nil, err
	}
	if w != m.frameW || h != m.frameH {
		return nil, fmt.Errorf("stored frame has dimensions %v x %v "+
			"\n\twant(%v x %v)", w, h, m.frameW, m.frameH)
	}
	return frame, nil
}

// ObsDims returns the length of a fully reconstructed observation
func (m *Memory) ObsDims() int {
	return m.scalarDims + m.conf.HistoryLen*m.frameW*m.frameH +
		m.conf.ActionTailLen*m.actionDims
}

// ActionDims returns the length of a stored action
func (m *Memory) ActionDims() int {
	return m.actionDims
}

// transitionParts reconstructs transition i as flat slices. Index i
// ranges over [0, Len()). The anchor row of transition i is
// idxNow = i + minSamples: the observation ending at the row before it
// is the state, the action of the anchor row is the action taken in
// that state, and the observation ending at the anchor row is the next
// state.
func (m *Memory) transitionParts(i int) (state, action []float64,
	reward, discount float64, nextState, nextAction []float64,
	done bool, err error) {
	if i < 0 || i >= m.Len() {
		err = fmt.Errorf("index out of range \n\twant(in [0, %v))"+
			" \n\thave(%v)", m.Len(), i)
		return
	}

	idxLast := i + m.minSamples - 1
	idxNow := idxLast + 1

	state, err = m.observation(idxLast)
	if err != nil {
		return
	}
	nextState, err = m.observation(idxNow)
	if err != nil {
		return
	}

	action = m.actions[idxNow]
	nextAction = m.actions[idxNow+1]
	reward = m.rewards[idxNow]
	done = m.dones[idxNow]
	discount = m.conf.Discount
	if done {
		discount = 0
	}
	return
}

// observation reconstructs the full observation ending at row last:
// the scalars of row last, the HistoryLen frames ending at row last
// from oldest to newest, then the ActionTailLen actions ending at row
// last from oldest to newest.
func (m *Memory) observation(last int) ([]float64, error) {
	obs := make([]float64, 0, m.ObsDims())
	obs = append(obs, m.scalars[last]...)

	for row := last - m.conf.HistoryLen + 1; row <= last; row++ {
		frame, err := m.frameAt(row)
		if err != nil {
			return nil, err
		}
		obs = append(obs, frame...)
	}

	for row := last - m.conf.ActionTailLen + 1; row <= last; row++ {
		obs = append(obs, m.actions[row]...)
	}
	return obs, nil
}

// Transition reconstructs transition i of the Memory
func (m *Memory) Transition(i int) (timestep.Transition, error) {
	state, action, reward, discount, nextState, nextAction, _,
		err := m.transitionParts(i)
	if err != nil {
		return timestep.Transition{}, &MemoryError{Op: "transition",
			Err: err}
	}

	// Actions alias column storage, so copy them before handing them
	// out behind a mutable vector
	action = append([]float64(nil), action...)
	nextAction = append([]float64(nil), nextAction...)

	return timestep.Transition{
		State:      mat.NewVecDense(len(state), state),
		Action:     mat.NewVecDense(len(action), action),
		Reward:     reward,
		Discount:   discount,
		NextState:  mat.NewVecDense(len(nextState), nextState),
		NextAction: mat.NewVecDense(len(nextAction), nextAction),
	}, nil
}

// Batch is a batch of reconstructed transitions stored in flat,
// row-major columns
type Batch struct {
	Size       int
	ObsDims    int
	ActionDims int

	States      []float64
	Actions     []float64
	Rewards     []float64
	Discounts   []float64
	NextStates  []float64
	NextActions []float64
	Dones       []bool
}

// SampleBatch draws a batch of transitions from the Memory using its
// configured sampling method
func (m *Memory) SampleBatch() (Batch, error) {
	if m.Len() == 0 {
		return Batch{}, &MemoryError{Op: "sample", Err: errEmptyMemory}
	}
	if m.Len() < m.sampler.BatchSize() {
		return Batch{}, &MemoryError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	batch, err := m.gather(m.sampler.choose(m.Len()))
	if err != nil {
		return Batch{}, &MemoryError{Op: "sample", Err: err}
	}
	return batch, nil
}

// SampleTrajectory draws n consecutive transitions starting at a
// uniformly random row, preserving their time order
func (m *Memory) SampleTrajectory(n int) (Batch, error) {
	if n < 1 {
		return Batch{}, &MemoryError{
			Op: "trajectory",
			Err: fmt.Errorf("trajectory length must be positive "+
				"\n\twant(>= 1) \n\thave(%v)", n),
		}
	}
	if m.Len() == 0 {
		return Batch{}, &MemoryError{
			Op:  "trajectory",
			Err: errEmptyMemory,
		}
	}
	if m.Len() < n {
		return Batch{}, &MemoryError{
			Op:  "trajectory",
			Err: errInsufficientSamples,
		}
	}

	start := m.rng.Intn(m.Len() - n + 1)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = start + i
	}

	batch, err := m.gather(indices)
	if err != nil {
		return Batch{}, &MemoryError{Op: "trajectory", Err: err}
	}
	return batch, nil
}

// gather reconstructs the transitions at indices into a Batch
func (m *Memory) gather(indices []int) (Batch, error) {
	batch := Batch{
		Size:        len(indices),
		ObsDims:     m.ObsDims(),
		ActionDims:  m.actionDims,
		States:      make([]float64, 0, len(indices)*m.ObsDims()),
		Actions:     make([]float64, 0, len(indices)*m.actionDims),
		Rewards:     make([]float64, 0, len(indices)),
		Discounts:   make([]float64, 0, len(indices)),
		NextStates:  make([]float64, 0, len(indices)*m.ObsDims()),
		NextActions: make([]float64, 0, len(indices)*m.actionDims),
		Dones:       make([]bool, 0, len(indices)),
	}

	for _, i := range indices {
		state, action, reward, discount, nextState, nextAction, done,
			err := m.transitionParts(i)
		if err != nil {
			return Batch{}, err
		}

		batch.States = append(batch.States, state...)
		batch.Actions = append(batch.Actions, action...)
		batch.Rewards = append(batch.Rewards, reward)
		batch.Discounts = append(batch.Discounts, discount)
		batch.NextStates = append(batch.NextStates, nextState...)
		batch.NextActions = append(batch.NextActions, nextAction...)
		batch.Dones = append(batch.Dones, done)
	}
	return batch, nil
}

// TrainStats summarizes and clears the episodes completed since the
// last call. Episode boundaries are tracked as samples are appended,
// so the statistics cover training episodes even after the rows
// themselves have been trimmed.
func (m *Memory) TrainStats() ReturnStats {
	if len(m.finishedReturns) == 0 {
		return ReturnStats{}
	}

	lengths := make([]float64, len(m.finishedLengths))
	for i, l := range m.finishedLengths {
		lengths[i] = float64(l)
	}

	stats := ReturnStats{
		Episodes:   len(m.finishedReturns),
		MeanReturn: stat.Mean(m.finishedReturns, nil),
		MeanLength: stat.Mean(lengths, nil),
	}
	m.finishedReturns = m.finishedReturns[:0]
	m.finishedLengths = m.finishedLengths[:0]
	return stats
}

// memoryView is the serialized form of a Memory
type memoryView struct {
	Conf Config

	Actions [][]float64
	Scalars [][]float64
	Frames  [][]float64
	Refs    []uint64
	Rewards []float64
	Dones   []bool

	ActionDims int
	ScalarDims int
	FrameW     int
	FrameH     int
	NextRef    uint64

	EpReturn        float64
	EpLength        int
	FinishedReturns []float64
	FinishedLengths []int
}

// GobEncode implements the gob.GobEncoder interface so a Memory can be
// checkpointed
func (m *Memory) GobEncode() ([]byte, error) {
	view := memoryView{
		Conf:            m.conf,
		Actions:         m.actions,
		Scalars:         m.scalars,
		Frames:          m.frames,
		Refs:            m.refs,
		Rewards:         m.rewards,
		Dones:           m.dones,
		ActionDims:      m.actionDims,
		ScalarDims:      m.scalarDims,
		FrameW:          m.frameW,
		FrameH:          m.frameH,
		NextRef:         m.nextRef,
		EpReturn:        m.epReturn,
		EpLength:        m.epLength,
		FinishedReturns: m.finishedReturns,
		FinishedLengths: m.finishedLengths,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(view); err != nil {
		return nil, fmt.Errorf("gobEncode: could not encode memory: %v",
			err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The sampling
// source is re-seeded from the decoded Config rather than restored.
func (m *Memory) GobDecode(data []byte) error {
	var view memoryView
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&view); err != nil {
		return fmt.Errorf("gobDecode: could not decode memory: %v", err)
	}

	rebuilt, err := NewMemory(view.Conf)
	if err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	rebuilt.actions = view.Actions
	rebuilt.scalars = view.Scalars
	rebuilt.frames = view.Frames
	rebuilt.refs = view.Refs
	rebuilt.rewards = view.Rewards
	rebuilt.dones = view.Dones
	rebuilt.actionDims = view.ActionDims
	rebuilt.scalarDims = view.ScalarDims
	rebuilt.frameW = view.FrameW
	rebuilt.frameH = view.FrameH
	rebuilt.nextRef = view.NextRef
	rebuilt.epReturn = view.EpReturn
	rebuilt.epLength = view.EpLength
	rebuilt.finishedReturns = view.FinishedReturns
	rebuilt.finishedLengths = view.FinishedLengths

	*m = *rebuilt
	return nil
}
