package config

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/trackrl/buffer"
	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/environment/racing"
	"github.com/samuelfneumann/trackrl/environment/wrappers"
	"github.com/samuelfneumann/trackrl/track"
)

// Environment variant names
const (
	LidarEnv  = "lidar"
	HybridEnv = "hybrid"
)

// EnvConfig selects and parameterizes the track racing environment
type EnvConfig struct {
	// Name selects the observation variant: "lidar" or "hybrid"
	Name string `yaml:"name"`

	// Track is a built-in track name or the path of a recorded
	// centerline file
	Track string `yaml:"track" env:"TRACKRL_TRACK"`

	// NumBeams sizes the LIDAR fan; CameraSize sizes the hybrid
	// variant's square camera frame
	NumBeams   int `yaml:"num_beams"`
	CameraSize int `yaml:"camera_size"`

	// HistoryLen stacks the last HistoryLen frames into each
	// observation; ActionTailLen appends the last ActionTailLen
	// actions
	HistoryLen    int `yaml:"history_len"`
	ActionTailLen int `yaml:"action_tail_len"`

	// EpisodeCutoff bounds episode length in steps
	EpisodeCutoff int `yaml:"episode_cutoff"`

	Discount float64 `yaml:"discount"`

	// Discrete selects the 9 arrow-press actions instead of
	// continuous [steer, throttle]
	Discrete bool `yaml:"discrete"`

	// TrackProgress adds the fraction of track completed to each
	// observation
	TrackProgress bool `yaml:"track_progress"`

	// StartRange randomizes episode starts uniformly over the first
	// StartRange fraction of the track. Zero always starts at the
	// beginning.
	StartRange float64 `yaml:"start_range"`

	// CollisionPenalty is the per-step reward cost of wall contact
	CollisionPenalty float64 `yaml:"collision_penalty"`
}

func defaultEnv() EnvConfig {
	return EnvConfig{
		Name:             LidarEnv,
		Track:            "hairpin",
		NumBeams:         racing.DefaultNumBeams,
		CameraSize:       racing.DefaultCameraSize,
		HistoryLen:       4,
		ActionTailLen:    1,
		EpisodeCutoff:    1000,
		Discount:         0.99,
		CollisionPenalty: 0.1,
	}
}

// Validate returns an error if the EnvConfig names an unknown variant
// or track, or carries illegal parameters
func (c EnvConfig) Validate() error {
	switch c.Name {
	case LidarEnv, HybridEnv:
	default:
		return fmt.Errorf("no such environment: %v", c.Name)
	}

	if _, err := c.Centerline(); err != nil {
		return err
	}
	if c.HistoryLen < 1 {
		return fmt.Errorf("history length must be positive \n\twant(>= 1)"+
			" \n\thave(%v)", c.HistoryLen)
	}
	if c.ActionTailLen < 1 {
		return fmt.Errorf("action tail length must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.ActionTailLen)
	}
	if c.EpisodeCutoff < 1 {
		return fmt.Errorf("episode cutoff must be positive \n\twant(>= 1)"+
			" \n\thave(%v)", c.EpisodeCutoff)
	}
	if c.StartRange < 0 || c.StartRange > 1 {
		return fmt.Errorf("start range must be a fraction of the track "+
			"\n\twant(in [0, 1]) \n\thave(%v)", c.StartRange)
	}
	return nil
}

// Centerline resolves the configured track, preferring a recorded
// centerline file at the given path and falling back to the built-in
// tracks
func (c EnvConfig) Centerline() (*track.Centerline, error) {
	if _, err := os.Stat(c.Track); err == nil {
		return track.Load(c.Track)
	}
	return track.Builtin(c.Track)
}

// Create builds the configured environment, reset and ready to step,
// along with the observation layout that compressors and the replay
// memory share. The environment is wrapped so observations carry a
// frame history and an action tail.
func (c EnvConfig) Create(seed uint64) (environment.Environment,
	buffer.Layout, error) {
	line, err := c.Centerline()
	if err != nil {
		return nil, buffer.Layout{}, fmt.Errorf("create: %v", err)
	}

	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := racing.NewRace(c.starter(seed), reward, c.EpisodeCutoff,
		c.CollisionPenalty)

	var env environment.Environment
	switch {
	case c.Name == LidarEnv && c.Discrete:
		env, _, err = racing.NewLidarDiscrete(line, racing.TrackWidth,
			task, c.Discount, c.NumBeams, c.TrackProgress)
	case c.Name == LidarEnv:
		env, _, err = racing.NewLidarContinuous(line, racing.TrackWidth,
			task, c.Discount, c.NumBeams, c.TrackProgress)
	case c.Name == HybridEnv && c.Discrete:
		env, _, err = racing.NewHybridDiscrete(line, racing.TrackWidth,
			task, c.Discount, c.CameraSize, c.TrackProgress)
	case c.Name == HybridEnv:
		env, _, err = racing.NewHybridContinuous(line, racing.TrackWidth,
			task, c.Discount, c.CameraSize, c.TrackProgress)
	default:
		err = fmt.Errorf("no such environment: %v", c.Name)
	}
	if err != nil {
		return nil, buffer.Layout{}, fmt.Errorf("create: %v", err)
	}

	framed, ok := env.(wrappers.Framed)
	if !ok {
		return nil, buffer.Layout{}, fmt.Errorf("create: environment %v "+
			"does not expose its frame layout", c.Name)
	}

	w, h := framed.Frame()
	layout := buffer.Layout{
		Scalars: framed.Scalars(),
		FrameW:  w,
		FrameH:  h,
		Frames:  c.HistoryLen,
		Tail:    c.ActionTailLen * env.ActionSpec().Shape.Len(),
	}

	stacked, _, err := wrappers.NewObservationStack(framed, c.HistoryLen)
	if err != nil {
		return nil, buffer.Layout{}, fmt.Errorf("create: %v", err)
	}
	tailed, _, err := wrappers.NewActionTail(stacked, c.ActionTailLen)
	if err != nil {
		return nil, buffer.Layout{}, fmt.Errorf("create: %v", err)
	}
	return tailed, layout, nil
}

// Compressor returns the sample compressor matching the environment
// variant. Workers compress every step with it before pushing samples
// to the relay.
func (c EnvConfig) Compressor(layout buffer.Layout,
	crcDebug bool) (buffer.Compressor, error) {
	switch c.Name {
	case LidarEnv:
		return buffer.NewLidarCompressor(layout, crcDebug)
	case HybridEnv:
		return buffer.NewFrameCompressor(layout, crcDebug)
	}
	return nil, fmt.Errorf("compressor: no such environment: %v", c.Name)
}

// starter builds the episode start distribution: a fixed start at the
// beginning of the track, or uniform over the first StartRange
// fraction when configured
func (c EnvConfig) starter(seed uint64) environment.Starter {
	if c.StartRange > 0 {
		return environment.NewUniformStarter([]r1.Interval{
			{Min: 0, Max: c.StartRange},
		}, seed)
	}
	return environment.NewFixedStarter([]float64{0})
}
