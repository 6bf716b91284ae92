// Command trackrl runs the pieces of a distributed track racing
// reinforcement learning loop: a relay server, a trainer draining
// samples from it, and rollout workers feeding it, plus single-process
// experiments and track tooling. Every command reads the same YAML
// configuration file, given with -config, with TRACKRL_* environment
// variables layered on top.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/config"
	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/environment/racing"
	"github.com/samuelfneumann/trackrl/experiment"
	"github.com/samuelfneumann/trackrl/experiment/checkpointer"
	"github.com/samuelfneumann/trackrl/experiment/tracker"
	"github.com/samuelfneumann/trackrl/relay"
	"github.com/samuelfneumann/trackrl/storage"
	"github.com/samuelfneumann/trackrl/track"
	"github.com/samuelfneumann/trackrl/trainer"
	"github.com/samuelfneumann/trackrl/worker"
)

const usage = `usage: trackrl <command> [flags]

Commands:
  relay      run the relay server connecting workers to the trainer
  trainer    train on samples drained from the relay
  worker     collect samples for the relay (-eval evaluates instead)
  local      run a single-process experiment without a relay
  benchmark  measure the wall-clock cost of the environment loop
  record     drive the built-in pilot around a track and record the
             driven centerline
  render     draw a track, optionally with a piloted lap, to a PNG
  runs       list the runs recorded in the run store

Run 'trackrl <command> -h' for the flags of a command.`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "trackrl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("no command given\n\n%v", usage)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "relay":
		return relayCmd(rest)
	case "trainer":
		return trainerCmd(rest)
	case "worker":
		return workerCmd(rest)
	case "local":
		return localCmd(rest)
	case "benchmark":
		return benchmarkCmd(rest)
	case "record":
		return recordCmd(rest)
	case "render":
		return renderCmd(rest)
	case "runs":
		return runsCmd(rest)
	case "help", "-h", "-help", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("no such command: %v\n\n%v", cmd, usage)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
}

// newLogger builds the process logger. Commands log to stderr so that
// stdout stays free for command output.
func newLogger(debug bool) (*zap.Logger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	conf := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	return conf.Build()
}

// clean maps context cancellation to a clean exit: interrupting a
// command is how long-running commands are stopped.
func clean(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func relayCmd(args []string) error {
	flags := flag.NewFlagSet("relay", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	transport, err := conf.Transport()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := relay.NewServer(transport, conf.Relay.Addr,
		conf.Relay.MaxPendingSamples, log)
	return clean(srv.Serve(ctx))
}

func trainerCmd(args []string) error {
	flags := flag.NewFlagSet("trainer", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	runID := flags.String("run", "",
		"id of an existing run to keep recording under")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	// The environment is only needed to size the agent's weights; the
	// trainer never steps it.
	seed := uint64(conf.Run.Seed)
	env, _, err := conf.Env.Create(seed)
	if err != nil {
		return err
	}
	a, err := conf.Agent.Create(env, seed)
	if err != nil {
		return err
	}
	weighted, ok := a.(trainer.WeightedAgent)
	if !ok {
		return fmt.Errorf("agent %v cannot broadcast weights",
			conf.Agent.Type)
	}

	transport, err := conf.Transport()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := conf.Store.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := ensureRun(ctx, conf, store, *runID, log)
	if err != nil {
		return err
	}

	t, err := trainer.New(conf.TrainingConfig(), transport, conf.Relay.Addr,
		trainer.FromAgent(weighted), store, run, log)
	if err != nil {
		return err
	}
	return clean(t.Run(ctx, conf.Trainer.CheckpointPath))
}

// ensureRun returns the run to record under, creating and saving a new
// run record unless the id of an existing run is given
func ensureRun(ctx context.Context, conf config.Config, store storage.Store,
	id string, log *zap.Logger) (uuid.UUID, error) {
	if id != "" {
		run, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid run id %v: %v", id, err)
		}
		if _, ok, err := store.GetRun(ctx, run); err != nil {
			return uuid.Nil, err
		} else if !ok {
			return uuid.Nil, fmt.Errorf("no such run: %v", id)
		}
		log.Info("resuming run", zap.String("run", id))
		return run, nil
	}

	raw, err := conf.Marshal()
	if err != nil {
		return uuid.Nil, err
	}
	run := storage.Run{
		ID:        uuid.New(),
		Name:      conf.Run.Name,
		Config:    raw,
		CreatedAt: time.Now(),
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return uuid.Nil, err
	}

	log.Info("created run",
		zap.String("run", run.ID.String()),
		zap.String("name", run.Name),
	)
	return run.ID, nil
}

func workerCmd(args []string) error {
	flags := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	eval := flags.Bool("eval", false,
		"evaluate the broadcast policy instead of collecting samples")
	episodes := flags.Int("episodes", 0,
		"number of episodes (0 collects until interrupted; evaluation "+
			"defaults to 10)")
	runID := flags.String("run", "",
		"id of the run to record evaluation episodes under")
	weightsPath := flags.String("weights", "",
		"checkpoint file to initialize the policy weights from")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	seed := uint64(conf.Run.Seed)
	env, layout, err := conf.Env.Create(seed)
	if err != nil {
		return err
	}
	compressor, err := conf.Env.Compressor(layout, conf.Worker.CRCDebug)
	if err != nil {
		return err
	}

	a, err := conf.Agent.Create(env, seed)
	if err != nil {
		return err
	}
	policy, ok := a.(worker.Policy)
	if !ok {
		return fmt.Errorf("agent %v cannot adopt broadcast weights",
			conf.Agent.Type)
	}
	if *weightsPath != "" {
		if err := checkpointer.Load(*weightsPath,
			checkpointer.Weights(policy)); err != nil {
			return err
		}
		log.Info("initialized policy from checkpoint",
			zap.String("file", *weightsPath))
	}

	transport, err := conf.Transport()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := relay.NewWorkerClient(transport, conf.Relay.Addr, log)
	w, err := worker.NewRolloutWorker(env, policy, compressor, client,
		conf.Worker.MaxSamplesPerEpisode, conf.Worker.UpdateActorEvery,
		conf.Run.Seed, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return clean(client.Run(gctx))
	})
	g.Go(func() error {
		defer cancel()
		if *eval {
			return evalEpisodes(gctx, conf, w, *episodes, *runID, log)
		}
		return w.Run(gctx, *episodes)
	})
	return clean(g.Wait())
}

// evalEpisodes runs evaluation episodes and records them in the run
// store when a run id is given
func evalEpisodes(ctx context.Context, conf config.Config,
	w *worker.RolloutWorker, episodes int, runID string,
	log *zap.Logger) error {
	if episodes <= 0 {
		episodes = 10
	}

	returns, lengths, err := w.RunEval(ctx, episodes)
	if err != nil {
		return err
	}

	if runID == "" {
		return nil
	}
	run, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %v: %v", runID, err)
	}

	store, err := conf.Store.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	for i := range returns {
		record := storage.EpisodeRecord{
			Episode: i,
			Return:  returns[i],
			Steps:   lengths[i],
			Eval:    true,
		}
		if err := store.SaveEpisode(ctx, run, record); err != nil {
			return err
		}
	}
	log.Info("recorded evaluation episodes",
		zap.String("run", runID),
		zap.Int("episodes", len(returns)),
	)
	return nil
}

func localCmd(args []string) error {
	flags := flag.NewFlagSet("local", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	steps := flags.Uint("steps", 100_000,
		"total environment steps to run for")
	checkpointPath := flags.String("checkpoint", "",
		"filename prefix for weight checkpoints (empty disables them)")
	checkpointEvery := flags.Int("checkpoint-every", 10_000,
		"environment steps between weight checkpoints")
	weightsPath := flags.String("weights", "",
		"checkpoint file to initialize the agent weights from")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	seed := uint64(conf.Run.Seed)
	env, _, err := conf.Env.Create(seed)
	if err != nil {
		return err
	}
	a, err := conf.Agent.Create(env, seed)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(conf.Run.DataDir, 0o755); err != nil {
		return fmt.Errorf("could not create data directory: %v", err)
	}
	returnsFile := filepath.Join(conf.Run.DataDir, "returns.bin")
	lengthsFile := filepath.Join(conf.Run.DataDir, "lengths.bin")
	trackers := []tracker.Tracker{
		tracker.NewReturn(returnsFile),
		tracker.NewEpisodeLength(lengthsFile),
	}

	var checkpointers []checkpointer.Checkpointer
	if *checkpointPath != "" || *weightsPath != "" {
		weighted, ok := a.(agent.Weighted)
		if !ok {
			return fmt.Errorf("agent %v has no checkpointable weights",
				conf.Agent.Type)
		}
		if *weightsPath != "" {
			if err := checkpointer.Load(*weightsPath,
				checkpointer.Weights(weighted)); err != nil {
				return err
			}
			log.Info("initialized agent from checkpoint",
				zap.String("file", *weightsPath))
		}
		if *checkpointPath != "" {
			checkpointers = append(checkpointers, checkpointer.NewNStep(
				*checkpointEvery, checkpointer.Weights(weighted),
				checkpointer.FileTimer(*checkpointPath, ".bin")))
		}
	}

	log.Info("starting experiment",
		zap.String("environment", conf.Env.Name),
		zap.String("agent", conf.Agent.Type),
		zap.Uint("steps", *steps),
	)

	exp := experiment.NewOnline(env, a, *steps, trackers, checkpointers)
	start := time.Now()
	if err := exp.Run(); err != nil {
		return err
	}
	if err := exp.Save(); err != nil {
		return err
	}

	returns, err := tracker.LoadData(returnsFile)
	if err != nil {
		return err
	}
	log.Info("experiment complete",
		zap.Uint("steps", *steps),
		zap.Int("episodes", len(returns)),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Second)),
		zap.String("returns", returnsFile),
		zap.String("lengths", lengthsFile),
	)
	return nil
}

func benchmarkCmd(args []string) error {
	flags := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	steps := flags.Int("steps", 1000, "environment steps to benchmark")
	actMin := flags.Duration("act-min", 40*time.Millisecond,
		"smallest simulated inference sleep before each step")
	actMax := flags.Duration("act-max", 50*time.Millisecond,
		"largest simulated inference sleep before each step")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	seed := uint64(conf.Run.Seed)
	env, layout, err := conf.Env.Create(seed)
	if err != nil {
		return err
	}
	compressor, err := conf.Env.Compressor(layout, conf.Worker.CRCDebug)
	if err != nil {
		return err
	}
	a, err := conf.Agent.Create(env, seed)
	if err != nil {
		return err
	}
	policy, ok := a.(worker.Policy)
	if !ok {
		return fmt.Errorf("agent %v cannot drive a worker", conf.Agent.Type)
	}

	transport, err := conf.Transport()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The benchmark draws random actions and never touches the relay,
	// so the client stays unconnected.
	client := relay.NewWorkerClient(transport, conf.Relay.Addr, zap.NewNop())
	w, err := worker.NewRolloutWorker(env, policy, compressor, client,
		0, 0, conf.Run.Seed, log)
	if err != nil {
		return err
	}

	report, err := w.RunEnvBenchmark(ctx, *steps, *actMin, *actMax)
	if err != nil {
		return clean(err)
	}
	fmt.Println(report)
	return nil
}

func recordCmd(args []string) error {
	flags := flag.NewFlagSet("record", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	trackName := flags.String("track", "",
		"track to drive: a built-in name or a recorded file "+
			"(defaults to the configured track)")
	out := flags.String("out", "recorded.track",
		"file to save the recorded centerline to")
	png := flags.String("png", "", "also render the recording to this PNG")
	steps := flags.Int("steps", 2000, "maximum environment steps to drive")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	if *trackName != "" {
		conf.Env.Track = *trackName
	}
	line, err := conf.Env.Centerline()
	if err != nil {
		return err
	}

	trajectory, err := pilotLap(line, *steps)
	if err != nil {
		return err
	}

	recorder := track.NewRecorder(track.DefaultMinSpacing)
	for _, pos := range trajectory {
		recorder.Append(pos)
	}
	recorded, err := recorder.Snapshot()
	if err != nil {
		return fmt.Errorf("recording kept too few points: %v", err)
	}

	if err := recorded.Save(*out); err != nil {
		return err
	}
	if *png != "" {
		if err := track.RenderTrack(recorded, racing.TrackWidth,
			*png); err != nil {
			return err
		}
	}

	log.Info("recorded centerline",
		zap.Int("points", recorded.Len()),
		zap.Float64("metres", recorded.Length()),
		zap.String("file", *out),
	)
	return nil
}

func renderCmd(args []string) error {
	flags := flag.NewFlagSet("render", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	trackName := flags.String("track", "",
		"track to draw: a built-in name or a recorded file "+
			"(defaults to the configured track)")
	out := flags.String("out", "track.png", "file to render the PNG to")
	drive := flags.Bool("drive", false, "overlay a lap by the built-in pilot")
	steps := flags.Int("steps", 2000,
		"maximum environment steps for the overlaid lap")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *trackName != "" {
		conf.Env.Track = *trackName
	}
	line, err := conf.Env.Centerline()
	if err != nil {
		return err
	}

	if !*drive {
		return track.RenderTrack(line, racing.TrackWidth, *out)
	}

	trajectory, err := pilotLap(line, *steps)
	if err != nil {
		return err
	}
	return track.RenderRun(line, racing.TrackWidth, trajectory, *out)
}

// pilotLap drives the built-in pilot along line for at most steps
// environment steps, returning the positions the car visited
func pilotLap(line *track.Centerline, steps int) ([]track.Point, error) {
	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := racing.NewRace(environment.NewFixedStarter([]float64{0}),
		reward, steps, 0)

	env, _, err := racing.NewLidarContinuous(line, racing.TrackWidth, task,
		1.0, racing.DefaultNumBeams, false)
	if err != nil {
		return nil, err
	}
	car := env.(racing.Car)

	pilot, err := racing.NewPilot(car, line, racing.DefaultLookahead,
		racing.DefaultCruiseSpeed)
	if err != nil {
		return nil, err
	}

	positions := []track.Point{car.Position()}
	for i := 0; i < steps; i++ {
		_, last, err := env.Step(pilot.Act())
		if err != nil {
			return nil, err
		}
		positions = append(positions, car.Position())
		if last {
			break
		}
	}
	return positions, nil
}

func runsCmd(args []string) error {
	flags := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := conf.Store.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	if conf.Store.Driver == config.SQLiteStore {
		if info, err := os.Stat(conf.Store.Path); err == nil {
			fmt.Printf("store: %v (%v)\n\n", conf.Store.Path,
				humanize.Bytes(uint64(info.Size())))
		}
	}

	for _, run := range runs {
		rounds, err := store.RoundStatsFor(ctx, run.ID)
		if err != nil {
			return err
		}
		episodes, err := store.EpisodesFor(ctx, run.ID)
		if err != nil {
			return err
		}

		fmt.Printf("%v  %v\n", run.ID, run.Name)
		fmt.Printf("    created %v  |  rounds: %v  |  episodes: %v\n",
			humanize.Time(run.CreatedAt),
			humanize.Comma(int64(len(rounds))),
			humanize.Comma(int64(len(episodes))))
		if len(rounds) > 0 {
			last := rounds[len(rounds)-1]
			fmt.Printf("    last round %v.%v  |  memory: %v samples  |  "+
				"train return: %.3f\n", last.Epoch, last.Round,
				humanize.Comma(int64(last.MemorySize)), last.TrainReturn)
		}
	}
	return nil
}
