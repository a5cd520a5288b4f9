package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/sarchlab/actsim/config"
	"github.com/sarchlab/actsim/datarecording"
	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/monitoring"
	"github.com/sarchlab/actsim/scenario"
	"github.com/sarchlab/actsim/scripting"
	"github.com/sarchlab/actsim/sim"
	"github.com/sarchlab/actsim/sound"
	"github.com/sarchlab/actsim/terminal"
	"github.com/sarchlab/actsim/worldhandler"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

const terminalLogFile = "actsim.log"

type runOptions struct {
	scenario    string
	speed       int
	speedSet    bool
	monitorPort int
	noSound     bool
	record      bool
	headless    bool
	cycles      uint64
	spawn       string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario.",
	Long: "Run a scenario in the terminal, or without a UI when --headless " +
		"is given. Without --scenario the built-in demo runs.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		opts := runOpts
		opts.speedSet = cmd.Flags().Changed("speed")
		applyRunFlags(cfg, opts)

		return runSimulation(cmd.Context(), cfg, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.scenario, "scenario", "", "Scenario file to run")
	f.IntVar(&runOpts.speed, "speed", sim.MaxSpeed/2, "Initial speed, 0 to 100")
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0,
		"Serve the web monitor on this port")
	f.BoolVar(&runOpts.noSound, "no-sound", false, "Do not play sounds")
	f.BoolVar(&runOpts.record, "record", false,
		"Record simulation events to SQLite")
	f.BoolVar(&runOpts.headless, "headless", false, "Run without the terminal UI")
	f.Uint64Var(&runOpts.cycles, "cycles", 0,
		"Stop a headless run after this many act cycles, 0 runs until interrupted")
	f.StringVar(&runOpts.spawn, "spawn", "",
		"Actor kind added with a right click, defaults to the first kind")
}

func applyRunFlags(cfg *config.Config, opts runOptions) {
	if opts.scenario != "" {
		cfg.Scenario.Path = opts.scenario
	}

	if opts.speedSet {
		cfg.Simulation.InitialSpeed = opts.speed
	}

	if opts.monitorPort != 0 {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Port = opts.monitorPort
	}

	if opts.noSound || opts.headless {
		cfg.Sound.Enabled = false
	}

	if opts.record {
		cfg.Recording.Enabled = true
	}

	if !opts.headless && cfg.Logging.File == "" {
		cfg.Logging.File = terminalLogFile
	}
}

// app holds everything a run wires together.
type app struct {
	cfg       *config.Config
	opts      runOptions
	log       *zap.Logger
	engine    *scripting.Engine
	scenario  *scenario.Scenario
	world     *grid.World
	handler   *worldhandler.Handler
	scheduler *sim.Scheduler
	store     *datarecording.SpeedStore
	monitor   *monitoring.Monitor
	recording func()
}

func runSimulation(ctx context.Context, cfg *config.Config, opts runOptions) error {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a := &app{cfg: cfg, opts: opts, log: logger}

	if err := a.loadScenario(); err != nil {
		return err
	}
	defer a.engine.Close()

	a.openSpeedStore()
	a.buildScheduler()

	if err := a.startRecording(); err != nil {
		return err
	}

	a.startSound()

	if err := a.startMonitor(); err != nil {
		return err
	}

	a.scheduler.Start()
	a.handler.SetWorld(a.world)

	if opts.headless {
		err = a.runHeadless(ctx)
	} else {
		err = a.runTerminal()
	}

	a.scheduler.Abort()
	a.scheduler.Wait()

	if a.recording != nil {
		a.recording()
	}

	if a.monitor != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.monitor.Shutdown(shutdownCtx)
	}

	st := a.scheduler.State()
	a.log.Info("simulation finished",
		zap.Uint64("cycles", st.Cycles),
		zap.Uint64("faults", st.Faults))

	return err
}

func (a *app) loadScenario() error {
	var err error
	if a.cfg.Scenario.Path != "" {
		a.scenario, err = scenario.Load(a.cfg.Scenario.Path)
	} else {
		a.scenario, err = scenario.Demo()
	}
	if err != nil {
		return err
	}

	a.engine = scripting.NewEngine(a.log)

	a.world, err = a.scenario.Build(a.engine)
	if err != nil {
		a.engine.Close()
		return err
	}

	a.log.Info("scenario loaded",
		zap.String("name", a.scenario.Name),
		zap.Int("actors", a.world.NumberOfObjects()))

	return nil
}

func (a *app) openSpeedStore() {
	path := a.cfg.Recording.SpeedPath
	if path == "" {
		return
	}

	store, err := datarecording.OpenSpeedStore(path, a.log)
	if err != nil {
		a.log.Warn("speed will not be remembered", zap.Error(err))
		return
	}
	atexit.Register(func() { _ = store.Close() })

	a.store = store
}

// initialSpeed prefers the --speed flag, then the stored speed, then the
// configured one.
func (a *app) initialSpeed() int {
	speed := a.cfg.Simulation.InitialSpeed
	if a.store == nil || a.opts.speedSet {
		return speed
	}

	stored, ok, err := a.store.Load()
	if err != nil {
		a.log.Warn("cannot read stored speed", zap.Error(err))
		return speed
	}

	if ok {
		return stored
	}

	return speed
}

func (a *app) buildScheduler() {
	simCfg := a.cfg.Simulation

	a.handler = worldhandler.MakeBuilder().
		WithReadTimeout(simCfg.ReadLockTimeout).
		WithLogger(a.log).
		Build()

	b := sim.MakeBuilder().
		WithWorldLock(a.handler.WorldLock()).
		WithWorldSource(a.handler).
		WithLogger(a.log).
		WithInitialSpeed(a.initialSpeed()).
		WithFrameRates(simCfg.MinFrameRate, simCfg.MaxFrameRate).
		WithRepaintTimeout(simCfg.RepaintAckTimeout)

	if !a.opts.headless {
		b = b.WithRepainter(a.handler)
	}

	if a.store != nil {
		b = b.WithSpeedDelegate(a.store)
	}

	a.scheduler = b.Build("actsim")

	a.handler.SetTaskRunner(a.scheduler)
	a.handler.AddWorldListener(a.scheduler)
	a.engine.SetSleeper(a.scheduler)
}

func (a *app) startRecording() error {
	if !a.cfg.Recording.Enabled {
		return nil
	}

	recorder, err := datarecording.New(a.cfg.Recording.Path)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	events, err := datarecording.NewEventLog(recorder, a.scheduler, a.log)
	if err != nil {
		return err
	}
	a.scheduler.AddListener(events)

	exec, err := datarecording.NewExecRecorder(recorder)
	if err != nil {
		return err
	}
	exec.Start()
	exec.Note("Scenario", a.scenario.Name)

	var once sync.Once
	a.recording = func() {
		once.Do(func() {
			if err := exec.Finish(); err != nil {
				a.log.Error("cannot record run info", zap.Error(err))
			}

			if err := recorder.Close(); err != nil {
				a.log.Error("cannot close recording", zap.Error(err))
			}
		})
	}
	atexit.Register(a.recording)

	return nil
}

func (a *app) startSound() {
	if !a.cfg.Sound.Enabled {
		return
	}

	rate := beep.SampleRate(a.cfg.Sound.SampleRate)
	sounds := sound.NewCollection(rate, a.log)

	if err := speaker.Init(sounds.SampleRate(), sounds.SampleRate().N(100*time.Millisecond)); err != nil {
		a.log.Warn("sound disabled", zap.Error(err))
		return
	}
	speaker.Play(sounds)
	atexit.Register(speaker.Close)

	a.engine.SetToneSink(sounds)
	a.scheduler.AddListener(sounds)
}

func (a *app) startMonitor() error {
	if !a.cfg.Monitor.Enabled {
		return nil
	}

	a.monitor = monitoring.NewMonitor().
		WithPortNumber(a.cfg.Monitor.Port).
		WithBrowser(a.cfg.Monitor.OpenBrowser).
		WithLogger(a.log)
	a.monitor.RegisterSimulation(a.scheduler)
	a.monitor.RegisterWorld(a.handler)
	a.scheduler.AddListener(a.monitor)

	return a.monitor.StartServer()
}

func (a *app) runTerminal() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}

	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	canvas := terminal.NewCanvas(screen, a.handler, a.scheduler, a.log)
	if kind := a.spawnKind(); kind != "" {
		canvas.SetActorFactory(func() (grid.Actor, error) {
			return a.engine.NewActor(kind)
		})
	}
	a.handler.SetCanvas(canvas)

	go func() {
		<-a.scheduler.Done()
		canvas.Stop()
	}()

	canvas.Run()

	return nil
}

func (a *app) spawnKind() string {
	if a.opts.spawn != "" {
		return a.opts.spawn
	}

	kinds := a.engine.Kinds()
	if len(kinds) == 0 {
		return ""
	}
	slices.Sort(kinds)

	return kinds[0]
}

func (a *app) runHeadless(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	limit := newCycleLimit(a.scheduler, a.opts.cycles)
	if a.monitor != nil && a.opts.cycles > 0 {
		limit.bar = a.monitor.CreateProgressBar("Headless run", a.opts.cycles)
		defer a.monitor.CompleteProgressBar(limit.bar)
	}
	a.scheduler.AddListener(limit)

	a.scheduler.RunLater(func() { a.scheduler.SetPaused(false) })

	select {
	case <-limit.done:
		if !limit.limitReached() {
			return fmt.Errorf("simulation stopped: %s",
				a.scheduler.State().LastFault)
		}

		return nil
	case <-a.scheduler.Done():
		return errors.New("simulation aborted")
	case <-ctx.Done():
		return nil
	}
}
