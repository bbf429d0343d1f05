package experiment

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/sarchlab/tcpgoodput/datarecording"
	"github.com/sarchlab/tcpgoodput/monitoring"
	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/hooking"
	"github.com/sarchlab/tcpgoodput/sim/id"
	"github.com/sarchlab/tcpgoodput/sim/timing"
	"github.com/sarchlab/tcpgoodput/tcp"
	"github.com/sarchlab/tcpgoodput/tracing"
)

// Builder can be used to build an experiment.
type Builder struct {
	config  Config
	variant tcp.Variant
	engine  SimulationEngine

	leaf, core network.LinkSpec
	horizon    timing.VTimeInSec
	plan       AddressPlan

	jitterSeed, jitterStream uint64
	jitterMin, jitterMax     timing.VTimeInSec

	dataRecorder datarecording.DataRecorder
	traceCwnd    bool
	monitor      *monitoring.Monitor
	eventLogger  hooking.Hook
	tracers      []tracing.Tracer
}

// MakeBuilder creates a builder with the fixed parameters of the
// experiment and the default configuration.
func MakeBuilder() Builder {
	return Builder{
		config:       DefaultConfig(),
		variant:      tcp.Tahoe,
		leaf:         LeafLink,
		core:         CoreLink,
		horizon:      Horizon,
		plan:         DefaultAddressPlan(),
		jitterSeed:   JitterSeed,
		jitterStream: JitterStream,
		jitterMin:    JitterMin,
		jitterMax:    JitterMax,
	}
}

// WithConfig sets the knobs of the run.
func (b Builder) WithConfig(cfg Config) Builder {
	b.config = cfg
	return b
}

// WithVariant selects the TCP loss recovery algorithm.
func (b Builder) WithVariant(v tcp.Variant) Builder {
	b.variant = v
	return b
}

// WithEngine sets the engine that runs the experiment. A serial engine is
// created if none is given.
func (b Builder) WithEngine(e SimulationEngine) Builder {
	b.engine = e
	return b
}

// WithLinks replaces the leaf and core links.
func (b Builder) WithLinks(leaf, core network.LinkSpec) Builder {
	b.leaf = leaf
	b.core = core

	return b
}

// WithHorizon sets when the run ends.
func (b Builder) WithHorizon(h timing.VTimeInSec) Builder {
	b.horizon = h
	return b
}

// WithAddressPlan replaces the address blocks.
func (b Builder) WithAddressPlan(p AddressPlan) Builder {
	b.plan = p
	return b
}

// WithJitter replaces the generator and window of the start offsets.
func (b Builder) WithJitter(seed, stream uint64, min, max timing.VTimeInSec) Builder {
	b.jitterSeed = seed
	b.jitterStream = stream
	b.jitterMin = min
	b.jitterMax = max

	return b
}

// WithDataRecorder stores the goodput records, queue drops and connection
// events in the recorder.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.dataRecorder = r
	return b
}

// WithCwndTracing also stores every congestion window change. It only
// matters together with a data recorder.
func (b Builder) WithCwndTracing() Builder {
	b.traceCwnd = true
	return b
}

// WithMonitor registers the engine, nodes, applications and queues with the
// monitor. The engine must support pausing.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithEventLogger attaches a hook that sees every event of the engine.
func (b Builder) WithEventLogger(h hooking.Hook) Builder {
	b.eventLogger = h
	return b
}

// WithTracers attaches tracers to every queue and every connection.
func (b Builder) WithTracers(t ...tracing.Tracer) Builder {
	b.tracers = append(b.tracers[:len(b.tracers):len(b.tracers)], t...)
	return b
}

// Build validates the configuration and creates the experiment.
func (b Builder) Build() (*Experiment, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	if b.horizon <= b.jitterMax || b.jitterMin < 0 || b.jitterMax < b.jitterMin {
		return nil, fmt.Errorf("%w: jitter window [%g, %g] does not fit before %g s",
			ErrInvalidConfig, b.jitterMin, b.jitterMax, b.horizon)
	}

	if _, err := tcp.ParseVariant(string(b.variant)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	defaults, err := NewTransportDefaults(b.config)
	if err != nil {
		return nil, err
	}

	defaults = defaults.WithVariant(b.variant)

	engine := b.engine
	if engine == nil {
		engine = timing.NewSerialEngine()
	}

	var monitoredEngine monitoring.Engine
	if b.monitor != nil {
		var ok bool
		monitoredEngine, ok = engine.(monitoring.Engine)
		if !ok {
			log.Panicf("engine %T cannot be monitored", engine)
		}
	}

	e := &Experiment{
		id:              id.Unique(),
		config:          b.config,
		defaults:        defaults,
		engine:          engine,
		leaf:            b.leaf,
		core:            b.core,
		horizon:         b.horizon,
		plan:            b.plan,
		jitter:          NewJitterScheduler(b.jitterSeed, b.jitterStream, b.jitterMin, b.jitterMax),
		dataRecorder:    b.dataRecorder,
		monitor:         b.monitor,
		monitoredEngine: monitoredEngine,
		eventLogger:     b.eventLogger,
		tracers:         b.tracers,
		reporter:        NewGoodputReporter(),
	}

	if b.dataRecorder != nil {
		t := tracing.NewDBTracer(engine, b.dataRecorder)
		if !b.traceCwnd {
			t.WithoutCwnd()
		}

		e.tracers = append(e.tracers, t)
	}

	return e, nil
}

// An Experiment is a dumbbell with one bulk transfer per leaf pair.
type Experiment struct {
	id       string
	config   Config
	defaults TransportDefaults
	engine   SimulationEngine

	leaf, core network.LinkSpec
	horizon    timing.VTimeInSec
	plan       AddressPlan
	jitter     *JitterScheduler

	dataRecorder    datarecording.DataRecorder
	monitor         *monitoring.Monitor
	monitoredEngine monitoring.Engine
	eventLogger     hooking.Hook
	tracers         []tracing.Tracer
	progressBar     *monitoring.ProgressBar
	bottleneck      *tracing.BusyTimeTracer
	queueLevels     *tracing.QueueAnalyzer
	runInfo         *datarecording.RunInfoRecorder

	ran      bool
	topology *Topology
	flows    []*Flow
	reporter *GoodputReporter
}

// ID returns the unique id of the run.
func (e *Experiment) ID() string {
	return e.id
}

// Config returns the configuration of the run.
func (e *Experiment) Config() Config {
	return e.config
}

// TransportDefaults returns the socket and queue settings of the run.
func (e *Experiment) TransportDefaults() TransportDefaults {
	return e.defaults
}

// Engine returns the engine that drives the run.
func (e *Experiment) Engine() SimulationEngine {
	return e.engine
}

// Topology returns the dumbbell, or nil before Run.
func (e *Experiment) Topology() *Topology {
	return e.topology
}

// Flows returns the flows, or nil before Run.
func (e *Experiment) Flows() []*Flow {
	return e.flows
}

// Records returns the goodput records of a finished run.
func (e *Experiment) Records() []GoodputRecord {
	return e.reporter.Records()
}

// Run builds the dumbbell, starts the flows, runs to the horizon and writes
// one goodput line per flow to w. Nothing is written if the run fails. An
// experiment can only run once.
func (e *Experiment) Run(w io.Writer) ([]GoodputRecord, error) {
	if e.ran {
		log.Panic("an experiment can only run once")
	}

	e.ran = true

	if err := e.setUp(); err != nil {
		return nil, err
	}

	e.attachObservers()

	err := RunDriver{Engine: e.engine, Horizon: e.horizon}.Run()

	e.detachObservers()
	e.finishRunInfo(err)

	if err != nil {
		return nil, err
	}

	records := e.reporter.Collect(e.flows, e.config, e.horizon)

	if e.dataRecorder != nil {
		e.reporter.Store(e.dataRecorder)
	}

	if err := e.reporter.Report(w); err != nil {
		return records, err
	}

	return records, nil
}

func (e *Experiment) setUp() error {
	topo, err := BuildDumbbell(
		e.engine, e.config.FlowCount, e.leaf, e.core, e.defaults, e.plan)
	if err != nil {
		return err
	}

	e.topology = topo

	offsets := e.jitter.Offsets(int(e.config.FlowCount))

	flows, err := InstallFlows(e.engine, topo, offsets, e.config, e.horizon)
	if err != nil {
		return err
	}

	e.flows = flows

	return ResolveRoutes(topo)
}

func (e *Experiment) attachObservers() {
	e.bottleneck = tracing.NewBusyTimeTracer(e.engine, e.topology.Bottleneck())
	e.queueLevels = tracing.NewQueueAnalyzer(e.engine)
	e.queueLevels.Watch(e.topology.Devices()...)

	if e.eventLogger != nil {
		e.engine.AcceptHook(e.eventLogger)
	}

	if e.dataRecorder != nil {
		e.startRunInfo()
	}

	for _, t := range e.tracers {
		tracing.TraceQueues(t, e.topology.Devices())
		tracing.TraceConnections(t, e.topology.Stacks())
	}

	if e.monitor != nil {
		e.registerWithMonitor()
	}
}

func (e *Experiment) registerWithMonitor() {
	e.monitor.RegisterEngine(e.monitoredEngine)

	for _, n := range e.topology.Nodes() {
		e.monitor.RegisterComponent(n)
	}

	for _, f := range e.flows {
		e.monitor.RegisterComponent(f.Sender)
		e.monitor.RegisterComponent(f.Receiver)
	}

	for _, d := range e.topology.Devices() {
		e.monitor.RegisterQueue(d.Queue())
	}

	e.progressBar = e.monitor.CreateProgressBar(
		fmt.Sprintf("Experiment %s", e.id), progressUnits(e.horizon))

	e.engine.AcceptHook(hooking.HookFunc(e.updateProgress))
}

// updateProgress reports the simulated time in milliseconds.
func (e *Experiment) updateProgress(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent || e.progressBar == nil {
		return
	}

	e.progressBar.SetFinished(progressUnits(e.engine.Now()))
}

func progressUnits(t timing.VTimeInSec) uint64 {
	return uint64(math.Round(t * 1000))
}

func (e *Experiment) startRunInfo() {
	e.runInfo = datarecording.NewRunInfoRecorder(e.dataRecorder)
	e.runInfo.Start()
	e.runInfo.Add("Run ID", e.id)
	e.runInfo.Add("Variant", string(e.defaults.Variant))
	e.runInfo.Add("Config", fmt.Sprintf("nFlows %d queueSize %d windowSize %d segSize %d",
		e.config.FlowCount, e.config.QueueCapacityBytes,
		e.config.WindowSizeBytes, e.config.SegmentSizeBytes))
}

func (e *Experiment) finishRunInfo(runErr error) {
	if e.runInfo == nil {
		return
	}

	outcome := "completed"
	if runErr != nil {
		outcome = runErr.Error()
	}

	e.runInfo.Add("Outcome", outcome)
	e.runInfo.Finish()
}

func (e *Experiment) detachObservers() {
	for _, t := range e.tracers {
		t.Terminate()
	}

	if e.progressBar != nil {
		e.monitor.CompleteProgressBar(e.progressBar)
		e.progressBar = nil
	}
}

// Manifest describes the run. Flow results are only filled in once Run has
// returned.
func (e *Experiment) Manifest() Manifest {
	seed, stream := e.jitter.Seed()
	jMin, jMax := e.jitter.Window()

	m := Manifest{
		RunID: e.id,
		Config: ManifestConfig{
			FlowCount:  e.config.FlowCount,
			QueueSize:  e.config.QueueCapacityBytes,
			WindowSize: e.config.WindowSizeBytes,
			SegSize:    e.config.SegmentSizeBytes,
			Variant:    string(e.defaults.Variant),
		},
		Links: ManifestLinks{
			Leaf: e.leaf.String(),
			Core: e.core.String(),
		},
		Horizon: e.horizon,
		Jitter: ManifestJitter{
			Seed:   seed,
			Stream: stream,
			Min:    jMin,
			Max:    jMax,
		},
	}

	records := e.reporter.Records()
	for i, f := range e.flows {
		mf := ManifestFlow{
			Index:       f.Index,
			Sender:      e.topology.LeftAddress(f.Index).String(),
			Receiver:    f.Sender.Remote().String(),
			StartOffset: f.StartOffset,
		}

		if i < len(records) {
			mf.ReceivedBytes = records[i].ReceivedBytes
			mf.Goodput = records[i].GoodputBytesPerSecond
		}

		m.Flows = append(m.Flows, mf)
	}

	if e.topology != nil {
		m.Queues = droppingQueues(e.topology.Devices())
	}

	if e.bottleneck != nil {
		m.BottleneckUtilization = e.bottleneck.Utilization(e.horizon)
	}

	if e.queueLevels != nil {
		m.BusiestQueues = busiestQueues(e.queueLevels.Levels(e.horizon))
	}

	return m
}

func droppingQueues(devs []*network.Device) []ManifestQueue {
	var queues []ManifestQueue

	for _, d := range devs {
		q := d.Queue()
		if q.Drops == 0 {
			continue
		}

		queues = append(queues, ManifestQueue{
			Name:         q.Name(),
			Drops:        q.Drops,
			DroppedBytes: q.DroppedBytes,
		})
	}

	return queues
}

// numBusiestQueues is how many queues a manifest lists by occupancy.
const numBusiestQueues = 3

func busiestQueues(levels []tracing.QueueLevel) []ManifestQueueLevel {
	var queues []ManifestQueueLevel

	for _, l := range levels {
		if len(queues) == numBusiestQueues || l.Average == 0 {
			break
		}

		queues = append(queues, ManifestQueueLevel{
			Name:     l.Queue,
			Average:  l.Average,
			Max:      l.Max,
			Capacity: l.Capacity,
		})
	}

	return queues
}

// QueueLevels returns the occupancy of every queue over the run, fullest
// first. It returns nil before Run.
func (e *Experiment) QueueLevels() []tracing.QueueLevel {
	if e.queueLevels == nil {
		return nil
	}

	return e.queueLevels.Levels(e.horizon)
}
