// Package scenario assembles a simulation from settings: the world, the
// RNG, connectivity grids, the map loader, host groups with their
// interfaces and movement, and the contact scheduler that drives them.
//
// Everything that used to be process-wide state lives on a
// SimulationContext. Reset tears the context down to its freshly
// configured state so the same settings can be built and run again.
package scenario

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/internal/observability"
	"github.com/signalsfoundry/dtn-contact-sim/internal/settings"
	"github.com/signalsfoundry/dtn-contact-sim/kb"
	"github.com/signalsfoundry/dtn-contact-sim/mapgraph"
	"github.com/signalsfoundry/dtn-contact-sim/model"
	"github.com/signalsfoundry/dtn-contact-sim/movement"
	"github.com/signalsfoundry/dtn-contact-sim/timectrl"
)

const tracerName = "github.com/signalsfoundry/dtn-contact-sim/scenario"

// Defaults for settings that may be omitted.
const (
	DefaultCellSizeMult   = 5
	DefaultUpdateInterval = 1.0
)

// Snapshot is a consistent view of the simulation, published by the run
// loop after every tick. It is safe to read from other goroutines.
type Snapshot struct {
	Name     string             `json:"name"`
	Time     float64            `json:"time"`
	Grids    []core.GridSummary `json:"grids"`
	Hosts    []kb.HostSnapshot  `json:"hosts"`
	Contacts int                `json:"contacts"`
}

// SimulationContext owns every collaborator of one simulation.
type SimulationContext struct {
	Settings  *settings.Settings
	World     model.WorldSize
	Clock     *timectrl.Clock
	RNG       *rand.Rand
	Grids     *core.GridRegistry
	Maps      *mapgraph.Loader
	Hosts     *kb.KnowledgeBase
	Scheduler *core.ContactScheduler
	Log       logging.Logger

	name     string
	seed     uint64
	tick     float64
	tickFlag float64
	endTime  float64
	realTime bool

	contactMetrics core.ContactMetrics
	runMetrics     *observability.RunCollector
	tracer         trace.Tracer
	listeners      []core.ContactListener

	built       bool
	nextAddress int
	nextIfaceID int
	mapNodes    int
	contacts    map[string]*core.ContactTable

	mu       sync.RWMutex
	snapshot Snapshot
}

// Option customises a SimulationContext.
type Option func(*SimulationContext)

// WithContactMetrics records scheduler measurements, typically with an
// observability.ContactCollector.
func WithContactMetrics(m core.ContactMetrics) Option {
	return func(sc *SimulationContext) { sc.contactMetrics = m }
}

// WithRunMetrics records scenario level measurements.
func WithRunMetrics(m *observability.RunCollector) Option {
	return func(sc *SimulationContext) { sc.runMetrics = m }
}

// WithTracer overrides the tracer used for build and run spans. The
// scheduler uses it for tick spans as well.
func WithTracer(t trace.Tracer) Option {
	return func(sc *SimulationContext) {
		if t != nil {
			sc.tracer = t
		}
	}
}

// WithContactListener registers l for contact events of every run.
func WithContactListener(l core.ContactListener) Option {
	return func(sc *SimulationContext) {
		if l != nil {
			sc.listeners = append(sc.listeners, l)
		}
	}
}

// WithUpdateInterval overrides Scenario.updateInterval. Non-positive
// values keep the configured interval.
func WithUpdateInterval(dt float64) Option {
	return func(sc *SimulationContext) { sc.tickFlag = dt }
}

// WithRealTime paces runs against the wall clock.
func WithRealTime() Option {
	return func(sc *SimulationContext) { sc.realTime = true }
}

// NewSimulationContext reads the world configuration from s and wires an
// empty simulation. Call Build to create the hosts.
func NewSimulationContext(s *settings.Settings, log logging.Logger, opts ...Option) (*SimulationContext, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no settings", core.ErrConfig)
	}
	if log == nil {
		log = logging.Noop()
	}
	sc := &SimulationContext{
		Settings: s,
		Log:      log,
		Clock:    timectrl.NewClock(),
		Maps:     mapgraph.NewLoader(log),
		Hosts:    kb.NewKnowledgeBase(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sc)
		}
	}

	cfg, err := sc.readConfig()
	if err != nil {
		return nil, err
	}
	grids, err := core.NewGridRegistry(cfg)
	if err != nil {
		return nil, err
	}
	sc.Grids = grids
	sc.RNG = movement.NewRand(sc.seed)
	sc.contacts = make(map[string]*core.ContactTable)

	schedOpts := []core.SchedulerOption{
		core.WithTracer(sc.tracer),
		core.WithSchedulerLogger(log),
	}
	if sc.contactMetrics != nil {
		schedOpts = append(schedOpts, core.WithContactMetrics(sc.contactMetrics))
	}
	for _, l := range sc.listeners {
		schedOpts = append(schedOpts, core.WithContactListener(l))
	}
	sc.Scheduler = core.NewContactScheduler(sc.Hosts, sc.Grids, sc.Clock, schedOpts...)
	sc.publish(0)
	return sc, nil
}

// readConfig reads the run parameters and returns the grid configuration.
func (sc *SimulationContext) readConfig() (core.GridConfig, error) {
	mm := sc.Settings.Sub("MovementModel", "")
	size, err := mm.CSVInts("worldSize", 2)
	if err != nil {
		return core.GridConfig{}, err
	}
	world := model.WorldSize{W: size[0], H: size[1]}
	if !world.Valid() {
		return core.GridConfig{}, fmt.Errorf("%w: MovementModel.worldSize %dx%d must be positive", core.ErrConfig, world.W, world.H)
	}
	seed, err := mm.IntOr("rngSeed", 0)
	if err != nil {
		return core.GridConfig{}, err
	}

	opt := sc.Settings.Sub("Optimization", "")
	mult, err := opt.IntOr("cellSizeMult", DefaultCellSizeMult)
	if err != nil {
		return core.GridConfig{}, err
	}
	disable, err := opt.BoolOr("disableGridOptimization", false)
	if err != nil {
		return core.GridConfig{}, err
	}

	run := sc.Settings.Sub("Scenario", "")
	tick, err := run.FloatOr("updateInterval", DefaultUpdateInterval)
	if err != nil {
		return core.GridConfig{}, err
	}
	if sc.tickFlag > 0 {
		tick = sc.tickFlag
	}
	if !(tick > 0) {
		return core.GridConfig{}, fmt.Errorf("%w: Scenario.updateInterval must be positive, got %g", core.ErrConfig, tick)
	}
	end, err := run.FloatOr("endTime", 0)
	if err != nil {
		return core.GridConfig{}, err
	}

	sc.World = world
	sc.seed = uint64(seed)
	sc.tick = tick
	sc.endTime = end
	sc.name = run.StringOr("name", "scenario")
	return core.GridConfig{World: world, CellSizeMult: mult, DisableOptimization: disable}, nil
}

// Name returns Scenario.name.
func (sc *SimulationContext) Name() string {
	return sc.name
}

// Reset empties the grids, the map cache and the host registry, forgets
// every contact, reseeds the RNG from the settings and rewinds the clock.
// The context can then be built again.
func (sc *SimulationContext) Reset() error {
	cfg, err := sc.readConfig()
	if err != nil {
		return err
	}
	if err := sc.Grids.Reset(cfg); err != nil {
		return err
	}
	sc.Maps.Reset()
	sc.Hosts.Reset()
	sc.Scheduler.Reset()
	sc.Clock.Reset()
	sc.RNG = movement.NewRand(sc.seed)

	sc.contacts = make(map[string]*core.ContactTable)
	sc.nextAddress, sc.nextIfaceID, sc.mapNodes = 0, 0, 0
	sc.built = false
	sc.publish(0)
	return nil
}

// Snapshot returns the view published after the last tick.
func (sc *SimulationContext) Snapshot() Snapshot {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.snapshot
}

// publish must run on the goroutine that moves the hosts.
func (sc *SimulationContext) publish(now float64) {
	snap := Snapshot{
		Name:     sc.name,
		Time:     now,
		Grids:    sc.Grids.Summaries(),
		Hosts:    sc.Hosts.Snapshots(),
		Contacts: len(sc.Scheduler.ActiveContacts()),
	}
	sc.mu.Lock()
	sc.snapshot = snap
	sc.mu.Unlock()
}

// resolve interprets relative paths against the settings file directory.
func (sc *SimulationContext) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || sc.Settings.Path() == "" {
		return path
	}
	return filepath.Join(filepath.Dir(sc.Settings.Path()), path)
}
