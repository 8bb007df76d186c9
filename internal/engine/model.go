// Package engine runs the waste-processing model: the global pool, the
// scheduler, and the step state machine, plus a paced driver for servers.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/wastesim/internal/agents"
	"github.com/talgya/wastesim/internal/entropy"
	"github.com/talgya/wastesim/internal/world"
)

// Model constants.
const (
	DefaultInitialWaste = 100
	RegenThreshold      = 5  // No regeneration once the pool is at or below this
	RegenMin            = 5  // Inclusive lower bound of a regeneration draw
	RegenMax            = 10 // Inclusive upper bound of a regeneration draw
)

const separator = "------------------------"

// ErrInvalidConfig is returned by NewModel for unusable parameters.
var ErrInvalidConfig = errors.New("invalid model config")

// State is the model's run state.
type State uint8

const (
	StateRunning State = iota
	StateStopped
)

// StateName returns a human-readable state name.
func StateName(s State) string {
	if s == StateStopped {
		return "stopped"
	}
	return "running"
}

// Params are the construction parameters of a model.
type Params struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	Collectors int `json:"collectors"`
	Sorters    int `json:"sorters"`
	Recyclers  int `json:"recyclers"`
	MaxSteps   int `json:"max_steps"`
}

// DefaultParams returns the standard 10×10 layout with 5/3/2 agents and 200 steps.
func DefaultParams() Params {
	return Params{
		Width:      10,
		Height:     10,
		Collectors: 5,
		Sorters:    3,
		Recyclers:  2,
		MaxSteps:   200,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Width < 1 || p.Height < 1 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidConfig, p.Width, p.Height)
	}
	if p.Collectors < 0 || p.Sorters < 0 || p.Recyclers < 0 {
		return fmt.Errorf("%w: negative agent count (%d/%d/%d)", ErrInvalidConfig, p.Collectors, p.Sorters, p.Recyclers)
	}
	if p.MaxSteps < 0 {
		return fmt.Errorf("%w: max_steps %d", ErrInvalidConfig, p.MaxSteps)
	}
	return nil
}

// Option customizes a model at construction.
type Option func(*options)

type options struct {
	rng          agents.Rand
	seed         int64
	initialWaste int
	journal      *Journal
	runID        string
}

// WithRand injects the random source. It takes precedence over WithSeed.
func WithRand(rng agents.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithSeed seeds the default random source. Seed 0 picks one at random.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// WithInitialWaste sets the starting size of the global pool.
func WithInitialWaste(n int) Option {
	return func(o *options) { o.initialWaste = n }
}

// WithJournal supplies the journal the model appends to.
func WithJournal(j *Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Model holds the complete run state.
type Model struct {
	RunID  string
	Seed   int64 // Zero when the random source was injected
	Params Params

	mu         sync.RWMutex
	grid       *world.Grid
	schedule   *Scheduler
	rng        agents.Rand
	journal    *Journal
	state      State
	step       int // Completed working steps
	totalWaste int
	introduced int // Initial pool plus every regeneration draw
	history    []Metrics
}

// NewModel builds a running model with every agent on a uniform random cell.
func NewModel(p Params, opts ...Option) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	o := options{initialWaste: DefaultInitialWaste}
	for _, opt := range opts {
		opt(&o)
	}
	if o.initialWaste < 0 {
		return nil, fmt.Errorf("%w: initial waste %d", ErrInvalidConfig, o.initialWaste)
	}

	m := &Model{
		RunID:      o.runID,
		Params:     p,
		rng:        o.rng,
		journal:    o.journal,
		totalWaste: o.initialWaste,
		introduced: o.initialWaste,
	}
	if m.RunID == "" {
		m.RunID = uuid.NewString()
	}
	if m.rng == nil {
		m.rng, m.Seed = entropy.NewRand(o.seed)
	}
	if m.journal == nil {
		m.journal = NewJournal()
	}

	m.grid = world.NewGrid(p.Width, p.Height)
	spawner := agents.NewSpawner(m.rng)
	m.schedule = NewScheduler(spawner.SpawnWorkforce(m.grid, p.Collectors, p.Sorters, p.Recyclers))

	slog.Debug("model created",
		"run_id", m.RunID,
		"grid", m.grid.String(),
		"collectors", p.Collectors,
		"sorters", p.Sorters,
		"recyclers", p.Recyclers,
		"max_steps", p.MaxSteps,
		"initial_waste", o.initialWaste,
	)
	return m, nil
}

// Step advances the model one tick. It returns true if a working step ran,
// and false when the model stopped (now or earlier).
func (m *Model) Step() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped {
		return false
	}

	tick := m.step + 1
	if m.step >= m.Params.MaxSteps || m.totalWaste <= 0 {
		if m.step >= m.Params.MaxSteps {
			m.journal.append(tick, CategoryStop, "Simulation stopped: Max steps reached.")
		}
		if m.totalWaste <= 0 {
			m.journal.append(tick, CategoryStop, "Simulation stopped: All waste processed.")
		}
		m.state = StateStopped
		m.journal.commit()
		slog.Info("simulation stopped",
			"run_id", m.RunID,
			"steps", m.step,
			"remaining", m.totalWaste,
			"max_steps_reached", m.step >= m.Params.MaxSteps,
		)
		return false
	}

	m.journal.append(tick, CategoryStep, fmt.Sprintf("--- Step %d ---", tick))
	m.journal.append(tick, CategoryStep, fmt.Sprintf("Total Waste at Start: %d", m.totalWaste))

	if m.totalWaste > RegenThreshold {
		fresh := agents.RandInt(m.rng, RegenMin, RegenMax)
		m.totalWaste += fresh
		m.introduced += fresh
		m.journal.append(tick, CategoryRegen, fmt.Sprintf("New waste generated: %d", fresh))
	}

	env := &stepEnv{m: m, tick: tick}
	m.schedule.Step(m.rng, func(a *agents.Agent) {
		agents.Step(a, env)
	})

	metrics := collectMetrics(tick, m.schedule.agents, m.totalWaste)
	m.history = append(m.history, metrics)

	m.journal.append(tick, CategorySummary, fmt.Sprintf("Summary: Total Waste Remaining = %d", m.totalWaste))
	m.journal.append(tick, CategoryStep, separator)

	m.step = tick
	m.journal.commit()

	slog.Debug("step complete",
		"step", tick,
		"collected", metrics.Collected,
		"sorted", metrics.Sorted,
		"recycled", metrics.Recycled,
		"remaining", metrics.Remaining,
	)
	return true
}

// IsRunning reports whether the model can still take steps.
func (m *Model) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning
}

// State returns the current run state.
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentStep returns the number of completed working steps.
func (m *Model) CurrentStep() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.step
}

// TotalWaste returns the global unprocessed pool.
func (m *Model) TotalWaste() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalWaste
}

// Introduced returns the initial pool plus all regenerated waste so far.
func (m *Model) Introduced() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.introduced
}

// Metrics returns the current aggregate totals.
func (m *Model) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collectMetrics(m.step, m.schedule.agents, m.totalWaste)
}

// History returns one Metrics row per completed step.
func (m *Model) History() []Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Metrics, len(m.history))
	copy(out, m.history)
	return out
}

// Snapshot returns a consistent copy of the model between steps.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]AgentView, 0, len(m.schedule.agents))
	for _, a := range m.schedule.agents {
		views = append(views, AgentView{
			ID:       a.ID,
			Role:     a.Role,
			Position: a.Position,
			Held:     a.Held(),
			Active:   a.Active(),
		})
	}

	return Snapshot{
		RunID:    m.RunID,
		Step:     m.step,
		MaxSteps: m.Params.MaxSteps,
		Running:  m.state == StateRunning,
		Width:    m.grid.Width,
		Height:   m.grid.Height,
		Metrics:  collectMetrics(m.step, m.schedule.agents, m.totalWaste),
		Agents:   views,
	}
}

// Log returns the committed journal lines in order.
func (m *Model) Log() []string {
	return m.journal.Lines()
}

// Journal returns the model's journal for read access.
func (m *Model) Journal() *Journal {
	return m.journal
}

// Agents returns every agent in creation order. Callers must not mutate them.
func (m *Model) Agents() []*agents.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedule.Agents()
}

// stepEnv is the view of the model an agent gets while it steps.
// The model lock is already held.
type stepEnv struct {
	m    *Model
	tick int
}

func (e *stepEnv) Rand() agents.Rand { return e.m.rng }
func (e *stepEnv) Grid() *world.Grid { return e.m.grid }
func (e *stepEnv) Waste() int { return e.m.totalWaste }
func (e *stepEnv) TakeWaste(n int) { e.m.totalWaste -= n }
func (e *stepEnv) Peers(role agents.Role) []*agents.Agent {
	return e.m.schedule.byRole(role)
}
func (e *stepEnv) Record(category, description string) {
	e.m.journal.append(e.tick, category, description)
}
