package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Engine drives a model forward at a fixed interval.
type Engine struct {
	Model    *Model
	Interval time.Duration // Time between steps; 0 runs as fast as possible

	// Callbacks, populated during setup. Both receive a snapshot taken
	// after the step, so they never see a partially applied step.
	OnStep func(snap Snapshot) // After every completed working step
	OnStop func(snap Snapshot) // Once, when the model stops or Stop is called

	mu      sync.Mutex
	running bool
	done    chan struct{}
	once    sync.Once
}

// NewEngine creates an engine for m with a one-second interval.
func NewEngine(m *Model) *Engine {
	return &Engine{
		Model:    m,
		Interval: time.Second,
		done:     make(chan struct{}),
	}
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run steps the model until it stops or Stop is called. Blocks.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "run_id", e.Model.RunID, "interval", e.Interval)

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if e.OnStop != nil {
			e.OnStop(e.Model.Snapshot())
		}
		slog.Info("simulation engine stopped", "run_id", e.Model.RunID, "step", e.Model.CurrentStep())
	}()

	var tick <-chan time.Time
	if e.Interval > 0 {
		ticker := time.NewTicker(e.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if !e.step() {
			return
		}
		if tick == nil {
			select {
			case <-e.done:
				return
			default:
			}
			continue
		}
		select {
		case <-e.done:
			return
		case <-tick:
		}
	}
}

// Stop halts the loop after the current step. Safe to call more than once.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.done) })
}

// step advances the model by one tick and reports whether to keep going.
func (e *Engine) step() bool {
	if !e.Model.Step() {
		return false
	}
	if e.OnStep != nil {
		e.OnStep(e.Model.Snapshot())
	}
	return true
}
