package engine

import (
	"github.com/talgya/wastesim/internal/agents"
	"github.com/talgya/wastesim/internal/world"
)

// Metrics are the aggregate totals recorded after each completed step.
type Metrics struct {
	Step      int `json:"step" db:"step"`
	Collected int `json:"collected" db:"collected"`
	Sorted    int `json:"sorted" db:"sorted"`
	Recycled  int `json:"recycled" db:"recycled"`
	Remaining int `json:"remaining" db:"remaining"`
}

// Series labels for charting, one per metric.
var SeriesLabels = [4]string{"Collected Waste", "Sorted Waste", "Recycled Waste", "Remaining Waste"}

// AgentView is a read-only rendering of one agent.
type AgentView struct {
	ID       agents.AgentID `json:"id"`
	Role     agents.Role    `json:"role"`
	Position world.Cell     `json:"position"`
	Held     int            `json:"held"`
	Active   bool           `json:"active"`
}

// Snapshot is a consistent copy of model state between steps.
type Snapshot struct {
	RunID    string      `json:"run_id"`
	Step     int         `json:"step"`
	MaxSteps int         `json:"max_steps"`
	Running  bool        `json:"running"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Metrics  Metrics     `json:"metrics"`
	Agents   []AgentView `json:"agents"`
}

func collectMetrics(step int, list []*agents.Agent, remaining int) Metrics {
	return Metrics{
		Step:      step,
		Collected: agents.Sum(list, agents.RoleCollector),
		Sorted:    agents.Sum(list, agents.RoleSorter),
		Recycled:  agents.Sum(list, agents.RoleRecycler),
		Remaining: remaining,
	}
}

// Total returns everything currently accounted for: the unprocessed pool
// plus every stage counter.
func (m Metrics) Total() int {
	return m.Collected + m.Sorted + m.Recycled + m.Remaining
}
