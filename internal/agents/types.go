// Package agents provides the waste-handling agents and their per-step behavior.
// Every agent belongs to one pipeline stage and holds a single counter of
// units it has pulled from the stage upstream of it.
package agents

import (
	"fmt"

	"github.com/talgya/wastesim/internal/world"
)

// AgentID is a unique identifier for an agent. IDs start at 1 and are never reused.
type AgentID uint64

// Role is the pipeline stage an agent works in.
type Role uint8

const (
	RoleCollector Role = iota // Draws from the global waste pool
	RoleSorter                // Drains collectors
	RoleRecycler              // Drains sorters; recycled waste leaves circulation
)

// RoleName returns the display name for a role.
func RoleName(r Role) string {
	switch r {
	case RoleCollector:
		return "collector"
	case RoleSorter:
		return "sorter"
	case RoleRecycler:
		return "recycler"
	default:
		return "unknown"
	}
}

// Label returns the name used for the role in journal records.
func (r Role) Label() string {
	switch r {
	case RoleCollector:
		return "CollectionAgent"
	case RoleSorter:
		return "SortingAgent"
	case RoleRecycler:
		return "RecyclingAgent"
	default:
		return "Agent"
	}
}

// Upstream returns the role this role drains, and false for collectors,
// which draw from the global pool instead.
func (r Role) Upstream() (Role, bool) {
	switch r {
	case RoleSorter:
		return RoleCollector, true
	case RoleRecycler:
		return RoleSorter, true
	default:
		return 0, false
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(RoleName(r)), nil
}

// UnmarshalText decodes a role name produced by MarshalText.
func (r *Role) UnmarshalText(text []byte) error {
	for _, candidate := range []Role{RoleCollector, RoleSorter, RoleRecycler} {
		if RoleName(candidate) == string(text) {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// Agent is a single worker on the grid.
type Agent struct {
	ID       AgentID    `json:"id"`
	Role     Role       `json:"role"`
	Position world.Cell `json:"position"`

	// Units this agent holds: collected, sorted, or recycled depending on Role.
	held int
}

// New creates an agent with an empty counter.
func New(id AgentID, role Role, pos world.Cell) *Agent {
	return &Agent{ID: id, Role: role, Position: pos}
}

// OccupantID implements world.Occupant.
func (a *Agent) OccupantID() uint64 {
	return uint64(a.ID)
}

// Held returns the agent's counter.
func (a *Agent) Held() int {
	return a.held
}

// Active reports whether the agent holds anything.
func (a *Agent) Active() bool {
	return a.held > 0
}

// Withdraw removes up to amount units from the agent and returns how many
// were actually removed. Only the stage directly downstream calls this.
func (a *Agent) Withdraw(amount int) int {
	if amount <= 0 {
		return 0
	}
	if amount > a.held {
		amount = a.held
	}
	a.held -= amount
	return amount
}

// deposit adds units this agent pulled in during its own step.
func (a *Agent) deposit(amount int) {
	if amount > 0 {
		a.held += amount
	}
}

// String returns e.g. "SortingAgent 7".
func (a *Agent) String() string {
	return fmt.Sprintf("%s %d", a.Role.Label(), a.ID)
}

// Sum returns the total held by agents with the given role.
func Sum(list []*Agent, role Role) int {
	total := 0
	for _, a := range list {
		if a.Role == role {
			total += a.held
		}
	}
	return total
}
