package engine

import "github.com/talgya/wastesim/internal/agents"

// Scheduler activates every agent once per step in a freshly shuffled order.
type Scheduler struct {
	agents []*agents.Agent // creation order
	order  []*agents.Agent // activation order of the current (or last) step
	steps  int
}

// NewScheduler creates a scheduler over list, kept in creation order.
func NewScheduler(list []*agents.Agent) *Scheduler {
	s := &Scheduler{}
	for _, a := range list {
		s.Add(a)
	}
	return s
}

// Add appends an agent to the schedule.
func (s *Scheduler) Add(a *agents.Agent) {
	s.agents = append(s.agents, a)
	s.order = append(s.order, a)
}

// Agents returns all agents in creation order.
func (s *Scheduler) Agents() []*agents.Agent {
	out := make([]*agents.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// Steps returns how many times the scheduler has run.
func (s *Scheduler) Steps() int {
	return s.steps
}

// Step draws a new permutation and calls activate once per agent in it.
func (s *Scheduler) Step(rng agents.Rand, activate func(a *agents.Agent)) {
	order := make([]*agents.Agent, len(s.agents))
	copy(order, s.agents)
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	s.order = order

	for _, a := range order {
		activate(a)
	}
	s.steps++
}

// byRole returns the agents of one role in activation order.
func (s *Scheduler) byRole(role agents.Role) []*agents.Agent {
	var out []*agents.Agent
	for _, a := range s.order {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}
