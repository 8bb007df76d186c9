// Agent spawning: creates the initial workforce at random cells.
package agents

import (
	"github.com/talgya/wastesim/internal/world"
)

// Rand is the random source every stochastic decision draws from.
// *math/rand.Rand satisfies it; tests substitute scripted sources.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// RandInt returns a uniform integer in [lo, hi].
func RandInt(rng Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// Spawner creates agents with monotonically increasing IDs.
type Spawner struct {
	rng    Rand
	nextID AgentID
}

// NewSpawner creates a spawner issuing IDs from 1.
func NewSpawner(rng Rand) *Spawner {
	return &Spawner{
		rng:    rng,
		nextID: 1,
	}
}

// NextID returns the ID the next spawned agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

// SpawnRole creates count agents of one role, each placed on an
// independently uniform random cell of g.
func (s *Spawner) SpawnRole(g *world.Grid, role Role, count int) []*Agent {
	list := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		list = append(list, s.spawnOne(g, role))
	}
	return list
}

// SpawnWorkforce creates all collectors, then all sorters, then all recyclers.
func (s *Spawner) SpawnWorkforce(g *world.Grid, collectors, sorters, recyclers int) []*Agent {
	all := make([]*Agent, 0, collectors+sorters+recyclers)
	all = append(all, s.SpawnRole(g, RoleCollector, collectors)...)
	all = append(all, s.SpawnRole(g, RoleSorter, sorters)...)
	all = append(all, s.SpawnRole(g, RoleRecycler, recyclers)...)
	return all
}

func (s *Spawner) spawnOne(g *world.Grid, role Role) *Agent {
	id := s.nextID
	s.nextID++

	pos := world.Cell{
		X: RandInt(s.rng, 0, g.Width-1),
		Y: RandInt(s.rng, 0, g.Height-1),
	}
	a := New(id, role, pos)
	g.Place(a, pos)
	return a
}
