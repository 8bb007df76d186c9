// Agent behavior: one transfer phase followed by one random move.
// Collectors draw from the global pool, sorters drain collectors, and
// recyclers drain sorters. Every draw is capped at MaxDraw units and can
// never exceed what the source holds.
package agents

import (
	"fmt"

	"github.com/talgya/wastesim/internal/world"
)

// MaxDraw is the per-draw cap. A source holding MaxDraw or fewer units is
// drained completely in one transfer.
const MaxDraw = 5

// Env is what an agent can see and touch while it steps.
type Env interface {
	Rand() Rand
	Grid() *world.Grid

	// Waste returns the global unprocessed pool.
	Waste() int
	// TakeWaste removes n units from the global pool.
	TakeWaste(n int)

	// Peers returns agents with the given role in the current activation order.
	Peers(role Role) []*Agent

	// Record appends a journal entry.
	Record(category, description string)
}

// Step runs one activation of a: transfer for its role, then relocate.
func Step(a *Agent, env Env) {
	switch a.Role {
	case RoleCollector:
		collect(a, env)
	case RoleSorter, RoleRecycler:
		drainUpstream(a, env)
	}
	Relocate(a, env)
}

func collect(a *Agent, env Env) {
	pool := env.Waste()
	if pool <= 0 {
		return
	}

	n := drawFromPool(env.Rand(), pool)
	env.TakeWaste(n)
	a.deposit(n)
	env.Record("collect", fmt.Sprintf("%s collected %d units of waste.", a, n))
}

func drainUpstream(a *Agent, env Env) {
	source, ok := a.Role.Upstream()
	if !ok {
		return
	}

	verb := "sorted"
	category := "sort"
	if a.Role == RoleRecycler {
		verb = "recycled"
		category = "recycle"
	}

	for _, peer := range env.Peers(source) {
		held := peer.Held()
		if held <= 0 {
			continue
		}
		n := peer.Withdraw(drawFromPeer(env.Rand(), held))
		a.deposit(n)
		env.Record(category, fmt.Sprintf("%s %s %d units of waste from %s.", a, verb, n, peer))
	}
}

// drawFromPool draws a collector amount: uniform in [1, MaxDraw], clamped
// to the pool, and the whole pool once it is at or below MaxDraw.
func drawFromPool(rng Rand, pool int) int {
	n := RandInt(rng, 1, MaxDraw)
	if n > pool {
		n = pool
	}
	if pool <= MaxDraw {
		n = pool
	}
	return n
}

// drawFromPeer draws a transfer from a peer holding held > 0 units:
// uniform in [1, min(held, MaxDraw)], and all of it when held <= MaxDraw.
func drawFromPeer(rng Rand, held int) int {
	n := RandInt(rng, 1, min(held, MaxDraw))
	if held <= MaxDraw {
		n = held
	}
	return n
}

// Relocate moves a to a uniformly chosen neighboring cell. With no
// neighbors (a 1×1 grid) the agent stays where it is.
func Relocate(a *Agent, env Env) {
	g := env.Grid()
	moves := g.Neighbors(a.Position)
	if len(moves) == 0 {
		return
	}
	target := moves[env.Rand().Intn(len(moves))]
	g.Move(a, target)
	a.Position = target
}
