package engine

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/talgya/wastesim/internal/agents"
	"github.com/talgya/wastesim/internal/world"
)

// scriptRand returns queued Intn values (0 once exhausted) and applies
// queued permutations on Shuffle (identity once exhausted).
type scriptRand struct {
	ints     []int
	perms    [][]int
	shuffles int
}

func (r *scriptRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

// Shuffle rearranges so that position i ends up holding original element perm[i].
func (r *scriptRand) Shuffle(n int, swap func(i, j int)) {
	r.shuffles++
	if len(r.perms) == 0 {
		return
	}
	perm := r.perms[0]
	r.perms = r.perms[1:]

	cur := make([]int, n)
	for i := range cur {
		cur[i] = i
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if cur[j] == perm[i] {
				swap(i, j)
				cur[i], cur[j] = cur[j], cur[i]
				break
			}
		}
	}
}

func mustModel(t *testing.T, p Params, opts ...Option) *Model {
	t.Helper()
	m, err := NewModel(p, opts...)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func TestNewModel_Defaults(t *testing.T) {
	m := mustModel(t, DefaultParams(), WithSeed(1))

	if !m.IsRunning() || m.CurrentStep() != 0 {
		t.Fatalf("new model should be running at step 0")
	}
	if m.TotalWaste() != DefaultInitialWaste {
		t.Fatalf("initial waste: got %d want %d", m.TotalWaste(), DefaultInitialWaste)
	}
	if m.RunID == "" {
		t.Fatalf("run id should be generated")
	}
	snap := m.Snapshot()
	if len(snap.Agents) != 10 {
		t.Fatalf("agents: got %d want 10", len(snap.Agents))
	}
	for i, a := range snap.Agents {
		if a.ID != agents.AgentID(i+1) {
			t.Fatalf("agent %d has id %d", i, a.ID)
		}
		if a.Position.X < 0 || a.Position.X >= 10 || a.Position.Y < 0 || a.Position.Y >= 10 {
			t.Fatalf("agent %d out of bounds at %s", a.ID, a.Position)
		}
	}
}

func TestNewModel_RejectsBadParams(t *testing.T) {
	bad := []Params{
		{Width: 0, Height: 10},
		{Width: 10, Height: -1},
		{Width: 10, Height: 10, Collectors: -1},
		{Width: 10, Height: 10, MaxSteps: -5},
	}
	for _, p := range bad {
		if _, err := NewModel(p); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("params %+v: expected ErrInvalidConfig, got %v", p, err)
		}
	}
	if _, err := NewModel(DefaultParams(), WithInitialWaste(-1)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("negative initial waste: expected ErrInvalidConfig, got %v", err)
	}
}

func TestScenario_SingleCollectorDrainsSmallPool(t *testing.T) {
	p := Params{Width: 10, Height: 10, Collectors: 1, MaxSteps: 5}
	m := mustModel(t, p, WithInitialWaste(3), WithSeed(99))

	if !m.Step() {
		t.Fatalf("first step should run")
	}
	if m.TotalWaste() != 0 {
		t.Fatalf("waste after step 1: got %d want 0", m.TotalWaste())
	}
	if got := m.Metrics().Collected; got != 3 {
		t.Fatalf("collected after step 1: got %d want 3", got)
	}
	for _, line := range m.Log() {
		if strings.HasPrefix(line, "New waste generated") {
			t.Fatalf("no regeneration expected with pool <= %d", RegenThreshold)
		}
	}

	logLen := len(m.Log())
	if m.Step() {
		t.Fatalf("second step should stop the model")
	}
	if m.IsRunning() {
		t.Fatalf("model should be stopped")
	}
	lines := m.Log()
	if len(lines) != logLen+1 || lines[len(lines)-1] != "Simulation stopped: All waste processed." {
		t.Fatalf("unexpected stop records: %v", lines[logLen:])
	}
	if got := m.Metrics().Collected; got != 3 {
		t.Fatalf("stop must not mutate counters, collected=%d", got)
	}
}

func TestTermination_MaxStepsAndPermanence(t *testing.T) {
	p := DefaultParams()
	m := mustModel(t, p, WithSeed(2024))

	calls := 0
	for m.IsRunning() && calls <= p.MaxSteps+1 {
		m.Step()
		calls++
	}
	if m.IsRunning() {
		t.Fatalf("model still running after %d calls", calls)
	}
	if m.CurrentStep() > p.MaxSteps {
		t.Fatalf("completed %d steps, budget is %d", m.CurrentStep(), p.MaxSteps)
	}

	before := m.Snapshot()
	logLen := len(m.Log())
	introduced := m.Introduced()
	for i := 0; i < 3; i++ {
		if m.Step() {
			t.Fatalf("stopped model must not step")
		}
	}
	after := m.Snapshot()
	if after.Metrics != before.Metrics || len(m.Log()) != logLen || m.Introduced() != introduced {
		t.Fatalf("stopped model changed: %+v -> %+v", before.Metrics, after.Metrics)
	}
}

func TestStop_BothConditionsLogged(t *testing.T) {
	m := mustModel(t, Params{Width: 2, Height: 2, MaxSteps: 0}, WithInitialWaste(0))
	m.Step()
	lines := m.Log()
	if len(lines) != 2 {
		t.Fatalf("expected two stop records, got %v", lines)
	}
	if lines[0] != "Simulation stopped: Max steps reached." || lines[1] != "Simulation stopped: All waste processed." {
		t.Fatalf("unexpected stop records: %v", lines)
	}
}

func TestInvariants_ConservationAndNonNegativity(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		p := Params{Width: 6, Height: 4, Collectors: 4, Sorters: 3, Recyclers: 2, MaxSteps: 150}
		m := mustModel(t, p, WithSeed(seed))

		for m.Step() {
			snap := m.Snapshot()
			if snap.Metrics.Remaining < 0 {
				t.Fatalf("seed %d step %d: negative pool %d", seed, snap.Step, snap.Metrics.Remaining)
			}
			for _, a := range snap.Agents {
				if a.Held < 0 {
					t.Fatalf("seed %d step %d: agent %d negative counter", seed, snap.Step, a.ID)
				}
			}
			if total := snap.Metrics.Total(); total > m.Introduced() {
				t.Fatalf("seed %d step %d: accounted %d exceeds introduced %d", seed, snap.Step, total, m.Introduced())
			}
		}
	}
}

func TestRegeneration_Gating(t *testing.T) {
	p := Params{Width: 3, Height: 3, MaxSteps: 10}

	low := mustModel(t, p, WithInitialWaste(5), WithRand(&scriptRand{}))
	low.Step()
	if low.TotalWaste() != 5 {
		t.Fatalf("pool at threshold must not regenerate, got %d", low.TotalWaste())
	}

	rng := &scriptRand{ints: []int{3}} // regen draw 5+3
	high := mustModel(t, p, WithInitialWaste(6), WithRand(rng))
	high.Step()
	if high.TotalWaste() != 14 || high.Introduced() != 14 {
		t.Fatalf("regeneration: got waste=%d introduced=%d want 14/14", high.TotalWaste(), high.Introduced())
	}
	lines := high.Log()
	if lines[2] != "New waste generated: 8" {
		t.Fatalf("unexpected regen record %q", lines[2])
	}
}

func TestRegeneration_DrawRange(t *testing.T) {
	p := Params{Width: 3, Height: 3, MaxSteps: 500}
	m := mustModel(t, p, WithInitialWaste(50), WithRand(rand.New(rand.NewSource(8))))
	prev := m.TotalWaste()
	for m.Step() {
		got := m.TotalWaste() - prev
		if got < RegenMin || got > RegenMax {
			t.Fatalf("regen without agents added %d, want [%d,%d]", got, RegenMin, RegenMax)
		}
		prev = m.TotalWaste()
	}
}

func TestActivationOrder_SorterSeesCollectorState(t *testing.T) {
	p := Params{Width: 3, Height: 3, Collectors: 1, Sorters: 1, MaxSteps: 10}

	// Collector first: the sorter sees the freshly collected unit.
	first := mustModel(t, p, WithRand(&scriptRand{perms: [][]int{{0, 1}}}))
	first.Step()
	if mt := first.Metrics(); mt.Collected != 0 || mt.Sorted != 1 {
		t.Fatalf("collector-first: got %+v", mt)
	}

	// Sorter first: it sees an empty collector.
	second := mustModel(t, p, WithRand(&scriptRand{perms: [][]int{{1, 0}}}))
	second.Step()
	if mt := second.Metrics(); mt.Collected != 1 || mt.Sorted != 0 {
		t.Fatalf("sorter-first: got %+v", mt)
	}
}

func TestSorter_IteratesInActivationOrder(t *testing.T) {
	p := Params{Width: 3, Height: 3, Collectors: 2, Sorters: 1, MaxSteps: 10}
	m := mustModel(t, p, WithRand(&scriptRand{perms: [][]int{{1, 0, 2}}}))
	m.Step()

	var sorted []string
	for _, line := range m.Log() {
		if strings.HasPrefix(line, "SortingAgent") {
			sorted = append(sorted, line)
		}
	}
	if len(sorted) != 2 {
		t.Fatalf("expected two sort records, got %v", sorted)
	}
	if !strings.HasSuffix(sorted[0], "from CollectionAgent 2.") || !strings.HasSuffix(sorted[1], "from CollectionAgent 1.") {
		t.Fatalf("sorter should follow activation order: %v", sorted)
	}
}

func TestScheduler_ReshufflesEveryStep(t *testing.T) {
	rng := &scriptRand{}
	m := mustModel(t, Params{Width: 4, Height: 4, Collectors: 3, Sorters: 2, Recyclers: 1, MaxSteps: 7}, WithRand(rng))
	for m.Step() {
	}
	if rng.shuffles != 7 {
		t.Fatalf("shuffles: got %d want 7", rng.shuffles)
	}
}

func TestScheduler_ActivatesEachAgentOnce(t *testing.T) {
	var list []*agents.Agent
	for i := 1; i <= 6; i++ {
		list = append(list, agents.New(agents.AgentID(i), agents.RoleCollector, world.Cell{}))
	}
	s := NewScheduler(list)

	rng := rand.New(rand.NewSource(3))
	for step := 0; step < 20; step++ {
		counts := map[agents.AgentID]int{}
		s.Step(rng, func(a *agents.Agent) { counts[a.ID]++ })
		if len(counts) != len(list) {
			t.Fatalf("step %d activated %d distinct agents, want %d", step, len(counts), len(list))
		}
		for id, n := range counts {
			if n != 1 {
				t.Fatalf("step %d activated agent %d %d times", step, id, n)
			}
		}
	}
	if got := s.Agents(); got[0].ID != 1 || got[5].ID != 6 {
		t.Fatalf("creation order must be preserved")
	}
	if s.Steps() != 20 {
		t.Fatalf("steps: got %d want 20", s.Steps())
	}
}

func TestHistory_OneRowPerStep(t *testing.T) {
	m := mustModel(t, DefaultParams(), WithSeed(11))
	for i := 0; i < 12; i++ {
		m.Step()
	}
	h := m.History()
	if len(h) != m.CurrentStep() {
		t.Fatalf("history rows %d, steps %d", len(h), m.CurrentStep())
	}
	for i, row := range h {
		if row.Step != i+1 {
			t.Fatalf("row %d has step %d", i, row.Step)
		}
	}
	if last := h[len(h)-1]; last != m.Metrics() {
		t.Fatalf("last history row %+v differs from current metrics %+v", last, m.Metrics())
	}
}

func TestStep_RecordFormat(t *testing.T) {
	m := mustModel(t, Params{Width: 2, Height: 2, Collectors: 1, MaxSteps: 3}, WithRand(&scriptRand{ints: []int{0, 0, 0, 1}}))
	m.Step()
	want := []string{
		"--- Step 1 ---",
		"Total Waste at Start: 100",
		"New waste generated: 5",
		"CollectionAgent 1 collected 2 units of waste.",
		"Summary: Total Waste Remaining = 103",
		"------------------------",
	}
	got := m.Log()
	if len(got) != len(want) {
		t.Fatalf("records: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d: got %q want %q", i, got[i], want[i])
		}
	}
	if sums := m.Journal().Summaries(); len(sums) != 1 || sums[0].Step != 1 {
		t.Fatalf("summaries: got %+v", sums)
	}
}
