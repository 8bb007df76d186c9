package engine

import "sync"

// Event categories.
const (
	CategoryStep    = "step"
	CategoryRegen   = "regen"
	CategoryCollect = "collect"
	CategorySort    = "sort"
	CategoryRecycle = "recycle"
	CategorySummary = "summary"
	CategoryStop    = "stop"
)

// Event is one human-readable journal record.
type Event struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Journal is the append-only event log of a run. Records written during a
// step stay pending until the step finishes, so readers never observe a
// half-applied step.
type Journal struct {
	mu        sync.RWMutex
	committed []Event
	pending   []Event
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) append(step int, category, description string) {
	j.mu.Lock()
	j.pending = append(j.pending, Event{Step: step, Description: description, Category: category})
	j.mu.Unlock()
}

func (j *Journal) commit() {
	j.mu.Lock()
	j.committed = append(j.committed, j.pending...)
	j.pending = j.pending[:0]
	j.mu.Unlock()
}

// Len returns the number of committed records.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.committed)
}

// Events returns a copy of all committed records in order.
func (j *Journal) Events() []Event {
	return j.Since(0)
}

// Since returns a copy of committed records starting at offset.
func (j *Journal) Since(offset int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(j.committed) {
		return nil
	}
	out := make([]Event, len(j.committed)-offset)
	copy(out, j.committed[offset:])
	return out
}

// Lines returns the committed record descriptions.
func (j *Journal) Lines() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	lines := make([]string, len(j.committed))
	for i, e := range j.committed {
		lines[i] = e.Description
	}
	return lines
}

// Summaries returns only per-step summaries and stop notices, the records
// a compact status display shows.
func (j *Journal) Summaries() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for _, e := range j.committed {
		if e.Category == CategoryStop || e.Category == CategorySummary {
			out = append(out, e)
		}
	}
	return out
}
