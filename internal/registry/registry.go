package registry

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity bounds the history when New is given a non-positive size.
const DefaultCapacity = 200

// Registry is a threadsafe, bounded history of sweep runs. Once the
// capacity is reached the oldest run is evicted on every Record.
type Registry struct {
	mu       sync.RWMutex
	nextID   RunID
	runs     []Run // ascending by ID
	capacity int

	// Where to snapshot. If empty, snapshotting is disabled.
	SnapshotPath string
	Logger       *zap.Logger
}

// New loads snapshot if present and returns a ready registry.
func New(snapshotPath string, capacity int) (*Registry, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{
		nextID:       1,
		capacity:     capacity,
		SnapshotPath: snapshotPath,
		Logger:       zap.NewNop(),
	}
	if snapshotPath != "" {
		if err := r.loadSnapshot(snapshotPath); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Capacity reports the maximum number of runs kept.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Record stores run under a fresh ID and returns the stored copy.
func (r *Registry) Record(run Run) Run {
	r.mu.Lock()
	run.ID = r.nextID
	r.nextID++
	if run.RecordedAt.IsZero() {
		run.RecordedAt = now()
	}
	run = clone(run)
	r.runs = append(r.runs, run)
	r.evictLocked()
	r.mu.Unlock()

	r.maybeSave()
	return clone(run)
}

func (r *Registry) evictLocked() {
	if over := len(r.runs) - r.capacity; over > 0 {
		kept := make([]Run, r.capacity)
		copy(kept, r.runs[over:])
		r.runs = kept
	}
}

// Get returns a copy of a Run by ID.
func (r *Registry) Get(id RunID) (Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.runs {
		if r.runs[i].ID == id {
			return clone(r.runs[i]), true
		}
	}
	return Run{}, false
}

// Len reports the number of stored runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// List returns matching runs, newest first.
func (r *Registry) List(f ListFilter) []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	phases := newStrset(f.Phases)
	workDir := strings.TrimSpace(f.WorkDir)

	out := make([]Run, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if len(phases) > 0 && !phases.has(run.Phase) {
			continue
		}
		if workDir != "" && !strings.EqualFold(run.WorkDir, workDir) {
			continue
		}
		out = append(out, clone(run))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// maybeSave performs a best-effort snapshot write if a path is configured.
func (r *Registry) maybeSave() {
	if r.SnapshotPath == "" {
		return
	}
	if err := r.saveSnapshot(r.SnapshotPath); err != nil {
		r.Logger.Warn("history snapshot failed", zap.String("path", r.SnapshotPath), zap.Error(err))
	}
}

func clone(run Run) Run {
	run.Services = append([]string(nil), run.Services...)
	run.Candidates = append([]int(nil), run.Candidates...)
	run.Spared = append([]int(nil), run.Spared...)
	run.Killed = append([]int(nil), run.Killed...)
	run.Errors = append([]string(nil), run.Errors...)
	return run
}
