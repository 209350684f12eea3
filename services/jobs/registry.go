// Package jobs keeps finished backtests addressable by id for the life of
// the process.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategy-backtester/services/engine"
)

var ErrNotFound = errors.New("job not found")

type Status string

const (
	StatusCompleted Status = "completed"
	StatusNoData    Status = "no_data"
)

type Job struct {
	ID        string
	Strategy  engine.Strategy
	Manifest  engine.Manifest
	Result    *engine.Result
	Status    Status
	CreatedAt time.Time
	Elapsed   time.Duration
}

// Registry is an in-memory job store. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // ids in insertion order, tracked only when limited
	limit int
	now   func() time.Time
}

// NewRegistry keeps at most limit jobs, evicting the oldest first. A
// non-positive limit means unbounded.
func NewRegistry(limit int) *Registry {
	return &Registry{jobs: make(map[string]*Job), limit: limit, now: time.Now}
}

// Put stores a finished run under a fresh id and returns the job.
func (r *Registry) Put(strategy engine.Strategy, manifest engine.Manifest, res *engine.Result, elapsed time.Duration) *Job {
	status := StatusCompleted
	if res != nil && res.Error != "" {
		status = StatusNoData
	}
	job := &Job{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		Manifest:  manifest,
		Result:    res,
		Status:    status,
		CreatedAt: r.now(),
		Elapsed:   elapsed,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	if r.limit > 0 {
		r.order = append(r.order, job.ID)
		r.evict()
	}
	return job
}

func (r *Registry) Get(id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// evict drops the earliest inserted jobs. Must be called with mu held.
func (r *Registry) evict() {
	for len(r.order) > r.limit {
		delete(r.jobs, r.order[0])
		r.order = r.order[1:]
	}
}
