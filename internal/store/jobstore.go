package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStore is an in-memory, concurrency-safe map of job ID to job record.
// A single coarse mutex guards the map; jobs are small and short-lived, so
// finer locking buys nothing. Finished jobs are evicted after a retention
// period so the map stays bounded in long-running deployments.
type JobStore struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	retention time.Duration
}

// NewJobStore creates a store evicting finished jobs after retention.
// A non-positive retention disables eviction.
func NewJobStore(retention time.Duration) *JobStore {
	return &JobStore{
		jobs:      make(map[string]*Job),
		retention: retention,
	}
}

// Create registers a new queued job and returns it.
func (s *JobStore) Create(kind WorkflowKind, params Params) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobStatusQueued,
		CreatedAt: time.Now().UTC(),
		Params:    params,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job
}

// Get returns a copy of the job, or nil if unknown. Returning a copy means
// concurrent status polls never observe a partially-written record.
func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	cp.Steps = append([]Step(nil), job.Steps...)
	return &cp
}

// Put stores the updated job record.
func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.Steps = append([]Step(nil), job.Steps...)
	s.jobs[job.ID] = &cp
}

// Count returns the number of jobs currently in the given states, or all
// jobs when no states are given.
func (s *JobStore) Count(states ...JobStatus) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(states) == 0 {
		return int64(len(s.jobs))
	}
	var n int64
	for _, job := range s.jobs {
		for _, st := range states {
			if job.Status == st {
				n++
				break
			}
		}
	}
	return n
}

// Sweep evicts finished jobs whose finish time is older than the retention,
// relative to now. Returns the number evicted.
func (s *JobStore) Sweep(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.FinishedAt != nil && now.Sub(*job.FinishedAt) > s.retention {
			delete(s.jobs, id)
			evicted++
		}
	}
	return evicted
}

// Janitor sweeps periodically until stop is closed.
func (s *JobStore) Janitor(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep(time.Now().UTC())
		}
	}
}
