package signflow

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide map from job id to job state. It supports
// concurrent create, lookup and eviction; jobs themselves live only in
// memory and do not survive a restart.
type Registry struct {
	cfg  *Config
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:  cfg,
		jobs: make(map[string]*Job),
	}
}

// Create allocates a fresh pending job and returns it immediately; the
// caller schedules processing separately.
func (r *Registry) Create() *Job {
	job := &Job{
		ID:        newJobID(),
		StartedAt: time.Now(),
		status:    JobPending,
		hub:       NewHub(),
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	r.cfg.logInfo(LogEvent{Message: "job created", JobID: job.ID})
	return job
}

// Get returns the job for id, or false if it is unknown or already evicted.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Evict removes the job and its event history. Evicting an unknown id is a
// no-op, so stacked eviction timers are harmless.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	if ok {
		r.cfg.logInfo(LogEvent{Message: "job evicted", JobID: id})
	}
}

// ScheduleEviction removes the job after delay. Called when a terminal
// job's observer disconnects; the window lets slow clients finish reading
// the history.
func (r *Registry) ScheduleEviction(id string, delay time.Duration) {
	time.AfterFunc(delay, func() { r.Evict(id) })
}

// Len reports how many jobs are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// newJobID builds a time-prefixed id with a random suffix, e.g.
// job-1712345678901-9f3a1c02. The prefix keeps ids roughly sortable; the
// suffix makes collisions negligible.
func newJobID() string {
	u := uuid.New()
	return fmt.Sprintf("job-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(u[:4]))
}
