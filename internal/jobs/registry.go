// ABOUTME: Thread-safe registry of live jobs with TTL retention and a size bound
// ABOUTME: Evicted jobs are released but keep running to completion

package jobs

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long a job stays registered when none is configured.
	DefaultRetention = time.Hour

	// DefaultMaxJobs bounds the registry when no size is configured.
	DefaultMaxJobs = 10000

	// maxSweepInterval caps the period of the background sweeper.
	maxSweepInterval = time.Minute
)

// registryEntry stores the job and its position in insertion order.
type registryEntry struct {
	job     *Job
	element *list.Element
}

// Registry tracks live jobs by request identifier. Oldest entries sit at
// the front of the order list so eviction is O(1).
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*registryEntry
	order     *list.List
	retention time.Duration
	maxSize   int
	logger    *slog.Logger
	done      chan struct{}
	closed    bool
}

// NewRegistry creates a registry. Non-positive retention or maxSize select
// the defaults. A background goroutine releases expired jobs until Close.
func NewRegistry(retention time.Duration, maxSize int, logger *slog.Logger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxJobs
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		jobs:      make(map[string]*registryEntry),
		order:     list.New(),
		retention: retention,
		maxSize:   maxSize,
		logger:    logger.With("component", "registry"),
		done:      make(chan struct{}),
	}
	go r.sweep(min(retention, maxSweepInterval))
	return r
}

// Add registers job. When the registry is full the oldest job is released.
func (r *Registry) Add(job *Job) {
	var evicted []*Job

	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; !exists {
		for len(r.jobs) >= r.maxSize {
			oldest := r.popOldestLocked()
			if oldest == nil {
				break
			}
			evicted = append(evicted, oldest)
		}
		elem := r.order.PushBack(job.ID)
		r.jobs[job.ID] = &registryEntry{job: job, element: elem}
		job.mu.Lock()
		job.onRelease = r.Remove
		job.mu.Unlock()
	}
	r.mu.Unlock()

	for _, j := range evicted {
		r.logger.Info("evicting job, registry full", "request_id", j.ID)
		j.Release()
	}
}

// Get returns the registered job for id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return entry.job, true
}

// Remove deletes the entry for id without releasing the job.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok {
		return
	}
	r.order.Remove(entry.element)
	delete(r.jobs, id)
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// popOldestLocked removes and returns the oldest job. Must be called with mu held.
func (r *Registry) popOldestLocked() *Job {
	front := r.order.Front()
	if front == nil {
		return nil
	}
	id, _ := front.Value.(string)
	r.order.Remove(front)
	entry := r.jobs[id]
	delete(r.jobs, id)
	if entry == nil {
		return nil
	}
	return entry.job
}

// sweep runs in a background goroutine, periodically releasing expired jobs.
func (r *Registry) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.releaseExpired(time.Now())
		case <-r.done:
			return
		}
	}
}

// releaseExpired releases every job registered longer than the retention.
func (r *Registry) releaseExpired(now time.Time) int {
	var expired []*Job

	r.mu.Lock()
	for e := r.order.Front(); e != nil; {
		id, _ := e.Value.(string)
		entry := r.jobs[id]
		if entry == nil || now.Sub(entry.job.CreatedAt) <= r.retention {
			// Insertion order matches creation order, so the rest are newer.
			break
		}
		next := e.Next()
		r.order.Remove(e)
		delete(r.jobs, id)
		expired = append(expired, entry.job)
		e = next
	}
	r.mu.Unlock()

	for _, j := range expired {
		r.logger.Debug("releasing expired job", "request_id", j.ID)
		j.Release()
	}
	return len(expired)
}

// Close stops the sweeper and releases every remaining job. It is safe to
// call multiple times.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)

	remaining := make([]*Job, 0, len(r.jobs))
	for e := r.order.Front(); e != nil; e = e.Next() {
		id, _ := e.Value.(string)
		if entry := r.jobs[id]; entry != nil {
			remaining = append(remaining, entry.job)
		}
	}
	r.jobs = make(map[string]*registryEntry)
	r.order.Init()
	r.mu.Unlock()

	for _, j := range remaining {
		j.Release()
	}
}
