// ABOUTME: Job record for one background research request
// ABOUTME: Tracks lifecycle state and releases listeners exactly once

package jobs

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389/research-gateway/internal/tracker"
)

// State is a job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// NewID returns a new request identifier.
func NewID() string {
	return ulid.Make().String()
}

// Job is one submitted research request.
type Job struct {
	ID             string
	Query          string
	Budget         int
	MaxBadAttempts int
	RunContext     *tracker.RunContext
	CreatedAt      time.Time

	mu        sync.Mutex
	state     State
	cleanups  []func()
	released  bool
	onRelease func(id string)
}

func newJob(req SubmitRequest) *Job {
	return &Job{
		ID:             NewID(),
		Query:          req.Query,
		Budget:         req.Budget,
		MaxBadAttempts: req.MaxBadAttempts,
		RunContext:     tracker.NewRunContext(),
		CreatedAt:      time.Now(),
		state:          StatePending,
	}
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// addCleanup registers fn to run on release. If the job was already
// released fn runs immediately.
func (j *Job) addCleanup(fn func()) {
	j.mu.Lock()
	if j.released {
		j.mu.Unlock()
		fn()
		return
	}
	j.cleanups = append(j.cleanups, fn)
	j.mu.Unlock()
}

// Released reports whether Release has run.
func (j *Job) Released() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.released
}

// Release detaches every tracker listener and removes the job from its
// registry. Only the first call has any effect.
func (j *Job) Release() {
	j.mu.Lock()
	if j.released {
		j.mu.Unlock()
		return
	}
	j.released = true
	cleanups := j.cleanups
	j.cleanups = nil
	onRelease := j.onRelease
	j.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
	j.RunContext.Release()
	if onRelease != nil {
		onRelease(j.ID)
	}
}
