// ABOUTME: Job submission service running agents in the background
// ABOUTME: Persists results and publishes progress and terminal events on the bus

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/research-gateway/internal/agent"
	"github.com/2389/research-gateway/internal/bus"
	"github.com/2389/research-gateway/internal/results"
	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

// PersistenceFailureMessage is the error event data published when a result
// cannot be stored.
const PersistenceFailureMessage = "failed to store task result"

var (
	// ErrEmptyQuery is returned by Submit when the query is empty.
	ErrEmptyQuery = errors.New("query is required")

	// ErrPersistence wraps result store failures.
	ErrPersistence = errors.New("persistence failure")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("job service closed")
)

// SubmitRequest describes a job to run. Zero Budget and MaxBadAttempts
// leave the agent's defaults in place.
type SubmitRequest struct {
	Query          string
	Budget         int
	MaxBadAttempts int
}

// Options configures a Service.
type Options struct {
	// DefaultBudget is the budget total reported when a job sets none.
	DefaultBudget int

	// ProgressInterval, when positive, republishes the progress snapshot
	// on this period while the job runs.
	ProgressInterval time.Duration
}

// Service runs submitted jobs.
type Service struct {
	agent    agent.Agent
	bus      *bus.Bus
	store    results.Store
	registry *Registry
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService wires a job service. Pass nil logger for default.
func NewService(a agent.Agent, b *bus.Bus, store results.Store, registry *Registry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = DefaultBudget
	}
	return &Service{
		agent:    a,
		bus:      b,
		store:    store,
		registry: registry,
		opts:     opts,
		logger:   logger.With("component", "jobs"),
	}
}

// Registry returns the service's job registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Submit registers a job and starts it in the background. The returned job
// keeps running after ctx is cancelled.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	job := newJob(req)
	s.registry.Add(job)

	release := job.RunContext.Actions.OnAction(func(step.Action) {
		s.bus.Publish(job.ID, progressEvent(job, s.opts.DefaultBudget))
	})
	job.addCleanup(release)

	if s.opts.ProgressInterval > 0 {
		stop := make(chan struct{})
		job.addCleanup(func() { close(stop) })
		go s.heartbeat(job, stop)
	}

	s.logger.Info("job submitted", "request_id", job.ID, "budget", job.Budget, "max_bad_attempts", job.MaxBadAttempts)

	go s.run(context.WithoutCancel(ctx), job)
	return job, nil
}

// heartbeat republishes the job's progress until stop is closed.
func (s *Service) heartbeat(job *Job, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.bus.Publish(job.ID, progressEvent(job, s.opts.DefaultBudget))
		case <-stop:
			return
		}
	}
}

// run invokes the agent and publishes exactly one terminal event.
func (s *Service) run(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer job.Release()

	job.setState(StateRunning)
	started := time.Now()

	result, err := s.agent.Invoke(ctx, agent.Request{
		Query:          job.Query,
		Budget:         job.Budget,
		MaxBadAttempts: job.MaxBadAttempts,
	}, job.RunContext)
	if err != nil {
		job.RunContext.Usage.Record(tracker.ActorEvaluator, 1, tracker.CategoryRejected)
		job.setState(StateFailed)
		s.logger.Error("job failed", "request_id", job.ID, "error", err, "duration", time.Since(started))
		s.publishError(job, err.Error())
		return
	}

	if err := s.store.Store(ctx, job.ID, result); err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		job.setState(StateFailed)
		s.logger.Error("storing task result", "request_id", job.ID, "error", err)
		s.publishError(job, PersistenceFailureMessage)
		return
	}

	job.setState(StateCompleted)
	s.logger.Info("job completed", "request_id", job.ID, "action", result.Kind(), "duration", time.Since(started))
	s.bus.Publish(job.ID, bus.Event{
		Type:      bus.EventAnswer,
		RequestID: job.ID,
		Data:      result,
		Trackers:  job.RunContext.Snapshot(),
	})
}

func (s *Service) publishError(job *Job, message string) {
	s.bus.Publish(job.ID, bus.Event{
		Type:      bus.EventError,
		RequestID: job.ID,
		Data:      message,
		Status:    http.StatusInternalServerError,
		Trackers:  job.RunContext.Snapshot(),
	})
}

// Wait blocks until every running job has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new submissions and waits for running jobs until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Wait(ctx)
}
