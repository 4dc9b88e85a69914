// ABOUTME: Tests for background job submission and progress publishing
// ABOUTME: Uses gated fake agents so subscribers attach before jobs finish

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-gateway/internal/agent"
	"github.com/2389/research-gateway/internal/bus"
	"github.com/2389/research-gateway/internal/results"
	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

// gatedAgent waits for proceed, replays steps on the trackers, then
// returns result or err.
type gatedAgent struct {
	proceed chan struct{}
	steps   []step.Action
	result  step.Action
	err     error

	mu       sync.Mutex
	requests []agent.Request
	ctxErr   error
}

func newGatedAgent() *gatedAgent {
	return &gatedAgent{proceed: make(chan struct{})}
}

func (g *gatedAgent) Invoke(ctx context.Context, req agent.Request, rc *tracker.RunContext) (step.Action, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	<-g.proceed
	for _, s := range g.steps {
		rc.Usage.Record(tracker.ActorAgent, 10, tracker.CategoryReasoning)
		rc.Actions.Track(tracker.ActionUpdate{Step: s})
	}

	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	return g.result, g.err
}

type failingStore struct{}

func (failingStore) Store(context.Context, string, step.Action) error { return errors.New("disk full") }
func (failingStore) Fetch(context.Context, string) ([]byte, error) { return nil, results.ErrNotFound }
func (failingStore) Close() error { return nil }

type fixture struct {
	bus      *bus.Bus
	store    results.Store
	registry *Registry
	svc      *Service
}

func newFixture(t *testing.T, a agent.Agent, store results.Store, opts Options) *fixture {
	t.Helper()
	if store == nil {
		store = results.NewFileStore(t.TempDir(), nil)
	}
	b := bus.New(nil)
	reg := NewRegistry(time.Hour, 100, nil)
	t.Cleanup(func() {
		reg.Close()
		b.Close()
	})
	return &fixture{
		bus:      b,
		store:    store,
		registry: reg,
		svc:      NewService(a, b, store, reg, opts, nil),
	}
}

// collect subscribes to id and returns a function that waits for the
// terminal event and returns everything received.
func collect(t *testing.T, b *bus.Bus, id string) func() []bus.Event {
	t.Helper()
	var mu sync.Mutex
	var events []bus.Event
	done := make(chan struct{})
	sub := b.Subscribe(id, func(ev bus.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		if ev.Type.Terminal() {
			close(done)
		}
	})
	t.Cleanup(sub.Unsubscribe)

	return func() []bus.Event {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for terminal event")
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]bus.Event(nil), events...)
	}
}

func TestService_SuccessPersistsAndPublishesAnswer(t *testing.T) {
	a := newGatedAgent()
	a.steps = []step.Action{step.Search{Think: "look", SearchRequests: []string{"go"}}}
	a.result = step.Answer{Think: "done", Answer: "42"}
	f := newFixture(t, a, nil, Options{})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "meaning", Budget: 200, MaxBadAttempts: 2})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	wait := collect(t, f.bus, job.ID)
	close(a.proceed)
	events := wait()

	require.Len(t, events, 2)
	assert.Equal(t, bus.EventProgress, events[0].Type)

	answer := events[1]
	assert.Equal(t, bus.EventAnswer, answer.Type)
	assert.Equal(t, job.ID, answer.RequestID)
	assert.Equal(t, step.Answer{Think: "done", Answer: "42"}, answer.Data)
	require.NotNil(t, answer.Trackers)
	assert.Equal(t, 10, answer.Trackers.TokenUsage)

	require.NoError(t, f.svc.Wait(t.Context()))
	data, err := f.store.Fetch(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"answer": "42"`)

	assert.Equal(t, StateCompleted, job.State())
	assert.True(t, job.Released())
	assert.Equal(t, 0, job.RunContext.Actions.ListenerCount())
	_, ok := f.registry.Get(job.ID)
	assert.False(t, ok)

	assert.Equal(t, []agent.Request{{Query: "meaning", Budget: 200, MaxBadAttempts: 2}}, a.requests)
}

func TestService_ProgressEventCarriesBudgetAndStep(t *testing.T) {
	a := newGatedAgent()
	a.steps = []step.Action{
		step.Search{Think: "first", SearchRequests: []string{"a"}},
		step.Reflect{Think: "second", QuestionsToAnswer: []string{"b"}},
	}
	a.result = step.Answer{Think: "t", Answer: "x"}
	f := newFixture(t, a, nil, Options{})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q", Budget: 40})
	require.NoError(t, err)
	wait := collect(t, f.bus, job.ID)
	close(a.proceed)
	events := wait()

	require.Len(t, events, 3)
	second := events[1]
	assert.Equal(t, bus.EventProgress, second.Type)
	require.NotNil(t, second.Step)
	assert.Equal(t, 2, *second.Step)
	assert.Equal(t, &bus.Budget{Used: 20, Total: 40, Percentage: "50.00"}, second.Budget)

	raw, err := json.Marshal(second.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"reflect","think":"second","questionsToAnswer":["b"],"totalStep":2}`, string(raw))
}

func TestService_DefaultBudget(t *testing.T) {
	a := newGatedAgent()
	a.steps = []step.Action{step.Search{Think: "s"}}
	a.result = step.Answer{Answer: "x"}
	f := newFixture(t, a, nil, Options{})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
	require.NoError(t, err)
	wait := collect(t, f.bus, job.ID)
	close(a.proceed)
	events := wait()

	assert.Equal(t, &bus.Budget{Used: 10, Total: DefaultBudget, Percentage: "0.00"}, events[0].Budget)
}

func TestService_AgentFailurePublishesError(t *testing.T) {
	a := newGatedAgent()
	a.err = errors.New("search backend unavailable")
	f := newFixture(t, a, nil, Options{})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
	require.NoError(t, err)
	wait := collect(t, f.bus, job.ID)
	close(a.proceed)
	events := wait()

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, bus.EventError, ev.Type)
	assert.Equal(t, "search backend unavailable", ev.Data)
	assert.Equal(t, 500, ev.Status)

	require.NoError(t, f.svc.Wait(t.Context()))
	details := job.RunContext.Usage.Details()
	assert.Equal(t, 1, details.CompletionTokensDetails.RejectedPredictionTokens)
	assert.Equal(t, StateFailed, job.State())

	_, err = f.store.Fetch(t.Context(), job.ID)
	assert.ErrorIs(t, err, results.ErrNotFound)
}

func TestService_PersistenceFailurePublishesError(t *testing.T) {
	a := newGatedAgent()
	a.result = step.Answer{Answer: "x"}
	f := newFixture(t, a, failingStore{}, Options{})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
	require.NoError(t, err)
	wait := collect(t, f.bus, job.ID)
	close(a.proceed)
	events := wait()

	require.Len(t, events, 1)
	assert.Equal(t, bus.EventError, events[0].Type)
	assert.Equal(t, PersistenceFailureMessage, events[0].Data)
	assert.Equal(t, 500, events[0].Status)
}

func TestService_CallerCancellationDoesNotCancelAgent(t *testing.T) {
	a := newGatedAgent()
	a.result = step.Answer{Answer: "x"}
	f := newFixture(t, a, nil, Options{})

	ctx, cancel := context.WithCancel(t.Context())
	job, err := f.svc.Submit(ctx, SubmitRequest{Query: "q"})
	require.NoError(t, err)
	wait := collect(t, f.bus, job.ID)
	cancel()
	close(a.proceed)

	events := wait()
	assert.Equal(t, bus.EventAnswer, events[len(events)-1].Type)
	require.NoError(t, f.svc.Wait(t.Context()))
	assert.NoError(t, a.ctxErr)
}

func TestService_EvictedJobStillCompletes(t *testing.T) {
	a := newGatedAgent()
	a.steps = []step.Action{step.Search{Think: "s"}}
	a.result = step.Answer{Answer: "x"}

	b := bus.New(nil)
	defer b.Close()
	reg := NewRegistry(time.Hour, 1, nil)
	defer reg.Close()
	store := results.NewFileStore(t.TempDir(), nil)
	svc := NewService(a, b, store, reg, Options{}, nil)

	first, err := svc.Submit(t.Context(), SubmitRequest{Query: "one"})
	require.NoError(t, err)
	wait := collect(t, b, first.ID)

	second, err := svc.Submit(t.Context(), SubmitRequest{Query: "two"})
	require.NoError(t, err)

	assert.True(t, first.Released())
	assert.Equal(t, 0, first.RunContext.Actions.ListenerCount())
	_, ok := reg.Get(first.ID)
	assert.False(t, ok)
	_, ok = reg.Get(second.ID)
	assert.True(t, ok)

	close(a.proceed)
	events := wait()

	// Listeners are gone, so only the terminal event arrives.
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventAnswer, events[0].Type)

	require.NoError(t, svc.Wait(t.Context()))
	_, err = store.Fetch(t.Context(), first.ID)
	assert.NoError(t, err)
}

func TestService_ProgressHeartbeat(t *testing.T) {
	a := newGatedAgent()
	a.result = step.Answer{Answer: "x"}
	f := newFixture(t, a, nil, Options{ProgressInterval: 10 * time.Millisecond})

	job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
	require.NoError(t, err)

	beats := make(chan struct{}, 16)
	sub := f.bus.Subscribe(job.ID, func(ev bus.Event) {
		if ev.Type == bus.EventProgress {
			select {
			case beats <- struct{}{}:
			default:
			}
		}
	})
	defer sub.Unsubscribe()

	select {
	case <-beats:
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat progress event")
	}
	close(a.proceed)
	require.NoError(t, f.svc.Wait(t.Context()))
}

func TestService_SubmitValidation(t *testing.T) {
	f := newFixture(t, newGatedAgent(), nil, Options{})

	_, err := f.svc.Submit(t.Context(), SubmitRequest{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	require.NoError(t, f.svc.Close(t.Context()))
	_, err = f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestService_UniqueIDs(t *testing.T) {
	a := agent.Func(func(context.Context, agent.Request, *tracker.RunContext) (step.Action, error) {
		return step.Answer{Answer: "x"}, nil
	})
	f := newFixture(t, a, nil, Options{})

	seen := make(map[string]bool)
	for range 50 {
		job, err := f.svc.Submit(t.Context(), SubmitRequest{Query: "q"})
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "duplicate id %s", job.ID)
		seen[job.ID] = true
	}
	require.NoError(t, f.svc.Wait(t.Context()))
}
