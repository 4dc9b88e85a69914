// ABOUTME: Action tracker holding the agent's current step and step counters
// ABOUTME: Notifies registered listeners on every recorded action

package tracker

import (
	"slices"
	"sync"

	"github.com/2389/research-gateway/internal/step"
)

// ActionState is the aggregate action state of a run.
type ActionState struct {
	ThisStep    step.Action `json:"thisStep"`
	Gaps        []string    `json:"gaps"`
	BadAttempts int         `json:"badAttempts"`
	TotalStep   int         `json:"totalStep"`
}

// ActionUpdate is a partial state update. Nil fields are left unchanged.
// When Step is set and TotalStep is nil the step counter advances by one.
type ActionUpdate struct {
	Step        step.Action
	Gaps        []string
	BadAttempts *int
	TotalStep   *int
}

// ActionListener receives the current step after every recorded action.
type ActionListener func(step.Action)

type listenerEntry struct {
	id uint64
	fn ActionListener
}

// Actions tracks the agent's steps for one run.
type Actions struct {
	mu        sync.Mutex
	state     ActionState
	listeners []listenerEntry
	nextID    uint64
}

// NewActions creates an action tracker with an empty state.
func NewActions() *Actions {
	return &Actions{state: ActionState{Gaps: []string{}}}
}

// Track merges u into the state and notifies listeners with the current step.
func (t *Actions) Track(u ActionUpdate) {
	t.mu.Lock()
	if u.Step != nil {
		t.state.ThisStep = u.Step
	}
	if u.Gaps != nil {
		t.state.Gaps = slices.Clone(u.Gaps)
	}
	if u.BadAttempts != nil {
		t.state.BadAttempts = *u.BadAttempts
	}
	switch {
	case u.TotalStep != nil:
		t.state.TotalStep = *u.TotalStep
	case u.Step != nil:
		t.state.TotalStep++
	}
	current := t.state.ThisStep
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	t.notify(listeners, current)
}

// TrackThink replaces the current step's reasoning text and notifies listeners.
func (t *Actions) TrackThink(think string) {
	t.mu.Lock()
	t.state.ThisStep = step.WithThought(t.state.ThisStep, think)
	current := t.state.ThisStep
	listeners := slices.Clone(t.listeners)
	t.mu.Unlock()

	t.notify(listeners, current)
}

func (t *Actions) notify(listeners []listenerEntry, current step.Action) {
	for _, l := range listeners {
		l.fn(current)
	}
}

// State returns a copy of the current state.
func (t *Actions) State() ActionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	s.Gaps = slices.Clone(t.state.Gaps)
	return s
}

// OnAction registers fn and returns a function that removes it.
// The release function is idempotent.
func (t *Actions) OnAction(fn ActionListener) (release func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listenerEntry{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.listeners = slices.DeleteFunc(t.listeners, func(e listenerEntry) bool {
				return e.id == id
			})
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (t *Actions) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// RemoveAllListeners drops every registered listener.
func (t *Actions) RemoveAllListeners() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = nil
}
