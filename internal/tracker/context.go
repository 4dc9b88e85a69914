// ABOUTME: RunContext bundles the usage and action trackers of one request
// ABOUTME: Also builds the tracker snapshot published in progress events

package tracker

// Actor names used when recording usage.
const (
	ActorAgent     = "agent"
	ActorEvaluator = "evaluator"
)

// RunContext is the per-request run state handed to the agent.
type RunContext struct {
	Usage   *Usage
	Actions *Actions
}

// NewRunContext returns a RunContext with fresh, independent trackers.
func NewRunContext() *RunContext {
	return &RunContext{
		Usage:   NewUsage(),
		Actions: NewActions(),
	}
}

// Release removes every listener registered on the run's trackers.
func (rc *RunContext) Release() {
	rc.Actions.RemoveAllListeners()
}

// Snapshot is a point-in-time copy of a run's tracker state.
type Snapshot struct {
	TokenUsage     int            `json:"tokenUsage"`
	TokenBreakdown map[string]int `json:"tokenBreakdown,omitempty"`
	ActionState    ActionState    `json:"actionState"`
}

// Snapshot captures the current tracker state.
func (rc *RunContext) Snapshot() *Snapshot {
	return &Snapshot{
		TokenUsage:     rc.Usage.Total(),
		TokenBreakdown: rc.Usage.Breakdown(),
		ActionState:    rc.Actions.State(),
	}
}
