// ABOUTME: Progress emitter building budget-aware snapshot events for jobs
// ABOUTME: Merges the current step with its step counter for the event data

package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/2389/research-gateway/internal/bus"
	"github.com/2389/research-gateway/internal/step"
)

// DefaultBudget is the token budget assumed when a job sets none.
const DefaultBudget = 1_000_000

// budgetFor returns the budget block for used units against total.
func budgetFor(used, total int) *bus.Budget {
	return &bus.Budget{
		Used:       used,
		Total:      total,
		Percentage: fmt.Sprintf("%.2f", float64(used)/float64(total)*100),
	}
}

// stepData flattens the current step and adds the step counter.
func stepData(current step.Action, totalStep int) map[string]any {
	data := map[string]any{}
	if current != nil {
		if raw, err := json.Marshal(current); err == nil {
			_ = json.Unmarshal(raw, &data)
		}
	}
	data["totalStep"] = totalStep
	return data
}

// progressEvent builds the progress event for job's current tracker state.
func progressEvent(job *Job, defaultBudget int) bus.Event {
	total := job.Budget
	if total <= 0 {
		total = defaultBudget
	}
	if total <= 0 {
		total = DefaultBudget
	}

	snapshot := job.RunContext.Snapshot()
	totalStep := snapshot.ActionState.TotalStep

	return bus.Event{
		Type:      bus.EventProgress,
		RequestID: job.ID,
		Data:      stepData(snapshot.ActionState.ThisStep, totalStep),
		Step:      &totalStep,
		Budget:    budgetFor(snapshot.TokenUsage, total),
		Trackers:  snapshot,
	}
}

