// ABOUTME: Pluggable accounting strategy deciding units recorded per event
// ABOUTME: UnitAccounting charges one unit per message, action and outcome

package tracker

import "github.com/2389/research-gateway/internal/step"

// Accounting decides how many usage units an event costs.
type Accounting interface {
	// Prompt returns units for a conversation of the given message count.
	Prompt(messageCount int) int
	// Reasoning returns units for one intermediate action.
	Reasoning(a step.Action) int
	// Outcome returns units for the final step or a failure (a is nil).
	Outcome(a step.Action) int
}

// UnitAccounting is a coarse stand-in for a real token counter.
type UnitAccounting struct{}

func (UnitAccounting) Prompt(messageCount int) int { return messageCount }

func (UnitAccounting) Reasoning(step.Action) int { return 1 }

func (UnitAccounting) Outcome(step.Action) int { return 1 }

// RecordOutcome records the final step as accepted when it is an answer and
// rejected otherwise, including failures (a is nil).
func RecordOutcome(u *Usage, acct Accounting, a step.Action) {
	category := CategoryRejected
	if a != nil && step.IsAnswer(a) {
		category = CategoryAccepted
	}
	u.Record(ActorEvaluator, acct.Outcome(a), category)
}
