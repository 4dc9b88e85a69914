// ABOUTME: Token usage tracker recording units per actor and category
// ABOUTME: Produces totals, per-actor breakdowns and OpenAI-style usage details

package tracker

import "sync"

// Category classifies recorded usage.
type Category string

const (
	CategoryPrompt    Category = "prompt"
	CategoryReasoning Category = "reasoning"
	CategoryAccepted  Category = "accepted"
	CategoryRejected  Category = "rejected"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrompt, CategoryReasoning, CategoryAccepted, CategoryRejected:
		return true
	}
	return false
}

// UsageRecord is one recorded quantity of consumed units.
type UsageRecord struct {
	Actor    string
	Units    int
	Category Category
}

// CompletionDetails splits completion usage by category.
type CompletionDetails struct {
	ReasoningTokens          int `json:"reasoning_tokens"`
	AcceptedPredictionTokens int `json:"accepted_prediction_tokens"`
	RejectedPredictionTokens int `json:"rejected_prediction_tokens"`
}

// UsageDetails is usage in the chat-completions wire shape.
type UsageDetails struct {
	PromptTokens            int               `json:"prompt_tokens"`
	CompletionTokens        int               `json:"completion_tokens"`
	TotalTokens             int               `json:"total_tokens"`
	CompletionTokensDetails CompletionDetails `json:"completion_tokens_details"`
}

// Usage accumulates usage records for one run.
type Usage struct {
	mu      sync.Mutex
	records []UsageRecord
}

// NewUsage creates an empty usage tracker.
func NewUsage() *Usage {
	return &Usage{}
}

// Record appends units consumed by actor in the given category.
// Non-positive quantities are ignored.
func (u *Usage) Record(actor string, units int, category Category) {
	if units <= 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, UsageRecord{Actor: actor, Units: units, Category: category})
}

// Total returns the sum of all recorded units.
func (u *Usage) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	total := 0
	for _, r := range u.records {
		total += r.Units
	}
	return total
}

// Breakdown returns total units per actor.
func (u *Usage) Breakdown() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]int)
	for _, r := range u.records {
		out[r.Actor] += r.Units
	}
	return out
}

// Records returns a copy of every record in insertion order.
func (u *Usage) Records() []UsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]UsageRecord, len(u.records))
	copy(out, u.records)
	return out
}

// Details returns usage grouped by category in chat-completions form.
// Completion tokens are reasoning + accepted + rejected; total is prompt +
// completion, which equals Total() for records in known categories.
func (u *Usage) Details() UsageDetails {
	u.mu.Lock()
	defer u.mu.Unlock()

	var d UsageDetails
	for _, r := range u.records {
		switch r.Category {
		case CategoryPrompt:
			d.PromptTokens += r.Units
		case CategoryReasoning:
			d.CompletionTokensDetails.ReasoningTokens += r.Units
		case CategoryAccepted:
			d.CompletionTokensDetails.AcceptedPredictionTokens += r.Units
		case CategoryRejected:
			d.CompletionTokensDetails.RejectedPredictionTokens += r.Units
		}
	}
	d.CompletionTokens = d.CompletionTokensDetails.ReasoningTokens +
		d.CompletionTokensDetails.AcceptedPredictionTokens +
		d.CompletionTokensDetails.RejectedPredictionTokens
	d.TotalTokens = d.PromptTokens + d.CompletionTokens
	return d
}
