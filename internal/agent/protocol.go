// ABOUTME: Wire records of the remote agent NDJSON protocol
// ABOUTME: Shared by the HTTP client and the development agent binary

package agent

import "encoding/json"

// Record types of the remote agent stream.
const (
	RecordAction = "action"
	RecordThink  = "think"
	RecordUsage  = "usage"
	RecordResult = "result"
	RecordError  = "error"
)

// InvokeRequest is the JSON body posted to a remote agent.
type InvokeRequest struct {
	Query         string `json:"query"`
	Budget        int    `json:"budget,omitempty"`
	MaxBadAttempt int    `json:"maxBadAttempt,omitempty"`
}

// Record is one line of a remote agent response stream.
type Record struct {
	Type string `json:"type"`

	// action
	Action      json.RawMessage `json:"action,omitempty"`
	Gaps        []string        `json:"gaps,omitempty"`
	BadAttempts *int            `json:"badAttempts,omitempty"`
	TotalStep   *int            `json:"totalStep,omitempty"`

	// think
	Think string `json:"think,omitempty"`

	// usage
	Tool     string `json:"tool,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
	Category string `json:"category,omitempty"`

	// result
	Result json.RawMessage `json:"result,omitempty"`

	// error
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}
