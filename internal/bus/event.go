// ABOUTME: Progress event tagged union published on the notification bus
// ABOUTME: Covers connected, progress, answer and error events with snapshots

package bus

import "github.com/2389/research-gateway/internal/tracker"

// EventType discriminates events.
type EventType string

const (
	EventConnected EventType = "connected"
	EventProgress  EventType = "progress"
	EventAnswer    EventType = "answer"
	EventError     EventType = "error"
)

// Terminal reports whether t ends a job's event sequence.
func (t EventType) Terminal() bool {
	return t == EventAnswer || t == EventError
}

// Budget is the token budget consumption carried by progress events.
type Budget struct {
	Used       int    `json:"used"`
	Total      int    `json:"total"`
	Percentage string `json:"percentage"`
}

// Event is one notification for a request ID. Trackers is always encoded,
// as null when no snapshot is available.
type Event struct {
	Type      EventType         `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	Data      any               `json:"data,omitempty"`
	Step      *int              `json:"step,omitempty"`
	Budget    *Budget           `json:"budget,omitempty"`
	Status    int               `json:"status,omitempty"`
	Trackers  *tracker.Snapshot `json:"trackers"`
}
