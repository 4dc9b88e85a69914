// ABOUTME: StepAction sum type for agent step output with JSON discriminator
// ABOUTME: Provides Answer, Search, Reflect and Visit variants plus Decode

package step

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the "action" discriminator of a step.
type Kind string

const (
	KindAnswer  Kind = "answer"
	KindSearch  Kind = "search"
	KindReflect Kind = "reflect"
	KindVisit   Kind = "visit"
)

// ErrUnknownKind is returned by Decode for an unrecognized discriminator.
var ErrUnknownKind = errors.New("unknown step action")

// Action is one agent step. The set of implementations is closed.
type Action interface {
	Kind() Kind
	Thought() string
	isAction()
}

// Reference is a source cited by an answer.
type Reference struct {
	ExactQuote string `json:"exactQuote"`
	URL        string `json:"url"`
}

// Answer is the terminal step carrying the final answer text.
type Answer struct {
	Think      string      `json:"think"`
	Answer     string      `json:"answer"`
	References []Reference `json:"references,omitempty"`
}

// Search asks for web searches.
type Search struct {
	Think          string   `json:"think"`
	SearchRequests []string `json:"searchRequests"`
}

// Reflect records follow-up questions the agent wants answered.
type Reflect struct {
	Think             string   `json:"think"`
	QuestionsToAnswer []string `json:"questionsToAnswer"`
}

// Visit asks for URLs to be read.
type Visit struct {
	Think      string   `json:"think"`
	URLTargets []string `json:"URLTargets"`
}

func (Answer) Kind() Kind  { return KindAnswer }
func (Search) Kind() Kind  { return KindSearch }
func (Reflect) Kind() Kind { return KindReflect }
func (Visit) Kind() Kind   { return KindVisit }

func (a Answer) Thought() string  { return a.Think }
func (a Search) Thought() string  { return a.Think }
func (a Reflect) Thought() string { return a.Think }
func (a Visit) Thought() string   { return a.Think }

func (Answer) isAction()  {}
func (Search) isAction()  {}
func (Reflect) isAction() {}
func (Visit) isAction()   {}

func (a Answer) MarshalJSON() ([]byte, error) {
	type alias Answer
	return json.Marshal(struct {
		Action Kind `json:"action"`
		alias
	}{KindAnswer, alias(a)})
}

func (a Search) MarshalJSON() ([]byte, error) {
	type alias Search
	return json.Marshal(struct {
		Action Kind `json:"action"`
		alias
	}{KindSearch, alias(a)})
}

func (a Reflect) MarshalJSON() ([]byte, error) {
	type alias Reflect
	return json.Marshal(struct {
		Action Kind `json:"action"`
		alias
	}{KindReflect, alias(a)})
}

func (a Visit) MarshalJSON() ([]byte, error) {
	type alias Visit
	return json.Marshal(struct {
		Action Kind `json:"action"`
		alias
	}{KindVisit, alias(a)})
}

// Decode parses a JSON-encoded step using its "action" discriminator.
func Decode(data []byte) (Action, error) {
	var head struct {
		Action Kind `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding step: %w", err)
	}

	var (
		a   Action
		err error
	)
	switch head.Action {
	case KindAnswer:
		var v Answer
		err = json.Unmarshal(data, &v)
		a = v
	case KindSearch:
		var v Search
		err = json.Unmarshal(data, &v)
		a = v
	case KindReflect:
		var v Reflect
		err = json.Unmarshal(data, &v)
		a = v
	case KindVisit:
		var v Visit
		err = json.Unmarshal(data, &v)
		a = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s step: %w", head.Action, err)
	}
	return a, nil
}

// IsAnswer reports whether a is a terminal answer.
func IsAnswer(a Action) bool {
	_, ok := a.(Answer)
	return ok
}

// FinalText is the text shown to a client for a step: the answer text for an
// Answer, the reasoning text for every other step.
func FinalText(a Action) string {
	switch v := a.(type) {
	case Answer:
		return v.Answer
	case Search:
		return v.Think
	case Reflect:
		return v.Think
	case Visit:
		return v.Think
	default:
		return ""
	}
}

// WithThought returns a copy of a with its reasoning text replaced.
// A nil step becomes a Reflect carrying only the thought.
func WithThought(a Action, think string) Action {
	switch v := a.(type) {
	case Answer:
		v.Think = think
		return v
	case Search:
		v.Think = think
		return v
	case Reflect:
		v.Think = think
		return v
	case Visit:
		v.Think = think
		return v
	default:
		return Reflect{Think: think}
	}
}
