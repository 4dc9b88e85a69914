// ABOUTME: Chat-completions request, response and chunk wire types
// ABOUTME: Builders fill the shared id, created, model and fingerprint fields

package openai

import (
	"time"

	"github.com/2389/research-gateway/internal/tracker"
)

const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"

	RoleUser      = "user"
	RoleAssistant = "assistant"

	FinishStop = "stop"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
}

// LastMessage returns the final message, or false when there are none.
func (r *ChatCompletionRequest) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// Choice is a completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	Logprobs     any     `json:"logprobs"`
	FinishReason string  `json:"finish_reason"`
}

// ChatCompletionResponse is a non-streamed completion.
type ChatCompletionResponse struct {
	ID                string               `json:"id"`
	Object            string               `json:"object"`
	Created           int64                `json:"created"`
	Model             string               `json:"model"`
	SystemFingerprint string               `json:"system_fingerprint"`
	Choices           []Choice             `json:"choices"`
	Usage             tracker.UsageDetails `json:"usage"`
}

// Delta is the incremental content of a chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// ChunkChoice is a streamed choice. FinishReason is null until the last chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	Logprobs     any     `json:"logprobs"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed completion frame.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint"`
	Choices           []ChunkChoice `json:"choices"`
}

// Fingerprint returns the system fingerprint for a completion id.
func Fingerprint(id string) string {
	return "fp_" + id
}

// NewResponse builds a completion carrying content as the assistant message.
func NewResponse(id, model, content string, usage tracker.UsageDetails) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:                id,
		Object:            ObjectCompletion,
		Created:           time.Now().Unix(),
		Model:             model,
		SystemFingerprint: Fingerprint(id),
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: RoleAssistant, Content: content},
			FinishReason: FinishStop,
		}},
		Usage: usage,
	}
}

// NewChunk builds a chunk. An empty finish reason is encoded as null.
func NewChunk(id, model string, delta Delta, finishReason string) *ChatCompletionChunk {
	var finish *string
	if finishReason != "" {
		finish = &finishReason
	}
	return &ChatCompletionChunk{
		ID:                id,
		Object:            ObjectChunk,
		Created:           time.Now().Unix(),
		Model:             model,
		SystemFingerprint: Fingerprint(id),
		Choices: []ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}
