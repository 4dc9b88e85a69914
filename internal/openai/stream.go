// ABOUTME: Serialized SSE writer for chat.completion.chunk frames
// ABOUTME: Writes think framing, final chunks and the [DONE] sentinel

package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

const (
	ThinkOpen  = "<think>"
	ThinkClose = "</think>"

	doneSentinel = "[DONE]"
)

// ErrStreamClosed is returned by writes after Close.
var ErrStreamClosed = errors.New("stream closed")

// ChunkWriter writes completion chunks for one streamed response.
// It is safe for concurrent use.
type ChunkWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	model   string
	sent    int
	closed  bool
}

// NewChunkWriter sets the event-stream headers on w and returns a writer
// for the completion id.
func NewChunkWriter(w http.ResponseWriter, id, model string) *ChunkWriter {
	flusher, _ := w.(http.Flusher)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &ChunkWriter{w: w, flusher: flusher, id: id, model: model}
}

// Open writes the first chunk: the assistant role with an opening think tag.
func (cw *ChunkWriter) Open() error {
	return cw.write(NewChunk(cw.id, cw.model, Delta{Role: RoleAssistant, Content: ThinkOpen}, ""))
}

// Think writes one reasoning chunk wrapped in think tags.
func (cw *ChunkWriter) Think(text string) error {
	return cw.write(NewChunk(cw.id, cw.model, Delta{Content: ThinkOpen + text + ThinkClose}, ""))
}

// CloseThink writes the closing think tag.
func (cw *ChunkWriter) CloseThink() error {
	return cw.write(NewChunk(cw.id, cw.model, Delta{Content: ThinkClose}, ""))
}

// Final writes the last content chunk with finish_reason "stop".
func (cw *ChunkWriter) Final(content string) error {
	return cw.write(NewChunk(cw.id, cw.model, Delta{Content: content}, FinishStop))
}

// Done writes the [DONE] sentinel and closes the writer.
func (cw *ChunkWriter) Done() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrStreamClosed
	}
	cw.closed = true
	if _, err := fmt.Fprintf(cw.w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	cw.flush()
	return nil
}

// Close stops all further writes. Safe to call more than once.
func (cw *ChunkWriter) Close() {
	cw.mu.Lock()
	cw.closed = true
	cw.mu.Unlock()
}

// Sent returns the number of chunks written.
func (cw *ChunkWriter) Sent() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.sent
}

func (cw *ChunkWriter) write(chunk *ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrStreamClosed
	}
	if _, err := fmt.Fprintf(cw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	cw.sent++
	cw.flush()
	return nil
}

func (cw *ChunkWriter) flush() {
	if cw.flusher != nil {
		cw.flusher.Flush()
	}
}
