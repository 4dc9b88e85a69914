// ABOUTME: Job API handlers for query submission and task result fetch
// ABOUTME: Task results are served verbatim or rendered from Markdown to HTML

package gateway

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/2389/research-gateway/internal/auth"
	"github.com/2389/research-gateway/internal/jobs"
	"github.com/2389/research-gateway/internal/results"
	"github.com/2389/research-gateway/internal/step"
)

// QueryRequest is the JSON request body for POST /api/v1/query.
type QueryRequest struct {
	Q             string `json:"q"`
	Budget        int    `json:"budget,omitempty"`
	MaxBadAttempt int    `json:"maxBadAttempt,omitempty"`
}

// QueryResponse is the JSON response for POST /api/v1/query.
type QueryResponse struct {
	RequestID string `json:"requestId"`
}

// handleQuery submits a background job and returns its identifier.
func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Q == "" {
		g.sendJSONError(w, http.StatusBadRequest, "query (q) is required")
		return
	}

	job, err := g.jobs.Submit(r.Context(), jobs.SubmitRequest{
		Query:          req.Q,
		Budget:         req.Budget,
		MaxBadAttempts: req.MaxBadAttempt,
	})
	switch {
	case errors.Is(err, jobs.ErrEmptyQuery):
		g.sendJSONError(w, http.StatusBadRequest, "query (q) is required")
		return
	case errors.Is(err, jobs.ErrClosed):
		g.sendJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		g.logger.Error("failed to submit job", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		g.logger.Info("query submitted", "request_id", job.ID, "subject", subject)
	}
	g.writeJSON(w, http.StatusOK, QueryResponse{RequestID: job.ID})
}

// handleTask serves the stored result for a request identifier.
func (g *Gateway) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("requestId")

	data, err := g.store.Fetch(r.Context(), id)
	if errors.Is(err, results.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to fetch task result", "request_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		g.writeTaskHTML(w, id, data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeTaskHTML renders the stored step's final text as HTML.
func (g *Gateway) writeTaskHTML(w http.ResponseWriter, id string, data []byte) {
	action, err := step.Decode(data)
	if err != nil {
		g.logger.Error("stored task result is not a step", "request_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(step.FinalText(action)), &buf); err != nil {
		g.logger.Error("rendering task result", "request_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
