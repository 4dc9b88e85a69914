// ABOUTME: HTTP client for agents speaking the NDJSON record protocol
// ABOUTME: Applies streamed records to the RunContext as they arrive

package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

const (
	// maxRecordSize bounds a single NDJSON line.
	maxRecordSize = 4 * 1024 * 1024

	// maxErrorBody bounds how much of a non-2xx body is read for the message.
	maxErrorBody = 4096
)

// ErrNoResult is returned when the agent stream ends without a terminal record.
var ErrNoResult = errors.New("agent stream ended without a result")

// Remote invokes an agent service over HTTP.
type Remote struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewRemote creates a client for the agent at endpoint. Pass nil client or
// logger for defaults. No timeout is applied to the call.
func NewRemote(endpoint string, client *http.Client, logger *slog.Logger) *Remote {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		endpoint: endpoint,
		client:   client,
		logger:   logger.With("component", "agent"),
	}
}

// Invoke posts the request and consumes the record stream until a terminal record.
func (r *Remote) Invoke(ctx context.Context, req Request, rc *tracker.RunContext) (step.Action, error) {
	body, err := json.Marshal(InvokeRequest{
		Query:         req.Query,
		Budget:        req.Budget,
		MaxBadAttempt: req.MaxBadAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decoding agent record: %w", err)
		}

		result, done, err := r.apply(rec, rc)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading agent stream: %w", err)
	}
	return nil, ErrNoResult
}

// apply folds one record into rc. done is true for terminal records.
func (r *Remote) apply(rec Record, rc *tracker.RunContext) (result step.Action, done bool, err error) {
	switch rec.Type {
	case RecordAction:
		a, err := step.Decode(rec.Action)
		if err != nil {
			return nil, false, fmt.Errorf("decoding agent action: %w", err)
		}
		rc.Actions.Track(tracker.ActionUpdate{
			Step:        a,
			Gaps:        rec.Gaps,
			BadAttempts: rec.BadAttempts,
			TotalStep:   rec.TotalStep,
		})

	case RecordThink:
		rc.Actions.TrackThink(rec.Think)

	case RecordUsage:
		category := tracker.Category(rec.Category)
		if !category.Valid() {
			r.logger.Warn("ignoring usage record with unknown category", "category", rec.Category)
			return nil, false, nil
		}
		actor := rec.Tool
		if actor == "" {
			actor = tracker.ActorAgent
		}
		rc.Usage.Record(actor, rec.Tokens, category)

	case RecordResult:
		a, err := step.Decode(rec.Result)
		if err != nil {
			return nil, false, fmt.Errorf("decoding agent result: %w", err)
		}
		return a, true, nil

	case RecordError:
		status := rec.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return nil, false, &UpstreamError{StatusCode: status, Message: rec.Message}

	default:
		r.logger.Debug("ignoring unknown agent record", "type", rec.Type)
	}
	return nil, false, nil
}

// upstreamFromResponse builds an UpstreamError from a non-2xx response,
// preferring a JSON {"error": "..."} message over the raw body.
func upstreamFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
}
