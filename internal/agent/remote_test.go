// ABOUTME: Tests for the remote NDJSON agent client
// ABOUTME: Uses httptest servers to script agent record streams

package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

// scriptedAgent serves the given NDJSON lines and captures the request body.
func scriptedAgent(t *testing.T, lines []string, got *InvokeRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote_AppliesRecordsAndReturnsResult(t *testing.T) {
	var req InvokeRequest
	srv := scriptedAgent(t, []string{
		`{"type":"action","action":{"action":"search","think":"look it up","searchRequests":["go"]},"gaps":["q1"]}`,
		`{"type":"usage","tool":"search","tokens":5,"category":"reasoning"}`,
		``,
		`{"type":"think","think":"reading"}`,
		`{"type":"result","result":{"action":"answer","think":"done","answer":"42"}}`,
	}, &req)

	rc := tracker.NewRunContext()
	var seen []step.Action
	release := rc.Actions.OnAction(func(a step.Action) { seen = append(seen, a) })
	defer release()

	r := NewRemote(srv.URL, nil, nil)
	result, err := r.Invoke(t.Context(), Request{Query: "meaning?", Budget: 100, MaxBadAttempts: 3}, rc)
	require.NoError(t, err)

	assert.Equal(t, InvokeRequest{Query: "meaning?", Budget: 100, MaxBadAttempt: 3}, req)
	assert.Equal(t, step.Answer{Think: "done", Answer: "42"}, result)
	assert.Equal(t, 5, rc.Usage.Total())
	assert.Equal(t, map[string]int{"search": 5}, rc.Usage.Breakdown())

	state := rc.Actions.State()
	assert.Equal(t, 1, state.TotalStep)
	assert.Equal(t, []string{"q1"}, state.Gaps)
	assert.Equal(t, "reading", state.ThisStep.Thought())
	assert.Len(t, seen, 2)
}

func TestRemote_ErrorRecordBecomesUpstreamError(t *testing.T) {
	srv := scriptedAgent(t, []string{
		`{"type":"error","status":402,"message":"out of credits"}`,
	}, nil)

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, "out of credits", err.Error())
}

func TestRemote_ErrorRecordDefaultsTo500(t *testing.T) {
	srv := scriptedAgent(t, []string{`{"type":"error","message":"boom"}`}, nil)

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	require.Error(t, err)
	assert.False(t, IsQuotaExceeded(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestRemote_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"quota exhausted"}`))
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusPaymentRequired, ue.StatusCode)
	assert.Equal(t, "quota exhausted", ue.Message)
	assert.True(t, IsQuotaExceeded(err))
}

func TestRemote_PlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, "upstream exploded", err.Error())
}

func TestRemote_StreamWithoutTerminalRecord(t *testing.T) {
	srv := scriptedAgent(t, []string{
		`{"type":"think","think":"hmm"}`,
	}, nil)

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestRemote_UnknownActionKind(t *testing.T) {
	srv := scriptedAgent(t, []string{
		`{"type":"action","action":{"action":"dance","think":"?"}}`,
	}, nil)

	_, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, tracker.NewRunContext())
	assert.ErrorIs(t, err, step.ErrUnknownKind)
}

func TestRemote_IgnoresUnknownRecordsAndCategories(t *testing.T) {
	srv := scriptedAgent(t, []string{
		`{"type":"telemetry","message":"x"}`,
		`{"type":"usage","tokens":3,"category":"mystery"}`,
		`{"type":"usage","tokens":2,"category":"prompt"}`,
		`{"type":"result","result":{"action":"reflect","think":"unsure","questionsToAnswer":["why"]}}`,
	}, nil)

	rc := tracker.NewRunContext()
	result, err := NewRemote(srv.URL, nil, nil).Invoke(t.Context(), Request{Query: "q"}, rc)
	require.NoError(t, err)
	assert.Equal(t, step.KindReflect, result.Kind())
	assert.Equal(t, map[string]int{tracker.ActorAgent: 2}, rc.Usage.Breakdown())
}

func TestUpstreamError_Classification(t *testing.T) {
	quota := fmt.Errorf("attempt 1: %w", &UpstreamError{StatusCode: 402, Message: "pay up"})
	assert.True(t, IsQuotaExceeded(quota))
	assert.Equal(t, 402, StatusCode(quota))

	assert.False(t, IsQuotaExceeded(&UpstreamError{StatusCode: 500}))
	assert.False(t, IsQuotaExceeded(errors.New("plain")))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.Equal(t, "upstream status 503", (&UpstreamError{StatusCode: 503}).Error())
}
