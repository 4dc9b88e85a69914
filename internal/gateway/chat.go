// ABOUTME: OpenAI-compatible chat-completions handler over the research agent
// ABOUTME: Serves single JSON completions and SSE chunk streams with think framing

package gateway

import (
	"context"
	"net/http"

	"github.com/2389/research-gateway/internal/agent"
	"github.com/2389/research-gateway/internal/auth"
	"github.com/2389/research-gateway/internal/jobs"
	"github.com/2389/research-gateway/internal/openai"
	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

// agentOutcome is the settled result of one agent call.
type agentOutcome struct {
	result step.Action
	err    error
}

// handleChatCompletions serves POST /v1/chat/completions.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !auth.CheckSecret(r, g.config.Auth.Secret) {
		g.logger.Warn("unauthorized chat completion request")
		auth.WriteUnauthorized(w)
		return
	}

	var req openai.ChatCompletionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	last, ok := req.LastMessage()
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "messages array is required and must not be empty")
		return
	}
	if last.Role != openai.RoleUser {
		g.sendJSONError(w, http.StatusBadRequest, "last message must be from user")
		return
	}

	id := jobs.NewID()
	g.logger.Info("chat completion request",
		"request_id", id,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
		"has_auth", r.Header.Get("Authorization") != "",
	)

	rc := tracker.NewRunContext()
	defer rc.Release()
	rc.Usage.Record(tracker.ActorAgent, g.accounting.Prompt(len(req.Messages)), tracker.CategoryPrompt)

	if req.Stream {
		g.streamCompletion(w, r, id, req.Model, last.Content, rc)
		return
	}
	g.completeCompletion(w, r, id, req.Model, last.Content, rc)
}

// startAgent runs the agent on its own goroutine, detached from the
// request's cancellation. The returned channel receives exactly once.
func (g *Gateway) startAgent(r *http.Request, query string, rc *tracker.RunContext) <-chan agentOutcome {
	out := make(chan agentOutcome, 1)
	ctx := context.WithoutCancel(r.Context())
	go func() {
		result, err := g.invokeWithQuotaRetry(ctx, query, rc)
		out <- agentOutcome{result: result, err: err}
	}()
	return out
}

// invokeWithQuotaRetry calls the agent and, on a 402, retries exactly once
// with deduplication bypassed.
func (g *Gateway) invokeWithQuotaRetry(ctx context.Context, query string, rc *tracker.RunContext) (step.Action, error) {
	result, err := g.agent.Invoke(ctx, agent.Request{Query: query}, rc)
	if err == nil || !agent.IsQuotaExceeded(err) {
		return result, err
	}

	g.logger.Warn("agent quota exceeded, retrying with dedup bypass",
		"max_bad_attempts", g.config.Agent.DedupBypassAttempts,
		"error", err,
	)
	return g.agent.Invoke(ctx, agent.Request{
		Query:          query,
		MaxBadAttempts: g.config.Agent.DedupBypassAttempts,
	}, rc)
}

// completeCompletion waits for the agent and writes one chat.completion object.
func (g *Gateway) completeCompletion(w http.ResponseWriter, r *http.Request, id, model, query string, rc *tracker.RunContext) {
	var out agentOutcome
	select {
	case out = <-g.startAgent(r, query, rc):
	case <-r.Context().Done():
		g.logger.Info("client disconnected before completion", "request_id", id)
		return
	}

	tracker.RecordOutcome(rc.Usage, g.accounting, out.result)

	if out.err != nil {
		g.logger.Error("chat completion failed", "request_id", id, "error", out.err)
		g.writeJSON(w, http.StatusOK, openai.NewResponse(id, model, "Error: "+out.err.Error(), rc.Usage.Details()))
		return
	}

	resp := openai.NewResponse(id, model, step.FinalText(out.result), rc.Usage.Details())
	g.logger.Info("chat completion response",
		"request_id", id,
		"action", out.result.Kind(),
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", resp.Usage.TotalTokens,
	)
	g.writeJSON(w, http.StatusOK, resp)
}

// streamCompletion writes the agent's reasoning as think-tagged chunks,
// then the final text, then [DONE].
func (g *Gateway) streamCompletion(w http.ResponseWriter, r *http.Request, id, model, query string, rc *tracker.RunContext) {
	cw := openai.NewChunkWriter(w, id, model)
	defer cw.Close()

	if err := cw.Open(); err != nil {
		g.logger.Error("writing opening chunk", "request_id", id, "error", err)
		return
	}

	release := rc.Actions.OnAction(func(a step.Action) {
		rc.Usage.Record(tracker.ActorEvaluator, g.accounting.Reasoning(a), tracker.CategoryReasoning)
		if a == nil || a.Thought() == "" {
			return
		}
		if err := cw.Think(a.Thought()); err != nil {
			g.logger.Debug("dropping think chunk", "request_id", id, "error", err)
		}
	})
	defer release()

	var out agentOutcome
	select {
	case out = <-g.startAgent(r, query, rc):
	case <-r.Context().Done():
		g.logger.Info("client disconnected from stream", "request_id", id)
		return
	}
	release()

	tracker.RecordOutcome(rc.Usage, g.accounting, out.result)

	var content string
	if out.err != nil {
		g.logger.Error("chat completion stream failed", "request_id", id, "error", out.err)
		content = out.err.Error()
	} else {
		content = step.FinalText(out.result)
	}

	if err := cw.CloseThink(); err != nil {
		g.logger.Debug("writing closing think chunk", "request_id", id, "error", err)
		return
	}
	if err := cw.Final(content); err != nil {
		g.logger.Debug("writing final chunk", "request_id", id, "error", err)
		return
	}
	_ = cw.Done()
	g.logger.Info("chat completion stream finished", "request_id", id, "chunks", cw.Sent())
}
