// ABOUTME: Development agent speaking the remote agent NDJSON protocol over HTTP
// ABOUTME: Usage: fake-agent [-addr 127.0.0.1:3001] [-steps 3] [-delay 500ms]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/2389/research-gateway/internal/agent"
	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3001", "HTTP listen address")
	steps := flag.Int("steps", 3, "intermediate steps before answering")
	delay := flag.Duration("delay", 500*time.Millisecond, "pause between steps")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "fake-agent")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, &researcher{steps: *steps, delay: *delay, logger: logger}, logger); err != nil {
		logger.Error("fake agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/research", h)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// researcher pretends to research a query, emitting search and reflect
// steps before answering with a Markdown echo of the query.
type researcher struct {
	steps  int
	delay  time.Duration
	logger *slog.Logger
}

func (rs *researcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req agent.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "query is required"})
		return
	}

	// Queries mentioning "quota" fail with 402 until dedup is bypassed.
	if strings.Contains(strings.ToLower(req.Query), "quota") && req.MaxBadAttempt == 0 {
		rs.logger.Info("simulating quota exhaustion", "query", req.Query)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "search quota exceeded"})
		return
	}

	rs.logger.Info("research request", "query", req.Query, "budget", req.Budget, "max_bad_attempt", req.MaxBadAttempt)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	emit := func(rec agent.Record) bool {
		if err := enc.Encode(rec); err != nil {
			rs.logger.Debug("client went away", "error", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for i := 1; i <= rs.steps; i++ {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(rs.delay):
		}

		var s step.Action = step.Search{
			Think:          fmt.Sprintf("Step %d: searching for %q", i, req.Query),
			SearchRequests: []string{req.Query},
		}
		if i%2 == 0 {
			s = step.Reflect{
				Think:             fmt.Sprintf("Step %d: checking what is still unknown", i),
				QuestionsToAnswer: []string{"What sources agree on " + req.Query + "?"},
			}
		}
		raw, err := json.Marshal(s)
		if err != nil {
			emit(agent.Record{Type: agent.RecordError, Status: http.StatusInternalServerError, Message: err.Error()})
			return
		}

		if !emit(agent.Record{Type: agent.RecordAction, Action: raw, Gaps: []string{req.Query}}) {
			return
		}
		if !emit(agent.Record{Type: agent.RecordUsage, Tool: "search", Tokens: 120, Category: string(tracker.CategoryReasoning)}) {
			return
		}
	}

	answer := step.Answer{
		Think:  "I have enough to answer.",
		Answer: fmt.Sprintf("## Findings\n\nYou asked: **%s**\n\n- researched in %d steps", req.Query, rs.steps),
		References: []step.Reference{
			{ExactQuote: req.Query, URL: "https://example.com/search?q=" + strings.ReplaceAll(req.Query, " ", "+")},
		},
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		emit(agent.Record{Type: agent.RecordError, Status: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	emit(agent.Record{Type: agent.RecordResult, Result: raw})
}
