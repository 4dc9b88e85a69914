// ABOUTME: Agent collaborator contract with request and upstream error types
// ABOUTME: Classifies 402 upstream failures as quota exceeded

package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/research-gateway/internal/step"
	"github.com/2389/research-gateway/internal/tracker"
)

// Request is one agent invocation. Zero Budget and MaxBadAttempts mean
// "use the agent's default".
type Request struct {
	Query          string
	Budget         int
	MaxBadAttempts int
}

// Agent performs the research computation.
type Agent interface {
	Invoke(ctx context.Context, req Request, rc *tracker.RunContext) (step.Action, error)
}

// Func adapts a function to the Agent interface.
type Func func(ctx context.Context, req Request, rc *tracker.RunContext) (step.Action, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, req Request, rc *tracker.RunContext) (step.Action, error) {
	return f(ctx, req, rc)
}

// UpstreamError is a failure reported by a dependency of the agent.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return e.Message
}

// ErrQuotaExceeded matches any UpstreamError with status 402 via errors.Is.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Is lets errors.Is(err, ErrQuotaExceeded) classify 402 failures.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusPaymentRequired
}

// IsQuotaExceeded reports whether err is a payment-required upstream failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
