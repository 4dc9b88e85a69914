// ABOUTME: Result store interface and sentinel errors for task results
// ABOUTME: Shared encoding and identifier validation for all backends

package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/2389/research-gateway/internal/step"
)

// ErrNotFound is returned when no result exists for an identifier.
var ErrNotFound = errors.New("task not found")

// Store persists and retrieves final job results.
type Store interface {
	// Store writes the result for requestID. Overwrites are not guarded.
	Store(ctx context.Context, requestID string, result step.Action) error
	// Fetch returns the stored JSON for requestID or ErrNotFound.
	Fetch(ctx context.Context, requestID string) ([]byte, error)
	// Close releases any resources held by the store.
	Close() error
}

// validID matches identifiers that are safe to use as file names and keys.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can address a stored result.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// encode renders a result as pretty-printed JSON.
func encode(result step.Action) ([]byte, error) {
	if result == nil {
		return nil, errors.New("nil result")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return data, nil
}
