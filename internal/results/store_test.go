// ABOUTME: Tests for the file and SQLite result stores
// ABOUTME: Covers round trips, idempotent reads, not-found and unsafe identifiers

package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-gateway/internal/step"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "tasks"), nil),
		"sqlite": sqlStore,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			result := step.Answer{Think: "done", Answer: "forty-two"}

			require.NoError(t, s.Store(ctx, "01HZX3J6M2", result))

			first, err := s.Fetch(ctx, "01HZX3J6M2")
			require.NoError(t, err)
			second, err := s.Fetch(ctx, "01HZX3J6M2")
			require.NoError(t, err)
			assert.Equal(t, first, second)

			decoded, err := step.Decode(first)
			require.NoError(t, err)
			assert.Equal(t, result, decoded)
		})
	}
}

func TestStore_FetchMissing(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Fetch(t.Context(), "never-submitted")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UnsafeIDsAreNotFound(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Fetch(t.Context(), "../etc/passwd")
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.Store(t.Context(), "../escape", step.Answer{Answer: "x"})
			assert.Error(t, err)
		})
	}
}

func TestFileStore_CreatesDirectoryAndPrettyPrints(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tasks")
	s := NewFileStore(dir, nil)

	require.NoError(t, s.Store(t.Context(), "req-1", step.Reflect{Think: "why", QuestionsToAnswer: []string{"a"}}))

	data, err := os.ReadFile(filepath.Join(dir, "req-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"action\": \"reflect\"")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "why", fields["think"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not remain")
}

func TestStore_NilResultRejected(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	assert.Error(t, s.Store(t.Context(), "req-1", nil))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("01J9ZQ4W5T6Y7U8I9O0P1A2S3D"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID("a.json"))
}
