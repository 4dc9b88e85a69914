// Package tracker holds the per-request run state shared between the agent and
// the gateway: token usage accounting and action/step accounting.
//
// A RunContext bundles one Usage and one Actions tracker. Both are safe for
// concurrent use and append-only: nothing recorded is ever retracted.
//
// Listeners registered with Actions.OnAction receive every step the agent
// records. Registration returns a release function; callers defer it so the
// listener is removed on every exit path.
package tracker
