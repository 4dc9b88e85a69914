// Package step defines the agent's per-step output as a closed sum type.
//
// Every step carries the agent's free-form reasoning ("think"). Only an
// Answer is terminal; Search, Reflect and Visit are intermediate steps that a
// failed or exhausted run may still return as its final result.
//
// Steps serialize with an "action" discriminator:
//
//	{"action":"answer","think":"...","answer":"...","references":[...]}
//
// Decode reverses that encoding.
package step
