// Package jobs runs background research jobs and publishes their progress.
//
// # Lifecycle
//
// Service.Submit allocates a request identifier, registers the job, attaches
// a progress emitter to its action tracker, and starts the agent on a
// goroutine detached from the caller's cancellation:
//
//	pending -> running -> completed | failed
//
// A completed job's final step is written to the result store and published
// as an "answer" event; a failed job publishes an "error" event with status
// 500. Exactly one terminal event is published per job.
//
// # Registry
//
// Registry tracks live jobs with time-boxed retention and a size bound. An
// evicted job loses its listeners and its registry entry, but keeps running;
// its terminal event and stored result are unaffected.
//
// # Identifiers
//
// NewID returns ULIDs, which sort by creation time and stay unique for
// concurrent requests within the same millisecond.
package jobs
