// Package gateway serves the research agent over HTTP.
//
// # Endpoints
//
//	POST /v1/chat/completions        OpenAI-compatible, JSON or SSE (stream: true)
//	POST /api/v1/query               start a background job, returns {"requestId"}
//	GET  /api/v1/stream/{requestId}  SSE relay of the job's events
//	GET  /api/v1/ws/{requestId}      the same relay over a WebSocket
//	GET  /api/v1/task/{requestId}    stored result (?format=html renders Markdown)
//	GET  /health                     liveness
//
// # Chat Completions
//
// Streamed completions open with "<think>", emit one "<think>TEXT</think>"
// chunk per agent action that carries reasoning text, then "</think>", the
// final text with finish_reason "stop", and "data: [DONE]". A 402 from the
// agent is retried once with the configured dedup-bypass attempts.
//
// The agent call is never cancelled by a client disconnect; the handler
// detaches its listener and returns while the call finishes.
//
// # Jobs
//
// Submitted queries run in the jobs package. Their progress is published on
// the notification bus keyed by request identifier; stream subscribers see
// a "connected" event, then live "progress" events, then exactly one
// "answer" or "error" event, after which the relay ends. Events published
// before a subscriber attaches are not replayed; the task endpoint serves
// the durable result.
//
// # Authentication
//
// auth.secret guards the chat endpoint with a shared bearer secret.
// auth.jwt_secret, when set, guards every /api/v1 route with HS256 tokens.
package gateway
