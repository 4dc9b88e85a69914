// Package agent defines the contract between the gateway and the research
// agent that performs the multi-step computation.
//
// # Contract
//
// An Agent receives a query and a RunContext and returns the final step:
//
//	result, err := a.Invoke(ctx, agent.Request{Query: q}, rc)
//
// While running, the agent records usage and actions on the RunContext; the
// gateway observes those trackers to stream progress.
//
// # Errors
//
// Failures caused by a downstream dependency are reported as *UpstreamError
// carrying the dependency's HTTP status. IsQuotaExceeded detects the 402
// "payment required" case that the chat endpoint retries once with
// deduplication bypassed.
//
// # Remote agents
//
// Remote talks to an agent service over HTTP. The request is a JSON
// document; the response is a stream of newline-delimited JSON records:
//
//	{"type":"action","action":{"action":"search","think":"...","searchRequests":["..."]}}
//	{"type":"think","think":"..."}
//	{"type":"usage","tool":"search","tokens":120,"category":"reasoning"}
//	{"type":"result","result":{"action":"answer","think":"...","answer":"..."}}
//
// "result" and "error" records are terminal. Each record is applied to the
// RunContext as it arrives.
package agent
