// Package openai holds the chat-completions wire types served by the
// gateway and the chunk writer used for streamed completions.
//
// Streamed completions are framed as server-sent events, one
// chat.completion.chunk object per "data:" line, terminated by the
// "data: [DONE]" sentinel. ChunkWriter serializes writes so that the
// agent's action listener and the request handler can share one response.
package openai
