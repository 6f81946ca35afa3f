// Package session orchestrates conversations: the step-bounded turn
// loop against a model provider, tool dispatch, change tracking, and
// streaming of partial output to the client.
package session

import "encoding/json"

// ChunkType tags a StreamChunk. Clients switch on it to render text,
// reasoning, tool activity, and termination.
type ChunkType string

const (
	ChunkText           ChunkType = "text"
	ChunkReasoningStart ChunkType = "reasoning-start"
	ChunkReasoning      ChunkType = "reasoning"
	ChunkReasoningEnd   ChunkType = "reasoning-end"
	ChunkToolCall       ChunkType = "tool-call"
	ChunkToolResult     ChunkType = "tool-result"
	ChunkError          ChunkType = "error"
	ChunkDone           ChunkType = "done"
)

// StreamChunk is one unit of session output. Exactly one terminal
// chunk (error or done) is emitted per submission.
type StreamChunk struct {
	Type ChunkType `json:"type"`

	// Content payload for text, reasoning, and error chunks.
	Content string `json:"content,omitempty"`

	// Tool fields for tool-call and tool-result chunks.
	ToolCallID string          `json:"id,omitempty"`
	ToolName   string          `json:"name,omitempty"`
	ToolArgs   json.RawMessage `json:"args,omitempty"`
	ToolOutput string          `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}
