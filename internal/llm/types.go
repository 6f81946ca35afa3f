package llm

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of content in a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message is one entry in the conversation sent to a provider.
type Message struct {
	Role  Role
	Parts []Part
}

// Part is a unit of message content. Text parts may carry reasoning
// replay fields so providers that require thinking blocks to be echoed
// back (Anthropic signatures, OpenAI encrypted reasoning items) can
// reconstruct them.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult

	ReasoningContent          string
	ReasoningItemID           string
	ReasoningEncryptedContent string
}

// ToolSpec describes a tool the model may invoke. Schema is a JSON
// Schema object: {"type": "object", "properties": {...}, "required": [...]}.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-initiated tool invocation. IDs are unique within
// a session, not globally.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage

	// ThoughtSig carries Gemini thought signatures that must be echoed
	// back alongside the corresponding tool result.
	ThoughtSig []byte
}

// ToolResult is the outcome of a ToolCall, produced exactly once per
// call. Failures set IsError and carry the error payload in Content
// rather than raising.
type ToolResult struct {
	ID         string
	Name       string
	Content    string
	IsError    bool
	ThoughtSig []byte
}

// ReasoningConfig is the normalized extended-reasoning option. Each
// provider translates EffortOrBudget into its own shape (token budget,
// effort level, thinking level) and silently ignores the option when
// the model cannot honor it.
type ReasoningConfig struct {
	Enabled        bool
	EffortOrBudget string
}

// Request is a single model turn.
type Request struct {
	Model           string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Reasoning       ReasoningConfig
}

// EventType identifies a streaming event from a provider.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolCall       EventType = "tool_call"
	EventUsage          EventType = "usage"
	EventRetry          EventType = "retry"
	EventDone           EventType = "done"
)

// Event is one unit of provider streaming output.
type Event struct {
	Type EventType
	Text string
	Tool *ToolCall
	Use  *Usage

	ReasoningItemID           string
	ReasoningEncryptedContent string

	// Retry metadata, only set for EventRetry.
	RetryAttempt int
	RetryDelayMS int
}

// Usage reports token consumption for a turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider is a streaming LLM backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ModelLister is implemented by providers that can enumerate their
// available models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes one available model.
type ModelInfo struct {
	ID          string
	DisplayName string
	Created     int64
}

// SystemText builds a system message with a single text part.
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

// UserText builds a user message with a single text part.
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

// AssistantText builds an assistant message with a single text part.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

// ToolResultMessage builds the tool-role message echoing a result back
// to the model.
func ToolResultMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Parts: []Part{{Type: PartToolResult, ToolResult: &result}}}
}

func collectTextParts(parts []Part) string {
	var out string
	for _, part := range parts {
		if part.Type == PartText && part.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += part.Text
		}
	}
	return out
}

func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
