package session

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/loftlabs/loft/internal/llm"
	"github.com/loftlabs/loft/internal/tools"
)

// DefaultMaxSteps bounds how many model turns one submission may
// consume before forced termination.
const DefaultMaxSteps = 25

// Controller runs the step loop for a single submission: stream one
// model turn, execute any tool calls sequentially, feed results back,
// repeat until the model stops, the ceiling is hit, or the context is
// cancelled.
type Controller struct {
	provider llm.Provider
	registry *tools.Registry
	maxSteps int
	log      *zap.SugaredLogger
}

// NewController creates a controller. maxSteps <= 0 uses DefaultMaxSteps.
func NewController(provider llm.Provider, registry *tools.Registry, maxSteps int, log *zap.SugaredLogger) *Controller {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{provider: provider, registry: registry, maxSteps: maxSteps, log: log}
}

// TurnResult is the outcome of one submission.
type TurnResult struct {
	Messages  []llm.Message // transcript additions: assistant and tool messages
	Text      string        // concatenated assistant text across steps
	Reasoning string        // concatenated reasoning across steps
	Aborted   bool          // cancellation observed; partial output is valid
	Steps     int
}

// RunTurn drives the loop. Chunks go to emit in generation order.
// Cancellation is observed at chunk boundaries and yields a successful
// result with Aborted set; only provider failures return an error.
func (c *Controller) RunTurn(ctx context.Context, messages []llm.Message, emit func(StreamChunk)) (*TurnResult, error) {
	result := &TurnResult{}

	for step := 0; step < c.maxSteps; step++ {
		result.Steps = step + 1

		if ctx.Err() != nil {
			result.Aborted = true
			return result, nil
		}

		stream, err := c.provider.Stream(ctx, llm.Request{
			Messages: messages,
			Tools:    c.registry.Specs(),
		})
		if err != nil {
			if ctx.Err() != nil {
				result.Aborted = true
				return result, nil
			}
			return nil, err
		}

		var text, reasoning strings.Builder
		var reasoningItemID, reasoningEncrypted string
		var toolCalls []llm.ToolCall
		reasoningOpen := false
		aborted := false

		closeReasoning := func() {
			if reasoningOpen {
				emit(StreamChunk{Type: ChunkReasoningEnd})
				reasoningOpen = false
			}
		}

		for {
			if ctx.Err() != nil {
				aborted = true
				break
			}

			event, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				stream.Close()
				if ctx.Err() != nil {
					aborted = true
					break
				}
				closeReasoning()
				return nil, err
			}

			switch event.Type {
			case llm.EventTextDelta:
				if event.Text != "" {
					closeReasoning()
					text.WriteString(event.Text)
					emit(StreamChunk{Type: ChunkText, Content: event.Text})
				}
			case llm.EventReasoningDelta:
				if event.Text != "" {
					if !reasoningOpen {
						emit(StreamChunk{Type: ChunkReasoningStart})
						reasoningOpen = true
					}
					reasoning.WriteString(event.Text)
					emit(StreamChunk{Type: ChunkReasoning, Content: event.Text})
				}
				if event.ReasoningItemID != "" {
					reasoningItemID = event.ReasoningItemID
				}
				if event.ReasoningEncryptedContent != "" {
					reasoningEncrypted = event.ReasoningEncryptedContent
				}
			case llm.EventToolCall:
				if event.Tool != nil {
					toolCalls = append(toolCalls, *event.Tool)
				}
			case llm.EventUsage:
				if event.Use != nil {
					c.log.Debugw("turn usage", "step", step, "input_tokens", event.Use.InputTokens, "output_tokens", event.Use.OutputTokens)
				}
			case llm.EventRetry:
				c.log.Infow("provider retry", "attempt", event.RetryAttempt, "delay_ms", event.RetryDelayMS)
			}
		}
		stream.Close()
		closeReasoning()

		appendSegment(&result.Text, text.String())
		appendSegment(&result.Reasoning, reasoning.String())

		assistantMsg := buildAssistantMessage(text.String(), toolCalls, reasoning.String(), reasoningItemID, reasoningEncrypted)
		if len(assistantMsg.Parts) > 0 {
			messages = append(messages, assistantMsg)
			result.Messages = append(result.Messages, assistantMsg)
		}

		if aborted {
			result.Aborted = true
			return result, nil
		}

		if len(toolCalls) == 0 {
			return result, nil // natural stop
		}

		for _, call := range toolCalls {
			if ctx.Err() != nil {
				result.Aborted = true
				return result, nil
			}

			emit(StreamChunk{
				Type:       ChunkToolCall,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				ToolArgs:   call.Arguments,
			})

			toolResult := c.registry.Execute(ctx, call)

			emit(StreamChunk{
				Type:       ChunkToolResult,
				ToolCallID: toolResult.ID,
				ToolName:   toolResult.Name,
				ToolOutput: toolResult.Content,
				IsError:    toolResult.IsError,
			})

			resultMsg := llm.ToolResultMessage(toolResult)
			messages = append(messages, resultMsg)
			result.Messages = append(result.Messages, resultMsg)
		}
	}

	c.log.Warnw("step ceiling reached", "max_steps", c.maxSteps)
	return result, nil
}

// buildAssistantMessage assembles the assistant turn with reasoning
// replay metadata, text, and tool call parts in that order.
func buildAssistantMessage(text string, calls []llm.ToolCall, reasoning, itemID, encrypted string) llm.Message {
	var parts []llm.Part
	if reasoning != "" || itemID != "" || encrypted != "" {
		parts = append(parts, llm.Part{
			Type:                      llm.PartText,
			ReasoningContent:          reasoning,
			ReasoningItemID:           itemID,
			ReasoningEncryptedContent: encrypted,
		})
	}
	if text != "" {
		parts = append(parts, llm.Part{Type: llm.PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		parts = append(parts, llm.Part{Type: llm.PartToolCall, ToolCall: &call})
	}
	return llm.Message{Role: llm.RoleAssistant, Parts: parts}
}

func appendSegment(dst *string, segment string) {
	if segment == "" {
		return
	}
	if *dst != "" {
		*dst += "\n\n"
	}
	*dst += segment
}
