package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// responsesClient makes raw HTTP calls to Open Responses-compliant
// endpoints. See https://www.openresponses.org/specification
type responsesClient struct {
	BaseURL       string
	GetAuthHeader func() string
	ExtraHeaders  map[string]string
	HTTPClient    *http.Client
}

type responsesRequest struct {
	Model           string               `json:"model"`
	Input           []responsesInputItem `json:"input"`
	Tools           []responsesTool      `json:"tools,omitempty"`
	MaxOutputTokens int                  `json:"max_output_tokens,omitempty"`
	Reasoning       *responsesReasoning  `json:"reasoning,omitempty"`
	Include         []string             `json:"include,omitempty"`
	Stream          bool                 `json:"stream"`
}

type responsesInputItem struct {
	Type    string      `json:"type"`
	Role    string      `json:"role,omitempty"`
	Content interface{} `json:"content,omitempty"`
	// For reasoning items
	ID               string                     `json:"id,omitempty"`
	EncryptedContent string                     `json:"encrypted_content,omitempty"`
	Summary          *responsesReasoningSummary `json:"summary,omitempty"`
	// For function_call items
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	// For function_call_output items
	Output string `json:"output,omitempty"`
}

type responsesTool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
	Strict      bool                   `json:"strict,omitempty"`
}

type responsesReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type responsesReasoningSummaryPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type responsesReasoningSummary []responsesReasoningSummaryPart

type responsesOutputItem struct {
	Type    string                   `json:"type"`
	Content []responsesOutputContent `json:"content,omitempty"`
	// For reasoning
	EncryptedContent string                          `json:"encrypted_content,omitempty"`
	Summary          []responsesReasoningSummaryPart `json:"summary,omitempty"`
	// For function_call
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responsesOutputContent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type responsesError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// buildResponsesInput converts messages to Open Responses input items.
func buildResponsesInput(messages []Message) []responsesInputItem {
	var items []responsesInputItem

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// The Responses API uses the developer role for system text.
			items = append(items, buildResponsesMessageItems("developer", msg.Parts)...)
		case RoleUser:
			items = append(items, buildResponsesMessageItems("user", msg.Parts)...)
		case RoleAssistant:
			items = append(items, buildResponsesAssistantItems(msg.Parts)...)
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				callID := strings.TrimSpace(part.ToolResult.ID)
				if callID == "" {
					continue
				}
				items = append(items, responsesInputItem{
					Type:   "function_call_output",
					CallID: callID,
					Output: part.ToolResult.Content,
				})
			}
		}
	}

	return items
}

func buildResponsesMessageItems(role string, parts []Part) []responsesInputItem {
	var items []responsesInputItem
	var textBuf strings.Builder

	flushText := func() {
		if textBuf.Len() == 0 {
			return
		}
		items = append(items, responsesInputItem{
			Type:    "message",
			Role:    role,
			Content: textBuf.String(),
		})
		textBuf.Reset()
	}

	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				textBuf.WriteString(part.Text)
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			flushText()
			items = append(items, responsesFunctionCallItem(part.ToolCall))
		}
	}

	flushText()
	return items
}

func buildResponsesAssistantItems(parts []Part) []responsesInputItem {
	var items []responsesInputItem
	var textBuf strings.Builder

	flushText := func() {
		if textBuf.Len() == 0 {
			return
		}
		items = append(items, responsesInputItem{
			Type:    "message",
			Role:    "assistant",
			Content: textBuf.String(),
		})
		textBuf.Reset()
	}

	for _, part := range parts {
		switch part.Type {
		case PartText:
			if hasResponsesReasoningReplay(part) {
				flushText()
				items = append(items, buildResponsesReasoningItem(part))
			}
			if part.Text != "" {
				textBuf.WriteString(part.Text)
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			flushText()
			items = append(items, responsesFunctionCallItem(part.ToolCall))
		}
	}

	flushText()
	return items
}

func responsesFunctionCallItem(call *ToolCall) responsesInputItem {
	args := strings.TrimSpace(string(call.Arguments))
	if args == "" {
		args = "{}"
	}
	return responsesInputItem{
		Type:      "function_call",
		CallID:    strings.TrimSpace(call.ID),
		Name:      call.Name,
		Arguments: args,
	}
}

func hasResponsesReasoningReplay(part Part) bool {
	return strings.TrimSpace(part.ReasoningItemID) != "" || strings.TrimSpace(part.ReasoningEncryptedContent) != ""
}

func buildResponsesReasoningItem(part Part) responsesInputItem {
	summary := responsesReasoningSummary{}
	item := responsesInputItem{
		Type:             "reasoning",
		ID:               strings.TrimSpace(part.ReasoningItemID),
		EncryptedContent: strings.TrimSpace(part.ReasoningEncryptedContent),
		Summary:          &summary,
	}
	if strings.TrimSpace(part.ReasoningContent) != "" {
		summary = append(summary, responsesReasoningSummaryPart{
			Type: "summary_text",
			Text: strings.TrimSpace(part.ReasoningContent),
		})
		item.Summary = &summary
	}
	return item
}

func buildResponsesTools(specs []ToolSpec) []responsesTool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]responsesTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, responsesTool{
			Type:        "function",
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  normalizeSchemaForOpenAI(spec.Schema),
			Strict:      true,
		})
	}
	return tools
}

// Stream makes a streaming request and returns events via a Stream.
func (c *responsesClient) Stream(ctx context.Context, req responsesRequest) (Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.GetAuthHeader != nil {
		httpReq.Header.Set("Authorization", c.GetAuthHeader())
	}
	for key, value := range c.ExtraHeaders {
		httpReq.Header.Set(key, value)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("responses API request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("responses API authentication failed (status %d): token may be invalid or expired", resp.StatusCode)
		}
		return nil, fmt.Errorf("responses API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		toolState := newResponsesToolState()
		var lastUsage *Usage
		var lastEventType string

		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				lastEventType = strings.TrimPrefix(line, "event: ")
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			switch lastEventType {
			case "response.output_text.delta":
				var deltaEvent struct {
					Delta string `json:"delta"`
				}
				if err := json.Unmarshal([]byte(data), &deltaEvent); err == nil && deltaEvent.Delta != "" {
					events <- Event{Type: EventTextDelta, Text: deltaEvent.Delta}
				}

			case "response.reasoning_summary_text.delta":
				var summaryDelta struct {
					Delta string `json:"delta"`
				}
				if err := json.Unmarshal([]byte(data), &summaryDelta); err == nil && summaryDelta.Delta != "" {
					events <- Event{Type: EventReasoningDelta, Text: summaryDelta.Delta}
				}

			case "response.output_item.added":
				var itemEvent struct {
					Item        responsesOutputItem `json:"item"`
					OutputIndex int                 `json:"output_index"`
				}
				if err := json.Unmarshal([]byte(data), &itemEvent); err == nil {
					if itemEvent.Item.Type == "function_call" {
						toolState.StartCall(itemEvent.OutputIndex, itemEvent.Item.CallID, itemEvent.Item.Name)
					}
				}

			case "response.function_call_arguments.delta":
				var argEvent struct {
					OutputIndex int    `json:"output_index"`
					Delta       string `json:"delta"`
				}
				if err := json.Unmarshal([]byte(data), &argEvent); err == nil {
					toolState.AppendArguments(argEvent.OutputIndex, argEvent.Delta)
				}

			case "response.output_item.done":
				var doneEvent struct {
					Item        responsesOutputItem `json:"item"`
					OutputIndex int                 `json:"output_index"`
				}
				if err := json.Unmarshal([]byte(data), &doneEvent); err == nil {
					switch doneEvent.Item.Type {
					case "function_call":
						toolState.FinishCall(doneEvent.OutputIndex, doneEvent.Item.CallID, doneEvent.Item.Name, doneEvent.Item.Arguments)
					case "reasoning":
						// Replay metadata only; the summary text was
						// already streamed as deltas.
						if doneEvent.Item.ID != "" || doneEvent.Item.EncryptedContent != "" {
							events <- Event{
								Type:                      EventReasoningDelta,
								ReasoningItemID:           doneEvent.Item.ID,
								ReasoningEncryptedContent: doneEvent.Item.EncryptedContent,
							}
						}
					case "message":
						// Refusals are not streamed as text deltas.
						for _, content := range doneEvent.Item.Content {
							if content.Type == "refusal" && content.Refusal != "" {
								events <- Event{Type: EventTextDelta, Text: content.Refusal}
							}
						}
					}
				}

			case "response.completed":
				var completedEvent struct {
					Response struct {
						Usage *responsesUsage `json:"usage,omitempty"`
					} `json:"response"`
				}
				if err := json.Unmarshal([]byte(data), &completedEvent); err == nil && completedEvent.Response.Usage != nil {
					lastUsage = &Usage{
						InputTokens:  completedEvent.Response.Usage.InputTokens,
						OutputTokens: completedEvent.Response.Usage.OutputTokens,
					}
				}

			case "response.failed", "error":
				var errorEvent struct {
					Error *responsesError `json:"error"`
				}
				if err := json.Unmarshal([]byte(data), &errorEvent); err == nil && errorEvent.Error != nil {
					return fmt.Errorf("responses API error: %s", errorEvent.Error.Message)
				}
				return fmt.Errorf("responses API error: unknown error")
			}

			lastEventType = ""
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("responses API streaming error: %w", err)
		}

		for _, call := range toolState.Calls() {
			events <- Event{Type: EventToolCall, Tool: &call}
		}
		if lastUsage != nil {
			events <- Event{Type: EventUsage, Use: lastUsage}
		}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

// responsesToolState tracks streaming tool calls keyed by output_index,
// which is stable across added/delta/done events.
type responsesToolState struct {
	calls map[int]*responsesToolCallState
	order []int
}

type responsesToolCallState struct {
	callID   string
	name     string
	args     strings.Builder
	finished bool
}

func newResponsesToolState() *responsesToolState {
	return &responsesToolState{calls: make(map[int]*responsesToolCallState)}
}

func (s *responsesToolState) StartCall(outputIndex int, callID, name string) {
	if _, exists := s.calls[outputIndex]; exists {
		return
	}
	s.calls[outputIndex] = &responsesToolCallState{callID: callID, name: name}
	s.order = append(s.order, outputIndex)
}

func (s *responsesToolState) AppendArguments(outputIndex int, args string) {
	if state, ok := s.calls[outputIndex]; ok && !state.finished {
		state.args.WriteString(args)
	}
}

func (s *responsesToolState) FinishCall(outputIndex int, callID, name, finalArgs string) {
	state, ok := s.calls[outputIndex]
	if !ok {
		state = &responsesToolCallState{callID: callID, name: name}
		s.calls[outputIndex] = state
		s.order = append(s.order, outputIndex)
	}
	if finalArgs != "" {
		state.args.Reset()
		state.args.WriteString(finalArgs)
	}
	if callID != "" {
		state.callID = callID
	}
	if name != "" && state.name == "" {
		state.name = name
	}
	state.finished = true
}

func (s *responsesToolState) Calls() []ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(s.order))
	for _, outputIndex := range s.order {
		state := s.calls[outputIndex]
		if state == nil {
			continue
		}
		args := state.args.String()
		if args == "" {
			args = "{}"
		}
		id := state.callID
		if id == "" {
			id = fmt.Sprintf("call_%d", outputIndex)
		}
		calls = append(calls, ToolCall{
			ID:        id,
			Name:      state.name,
			Arguments: json.RawMessage(args),
		})
	}
	return calls
}
