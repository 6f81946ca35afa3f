package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Google Gemini API.
type GeminiProvider struct {
	apiKey         string
	model          string
	thinkingLevel  genai.ThinkingLevel // Gemini 3: MINIMAL, LOW, HIGH
	thinkingBudget *int32              // Gemini 2.5: token budget
}

// geminiThinking maps the normalized reasoning option onto the model
// generation. Gemini 3 models take a thinking level, Gemini 2.5 models
// take a token budget, anything else ignores the option.
func geminiThinking(model string, reasoning ReasoningConfig) (genai.ThinkingLevel, *int32) {
	switch {
	case strings.HasPrefix(model, "gemini-3"):
		if !reasoning.Enabled {
			return genai.ThinkingLevelLow, nil
		}
		switch strings.ToLower(reasoning.EffortOrBudget) {
		case "minimal":
			return genai.ThinkingLevelMinimal, nil
		case "low":
			return genai.ThinkingLevelLow, nil
		default:
			return genai.ThinkingLevelHigh, nil
		}
	case strings.HasPrefix(model, "gemini-2.5"):
		if !reasoning.Enabled {
			zero := int32(0)
			return "", &zero
		}
		budget := int32(8192)
		if n, err := strconv.ParseInt(reasoning.EffortOrBudget, 10, 32); err == nil && n > 0 {
			budget = int32(n)
		}
		return "", &budget
	default:
		return "", nil
	}
}

func NewGeminiProvider(apiKey, model string, reasoning ReasoningConfig) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key in config and GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	level, budget := geminiThinking(model, reasoning)
	return &GeminiProvider{
		apiKey:         apiKey,
		model:          model,
		thinkingLevel:  level,
		thinkingBudget: budget,
	}, nil
}

func (p *GeminiProvider) Name() string {
	if p.thinkingLevel != "" {
		return fmt.Sprintf("Gemini (%s, thinking=%s)", p.model, strings.ToLower(string(p.thinkingLevel)))
	}
	if p.thinkingBudget != nil {
		return fmt.Sprintf("Gemini (%s, thinkingBudget=%d)", p.model, *p.thinkingBudget)
	}
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey})
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		client, err := p.newClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}

		system, contents := buildGeminiContents(req.Messages)
		if len(contents) == 0 {
			return fmt.Errorf("no user content provided")
		}

		config := &genai.GenerateContentConfig{}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}

		// Thinking config is not supported together with tools.
		if len(req.Tools) == 0 {
			if p.thinkingLevel != "" {
				config.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: p.thinkingLevel}
			} else if p.thinkingBudget != nil {
				config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: p.thinkingBudget}
			}
		}

		if len(req.Tools) > 0 {
			config.Tools = buildGeminiTools(req.Tools)
		}

		model := chooseModel(req.Model, p.model)

		if len(req.Tools) > 0 {
			resp, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err != nil {
				return fmt.Errorf("gemini API error: %w", err)
			}
			// Gemini 3 returns thought signatures that must be passed
			// back with tool results.
			var lastThoughtSig []byte
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					if part.Thought && len(part.ThoughtSignature) > 0 {
						lastThoughtSig = part.ThoughtSignature
					}
					if part.Text != "" && !part.Thought {
						events <- Event{Type: EventTextDelta, Text: part.Text}
					}
					if part.FunctionCall != nil {
						argsJSON, _ := json.Marshal(part.FunctionCall.Args)
						thoughtSig := part.ThoughtSignature
						if thoughtSig == nil {
							thoughtSig = lastThoughtSig
						}
						events <- Event{Type: EventToolCall, Tool: &ToolCall{
							ID:         part.FunctionCall.ID,
							Name:       part.FunctionCall.Name,
							Arguments:  json.RawMessage(argsJSON),
							ThoughtSig: thoughtSig,
						}}
					}
				}
			}
			emitGeminiUsage(events, resp)
			events <- Event{Type: EventDone}
			return nil
		}

		var lastResp *genai.GenerateContentResponse
		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return fmt.Errorf("gemini streaming error: %w", err)
			}
			lastResp = resp
			if text := resp.Text(); text != "" {
				events <- Event{Type: EventTextDelta, Text: text}
			}
		}
		emitGeminiUsage(events, lastResp)
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func emitGeminiUsage(events chan<- Event, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	if resp.UsageMetadata.TotalTokenCount > 0 {
		events <- Event{Type: EventUsage, Use: &Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}}
	}
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]*genai.Tool, 0, len(specs))
	for _, spec := range specs {
		schema := normalizeSchemaForGemini(spec.Schema)
		tools = append(tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        spec.Name,
					Description: spec.Description,
					Parameters:  schemaToGenai(schema),
				},
			},
		})
	}
	return tools
}

func buildGeminiContents(messages []Message) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := collectTextParts(msg.Parts); text != "" {
				systemParts = append(systemParts, text)
			}
		case RoleUser:
			if content := buildGeminiContent(genai.RoleUser, msg.Parts); content != nil {
				contents = append(contents, content)
			}
		case RoleAssistant:
			if content := buildGeminiContent(genai.RoleModel, msg.Parts); content != nil {
				contents = append(contents, content)
			}
		case RoleTool:
			if content := buildGeminiToolResultContent(msg.Parts); content != nil {
				contents = append(contents, content)
			}
		}
	}

	return strings.Join(systemParts, "\n\n"), contents
}

func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: toolArgsToMap(part.ToolCall.Arguments),
				},
				ThoughtSignature: part.ToolCall.ThoughtSig,
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func buildGeminiToolResultContent(parts []Part) *genai.Content {
	content := &genai.Content{Role: genai.RoleUser}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolResult:
			if part.ToolResult == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       part.ToolResult.ID,
					Name:     part.ToolResult.Name,
					Response: map[string]any{"output": part.ToolResult.Content},
				},
				ThoughtSignature: part.ToolResult.ThoughtSig,
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func toolArgsToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	return map[string]any{"_raw": string(raw)}
}
