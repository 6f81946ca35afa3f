package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Minute}

// OpenAIProvider implements Provider using the OpenAI Responses API.
type OpenAIProvider struct {
	client          *openai.Client // used for ListModels
	apiKey          string
	model           string
	effort          string // reasoning effort: "low", "medium", "high", "xhigh", or ""
	responsesClient *responsesClient
}

// parseModelEffort extracts an effort suffix from the model name.
// "gpt-5.2-high" -> ("gpt-5.2", "high")
func parseModelEffort(model string) (string, string) {
	// Longest suffix first so "-high" does not match "-xhigh".
	suffixes := []string{"xhigh", "medium", "high", "low"}
	for _, effort := range suffixes {
		suffix := "-" + effort
		if strings.HasSuffix(model, suffix) {
			return strings.TrimSuffix(model, suffix), effort
		}
	}
	return model, ""
}

// NewOpenAIProvider creates an OpenAI provider. Reasoning maps to the
// Responses API effort parameter; EffortOrBudget is used verbatim when
// it names a valid effort level.
func NewOpenAIProvider(apiKey, model string, reasoning ReasoningConfig) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key in config and OPENAI_API_KEY is not set")
	}

	actualModel, effort := parseModelEffort(model)
	if reasoning.Enabled && effort == "" {
		switch reasoning.EffortOrBudget {
		case "low", "medium", "high", "xhigh":
			effort = reasoning.EffortOrBudget
		default:
			effort = "medium"
		}
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		apiKey: apiKey,
		model:  actualModel,
		effort: effort,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	if p.effort != "" {
		return fmt.Sprintf("OpenAI (%s, effort=%s)", p.model, p.effort)
	}
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

// ListModels returns available models from OpenAI.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var models []ModelInfo
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Created: m.Created,
		})
	}
	return models, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if p.responsesClient == nil {
		p.responsesClient = &responsesClient{
			BaseURL:       "https://api.openai.com/v1/responses",
			GetAuthHeader: func() string { return "Bearer " + p.apiKey },
			HTTPClient:    defaultHTTPClient,
		}
	}

	reqModel, reqEffort := parseModelEffort(req.Model)
	model := chooseModel(reqModel, p.model)
	effort := p.effort
	if effort == "" && reqEffort != "" {
		effort = reqEffort
	}

	responsesReq := responsesRequest{
		Model:   model,
		Input:   buildResponsesInput(req.Messages),
		Tools:   buildResponsesTools(req.Tools),
		Include: []string{"reasoning.encrypted_content"},
		Stream:  true,
	}
	if req.MaxOutputTokens > 0 {
		responsesReq.MaxOutputTokens = req.MaxOutputTokens
	}
	responsesReq.Reasoning = &responsesReasoning{Summary: "auto"}
	if effort != "" {
		responsesReq.Reasoning.Effort = effort
	}

	return p.responsesClient.Stream(ctx, responsesReq)
}

// normalizeSchemaForOpenAI ensures a tool schema meets OpenAI's strict
// requirements: 'required' lists every property, 'additionalProperties'
// is false, unsupported 'format' values are stripped.
func normalizeSchemaForOpenAI(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return schema
	}
	return normalizeSchemaRecursive(deepCopyMap(schema))
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			result[k] = deepCopyMap(val)
		case []interface{}:
			result[k] = deepCopySlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

func deepCopySlice(s []interface{}) []interface{} {
	if s == nil {
		return nil
	}
	result := make([]interface{}, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]interface{}:
			result[i] = deepCopyMap(val)
		case []interface{}:
			result[i] = deepCopySlice(val)
		default:
			result[i] = v
		}
	}
	return result
}

func normalizeSchemaRecursive(schema map[string]interface{}) map[string]interface{} {
	if format, ok := schema["format"].(string); ok {
		switch format {
		case "date-time", "date", "time", "email":
		default:
			delete(schema, "format")
		}
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		for key, val := range props {
			if propSchema, ok := val.(map[string]interface{}); ok {
				props[key] = normalizeSchemaRecursive(propSchema)
			}
		}
		required := make([]string, 0, len(props))
		for key := range props {
			required = append(required, key)
		}
		schema["required"] = required
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		schema["items"] = normalizeSchemaRecursive(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := schema[key].([]interface{}); ok {
			for i, item := range arr {
				if itemSchema, ok := item.(map[string]interface{}); ok {
					arr[i] = normalizeSchemaRecursive(itemSchema)
				}
			}
		}
	}

	if schema["type"] == "object" || schema["properties"] != nil {
		if _, isSchemaMap := schema["additionalProperties"].(map[string]interface{}); !isSchemaMap {
			schema["additionalProperties"] = false
		}
	}

	return schema
}
