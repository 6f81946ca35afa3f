package llm

import "google.golang.org/genai"

// normalizeSchemaForGemini strips schema fields Gemini does not accept
// and fills in required lists.
func normalizeSchemaForGemini(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return schema
	}
	return normalizeGeminiSchemaRecursive(deepCopyMap(schema))
}

func normalizeGeminiSchemaRecursive(schema map[string]interface{}) map[string]interface{} {
	unsupportedFields := []string{
		"$schema",
		"format",
		"exclusiveMinimum",
		"exclusiveMaximum",
		"minimum",
		"maximum",
		"minLength",
		"maxLength",
		"minItems",
		"maxItems",
		"uniqueItems",
		"pattern",
		"default",
		"examples",
		"const",
		"additionalProperties",
		"title",
	}
	for _, field := range unsupportedFields {
		delete(schema, field)
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok && len(props) > 0 {
		for key, val := range props {
			if propSchema, ok := val.(map[string]interface{}); ok {
				props[key] = normalizeGeminiSchemaRecursive(propSchema)
			}
		}
		required := make([]string, 0, len(props))
		for key := range props {
			required = append(required, key)
		}
		schema["required"] = required
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		schema["items"] = normalizeGeminiSchemaRecursive(items)
	}

	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := schema[key].([]interface{}); ok {
			for i, item := range arr {
				if itemSchema, ok := item.(map[string]interface{}); ok {
					arr[i] = normalizeGeminiSchemaRecursive(itemSchema)
				}
			}
		}
	}

	return schema
}

func schemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeString}
	}

	genSchema := &genai.Schema{
		Type:        schemaTypeFromValue(schema),
		Description: stringField(schema, "description"),
		Required:    schemaRequired(schema),
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		genSchema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				genSchema.Properties[name] = schemaToGenai(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		genSchema.Items = schemaToGenai(items)
	}

	return genSchema
}

func schemaTypeFromValue(schema map[string]interface{}) genai.Type {
	if t, ok := schema["type"].(string); ok {
		switch t {
		case "string":
			return genai.TypeString
		case "integer":
			return genai.TypeInteger
		case "number":
			return genai.TypeNumber
		case "boolean":
			return genai.TypeBoolean
		case "array":
			return genai.TypeArray
		case "object":
			return genai.TypeObject
		}
	}
	return genai.TypeString
}

func stringField(schema map[string]interface{}, key string) string {
	if v, ok := schema[key].(string); ok {
		return v
	}
	return ""
}
