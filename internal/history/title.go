package history

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/loftlabs/loft/internal/llm"
)

// DefaultTitle is used when title generation fails or returns nothing.
const DefaultTitle = "New conversation"

const titlePrompt = "Generate a concise title for this conversation in five words or fewer. " +
	"Reply with the title only: no quotes, no punctuation at the end, no explanation."

// GenerateTitle asks the model for a short conversation title based on
// the first user message. Any failure falls back to DefaultTitle; a
// conversation must never fail to persist because titling did.
func GenerateTitle(ctx context.Context, provider llm.Provider, model, userMessage string) string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	stream, err := provider.Stream(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.SystemText(titlePrompt),
			llm.UserText(userMessage),
		},
		MaxOutputTokens: 64,
	})
	if err != nil {
		return DefaultTitle
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return DefaultTitle
		}
		if event.Type == llm.EventTextDelta {
			sb.WriteString(event.Text)
		}
	}

	return sanitizeTitle(sb.String())
}

// sanitizeTitle trims the model's reply down to at most five words.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSuffix(title, ".")
	if idx := strings.Index(title, "\n"); idx >= 0 {
		title = title[:idx]
	}

	words := strings.Fields(title)
	if len(words) == 0 {
		return DefaultTitle
	}
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}
