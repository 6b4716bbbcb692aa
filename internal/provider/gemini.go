package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini calls Google's Gemini models. One client per process.
type Gemini struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates the Gemini client.
func NewGemini(ctx context.Context, apiKey string, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		logger: logger,
	}, nil
}

// Generate sends the prompt to the named model and returns the concatenated
// text of the first candidate plus the call's total token count.
func (g *Gemini) Generate(ctx context.Context, model, prompt string) (string, int, error) {
	m := g.client.GenerativeModel(model)

	res, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", 0, fmt.Errorf("generate content: %w", err)
	}

	totalTokens := 0
	if res.UsageMetadata != nil {
		totalTokens = int(res.UsageMetadata.TotalTokenCount)
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", totalTokens, fmt.Errorf("empty response from model %s", model)
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	g.logger.Debug("Provider call completed",
		slog.String("model", model),
		slog.Int("total_tokens", totalTokens),
		slog.Int("output_len", sb.Len()),
	)

	return sb.String(), totalTokens, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
