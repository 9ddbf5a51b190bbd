package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

const systemPrompt = "You are a warm Korean voice companion. Reply in the " +
	"user's language, in one or two short spoken sentences. The user's detected " +
	"emotion is given in brackets before their words; acknowledge it naturally, " +
	"never mention that it was detected."

// GeminiGenerator answers with the Gemini API. It reports ErrUnavailable
// when no client was configured so a Chain can fall through.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiGenerator builds a generator from an API key. An empty key
// yields a generator that is permanently unavailable rather than an error,
// so callers can wire the chain unconditionally.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	g := &GeminiGenerator{model: model, logger: logger}
	if apiKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("reply: gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func geminiRole(role string) genai.Role {
	if role == "assistant" {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", ErrUnavailable
	}

	history := recentHistory(req.History)
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, genai.NewContentFromText(turn.Text, geminiRole(turn.Role)))
	}
	contents = append(contents, genai.NewContentFromText(annotate(req), genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
	})
	if err != nil {
		return "", fmt.Errorf("reply: gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("reply: gemini returned empty response")
	}
	return text, nil
}

// annotate prefixes the transcript with the detected emotion so the model
// can condition on it.
func annotate(req Request) string {
	return fmt.Sprintf("[emotion: %s %d%%] %s", req.Emotion, int(req.Intensity*100), req.Transcript)
}
