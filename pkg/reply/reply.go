// Package reply produces the assistant's text answer to a transcribed,
// emotion-tagged utterance. Generators are chained: a model-backed
// generator (Gemini, Ollama) is tried first and the curated template
// generator guarantees the pipeline always answers.
package reply

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sori-ai/sori/pkg/emotion"
)

// ErrUnavailable signals a generator cannot serve right now (no API key,
// backend down). Chain treats it as "try the next one".
var ErrUnavailable = errors.New("reply: generator unavailable")

// Turn is one prior exchange kept for conversational context.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Request carries everything a generator may condition on.
type Request struct {
	Transcript string
	Emotion    emotion.Label
	Intensity  float64
	Language   string
	History    []Turn
}

// Generator produces a reply for one utterance.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// promptWindow is how many trailing history turns the model-backed
// generators include in the prompt. The session keeps more for the
// client; only the most recent exchange conditions the reply.
const promptWindow = 2

// recentHistory returns the last promptWindow turns.
func recentHistory(turns []Turn) []Turn {
	if len(turns) <= promptWindow {
		return turns
	}
	return turns[len(turns)-promptWindow:]
}

// Chain tries generators in order, falling through on ErrUnavailable.
type Chain struct {
	Generators []Generator
	Logger     *slog.Logger
}

func NewChain(logger *slog.Logger, gens ...Generator) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{Generators: gens, Logger: logger}
}

func (c *Chain) Generate(ctx context.Context, req Request) (string, error) {
	for _, g := range c.Generators {
		text, err := g.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrUnavailable) {
			c.Logger.Debug("reply generator unavailable, falling through", "generator", typeName(g))
			continue
		}
		c.Logger.Warn("reply generator failed, falling through", "generator", typeName(g), "err", err)
	}
	return "", ErrUnavailable
}

func typeName(g Generator) string {
	switch g.(type) {
	case *GeminiGenerator:
		return "gemini"
	case *OllamaGenerator:
		return "ollama"
	case *TemplateGenerator:
		return "template"
	case *Chain:
		return "chain"
	default:
		return "unknown"
	}
}
