package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGenerator answers via a local Ollama server's chat endpoint.
type OllamaGenerator struct {
	// BaseURL of the Ollama server. Defaults to http://localhost:11434.
	BaseURL string
	// Model name, e.g. "llama3.2".
	Model string
	// HTTPClient to use. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (o *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if o.Model == "" {
		return "", ErrUnavailable
	}
	base := o.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	history := recentHistory(req.History)
	msgs := make([]ollamaMessage, 0, len(history)+2)
	msgs = append(msgs, ollamaMessage{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		msgs = append(msgs, ollamaMessage{Role: turn.Role, Content: turn.Text})
	}
	msgs = append(msgs, ollamaMessage{Role: "user", Content: annotate(req)})

	body, err := json.Marshal(ollamaChatRequest{Model: o.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("reply: marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reply: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reply: read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reply: ollama status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("reply: decode ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("reply: ollama: %s", out.Error)
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return "", fmt.Errorf("reply: ollama returned empty response")
	}
	return text, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
