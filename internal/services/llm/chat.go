package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	dsvc "FinPulse/internal/domain/service"
)

// ChatGenerator calls an OpenAI-compatible chat completions endpoint (Groq by default).
type ChatGenerator struct {
	base        *HTTPServiceBase
	model       string
	temperature float64
	maxTokens   int
}

func NewChatGenerator(baseURL, apiKey, model string, temperature float64, maxTokens int, timeout time.Duration) *ChatGenerator {
	return &ChatGenerator{
		base:        NewHTTPServiceBase(baseURL, apiKey, timeout),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// UserPrompt lays out the retrieved context and the question for the model.
func UserPrompt(contextText, question string) string {
	return fmt.Sprintf("Real-time market data:\n%s\n\nQuestion: %s\n\nAnswer using only the data above.", contextText, question)
}

func (g *ChatGenerator) Generate(ctx context.Context, req dsvc.GenerateRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	var resp chatResponse
	err := g.base.PostJSON(ctx, "/chat/completions", chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: UserPrompt(req.Context, req.Question)},
		},
		Temperature: g.temperature,
		MaxTokens:   maxTokens,
		TopP:        1,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("chat completion: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping lists the provider's models, which fails on a bad key or an unreachable host.
func (g *ChatGenerator) Ping(ctx context.Context) error {
	if g.base.apiKey == "" {
		return errors.New("api key not configured")
	}
	return g.base.GetJSON(ctx, "/models", nil)
}

func (g *ChatGenerator) Model() string { return g.model }

var _ dsvc.Generator = (*ChatGenerator)(nil)
