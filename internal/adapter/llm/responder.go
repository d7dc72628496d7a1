package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

const (
	DefaultEndpoint = "https://api.deepseek.com/v1"
	DefaultModel    = "deepseek-chat"

	// local OpenAI-compatible servers (Ollama, vLLM) ignore the key but the client insists on one
	placeholderKey = "not-needed"
)

type Config struct {
	APIKey      string
	Endpoint    string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// Responder writes the agent's turns through any OpenAI-compatible chat
// completions API (DeepSeek, OpenAI, Ollama, vLLM)
type Responder struct {
	model       llms.Model
	maxTokens   int
	temperature float64
}

func NewResponder(cfg Config) (interfaces.Responder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = placeholderKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.Endpoint),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return newResponder(model, cfg), nil
}

func newResponder(model llms.Model, cfg Config) *Responder {
	return &Responder{
		model:       model,
		maxTokens:   int(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

var roles = map[domain.Role]schema.ChatMessageType{
	domain.RoleSystem:    schema.ChatMessageTypeSystem,
	domain.RoleUser:      schema.ChatMessageTypeHuman,
	domain.RoleAssistant: schema.ChatMessageTypeAI,
}

func (p *Responder) Respond(ctx context.Context, messages []domain.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role, ok := roles[m.Role]
		if !ok {
			return "", fmt.Errorf("unknown message role %q", m.Role)
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.maxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Content, nil
}
