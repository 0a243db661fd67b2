package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// LLMClient produces one completion for a system instruction and a user prompt.
type LLMClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	GetProvider() string
}

// ChatAPI is the subset of the go-openai client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ChatConfig struct {
	Model       string
	Temperature float32 // 0 leaves the provider default
	Timeout     time.Duration
	Logger      *slog.Logger
}

// OpenAIChatClient 基于 Chat Completions 的 LLM 客户端
type OpenAIChatClient struct {
	api ChatAPI
	cfg ChatConfig
	log *slog.Logger
}

func NewOpenAIChatClient(api ChatAPI, cfg ChatConfig) *OpenAIChatClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	c := &OpenAIChatClient{api: api, cfg: cfg, log: cfg.Logger}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func (c *OpenAIChatClient) GetProvider() string { return "openai" }

func (c *OpenAIChatClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
	}
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty content (finish reason %q)", resp.Choices[0].FinishReason)
	}
	c.log.Debug("Completion received", "model", c.cfg.Model,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start))
	return text, nil
}

// MockLLMClient answers with a deterministic excerpt of the prompt, for
// offline runs.
type MockLLMClient struct{}

func (MockLLMClient) GetProvider() string { return "mock" }

func (MockLLMClient) Complete(_ context.Context, _ string, prompt string) (string, error) {
	words := strings.Fields(prompt)
	if len(words) > 60 {
		words = words[:60]
	}
	return "- [mock] " + strings.Join(words, " "), nil
}
