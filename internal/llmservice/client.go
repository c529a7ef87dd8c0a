package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Generator produces an answer to prompt, continuing the given conversation
type Generator interface {
	Generate(ctx context.Context, prompt string, history []models.Turn) (string, error)
}

// NewGenerator returns the chat backend selected by llmConfig.Provider
func NewGenerator(ctx context.Context, llmConfig *config.LLMConfig) (Generator, error) {
	if llmConfig.Provider == "gemini" {
		chat, err := NewGeminiChat(ctx, llmConfig)
		if err != nil {
			return nil, err
		}
		return chat, nil
	}
	llm, err := NewModel(ctx, llmConfig)
	if err != nil {
		return nil, err
	}
	return NewClient(llm, llmConfig.Temperature), nil
}

// NewModel creates a langchaingo chat model for googleai, openai or ollama
func NewModel(ctx context.Context, llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating chat model")
	switch llmConfig.Provider {
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultModel(llmConfig.Model),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", llmConfig.Provider)
	}
}

// Client answers through any langchaingo model
type Client struct {
	llm         llms.Model
	temperature float64
}

func NewClient(llm llms.Model, temperature float64) *Client {
	return &Client{llm: llm, temperature: temperature}
}

// Generate replays history as alternating human/ai messages before the prompt
func (c *Client) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	messages := make([]llms.MessageContent, 0, 2*len(history)+1)
	for _, turn := range history {
		messages = append(messages,
			llms.TextParts(schema.ChatMessageTypeHuman, turn.Question),
			llms.TextParts(schema.ChatMessageTypeAI, turn.Answer),
		)
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	res, err := c.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	return res.Choices[0].Content, nil
}

// call llm
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	res, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	return res, nil
}
