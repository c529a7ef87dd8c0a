package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiChat talks to Gemini through a native chat session per request
type GeminiChat struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiChat(ctx context.Context, llmConfig *config.LLMConfig) (*GeminiChat, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(llmConfig.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := client.GenerativeModel(llmConfig.Model)
	model.SetTemperature(float32(llmConfig.Temperature))

	return &GeminiChat{client: client, model: model}, nil
}

func (g *GeminiChat) Generate(ctx context.Context, prompt string, history []models.Turn) (string, error) {
	chat := g.model.StartChat()
	chat.History = toGeminiHistory(history)

	resp, err := chat.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (g *GeminiChat) Close() error {
	return g.client.Close()
}

func toGeminiHistory(history []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, 2*len(history))
	for _, turn := range history {
		contents = append(contents,
			&genai.Content{Role: "user", Parts: []genai.Part{genai.Text(turn.Question)}},
			&genai.Content{Role: "model", Parts: []genai.Part{genai.Text(turn.Answer)}},
		)
	}
	return contents
}
