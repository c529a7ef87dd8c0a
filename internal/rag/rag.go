package rag

import (
	"context"
	"fmt"
	"strings"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"

	"github.com/rs/zerolog/log"
)

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Search(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, history []models.Turn) (string, error)
}

// RAG answers questions from the chunks of one index and the prior conversation
type RAG struct {
	embedder  Embedder
	generator Generator
	cfg       *config.RAGConfig
}

func NewRAG(embedder Embedder, generator Generator, cfg *config.RAGConfig) *RAG {
	return &RAG{embedder: embedder, generator: generator, cfg: cfg}
}

// Answer returns only the generated text of Query
func (r *RAG) Answer(ctx context.Context, question string, index Index, history []models.Turn) (string, error) {
	res, err := r.Query(ctx, question, index, history)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Query runs the retrieval chain. A nil index gives models.NoIndexMessage
// without calling the embedder or the generator.
func (r *RAG) Query(ctx context.Context, question string, index Index, history []models.Turn) (*models.PromptResponse, error) {
	if index == nil {
		return &models.PromptResponse{Query: question, Content: models.NoIndexMessage}, nil
	}

	standalone, err := r.condense(ctx, question, history)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, standalone)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	docs, err := index.Search(ctx, queryEmbedding, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	log.Debug().Str("question", standalone).Int("results", len(docs)).Msg("Retrieved chunks")

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.Content
	}
	source := strings.Join(contents, models.ContextSeparator)

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, source, standalone)
	answer, err := r.generator.Generate(ctx, prompt, history)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &models.PromptResponse{
		Query:   standalone,
		Source:  source,
		Content: answer,
	}, nil
}

// condense turns a follow-up into a standalone question using the chat history
func (r *RAG) condense(ctx context.Context, question string, history []models.Turn) (string, error) {
	if len(history) == 0 || !r.cfg.RephraseQuestion {
		return question, nil
	}

	prompt := fmt.Sprintf(models.CondenseQuestionPromptTemplate, formatHistory(history), question)
	standalone, err := r.generator.Generate(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

func formatHistory(history []models.Turn) string {
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString("\nHuman: " + turn.Question)
		sb.WriteString("\nAssistant: " + turn.Answer)
	}
	return sb.String()
}
