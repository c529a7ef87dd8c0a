package embedding

import (
	"context"
	"fmt"
	"strings"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultBatchSize = 100

// NewEmbedder creates the embedder for the configured provider
func NewEmbedder(ctx context.Context, llmConfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	client, err := newEmbedderClient(ctx, llmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedding client: %w", llmConfig.Provider, err)
	}

	batchSize := llmConfig.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func newEmbedderClient(ctx context.Context, llmConfig *config.LLMConfig) (embeddings.EmbedderClient, error) {
	switch llmConfig.Provider {
	case "googleai":
		return googleai.New(ctx,
			googleai.WithAPIKey(llmConfig.Key),
			googleai.WithDefaultEmbeddingModel(llmConfig.Model),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", llmConfig.Provider)
	}
}

// GenerateEmbedding embeds every chunk and keeps the chunk order
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		chunkEmbeddings[i] = models.ChunkEmbedding{
			Content:   chunk.Content,
			Embedding: vectors[i],
			ChunkID:   chunk.ChunkID,
		}
	}
	log.Debug().Int("chunks", len(chunkEmbeddings)).Msg("Generated embeddings")
	return chunkEmbeddings, nil
}
