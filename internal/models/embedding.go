package models

// Chunk represents a parsed chunk of the uploaded text
type Chunk struct {
	Content string `json:"content"`
	ChunkID int    `json:"chunk_id"`
}

// ChunkEmbedding is a chunk together with its embedding vector
type ChunkEmbedding struct {
	Content   string
	Embedding []float32
	ChunkID   int
}

// SearchResult is one chunk returned by a similarity search
type SearchResult struct {
	ID         string
	Content    string
	ChunkID    int
	Similarity float32
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
