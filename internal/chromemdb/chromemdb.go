package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"pdf-qa/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

var ErrNoCollection = errors.New("collection not loaded")

// VectorDBManager keeps one chunk collection in an in-memory chromem-go
// database and moves it to and from a single index file.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embed          chromem.EmbeddingFunc
	compress       bool
	encryptionKey  string
}

// NewVectorDBManager initializes a new vector database manager. embed is used for
// queries given as text; every import must use the same function as the build.
func NewVectorDBManager(collectionName string, embed chromem.EmbeddingFunc, compress bool, encryptionKey string) *VectorDBManager {
	return &VectorDBManager{
		db:             chromem.NewDB(),
		collectionName: collectionName,
		embed:          embed,
		compress:       compress,
		encryptionKey:  encryptionKey,
	}
}

// IndexPath returns the index file inside dir, suffixed like chromem-go names its exports
func IndexPath(dir, fileName string, compress bool, encryptionKey string) string {
	path := filepath.Join(dir, fileName)
	if compress {
		path += ".gz"
	}
	if encryptionKey != "" {
		path += ".enc"
	}
	return path
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Build replaces the collection with the given chunks
func (m *VectorDBManager) Build(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if err := m.DeleteCollection(); err != nil {
		return err
	}
	if _, err := m.GetOrCreateCollection(); err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, chromem.Document{
			ID:        documentID(chunk.ChunkID),
			Content:   chunk.Content,
			Metadata:  map[string]string{"chunk_id": strconv.Itoa(chunk.ChunkID)},
			Embedding: chunk.Embedding,
		})
	}
	return m.CreateDocs(ctx, docs)
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if len(documents) == 0 {
		return nil
	}
	err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// Search returns up to k chunks ordered by descending cosine similarity to embedding
func (m *VectorDBManager) Search(ctx context.Context, embedding []float32, k int) ([]models.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	k = min(k, m.Count())
	if k <= 0 {
		return nil, nil
	}

	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		chunkID, _ := strconv.Atoi(r.Metadata["chunk_id"])
		out = append(out, models.SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			ChunkID:    chunkID,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if m.collection == nil {
		return nil, ErrNoCollection
	}
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, errors.New("either query or embedding must be provided")
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	if _, ok := m.db.ListCollections()[m.collectionName]; !ok {
		m.collection = nil
		return nil
	}
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

// Export writes the collection to filePath, replacing any previous file
func (m *VectorDBManager) Export(filePath string) error {
	if m.collection == nil {
		return ErrNoCollection
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	log.Debug().Str("collection", m.collectionName).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting index")
	// readers only ever see a complete file
	tmpPath := filePath + ".tmp"
	if err := m.db.ExportToFile(tmpPath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export database: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

// Import loads the collection from filePath into a fresh database
func (m *VectorDBManager) Import(filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	m.db = chromem.NewDB()
	m.collection = nil
	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}

	c := m.db.GetCollection(m.collectionName, m.embed)
	if c == nil {
		return fmt.Errorf("index %s has no collection %q", filePath, m.collectionName)
	}
	m.collection = c
	log.Debug().Str("file", filePath).Int("documents", c.Count()).Msg("Imported index")
	return nil
}

func documentID(chunkID int) string {
	return "chunk-" + strconv.Itoa(chunkID)
}
