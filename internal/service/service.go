package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"pdf-qa/internal/chromemdb"
	"pdf-qa/internal/config"
	"pdf-qa/internal/embedding"
	"pdf-qa/internal/helper"
	"pdf-qa/internal/models"
	"pdf-qa/internal/parser"
	"pdf-qa/internal/rag"
	"pdf-qa/internal/session"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

var (
	ErrNoFiles       = errors.New("no files selected")
	ErrNoValidFiles  = errors.New("no valid PDF files were found")
	ErrNoText        = errors.New("no text could be extracted from the uploaded files")
	ErrNoQuery       = errors.New("no query provided")
	ErrNotReady      = errors.New("please upload PDF files first")
	ErrIndexNotFound = errors.New("vector store not found")
	ErrUnknownFile   = errors.New("file not found")
)

const stagingPrefix = ".upload-"

// Upload is one file received from a client
type Upload struct {
	Filename string
	Content  io.Reader
}

// Document describes one recorded upload of a session
type Document struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// Service implements the upload, query and clear operations on session state.
// It never persists state itself; callers save the state they passed in.
type Service struct {
	cfg      *config.Config
	allowed  map[string]bool
	loader   *parser.Loader
	chunker  *parser.Chunker
	embedder embeddings.Embedder
	answerer *rag.RAG
}

func NewService(cfg *config.Config, loader *parser.Loader, chunker *parser.Chunker, embedder embeddings.Embedder, answerer *rag.RAG) *Service {
	allowed := make(map[string]bool, len(cfg.Documents.AllowedExtensions))
	for _, ext := range cfg.Documents.AllowedExtensions {
		ext = strings.ToLower(ext)
		if loader.Supports(ext) {
			allowed[ext] = true
		} else {
			log.Warn().Str("extension", ext).Msg("No extractor for allowed extension, ignoring it")
		}
	}
	return &Service{
		cfg:      cfg,
		allowed:  allowed,
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		answerer: answerer,
	}
}

// SessionDir is the folder holding every file of one session
func (s *Service) SessionDir(sessionID string) string {
	return filepath.Join(s.cfg.Documents.UploadDir, sessionID)
}

func (s *Service) IndexPath(sessionID string) string {
	return chromemdb.IndexPath(s.SessionDir(sessionID), s.cfg.Index.FileName, s.cfg.Index.Compress, s.cfg.Index.EncryptionKey)
}

func (s *Service) acceptedName(name string) string {
	clean := helper.SanitizeFilename(name)
	if clean == "" || !s.allowed[strings.ToLower(filepath.Ext(clean))] {
		return ""
	}
	return clean
}

// Upload saves the accepted files, indexes their text from scratch and records
// their names in state, replacing the previous upload.
func (s *Service) Upload(ctx context.Context, state *session.State, files []Upload) ([]string, error) {
	if !slices.ContainsFunc(files, func(f Upload) bool { return f.Filename != "" }) {
		return nil, ErrNoFiles
	}

	type accepted struct {
		name    string
		content io.Reader
	}
	var valid []accepted
	for _, f := range files {
		name := s.acceptedName(f.Filename)
		if name == "" {
			log.Debug().Str("file", f.Filename).Msg("Ignoring file with unsupported extension")
			continue
		}
		valid = append(valid, accepted{name: name, content: f.Content})
	}
	if len(valid) == 0 {
		return nil, ErrNoValidFiles
	}

	dir := s.SessionDir(state.ID)
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}
	// files are staged until the new index is written, so a failed upload
	// leaves the recorded files untouched
	staging, err := os.MkdirTemp(dir, stagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging folder: %w", err)
	}
	defer os.RemoveAll(staging)

	var names []string
	for _, f := range valid {
		if err := saveFile(filepath.Join(staging, f.name), f.content); err != nil {
			return nil, err
		}
		if !slices.Contains(names, f.name) {
			names = append(names, f.name)
		}
	}

	staged := make([]string, len(names))
	for i, name := range names {
		staged[i] = filepath.Join(staging, name)
	}
	chunkCount, err := s.BuildIndex(ctx, state.ID, staged)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("failed to store %s: %w", name, err)
		}
	}

	s.removeFiles(state.ID, state.Filenames, names)
	state.Filenames = names
	log.Info().Str("session", state.ID).Strs("files", names).Int("chunks", chunkCount).Msg("Processed upload")
	return names, nil
}

// BuildIndex extracts, chunks and embeds the files and overwrites the session index
func (s *Service) BuildIndex(ctx context.Context, sessionID string, paths []string) (int, error) {
	chunks, err := s.Chunks(paths)
	if err != nil {
		return 0, err
	}

	chunkEmbeddings, err := embedding.GenerateEmbedding(ctx, s.embedder, chunks)
	if err != nil {
		return 0, err
	}

	manager := s.newManager()
	if err := manager.Build(ctx, chunkEmbeddings); err != nil {
		return 0, err
	}
	if err := manager.Export(s.IndexPath(sessionID)); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Chunks extracts the text of paths and splits it; no chunks is ErrNoText
func (s *Service) Chunks(paths []string) ([]models.Chunk, error) {
	text, err := s.loader.ExtractText(paths)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunker.Split(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	return chunks, nil
}

// LoadIndex imports the session index, ErrIndexNotFound when no index was exported
func (s *Service) LoadIndex(sessionID string) (*chromemdb.VectorDBManager, error) {
	path := s.IndexPath(sessionID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrIndexNotFound
	}
	manager := s.newManager()
	if err := manager.Import(path); err != nil {
		return nil, err
	}
	return manager, nil
}

// Query answers question from the session documents and appends the turn to state
func (s *Service) Query(ctx context.Context, state *session.State, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrNoQuery
	}
	if !state.Ready() {
		return "", ErrNotReady
	}

	index, err := s.LoadIndex(state.ID)
	if err != nil {
		return "", err
	}

	answer, err := s.answerer.Answer(ctx, question, index, state.ChatHistory)
	if err != nil {
		return "", err
	}
	state.AppendTurn(question, answer)
	return answer, nil
}

// Clear removes the recorded files and empties the state. The index file stays
// on disk but is ignored because no filenames are recorded.
func (s *Service) Clear(_ context.Context, state *session.State) {
	s.removeFiles(state.ID, state.Filenames, nil)
	state.Reset()
	log.Info().Str("session", state.ID).Msg("Cleared session data")
}

// Remove deletes one recorded file and re-indexes the remaining ones. Removing
// the last file empties the session like Clear and deletes its index.
func (s *Service) Remove(ctx context.Context, state *session.State, filename string) error {
	if !slices.Contains(state.Filenames, filename) {
		return ErrUnknownFile
	}

	remaining := slices.DeleteFunc(slices.Clone(state.Filenames), func(name string) bool { return name == filename })
	if len(remaining) == 0 {
		s.Clear(ctx, state)
		if err := os.Remove(s.IndexPath(state.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("session", state.ID).Msg("Failed to remove index")
		}
		return nil
	}

	if _, err := s.BuildIndex(ctx, state.ID, s.paths(state.ID, remaining)); err != nil {
		return err
	}
	s.removeFiles(state.ID, []string{filename}, nil)
	state.Filenames = remaining
	log.Info().Str("session", state.ID).Str("file", filename).Msg("Removed document")
	return nil
}

// Documents lists the recorded files of the session in upload order
func (s *Service) Documents(state *session.State) []Document {
	docs := make([]Document, 0, len(state.Filenames))
	for _, name := range state.Filenames {
		doc := Document{Filename: name, URL: "/uploads/" + name}
		if info, err := os.Stat(filepath.Join(s.SessionDir(state.ID), name)); err == nil {
			doc.Size = info.Size()
		}
		docs = append(docs, doc)
	}
	return docs
}

// DocumentPath returns the stored path of a recorded file
func (s *Service) DocumentPath(state *session.State, filename string) (string, error) {
	if !slices.Contains(state.Filenames, filename) {
		return "", ErrUnknownFile
	}
	return filepath.Join(s.SessionDir(state.ID), filename), nil
}

// History returns up to limit question/answer pairs, newest first, keeping
// only turns whose question or answer contains search (case-insensitive).
func (s *Service) History(state *session.State, limit int, search string) []models.Turn {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Turn, 0)
	for i := len(state.ChatHistory) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		turn := state.ChatHistory[i]
		if search != "" &&
			!strings.Contains(strings.ToLower(turn.Question), search) &&
			!strings.Contains(strings.ToLower(turn.Answer), search) {
			continue
		}
		out = append(out, turn)
	}
	return out
}

func (s *Service) newManager() *chromemdb.VectorDBManager {
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
	return chromemdb.NewVectorDBManager(s.cfg.Index.Collection, embed, s.cfg.Index.Compress, s.cfg.Index.EncryptionKey)
}

func (s *Service) paths(sessionID string, names []string) []string {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.SessionDir(sessionID), name)
	}
	return paths
}

// removeFiles deletes the named session files that are not listed in keep
func (s *Service) removeFiles(sessionID string, names, keep []string) {
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		path := filepath.Join(s.SessionDir(sessionID), name)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("file", path).Msg("Failed to remove file")
		}
	}
}

func saveFile(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := io.Copy(f, content); err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}
