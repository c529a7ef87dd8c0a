package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pdf-qa/internal/config"
	"pdf-qa/internal/db"
	"pdf-qa/internal/embedding"
	"pdf-qa/internal/llmservice"
	"pdf-qa/internal/parser"
	"pdf-qa/internal/rag"
	"pdf-qa/internal/service"
	"pdf-qa/internal/session"

	"github.com/rs/zerolog/log"
)

// app holds the wired services shared by the commands
type app struct {
	svc      *service.Service
	answerer *rag.RAG
	store    session.Store
	closers  []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	generator, err := llmservice.NewGenerator(ctx, &cfg.LLM)
	if err != nil {
		return nil, err
	}
	if closer, ok := generator.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}

	a.answerer = rag.NewRAG(embedder, generator, &cfg.RAG)
	chunker := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	a.svc = service.NewService(cfg, parser.NewLoader(), chunker, embedder, a.answerer)

	a.store, err = a.newSessionStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.Session.Store != "postgres" {
		return session.NewMemoryStore(), nil
	}

	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Database.Debug)
	a.closers = append(a.closers, bunDB)
	if err := bunDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store, err := session.NewPostgresStore(ctx, bunDB)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing resource")
		}
	}
}

// loadSession returns the stored state of id, or a new state when the store
// has never seen it. found reports which one it is.
func loadSession(ctx context.Context, store session.Store, id string) (state *session.State, found bool, err error) {
	state, err = store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(id), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return state, true, nil
}

// askableSession is loadSession for questions: a stored session without
// documents has no trusted index, even if an index file is still on disk.
func askableSession(ctx context.Context, store session.Store, id string) (*session.State, error) {
	state, found, err := loadSession(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if found && !state.Ready() {
		return nil, service.ErrNotReady
	}
	return state, nil
}
