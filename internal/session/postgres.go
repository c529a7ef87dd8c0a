package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pdf-qa/internal/db"
	"pdf-qa/internal/models"

	"github.com/uptrace/bun"
)

// PostgresStore keeps sessions in the sessions table through bun
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore creates the sessions table if needed
func NewPostgresStore(ctx context.Context, bunDB *bun.DB) (*PostgresStore, error) {
	if err := db.InitDB(ctx, bunDB); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return &PostgresStore{db: bunDB}, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*State, error) {
	rec, err := db.GetSession(ctx, p.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := New(rec.ID)
	s.Filenames = append(s.Filenames, rec.Filenames...)
	s.ChatHistory = append(s.ChatHistory, rec.ChatHistory...)
	s.ConversationHistory = append(s.ConversationHistory, rec.ConversationHistory...)
	s.UpdatedAt = rec.UpdatedAt
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, state *State) error {
	rec := &db.Session{
		ID:                  state.ID,
		Filenames:           append([]string{}, state.Filenames...),
		ChatHistory:         append([]models.Turn{}, state.ChatHistory...),
		ConversationHistory: append([]models.Message{}, state.ConversationHistory...),
		UpdatedAt:           time.Now().UTC(),
	}
	if err := db.UpsertSession(ctx, p.db, rec); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := db.DeleteSession(ctx, p.db, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
