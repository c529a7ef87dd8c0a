package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pdf-qa/internal/config"
	"pdf-qa/internal/models"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Session is the persisted form of one browser session
type Session struct {
	bun.BaseModel       `bun:"table:sessions,alias:s"`
	ID                  string           `bun:"id,pk"`
	Filenames           []string         `bun:"filenames,array"`
	ChatHistory         []models.Turn    `bun:"chat_history,type:jsonb"`
	ConversationHistory []models.Message `bun:"conversation_history,type:jsonb"`
	UpdatedAt           time.Time        `bun:"updated_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver or, when configured, lib/pq
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqldb, nil
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Session)(nil)).IfNotExists().Exec(ctx)
	return err
}

// GetSession returns sql.ErrNoRows when id is unknown
func GetSession(ctx context.Context, db *bun.DB, id string) (*Session, error) {
	s := new(Session)
	err := db.NewSelect().Model(s).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func UpsertSession(ctx context.Context, db *bun.DB, s *Session) error {
	_, err := db.NewInsert().
		Model(s).
		On("CONFLICT (id) DO UPDATE").
		Set("filenames = EXCLUDED.filenames").
		Set("chat_history = EXCLUDED.chat_history").
		Set("conversation_history = EXCLUDED.conversation_history").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func DeleteSession(ctx context.Context, db *bun.DB, id string) error {
	_, err := db.NewDelete().Model((*Session)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// drop table sessions
func DropSessions(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Session)(nil)).IfExists().Exec(ctx)
	return err
}
