package session

import (
	"context"
	"os"
	"testing"

	"pdf-qa/internal/config"
	"pdf-qa/internal/db"
	"pdf-qa/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	s := New("abc")
	assert.False(t, s.Ready())

	s.Filenames = append(s.Filenames, "a.pdf")
	assert.True(t, s.Ready())

	s.AppendTurn("q1", "a1")
	s.AppendTurn("q2", "a2")
	assert.Equal(t, []models.Turn{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}, s.ChatHistory)
	assert.Equal(t, []models.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
		{Role: "assistant", Content: "a2"},
	}, s.ConversationHistory)

	s.Reset()
	assert.False(t, s.Ready())
	assert.Empty(t, s.ChatHistory)
	assert.Empty(t, s.ConversationHistory)
	assert.NotNil(t, s.Filenames)
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()
	id := uuid.NewString()

	_, err := store.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	s := New(id)
	s.Filenames = []string{"a.pdf", "b.pdf"}
	s.AppendTurn("question", "answer")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, s.Filenames, got.Filenames)
	assert.Equal(t, s.ChatHistory, got.ChatHistory)
	assert.Equal(t, s.ConversationHistory, got.ConversationHistory)
	assert.False(t, got.UpdatedAt.IsZero())

	got.Reset()
	require.NoError(t, store.Save(ctx, got))
	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, again.Filenames)
	assert.Empty(t, again.ChatHistory)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := New("id")
	require.NoError(t, store.Save(ctx, s))

	s.Filenames = append(s.Filenames, "later.pdf")
	got, err := store.Get(ctx, "id")
	require.NoError(t, err)
	assert.Empty(t, got.Filenames)

	got.AppendTurn("q", "a")
	again, err := store.Get(ctx, "id")
	require.NoError(t, err)
	assert.Empty(t, again.ChatHistory)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PDFQA_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("PDFQA_TEST_DATABASE_DSN not set")
	}

	for _, driver := range []string{"pgdriver", "pq"} {
		t.Run(driver, func(t *testing.T) {
			sqldb, err := db.ConnectDB(&config.DatabaseConfig{Driver: driver, DSN: dsn})
			require.NoError(t, err)
			bunDB := db.NewDB(sqldb, false)
			t.Cleanup(func() {
				db.DropSessions(context.Background(), bunDB)
				bunDB.Close()
			})

			store, err := NewPostgresStore(context.Background(), bunDB)
			require.NoError(t, err)
			testStore(t, store)
		})
	}
}
