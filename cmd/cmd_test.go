package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pdf-qa/internal/config"
	"pdf-qa/internal/service"
	"pdf-qa/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSession(t *testing.T) {
	id, err := resolveSession("", true)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	_, err = resolveSession("", false)
	assert.Error(t, err)

	_, err = resolveSession("../etc", false)
	assert.Error(t, err)

	got, err := resolveSession("0f8fad5b-d9cb-469f-a165-70867728950e", false)
	require.NoError(t, err)
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", got)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	rootCmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, rootCmd.Execute())

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().RAG, loaded.RAG)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o644))
	rootCmd.SetArgs([]string{"config", "init", path})
	assert.Error(t, rootCmd.Execute(), "existing file is kept without --force")

	rootCmd.SetArgs([]string{"config", "init", "--force", path})
	require.NoError(t, rootCmd.Execute())
	loaded, err = config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, loaded.Server.Port)
	configForce = false
}

func TestSetupLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	setupLogger(config.LogConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogger(config.LogConfig{Level: "bogus"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogger(config.LogConfig{})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) (*session.State, error) { return nil, b.err }
func (b brokenStore) Save(context.Context, *session.State) error { return b.err }
func (b brokenStore) Delete(context.Context, string) error { return b.err }

func TestLoadSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	state, found, err := loadSession(ctx, store, "s1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "s1", state.ID)

	stored := session.New("s1")
	stored.Filenames = []string{"a.pdf"}
	stored.AppendTurn("q", "a")
	require.NoError(t, store.Save(ctx, stored))
	state, found, err = loadSession(ctx, store, "s1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, state.ChatHistory, 1)

	boom := errors.New("connection refused")
	_, _, err = loadSession(ctx, brokenStore{err: boom}, "s1")
	assert.ErrorIs(t, err, boom)
}

func TestAskableSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	// unknown sessions may still have an index written by the index command
	_, err := askableSession(ctx, store, "s1")
	assert.NoError(t, err)

	cleared := session.New("s1")
	cleared.AppendTurn("q", "a")
	cleared.Reset()
	require.NoError(t, store.Save(ctx, cleared))
	_, err = askableSession(ctx, store, "s1")
	assert.ErrorIs(t, err, service.ErrNotReady)

	ready := session.New("s1")
	ready.Filenames = []string{"a.pdf"}
	require.NoError(t, store.Save(ctx, ready))
	state, err := askableSession(ctx, store, "s1")
	require.NoError(t, err)
	assert.True(t, state.Ready())

	boom := errors.New("connection refused")
	_, err = askableSession(ctx, brokenStore{err: boom}, "s1")
	assert.ErrorIs(t, err, boom)
}
