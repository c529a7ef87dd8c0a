package main

import (
	"fmt"
	"os"
	"path/filepath"

	"pdf-qa/internal/helper"
	"pdf-qa/internal/parser"
	"pdf-qa/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	indexSession string
	indexDryRun  bool
)

var indexCmd = &cobra.Command{
	Use:   "index [flags] file...",
	Short: "Build a session index from local files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexSession, "session", "s", "", "session id (a new one is generated when empty)")
	indexCmd.Flags().BoolVar(&indexDryRun, "dry-run", false, "print the chunks without embedding them")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexDryRun {
		loader := parser.NewLoader()
		text, err := loader.ExtractText(args)
		if err != nil {
			return err
		}
		chunks, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap).Split(text)
		if err != nil {
			return err
		}
		helper.PrettyPrint(chunks)
		log.Info().Int("chunks", len(chunks)).Msg("Dry run finished")
		return nil
	}

	sessionID, err := resolveSession(indexSession, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	state, _, err := loadSession(ctx, a.store, sessionID)
	if err != nil {
		return err
	}

	uploads := make([]service.Upload, 0, len(args))
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Filename: filepath.Base(path), Content: f})
	}

	names, err := a.svc.Upload(ctx, state, uploads)
	if err != nil {
		return err
	}
	if err := a.store.Save(ctx, state); err != nil {
		return err
	}
	if cfg.Session.Store == "memory" {
		log.Warn().Msg("Session store is in memory, only the index file outlives this command")
	}

	fmt.Printf("Session: %s\nIndexed: %v\nIndex file: %s\n", sessionID, names, a.svc.IndexPath(sessionID))
	return nil
}

// resolveSession validates id, or generates one when allowed
func resolveSession(id string, generate bool) (string, error) {
	if id == "" {
		if !generate {
			return "", fmt.Errorf("--session is required")
		}
		return helper.GenerateUUID()
	}
	if !helper.IsUUID(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return id, nil
}
