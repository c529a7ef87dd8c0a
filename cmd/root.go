package main

import (
	"errors"
	"fmt"
	"io/fs"

	"pdf-qa/internal/config"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "pdf-qa",
	Short:         "Ask questions about uploaded PDF documents",
	Long:          `pdf-qa indexes uploaded PDF files and answers questions about them with retrieval-augmented generation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		setupLogger(loaded.Log)
		log.Debug().Str("config", cfgFile).Str("session_store", loaded.Session.Store).Msg("Loaded config")
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file")
}
