package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   `ask --session ID "question"`,
	Short: "Answer a question against a session index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id printed by the index command")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	sessionID, err := resolveSession(askSession, false)
	if err != nil {
		return err
	}
	question := strings.Join(args, " ")

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := askableSession(ctx, a.store, sessionID)
	if err != nil {
		return err
	}
	index, err := a.svc.LoadIndex(sessionID)
	if err != nil {
		return err
	}

	resp, err := a.answerer.Query(ctx, question, index, state.ChatHistory)
	if err != nil {
		return err
	}

	fmt.Printf("Query: %s\n", resp.Query)
	fmt.Printf("Source:\n%s\n\n", resp.Source)
	fmt.Printf("Assistant: %s\n", resp.Content)

	state.AppendTurn(question, resp.Content)
	return a.store.Save(ctx, state)
}
