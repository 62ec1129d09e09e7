// Package commands implements the todoctl operator commands.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/bootstrap"
	"github.com/spf13/cobra"
)

// StoreOpener connects the configured todo store
type StoreOpener func(ctx context.Context) (*bootstrap.Store, error)

// NewRootCmd creates the todoctl command tree
func NewRootCmd(openStore StoreOpener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "todoctl",
		Short:         "Operator tool for the Slack todo store",
		Long:          "Inspect and maintain captured todos, and sign test requests for the Slack endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newListCmd(openStore))
	rootCmd.AddCommand(newGetCmd(openStore))
	rootCmd.AddCommand(newMarkWrittenCmd(openStore))
	rootCmd.AddCommand(newBackfillCmd(openStore))
	rootCmd.AddCommand(newSignCmd())

	return rootCmd
}

// withStore opens the store for the duration of fn
func withStore(ctx context.Context, openStore StoreOpener, fn func(st *bootstrap.Store) error) error {
	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
		}
	}()
	return fn(st)
}
