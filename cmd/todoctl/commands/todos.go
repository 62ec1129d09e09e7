package commands

import (
	"fmt"
	"strings"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/bootstrap"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"github.com/spf13/cobra"
)

func newListCmd(openStore StoreOpener) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending todos",
		Long:  "List every todo the note client has not yet written",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			return withStore(cmd.Context(), openStore, func(st *bootstrap.Store) error {
				entries, err := st.Todos.ListPending(cmd.Context())
				if err != nil {
					return fmt.Errorf("list todos: %w", err)
				}
				return writeEntries(cmd.OutOrStdout(), output, entries)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, yaml or json")
	return cmd
}

func newGetCmd(openStore StoreOpener) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a single todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(output); err != nil {
				return err
			}
			key, err := normalizeKey(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), openStore, func(st *bootstrap.Store) error {
				todo, err := st.Todos.Get(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("get todo: %w", err)
				}
				if todo == nil {
					return fmt.Errorf("todo %s not found", key)
				}
				return writeEntry(cmd.OutOrStdout(), output, key, todo)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, yaml or json")
	return cmd
}

func newMarkWrittenCmd(openStore StoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-written <key>",
		Short: "Mark a todo as written",
		Long:  "Mark a todo as written, as the note client does after saving it. The record then expires after seven days.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := normalizeKey(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), openStore, func(st *bootstrap.Store) error {
				todo, err := st.Todos.Get(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("get todo: %w", err)
				}
				if todo == nil {
					return fmt.Errorf("todo %s not found", key)
				}
				if todo.Status == models.TodoStatusWritten {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already written\n", key)
					return nil
				}
				todo.Status = models.TodoStatusWritten
				if err := st.Todos.Put(cmd.Context(), key, todo); err != nil {
					return fmt.Errorf("update todo: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as written\n", key)
				return nil
			})
		},
	}
}

func newBackfillCmd(openStore StoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-metadata",
		Short: "Tag stored todos with their status",
		Long:  "Rewrite records stored without a status tag so listings can skip written todos without fetching them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), openStore, func(st *bootstrap.Store) error {
				count, err := st.Todos.BackfillMetadata(cmd.Context())
				if err != nil {
					return fmt.Errorf("backfill metadata after %d records: %w", count, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backfilled %d records\n", count)
				return nil
			})
		},
	}
}

// normalizeKey accepts either a full record key or the channel:ts suffix
func normalizeKey(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.HasPrefix(arg, store.KeyPrefix) {
		return arg, nil
	}
	return store.KeyPrefix + arg, nil
}
