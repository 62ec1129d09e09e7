package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/spf13/cobra"
)

func newSignCmd() *cobra.Command {
	var (
		timestamp string
		body      string
		secret    string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a request body the way Slack does",
		Long:  "Print the Slack signature headers for a request body. The body is read from stdin when --body is not set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("SLACK_SIGNING_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or SLACK_SIGNING_SECRET is required")
			}
			if timestamp == "" {
				timestamp = strconv.FormatInt(time.Now().Unix(), 10)
			} else if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
				return fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
			}

			raw := []byte(body)
			if !cmd.Flags().Changed("body") {
				var err error
				raw, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", slack.HeaderTimestamp, timestamp)
			fmt.Fprintf(out, "%s: %s\n", slack.HeaderSignature, slack.Sign(timestamp, raw, secret))
			return nil
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Unix timestamp to sign with (default now)")
	cmd.Flags().StringVar(&body, "body", "", "Request body to sign")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default $SLACK_SIGNING_SECRET)")
	return cmd
}
