package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chatproof/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit   int
	Proofs  bool
	Journal string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show journaled checkpoints and proofs",
		Long: `Show the most recent checkpoints, newest first, from the journal.

The journal is an audit record only; the bot never reads it back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Journal
			if path == "" {
				cfg, _, err := loadConfig(rootOpts, false)
				if err != nil {
					return err
				}
				path = cfg.Journal.Path
			}
			return showLog(cmd.OutOrStdout(), path, opts.Limit, opts.Proofs)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "entries to show (0 for all)")
	cmd.Flags().BoolVar(&opts.Proofs, "proofs", false, "show proof requests instead of checkpoints")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal path (default from config)")

	return cmd
}

func showLog(w io.Writer, path string, limit int, proofs bool) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "no journal found at "+path, err)
	}

	j, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer j.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if proofs {
		records, err := j.Proofs(ctx, limit)
		if err != nil {
			return WrapExitError(ExitFailure, "read proofs", err)
		}
		fmt.Fprintf(w, "=== Proof Requests: %d ===\n\n", len(records))
		for _, p := range records {
			fmt.Fprintf(w, "[%d] %s  chat %d\n", p.ID, p.RequestedAt.UTC().Format("2006-01-02 15:04:05"), p.ChatID)
			fmt.Fprintf(w, "    Search:     %q\n", p.Search)
			fmt.Fprintf(w, "    Outcome:    %s (%d of %d checkpoints matched)\n", p.Outcome, p.Matches, p.Candidates)
			fmt.Fprintf(w, "    Duration:   %s\n", p.Duration.Round(time.Millisecond))
			if p.Link != "" {
				fmt.Fprintf(w, "    Link:       %s\n", p.Link)
			}
			if p.Error != "" {
				fmt.Fprintf(w, "    Error:      %s\n", p.Error)
			}
			fmt.Fprintln(w)
		}
		return nil
	}

	records, err := j.Checkpoints(ctx, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "read checkpoints", err)
	}
	fmt.Fprintf(w, "=== Checkpoints: %d ===\n\n", len(records))
	for _, cp := range records {
		fmt.Fprintf(w, "[%d] %s\n", cp.ID, time.Unix(int64(cp.ClosedAt), 0).UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "    Hash:     %s\n", hex.EncodeToString(cp.Hash[:]))
		fmt.Fprintf(w, "    Messages: %d\n", cp.MessageCount)
		fmt.Fprintln(w)
	}
	return nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
