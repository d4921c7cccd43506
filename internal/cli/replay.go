package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/host"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
}

// ReplayOutput holds the replay result.
type ReplayOutput struct {
	host.ReplayResult
	Deterministic bool `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the call journal and verify the ledger",
		Long: `Re-execute every journaled call against a fresh in-memory ledger and
compare each outcome, result id and entry id with the journal. The replayed
message count must also match the stored one.

Exit codes:
  0 - Replay reproduced the ledger
  1 - Divergence detected
  2 - Command error (database not found, etc.)

Examples:
  flyter replay --db ./flyter.db
  flyter replay --db ./flyter.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := host.New(st).Verify(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}
	out := ReplayOutput{ReplayResult: result, Deterministic: result.OK()}

	if opts.Format == "json" {
		return outputReplayJSON(opts.formatter(cmd), out)
	}
	return outputReplayText(cmd.OutOrStdout(), out)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(f *OutputFormatter, out ReplayOutput) error {
	response := CLIResponse{
		Status: "ok",
		Data:   out,
	}
	if !out.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DIVERGENCE",
			Message: "replay diverged from the journal",
		}
	}

	if err := f.encode(response); err != nil {
		return err
	}
	if !out.Deterministic {
		return &ExitError{Code: ExitFailure, Message: "replay diverged from the journal", Reported: true}
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, out ReplayOutput) error {
	fmt.Fprintf(w, "Replay Summary: %d call(s), count %d\n", out.Entries, out.Count)
	fmt.Fprintln(w)

	if out.Deterministic {
		fmt.Fprintln(w, "✓ Journal reproduces the ledger")
		return nil
	}

	fmt.Fprintf(w, "✗ %d divergence(s)\n", len(out.Divergences))
	for _, d := range out.Divergences {
		if d.Seq == 0 {
			fmt.Fprintf(w, "  [ledger] %s: stored %s, replayed %s\n", d.Field, d.Recorded, d.Replayed)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s: recorded %s, replayed %s\n", d.Seq, d.Field, d.Recorded, d.Replayed)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'flyter trace' to inspect the journal.")
	return &ExitError{Code: ExitFailure, Message: "replay diverged from the journal", Reported: true}
}
