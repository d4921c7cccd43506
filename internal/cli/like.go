package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/ir"
)

// NewLikeCommand creates the like command.
func NewLikeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "like <id>",
		Short: "Like a flyt",
		Long: `Add one like to flyt <id>. Any caller may like any flyt, any number of times.

Examples:
  flyter like --as carol 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLike(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewTipCommand creates the tip command.
func NewTipCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tip <id> <amount>",
		Short: "Tip a flyt",
		Long: `Add a positive amount to the tip total of flyt <id>.

Exit codes:
  0 - Tip recorded
  1 - Rejected (NOT_FOUND or INVALID_AMOUNT)
  2 - Command error

Examples:
  flyter tip --as carol 2 40`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTip(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runLike(opts *RootOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	caller, err := opts.caller(true)
	if err != nil {
		return err
	}

	res, err := execOne(commandContext(cmd), opts, ir.Call{Op: ir.OpLike, Caller: caller, Target: id})
	if err != nil {
		return reportCallError(f, err)
	}

	return f.Render(StatsView{ID: id, Stats: *res.Stats}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Liked flyt %d (%s)\n", id, likes(res.Stats.LikeCount))
	})
}

func runTip(opts *RootOptions, arg, amountArg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	// Non-positive amounts are left to the ledger, which rejects them
	// with INVALID_AMOUNT.
	amount, err := strconv.ParseInt(amountArg, 10, 64)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid amount %q: must be an integer", amountArg))
	}
	caller, err := opts.caller(true)
	if err != nil {
		return err
	}

	res, err := execOne(commandContext(cmd), opts, ir.Call{Op: ir.OpTip, Caller: caller, Target: id, Amount: amount})
	if err != nil {
		return reportCallError(f, err)
	}

	return f.Render(StatsView{ID: id, Stats: *res.Stats}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Tipped %s to flyt %d (total %s)\n",
			humanize.Comma(amount), id, humanize.Comma(res.Stats.TipTotal))
	})
}
