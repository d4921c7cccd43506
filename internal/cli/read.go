package cli

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/ir"
)

// MessageView is the output of get. Content is base64 in JSON.
type MessageView struct {
	ID ir.MessageID `json:"id"`
	ir.Message
	Digest string `json:"digest"`
}

// StatsView is the output of stats, like and tip.
type StatsView struct {
	ID ir.MessageID `json:"id"`
	ir.Stats
}

// CountView is the output of count.
type CountView struct {
	Count  ir.MessageID `json:"count"`
	NextID ir.MessageID `json:"next_id"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a flyt",
		Long: `Show the flyt stored at <id>.

Exit codes:
  0 - Flyt found
  1 - NOT_FOUND
  2 - Command error

Examples:
  flyter get 2
  flyter get 2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Show likes and tips of a flyt",
		Long: `Show the stats record paired with flyt <id>.

Examples:
  flyter stats 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Show the number of flyts",
		Long: `Show the highest assigned flyt id and the id the next flyt will get.

Examples:
  flyter count --db ./flyter.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(rootOpts, cmd)
		},
	}
	return cmd
}

func runGet(opts *RootOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	caller, _ := opts.caller(false)

	res, err := execOne(commandContext(cmd), opts, ir.Call{Op: ir.OpGet, Caller: caller, Target: id})
	if err != nil {
		return reportCallError(f, err)
	}
	m := *res.Message
	digest, err := ir.MessageDigest(m)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest message", err)
	}

	return f.Render(MessageView{ID: id, Message: m, Digest: digest}, func(w io.Writer) {
		fmt.Fprintf(w, "Flyt %d\n", id)
		if m.Nickname != nil && *m.Nickname != "" {
			fmt.Fprintf(w, "  From:     %s (%s)\n", m.Sender, *m.Nickname)
		} else {
			fmt.Fprintf(w, "  From:     %s\n", m.Sender)
		}
		fmt.Fprintf(w, "  To:       %s\n", m.Recipient)
		if m.IsReply() {
			fmt.Fprintf(w, "  Reply to: %d\n", m.InReplyTo)
		}
		fmt.Fprintf(w, "  Size:     %s\n", humanize.Bytes(uint64(len(m.Content))))
		if opts.Verbose {
			fmt.Fprintf(w, "  Digest:   %s\n", digest)
		}
		fmt.Fprintln(w)
		if utf8.Valid(m.Content) {
			fmt.Fprintln(w, string(m.Content))
		} else {
			fmt.Fprintln(w, "(binary content, use --format json)")
		}
	})
}

func runStats(opts *RootOptions, arg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	caller, _ := opts.caller(false)

	res, err := execOne(commandContext(cmd), opts, ir.Call{Op: ir.OpStats, Caller: caller, Target: id})
	if err != nil {
		return reportCallError(f, err)
	}

	s := *res.Stats
	return f.Render(StatsView{ID: id, Stats: s}, func(w io.Writer) {
		fmt.Fprintf(w, "Flyt %d: %s, %s tipped\n", id, likes(s.LikeCount), humanize.Comma(s.TipTotal))
	})
}

func runCount(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	caller, _ := opts.caller(false)

	res, err := execOne(commandContext(cmd), opts, ir.Call{Op: ir.OpCount, Caller: caller})
	if err != nil {
		return reportCallError(f, err)
	}

	out := CountView{Count: res.Count, NextID: res.Count + 1}
	return f.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s flyts (next id %d)\n", humanize.Comma(int64(res.Count)), out.NextID)
	})
}

// parseID parses a positional message id.
func parseID(arg string) (ir.MessageID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q: must be a positive integer", arg))
	}
	return ir.MessageID(n), nil
}

func likes(n int64) string {
	if n == 1 {
		return "1 like"
	}
	return humanize.Comma(n) + " likes"
}
