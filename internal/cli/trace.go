package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Op     string // optional - filter to one op
	Caller string // optional - filter to one caller
}

// TraceEvent is one journal entry in the trace timeline.
type TraceEvent struct {
	Seq       int64          `json:"seq"`
	ID        string         `json:"id"`
	CallToken string         `json:"call_token"`
	Op        string         `json:"op"`
	Caller    string         `json:"caller"`
	Args      map[string]any `json:"args,omitempty"`
	Outcome   string         `json:"outcome"`
	ResultID  int64          `json:"result_id,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the journal.
type TraceStats struct {
	TotalEntries int            `json:"total_entries"`
	Shown        int            `json:"shown"`
	Outcomes     map[string]int `json:"outcomes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the call journal",
		Long: `Show every journaled call in order.

Each post, reply, like and tip is journaled with its caller, arguments and
outcome, including calls the ledger rejected. Reads are not journaled.

Examples:
  flyter trace --db ./flyter.db
  flyter trace --db ./flyter.db --op reply
  flyter trace --db ./flyter.db --caller alice --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Op, "op", "", "filter to one op (post, reply, like, tip)")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "filter to one caller")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Op != "" && !ir.Op(opts.Op).Mutates() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --op %q: only post, reply, like and tip are journaled", opts.Op))
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := host.ReadJournal(commandContext(cmd), st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		Timeline: buildTimeline(entries, opts.Op, opts.Caller),
		Stats: TraceStats{
			TotalEntries: len(entries),
			Outcomes:     map[string]int{},
		},
	}
	result.Stats.Shown = len(result.Timeline)
	for _, e := range entries {
		result.Stats.Outcomes[e.Outcome]++
	}

	f := opts.formatter(cmd)
	return f.Render(result, func(w io.Writer) {
		outputTraceText(w, result, opts.Verbose)
	})
}

// buildTimeline converts journal entries to timeline events, keeping only
// those matching the op and caller filters when set.
func buildTimeline(entries []ir.JournalEntry, opFilter, callerFilter string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, e := range entries {
		if opFilter != "" && string(e.Call.Op) != opFilter {
			continue
		}
		if callerFilter != "" && string(e.Call.Caller) != callerFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:       e.Seq,
			ID:        e.ID,
			CallToken: e.CallToken,
			Op:        string(e.Call.Op),
			Caller:    string(e.Call.Caller),
			Args:      callArgs(e.Call),
			Outcome:   e.Outcome,
			ResultID:  int64(e.ResultID),
		})
	}
	return timeline
}

// callArgs lists the arguments of a call, leaving out unset ones.
// Content is shown as text when it is valid UTF-8.
func callArgs(c ir.Call) map[string]any {
	args := map[string]any{}
	if c.Recipient != "" {
		args["recipient"] = string(c.Recipient)
	}
	if c.Target != 0 {
		args["target"] = int64(c.Target)
	}
	if len(c.Content) > 0 {
		if utf8.Valid(c.Content) {
			args["content"] = string(c.Content)
		} else {
			args["content_bytes"] = len(c.Content)
		}
	}
	if c.Nickname != nil {
		args["nickname"] = *c.Nickname
	}
	if c.Amount != 0 {
		args["amount"] = c.Amount
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Journal: %s entries\n", humanize.Comma(int64(result.Stats.TotalEntries)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no calls)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Outcomes ===")
	outcomes := make([]string, 0, len(result.Stats.Outcomes))
	for o := range result.Stats.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-16s %d\n", o, result.Stats.Outcomes[o])
	}
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	status := "✓"
	if event.Outcome != ir.OutcomeOK {
		status = "✗"
	}
	line := fmt.Sprintf("  [%d] %s %-5s %s %s", event.Seq, status, event.Op, event.Caller, formatArgs(event.Args))
	if event.ResultID != 0 {
		line += fmt.Sprintf(" -> %d", event.ResultID)
	}
	if event.Outcome != ir.OutcomeOK {
		line += " " + event.Outcome
	}
	fmt.Fprintln(w, line)

	if verbose {
		fmt.Fprintf(w, "       Token: %s\n", event.CallToken)
		fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
	}
}

// formatArgs formats a map of args for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// truncateID shortens a content-addressed id for display.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
