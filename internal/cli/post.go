package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/ir"
)

// WriteOptions holds flags shared by post and reply.
type WriteOptions struct {
	*RootOptions
	Nickname string
	File     string // read content from a file, "-" for stdin
}

// WriteResult is the output of post and reply.
type WriteResult struct {
	ID        ir.MessageID `json:"id"`
	InReplyTo ir.MessageID `json:"in_reply_to,omitempty"`
	Count     ir.MessageID `json:"count"`
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post <recipient> [content]",
		Short: "Post a flyt to a recipient",
		Long: `Post a new flyt from the --as identity to a recipient.

Content is taken from the second argument, or from --file when the argument
is omitted ("-" reads stdin). The new flyt's id is printed.

Examples:
  flyter post --as alice bob "hi"
  flyter post --as alice --nickname al bob "hi"
  echo hi | flyter post --as alice bob --file -`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(opts, args, cmd)
		},
	}
	addWriteFlags(cmd, opts)

	return cmd
}

// NewReplyCommand creates the reply command.
func NewReplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reply <id> [content]",
		Short: "Reply to a flyt addressed to you",
		Long: `Reply to flyt <id>. Only the recipient of that flyt may reply; the
reply is addressed back to its sender.

Exit codes:
  0 - Reply stored
  1 - Rejected (NO_SUCH_MESSAGE or NOT_ADDRESSEE)
  2 - Command error

Examples:
  flyter reply --as bob 1 "hey"`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReply(opts, args, cmd)
		},
	}
	addWriteFlags(cmd, opts)

	return cmd
}

func addWriteFlags(cmd *cobra.Command, opts *WriteOptions) {
	cmd.Flags().StringVar(&opts.Nickname, "nickname", "", "sender nickname shown with the flyt")
	cmd.Flags().StringVar(&opts.File, "file", "", `read content from file ("-" for stdin)`)
}

func runPost(opts *WriteOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	caller, err := opts.caller(true)
	if err != nil {
		return err
	}
	content, err := opts.content(cmd, args[1:])
	if err != nil {
		return err
	}

	call := ir.Call{
		Op:        ir.OpPost,
		Caller:    caller,
		Recipient: ir.Identity(args[0]),
		Content:   content,
		Nickname:  opts.nickname(cmd),
	}
	res, err := execOne(commandContext(cmd), opts.RootOptions, call)
	if err != nil {
		return reportCallError(f, err)
	}

	out := WriteResult{ID: res.ID, Count: res.Count}
	return f.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Posted flyt %d to %s\n", res.ID, args[0])
	})
}

func runReply(opts *WriteOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	target, err := parseID(args[0])
	if err != nil {
		return err
	}
	caller, err := opts.caller(true)
	if err != nil {
		return err
	}
	content, err := opts.content(cmd, args[1:])
	if err != nil {
		return err
	}

	call := ir.Call{
		Op:       ir.OpReply,
		Caller:   caller,
		Target:   target,
		Content:  content,
		Nickname: opts.nickname(cmd),
	}
	res, err := execOne(commandContext(cmd), opts.RootOptions, call)
	if err != nil {
		return reportCallError(f, err)
	}

	out := WriteResult{ID: res.ID, InReplyTo: target, Count: res.Count}
	return f.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Replied to flyt %d with flyt %d\n", target, res.ID)
	})
}

// content returns the message body from the positional argument or --file.
func (o *WriteOptions) content(cmd *cobra.Command, rest []string) ([]byte, error) {
	switch {
	case len(rest) == 1 && o.File != "":
		return nil, NewExitError(ExitCommandError, "give content as an argument or with --file, not both")
	case len(rest) == 1:
		return []byte(rest[0]), nil
	case o.File == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	case o.File != "":
		data, err := os.ReadFile(o.File)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read content file", err)
		}
		return data, nil
	default:
		return nil, NewExitError(ExitCommandError, "content is required: pass it as an argument or with --file")
	}
}

// nickname distinguishes an omitted --nickname from an explicitly empty one.
func (o *WriteOptions) nickname(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("nickname") {
		return nil
	}
	return ir.Nick(o.Nickname)
}
