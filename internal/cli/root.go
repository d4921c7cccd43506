package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/flyter/internal/config"
	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides store.path
	Backend    string // overrides store.backend
	As         string // caller identity

	// Tokens overrides the host's call token generator (for testing).
	// If nil, defaults to host.UUIDv7Generator.
	Tokens host.TokenGenerator

	// Getenv overrides environment lookups (for testing).
	Getenv func(string) string

	cfg config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// anonymousCaller is the caller recorded for reads made without --as.
const anonymousCaller ir.Identity = "anonymous"

// NewRootCommand creates the root command for the flyter CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flyter",
		Short: "flyter - a paired-record message ledger",
		Long: `A ledger of short messages ("flyts") addressed from one identity to another.

Every flyt has a numeric id and a paired stats record holding its likes and
tips. Only the addressee of a flyt may reply to it.`,
		Version: ir.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadConfig(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file (default "+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the ledger store (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend: sqlite, pebble or memory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "caller identity")

	// Add subcommands
	cmd.AddCommand(NewPostCommand(opts))
	cmd.AddCommand(NewReplyCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewLikeCommand(opts))
	cmd.AddCommand(NewTipCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig builds the effective configuration (file, then environment,
// then flags) and installs the process logger.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{Path: o.ConfigPath, Getenv: o.Getenv})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.Backend != "" {
		cfg.Store.Backend = o.Backend
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.cfg = cfg

	slog.SetDefault(cfg.Log.NewLogger(cmd.ErrOrStderr(), o.Verbose))
	slog.Debug("configuration loaded",
		"backend", cfg.Store.Backend,
		"path", cfg.Store.Path,
		"config", o.ConfigPath,
	)
	return nil
}

// caller returns the --as identity. Writes need one; reads fall back to
// anonymousCaller.
func (o *RootOptions) caller(required bool) (ir.Identity, error) {
	if o.As != "" {
		return ir.Identity(o.As), nil
	}
	if required {
		return "", NewExitError(ExitCommandError, "--as is required: writes are made on behalf of a caller")
	}
	return anonymousCaller, nil
}

// formatter returns an OutputFormatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
