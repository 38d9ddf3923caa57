package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is resolved before any subcommand runs: defaults, then the
	// --config file, then explicit flags.
	Config config.Config

	// Logger writes diagnostics to stderr.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the requex CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "requex",
		Short: "requex - incremental derivations over event streams",
		Long: `requex compiles declarative derivation graphs, feeds them events and
journals those events so every derived state can be replayed and verified.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve merges the config file under explicit flags and sets up logging.
func (opts *RootOptions) resolve(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = *loaded
	}

	if cmd.Flags().Changed("format") || opts.ConfigPath == "" {
		cfg.Format = opts.Format
	}
	if !isValidFormat(cfg.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", cfg.Format, ValidFormats))
	}
	opts.Format = cfg.Format

	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	opts.Config = cfg
	opts.Logger = newLogger(cmd.ErrOrStderr(), cfg.Level())
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or one writing to stderr at Info
// when the command runs without the root pre-run (tests).
func (opts *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if opts.Logger == nil {
		opts.Logger = newLogger(cmd.ErrOrStderr(), slog.LevelInfo)
	}
	return opts.Logger
}

// formatter builds the output formatter for cmd.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
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
