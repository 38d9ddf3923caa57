package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/store"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	JournalOptions
	Stream  string
	Type    string
	Payload string

	// StreamGenerator allows overriding the stream token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	StreamGenerator store.StreamTokenGenerator
}

// AppendResult is the journaled record.
type AppendResult struct {
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Stream string `json:"stream"`
	Type   string `json:"type"`
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{JournalOptions: JournalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Journal one event",
		Long: `Append one event to a stream of the journal without dispatching it.

The next "run" or "replay" of the stream sees the event. Without --stream a
new UUIDv7 stream token is generated and printed.

Example:
  requex append --db ./requex.db --stream s1 --type add-todo --payload '{"id":1,"text":"foo"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "stream token (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "event type (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as a JSON object")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ev, err := newEvent(opts.Type, []byte(opts.Payload))
	if err != nil {
		_ = formatter.Error(ErrCodeBadEvent, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	stream := opts.Stream
	if stream == "" {
		gen := opts.StreamGenerator
		if gen == nil {
			gen = store.UUIDv7Generator{}
		}
		stream = gen.Generate()
	}

	st, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.AppendEvent(cmd.Context(), stream, ev)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to append event", err)
	}
	opts.logger(cmd).Debug("event appended", "stream", stream, "seq", rec.Seq, "id", rec.ID)

	result := AppendResult{ID: rec.ID, Seq: rec.Seq, Stream: rec.Stream, Type: rec.Event.Type}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Appended %s to stream %s at seq %d (%s)\n",
		result.Type, result.Stream, result.Seq, truncateID(result.ID))
	return nil
}
