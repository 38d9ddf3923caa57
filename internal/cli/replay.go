package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	JournalOptions
	Query  string
	Stream string // optional - specific stream only
}

// ReplayStreamResult holds the replay result for a single stream.
type ReplayStreamResult struct {
	Stream        string `json:"stream"`
	Records       int    `json:"records"`
	LastSeq       int64  `json:"last_seq"`
	StateHash     string `json:"state_hash,omitempty"`
	CheckpointSeq int64  `json:"checkpoint_seq,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Query            string               `json:"query"`
	GraphHash        string               `json:"graph_hash"`
	Streams          []ReplayStreamResult `json:"streams"`
	TotalStreams     int                  `json:"total_streams"`
	AllDeterministic bool                 `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{JournalOptions: JournalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "replay <specs-dir>",
		Short: "Replay journaled streams and verify determinism",
		Long: `Replay journaled events through a query and verify determinism.

Each stream is replayed twice and the canonical state hashes compared. When
a checkpoint of the same query graph exists, the journal prefix up to the
checkpoint is replayed again and must reproduce the checkpointed hash.

Exit codes:
  0 - All streams are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  requex replay --db ./requex.db --query todos ./specs
  requex replay --db ./requex.db --query todos --stream s1 ./specs
  requex replay --db ./requex.db --query todos --format json ./specs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "query to replay (required)")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "replay specific stream only")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runReplay(opts *ReplayOptions, specsDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger(cmd)

	loaded, err := loadQuery(specsDir, opts.Query)
	if err != nil {
		return err
	}

	st, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	// Get streams to process
	var streams []string
	if opts.Stream != "" {
		streams = []string{opts.Stream}
	} else {
		streams, err = st.Streams(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list streams", err)
		}
	}

	result := ReplayResult{
		Query:            loaded.Spec.Name,
		GraphHash:        loaded.GraphHash,
		Streams:          make([]ReplayStreamResult, 0, len(streams)),
		TotalStreams:     len(streams),
		AllDeterministic: true,
	}

	for _, stream := range streams {
		res, err := st.Verify(ctx, loaded.Spec.Name, loaded.GraphHash, loaded.Query, stream)
		sr := ReplayStreamResult{
			Stream:        stream,
			Records:       res.Records,
			LastSeq:       res.LastSeq,
			StateHash:     res.StateHash,
			Deterministic: err == nil,
		}
		if res.Checkpoint != nil {
			sr.CheckpointSeq = res.Checkpoint.Seq
		}
		if err != nil {
			if !isDeterminismFailure(err) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay stream %s", stream), err)
			}
			sr.Error = err.Error()
			result.AllDeterministic = false
			logger.Warn("replay verification failed", "stream", stream, "error", err)
		} else {
			logger.Debug("stream verified", "stream", stream, "records", res.Records, "state_hash", res.StateHash)
		}
		result.Streams = append(result.Streams, sr)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// isDeterminismFailure separates verification failures from journal errors.
// A dispatch error during replay counts as a failure: the journal holds
// events the query can no longer fold.
func isDeterminismFailure(err error) bool {
	return errors.Is(err, store.ErrCheckpointMismatch) ||
		errors.Is(err, engine.ErrNondeterministic) ||
		engine.IsInvariantError(err)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeDeterminism,
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalStreams == 0 {
		fmt.Fprintln(w, "No streams found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: query %s, %d stream(s)\n", result.Query, result.TotalStreams)
	fmt.Fprintln(w)

	for _, s := range result.Streams {
		status := "OK"
		if !s.Deterministic {
			status = "FAIL"
		}

		fmt.Fprintf(w, "%s Stream: %s\n", status, s.Stream)
		fmt.Fprintf(w, "  Events: %d (last seq %d)\n", s.Records, s.LastSeq)
		if verbose && s.StateHash != "" {
			fmt.Fprintf(w, "  State hash: %s\n", s.StateHash)
		}
		if s.CheckpointSeq > 0 {
			fmt.Fprintf(w, "  Checkpoint: seq %d\n", s.CheckpointSeq)
		}
		if s.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "OK All streams verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "FAIL Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
