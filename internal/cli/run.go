package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/compiler"
	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
	"github.com/roach88/requex/internal/metrics"
	"github.com/roach88/requex/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	JournalOptions
	Query           string
	Stream          string
	CheckpointEvery int
	MetricsAddr     string

	// StreamGenerator allows overriding the stream token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	StreamGenerator store.StreamTokenGenerator
}

// StateLine is printed whenever the state reference changes.
type StateLine struct {
	Seq   int64           `json:"seq"`
	Type  string          `json:"type,omitempty"`
	State json.RawMessage `json:"state"`
}

// RunSummary is printed when the input ends.
type RunSummary struct {
	Stream    string `json:"stream"`
	Query     string `json:"query"`
	Resumed   int    `json:"resumed"`
	Processed int    `json:"processed"`
	Rejected  int    `json:"rejected"`
	LastSeq   int64  `json:"last_seq"`
	StateHash string `json:"state_hash"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{JournalOptions: JournalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Feed events from stdin through a query",
		Long: `Run a query over a stream of JSON-lines events read from stdin.

Each line is {"type": "...", "payload": {...}}. An accepted event is
journaled and the state is printed whenever its reference changes. Events
already journaled on the stream are replayed first, so a run resumes where
the previous one stopped. A checkpoint is written every --checkpoint-every
events and at end of input.

Rejected events (malformed or failing dispatch) are reported, never
journaled, and make the command exit with code 1.

Example:
  requex run --db ./requex.db --query todos --stream s1 ./specs < events.jsonl`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "query to run (required)")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "stream token (default: new UUIDv7)")
	cmd.Flags().IntVar(&opts.CheckpointEvery, "checkpoint-every", 0, "checkpoint after this many events (default from config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

// runner holds the state of one run.
type runner struct {
	opts    *RunOptions
	out     *OutputFormatter
	logger  *slog.Logger
	journal *store.Store
	loaded  *compiler.Loaded
	engine  *engine.Store
	summary RunSummary
	every   int
}

func runQuery(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	logger := opts.logger(cmd)

	loaded, err := loadQuery(specsDir, opts.Query)
	if err != nil {
		return err
	}

	st, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	stream := opts.Stream
	if stream == "" {
		gen := opts.StreamGenerator
		if gen == nil {
			gen = store.UUIDv7Generator{}
		}
		stream = gen.Generate()
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{
		opts:    opts,
		out:     opts.formatter(cmd),
		logger:  logger,
		journal: st,
		loaded:  loaded,
		summary: RunSummary{Stream: stream, Query: loaded.Spec.Name},
		every:   opts.Config.CheckpointEvery,
	}
	if cmd.Flags().Changed("checkpoint-every") {
		r.every = opts.CheckpointEvery
	}

	reg := prometheus.NewRegistry()
	if err := r.resume(ctx, metrics.New(reg)); err != nil {
		return err
	}

	if opts.MetricsAddr != "" {
		shutdown, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer shutdown()
	}

	if err := r.printState(0, "", r.engine.State()); err != nil {
		return err
	}
	if err := r.consume(ctx, cmd.InOrStdin()); err != nil {
		return err
	}
	return r.finish(ctx)
}

// resume replays the stream's journaled events and continues from the
// resulting pair with a fresh, observed store.
func (r *runner) resume(ctx context.Context, m *metrics.Metrics) error {
	replayed, records, err := r.journal.Replay(ctx, r.loaded.Query, r.summary.Stream)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journaled events", err)
	}
	r.summary.Resumed = len(records)
	if n := len(records); n > 0 {
		r.summary.LastSeq = records[n-1].Seq
		r.logger.Info("resumed stream", "stream", r.summary.Stream, "events", n, "last_seq", r.summary.LastSeq)
	}

	r.engine, err = engine.NewStore(r.loaded.Query,
		engine.WithSnapshot(replayed.State(), replayed.Aux()),
		engine.WithObserver(m.Observer(r.summary.Query)),
		engine.WithLogger(r.logger),
		engine.WithClock(engine.NewClockAt(replayed.Tick())),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start store", err)
	}
	return nil
}

// consume reads JSON lines until EOF or cancellation.
func (r *runner) consume(ctx context.Context, in io.Reader) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("received signal, stopping")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to read input", err)
					}
				default:
				}
				return nil
			}
			lineNo++
			if len(line) == 0 {
				continue
			}
			if err := r.handle(ctx, lineNo, line); err != nil {
				return err
			}
		}
	}
}

// handle dispatches one input line. Only a journal failure aborts the run.
func (r *runner) handle(ctx context.Context, lineNo int, line []byte) error {
	ev, err := parseEvent(line)
	if err != nil {
		r.reject(lineNo, ErrCodeBadEvent, err)
		return nil
	}

	before := r.engine.State()
	if err := r.engine.Dispatch(ev); err != nil {
		r.reject(lineNo, ErrorCode(err, ErrCodeDispatchFailed), err)
		return nil
	}

	// Render before journaling: a state that cannot be printed must not
	// leave its event behind in the stream.
	var rendered json.RawMessage
	after := r.engine.State()
	changed := !memo.Same(before, after)
	if changed {
		if rendered, err = renderState(after); err != nil {
			return WrapExitError(ExitCommandError, "failed to render state", err)
		}
	}

	rec, err := r.journal.AppendEvent(ctx, r.summary.Stream, ev)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to journal event", err)
	}
	r.summary.Processed++
	r.summary.LastSeq = rec.Seq

	if changed {
		if err := r.writeState(StateLine{Seq: rec.Seq, Type: ev.Type, State: rendered}); err != nil {
			return err
		}
	}

	if r.every > 0 && r.summary.Processed%r.every == 0 {
		return r.checkpoint(ctx)
	}
	return nil
}

func (r *runner) reject(lineNo int, code string, err error) {
	r.summary.Rejected++
	r.logger.Warn("event rejected", "line", lineNo, "code", code, "error", err)
	_ = r.out.Error(code, fmt.Sprintf("line %d: %v", lineNo, err), nil)
}

func (r *runner) printState(seq int64, eventType string, state any) error {
	rendered, err := renderState(state)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render state", err)
	}
	return r.writeState(StateLine{Seq: seq, Type: eventType, State: rendered})
}

func (r *runner) writeState(line StateLine) error {
	if r.out.Format == "json" {
		return json.NewEncoder(r.out.Writer).Encode(line)
	}
	label := line.Type
	if label == "" {
		label = "(initial)"
	}
	fmt.Fprintf(r.out.Writer, "[%d] %s -> %s\n", line.Seq, label, line.State)
	return nil
}

// checkpoint stores the current state at the last journaled seq.
func (r *runner) checkpoint(ctx context.Context) error {
	cp, err := store.NewCheckpoint(r.summary.Stream, r.summary.Query, r.loaded.GraphHash, r.summary.LastSeq, r.engine.State())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render checkpoint", err)
	}
	if err := r.journal.WriteCheckpoint(ctx, cp); err != nil {
		return WrapExitError(ExitCommandError, "failed to write checkpoint", err)
	}
	r.summary.StateHash = cp.StateHash
	r.logger.Debug("checkpoint written", "stream", cp.Stream, "seq", cp.Seq, "state_hash", cp.StateHash)
	return nil
}

func (r *runner) finish(ctx context.Context) error {
	// A stream with no journaled events has nothing to checkpoint against.
	if r.summary.LastSeq > 0 {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
	} else {
		h, err := ir.StateHash(r.engine.State())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash state", err)
		}
		r.summary.StateHash = h
	}

	if r.out.Format == "json" {
		if err := json.NewEncoder(r.out.Writer).Encode(CLIResponse{Status: "ok", Data: r.summary}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(r.out.Writer, "Processed %d event(s), rejected %d, resumed %d on stream %s\n",
			r.summary.Processed, r.summary.Rejected, r.summary.Resumed, r.summary.Stream)
		fmt.Fprintf(r.out.Writer, "State hash: %s\n", r.summary.StateHash)
	}

	if r.summary.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) rejected", r.summary.Rejected))
	}
	return nil
}

// serveMetrics exposes reg on addr until the returned shutdown is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
