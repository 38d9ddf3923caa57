package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/eventq"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	JournalOptions
	Stream string   // optional - all streams when empty
	Type   string   // optional - filter to specific event type
	Where  []string // optional - payload filters, path=value
	After  int64    // optional - only records with seq > After
	Limit  int      // optional - at most Limit records
	Query  string   // optional - fold the events and show each state
}

// selectFilter builds the journal select for the filter flags.
func (o *TraceOptions) selectFilter() (eventq.Select, error) {
	var preds []eventq.Predicate
	if o.Stream != "" {
		preds = append(preds, eventq.StreamIs{Stream: o.Stream})
	}
	if o.Type != "" {
		preds = append(preds, eventq.TypeIs{Type: o.Type})
	}
	for _, w := range o.Where {
		f, err := eventq.ParseField(w)
		if err != nil {
			return eventq.Select{}, err
		}
		preds = append(preds, f)
	}
	if o.After > 0 {
		preds = append(preds, eventq.SeqRange{After: o.After})
	}

	sel := eventq.Select{Filter: eventq.Where(preds...), Limit: o.Limit}
	if err := eventq.Validate(sel); err != nil {
		return eventq.Select{}, err
	}
	return sel, nil
}

// TraceEvent represents a single journaled event in the trace timeline.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	Stream  string          `json:"stream"`
	Type    string          `json:"type"`
	Payload map[string]any  `json:"payload,omitempty"`
	Changed *bool           `json:"changed,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Stream   string       `json:"stream,omitempty"`
	Query    string       `json:"query,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Streams     int            `json:"streams"`
	ByType      map[string]int `json:"by_type"`
	Changes     int            `json:"changes,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{JournalOptions: JournalOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "trace [specs-dir]",
		Short: "Show the journaled events of a stream",
		Long: `Show the journal timeline: every event in sequence order with its
payload.

With a specs directory and --query, each stream's events are folded
through the query and the state after every event is shown, marking the
events that replaced the state.

Examples:
  requex trace --db ./requex.db
  requex trace --db ./requex.db --stream s1 --type add-todo
  requex trace --db ./requex.db --where id=1 --where text=foo --limit 10
  requex trace --db ./requex.db --stream s1 --query todos ./specs`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			specsDir := ""
			if len(args) == 1 {
				specsDir = args[0]
			}
			return runTrace(opts, specsDir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "stream to trace (default: all streams)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to specific event type")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "payload filter path=value (repeatable)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many events")
	cmd.Flags().StringVar(&opts.Query, "query", "", "query to fold events through (requires specs-dir)")

	return cmd
}

func runTrace(opts *TraceOptions, specsDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if (specsDir == "") != (opts.Query == "") {
		return NewExitError(ExitCommandError, "--query and specs-dir must be given together")
	}

	var q *engine.Query
	if specsDir != "" {
		loaded, err := loadQuery(specsDir, opts.Query)
		if err != nil {
			return err
		}
		q = loaded.Query
	}

	sel, err := opts.selectFilter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}
	logger := opts.logger(cmd)
	warnings := eventq.Analyze(sel).Warnings
	for _, w := range warnings {
		logger.Debug("trace filter", "warning", w)
	}

	st, err := opts.openJournal()
	if err != nil {
		return err
	}
	defer st.Close()

	// Folding needs every event of the streams, so only the stream filter
	// reaches the journal; the rest applies to the folded timeline.
	read := sel
	if q != nil {
		read = eventq.Select{}
		if opts.Stream != "" {
			read.Filter = eventq.StreamIs{Stream: opts.Stream}
		}
	}
	records, err := st.Select(ctx, read)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	timeline, err := buildTimeline(records, q)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fold journal", err)
	}
	if q != nil {
		timeline = filterTimeline(timeline, records, sel)
	}

	result := TraceResult{
		Stream:   opts.Stream,
		Query:    opts.Query,
		Timeline: timeline,
		Stats:    buildStats(timeline),
	}

	// Output results
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result, warnings)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts journal records to timeline events. When q is set,
// each stream is folded through its own store and the state after every
// event is recorded. A failing dispatch is reported on its event and leaves
// the stream's state untouched.
func buildTimeline(records []ir.Record, q *engine.Query) ([]TraceEvent, error) {
	stores := make(map[string]*engine.Store)
	timeline := make([]TraceEvent, 0, len(records))

	for _, rec := range records {
		te := TraceEvent{
			Seq:     rec.Seq,
			ID:      rec.ID,
			Stream:  rec.Stream,
			Type:    rec.Event.Type,
			Payload: irObjectToMap(rec.Event.Payload),
		}

		if q != nil {
			s, ok := stores[rec.Stream]
			if !ok {
				var err error
				s, err = engine.NewStore(q)
				if err != nil {
					return nil, err
				}
				stores[rec.Stream] = s
			}

			before := s.State()
			if err := s.Dispatch(rec.Event); err != nil {
				te.Error = err.Error()
			}
			changed := !memo.Same(before, s.State())
			te.Changed = &changed

			state, err := renderState(s.State())
			if err != nil {
				return nil, err
			}
			te.State = state
		}

		timeline = append(timeline, te)
	}
	return timeline, nil
}

// filterTimeline keeps the events whose records match sel. Folding happens
// before filtering so the shown states reflect every event.
func filterTimeline(timeline []TraceEvent, records []ir.Record, sel eventq.Select) []TraceEvent {
	out := make([]TraceEvent, 0, len(timeline))
	for i, e := range timeline {
		if !eventq.Match(sel.Filter, records[i]) {
			continue
		}
		out = append(out, e)
		if sel.Limit > 0 && len(out) == sel.Limit {
			break
		}
	}
	return out
}

func buildStats(timeline []TraceEvent) TraceStats {
	stats := TraceStats{TotalEvents: len(timeline), ByType: make(map[string]int)}
	streams := make(map[string]bool)
	for _, e := range timeline {
		streams[e.Stream] = true
		stats.ByType[e.Type]++
		if e.Changed != nil && *e.Changed {
			stats.Changes++
		}
	}
	stats.Streams = len(streams)
	return stats
}

// irObjectToMap converts an ir.IRObject to a plain map.
func irObjectToMap(obj ir.IRObject) map[string]any {
	if len(obj) == 0 {
		return nil
	}

	result := make(map[string]any, len(obj))
	for k, v := range obj {
		result[k] = irValueToInterface(v)
	}
	return result
}

// irValueToInterface converts an ir.IRValue to a plain value.
func irValueToInterface(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case ir.IRArray:
		result := make([]any, len(val))
		for i, elem := range val {
			result[i] = irValueToInterface(elem)
		}
		return result
	case ir.IRObject:
		return irObjectToMap(val)
	default:
		return nil
	}
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult, warnings []string) error {
	response := CLIResponse{
		Status:   "ok",
		Data:     result,
		Warnings: warnings,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Stream != "" {
		fmt.Fprintf(w, "Trace for Stream: %s\n", result.Stream)
	} else {
		fmt.Fprintln(w, "Trace for all streams")
	}
	if result.Query != "" {
		fmt.Fprintf(w, "Query: %s\n", result.Query)
	}
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose, result.Stream == "")
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Streams:      %d\n", result.Stats.Streams)
	if result.Query != "" {
		fmt.Fprintf(w, "  Changes:      %d\n", result.Stats.Changes)
	}
	types := make([]string, 0, len(result.Stats.ByType))
	for t := range result.Stats.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %s: %d\n", t, result.Stats.ByType[t])
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose, showStream bool) {
	fmt.Fprintf(w, "  [%d] %s %s", event.Seq, event.Type, formatArgs(event.Payload))
	if showStream {
		fmt.Fprintf(w, " @%s", event.Stream)
	}
	fmt.Fprintln(w)

	if event.Error != "" {
		fmt.Fprintf(w, "       FAIL %s\n", event.Error)
	} else if event.Changed != nil {
		if *event.Changed {
			fmt.Fprintf(w, "       -> %s\n", event.State)
		} else {
			fmt.Fprintln(w, "       (unchanged)")
		}
	}
	if verbose {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
	}
}

// formatArgs formats a map of payload fields for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
