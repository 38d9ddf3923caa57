package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/requex/internal/compiler"
	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
	"github.com/roach88/requex/internal/store"
	"github.com/roach88/requex/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and a fixed stream token.
type Harness struct {
	journal *store.Store
	engine  *engine.Store
	loaded  *compiler.Loaded
	clock   *testutil.Clock
	stream  string
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation.
//
// Execution flow:
// 1. Load and build the query from scenario.Specs
// 2. Journal and dispatch the events, tracing each dispatch
// 3. Checkpoint the final state and verify it by replaying the journal
// 4. Evaluate the assertions against the live store
func Run(scenario *Scenario) (*Result, error) {
	loaded, err := compiler.LoadQuery(scenario.Specs, scenario.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to load query %s: %w", scenario.Query, err)
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer journal.Close()

	clock := testutil.NewClock(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	eng, err := engine.NewStore(loaded.Query,
		engine.WithClock(clock),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed query %s: %w", scenario.Query, err)
	}

	h := &Harness{
		journal: journal,
		engine:  eng,
		loaded:  loaded,
		clock:   clock,
		stream:  testutil.NewStreams(scenario.Stream).Generate(),
		logger:  logger,
	}

	ctx := context.Background()
	result := NewResult()

	events := make([]ir.Event, len(scenario.Events))
	for i, step := range scenario.Events {
		ev, err := step.Event()
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		events[i] = ev
	}

	if scenario.Batch {
		if len(events) > 0 {
			err = h.dispatch(ctx, events, result)
		}
	} else {
		for _, ev := range events {
			if err = h.dispatch(ctx, []ir.Event{ev}, result); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	result.State = eng.State()
	if err := h.verify(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Store: eng, Trace: result.Trace}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// dispatch journals events and feeds them to the engine as one dispatch.
// A failed dispatch is traced and reported as a scenario failure; its events
// stay out of the journal so replays remain valid.
func (h *Harness) dispatch(ctx context.Context, events []ir.Event, result *Result) error {
	before := h.engine.State()
	dispatchErr := h.engine.DispatchBatch(events...)
	after := h.engine.State()

	step := TraceStep{
		Tick:    h.clock.Current(),
		Event:   events[len(events)-1].Type,
		Events:  len(events),
		Changed: !memo.Same(before, after),
		State:   after,
	}
	if dispatchErr != nil {
		step.Error = dispatchErr.Error()
		result.AddStep(step)
		result.AddError(fmt.Sprintf("dispatch %d (%s) failed: %v", step.Tick, step.Event, dispatchErr))
		return nil
	}
	result.AddStep(step)

	for _, ev := range events {
		rec, err := h.journal.AppendEvent(ctx, h.stream, ev)
		if err != nil {
			return fmt.Errorf("dispatch %d: failed to journal %s: %w", step.Tick, ev.Type, err)
		}
		h.logger.Info("event dispatched",
			"tick", step.Tick,
			"type", ev.Type,
			"id", rec.ID,
			"seq", rec.Seq,
			"changed", step.Changed,
		)
	}
	return nil
}

// verify checkpoints the live state and replays the journal against it.
func (h *Harness) verify(ctx context.Context, result *Result) error {
	lastSeq, err := h.journal.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	cp, err := store.NewCheckpoint(h.stream, h.loaded.Spec.Name, h.loaded.GraphHash, lastSeq, result.State)
	if err != nil {
		return fmt.Errorf("failed to checkpoint state: %w", err)
	}
	if err := h.journal.WriteCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	vr, err := h.journal.Verify(ctx, h.loaded.Spec.Name, h.loaded.GraphHash, h.loaded.Query, h.stream)
	if err != nil {
		result.AddError(fmt.Sprintf("replay verification failed: %v", err))
		return nil
	}
	if vr.StateHash != cp.StateHash {
		result.AddError(fmt.Sprintf("replayed state hash %s differs from live state hash %s", vr.StateHash, cp.StateHash))
	}
	result.StateHash = cp.StateHash
	return nil
}
