package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
)

// AssertionContext provides the live store for assertions that dispatch.
type AssertionContext struct {
	Store *engine.Store
	Trace []TraceStep
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []TraceStep // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, step := range e.Trace {
			changed := "unchanged"
			if step.Changed {
				changed = "changed"
			}
			fmt.Fprintf(&buf, "  [%d] %s (%s)\n", step.Tick, step.Event, changed)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion in order and returns the failure
// messages. Later assertions see the effects of earlier dispatching ones.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStateEquals:
		return assertStateEquals(actx, a)
	case AssertPathEquals:
		return assertPathEquals(actx, a)
	case AssertUnchanged:
		return assertUnchanged(actx, a)
	case AssertDispatchError:
		return assertDispatchError(actx, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertStateEquals compares the whole state with the expected value as
// canonical JSON, so dictionary keys and map ordering do not matter.
func assertStateEquals(actx *AssertionContext, a Assertion) error {
	want, err := canonical(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	got, err := canonical(actx.Store.State())
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertStateEquals,
			Expected: want,
			Actual:   got,
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertPathEquals compares the value at a dotted path of the state.
func assertPathEquals(actx *AssertionContext, a Assertion) error {
	want, err := canonical(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	v, ok, err := lookupPath(actx.Store.State(), a.Path)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertPathEquals,
			Expected: fmt.Sprintf("%s = %s", a.Path, want),
			Actual:   fmt.Sprintf("%s not found", a.Path),
			Trace:    actx.Trace,
		}
	}

	got, err := canonical(v)
	if err != nil {
		return fmt.Errorf("state at %s: %w", a.Path, err)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertPathEquals,
			Expected: fmt.Sprintf("%s = %s", a.Path, want),
			Actual:   fmt.Sprintf("%s = %s", a.Path, got),
			Trace:    actx.Trace,
		}
	}
	return nil
}

// assertUnchanged dispatches each event and requires the state reference
// to survive every dispatch.
func assertUnchanged(actx *AssertionContext, a Assertion) error {
	for i, step := range a.Events {
		ev, err := step.Event()
		if err != nil {
			return err
		}
		before := actx.Store.State()
		if err := actx.Store.Dispatch(ev); err != nil {
			return fmt.Errorf("events[%d] (%s): dispatch failed: %w", i, ev.Type, err)
		}
		if !memo.Same(before, actx.Store.State()) {
			after, _ := canonical(actx.Store.State())
			return &AssertionError{
				Type:     AssertUnchanged,
				Expected: fmt.Sprintf("%s leaves the state reference untouched", ev.Type),
				Actual:   fmt.Sprintf("state replaced with %s", after),
				Trace:    actx.Trace,
			}
		}
	}
	return nil
}

// assertDispatchError dispatches the events as one batch and requires it to
// fail without touching the state.
func assertDispatchError(actx *AssertionContext, a Assertion) error {
	events := make([]ir.Event, len(a.Events))
	for i, step := range a.Events {
		ev, err := step.Event()
		if err != nil {
			return err
		}
		events[i] = ev
	}

	before := actx.Store.State()
	err := actx.Store.DispatchBatch(events...)
	if err == nil {
		return &AssertionError{
			Type:     AssertDispatchError,
			Expected: "dispatch error",
			Actual:   "dispatch succeeded",
			Trace:    actx.Trace,
		}
	}
	if a.Code != "" && !engine.HasCode(err, engine.ErrorCode(a.Code)) {
		return &AssertionError{
			Type:     AssertDispatchError,
			Expected: fmt.Sprintf("error with code %s", a.Code),
			Actual:   err.Error(),
			Trace:    actx.Trace,
		}
	}
	if !memo.Same(before, actx.Store.State()) {
		return &AssertionError{
			Type:     AssertDispatchError,
			Expected: "state kept after failed dispatch",
			Actual:   "state replaced",
			Trace:    actx.Trace,
		}
	}
	return nil
}

// canonical renders v as canonical JSON; nil renders as null.
func canonical(v any) (string, error) {
	data, err := ir.MarshalState(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// lookupPath walks a dotted path through the IR rendering of state.
// Numeric segments index lists.
func lookupPath(state any, path string) (ir.IRValue, bool, error) {
	if state == nil {
		return nil, false, nil
	}
	cur, err := ir.StateValue(state)
	if err != nil {
		return nil, false, err
	}
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case ir.IRObject:
			next, ok := c[seg]
			if !ok {
				return nil, false, nil
			}
			cur = next
		case ir.IRArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false, nil
			}
			cur = c[i]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}
