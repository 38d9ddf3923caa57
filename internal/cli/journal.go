package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/requex/internal/compiler"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/store"
)

// JournalOptions holds the --db flag shared by journal commands.
type JournalOptions struct {
	*RootOptions
	Database string // overrides config.Database when set
}

// database returns the journal path: the flag, else the config value.
func (o *JournalOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.Config.Database
}

// openJournal opens the journal, wrapping failures as command errors.
func (o *JournalOptions) openJournal() (*store.Store, error) {
	path := o.database()
	st, err := store.Open(path, store.WithLogger(o.Logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", path), err)
	}
	return st, nil
}

// loadQuery loads and builds one query, wrapping failures as command errors.
func loadQuery(specsDir, name string) (*compiler.Loaded, error) {
	if name == "" {
		return nil, NewExitError(ExitCommandError, "--query is required")
	}
	loaded, err := compiler.LoadQuery(specsDir, name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load query %s", name), err)
	}
	return loaded, nil
}

// eventLine is the JSON shape of one input event.
type eventLine struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// parseEvent decodes {"type": ..., "payload": {...}}. Payloads follow the
// IR rules: no floats, no nulls.
func parseEvent(data []byte) (ir.Event, error) {
	var line eventLine
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&line); err != nil {
		return ir.Event{}, fmt.Errorf("invalid event JSON: %w", err)
	}
	return newEvent(line.Type, line.Payload)
}

// newEvent builds an event from a type and raw JSON payload.
func newEvent(eventType string, payload []byte) (ir.Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return ir.Event{}, errors.New("event type is required")
	}
	ev := ir.Event{Type: eventType, Payload: ir.IRObject{}}
	if len(bytes.TrimSpace(payload)) == 0 {
		return ev, nil
	}
	obj, err := ir.UnmarshalPayload(payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("event %s: invalid payload: %w", eventType, err)
	}
	ev.Payload = obj
	return ev, nil
}

// renderState renders a state as canonical JSON for output.
func renderState(state any) (json.RawMessage, error) {
	data, err := ir.MarshalState(state)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
