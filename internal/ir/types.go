package ir

import "fmt"

// Event is one discrete input record. Type is the discriminant nodes match
// on; the engine never interprets Payload beyond what selectors extract.
type Event struct {
	Type    string   `json:"type"`
	Payload IRObject `json:"payload,omitempty"`
}

// NewEvent builds an event from typed payload pairs.
func NewEvent(eventType string, pairs ...IRPair) Event {
	return Event{Type: eventType, Payload: Obj(pairs...)}
}

// Field reads a dotted payload path.
func (e Event) Field(path string) (IRValue, bool) {
	return e.Payload.Get(path)
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return fmt.Sprintf("%s %v", e.Type, map[string]IRValue(e.payloadOrEmpty()))
}

func (e Event) payloadOrEmpty() IRObject {
	if e.Payload == nil {
		return IRObject{}
	}
	return e.Payload
}

// Record is an event as journaled by the store. Seq is a per-journal
// logical clock, never a wall-clock timestamp.
type Record struct {
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Stream string `json:"stream"`
	Event  Event  `json:"event"`
}

// Checkpoint is the state a query reached after consuming a stream up to
// Seq, rendered as canonical JSON.
type Checkpoint struct {
	Stream    string `json:"stream"`
	Query     string `json:"query"`
	GraphHash string `json:"graph_hash"`
	Seq       int64  `json:"seq"`
	StateHash string `json:"state_hash"`
	State     string `json:"state"`
}
