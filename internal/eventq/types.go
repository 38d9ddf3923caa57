package eventq

import (
	"github.com/roach88/requex/internal/ir"
)

// Predicate is a condition on one journaled record.
//
// Predicate types:
//   - StreamIs: the record's stream
//   - TypeIs: the event type
//   - FieldEquals: a payload field equals a scalar
//   - HasField: a payload field is present
//   - SeqRange: the record's seq lies in a window
//   - And: all predicates hold
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select reads journal records in seq order.
//
// Example:
//
//	Select{
//	  Filter: And{Predicates: []Predicate{
//	    StreamIs{Stream: "s1"},
//	    FieldEquals{Path: "id", Value: ir.IRInt(1)},
//	  }},
//	  Limit: 10,
//	}
//
// Translates to SQL:
//
//	SELECT id, seq, stream, type, payload FROM events
//	WHERE stream = ? AND json_type(payload, ?) = ? AND json_extract(payload, ?) = ?
//	ORDER BY seq ASC LIMIT ?
type Select struct {
	Filter Predicate // nil = every record
	Limit  int       // 0 = no limit
}

// StreamIs matches the records of one stream.
type StreamIs struct {
	Stream string
}

func (StreamIs) predicateNode() {}

// TypeIs matches events of one type.
type TypeIs struct {
	Type string
}

func (TypeIs) predicateNode() {}

// FieldEquals matches events whose payload field at Path (dot-separated)
// equals Value. A missing field never matches.
type FieldEquals struct {
	Path  string
	Value ir.IRValue // IRString, IRInt or IRBool
}

func (FieldEquals) predicateNode() {}

// HasField matches events whose payload has a field at Path.
type HasField struct {
	Path string
}

func (HasField) predicateNode() {}

// SeqRange matches records with After < seq <= Until. A zero Until is
// unbounded.
type SeqRange struct {
	After int64
	Until int64
}

func (SeqRange) predicateNode() {}

// And matches when every predicate matches. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where conjoins predicates, dropping nils. It returns nil for no
// predicates and the predicate itself for one.
func Where(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
