package eventq

import (
	"github.com/roach88/requex/internal/ir"
)

// Match evaluates p against one record in memory. A nil predicate matches
// every record. Match agrees with the SQL backend on valid predicates.
func Match(p Predicate, rec ir.Record) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case StreamIs:
		return rec.Stream == pred.Stream
	case TypeIs:
		return rec.Event.Type == pred.Type
	case FieldEquals:
		got, ok := rec.Event.Field(pred.Path)
		return ok && ir.Equal(got, pred.Value)
	case HasField:
		_, ok := rec.Event.Field(pred.Path)
		return ok
	case SeqRange:
		return rec.Seq > pred.After && (pred.Until == 0 || rec.Seq <= pred.Until)
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, rec) {
				return false
			}
		}
		return true
	}
	return false
}

// Filter applies sel to records already in seq order.
func Filter(sel Select, records []ir.Record) []ir.Record {
	out := make([]ir.Record, 0, len(records))
	for _, rec := range records {
		if !Match(sel.Filter, rec) {
			continue
		}
		out = append(out, rec)
		if sel.Limit > 0 && len(out) == sel.Limit {
			break
		}
	}
	return out
}
