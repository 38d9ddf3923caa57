// Package eventq is a small filter language over journaled events.
//
// A Select describes which records of the journal to read: the stream, the
// event type, payload field comparisons and a seq window. It is the
// abstraction boundary between callers (the trace command, tests) and the
// backends that evaluate it:
//
//	[flags] -> eventq.Select -> eventsql.Compile -> SQLite
//	                         -> eventq.Match     -> in-memory records
//
// Both backends must agree on every record. Filters that the SQL backend
// cannot serve from the (stream, seq) index still work; Analyze reports
// them so callers can warn about full journal scans.
//
// # SEALED INTERFACES
//
// Predicate is sealed with a marker method. Only types in this package
// implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case StreamIs:
//	case TypeIs:
//	case FieldEquals:
//	case HasField:
//	case SeqRange:
//	case And:
//	}
//
// # VALUES
//
// Field comparisons use IR scalars only: strings, ints and bools. Floats
// and nulls cannot appear in a payload, and comparing whole arrays or
// objects is not supported.
package eventq
