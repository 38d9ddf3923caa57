package eventq

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/requex/internal/ir"
)

// Validate reports the first malformed part of sel. Backends only accept
// valid selects.
func Validate(sel Select) error {
	if sel.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", sel.Limit)
	}
	return validatePredicate(sel.Filter)
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case StreamIs:
		if pred.Stream == "" {
			return errors.New("stream filter must not be empty")
		}
	case TypeIs:
		if pred.Type == "" {
			return errors.New("type filter must not be empty")
		}
	case FieldEquals:
		if err := ValidatePath(pred.Path); err != nil {
			return err
		}
		switch pred.Value.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
		default:
			return fmt.Errorf("field %s: only string, int and bool values can be compared, got %T", pred.Path, pred.Value)
		}
	case HasField:
		return ValidatePath(pred.Path)
	case SeqRange:
		if pred.After < 0 || pred.Until < 0 {
			return fmt.Errorf("seq range must not be negative, got (%d, %d]", pred.After, pred.Until)
		}
		if pred.Until != 0 && pred.Until <= pred.After {
			return fmt.Errorf("empty seq range (%d, %d]", pred.After, pred.Until)
		}
	case And:
		for _, sub := range pred.Predicates {
			if err := validatePredicate(sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

// ValidatePath checks a dot-separated payload path.
func ValidatePath(path string) error {
	if path == "" {
		return errors.New("field path must not be empty")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("invalid field path %q: empty segment", path)
		}
		if strings.ContainsAny(seg, `"\`) {
			return fmt.Errorf("invalid field path %q: quotes and backslashes are not allowed", path)
		}
	}
	return nil
}

// Analysis describes how a backend will serve a select.
type Analysis struct {
	// Indexed is true when the select is narrowed to one stream, so the
	// (stream, seq) index serves it without a full journal scan.
	Indexed bool

	// Warnings lists the reasons a select is not indexed.
	Warnings []string
}

// Analyze inspects sel for full journal scans. It is a pure function.
func Analyze(sel Select) Analysis {
	if hasStream(sel.Filter) {
		return Analysis{Indexed: true, Warnings: []string{}}
	}
	a := Analysis{Warnings: []string{"no stream filter - every journal record is scanned"}}
	if hasPayloadFilter(sel.Filter) {
		a.Warnings = append(a.Warnings, "payload fields are decoded for every scanned record")
	}
	return a
}

// hasStream reports whether p requires a single stream. Only the top-level
// conjunction counts.
func hasStream(p Predicate) bool {
	switch pred := p.(type) {
	case StreamIs:
		return true
	case And:
		for _, sub := range pred.Predicates {
			if hasStream(sub) {
				return true
			}
		}
	}
	return false
}

func hasPayloadFilter(p Predicate) bool {
	switch pred := p.(type) {
	case FieldEquals, HasField:
		return true
	case And:
		for _, sub := range pred.Predicates {
			if hasPayloadFilter(sub) {
				return true
			}
		}
	}
	return false
}

// ParseField parses a "path=value" filter. The value is read as a JSON
// scalar when it is one (1, true, "1") and as a bare string otherwise.
func ParseField(s string) (FieldEquals, error) {
	path, raw, ok := strings.Cut(s, "=")
	if !ok {
		return FieldEquals{}, fmt.Errorf("invalid field filter %q: expected path=value", s)
	}
	path = strings.TrimSpace(path)
	if err := ValidatePath(path); err != nil {
		return FieldEquals{}, err
	}

	var value ir.IRValue = ir.IRString(raw)
	if v, err := ir.UnmarshalIRValue([]byte(raw)); err == nil {
		switch v.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
			value = v
		}
	}
	return FieldEquals{Path: path, Value: value}, nil
}
