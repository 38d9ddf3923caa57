package reduce

import (
	"fmt"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
)

type sumKind int

const (
	sumInt sumKind = iota + 1
	sumString
)

func summable(v any) (sumKind, bool) {
	switch v.(type) {
	case int, int32, int64, ir.IRInt:
		return sumInt, true
	case string, ir.IRString:
		return sumString, true
	}
	return 0, false
}

// add is the Sum accumulator. The result has the accumulator's type.
func add(acc, v any) any {
	ka, _ := summable(acc)
	kv, ok := summable(v)
	if !ok || ka != kv {
		panic(&engine.InvariantError{
			Code:    engine.ErrCodeNotSummable,
			Message: fmt.Sprintf("cannot add %T to %T", v, acc),
		})
	}

	if ka == sumString {
		s := toString(acc) + toString(v)
		if _, ok := acc.(ir.IRString); ok {
			return ir.IRString(s)
		}
		return s
	}

	n := toInt64(acc) + toInt64(v)
	switch acc.(type) {
	case int:
		return int(n)
	case int32:
		return int32(n)
	case ir.IRInt:
		return ir.IRInt(n)
	default:
		return n
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case ir.IRInt:
		return int64(n)
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case ir.IRString:
		return string(s)
	}
	return ""
}
