package ir

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Sequence is implemented by ordered containers that are not Go slices,
// such as the persistent list a linked-list collection publishes.
type Sequence interface {
	Values() []any
}

// FromNative converts a derived state value into an IRValue.
//
// Accepted inputs are IRValues, Go strings/bools/integers, json.Number
// integers, []any, map[string]any, map[any]any (keys rendered with KeyString),
// Sequence implementations, and Events, which become {"type","payload"}
// objects. Null and floats are rejected.
func FromNative(v any) (IRValue, error) {
	return fromNative(v, false)
}

// StateValue is FromNative for derived states. A nil anywhere in the state,
// such as a collection item that has not emitted yet, becomes IRNull.
func StateValue(v any) (IRValue, error) {
	return fromNative(v, true)
}

func fromNative(v any, nulls bool) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		if nulls {
			return IRNull{}, nil
		}
		return nil, fmt.Errorf("null is forbidden in IR")
	case IRNull:
		if nulls {
			return val, nil
		}
		return nil, fmt.Errorf("null is forbidden in IR")
	case Event:
		return IRObject{"type": IRString(val.Type), "payload": val.payloadOrEmpty()}, nil
	case IRObject:
		return val, nil
	case IRArray:
		return val, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int8:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint8:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
	case []any:
		return arrayFromNative(val, nulls)
	case Sequence:
		return arrayFromNative(val.Values(), nulls)
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := fromNative(elem, nulls)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	case map[any]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			ks := KeyString(k)
			if _, dup := obj[ks]; dup {
				return nil, fmt.Errorf("object key %q rendered twice", ks)
			}
			irElem, err := fromNative(elem, nulls)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", ks, err)
			}
			obj[ks] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func arrayFromNative(xs []any, nulls bool) (IRArray, error) {
	arr := make(IRArray, len(xs))
	for i, elem := range xs {
		irElem, err := fromNative(elem, nulls)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		arr[i] = irElem
	}
	return arr, nil
}

// KeyString renders a collection key as an object key.
func KeyString(k any) string {
	switch kv := k.(type) {
	case string:
		return kv
	case IRString:
		return string(kv)
	default:
		return fmt.Sprint(k)
	}
}

// Lookup reads a dotted path from an event payload, an IRObject, or a
// map[string]any produced by a structure.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case Event:
			val, ok := c.Payload[seg]
			if !ok {
				return nil, false
			}
			cur = val
		case IRObject:
			val, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = val
		case map[string]any:
			val, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = val
		default:
			return nil, false
		}
	}
	return cur, true
}

// Equal compares two values after normalizing both to IR, so IRInt(1)
// equals int(1). Values that cannot be represented are never equal.
func Equal(a, b any) bool {
	ia, err := FromNative(a)
	if err != nil {
		return false
	}
	ib, err := FromNative(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ia, ib)
}
