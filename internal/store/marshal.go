package store

import (
	"fmt"

	"github.com/roach88/requex/internal/ir"
)

// marshalPayload converts an event payload to canonical JSON TEXT for
// storage. A nil payload is stored as "{}".
func marshalPayload(payload ir.IRObject) (string, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to IRObject. Large integers
// survive the round trip (json.Number decoding in ir).
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	obj, err := ir.UnmarshalPayload([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// marshalState renders a derived state and its hash.
func marshalState(state any) (text, hash string, err error) {
	data, err := ir.MarshalState(state)
	if err != nil {
		return "", "", fmt.Errorf("marshal state: %w", err)
	}
	hash, err = ir.StateHash(state)
	if err != nil {
		return "", "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), hash, nil
}
