package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for a future algorithm migration.
const (
	DomainEvent = "requex/event/v1"
	DomainState = "requex/state/v1"
	DomainGraph = "requex/graph/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of a journaled event. The same
// event appended twice at the same position in the same stream gets the same
// ID, which makes appends idempotent.
func EventID(stream string, ev Event, seq int64) (string, error) {
	obj := IRObject{
		"stream":  IRString(stream),
		"type":    IRString(ev.Type),
		"payload": ev.payloadOrEmpty(),
		"seq":     IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MarshalState renders a derived state as canonical JSON. Unlike
// MarshalCanonical it writes null for values that have not emitted yet: a
// nil state, or a nil inside it such as an unseeded collection item.
// Events in a state render as {"payload":...,"type":...}.
func MarshalState(state any) ([]byte, error) {
	iv, err := StateValue(state)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, iv, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StateHash hashes the canonical rendering of a derived state. Replays of
// the same journal through the same graph must produce equal hashes.
func StateHash(state any) (string, error) {
	canonical, err := MarshalState(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// GraphHash identifies a compiled graph definition, so checkpoints can be
// tied to the graph that produced them.
func GraphHash(q QuerySpec) (string, error) {
	data, err := q.canonicalJSON()
	if err != nil {
		return "", fmt.Errorf("GraphHash: %w", err)
	}
	return hashWithDomain(DomainGraph, data), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(stream string, ev Event, seq int64) string {
	id, err := EventID(stream, ev, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// MustStateHash is like StateHash but panics on error.
func MustStateHash(state any) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}
