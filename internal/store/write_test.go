package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/requex/internal/ir"
)

func TestAppendEvent_AssignsSeqAndID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r1, err := s.AppendEvent(ctx, "stream-a", inc(1))
	if err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	r2, err := s.AppendEvent(ctx, "stream-b", inc(1))
	if err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}

	if r1.Seq != 1 || r2.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2 (seq is per journal, not per stream)", r1.Seq, r2.Seq)
	}
	if r1.ID != ir.MustEventID("stream-a", inc(1), 1) {
		t.Errorf("ID = %s, want content address", r1.ID)
	}
	if r1.ID == r2.ID {
		t.Error("same event on different streams must get different IDs")
	}
}

func TestAppendEvent_RejectsEmptyFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendEvent(ctx, "", inc(1)); err == nil {
		t.Error("expected error for empty stream")
	}
	if _, err := s.AppendEvent(ctx, "s", ir.Event{}); err == nil {
		t.Error("expected error for empty event type")
	}

	last, err := s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if last != 0 {
		t.Errorf("LastSeq() = %d after rejected appends, want 0", last)
	}
}

func TestAppendEvent_EmptyArrayPayload(t *testing.T) {
	s := createTestStore(t)
	ev := ir.Event{Type: "tags", Payload: ir.IRObject{"x": ir.IRArray{}}}
	if _, err := s.AppendEvent(context.Background(), "s", ev); err != nil {
		t.Fatalf("empty arrays are valid payload values: %v", err)
	}
}

func TestWriteRecord_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := ir.Record{Seq: 7, Stream: "s", Event: inc(3)}
	rec.ID = ir.MustEventID(rec.Stream, rec.Event, rec.Seq)

	inserted, err := s.WriteRecord(ctx, rec)
	if err != nil {
		t.Fatalf("WriteRecord() failed: %v", err)
	}
	if !inserted {
		t.Error("first write should insert")
	}

	inserted, err = s.WriteRecord(ctx, rec)
	if err != nil {
		t.Fatalf("second WriteRecord() failed: %v", err)
	}
	if inserted {
		t.Error("second write of the same record should be a no-op")
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("events = %d, want 1", count)
	}

	next, err := s.AppendEvent(ctx, "s", inc(1))
	if err != nil {
		t.Fatalf("AppendEvent() failed: %v", err)
	}
	if next.Seq != 8 {
		t.Errorf("next seq = %d, want 8", next.Seq)
	}
}

func TestWriteRecord_RejectsForgedID(t *testing.T) {
	s := createTestStore(t)
	rec := ir.Record{ID: "forged", Seq: 1, Stream: "s", Event: inc(1)}

	_, err := s.WriteRecord(context.Background(), rec)
	if !errors.Is(err, ErrIDMismatch) {
		t.Errorf("WriteRecord() error = %v, want ErrIDMismatch", err)
	}
}

func TestWriteRecord_SeqTakenByOtherEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	appendAll(t, s, "s", inc(1))

	rec := ir.Record{Seq: 1, Stream: "s", Event: inc(2)}
	rec.ID = ir.MustEventID(rec.Stream, rec.Event, rec.Seq)
	if _, err := s.WriteRecord(ctx, rec); err == nil {
		t.Error("expected error when seq is already taken")
	}
}

func TestWriteCheckpoint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cp, err := NewCheckpoint("s", "counter", "graph-1", 3, ir.IRInt(6))
	if err != nil {
		t.Fatalf("NewCheckpoint() failed: %v", err)
	}
	if cp.State != "6" {
		t.Errorf("State = %q, want %q", cp.State, "6")
	}
	if cp.StateHash != ir.MustStateHash(ir.IRInt(6)) {
		t.Error("StateHash must be the canonical state hash")
	}

	if err := s.WriteCheckpoint(ctx, cp); err != nil {
		t.Fatalf("WriteCheckpoint() failed: %v", err)
	}

	// Same key, different content: first write wins.
	other := cp
	other.State = "7"
	if err := s.WriteCheckpoint(ctx, other); err != nil {
		t.Fatalf("second WriteCheckpoint() failed: %v", err)
	}

	got, ok, err := s.LatestCheckpoint(ctx, "s", "counter")
	if err != nil {
		t.Fatalf("LatestCheckpoint() failed: %v", err)
	}
	if !ok {
		t.Fatal("checkpoint not found")
	}
	if got != cp {
		t.Errorf("LatestCheckpoint() = %+v, want %+v", got, cp)
	}
}

func TestNewCheckpoint_RejectsFloats(t *testing.T) {
	if _, err := NewCheckpoint("s", "q", "g", 1, map[string]any{"x": 0.5}); err == nil {
		t.Error("expected error for float state")
	}
}
