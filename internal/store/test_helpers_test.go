package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/requex/internal/ir"
)

// createTestStore opens a fresh journal in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// appendAll journals events on stream and returns the records.
func appendAll(t *testing.T, s *Store, stream string, events ...ir.Event) []ir.Record {
	t.Helper()
	records := make([]ir.Record, 0, len(events))
	for _, ev := range events {
		rec, err := s.AppendEvent(context.Background(), stream, ev)
		if err != nil {
			t.Fatalf("AppendEvent(%s) failed: %v", ev.Type, err)
		}
		records = append(records, rec)
	}
	return records
}

func inc(by int64) ir.Event {
	return ir.NewEvent("inc", ir.O("by", ir.IRInt(by)))
}
