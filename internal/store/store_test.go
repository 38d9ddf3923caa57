package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/roach88/requex/internal/ir"
)

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	appendAll(t, s, "s1", inc(1), inc(2))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	records, err := s.ReadStream(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ReadStream() failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after reopen, want 2", len(records))
	}
}

func TestOpen_MemoryJournalsArePrivate(t *testing.T) {
	a, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer a.Close()
	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer b.Close()

	appendAll(t, a, "s1", inc(1))

	streams, err := b.Streams(context.Background())
	if err != nil {
		t.Fatalf("Streams() failed: %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("second in-memory journal sees streams %v", streams)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db")); err == nil {
		t.Error("Open() should fail when the parent directory does not exist")
	}
}

func TestClose_Twice(t *testing.T) {
	s := createTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	// database/sql tolerates closing a closed DB
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	var zero Store
	if err := zero.Close(); err != nil {
		t.Errorf("Close() on an unopened store failed: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatalf("pragma(%s) failed: %v", name, err)
		}
		if got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
}

func TestSchema_Layout(t *testing.T) {
	s := createTestStore(t)

	tables := map[string][]string{
		"events":      {"id", "seq", "stream", "type", "payload"},
		"checkpoints": {"id", "stream", "query", "graph_hash", "seq", "state_hash", "state"},
	}
	for table, want := range tables {
		got := tableColumns(t, s.db, table)
		for _, col := range want {
			if !slices.Contains(got, col) {
				t.Errorf("%s table missing column %q (have %v)", table, col, got)
			}
		}
	}

	for table, index := range map[string]string{
		"events":      "idx_events_stream_seq",
		"checkpoints": "idx_checkpoints_lookup",
	} {
		if !slices.Contains(tableIndexes(t, s.db, table), index) {
			t.Errorf("%s table missing index %s", table, index)
		}
	}
	if !slices.Contains(tableIndexes(t, s.db, "events"), "idx_events_type_seq") {
		t.Error("events table missing index idx_events_type_seq")
	}
}

func TestSchema_EventConstraints(t *testing.T) {
	s := createTestStore(t)

	insert := `INSERT INTO events (id, seq, stream, type, payload) VALUES (?, ?, 's', ?, '{}')`
	if _, err := s.db.Exec(insert, "a", 1, "t"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert, "b", 1, "t"); err == nil {
		t.Error("expected UNIQUE violation for a second event at seq 1")
	}
	if _, err := s.db.Exec(insert, "a", 2, "t"); err == nil {
		t.Error("expected PRIMARY KEY violation for a reused id")
	}
	if _, err := s.db.Exec(insert, "c", 3, nil); err == nil {
		t.Error("expected NOT NULL violation for a missing type")
	}
}

func TestMigrate_FreshJournalIsCurrent(t *testing.T) {
	s := createTestStore(t)

	version, err := s.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Version() = %d, want %d", version, SchemaVersion)
	}
}

func TestMigrate_UpgradesOldJournal(t *testing.T) {
	for _, from := range []int{0, 1} {
		path := filepath.Join(t.TempDir(), "old.db")
		seedOldJournal(t, path, from)

		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		s, err := Open(path, WithLogger(logger))
		if err != nil {
			t.Fatalf("from v%d: Open() failed: %v", from, err)
		}

		version, err := s.Version(context.Background())
		if err != nil {
			t.Fatalf("from v%d: Version() failed: %v", from, err)
		}
		if version != SchemaVersion {
			t.Errorf("from v%d: Version() = %d, want %d", from, version, SchemaVersion)
		}

		for _, m := range migrations {
			logged := strings.Contains(logs.String(), "migration=\""+m.name+"\"")
			if applied := m.version > from; logged != applied {
				t.Errorf("from v%d: migration v%d logged=%v, want %v", from, m.version, logged, applied)
			}
		}

		records, err := s.ReadStream(context.Background(), "s1")
		if err != nil {
			t.Fatalf("from v%d: ReadStream() failed: %v", from, err)
		}
		if len(records) != 1 || records[0].Event.Type != "inc" {
			t.Errorf("from v%d: journal contents changed by migration: %v", from, records)
		}
		s.Close()
	}
}

func TestMigrate_ReopenIsQuiet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err = Open(path, WithLogger(logger), WithLogger(nil))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if strings.Contains(logs.String(), "journal migrated") {
		t.Errorf("reopening a current journal migrated again:\n%s", logs.String())
	}
}

// seedOldJournal writes a journal as an older requex left it: the base
// tables, one event and user_version set to version.
func seedOldJournal(t *testing.T, path string, version int) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	defer db.Close()

	payload, err := ir.MarshalCanonical(ir.Obj(ir.O("by", ir.IRInt(1))))
	if err != nil {
		t.Fatalf("MarshalCanonical() failed: %v", err)
	}
	stmts := []string{
		schemaSQL,
		`DROP INDEX IF EXISTS idx_checkpoints_lookup`,
		`DROP INDEX IF EXISTS idx_events_type_seq`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding failed: %v", err)
		}
	}
	if _, err := db.Exec(`INSERT INTO events (id, seq, stream, type, payload) VALUES ('old', 1, 's1', 'inc', ?)`, string(payload)); err != nil {
		t.Fatalf("seeding event failed: %v", err)
	}
	for _, m := range migrations {
		if m.version <= version {
			if _, err := db.Exec(m.stmt); err != nil {
				t.Fatalf("seeding migration v%d failed: %v", m.version, err)
			}
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		t.Fatalf("setting user_version failed: %v", err)
	}
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		t.Fatalf("table info for %q failed: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column failed: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
	if err != nil {
		t.Fatalf("indexes for %q failed: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index failed: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
