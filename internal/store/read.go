package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/requex/internal/ir"
)

// ReadStream returns every record of stream with deterministic ordering:
// ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the stream has no records.
func (s *Store) ReadStream(ctx context.Context, stream string) ([]ir.Record, error) {
	return s.readRecords(ctx, `
		SELECT id, seq, stream, type, payload
		FROM events
		WHERE stream = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, stream)
}

// ReadStreamUntil is ReadStream restricted to seq <= until.
func (s *Store) ReadStreamUntil(ctx context.Context, stream string, until int64) ([]ir.Record, error) {
	return s.readRecords(ctx, `
		SELECT id, seq, stream, type, payload
		FROM events
		WHERE stream = ? AND seq <= ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, stream, until)
}

// ReadAll returns every record in the journal, across streams.
func (s *Store) ReadAll(ctx context.Context) ([]ir.Record, error) {
	return s.readRecords(ctx, `
		SELECT id, seq, stream, type, payload
		FROM events
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
}

// ReadRecord retrieves a single record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRecord(ctx context.Context, id string) (ir.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, stream, type, payload
		FROM events
		WHERE id = ?
	`, id)
	return scanRecord(row)
}

// LastSeq returns the highest seq in the journal, 0 when it is empty.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return last.Int64, nil
}

// Streams lists the stream tokens present in the journal, sorted.
func (s *Store) Streams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT stream FROM events ORDER BY stream COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	streams := []string{}
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, stream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

// LatestCheckpoint returns the checkpoint with the highest seq for query on
// stream. ok is false when none exists.
func (s *Store) LatestCheckpoint(ctx context.Context, stream, query string) (ir.Checkpoint, bool, error) {
	return s.queryCheckpoint(ctx, `
		SELECT stream, query, graph_hash, seq, state_hash, state
		FROM checkpoints
		WHERE stream = ? AND query = ?
		ORDER BY seq DESC, id DESC
		LIMIT 1
	`, stream, query)
}

// GraphCheckpoint is LatestCheckpoint restricted to checkpoints written by
// the graph with graphHash.
func (s *Store) GraphCheckpoint(ctx context.Context, stream, query, graphHash string) (ir.Checkpoint, bool, error) {
	return s.queryCheckpoint(ctx, `
		SELECT stream, query, graph_hash, seq, state_hash, state
		FROM checkpoints
		WHERE stream = ? AND query = ? AND graph_hash = ?
		ORDER BY seq DESC, id DESC
		LIMIT 1
	`, stream, query, graphHash)
}

func (s *Store) queryCheckpoint(ctx context.Context, query string, args ...any) (cp ir.Checkpoint, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&cp.Stream, &cp.Query, &cp.GraphHash, &cp.Seq, &cp.StateHash, &cp.State)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Checkpoint{}, false, nil
	}
	if err != nil {
		return ir.Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, true, nil
}

// Events strips journal metadata from records.
func Events(records []ir.Record) []ir.Event {
	events := make([]ir.Event, len(records))
	for i, rec := range records {
		events[i] = rec.Event
	}
	return events
}

func (s *Store) readRecords(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row into a Record. sql.ErrNoRows is returned unwrapped
// so callers can test for it.
func scanRecord(row scanner) (ir.Record, error) {
	var rec ir.Record
	var payload string
	if err := row.Scan(&rec.ID, &rec.Seq, &rec.Stream, &rec.Event.Type, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Record{}, err
		}
		return ir.Record{}, fmt.Errorf("scan event: %w", err)
	}

	obj, err := unmarshalPayload(payload)
	if err != nil {
		return ir.Record{}, fmt.Errorf("event %s: %w", rec.ID, err)
	}
	rec.Event.Payload = obj
	return rec, nil
}
