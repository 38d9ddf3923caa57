package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/requex/internal/ir"
)

// ErrIDMismatch is returned when a record's ID is not the content address of
// its stream, event and seq.
var ErrIDMismatch = errors.New("record id does not match its content")

// AppendEvent journals ev on stream at the next journal seq and returns the
// stored record. The seq is allocated and the row written in one
// transaction, so concurrent appenders on the same database never share a
// seq.
func (s *Store) AppendEvent(ctx context.Context, stream string, ev ir.Event) (ir.Record, error) {
	if stream == "" {
		return ir.Record{}, fmt.Errorf("append event: empty stream token")
	}
	if ev.Type == "" {
		return ir.Record{}, fmt.Errorf("append event: empty event type")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Record{}, fmt.Errorf("append event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&last); err != nil {
		return ir.Record{}, fmt.Errorf("append event: read seq: %w", err)
	}

	rec := ir.Record{Seq: last.Int64 + 1, Stream: stream, Event: ev}
	rec.ID, err = ir.EventID(stream, ev, rec.Seq)
	if err != nil {
		return ir.Record{}, fmt.Errorf("append event: %w", err)
	}

	if _, err := insertRecord(ctx, tx, rec); err != nil {
		return ir.Record{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Record{}, fmt.Errorf("append event: commit: %w", err)
	}
	return rec, nil
}

// WriteRecord inserts a fully formed record, for example one exported from
// another journal. Uses ON CONFLICT(id) DO NOTHING for idempotency: writing
// the same record twice reports inserted=false. A record whose seq is taken
// by a different event is an error.
func (s *Store) WriteRecord(ctx context.Context, rec ir.Record) (inserted bool, err error) {
	want, err := ir.EventID(rec.Stream, rec.Event, rec.Seq)
	if err != nil {
		return false, fmt.Errorf("write record: %w", err)
	}
	if rec.ID != want {
		return false, fmt.Errorf("write record %s: %w", rec.ID, ErrIDMismatch)
	}

	inserted, err = insertRecord(ctx, s.db, rec)
	if err != nil {
		return false, fmt.Errorf("write record: %w", err)
	}
	return inserted, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec ir.Record) (bool, error) {
	payload, err := marshalPayload(rec.Event.Payload)
	if err != nil {
		return false, err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO events
		(id, seq, stream, type, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Seq,
		rec.Stream,
		rec.Event.Type,
		payload,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event: rows affected: %w", err)
	}
	return rows > 0, nil
}

// NewCheckpoint renders state as a checkpoint of query on stream at seq.
func NewCheckpoint(stream, query, graphHash string, seq int64, state any) (ir.Checkpoint, error) {
	text, hash, err := marshalState(state)
	if err != nil {
		return ir.Checkpoint{}, fmt.Errorf("checkpoint %s: %w", query, err)
	}
	return ir.Checkpoint{
		Stream:    stream,
		Query:     query,
		GraphHash: graphHash,
		Seq:       seq,
		StateHash: hash,
		State:     text,
	}, nil
}

// WriteCheckpoint stores cp. A checkpoint for the same (stream, query,
// graph, seq) is written once; later writes are ignored.
func (s *Store) WriteCheckpoint(ctx context.Context, cp ir.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(stream, query, graph_hash, seq, state_hash, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(stream, query, graph_hash, seq) DO NOTHING
	`,
		cp.Stream,
		cp.Query,
		cp.GraphHash,
		cp.Seq,
		cp.StateHash,
		cp.State,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
