package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
)

// ErrCheckpointMismatch is returned by Verify when replaying the journal does
// not reproduce a stored checkpoint.
var ErrCheckpointMismatch = errors.New("replayed state does not match checkpoint")

// Replay dispatches every record of stream, in journal order, through a
// fresh store over q.
func (s *Store) Replay(ctx context.Context, q *engine.Query, stream string, opts ...engine.StoreOption) (*engine.Store, []ir.Record, error) {
	records, err := s.ReadStream(ctx, stream)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", stream, err)
	}
	st, err := engine.Replay(q, Events(records), opts...)
	if err != nil {
		return nil, records, fmt.Errorf("replay %s: %w", stream, err)
	}
	return st, records, nil
}

// VerifyResult reports a determinism check of one query over one stream.
type VerifyResult struct {
	Stream    string
	Query     string
	Records   int
	LastSeq   int64
	StateHash string

	// Checkpoint is the latest stored checkpoint for (stream, query) with a
	// matching graph hash, nil when there is none.
	Checkpoint *ir.Checkpoint
}

// Verify replays stream through q twice and compares the state hashes. When
// a checkpoint of the same graph exists, the journal prefix up to its seq is
// replayed again and must reproduce the checkpointed hash.
func (s *Store) Verify(ctx context.Context, name, graphHash string, q *engine.Query, stream string) (VerifyResult, error) {
	res := VerifyResult{Stream: stream, Query: name}

	records, err := s.ReadStream(ctx, stream)
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}
	res.Records = len(records)
	if n := len(records); n > 0 {
		res.LastSeq = records[n-1].Seq
	}

	res.StateHash, err = engine.VerifyDeterminism(q, Events(records))
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}

	cp, ok, err := s.GraphCheckpoint(ctx, stream, name, graphHash)
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}
	if !ok {
		return res, nil
	}
	res.Checkpoint = &cp

	prefix, err := s.ReadStreamUntil(ctx, stream, cp.Seq)
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}
	st, err := engine.Replay(q, Events(prefix))
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}
	h, err := ir.StateHash(st.State())
	if err != nil {
		return res, fmt.Errorf("verify %s: %w", name, err)
	}
	if h != cp.StateHash {
		return res, fmt.Errorf("verify %s at seq %d: %w (%s != %s)", name, cp.Seq, ErrCheckpointMismatch, h, cp.StateHash)
	}
	return res, nil
}
