package store

import (
	"context"
	"fmt"

	"github.com/roach88/requex/internal/eventq"
	"github.com/roach88/requex/internal/eventsql"
	"github.com/roach88/requex/internal/ir"
)

// Select reads the records matching sel in seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Select(ctx context.Context, sel eventq.Select) ([]ir.Record, error) {
	query, params, err := eventsql.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	return s.readRecords(ctx, query, params...)
}
