package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Counter names.
const (
	CounterTruckArrivalEntry = "truck_arrival_entry"
)

// NextSequence increments and returns the named counter. Run it on the same
// transaction as the insert it numbers so a rollback releases the number.
func NextSequence(ctx context.Context, q Querier, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("counter name required")
	}
	var seq int64
	err := q.QueryRow(ctx, `INSERT INTO counters (name, seq) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
RETURNING seq`, name).Scan(&seq)
	return seq, err
}
