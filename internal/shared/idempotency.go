package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyStore records processed Idempotency-Key values. Keys are scoped
// per module, so sales and any later writer may reuse the same client key.
type IdempotencyStore struct {
	db  execer
	now func() time.Time
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewIdempotencyStore constructs the store on a pool or transaction.
func NewIdempotencyStore(db execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// ErrIdempotencyConflict indicates the key was already used in the module.
var ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already processed", ErrConflict)

const maxIdempotencyKeyLen = 200

func idempotencyScope(key, module string) (string, string, error) {
	key = strings.TrimSpace(key)
	module = strings.TrimSpace(module)
	switch {
	case key == "":
		return "", "", ValidationError("idempotency key required")
	case len(key) > maxIdempotencyKeyLen:
		return "", "", ValidationError("idempotency key longer than %d characters", maxIdempotencyKeyLen)
	case module == "":
		return "", "", errors.New("idempotency module required")
	}
	return key, module, nil
}

// CheckAndInsert reserves (module, key) or returns ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	key, module, err := idempotencyScope(key, module)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO idempotency_keys (module, key, created_at) VALUES ($1, $2, $3)`, module, key, s.now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s/%s", ErrIdempotencyConflict, module, key)
		}
		return err
	}
	return nil
}

// Release removes (module, key) so a failed request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key, module string) error {
	if s == nil || s.db == nil {
		return nil
	}
	key, module, err := idempotencyScope(key, module)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE module = $1 AND key = $2`, module, key)
	return err
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		return 0, ValidationError("idempotency retention must be positive")
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
