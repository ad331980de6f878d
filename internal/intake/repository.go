package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/laadstock/internal/platform/db"
	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
)

// Repository persists truck arrival entries. Lines are stored as a JSONB
// document on the entry row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	*stock.TxRepository
	q shared.Querier
}

// WithTx executes the callback inside a read-committed transaction shared
// with the lot ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxRepository: stock.NewTxRepository(tx), q: tx})
	})
}

const entrySelect = `SELECT e.id, e.entry_number, e.delivery_id, d.delivery_number,
COALESCE(e.vehicle_number, ''), COALESCE(e.driver_name, ''),
e.gross_weight, e.tare_weight, e.arrived_at, COALESCE(e.notes, ''), e.lines, COALESCE(e.created_by, 0), e.created_at
FROM truck_arrival_entries e
JOIN deliveries d ON d.id = e.delivery_id`

func scanEntry(row pgx.Row) (TruckArrivalEntry, error) {
	var (
		e   TruckArrivalEntry
		raw []byte
	)
	err := row.Scan(&e.ID, &e.EntryNumber, &e.DeliveryID, &e.DeliveryNumber, &e.VehicleNumber, &e.DriverName,
		&e.GrossWeight, &e.TareWeight, &e.ArrivedAt, &e.Notes, &raw, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return TruckArrivalEntry{}, err
	}
	if err := json.Unmarshal(raw, &e.Lines); err != nil {
		return TruckArrivalEntry{}, fmt.Errorf("decode entry lines: %w", err)
	}
	return e, nil
}

func (t *txRepo) NextEntryNumber(ctx context.Context) (int64, error) {
	return shared.NextSequence(ctx, t.q, shared.CounterTruckArrivalEntry)
}

func (t *txRepo) ListPostedLines(ctx context.Context, deliveryID int64) ([]EntryLine, error) {
	rows, err := t.q.Query(ctx, `SELECT lines FROM truck_arrival_entries WHERE delivery_id = $1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posted []EntryLine
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var lines []EntryLine
		if err := json.Unmarshal(raw, &lines); err != nil {
			return nil, fmt.Errorf("decode entry lines: %w", err)
		}
		for _, line := range lines {
			if line.Status.Posted() {
				posted = append(posted, line)
			}
		}
	}
	return posted, rows.Err()
}

func (t *txRepo) InsertEntry(ctx context.Context, e TruckArrivalEntry) (TruckArrivalEntry, error) {
	raw, err := json.Marshal(e.Lines)
	if err != nil {
		return TruckArrivalEntry{}, err
	}
	err = t.q.QueryRow(ctx, `INSERT INTO truck_arrival_entries (entry_number, delivery_id, vehicle_number, driver_name,
gross_weight, tare_weight, arrived_at, notes, lines, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		e.EntryNumber, e.DeliveryID, e.VehicleNumber, e.DriverName, e.GrossWeight, e.TareWeight,
		e.ArrivedAt, e.Notes, raw, e.CreatedBy, e.CreatedAt,
	).Scan(&e.ID)
	return e, err
}

// GetEntry loads an entry.
func (r *Repository) GetEntry(ctx context.Context, id int64) (TruckArrivalEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, entrySelect+` WHERE e.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return TruckArrivalEntry{}, ErrEntryNotFound
	}
	return e, err
}

// ListEntries lists entries of a delivery.
func (r *Repository) ListEntries(ctx context.Context, deliveryID int64) ([]TruckArrivalEntry, error) {
	rows, err := r.pool.Query(ctx, entrySelect+` WHERE e.delivery_id = $1 ORDER BY e.id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []TruckArrivalEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListSkippedLines flattens DUPLICATE_SKIPPED lines of every entry.
func (r *Repository) ListSkippedLines(ctx context.Context) ([]stock.SkippedLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.delivery_id, d.delivery_number, COALESCE(s.name, ''),
(l->>'item_id')::bigint, COALESCE(NULLIF(l->>'item_name', ''), i.name, ''), COALESCE(i.quality, ''), i.bag_weight,
COALESCE(l->>'quality_grade', ''), (l->>'total_bags')::int, (l->>'weight_per_bag')::double precision,
(l->>'lot_id')::bigint
FROM truck_arrival_entries e
CROSS JOIN LATERAL jsonb_array_elements(e.lines) AS l
JOIN deliveries d ON d.id = e.delivery_id
LEFT JOIN suppliers s ON s.id = d.supplier_id
LEFT JOIN items i ON i.id = (l->>'item_id')::bigint
WHERE l->>'status' = $1
ORDER BY e.id`, string(OutcomeDuplicateSkipped))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []stock.SkippedLine{}
	for rows.Next() {
		var line stock.SkippedLine
		if err := rows.Scan(&line.EntryID, &line.DeliveryID, &line.DeliveryNumber, &line.SupplierName,
			&line.ItemID, &line.ItemName, &line.ItemQuality, &line.ItemBagWeight,
			&line.QualityGrade, &line.Bags, &line.WeightPerBag, &line.LotID); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
