package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/laadstock/internal/platform/db"
	"github.com/odyssey-erp/laadstock/internal/shared"
)

// Repository persists deliveries and lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, LotTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// TxRepository implements LotTx on a pgx transaction. Other modules embed it
// to share the transaction.
type TxRepository struct {
	q shared.Querier
}

// NewTxRepository binds the lot queries to tx.
func NewTxRepository(tx pgx.Tx) *TxRepository {
	return &TxRepository{q: tx}
}

const lotColumns = `l.id, l.delivery_id, l.item_id, l.total_bags, l.remaining_bags, l.quality_grade,
l.weight_per_bag, l.origin_weight, l.destination_weight, l.rate_per_bag, l.total_amount, l.created_at, l.updated_at`

const lotViewSelect = `SELECT ` + lotColumns + `,
i.name, i.quality, i.bag_weight, d.delivery_number, COALESCE(s.name, '')
FROM lots l
JOIN items i ON i.id = l.item_id
JOIN deliveries d ON d.id = l.delivery_id
LEFT JOIN suppliers s ON s.id = d.supplier_id`

const deliverySelect = `SELECT d.id, d.delivery_number, d.supplier_id, COALESCE(s.name, ''), d.vehicle_id, d.arrival_date, d.notes, d.created_at
FROM deliveries d
LEFT JOIN suppliers s ON s.id = d.supplier_id`

func scanLot(row pgx.Row, extra ...any) (Lot, error) {
	var lot Lot
	dest := []any{
		&lot.ID, &lot.DeliveryID, &lot.ItemID, &lot.TotalBags, &lot.RemainingBags, &lot.QualityGrade,
		&lot.WeightPerBag, &lot.OriginWeight, &lot.DestinationWeight, &lot.RatePerBag, &lot.TotalAmount,
		&lot.CreatedAt, &lot.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return lot, err
}

func scanLotView(row pgx.Row) (LotView, error) {
	var view LotView
	lot, err := scanLot(row, &view.ItemName, &view.ItemQuality, &view.ItemBagWeight, &view.DeliveryNumber, &view.SupplierName)
	if err != nil {
		return LotView{}, err
	}
	view.Lot = lot
	return view, nil
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.DeliveryNumber, &d.SupplierID, &d.SupplierName, &d.VehicleID, &d.ArrivalDate, &d.Notes, &d.CreatedAt)
	return d, err
}

func collectLotViews(rows pgx.Rows) ([]LotView, error) {
	defer rows.Close()
	views := []LotView{}
	for rows.Next() {
		view, err := scanLotView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func notFound(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

// ListLotViews returns every lot joined with its item and delivery.
func (r *Repository) ListLotViews(ctx context.Context) ([]LotView, error) {
	rows, err := r.pool.Query(ctx, lotViewSelect+` ORDER BY l.id`)
	if err != nil {
		return nil, err
	}
	return collectLotViews(rows)
}

// ListLots returns lots of one delivery.
func (r *Repository) ListLots(ctx context.Context, deliveryID int64) ([]LotView, error) {
	rows, err := r.pool.Query(ctx, lotViewSelect+` WHERE l.delivery_id = $1 ORDER BY l.id`, deliveryID)
	if err != nil {
		return nil, err
	}
	return collectLotViews(rows)
}

// GetLotView loads a single lot.
func (r *Repository) GetLotView(ctx context.Context, id int64) (LotView, error) {
	view, err := scanLotView(r.pool.QueryRow(ctx, lotViewSelect+` WHERE l.id = $1`, id))
	if err != nil {
		return LotView{}, notFound(err, ErrLotNotFound)
	}
	return view, nil
}

// GetDelivery loads a delivery.
func (r *Repository) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	d, err := scanDelivery(r.pool.QueryRow(ctx, deliverySelect+` WHERE d.id = $1`, id))
	if err != nil {
		return Delivery{}, notFound(err, ErrDeliveryNotFound)
	}
	return d, nil
}

// GetSupplier loads a supplier.
func (t *TxRepository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := t.q.QueryRow(ctx, `SELECT id, name FROM suppliers WHERE id = $1`, id).Scan(&s.ID, &s.Name)
	if err != nil {
		return Supplier{}, notFound(err, ErrSupplierNotFound)
	}
	return s, nil
}

// GetItem loads an item.
func (t *TxRepository) GetItem(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := t.q.QueryRow(ctx, `SELECT id, name, quality, bag_weight FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.Quality, &item.BagWeight)
	if err != nil {
		return Item{}, notFound(err, ErrItemNotFound)
	}
	return item, nil
}

// InsertDelivery stores a delivery.
func (t *TxRepository) InsertDelivery(ctx context.Context, d Delivery) (Delivery, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO deliveries (delivery_number, supplier_id, vehicle_id, arrival_date, notes, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id, created_at`, d.DeliveryNumber, d.SupplierID, d.VehicleID, d.ArrivalDate, d.Notes).Scan(&d.ID, &d.CreatedAt)
	return d, err
}

// GetDelivery loads a delivery inside the transaction.
func (t *TxRepository) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	d, err := scanDelivery(t.q.QueryRow(ctx, deliverySelect+` WHERE d.id = $1`, id))
	if err != nil {
		return Delivery{}, notFound(err, ErrDeliveryNotFound)
	}
	return d, nil
}

// InsertLot stores a lot.
func (t *TxRepository) InsertLot(ctx context.Context, lot Lot) (Lot, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO lots (delivery_id, item_id, total_bags, remaining_bags, quality_grade,
weight_per_bag, origin_weight, destination_weight, rate_per_bag, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
		lot.DeliveryID, lot.ItemID, lot.TotalBags, lot.RemainingBags, lot.QualityGrade,
		lot.WeightPerBag, lot.OriginWeight, lot.DestinationWeight, lot.RatePerBag, lot.TotalAmount,
		lot.CreatedAt, lot.UpdatedAt,
	).Scan(&lot.ID)
	return lot, err
}

// GetLotViewForUpdate loads and row-locks a lot.
func (t *TxRepository) GetLotViewForUpdate(ctx context.Context, id int64) (LotView, error) {
	view, err := scanLotView(t.q.QueryRow(ctx, lotViewSelect+` WHERE l.id = $1 FOR UPDATE OF l`, id))
	if err != nil {
		return LotView{}, notFound(err, ErrLotNotFound)
	}
	return view, nil
}

// FindLot returns the oldest lot for (delivery, item, quality grade), row-locked.
func (t *TxRepository) FindLot(ctx context.Context, deliveryID, itemID int64, qualityGrade string) (Lot, error) {
	lot, err := scanLot(t.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots l
WHERE l.delivery_id = $1 AND l.item_id = $2 AND l.quality_grade = $3
ORDER BY l.id LIMIT 1 FOR UPDATE`, deliveryID, itemID, qualityGrade))
	if err != nil {
		return Lot{}, notFound(err, ErrLotNotFound)
	}
	return lot, nil
}

// UpdateLotTotals writes merged totals.
func (t *TxRepository) UpdateLotTotals(ctx context.Context, lot Lot) (Lot, error) {
	updated, err := scanLot(t.q.QueryRow(ctx, `UPDATE lots l SET total_bags = $2, remaining_bags = $3, weight_per_bag = $4,
total_amount = $5, updated_at = $6
WHERE l.id = $1
RETURNING `+lotColumns, lot.ID, lot.TotalBags, lot.RemainingBags, lot.WeightPerBag, lot.TotalAmount, lot.UpdatedAt))
	if err != nil {
		return Lot{}, notFound(err, ErrLotNotFound)
	}
	return updated, nil
}

// DecrementLot subtracts bags when enough remain.
func (t *TxRepository) DecrementLot(ctx context.Context, id int64, bags int) (Lot, bool, error) {
	lot, err := scanLot(t.q.QueryRow(ctx, `UPDATE lots l SET remaining_bags = l.remaining_bags - $2, updated_at = NOW()
WHERE l.id = $1 AND l.remaining_bags >= $2
RETURNING `+lotColumns, id, bags))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, false, nil
	}
	if err != nil {
		return Lot{}, false, fmt.Errorf("decrement lot: %w", err)
	}
	return lot, true, nil
}
