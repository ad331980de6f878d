package sales

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

// Repository persists sales in PostgreSQL.
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

const saleColumns = `id, customer_id, lot_id, bags_sold, bag_weight, rate_per_bag, total_amount, quality_grade,
delivery_number, item_name, is_mix_order, mix_order_id, mix_order_manifest, notes, created_by, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var (
		sale     Sale
		manifest []byte
	)
	err := row.Scan(&sale.ID, &sale.CustomerID, &sale.LotID, &sale.BagsSold, &sale.BagWeight, &sale.RatePerBag,
		&sale.TotalAmount, &sale.QualityGrade, &sale.DeliveryNumber, &sale.ItemName, &sale.IsMixOrder,
		&sale.MixOrderID, &manifest, &sale.Notes, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		return Sale{}, err
	}
	if len(manifest) > 0 {
		if err := json.Unmarshal(manifest, &sale.Manifest); err != nil {
			return Sale{}, fmt.Errorf("decode manifest: %w", err)
		}
	}
	return sale, nil
}

func (t *txRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := t.q.QueryRow(ctx, `SELECT id, name FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	err := t.q.QueryRow(ctx, `INSERT INTO sales (customer_id, lot_id, bags_sold, bag_weight, rate_per_bag, total_amount,
quality_grade, delivery_number, item_name, is_mix_order, mix_order_id, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
		sale.CustomerID, sale.LotID, sale.BagsSold, sale.BagWeight, sale.RatePerBag, sale.TotalAmount,
		sale.QualityGrade, sale.DeliveryNumber, sale.ItemName, sale.IsMixOrder, sale.MixOrderID, sale.Notes,
		sale.CreatedBy, sale.CreatedAt,
	).Scan(&sale.ID)
	return sale, err
}

func (t *txRepo) SetManifest(ctx context.Context, saleIDs []int64, manifest []ManifestEntry) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE sales SET mix_order_manifest = $2 WHERE id = ANY($1)`, saleIDs, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(saleIDs)) {
		return fmt.Errorf("manifest updated %d of %d sales", tag.RowsAffected(), len(saleIDs))
	}
	return nil
}

// GetSale loads a sale.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	return sale, err
}

// ListSalesByLot lists sales of a lot.
func (r *Repository) ListSalesByLot(ctx context.Context, lotID int64) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE lot_id = $1 ORDER BY id`, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
