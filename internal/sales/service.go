package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
)

// TxRepository exposes transactional operations used by service. Lot
// mutations share the same transaction as the sale rows.
type TxRepository interface {
	stock.LotTx
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	SetManifest(ctx context.Context, saleIDs []int64, manifest []ManifestEntry) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSalesByLot(ctx context.Context, lotID int64) ([]Sale, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// StockInvalidator refreshes the combined stock view after a commit.
type StockInvalidator interface {
	Invalidate(ctx context.Context)
}

// MetricsPort records sale outcomes.
type MetricsPort interface {
	ObserveSale(kind, outcome string, bags int)
}

// Outcomes reported to MetricsPort.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

const idempotencyModule = "sales"

// ErrCustomerNotFound is returned by repositories for unknown customers.
var ErrCustomerNotFound = fmt.Errorf("%w: customer", shared.ErrNotFound)

// ErrSaleNotFound is returned by repositories for unknown sales.
var ErrSaleNotFound = fmt.Errorf("%w: sale", shared.ErrNotFound)

// Service executes stock-decrementing sales.
type Service struct {
	repo        RepositoryPort
	ledger      stock.Ledger
	stock       StockInvalidator
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	logger      *slog.Logger
	clock       func() time.Time
	newID       func() uuid.UUID
}

// Deps groups optional collaborators.
type Deps struct {
	Stock       StockInvalidator
	Audit       AuditPort
	Idempotency IdempotencyPort
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger stock.Ledger, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		stock:       deps.Stock,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
		newID:       uuid.New,
	}
}

// ============================================================================
// SIMPLE SALE
// ============================================================================

// CreateSale sells bags from one lot. The sale row and the lot decrement
// commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, req SaleRequest) (Sale, error) {
	if err := validateSale(req); err != nil {
		s.observe(KindSimple, err, 0)
		return Sale{}, err
	}
	var sale Sale
	err := s.guarded(ctx, req.IdempotencyKey, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := customerFor(ctx, tx, req.CustomerID); err != nil {
				return err
			}
			var err error
			sale, err = s.sellLine(ctx, tx, saleLine{
				customerID:   req.CustomerID,
				lotID:        req.LotID,
				bags:         req.BagsSold,
				bagWeight:    req.BagWeight,
				rate:         req.RatePerBag,
				qualityGrade: req.QualityGrade,
				notes:        req.Notes,
				actorID:      req.ActorID,
			})
			return err
		})
	})
	s.observe(KindSimple, err, req.BagsSold)
	if err != nil {
		return Sale{}, err
	}
	s.afterCommit(ctx, req.ActorID, "sale.create", strconv.FormatInt(sale.ID, 10), map[string]any{
		"lot_id":    sale.LotID,
		"bags_sold": sale.BagsSold,
	})
	return sale, nil
}

// ============================================================================
// MIX ORDER
// ============================================================================

// CreateMixOrder sells from every listed lot in order. Each line sees the
// decrements of earlier lines, so the same lot may appear twice. The first
// failing line aborts the whole order.
func (s *Service) CreateMixOrder(ctx context.Context, req MixOrderRequest) (MixOrderResult, error) {
	totalBags := 0
	for _, item := range req.Items {
		totalBags += item.BagsSold
	}
	if err := validateMixOrder(req); err != nil {
		s.observe(KindMix, err, 0)
		return MixOrderResult{}, err
	}
	result := MixOrderResult{MixOrderID: s.newID()}
	err := s.guarded(ctx, req.IdempotencyKey, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := customerFor(ctx, tx, req.CustomerID); err != nil {
				return err
			}
			sales := make([]Sale, 0, len(req.Items))
			manifest := make([]ManifestEntry, 0, len(req.Items))
			ids := make([]int64, 0, len(req.Items))
			for i, item := range req.Items {
				line := saleLine{
					customerID:   req.CustomerID,
					lotID:        item.LotID,
					bags:         item.BagsSold,
					bagWeight:    item.BagWeight,
					rate:         item.RatePerBag,
					qualityGrade: req.QualityGrade,
					notes:        req.Notes,
					actorID:      req.ActorID,
					mixOrderID:   uuid.NullUUID{UUID: result.MixOrderID, Valid: true},
				}
				if line.bagWeight == nil {
					line.bagWeight = req.BagWeight
				}
				if !line.rate.Valid {
					line.rate = req.RatePerBag
				}
				sale, err := s.sellLine(ctx, tx, line)
				if err != nil {
					return fmt.Errorf("mix order item %d: %w", i+1, err)
				}
				sales = append(sales, sale)
				ids = append(ids, sale.ID)
				manifest = append(manifest, ManifestEntry{
					SaleID:         sale.ID,
					LotID:          sale.LotID,
					BagsSold:       sale.BagsSold,
					ItemName:       sale.ItemName,
					DeliveryNumber: sale.DeliveryNumber,
				})
			}
			if err := tx.SetManifest(ctx, ids, manifest); err != nil {
				return fmt.Errorf("sales: set manifest: %w", err)
			}
			for i := range sales {
				sales[i].Manifest = manifest
			}
			result.Sales = sales
			result.Manifest = manifest
			result.TotalBags = totalBags
			return nil
		})
	})
	s.observe(KindMix, err, totalBags)
	if err != nil {
		return MixOrderResult{}, err
	}
	s.afterCommit(ctx, req.ActorID, "sale.mix_order", result.MixOrderID.String(), map[string]any{
		"sale_ids":   saleIDs(result.Sales),
		"total_bags": result.TotalBags,
	})
	return result, nil
}

// ============================================================================
// READS
// ============================================================================

// GetSale loads a sale row.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, shared.ValidationError("sale id required")
	}
	return s.repo.GetSale(ctx, id)
}

// ListSalesByLot lists sales drawn from a lot, oldest first.
func (s *Service) ListSalesByLot(ctx context.Context, lotID int64) ([]Sale, error) {
	if lotID <= 0 {
		return nil, shared.ValidationError("lot id required")
	}
	return s.repo.ListSalesByLot(ctx, lotID)
}

// ============================================================================
// HELPERS
// ============================================================================

type saleLine struct {
	customerID   int64
	lotID        int64
	bags         int
	bagWeight    *float64
	rate         decimal.NullDecimal
	qualityGrade string
	notes        string
	actorID      int64
	mixOrderID   uuid.NullUUID
}

// sellLine locks the lot, checks availability, decrements it and inserts the
// sale row. The conditional decrement closes any race the lock misses.
func (s *Service) sellLine(ctx context.Context, tx TxRepository, line saleLine) (Sale, error) {
	view, err := tx.GetLotViewForUpdate(ctx, line.lotID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Sale{}, shared.NotFoundError("lot", line.lotID)
		}
		return Sale{}, err
	}
	if line.bags > view.RemainingBags {
		return Sale{}, &shared.InsufficientStockError{LotID: line.lotID, Available: view.RemainingBags, Requested: line.bags}
	}
	if _, err := s.ledger.DecrementLot(ctx, tx, line.lotID, line.bags); err != nil {
		return Sale{}, err
	}
	quality := strings.TrimSpace(line.qualityGrade)
	if quality == "" {
		quality = view.QualityGrade
	}
	sale := Sale{
		CustomerID:     line.customerID,
		LotID:          line.lotID,
		BagsSold:       line.bags,
		BagWeight:      line.bagWeight,
		RatePerBag:     line.rate,
		QualityGrade:   quality,
		DeliveryNumber: view.DeliveryNumber,
		ItemName:       view.ItemName,
		IsMixOrder:     line.mixOrderID.Valid,
		MixOrderID:     line.mixOrderID,
		Notes:          strings.TrimSpace(line.notes),
		CreatedBy:      line.actorID,
		CreatedAt:      s.clock(),
	}
	if line.rate.Valid {
		sale.TotalAmount = decimal.NewNullDecimal(line.rate.Decimal.Mul(decimal.NewFromInt(int64(line.bags))))
	}
	inserted, err := tx.InsertSale(ctx, sale)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	return inserted, nil
}

func customerFor(ctx context.Context, tx TxRepository, id int64) (Customer, error) {
	customer, err := tx.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Customer{}, shared.NotFoundError("customer", id)
		}
		return Customer{}, err
	}
	return customer, nil
}

// guarded reserves the idempotency key, releasing it again when fn fails so
// the client may retry.
func (s *Service) guarded(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" || s.idempotency == nil {
		return fn(ctx)
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if delErr := s.idempotency.Release(context.WithoutCancel(ctx), key, idempotencyModule); delErr != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.stock != nil {
		s.stock.Invalidate(ctx)
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: entityID,
		Meta:     meta,
		At:       s.clock(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(kind string, err error, bags int) {
	if s.metrics == nil {
		return
	}
	outcome := OutcomeCommitted
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrInsufficientStock), errors.Is(err, shared.ErrIdempotencyConflict):
		outcome = OutcomeRejected
		bags = 0
	default:
		outcome = OutcomeFailed
		bags = 0
	}
	s.metrics.ObserveSale(kind, outcome, bags)
}

func validateSale(req SaleRequest) error {
	if req.CustomerID <= 0 {
		return shared.ValidationError("customer id required")
	}
	if req.LotID <= 0 {
		return shared.ValidationError("lot id required")
	}
	if req.BagsSold <= 0 {
		return shared.ValidationError("bags sold must be a positive integer, got %d", req.BagsSold)
	}
	return validateAmounts(req.BagWeight, req.RatePerBag)
}

func validateMixOrder(req MixOrderRequest) error {
	if req.CustomerID <= 0 {
		return shared.ValidationError("customer id required")
	}
	if len(req.Items) == 0 {
		return shared.ValidationError("mix order requires at least one item")
	}
	if err := validateAmounts(req.BagWeight, req.RatePerBag); err != nil {
		return err
	}
	for i, item := range req.Items {
		if item.LotID <= 0 {
			return shared.ValidationError("item %d: lot id required", i+1)
		}
		if item.BagsSold <= 0 {
			return shared.ValidationError("item %d: bags sold must be a positive integer, got %d", i+1, item.BagsSold)
		}
		if err := validateAmounts(item.BagWeight, item.RatePerBag); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	return nil
}

func validateAmounts(bagWeight *float64, rate decimal.NullDecimal) error {
	if bagWeight != nil && *bagWeight <= 0 {
		return shared.ValidationError("bag weight must be positive")
	}
	return stock.ValidateRate(rate)
}

func saleIDs(sales []Sale) []int64 {
	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	return ids
}
