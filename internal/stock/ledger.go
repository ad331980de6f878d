package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/laadstock/internal/shared"
)

// DefaultBagWeight is used when neither the lot nor the item records a bag weight.
const DefaultBagWeight = 50.0

// ErrLotNotFound, ErrDeliveryNotFound, ErrItemNotFound and ErrSupplierNotFound
// are returned by LotTx implementations; all wrap shared.ErrNotFound.
var (
	ErrLotNotFound      = fmt.Errorf("%w: lot", shared.ErrNotFound)
	ErrDeliveryNotFound = fmt.Errorf("%w: delivery", shared.ErrNotFound)
	ErrItemNotFound     = fmt.Errorf("%w: item", shared.ErrNotFound)
	ErrSupplierNotFound = fmt.Errorf("%w: supplier", shared.ErrNotFound)
)

// LotTx is the transaction-scoped persistence used by the ledger. Sales and
// intake share one LotTx with their own writes so everything commits together.
type LotTx interface {
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	InsertDelivery(ctx context.Context, delivery Delivery) (Delivery, error)
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	GetLotViewForUpdate(ctx context.Context, id int64) (LotView, error)
	FindLot(ctx context.Context, deliveryID, itemID int64, qualityGrade string) (Lot, error)
	UpdateLotTotals(ctx context.Context, lot Lot) (Lot, error)
	// DecrementLot subtracts bags only when remaining_bags >= bags. ok is
	// false when no row matched.
	DecrementLot(ctx context.Context, id int64, bags int) (lot Lot, ok bool, err error)
}

// Ledger applies lot mutations on a caller-owned transaction.
type Ledger struct {
	defaultBagWeight float64
	clock            func() time.Time
}

// NewLedger builds a Ledger. Non-positive weights fall back to DefaultBagWeight.
func NewLedger(defaultBagWeight float64) Ledger {
	if defaultBagWeight <= 0 {
		defaultBagWeight = DefaultBagWeight
	}
	return Ledger{defaultBagWeight: defaultBagWeight, clock: func() time.Time { return time.Now().UTC() }}
}

// DefaultBagWeight returns the configured fallback bag weight.
func (l Ledger) DefaultBagWeight() float64 {
	return l.defaultBagWeight
}

func (l Ledger) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock()
}

// CreateDelivery validates and inserts a delivery.
func (l Ledger) CreateDelivery(ctx context.Context, tx LotTx, input CreateDeliveryInput) (Delivery, error) {
	number := strings.TrimSpace(input.DeliveryNumber)
	if number == "" {
		return Delivery{}, shared.ValidationError("delivery number required")
	}
	if input.SupplierID <= 0 {
		return Delivery{}, shared.ValidationError("supplier required")
	}
	supplier, err := tx.GetSupplier(ctx, input.SupplierID)
	if err != nil {
		return Delivery{}, err
	}
	arrival := l.now()
	if input.ArrivalDate != nil && !input.ArrivalDate.IsZero() {
		arrival = input.ArrivalDate.UTC()
	}
	delivery, err := tx.InsertDelivery(ctx, Delivery{
		DeliveryNumber: number,
		SupplierID:     supplier.ID,
		SupplierName:   supplier.Name,
		VehicleID:      input.VehicleID,
		ArrivalDate:    arrival,
		Notes:          strings.TrimSpace(input.Notes),
	})
	if err != nil {
		return Delivery{}, fmt.Errorf("stock: insert delivery: %w", err)
	}
	return delivery, nil
}

// CreateLot inserts a lot with remaining bags equal to total bags. A lot
// created without a bag weight is stamped with the item's bag weight, or the
// configured default.
func (l Ledger) CreateLot(ctx context.Context, tx LotTx, input CreateLotInput) (Lot, error) {
	if input.TotalBags <= 0 {
		return Lot{}, shared.ValidationError("total bags must be positive, got %d", input.TotalBags)
	}
	if err := validWeight("weight per bag", input.WeightPerBag); err != nil {
		return Lot{}, err
	}
	if err := ValidateRate(input.RatePerBag); err != nil {
		return Lot{}, err
	}
	if _, err := tx.GetDelivery(ctx, input.DeliveryID); err != nil {
		return Lot{}, err
	}
	item, err := tx.GetItem(ctx, input.ItemID)
	if err != nil {
		return Lot{}, err
	}
	weight := input.WeightPerBag
	if weight == nil {
		basis := l.defaultBagWeight
		if item.BagWeight != nil && *item.BagWeight > 0 {
			basis = *item.BagWeight
		}
		weight = &basis
	}
	now := l.now()
	lot := Lot{
		DeliveryID:        input.DeliveryID,
		ItemID:            item.ID,
		TotalBags:         input.TotalBags,
		RemainingBags:     input.TotalBags,
		QualityGrade:      strings.TrimSpace(input.QualityGrade),
		WeightPerBag:      weight,
		OriginWeight:      input.OriginWeight,
		DestinationWeight: input.DestinationWeight,
		RatePerBag:        input.RatePerBag,
		TotalAmount:       amountFor(input.RatePerBag, input.TotalBags),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err := tx.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, fmt.Errorf("stock: insert lot: %w", err)
	}
	return created, nil
}

// MergeIntoLot adds a repeat arrival to an existing lot.
func (l Ledger) MergeIntoLot(ctx context.Context, tx LotTx, lotID int64, input MergeLotInput) (Lot, error) {
	if input.AdditionalBags <= 0 {
		return Lot{}, shared.ValidationError("additional bags must be positive, got %d", input.AdditionalBags)
	}
	if err := validWeight("weight per bag", input.WeightPerBag); err != nil {
		return Lot{}, err
	}
	view, err := tx.GetLotViewForUpdate(ctx, lotID)
	if err != nil {
		return Lot{}, err
	}
	lot := view.Lot
	lot.TotalBags += input.AdditionalBags
	lot.RemainingBags += input.AdditionalBags
	if input.WeightPerBag != nil {
		lot.WeightPerBag = input.WeightPerBag
	}
	lot.TotalAmount = amountFor(lot.RatePerBag, lot.TotalBags)
	lot.UpdatedAt = l.now()
	updated, err := tx.UpdateLotTotals(ctx, lot)
	if err != nil {
		return Lot{}, fmt.Errorf("stock: merge lot %d: %w", lotID, err)
	}
	return updated, nil
}

// DecrementLot subtracts bags with a single conditional write.
func (l Ledger) DecrementLot(ctx context.Context, tx LotTx, lotID int64, bags int) (Lot, error) {
	if lotID <= 0 {
		return Lot{}, shared.ValidationError("lot id required")
	}
	if bags <= 0 {
		return Lot{}, shared.ValidationError("bags must be positive, got %d", bags)
	}
	lot, ok, err := tx.DecrementLot(ctx, lotID, bags)
	if err != nil {
		return Lot{}, fmt.Errorf("stock: decrement lot %d: %w", lotID, err)
	}
	if ok {
		return lot, nil
	}
	view, err := tx.GetLotViewForUpdate(ctx, lotID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Lot{}, shared.NotFoundError("lot", lotID)
		}
		return Lot{}, err
	}
	return Lot{}, &shared.InsufficientStockError{LotID: lotID, Available: view.RemainingBags, Requested: bags}
}

// MoneyScale is the number of decimals stored for rates and amounts.
const MoneyScale = 2

// ValidateRate rejects negative rates and rates the amount columns would round.
func ValidateRate(rate decimal.NullDecimal) error {
	if !rate.Valid {
		return nil
	}
	if rate.Decimal.IsNegative() {
		return shared.ValidationError("rate per bag must not be negative")
	}
	if !rate.Decimal.Equal(rate.Decimal.Round(MoneyScale)) {
		return shared.ValidationError("rate per bag %s has more than %d decimals", rate.Decimal.String(), MoneyScale)
	}
	return nil
}

func amountFor(rate decimal.NullDecimal, bags int) decimal.NullDecimal {
	if !rate.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(rate.Decimal.Mul(decimal.NewFromInt(int64(bags))))
}

func validWeight(field string, w *float64) error {
	if w != nil && *w <= 0 {
		return shared.ValidationError("%s must be positive", field)
	}
	return nil
}
