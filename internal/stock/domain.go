package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is catalog reference data.
type Item struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Quality   string   `json:"quality,omitempty"`
	BagWeight *float64 `json:"bag_weight,omitempty"`
}

// Supplier owns deliveries.
type Supplier struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Delivery is one truck-load (laad) grouping lots from a supplier.
type Delivery struct {
	ID             int64     `json:"id"`
	DeliveryNumber string    `json:"delivery_number"`
	SupplierID     int64     `json:"supplier_id"`
	SupplierName   string    `json:"supplier_name,omitempty"`
	VehicleID      *int64    `json:"vehicle_id,omitempty"`
	ArrivalDate    time.Time `json:"arrival_date"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Lot is the unit of stock: one quality-specific portion of a delivery.
type Lot struct {
	ID                int64               `json:"id"`
	DeliveryID        int64               `json:"delivery_id"`
	ItemID            int64               `json:"item_id"`
	TotalBags         int                 `json:"total_bags"`
	RemainingBags     int                 `json:"remaining_bags"`
	QualityGrade      string              `json:"quality_grade,omitempty"`
	WeightPerBag      *float64            `json:"weight_per_bag,omitempty"`
	OriginWeight      *float64            `json:"origin_weight,omitempty"`
	DestinationWeight *float64            `json:"destination_weight,omitempty"`
	RatePerBag        decimal.NullDecimal `json:"rate_per_bag"`
	TotalAmount       decimal.NullDecimal `json:"total_amount"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// LotView is a lot joined with its item and delivery.
type LotView struct {
	Lot
	ItemName       string   `json:"item_name"`
	ItemQuality    string   `json:"item_quality,omitempty"`
	ItemBagWeight  *float64 `json:"item_bag_weight,omitempty"`
	DeliveryNumber string   `json:"delivery_number"`
	SupplierName   string   `json:"supplier_name,omitempty"`
}

// SkippedLine is an intake line that was not posted to a lot because it
// duplicated an earlier line. Its bags are physically present.
type SkippedLine struct {
	EntryID        int64    `json:"entry_id"`
	DeliveryID     int64    `json:"delivery_id"`
	DeliveryNumber string   `json:"delivery_number"`
	SupplierName   string   `json:"supplier_name,omitempty"`
	ItemID         int64    `json:"item_id"`
	ItemName       string   `json:"item_name"`
	ItemQuality    string   `json:"item_quality,omitempty"`
	ItemBagWeight  *float64 `json:"item_bag_weight,omitempty"`
	QualityGrade   string   `json:"quality_grade,omitempty"`
	Bags           int      `json:"bags"`
	WeightPerBag   *float64 `json:"weight_per_bag,omitempty"`
	LotID          *int64   `json:"lot_id,omitempty"`
}

// CombinedItem describes the item of a combined unit.
type CombinedItem struct {
	Name      string   `json:"name"`
	Quality   string   `json:"quality,omitempty"`
	BagWeight *float64 `json:"bag_weight,omitempty"`
}

// CombinedDelivery describes the delivery of a combined unit.
type CombinedDelivery struct {
	ID             int64  `json:"id"`
	DeliveryNumber string `json:"delivery_number"`
	SupplierName   string `json:"supplier_name,omitempty"`
}

// CombinedStockUnit is the sellable view of lots sharing
// (item name, quality grade, delivery).
type CombinedStockUnit struct {
	LotIDs               []int64          `json:"lot_ids"`
	Item                 CombinedItem     `json:"item"`
	Delivery             CombinedDelivery `json:"delivery"`
	QualityGrade         string           `json:"quality_grade,omitempty"`
	TotalBags            int              `json:"total_bags"`
	RemainingBags        int              `json:"remaining_bags"`
	TotalWeight          float64          `json:"total_weight"`
	RemainingWeight      float64          `json:"remaining_weight"`
	BagWeightBasis       float64          `json:"bag_weight_basis"`
	IncludesSkippedItems bool             `json:"includes_skipped_items"`
}

// CreateDeliveryInput captures a new delivery.
type CreateDeliveryInput struct {
	DeliveryNumber string     `json:"delivery_number" validate:"required,max=64"`
	SupplierID     int64      `json:"supplier_id" validate:"required,gt=0"`
	VehicleID      *int64     `json:"vehicle_id,omitempty" validate:"omitempty,gt=0"`
	ArrivalDate    *time.Time `json:"arrival_date,omitempty"`
	Notes          string     `json:"notes,omitempty" validate:"max=1000"`
}

// CreateLotInput captures a new lot under a delivery.
type CreateLotInput struct {
	DeliveryID        int64               `json:"delivery_id"`
	ItemID            int64               `json:"item_id" validate:"required,gt=0"`
	TotalBags         int                 `json:"total_bags" validate:"required"`
	QualityGrade      string              `json:"quality_grade,omitempty" validate:"max=64"`
	WeightPerBag      *float64            `json:"weight_per_bag,omitempty"`
	OriginWeight      *float64            `json:"origin_weight,omitempty"`
	DestinationWeight *float64            `json:"destination_weight,omitempty"`
	RatePerBag        decimal.NullDecimal `json:"rate_per_bag"`
}

// MergeLotInput adds a repeat arrival to an existing lot.
type MergeLotInput struct {
	AdditionalBags int      `json:"additional_bags" validate:"required"`
	WeightPerBag   *float64 `json:"weight_per_bag,omitempty"`
}

// AuditViolation kinds.
const (
	ViolationLotNegative       = "lot_remaining_negative"
	ViolationLotOverTotal      = "lot_remaining_exceeds_total"
	ViolationUnitWeight        = "unit_remaining_weight_exceeds_total"
	ViolationUnitUntraceable   = "unit_without_sellable_lot"
)

// AuditViolation describes one broken invariant.
type AuditViolation struct {
	Kind       string `json:"kind"`
	LotID      int64  `json:"lot_id,omitempty"`
	DeliveryID int64  `json:"delivery_id,omitempty"`
	Detail     string `json:"detail"`
}

// AuditReport summarises a stock audit run.
type AuditReport struct {
	CheckedLots  int              `json:"checked_lots"`
	CheckedUnits int              `json:"checked_units"`
	Violations   []AuditViolation `json:"violations"`
	RanAt        time.Time        `json:"ran_at"`
}

// Healthy reports whether no invariant was broken.
func (r AuditReport) Healthy() bool {
	return len(r.Violations) == 0
}
