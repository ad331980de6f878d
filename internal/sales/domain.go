package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale kinds used for metrics and audit.
const (
	KindSimple = "simple"
	KindMix    = "mix_order"
)

// Customer buys stock.
type Customer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ManifestEntry describes one line of a mix order. Every sale row of the
// order carries the full manifest.
type ManifestEntry struct {
	SaleID         int64  `json:"sale_id"`
	LotID          int64  `json:"lot_id"`
	BagsSold       int    `json:"bags_sold"`
	ItemName       string `json:"item_name"`
	DeliveryNumber string `json:"delivery_number"`
}

// Sale is one persisted sale row drawing from exactly one lot.
type Sale struct {
	ID             int64               `json:"id"`
	CustomerID     int64               `json:"customer_id"`
	LotID          int64               `json:"lot_id"`
	BagsSold       int                 `json:"bags_sold"`
	BagWeight      *float64            `json:"bag_weight,omitempty"`
	RatePerBag     decimal.NullDecimal `json:"rate_per_bag"`
	TotalAmount    decimal.NullDecimal `json:"total_amount"`
	QualityGrade   string              `json:"quality_grade,omitempty"`
	DeliveryNumber string              `json:"delivery_number,omitempty"`
	ItemName       string              `json:"item_name,omitempty"`
	IsMixOrder     bool                `json:"is_mix_order"`
	MixOrderID     uuid.NullUUID       `json:"mix_order_id"`
	Manifest       []ManifestEntry     `json:"mix_order_manifest,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	CreatedBy      int64               `json:"created_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// SaleRequest sells bags from a single lot.
type SaleRequest struct {
	CustomerID     int64               `json:"customer_id" validate:"required,gt=0"`
	LotID          int64               `json:"lot_id" validate:"required,gt=0"`
	BagsSold       int                 `json:"bags_sold" validate:"required,gt=0"`
	BagWeight      *float64            `json:"bag_weight,omitempty" validate:"omitempty,gt=0"`
	RatePerBag     decimal.NullDecimal `json:"rate_per_bag"`
	QualityGrade   string              `json:"quality_grade,omitempty" validate:"max=64"`
	Notes          string              `json:"notes,omitempty" validate:"max=1000"`
	IdempotencyKey string              `json:"-"`
	ActorID        int64               `json:"-"`
}

// MixOrderItem is one lot drawn by a mix order.
type MixOrderItem struct {
	LotID      int64               `json:"lot_id" validate:"required,gt=0"`
	BagsSold   int                 `json:"bags_sold" validate:"required,gt=0"`
	BagWeight  *float64            `json:"bag_weight,omitempty" validate:"omitempty,gt=0"`
	RatePerBag decimal.NullDecimal `json:"rate_per_bag"`
}

// MixOrderRequest sells from several lots in one atomic order. Order-level
// rate, bag weight and quality apply to items that do not set their own.
type MixOrderRequest struct {
	CustomerID     int64               `json:"customer_id" validate:"required,gt=0"`
	Items          []MixOrderItem      `json:"items" validate:"required,min=1,dive"`
	BagWeight      *float64            `json:"bag_weight,omitempty" validate:"omitempty,gt=0"`
	RatePerBag     decimal.NullDecimal `json:"rate_per_bag"`
	QualityGrade   string              `json:"quality_grade,omitempty" validate:"max=64"`
	Notes          string              `json:"notes,omitempty" validate:"max=1000"`
	IdempotencyKey string              `json:"-"`
	ActorID        int64               `json:"-"`
}

// MixOrderResult is the committed mix order.
type MixOrderResult struct {
	MixOrderID uuid.UUID       `json:"mix_order_id"`
	Sales      []Sale          `json:"sales"`
	Manifest   []ManifestEntry `json:"manifest"`
	TotalBags  int             `json:"total_bags"`
}
