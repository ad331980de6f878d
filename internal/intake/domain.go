package intake

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/laadstock/internal/stock"
)

// Outcome is the posting decision for one intake line.
type Outcome string

// Posting outcomes.
const (
	OutcomeAdded            Outcome = "ADDED"
	OutcomeUpdated          Outcome = "UPDATED"
	OutcomeDuplicateSkipped Outcome = "DUPLICATE_SKIPPED"
)

// Posted reports whether the line changed a lot.
func (o Outcome) Posted() bool {
	return o == OutcomeAdded || o == OutcomeUpdated
}

// EntryLine is the stored record of one intake line.
type EntryLine struct {
	ItemID       int64    `json:"item_id"`
	ItemName     string   `json:"item_name"`
	TotalBags    int      `json:"total_bags"`
	QualityGrade string   `json:"quality_grade,omitempty"`
	WeightPerBag *float64 `json:"weight_per_bag,omitempty"`
	Status       Outcome  `json:"status"`
	LotID        *int64   `json:"lot_id,omitempty"`
}

// TruckArrivalEntry is the audit record of one gate arrival.
type TruckArrivalEntry struct {
	ID             int64       `json:"id"`
	EntryNumber    int64       `json:"entry_number"`
	DeliveryID     int64       `json:"delivery_id"`
	DeliveryNumber string      `json:"delivery_number,omitempty"`
	VehicleNumber  string      `json:"vehicle_number,omitempty"`
	DriverName     string      `json:"driver_name,omitempty"`
	GrossWeight    *float64    `json:"gross_weight,omitempty"`
	TareWeight     *float64    `json:"tare_weight,omitempty"`
	ArrivedAt      time.Time   `json:"arrived_at"`
	Notes          string      `json:"notes,omitempty"`
	Lines          []EntryLine `json:"lines"`
	CreatedBy      int64       `json:"created_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NetWeight is gross minus tare when both readings exist.
func (e TruckArrivalEntry) NetWeight() *float64 {
	if e.GrossWeight == nil || e.TareWeight == nil {
		return nil
	}
	net := *e.GrossWeight - *e.TareWeight
	return &net
}

// ArrivalLine is one item unloaded from the truck.
type ArrivalLine struct {
	ItemID            int64               `json:"item_id" validate:"required,gt=0"`
	Bags              int                 `json:"bags" validate:"required,gt=0"`
	QualityGrade      string              `json:"quality_grade,omitempty" validate:"max=64"`
	WeightPerBag      *float64            `json:"weight_per_bag,omitempty" validate:"omitempty,gt=0"`
	OriginWeight      *float64            `json:"origin_weight,omitempty" validate:"omitempty,gt=0"`
	DestinationWeight *float64            `json:"destination_weight,omitempty" validate:"omitempty,gt=0"`
	RatePerBag        decimal.NullDecimal `json:"rate_per_bag"`
}

// ArrivalInput records a gate arrival against an existing delivery, or
// creates the delivery when DeliveryID is zero.
type ArrivalInput struct {
	DeliveryID    int64                      `json:"delivery_id,omitempty" validate:"omitempty,gt=0"`
	Delivery      *stock.CreateDeliveryInput `json:"delivery,omitempty"`
	VehicleNumber string                     `json:"vehicle_number,omitempty" validate:"max=32"`
	DriverName    string                     `json:"driver_name,omitempty" validate:"max=128"`
	GrossWeight   *float64                   `json:"gross_weight,omitempty" validate:"omitempty,gt=0"`
	TareWeight    *float64                   `json:"tare_weight,omitempty" validate:"omitempty,gt=0"`
	ArrivedAt     *time.Time                 `json:"arrived_at,omitempty"`
	Notes         string                     `json:"notes,omitempty" validate:"max=1000"`
	Lines         []ArrivalLine              `json:"lines" validate:"required,min=1,dive"`
	ActorID       int64                      `json:"-"`
}

// PostResult is the decision taken for a single line.
type PostResult struct {
	Outcome Outcome `json:"outcome"`
	LotID   *int64  `json:"lot_id,omitempty"`
}

// PostItemInput posts a single item outside a multi-line arrival.
type PostItemInput struct {
	DeliveryID   int64    `json:"delivery_id" validate:"required,gt=0"`
	ItemID       int64    `json:"item_id" validate:"required,gt=0"`
	Bags         int      `json:"bags" validate:"required,gt=0"`
	QualityGrade string   `json:"quality_grade,omitempty" validate:"max=64"`
	WeightPerBag *float64 `json:"weight_per_bag,omitempty" validate:"omitempty,gt=0"`
	ActorID      int64    `json:"-"`
}
