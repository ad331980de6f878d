package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	stock.LotTx
	NextEntryNumber(ctx context.Context) (int64, error)
	ListPostedLines(ctx context.Context, deliveryID int64) ([]EntryLine, error)
	InsertEntry(ctx context.Context, entry TruckArrivalEntry) (TruckArrivalEntry, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (TruckArrivalEntry, error)
	ListEntries(ctx context.Context, deliveryID int64) ([]TruckArrivalEntry, error)
	ListSkippedLines(ctx context.Context) ([]stock.SkippedLine, error)
}

// LockPort serialises work per key.
type LockPort interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StockInvalidator refreshes the combined stock view after a commit.
type StockInvalidator interface {
	Invalidate(ctx context.Context)
}

// ErrEntryNotFound is returned by repositories for unknown entries.
var ErrEntryNotFound = fmt.Errorf("%w: truck arrival entry", shared.ErrNotFound)

const weightTolerance = 1e-6

// Service records gate arrivals and posts their lines to lots.
type Service struct {
	repo   RepositoryPort
	ledger stock.Ledger
	locks  LockPort
	stock  StockInvalidator
	audit  AuditPort
	logger *slog.Logger
	clock  func() time.Time
}

// Deps groups optional collaborators.
type Deps struct {
	Locks  LockPort
	Stock  StockInvalidator
	Audit  AuditPort
	Logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger stock.Ledger, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		ledger: ledger,
		locks:  deps.Locks,
		stock:  deps.Stock,
		audit:  deps.Audit,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// RecordArrival stores one gate arrival and posts every line inside a single
// transaction. Arrivals for the same delivery are serialised.
func (s *Service) RecordArrival(ctx context.Context, input ArrivalInput) (TruckArrivalEntry, error) {
	if err := validateArrival(input); err != nil {
		return TruckArrivalEntry{}, err
	}
	var entry TruckArrivalEntry
	record := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			entry, err = s.recordTx(ctx, tx, input)
			return err
		})
	}
	var err error
	if input.DeliveryID > 0 && s.locks != nil {
		err = s.locks.WithLock(ctx, shared.IntakeLockKey(input.DeliveryID), record)
	} else {
		err = record(ctx)
	}
	if err != nil {
		return TruckArrivalEntry{}, err
	}
	if s.stock != nil {
		s.stock.Invalidate(ctx)
	}
	s.record(ctx, input.ActorID, entry)
	s.logger.Info("truck arrival recorded",
		slog.Int64("entry_number", entry.EntryNumber),
		slog.Int64("delivery_id", entry.DeliveryID),
		slog.Int("lines", len(entry.Lines)))
	return entry, nil
}

// PostIntakeItem posts a single item as its own arrival entry.
func (s *Service) PostIntakeItem(ctx context.Context, input PostItemInput) (PostResult, error) {
	entry, err := s.RecordArrival(ctx, ArrivalInput{
		DeliveryID: input.DeliveryID,
		ActorID:    input.ActorID,
		Lines: []ArrivalLine{{
			ItemID:       input.ItemID,
			Bags:         input.Bags,
			QualityGrade: input.QualityGrade,
			WeightPerBag: input.WeightPerBag,
		}},
	})
	if err != nil {
		return PostResult{}, err
	}
	line := entry.Lines[0]
	return PostResult{Outcome: line.Status, LotID: line.LotID}, nil
}

func (s *Service) recordTx(ctx context.Context, tx TxRepository, input ArrivalInput) (TruckArrivalEntry, error) {
	var (
		delivery stock.Delivery
		err      error
	)
	if input.DeliveryID > 0 {
		delivery, err = tx.GetDelivery(ctx, input.DeliveryID)
	} else {
		delivery, err = s.ledger.CreateDelivery(ctx, tx, *input.Delivery)
	}
	if err != nil {
		return TruckArrivalEntry{}, err
	}
	number, err := tx.NextEntryNumber(ctx)
	if err != nil {
		return TruckArrivalEntry{}, fmt.Errorf("intake: next entry number: %w", err)
	}
	prior, err := tx.ListPostedLines(ctx, delivery.ID)
	if err != nil {
		return TruckArrivalEntry{}, fmt.Errorf("intake: load posted lines: %w", err)
	}

	lines := make([]EntryLine, 0, len(input.Lines))
	for i, in := range input.Lines {
		line, err := s.postLine(ctx, tx, delivery.ID, in, prior)
		if err != nil {
			return TruckArrivalEntry{}, fmt.Errorf("intake line %d: %w", i+1, err)
		}
		lines = append(lines, line)
		if line.Status.Posted() {
			prior = append(prior, line)
		}
	}

	arrived := s.clock()
	if input.ArrivedAt != nil && !input.ArrivedAt.IsZero() {
		arrived = input.ArrivedAt.UTC()
	}
	entry, err := tx.InsertEntry(ctx, TruckArrivalEntry{
		EntryNumber:    number,
		DeliveryID:     delivery.ID,
		DeliveryNumber: delivery.DeliveryNumber,
		VehicleNumber:  strings.TrimSpace(input.VehicleNumber),
		DriverName:     strings.TrimSpace(input.DriverName),
		GrossWeight:    input.GrossWeight,
		TareWeight:     input.TareWeight,
		ArrivedAt:      arrived,
		Notes:          strings.TrimSpace(input.Notes),
		Lines:          lines,
		CreatedBy:      input.ActorID,
		CreatedAt:      s.clock(),
	})
	if err != nil {
		return TruckArrivalEntry{}, fmt.Errorf("intake: insert entry: %w", err)
	}
	return entry, nil
}

// postLine decides and applies the outcome of one line:
// no lot for (delivery, item, quality) adds one; a line identical to an
// earlier posted line of the delivery is skipped; anything else merges.
func (s *Service) postLine(ctx context.Context, tx TxRepository, deliveryID int64, in ArrivalLine, prior []EntryLine) (EntryLine, error) {
	item, err := tx.GetItem(ctx, in.ItemID)
	if err != nil {
		return EntryLine{}, err
	}
	quality := strings.TrimSpace(in.QualityGrade)
	line := EntryLine{
		ItemID:       item.ID,
		ItemName:     item.Name,
		TotalBags:    in.Bags,
		QualityGrade: quality,
		WeightPerBag: in.WeightPerBag,
	}

	existing, err := tx.FindLot(ctx, deliveryID, item.ID, quality)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		lot, err := s.ledger.CreateLot(ctx, tx, stock.CreateLotInput{
			DeliveryID:        deliveryID,
			ItemID:            item.ID,
			TotalBags:         in.Bags,
			QualityGrade:      quality,
			WeightPerBag:      in.WeightPerBag,
			OriginWeight:      in.OriginWeight,
			DestinationWeight: in.DestinationWeight,
			RatePerBag:        in.RatePerBag,
		})
		if err != nil {
			return EntryLine{}, err
		}
		line.Status = OutcomeAdded
		line.LotID = &lot.ID
		return line, nil
	case err != nil:
		return EntryLine{}, err
	}

	if dup, ok := findDuplicate(prior, line); ok {
		line.Status = OutcomeDuplicateSkipped
		line.LotID = dup.LotID
		if line.LotID == nil {
			line.LotID = &existing.ID
		}
		return line, nil
	}

	lot, err := s.ledger.MergeIntoLot(ctx, tx, existing.ID, stock.MergeLotInput{AdditionalBags: in.Bags, WeightPerBag: in.WeightPerBag})
	if err != nil {
		return EntryLine{}, err
	}
	line.Status = OutcomeUpdated
	line.LotID = &lot.ID
	return line, nil
}

func findDuplicate(prior []EntryLine, line EntryLine) (EntryLine, bool) {
	for _, p := range prior {
		if !p.Status.Posted() {
			continue
		}
		if p.ItemID == line.ItemID &&
			strings.TrimSpace(p.QualityGrade) == line.QualityGrade &&
			p.TotalBags == line.TotalBags &&
			sameWeight(p.WeightPerBag, line.WeightPerBag) {
			return p, true
		}
	}
	return EntryLine{}, false
}

func sameWeight(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < weightTolerance
}

// GetEntry loads an arrival entry.
func (s *Service) GetEntry(ctx context.Context, id int64) (TruckArrivalEntry, error) {
	if id <= 0 {
		return TruckArrivalEntry{}, shared.ValidationError("entry id required")
	}
	return s.repo.GetEntry(ctx, id)
}

// ListEntries lists arrival entries of a delivery, oldest first.
func (s *Service) ListEntries(ctx context.Context, deliveryID int64) ([]TruckArrivalEntry, error) {
	if deliveryID <= 0 {
		return nil, shared.ValidationError("delivery id required")
	}
	return s.repo.ListEntries(ctx, deliveryID)
}

// ListSkippedLines enumerates DUPLICATE_SKIPPED lines for the stock combiner.
func (s *Service) ListSkippedLines(ctx context.Context) ([]stock.SkippedLine, error) {
	return s.repo.ListSkippedLines(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, entry TruckArrivalEntry) {
	if s.audit == nil {
		return
	}
	counts := map[string]any{}
	for _, line := range entry.Lines {
		key := string(line.Status)
		n, _ := counts[key].(int)
		counts[key] = n + 1
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "intake.arrival",
		Entity:   "truck_arrival_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     map[string]any{"entry_number": entry.EntryNumber, "outcomes": counts},
		At:       s.clock(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", "intake.arrival"), slog.Any("error", err))
	}
}

func validateArrival(input ArrivalInput) error {
	if input.DeliveryID <= 0 && input.Delivery == nil {
		return shared.ValidationError("delivery id or new delivery required")
	}
	if len(input.Lines) == 0 {
		return shared.ValidationError("arrival requires at least one line")
	}
	for i, line := range input.Lines {
		if line.ItemID <= 0 {
			return shared.ValidationError("line %d: item id required", i+1)
		}
		if line.Bags <= 0 {
			return shared.ValidationError("line %d: bags must be positive, got %d", i+1, line.Bags)
		}
		if line.WeightPerBag != nil && *line.WeightPerBag <= 0 {
			return shared.ValidationError("line %d: weight per bag must be positive", i+1)
		}
	}
	if input.GrossWeight != nil && input.TareWeight != nil && *input.TareWeight > *input.GrossWeight {
		return shared.ValidationError("tare weight exceeds gross weight")
	}
	return nil
}
