package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/laadstock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, LotTx) error) error
	ListLotViews(ctx context.Context) ([]LotView, error)
	GetLotView(ctx context.Context, id int64) (LotView, error)
	GetDelivery(ctx context.Context, id int64) (Delivery, error)
	ListLots(ctx context.Context, deliveryID int64) ([]LotView, error)
}

// SkippedLineSource enumerates duplicate-skipped intake lines.
type SkippedLineSource interface {
	ListSkippedLines(ctx context.Context) ([]SkippedLine, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates lot ledger operations and the combined stock view.
type Service struct {
	repo    RepositoryPort
	skipped SkippedLineSource
	cache   *Cache
	audit   AuditPort
	ledger  Ledger
	logger  *slog.Logger
	group   singleflight.Group
	clock   func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultBagWeight float64
}

// NewService builds Service. skipped, cache and audit may be nil.
func NewService(repo RepositoryPort, skipped SkippedLineSource, cache *Cache, audit AuditPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cache.WithLogger(logger)
	return &Service{
		repo:    repo,
		skipped: skipped,
		cache:   cache,
		audit:   audit,
		ledger:  NewLedger(cfg.DefaultBagWeight),
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the ledger so other modules can mutate lots on their own transaction.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Invalidate bumps the combined stock cache. Failures are logged only; the
// cache entry expires on its own.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump stock cache", slog.Any("error", err))
	}
}

// CombinedStock returns the sellable stock view.
func (s *Service) CombinedStock(ctx context.Context) ([]CombinedStockUnit, error) {
	key, err := s.cache.BuildKey(ctx, "stock", "combined")
	if err != nil {
		s.logger.Warn("stock cache unavailable", slog.Any("error", err))
		return s.buildCombined(ctx)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var units []CombinedStockUnit
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), key, &units, func(ctx context.Context) (any, error) {
			return s.buildCombined(ctx)
		})
		return units, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		units, _ := res.Val.([]CombinedStockUnit)
		if units == nil {
			units = []CombinedStockUnit{}
		}
		return units, nil
	}
}

// Warm rebuilds the cached combined view and returns the unit count.
func (s *Service) Warm(ctx context.Context) (int, error) {
	units, err := s.CombinedStock(ctx)
	if err != nil {
		return 0, err
	}
	return len(units), nil
}

func (s *Service) buildCombined(ctx context.Context) ([]CombinedStockUnit, error) {
	lots, skipped, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return Combine(lots, skipped, s.ledger.DefaultBagWeight()), nil
}

func (s *Service) load(ctx context.Context) ([]LotView, []SkippedLine, error) {
	var (
		lots    []LotView
		skipped []SkippedLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lots, err = s.repo.ListLotViews(gctx)
		if err != nil {
			return fmt.Errorf("stock: list lots: %w", err)
		}
		return nil
	})
	if s.skipped != nil {
		g.Go(func() error {
			var err error
			skipped, err = s.skipped.ListSkippedLines(gctx)
			if err != nil {
				return fmt.Errorf("stock: list skipped intake lines: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lots, skipped, nil
}

// Audit checks lot and combined-unit invariants without changing anything.
func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	lots, skipped, err := s.load(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	report := AuditReport{CheckedLots: len(lots), Violations: []AuditViolation{}, RanAt: s.clock()}
	for _, lot := range lots {
		switch {
		case lot.RemainingBags < 0:
			report.Violations = append(report.Violations, AuditViolation{
				Kind: ViolationLotNegative, LotID: lot.ID, DeliveryID: lot.DeliveryID,
				Detail: fmt.Sprintf("remaining bags %d below zero", lot.RemainingBags),
			})
		case lot.RemainingBags > lot.TotalBags:
			report.Violations = append(report.Violations, AuditViolation{
				Kind: ViolationLotOverTotal, LotID: lot.ID, DeliveryID: lot.DeliveryID,
				Detail: fmt.Sprintf("remaining bags %d exceed total %d", lot.RemainingBags, lot.TotalBags),
			})
		}
	}
	remaining := make(map[int64]int, len(lots))
	for _, lot := range lots {
		remaining[lot.ID] = lot.RemainingBags
	}
	units := Combine(lots, skipped, s.ledger.DefaultBagWeight())
	report.CheckedUnits = len(units)
	for _, unit := range units {
		if unit.RemainingWeight > unit.TotalWeight+floorEpsilon {
			report.Violations = append(report.Violations, AuditViolation{
				Kind: ViolationUnitWeight, DeliveryID: unit.Delivery.ID,
				Detail: fmt.Sprintf("%s/%s remaining %.3fkg exceeds total %.3fkg", unit.Item.Name, unit.QualityGrade, unit.RemainingWeight, unit.TotalWeight),
			})
		}
		sellable := 0
		for _, id := range unit.LotIDs {
			if bags := remaining[id]; bags > 0 {
				sellable += bags
			}
		}
		if sellable == 0 {
			report.Violations = append(report.Violations, AuditViolation{
				Kind: ViolationUnitUntraceable, DeliveryID: unit.Delivery.ID,
				Detail: fmt.Sprintf("%s/%s shows %d bags but lots %v have none left", unit.Item.Name, unit.QualityGrade, unit.RemainingBags, unit.LotIDs),
			})
		}
	}
	return report, nil
}

// CreateDelivery records a delivery.
func (s *Service) CreateDelivery(ctx context.Context, input CreateDeliveryInput, actorID int64) (Delivery, error) {
	var delivery Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LotTx) error {
		var err error
		delivery, err = s.ledger.CreateDelivery(ctx, tx, input)
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.record(ctx, actorID, "delivery.create", "delivery", delivery.ID, map[string]any{"delivery_number": delivery.DeliveryNumber})
	return delivery, nil
}

// GetDelivery loads a delivery.
func (s *Service) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	return s.repo.GetDelivery(ctx, id)
}

// ListLots returns lots of a delivery.
func (s *Service) ListLots(ctx context.Context, deliveryID int64) ([]LotView, error) {
	if _, err := s.repo.GetDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.repo.ListLots(ctx, deliveryID)
}

// GetLot loads a lot with its item and delivery.
func (s *Service) GetLot(ctx context.Context, id int64) (LotView, error) {
	return s.repo.GetLotView(ctx, id)
}

// CreateLot creates a lot in its own transaction.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput, actorID int64) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LotTx) error {
		var err error
		lot, err = s.ledger.CreateLot(ctx, tx, input)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.Invalidate(ctx)
	s.record(ctx, actorID, "lot.create", "lot", lot.ID, map[string]any{"total_bags": lot.TotalBags})
	return lot, nil
}

// MergeIntoLot adds bags to a lot in its own transaction.
func (s *Service) MergeIntoLot(ctx context.Context, lotID int64, input MergeLotInput, actorID int64) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LotTx) error {
		var err error
		lot, err = s.ledger.MergeIntoLot(ctx, tx, lotID, input)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.Invalidate(ctx)
	s.record(ctx, actorID, "lot.merge", "lot", lot.ID, map[string]any{"additional_bags": input.AdditionalBags})
	return lot, nil
}

// DecrementLot removes bags from a lot in its own transaction.
func (s *Service) DecrementLot(ctx context.Context, lotID int64, bags int, actorID int64) (Lot, error) {
	var lot Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LotTx) error {
		var err error
		lot, err = s.ledger.DecrementLot(ctx, tx, lotID, bags)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.Invalidate(ctx)
	s.record(ctx, actorID, "lot.decrement", "lot", lot.ID, map[string]any{"bags": bags})
	return lot, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.clock(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
