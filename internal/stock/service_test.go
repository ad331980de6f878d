package stock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/internal/stock/stocktest"
)

type staticSkipped struct {
	lines []stock.SkippedLine
	err   error
}

func (s staticSkipped) ListSkippedLines(context.Context) ([]stock.SkippedLine, error) {
	return s.lines, s.err
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type fixture struct {
	store    *stocktest.Store
	svc      *stock.Service
	audit    *memoryAudit
	supplier stock.Supplier
	rice     stock.Item
	delivery stock.Delivery
}

func newFixture(t *testing.T, skipped stock.SkippedLineSource, cache *stock.Cache) fixture {
	t.Helper()
	store := stocktest.NewStore()
	supplier := store.AddSupplier("Agro Traders")
	rice := store.AddItem("Rice", "Basmati", 0)
	delivery := store.AddDelivery("L-100", supplier.ID)
	audit := &memoryAudit{}
	svc := stock.NewService(store, skipped, cache, audit, stock.ServiceConfig{DefaultBagWeight: 50}, nil)
	return fixture{store: store, svc: svc, audit: audit, supplier: supplier, rice: rice, delivery: delivery}
}

func TestCreateDeliveryValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.CreateDelivery(ctx, stock.CreateDeliveryInput{DeliveryNumber: "  ", SupplierID: f.supplier.ID}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreateDelivery(ctx, stock.CreateDeliveryInput{DeliveryNumber: "L-1", SupplierID: 999}, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)

	arrival := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	d, err := f.svc.CreateDelivery(ctx, stock.CreateDeliveryInput{DeliveryNumber: " L-1 ", SupplierID: f.supplier.ID, ArrivalDate: &arrival}, 9)
	require.NoError(t, err)
	require.Equal(t, "L-1", d.DeliveryNumber)
	require.Equal(t, "Agro Traders", d.SupplierName)
	require.True(t, arrival.Equal(d.ArrivalDate))

	got, err := f.svc.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, int64(9), f.audit.logs[0].ActorID)
}

func TestDeliveryNumbersMayRepeat(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	a, err := f.svc.CreateDelivery(ctx, stock.CreateDeliveryInput{DeliveryNumber: "L-7", SupplierID: f.supplier.ID}, 0)
	require.NoError(t, err)
	b, err := f.svc.CreateDelivery(ctx, stock.CreateDeliveryInput{DeliveryNumber: "L-7", SupplierID: f.supplier.ID}, 0)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestCreateLot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 0}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: 999, ItemID: f.rice.ID, TotalBags: 5}, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: 999, TotalBags: 5}, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)

	lot, err := f.svc.CreateLot(ctx, stock.CreateLotInput{
		DeliveryID:   f.delivery.ID,
		ItemID:       f.rice.ID,
		TotalBags:    100,
		QualityGrade: " A ",
		RatePerBag:   decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
	}, 0)
	require.NoError(t, err)
	require.Equal(t, 100, lot.RemainingBags)
	require.Equal(t, "A", lot.QualityGrade)
	require.NotNil(t, lot.WeightPerBag)
	require.InDelta(t, 50.0, *lot.WeightPerBag, 1e-9)
	require.True(t, lot.TotalAmount.Valid)
	require.True(t, decimal.RequireFromString("1250").Equal(lot.TotalAmount.Decimal))

	_, err = f.svc.CreateLot(ctx, stock.CreateLotInput{
		DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 3,
		RatePerBag: decimal.NewNullDecimal(decimal.RequireFromString("12.505")),
	}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	noRate, err := f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 3}, 0)
	require.NoError(t, err)
	require.False(t, noRate.TotalAmount.Valid)
}

func TestCreateLotUsesItemBagWeight(t *testing.T) {
	f := newFixture(t, nil, nil)
	wheat := f.store.AddItem("Wheat", "", 80)
	lot, err := f.svc.CreateLot(context.Background(), stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: wheat.ID, TotalBags: 3}, 0)
	require.NoError(t, err)
	require.InDelta(t, 80.0, *lot.WeightPerBag, 1e-9)
}

func TestMergeIntoLot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	lot, err := f.svc.CreateLot(ctx, stock.CreateLotInput{
		DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10,
		RatePerBag: decimal.NewNullDecimal(decimal.NewFromInt(3)),
	}, 0)
	require.NoError(t, err)
	_, err = f.svc.DecrementLot(ctx, lot.ID, 4, 0)
	require.NoError(t, err)

	merged, err := f.svc.MergeIntoLot(ctx, lot.ID, stock.MergeLotInput{AdditionalBags: 5}, 0)
	require.NoError(t, err)
	require.Equal(t, 15, merged.TotalBags)
	require.Equal(t, 11, merged.RemainingBags)
	require.InDelta(t, 50.0, *merged.WeightPerBag, 1e-9)
	require.True(t, decimal.NewFromInt(45).Equal(merged.TotalAmount.Decimal))

	w := 60.0
	merged, err = f.svc.MergeIntoLot(ctx, lot.ID, stock.MergeLotInput{AdditionalBags: 1, WeightPerBag: &w}, 0)
	require.NoError(t, err)
	require.InDelta(t, 60.0, *merged.WeightPerBag, 1e-9)

	_, err = f.svc.MergeIntoLot(ctx, lot.ID, stock.MergeLotInput{AdditionalBags: 0}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.MergeIntoLot(ctx, 999, stock.MergeLotInput{AdditionalBags: 1}, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDecrementLot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	lot, err := f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 50}, 0)
	require.NoError(t, err)

	_, err = f.svc.DecrementLot(ctx, lot.ID, 0, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.DecrementLot(ctx, lot.ID, 51, 0)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 50, stockErr.Available)
	require.Equal(t, 51, stockErr.Requested)

	_, err = f.svc.DecrementLot(ctx, 999, 1, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)

	left, err := f.svc.DecrementLot(ctx, lot.ID, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 0, left.RemainingBags)
}

func TestCombinedStockRoundTripAndRegressionAnchor(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	w := 50.0
	lot, err := f.svc.CreateLot(ctx, stock.CreateLotInput{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 100, WeightPerBag: &w}, 0)
	require.NoError(t, err)

	units, err := f.svc.CombinedStock(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.Equal(t, 100, units[0].RemainingBags)
	require.Equal(t, "L-100", units[0].Delivery.DeliveryNumber)

	_, err = f.svc.DecrementLot(ctx, lot.ID, 60, 0)
	require.NoError(t, err)
	units, err = f.svc.CombinedStock(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.InDelta(t, 2000.0, units[0].RemainingWeight, 1e-9)
	require.Equal(t, 40, units[0].RemainingBags)
}

func TestCombinedStockIncludesSkippedLines(t *testing.T) {
	store := stocktest.NewStore()
	sup := store.AddSupplier("Agro")
	rice := store.AddItem("Rice", "", 50)
	d := store.AddDelivery("L-1", sup.ID)
	lot := store.PutLot(stock.Lot{DeliveryID: d.ID, ItemID: rice.ID, TotalBags: 40, RemainingBags: 20})
	lotID := lot.ID
	skipped := staticSkipped{lines: []stock.SkippedLine{{DeliveryID: d.ID, ItemName: "Rice", Bags: 20, LotID: &lotID}}}

	svc := stock.NewService(store, skipped, nil, nil, stock.ServiceConfig{}, nil)
	units, err := svc.CombinedStock(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.InDelta(t, 2000.0, units[0].RemainingWeight, 1e-9)
	require.True(t, units[0].IncludesSkippedItems)
}

func TestCombinedStockPropagatesSourceErrors(t *testing.T) {
	f := newFixture(t, staticSkipped{err: errors.New("intake down")}, nil)
	_, err := f.svc.CombinedStock(context.Background())
	require.ErrorContains(t, err, "intake down")
}

func TestCombinedStockCachedUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newFixture(t, nil, stock.NewCache(client, time.Minute))
	ctx := context.Background()

	lot := f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 10})
	units, err := f.svc.CombinedStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, units[0].RemainingBags)

	// Direct store writes bypass invalidation, so the cached view is served.
	f.store.PutLot(stock.Lot{ID: lot.ID, DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 3})
	units, err = f.svc.CombinedStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, units[0].RemainingBags)

	f.svc.Invalidate(ctx)
	units, err = f.svc.CombinedStock(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, units[0].RemainingBags)

	n, err := f.svc.Warm(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCombinedStockConcurrentReaders(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 10})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			units, err := f.svc.CombinedStock(context.Background())
			require.NoError(t, err)
			require.Len(t, units, 1)
		}()
	}
	wg.Wait()
}

func TestAuditReportsBrokenInvariants(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	healthy := f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 5})
	over := f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 12, QualityGrade: "B"})
	negative := f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: -1, QualityGrade: "C"})

	report, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	require.False(t, report.Healthy())
	require.Equal(t, 3, report.CheckedLots)

	kinds := map[int64]string{}
	for _, v := range report.Violations {
		kinds[v.LotID] = v.Kind
	}
	require.NotContains(t, kinds, healthy.ID)
	require.Equal(t, stock.ViolationLotOverTotal, kinds[over.ID])
	require.Equal(t, stock.ViolationLotNegative, kinds[negative.ID])

	unitKinds := 0
	for _, v := range report.Violations {
		if v.Kind == stock.ViolationUnitWeight {
			unitKinds++
		}
	}
	require.Equal(t, 1, unitKinds)
}

func TestAuditFlagsUnitBackedOnlyByExhaustedLot(t *testing.T) {
	store := stocktest.NewStore()
	supplier := store.AddSupplier("Agro Traders")
	rice := store.AddItem("Rice", "", 50)
	d := store.AddDelivery("L-5", supplier.ID)
	lot := store.PutLot(stock.Lot{DeliveryID: d.ID, ItemID: rice.ID, TotalBags: 10, RemainingBags: 0})
	lotID := lot.ID
	skipped := staticSkipped{lines: []stock.SkippedLine{{DeliveryID: d.ID, ItemName: "Rice", Bags: 4, LotID: &lotID}}}
	svc := stock.NewService(store, skipped, nil, nil, stock.ServiceConfig{DefaultBagWeight: 50}, nil)

	report, err := svc.Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.CheckedUnits)
	require.Len(t, report.Violations, 1)
	require.Equal(t, stock.ViolationUnitUntraceable, report.Violations[0].Kind)
	require.Equal(t, d.ID, report.Violations[0].DeliveryID)
}

func TestAuditHealthyStore(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.PutLot(stock.Lot{DeliveryID: f.delivery.ID, ItemID: f.rice.ID, TotalBags: 10, RemainingBags: 5})
	report, err := f.svc.Audit(context.Background())
	require.NoError(t, err)
	require.True(t, report.Healthy())
	require.Equal(t, 1, report.CheckedUnits)
}
