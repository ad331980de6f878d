package sales

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/internal/stock/stocktest"
)

type memoryRepo struct {
	store     *stocktest.Store
	mu        sync.Mutex
	customers map[int64]Customer
	sales     map[int64]Sale
	failOn    string
}

type memoryTx struct {
	*stocktest.Tx
	repo *memoryRepo
}

func newMemoryRepo(store *stocktest.Store) *memoryRepo {
	return &memoryRepo{store: store, customers: make(map[int64]Customer), sales: make(map[int64]Sale)}
}

func (r *memoryRepo) addCustomer(id int64, name string) {
	r.customers[id] = Customer{ID: id, Name: name}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Run(ctx, func(ctx context.Context, stx *stocktest.Tx) error {
		r.mu.Lock()
		snap := make(map[int64]Sale, len(r.sales))
		for k, v := range r.sales {
			snap[k] = v
		}
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{Tx: stx, repo: r}); err != nil {
			r.mu.Lock()
			r.sales = snap
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (r *memoryRepo) ListSalesByLot(ctx context.Context, lotID int64) ([]Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Sale{}
	for _, sale := range r.sales {
		if sale.LotID == lotID {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sales)
}

var errInjected = errors.New("injected failure")

func (t *memoryTx) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := t.repo.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	if t.repo.failOn == "insert" {
		return Sale{}, errInjected
	}
	sale.ID = t.NextID()
	t.repo.mu.Lock()
	t.repo.sales[sale.ID] = sale
	t.repo.mu.Unlock()
	return sale, nil
}

func (t *memoryTx) SetManifest(ctx context.Context, ids []int64, manifest []ManifestEntry) error {
	if t.repo.failOn == "manifest" {
		return errInjected
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, id := range ids {
		sale := t.repo.sales[id]
		sale.Manifest = manifest
		t.repo.sales[id] = sale
	}
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]struct{})
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	bags     int
}

func (m *recordingMetrics) ObserveSale(kind, outcome string, bags int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[kind+"/"+outcome]++
	m.bags += bags
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type harness struct {
	store       *stocktest.Store
	repo        *memoryRepo
	svc         *Service
	invalidator *countingInvalidator
	metrics     *recordingMetrics
	audit       *recordingAudit
	idem        *memoryIdempotency
	delivery    stock.Delivery
	rice        stock.Item
	wheat       stock.Item
	customerID  int64
}

func newHarness() *harness {
	store := stocktest.NewStore()
	sup := store.AddSupplier("Agro Traders")
	h := &harness{
		store:       store,
		repo:        newMemoryRepo(store),
		invalidator: &countingInvalidator{},
		metrics:     &recordingMetrics{},
		audit:       &recordingAudit{},
		idem:        &memoryIdempotency{},
		delivery:    store.AddDelivery("L-100", sup.ID),
		rice:        store.AddItem("Rice", "", 50),
		wheat:       store.AddItem("Wheat", "", 60),
		customerID:  500,
	}
	h.repo.addCustomer(h.customerID, "Bakery")
	h.svc = NewService(h.repo, stock.NewLedger(50), Deps{
		Stock:       h.invalidator,
		Audit:       h.audit,
		Idempotency: h.idem,
		Metrics:     h.metrics,
	})
	return h
}

func (h *harness) lot(item stock.Item, bags int, quality string) stock.Lot {
	return h.store.PutLot(stock.Lot{
		DeliveryID:    h.delivery.ID,
		ItemID:        item.ID,
		TotalBags:     bags,
		RemainingBags: bags,
		QualityGrade:  quality,
		RatePerBag:    decimal.NewNullDecimal(decimal.NewFromInt(10)),
	})
}

func (h *harness) remaining(id int64) int {
	lot, _ := h.store.Lot(id)
	return lot.RemainingBags
}
