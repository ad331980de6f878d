package intake

import (
	"context"
	"sort"
	"sync"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
	"github.com/odyssey-erp/laadstock/internal/stock/stocktest"
)

type memoryRepo struct {
	store   *stocktest.Store
	mu      sync.Mutex
	entries map[int64]TruckArrivalEntry
	counter int64
}

type memoryTx struct {
	*stocktest.Tx
	repo *memoryRepo
}

func newMemoryRepo(store *stocktest.Store) *memoryRepo {
	return &memoryRepo{store: store, entries: make(map[int64]TruckArrivalEntry)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.store.Run(ctx, func(ctx context.Context, stx *stocktest.Tx) error {
		r.mu.Lock()
		snap := make(map[int64]TruckArrivalEntry, len(r.entries))
		for k, v := range r.entries {
			snap[k] = v
		}
		counter := r.counter
		r.mu.Unlock()
		if err := fn(ctx, &memoryTx{Tx: stx, repo: r}); err != nil {
			r.mu.Lock()
			r.entries = snap
			r.counter = counter
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

func (r *memoryRepo) GetEntry(ctx context.Context, id int64) (TruckArrivalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return TruckArrivalEntry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, deliveryID int64) ([]TruckArrivalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedEntries(func(e TruckArrivalEntry) bool { return e.DeliveryID == deliveryID }), nil
}

func (r *memoryRepo) ListSkippedLines(ctx context.Context) ([]stock.SkippedLine, error) {
	r.mu.Lock()
	entries := r.sortedEntries(func(TruckArrivalEntry) bool { return true })
	r.mu.Unlock()

	out := []stock.SkippedLine{}
	for _, e := range entries {
		delivery, err := r.store.GetDelivery(ctx, e.DeliveryID)
		if err != nil {
			return nil, err
		}
		for _, line := range e.Lines {
			if line.Status != OutcomeDuplicateSkipped {
				continue
			}
			item, _ := r.store.Item(line.ItemID)
			out = append(out, stock.SkippedLine{
				EntryID:        e.ID,
				DeliveryID:     e.DeliveryID,
				DeliveryNumber: delivery.DeliveryNumber,
				SupplierName:   delivery.SupplierName,
				ItemID:         line.ItemID,
				ItemName:       line.ItemName,
				ItemQuality:    item.Quality,
				ItemBagWeight:  item.BagWeight,
				QualityGrade:   line.QualityGrade,
				Bags:           line.TotalBags,
				WeightPerBag:   line.WeightPerBag,
				LotID:          line.LotID,
			})
		}
	}
	return out, nil
}

func (r *memoryRepo) sortedEntries(keep func(TruckArrivalEntry) bool) []TruckArrivalEntry {
	out := []TruckArrivalEntry{}
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (t *memoryTx) NextEntryNumber(ctx context.Context) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.counter++
	return t.repo.counter, nil
}

func (t *memoryTx) ListPostedLines(ctx context.Context, deliveryID int64) ([]EntryLine, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var posted []EntryLine
	for _, e := range t.repo.sortedEntries(func(e TruckArrivalEntry) bool { return e.DeliveryID == deliveryID }) {
		for _, line := range e.Lines {
			if line.Status.Posted() {
				posted = append(posted, line)
			}
		}
	}
	return posted, nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, e TruckArrivalEntry) (TruckArrivalEntry, error) {
	e.ID = t.NextID()
	t.repo.mu.Lock()
	t.repo.entries[e.ID] = e
	t.repo.mu.Unlock()
	return e, nil
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
	audit       *recordingAudit
	supplier    stock.Supplier
	delivery    stock.Delivery
	rice        stock.Item
	maize       stock.Item
}

func newHarness(locks LockPort) *harness {
	store := stocktest.NewStore()
	sup := store.AddSupplier("Agro Traders")
	h := &harness{
		store:       store,
		repo:        newMemoryRepo(store),
		invalidator: &countingInvalidator{},
		audit:       &recordingAudit{},
		supplier:    sup,
		delivery:    store.AddDelivery("L-200", sup.ID),
		rice:        store.AddItem("Rice", "", 50),
		maize:       store.AddItem("Maize", "", 0),
	}
	h.svc = NewService(h.repo, stock.NewLedger(40), Deps{
		Locks: locks,
		Stock: h.invalidator,
		Audit: h.audit,
	})
	return h
}

func (h *harness) arrival(lines ...ArrivalLine) ArrivalInput {
	return ArrivalInput{DeliveryID: h.delivery.ID, VehicleNumber: "KA-01-1234", Lines: lines}
}

func (h *harness) lots() []stock.LotView {
	views, _ := h.store.ListLots(context.Background(), h.delivery.ID)
	return views
}
