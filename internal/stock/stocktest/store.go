// Package stocktest provides an in-memory lot store for tests. Transactions
// are serialised by a mutex and roll back on error, which mirrors the row
// locking the PostgreSQL repository relies on.
package stocktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/laadstock/internal/stock"
)

// Store keeps suppliers, items, deliveries and lots in memory.
type Store struct {
	mu         sync.Mutex
	suppliers  map[int64]stock.Supplier
	items      map[int64]stock.Item
	deliveries map[int64]stock.Delivery
	lots       map[int64]stock.Lot
	nextID     int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		suppliers:  make(map[int64]stock.Supplier),
		items:      make(map[int64]stock.Item),
		deliveries: make(map[int64]stock.Delivery),
		lots:       make(map[int64]stock.Lot),
	}
}

type snapshot struct {
	deliveries map[int64]stock.Delivery
	lots       map[int64]stock.Lot
	nextID     int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		deliveries: make(map[int64]stock.Delivery, len(s.deliveries)),
		lots:       make(map[int64]stock.Lot, len(s.lots)),
		nextID:     s.nextID,
	}
	for k, v := range s.deliveries {
		snap.deliveries[k] = v
	}
	for k, v := range s.lots {
		snap.lots[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.deliveries = snap.deliveries
	s.lots = snap.lots
	s.nextID = snap.nextID
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Run executes fn inside an exclusive transaction. Stock state is restored
// when fn returns an error.
func (s *Store) Run(ctx context.Context, fn func(context.Context, *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(ctx, &Tx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithTx satisfies stock.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, stock.LotTx) error) error {
	return s.Run(ctx, func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// AddSupplier seeds a supplier.
func (s *Store) AddSupplier(name string) stock.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup := stock.Supplier{ID: s.id(), Name: name}
	s.suppliers[sup.ID] = sup
	return sup
}

// AddItem seeds an item. bagWeight <= 0 leaves the item without a bag weight.
func (s *Store) AddItem(name, quality string, bagWeight float64) stock.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := stock.Item{ID: s.id(), Name: name, Quality: quality}
	if bagWeight > 0 {
		item.BagWeight = &bagWeight
	}
	s.items[item.ID] = item
	return item
}

// AddDelivery seeds a delivery.
func (s *Store) AddDelivery(number string, supplierID int64) stock.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := stock.Delivery{ID: s.id(), DeliveryNumber: number, SupplierID: supplierID, ArrivalDate: time.Now().UTC()}
	if sup, ok := s.suppliers[supplierID]; ok {
		d.SupplierName = sup.Name
	}
	s.deliveries[d.ID] = d
	return d
}

// PutLot stores lot as-is, assigning an id when missing.
func (s *Store) PutLot(lot stock.Lot) stock.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lot.ID == 0 {
		lot.ID = s.id()
	}
	s.lots[lot.ID] = lot
	return lot
}

// Lot returns a copy of a stored lot.
func (s *Store) Lot(id int64) (stock.Lot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	return lot, ok
}

// Item returns a seeded item.
func (s *Store) Item(id int64) (stock.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// ListLotViews satisfies stock.RepositoryPort.
func (s *Store) ListLotViews(ctx context.Context) ([]stock.LotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views(func(stock.Lot) bool { return true }), nil
}

// ListLots satisfies stock.RepositoryPort.
func (s *Store) ListLots(ctx context.Context, deliveryID int64) ([]stock.LotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views(func(l stock.Lot) bool { return l.DeliveryID == deliveryID }), nil
}

// GetLotView satisfies stock.RepositoryPort.
func (s *Store) GetLotView(ctx context.Context, id int64) (stock.LotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	if !ok {
		return stock.LotView{}, stock.ErrLotNotFound
	}
	return s.view(lot), nil
}

// GetDelivery satisfies stock.RepositoryPort.
func (s *Store) GetDelivery(ctx context.Context, id int64) (stock.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return stock.Delivery{}, stock.ErrDeliveryNotFound
	}
	return d, nil
}

func (s *Store) views(keep func(stock.Lot) bool) []stock.LotView {
	out := []stock.LotView{}
	for _, lot := range s.lots {
		if keep(lot) {
			out = append(out, s.view(lot))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) view(lot stock.Lot) stock.LotView {
	item := s.items[lot.ItemID]
	d := s.deliveries[lot.DeliveryID]
	return stock.LotView{
		Lot:            lot,
		ItemName:       item.Name,
		ItemQuality:    item.Quality,
		ItemBagWeight:  item.BagWeight,
		DeliveryNumber: d.DeliveryNumber,
		SupplierName:   d.SupplierName,
	}
}
