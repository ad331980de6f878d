package stocktest

import (
	"context"

	"github.com/odyssey-erp/laadstock/internal/stock"
)

// Tx implements stock.LotTx against the store. It is only valid inside Run.
type Tx struct {
	store *Store
}

var _ stock.LotTx = (*Tx)(nil)

// NextID mints an id from the store sequence so other fakes can share it.
func (t *Tx) NextID() int64 {
	return t.store.id()
}

func (t *Tx) GetSupplier(ctx context.Context, id int64) (stock.Supplier, error) {
	sup, ok := t.store.suppliers[id]
	if !ok {
		return stock.Supplier{}, stock.ErrSupplierNotFound
	}
	return sup, nil
}

func (t *Tx) GetItem(ctx context.Context, id int64) (stock.Item, error) {
	item, ok := t.store.items[id]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	return item, nil
}

func (t *Tx) InsertDelivery(ctx context.Context, d stock.Delivery) (stock.Delivery, error) {
	d.ID = t.store.id()
	t.store.deliveries[d.ID] = d
	return d, nil
}

func (t *Tx) GetDelivery(ctx context.Context, id int64) (stock.Delivery, error) {
	d, ok := t.store.deliveries[id]
	if !ok {
		return stock.Delivery{}, stock.ErrDeliveryNotFound
	}
	return d, nil
}

func (t *Tx) InsertLot(ctx context.Context, lot stock.Lot) (stock.Lot, error) {
	lot.ID = t.store.id()
	t.store.lots[lot.ID] = lot
	return lot, nil
}

func (t *Tx) GetLotViewForUpdate(ctx context.Context, id int64) (stock.LotView, error) {
	lot, ok := t.store.lots[id]
	if !ok {
		return stock.LotView{}, stock.ErrLotNotFound
	}
	return t.store.view(lot), nil
}

func (t *Tx) FindLot(ctx context.Context, deliveryID, itemID int64, qualityGrade string) (stock.Lot, error) {
	var found *stock.Lot
	for _, lot := range t.store.lots {
		if lot.DeliveryID != deliveryID || lot.ItemID != itemID || lot.QualityGrade != qualityGrade {
			continue
		}
		if found == nil || lot.ID < found.ID {
			l := lot
			found = &l
		}
	}
	if found == nil {
		return stock.Lot{}, stock.ErrLotNotFound
	}
	return *found, nil
}

func (t *Tx) UpdateLotTotals(ctx context.Context, lot stock.Lot) (stock.Lot, error) {
	if _, ok := t.store.lots[lot.ID]; !ok {
		return stock.Lot{}, stock.ErrLotNotFound
	}
	t.store.lots[lot.ID] = lot
	return lot, nil
}

func (t *Tx) DecrementLot(ctx context.Context, id int64, bags int) (stock.Lot, bool, error) {
	lot, ok := t.store.lots[id]
	if !ok || lot.RemainingBags < bags {
		return stock.Lot{}, false, nil
	}
	lot.RemainingBags -= bags
	t.store.lots[id] = lot
	return lot, true, nil
}
