package stock

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// floorEpsilon absorbs float noise so 2000/50 floors to 40, not 39.
const floorEpsilon = 1e-9

type groupKey struct {
	item       string
	quality    string
	deliveryID int64
}

type group struct {
	unit CombinedStockUnit
	seen map[int64]struct{}
}

// Combine merges lots and duplicate-skipped intake lines into sellable units.
// Lots are grouped by (normalised item name, trimmed quality grade, delivery);
// the group sums weight, never bags, and converts back to bags using the
// basis of its first lot. Units with no whole bag left, or with no lot a sale
// could decrement, are omitted.
func Combine(lots []LotView, skipped []SkippedLine, defaultBagWeight float64) []CombinedStockUnit {
	if defaultBagWeight <= 0 {
		defaultBagWeight = DefaultBagWeight
	}
	lower := cases.Lower(language.Und)
	keyOf := func(itemName, quality string, deliveryID int64) groupKey {
		return groupKey{
			item:       lower.String(strings.TrimSpace(itemName)),
			quality:    strings.TrimSpace(quality),
			deliveryID: deliveryID,
		}
	}

	sorted := make([]LotView, 0, len(lots))
	for _, lot := range lots {
		if lot.RemainingBags < 0 {
			continue
		}
		sorted = append(sorted, lot)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	groups := make(map[groupKey]*group)
	for _, lot := range sorted {
		basis := bagWeightBasis(lot.WeightPerBag, lot.ItemBagWeight, defaultBagWeight)
		totalWeight := float64(lot.TotalBags) * basis
		remainingWeight := float64(lot.RemainingBags) * basis

		key := keyOf(lot.ItemName, lot.QualityGrade, lot.DeliveryID)
		g, ok := groups[key]
		if !ok {
			g = &group{
				unit: CombinedStockUnit{
					LotIDs:         []int64{},
					Item:           CombinedItem{Name: strings.TrimSpace(lot.ItemName), Quality: lot.ItemQuality, BagWeight: lot.ItemBagWeight},
					Delivery:       CombinedDelivery{ID: lot.DeliveryID, DeliveryNumber: lot.DeliveryNumber, SupplierName: lot.SupplierName},
					QualityGrade:   key.quality,
					BagWeightBasis: basis,
				},
				seen: make(map[int64]struct{}),
			}
			groups[key] = g
		}
		g.unit.TotalWeight += totalWeight
		g.unit.RemainingWeight += remainingWeight
		if remainingWeight > 0 {
			g.addLot(lot.ID)
		}
	}

	for _, line := range skipped {
		if line.Bags <= 0 {
			continue
		}
		basis := bagWeightBasis(line.WeightPerBag, line.ItemBagWeight, defaultBagWeight)
		weight := float64(line.Bags) * basis

		key := keyOf(line.ItemName, line.QualityGrade, line.DeliveryID)
		g, ok := groups[key]
		if !ok {
			if line.LotID == nil || *line.LotID <= 0 {
				continue
			}
			g = &group{
				unit: CombinedStockUnit{
					LotIDs:         []int64{},
					Item:           CombinedItem{Name: strings.TrimSpace(line.ItemName), Quality: line.ItemQuality, BagWeight: line.ItemBagWeight},
					Delivery:       CombinedDelivery{ID: line.DeliveryID, DeliveryNumber: line.DeliveryNumber, SupplierName: line.SupplierName},
					QualityGrade:   key.quality,
					BagWeightBasis: basis,
				},
				seen: make(map[int64]struct{}),
			}
			groups[key] = g
		}
		g.unit.TotalWeight += weight
		g.unit.RemainingWeight += weight
		g.unit.IncludesSkippedItems = true
		if line.LotID != nil && *line.LotID > 0 {
			g.addLot(*line.LotID)
		}
	}

	units := make([]CombinedStockUnit, 0, len(groups))
	for _, g := range groups {
		unit := g.unit
		unit.RemainingBags = DisplayBags(unit.RemainingWeight, unit.BagWeightBasis)
		unit.TotalBags = DisplayBags(unit.TotalWeight, unit.BagWeightBasis)
		if unit.RemainingBags <= 0 || len(unit.LotIDs) == 0 {
			continue
		}
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool {
		a, b := units[i], units[j]
		an, bn := lower.String(a.Item.Name), lower.String(b.Item.Name)
		if an != bn {
			return an < bn
		}
		if a.QualityGrade != b.QualityGrade {
			return a.QualityGrade < b.QualityGrade
		}
		return a.Delivery.ID < b.Delivery.ID
	})
	return units
}

// DisplayBags converts a weight into whole bags of the given basis.
func DisplayBags(weight, basis float64) int {
	if basis <= 0 || weight <= 0 {
		return 0
	}
	return int(math.Floor(weight/basis + floorEpsilon))
}

func bagWeightBasis(own, item *float64, fallback float64) float64 {
	if own != nil && *own > 0 {
		return *own
	}
	if item != nil && *item > 0 {
		return *item
	}
	return fallback
}

func (g *group) addLot(id int64) {
	if _, ok := g.seen[id]; ok {
		return
	}
	g.seen[id] = struct{}{}
	g.unit.LotIDs = append(g.unit.LotIDs, id)
}
