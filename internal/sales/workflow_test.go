package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/laadstock/internal/shared"
	"github.com/odyssey-erp/laadstock/internal/stock"
)

// StockWorkflowSuite drives lots through sales and reads them back through
// the combined stock view.
type StockWorkflowSuite struct {
	suite.Suite
	h      *harness
	stock  *stock.Service
	ctx    context.Context
	lotA   stock.Lot
	weight float64
}

func (s *StockWorkflowSuite) SetupTest() {
	s.h = newHarness()
	s.ctx = context.Background()
	s.stock = stock.NewService(s.h.store, nil, nil, nil, stock.ServiceConfig{DefaultBagWeight: 50}, nil)
	s.weight = 50
	lot, err := s.stock.CreateLot(s.ctx, stock.CreateLotInput{
		DeliveryID:   s.h.delivery.ID,
		ItemID:       s.h.rice.ID,
		TotalBags:    100,
		WeightPerBag: &s.weight,
	}, 0)
	s.Require().NoError(err)
	s.lotA = lot
}

func (s *StockWorkflowSuite) unit() stock.CombinedStockUnit {
	units, err := s.stock.CombinedStock(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(units, 1)
	return units[0]
}

func (s *StockWorkflowSuite) TestNewLotShowsFullBagCount() {
	s.Equal(100, s.unit().RemainingBags)
}

func (s *StockWorkflowSuite) TestSaleInLargerCustomerBagsKeepsWeightTruth() {
	bagWeight := 80.0
	_, err := s.h.svc.CreateSale(s.ctx, SaleRequest{CustomerID: s.h.customerID, LotID: s.lotA.ID, BagsSold: 60, BagWeight: &bagWeight})
	s.Require().NoError(err)

	unit := s.unit()
	s.InDelta(2000.0, unit.RemainingWeight, 1e-9)
	s.Equal(40, unit.RemainingBags)
	s.InDelta(5000.0, unit.TotalWeight, 1e-9)
}

func (s *StockWorkflowSuite) TestSoldOutLotDisappears() {
	_, err := s.h.svc.CreateSale(s.ctx, SaleRequest{CustomerID: s.h.customerID, LotID: s.lotA.ID, BagsSold: 100})
	s.Require().NoError(err)

	units, err := s.stock.CombinedStock(s.ctx)
	s.Require().NoError(err)
	s.Empty(units)

	_, err = s.h.svc.CreateSale(s.ctx, SaleRequest{CustomerID: s.h.customerID, LotID: s.lotA.ID, BagsSold: 1})
	s.ErrorIs(err, shared.ErrInsufficientStock)
}

func (s *StockWorkflowSuite) TestMixOrderAcrossMergedLot() {
	_, err := s.stock.MergeIntoLot(s.ctx, s.lotA.ID, stock.MergeLotInput{AdditionalBags: 20}, 0)
	s.Require().NoError(err)
	other, err := s.stock.CreateLot(s.ctx, stock.CreateLotInput{DeliveryID: s.h.delivery.ID, ItemID: s.h.rice.ID, TotalBags: 10, WeightPerBag: &s.weight}, 0)
	s.Require().NoError(err)
	s.Equal(130, s.unit().RemainingBags)

	res, err := s.h.svc.CreateMixOrder(s.ctx, MixOrderRequest{
		CustomerID: s.h.customerID,
		Items:      []MixOrderItem{{LotID: s.lotA.ID, BagsSold: 115}, {LotID: other.ID, BagsSold: 10}},
	})
	s.Require().NoError(err)
	s.Equal(125, res.TotalBags)

	unit := s.unit()
	s.Equal(5, unit.RemainingBags)
	s.Equal([]int64{s.lotA.ID}, unit.LotIDs)

	report, err := s.stock.Audit(s.ctx)
	s.Require().NoError(err)
	s.True(report.Healthy())
}

func TestStockWorkflowSuite(t *testing.T) {
	suite.Run(t, new(StockWorkflowSuite))
}
