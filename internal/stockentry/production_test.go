package stockentry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-erp/atlas-erp/internal/bom"
	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
)

func (f *fixture) seedSubmittedOrder(name string, qty, produced float64) {
	f.seedOrder(manufacturing.Order{
		Name:           name,
		ProductionItem: "FG-1",
		BOMNo:          "BOM-1",
		Qty:            qty,
		ProducedQty:    produced,
		Status:         manufacturing.OrderStatusInProcess,
		DocStatus:      1,
		WIPWarehouse:   "WH-WIP",
		FGWarehouse:    "WH-FG",
	})
}

func TestValidateProductionOrderClearsLinkForOtherPurposes(t *testing.T) {
	f := newFixture(t)
	e := StockEntry{
		Purpose:         PurposeMaterialIssue,
		ProductionOrder: "MFG-1",
		FGCompletedQty:  3,
	}

	require.NoError(t, f.svc.validateProductionOrder(context.Background(), &e))
	require.Empty(t, e.ProductionOrder)
	require.Zero(t, e.FGCompletedQty)
}

func TestValidateProductionOrderMissing(t *testing.T) {
	f := newFixture(t)
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-GONE", FGCompletedQty: 1}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindDoesNotExist))
}

func TestValidateProductionOrderMustBeSubmitted(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(manufacturing.Order{Name: "MFG-1", Qty: 5, DocStatus: 0})
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 1}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindInvalidStatus))
}

func TestValidateProductionOrderStopped(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(manufacturing.Order{
		Name: "MFG-1", Qty: 5, DocStatus: 1, Status: manufacturing.OrderStatusStopped,
	})
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 1}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindOrderStopped))
}

func TestValidateProductionOrderManufactureQtyMandatory(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1"}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindManufacturingQtyMandatory))
}

func TestValidateProductionOrderOverProduction(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 4)
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 2}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindStockOverProduction))
}

func TestValidateFinishedGoodsInactiveBOM(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	e := StockEntry{
		Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 2,
		Lines: []StockEntryLine{
			{ItemCode: "FG-1", BOMNo: "BOM-STALE", TransferQty: 2},
		},
	}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindInvalidBOM))
}

func TestValidateFinishedGoodsWrongItemForOrder(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	f.boms.active["FG-OTHER|BOM-2"] = true
	e := StockEntry{
		Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 2,
		Lines: []StockEntryLine{
			{ItemCode: "FG-OTHER", BOMNo: "BOM-2", TransferQty: 2},
		},
	}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindInvalidBOM))
}

func TestValidateFinishedGoodsQtyMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	f.boms.active["FG-1|BOM-1"] = true
	e := StockEntry{
		Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 3,
		Lines: []StockEntryLine{
			{ItemCode: "FG-1", BOMNo: "BOM-1", TransferQty: 2},
		},
	}

	err := f.svc.validateProductionOrder(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindFinishedGoodsQtyMismatch))
}

func TestCheckDuplicateProductionFullQtyBooked(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	f.seedEntry(StockEntry{
		Name: "STE-SIBLING", Purpose: PurposeManufacture, ProductionOrder: "MFG-1",
		DocStatus: DocStatusSubmitted,
		Lines:     []StockEntryLine{{ItemCode: "FG-1", TransferQty: 5}},
	})

	e := StockEntry{Name: "STE-NEW", Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 1}
	order := *f.store.orders["MFG-1"]
	err := checkDuplicateProduction(context.Background(), &memoryTx{store: f.store}, &e, order)
	require.True(t, IsKind(err, ErrKindDuplicateProductionEntry))
}

func TestCheckDuplicateProductionPartialOverrun(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	f.seedEntry(StockEntry{
		Name: "STE-SIBLING", Purpose: PurposeManufacture, ProductionOrder: "MFG-1",
		DocStatus: DocStatusSubmitted,
		Lines:     []StockEntryLine{{ItemCode: "FG-1", TransferQty: 3}},
	})

	e := StockEntry{Name: "STE-NEW", Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 3}
	order := *f.store.orders["MFG-1"]
	err := checkDuplicateProduction(context.Background(), &memoryTx{store: f.store}, &e, order)
	require.True(t, IsKind(err, ErrKindStockOverProduction))
}

func TestApplyProductionProgressRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 5, 0)
	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 5}
	tx := &memoryTx{store: f.store}

	require.NoError(t, applyProductionProgress(context.Background(), tx, &e, +1))
	order := f.store.orders["MFG-1"]
	require.Equal(t, 5.0, order.ProducedQty)
	require.Equal(t, manufacturing.OrderStatusCompleted, order.Status)
	require.Equal(t, -5.0, f.store.plannedQty[binKey("FG-1", "WH-FG")])

	require.NoError(t, applyProductionProgress(context.Background(), tx, &e, -1))
	require.Equal(t, 0.0, order.ProducedQty)
	require.Equal(t, manufacturing.OrderStatusInProcess, order.Status)
	require.Equal(t, 0.0, f.store.plannedQty[binKey("FG-1", "WH-FG")])
}

func TestFetchItemsRequiresOrderAndQty(t *testing.T) {
	f := newFixture(t)

	e := StockEntry{Purpose: PurposeManufacture, FGCompletedQty: 1}
	_, err := f.svc.FetchItems(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindDoesNotExist))

	e = StockEntry{Purpose: PurposeMaterialIssue, ProductionOrder: "MFG-1", FGCompletedQty: 1}
	_, err = f.svc.FetchItems(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindInvalidPurpose))

	e = StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1"}
	_, err = f.svc.FetchItems(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindManufacturingQtyMandatory))
}

func TestFetchItemsCapsPendingAtOrderRemainder(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 10, 0)
	f.boms.exploded["BOM-1"] = map[string]bom.ExplodedItem{
		"RM-1": {ItemCode: "RM-1", Qty: 2},
		"RM-2": {ItemCode: "RM-2", Qty: 1},
	}
	// RM-1 has 16 of 20 issued, RM-2 is fully issued.
	f.seedEntry(StockEntry{
		Name: "STE-ISSUED", Purpose: PurposeMaterialTransfer, ProductionOrder: "MFG-1",
		DocStatus: DocStatusSubmitted,
		Lines: []StockEntryLine{
			{ItemCode: "RM-1", TransferQty: 16},
			{ItemCode: "RM-2", TransferQty: 10},
		},
	})

	e := StockEntry{Purpose: PurposeManufacture, ProductionOrder: "MFG-1", FGCompletedQty: 3}
	notices, err := f.svc.FetchItems(context.Background(), &e)
	require.NoError(t, err)

	// Requested 6 of RM-1 but only 4 remain against the order; RM-2 is gone.
	// The finished goods row follows the raw materials.
	require.Len(t, e.Lines, 2)
	require.Equal(t, "RM-1", e.Lines[0].ItemCode)
	require.Equal(t, 4.0, e.Lines[0].Qty)
	require.Equal(t, "WH-WIP", e.Lines[0].SourceWarehouse)
	require.Equal(t, "FG-1", e.Lines[1].ItemCode)
	require.Equal(t, 3.0, e.Lines[1].Qty)
	require.Equal(t, "WH-FG", e.Lines[1].TargetWarehouse)
	require.Equal(t, "BOM-1", e.Lines[1].BOMNo)
	require.Equal(t, "WH-WIP", e.FromWarehouse)
	require.Equal(t, "BOM-1", e.BOMNo)

	require.Len(t, notices, 2)
	require.Equal(t, NoticeAllTransferred, notices[0].Code)
	require.Equal(t, []string{"RM-2"}, notices[0].Items)
	require.Equal(t, NoticePartiallyFetched, notices[1].Code)
	require.Equal(t, []string{"RM-1"}, notices[1].Items)
}

func TestFetchItemsForTransferSkipsFinishedGoods(t *testing.T) {
	f := newFixture(t)
	f.seedSubmittedOrder("MFG-1", 10, 0)
	f.boms.exploded["BOM-1"] = map[string]bom.ExplodedItem{
		"RM-1": {ItemCode: "RM-1", Qty: 2, DefaultWarehouse: "WH-STORE"},
	}

	e := StockEntry{Purpose: PurposeMaterialTransfer, ProductionOrder: "MFG-1", FGCompletedQty: 3}
	notices, err := f.svc.FetchItems(context.Background(), &e)
	require.NoError(t, err)
	require.Empty(t, notices)
	require.Len(t, e.Lines, 1)
	require.Equal(t, "RM-1", e.Lines[0].ItemCode)
	require.Equal(t, 6.0, e.Lines[0].Qty)
	require.Equal(t, "WH-STORE", e.Lines[0].SourceWarehouse)
	require.Equal(t, "WH-WIP", e.ToWarehouse)
}

func TestFetchItemsForTransferLinesSurviveValidation(t *testing.T) {
	f := newFixture(t)
	f.seedItem("RM-1", "Raw One")
	f.seedSubmittedOrder("MFG-1", 10, 0)
	f.boms.exploded["BOM-1"] = map[string]bom.ExplodedItem{
		"RM-1": {ItemCode: "RM-1", Qty: 2},
	}

	e := StockEntry{
		Purpose:         PurposeMaterialTransfer,
		ProductionOrder: "MFG-1",
		FromWarehouse:   "WH-STORE",
		FGCompletedQty:  3,
		PostedAt:        ts(15, 10),
	}
	_, err := f.svc.FetchItems(context.Background(), &e)
	require.NoError(t, err)
	require.Equal(t, "WH-STORE", e.Lines[0].SourceWarehouse)

	f.store.seedLedger("RM-1", "WH-STORE", ts(1, 9), 20, 25, ledger.VoucherTypePurchaseReceipt, "PR-1")
	require.NoError(t, f.svc.validate(context.Background(), f.store, &e))
	require.Equal(t, "WH-STORE", e.Lines[0].SourceWarehouse)
	require.Equal(t, "WH-WIP", e.Lines[0].TargetWarehouse)
}
