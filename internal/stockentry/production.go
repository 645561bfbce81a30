package stockentry

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
)

// validateProductionOrder checks the linked production order and the
// finished-goods rows of a manufacture entry. Purposes that cannot act on a
// production order get the link cleared instead of failing.
func (s *Service) validateProductionOrder(ctx context.Context, e *StockEntry) error {
	if e.Purpose != PurposeManufacture && e.Purpose != PurposeMaterialTransfer {
		e.ProductionOrder = ""
		e.FGCompletedQty = 0
	}
	if e.ProductionOrder == "" {
		if e.Purpose == PurposeManufacture && e.BOMNo != "" && e.FGCompletedQty <= 0 {
			return newError(ErrKindManufacturingQtyMandatory, "manufacturing quantity is mandatory")
		}
		return s.validateFinishedGoods(ctx, e, nil)
	}

	order, err := s.orders.GetOrder(ctx, e.ProductionOrder)
	if err != nil {
		if errors.Is(err, manufacturing.ErrOrderNotFound) {
			return newError(ErrKindDoesNotExist, "production order %s does not exist", e.ProductionOrder)
		}
		return err
	}
	if !order.Submitted() {
		return newError(ErrKindInvalidStatus, "production order %s must be submitted", order.Name)
	}
	if order.Status == manufacturing.OrderStatusStopped {
		return newError(ErrKindOrderStopped, "production order %s is stopped", order.Name)
	}
	if e.Purpose == PurposeManufacture {
		if e.FGCompletedQty <= 0 {
			return newError(ErrKindManufacturingQtyMandatory, "manufacturing quantity is mandatory")
		}
		if order.ProducedQty+e.FGCompletedQty > order.Qty+qtyTolerance {
			return newError(ErrKindStockOverProduction,
				"cannot produce %g more against production order %s, only %g remaining",
				e.FGCompletedQty, order.Name, order.Qty-order.ProducedQty)
		}
	}
	return s.validateFinishedGoods(ctx, e, &order)
}

// validateFinishedGoods checks that manufacture entries carry finished-goods
// rows matching the completed quantity and a BOM that actually produces the
// row's item.
func (s *Service) validateFinishedGoods(ctx context.Context, e *StockEntry, order *manufacturing.Order) error {
	if e.Purpose != PurposeManufacture {
		return nil
	}
	fgQty := 0.0
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.BOMNo == "" {
			continue
		}
		active, err := s.boms.IsActiveBOMFor(ctx, line.ItemCode, line.BOMNo)
		if err != nil {
			return err
		}
		if !active {
			return newRowError(ErrKindInvalidBOM, i+1,
				"%s is not an active bill of materials for item %s", line.BOMNo, line.ItemCode)
		}
		if order != nil && line.ItemCode != order.ProductionItem {
			return newRowError(ErrKindInvalidBOM, i+1,
				"item %s is not produced by production order %s", line.ItemCode, order.Name)
		}
		fgQty += line.TransferQty
	}
	if e.FGCompletedQty > 0 && math.Abs(fgQty-e.FGCompletedQty) > qtyTolerance {
		return newError(ErrKindFinishedGoodsQtyMismatch,
			"finished goods quantity %g does not match the manufacturing quantity %g", fgQty, e.FGCompletedQty)
	}
	return nil
}

// checkDuplicateProduction rejects a manufacture submission when sibling
// entries have already booked the order's full quantity. Runs inside the
// posting transaction so concurrent submissions observe each other through
// the per-order lock.
func checkDuplicateProduction(ctx context.Context, tx TxRepository, e *StockEntry, order manufacturing.Order) error {
	if e.Purpose != PurposeManufacture {
		return nil
	}
	already, err := tx.FinishedGoodsAlreadyEntered(ctx, order.Name, e.Purpose, e.Name)
	if err != nil {
		return err
	}
	if already >= order.Qty-qtyTolerance {
		return newError(ErrKindDuplicateProductionEntry,
			"stock entries for the full quantity of production order %s already exist", order.Name)
	}
	if already+e.FGCompletedQty > order.Qty+qtyTolerance {
		return newError(ErrKindStockOverProduction,
			"cannot produce %g more against production order %s, only %g remaining",
			e.FGCompletedQty, order.Name, order.Qty-already)
	}
	return nil
}

// applyProductionProgress moves the produced quantity of the linked order by
// the entry's completed quantity. sign is +1 on submit and -1 on cancel. The
// planned quantity in the finished-goods bin shrinks as production lands and
// grows back on cancellation.
func applyProductionProgress(ctx context.Context, tx TxRepository, e *StockEntry, sign float64) error {
	if e.Purpose != PurposeManufacture || e.ProductionOrder == "" {
		return nil
	}
	order, err := tx.GetProductionOrderForUpdate(ctx, e.ProductionOrder)
	if err != nil {
		return err
	}
	produced := order.ProducedQty + sign*e.FGCompletedQty
	if produced > order.Qty+qtyTolerance {
		return newError(ErrKindStockOverProduction,
			"cannot produce %g more against production order %s, only %g remaining",
			e.FGCompletedQty, order.Name, order.Qty-order.ProducedQty)
	}
	if produced < 0 {
		produced = 0
	}
	status := manufacturing.DeriveStatus(produced, order.Qty)
	if err := tx.SaveProductionOrderProgress(ctx, order.Name, produced, status); err != nil {
		return err
	}
	return tx.AdjustPlannedQty(ctx, order.ProductionItem, order.FGWarehouse, -sign*e.FGCompletedQty)
}

// pendingRawMaterials computes the raw materials still to be issued against
// a production order, capped at the order's own remainder. Items already
// fully issued are dropped and reported through notices.
func (s *Service) pendingRawMaterials(ctx context.Context, e *StockEntry, order manufacturing.Order) ([]StockEntryLine, []Notice, error) {
	unit, err := s.boms.Explode(ctx, order.BOMNo, 1, order.UseMultiLevelBOM)
	if err != nil {
		return nil, nil, err
	}
	issued, err := s.repo.IssuedQtyForOrder(ctx, order.Name)
	if err != nil {
		return nil, nil, err
	}

	codes := make([]string, 0, len(unit))
	for code := range unit {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var lines []StockEntryLine
	var exhausted []string
	var trimmed []string
	for _, code := range codes {
		component := unit[code]
		requested := e.FGCompletedQty * component.Qty
		remaining := order.Qty*component.Qty - issued[code]
		qty := math.Min(requested, remaining)
		if qty <= qtyTolerance {
			exhausted = append(exhausted, code)
			continue
		}
		if qty < requested-qtyTolerance {
			trimmed = append(trimmed, code)
		}
		// Manufacture consumes from work in progress. A transfer moves the
		// component out of its own store into work in progress instead.
		source := order.WIPWarehouse
		if e.Purpose == PurposeMaterialTransfer {
			source = firstNonEmpty(component.DefaultWarehouse, e.FromWarehouse)
		}
		lines = append(lines, StockEntryLine{
			ItemCode:        code,
			SourceWarehouse: source,
			Qty:             qty,
			TransferQty:     qty,
		})
	}

	var notices []Notice
	if len(exhausted) > 0 {
		notices = append(notices, Notice{
			Code:    NoticeAllTransferred,
			Message: "all raw materials have already been transferred for some items",
			Items:   exhausted,
		})
	}
	if len(trimmed) > 0 {
		notices = append(notices, Notice{
			Code:    NoticePartiallyFetched,
			Message: "pending quantity fetched is capped at the production order remainder",
			Items:   trimmed,
		})
	}
	return lines, notices, nil
}
