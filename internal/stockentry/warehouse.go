package stockentry

import (
	"context"

	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
)

// resolveWarehouses applies header defaults and purpose rules to every line,
// mutating the lines in place. Purposes that only consume stock get their
// target side cleared, purposes that only produce stock get the source side
// cleared, and finished-goods lines of a manufacture entry are forced into
// the linked order's finished-goods warehouse.
func (s *Service) resolveWarehouses(ctx context.Context, e *StockEntry) error {
	sourceMandatory := s.rules.SourceMandatory[e.Purpose]
	targetMandatory := s.rules.TargetMandatory[e.Purpose]

	var order *manufacturing.Order
	if e.Purpose == PurposeManufacture && e.ProductionOrder != "" {
		o, err := s.orders.GetOrder(ctx, e.ProductionOrder)
		if err != nil {
			return err
		}
		order = &o
	}

	// A manufacture entry that carries a finished-goods line treats every
	// other line as a raw material being consumed.
	rawMaterials := false
	if e.Purpose == PurposeManufacture {
		for i := range e.Lines {
			if e.Lines[i].BOMNo != "" {
				rawMaterials = true
				break
			}
		}
	}

	for i := range e.Lines {
		line := &e.Lines[i]
		row := i + 1

		if line.SourceWarehouse == "" {
			line.SourceWarehouse = e.FromWarehouse
		}
		if line.TargetWarehouse == "" {
			line.TargetWarehouse = e.ToWarehouse
		}

		finishedGoods := e.Purpose == PurposeManufacture && line.BOMNo != ""
		if finishedGoods {
			// The produced item only ever enters stock.
			line.SourceWarehouse = ""
			if order != nil {
				if line.TargetWarehouse != "" && line.TargetWarehouse != order.FGWarehouse {
					return newRowError(ErrKindTargetWarehouseMismatch, row,
						"finished goods must go to warehouse %s of production order %s", order.FGWarehouse, order.Name)
				}
				line.TargetWarehouse = order.FGWarehouse
			}
			if line.TargetWarehouse == "" {
				return newRowError(ErrKindMissingTargetWarehouse, row, "target warehouse is mandatory for finished goods")
			}
			continue
		}

		if rawMaterials {
			line.TargetWarehouse = ""
			if line.SourceWarehouse == "" {
				return newRowError(ErrKindMissingSourceWarehouse, row, "source warehouse is mandatory for raw materials")
			}
			continue
		}

		if sourceMandatory && line.SourceWarehouse == "" {
			return newRowError(ErrKindMissingSourceWarehouse, row, "source warehouse is mandatory")
		}
		if targetMandatory && line.TargetWarehouse == "" {
			return newRowError(ErrKindMissingTargetWarehouse, row, "target warehouse is mandatory")
		}
		// Purposes with exactly one mandatory side get the other side
		// cleared. Purposes in neither set keep whatever the line carries.
		if sourceMandatory && !targetMandatory {
			line.TargetWarehouse = ""
		}
		if targetMandatory && !sourceMandatory {
			line.SourceWarehouse = ""
		}

		if line.SourceWarehouse != "" && line.SourceWarehouse == line.TargetWarehouse {
			return newRowError(ErrKindSourceEqualsTarget, row, "source and target warehouse cannot be the same")
		}
		if line.SourceWarehouse == "" && line.TargetWarehouse == "" {
			return newRowError(ErrKindMissingWarehouse, row, "a source or target warehouse is required")
		}
	}
	return nil
}
