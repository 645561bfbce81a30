package stockentry

import (
	"context"

	"github.com/atlas-erp/atlas-erp/internal/ledger"
)

// setStockAndRate computes transfer quantities, available stock at the
// warehouse the line acts on and the valuation rate of every line, then the
// document total. A rate keyed in by the user stands as entered; only lines
// without one are valued from the ledger.
func (s *Service) setStockAndRate(ctx context.Context, e *StockEntry) error {
	total := 0.0
	for i := range e.Lines {
		line := &e.Lines[i]
		row := i + 1

		if line.ConversionFactor <= 0 {
			line.ConversionFactor = 1
		}
		line.TransferQty = line.Qty * line.ConversionFactor

		warehouse := firstNonEmpty(line.SourceWarehouse, line.TargetWarehouse)
		if warehouse != "" {
			level, err := s.ledger.PreviousStockLevel(ctx, ledger.LevelQuery{
				ItemCode:       line.ItemCode,
				Warehouse:      warehouse,
				AsOf:           e.PostedAt,
				ExcludeVoucher: e.Name,
			})
			if err != nil {
				return err
			}
			line.ActualQty = level.QtyAfterTransaction
		} else {
			line.ActualQty = 0
		}

		if line.IncomingRate == 0 {
			rate, err := s.incomingRate(ctx, e, line)
			if err != nil {
				return err
			}
			line.IncomingRate = rate
		}

		if line.TargetWarehouse != "" && line.IncomingRate <= 0 {
			return newRowError(ErrKindIncorrectValuationRate, row,
				"valuation rate is mandatory for incoming item %s", line.ItemCode)
		}

		line.Amount = line.TransferQty * line.IncomingRate
		total += line.Amount
	}
	e.TotalAmount = total
	return nil
}

// incomingRate picks the valuation rate for a line without one. Sales
// returns take the historical outgoing rate of the referenced voucher and
// lines with a source warehouse take the moving average there.
func (s *Service) incomingRate(ctx context.Context, e *StockEntry, line *StockEntryLine) (float64, error) {
	if e.Purpose == PurposeSalesReturn {
		voucherType, voucherNo := e.salesReturnVoucher()
		if voucherNo != "" {
			rate, err := s.ledger.HistoricalVoucherRate(ctx, voucherType, voucherNo, line.ItemCode)
			if err != nil {
				return 0, err
			}
			if rate > 0 {
				return rate, nil
			}
		}
	}
	if line.SourceWarehouse != "" {
		return s.ledger.MovingAverageRate(ctx, ledger.LevelQuery{
			ItemCode:       line.ItemCode,
			Warehouse:      line.SourceWarehouse,
			AsOf:           e.PostedAt,
			ExcludeVoucher: e.Name,
		})
	}
	return line.IncomingRate, nil
}

// salesReturnVoucher maps the populated reference field of a sales return to
// the ledger voucher it was delivered under.
func (e *StockEntry) salesReturnVoucher() (ledger.VoucherType, string) {
	if e.DeliveryNoteNo != "" {
		return ledger.VoucherTypeDeliveryNote, e.DeliveryNoteNo
	}
	if e.SalesInvoiceNo != "" {
		return ledger.VoucherTypeSalesInvoice, e.SalesInvoiceNo
	}
	return "", ""
}
