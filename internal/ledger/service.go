package ledger

import (
	"context"
	"errors"
)

// Reader exposes snapshot-consistent queries over the stock ledger.
type Reader interface {
	PreviousStockLevel(ctx context.Context, q LevelQuery) (StockLevel, error)
	VoucherEntry(ctx context.Context, voucherType VoucherType, voucherNo, itemCode string) (Entry, error)
}

// Service answers valuation queries for stock movements.
type Service struct {
	reader Reader
}

// NewService builds Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// PreviousStockLevel returns the running balance as of the query timestamp.
// A missing balance is a zero level, not an error.
func (s *Service) PreviousStockLevel(ctx context.Context, q LevelQuery) (StockLevel, error) {
	if s == nil || s.reader == nil {
		return StockLevel{}, errors.New("ledger: service not initialised")
	}
	level, err := s.reader.PreviousStockLevel(ctx, q)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return StockLevel{}, nil
		}
		return StockLevel{}, err
	}
	return level, nil
}

// MovingAverageRate computes the unit cost for incoming stock from the
// running balance prior to the movement.
func (s *Service) MovingAverageRate(ctx context.Context, q LevelQuery) (float64, error) {
	level, err := s.PreviousStockLevel(ctx, q)
	if err != nil {
		return 0, err
	}
	if level.QtyAfterTransaction <= 0 {
		return 0, nil
	}
	return level.StockValue / level.QtyAfterTransaction, nil
}

// HistoricalVoucherRate recovers the exact unit cost a voucher moved stock
// at, from the value delta its ledger entry recorded. Returns are valued
// this way instead of re-averaging. A voucher without a ledger entry yields
// a zero rate.
func (s *Service) HistoricalVoucherRate(ctx context.Context, voucherType VoucherType, voucherNo, itemCode string) (float64, error) {
	if s == nil || s.reader == nil {
		return 0, errors.New("ledger: service not initialised")
	}
	entry, err := s.reader.VoucherEntry(ctx, voucherType, voucherNo, itemCode)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if entry.ActualQty == 0 {
		return 0, nil
	}
	before, err := s.PreviousStockLevel(ctx, LevelQuery{
		ItemCode:  entry.ItemCode,
		Warehouse: entry.Warehouse,
		AsOf:      entry.PostedAt,
		BeforeID:  entry.ID,
	})
	if err != nil {
		return 0, err
	}
	return (entry.StockValue - before.StockValue) / entry.ActualQty, nil
}
