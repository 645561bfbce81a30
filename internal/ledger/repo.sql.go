package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the stock ledger from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) PreviousStockLevel(ctx context.Context, q LevelQuery) (StockLevel, error) {
	if r == nil {
		return StockLevel{}, errors.New("ledger repository not initialised")
	}
	const query = `
		SELECT qty_after_transaction, stock_value
		FROM stock_ledger_entries
		WHERE item_code = $1
		  AND warehouse = $2
		  AND posted_at <= $3
		  AND ($4 = '' OR voucher_no <> $4)
		  AND ($5 = 0 OR posted_at < $3 OR id < $5)
		ORDER BY posted_at DESC, id DESC
		LIMIT 1`
	var level StockLevel
	err := r.pool.QueryRow(ctx, query, q.ItemCode, q.Warehouse, q.AsOf, q.ExcludeVoucher, q.BeforeID).
		Scan(&level.QtyAfterTransaction, &level.StockValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrEntryNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *Repository) VoucherEntry(ctx context.Context, voucherType VoucherType, voucherNo, itemCode string) (Entry, error) {
	if r == nil {
		return Entry{}, errors.New("ledger repository not initialised")
	}
	const query = `
		SELECT id, item_code, warehouse, posted_at, actual_qty, incoming_rate,
		       voucher_type, voucher_no, batch_no, serial_no,
		       qty_after_transaction, stock_value, created_at
		FROM stock_ledger_entries
		WHERE voucher_type = $1 AND voucher_no = $2 AND item_code = $3
		ORDER BY id
		LIMIT 1`
	var e Entry
	err := r.pool.QueryRow(ctx, query, string(voucherType), voucherNo, itemCode).Scan(
		&e.ID, &e.ItemCode, &e.Warehouse, &e.PostedAt, &e.ActualQty, &e.IncomingRate,
		&e.VoucherType, &e.VoucherNo, &e.BatchNo, &e.SerialNo,
		&e.QtyAfterTransaction, &e.StockValue, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}
