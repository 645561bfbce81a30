package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// TaskStockEntrySubmitted fans out after a stock entry posts.
	TaskStockEntrySubmitted = "stock:entry_submitted"
	// TaskStockEntryCancelled fans out after a stock entry reverses.
	TaskStockEntryCancelled = "stock:entry_cancelled"
	// TaskLedgerIntegrityScan sweeps the stock ledger for negative bins.
	TaskLedgerIntegrityScan = "stock:ledger_integrity"
)

// StockEntryEventPayload identifies the document behind a lifecycle event.
type StockEntryEventPayload struct {
	Name            string    `json:"name"`
	Purpose         string    `json:"purpose"`
	ProductionOrder string    `json:"production_order,omitempty"`
	PostedAt        time.Time `json:"posted_at"`
}

// NewStockEntrySubmittedTask constructs the submitted event task.
func NewStockEntrySubmittedTask(payload StockEntryEventPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockEntrySubmitted, body, asynq.Queue(QueueDefault)), nil
}

// NewStockEntryCancelledTask constructs the cancelled event task.
func NewStockEntryCancelledTask(payload StockEntryEventPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockEntryCancelled, body, asynq.Queue(QueueDefault)), nil
}

// NewStockEntryEventHandler refreshes the bin snapshot of every warehouse the
// entry touched. Both lifecycle events share it since the refresh is
// recomputed from the ledger, not incremental.
func NewStockEntryEventHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockEntryEventPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		const refresh = `
			INSERT INTO warehouse_bins (item_code, warehouse, actual_qty, stock_value, updated_at)
			SELECT DISTINCT ON (l.item_code, l.warehouse)
			       l.item_code, l.warehouse, l.qty_after_transaction, l.stock_value, NOW()
			FROM stock_ledger_entries l
			WHERE l.voucher_no = $1
			ORDER BY l.item_code, l.warehouse, l.posted_at DESC, l.id DESC
			ON CONFLICT (item_code, warehouse)
			DO UPDATE SET actual_qty = EXCLUDED.actual_qty,
			              stock_value = EXCLUDED.stock_value,
			              updated_at = NOW()`
		if _, err := pool.Exec(ctx, refresh, payload.Name); err != nil {
			return err
		}
		logger.Info("warehouse bins refreshed", "entry", payload.Name, "task", t.Type())
		return nil
	}
}

// NewLedgerIntegrityTask constructs the nightly ledger sweep task.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLedgerIntegrityScan, nil, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityHandler reports bins whose running balance went negative.
// The sweep is advisory, postings are not blocked.
func NewLedgerIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		const scan = `
			SELECT item_code, warehouse, qty_after_transaction
			FROM (
				SELECT DISTINCT ON (item_code, warehouse)
				       item_code, warehouse, qty_after_transaction
				FROM stock_ledger_entries
				ORDER BY item_code, warehouse, posted_at DESC, id DESC
			) latest
			WHERE qty_after_transaction < 0`
		rows, err := pool.Query(ctx, scan)
		if err != nil {
			return err
		}
		defer rows.Close()
		count := 0
		for rows.Next() {
			var item, warehouse string
			var qty float64
			if err := rows.Scan(&item, &warehouse, &qty); err != nil {
				return err
			}
			logger.Warn("negative stock balance", "item", item, "warehouse", warehouse, "qty", qty)
			count++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		logger.Info("ledger integrity scan finished", "negative_bins", count)
		return nil
	}
}
