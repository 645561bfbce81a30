package stockentry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
	"github.com/atlas-erp/atlas-erp/internal/platform/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the shared reads
// run either on the pool or inside a posting transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists stock entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `
	id, name, purpose, posted_at, COALESCE(company, ''), COALESCE(fiscal_year, ''),
	COALESCE(production_order, ''), COALESCE(bom_no, ''), use_multi_level_bom,
	fg_completed_qty, COALESCE(from_warehouse, ''), COALESCE(to_warehouse, ''),
	COALESCE(delivery_note_no, ''), COALESCE(sales_invoice_no, ''),
	COALESCE(purchase_receipt_no, ''), docstatus, total_amount,
	COALESCE(amended_from, ''), created_by, created_at, updated_at`

const lineColumns = `
	id, idx, item_code, COALESCE(item_name, ''), COALESCE(description, ''),
	COALESCE(source_warehouse, ''), COALESCE(target_warehouse, ''), qty,
	COALESCE(uom, ''), COALESCE(stock_uom, ''), conversion_factor, transfer_qty,
	incoming_rate, actual_qty, amount, COALESCE(bom_no, ''),
	COALESCE(serial_no, ''), COALESCE(batch_no, ''),
	COALESCE(expense_account, ''), COALESCE(cost_center, ''),
	COALESCE(material_request, ''), COALESCE(material_request_item, '')`

func scanEntry(row pgx.Row) (StockEntry, error) {
	var e StockEntry
	err := row.Scan(&e.ID, &e.Name, &e.Purpose, &e.PostedAt, &e.Company, &e.FiscalYear,
		&e.ProductionOrder, &e.BOMNo, &e.UseMultiLevelBOM, &e.FGCompletedQty,
		&e.FromWarehouse, &e.ToWarehouse, &e.DeliveryNoteNo, &e.SalesInvoiceNo,
		&e.PurchaseReceiptNo, &e.DocStatus, &e.TotalAmount, &e.AmendedFrom,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	return e, nil
}

func getEntry(ctx context.Context, q querier, name string, forUpdate bool) (StockEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM stock_entries WHERE name = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(q.QueryRow(ctx, query, name))
	if err != nil {
		return StockEntry{}, err
	}

	rows, err := q.Query(ctx,
		`SELECT `+lineColumns+` FROM stock_entry_items WHERE entry_id = $1 ORDER BY idx`, e.ID)
	if err != nil {
		return StockEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l StockEntryLine
		if err := rows.Scan(&l.ID, &l.Idx, &l.ItemCode, &l.ItemName, &l.Description,
			&l.SourceWarehouse, &l.TargetWarehouse, &l.Qty, &l.UOM, &l.StockUOM,
			&l.ConversionFactor, &l.TransferQty, &l.IncomingRate, &l.ActualQty,
			&l.Amount, &l.BOMNo, &l.SerialNo, &l.BatchNo, &l.ExpenseAccount,
			&l.CostCenter, &l.MaterialRequest, &l.MaterialRequestItem); err != nil {
			return StockEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func finishedGoodsAlreadyEntered(ctx context.Context, q querier, orderNo string, purpose Purpose, excludeEntry string) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(i.transfer_qty), 0)
		FROM stock_entry_items i
		JOIN stock_entries e ON e.id = i.entry_id
		WHERE e.production_order = $1
		  AND e.purpose = $2
		  AND e.docstatus < 2
		  AND e.name <> $3
		  AND COALESCE(i.source_warehouse, '') = ''`
	var total float64
	err := q.QueryRow(ctx, query, orderNo, string(purpose), excludeEntry).Scan(&total)
	return total, err
}

// referenceColumn whitelists the header column a return reference lives in.
func referenceColumn(field ReferenceField) (string, error) {
	switch field {
	case RefFieldDeliveryNote:
		return "delivery_note_no", nil
	case RefFieldSalesInvoice:
		return "sales_invoice_no", nil
	case RefFieldPurchaseReceipt:
		return "purchase_receipt_no", nil
	}
	return "", fmt.Errorf("stockentry: unknown reference field %q", field)
}

func alreadyReturnedQty(ctx context.Context, q querier, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error) {
	column, err := referenceColumn(field)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT i.item_code, COALESCE(SUM(i.transfer_qty), 0)
		FROM stock_entry_items i
		JOIN stock_entries e ON e.id = i.entry_id
		WHERE e.` + column + ` = $1
		  AND e.docstatus = 1
		  AND e.name <> $2
		GROUP BY i.item_code`
	rows, err := q.Query(ctx, query, refNo, excludeEntry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var code string
		var qty float64
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

func issuedQtyForOrder(ctx context.Context, q querier, orderNo string) (map[string]float64, error) {
	const query = `
		SELECT i.item_code, COALESCE(SUM(i.transfer_qty), 0)
		FROM stock_entry_items i
		JOIN stock_entries e ON e.id = i.entry_id
		WHERE e.production_order = $1
		  AND e.purpose = $2
		  AND e.docstatus = 1
		GROUP BY i.item_code`
	rows, err := q.Query(ctx, query, orderNo, string(PurposeMaterialTransfer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var code string
		var qty float64
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

func insertLines(ctx context.Context, q querier, entryID int64, lines []StockEntryLine) error {
	const query = `
		INSERT INTO stock_entry_items (
			entry_id, idx, item_code, item_name, description, source_warehouse,
			target_warehouse, qty, uom, stock_uom, conversion_factor, transfer_qty,
			incoming_rate, actual_qty, amount, bom_no, serial_no, batch_no,
			expense_account, cost_center, material_request, material_request_item
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	for i := range lines {
		l := &lines[i]
		if _, err := q.Exec(ctx, query, entryID, l.Idx, l.ItemCode, l.ItemName,
			l.Description, l.SourceWarehouse, l.TargetWarehouse, l.Qty, l.UOM,
			l.StockUOM, l.ConversionFactor, l.TransferQty, l.IncomingRate,
			l.ActualQty, l.Amount, l.BOMNo, l.SerialNo, l.BatchNo,
			l.ExpenseAccount, l.CostCenter, l.MaterialRequest, l.MaterialRequestItem); err != nil {
			return err
		}
	}
	return nil
}

func saveEntry(ctx context.Context, q querier, e *StockEntry) error {
	const query = `
		UPDATE stock_entries SET
			purpose = $2, posted_at = $3, company = $4, fiscal_year = $5,
			production_order = $6, bom_no = $7, use_multi_level_bom = $8,
			fg_completed_qty = $9, from_warehouse = $10, to_warehouse = $11,
			delivery_note_no = $12, sales_invoice_no = $13, purchase_receipt_no = $14,
			docstatus = $15, total_amount = $16, updated_at = NOW()
		WHERE name = $1`
	tag, err := q.Exec(ctx, query, e.Name, string(e.Purpose), e.PostedAt, e.Company,
		e.FiscalYear, e.ProductionOrder, e.BOMNo, e.UseMultiLevelBOM, e.FGCompletedQty,
		e.FromWarehouse, e.ToWarehouse, e.DeliveryNoteNo, e.SalesInvoiceNo,
		e.PurchaseReceiptNo, int(e.DocStatus), e.TotalAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	if _, err := q.Exec(ctx, `DELETE FROM stock_entry_items WHERE entry_id = $1`, e.ID); err != nil {
		return err
	}
	return insertLines(ctx, q, e.ID, e.Lines)
}

func (r *Repository) GetEntry(ctx context.Context, name string) (StockEntry, error) {
	return getEntry(ctx, r.pool, name, false)
}

func (r *Repository) FinishedGoodsAlreadyEntered(ctx context.Context, orderNo string, purpose Purpose, excludeEntry string) (float64, error) {
	return finishedGoodsAlreadyEntered(ctx, r.pool, orderNo, purpose, excludeEntry)
}

func (r *Repository) AlreadyReturnedQty(ctx context.Context, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error) {
	return alreadyReturnedQty(ctx, r.pool, field, refNo, excludeEntry)
}

func (r *Repository) IssuedQtyForOrder(ctx context.Context, orderNo string) (map[string]float64, error) {
	return issuedQtyForOrder(ctx, r.pool, orderNo)
}

func (r *Repository) InsertEntry(ctx context.Context, e *StockEntry) error {
	const query = `
		INSERT INTO stock_entries (
			name, purpose, posted_at, company, fiscal_year, production_order,
			bom_no, use_multi_level_bom, fg_completed_qty, from_warehouse,
			to_warehouse, delivery_note_no, sales_invoice_no, purchase_receipt_no,
			docstatus, total_amount, amended_from, created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,NOW(),NOW())
		RETURNING id`
	err := r.pool.QueryRow(ctx, query, e.Name, string(e.Purpose), e.PostedAt,
		e.Company, e.FiscalYear, e.ProductionOrder, e.BOMNo, e.UseMultiLevelBOM,
		e.FGCompletedQty, e.FromWarehouse, e.ToWarehouse, e.DeliveryNoteNo,
		e.SalesInvoiceNo, e.PurchaseReceiptNo, int(e.DocStatus), e.TotalAmount,
		e.AmendedFrom, e.CreatedBy).Scan(&e.ID)
	if err != nil {
		return err
	}
	return insertLines(ctx, r.pool, e.ID, e.Lines)
}

func (r *Repository) UpdateEntry(ctx context.Context, e *StockEntry) error {
	return saveEntry(ctx, r.pool, e)
}

// WithTx runs fn inside one repeatable-read posting transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetEntry(ctx context.Context, name string) (StockEntry, error) {
	return getEntry(ctx, t.tx, name, false)
}

func (t *txRepository) GetEntryForUpdate(ctx context.Context, name string) (StockEntry, error) {
	return getEntry(ctx, t.tx, name, true)
}

func (t *txRepository) FinishedGoodsAlreadyEntered(ctx context.Context, orderNo string, purpose Purpose, excludeEntry string) (float64, error) {
	return finishedGoodsAlreadyEntered(ctx, t.tx, orderNo, purpose, excludeEntry)
}

func (t *txRepository) AlreadyReturnedQty(ctx context.Context, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error) {
	return alreadyReturnedQty(ctx, t.tx, field, refNo, excludeEntry)
}

func (t *txRepository) IssuedQtyForOrder(ctx context.Context, orderNo string) (map[string]float64, error) {
	return issuedQtyForOrder(ctx, t.tx, orderNo)
}

func (t *txRepository) SaveEntry(ctx context.Context, e *StockEntry) error {
	return saveEntry(ctx, t.tx, e)
}

// AppendLedgerEntries posts movements onto the stock ledger, advancing the
// running balance per (item, warehouse). The current balance row is locked
// so concurrent postings against the same bin serialise.
func (t *txRepository) AppendLedgerEntries(ctx context.Context, entries []ledger.Entry) error {
	const lastLevel = `
		SELECT qty_after_transaction, stock_value
		FROM stock_ledger_entries
		WHERE item_code = $1 AND warehouse = $2
		ORDER BY posted_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`
	const insert = `
		INSERT INTO stock_ledger_entries (
			item_code, warehouse, posted_at, actual_qty, incoming_rate,
			voucher_type, voucher_no, batch_no, serial_no,
			qty_after_transaction, stock_value, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())`
	for _, e := range entries {
		var level ledger.StockLevel
		err := t.tx.QueryRow(ctx, lastLevel, e.ItemCode, e.Warehouse).
			Scan(&level.QtyAfterTransaction, &level.StockValue)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		next := ledger.NextBalance(level, e.ActualQty, e.IncomingRate)
		if _, err := t.tx.Exec(ctx, insert, e.ItemCode, e.Warehouse, e.PostedAt,
			e.ActualQty, e.IncomingRate, string(e.VoucherType), e.VoucherNo,
			e.BatchNo, e.SerialNo, next.QtyAfterTransaction, next.StockValue); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetProductionOrderForUpdate(ctx context.Context, name string) (manufacturing.Order, error) {
	return manufacturing.GetOrderForUpdate(ctx, t.tx, name)
}

func (t *txRepository) SaveProductionOrderProgress(ctx context.Context, name string, producedQty float64, status manufacturing.OrderStatus) error {
	return manufacturing.SaveProgress(ctx, t.tx, name, producedQty, status)
}

func (t *txRepository) AdjustPlannedQty(ctx context.Context, itemCode, warehouse string, delta float64) error {
	return manufacturing.AdjustPlannedQty(ctx, t.tx, itemCode, warehouse, delta)
}
