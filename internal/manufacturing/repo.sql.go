package manufacturing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads production orders from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `
	name, production_item, bom_no, qty, produced_qty, status, docstatus,
	COALESCE(wip_warehouse, ''), COALESCE(fg_warehouse, ''), use_multi_level_bom`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.Name, &o.ProductionItem, &o.BOMNo, &o.Qty, &o.ProducedQty,
		&o.Status, &o.DocStatus, &o.WIPWarehouse, &o.FGWarehouse, &o.UseMultiLevelBOM)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// GetOrder loads a production order by name.
func (r *Repository) GetOrder(ctx context.Context, name string) (Order, error) {
	if r == nil {
		return Order{}, errors.New("manufacturing repository not initialised")
	}
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM production_orders WHERE name = $1`, name))
}

// GetOrderForUpdate loads and row-locks a production order inside tx.
func GetOrderForUpdate(ctx context.Context, tx pgx.Tx, name string) (Order, error) {
	return scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM production_orders WHERE name = $1 FOR UPDATE`, name))
}

// SaveProgress persists produced qty and derived status inside tx.
func SaveProgress(ctx context.Context, tx pgx.Tx, name string, producedQty float64, status OrderStatus) error {
	tag, err := tx.Exec(ctx,
		`UPDATE production_orders SET produced_qty = $2, status = $3, updated_at = NOW() WHERE name = $1`,
		name, producedQty, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// AdjustPlannedQty moves the planned-qty counter on the warehouse bin inside tx.
func AdjustPlannedQty(ctx context.Context, tx pgx.Tx, itemCode, warehouse string, delta float64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO warehouse_bins (item_code, warehouse, planned_qty, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (item_code, warehouse)
		DO UPDATE SET planned_qty = warehouse_bins.planned_qty + EXCLUDED.planned_qty, updated_at = NOW()`,
		itemCode, warehouse, delta)
	return err
}
