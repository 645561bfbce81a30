package bom

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads bills of materials from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetBOM(ctx context.Context, no string) (BOM, error) {
	if r == nil {
		return BOM{}, errors.New("bom repository not initialised")
	}
	const header = `
		SELECT bom_no, item_code, quantity, is_active, docstatus = 1
		FROM boms
		WHERE bom_no = $1`
	var doc BOM
	err := r.pool.QueryRow(ctx, header, no).Scan(&doc.No, &doc.ItemCode, &doc.Quantity, &doc.IsActive, &doc.Submitted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, ErrBOMNotFound
		}
		return BOM{}, err
	}

	const lines = `
		SELECT item_code, qty, uom, COALESCE(default_warehouse, ''), COALESCE(sub_bom_no, '')
		FROM bom_items
		WHERE bom_no = $1
		ORDER BY idx`
	rows, err := r.pool.Query(ctx, lines, no)
	if err != nil {
		return BOM{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ItemCode, &item.Qty, &item.UOM, &item.DefaultWarehouse, &item.SubBOMNo); err != nil {
			return BOM{}, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, rows.Err()
}

func (r *Repository) ActiveBOMExists(ctx context.Context, itemCode, bomNo string) (bool, error) {
	if r == nil {
		return false, errors.New("bom repository not initialised")
	}
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM boms
			WHERE bom_no = $1 AND item_code = $2 AND docstatus = 1 AND is_active
		)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, bomNo, itemCode).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
