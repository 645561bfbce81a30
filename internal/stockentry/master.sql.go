package stockentry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MasterRepository answers item and company master data lookups.
type MasterRepository struct {
	pool *pgxpool.Pool
}

// NewMasterRepository constructs MasterRepository.
func NewMasterRepository(pool *pgxpool.Pool) *MasterRepository {
	return &MasterRepository{pool: pool}
}

// StockItems reports, per item code, whether the item is stock-tracked.
// Unknown items are absent from the map.
func (r *MasterRepository) StockItems(ctx context.Context, itemCodes []string) (map[string]bool, error) {
	const query = `SELECT item_code, is_stock_item FROM items WHERE item_code = ANY($1)`
	rows, err := r.pool.Query(ctx, query, itemCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool, len(itemCodes))
	for rows.Next() {
		var code string
		var stock bool
		if err := rows.Scan(&code, &stock); err != nil {
			return nil, err
		}
		out[code] = stock
	}
	return out, rows.Err()
}

// ItemDetails loads one item master row.
func (r *MasterRepository) ItemDetails(ctx context.Context, itemCode string) (ItemDetails, error) {
	const query = `
		SELECT item_code, COALESCE(item_name, ''), COALESCE(description, ''),
		       stock_uom, COALESCE(expense_account, ''), COALESCE(cost_center, ''),
		       is_stock_item, end_of_life
		FROM items
		WHERE item_code = $1`
	var d ItemDetails
	err := r.pool.QueryRow(ctx, query, itemCode).Scan(&d.ItemCode, &d.ItemName,
		&d.Description, &d.StockUOM, &d.ExpenseAccount, &d.CostCenter,
		&d.IsStockItem, &d.EndOfLife)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemDetails{}, fmt.Errorf("stockentry: item %s: %w", itemCode, ErrEntryNotFound)
		}
		return ItemDetails{}, err
	}
	return d, nil
}

// UOMConversionFactor returns the factor from the given unit to the item's
// stock unit.
func (r *MasterRepository) UOMConversionFactor(ctx context.Context, itemCode, uom string) (float64, error) {
	const query = `SELECT conversion_factor FROM uom_conversions WHERE item_code = $1 AND uom = $2`
	var factor float64
	err := r.pool.QueryRow(ctx, query, itemCode, uom).Scan(&factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("stockentry: no conversion from %s to stock unit for item %s", uom, itemCode)
		}
		return 0, err
	}
	return factor, nil
}

// MaterialRequestLine loads the referenced material request row.
func (r *MasterRepository) MaterialRequestLine(ctx context.Context, request, requestItem string) (MaterialRequestLine, error) {
	const query = `
		SELECT item_code, COALESCE(warehouse, ''), idx
		FROM material_request_items
		WHERE request = $1 AND name = $2`
	var mr MaterialRequestLine
	err := r.pool.QueryRow(ctx, query, request, requestItem).Scan(&mr.ItemCode, &mr.Warehouse, &mr.Idx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaterialRequestLine{}, fmt.Errorf("stockentry: material request row %s/%s: %w",
				request, requestItem, ErrEntryNotFound)
		}
		return MaterialRequestLine{}, err
	}
	return mr, nil
}

// FiscalYear loads a fiscal year by name.
func (r *MasterRepository) FiscalYear(ctx context.Context, name string) (FiscalYear, error) {
	const query = `SELECT name, start_date, end_date FROM fiscal_years WHERE name = $1`
	var fy FiscalYear
	err := r.pool.QueryRow(ctx, query, name).Scan(&fy.Name, &fy.Start, &fy.End)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, fmt.Errorf("stockentry: fiscal year %s: %w", name, ErrEntryNotFound)
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

// PartyDetails resolves the customer or supplier of a reference document.
func (r *MasterRepository) PartyDetails(ctx context.Context, docType RefDocType, name string) (PartyDetails, error) {
	const query = `
		SELECT COALESCE(NULLIF(d.customer, ''), d.supplier),
		       COALESCE(p.display_name, ''), COALESCE(p.address, '')
		FROM reference_documents d
		LEFT JOIN parties p ON p.name = COALESCE(NULLIF(d.customer, ''), d.supplier)
		WHERE d.doc_type = $1 AND d.name = $2`
	var pd PartyDetails
	err := r.pool.QueryRow(ctx, query, string(docType), name).Scan(&pd.Party, &pd.Name, &pd.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartyDetails{}, nil
		}
		return PartyDetails{}, err
	}
	return pd, nil
}

// CompanyDefaults loads fallback accounts for a company.
func (r *MasterRepository) CompanyDefaults(ctx context.Context, company string) (CompanyDefaults, error) {
	const query = `
		SELECT COALESCE(default_expense_account, ''), COALESCE(default_cost_center, ''), COALESCE(default_stock_account, '')
		FROM companies
		WHERE name = $1`
	var cd CompanyDefaults
	err := r.pool.QueryRow(ctx, query, company).Scan(&cd.ExpenseAccount, &cd.CostCenter, &cd.StockAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyDefaults{}, nil
		}
		return CompanyDefaults{}, err
	}
	return cd, nil
}
