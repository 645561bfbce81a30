package stockentry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReferenceRepository reads sales/purchase reference documents from the
// consolidated reference store.
type ReferenceRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceRepository constructs ReferenceRepository.
func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// GetReferenceDoc loads a reference document with its item rows and packed
// items. A zero-valued doc (empty Name) means the document does not exist.
func (r *ReferenceRepository) GetReferenceDoc(ctx context.Context, docType RefDocType, name string) (ReferenceDoc, error) {
	const header = `
		SELECT name, docstatus, posted_at, update_stock,
		       COALESCE(customer, ''), COALESCE(supplier, ''),
		       COALESCE(receivable_account, ''), COALESCE(payable_account, '')
		FROM reference_documents
		WHERE doc_type = $1 AND name = $2`
	doc := ReferenceDoc{DocType: docType}
	err := r.pool.QueryRow(ctx, header, string(docType), name).Scan(
		&doc.Name, &doc.DocStatus, &doc.PostedAt, &doc.UpdateStock,
		&doc.Customer, &doc.Supplier, &doc.ReceivableAccount, &doc.PayableAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReferenceDoc{DocType: docType}, nil
		}
		return ReferenceDoc{}, err
	}

	const items = `
		SELECT item_code, qty, COALESCE(income_account, ''), COALESCE(expense_account, ''),
		       COALESCE(parent_item, ''), COALESCE(against_sales_order, ''), COALESCE(purchase_order, '')
		FROM reference_document_items
		WHERE doc_type = $1 AND doc_name = $2
		ORDER BY idx`
	rows, err := r.pool.Query(ctx, items, string(docType), name)
	if err != nil {
		return ReferenceDoc{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it ReferenceItem
		if err := rows.Scan(&it.ItemCode, &it.Qty, &it.IncomeAccount, &it.ExpenseAccount,
			&it.ParentItem, &it.AgainstSalesOrder, &it.PurchaseOrder); err != nil {
			return ReferenceDoc{}, err
		}
		doc.Items = append(doc.Items, it)
	}
	if err := rows.Err(); err != nil {
		return ReferenceDoc{}, err
	}

	const packed = `
		SELECT item_code, parent_item
		FROM reference_packed_items
		WHERE doc_type = $1 AND doc_name = $2`
	prows, err := r.pool.Query(ctx, packed, string(docType), name)
	if err != nil {
		return ReferenceDoc{}, err
	}
	defer prows.Close()
	for prows.Next() {
		var p PackedItem
		if err := prows.Scan(&p.ItemCode, &p.ParentItem); err != nil {
			return ReferenceDoc{}, err
		}
		doc.PackedItems = append(doc.PackedItems, p)
	}
	return doc, prows.Err()
}

func (r *ReferenceRepository) distinctDocs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SalesInvoicesByDeliveryNote finds submitted sales invoices billed against
// a delivery note.
func (r *ReferenceRepository) SalesInvoicesByDeliveryNote(ctx context.Context, deliveryNote string) ([]string, error) {
	const query = `
		SELECT DISTINCT i.doc_name
		FROM reference_document_items i
		JOIN reference_documents d ON d.doc_type = i.doc_type AND d.name = i.doc_name
		WHERE i.doc_type = $1 AND i.delivery_note = $2 AND d.docstatus = 1`
	return r.distinctDocs(ctx, query, string(RefDocSalesInvoice), deliveryNote)
}

// SalesInvoicesBySalesOrders finds submitted sales invoices billed against
// any of the given sales orders.
func (r *ReferenceRepository) SalesInvoicesBySalesOrders(ctx context.Context, salesOrders []string) ([]string, error) {
	const query = `
		SELECT DISTINCT i.doc_name
		FROM reference_document_items i
		JOIN reference_documents d ON d.doc_type = i.doc_type AND d.name = i.doc_name
		WHERE i.doc_type = $1 AND i.against_sales_order = ANY($2) AND d.docstatus = 1`
	return r.distinctDocs(ctx, query, string(RefDocSalesInvoice), salesOrders)
}

// PurchaseInvoicesByReceipt finds submitted purchase invoices billed against
// a purchase receipt.
func (r *ReferenceRepository) PurchaseInvoicesByReceipt(ctx context.Context, purchaseReceipt string) ([]string, error) {
	const query = `
		SELECT DISTINCT i.doc_name
		FROM reference_document_items i
		JOIN reference_documents d ON d.doc_type = i.doc_type AND d.name = i.doc_name
		WHERE i.doc_type = $1 AND i.purchase_receipt = $2 AND d.docstatus = 1`
	return r.distinctDocs(ctx, query, string(RefDocPurchaseInvoice), purchaseReceipt)
}

// PurchaseInvoicesByPurchaseOrders finds submitted purchase invoices billed
// against any of the given purchase orders.
func (r *ReferenceRepository) PurchaseInvoicesByPurchaseOrders(ctx context.Context, purchaseOrders []string) ([]string, error) {
	const query = `
		SELECT DISTINCT i.doc_name
		FROM reference_document_items i
		JOIN reference_documents d ON d.doc_type = i.doc_type AND d.name = i.doc_name
		WHERE i.doc_type = $1 AND i.purchase_order = ANY($2) AND d.docstatus = 1`
	return r.distinctDocs(ctx, query, string(RefDocPurchaseInvoice), purchaseOrders)
}
