package stockentry

import (
	"context"
	"time"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	"github.com/atlas-erp/atlas-erp/internal/bom"
	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Queries are the reads available both on the pool and inside a posting
// transaction. The cross-document aggregates back the duplicate-entry and
// over-return guards, so inside a posting transaction they observe the
// transaction snapshot.
type Queries interface {
	GetEntry(ctx context.Context, name string) (StockEntry, error)
	// FinishedGoodsAlreadyEntered sums transfer qty of finished-goods lines
	// (empty source warehouse) across other non-cancelled entries for the
	// production order and purpose.
	FinishedGoodsAlreadyEntered(ctx context.Context, orderNo string, purpose Purpose, excludeEntry string) (float64, error)
	// AlreadyReturnedQty sums transfer qty per item across other submitted
	// entries referencing the same document through the given header field.
	AlreadyReturnedQty(ctx context.Context, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error)
	// IssuedQtyForOrder sums raw material qty per item across submitted
	// material transfers against the production order.
	IssuedQtyForOrder(ctx context.Context, orderNo string) (map[string]float64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Queries
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertEntry(ctx context.Context, e *StockEntry) error
	UpdateEntry(ctx context.Context, e *StockEntry) error
}

// TxRepository exposes the operations of one posting transaction. Ledger
// appends and production-order mutations ride the same transaction as the
// document transition so the whole submit/cancel commits or rolls back
// together.
type TxRepository interface {
	Queries
	GetEntryForUpdate(ctx context.Context, name string) (StockEntry, error)
	SaveEntry(ctx context.Context, e *StockEntry) error
	AppendLedgerEntries(ctx context.Context, entries []ledger.Entry) error
	GetProductionOrderForUpdate(ctx context.Context, name string) (manufacturing.Order, error)
	SaveProductionOrderProgress(ctx context.Context, name string, producedQty float64, status manufacturing.OrderStatus) error
	AdjustPlannedQty(ctx context.Context, itemCode, warehouse string, delta float64) error
}

// LedgerPort answers valuation queries over the stock ledger.
type LedgerPort interface {
	PreviousStockLevel(ctx context.Context, q ledger.LevelQuery) (ledger.StockLevel, error)
	MovingAverageRate(ctx context.Context, q ledger.LevelQuery) (float64, error)
	HistoricalVoucherRate(ctx context.Context, voucherType ledger.VoucherType, voucherNo, itemCode string) (float64, error)
}

// BOMPort explodes bills of materials and answers membership checks.
type BOMPort interface {
	Explode(ctx context.Context, bomNo string, qty float64, multiLevel bool) (map[string]bom.ExplodedItem, error)
	IsActiveBOMFor(ctx context.Context, itemCode, bomNo string) (bool, error)
}

// ProductionOrderPort loads production orders outside the posting transaction.
type ProductionOrderPort interface {
	GetOrder(ctx context.Context, name string) (manufacturing.Order, error)
}

// ReferencePort loads return reference documents and their invoice linkage.
type ReferencePort interface {
	GetReferenceDoc(ctx context.Context, docType RefDocType, name string) (ReferenceDoc, error)
	SalesInvoicesByDeliveryNote(ctx context.Context, deliveryNote string) ([]string, error)
	SalesInvoicesBySalesOrders(ctx context.Context, salesOrders []string) ([]string, error)
	PurchaseInvoicesByReceipt(ctx context.Context, purchaseReceipt string) ([]string, error)
	PurchaseInvoicesByPurchaseOrders(ctx context.Context, purchaseOrders []string) ([]string, error)
}

// ItemDetails describes an item master row used for line enrichment.
type ItemDetails struct {
	ItemCode       string
	ItemName       string
	Description    string
	StockUOM       string
	ExpenseAccount string
	CostCenter     string
	IsStockItem    bool
	EndOfLife      *time.Time
}

// FiscalYear is a named posting period.
type FiscalYear struct {
	Name  string
	Start time.Time
	End   time.Time
}

// MaterialRequestLine is the referenced row of a material request.
type MaterialRequestLine struct {
	ItemCode  string
	Warehouse string
	Idx       int
}

// PartyDetails carries the customer/supplier of a reference document.
type PartyDetails struct {
	Party   string
	Name    string
	Address string
}

// CompanyDefaults are fallback accounts for line enrichment and the stock
// account the valuation journal of a submit is booked against.
type CompanyDefaults struct {
	ExpenseAccount string
	CostCenter     string
	StockAccount   string
}

// MasterPort answers item/company master data lookups.
type MasterPort interface {
	StockItems(ctx context.Context, itemCodes []string) (map[string]bool, error)
	ItemDetails(ctx context.Context, itemCode string) (ItemDetails, error)
	UOMConversionFactor(ctx context.Context, itemCode, uom string) (float64, error)
	MaterialRequestLine(ctx context.Context, request, requestItem string) (MaterialRequestLine, error)
	FiscalYear(ctx context.Context, name string) (FiscalYear, error)
	PartyDetails(ctx context.Context, docType RefDocType, name string) (PartyDetails, error)
	CompanyDefaults(ctx context.Context, company string) (CompanyDefaults, error)
}

// AccountingPort posts and reverses accounting entries for stock vouchers.
// Satisfied by the journals service.
type AccountingPort interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	ReverseBySource(ctx context.Context, sourceModule, sourceID string, actorID int64) (journals.JournalEntry, error)
	AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockPort serialises postings per production order / reference document.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// MetricsPort records posting outcomes.
type MetricsPort interface {
	ObservePosting(operation, outcome string)
	ObserveValidationFailure(kind string)
}
