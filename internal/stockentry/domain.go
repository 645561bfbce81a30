package stockentry

import "time"

// Purpose enumerates supported stock movement purposes.
type Purpose string

const (
	PurposeMaterialIssue    Purpose = "MATERIAL_ISSUE"
	PurposeMaterialReceipt  Purpose = "MATERIAL_RECEIPT"
	PurposeMaterialTransfer Purpose = "MATERIAL_TRANSFER"
	PurposeManufacture      Purpose = "MANUFACTURE_REPACK"
	PurposeSubcontract      Purpose = "SUBCONTRACT"
	PurposeSalesReturn      Purpose = "SALES_RETURN"
	PurposePurchaseReturn   Purpose = "PURCHASE_RETURN"
)

// DocStatus models the document lifecycle. Draft entries are mutable;
// submission posts ledger side effects; cancellation reverses them.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// StockEntry is a single inventory movement document.
type StockEntry struct {
	ID                int64
	Name              string
	Purpose           Purpose
	PostedAt          time.Time
	Company           string
	FiscalYear        string
	ProductionOrder   string
	BOMNo             string
	UseMultiLevelBOM  bool
	FGCompletedQty    float64
	FromWarehouse     string
	ToWarehouse       string
	DeliveryNoteNo    string
	SalesInvoiceNo    string
	PurchaseReceiptNo string
	DocStatus         DocStatus
	TotalAmount       float64
	AmendedFrom       string
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []StockEntryLine
}

// StockEntryLine is one item movement row of a stock entry.
type StockEntryLine struct {
	ID                  int64
	Idx                 int
	ItemCode            string
	ItemName            string
	Description         string
	SourceWarehouse     string
	TargetWarehouse     string
	Qty                 float64
	UOM                 string
	StockUOM            string
	ConversionFactor    float64
	TransferQty         float64
	IncomingRate        float64
	ActualQty           float64
	Amount              float64
	BOMNo               string
	SerialNo            string
	BatchNo             string
	ExpenseAccount      string
	CostCenter          string
	MaterialRequest     string
	MaterialRequestItem string
}

// ReferenceField names the header field holding a return reference number.
type ReferenceField string

const (
	RefFieldDeliveryNote    ReferenceField = "delivery_note_no"
	RefFieldSalesInvoice    ReferenceField = "sales_invoice_no"
	RefFieldPurchaseReceipt ReferenceField = "purchase_receipt_no"
)

// ReferenceNo returns the reference number held in the given header field.
func (e *StockEntry) ReferenceNo(field ReferenceField) string {
	switch field {
	case RefFieldDeliveryNote:
		return e.DeliveryNoteNo
	case RefFieldSalesInvoice:
		return e.SalesInvoiceNo
	case RefFieldPurchaseReceipt:
		return e.PurchaseReceiptNo
	}
	return ""
}

// RefDocType identifies return reference document types.
type RefDocType string

const (
	RefDocDeliveryNote    RefDocType = "DELIVERY_NOTE"
	RefDocSalesInvoice    RefDocType = "SALES_INVOICE"
	RefDocPurchaseReceipt RefDocType = "PURCHASE_RECEIPT"
	RefDocPurchaseInvoice RefDocType = "PURCHASE_INVOICE"
)

// ReturnRule maps a header reference field to its document type.
type ReturnRule struct {
	Field   ReferenceField
	DocType RefDocType
}

// Rules is the static configuration driving purpose behaviour. It is built
// once and injected at construction, never mutated.
type Rules struct {
	ValidPurposes    []Purpose
	SourceMandatory  map[Purpose]bool
	TargetMandatory  map[Purpose]bool
	ReturnReferences map[Purpose][]ReturnRule
}

// DefaultRules returns the standard purpose configuration.
func DefaultRules() Rules {
	return Rules{
		ValidPurposes: []Purpose{
			PurposeMaterialIssue, PurposeMaterialReceipt, PurposeMaterialTransfer,
			PurposeManufacture, PurposeSubcontract, PurposeSalesReturn, PurposePurchaseReturn,
		},
		SourceMandatory: map[Purpose]bool{
			PurposeMaterialIssue:    true,
			PurposeMaterialTransfer: true,
			PurposePurchaseReturn:   true,
		},
		TargetMandatory: map[Purpose]bool{
			PurposeMaterialReceipt:  true,
			PurposeMaterialTransfer: true,
			PurposeSalesReturn:      true,
		},
		ReturnReferences: map[Purpose][]ReturnRule{
			PurposeSalesReturn: {
				{Field: RefFieldDeliveryNote, DocType: RefDocDeliveryNote},
				{Field: RefFieldSalesInvoice, DocType: RefDocSalesInvoice},
			},
			PurposePurchaseReturn: {
				{Field: RefFieldPurchaseReceipt, DocType: RefDocPurchaseReceipt},
			},
		},
	}
}

// IsValidPurpose reports membership in the configured purpose enum.
func (r Rules) IsValidPurpose(p Purpose) bool {
	for _, valid := range r.ValidPurposes {
		if valid == p {
			return true
		}
	}
	return false
}

// IsReturnPurpose reports whether the purpose reconciles against a
// sales/purchase document.
func (r Rules) IsReturnPurpose(p Purpose) bool {
	_, ok := r.ReturnReferences[p]
	return ok
}

// ReferenceItem is a line item of a referenced sales/purchase document.
type ReferenceItem struct {
	ItemCode          string
	Qty               float64
	IncomeAccount     string
	ExpenseAccount    string
	ParentItem        string
	AgainstSalesOrder string
	PurchaseOrder     string
}

// PackedItem maps a bundled component to its parent item on the reference
// document.
type PackedItem struct {
	ItemCode   string
	ParentItem string
}

// ReferenceDoc is the loaded state of a return reference document.
type ReferenceDoc struct {
	DocType           RefDocType
	Name              string
	DocStatus         DocStatus
	PostedAt          time.Time
	UpdateStock       bool
	Customer          string
	Supplier          string
	ReceivableAccount string
	PayableAccount    string
	Items             []ReferenceItem
	PackedItems       []PackedItem
}

// ReturnReference is the transient resolution of a return movement to its
// source document. Built per validation pass, never persisted.
type ReturnReference struct {
	Field ReferenceField
	Doc   ReferenceDoc
}

// NoticeCode identifies informational, non-blocking notices.
type NoticeCode string

const (
	NoticeAllTransferred   NoticeCode = "ALL_ITEMS_TRANSFERRED"
	NoticePartiallyFetched NoticeCode = "PENDING_QTY_FETCHED"
)

// Notice is surfaced to the caller without blocking the operation.
type Notice struct {
	Code    NoticeCode
	Message string
	Items   []string
}
