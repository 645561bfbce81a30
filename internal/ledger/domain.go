package ledger

import (
	"errors"
	"time"
)

// VoucherType identifies the document type that produced a ledger entry.
type VoucherType string

const (
	VoucherTypeStockEntry      VoucherType = "STOCK_ENTRY"
	VoucherTypeDeliveryNote    VoucherType = "DELIVERY_NOTE"
	VoucherTypeSalesInvoice    VoucherType = "SALES_INVOICE"
	VoucherTypePurchaseReceipt VoucherType = "PURCHASE_RECEIPT"
)

// Entry is an immutable record of a quantity/value change at an
// (item, warehouse, time). Cancellations append compensating entries,
// they never edit existing rows.
type Entry struct {
	ID                  int64
	ItemCode            string
	Warehouse           string
	PostedAt            time.Time
	ActualQty           float64
	IncomingRate        float64
	VoucherType         VoucherType
	VoucherNo           string
	BatchNo             string
	SerialNo            string
	QtyAfterTransaction float64
	StockValue          float64
	CreatedAt           time.Time
}

// StockLevel summarises the running balance after an entry.
type StockLevel struct {
	QtyAfterTransaction float64
	StockValue          float64
}

// LevelQuery selects the latest balance for (item, warehouse) as of a
// posting timestamp, excluding the current voucher so a document never
// observes its own postings.
type LevelQuery struct {
	ItemCode       string
	Warehouse      string
	AsOf           time.Time
	ExcludeVoucher string
	// BeforeID, when set, bounds the scan to entries created before the
	// given entry at equal posting timestamps.
	BeforeID int64
}

// ErrEntryNotFound indicates no ledger entry matched a voucher lookup.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// NextBalance advances a running balance by one movement. Incoming stock is
// valued at the supplied rate; outgoing stock is valued at the current
// average of the balance being consumed.
func NextBalance(prev StockLevel, actualQty, incomingRate float64) StockLevel {
	next := StockLevel{QtyAfterTransaction: prev.QtyAfterTransaction + actualQty}
	if actualQty >= 0 {
		next.StockValue = prev.StockValue + actualQty*incomingRate
		return next
	}
	avg := 0.0
	if prev.QtyAfterTransaction > 0 {
		avg = prev.StockValue / prev.QtyAfterTransaction
	}
	next.StockValue = prev.StockValue + actualQty*avg
	if next.QtyAfterTransaction <= 0 {
		next.StockValue = 0
	}
	return next
}
