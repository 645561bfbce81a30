package journals

import "time"

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// VoucherKind distinguishes the accounting voucher flavours produced by
// stock movements.
type VoucherKind string

const (
	VoucherKindJournal    VoucherKind = "JOURNAL"
	VoucherKindCreditNote VoucherKind = "CREDIT_NOTE"
	VoucherKindDebitNote  VoucherKind = "DEBIT_NOTE"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	Number       int64
	Date         time.Time
	Kind         VoucherKind
	SourceModule string
	SourceID     string
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Status       JournalStatus
	CreatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID             int64
	JournalID      int64
	Account        string
	Debit          float64
	Credit         float64
	AgainstInvoice string
	AgainstVoucher string
	CreatedAt      time.Time
}
