package stockentry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
)

// ReturnJournalLine is one account row of a derived return voucher. Amounts
// are left for the accountant to allocate.
type ReturnJournalLine struct {
	Account        string  `json:"account"`
	Balance        float64 `json:"balance"`
	AgainstInvoice string  `json:"againstInvoice,omitempty"`
}

// ReturnJournalDraft is the accounting voucher skeleton derived from a
// submitted return entry. It is never persisted here, the caller posts it
// through the journals service once amounts are filled in.
type ReturnJournalDraft struct {
	Kind       journals.VoucherKind `json:"kind"`
	Party      string               `json:"party"`
	PostedAt   time.Time            `json:"postedAt"`
	StockEntry string               `json:"stockEntry"`
	Lines      []ReturnJournalLine  `json:"lines"`
}

// DeriveReturnJournal builds the credit/debit note skeleton for a submitted
// return entry. The first row carries the party account of the reference
// document; one row follows per distinct income or expense account of the
// returned items. When the returned items trace back to exactly one invoice
// the rows carry it as against-invoice; when no invoice was ever billed the
// draft carries no rows at all.
func (s *Service) DeriveReturnJournal(ctx context.Context, name string) (ReturnJournalDraft, error) {
	e, err := s.repo.GetEntry(ctx, name)
	if err != nil {
		return ReturnJournalDraft{}, err
	}
	if !s.rules.IsReturnPurpose(e.Purpose) {
		return ReturnJournalDraft{}, newError(ErrKindInvalidPurpose,
			"a journal voucher can only be derived from a return entry")
	}
	if e.DocStatus != DocStatusSubmitted {
		return ReturnJournalDraft{}, newError(ErrKindInvalidStatus,
			"stock entry %s must be submitted before deriving a journal voucher", e.Name)
	}
	ref, err := s.resolveReturnReference(ctx, &e)
	if err != nil {
		return ReturnJournalDraft{}, err
	}

	sales := e.Purpose == PurposeSalesReturn
	accounts, orders := matchedReferenceAccounts(&e, ref.Doc, sales)
	invoice, billed, err := s.traceInvoice(ctx, ref.Doc, orders, sales)
	if err != nil {
		return ReturnJournalDraft{}, err
	}

	draft := ReturnJournalDraft{
		PostedAt:   e.PostedAt,
		StockEntry: e.Name,
	}
	if sales {
		draft.Kind = journals.VoucherKindCreditNote
		draft.Party = ref.Doc.Customer
	} else {
		draft.Kind = journals.VoucherKindDebitNote
		draft.Party = ref.Doc.Supplier
	}
	// Nothing was ever billed, so there is nothing to note against.
	if !billed {
		return draft, nil
	}
	if sales {
		draft.Lines = append(draft.Lines, ReturnJournalLine{
			Account:        ref.Doc.ReceivableAccount,
			AgainstInvoice: invoice,
		})
	} else {
		draft.Lines = append(draft.Lines, ReturnJournalLine{
			Account:        ref.Doc.PayableAccount,
			AgainstInvoice: invoice,
		})
	}
	for _, account := range accounts {
		draft.Lines = append(draft.Lines, ReturnJournalLine{
			Account:        account,
			AgainstInvoice: invoice,
		})
	}
	for i := range draft.Lines {
		balance, err := s.accounting.AccountBalance(ctx, draft.Lines[i].Account, e.PostedAt)
		if err != nil {
			return ReturnJournalDraft{}, fmt.Errorf("stockentry: account balance for %s: %w", draft.Lines[i].Account, err)
		}
		draft.Lines[i].Balance = balance
	}
	return draft, nil
}

// matchedReferenceAccounts collects the distinct income (sales) or expense
// (purchase) accounts of the reference items matched by the entry lines,
// plus the sales/purchase orders those items were billed under. Bundled
// components map through their parent item.
func matchedReferenceAccounts(e *StockEntry, doc ReferenceDoc, sales bool) ([]string, []string) {
	byItem := make(map[string]ReferenceItem, len(doc.Items))
	for _, it := range doc.Items {
		byItem[it.ItemCode] = it
	}
	parentOf := make(map[string]string, len(doc.PackedItems))
	for _, p := range doc.PackedItems {
		parentOf[p.ItemCode] = p.ParentItem
	}

	accountSet := make(map[string]bool)
	orderSet := make(map[string]bool)
	for _, line := range e.Lines {
		it, ok := byItem[line.ItemCode]
		if !ok {
			parent, packed := parentOf[line.ItemCode]
			if !packed {
				continue
			}
			it, ok = byItem[parent]
			if !ok {
				continue
			}
		}
		if sales {
			if it.IncomeAccount != "" {
				accountSet[it.IncomeAccount] = true
			}
			if it.AgainstSalesOrder != "" {
				orderSet[it.AgainstSalesOrder] = true
			}
		} else {
			if it.ExpenseAccount != "" {
				accountSet[it.ExpenseAccount] = true
			}
			if it.PurchaseOrder != "" {
				orderSet[it.PurchaseOrder] = true
			}
		}
	}

	accounts := make([]string, 0, len(accountSet))
	for a := range accountSet {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	orders := make([]string, 0, len(orderSet))
	for o := range orderSet {
		orders = append(orders, o)
	}
	sort.Strings(orders)
	return accounts, orders
}

// traceInvoice finds the invoice the return settles against. Invoice
// references are their own answer; delivery notes and purchase receipts are
// traced to billed invoices directly, then through their orders. The second
// result reports whether any invoice exists at all; the name is only filled
// when the trace lands on exactly one.
func (s *Service) traceInvoice(ctx context.Context, doc ReferenceDoc, orders []string, sales bool) (string, bool, error) {
	if doc.DocType == RefDocSalesInvoice || doc.DocType == RefDocPurchaseInvoice {
		return doc.Name, true, nil
	}
	var invoices []string
	var err error
	if sales {
		invoices, err = s.refs.SalesInvoicesByDeliveryNote(ctx, doc.Name)
		if err != nil {
			return "", false, err
		}
		if len(invoices) == 0 && len(orders) > 0 {
			invoices, err = s.refs.SalesInvoicesBySalesOrders(ctx, orders)
		}
	} else {
		invoices, err = s.refs.PurchaseInvoicesByReceipt(ctx, doc.Name)
		if err != nil {
			return "", false, err
		}
		if len(invoices) == 0 && len(orders) > 0 {
			invoices, err = s.refs.PurchaseInvoicesByPurchaseOrders(ctx, orders)
		}
	}
	if err != nil {
		return "", false, err
	}
	if len(invoices) == 1 {
		return invoices[0], true, nil
	}
	return "", len(invoices) > 0, nil
}
