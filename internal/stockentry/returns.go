package stockentry

import "context"

const qtyTolerance = 1e-9

// resolveReturnReference finds the populated reference field for a return
// entry and loads the referenced document. Returns nil for non-return
// purposes.
func (s *Service) resolveReturnReference(ctx context.Context, e *StockEntry) (*ReturnReference, error) {
	rules, ok := s.rules.ReturnReferences[e.Purpose]
	if !ok {
		return nil, nil
	}

	var rule *ReturnRule
	for i := range rules {
		if e.ReferenceNo(rules[i].Field) != "" {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return nil, newError(ErrKindMappingMismatch,
			"a reference document is required for purpose %s", e.Purpose)
	}

	doc, err := s.refs.GetReferenceDoc(ctx, rule.DocType, e.ReferenceNo(rule.Field))
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		return nil, newError(ErrKindDoesNotExist,
			"%s %s does not exist", rule.DocType, e.ReferenceNo(rule.Field))
	}
	return &ReturnReference{Field: rule.Field, Doc: doc}, nil
}

// validateReturnReference enforces the state of the referenced document and
// caps every line at the quantity still returnable against it. The queries
// come from the caller so submissions run the over-return guard on the
// posting transaction's snapshot.
func (s *Service) validateReturnReference(ctx context.Context, q Queries, e *StockEntry, ref *ReturnReference) error {
	doc := ref.Doc

	if doc.DocStatus != DocStatusSubmitted {
		return newError(ErrKindInvalidStatus,
			"%s %s must be submitted before items can be returned against it", doc.DocType, doc.Name)
	}
	// Invoices only move stock when they were booked with stock update.
	if (doc.DocType == RefDocSalesInvoice || doc.DocType == RefDocPurchaseInvoice) && !doc.UpdateStock {
		return newError(ErrKindNotUpdateStock,
			"%s %s did not update stock, items cannot be returned against it", doc.DocType, doc.Name)
	}
	if e.PostedAt.Before(doc.PostedAt) {
		return newError(ErrKindInvalidPostingTime,
			"posting time cannot precede %s %s", doc.DocType, doc.Name)
	}

	refQty := make(map[string]float64, len(doc.Items))
	for _, it := range doc.Items {
		refQty[it.ItemCode] += it.Qty
	}
	packed := make(map[string]bool, len(doc.PackedItems))
	for _, p := range doc.PackedItems {
		packed[p.ItemCode] = true
	}

	returned, err := q.AlreadyReturnedQty(ctx, ref.Field, doc.Name, e.Name)
	if err != nil {
		return err
	}

	for i := range e.Lines {
		line := &e.Lines[i]
		row := i + 1

		qty, onDoc := refQty[line.ItemCode]
		if !onDoc {
			if packed[line.ItemCode] {
				// Bundled components carry no own quantity on the parent
				// document, membership is all that can be checked.
				continue
			}
			return newRowError(ErrKindDoesNotExist, row,
				"item %s does not exist in %s %s", line.ItemCode, doc.DocType, doc.Name)
		}

		returnable := qty - returned[line.ItemCode]
		if returnable <= qtyTolerance {
			return newRowError(ErrKindStockOverReturn, row,
				"item %s has already been fully returned against %s %s", line.ItemCode, doc.DocType, doc.Name)
		}
		if line.TransferQty > returnable+qtyTolerance {
			return newRowError(ErrKindStockOverReturn, row,
				"item %s: only %g can still be returned against %s %s", line.ItemCode, returnable, doc.DocType, doc.Name)
		}
	}
	return nil
}
