package stockentry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func (f *fixture) seedDeliveryNote(name string, items ...ReferenceItem) {
	f.refs.docs[string(RefDocDeliveryNote)+"|"+name] = ReferenceDoc{
		DocType:           RefDocDeliveryNote,
		Name:              name,
		DocStatus:         DocStatusSubmitted,
		PostedAt:          ts(1, 9),
		Customer:          "CUST-1",
		ReceivableAccount: "1310 - Debtors",
		Items:             items,
	}
}

func salesReturnEntry(name string, qty float64) StockEntry {
	return StockEntry{
		Name:           name,
		Purpose:        PurposeSalesReturn,
		PostedAt:       ts(2, 10),
		DeliveryNoteNo: "DN-1",
		Lines: []StockEntryLine{
			{ItemCode: "ITM-1", TargetWarehouse: "WH-A", Qty: qty, TransferQty: qty},
		},
	}
}

func TestResolveReturnReferenceRequiresReference(t *testing.T) {
	f := newFixture(t)
	e := StockEntry{Purpose: PurposeSalesReturn}

	_, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindMappingMismatch))
}

func TestResolveReturnReferenceMissingDocument(t *testing.T) {
	f := newFixture(t)
	e := StockEntry{Purpose: PurposeSalesReturn, DeliveryNoteNo: "DN-GONE"}

	_, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.True(t, IsKind(err, ErrKindDoesNotExist))
}

func TestResolveReturnReferenceNilForNonReturn(t *testing.T) {
	f := newFixture(t)
	e := StockEntry{Purpose: PurposeMaterialTransfer}

	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestValidateReturnReferenceRequiresSubmittedDoc(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})
	doc := f.refs.docs[string(RefDocDeliveryNote)+"|DN-1"]
	doc.DocStatus = DocStatusDraft
	f.refs.docs[string(RefDocDeliveryNote)+"|DN-1"] = doc

	e := salesReturnEntry("STE-R1", 2)
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	err = f.svc.validateReturnReference(context.Background(), f.store, &e, ref)
	require.True(t, IsKind(err, ErrKindInvalidStatus))
}

func TestValidateReturnReferenceInvoiceMustUpdateStock(t *testing.T) {
	f := newFixture(t)
	f.refs.docs[string(RefDocSalesInvoice)+"|SI-1"] = ReferenceDoc{
		DocType: RefDocSalesInvoice, Name: "SI-1", DocStatus: DocStatusSubmitted,
		PostedAt: ts(1, 9), UpdateStock: false,
		Items: []ReferenceItem{{ItemCode: "ITM-1", Qty: 5}},
	}
	e := StockEntry{
		Name: "STE-R1", Purpose: PurposeSalesReturn, PostedAt: ts(2, 10), SalesInvoiceNo: "SI-1",
		Lines: []StockEntryLine{{ItemCode: "ITM-1", TargetWarehouse: "WH-A", Qty: 1, TransferQty: 1}},
	}
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	err = f.svc.validateReturnReference(context.Background(), f.store, &e, ref)
	require.True(t, IsKind(err, ErrKindNotUpdateStock))
}

func TestValidateReturnReferencePostingTimeBeforeReference(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})

	e := salesReturnEntry("STE-R1", 2)
	e.PostedAt = ts(1, 8)
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	err = f.svc.validateReturnReference(context.Background(), f.store, &e, ref)
	require.True(t, IsKind(err, ErrKindInvalidPostingTime))
}

func TestValidateReturnReferenceItemNotOnDocument(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})

	e := salesReturnEntry("STE-R1", 2)
	e.Lines[0].ItemCode = "ITM-OTHER"
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	err = f.svc.validateReturnReference(context.Background(), f.store, &e, ref)
	require.True(t, IsKind(err, ErrKindDoesNotExist))
}

func TestValidateReturnReferencePackedItemPasses(t *testing.T) {
	f := newFixture(t)
	f.refs.docs[string(RefDocDeliveryNote)+"|DN-1"] = ReferenceDoc{
		DocType: RefDocDeliveryNote, Name: "DN-1", DocStatus: DocStatusSubmitted, PostedAt: ts(1, 9),
		Items:       []ReferenceItem{{ItemCode: "BUNDLE-1", Qty: 2}},
		PackedItems: []PackedItem{{ItemCode: "PART-1", ParentItem: "BUNDLE-1"}},
	}

	e := salesReturnEntry("STE-R1", 1)
	e.Lines[0].ItemCode = "PART-1"
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	require.NoError(t, f.svc.validateReturnReference(context.Background(), f.store, &e, ref))
}

func TestValidateReturnReferenceCapsAtRemainingQty(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})
	// An earlier return already took back three of the five delivered.
	prior := salesReturnEntry("STE-PRIOR", 3)
	prior.DocStatus = DocStatusSubmitted
	f.seedEntry(prior)

	within := salesReturnEntry("STE-R1", 2)
	ref, err := f.svc.resolveReturnReference(context.Background(), &within)
	require.NoError(t, err)
	require.NoError(t, f.svc.validateReturnReference(context.Background(), f.store, &within, ref))

	over := salesReturnEntry("STE-R2", 3)
	err = f.svc.validateReturnReference(context.Background(), f.store, &over, ref)
	require.True(t, IsKind(err, ErrKindStockOverReturn))
}

func TestValidateReturnReferenceFullyReturned(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})
	prior := salesReturnEntry("STE-PRIOR", 5)
	prior.DocStatus = DocStatusSubmitted
	f.seedEntry(prior)

	e := salesReturnEntry("STE-R1", 1)
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	err = f.svc.validateReturnReference(context.Background(), f.store, &e, ref)
	require.True(t, IsKind(err, ErrKindStockOverReturn))
}

func TestValidateReturnReferenceCancelledReturnFreesQty(t *testing.T) {
	f := newFixture(t)
	f.seedDeliveryNote("DN-1", ReferenceItem{ItemCode: "ITM-1", Qty: 5})
	prior := salesReturnEntry("STE-PRIOR", 5)
	prior.DocStatus = DocStatusCancelled
	f.seedEntry(prior)

	e := salesReturnEntry("STE-R1", 5)
	ref, err := f.svc.resolveReturnReference(context.Background(), &e)
	require.NoError(t, err)

	require.NoError(t, f.svc.validateReturnReference(context.Background(), f.store, &e, ref))
}
