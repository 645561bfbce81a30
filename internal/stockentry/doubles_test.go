package stockentry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	"github.com/atlas-erp/atlas-erp/internal/bom"
	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/manufacturing"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// memoryStore backs RepositoryPort with maps. A posting transaction works on
// the live maps and restores a snapshot on error, mirroring the rollback of
// the real repository.
type memoryStore struct {
	entries    map[string]*StockEntry
	ledgerRows []ledger.Entry
	orders     map[string]*manufacturing.Order
	plannedQty map[string]float64
	nextID     int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries:    make(map[string]*StockEntry),
		orders:     make(map[string]*manufacturing.Order),
		plannedQty: make(map[string]float64),
	}
}

func cloneEntry(e StockEntry) StockEntry {
	cp := e
	cp.Lines = append([]StockEntryLine(nil), e.Lines...)
	return cp
}

func binKey(itemCode, warehouse string) string {
	return itemCode + "|" + warehouse
}

func (m *memoryStore) clone() *memoryStore {
	cp := newMemoryStore()
	for name, e := range m.entries {
		c := cloneEntry(*e)
		cp.entries[name] = &c
	}
	cp.ledgerRows = append([]ledger.Entry(nil), m.ledgerRows...)
	for name, o := range m.orders {
		c := *o
		cp.orders[name] = &c
	}
	for k, v := range m.plannedQty {
		cp.plannedQty[k] = v
	}
	cp.nextID = m.nextID
	return cp
}

func (m *memoryStore) GetEntry(ctx context.Context, name string) (StockEntry, error) {
	e, ok := m.entries[name]
	if !ok {
		return StockEntry{}, ErrEntryNotFound
	}
	return cloneEntry(*e), nil
}

func (m *memoryStore) FinishedGoodsAlreadyEntered(ctx context.Context, orderNo string, purpose Purpose, excludeEntry string) (float64, error) {
	total := 0.0
	for _, e := range m.entries {
		if e.Name == excludeEntry || e.ProductionOrder != orderNo || e.Purpose != purpose {
			continue
		}
		if e.DocStatus == DocStatusCancelled {
			continue
		}
		for _, line := range e.Lines {
			if line.SourceWarehouse == "" {
				total += line.TransferQty
			}
		}
	}
	return total, nil
}

func (m *memoryStore) AlreadyReturnedQty(ctx context.Context, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, e := range m.entries {
		if e.Name == excludeEntry || e.DocStatus != DocStatusSubmitted {
			continue
		}
		if e.ReferenceNo(field) != refNo {
			continue
		}
		for _, line := range e.Lines {
			out[line.ItemCode] += line.TransferQty
		}
	}
	return out, nil
}

func (m *memoryStore) IssuedQtyForOrder(ctx context.Context, orderNo string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, e := range m.entries {
		if e.DocStatus != DocStatusSubmitted || e.Purpose != PurposeMaterialTransfer || e.ProductionOrder != orderNo {
			continue
		}
		for _, line := range e.Lines {
			out[line.ItemCode] += line.TransferQty
		}
	}
	return out, nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := m.clone()
	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		*m = *snapshot
		return err
	}
	return nil
}

func (m *memoryStore) InsertEntry(ctx context.Context, e *StockEntry) error {
	m.nextID++
	e.ID = m.nextID
	cp := cloneEntry(*e)
	m.entries[e.Name] = &cp
	return nil
}

func (m *memoryStore) UpdateEntry(ctx context.Context, e *StockEntry) error {
	if _, ok := m.entries[e.Name]; !ok {
		return ErrEntryNotFound
	}
	cp := cloneEntry(*e)
	m.entries[e.Name] = &cp
	return nil
}

// seedLedger appends a ledger row to a bin, advancing its running balance.
func (m *memoryStore) seedLedger(itemCode, warehouse string, postedAt time.Time, qty, rate float64, voucherType ledger.VoucherType, voucherNo string) {
	prev := m.latestLevel(itemCode, warehouse)
	next := ledger.NextBalance(prev, qty, rate)
	m.nextID++
	m.ledgerRows = append(m.ledgerRows, ledger.Entry{
		ID:                  m.nextID,
		ItemCode:            itemCode,
		Warehouse:           warehouse,
		PostedAt:            postedAt,
		ActualQty:           qty,
		IncomingRate:        rate,
		VoucherType:         voucherType,
		VoucherNo:           voucherNo,
		QtyAfterTransaction: next.QtyAfterTransaction,
		StockValue:          next.StockValue,
	})
}

func (m *memoryStore) latestLevel(itemCode, warehouse string) ledger.StockLevel {
	var found *ledger.Entry
	for i := range m.ledgerRows {
		e := &m.ledgerRows[i]
		if e.ItemCode != itemCode || e.Warehouse != warehouse {
			continue
		}
		if found == nil || e.PostedAt.After(found.PostedAt) ||
			(e.PostedAt.Equal(found.PostedAt) && e.ID > found.ID) {
			found = e
		}
	}
	if found == nil {
		return ledger.StockLevel{}
	}
	return ledger.StockLevel{QtyAfterTransaction: found.QtyAfterTransaction, StockValue: found.StockValue}
}

// binRows returns the ledger rows of one bin in append order.
func (m *memoryStore) binRows(itemCode, warehouse string) []ledger.Entry {
	var rows []ledger.Entry
	for _, e := range m.ledgerRows {
		if e.ItemCode == itemCode && e.Warehouse == warehouse {
			rows = append(rows, e)
		}
	}
	return rows
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) GetEntry(ctx context.Context, name string) (StockEntry, error) {
	return t.store.GetEntry(ctx, name)
}

func (t *memoryTx) FinishedGoodsAlreadyEntered(ctx context.Context, orderNo string, purpose Purpose, excludeEntry string) (float64, error) {
	return t.store.FinishedGoodsAlreadyEntered(ctx, orderNo, purpose, excludeEntry)
}

func (t *memoryTx) AlreadyReturnedQty(ctx context.Context, field ReferenceField, refNo, excludeEntry string) (map[string]float64, error) {
	return t.store.AlreadyReturnedQty(ctx, field, refNo, excludeEntry)
}

func (t *memoryTx) IssuedQtyForOrder(ctx context.Context, orderNo string) (map[string]float64, error) {
	return t.store.IssuedQtyForOrder(ctx, orderNo)
}

func (t *memoryTx) GetEntryForUpdate(ctx context.Context, name string) (StockEntry, error) {
	return t.store.GetEntry(ctx, name)
}

func (t *memoryTx) SaveEntry(ctx context.Context, e *StockEntry) error {
	return t.store.UpdateEntry(ctx, e)
}

func (t *memoryTx) AppendLedgerEntries(ctx context.Context, entries []ledger.Entry) error {
	for _, e := range entries {
		t.store.seedLedger(e.ItemCode, e.Warehouse, e.PostedAt, e.ActualQty, e.IncomingRate, e.VoucherType, e.VoucherNo)
	}
	return nil
}

func (t *memoryTx) GetProductionOrderForUpdate(ctx context.Context, name string) (manufacturing.Order, error) {
	o, ok := t.store.orders[name]
	if !ok {
		return manufacturing.Order{}, manufacturing.ErrOrderNotFound
	}
	return *o, nil
}

func (t *memoryTx) SaveProductionOrderProgress(ctx context.Context, name string, producedQty float64, status manufacturing.OrderStatus) error {
	o, ok := t.store.orders[name]
	if !ok {
		return manufacturing.ErrOrderNotFound
	}
	o.ProducedQty = producedQty
	o.Status = status
	return nil
}

func (t *memoryTx) AdjustPlannedQty(ctx context.Context, itemCode, warehouse string, delta float64) error {
	t.store.plannedQty[binKey(itemCode, warehouse)] += delta
	return nil
}

// storeLedgerReader adapts the store's ledger rows to the ledger service so
// valuation runs against the same data the postings write.
type storeLedgerReader struct {
	store *memoryStore
}

func (r *storeLedgerReader) PreviousStockLevel(ctx context.Context, q ledger.LevelQuery) (ledger.StockLevel, error) {
	var found *ledger.Entry
	for i := range r.store.ledgerRows {
		e := &r.store.ledgerRows[i]
		if e.ItemCode != q.ItemCode || e.Warehouse != q.Warehouse {
			continue
		}
		if e.PostedAt.After(q.AsOf) {
			continue
		}
		if q.ExcludeVoucher != "" && e.VoucherNo == q.ExcludeVoucher {
			continue
		}
		if q.BeforeID != 0 && e.PostedAt.Equal(q.AsOf) && e.ID >= q.BeforeID {
			continue
		}
		if found == nil || e.PostedAt.After(found.PostedAt) ||
			(e.PostedAt.Equal(found.PostedAt) && e.ID > found.ID) {
			found = e
		}
	}
	if found == nil {
		return ledger.StockLevel{}, ledger.ErrEntryNotFound
	}
	return ledger.StockLevel{QtyAfterTransaction: found.QtyAfterTransaction, StockValue: found.StockValue}, nil
}

func (r *storeLedgerReader) VoucherEntry(ctx context.Context, voucherType ledger.VoucherType, voucherNo, itemCode string) (ledger.Entry, error) {
	for _, e := range r.store.ledgerRows {
		if e.VoucherType == voucherType && e.VoucherNo == voucherNo && e.ItemCode == itemCode {
			return e, nil
		}
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

type stubMaster struct {
	items       map[string]ItemDetails
	conversions map[string]float64
	requests    map[string]MaterialRequestLine
	fiscalYears map[string]FiscalYear
	parties     map[string]PartyDetails
	defaults    map[string]CompanyDefaults
}

func newStubMaster() *stubMaster {
	return &stubMaster{
		items:       make(map[string]ItemDetails),
		conversions: make(map[string]float64),
		requests:    make(map[string]MaterialRequestLine),
		fiscalYears: make(map[string]FiscalYear),
		parties:     make(map[string]PartyDetails),
		defaults:    make(map[string]CompanyDefaults),
	}
}

func (m *stubMaster) StockItems(ctx context.Context, itemCodes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(itemCodes))
	for _, code := range itemCodes {
		if d, ok := m.items[code]; ok {
			out[code] = d.IsStockItem
		}
	}
	return out, nil
}

func (m *stubMaster) ItemDetails(ctx context.Context, itemCode string) (ItemDetails, error) {
	return m.items[itemCode], nil
}

func (m *stubMaster) UOMConversionFactor(ctx context.Context, itemCode, uom string) (float64, error) {
	return m.conversions[itemCode+"|"+uom], nil
}

func (m *stubMaster) MaterialRequestLine(ctx context.Context, request, requestItem string) (MaterialRequestLine, error) {
	return m.requests[request+"|"+requestItem], nil
}

func (m *stubMaster) FiscalYear(ctx context.Context, name string) (FiscalYear, error) {
	return m.fiscalYears[name], nil
}

func (m *stubMaster) PartyDetails(ctx context.Context, docType RefDocType, name string) (PartyDetails, error) {
	return m.parties[string(docType)+"|"+name], nil
}

func (m *stubMaster) CompanyDefaults(ctx context.Context, company string) (CompanyDefaults, error) {
	return m.defaults[company], nil
}

type stubBOMs struct {
	active   map[string]bool
	exploded map[string]map[string]bom.ExplodedItem
}

func newStubBOMs() *stubBOMs {
	return &stubBOMs{
		active:   make(map[string]bool),
		exploded: make(map[string]map[string]bom.ExplodedItem),
	}
}

func (b *stubBOMs) Explode(ctx context.Context, bomNo string, qty float64, multiLevel bool) (map[string]bom.ExplodedItem, error) {
	unit, ok := b.exploded[bomNo]
	if !ok {
		return nil, bom.ErrBOMNotFound
	}
	out := make(map[string]bom.ExplodedItem, len(unit))
	for code, item := range unit {
		item.Qty *= qty
		out[code] = item
	}
	return out, nil
}

func (b *stubBOMs) IsActiveBOMFor(ctx context.Context, itemCode, bomNo string) (bool, error) {
	return b.active[itemCode+"|"+bomNo], nil
}

type storeOrders struct {
	store *memoryStore
}

func (o *storeOrders) GetOrder(ctx context.Context, name string) (manufacturing.Order, error) {
	order, ok := o.store.orders[name]
	if !ok {
		return manufacturing.Order{}, manufacturing.ErrOrderNotFound
	}
	return *order, nil
}

type stubRefs struct {
	docs   map[string]ReferenceDoc
	siByDN map[string][]string
	siBySO map[string][]string
	piByPR map[string][]string
	piByPO map[string][]string
}

func newStubRefs() *stubRefs {
	return &stubRefs{
		docs:   make(map[string]ReferenceDoc),
		siByDN: make(map[string][]string),
		siBySO: make(map[string][]string),
		piByPR: make(map[string][]string),
		piByPO: make(map[string][]string),
	}
}

func (r *stubRefs) GetReferenceDoc(ctx context.Context, docType RefDocType, name string) (ReferenceDoc, error) {
	return r.docs[string(docType)+"|"+name], nil
}

func (r *stubRefs) SalesInvoicesByDeliveryNote(ctx context.Context, deliveryNote string) ([]string, error) {
	return r.siByDN[deliveryNote], nil
}

func (r *stubRefs) SalesInvoicesBySalesOrders(ctx context.Context, salesOrders []string) ([]string, error) {
	return collectDistinct(r.siBySO, salesOrders), nil
}

func (r *stubRefs) PurchaseInvoicesByReceipt(ctx context.Context, purchaseReceipt string) ([]string, error) {
	return r.piByPR[purchaseReceipt], nil
}

func (r *stubRefs) PurchaseInvoicesByPurchaseOrders(ctx context.Context, purchaseOrders []string) ([]string, error) {
	return collectDistinct(r.piByPO, purchaseOrders), nil
}

func collectDistinct(index map[string][]string, keys []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range keys {
		for _, v := range index[key] {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

type stubAccounting struct {
	balances   map[string]float64
	posted     []journals.PostingInput
	reversed   []string
	reverseErr error
}

func newStubAccounting() *stubAccounting {
	return &stubAccounting{balances: make(map[string]float64)}
}

func (a *stubAccounting) Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return journals.JournalEntry{}, err
	}
	a.posted = append(a.posted, input)
	return journals.JournalEntry{}, nil
}

func (a *stubAccounting) ReverseBySource(ctx context.Context, sourceModule, sourceID string, actorID int64) (journals.JournalEntry, error) {
	a.reversed = append(a.reversed, sourceID)
	if a.reverseErr != nil {
		return journals.JournalEntry{}, a.reverseErr
	}
	return journals.JournalEntry{}, nil
}

func (a *stubAccounting) AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error) {
	return a.balances[account], nil
}

type stubAudit struct {
	records []shared.AuditLog
}

func (a *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

type stubLocks struct {
	held     map[string]bool
	acquired []string
}

func newStubLocks() *stubLocks {
	return &stubLocks{held: make(map[string]bool)}
}

func (l *stubLocks) Acquire(ctx context.Context, key string) (func(), error) {
	if l.held[key] {
		return nil, shared.ErrLockNotAcquired
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() { delete(l.held, key) }, nil
}

type stubIdem struct {
	keys map[string]bool
}

func newStubIdem() *stubIdem {
	return &stubIdem{keys: make(map[string]bool)}
}

func (i *stubIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *stubIdem) Delete(ctx context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

type stubMetrics struct {
	postings map[string]int
	failures map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{postings: make(map[string]int), failures: make(map[string]int)}
}

func (m *stubMetrics) ObservePosting(operation, outcome string) {
	m.postings[operation+"|"+outcome]++
}

func (m *stubMetrics) ObserveValidationFailure(kind string) {
	m.failures[kind]++
}

type stubEvents struct {
	submitted []string
	cancelled []string
}

func (e *stubEvents) EntrySubmitted(ctx context.Context, entry *StockEntry) {
	e.submitted = append(e.submitted, entry.Name)
}

func (e *stubEvents) EntryCancelled(ctx context.Context, entry *StockEntry) {
	e.cancelled = append(e.cancelled, entry.Name)
}

// fixture wires a service over the in-memory doubles.
type fixture struct {
	store      *memoryStore
	master     *stubMaster
	boms       *stubBOMs
	refs       *stubRefs
	accounting *stubAccounting
	audit      *stubAudit
	locks      *stubLocks
	idem       *stubIdem
	metrics    *stubMetrics
	events     *stubEvents
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      newMemoryStore(),
		master:     newStubMaster(),
		boms:       newStubBOMs(),
		refs:       newStubRefs(),
		accounting: newStubAccounting(),
		audit:      &stubAudit{},
		locks:      newStubLocks(),
		idem:       newStubIdem(),
		metrics:    newStubMetrics(),
		events:     &stubEvents{},
	}
	f.svc = NewService(Deps{
		Repo:       f.store,
		Ledger:     ledger.NewService(&storeLedgerReader{store: f.store}),
		BOMs:       f.boms,
		Orders:     &storeOrders{store: f.store},
		Refs:       f.refs,
		Master:     f.master,
		Accounting: f.accounting,
		Audit:      f.audit,
		Locks:      f.locks,
		Idem:       f.idem,
		Metrics:    f.metrics,
		Events:     f.events,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	f.svc.WithClock(func() time.Time { return ts(15, 12) })
	return f
}

func (f *fixture) seedItem(code, name string) {
	f.master.items[code] = ItemDetails{
		ItemCode:       code,
		ItemName:       name,
		StockUOM:       "Nos",
		ExpenseAccount: "5100 - Stock Adjustment",
		CostCenter:     "Main",
		IsStockItem:    true,
	}
}

func (f *fixture) seedEntry(e StockEntry) {
	cp := cloneEntry(e)
	f.store.entries[e.Name] = &cp
}

func (f *fixture) seedOrder(o manufacturing.Order) {
	cp := o
	f.store.orders[o.Name] = &cp
}

func ts(day, hour int) time.Time {
	return time.Date(2026, time.March, day, hour, 0, 0, 0, time.UTC)
}
