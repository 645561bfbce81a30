package stockentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-erp/atlas-erp/internal/accounting/journals"
	"github.com/atlas-erp/atlas-erp/internal/ledger"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// IdempotencyPort guards submit/cancel against double delivery.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EventsPort fans out document lifecycle events to background workers.
type EventsPort interface {
	EntrySubmitted(ctx context.Context, e *StockEntry)
	EntryCancelled(ctx context.Context, e *StockEntry)
}

// Deps groups the collaborators of the stock entry service.
type Deps struct {
	Repo       RepositoryPort
	Ledger     LedgerPort
	BOMs       BOMPort
	Orders     ProductionOrderPort
	Refs       ReferencePort
	Master     MasterPort
	Accounting AccountingPort
	Audit      AuditPort
	Locks      LockPort
	Idem       IdempotencyPort
	Metrics    MetricsPort
	Events     EventsPort
	Logger     *slog.Logger
}

// Service orchestrates the stock entry lifecycle: draft validation,
// submission with ledger and production-order side effects, cancellation
// with exact reversal, and the derived helpers around them.
type Service struct {
	repo       RepositoryPort
	ledger     LedgerPort
	boms       BOMPort
	orders     ProductionOrderPort
	refs       ReferencePort
	master     MasterPort
	accounting AccountingPort
	audit      AuditPort
	locks      LockPort
	idem       IdempotencyPort
	metrics    MetricsPort
	events     EventsPort
	rules      Rules
	log        *slog.Logger
	now        func() time.Time
}

// NewService constructs a stock entry service with the default purpose
// rules.
func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:       d.Repo,
		ledger:     d.Ledger,
		boms:       d.BOMs,
		orders:     d.Orders,
		refs:       d.Refs,
		master:     d.Master,
		accounting: d.Accounting,
		audit:      d.Audit,
		locks:      d.Locks,
		idem:       d.Idem,
		metrics:    d.Metrics,
		events:     d.Events,
		rules:      DefaultRules(),
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Get loads a stock entry by name.
func (s *Service) Get(ctx context.Context, name string) (StockEntry, error) {
	return s.repo.GetEntry(ctx, name)
}

// Create validates and stores a new draft entry. The document name is
// assigned here when the caller leaves it empty.
func (s *Service) Create(ctx context.Context, e *StockEntry) error {
	if e.Name == "" {
		e.Name = "STE-" + uuid.NewString()
	}
	e.DocStatus = DocStatusDraft
	if err := s.Validate(ctx, e); err != nil {
		return s.failValidation(err)
	}
	if err := s.repo.InsertEntry(ctx, e); err != nil {
		return err
	}
	s.recordAudit(ctx, e, "stock_entry.create")
	return nil
}

// Update revalidates and stores a draft entry. Submitted and cancelled
// entries are immutable.
func (s *Service) Update(ctx context.Context, e *StockEntry) error {
	current, err := s.repo.GetEntry(ctx, e.Name)
	if err != nil {
		return err
	}
	if current.DocStatus != DocStatusDraft {
		return newError(ErrKindInvalidStatus, "stock entry %s can no longer be edited", e.Name)
	}
	e.ID = current.ID
	e.DocStatus = DocStatusDraft
	if err := s.Validate(ctx, e); err != nil {
		return s.failValidation(err)
	}
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return err
	}
	s.recordAudit(ctx, e, "stock_entry.update")
	return nil
}

// Validate runs the full validation pipeline against the entry, mutating it
// in place: lines are enriched from the item master, warehouses resolved,
// quantities and rates computed, and every purpose-specific guard checked.
// No ledger or order state changes here.
func (s *Service) Validate(ctx context.Context, e *StockEntry) error {
	return s.validate(ctx, s.repo, e)
}

func (s *Service) validate(ctx context.Context, q Queries, e *StockEntry) error {
	if !s.rules.IsValidPurpose(e.Purpose) {
		return newError(ErrKindInvalidPurpose, "%s is not a valid purpose", e.Purpose)
	}
	if e.PostedAt.IsZero() {
		return newError(ErrKindInvalidPostingTime, "posting time is required")
	}
	if len(e.Lines) == 0 {
		return newError(ErrKindMappingMismatch, "at least one item row is required")
	}
	if err := s.validateFiscalYear(ctx, e); err != nil {
		return err
	}
	if err := s.enrichLines(ctx, e); err != nil {
		return err
	}
	if err := s.resolveWarehouses(ctx, e); err != nil {
		return err
	}
	if err := s.checkMaterialRequests(ctx, e); err != nil {
		return err
	}
	if err := s.setStockAndRate(ctx, e); err != nil {
		return err
	}
	if err := s.validateProductionOrder(ctx, e); err != nil {
		return err
	}
	if s.rules.IsReturnPurpose(e.Purpose) {
		ref, err := s.resolveReturnReference(ctx, e)
		if err != nil {
			return err
		}
		if err := s.validateReturnReference(ctx, q, e, ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateFiscalYear(ctx context.Context, e *StockEntry) error {
	if e.FiscalYear == "" {
		return nil
	}
	fy, err := s.master.FiscalYear(ctx, e.FiscalYear)
	if err != nil {
		return err
	}
	if e.PostedAt.Before(fy.Start) || e.PostedAt.After(fy.End) {
		return newError(ErrKindFiscalYearMismatch,
			"posting date does not fall within fiscal year %s", e.FiscalYear)
	}
	return nil
}

// enrichLines fills each row from the item master: name, stock unit,
// conversion factor and default accounts. Non-stock items are rejected since
// they can never move through the stock ledger.
func (s *Service) enrichLines(ctx context.Context, e *StockEntry) error {
	codes := make([]string, 0, len(e.Lines))
	seen := make(map[string]bool, len(e.Lines))
	for i := range e.Lines {
		if e.Lines[i].ItemCode == "" {
			return newRowError(ErrKindMappingMismatch, i+1, "item code is required")
		}
		if e.Lines[i].Qty <= 0 {
			return newRowError(ErrKindMappingMismatch, i+1, "quantity must be positive")
		}
		if !seen[e.Lines[i].ItemCode] {
			seen[e.Lines[i].ItemCode] = true
			codes = append(codes, e.Lines[i].ItemCode)
		}
	}
	stockable, err := s.master.StockItems(ctx, codes)
	if err != nil {
		return err
	}

	var defaults CompanyDefaults
	if e.Company != "" {
		defaults, err = s.master.CompanyDefaults(ctx, e.Company)
		if err != nil {
			return err
		}
	}

	details := make(map[string]ItemDetails, len(codes))
	for i := range e.Lines {
		line := &e.Lines[i]
		row := i + 1
		line.Idx = row

		if !stockable[line.ItemCode] {
			return newRowError(ErrKindNotStockItem, row,
				"item %s is not a stock item", line.ItemCode)
		}

		d, ok := details[line.ItemCode]
		if !ok {
			d, err = s.master.ItemDetails(ctx, line.ItemCode)
			if err != nil {
				return err
			}
			details[line.ItemCode] = d
		}
		if line.ItemName == "" {
			line.ItemName = d.ItemName
		}
		if line.Description == "" {
			line.Description = d.Description
		}
		line.StockUOM = d.StockUOM
		if line.UOM == "" {
			line.UOM = d.StockUOM
		}
		if line.UOM == line.StockUOM {
			line.ConversionFactor = 1
		} else if line.ConversionFactor <= 0 {
			factor, err := s.master.UOMConversionFactor(ctx, line.ItemCode, line.UOM)
			if err != nil {
				return err
			}
			line.ConversionFactor = factor
		}
		if line.ExpenseAccount == "" {
			line.ExpenseAccount = firstNonEmpty(d.ExpenseAccount, defaults.ExpenseAccount)
		}
		if line.CostCenter == "" {
			line.CostCenter = firstNonEmpty(d.CostCenter, defaults.CostCenter)
		}

		if line.MaterialRequest != "" {
			mr, err := s.master.MaterialRequestLine(ctx, line.MaterialRequest, line.MaterialRequestItem)
			if err != nil {
				return err
			}
			if mr.ItemCode != line.ItemCode {
				return newRowError(ErrKindMappingMismatch, row,
					"item %s does not match material request %s", line.ItemCode, line.MaterialRequest)
			}
			if line.TargetWarehouse == "" {
				line.TargetWarehouse = mr.Warehouse
			}
		}
	}
	return nil
}

// checkMaterialRequests runs after warehouse resolution so the target each
// line finally settled on is held against the requested warehouse.
func (s *Service) checkMaterialRequests(ctx context.Context, e *StockEntry) error {
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.MaterialRequest == "" {
			continue
		}
		mr, err := s.master.MaterialRequestLine(ctx, line.MaterialRequest, line.MaterialRequestItem)
		if err != nil {
			return err
		}
		if mr.Warehouse != "" && line.TargetWarehouse != mr.Warehouse {
			return newRowError(ErrKindMappingMismatch, i+1,
				"target warehouse must be %s as requested in %s", mr.Warehouse, line.MaterialRequest)
		}
	}
	return nil
}

// Submit posts a draft entry: the validation pipeline runs once more inside
// a single posting transaction, ledger entries are appended for every
// warehouse side, and the linked production order moves forward. A per-order
// or per-reference lock serialises concurrent postings, and the idempotency
// key collapses retries. The stock value the entry moves is then booked as
// a journal voucher against the company stock account.
func (s *Service) Submit(ctx context.Context, name string, actorID int64, idemKey string) (StockEntry, error) {
	e, err := s.postingTransition(ctx, name, actorID, idemKey, "submit", s.submitTx)
	if err != nil {
		return e, err
	}
	s.postValuationJournal(ctx, &e, actorID)
	if s.events != nil {
		s.events.EntrySubmitted(ctx, &e)
	}
	return e, nil
}

// postValuationJournal books the net stock value of a submitted entry:
// incoming value debits the company stock account against each row's
// expense account, outgoing value credits it. Pure transfers net to zero
// and post nothing. Failures are logged, not returned, the stock posting
// itself already committed.
func (s *Service) postValuationJournal(ctx context.Context, e *StockEntry, actorID int64) {
	if s.accounting == nil || e.Company == "" {
		return
	}
	defaults, err := s.master.CompanyDefaults(ctx, e.Company)
	if err != nil {
		s.log.Warn("valuation journal skipped", "entry", e.Name, "error", err)
		return
	}
	if defaults.StockAccount == "" {
		return
	}

	net := make(map[string]float64)
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.Amount == 0 {
			continue
		}
		if line.ExpenseAccount == "" {
			s.log.Warn("valuation journal skipped", "entry", e.Name, "item", line.ItemCode, "reason", "no expense account")
			return
		}
		if line.TargetWarehouse != "" {
			net[defaults.StockAccount] += line.Amount
			net[line.ExpenseAccount] -= line.Amount
		}
		if line.SourceWarehouse != "" {
			net[defaults.StockAccount] -= line.Amount
			net[line.ExpenseAccount] += line.Amount
		}
	}

	accounts := make([]string, 0, len(net))
	for account := range net {
		if math.Abs(net[account]) > 0.005 {
			accounts = append(accounts, account)
		}
	}
	if len(accounts) < 2 {
		return
	}
	sort.Strings(accounts)

	input := journals.PostingInput{
		Date:         e.PostedAt,
		Kind:         journals.VoucherKindJournal,
		SourceModule: sourceModule,
		SourceID:     e.Name,
		Memo:         "stock entry " + e.Name,
		PostedBy:     actorID,
	}
	for _, account := range accounts {
		line := journals.PostingLineInput{Account: account}
		if net[account] > 0 {
			line.Debit = net[account]
		} else {
			line.Credit = -net[account]
		}
		input.Lines = append(input.Lines, line)
	}
	if _, err := s.accounting.Post(ctx, input); err != nil {
		s.log.Warn("valuation journal posting failed", "entry", e.Name, "error", err)
	}
}

// Cancel reverses a submitted entry: a compensating ledger entry is
// appended for every posting of the submission, target side first, the
// production order is wound back, and any journal voucher posted against
// the entry is reversed.
func (s *Service) Cancel(ctx context.Context, name string, actorID int64, idemKey string) (StockEntry, error) {
	e, err := s.postingTransition(ctx, name, actorID, idemKey, "cancel", s.cancelTx)
	if err != nil {
		return e, err
	}
	if s.accounting != nil {
		if _, err := s.accounting.ReverseBySource(ctx, sourceModule, e.Name, actorID); err != nil &&
			!errors.Is(err, journals.ErrJournalNotFound) {
			s.log.Warn("journal reversal failed", "entry", e.Name, "error", err)
		}
	}
	if s.events != nil {
		s.events.EntryCancelled(ctx, &e)
	}
	return e, nil
}

const sourceModule = "STOCK_ENTRY"

// postingTransition wraps a submit or cancel in lock acquisition, an
// idempotency check and a repeatable-read transaction.
func (s *Service) postingTransition(ctx context.Context, name string, actorID int64, idemKey, operation string,
	transition func(ctx context.Context, tx TxRepository, e *StockEntry, actorID int64) error) (StockEntry, error) {

	e, err := s.repo.GetEntry(ctx, name)
	if err != nil {
		return StockEntry{}, err
	}

	release, err := s.acquirePostingLocks(ctx, &e)
	if err != nil {
		return StockEntry{}, err
	}
	defer release()

	if idemKey == "" {
		idemKey = fmt.Sprintf("stockentry:%s:%s", operation, name)
	}
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "stockentry"); err != nil {
			return StockEntry{}, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetEntryForUpdate(ctx, name)
		if err != nil {
			return err
		}
		if err := transition(ctx, tx, &locked, actorID); err != nil {
			return err
		}
		e = locked
		return nil
	})
	if err != nil {
		// A failed posting must not poison the retry path.
		if s.idem != nil {
			if delErr := s.idem.Delete(ctx, idemKey); delErr != nil {
				s.log.Warn("idempotency key cleanup failed", "key", idemKey, "error", delErr)
			}
		}
		s.observePosting(operation, err)
		return StockEntry{}, err
	}

	s.observePosting(operation, nil)
	s.recordAuditBy(ctx, &e, "stock_entry."+operation, actorID)
	s.log.Info("stock entry posted", "operation", operation, "entry", e.Name, "purpose", string(e.Purpose))
	return e, nil
}

func (s *Service) submitTx(ctx context.Context, tx TxRepository, e *StockEntry, actorID int64) error {
	if e.DocStatus != DocStatusDraft {
		return newError(ErrKindInvalidStatus, "stock entry %s is not a draft", e.Name)
	}
	if err := s.validate(ctx, tx, e); err != nil {
		return err
	}
	if e.Purpose == PurposeManufacture && e.ProductionOrder != "" {
		order, err := tx.GetProductionOrderForUpdate(ctx, e.ProductionOrder)
		if err != nil {
			return err
		}
		if err := checkDuplicateProduction(ctx, tx, e, order); err != nil {
			return err
		}
	}
	if err := tx.AppendLedgerEntries(ctx, s.submissionLedgerEntries(e)); err != nil {
		return err
	}
	if err := applyProductionProgress(ctx, tx, e, +1); err != nil {
		return err
	}
	e.DocStatus = DocStatusSubmitted
	return tx.SaveEntry(ctx, e)
}

func (s *Service) cancelTx(ctx context.Context, tx TxRepository, e *StockEntry, _ int64) error {
	if e.DocStatus != DocStatusSubmitted {
		return newError(ErrKindInvalidStatus, "stock entry %s is not submitted", e.Name)
	}
	if err := tx.AppendLedgerEntries(ctx, s.cancellationLedgerEntries(e)); err != nil {
		return err
	}
	if err := applyProductionProgress(ctx, tx, e, -1); err != nil {
		return err
	}
	e.DocStatus = DocStatusCancelled
	return tx.SaveEntry(ctx, e)
}

// submissionLedgerEntries builds the ledger postings of a submit: one
// outgoing entry per source side and one incoming entry per target side,
// in row order.
func (s *Service) submissionLedgerEntries(e *StockEntry) []ledger.Entry {
	entries := make([]ledger.Entry, 0, 2*len(e.Lines))
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.SourceWarehouse != "" {
			entries = append(entries, s.ledgerEntry(e, line, line.SourceWarehouse, -line.TransferQty, 0))
		}
		if line.TargetWarehouse != "" {
			entries = append(entries, s.ledgerEntry(e, line, line.TargetWarehouse, line.TransferQty, line.IncomingRate))
		}
	}
	return entries
}

// cancellationLedgerEntries mirrors the submission exactly: the target side
// is reversed before the source side so the source gets its quantity back
// at the rate it left with.
func (s *Service) cancellationLedgerEntries(e *StockEntry) []ledger.Entry {
	entries := make([]ledger.Entry, 0, 2*len(e.Lines))
	for i := range e.Lines {
		line := &e.Lines[i]
		if line.TargetWarehouse != "" {
			entries = append(entries, s.ledgerEntry(e, line, line.TargetWarehouse, -line.TransferQty, 0))
		}
		if line.SourceWarehouse != "" {
			entries = append(entries, s.ledgerEntry(e, line, line.SourceWarehouse, line.TransferQty, line.IncomingRate))
		}
	}
	return entries
}

func (s *Service) ledgerEntry(e *StockEntry, line *StockEntryLine, warehouse string, qty, rate float64) ledger.Entry {
	return ledger.Entry{
		ItemCode:     line.ItemCode,
		Warehouse:    warehouse,
		PostedAt:     e.PostedAt,
		ActualQty:    qty,
		IncomingRate: rate,
		VoucherType:  ledger.VoucherTypeStockEntry,
		VoucherNo:    e.Name,
		BatchNo:      line.BatchNo,
		SerialNo:     line.SerialNo,
	}
}

// acquirePostingLocks takes the redis locks guarding the cross-document
// aggregates the entry touches. Locks are acquired in a fixed order.
func (s *Service) acquirePostingLocks(ctx context.Context, e *StockEntry) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	if e.ProductionOrder != "" {
		r, err := s.locks.Acquire(ctx, shared.ProductionOrderLockKey(e.ProductionOrder))
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, r)
	}
	for _, rule := range s.rules.ReturnReferences[e.Purpose] {
		refNo := e.ReferenceNo(rule.Field)
		if refNo == "" {
			continue
		}
		r, err := s.locks.Acquire(ctx, shared.ReturnReferenceLockKey(string(rule.DocType), refNo))
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, r)
	}
	return release, nil
}

// FetchItems populates a manufacture or transfer draft from its production
// order: the pending raw materials capped at the order remainder, plus the
// finished goods row for manufacture entries. Existing lines are replaced.
func (s *Service) FetchItems(ctx context.Context, e *StockEntry) ([]Notice, error) {
	if e.ProductionOrder == "" {
		return nil, newError(ErrKindDoesNotExist, "a production order is required to fetch items")
	}
	if e.Purpose != PurposeManufacture && e.Purpose != PurposeMaterialTransfer {
		return nil, newError(ErrKindInvalidPurpose,
			"items can only be fetched for manufacture or material transfer entries")
	}
	if e.FGCompletedQty <= 0 {
		return nil, newError(ErrKindManufacturingQtyMandatory, "manufacturing quantity is mandatory")
	}
	order, err := s.orders.GetOrder(ctx, e.ProductionOrder)
	if err != nil {
		return nil, err
	}
	if !order.Submitted() {
		return nil, newError(ErrKindInvalidStatus, "production order %s must be submitted", order.Name)
	}

	lines, notices, err := s.pendingRawMaterials(ctx, e, order)
	if err != nil {
		return nil, err
	}
	e.BOMNo = order.BOMNo
	e.UseMultiLevelBOM = order.UseMultiLevelBOM
	if e.Purpose == PurposeManufacture {
		e.FromWarehouse = order.WIPWarehouse
		lines = append(lines, StockEntryLine{
			ItemCode:        order.ProductionItem,
			TargetWarehouse: order.FGWarehouse,
			Qty:             e.FGCompletedQty,
			TransferQty:     e.FGCompletedQty,
			BOMNo:           order.BOMNo,
		})
	} else {
		e.ToWarehouse = order.WIPWarehouse
	}
	e.Lines = lines
	return notices, nil
}

// ReferenceDetails loads the party and state of a return reference document
// for form prefill.
func (s *Service) ReferenceDetails(ctx context.Context, docType RefDocType, name string) (ReferenceDoc, PartyDetails, error) {
	doc, err := s.refs.GetReferenceDoc(ctx, docType, name)
	if err != nil {
		return ReferenceDoc{}, PartyDetails{}, err
	}
	if doc.Name == "" {
		return ReferenceDoc{}, PartyDetails{}, newError(ErrKindDoesNotExist, "%s %s does not exist", docType, name)
	}
	party, err := s.master.PartyDetails(ctx, docType, name)
	if err != nil {
		return ReferenceDoc{}, PartyDetails{}, err
	}
	return doc, party, nil
}

func (s *Service) failValidation(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) && s.metrics != nil {
		s.metrics.ObserveValidationFailure(string(ve.Kind))
	}
	return err
}

func (s *Service) observePosting(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.metrics.ObserveValidationFailure(string(ve.Kind))
		}
	}
	s.metrics.ObservePosting(operation, outcome)
}

func (s *Service) recordAudit(ctx context.Context, e *StockEntry, action string) {
	s.recordAuditBy(ctx, e, action, e.CreatedBy)
}

func (s *Service) recordAuditBy(ctx context.Context, e *StockEntry, action string, actorID int64) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_entry",
		EntityID: e.Name,
		Meta: map[string]any{
			"purpose":   string(e.Purpose),
			"docstatus": int(e.DocStatus),
		},
		At: s.now(),
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.log.Warn("audit record failed", "entry", e.Name, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
