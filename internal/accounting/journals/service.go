package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBySource(ctx context.Context, sourceModule, sourceID string) (JournalEntry, error)
	AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertJournalEntry(ctx context.Context, input PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, journalID int64, lines []PostingLineInput) error
	SourceLinked(ctx context.Context, sourceModule, sourceID string) (bool, error)
}

// ErrJournalNotFound indicates no journal exists for a source document.
var ErrJournalNotFound = errors.New("accounting: journal not found")

// Service posts and reverses accounting journals.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a balanced journal entry.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		linked, err := tx.SourceLinked(ctx, input.SourceModule, input.SourceID)
		if err != nil {
			return err
		}
		if linked {
			return ErrSourceAlreadyLinked
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PostedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":        entry.Number,
				"source_module": input.SourceModule,
				"source_id":     input.SourceID,
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// ReverseBySource posts the mirror image of the journal previously linked to
// a source document. Used when the source document is cancelled.
func (s *Service) ReverseBySource(ctx context.Context, sourceModule, sourceID string, actorID int64) (JournalEntry, error) {
	original, err := s.repo.GetBySource(ctx, sourceModule, sourceID)
	if err != nil {
		return JournalEntry{}, err
	}
	posting := PostingInput{
		Date:         s.now(),
		Kind:         original.Kind,
		SourceModule: original.SourceModule + ":REVERSAL",
		SourceID:     original.SourceID,
		Memo:         fmt.Sprintf("Reversal of JE %d", original.Number),
		PostedBy:     actorID,
		Lines:        reverseLines(original.Lines),
	}
	return s.Post(ctx, posting)
}

// AccountBalance returns the balance of an account as of a date.
func (s *Service) AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error) {
	if account == "" {
		return 0, nil
	}
	return s.repo.AccountBalance(ctx, account, asOf)
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			Account:        line.Account,
			Debit:          line.Credit,
			Credit:         line.Debit,
			AgainstInvoice: line.AgainstInvoice,
			AgainstVoucher: line.AgainstVoucher,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:      entryID,
			Account:        line.Account,
			Debit:          line.Debit,
			Credit:         line.Credit,
			AgainstInvoice: line.AgainstInvoice,
			AgainstVoucher: line.AgainstVoucher,
			CreatedAt:      ts,
		})
	}
	return out
}
