package journals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryJournalRepo struct {
	entries []JournalEntry
	nextID  int64
}

type memoryJournalTx struct {
	repo *memoryJournalRepo
}

func (r *memoryJournalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryJournalTx{repo: r})
}

func (r *memoryJournalRepo) GetBySource(ctx context.Context, sourceModule, sourceID string) (JournalEntry, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.SourceModule == sourceModule && e.SourceID == sourceID {
			return e, nil
		}
	}
	return JournalEntry{}, ErrJournalNotFound
}

func (r *memoryJournalRepo) AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error) {
	var balance float64
	for _, e := range r.entries {
		if e.Date.After(asOf) {
			continue
		}
		for _, l := range e.Lines {
			if l.Account == account {
				balance += l.Debit - l.Credit
			}
		}
	}
	return balance, nil
}

func (t *memoryJournalTx) InsertJournalEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	t.repo.nextID++
	entry := JournalEntry{
		ID:           t.repo.nextID,
		Number:       t.repo.nextID,
		Date:         input.Date,
		Kind:         input.Kind,
		SourceModule: input.SourceModule,
		SourceID:     input.SourceID,
		Memo:         input.Memo,
		PostedBy:     input.PostedBy,
		Status:       JournalStatusPosted,
	}
	t.repo.entries = append(t.repo.entries, entry)
	return entry, nil
}

func (t *memoryJournalTx) InsertJournalLines(ctx context.Context, journalID int64, lines []PostingLineInput) error {
	for i := range t.repo.entries {
		if t.repo.entries[i].ID == journalID {
			t.repo.entries[i].Lines = toJournalLines(journalID, lines, time.Now())
		}
	}
	return nil
}

func (t *memoryJournalTx) SourceLinked(ctx context.Context, sourceModule, sourceID string) (bool, error) {
	_, err := t.repo.GetBySource(ctx, sourceModule, sourceID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func balancedInput() PostingInput {
	return PostingInput{
		Date:         time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC),
		Kind:         VoucherKindCreditNote,
		SourceModule: "STOCK_ENTRY",
		SourceID:     "STE-0001",
		PostedBy:     7,
		Lines: []PostingLineInput{
			{Account: "Debtors", Debit: 0, Credit: 500, AgainstInvoice: "SI-1"},
			{Account: "Sales", Debit: 500, Credit: 0},
		},
	}
}

func TestPostBalancedJournal(t *testing.T) {
	repo := &memoryJournalRepo{}
	svc := NewService(repo, nil)

	entry, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	require.Equal(t, JournalStatusPosted, entry.Status)
	require.Len(t, entry.Lines, 2)
}

func TestPostRejectsUnbalanced(t *testing.T) {
	svc := NewService(&memoryJournalRepo{}, nil)
	input := balancedInput()
	input.Lines[1].Debit = 400

	_, err := svc.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrUnbalanced)
}

func TestPostRejectsDuplicateSource(t *testing.T) {
	repo := &memoryJournalRepo{}
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), balancedInput())
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

func TestReverseBySourceMirrorsLines(t *testing.T) {
	repo := &memoryJournalRepo{}
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)

	reversal, err := svc.ReverseBySource(context.Background(), "STOCK_ENTRY", "STE-0001", 7)
	require.NoError(t, err)
	require.Equal(t, "STOCK_ENTRY:REVERSAL", reversal.SourceModule)
	require.InDelta(t, 500.0, reversal.Lines[0].Debit, 0.001)
	require.InDelta(t, 0.0, reversal.Lines[0].Credit, 0.001)
}

func TestAccountBalance(t *testing.T) {
	repo := &memoryJournalRepo{}
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)

	balance, err := svc.AccountBalance(context.Background(), "Sales", time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.InDelta(t, 500.0, balance, 0.001)

	// As of a date before the posting the balance is untouched.
	balance, err = svc.AccountBalance(context.Background(), "Sales", time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, balance)
}
