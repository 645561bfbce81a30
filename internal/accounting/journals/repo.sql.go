package journals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists journals in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journals repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetBySource(ctx context.Context, sourceModule, sourceID string) (JournalEntry, error) {
	if r == nil {
		return JournalEntry{}, errors.New("journals repository not initialised")
	}
	const header = `
		SELECT id, number, date, kind, source_module, source_id, memo,
		       posted_by, posted_at, status, created_at
		FROM journal_entries
		WHERE source_module = $1 AND source_id = $2 AND status = 'POSTED'
		ORDER BY id DESC
		LIMIT 1`
	var e JournalEntry
	err := r.pool.QueryRow(ctx, header, sourceModule, sourceID).Scan(
		&e.ID, &e.Number, &e.Date, &e.Kind, &e.SourceModule, &e.SourceID, &e.Memo,
		&e.PostedBy, &e.PostedAt, &e.Status, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	const lines = `
		SELECT id, journal_id, account, debit, credit,
		       COALESCE(against_invoice, ''), COALESCE(against_voucher, ''), created_at
		FROM journal_lines
		WHERE journal_id = $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, lines, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.Account, &l.Debit, &l.Credit,
			&l.AgainstInvoice, &l.AgainstVoucher, &l.CreatedAt); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (r *Repository) AccountBalance(ctx context.Context, account string, asOf time.Time) (float64, error) {
	if r == nil {
		return 0, errors.New("journals repository not initialised")
	}
	const query = `
		SELECT COALESCE(SUM(l.debit - l.credit), 0)
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.journal_id
		WHERE l.account = $1 AND e.date <= $2 AND e.status = 'POSTED'`
	var balance float64
	if err := r.pool.QueryRow(ctx, query, account, asOf).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (t *txRepository) InsertJournalEntry(ctx context.Context, input PostingInput) (JournalEntry, error) {
	const query = `
		INSERT INTO journal_entries (number, date, kind, source_module, source_id, memo, posted_by, posted_at, status, created_at)
		VALUES (nextval('journal_number_seq'), $1, $2, $3, $4, $5, $6, NOW(), 'POSTED', NOW())
		RETURNING id, number, posted_at, created_at`
	entry := JournalEntry{
		Date:         input.Date,
		Kind:         input.Kind,
		SourceModule: input.SourceModule,
		SourceID:     input.SourceID,
		Memo:         input.Memo,
		PostedBy:     input.PostedBy,
		Status:       JournalStatusPosted,
	}
	err := t.tx.QueryRow(ctx, query, input.Date, string(input.Kind), input.SourceModule,
		input.SourceID, input.Memo, input.PostedBy).
		Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (t *txRepository) InsertJournalLines(ctx context.Context, journalID int64, lines []PostingLineInput) error {
	const query = `
		INSERT INTO journal_lines (journal_id, account, debit, credit, against_invoice, against_voucher, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())`
	for _, line := range lines {
		if _, err := t.tx.Exec(ctx, query, journalID, line.Account, line.Debit, line.Credit,
			line.AgainstInvoice, line.AgainstVoucher); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) SourceLinked(ctx context.Context, sourceModule, sourceID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM journal_entries
			WHERE source_module = $1 AND source_id = $2 AND status = 'POSTED'
		)`
	var linked bool
	if err := t.tx.QueryRow(ctx, query, sourceModule, sourceID).Scan(&linked); err != nil {
		return false, err
	}
	return linked, nil
}
