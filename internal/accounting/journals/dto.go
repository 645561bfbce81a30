package journals

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnbalanced indicates debit and credit totals differ.
var ErrUnbalanced = errors.New("accounting: journal must balance")

// ErrTooFewLines indicates a journal with fewer than two lines.
var ErrTooFewLines = errors.New("accounting: journal requires at least two lines")

// ErrSourceAlreadyLinked indicates a source document already posted a journal.
var ErrSourceAlreadyLinked = errors.New("accounting: source already linked to a journal")

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	Account        string
	Debit          float64
	Credit         float64
	AgainstInvoice string
	AgainstVoucher string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	Kind         VoucherKind
	SourceModule string
	SourceID     string
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.Account == "" {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == "" {
		return errors.New("accounting: source id required")
	}
	return nil
}
