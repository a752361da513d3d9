// Package ledger posts sales and payments for customers and derives their
// balances. Entries are append-only; the settled flag is the one field that
// ever changes, and balances are always summed by the store, never cached.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
)

// PaymentDescription marks the synthetic item written for a partial payment.
const PaymentDescription = "--- PAGAMENTO ---"

type Recorder struct {
	entries store.LedgerStore
	now     func() time.Time
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRecorder(entries store.LedgerStore, opts ...Option) *Recorder {
	r := &Recorder{
		entries: entries,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Post(ctx context.Context, customerID string, accountID string, item domain.LineItem) (*domain.LedgerEntry, error) {
	return r.PostAt(ctx, customerID, accountID, item, r.now())
}

// PostAt writes an entry with an explicit timestamp. Imports use it to
// backdate history.
func (r *Recorder) PostAt(ctx context.Context, customerID string, accountID string, item domain.LineItem, at time.Time) (*domain.LedgerEntry, error) {
	if item.Description == "" || !item.Quantity.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	entry, err := r.entries.AppendEntry(ctx, domain.LedgerEntry{
		CustomerID: customerID,
		AccountID:  accountID,
		LineItem:   domain.NewLineItem(item.Quantity, item.Description, item.UnitPrice),
		CreatedAt:  at,
	})
	if err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}
	return entry, nil
}

// PostAll appends items one by one. It is not transactional: every item is
// attempted, posted holds what was written and failed what was not, and err
// is the first failure.
func (r *Recorder) PostAll(ctx context.Context, customerID string, accountID string, items []domain.LineItem) (posted []domain.LedgerEntry, failed []domain.LineItem, err error) {
	for _, item := range items {
		entry, postErr := r.Post(ctx, customerID, accountID, item)
		if postErr != nil {
			failed = append(failed, item)
			if err == nil {
				err = postErr
			}
			continue
		}
		posted = append(posted, *entry)
	}
	return posted, failed, err
}

// Pay records a partial payment as a negative entry.
func (r *Recorder) Pay(ctx context.Context, customerID string, accountID string, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	return r.Post(ctx, customerID, accountID, domain.NewLineItem(decimal.NewFromInt(1), PaymentDescription, amount.Neg()))
}

func (r *Recorder) Balance(ctx context.Context, customerID string, accountID string) (decimal.Decimal, error) {
	balance, err := r.entries.SumUnsettled(ctx, customerID, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum unsettled: %w", err)
	}
	return balance, nil
}

// SettleAll marks every open entry settled and returns how many changed.
// Settling an already clear customer succeeds with zero.
func (r *Recorder) SettleAll(ctx context.Context, customerID string, accountID string) (int, error) {
	changed, err := r.entries.MarkAllSettled(ctx, customerID, accountID)
	if err != nil {
		return 0, fmt.Errorf("settle entries: %w", err)
	}
	return changed, nil
}

// Statement returns the open entries oldest first and their sum.
func (r *Recorder) Statement(ctx context.Context, customerID string, accountID string) ([]domain.LedgerEntry, decimal.Decimal, error) {
	entries, err := r.entries.ListUnsettled(ctx, customerID, accountID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("list unsettled: %w", err)
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Total)
	}
	return entries, total, nil
}

func (r *Recorder) AccountTotal(ctx context.Context, accountID string) (decimal.Decimal, error) {
	total, err := r.entries.SumUnsettledByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum account: %w", err)
	}
	return total, nil
}
