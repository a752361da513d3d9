// Package report builds read-only summaries over an account's ledger:
// debtor rankings, debts left open for too long and period totals.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
)

type Engine struct {
	repo     store.Repository
	now      func() time.Time
	location *time.Location
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone that decides where a day starts.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func NewEngine(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TopDebtors ranks customers with a positive open balance, largest first.
// limit < 1 returns all of them.
func (e *Engine) TopDebtors(ctx context.Context, accountID string, limit int) ([]domain.DebtorSummary, error) {
	customers, err := e.repo.ListCustomers(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	debtors := make([]domain.DebtorSummary, 0, len(customers))
	for _, c := range customers {
		balance, err := e.repo.SumUnsettled(ctx, c.ID, accountID)
		if err != nil {
			return nil, fmt.Errorf("sum unsettled for %s: %w", c.ID, err)
		}
		if !balance.IsPositive() {
			continue
		}
		debtors = append(debtors, domain.DebtorSummary{
			CustomerID:  c.ID,
			DisplayName: c.DisplayName,
			Balance:     balance,
		})
	}
	sortDebtors(debtors)

	if limit > 0 && len(debtors) > limit {
		debtors = debtors[:limit]
	}
	return debtors, nil
}

// OldDebts sums, per customer, the open entries created more than age ago.
func (e *Engine) OldDebts(ctx context.Context, accountID string, age time.Duration) ([]domain.DebtorSummary, error) {
	cutoff := e.now().Add(-age)
	entries, err := e.repo.ListEntries(ctx, accountID, time.Time{}, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	customers, err := e.repo.ListCustomers(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	names := make(map[string]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.DisplayName
	}

	sums := make(map[string]decimal.Decimal)
	for _, entry := range entries {
		if entry.Settled {
			continue
		}
		sums[entry.CustomerID] = sums[entry.CustomerID].Add(entry.Total)
	}

	out := make([]domain.DebtorSummary, 0, len(sums))
	for id, sum := range sums {
		if !sum.IsPositive() {
			continue
		}
		out = append(out, domain.DebtorSummary{CustomerID: id, DisplayName: names[id], Balance: sum})
	}
	sortDebtors(out)
	return out, nil
}

// Period totals the movements with from <= CreatedAt < to.
func (e *Engine) Period(ctx context.Context, accountID string, from time.Time, to time.Time) (domain.PeriodSummary, error) {
	entries, err := e.repo.ListEntries(ctx, accountID, from, to)
	if err != nil {
		return domain.PeriodSummary{}, fmt.Errorf("list entries: %w", err)
	}

	summary := domain.PeriodSummary{From: from, To: to, Sold: decimal.Zero, Received: decimal.Zero}
	for _, entry := range entries {
		switch {
		case entry.Total.IsPositive():
			summary.Sold = summary.Sold.Add(entry.Total)
			summary.Sales++
		case entry.Total.IsNegative():
			summary.Received = summary.Received.Add(entry.Total.Abs())
		}
	}
	return summary, nil
}

// Today is Period over the current calendar day.
func (e *Engine) Today(ctx context.Context, accountID string) (domain.PeriodSummary, error) {
	from, to := DayBounds(e.now().In(e.location))
	return e.Period(ctx, accountID, from, to)
}

// DayBounds returns midnight of t's day and the following midnight, in t's
// location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}

func sortDebtors(debtors []domain.DebtorSummary) {
	sort.Slice(debtors, func(i, j int) bool {
		if cmp := debtors[i].Balance.Cmp(debtors[j].Balance); cmp != 0 {
			return cmp > 0
		}
		return debtors[i].DisplayName < debtors[j].DisplayName
	})
}
