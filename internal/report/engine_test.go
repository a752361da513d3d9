package report

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store/memory"
)

const account = "acc-1"

type fixture struct {
	repo *memory.Store
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{repo: memory.New(), now: time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)}
}

func (f *fixture) customer(t *testing.T, name string) string {
	t.Helper()
	c, err := f.repo.CreateCustomer(context.Background(), domain.Customer{AccountID: account, DisplayName: name, NormalizedName: name})
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) entry(t *testing.T, customerID string, total string, at time.Time) {
	t.Helper()
	_, err := f.repo.AppendEntry(context.Background(), domain.LedgerEntry{
		CustomerID: customerID,
		AccountID:  account,
		LineItem:   domain.NewLineItem(decimal.NewFromInt(1), "item", decimal.RequireFromString(total)),
		CreatedAt:  at,
	})
	require.NoError(t, err)
}

func (f *fixture) engine() *Engine {
	return NewEngine(f.repo, WithClock(func() time.Time { return f.now }))
}

func TestTopDebtorsRanksAndLimits(t *testing.T) {
	f := newFixture(t)
	ana := f.customer(t, "ana")
	bia := f.customer(t, "bia")
	caio := f.customer(t, "caio")
	duda := f.customer(t, "duda")

	f.entry(t, ana, "10", f.now)
	f.entry(t, bia, "50", f.now)
	f.entry(t, caio, "30", f.now)
	f.entry(t, duda, "20", f.now)
	f.entry(t, duda, "-20", f.now)

	debtors, err := f.engine().TopDebtors(context.Background(), account, 2)
	require.NoError(t, err)
	require.Len(t, debtors, 2)
	assert.Equal(t, "bia", debtors[0].DisplayName)
	assert.Equal(t, "caio", debtors[1].DisplayName)

	all, err := f.engine().TopDebtors(context.Background(), account, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "zero balances are left out")
}

func TestOldDebtsOnlyCountsOpenEntriesPastCutoff(t *testing.T) {
	f := newFixture(t)
	ana := f.customer(t, "ana")
	bia := f.customer(t, "bia")

	f.entry(t, ana, "40", f.now.AddDate(0, 0, -45))
	f.entry(t, ana, "5", f.now.AddDate(0, 0, -2))
	f.entry(t, bia, "15", f.now.AddDate(0, 0, -31))
	f.entry(t, bia, "-15", f.now.AddDate(0, 0, -31))

	old, err := f.engine().OldDebts(context.Background(), account, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "ana", old[0].DisplayName)
	assert.Equal(t, "40", old[0].Balance.String())

	_, err = f.repo.MarkAllSettled(context.Background(), ana, account)
	require.NoError(t, err)
	old, err = f.engine().OldDebts(context.Background(), account, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestTodaySplitsSalesAndPayments(t *testing.T) {
	f := newFixture(t)
	ana := f.customer(t, "ana")

	f.entry(t, ana, "12.5", f.now.Add(-time.Hour))
	f.entry(t, ana, "7.5", f.now.Add(-2*time.Hour))
	f.entry(t, ana, "-10", f.now.Add(-30*time.Minute))
	f.entry(t, ana, "99", f.now.AddDate(0, 0, -1))

	summary, err := f.engine().Today(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "20", summary.Sold.String())
	assert.Equal(t, "10", summary.Received.String())
	assert.Equal(t, 2, summary.Sales)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	from, to := DayBounds(time.Date(2026, 5, 20, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, 5, 21, 0, 0, 0, 0, loc), to)
}
