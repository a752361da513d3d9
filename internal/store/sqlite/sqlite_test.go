package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
)

const account = "acct-1"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "fiado.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCustomer(t *testing.T, s *Store, display string, normalized string, created time.Time) *domain.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), domain.Customer{
		AccountID: account, DisplayName: display, NormalizedName: normalized, CreatedAt: created,
	})
	require.NoError(t, err)
	return c
}

func mustEntry(t *testing.T, s *Store, customerID string, item domain.LineItem, at time.Time) {
	t.Helper()
	_, err := s.AppendEntry(context.Background(), domain.LedgerEntry{
		CustomerID: customerID, AccountID: account, LineItem: item, CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestCustomerLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)

	first := mustCustomer(t, s, "Maria Souza", "maria souza", base)
	mustCustomer(t, s, "Mariana", "mariana", base.Add(time.Minute))
	second := mustCustomer(t, s, "MARIA SOUZA", "maria souza", base.Add(2*time.Minute))
	mustCustomer(t, s, "Outra Loja", "outra loja", base)
	_, err := s.CreateCustomer(ctx, domain.Customer{AccountID: "acct-2", DisplayName: "Maria", NormalizedName: "maria"})
	require.NoError(t, err)

	exact, err := s.FindExact(ctx, "maria souza", account)
	require.NoError(t, err)
	require.Len(t, exact, 2)
	assert.Equal(t, first.ID, exact[0].ID)
	assert.Equal(t, second.ID, exact[1].ID)
	assert.True(t, exact[0].CreatedAt.Equal(base))

	similar, err := s.FindSimilar(ctx, "maria", account, 2)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, "Maria Souza", similar[0].DisplayName)
	assert.Equal(t, "Mariana", similar[1].DisplayName)

	list, err := s.ListCustomers(ctx, account)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "mariana", list[2].NormalizedName)

	_, err = s.GetCustomer(ctx, first.ID, "acct-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateCustomer(ctx, domain.Customer{ID: first.ID, AccountID: account, DisplayName: "X", NormalizedName: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestLedgerBalancesAndSettle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)
	maria := mustCustomer(t, s, "Maria", "maria", base)

	mustEntry(t, s, maria.ID, domain.NewLineItem(decimal.NewFromInt(1), "bolo", decimal.NewFromInt(20)), base.Add(2*time.Hour))
	mustEntry(t, s, maria.ID, domain.NewLineItem(decimal.NewFromInt(3), "bala", decimal.RequireFromString("0.10")), base.Add(time.Hour))
	mustEntry(t, s, maria.ID, domain.NewLineItem(decimal.NewFromInt(1), "--- PAGAMENTO ---", decimal.RequireFromString("-5.15")), base.Add(3*time.Hour))

	balance, err := s.SumUnsettled(ctx, maria.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "15.15", balance.String())

	entries, err := s.ListUnsettled(ctx, maria.ID, account)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bala", entries[0].Description)
	assert.Equal(t, "0.3", entries[0].Total.String())

	window, err := s.ListEntries(ctx, account, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 2, "from is inclusive, to is exclusive")

	changed, err := s.MarkAllSettled(ctx, maria.ID, account)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	total, err := s.SumUnsettledByAccount(ctx, account)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = s.AppendEntry(ctx, domain.LedgerEntry{
		CustomerID: maria.ID, AccountID: "acct-2",
		LineItem: domain.NewLineItem(decimal.NewFromInt(1), "x", decimal.NewFromInt(1)),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMergeRenameDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)

	target := mustCustomer(t, s, "Zé", "ze", base)
	dup := mustCustomer(t, s, "ZE", "ze", base.Add(time.Minute))
	mustEntry(t, s, dup.ID, domain.NewLineItem(decimal.NewFromInt(2), "pão", decimal.NewFromInt(1)), base)

	assert.ErrorIs(t, s.MergeCustomers(ctx, account, "cus-missing", []string{dup.ID}), store.ErrNotFound)
	assert.ErrorIs(t, s.MergeCustomers(ctx, account, target.ID, []string{target.ID}), store.ErrInvalidInput)
	require.NoError(t, s.MergeCustomers(ctx, account, target.ID, []string{dup.ID}))

	_, err := s.GetCustomer(ctx, dup.ID, account)
	assert.ErrorIs(t, err, store.ErrNotFound)
	balance, err := s.SumUnsettled(ctx, target.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "2", balance.String())

	renamed, err := s.RenameCustomer(ctx, target.ID, account, "José", "jose")
	require.NoError(t, err)
	assert.Equal(t, "José", renamed.DisplayName)
	_, err = s.RenameCustomer(ctx, "cus-missing", account, "A", "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteCustomer(ctx, target.ID, account))
	total, err := s.SumUnsettledByAccount(ctx, account)
	require.NoError(t, err)
	assert.True(t, total.IsZero(), "entries cascade with the customer")
}

func TestCreditLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetCreditLimit(ctx, account)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCreditLimit(ctx, account, decimal.NewFromInt(100)))
	require.NoError(t, s.SetCreditLimit(ctx, account, decimal.RequireFromString("250.50")))
	limit, ok, err := s.GetCreditLimit(ctx, account)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "250.5", limit.String())

	assert.ErrorIs(t, s.SetCreditLimit(ctx, account, decimal.NewFromInt(-1)), store.ErrInvalidInput)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiado.db")
	s, err := New(path)
	require.NoError(t, err)
	c := mustCustomer(t, s, "Ana", "ana", time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.GetCustomer(context.Background(), c.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.DisplayName)
	assert.True(t, got.CreatedAt.Equal(c.CreatedAt))
}
