package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
)

func TestAccountsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.CreateCustomer(ctx, domain.Customer{AccountID: "a", DisplayName: "Maria", NormalizedName: "maria"})
	require.NoError(t, err)
	_, err = s.CreateCustomer(ctx, domain.Customer{AccountID: "b", DisplayName: "Maria", NormalizedName: "maria"})
	require.NoError(t, err)

	exact, err := s.FindExact(ctx, "maria", "a")
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, a.ID, exact[0].ID)

	_, err = s.GetCustomer(ctx, a.ID, "b")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AppendEntry(ctx, domain.LedgerEntry{
		CustomerID: a.ID, AccountID: "b",
		LineItem: domain.NewLineItem(decimal.NewFromInt(1), "bolo", decimal.NewFromInt(5)),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCustomer(ctx, a.ID, "b"), store.ErrNotFound)
}

func TestMergeValidatesBeforeMoving(t *testing.T) {
	s := New()
	ctx := context.Background()
	target, err := s.CreateCustomer(ctx, domain.Customer{AccountID: "a", DisplayName: "Zé", NormalizedName: "ze"})
	require.NoError(t, err)
	dup, err := s.CreateCustomer(ctx, domain.Customer{AccountID: "a", DisplayName: "ZE", NormalizedName: "ze"})
	require.NoError(t, err)
	_, err = s.AppendEntry(ctx, domain.LedgerEntry{
		CustomerID: dup.ID, AccountID: "a",
		LineItem:  domain.NewLineItem(decimal.NewFromInt(2), "pão", decimal.NewFromInt(1)),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.MergeCustomers(ctx, "a", target.ID, []string{dup.ID, "cus-missing"}), store.ErrInvalidInput)
	balance, err := s.SumUnsettled(ctx, dup.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", balance.String(), "a rejected merge moves nothing")

	require.NoError(t, s.MergeCustomers(ctx, "a", target.ID, []string{dup.ID}))
	balance, err = s.SumUnsettled(ctx, target.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", balance.String())

	all, err := s.ListCustomers(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
