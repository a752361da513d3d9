package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/store/memory"
)

const account = "acc-1"

func newCustomer(t *testing.T, repo *memory.Store, name string) domain.Customer {
	t.Helper()
	c, err := repo.CreateCustomer(context.Background(), domain.Customer{
		AccountID:      account,
		DisplayName:    name,
		NormalizedName: name,
	})
	require.NoError(t, err)
	return *c
}

func item(qty int64, desc string, price string) domain.LineItem {
	return domain.NewLineItem(decimal.NewFromInt(qty), desc, decimal.RequireFromString(price))
}

func TestPostAndBalance(t *testing.T) {
	repo := memory.New()
	c := newCustomer(t, repo, "maria")
	rec := NewRecorder(repo)
	ctx := context.Background()

	_, err := rec.Post(ctx, c.ID, account, item(2, "refri", "5"))
	require.NoError(t, err)
	_, err = rec.Post(ctx, c.ID, account, item(1, "bolo", "20"))
	require.NoError(t, err)

	balance, err := rec.Balance(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "30", balance.String())
}

func TestPayWritesNegativeEntry(t *testing.T) {
	repo := memory.New()
	c := newCustomer(t, repo, "maria")
	rec := NewRecorder(repo)
	ctx := context.Background()

	_, err := rec.Post(ctx, c.ID, account, item(3, "pao", "0.75"))
	require.NoError(t, err)

	entry, err := rec.Pay(ctx, c.ID, account, decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	assert.Equal(t, PaymentDescription, entry.Description)
	assert.True(t, entry.IsPayment())

	balance, err := rec.Balance(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "1", balance.String())

	_, err = rec.Pay(ctx, c.ID, account, decimal.Zero)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSettleAllIsIdempotent(t *testing.T) {
	repo := memory.New()
	c := newCustomer(t, repo, "maria")
	rec := NewRecorder(repo)
	ctx := context.Background()

	_, _, err := rec.PostAll(ctx, c.ID, account, []domain.LineItem{item(2, "refri", "5"), item(1, "bolo", "20")})
	require.NoError(t, err)

	changed, err := rec.SettleAll(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	balance, err := rec.Balance(ctx, c.ID, account)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	changed, err = rec.SettleAll(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Zero(t, changed)

	balance, err = rec.Balance(ctx, c.ID, account)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	entries, _, err := rec.Statement(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatementIsOldestFirst(t *testing.T) {
	repo := memory.New()
	c := newCustomer(t, repo, "maria")
	rec := NewRecorder(repo)
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := rec.PostAt(ctx, c.ID, account, item(1, "b", "2"), base.Add(time.Hour))
	require.NoError(t, err)
	_, err = rec.PostAt(ctx, c.ID, account, item(1, "a", "1"), base)
	require.NoError(t, err)

	entries, total, err := rec.Statement(ctx, c.ID, account)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Description)
	assert.Equal(t, "b", entries[1].Description)
	assert.Equal(t, "3", total.String())
}

func TestBalanceIsOrderIndependent(t *testing.T) {
	faker := gofakeit.New(7)
	ctx := context.Background()

	for round := 0; round < 25; round++ {
		var (
			items []domain.LineItem
			want  = decimal.Zero
		)
		n := faker.IntRange(1, 20)
		for i := 0; i < n; i++ {
			cents := decimal.New(int64(faker.IntRange(1, 50000)), -2)
			var it domain.LineItem
			if faker.Bool() {
				it = domain.NewLineItem(decimal.NewFromInt(int64(faker.IntRange(1, 5))), faker.Noun(), cents)
			} else {
				it = domain.NewLineItem(decimal.NewFromInt(1), PaymentDescription, cents.Neg())
			}
			items = append(items, it)
			want = want.Add(it.Total)
		}

		forward := memory.New()
		fc := newCustomer(t, forward, "forward")
		_, _, err := NewRecorder(forward).PostAll(ctx, fc.ID, account, items)
		require.NoError(t, err)

		shuffled := append([]domain.LineItem(nil), items...)
		faker.ShuffleAnySlice(shuffled)
		other := memory.New()
		oc := newCustomer(t, other, "shuffled")
		_, _, err = NewRecorder(other).PostAll(ctx, oc.ID, account, shuffled)
		require.NoError(t, err)

		a, err := NewRecorder(forward).Balance(ctx, fc.ID, account)
		require.NoError(t, err)
		b, err := NewRecorder(other).Balance(ctx, oc.ID, account)
		require.NoError(t, err)
		assert.True(t, a.Equal(want), "round %d: want %s got %s", round, want, a)
		assert.True(t, b.Equal(want), "round %d: want %s got %s", round, want, b)
	}
}

type flakyLedger struct {
	store.LedgerStore
	failOn string
}

func (f flakyLedger) AppendEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Description == f.failOn {
		return nil, errors.New("write timeout")
	}
	return f.LedgerStore.AppendEntry(ctx, entry)
}

func TestPostAllReportsPartialFailure(t *testing.T) {
	repo := memory.New()
	c := newCustomer(t, repo, "maria")
	rec := NewRecorder(flakyLedger{LedgerStore: repo, failOn: "bolo"})
	ctx := context.Background()

	posted, failed, err := rec.PostAll(ctx, c.ID, account, []domain.LineItem{
		item(2, "refri", "5"),
		item(1, "bolo", "20"),
		item(1, "suco", "3"),
	})
	require.Error(t, err)
	require.Len(t, posted, 2)
	require.Len(t, failed, 1)
	assert.Equal(t, "bolo", failed[0].Description)

	balance, err := rec.Balance(ctx, c.ID, account)
	require.NoError(t, err)
	assert.Equal(t, "13", balance.String())
}
