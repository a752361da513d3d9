package pending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newOp(conv string, created time.Time, ttl time.Duration) domain.PendingOperation {
	return domain.PendingOperation{
		ConversationID: conv,
		AccountID:      "acc-1",
		Kind:           domain.PendingNewCustomerConfirm,
		NewCustomer:    &domain.NewCustomerPayload{CustomerName: "Maria", SaleText: "2 refri 5"},
		CreatedAt:      created,
		ExpiresAt:      created.Add(ttl),
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	op, err := s.Get(context.Background(), "acc-1", "nobody")
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, newOp("conv-1", clock.Now(), 2*time.Minute)))

	clock.Advance(2 * time.Minute)
	op, err := s.Get(ctx, "acc-1", "conv-1")
	require.NoError(t, err, "exactly at ExpiresAt is still valid")
	require.NotNil(t, op)

	clock.Advance(time.Second)
	assert.Equal(t, 1, s.Len(), "nothing sweeps in the background")

	op, err = s.Get(ctx, "acc-1", "conv-1")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Nil(t, op)
	assert.Equal(t, 0, s.Len())

	op, err = s.Get(ctx, "acc-1", "conv-1")
	require.NoError(t, err, "expiry is reported once")
	assert.Nil(t, op)
}

func TestMemoryStoreSetReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	first := newOp("conv-1", now, time.Minute)
	second := newOp("conv-1", now, time.Minute)
	second.NewCustomer = &domain.NewCustomerPayload{CustomerName: "Joao", SaleText: "1 bolo 20"}

	require.NoError(t, s.Set(ctx, first))
	require.NoError(t, s.Set(ctx, second))

	got, err := s.Get(ctx, "acc-1", "conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Joao", got.NewCustomer.CustomerName)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreConversationsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Set(ctx, newOp("conv-a", now, time.Minute)))
	require.NoError(t, s.Set(ctx, newOp("conv-b", now, time.Minute)))
	require.NoError(t, s.Delete(ctx, "acc-1", "conv-a"))

	a, err := s.Get(ctx, "acc-1", "conv-a")
	require.NoError(t, err)
	assert.Nil(t, a)

	b, err := s.Get(ctx, "acc-1", "conv-b")
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestMemoryStoreAccountsSharingConversationAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	mine := newOp("shared-conv", now, time.Minute)
	theirs := newOp("shared-conv", now, time.Minute)
	theirs.AccountID = "acc-2"
	theirs.NewCustomer = &domain.NewCustomerPayload{CustomerName: "Joao", SaleText: "1 bolo 20"}

	require.NoError(t, s.Set(ctx, mine))
	require.NoError(t, s.Set(ctx, theirs))
	assert.Equal(t, 2, s.Len())

	got, err := s.Get(ctx, "acc-1", "shared-conv")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Maria", got.NewCustomer.CustomerName)

	require.NoError(t, s.Delete(ctx, "acc-2", "shared-conv"))
	got, err = s.Get(ctx, "acc-1", "shared-conv")
	require.NoError(t, err)
	assert.NotNil(t, got, "deleting another account's operation leaves this one")

	got, err = s.Get(ctx, "acc-2", "shared-conv")
	require.NoError(t, err)
	assert.Nil(t, got)
}
