package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/store/memory"
	"fiado/backend/internal/textnorm"
)

func seed(t *testing.T, repo *memory.Store, accountID string, names ...string) []domain.Customer {
	t.Helper()
	out := make([]domain.Customer, 0, len(names))
	for _, n := range names {
		c, err := repo.CreateCustomer(context.Background(), domain.Customer{
			AccountID:      accountID,
			DisplayName:    n,
			NormalizedName: textnorm.Name(n),
		})
		require.NoError(t, err)
		out = append(out, *c)
	}
	return out
}

func TestResolveExactIgnoresAccentsAndCase(t *testing.T) {
	repo := memory.New()
	seeded := seed(t, repo, "acc-1", "José Silva")
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), "  JOSE   silva ", "acc-1")
	require.NoError(t, err)

	found, ok := res.(Found)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, seeded[0].ID, found.Customer.ID)
	assert.Zero(t, found.Duplicates)
}

func TestResolveReportsLegacyDuplicates(t *testing.T) {
	repo := memory.New()
	seeded := seed(t, repo, "acc-1", "Ana", "ana", "ANA")
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), "Ána", "acc-1")
	require.NoError(t, err)

	found, ok := res.(Found)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, seeded[0].ID, found.Customer.ID, "first in store order")
	assert.Equal(t, 2, found.Duplicates)
}

func TestResolveSimilarByFirstWord(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "acc-1", "Maria Souza", "Mariana", "Marialva", "Maria Clara", "Pedro")
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), "maria joaquina", "acc-1")
	require.NoError(t, err)

	similar, ok := res.(AmbiguousSimilar)
	require.True(t, ok, "got %T", res)
	require.Len(t, similar.Candidates, SimilarLimit)
	assert.Equal(t, "Maria Souza", similar.Candidates[0].DisplayName)
	assert.Equal(t, "Mariana", similar.Candidates[1].DisplayName)
	assert.Equal(t, "Marialva", similar.Candidates[2].DisplayName)
}

func TestResolveNoneIsNotAnError(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "acc-1", "Pedro")
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), "Zuleica", "acc-1")
	require.NoError(t, err)
	assert.IsType(t, AmbiguousNone{}, res)

	res, err = r.Resolve(context.Background(), "   ", "acc-1")
	require.NoError(t, err)
	assert.IsType(t, AmbiguousNone{}, res)
}

func TestResolveIsScopedToAccount(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "acc-2", "Pedro")
	r := NewResolver(repo)

	res, err := r.Resolve(context.Background(), "Pedro", "acc-1")
	require.NoError(t, err)
	assert.IsType(t, AmbiguousNone{}, res)
}

func TestResolveDoesNotMutate(t *testing.T) {
	repo := memory.New()
	seed(t, repo, "acc-1", "Pedro")
	r := NewResolver(repo)

	_, err := r.Resolve(context.Background(), "Paulo", "acc-1")
	require.NoError(t, err)

	all, err := repo.ListCustomers(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

type failingStore struct {
	store.CustomerStore
}

func (failingStore) FindExact(context.Context, string, string) ([]domain.Customer, error) {
	return nil, errors.New("connection reset")
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	r := NewResolver(failingStore{})
	_, err := r.Resolve(context.Background(), "Pedro", "acc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
