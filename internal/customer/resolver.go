// Package customer resolves free-text customer names against an account's
// customer list.
package customer

import (
	"context"
	"fmt"
	"strings"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/textnorm"
)

// SimilarLimit caps how many near matches a miss returns.
const SimilarLimit = 3

// Resolution is one of Found, AmbiguousSimilar or AmbiguousNone.
type Resolution interface {
	resolution()
}

// Found is an exact normalized-name match. Duplicates counts further exact
// matches beyond Customer, which only exist on accounts that predate
// normalized names.
type Found struct {
	Customer   domain.Customer
	Duplicates int
}

// AmbiguousSimilar carries 1 to SimilarLimit customers containing the first
// word of the query, in store order.
type AmbiguousSimilar struct {
	Candidates []domain.Customer
}

type AmbiguousNone struct{}

func (Found) resolution()            {}
func (AmbiguousSimilar) resolution() {}
func (AmbiguousNone) resolution()    {}

type Resolver struct {
	customers store.CustomerStore
}

func NewResolver(customers store.CustomerStore) *Resolver {
	return &Resolver{customers: customers}
}

// Resolve never creates or changes customers. A miss is a Resolution, not an
// error; errors come only from the store.
func (r *Resolver) Resolve(ctx context.Context, name string, accountID string) (Resolution, error) {
	normalized := textnorm.Name(name)
	if normalized == "" {
		return AmbiguousNone{}, nil
	}

	exact, err := r.customers.FindExact(ctx, normalized, accountID)
	if err != nil {
		return nil, fmt.Errorf("find exact customer: %w", err)
	}
	if len(exact) > 0 {
		return Found{Customer: exact[0], Duplicates: len(exact) - 1}, nil
	}

	firstWord, _, _ := strings.Cut(normalized, " ")
	similar, err := r.customers.FindSimilar(ctx, firstWord, accountID, SimilarLimit)
	if err != nil {
		return nil, fmt.Errorf("find similar customers: %w", err)
	}
	if len(similar) > SimilarLimit {
		similar = similar[:SimilarLimit]
	}
	if len(similar) == 0 {
		return AmbiguousNone{}, nil
	}
	return AmbiguousSimilar{Candidates: similar}, nil
}
