package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// CustomerStore does not enforce unique normalized names: accounts may hold
// duplicates created before normalization existed. Callers check FindExact
// before creating and use MergeCustomers to clean up.
type CustomerStore interface {
	// FindExact returns every customer of the account with this normalized
	// name, oldest first.
	FindExact(ctx context.Context, normalizedName string, accountID string) ([]domain.Customer, error)
	// FindSimilar returns up to limit customers whose normalized name
	// contains token, oldest first.
	FindSimilar(ctx context.Context, token string, accountID string, limit int) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string, accountID string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	RenameCustomer(ctx context.Context, id string, accountID string, displayName string, normalizedName string) (*domain.Customer, error)
	// DeleteCustomer removes the customer and all of its ledger entries.
	DeleteCustomer(ctx context.Context, id string, accountID string) error
	ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error)
	// MergeCustomers moves every entry of sourceIDs to targetID and deletes
	// the sources, atomically where the backend allows it.
	MergeCustomers(ctx context.Context, accountID string, targetID string, sourceIDs []string) error
}

// LedgerStore is append-only except for the settled flag.
type LedgerStore interface {
	AppendEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	SumUnsettled(ctx context.Context, customerID string, accountID string) (decimal.Decimal, error)
	SumUnsettledByAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
	// MarkAllSettled flips every unsettled entry and reports how many changed.
	MarkAllSettled(ctx context.Context, customerID string, accountID string) (int, error)
	// ListUnsettled returns unsettled entries ordered by CreatedAt ascending.
	ListUnsettled(ctx context.Context, customerID string, accountID string) ([]domain.LedgerEntry, error)
	// ListEntries returns all entries of the account with from <= CreatedAt < to.
	ListEntries(ctx context.Context, accountID string, from time.Time, to time.Time) ([]domain.LedgerEntry, error)
}

type AccountStore interface {
	// GetCreditLimit reports ok=false when the account never set one.
	GetCreditLimit(ctx context.Context, accountID string) (limit decimal.Decimal, ok bool, err error)
	SetCreditLimit(ctx context.Context, accountID string, limit decimal.Decimal) error
}

type Repository interface {
	CustomerStore
	LedgerStore
	AccountStore
}
