package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/xid"
)

// Store keeps customers and entries in insertion order, which is the
// "store order" callers see from FindExact, FindSimilar and ListCustomers.
type Store struct {
	mu           sync.RWMutex
	customers    []domain.Customer
	entries      []domain.LedgerEntry
	creditLimits map[string]decimal.Decimal
	now          func() time.Time
}

func New() *Store {
	return &Store{
		customers:    make([]domain.Customer, 0, 64),
		entries:      make([]domain.LedgerEntry, 0, 256),
		creditLimits: make(map[string]decimal.Decimal),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) FindExact(_ context.Context, normalizedName string, accountID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Customer
	for _, c := range s.customers {
		if c.AccountID == accountID && c.NormalizedName == normalizedName {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) FindSimilar(_ context.Context, token string, accountID string, limit int) ([]domain.Customer, error) {
	if token == "" || limit < 1 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Customer
	for _, c := range s.customers {
		if c.AccountID != accountID || !strings.Contains(c.NormalizedName, token) {
			continue
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string, accountID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.customerIndex(id, accountID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	c := s.customers[idx]
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.AccountID == "" || customer.DisplayName == "" || customer.NormalizedName == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = append(s.customers, customer)
	created := customer
	return &created, nil
}

func (s *Store) RenameCustomer(_ context.Context, id string, accountID string, displayName string, normalizedName string) (*domain.Customer, error) {
	if displayName == "" || normalizedName == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.customerIndex(id, accountID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	s.customers[idx].DisplayName = displayName
	s.customers[idx].NormalizedName = normalizedName
	updated := s.customers[idx]
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.customerIndex(id, accountID)
	if idx < 0 {
		return store.ErrNotFound
	}
	s.customers = slices.Delete(s.customers, idx, idx+1)
	s.entries = slices.DeleteFunc(s.entries, func(e domain.LedgerEntry) bool {
		return e.CustomerID == id && e.AccountID == accountID
	})
	return nil
}

func (s *Store) ListCustomers(_ context.Context, accountID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Customer) int {
		return strings.Compare(a.NormalizedName, b.NormalizedName)
	})
	return out, nil
}

func (s *Store) MergeCustomers(_ context.Context, accountID string, targetID string, sourceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.customerIndex(targetID, accountID) < 0 {
		return store.ErrNotFound
	}
	for _, id := range sourceIDs {
		if id == targetID || s.customerIndex(id, accountID) < 0 {
			return store.ErrInvalidInput
		}
	}
	for i := range s.entries {
		if s.entries[i].AccountID == accountID && slices.Contains(sourceIDs, s.entries[i].CustomerID) {
			s.entries[i].CustomerID = targetID
		}
	}
	s.customers = slices.DeleteFunc(s.customers, func(c domain.Customer) bool {
		return c.AccountID == accountID && slices.Contains(sourceIDs, c.ID)
	})
	return nil
}

func (s *Store) AppendEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.CustomerID == "" || entry.AccountID == "" || entry.Description == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("ent")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customerIndex(entry.CustomerID, entry.AccountID) < 0 {
		return nil, store.ErrNotFound
	}
	s.entries = append(s.entries, entry)
	created := entry
	return &created, nil
}

func (s *Store) SumUnsettled(_ context.Context, customerID string, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.entries {
		if e.CustomerID == customerID && e.AccountID == accountID && !e.Settled {
			total = total.Add(e.Total)
		}
	}
	return total, nil
}

func (s *Store) SumUnsettledByAccount(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.entries {
		if e.AccountID == accountID && !e.Settled {
			total = total.Add(e.Total)
		}
	}
	return total, nil
}

func (s *Store) MarkAllSettled(_ context.Context, customerID string, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.entries {
		e := &s.entries[i]
		if e.CustomerID == customerID && e.AccountID == accountID && !e.Settled {
			e.Settled = true
			changed++
		}
	}
	return changed, nil
}

func (s *Store) ListUnsettled(_ context.Context, customerID string, accountID string) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LedgerEntry, 0, 16)
	for _, e := range s.entries {
		if e.CustomerID == customerID && e.AccountID == accountID && !e.Settled {
			out = append(out, e)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, accountID string, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LedgerEntry, 0, 32)
	for _, e := range s.entries {
		if e.AccountID != accountID || e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *Store) GetCreditLimit(_ context.Context, accountID string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit, ok := s.creditLimits[accountID]
	return limit, ok, nil
}

func (s *Store) SetCreditLimit(_ context.Context, accountID string, limit decimal.Decimal) error {
	if accountID == "" || limit.IsNegative() {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditLimits[accountID] = limit
	return nil
}

func (s *Store) customerIndex(id string, accountID string) int {
	return slices.IndexFunc(s.customers, func(c domain.Customer) bool {
		return c.ID == id && c.AccountID == accountID
	})
}

func sortByCreatedAt(entries []domain.LedgerEntry) {
	slices.SortStableFunc(entries, func(a, b domain.LedgerEntry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
