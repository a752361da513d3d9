// Package sqlite is a single-file store for shops that run the bot on one
// machine without a Postgres server.
//
// Amounts are kept as TEXT and summed in Go so no value ever passes through
// a float. Timestamps are TEXT in a fixed-width UTC layout, which makes
// lexical and chronological order agree.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/xid"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and migrates it.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; a single connection also keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_customers_account_name ON customers(account_id, normalized_name);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		account_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		description TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		total TEXT NOT NULL,
		settled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_customer ON ledger_entries(account_id, customer_id, settled);
	CREATE INDEX IF NOT EXISTS idx_entries_created ON ledger_entries(account_id, created_at);

	CREATE TABLE IF NOT EXISTS account_settings (
		account_id TEXT PRIMARY KEY,
		credit_limit TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`)
	return err
}

const customerColumns = `id, account_id, display_name, normalized_name, created_at`

const entryColumns = `id, customer_id, account_id, quantity, description, unit_price, total, settled, created_at`

func (s *Store) FindExact(ctx context.Context, normalizedName string, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE account_id = ? AND normalized_name = ?
		ORDER BY created_at, rowid
	`, accountID, normalizedName)
}

func (s *Store) FindSimilar(ctx context.Context, token string, accountID string, limit int) ([]domain.Customer, error) {
	if token == "" || limit < 1 {
		return nil, nil
	}
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE account_id = ? AND instr(normalized_name, ?) > 0
		ORDER BY created_at, rowid
		LIMIT ?
	`, accountID, token, limit)
}

func (s *Store) GetCustomer(ctx context.Context, id string, accountID string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE id = ? AND account_id = ?
	`, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.AccountID == "" || customer.DisplayName == "" || customer.NormalizedName == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.now()
	}
	customer.CreatedAt = customer.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?)
	`, customer.ID, customer.AccountID, customer.DisplayName, customer.NormalizedName, formatTime(customer.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) RenameCustomer(ctx context.Context, id string, accountID string, displayName string, normalizedName string) (*domain.Customer, error) {
	if displayName == "" || normalizedName == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET display_name = ?, normalized_name = ?
		WHERE id = ? AND account_id = ?
	`, displayName, normalizedName, id, accountID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomer(ctx, id, accountID)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string, accountID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE account_id = ?
		ORDER BY normalized_name, created_at, rowid
	`, accountID)
}

func (s *Store) MergeCustomers(ctx context.Context, accountID string, targetID string, sourceIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM customers WHERE id = ? AND account_id = ?
	`, targetID, accountID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	for _, id := range sourceIDs {
		if id == targetID {
			return store.ErrInvalidInput
		}
		var found int
		if err := tx.QueryRowContext(ctx, `
			SELECT count(*) FROM customers WHERE id = ? AND account_id = ?
		`, id, accountID).Scan(&found); err != nil {
			return err
		}
		if found == 0 {
			return store.ErrInvalidInput
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE ledger_entries SET customer_id = ? WHERE customer_id = ? AND account_id = ?
		`, targetID, id, accountID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM customers WHERE id = ? AND account_id = ?
		`, id, accountID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AppendEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.CustomerID == "" || entry.AccountID == "" || entry.Description == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("ent")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		SELECT ?, id, account_id, ?, ?, ?, ?, ?, ?
		FROM customers WHERE id = ? AND account_id = ?
	`, entry.ID, entry.Quantity.String(), entry.Description, entry.UnitPrice.String(), entry.Total.String(),
		entry.Settled, formatTime(entry.CreatedAt), entry.CustomerID, entry.AccountID)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	created := entry
	return &created, nil
}

func (s *Store) SumUnsettled(ctx context.Context, customerID string, accountID string) (decimal.Decimal, error) {
	return s.sumTotals(ctx, `
		SELECT total FROM ledger_entries
		WHERE customer_id = ? AND account_id = ? AND settled = 0
	`, customerID, accountID)
}

func (s *Store) SumUnsettledByAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.sumTotals(ctx, `
		SELECT total FROM ledger_entries WHERE account_id = ? AND settled = 0
	`, accountID)
}

func (s *Store) MarkAllSettled(ctx context.Context, customerID string, accountID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET settled = 1
		WHERE customer_id = ? AND account_id = ? AND settled = 0
	`, customerID, accountID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ListUnsettled(ctx context.Context, customerID string, accountID string) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE customer_id = ? AND account_id = ? AND settled = 0
		ORDER BY created_at, rowid
	`, customerID, accountID)
}

func (s *Store) ListEntries(ctx context.Context, accountID string, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE account_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, rowid
	`, accountID, formatTime(from), formatTime(to))
}

func (s *Store) GetCreditLimit(ctx context.Context, accountID string) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT credit_limit FROM account_settings WHERE account_id = ?
	`, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	limit, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("credit limit for %s: %w", accountID, err)
	}
	return limit, true, nil
}

func (s *Store) SetCreditLimit(ctx context.Context, accountID string, limit decimal.Decimal) error {
	if accountID == "" || limit.IsNegative() {
		return store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_settings (account_id, credit_limit, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET credit_limit = excluded.credit_limit, updated_at = excluded.updated_at
	`, accountID, limit.String(), formatTime(s.now()))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var (
		c       domain.Customer
		created string
	)
	if err := row.Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.NormalizedName, &created); err != nil {
		return domain.Customer{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return domain.Customer{}, err
	}
	c.CreatedAt = t
	return c, nil
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 16)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		var (
			e                       domain.LedgerEntry
			qty, unit, total, stamp string
		)
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.AccountID, &qty, &e.Description, &unit, &total, &e.Settled, &stamp); err != nil {
			return nil, err
		}
		if e.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("entry %s quantity: %w", e.ID, err)
		}
		if e.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, fmt.Errorf("entry %s unit price: %w", e.ID, err)
		}
		if e.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("entry %s total: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(stamp); err != nil {
			return nil, fmt.Errorf("entry %s created_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) sumTotals(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(v)
	}
	return sum, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(timeLayout, strings.TrimSpace(raw))
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
