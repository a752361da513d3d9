package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/xid"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 30
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	// NUMERIC columns scan straight into decimal.Decimal.
	poolConfig.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables when they are missing. It is safe to run on
// every start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS customers_account_name_idx ON customers (account_id, normalized_name)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
		account_id TEXT NOT NULL,
		quantity NUMERIC(14, 3) NOT NULL,
		description TEXT NOT NULL,
		unit_price NUMERIC(14, 2) NOT NULL,
		total NUMERIC(14, 2) NOT NULL,
		settled BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_customer_idx ON ledger_entries (account_id, customer_id, settled)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_created_idx ON ledger_entries (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS account_settings (
		account_id TEXT PRIMARY KEY,
		credit_limit NUMERIC(14, 2) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

const customerColumns = `id, account_id, display_name, normalized_name, created_at`

const entryColumns = `id, customer_id, account_id, quantity, description, unit_price, total, settled, created_at`

func (s *Store) FindExact(ctx context.Context, normalizedName string, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1 AND normalized_name = $2
		ORDER BY created_at, id
	`, accountID, normalizedName)
}

func (s *Store) FindSimilar(ctx context.Context, token string, accountID string, limit int) ([]domain.Customer, error) {
	if token == "" || limit < 1 {
		return nil, nil
	}
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1 AND strpos(normalized_name, $2) > 0
		ORDER BY created_at, id
		LIMIT $3
	`, accountID, token, limit)
}

func (s *Store) GetCustomer(ctx context.Context, id string, accountID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1 AND account_id = $2
	`, id, accountID).Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.NormalizedName, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, customer.ID, customer.AccountID, customer.DisplayName, customer.NormalizedName, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
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
	var c domain.Customer
	err := s.pool.QueryRow(ctx, `
		UPDATE customers
		SET display_name = $3, normalized_name = $4
		WHERE id = $1 AND account_id = $2
		RETURNING `+customerColumns,
		id, accountID, displayName, normalizedName,
	).Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.NormalizedName, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string, accountID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1
		ORDER BY normalized_name, created_at, id
	`, accountID)
}

func (s *Store) MergeCustomers(ctx context.Context, accountID string, targetID string, sourceIDs []string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND account_id = $2)
	`, targetID, accountID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	var found int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM customers
		WHERE account_id = $1 AND id = ANY($2) AND id <> $3
	`, accountID, sourceIDs, targetID).Scan(&found); err != nil {
		return err
	}
	if found != len(sourceIDs) {
		return store.ErrInvalidInput
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ledger_entries SET customer_id = $1
		WHERE account_id = $2 AND customer_id = ANY($3)
	`, targetID, accountID, sourceIDs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM customers WHERE account_id = $1 AND id = ANY($2)
	`, accountID, sourceIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
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

	// The customer must belong to the same account; a plain foreign key
	// cannot express that.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		SELECT $1, c.id, c.account_id, $4, $5, $6, $7, $8, $9
		FROM customers c
		WHERE c.id = $2 AND c.account_id = $3
	`, entry.ID, entry.CustomerID, entry.AccountID, entry.Quantity, entry.Description,
		entry.UnitPrice, entry.Total, entry.Settled, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}
	created := entry
	return &created, nil
}

func (s *Store) SumUnsettled(ctx context.Context, customerID string, accountID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM ledger_entries
		WHERE customer_id = $1 AND account_id = $2 AND settled = false
	`, customerID, accountID).Scan(&total)
	return total, err
}

func (s *Store) SumUnsettledByAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND settled = false
	`, accountID).Scan(&total)
	return total, err
}

func (s *Store) MarkAllSettled(ctx context.Context, customerID string, accountID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledger_entries SET settled = true
		WHERE customer_id = $1 AND account_id = $2 AND settled = false
	`, customerID, accountID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListUnsettled(ctx context.Context, customerID string, accountID string) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE customer_id = $1 AND account_id = $2 AND settled = false
		ORDER BY created_at, id
	`, customerID, accountID)
}

func (s *Store) ListEntries(ctx context.Context, accountID string, from time.Time, to time.Time) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id
	`, accountID, from, to)
}

func (s *Store) GetCreditLimit(ctx context.Context, accountID string) (decimal.Decimal, bool, error) {
	var limit decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT credit_limit FROM account_settings WHERE account_id = $1
	`, accountID).Scan(&limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return limit, true, nil
}

func (s *Store) SetCreditLimit(ctx context.Context, accountID string, limit decimal.Decimal) error {
	if accountID == "" || limit.IsNegative() {
		return store.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_settings (account_id, credit_limit, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_id)
		DO UPDATE SET credit_limit = EXCLUDED.credit_limit, updated_at = now()
	`, accountID, limit)
	return err
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 16)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.AccountID, &c.DisplayName, &c.NormalizedName, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.CustomerID, &e.AccountID,
			&e.Quantity, &e.Description, &e.UnitPrice, &e.Total,
			&e.Settled, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
