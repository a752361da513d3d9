// Package importer loads customer history kept outside the bot (paper
// notebooks typed into JSON, exports of older systems) into the ledger with
// the original sale dates.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/ledger"
	"fiado/backend/internal/parser"
	"fiado/backend/internal/store"
	"fiado/backend/internal/textnorm"
)

// Record is one customer and the sales to backdate for them.
type Record struct {
	Customer string `json:"customer"`
	Sales    []Sale `json:"sales"`
}

type Sale struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	// Date is RFC 3339 or a plain YYYY-MM-DD, read in the importer's location.
	Date string `json:"date"`
}

type Result struct {
	CustomersCreated int      `json:"customers_created"`
	CustomersReused  int      `json:"customers_reused"`
	EntriesPosted    int      `json:"entries_posted"`
	Skipped          []string `json:"skipped,omitempty"`
}

// Decode reads a JSON array of records.
func Decode(r io.Reader) ([]Record, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	var records []Record
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode import file: %w", err)
	}
	return records, nil
}

type Importer struct {
	customers store.CustomerStore
	ledger    *ledger.Recorder
	location  *time.Location
	dryRun    bool
	log       zerolog.Logger
}

type Option func(*Importer)

func WithLocation(loc *time.Location) Option {
	return func(im *Importer) {
		if loc != nil {
			im.location = loc
		}
	}
}

// WithDryRun validates and resolves everything but writes nothing.
func WithDryRun(dryRun bool) Option {
	return func(im *Importer) { im.dryRun = dryRun }
}

func WithLogger(log zerolog.Logger) Option {
	return func(im *Importer) { im.log = log }
}

func New(repo store.Repository, opts ...Option) *Importer {
	im := &Importer{
		customers: repo,
		ledger:    ledger.NewRecorder(repo),
		location:  time.UTC,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import posts every valid sale. Invalid sales are skipped and listed in
// the result; a store failure stops the import and returns what was done
// so far alongside the error.
func (im *Importer) Import(ctx context.Context, accountID string, records []Record) (Result, error) {
	var result Result
	if strings.TrimSpace(accountID) == "" {
		return result, errors.New("account id is required")
	}

	for i, rec := range records {
		name := strings.Join(strings.Fields(rec.Customer), " ")
		normalized := textnorm.Name(name)
		if normalized == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("record %d: empty customer name", i+1))
			continue
		}

		customerID, created, err := im.resolveCustomer(ctx, accountID, name, normalized)
		if err != nil {
			return result, fmt.Errorf("record %d (%s): %w", i+1, name, err)
		}
		if created {
			result.CustomersCreated++
		} else {
			result.CustomersReused++
		}

		posted := 0
		for j, sale := range rec.Sales {
			at, item, reason := im.validate(sale)
			if reason != "" {
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s sale %d: %s", name, j+1, reason))
				continue
			}
			if !im.dryRun {
				if _, err := im.ledger.PostAt(ctx, customerID, accountID, item, at); err != nil {
					return result, fmt.Errorf("%s sale %d: %w", name, j+1, err)
				}
			}
			posted++
			result.EntriesPosted++
		}

		im.log.Info().
			Str("account_id", accountID).
			Str("customer", name).
			Bool("created", created).
			Int("sales", posted).
			Bool("dry_run", im.dryRun).
			Msg("customer imported")
	}
	return result, nil
}

func (im *Importer) resolveCustomer(ctx context.Context, accountID string, name string, normalized string) (string, bool, error) {
	existing, err := im.customers.FindExact(ctx, normalized, accountID)
	if err != nil {
		return "", false, fmt.Errorf("find customer: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].ID, false, nil
	}
	if im.dryRun {
		return "", true, nil
	}
	c, err := im.customers.CreateCustomer(ctx, domain.Customer{
		AccountID:      accountID,
		DisplayName:    name,
		NormalizedName: normalized,
	})
	if err != nil {
		return "", false, fmt.Errorf("create customer: %w", err)
	}
	return c.ID, true, nil
}

func (im *Importer) validate(sale Sale) (time.Time, domain.LineItem, string) {
	description := strings.TrimSpace(sale.Description)
	switch {
	case description == "":
		return time.Time{}, domain.LineItem{}, "missing description"
	case !sale.Quantity.IsPositive():
		return time.Time{}, domain.LineItem{}, "quantity must be positive"
	case !sale.UnitPrice.IsPositive():
		return time.Time{}, domain.LineItem{}, "unit price must be positive"
	case !parser.InRange(sale.Quantity), !parser.InRange(sale.UnitPrice):
		return time.Time{}, domain.LineItem{}, "value too large"
	case sale.Quantity.Exponent() < -9, !sale.Quantity.Equal(sale.Quantity.Round(3)):
		return time.Time{}, domain.LineItem{}, "quantity has more than three decimals"
	}
	at, err := im.parseDate(sale.Date)
	if err != nil {
		return time.Time{}, domain.LineItem{}, err.Error()
	}
	return at, domain.NewLineItem(sale.Quantity, description, sale.UnitPrice.Round(2)), ""
}

// parseDate places date-only values at noon so the entry stays on the same
// calendar day whatever the reporting location.
func (im *Importer) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing date")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if d, err := time.ParseInLocation(layout, raw, im.location); err == nil {
			return d.Add(12 * time.Hour).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
