package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one parsed or synthetic movement. Sales carry a positive unit
// price; payments carry a negative one.
type LineItem struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

func NewLineItem(qty decimal.Decimal, description string, unitPrice decimal.Decimal) LineItem {
	return LineItem{
		Quantity:    qty,
		Description: description,
		UnitPrice:   unitPrice,
		Total:       qty.Mul(unitPrice),
	}
}

func (i LineItem) IsPayment() bool {
	return i.Total.IsNegative()
}

type Customer struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	DisplayName    string    `json:"display_name"`
	NormalizedName string    `json:"normalized_name"`
	CreatedAt      time.Time `json:"created_at"`
}

type LedgerEntry struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	AccountID  string    `json:"account_id"`
	LineItem
	CreatedAt time.Time `json:"created_at"`
	Settled   bool      `json:"settled"`
}

type PendingKind string

const (
	PendingNewCustomerConfirm PendingKind = "NEW_CUSTOMER_CONFIRM"
	PendingMenuNavigation     PendingKind = "MENU_NAVIGATION"
	PendingUnifyConfirm       PendingKind = "UNIFY_CONFIRM"
)

// NewCustomerPayload stages a sale whose customer name did not resolve.
type NewCustomerPayload struct {
	CustomerName string    `json:"customer_name"`
	SaleText     string    `json:"sale_text"`
	Candidate    *Customer `json:"candidate,omitempty"`
}

// UnifyPayload stages a merge of exact-name duplicates.
type UnifyPayload struct {
	TargetName  string   `json:"target_name"`
	CustomerIDs []string `json:"customer_ids"`
}

type PendingOperation struct {
	ConversationID string              `json:"conversation_id"`
	AccountID      string              `json:"account_id"`
	Kind           PendingKind         `json:"kind"`
	NewCustomer    *NewCustomerPayload `json:"new_customer,omitempty"`
	Unify          *UnifyPayload       `json:"unify,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
}

func (op PendingOperation) Expired(now time.Time) bool {
	return now.After(op.ExpiresAt)
}

type DebtorSummary struct {
	CustomerID  string          `json:"customer_id"`
	DisplayName string          `json:"display_name"`
	Balance     decimal.Decimal `json:"balance"`
}

type PeriodSummary struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Sold     decimal.Decimal `json:"sold"`
	Received decimal.Decimal `json:"received"`
	Sales    int             `json:"sales"`
}

type TokenRequest struct {
	AccountID  string `json:"account_id"`
	GatewayKey string `json:"gateway_key"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	AccountID   string `json:"account_id"`
	ExpiresAt   string `json:"expires_at"`
}

type InboundMessage struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Actor is the authenticated gateway calling the inbound API.
type Actor struct {
	AccountID string
}
