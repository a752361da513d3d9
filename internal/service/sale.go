package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/customer"
	"fiado/backend/internal/domain"
	"fiado/backend/internal/parser"
	"fiado/backend/internal/textnorm"
)

// handleSale treats text as "<customer> <items>". Messages that do not
// parse are ordinary chat and get no reply.
func (s *Service) handleSale(ctx context.Context, conversationID string, accountID string, text string) error {
	name, order, ok := parser.SplitSale(text)
	if !ok {
		return nil
	}
	items := parser.ParseItems(order)
	if len(items) == 0 {
		return nil
	}

	res, err := s.resolver.Resolve(ctx, name, accountID)
	if err != nil {
		return err
	}

	var candidate *domain.Customer
	switch r := res.(type) {
	case customer.Found:
		return s.postItems(ctx, conversationID, accountID, r.Customer, items, r.Duplicates)
	case customer.AmbiguousSimilar:
		c := r.Candidates[0]
		candidate = &c
	case customer.AmbiguousNone:
	default:
		return fmt.Errorf("unexpected resolution %T", res)
	}

	// a dialog already waiting here is replaced and its staged sale dropped
	err = s.stage(ctx, domain.PendingOperation{
		ConversationID: conversationID,
		AccountID:      accountID,
		Kind:           domain.PendingNewCustomerConfirm,
		NewCustomer: &domain.NewCustomerPayload{
			CustomerName: name,
			SaleText:     order,
			Candidate:    candidate,
		},
	}, s.dialogTTL)
	if err != nil {
		return err
	}
	return s.send(ctx, conversationID, confirmPrompt(name, candidate))
}

func (s *Service) postSale(ctx context.Context, conversationID string, accountID string, c domain.Customer, orderText string, duplicates int) error {
	items := parser.ParseItems(orderText)
	if len(items) == 0 {
		return nil
	}
	return s.postItems(ctx, conversationID, accountID, c, items, duplicates)
}

// postItems writes items one by one and replies with what was actually
// stored. Items that failed are listed as not written.
func (s *Service) postItems(ctx context.Context, conversationID string, accountID string, c domain.Customer, items []domain.LineItem, duplicates int) error {
	posted, failed, postErr := s.ledger.PostAll(ctx, c.ID, accountID, items)
	if postErr != nil {
		s.log.Error().Err(postErr).
			Str("conversation_id", conversationID).
			Str("customer_id", c.ID).
			Int("posted", len(posted)).
			Int("failed", len(failed)).
			Msg("sale partially recorded")
	}
	if len(posted) == 0 {
		return s.send(ctx, conversationID, saleFailed(items))
	}

	var balance *decimal.Decimal
	current, err := s.ledger.Balance(ctx, c.ID, accountID)
	if err != nil {
		s.log.Error().Err(err).Str("customer_id", c.ID).Msg("balance after sale")
	} else {
		balance = &current
	}

	if err := s.send(ctx, conversationID, saleSummary(c, posted, failed, balance)); err != nil {
		return err
	}

	if balance != nil {
		limit, err := s.creditLimit(ctx, accountID)
		if err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("credit limit check skipped")
		} else if limit.IsPositive() && balance.GreaterThanOrEqual(limit) {
			if err := s.send(ctx, conversationID, creditLimitWarning(c, *balance)); err != nil {
				return err
			}
		}
	}

	if duplicates > 0 {
		return s.send(ctx, conversationID, duplicateHint(c, duplicates, s.prefix))
	}
	return nil
}

// createCustomer reuses an exact match when one exists, so a confirm racing
// an explicit create never duplicates the name.
func (s *Service) createCustomer(ctx context.Context, accountID string, displayName string) (domain.Customer, bool, error) {
	normalized := textnorm.Name(displayName)
	if normalized == "" {
		return domain.Customer{}, false, &validationError{usage: "⚠️ Formato: " + s.prefix + "novo <nome>"}
	}

	existing, err := s.repo.FindExact(ctx, normalized, accountID)
	if err != nil {
		return domain.Customer{}, false, fmt.Errorf("find customer: %w", err)
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		AccountID:      accountID,
		DisplayName:    displayName,
		NormalizedName: normalized,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return domain.Customer{}, false, fmt.Errorf("create customer: %w", err)
	}
	s.log.Info().Str("account_id", accountID).Str("customer_id", created.ID).Msg("customer created")
	return *created, true, nil
}
