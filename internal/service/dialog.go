package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/store"
	"fiado/backend/internal/textnorm"
)

// resume interprets text as the answer to op. A valid answer clears op
// before anything is written. An invalid answer that is itself a command or
// a sale is handled as a fresh message; anything else re-prompts and leaves
// op in place.
func (s *Service) resume(ctx context.Context, conversationID string, accountID string, text string, op domain.PendingOperation) error {
	if textnorm.HasPrefix(text, "cancel") {
		if err := s.clear(ctx, op); err != nil {
			return err
		}
		return s.send(ctx, conversationID, msgCancelled)
	}

	var (
		handled bool
		err     error
		retry   string
	)
	switch op.Kind {
	case domain.PendingNewCustomerConfirm:
		handled, err = s.answerCustomerConfirm(ctx, conversationID, accountID, text, op)
		retry = msgInvalidConfirm
	case domain.PendingMenuNavigation:
		handled, err = s.answerMenu(ctx, conversationID, text, op)
		retry = msgInvalidMenu
	case domain.PendingUnifyConfirm:
		handled, err = s.answerUnify(ctx, conversationID, accountID, text, op)
		if op.Unify != nil {
			retry = unifyMismatch(op.Unify.TargetName)
		}
	default:
		// unknown kinds come from a newer or corrupt writer; drop them
		if err := s.clear(ctx, op); err != nil {
			return err
		}
		return s.dispatch(ctx, conversationID, accountID, text)
	}
	if handled || err != nil {
		return err
	}

	if s.isCommand(text) || s.looksLikeSale(text) {
		return s.dispatch(ctx, conversationID, accountID, text)
	}
	return s.send(ctx, conversationID, retry)
}

func (s *Service) answerCustomerConfirm(ctx context.Context, conversationID string, accountID string, text string, op domain.PendingOperation) (bool, error) {
	staged := op.NewCustomer
	if staged == nil {
		return true, s.clear(ctx, op)
	}

	switch strings.TrimSpace(text) {
	case "1":
		if err := s.clear(ctx, op); err != nil {
			return true, err
		}
		c, created, err := s.createCustomer(ctx, accountID, staged.CustomerName)
		if err != nil {
			return true, err
		}
		if created {
			if err := s.send(ctx, conversationID, customerCreated(c)); err != nil {
				return true, err
			}
		}
		return true, s.postSale(ctx, conversationID, accountID, c, staged.SaleText, 0)

	case "2":
		if staged.Candidate == nil {
			return false, nil
		}
		if err := s.clear(ctx, op); err != nil {
			return true, err
		}
		c, err := s.repo.GetCustomer(ctx, staged.Candidate.ID, accountID)
		if errors.Is(err, store.ErrNotFound) {
			return true, &notFoundError{name: staged.Candidate.DisplayName}
		}
		if err != nil {
			return true, fmt.Errorf("load candidate: %w", err)
		}
		return true, s.postSale(ctx, conversationID, accountID, *c, staged.SaleText, 0)
	}
	return false, nil
}

func (s *Service) answerMenu(ctx context.Context, conversationID string, text string, op domain.PendingOperation) (bool, error) {
	menu, ok := subMenu(strings.TrimSpace(text), s.prefix)
	if !ok {
		return false, nil
	}
	if err := s.clear(ctx, op); err != nil {
		return true, err
	}
	return true, s.send(ctx, conversationID, menu)
}

// answerUnify requires the target name typed again; comparison ignores case
// and accents only.
func (s *Service) answerUnify(ctx context.Context, conversationID string, accountID string, text string, op domain.PendingOperation) (bool, error) {
	staged := op.Unify
	if staged == nil || len(staged.CustomerIDs) < 2 {
		return true, s.clear(ctx, op)
	}
	if !textnorm.Equal(text, staged.TargetName) {
		return false, nil
	}
	if err := s.clear(ctx, op); err != nil {
		return true, err
	}

	targetID, sources := staged.CustomerIDs[0], staged.CustomerIDs[1:]
	target, err := s.repo.GetCustomer(ctx, targetID, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return true, &notFoundError{name: staged.TargetName}
	}
	if err != nil {
		return true, fmt.Errorf("load unify target: %w", err)
	}

	err = s.repo.MergeCustomers(ctx, accountID, targetID, sources)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidInput) {
		return true, &notFoundError{name: staged.TargetName, text: "⚠️ Os cadastros mudaram desde a análise. Envie " + s.prefix + "unificar " + staged.TargetName + " novamente."}
	}
	if err != nil {
		return true, fmt.Errorf("merge customers: %w", err)
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("target_id", targetID).
		Int("merged", len(sources)).
		Msg("customers unified")
	return true, s.send(ctx, conversationID, unifiedText(*target, len(sources)))
}
