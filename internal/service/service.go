// Package service interprets chat messages for a merchant account: free-text
// sales, dot commands and the short dialogs used to disambiguate customers.
//
// A conversation is IDLE for an account unless the pending store holds that
// account's operation for it. HandleMessage reads that slot, answers or
// replaces it, and never holds a lock while doing so. Callers must deliver
// at most one message per conversation at a time (the HTTP layer uses
// package gate for that); two concurrent messages for the same conversation
// race on the pending slot and the last write wins.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fiado/backend/internal/customer"
	"fiado/backend/internal/domain"
	"fiado/backend/internal/ledger"
	"fiado/backend/internal/parser"
	"fiado/backend/internal/pending"
	"fiado/backend/internal/report"
	"fiado/backend/internal/store"
	"fiado/backend/internal/transport"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type State string

const (
	StateIdle                    State = "IDLE"
	StateAwaitingMenuChoice      State = "AWAITING_MENU_CHOICE"
	StateAwaitingCustomerConfirm State = "AWAITING_CUSTOMER_CONFIRM"
	StateAwaitingUnifyConfirm    State = "AWAITING_UNIFY_CONFIRM"
)

// StateOf maps a stored operation (or its absence) to the dialog state.
func StateOf(op *domain.PendingOperation) State {
	if op == nil {
		return StateIdle
	}
	switch op.Kind {
	case domain.PendingMenuNavigation:
		return StateAwaitingMenuChoice
	case domain.PendingNewCustomerConfirm:
		return StateAwaitingCustomerConfirm
	case domain.PendingUnifyConfirm:
		return StateAwaitingUnifyConfirm
	}
	return StateIdle
}

type Options struct {
	CommandPrefix      string
	DialogTTL          time.Duration
	UnifyTTL           time.Duration
	DefaultCreditLimit decimal.Decimal
	OldDebtAge         time.Duration
	Location           *time.Location
	Now                func() time.Time
	Logger             zerolog.Logger
}

type Service struct {
	repo     store.Repository
	pending  pending.Store
	sender   transport.Sender
	resolver *customer.Resolver
	ledger   *ledger.Recorder
	reports  *report.Engine
	commands map[string]command

	prefix       string
	dialogTTL    time.Duration
	unifyTTL     time.Duration
	defaultLimit decimal.Decimal
	oldDebtAge   time.Duration
	location     *time.Location
	now          func() time.Time
	log          zerolog.Logger
}

func New(repo store.Repository, pendingOps pending.Store, sender transport.Sender, opts Options) (*Service, error) {
	if repo == nil || pendingOps == nil || sender == nil {
		return nil, errors.New("service: repository, pending store and sender are required")
	}
	commands, err := indexCommands(commandTable)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(opts.CommandPrefix) == "" {
		opts.CommandPrefix = "."
	}
	if opts.DialogTTL <= 0 {
		opts.DialogTTL = 2 * time.Minute
	}
	if opts.UnifyTTL <= 0 {
		opts.UnifyTTL = 5 * time.Minute
	}
	if opts.DefaultCreditLimit.IsNegative() {
		opts.DefaultCreditLimit = decimal.Zero
	}
	if opts.OldDebtAge <= 0 {
		opts.OldDebtAge = 30 * 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:         repo,
		pending:      pendingOps,
		sender:       sender,
		resolver:     customer.NewResolver(repo),
		ledger:       ledger.NewRecorder(repo, ledger.WithClock(opts.Now)),
		reports:      report.NewEngine(repo, report.WithClock(opts.Now), report.WithLocation(opts.Location)),
		commands:     commands,
		prefix:       strings.TrimSpace(opts.CommandPrefix),
		dialogTTL:    opts.DialogTTL,
		unifyTTL:     opts.UnifyTTL,
		defaultLimit: opts.DefaultCreditLimit,
		oldDebtAge:   opts.OldDebtAge,
		location:     opts.Location,
		now:          opts.Now,
		log:          opts.Logger,
	}, nil
}

// validationError carries the usage text for a malformed command.
type validationError struct {
	usage string
}

func (e *validationError) Error() string { return "invalid arguments: " + e.usage }

// notFoundError is an explicit-command target that did not resolve.
type notFoundError struct {
	name       string
	suggestion string
	text       string
}

func (e *notFoundError) Error() string { return fmt.Sprintf("customer %q not found", e.name) }

// HandleMessage processes one inbound message. Parse misses are ignored,
// user mistakes are answered in chat and store failures are logged and
// answered with a single generic reply; none of those is returned. The
// returned error is reserved for failures to send a reply.
func (s *Service) HandleMessage(ctx context.Context, conversationID string, accountID string, rawText string) error {
	text := strings.TrimSpace(rawText)
	if text == "" || conversationID == "" || accountID == "" {
		return nil
	}

	err := s.handle(ctx, conversationID, accountID, text)
	if err == nil {
		return nil
	}

	var (
		invalid  *validationError
		notFound *notFoundError
		sendErr  *sendError
	)
	switch {
	case errors.As(err, &sendErr):
		return sendErr.err
	case errors.As(err, &invalid):
		return s.reply(ctx, conversationID, invalid.usage)
	case errors.As(err, &notFound):
		if notFound.text != "" {
			return s.reply(ctx, conversationID, notFound.text)
		}
		return s.reply(ctx, conversationID, notFoundText(notFound.name, notFound.suggestion, s.prefix))
	}

	s.log.Error().Err(err).
		Str("conversation_id", conversationID).
		Str("account_id", accountID).
		Msg("message handling failed")
	return s.reply(ctx, conversationID, msgFailure)
}

func (s *Service) handle(ctx context.Context, conversationID string, accountID string, text string) error {
	op, err := s.pending.Get(ctx, accountID, conversationID)
	if errors.Is(err, pending.ErrExpired) {
		s.log.Debug().Str("conversation_id", conversationID).Msg("pending operation expired")
		return s.send(ctx, conversationID, msgExpired)
	}
	if err != nil {
		return fmt.Errorf("load pending operation: %w", err)
	}

	s.log.Debug().
		Str("conversation_id", conversationID).
		Str("state", string(StateOf(op))).
		Msg("handling message")

	if op != nil {
		return s.resume(ctx, conversationID, accountID, text, *op)
	}
	return s.dispatch(ctx, conversationID, accountID, text)
}

// dispatch routes a message as if no dialog were active.
func (s *Service) dispatch(ctx context.Context, conversationID string, accountID string, text string) error {
	if s.isCommand(text) {
		return s.runCommand(ctx, conversationID, accountID, text)
	}
	return s.handleSale(ctx, conversationID, accountID, text)
}

func (s *Service) isCommand(text string) bool {
	return strings.HasPrefix(text, s.prefix)
}

// looksLikeSale reports whether text would post at least one item.
func (s *Service) looksLikeSale(text string) bool {
	if s.isCommand(text) {
		return false
	}
	_, order, ok := parser.SplitSale(text)
	return ok && len(parser.ParseItems(order)) > 0
}

func (s *Service) stage(ctx context.Context, op domain.PendingOperation, ttl time.Duration) error {
	now := s.now()
	op.CreatedAt = now
	op.ExpiresAt = now.Add(ttl)
	if err := s.pending.Set(ctx, op); err != nil {
		return fmt.Errorf("store pending operation: %w", err)
	}
	return nil
}

func (s *Service) clear(ctx context.Context, op domain.PendingOperation) error {
	if err := s.pending.Delete(ctx, op.AccountID, op.ConversationID); err != nil {
		return fmt.Errorf("delete pending operation: %w", err)
	}
	return nil
}

// sendError marks a transport failure so HandleMessage does not try to
// report it through the same transport.
type sendError struct {
	err error
}

func (e *sendError) Error() string { return "send reply: " + e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

func (s *Service) send(ctx context.Context, conversationID string, text string) error {
	if err := s.sender.Send(ctx, conversationID, text); err != nil {
		return &sendError{err: err}
	}
	return nil
}

func (s *Service) reply(ctx context.Context, conversationID string, text string) error {
	if err := s.sender.Send(ctx, conversationID, text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (s *Service) creditLimit(ctx context.Context, accountID string) (decimal.Decimal, error) {
	limit, ok, err := s.repo.GetCreditLimit(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load credit limit: %w", err)
	}
	if !ok {
		return s.defaultLimit, nil
	}
	return limit, nil
}
