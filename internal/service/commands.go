package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/customer"
	"fiado/backend/internal/domain"
	"fiado/backend/internal/parser"
	"fiado/backend/internal/store"
	"fiado/backend/internal/textnorm"
)

type request struct {
	conversationID string
	accountID      string
	// name is the command word as typed, args the rest of the message.
	name string
	args string
}

type command struct {
	name    string
	aliases []string
	run     func(s *Service, ctx context.Context, req request) error
}

var commandTable = []command{
	{name: "ajuda", aliases: []string{"help"}, run: (*Service).cmdHelp},
	{name: "menu", run: (*Service).cmdMenu},
	{name: "novo", aliases: []string{"cadastrar"}, run: (*Service).cmdNew},
	{name: "clientes", run: (*Service).cmdList},
	{name: "excluir", run: (*Service).cmdDelete},
	{name: "divida", run: (*Service).cmdBalance},
	{name: "extrato", run: (*Service).cmdStatement},
	{name: "pago", aliases: []string{"pagou"}, run: (*Service).cmdPay},
	{name: "resumo", aliases: []string{"relatorio"}, run: (*Service).cmdSummary},
	{name: "devedores", run: (*Service).cmdDebtors},
	{name: "total", run: (*Service).cmdTotal},
	{name: "unificar", run: (*Service).cmdUnify},
	{name: "renomear", run: (*Service).cmdRename},
	{name: "somar", run: (*Service).cmdSum},
	{name: "limite", run: (*Service).cmdLimit},
}

// indexCommands keys every name and alias by its normalized form and
// rejects tables with blanks, missing handlers or collisions.
func indexCommands(table []command) (map[string]command, error) {
	index := make(map[string]command, len(table)*2)
	for i, cmd := range table {
		if cmd.run == nil {
			return nil, fmt.Errorf("command %d (%q) has no handler", i, cmd.name)
		}
		for _, key := range append([]string{cmd.name}, cmd.aliases...) {
			norm := textnorm.Name(key)
			if norm == "" || strings.ContainsAny(norm, " \t") {
				return nil, fmt.Errorf("command %d has invalid name %q", i, key)
			}
			if prev, dup := index[norm]; dup {
				return nil, fmt.Errorf("command name %q used by %q and %q", norm, prev.name, cmd.name)
			}
			index[norm] = cmd
		}
	}
	return index, nil
}

func (s *Service) runCommand(ctx context.Context, conversationID string, accountID string, text string) error {
	body := strings.TrimSpace(strings.TrimPrefix(text, s.prefix))
	if body == "" {
		return nil
	}
	fields := strings.Fields(body)
	name := fields[0]
	args := strings.Join(fields[1:], " ")

	cmd, ok := s.commands[textnorm.Name(name)]
	if !ok {
		return s.send(ctx, conversationID, unknownCommand(s.prefix, name))
	}
	return cmd.run(s, ctx, request{
		conversationID: conversationID,
		accountID:      accountID,
		name:           name,
		args:           args,
	})
}

func (s *Service) usage(format string) error {
	return &validationError{usage: "⚠️ Formato: " + s.prefix + format}
}

// target resolves an explicit-command customer name. Only exact matches act.
func (s *Service) target(ctx context.Context, accountID string, name string) (domain.Customer, int, error) {
	res, err := s.resolver.Resolve(ctx, name, accountID)
	if err != nil {
		return domain.Customer{}, 0, err
	}
	switch r := res.(type) {
	case customer.Found:
		return r.Customer, r.Duplicates, nil
	case customer.AmbiguousSimilar:
		return domain.Customer{}, 0, &notFoundError{name: name, suggestion: r.Candidates[0].DisplayName}
	}
	return domain.Customer{}, 0, &notFoundError{name: name}
}

func (s *Service) hintDuplicates(ctx context.Context, req request, c domain.Customer, duplicates int) error {
	if duplicates < 1 {
		return nil
	}
	return s.send(ctx, req.conversationID, duplicateHint(c, duplicates, s.prefix))
}

func (s *Service) cmdHelp(ctx context.Context, req request) error {
	return s.send(ctx, req.conversationID, helpText(s.prefix))
}

func (s *Service) cmdMenu(ctx context.Context, req request) error {
	err := s.stage(ctx, domain.PendingOperation{
		ConversationID: req.conversationID,
		AccountID:      req.accountID,
		Kind:           domain.PendingMenuNavigation,
	}, s.dialogTTL)
	if err != nil {
		return err
	}
	return s.send(ctx, req.conversationID, mainMenu())
}

var newCustomerFillers = map[string]bool{"cliente": true, "novo": true, "nome": true}

func (s *Service) cmdNew(ctx context.Context, req request) error {
	words := strings.Fields(req.args)
	for len(words) > 0 && newCustomerFillers[textnorm.Name(words[0])] {
		words = words[1:]
	}
	name := strings.Join(words, " ")
	if name == "" {
		return s.usage("novo <nome>")
	}

	c, created, err := s.createCustomer(ctx, req.accountID, name)
	if err != nil {
		return err
	}
	if !created {
		return s.send(ctx, req.conversationID, customerExists(c))
	}
	return s.send(ctx, req.conversationID, customerCreated(c))
}

func (s *Service) cmdList(ctx context.Context, req request) error {
	customers, err := s.repo.ListCustomers(ctx, req.accountID)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}
	if len(customers) == 0 {
		return s.send(ctx, req.conversationID, msgNoCustomers)
	}

	lines := make([]customerLine, 0, len(customers))
	for _, c := range customers {
		balance, err := s.ledger.Balance(ctx, c.ID, req.accountID)
		if err != nil {
			return err
		}
		lines = append(lines, customerLine{name: c.DisplayName, balance: balance})
	}
	return s.send(ctx, req.conversationID, customerList(lines))
}

func (s *Service) cmdDelete(ctx context.Context, req request) error {
	if req.args == "" {
		return s.usage("excluir <nome>")
	}
	c, duplicates, err := s.target(ctx, req.accountID, req.args)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, c.ID, req.accountID); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	s.log.Info().Str("account_id", req.accountID).Str("customer_id", c.ID).Msg("customer deleted")
	if err := s.send(ctx, req.conversationID, deletedText(c)); err != nil {
		return err
	}
	return s.hintDuplicates(ctx, req, c, duplicates)
}

func (s *Service) cmdBalance(ctx context.Context, req request) error {
	if req.args == "" {
		return s.usage("divida <nome>")
	}
	c, duplicates, err := s.target(ctx, req.accountID, req.args)
	if err != nil {
		return err
	}
	balance, err := s.ledger.Balance(ctx, c.ID, req.accountID)
	if err != nil {
		return err
	}
	if err := s.send(ctx, req.conversationID, balanceText(c, balance)); err != nil {
		return err
	}
	return s.hintDuplicates(ctx, req, c, duplicates)
}

func (s *Service) cmdStatement(ctx context.Context, req request) error {
	if req.args == "" {
		return s.usage("extrato <nome>")
	}
	c, duplicates, err := s.target(ctx, req.accountID, req.args)
	if err != nil {
		return err
	}
	entries, total, err := s.ledger.Statement(ctx, c.ID, req.accountID)
	if err != nil {
		return err
	}
	if err := s.send(ctx, req.conversationID, statementText(c, entries, total, s.location)); err != nil {
		return err
	}
	return s.hintDuplicates(ctx, req, c, duplicates)
}

// cmdPay takes "<nome> [valor]". With a value it records a partial payment,
// without one it settles everything.
func (s *Service) cmdPay(ctx context.Context, req request) error {
	words := strings.Fields(req.args)
	if len(words) == 0 {
		return s.usage("pago <nome> [valor]")
	}

	name := req.args
	var amount *decimal.Decimal
	if len(words) > 1 {
		if v, ok := parser.ParseAmount(words[len(words)-1]); ok {
			if !v.IsPositive() {
				return s.usage("pago <nome> [valor] (valor maior que zero)")
			}
			amount = &v
			name = strings.Join(words[:len(words)-1], " ")
		}
	}

	c, duplicates, err := s.target(ctx, req.accountID, name)
	if err != nil {
		return err
	}

	if amount == nil {
		if _, err := s.ledger.SettleAll(ctx, c.ID, req.accountID); err != nil {
			return err
		}
		if err := s.send(ctx, req.conversationID, settledText(c)); err != nil {
			return err
		}
		return s.hintDuplicates(ctx, req, c, duplicates)
	}

	if _, err := s.ledger.Pay(ctx, c.ID, req.accountID, *amount); err != nil {
		return err
	}
	remaining, err := s.ledger.Balance(ctx, c.ID, req.accountID)
	if err != nil {
		return err
	}
	if err := s.send(ctx, req.conversationID, paymentText(c, *amount, remaining)); err != nil {
		return err
	}
	return s.hintDuplicates(ctx, req, c, duplicates)
}

func (s *Service) cmdSummary(ctx context.Context, req request) error {
	today, err := s.reports.Today(ctx, req.accountID)
	if err != nil {
		return err
	}
	top, err := s.reports.TopDebtors(ctx, req.accountID, 3)
	if err != nil {
		return err
	}
	old, err := s.reports.OldDebts(ctx, req.accountID, s.oldDebtAge)
	if err != nil {
		return err
	}
	days := int(s.oldDebtAge.Hours() / 24)
	return s.send(ctx, req.conversationID, summaryText(today, top, old, days))
}

func (s *Service) cmdDebtors(ctx context.Context, req request) error {
	debtors, err := s.reports.TopDebtors(ctx, req.accountID, 10)
	if err != nil {
		return err
	}
	return s.send(ctx, req.conversationID, debtorsText(debtors))
}

func (s *Service) cmdTotal(ctx context.Context, req request) error {
	total, err := s.ledger.AccountTotal(ctx, req.accountID)
	if err != nil {
		return err
	}
	return s.send(ctx, req.conversationID, accountTotalText(total))
}

// cmdUnify stages a merge of every exact duplicate of a name. The merge
// itself only runs once the name is typed again.
func (s *Service) cmdUnify(ctx context.Context, req request) error {
	if req.args == "" {
		return s.usage("unificar <nome>")
	}
	normalized := textnorm.Name(req.args)
	duplicates, err := s.repo.FindExact(ctx, normalized, req.accountID)
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}
	if len(duplicates) < 2 {
		return s.send(ctx, req.conversationID, noDuplicatesText(req.args))
	}

	ids := make([]string, 0, len(duplicates))
	combined := decimal.Zero
	for _, c := range duplicates {
		balance, err := s.ledger.Balance(ctx, c.ID, req.accountID)
		if err != nil {
			return err
		}
		combined = combined.Add(balance)
		ids = append(ids, c.ID)
	}

	err = s.stage(ctx, domain.PendingOperation{
		ConversationID: req.conversationID,
		AccountID:      req.accountID,
		Kind:           domain.PendingUnifyConfirm,
		Unify:          &domain.UnifyPayload{TargetName: req.args, CustomerIDs: ids},
	}, s.unifyTTL)
	if err != nil {
		return err
	}
	return s.send(ctx, req.conversationID, unifyPrompt(req.args, len(duplicates), combined))
}

func (s *Service) cmdRename(ctx context.Context, req request) error {
	from, to, ok := strings.Cut(req.args, " - ")
	if !ok {
		from, to, ok = strings.Cut(req.args, "-")
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if !ok || from == "" || to == "" || strings.Contains(to, " - ") {
		return s.usage("renomear <nome antigo> - <nome novo>")
	}

	c, _, err := s.target(ctx, req.accountID, from)
	if err != nil {
		return err
	}

	normalized := textnorm.Name(to)
	taken, err := s.repo.FindExact(ctx, normalized, req.accountID)
	if err != nil {
		return fmt.Errorf("find customer: %w", err)
	}
	for _, other := range taken {
		if other.ID != c.ID {
			return &validationError{usage: customerExists(other)}
		}
	}

	renamed, err := s.repo.RenameCustomer(ctx, c.ID, req.accountID, to, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return &notFoundError{name: from}
	}
	if err != nil {
		return fmt.Errorf("rename customer: %w", err)
	}
	return s.send(ctx, req.conversationID, renamedText(c.DisplayName, renamed.DisplayName))
}

func (s *Service) cmdSum(ctx context.Context, req request) error {
	var names []string
	for _, part := range strings.Split(req.args, "+") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	if len(names) < 2 {
		return s.usage("somar <nome1> + <nome2> + ...")
	}

	var (
		lines   []customerLine
		missing []string
		total   = decimal.Zero
	)
	for _, name := range names {
		c, _, err := s.target(ctx, req.accountID, name)
		var notFound *notFoundError
		if errors.As(err, &notFound) {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return err
		}
		balance, err := s.ledger.Balance(ctx, c.ID, req.accountID)
		if err != nil {
			return err
		}
		total = total.Add(balance)
		lines = append(lines, customerLine{name: c.DisplayName, balance: balance})
	}
	return s.send(ctx, req.conversationID, sumText(lines, total, missing))
}

// cmdLimit shows the account credit limit, or sets it when a value is given.
func (s *Service) cmdLimit(ctx context.Context, req request) error {
	words := strings.Fields(req.args)
	// "limite fiado 300" is accepted too
	if len(words) > 0 && textnorm.Name(words[0]) == "fiado" {
		words = words[1:]
	}
	if len(words) == 0 {
		limit, err := s.creditLimit(ctx, req.accountID)
		if err != nil {
			return err
		}
		return s.send(ctx, req.conversationID, currentLimitText(limit, s.prefix))
	}

	limit, ok := parser.ParseAmount(words[0])
	if len(words) != 1 || !ok || limit.IsNegative() {
		return s.usage("limite <valor> (ex: " + s.prefix + "limite 300)")
	}
	if err := s.repo.SetCreditLimit(ctx, req.accountID, limit); err != nil {
		return fmt.Errorf("set credit limit: %w", err)
	}
	return s.send(ctx, req.conversationID, creditLimitText(limit))
}
