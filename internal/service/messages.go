package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
)

const (
	msgExpired        = "⏳ Operação expirada. Por favor, tente novamente."
	msgCancelled      = "❌ Operação cancelada."
	msgInvalidMenu    = "Opção inválida. Responda com um número ou 'cancelar'."
	msgInvalidConfirm = "Opção inválida. Responda com o número ou 'cancelar'."
	msgFailure        = "❌ Ocorreu um erro inesperado ao processar o comando."
	msgNoCustomers    = "Nenhum cliente cadastrado."
	msgNoDebtors      = "🎉 Nenhum cliente com dívidas!"
)

func helpText(p string) string {
	return fmt.Sprintf(`*Receba Aí - Comandos* 📖

➡️ *COMO REGISTRAR UMA VENDA*
Basta escrever o nome do cliente, seguido dos itens.
*Ex:* `+"`Maria 2 refri 5, 1 bolo 20`"+`

👤 *CLIENTES*
• %[1]snovo <nome>: Cadastra um novo cliente.
• %[1]sclientes: Lista a situação de todos.
• %[1]sexcluir <nome>: Exclui um cliente.
• %[1]sunificar <nome>: Junta clientes duplicados.
• %[1]srenomear <antigo> - <novo>: Altera o nome.

💰 *COBRANÇAS*
• %[1]sdivida <nome>: Mostra a dívida.
• %[1]sextrato <nome>: Mostra o extrato detalhado.
• %[1]spago <nome> [valor]: Paga a dívida total ou parcial.
• %[1]ssomar <nome1> + <nome2>: Soma dívidas.

📈 *RELATÓRIOS*
• %[1]sresumo ou %[1]srelatorio
• %[1]sdevedores: Maiores devedores.
• %[1]stotal: Total a receber.

⚙️ *CONFIGURAÇÃO*
• %[1]slimite <valor>: Limite de fiado por cliente.
• %[1]sajuda ou %[1]smenu`, p)
}

func mainMenu() string {
	return `*Menu Principal - Receba Aí* 🚀

Responda com o número da categoria desejada:

1️⃣ - Clientes e Vendas
2️⃣ - Cobranças e Extratos
3️⃣ - Relatórios e Resumos`
}

func subMenu(choice string, p string) (string, bool) {
	switch choice {
	case "1":
		return fmt.Sprintf("*1️⃣ Comandos de Clientes e Vendas*\n\n• %[1]snovo <nome>\n• %[1]sclientes\n• %[1]sexcluir <nome>\n• %[1]sunificar <nome>\n• %[1]srenomear <antigo> - <novo>", p), true
	case "2":
		return fmt.Sprintf("*2️⃣ Comandos de Cobranças*\n\n• %[1]sdivida <nome>\n• %[1]sextrato <nome>\n• %[1]spago <nome> [valor]\n• %[1]ssomar <nome1> + <nome2>", p), true
	case "3":
		return fmt.Sprintf("*3️⃣ Comandos de Relatórios*\n\n• %[1]sresumo ou %[1]srelatorio\n• %[1]sdevedores\n• %[1]stotal\n• %[1]slimite <valor>", p), true
	}
	return "", false
}

func unknownCommand(p string, name string) string {
	return fmt.Sprintf("Comando \"%s%s\" não reconhecido. Digite *%smenu* ou *%sajuda*.", p, name, p, p)
}

func notFoundText(name string, suggestion string, p string) string {
	if suggestion != "" {
		return fmt.Sprintf("❌ Cliente \"*%s*\" não encontrado. Você quis dizer \"*%s*\"?", name, suggestion)
	}
	return fmt.Sprintf("❌ Cliente \"*%s*\" não encontrado. Verifique o nome ou use `%sunificar` se houver duplicatas.", name, p)
}

func duplicateHint(c domain.Customer, extra int, p string) string {
	return fmt.Sprintf("ℹ️ Existem mais %d cadastro(s) com o nome \"%s\". Use `%sunificar %s` para juntar.", extra, c.DisplayName, p, c.DisplayName)
}

func confirmPrompt(name string, candidate *domain.Customer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤔 Cliente \"*%s*\" não encontrado.\n\n", name)
	if candidate != nil {
		fmt.Fprintf(&b, "Ele é parecido com \"*%s*\"?\n\n", candidate.DisplayName)
	}
	b.WriteString("*Responda com o número ou envie \"cancelar\":*\n")
	fmt.Fprintf(&b, "1️⃣ - Cadastrar \"*%s*\" como novo.", name)
	if candidate != nil {
		fmt.Fprintf(&b, "\n2️⃣ - Usar o cliente \"*%s*\".", candidate.DisplayName)
	}
	return b.String()
}

func customerCreated(c domain.Customer) string {
	return fmt.Sprintf("✅ Cliente \"*%s*\" cadastrado com sucesso!", c.DisplayName)
}

func customerExists(c domain.Customer) string {
	return fmt.Sprintf("⚠️ Cliente \"%s\" já existe.", c.DisplayName)
}

func saleSummary(c domain.Customer, posted []domain.LedgerEntry, failed []domain.LineItem, balance *decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Venda registrada para *%s*:\n", c.DisplayName)
	total := decimal.Zero
	for _, e := range posted {
		fmt.Fprintf(&b, "\n- %sx %s (%s)", formatQty(e.Quantity), e.Description, formatMoney(e.Total))
		total = total.Add(e.Total)
	}
	fmt.Fprintf(&b, "\n\n*Total da Venda: %s*", formatMoney(total))
	if balance != nil {
		fmt.Fprintf(&b, "\n*Saldo Devedor: %s*", formatMoney(*balance))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n\n⚠️ %d item(ns) NÃO foram registrados por uma falha:", len(failed))
		for _, it := range failed {
			fmt.Fprintf(&b, "\n- %sx %s (%s)", formatQty(it.Quantity), it.Description, formatMoney(it.Total))
		}
		b.WriteString("\nEnvie esses itens novamente.")
	}
	return b.String()
}

func saleFailed(items []domain.LineItem) string {
	return fmt.Sprintf("❌ Não foi possível registrar a venda (%d item(ns)). Nada foi anotado, envie novamente.", len(items))
}

func creditLimitWarning(c domain.Customer, balance decimal.Decimal) string {
	return fmt.Sprintf("🚨 *ATENÇÃO!* %s ultrapassou o limite de crédito! Dívida atual: %s.", c.DisplayName, formatMoney(balance))
}

func customerList(lines []customerLine) string {
	var b strings.Builder
	b.WriteString("*Situação dos Clientes:*\n\n")
	for _, l := range lines {
		if l.balance.IsPositive() {
			fmt.Fprintf(&b, "- %s: (Deve: %s)\n", l.name, formatMoney(l.balance))
		} else {
			fmt.Fprintf(&b, "- %s: (✅ Em dia)\n", l.name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type customerLine struct {
	name    string
	balance decimal.Decimal
}

func balanceText(c domain.Customer, balance decimal.Decimal) string {
	return fmt.Sprintf("Dívida de *%s*: *%s*", c.DisplayName, formatMoney(balance))
}

func statementText(c domain.Customer, entries []domain.LedgerEntry, total decimal.Decimal, loc *time.Location) string {
	if len(entries) == 0 {
		return fmt.Sprintf("✅ *%s* não tem pendências.", c.DisplayName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Extrato de %s*\n\n", c.DisplayName)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %sx %s: %s\n", e.CreatedAt.In(loc).Format("02/01/2006"), formatQty(e.Quantity), e.Description, formatMoney(e.Total))
	}
	fmt.Fprintf(&b, "\n*TOTAL: %s*", formatMoney(total))
	return b.String()
}

func paymentText(c domain.Customer, amount decimal.Decimal, remaining decimal.Decimal) string {
	return fmt.Sprintf("✅ Pagamento de %s registrado para *%s*.\nSaldo restante: %s", formatMoney(amount), c.DisplayName, formatMoney(remaining))
}

func settledText(c domain.Customer) string {
	return fmt.Sprintf("✅ Todas as pendências de *%s* foram quitadas!", c.DisplayName)
}

func deletedText(c domain.Customer) string {
	return fmt.Sprintf("✅ Cliente *%s* e seu histórico foram excluídos.", c.DisplayName)
}

func renamedText(from string, to string) string {
	return fmt.Sprintf("✅ O nome do cliente foi alterado de \"%s\" para \"%s\".", from, to)
}

func summaryText(today domain.PeriodSummary, top []domain.DebtorSummary, old []domain.DebtorSummary, oldDays int) string {
	var b strings.Builder
	b.WriteString("*Resumo Gerencial do Dia* 📈\n\n")
	fmt.Fprintf(&b, "*Vendas de Hoje:* %s\n", formatMoney(today.Sold))
	fmt.Fprintf(&b, "*Recebido Hoje:* %s\n", formatMoney(today.Received))
	if len(top) > 0 {
		fmt.Fprintf(&b, "\nTop %d Maiores Devedores:\n", len(top))
		for _, d := range top {
			fmt.Fprintf(&b, "- %s: %s\n", d.DisplayName, formatMoney(d.Balance))
		}
	}
	if len(old) > 0 {
		fmt.Fprintf(&b, "\n🚨 *Atenção! Dívidas com mais de %d dias:*\n", oldDays)
		for _, d := range old {
			fmt.Fprintf(&b, "- %s: %s\n", d.DisplayName, formatMoney(d.Balance))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func debtorsText(debtors []domain.DebtorSummary) string {
	if len(debtors) == 0 {
		return msgNoDebtors
	}
	var b strings.Builder
	b.WriteString("👥 *Maiores Devedores*\n\n")
	for i, d := range debtors {
		fmt.Fprintf(&b, "%d. %s - *%s*\n", i+1, d.DisplayName, formatMoney(d.Balance))
	}
	return strings.TrimRight(b.String(), "\n")
}

func accountTotalText(total decimal.Decimal) string {
	return fmt.Sprintf("💰 *Total a Receber:* *%s*", formatMoney(total))
}

func noDuplicatesText(name string) string {
	return fmt.Sprintf("✅ Não foram encontrados clientes duplicados para \"%s\".", name)
}

func unifyPrompt(name string, count int, combined decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("*Análise de Clientes Duplicados* 🧐\n\n")
	fmt.Fprintf(&b, "Encontrei *%d* registros para o nome \"*%s*\".\n", count, name)
	fmt.Fprintf(&b, "A dívida total combinada é: *%s*\n\n", formatMoney(combined))
	b.WriteString("🚨 *ATENÇÃO:* Esta ação não pode ser desfeita.\n")
	fmt.Fprintf(&b, "Para confirmar, responda com o nome exato: *%s*\nOu envie \"cancelar\".", name)
	return b.String()
}

func unifyMismatch(name string) string {
	return fmt.Sprintf("⚠️ O nome não confere. Para unificar, responda exatamente *%s* ou envie \"cancelar\".", name)
}

func unifiedText(target domain.Customer, merged int) string {
	return fmt.Sprintf("✅ %d cadastro(s) duplicado(s) foram unificados em \"*%s*\".", merged, target.DisplayName)
}

func sumText(lines []customerLine, total decimal.Decimal, missing []string) string {
	var b strings.Builder
	b.WriteString("*Soma de Dívidas* ➕\n\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "- %s: %s\n", l.name, formatMoney(l.balance))
	}
	fmt.Fprintf(&b, "\n*TOTAL COMBINADO: %s*", formatMoney(total))
	if len(missing) > 0 {
		fmt.Fprintf(&b, "\n\n⚠️ *Atenção:* Os seguintes nomes não foram encontrados: %s", strings.Join(missing, ", "))
	}
	return b.String()
}

func creditLimitText(limit decimal.Decimal) string {
	return fmt.Sprintf("✅ Limite de crédito (fiado) atualizado para *%s*.", formatMoney(limit))
}

func currentLimitText(limit decimal.Decimal, p string) string {
	return fmt.Sprintf("Limite de crédito (fiado) atual: *%s*. Para alterar: `%slimite <valor>`", formatMoney(limit), p)
}

// formatMoney renders R$ with two decimals and a decimal comma.
func formatMoney(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func formatQty(d decimal.Decimal) string {
	return strings.Replace(d.String(), ".", ",", 1)
}
