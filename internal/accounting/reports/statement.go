package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

// StatementLine is one applied journal line touching the account.
type StatementLine struct {
	TransactionID string              `json:"transactionId"`
	Number        string              `json:"transactionNumber"`
	Date          time.Time           `json:"transactionDate"`
	Status        transactions.Status `json:"status"`
	Description   string              `json:"description"`
	Debit         decimal.Decimal     `json:"debit"`
	Credit        decimal.Decimal     `json:"credit"`
	Balance       decimal.Decimal     `json:"runningBalance"`
}

// AccountStatement lists the movements of one account over a range.
type AccountStatement struct {
	AccountID   string               `json:"accountId"`
	Code        string               `json:"accountCode"`
	Name        string               `json:"accountName"`
	Type        accounts.AccountType `json:"accountType"`
	From        time.Time            `json:"from"`
	To          time.Time            `json:"to"`
	Opening     decimal.Decimal      `json:"openingBalance"`
	Lines       []StatementLine      `json:"lines"`
	TotalDebit  decimal.Decimal      `json:"totalDebit"`
	TotalCredit decimal.Decimal      `json:"totalCredit"`
	Closing     decimal.Decimal      `json:"closingBalance"`
}

// BuildAccountStatement walks txns, which must be ordered by date then
// number, and keeps the lines of applied transactions touching account.
// Lines dated before from roll into the opening balance.
func BuildAccountStatement(account accounts.Account, txns []transactions.Transaction, from, to time.Time) AccountStatement {
	st := AccountStatement{
		AccountID: account.ID,
		Code:      account.Code,
		Name:      account.Name,
		Type:      account.Type,
		From:      from,
		To:        to,
		Lines:     []StatementLine{},
	}
	running := decimal.Zero
	for _, t := range txns {
		if !t.Status.Applied() {
			continue
		}
		if !to.IsZero() && t.Date.After(to) {
			continue
		}
		for _, e := range t.Entries {
			if e.AccountID != account.ID {
				continue
			}
			delta := accounts.NetBalance(account.Type, e.Debit, e.Credit)
			if !from.IsZero() && t.Date.Before(from) {
				st.Opening = st.Opening.Add(delta)
				continue
			}
			running = running.Add(delta)
			description := e.Description
			if description == "" {
				description = t.Description
			}
			st.Lines = append(st.Lines, StatementLine{
				TransactionID: t.ID,
				Number:        t.Number,
				Date:          t.Date,
				Status:        t.Status,
				Description:   description,
				Debit:         e.Debit,
				Credit:        e.Credit,
			})
			st.TotalDebit = st.TotalDebit.Add(e.Debit)
			st.TotalCredit = st.TotalCredit.Add(e.Credit)
		}
	}
	balance := st.Opening
	for i := range st.Lines {
		balance = balance.Add(accounts.NetBalance(account.Type, st.Lines[i].Debit, st.Lines[i].Credit))
		st.Lines[i].Balance = balance
	}
	st.Closing = st.Opening.Add(running)
	return st
}
