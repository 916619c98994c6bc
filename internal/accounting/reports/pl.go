package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
)

// IncomeStatementAccount represents an income or expense account summary.
type IncomeStatementAccount struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"accountCode"`
	Name      string          `json:"accountName"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
}

// IncomeStatementSection groups accounts by nature.
type IncomeStatementSection struct {
	Label    string                   `json:"label"`
	Accounts []IncomeStatementAccount `json:"accounts"`
	Total    decimal.Decimal          `json:"total"`
}

// IncomeStatement contains the structured output for the report.
type IncomeStatement struct {
	Income    IncomeStatementSection `json:"income"`
	Expense   IncomeStatementSection `json:"expense"`
	NetIncome decimal.Decimal        `json:"netIncome"`
}

// BuildIncomeStatement aggregates accounts into income and expense sections.
// Amounts use each account's normal side, so both sections are positive for
// ordinary activity.
func BuildIncomeStatement(balances []AccountBalance) IncomeStatement {
	income := IncomeStatementSection{Label: accounts.TypeLabel(accounts.AccountTypeIncome), Accounts: []IncomeStatementAccount{}}
	expense := IncomeStatementSection{Label: accounts.TypeLabel(accounts.AccountTypeExpense), Accounts: []IncomeStatementAccount{}}

	for _, acc := range balances {
		row := IncomeStatementAccount{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Category: acc.Category, Amount: acc.Net()}
		switch acc.Type {
		case accounts.AccountTypeIncome:
			income.Accounts = append(income.Accounts, row)
			income.Total = income.Total.Add(row.Amount)
		case accounts.AccountTypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.Total = expense.Total.Add(row.Amount)
		}
	}

	return IncomeStatement{
		Income:    income,
		Expense:   expense,
		NetIncome: income.Total.Sub(expense.Total),
	}
}
