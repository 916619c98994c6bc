package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"accountCode"`
	Name      string          `json:"accountName"`
	Balance   decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
// Income and expense accounts are not closed into equity by posting, so
// their net is shown as the current surplus.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	CurrentSurplus            decimal.Decimal     `json:"currentSurplus"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"totalLiabilitiesAndEquity"`
	Balanced                  bool                `json:"balanced"`
}

// BuildBalanceSheet aggregates balances into assets, liabilities, and equity sections.
func BuildBalanceSheet(balances []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: accounts.TypeLabel(accounts.AccountTypeAsset), Accounts: []BalanceSheetAccount{}}
	liabilities := BalanceSheetSection{Label: accounts.TypeLabel(accounts.AccountTypeLiability), Accounts: []BalanceSheetAccount{}}
	equity := BalanceSheetSection{Label: accounts.TypeLabel(accounts.AccountTypeEquity), Accounts: []BalanceSheetAccount{}}
	surplus := decimal.Zero

	for _, acc := range balances {
		row := BalanceSheetAccount{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Balance: acc.Net()}
		switch acc.Type {
		case accounts.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.AccountTypeLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.AccountTypeEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		case accounts.AccountTypeIncome:
			surplus = surplus.Add(row.Balance)
		case accounts.AccountTypeExpense:
			surplus = surplus.Sub(row.Balance)
		}
	}

	total := liabilities.Total.Add(equity.Total).Add(surplus)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentSurplus:            surplus,
		TotalLiabilitiesAndEquity: total,
		Balanced:                  assets.Total.Equal(total),
	}
}
