package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
)

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	AccountID string          `json:"accountId"`
	Code      string          `json:"accountCode"`
	Name      string          `json:"accountName"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Net       decimal.Decimal `json:"netBalance"`
}

// TrialBalanceGroup aggregates the accounts of one type.
type TrialBalanceGroup struct {
	Type     accounts.AccountType  `json:"accountType"`
	Label    string                `json:"label"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance lists every account grouped by type. Debits equal credits
// whenever only balanced transactions were posted.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"totalDebit"`
	TotalCredit decimal.Decimal     `json:"totalCredit"`
	Balanced    bool                `json:"balanced"`
}

// BuildTrialBalance converts account balances into grouped trial balance data.
// Groups follow statement order; accounts inside a group are ordered by code.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[accounts.AccountType]*TrialBalanceGroup, len(accounts.AccountTypes))
	for _, acc := range balances {
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: acc.Type, Label: accounts.TypeLabel(acc.Type)}
			groups[acc.Type] = grp
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Debit:     acc.Debit,
			Credit:    acc.Credit,
			Net:       acc.Net(),
		})
		grp.Debit = grp.Debit.Add(acc.Debit)
		grp.Credit = grp.Credit.Add(acc.Credit)
	}

	result := TrialBalance{Groups: []TrialBalanceGroup{}}
	for _, typ := range accounts.AccountTypes {
		grp, ok := groups[typ]
		if !ok {
			continue
		}
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	result.Balanced = result.TotalDebit.Equal(result.TotalCredit)
	return result
}
