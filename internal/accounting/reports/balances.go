package reports

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

// AccountBalance is an account with aggregated debit and credit totals.
type AccountBalance struct {
	AccountID string               `json:"accountId"`
	Code      string               `json:"accountCode"`
	Name      string               `json:"accountName"`
	Type      accounts.AccountType `json:"accountType"`
	Category  string               `json:"category"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
}

// Net applies the normal-balance convention of the account type.
func (a AccountBalance) Net() decimal.Decimal {
	return accounts.NetBalance(a.Type, a.Debit, a.Credit)
}

// StoredBalances uses the balances maintained by posting.
func StoredBalances(list []accounts.Account) []AccountBalance {
	out := make([]AccountBalance, 0, len(list))
	for _, a := range list {
		out = append(out, AccountBalance{
			AccountID: a.ID,
			Code:      a.Code,
			Name:      a.Name,
			Type:      a.Type,
			Category:  a.Category,
			Debit:     a.DebitBalance,
			Credit:    a.CreditBalance,
		})
	}
	sortBalances(out)
	return out
}

// Activity recomputes debit and credit per account from the lines of applied
// transactions dated within [from, to]. Zero bounds are open.
func Activity(list []accounts.Account, txns []transactions.Transaction, from, to time.Time) []AccountBalance {
	byID := make(map[string]*AccountBalance, len(list))
	out := make([]AccountBalance, len(list))
	for i, a := range list {
		out[i] = AccountBalance{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, Category: a.Category}
		byID[a.ID] = &out[i]
	}
	for _, t := range txns {
		if !t.Status.Applied() || !inRange(t.Date, from, to) {
			continue
		}
		for _, e := range t.Entries {
			b, ok := byID[e.AccountID]
			if !ok {
				continue
			}
			b.Debit = b.Debit.Add(e.Debit)
			b.Credit = b.Credit.Add(e.Credit)
		}
	}
	sortBalances(out)
	return out
}

func inRange(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

func sortBalances(list []AccountBalance) {
	slices.SortFunc(list, func(a, b AccountBalance) int { return strings.Compare(a.Code, b.Code) })
}
