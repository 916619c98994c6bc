package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

// Drift is an account whose stored balances disagree with its journal lines.
type Drift struct {
	AccountID      string          `json:"accountId"`
	Code           string          `json:"accountCode"`
	StoredDebit    decimal.Decimal `json:"storedDebit"`
	StoredCredit   decimal.Decimal `json:"storedCredit"`
	ExpectedDebit  decimal.Decimal `json:"expectedDebit"`
	ExpectedCredit decimal.Decimal `json:"expectedCredit"`
}

// IntegrityReport is the outcome of replaying applied lines against stored
// balances.
type IntegrityReport struct {
	InstitutionID string               `json:"institutionId"`
	CheckedAt     time.Time            `json:"checkedAt"`
	Accounts      int                  `json:"accountsChecked"`
	Transactions  int                  `json:"transactionsReplayed"`
	Drifts        []Drift              `json:"drifts"`
	Unbalanced    []TransactionSummary `json:"unbalanced"`
	OK            bool                 `json:"ok"`
}

// CheckBalances replays every applied transaction and compares the totals
// with each account's stored balances. Applied transactions must also be
// balanced.
func CheckBalances(institutionID string, list []accounts.Account, txns []transactions.Transaction, at time.Time) IntegrityReport {
	report := IntegrityReport{
		InstitutionID: institutionID,
		CheckedAt:     at,
		Accounts:      len(list),
		Drifts:        []Drift{},
		Unbalanced:    []TransactionSummary{},
	}
	for _, t := range txns {
		if !t.Status.Applied() {
			continue
		}
		report.Transactions++
		if !t.IsBalanced() {
			report.Unbalanced = append(report.Unbalanced, Summarize(t))
		}
	}
	expected := Activity(list, txns, time.Time{}, time.Time{})
	byID := make(map[string]AccountBalance, len(expected))
	for _, b := range expected {
		byID[b.AccountID] = b
	}
	for _, a := range list {
		want := byID[a.ID]
		if a.DebitBalance.Equal(want.Debit) && a.CreditBalance.Equal(want.Credit) {
			continue
		}
		report.Drifts = append(report.Drifts, Drift{
			AccountID:      a.ID,
			Code:           a.Code,
			StoredDebit:    a.DebitBalance,
			StoredCredit:   a.CreditBalance,
			ExpectedDebit:  want.Debit,
			ExpectedCredit: want.Credit,
		})
	}
	report.OK = len(report.Drifts) == 0 && len(report.Unbalanced) == 0
	return report
}
