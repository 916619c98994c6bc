package accounts

import "github.com/shopspring/decimal"

// NetBalance applies the normal-balance convention: debit minus credit for
// ASSET and EXPENSE, credit minus debit otherwise.
func NetBalance(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// NetBalance of the account's own postings.
func (a Account) NetBalance() decimal.Decimal {
	return NetBalance(a.Type, a.DebitBalance, a.CreditBalance)
}

// BudgetStatus classifies an account against its budget controls.
type BudgetStatus string

const (
	BudgetStatusNone        BudgetStatus = "NONE"
	BudgetStatusWithin      BudgetStatus = "WITHIN"
	BudgetStatusApproaching BudgetStatus = "APPROACHING"
	BudgetStatusExceeded    BudgetStatus = "EXCEEDED"
)

// ExceedingLimit reports net balance strictly above the budget limit.
func ExceedingLimit(a Account) bool {
	return a.BudgetLimit.Valid && a.NetBalance().GreaterThan(a.BudgetLimit.Decimal)
}

// ApproachingLimit reports net balance at or above the warning threshold
// while still within the limit.
func ApproachingLimit(a Account) bool {
	if !a.WarningThreshold.Valid || ExceedingLimit(a) {
		return false
	}
	return a.NetBalance().GreaterThanOrEqual(a.WarningThreshold.Decimal)
}

// Budget evaluates the account's budget status.
func Budget(a Account) BudgetStatus {
	switch {
	case !a.BudgetLimit.Valid && !a.WarningThreshold.Valid:
		return BudgetStatusNone
	case ExceedingLimit(a):
		return BudgetStatusExceeded
	case ApproachingLimit(a):
		return BudgetStatusApproaching
	}
	return BudgetStatusWithin
}

// BudgetAlert is one account needing attention.
type BudgetAlert struct {
	AccountID        string              `json:"accountId"`
	Code             string              `json:"accountCode"`
	Name             string              `json:"accountName"`
	Status           BudgetStatus        `json:"status"`
	NetBalance       decimal.Decimal     `json:"netBalance"`
	BudgetLimit      decimal.NullDecimal `json:"budgetLimit"`
	WarningThreshold decimal.NullDecimal `json:"warningThreshold"`
	BudgetPeriod     BudgetPeriod        `json:"budgetPeriod,omitempty"`
}

// CollectBudgetAlerts returns alerts for approaching or exceeding accounts.
func CollectBudgetAlerts(list []Account) []BudgetAlert {
	var alerts []BudgetAlert
	for _, a := range list {
		status := Budget(a)
		if status != BudgetStatusApproaching && status != BudgetStatusExceeded {
			continue
		}
		alerts = append(alerts, BudgetAlert{
			AccountID:        a.ID,
			Code:             a.Code,
			Name:             a.Name,
			Status:           status,
			NetBalance:       a.NetBalance(),
			BudgetLimit:      a.BudgetLimit,
			WarningThreshold: a.WarningThreshold,
			BudgetPeriod:     a.BudgetPeriod,
		})
	}
	return alerts
}

// Rollup is an account's balance aggregated with all of its descendants.
type Rollup struct {
	AccountID   string          `json:"accountId"`
	Code        string          `json:"accountCode"`
	Type        AccountType     `json:"accountType"`
	Debit       decimal.Decimal `json:"debitBalance"`
	Credit      decimal.Decimal `json:"creditBalance"`
	Net         decimal.Decimal `json:"netBalance"`
	Descendants int             `json:"descendants"`
}

// RollupOf sums root and the given descendants. Descendant balances are
// added as raw debit and credit so the root's sign convention applies.
func RollupOf(root Account, descendants []Account) Rollup {
	r := Rollup{
		AccountID:   root.ID,
		Code:        root.Code,
		Type:        root.Type,
		Debit:       root.DebitBalance,
		Credit:      root.CreditBalance,
		Descendants: len(descendants),
	}
	for _, d := range descendants {
		r.Debit = r.Debit.Add(d.DebitBalance)
		r.Credit = r.Credit.Add(d.CreditBalance)
	}
	r.Net = NetBalance(root.Type, r.Debit, r.Credit)
	return r
}
