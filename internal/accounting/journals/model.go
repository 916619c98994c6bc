package journals

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Side identifies which column of a line carries the amount.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Entry is one debit-or-credit line against a single account. Entries have no
// identity of their own; they live inside a transaction in order.
type Entry struct {
	AccountID   string          `json:"accountId"`
	Debit       decimal.Decimal `json:"debitAmount"`
	Credit      decimal.Decimal `json:"creditAmount"`
	Description string          `json:"description,omitempty"`
}

// Side reports the populated column. Malformed lines report SideDebit.
func (e Entry) Side() Side {
	if e.Credit.IsPositive() && !e.Debit.IsPositive() {
		return SideCredit
	}
	return SideDebit
}

// Amount returns the populated amount.
func (e Entry) Amount() decimal.Decimal {
	if e.Side() == SideCredit {
		return e.Credit
	}
	return e.Debit
}

// Reversed swaps debit and credit.
func (e Entry) Reversed() Entry {
	e.Debit, e.Credit = e.Credit, e.Debit
	return e
}

// Entries is the ordered body of a transaction.
type Entries []Entry

// Totals sums both columns.
func (es Entries) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range es {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// Total is the transaction amount: the debit side total.
func (es Entries) Total() decimal.Decimal {
	debit, _ := es.Totals()
	return debit
}

// IsBalanced reports exact debit/credit equality. An empty list is never balanced.
func (es Entries) IsBalanced() bool {
	if len(es) == 0 {
		return false
	}
	debit, credit := es.Totals()
	return debit.Equal(credit)
}

// Clone returns a copy that shares no backing array with es.
func (es Entries) Clone() Entries {
	if es == nil {
		return nil
	}
	return slices.Clone(es)
}

// Reverse returns the offsetting lines in the same order.
func (es Entries) Reverse() Entries {
	out := make(Entries, len(es))
	for i, e := range es {
		out[i] = e.Reversed()
	}
	return out
}

// AccountIDs returns the distinct referenced accounts sorted ascending. The
// order doubles as the lock order for posting.
func (es Entries) AccountIDs() []string {
	ids := make([]string, 0, len(es))
	for _, e := range es {
		ids = append(ids, e.AccountID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// References reports whether any line touches accountID.
func (es Entries) References(accountID string) bool {
	return slices.ContainsFunc(es, func(e Entry) bool { return e.AccountID == accountID })
}

// Delta is the aggregate movement of one account within a transaction.
type Delta struct {
	AccountID string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Deltas folds the lines per account, ordered by account id.
func (es Entries) Deltas() []Delta {
	byAccount := make(map[string]*Delta, len(es))
	for _, e := range es {
		d, ok := byAccount[e.AccountID]
		if !ok {
			d = &Delta{AccountID: e.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[e.AccountID] = d
		}
		d.Debit = d.Debit.Add(e.Debit)
		d.Credit = d.Credit.Add(e.Credit)
	}
	out := make([]Delta, 0, len(byAccount))
	for _, id := range es.AccountIDs() {
		out = append(out, *byAccount[id])
	}
	return out
}
