package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

// TransactionSummary is the list form of a transaction.
type TransactionSummary struct {
	TransactionID string              `json:"transactionId"`
	Number        string              `json:"transactionNumber"`
	Type          transactions.Type   `json:"transactionType"`
	Status        transactions.Status `json:"status"`
	Date          time.Time           `json:"transactionDate"`
	Description   string              `json:"description"`
	Reference     string              `json:"reference,omitempty"`
	TotalDebit    decimal.Decimal     `json:"totalDebit"`
	TotalCredit   decimal.Decimal     `json:"totalCredit"`
	SubmittedBy   string              `json:"submittedBy,omitempty"`
	SubmittedAt   *time.Time          `json:"submittedDate,omitempty"`
}

// Summarize builds the list form of t.
func Summarize(t transactions.Transaction) TransactionSummary {
	debit, credit := t.Entries.Totals()
	return TransactionSummary{
		TransactionID: t.ID,
		Number:        t.Number,
		Type:          t.Type,
		Status:        t.Status,
		Date:          t.Date,
		Description:   t.Description,
		Reference:     t.Reference,
		TotalDebit:    debit,
		TotalCredit:   credit,
		SubmittedBy:   t.SubmittedBy,
		SubmittedAt:   t.SubmittedAt,
	}
}

// Statistics summarises the transactions of an institution in a date range.
type Statistics struct {
	InstitutionID   string                      `json:"institutionId"`
	From            time.Time                   `json:"from"`
	To              time.Time                   `json:"to"`
	Total           int                         `json:"totalTransactions"`
	ByStatus        map[transactions.Status]int `json:"byStatus"`
	PostedIncome    decimal.Decimal             `json:"postedIncome"`
	PostedExpense   decimal.Decimal             `json:"postedExpense"`
	Net             decimal.Decimal             `json:"net"`
	Unbalanced      []TransactionSummary        `json:"unbalanced"`
	PendingApproval []TransactionSummary        `json:"pendingApproval"`
}

// BuildStatistics aggregates txns dated within [from, to]. Only POSTED
// INCOME and EXPENSE transactions count toward the actuals.
func BuildStatistics(institutionID string, txns []transactions.Transaction, from, to time.Time) Statistics {
	stats := Statistics{
		InstitutionID:   institutionID,
		From:            from,
		To:              to,
		ByStatus:        make(map[transactions.Status]int, len(transactions.Statuses)),
		Unbalanced:      []TransactionSummary{},
		PendingApproval: []TransactionSummary{},
	}
	for _, s := range transactions.Statuses {
		stats.ByStatus[s] = 0
	}
	for _, t := range txns {
		if !inRange(t.Date, from, to) {
			continue
		}
		stats.Total++
		stats.ByStatus[t.Status]++
		if t.Status == transactions.StatusPosted {
			switch t.Type {
			case transactions.TypeIncome:
				stats.PostedIncome = stats.PostedIncome.Add(t.TotalAmount)
			case transactions.TypeExpense:
				stats.PostedExpense = stats.PostedExpense.Add(t.TotalAmount)
			}
		}
		if t.Status != transactions.StatusCancelled && !t.IsBalanced() {
			stats.Unbalanced = append(stats.Unbalanced, Summarize(t))
		}
		if t.Status == transactions.StatusPending {
			stats.PendingApproval = append(stats.PendingApproval, Summarize(t))
		}
	}
	stats.Net = stats.PostedIncome.Sub(stats.PostedExpense)
	return stats
}

// UnbalancedOf lists non-cancelled transactions whose lines do not balance.
// Only drafts can be in this state.
func UnbalancedOf(txns []transactions.Transaction) []TransactionSummary {
	out := []TransactionSummary{}
	for _, t := range txns {
		if t.Status != transactions.StatusCancelled && !t.IsBalanced() {
			out = append(out, Summarize(t))
		}
	}
	return out
}

// PendingOf lists transactions awaiting approval.
func PendingOf(txns []transactions.Transaction) []TransactionSummary {
	out := []TransactionSummary{}
	for _, t := range txns {
		if t.Status == transactions.StatusPending {
			out = append(out, Summarize(t))
		}
	}
	return out
}
