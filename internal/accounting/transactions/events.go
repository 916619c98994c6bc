package transactions

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is the payload published after a committed lifecycle change.
type Event struct {
	Type            string          `json:"type"`
	TransactionID   string          `json:"transactionId"`
	Number          string          `json:"transactionNumber"`
	InstitutionID   string          `json:"institutionId"`
	TransactionType Type            `json:"transactionType"`
	Status          Status          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Actor           string          `json:"actor,omitempty"`
	ReversalID      string          `json:"reversalTransactionId,omitempty"`
	ReversesID      string          `json:"reversesTransactionId,omitempty"`
	OccurredAt      time.Time       `json:"occurredAt"`
}

// NewEvent describes op applied to txn.
func NewEvent(op string, txn Transaction, actor string, at time.Time) Event {
	return Event{
		Type:            op,
		TransactionID:   txn.ID,
		Number:          txn.Number,
		InstitutionID:   txn.InstitutionID,
		TransactionType: txn.Type,
		Status:          txn.Status,
		Amount:          txn.TotalAmount,
		Actor:           actor,
		ReversalID:      txn.ReversalID,
		ReversesID:      txn.ReversesID,
		OccurredAt:      at,
	}
}

// RoutingKey is the topic the event is published under.
func (e Event) RoutingKey() string {
	return "ledger.transaction." + e.Type
}
