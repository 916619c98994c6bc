package transactions

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
)

// Type classifies a transaction. It is descriptive and never changes the
// balancing rules.
type Type string

const (
	TypeIncome         Type = "INCOME"
	TypeExpense        Type = "EXPENSE"
	TypeTransfer       Type = "TRANSFER"
	TypeAdjustment     Type = "ADJUSTMENT"
	TypeOpeningBalance Type = "OPENING_BALANCE"
	TypeClosingBalance Type = "CLOSING_BALANCE"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer, TypeAdjustment, TypeOpeningBalance, TypeClosingBalance:
		return true
	}
	return false
}

// Status enumerates the lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
	StatusReversed  Status = "REVERSED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusPosted, StatusCancelled, StatusReversed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Applied reports whether the transaction's entries are reflected in balances.
// A reversed transaction stays applied; its reversal offsets it.
func (s Status) Applied() bool { return s == StatusPosted || s == StatusReversed }

// RequiresBalance reports whether the balance invariant must hold in s.
func (s Status) RequiresBalance() bool {
	switch s {
	case StatusPending, StatusApproved, StatusPosted, StatusReversed:
		return true
	}
	return false
}

// ApprovalStatus tracks the approval workflow.
type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "NOT_REQUIRED"
	ApprovalPending     ApprovalStatus = "PENDING"
	ApprovalApproved    ApprovalStatus = "APPROVED"
	ApprovalRejected    ApprovalStatus = "REJECTED"
)

// ReversalCategory marks transactions created by Reverse.
const ReversalCategory = "REVERSAL"

// Relations are weak references into other modules.
type Relations struct {
	StudentID  string `json:"studentId,omitempty"`
	EmployeeID string `json:"employeeId,omitempty"`
	VendorID   string `json:"vendorId,omitempty"`
	InvoiceID  string `json:"invoiceId,omitempty"`
	ReceiptID  string `json:"receiptId,omitempty"`
}

// Transaction is the aggregate owning an ordered list of journal entries.
type Transaction struct {
	ID            string           `json:"transactionId"`
	Number        string           `json:"transactionNumber"`
	InstitutionID string           `json:"institutionId"`
	Type          Type             `json:"transactionType"`
	Category      string           `json:"category,omitempty"`
	Description   string           `json:"description"`
	Reference     string           `json:"reference,omitempty"`
	Date          time.Time        `json:"transactionDate"`
	Entries       journals.Entries `json:"journalEntries"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	Status        Status           `json:"status"`

	ApprovalStatus   ApprovalStatus `json:"approvalStatus"`
	SubmittedBy      string         `json:"submittedBy,omitempty"`
	SubmittedAt      *time.Time     `json:"submittedDate,omitempty"`
	ApprovedBy       string         `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time     `json:"approvedDate,omitempty"`
	ApprovalComments string         `json:"approvalComments,omitempty"`
	PostedBy         string         `json:"postedBy,omitempty"`
	PostedAt         *time.Time     `json:"postedDate,omitempty"`
	CancelledBy      string         `json:"cancelledBy,omitempty"`
	CancelledAt      *time.Time     `json:"cancelledDate,omitempty"`
	CancelReason     string         `json:"cancelReason,omitempty"`

	ReversedBy     string     `json:"reversedBy,omitempty"`
	ReversedAt     *time.Time `json:"reversedDate,omitempty"`
	ReversalReason string     `json:"reversalReason,omitempty"`
	// ReversalID links an original to the transaction that offsets it.
	ReversalID string `json:"reversalTransactionId,omitempty"`
	// ReversesID links a reversal back to its original.
	ReversesID string `json:"reversesTransactionId,omitempty"`

	IsReconciled    bool       `json:"isReconciled"`
	BankStatementID string     `json:"bankStatementId,omitempty"`
	ReconciledAt    *time.Time `json:"reconciledDate,omitempty"`
	ReconciledBy    string     `json:"reconciledBy,omitempty"`

	Relations

	IdempotencyKey string    `json:"-"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Version        int64     `json:"version"`
}

// IsBalanced reports the double-entry invariant for the entries.
func (t Transaction) IsBalanced() bool { return t.Entries.IsBalanced() }

// Clone returns a copy that shares no mutable state with t.
func (t Transaction) Clone() Transaction {
	t.Entries = t.Entries.Clone()
	t.SubmittedAt = cloneTime(t.SubmittedAt)
	t.ApprovedAt = cloneTime(t.ApprovedAt)
	t.PostedAt = cloneTime(t.PostedAt)
	t.CancelledAt = cloneTime(t.CancelledAt)
	t.ReversedAt = cloneTime(t.ReversedAt)
	t.ReconciledAt = cloneTime(t.ReconciledAt)
	return t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Filter narrows transaction listings. Zero values mean "any"; From and To
// are inclusive.
type Filter struct {
	InstitutionID string
	Statuses      []Status
	Types         []Type
	AccountID     string
	From          time.Time
	To            time.Time
	Query         string
}

// Match reports whether t satisfies the filter.
func (f Filter) Match(t Transaction) bool {
	switch {
	case f.InstitutionID != "" && t.InstitutionID != f.InstitutionID:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status):
		return false
	case len(f.Types) > 0 && !slices.Contains(f.Types, t.Type):
		return false
	case f.AccountID != "" && !t.Entries.References(f.AccountID):
		return false
	case !f.From.IsZero() && t.Date.Before(f.From):
		return false
	case !f.To.IsZero() && t.Date.After(f.To):
		return false
	}
	return f.Query == "" || MatchesText(t, f.Query)
}

// MatchesText performs a case-insensitive search over descriptive fields and
// entry descriptions.
func MatchesText(t Transaction, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	fields := []string{t.Description, t.Reference, t.Number, t.Category}
	for _, e := range t.Entries {
		fields = append(fields, e.Description)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Compare orders transactions by date then number.
func Compare(a, b Transaction) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return strings.Compare(a.Number, b.Number)
}
