package transactions

import "github.com/odyssey-erp/ledger/internal/accounting/accounts"

var statusLabels = map[Status]string{
	StatusDraft:     "Draft",
	StatusPending:   "Pending Approval",
	StatusApproved:  "Approved",
	StatusPosted:    "Posted",
	StatusCancelled: "Cancelled",
	StatusReversed:  "Reversed",
}

// StatusLabel returns the display name of a status.
func StatusLabel(s Status) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return accounts.Humanize(string(s))
}

// TypeLabel returns the display name of a transaction type.
func TypeLabel(t Type) string {
	return accounts.Humanize(string(t))
}

// ApprovalLabel returns the display name of an approval status.
func ApprovalLabel(a ApprovalStatus) string {
	return accounts.Humanize(string(a))
}
