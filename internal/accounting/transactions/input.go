package transactions

import (
	"strings"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// CreateInput carries the fields accepted by Create.
type CreateInput struct {
	InstitutionID  string
	Type           Type
	Category       string
	Description    string
	Reference      string
	Date           time.Time
	Entries        journals.Entries
	Relations      Relations
	IdempotencyKey string
	CreatedBy      string
}

func (in CreateInput) normalize() CreateInput {
	in.InstitutionID = strings.TrimSpace(in.InstitutionID)
	in.Type = Type(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	in.Description = strings.TrimSpace(in.Description)
	in.Reference = strings.TrimSpace(in.Reference)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.Entries = normalizeEntries(in.Entries)
	return in
}

// Validate checks metadata and every line. Balance is not required.
func (in CreateInput) Validate() error {
	switch {
	case in.InstitutionID == "":
		return shared.Invalid("institutionId", "is required")
	case in.Description == "":
		return shared.Invalid("description", "is required")
	case !in.Type.Valid():
		return shared.Invalid("transactionType", "unknown type %q", in.Type)
	}
	return in.Entries.Validate()
}

// UpdateInput replaces the editable fields of a draft.
type UpdateInput struct {
	Category    string
	Description string
	Reference   string
	Date        time.Time
	Entries     journals.Entries
	Relations   Relations
	UpdatedBy   string
}

func (in UpdateInput) normalize() UpdateInput {
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	in.Description = strings.TrimSpace(in.Description)
	in.Reference = strings.TrimSpace(in.Reference)
	in.Entries = normalizeEntries(in.Entries)
	return in
}

// Validate checks metadata and every line.
func (in UpdateInput) Validate() error {
	if in.Description == "" {
		return shared.Invalid("description", "is required")
	}
	return in.Entries.Validate()
}

func normalizeEntries(entries journals.Entries) journals.Entries {
	out := entries.Clone()
	for i := range out {
		out[i].AccountID = strings.TrimSpace(out[i].AccountID)
		out[i].Description = strings.TrimSpace(out[i].Description)
	}
	return out
}
