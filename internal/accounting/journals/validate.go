package journals

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Validate checks a single line: an account is named, no amount is negative
// and exactly one side is non-zero.
func (e Entry) Validate(idx int) error {
	field := lineField(idx)
	if strings.TrimSpace(e.AccountID) == "" {
		return shared.Invalid(field, "account is required")
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return shared.Invalid(field, "amounts must not be negative")
	}
	debit, credit := e.Debit.IsPositive(), e.Credit.IsPositive()
	switch {
	case debit && credit:
		return shared.Invalid(field, "cannot be both debit and credit")
	case !debit && !credit:
		return shared.Invalid(field, "requires a debit or a credit amount")
	}
	return nil
}

// Validate checks every line. It does not require balance, so drafts may be
// incomplete while being edited.
func (es Entries) Validate() error {
	if len(es) == 0 {
		return shared.EmptyTransaction()
	}
	for idx, e := range es {
		if err := e.Validate(idx); err != nil {
			return err
		}
	}
	return nil
}

// CheckBalanced returns nil only for a non-empty list whose totals are equal.
func (es Entries) CheckBalanced() error {
	if len(es) == 0 {
		return shared.EmptyTransaction()
	}
	debit, credit := es.Totals()
	if !debit.Equal(credit) {
		return &shared.UnbalancedError{Debit: debit, Credit: credit}
	}
	return nil
}

func lineField(idx int) string {
	return fmt.Sprintf("entries[%d]", idx)
}
