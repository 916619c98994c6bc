package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrEmptyTransaction indicates a transaction without journal entries.
	ErrEmptyTransaction = errors.New("accounting: transaction has no journal entries")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal entries must balance")
	// ErrInvalidState indicates the current status does not permit the operation.
	ErrInvalidState = errors.New("accounting: invalid status transition")
	// ErrNotFound indicates an unknown account or transaction.
	ErrNotFound = errors.New("accounting: not found")
	// ErrPostingFailed indicates balances could not be applied; nothing was committed.
	ErrPostingFailed = errors.New("accounting: posting failed")
	// ErrDuplicateCode indicates the account code is already used in the institution.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "accounting: " + e.Reason
	}
	return fmt.Sprintf("accounting: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// EmptyTransaction reports a transaction with zero entries.
func EmptyTransaction() error {
	return &ValidationError{Field: "entries", Reason: "at least one journal entry is required", Err: ErrEmptyTransaction}
}

// UnbalancedError carries the mismatching totals.
type UnbalancedError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("accounting: journal entries must balance (debit %s, credit %s)", e.Debit.String(), e.Credit.String())
}

func (e *UnbalancedError) Is(target error) bool { return target == ErrUnbalanced }

// InvalidStateError reports an operation requested from a status that forbids it.
type InvalidStateError struct {
	Op      string
	Current string
	Allowed []string
}

func (e *InvalidStateError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("accounting: cannot %s while %s", e.Op, e.Current)
	}
	return fmt.Sprintf("accounting: cannot %s while %s (requires %s)", e.Op, e.Current, strings.Join(e.Allowed, " or "))
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InvalidState builds an InvalidStateError.
func InvalidState(op, current string, allowed ...string) error {
	return &InvalidStateError{Op: op, Current: current, Allowed: allowed}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("accounting: %s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// PostingError wraps the failure that aborted a posting unit of work.
type PostingError struct {
	TransactionID string
	AccountID     string
	Err           error
}

func (e *PostingError) Error() string {
	if e.AccountID == "" {
		return fmt.Sprintf("accounting: posting %s failed: %v", e.TransactionID, e.Err)
	}
	return fmt.Sprintf("accounting: posting %s failed on account %s: %v", e.TransactionID, e.AccountID, e.Err)
}

func (e *PostingError) Unwrap() []error { return []error{ErrPostingFailed, e.Err} }
