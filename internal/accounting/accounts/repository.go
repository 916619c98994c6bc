package accounts

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reader serves account reads outside a unit of work.
type Reader interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccounts(ctx context.Context, filter ListFilter) ([]Account, error)
}

// Repository is the storage port of the registry.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes account operations inside a unit of work. Writes become
// visible to other callers only when the unit of work commits.
type TxRepository interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	// GetAccountForUpdate locks the account until the unit of work ends.
	GetAccountForUpdate(ctx context.Context, id string) (Account, error)
	FindAccountByCode(ctx context.Context, institutionID, code string) (Account, error)
	// LockAccountCode serialises creation of the same code within an institution.
	LockAccountCode(ctx context.Context, institutionID, code string) error
	ListAccounts(ctx context.Context, filter ListFilter) ([]Account, error)
	InsertAccount(ctx context.Context, account Account) error
	// UpdateAccount persists metadata, hierarchy and budget fields. Balance
	// fields are ignored.
	UpdateAccount(ctx context.Context, account Account) error
	// UpdateAccountBalances overwrites both balance columns.
	UpdateAccountBalances(ctx context.Context, id string, debit, credit decimal.Decimal) error
	// CountAccountReferences counts transactions whose entries touch the account.
	CountAccountReferences(ctx context.Context, id string) (int, error)
	DeleteAccount(ctx context.Context, id string) error
}
