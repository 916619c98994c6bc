package transactions

import (
	"context"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
)

// Reader serves transaction reads outside a unit of work.
type Reader interface {
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// ListTransactions returns matches ordered by date then number.
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error)
}

// Repository is the storage port of the engine.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes one unit of work. Nothing is visible to other callers
// until it commits, and an error discards every staged write.
type TxRepository interface {
	accounts.TxRepository

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// GetTransactionForUpdate locks the transaction until the unit of work ends.
	GetTransactionForUpdate(ctx context.Context, id string) (Transaction, error)
	InsertTransaction(ctx context.Context, txn Transaction) error
	UpdateTransaction(ctx context.Context, txn Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	// NextTransactionNumber allocates the next sequence value per institution and year.
	NextTransactionNumber(ctx context.Context, institutionID string, year int) (int64, error)
	// FindByIdempotencyKey locks the key for the rest of the unit of work and
	// returns the transaction created under it, if any.
	FindByIdempotencyKey(ctx context.Context, institutionID, key string) (Transaction, error)
}
