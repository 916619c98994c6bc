package shared

import "fmt"

// AccountLockKey names the critical section guarding an account's balances.
func AccountLockKey(accountID string) string {
	return "ledger:account:" + accountID
}

// TransactionLockKey names the critical section guarding a transaction's status.
func TransactionLockKey(transactionID string) string {
	return "ledger:transaction:" + transactionID
}

// AccountCodeLockKey serialises account creation per institution and code.
func AccountCodeLockKey(institutionID, code string) string {
	return fmt.Sprintf("ledger:institution:%s:code:%s", institutionID, code)
}

// SequenceLockKey serialises transaction number allocation.
func SequenceLockKey(institutionID string, year int) string {
	return fmt.Sprintf("ledger:institution:%s:sequence:%d", institutionID, year)
}

// IdempotencyLockKey serialises creates sharing an idempotency key.
func IdempotencyLockKey(institutionID, key string) string {
	return fmt.Sprintf("ledger:institution:%s:idempotency:%s", institutionID, key)
}
