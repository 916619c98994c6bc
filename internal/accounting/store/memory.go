package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
	"github.com/odyssey-erp/ledger/internal/audit"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// Memory keeps the ledger in process memory. Each unit of work stages its
// writes and takes per-key locks that are held until it commits or rolls
// back, so concurrent callers observe the same isolation the Postgres store
// provides.
type Memory struct {
	mu           sync.RWMutex
	accounts     map[string]accounts.Account
	transactions map[string]transactions.Transaction
	sequences    map[string]int64
	idempotency  map[string]string
	audit        []internalShared.AuditLog

	locks        *KeyLock
	balanceFault func(accountID string) error
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]accounts.Account),
		transactions: make(map[string]transactions.Transaction),
		sequences:    make(map[string]int64),
		idempotency:  make(map[string]string),
		locks:        NewKeyLock(),
	}
}

// InjectBalanceFault makes balance writes fail for accounts where fn returns
// an error. It simulates a storage fault in the middle of a posting.
func (m *Memory) InjectBalanceFault(fn func(accountID string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceFault = fn
}

// Accounts exposes the store as the registry's repository.
func (m *Memory) Accounts() accounts.Repository { return memoryAccounts{m} }

// Transactions exposes the store as the engine's repository.
func (m *Memory) Transactions() transactions.Repository { return memoryTransactions{m} }

type memoryAccounts struct{ *Memory }

func (r memoryAccounts) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.withTx(ctx, func(tx *memoryTx) error { return fn(ctx, tx) })
}

type memoryTransactions struct{ *Memory }

func (r memoryTransactions) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return r.withTx(ctx, func(tx *memoryTx) error { return fn(ctx, tx) })
}

func (m *Memory) withTx(ctx context.Context, fn func(*memoryTx) error) error {
	tx := &memoryTx{
		m:            m,
		held:         make(map[string]func()),
		accounts:     make(map[string]*accounts.Account),
		transactions: make(map[string]*transactions.Transaction),
		sequences:    make(map[string]int64),
		idempotency:  make(map[string]string),
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// GetAccount returns the committed account.
func (m *Memory) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return a.Clone(), nil
}

// ListAccounts returns committed accounts ordered by code.
func (m *Memory) ListAccounts(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	m.mu.RLock()
	all := make([]accounts.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		all = append(all, a.Clone())
	}
	m.mu.RUnlock()
	return filterAccounts(all, filter), nil
}

// GetTransaction returns the committed transaction.
func (m *Memory) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return transactions.Transaction{}, shared.NotFound("transaction", id)
	}
	return t.Clone(), nil
}

// ListTransactions returns committed transactions ordered by date then number.
func (m *Memory) ListTransactions(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error) {
	m.mu.RLock()
	all := make([]transactions.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		all = append(all, t.Clone())
	}
	m.mu.RUnlock()
	return filterTransactions(all, filter), nil
}

// Record appends an audit log.
func (m *Memory) Record(ctx context.Context, log internalShared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, log)
	return nil
}

// QueryAuditLogs returns audit logs in insertion order, or reversed when
// q.Descending is set.
func (m *Memory) QueryAuditLogs(ctx context.Context, q audit.Query) ([]internalShared.AuditLog, error) {
	m.mu.RLock()
	var out []internalShared.AuditLog
	for _, log := range m.audit {
		if q.Match(log) {
			out = append(out, log)
		}
	}
	m.mu.RUnlock()
	if q.Descending {
		slices.Reverse(out)
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// InstitutionIDs lists institutions owning at least one account.
func (m *Memory) InstitutionIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0)
	for _, a := range m.accounts {
		ids = append(ids, a.InstitutionID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Ping satisfies the health check contract.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// memoryTx is one unit of work. A nil staged pointer marks a deletion.
type memoryTx struct {
	m            *Memory
	held         map[string]func()
	accounts     map[string]*accounts.Account
	transactions map[string]*transactions.Transaction
	sequences    map[string]int64
	idempotency  map[string]string
}

func (tx *memoryTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	release, err := tx.m.locks.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	tx.held[key] = release
	return nil
}

func (tx *memoryTx) release() {
	for _, release := range tx.held {
		release()
	}
	tx.held = nil
}

func (tx *memoryTx) commit() {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range tx.accounts {
		if a == nil {
			delete(m.accounts, id)
			continue
		}
		m.accounts[id] = a.Clone()
	}
	for id, t := range tx.transactions {
		if t == nil {
			delete(m.transactions, id)
			continue
		}
		m.transactions[id] = t.Clone()
	}
	for key, seq := range tx.sequences {
		m.sequences[key] = seq
	}
	for key, id := range tx.idempotency {
		m.idempotency[key] = id
	}
	for key, id := range m.idempotency {
		if _, ok := m.transactions[id]; !ok {
			delete(m.idempotency, key)
		}
	}
}

func (tx *memoryTx) account(id string) (accounts.Account, bool) {
	if staged, ok := tx.accounts[id]; ok {
		if staged == nil {
			return accounts.Account{}, false
		}
		return staged.Clone(), true
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	a, ok := tx.m.accounts[id]
	return a.Clone(), ok
}

func (tx *memoryTx) allAccounts() []accounts.Account {
	merged := make(map[string]accounts.Account)
	tx.m.mu.RLock()
	for id, a := range tx.m.accounts {
		merged[id] = a
	}
	tx.m.mu.RUnlock()
	for id, a := range tx.accounts {
		if a == nil {
			delete(merged, id)
			continue
		}
		merged[id] = *a
	}
	out := make([]accounts.Account, 0, len(merged))
	for _, a := range merged {
		out = append(out, a.Clone())
	}
	return out
}

func (tx *memoryTx) stageAccount(a accounts.Account) {
	clone := a.Clone()
	tx.accounts[a.ID] = &clone
}

func (tx *memoryTx) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	a, ok := tx.account(id)
	if !ok {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return a, nil
}

func (tx *memoryTx) GetAccountForUpdate(ctx context.Context, id string) (accounts.Account, error) {
	if err := tx.lock(ctx, internalShared.AccountLockKey(id)); err != nil {
		return accounts.Account{}, err
	}
	return tx.GetAccount(ctx, id)
}

func (tx *memoryTx) FindAccountByCode(ctx context.Context, institutionID, code string) (accounts.Account, error) {
	for _, a := range tx.allAccounts() {
		if a.InstitutionID == institutionID && strings.EqualFold(a.Code, code) {
			return a, nil
		}
	}
	return accounts.Account{}, shared.NotFound("account code", code)
}

func (tx *memoryTx) LockAccountCode(ctx context.Context, institutionID, code string) error {
	return tx.lock(ctx, internalShared.AccountCodeLockKey(institutionID, strings.ToUpper(code)))
}

func (tx *memoryTx) ListAccounts(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	return filterAccounts(tx.allAccounts(), filter), nil
}

func (tx *memoryTx) InsertAccount(ctx context.Context, account accounts.Account) error {
	if err := tx.lock(ctx, internalShared.AccountLockKey(account.ID)); err != nil {
		return err
	}
	if _, ok := tx.account(account.ID); ok {
		return fmt.Errorf("insert account: id %s already exists", account.ID)
	}
	if _, err := tx.FindAccountByCode(ctx, account.InstitutionID, account.Code); err == nil {
		return &shared.ValidationError{Field: "accountCode", Reason: account.Code + " already exists", Err: shared.ErrDuplicateCode}
	}
	tx.stageAccount(account)
	return nil
}

func (tx *memoryTx) UpdateAccount(ctx context.Context, account accounts.Account) error {
	if err := tx.lock(ctx, internalShared.AccountLockKey(account.ID)); err != nil {
		return err
	}
	current, ok := tx.account(account.ID)
	if !ok {
		return shared.NotFound("account", account.ID)
	}
	account.DebitBalance = current.DebitBalance
	account.CreditBalance = current.CreditBalance
	tx.stageAccount(account)
	return nil
}

func (tx *memoryTx) UpdateAccountBalances(ctx context.Context, id string, debit, credit decimal.Decimal) error {
	if err := tx.lock(ctx, internalShared.AccountLockKey(id)); err != nil {
		return err
	}
	tx.m.mu.RLock()
	fault := tx.m.balanceFault
	tx.m.mu.RUnlock()
	if fault != nil {
		if err := fault(id); err != nil {
			return err
		}
	}
	if debit.IsNegative() || credit.IsNegative() {
		return fmt.Errorf("update balances of %s: balances must not be negative", id)
	}
	current, ok := tx.account(id)
	if !ok {
		return shared.NotFound("account", id)
	}
	current.DebitBalance = debit
	current.CreditBalance = credit
	tx.stageAccount(current)
	return nil
}

func (tx *memoryTx) CountAccountReferences(ctx context.Context, id string) (int, error) {
	count := 0
	for _, t := range tx.allTransactions() {
		if t.Entries.References(id) {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) DeleteAccount(ctx context.Context, id string) error {
	if err := tx.lock(ctx, internalShared.AccountLockKey(id)); err != nil {
		return err
	}
	if _, ok := tx.account(id); !ok {
		return shared.NotFound("account", id)
	}
	tx.accounts[id] = nil
	return nil
}

func (tx *memoryTx) transaction(id string) (transactions.Transaction, bool) {
	if staged, ok := tx.transactions[id]; ok {
		if staged == nil {
			return transactions.Transaction{}, false
		}
		return staged.Clone(), true
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	t, ok := tx.m.transactions[id]
	return t.Clone(), ok
}

func (tx *memoryTx) allTransactions() []transactions.Transaction {
	merged := make(map[string]transactions.Transaction)
	tx.m.mu.RLock()
	for id, t := range tx.m.transactions {
		merged[id] = t
	}
	tx.m.mu.RUnlock()
	for id, t := range tx.transactions {
		if t == nil {
			delete(merged, id)
			continue
		}
		merged[id] = *t
	}
	out := make([]transactions.Transaction, 0, len(merged))
	for _, t := range merged {
		out = append(out, t.Clone())
	}
	return out
}

func (tx *memoryTx) stageTransaction(t transactions.Transaction) {
	clone := t.Clone()
	tx.transactions[t.ID] = &clone
}

func (tx *memoryTx) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	t, ok := tx.transaction(id)
	if !ok {
		return transactions.Transaction{}, shared.NotFound("transaction", id)
	}
	return t, nil
}

func (tx *memoryTx) GetTransactionForUpdate(ctx context.Context, id string) (transactions.Transaction, error) {
	if err := tx.lock(ctx, internalShared.TransactionLockKey(id)); err != nil {
		return transactions.Transaction{}, err
	}
	return tx.GetTransaction(ctx, id)
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn transactions.Transaction) error {
	if err := tx.lock(ctx, internalShared.TransactionLockKey(txn.ID)); err != nil {
		return err
	}
	if _, ok := tx.transaction(txn.ID); ok {
		return fmt.Errorf("insert transaction: id %s already exists", txn.ID)
	}
	if txn.IdempotencyKey != "" {
		tx.idempotency[idempotencyKey(txn.InstitutionID, txn.IdempotencyKey)] = txn.ID
	}
	tx.stageTransaction(txn)
	return nil
}

func (tx *memoryTx) UpdateTransaction(ctx context.Context, txn transactions.Transaction) error {
	if err := tx.lock(ctx, internalShared.TransactionLockKey(txn.ID)); err != nil {
		return err
	}
	if _, ok := tx.transaction(txn.ID); !ok {
		return shared.NotFound("transaction", txn.ID)
	}
	tx.stageTransaction(txn)
	return nil
}

func (tx *memoryTx) DeleteTransaction(ctx context.Context, id string) error {
	if err := tx.lock(ctx, internalShared.TransactionLockKey(id)); err != nil {
		return err
	}
	if _, ok := tx.transaction(id); !ok {
		return shared.NotFound("transaction", id)
	}
	tx.transactions[id] = nil
	return nil
}

func (tx *memoryTx) NextTransactionNumber(ctx context.Context, institutionID string, year int) (int64, error) {
	if err := tx.lock(ctx, internalShared.SequenceLockKey(institutionID, year)); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s|%d", institutionID, year)
	current, ok := tx.sequences[key]
	if !ok {
		tx.m.mu.RLock()
		current = tx.m.sequences[key]
		tx.m.mu.RUnlock()
	}
	current++
	tx.sequences[key] = current
	return current, nil
}

func (tx *memoryTx) FindByIdempotencyKey(ctx context.Context, institutionID, key string) (transactions.Transaction, error) {
	if err := tx.lock(ctx, internalShared.IdempotencyLockKey(institutionID, key)); err != nil {
		return transactions.Transaction{}, err
	}
	mapKey := idempotencyKey(institutionID, key)
	id, ok := tx.idempotency[mapKey]
	if !ok {
		tx.m.mu.RLock()
		id, ok = tx.m.idempotency[mapKey]
		tx.m.mu.RUnlock()
	}
	if !ok {
		return transactions.Transaction{}, shared.NotFound("idempotency key", key)
	}
	return tx.GetTransaction(ctx, id)
}

func idempotencyKey(institutionID, key string) string {
	return institutionID + "|" + key
}

func filterAccounts(all []accounts.Account, filter accounts.ListFilter) []accounts.Account {
	out := make([]accounts.Account, 0, len(all))
	for _, a := range all {
		if filter.Match(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b accounts.Account) int {
		if c := strings.Compare(a.InstitutionID, b.InstitutionID); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

func filterTransactions(all []transactions.Transaction, filter transactions.Filter) []transactions.Transaction {
	out := make([]transactions.Transaction, 0, len(all))
	for _, t := range all {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, transactions.Compare)
	return out
}
