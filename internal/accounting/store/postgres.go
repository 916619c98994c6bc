package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
	"github.com/odyssey-erp/ledger/internal/audit"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists the ledger in PostgreSQL. Units of work run at
// RepeatableRead with row locks and are retried on serialization failures.
type Postgres struct {
	pool  *pgxpool.Pool
	audit *internalShared.AuditLogger
}

// NewPostgres wraps a pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, audit: internalShared.NewAuditLogger(pool)}
}

// Accounts exposes the store as the registry's repository.
func (p *Postgres) Accounts() accounts.Repository { return postgresAccounts{p} }

// Transactions exposes the store as the engine's repository.
func (p *Postgres) Transactions() transactions.Repository { return postgresTransactions{p} }

type postgresAccounts struct{ *Postgres }

func (r postgresAccounts) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error { return fn(ctx, &postgresTx{tx: tx}) })
}

type postgresTransactions struct{ *Postgres }

func (r postgresTransactions) WithTx(ctx context.Context, fn func(context.Context, transactions.TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error { return fn(ctx, &postgresTx{tx: tx}) })
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	return getAccount(ctx, p.pool, id, false)
}

func (p *Postgres) ListAccounts(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	return listAccounts(ctx, p.pool, filter)
}

func (p *Postgres) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	return getTransaction(ctx, p.pool, id, false)
}

func (p *Postgres) ListTransactions(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error) {
	return listTransactions(ctx, p.pool, filter)
}

// Record writes an audit log.
func (p *Postgres) Record(ctx context.Context, log internalShared.AuditLog) error {
	return p.audit.Record(ctx, log)
}

// QueryAuditLogs reads audit logs ordered by time.
func (p *Postgres) QueryAuditLogs(ctx context.Context, q audit.Query) ([]internalShared.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at <= $%d", q.To)
	}
	if q.Actor != "" {
		add("actor = $%d", q.Actor)
	}
	if q.Entity != "" {
		add("entity = $%d", q.Entity)
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	sql := `SELECT actor, action, entity, entity_id, meta, occurred_at FROM audit_logs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Descending {
		sql += " ORDER BY occurred_at DESC, id DESC"
	} else {
		sql += " ORDER BY occurred_at, id"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []internalShared.AuditLog
	for rows.Next() {
		var (
			log  internalShared.AuditLog
			meta []byte
		)
		if err := rows.Scan(&log.Actor, &log.Action, &log.Entity, &log.EntityID, &meta, &log.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &log.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// InstitutionIDs lists institutions owning at least one account.
func (p *Postgres) InstitutionIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT institution_id FROM ledger_accounts ORDER BY institution_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type postgresTx struct {
	tx pgx.Tx
}

const accountColumns = `id, institution_id, code, name, description, type, category, sub_category,
	COALESCE(parent_id, ''), child_ids, level, debit_balance::text, credit_balance::text,
	budget_limit::text, warning_threshold::text, budget_period, is_active, created_by, created_at, updated_at`

func scanAccount(row pgx.Row) (accounts.Account, error) {
	var (
		a              accounts.Account
		debit, credit  string
		limit, warning *string
	)
	err := row.Scan(&a.ID, &a.InstitutionID, &a.Code, &a.Name, &a.Description, &a.Type, &a.Category, &a.SubCategory,
		&a.ParentID, &a.ChildIDs, &a.Level, &debit, &credit, &limit, &warning, &a.BudgetPeriod, &a.IsActive,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return accounts.Account{}, err
	}
	if a.DebitBalance, err = decimal.NewFromString(debit); err != nil {
		return accounts.Account{}, fmt.Errorf("decode debit balance of %s: %w", a.ID, err)
	}
	if a.CreditBalance, err = decimal.NewFromString(credit); err != nil {
		return accounts.Account{}, fmt.Errorf("decode credit balance of %s: %w", a.ID, err)
	}
	if a.BudgetLimit, err = nullDecimal(limit); err != nil {
		return accounts.Account{}, err
	}
	if a.WarningThreshold, err = nullDecimal(warning); err != nil {
		return accounts.Account{}, err
	}
	if a.ChildIDs == nil {
		a.ChildIDs = []string{}
	}
	return a, nil
}

func getAccount(ctx context.Context, q querier, id string, forUpdate bool) (accounts.Account, error) {
	sql := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	a, err := scanAccount(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Account{}, shared.NotFound("account", id)
	}
	return a, err
}

func listAccounts(ctx context.Context, q querier, filter accounts.ListFilter) ([]accounts.Account, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.InstitutionID != "" {
		add("institution_id = $%d", filter.InstitutionID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.ParentID != "" {
		add("parent_id = $%d", filter.ParentID)
	}
	if filter.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	sql := `SELECT ` + accountColumns + ` FROM ledger_accounts`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY institution_id, code"
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]accounts.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *postgresTx) GetAccount(ctx context.Context, id string) (accounts.Account, error) {
	return getAccount(ctx, p.tx, id, false)
}

func (p *postgresTx) GetAccountForUpdate(ctx context.Context, id string) (accounts.Account, error) {
	return getAccount(ctx, p.tx, id, true)
}

func (p *postgresTx) FindAccountByCode(ctx context.Context, institutionID, code string) (accounts.Account, error) {
	a, err := scanAccount(p.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE institution_id = $1 AND upper(code) = upper($2)`, institutionID, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Account{}, shared.NotFound("account code", code)
	}
	return a, err
}

func (p *postgresTx) LockAccountCode(ctx context.Context, institutionID, code string) error {
	return p.advisoryLock(ctx, internalShared.AccountCodeLockKey(institutionID, strings.ToUpper(code)))
}

func (p *postgresTx) advisoryLock(ctx context.Context, key string) error {
	_, err := p.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (p *postgresTx) ListAccounts(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error) {
	return listAccounts(ctx, p.tx, filter)
}

func (p *postgresTx) InsertAccount(ctx context.Context, a accounts.Account) error {
	_, err := p.tx.Exec(ctx, `INSERT INTO ledger_accounts (id, institution_id, code, name, description, type, category, sub_category,
		parent_id, child_ids, level, debit_balance, credit_balance, budget_limit, warning_threshold, budget_period, is_active,
		created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12::numeric, $13::numeric, $14::numeric, $15::numeric, $16, $17, $18, $19, $20)`,
		a.ID, a.InstitutionID, a.Code, a.Name, a.Description, string(a.Type), a.Category, a.SubCategory,
		a.ParentID, childIDs(a.ChildIDs), a.Level, a.DebitBalance.String(), a.CreditBalance.String(),
		nullDecimalText(a.BudgetLimit), nullDecimalText(a.WarningThreshold), string(a.BudgetPeriod), a.IsActive,
		a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return &shared.ValidationError{Field: "accountCode", Reason: a.Code + " already exists", Err: shared.ErrDuplicateCode}
	}
	return err
}

func (p *postgresTx) UpdateAccount(ctx context.Context, a accounts.Account) error {
	tag, err := p.tx.Exec(ctx, `UPDATE ledger_accounts SET name = $2, description = $3, category = $4, sub_category = $5,
		parent_id = NULLIF($6, ''), child_ids = $7, level = $8, budget_limit = $9::numeric, warning_threshold = $10::numeric,
		budget_period = $11, is_active = $12, updated_at = $13
		WHERE id = $1`,
		a.ID, a.Name, a.Description, a.Category, a.SubCategory, a.ParentID, childIDs(a.ChildIDs), a.Level,
		nullDecimalText(a.BudgetLimit), nullDecimalText(a.WarningThreshold), string(a.BudgetPeriod), a.IsActive, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("account", a.ID)
	}
	return nil
}

func (p *postgresTx) UpdateAccountBalances(ctx context.Context, id string, debit, credit decimal.Decimal) error {
	tag, err := p.tx.Exec(ctx, `UPDATE ledger_accounts SET debit_balance = $2::numeric, credit_balance = $3::numeric, updated_at = NOW() WHERE id = $1`,
		id, debit.String(), credit.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("account", id)
	}
	return nil
}

func (p *postgresTx) CountAccountReferences(ctx context.Context, id string) (int, error) {
	var count int
	err := p.tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transaction_accounts WHERE account_id = $1`, id).Scan(&count)
	return count, err
}

func (p *postgresTx) DeleteAccount(ctx context.Context, id string) error {
	tag, err := p.tx.Exec(ctx, `DELETE FROM ledger_accounts WHERE id = $1`, id)
	if db.HasCode(err, db.CodeForeignKeyViolation) {
		return shared.InvalidState("delete account", "it is referenced by transactions")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("account", id)
	}
	return nil
}

const transactionColumns = `id, number, institution_id, type, category, description, reference, transaction_date,
	entries, total_amount::text, status, approval_status, submitted_by, submitted_at, approved_by, approved_at,
	approval_comments, posted_by, posted_at, cancelled_by, cancelled_at, cancel_reason, reversed_by, reversed_at,
	reversal_reason, COALESCE(reversal_id, ''), COALESCE(reverses_id, ''), is_reconciled, bank_statement_id,
	reconciled_at, reconciled_by, student_id, employee_id, vendor_id, invoice_id, receipt_id, idempotency_key,
	created_by, created_at, updated_at, version`

func scanTransaction(row pgx.Row) (transactions.Transaction, error) {
	var (
		t       transactions.Transaction
		entries []byte
		total   string
	)
	err := row.Scan(&t.ID, &t.Number, &t.InstitutionID, &t.Type, &t.Category, &t.Description, &t.Reference, &t.Date,
		&entries, &total, &t.Status, &t.ApprovalStatus, &t.SubmittedBy, &t.SubmittedAt, &t.ApprovedBy, &t.ApprovedAt,
		&t.ApprovalComments, &t.PostedBy, &t.PostedAt, &t.CancelledBy, &t.CancelledAt, &t.CancelReason, &t.ReversedBy, &t.ReversedAt,
		&t.ReversalReason, &t.ReversalID, &t.ReversesID, &t.IsReconciled, &t.BankStatementID,
		&t.ReconciledAt, &t.ReconciledBy, &t.StudentID, &t.EmployeeID, &t.VendorID, &t.InvoiceID, &t.ReceiptID, &t.IdempotencyKey,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	if err != nil {
		return transactions.Transaction{}, err
	}
	if err := json.Unmarshal(entries, &t.Entries); err != nil {
		return transactions.Transaction{}, fmt.Errorf("decode entries of %s: %w", t.ID, err)
	}
	if t.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return transactions.Transaction{}, fmt.Errorf("decode total of %s: %w", t.ID, err)
	}
	return t, nil
}

func getTransaction(ctx context.Context, q querier, id string, forUpdate bool) (transactions.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	t, err := scanTransaction(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return transactions.Transaction{}, shared.NotFound("transaction", id)
	}
	return t, err
}

// listTransactions pushes structured filters into SQL and applies the free
// text query in Go so entry descriptions are searched the same way as in
// the memory store.
func listTransactions(ctx context.Context, q querier, filter transactions.Filter) ([]transactions.Transaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.InstitutionID != "" {
		add("institution_id = $%d", filter.InstitutionID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("type = ANY($%d)", types)
	}
	if filter.AccountID != "" {
		add("entries @> jsonb_build_array(jsonb_build_object('accountId', $%d::text))", filter.AccountID)
	}
	if !filter.From.IsZero() {
		add("transaction_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("transaction_date <= $%d", filter.To)
	}
	sql := `SELECT ` + transactionColumns + ` FROM ledger_transactions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY transaction_date, number"
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]transactions.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		if filter.Query != "" && !transactions.MatchesText(t, filter.Query) {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *postgresTx) GetTransaction(ctx context.Context, id string) (transactions.Transaction, error) {
	return getTransaction(ctx, p.tx, id, false)
}

func (p *postgresTx) GetTransactionForUpdate(ctx context.Context, id string) (transactions.Transaction, error) {
	return getTransaction(ctx, p.tx, id, true)
}

func (p *postgresTx) InsertTransaction(ctx context.Context, t transactions.Transaction) error {
	entries, err := encodeEntries(t.Entries)
	if err != nil {
		return err
	}
	_, err = p.tx.Exec(ctx, `INSERT INTO ledger_transactions (`+insertTransactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22,
			$23, $24, $25, NULLIF($26, ''), NULLIF($27, ''), $28, $29, $30, $31, $32, $33, $34, $35, $36, $37, $38, $39, $40, $41)`,
		transactionArgs(t, entries)...)
	if err != nil {
		return err
	}
	if err := p.syncAccountRefs(ctx, t.ID, t.Entries); err != nil {
		return err
	}
	if t.IdempotencyKey == "" {
		return nil
	}
	_, err = p.tx.Exec(ctx, `INSERT INTO ledger_idempotency_keys (institution_id, key, transaction_id, created_at) VALUES ($1, $2, $3, $4)`,
		t.InstitutionID, t.IdempotencyKey, t.ID, t.CreatedAt)
	return err
}

const insertTransactionColumns = `id, number, institution_id, type, category, description, reference, transaction_date,
	entries, total_amount, status, approval_status, submitted_by, submitted_at, approved_by, approved_at,
	approval_comments, posted_by, posted_at, cancelled_by, cancelled_at, cancel_reason, reversed_by, reversed_at,
	reversal_reason, reversal_id, reverses_id, is_reconciled, bank_statement_id,
	reconciled_at, reconciled_by, student_id, employee_id, vendor_id, invoice_id, receipt_id, idempotency_key,
	created_by, created_at, updated_at, version`

func transactionArgs(t transactions.Transaction, entries []byte) []any {
	return []any{
		t.ID, t.Number, t.InstitutionID, string(t.Type), t.Category, t.Description, t.Reference, t.Date,
		entries, t.TotalAmount.String(), string(t.Status), string(t.ApprovalStatus), t.SubmittedBy, t.SubmittedAt, t.ApprovedBy, t.ApprovedAt,
		t.ApprovalComments, t.PostedBy, t.PostedAt, t.CancelledBy, t.CancelledAt, t.CancelReason, t.ReversedBy, t.ReversedAt,
		t.ReversalReason, t.ReversalID, t.ReversesID, t.IsReconciled, t.BankStatementID,
		t.ReconciledAt, t.ReconciledBy, t.StudentID, t.EmployeeID, t.VendorID, t.InvoiceID, t.ReceiptID, t.IdempotencyKey,
		t.CreatedBy, t.CreatedAt, t.UpdatedAt, t.Version,
	}
}

// UpdateTransaction rewrites every mutable column. The entries of a posted
// transaction never change because the engine refuses edits outside DRAFT.
func (p *postgresTx) UpdateTransaction(ctx context.Context, t transactions.Transaction) error {
	entries, err := encodeEntries(t.Entries)
	if err != nil {
		return err
	}
	tag, err := p.tx.Exec(ctx, `UPDATE ledger_transactions SET
		category = $2, description = $3, reference = $4, transaction_date = $5, entries = $6, total_amount = $7::numeric,
		status = $8, approval_status = $9, submitted_by = $10, submitted_at = $11, approved_by = $12, approved_at = $13,
		approval_comments = $14, posted_by = $15, posted_at = $16, cancelled_by = $17, cancelled_at = $18, cancel_reason = $19,
		reversed_by = $20, reversed_at = $21, reversal_reason = $22, reversal_id = NULLIF($23, ''),
		is_reconciled = $24, bank_statement_id = $25, reconciled_at = $26, reconciled_by = $27,
		student_id = $28, employee_id = $29, vendor_id = $30, invoice_id = $31, receipt_id = $32,
		updated_at = $33, version = $34
		WHERE id = $1`,
		t.ID, t.Category, t.Description, t.Reference, t.Date, entries, t.TotalAmount.String(),
		string(t.Status), string(t.ApprovalStatus), t.SubmittedBy, t.SubmittedAt, t.ApprovedBy, t.ApprovedAt,
		t.ApprovalComments, t.PostedBy, t.PostedAt, t.CancelledBy, t.CancelledAt, t.CancelReason,
		t.ReversedBy, t.ReversedAt, t.ReversalReason, t.ReversalID,
		t.IsReconciled, t.BankStatementID, t.ReconciledAt, t.ReconciledBy,
		t.StudentID, t.EmployeeID, t.VendorID, t.InvoiceID, t.ReceiptID,
		t.UpdatedAt, t.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction", t.ID)
	}
	return p.syncAccountRefs(ctx, t.ID, t.Entries)
}

// syncAccountRefs mirrors the accounts named by entries into
// ledger_transaction_accounts. Its foreign key keeps a referenced account
// from being deleted by a concurrent unit of work.
func (p *postgresTx) syncAccountRefs(ctx context.Context, transactionID string, entries journals.Entries) error {
	ids := entries.AccountIDs()
	if _, err := p.tx.Exec(ctx, `DELETE FROM ledger_transaction_accounts WHERE transaction_id = $1 AND NOT (account_id = ANY($2::text[]))`,
		transactionID, ids); err != nil {
		return err
	}
	_, err := p.tx.Exec(ctx, `INSERT INTO ledger_transaction_accounts (transaction_id, account_id)
		SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, transactionID, ids)
	return err
}

func (p *postgresTx) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := p.tx.Exec(ctx, `DELETE FROM ledger_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction", id)
	}
	return nil
}

func (p *postgresTx) NextTransactionNumber(ctx context.Context, institutionID string, year int) (int64, error) {
	var next int64
	err := p.tx.QueryRow(ctx, `INSERT INTO ledger_transaction_sequences (institution_id, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (institution_id, year) DO UPDATE SET last_value = ledger_transaction_sequences.last_value + 1
		RETURNING last_value`, institutionID, year).Scan(&next)
	return next, err
}

func (p *postgresTx) FindByIdempotencyKey(ctx context.Context, institutionID, key string) (transactions.Transaction, error) {
	if err := p.advisoryLock(ctx, internalShared.IdempotencyLockKey(institutionID, key)); err != nil {
		return transactions.Transaction{}, err
	}
	var id string
	err := p.tx.QueryRow(ctx, `SELECT transaction_id FROM ledger_idempotency_keys WHERE institution_id = $1 AND key = $2`, institutionID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return transactions.Transaction{}, shared.NotFound("idempotency key", key)
	}
	if err != nil {
		return transactions.Transaction{}, err
	}
	return p.GetTransaction(ctx, id)
}

func encodeEntries(entries journals.Entries) ([]byte, error) {
	if entries == nil {
		entries = journals.Entries{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	return data, nil
}

func childIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("decode numeric %q: %w", *s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func nullDecimalText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
