package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// AccountPoster applies balance deltas inside a unit of work.
type AccountPoster interface {
	ApplyPosting(ctx context.Context, tx accounts.TxRepository, accountID string, debitDelta, creditDelta decimal.Decimal) (accounts.Account, error)
}

// AuditPort records lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// EventPublisher emits domain events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// CacheInvalidator drops derived report data for an institution.
type CacheInvalidator interface {
	Bump(ctx context.Context, institutionID string) error
}

// MetricsRecorder observes lifecycle outcomes.
type MetricsRecorder interface {
	ObserveTransition(op, from, to string)
	ObservePostingFailure(op string)
}

// RelationKind names an external record type referenced by a transaction.
type RelationKind string

const (
	RelationStudent  RelationKind = "student"
	RelationEmployee RelationKind = "employee"
	RelationVendor   RelationKind = "vendor"
	RelationInvoice  RelationKind = "invoice"
	RelationReceipt  RelationKind = "receipt"
)

// RelationResolver checks that referenced external records exist.
type RelationResolver interface {
	Exists(ctx context.Context, kind RelationKind, id string) (bool, error)
}

// Deps groups the engine collaborators. Only Repo and Accounts are required.
type Deps struct {
	Repo      Repository
	Accounts  AccountPoster
	Audit     AuditPort
	Events    EventPublisher
	Cache     CacheInvalidator
	Metrics   MetricsRecorder
	Relations RelationResolver
	Logger    *slog.Logger
}

// Service is the transaction engine.
type Service struct {
	repo      Repository
	poster    AccountPoster
	audit     AuditPort
	events    EventPublisher
	cache     CacheInvalidator
	metrics   MetricsRecorder
	relations RelationResolver
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires the engine.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:      deps.Repo,
		poster:    deps.Accounts,
		audit:     deps.Audit,
		events:    deps.Events,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		relations: deps.Relations,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns one transaction.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// List returns transactions matching filter ordered by date then number.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// Create validates the lines and stores a DRAFT. Balance is not required yet.
// A create carrying an idempotency key already used in the institution
// returns the transaction created the first time.
func (s *Service) Create(ctx context.Context, in CreateInput) (Transaction, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := s.checkRelations(ctx, in.Relations); err != nil {
		return Transaction{}, err
	}
	var (
		created Transaction
		replay  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" {
			existing, err := tx.FindByIdempotencyKey(ctx, in.InstitutionID, in.IdempotencyKey)
			if err == nil {
				created, replay = existing, true
				return nil
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		now := s.now().UTC()
		date := in.Date
		if date.IsZero() {
			date = now
		}
		number, err := s.nextNumber(ctx, tx, in.InstitutionID, date)
		if err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, in.InstitutionID, in.Entries); err != nil {
			return err
		}
		created = Transaction{
			ID:             s.newID(),
			Number:         number,
			InstitutionID:  in.InstitutionID,
			Type:           in.Type,
			Category:       in.Category,
			Description:    in.Description,
			Reference:      in.Reference,
			Date:           date.UTC(),
			Entries:        in.Entries.Clone(),
			TotalAmount:    in.Entries.Total(),
			Status:         StatusDraft,
			ApprovalStatus: ApprovalNotRequired,
			Relations:      in.Relations,
			IdempotencyKey: in.IdempotencyKey,
			CreatedBy:      in.CreatedBy,
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
		}
		return tx.InsertTransaction(ctx, created)
	})
	if err != nil {
		return Transaction{}, err
	}
	if !replay {
		s.afterTransition(ctx, "create", "", created, in.CreatedBy, nil)
	}
	return created, nil
}

// UpdateDraft replaces the editable fields of a DRAFT.
func (s *Service) UpdateDraft(ctx context.Context, id string, in UpdateInput) (Transaction, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := s.checkRelations(ctx, in.Relations); err != nil {
		return Transaction{}, err
	}
	return s.transition(ctx, id, "update", in.UpdatedBy, func(ctx context.Context, tx TxRepository, txn *Transaction) (bool, error) {
		if txn.Status != StatusDraft {
			return false, shared.InvalidState("update", string(txn.Status), string(StatusDraft))
		}
		if err := checkAccounts(ctx, tx, txn.InstitutionID, in.Entries); err != nil {
			return false, err
		}
		txn.Description = in.Description
		txn.Reference = in.Reference
		txn.Category = in.Category
		if !in.Date.IsZero() {
			txn.Date = in.Date.UTC()
		}
		txn.Entries = in.Entries.Clone()
		txn.TotalAmount = in.Entries.Total()
		txn.Relations = in.Relations
		return true, nil
	})
}

// Submit moves a balanced DRAFT to PENDING.
func (s *Service) Submit(ctx context.Context, id, submittedBy string) (Transaction, error) {
	return s.transition(ctx, id, "submit", submittedBy, func(_ context.Context, _ TxRepository, txn *Transaction) (bool, error) {
		switch txn.Status {
		case StatusPending:
			return false, nil
		case StatusDraft:
		default:
			return false, shared.InvalidState("submit", string(txn.Status), string(StatusDraft))
		}
		if err := txn.Entries.Validate(); err != nil {
			return false, err
		}
		if err := txn.Entries.CheckBalanced(); err != nil {
			return false, err
		}
		now := s.now().UTC()
		txn.Status = StatusPending
		txn.ApprovalStatus = ApprovalPending
		txn.SubmittedBy = submittedBy
		txn.SubmittedAt = &now
		return true, nil
	})
}

// Approve moves a PENDING transaction to APPROVED after re-checking balance.
func (s *Service) Approve(ctx context.Context, id, approvedBy, comments string) (Transaction, error) {
	return s.transition(ctx, id, "approve", approvedBy, func(_ context.Context, _ TxRepository, txn *Transaction) (bool, error) {
		switch txn.Status {
		case StatusApproved:
			return false, nil
		case StatusPending:
		default:
			return false, shared.InvalidState("approve", string(txn.Status), string(StatusPending))
		}
		if err := txn.Entries.CheckBalanced(); err != nil {
			return false, err
		}
		now := s.now().UTC()
		txn.Status = StatusApproved
		txn.ApprovalStatus = ApprovalApproved
		txn.ApprovedBy = approvedBy
		txn.ApprovedAt = &now
		txn.ApprovalComments = strings.TrimSpace(comments)
		return true, nil
	})
}

// Reject sends a PENDING transaction back to DRAFT for editing.
func (s *Service) Reject(ctx context.Context, id, rejectedBy, comments string) (Transaction, error) {
	return s.transition(ctx, id, "reject", rejectedBy, func(_ context.Context, _ TxRepository, txn *Transaction) (bool, error) {
		switch {
		case txn.Status == StatusDraft && txn.ApprovalStatus == ApprovalRejected:
			return false, nil
		case txn.Status != StatusPending:
			return false, shared.InvalidState("reject", string(txn.Status), string(StatusPending))
		}
		txn.Status = StatusDraft
		txn.ApprovalStatus = ApprovalRejected
		txn.ApprovalComments = strings.TrimSpace(comments)
		return true, nil
	})
}

// Posting is the outcome of Post: the transaction and the accounts it touched.
type Posting struct {
	Transaction Transaction        `json:"transaction"`
	Accounts    []accounts.Account `json:"accounts"`
}

// Post applies an APPROVED transaction to account balances. Every delta is
// applied in the same unit of work; if any fails nothing is committed and
// the transaction stays APPROVED.
func (s *Service) Post(ctx context.Context, id, postedBy string) (Posting, error) {
	var touched []accounts.Account
	txn, err := s.transition(ctx, id, "post", postedBy, func(ctx context.Context, tx TxRepository, txn *Transaction) (bool, error) {
		switch txn.Status {
		case StatusPosted:
			var err error
			touched, err = loadAccounts(ctx, tx, txn.Entries)
			return false, err
		case StatusApproved:
		default:
			return false, shared.InvalidState("post", string(txn.Status), string(StatusApproved))
		}
		if err := txn.Entries.CheckBalanced(); err != nil {
			return false, err
		}
		applied, err := s.applyEntries(ctx, tx, txn.ID, txn.Entries)
		if err != nil {
			return false, err
		}
		touched = applied
		now := s.now().UTC()
		txn.Status = StatusPosted
		txn.PostedBy = postedBy
		txn.PostedAt = &now
		return true, nil
	})
	if err != nil {
		return Posting{}, err
	}
	return Posting{Transaction: txn, Accounts: touched}, nil
}

// Reverse offsets a POSTED transaction with a new, fully posted ADJUSTMENT
// whose lines swap debit and credit. The original is only marked REVERSED
// and linked to the reversal. Reversing again returns the same reversal.
func (s *Service) Reverse(ctx context.Context, id, reason, reversedBy string) (Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Transaction{}, shared.Invalid("reason", "is required")
	}
	var (
		original Transaction
		reversal Transaction
		from     Status
		replay   bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		original, err = tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = original.Status
		switch original.Status {
		case StatusReversed:
			reversal, err = tx.GetTransaction(ctx, original.ReversalID)
			replay = true
			return err
		case StatusPosted:
		default:
			return shared.InvalidState("reverse", string(original.Status), string(StatusPosted))
		}
		now := s.now().UTC()
		number, err := s.nextNumber(ctx, tx, original.InstitutionID, now)
		if err != nil {
			return err
		}
		entries := original.Entries.Reverse()
		if err := entries.CheckBalanced(); err != nil {
			return err
		}
		reversal = Transaction{
			ID:               s.newID(),
			Number:           number,
			InstitutionID:    original.InstitutionID,
			Type:             TypeAdjustment,
			Category:         ReversalCategory,
			Description:      fmt.Sprintf("Reversal of %s: %s", original.Number, reason),
			Reference:        original.Number,
			Date:             now,
			Entries:          entries,
			TotalAmount:      entries.Total(),
			Status:           StatusPosted,
			ApprovalStatus:   ApprovalApproved,
			SubmittedBy:      reversedBy,
			SubmittedAt:      &now,
			ApprovedBy:       reversedBy,
			ApprovedAt:       &now,
			ApprovalComments: reason,
			PostedBy:         reversedBy,
			PostedAt:         &now,
			ReversesID:       original.ID,
			Relations:        original.Relations,
			CreatedBy:        reversedBy,
			CreatedAt:        now,
			UpdatedAt:        now,
			Version:          1,
		}
		if err := tx.InsertTransaction(ctx, reversal); err != nil {
			return err
		}
		if _, err := s.applyEntries(ctx, tx, reversal.ID, reversal.Entries); err != nil {
			return err
		}
		original.Status = StatusReversed
		original.ReversalID = reversal.ID
		original.ReversedBy = reversedBy
		original.ReversedAt = &now
		original.ReversalReason = reason
		original.UpdatedAt = now
		original.Version++
		return tx.UpdateTransaction(ctx, original)
	})
	if err != nil {
		if errors.Is(err, shared.ErrPostingFailed) {
			s.postingFailed(ctx, "reverse", id, err)
		}
		return Transaction{}, err
	}
	if !replay {
		s.afterTransition(ctx, "reverse", from, original, reversedBy, map[string]any{"reversal_id": reversal.ID, "reason": reason})
		s.afterTransition(ctx, "post", "", reversal, reversedBy, map[string]any{"reverses_id": original.ID})
	}
	return reversal, nil
}

// Cancel abandons a DRAFT or PENDING transaction. Nothing was posted, so
// balances are untouched.
func (s *Service) Cancel(ctx context.Context, id, cancelledBy, reason string) (Transaction, error) {
	return s.transition(ctx, id, "cancel", cancelledBy, func(_ context.Context, _ TxRepository, txn *Transaction) (bool, error) {
		switch txn.Status {
		case StatusCancelled:
			return false, nil
		case StatusDraft, StatusPending:
		default:
			return false, shared.InvalidState("cancel", string(txn.Status), string(StatusDraft), string(StatusPending))
		}
		now := s.now().UTC()
		txn.Status = StatusCancelled
		txn.CancelledBy = cancelledBy
		txn.CancelledAt = &now
		txn.CancelReason = strings.TrimSpace(reason)
		return true, nil
	})
}

// Reconcile marks a POSTED transaction as matched to a bank statement.
func (s *Service) Reconcile(ctx context.Context, id, bankStatementID, reconciledBy string) (Transaction, error) {
	bankStatementID = strings.TrimSpace(bankStatementID)
	if bankStatementID == "" {
		return Transaction{}, shared.Invalid("bankStatementId", "is required")
	}
	return s.transition(ctx, id, "reconcile", reconciledBy, func(_ context.Context, _ TxRepository, txn *Transaction) (bool, error) {
		if txn.Status != StatusPosted {
			return false, shared.InvalidState("reconcile", string(txn.Status), string(StatusPosted))
		}
		if txn.IsReconciled {
			if txn.BankStatementID == bankStatementID {
				return false, nil
			}
			return false, shared.InvalidState("reconcile", "reconciled against "+txn.BankStatementID)
		}
		now := s.now().UTC()
		txn.IsReconciled = true
		txn.BankStatementID = bankStatementID
		txn.ReconciledBy = reconciledBy
		txn.ReconciledAt = &now
		return true, nil
	})
}

// Delete removes a DRAFT. Anything that reached PENDING or later is history.
func (s *Service) Delete(ctx context.Context, id, deletedBy string) error {
	var deleted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != StatusDraft {
			return shared.InvalidState("delete", string(txn.Status), string(StatusDraft))
		}
		deleted = txn
		return tx.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return err
	}
	s.afterTransition(ctx, "delete", StatusDraft, deleted, deletedBy, nil)
	return nil
}

type mutation func(ctx context.Context, tx TxRepository, txn *Transaction) (changed bool, err error)

// transition locks the transaction, lets fn mutate it and persists the result
// when fn reports a change. A false change means the transaction already sits
// in the requested state and the call is a no-op.
func (s *Service) transition(ctx context.Context, id, op, actor string, fn mutation) (Transaction, error) {
	var (
		result  Transaction
		from    Status
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, err := tx.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = txn.Status
		changed, err = fn(ctx, tx, &txn)
		if err != nil {
			return err
		}
		result = txn
		if !changed {
			return nil
		}
		result.UpdatedAt = s.now().UTC()
		result.Version++
		return tx.UpdateTransaction(ctx, result)
	})
	if err != nil {
		if errors.Is(err, shared.ErrPostingFailed) {
			s.postingFailed(ctx, op, id, err)
		}
		return Transaction{}, err
	}
	if changed {
		s.afterTransition(ctx, op, from, result, actor, nil)
	}
	return result, nil
}

// applyEntries posts one aggregated delta per account in ascending account id
// order, which is also the lock order.
func (s *Service) applyEntries(ctx context.Context, tx TxRepository, transactionID string, entries journals.Entries) ([]accounts.Account, error) {
	deltas := entries.Deltas()
	applied := make([]accounts.Account, 0, len(deltas))
	for _, delta := range deltas {
		account, err := s.poster.ApplyPosting(ctx, tx, delta.AccountID, delta.Debit, delta.Credit)
		if err != nil {
			return nil, &shared.PostingError{TransactionID: transactionID, AccountID: delta.AccountID, Err: err}
		}
		applied = append(applied, account)
	}
	return applied, nil
}

func (s *Service) nextNumber(ctx context.Context, tx TxRepository, institutionID string, date time.Time) (string, error) {
	year := date.UTC().Year()
	seq, err := tx.NextTransactionNumber(ctx, institutionID, year)
	if err != nil {
		return "", err
	}
	return FormatNumber(year, seq), nil
}

// FormatNumber renders a human-readable transaction number.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("TXN-%d-%06d", year, seq)
}

func (s *Service) checkRelations(ctx context.Context, rel Relations) error {
	if s.relations == nil {
		return nil
	}
	refs := []struct {
		kind  RelationKind
		field string
		id    string
	}{
		{RelationStudent, "studentId", rel.StudentID},
		{RelationEmployee, "employeeId", rel.EmployeeID},
		{RelationVendor, "vendorId", rel.VendorID},
		{RelationInvoice, "invoiceId", rel.InvoiceID},
		{RelationReceipt, "receiptId", rel.ReceiptID},
	}
	for _, ref := range refs {
		if ref.id == "" {
			continue
		}
		ok, err := s.relations.Exists(ctx, ref.kind, ref.id)
		if err != nil {
			return fmt.Errorf("resolve %s %s: %w", ref.kind, ref.id, err)
		}
		if !ok {
			return shared.Invalid(ref.field, "%s %s does not exist", ref.kind, ref.id)
		}
	}
	return nil
}

// checkAccounts requires every referenced account to exist, be active and
// belong to the institution. The accounts stay locked until the unit of work
// ends, which holds off DeleteAccount. Callers take the sequence lock first.
func checkAccounts(ctx context.Context, tx TxRepository, institutionID string, entries journals.Entries) error {
	for _, id := range entries.AccountIDs() {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Invalid("entries", "account %s does not resolve", id)
		}
		if err != nil {
			return err
		}
		if !account.IsActive {
			return shared.Invalid("entries", "account %s is inactive", account.Code)
		}
		if account.InstitutionID != institutionID {
			return shared.Invalid("entries", "account %s belongs to another institution", account.Code)
		}
	}
	return nil
}

func loadAccounts(ctx context.Context, tx TxRepository, entries journals.Entries) ([]accounts.Account, error) {
	ids := entries.AccountIDs()
	out := make([]accounts.Account, 0, len(ids))
	for _, id := range ids {
		account, err := tx.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

func (s *Service) postingFailed(ctx context.Context, op, id string, err error) {
	var perr *shared.PostingError
	account := ""
	if errors.As(err, &perr) {
		account = perr.AccountID
	}
	s.logger.ErrorContext(ctx, "posting failed; transaction left unchanged", slog.String("op", op), slog.String("transaction_id", id), slog.String("account_id", account), slog.Any("error", err))
	if s.metrics != nil {
		s.metrics.ObservePostingFailure(op)
	}
}

// afterTransition runs the side effects of a committed change. Failures are
// logged and never undo the change.
func (s *Service) afterTransition(ctx context.Context, op string, from Status, txn Transaction, actor string, meta map[string]any) {
	s.logger.InfoContext(ctx, "transaction "+op,
		slog.String("transaction_id", txn.ID),
		slog.String("number", txn.Number),
		slog.String("status", string(txn.Status)),
		slog.String("actor", actor),
	)
	if s.metrics != nil {
		s.metrics.ObserveTransition(op, string(from), string(txn.Status))
	}
	if s.audit != nil {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["number"] = txn.Number
		meta["from"] = string(from)
		meta["to"] = string(txn.Status)
		err := s.audit.Record(ctx, internalShared.AuditLog{
			Actor:    actor,
			Action:   "transaction." + op,
			Entity:   "transaction",
			EntityID: txn.ID,
			Meta:     meta,
			At:       s.now().UTC(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "record transaction audit", slog.String("transaction_id", txn.ID), slog.Any("error", err))
		}
	}
	if s.events != nil {
		event := NewEvent(op, txn, actor, s.now().UTC())
		if err := s.events.Publish(ctx, event.RoutingKey(), event); err != nil {
			s.logger.WarnContext(ctx, "publish transaction event", slog.String("transaction_id", txn.ID), slog.String("event", event.Type), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx, txn.InstitutionID); err != nil {
			s.logger.WarnContext(ctx, "invalidate report cache", slog.String("institution_id", txn.InstitutionID), slog.Any("error", err))
		}
	}
}
