package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

// AuditPort records account changes.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// CacheInvalidator drops cached reports of an institution.
type CacheInvalidator interface {
	Bump(ctx context.Context, institutionID string) error
}

// Service is the account registry. It is the only writer of balance fields.
type Service struct {
	repo   Repository
	audit  AuditPort
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs the registry.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now, newID: uuid.NewString}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache sets the report cache bumped after every committed change.
func (s *Service) WithCache(cache CacheInvalidator) *Service {
	s.cache = cache
	return s
}

// CreateAccount registers an account with zero balances.
func (s *Service) CreateAccount(ctx context.Context, in CreateInput) (Account, error) {
	in = normalizeCreate(in)
	if err := validateCreate(in); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.create(ctx, tx, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account created", slog.String("account_id", created.ID), slog.String("code", created.Code), slog.String("institution_id", created.InstitutionID))
	s.record(ctx, in.CreatedBy, "account.create", created.ID, map[string]any{"code": created.Code, "type": created.Type, "parent_id": created.ParentID})
	s.invalidate(ctx, created.InstitutionID)
	return created, nil
}

func (s *Service) create(ctx context.Context, tx TxRepository, in CreateInput) (Account, error) {
	if err := tx.LockAccountCode(ctx, in.InstitutionID, in.Code); err != nil {
		return Account{}, err
	}
	if _, err := tx.FindAccountByCode(ctx, in.InstitutionID, in.Code); err == nil {
		return Account{}, &shared.ValidationError{Field: "accountCode", Reason: fmt.Sprintf("%s already exists", in.Code), Err: shared.ErrDuplicateCode}
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Account{}, err
	}
	now := s.now().UTC()
	account := Account{
		ID:               s.newID(),
		InstitutionID:    in.InstitutionID,
		Code:             in.Code,
		Name:             in.Name,
		Description:      in.Description,
		Type:             in.Type,
		Category:         in.Category,
		SubCategory:      in.SubCategory,
		ChildIDs:         []string{},
		DebitBalance:     decimal.Zero,
		CreditBalance:    decimal.Zero,
		BudgetLimit:      in.BudgetLimit,
		WarningThreshold: in.WarningThreshold,
		BudgetPeriod:     in.BudgetPeriod,
		IsActive:         true,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.ParentID == "" {
		return account, tx.InsertAccount(ctx, account)
	}
	parent, err := s.resolveParent(ctx, tx, account, in.ParentID)
	if err != nil {
		return Account{}, err
	}
	account.ParentID = parent.ID
	account.Level = parent.Level + 1
	if err := tx.InsertAccount(ctx, account); err != nil {
		return Account{}, err
	}
	parent.ChildIDs = appendID(parent.ChildIDs, account.ID)
	parent.UpdatedAt = now
	return account, tx.UpdateAccount(ctx, parent)
}

// resolveParent locks the prospective parent and rejects unknown parents,
// cross-institution or cross-type links and cycles.
func (s *Service) resolveParent(ctx context.Context, tx TxRepository, child Account, parentID string) (Account, error) {
	if parentID == child.ID {
		return Account{}, shared.Invalid("parentAccountId", "account cannot be its own parent")
	}
	parent, err := tx.GetAccountForUpdate(ctx, parentID)
	if errors.Is(err, shared.ErrNotFound) {
		return Account{}, shared.Invalid("parentAccountId", "%s does not resolve", parentID)
	}
	if err != nil {
		return Account{}, err
	}
	if parent.InstitutionID != child.InstitutionID {
		return Account{}, shared.Invalid("parentAccountId", "parent belongs to another institution")
	}
	if parent.Type != child.Type {
		return Account{}, shared.Invalid("parentAccountId", "parent type %s differs from %s", parent.Type, child.Type)
	}
	cur := parent
	for depth := 0; cur.ParentID != ""; depth++ {
		if cur.ParentID == child.ID {
			return Account{}, shared.Invalid("parentAccountId", "would create a cycle")
		}
		if depth >= maxDepth {
			return Account{}, shared.Invalid("parentAccountId", "hierarchy deeper than %d levels", maxDepth)
		}
		if cur, err = tx.GetAccount(ctx, cur.ParentID); err != nil {
			return Account{}, err
		}
	}
	return parent, nil
}

// GetAccount returns one account.
func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.ListAccounts(ctx, filter)
}

// Hierarchy returns the ordered path from the root down to the account.
func (s *Service) Hierarchy(ctx context.Context, id string) ([]Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	path := []Account{account}
	for cur := account; cur.ParentID != ""; {
		if len(path) > maxDepth {
			return nil, fmt.Errorf("accounting: hierarchy of %s exceeds %d levels", id, maxDepth)
		}
		if cur, err = s.repo.GetAccount(ctx, cur.ParentID); err != nil {
			return nil, err
		}
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path, nil
}

// Subtree returns the account followed by all of its descendants.
func (s *Service) Subtree(ctx context.Context, id string) ([]Account, error) {
	root, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListAccounts(ctx, ListFilter{InstitutionID: root.InstitutionID})
	if err != nil {
		return nil, err
	}
	return append([]Account{root}, Descendants(root.ID, all)...), nil
}

// RollupBalance aggregates the account with its descendants. Aggregates are
// computed on read and never stored.
func (s *Service) RollupBalance(ctx context.Context, id string) (Rollup, error) {
	subtree, err := s.Subtree(ctx, id)
	if err != nil {
		return Rollup{}, err
	}
	return RollupOf(subtree[0], subtree[1:]), nil
}

// MoveAccount re-parents an account and re-levels its subtree. An empty
// parent id turns the account into a root.
func (s *Service) MoveAccount(ctx context.Context, id, newParentID, actor string) (Account, error) {
	newParentID = strings.TrimSpace(newParentID)
	var (
		moved     Account
		oldParent string
		noop      bool
	)
	err := s.withStableParent(ctx, "move account", func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if current.ParentID == newParentID {
			moved, noop = current, true
			return nil
		}
		all, err := tx.ListAccounts(ctx, ListFilter{InstitutionID: current.InstitutionID})
		if err != nil {
			return err
		}
		lockIDs := []string{id, current.ParentID, newParentID}
		for _, d := range Descendants(id, all) {
			lockIDs = append(lockIDs, d.ID)
		}
		slices.Sort(lockIDs)
		locked := make(map[string]Account, len(lockIDs))
		for _, lockID := range slices.Compact(lockIDs) {
			if lockID == "" {
				continue
			}
			a, err := tx.GetAccountForUpdate(ctx, lockID)
			if errors.Is(err, shared.ErrNotFound) && lockID == newParentID {
				return shared.Invalid("parentAccountId", "%s does not resolve", newParentID)
			}
			if err != nil {
				return err
			}
			locked[lockID] = a
		}
		if locked[id].ParentID != current.ParentID {
			return errParentMoved
		}
		for i, a := range all {
			if fresh, ok := locked[a.ID]; ok {
				all[i] = fresh
			}
		}

		account := locked[id]
		oldParent = account.ParentID
		now := s.now().UTC()
		account.Level = 0
		if newParentID != "" {
			parent, err := s.resolveParent(ctx, tx, account, newParentID)
			if err != nil {
				return err
			}
			account.Level = parent.Level + 1
			parent.ChildIDs = appendID(parent.ChildIDs, account.ID)
			parent.UpdatedAt = now
			if err := tx.UpdateAccount(ctx, parent); err != nil {
				return err
			}
		}
		if oldParent != "" {
			prev := locked[oldParent]
			prev.ChildIDs = removeID(prev.ChildIDs, account.ID)
			prev.UpdatedAt = now
			if err := tx.UpdateAccount(ctx, prev); err != nil {
				return err
			}
		}
		account.ParentID = newParentID
		account.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		for _, changed := range relevel(account, all) {
			changed.UpdatedAt = now
			if err := tx.UpdateAccount(ctx, changed); err != nil {
				return err
			}
		}
		moved = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	if !noop {
		s.record(ctx, actor, "account.move", moved.ID, map[string]any{"from_parent_id": oldParent, "to_parent_id": newParentID})
		s.invalidate(ctx, moved.InstitutionID)
	}
	return moved, nil
}

// SetActive toggles whether the account may be selected as a posting target.
func (s *Service) SetActive(ctx context.Context, id string, active bool, actor string) (Account, error) {
	var (
		updated Account
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated = account
		if account.IsActive == active {
			return nil
		}
		updated.IsActive = active
		updated.UpdatedAt = s.now().UTC()
		changed = true
		return tx.UpdateAccount(ctx, updated)
	})
	if err != nil {
		return Account{}, err
	}
	if changed {
		action := "account.deactivate"
		if active {
			action = "account.activate"
		}
		s.record(ctx, actor, action, id, nil)
		s.invalidate(ctx, updated.InstitutionID)
	}
	return updated, nil
}

// UpdateBudget replaces the reporting-only budget controls.
func (s *Service) UpdateBudget(ctx context.Context, id string, in BudgetInput, actor string) (Account, error) {
	if err := validateBudget(in.Limit, in.WarningThreshold, in.Period); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		account.BudgetLimit = in.Limit
		account.WarningThreshold = in.WarningThreshold
		account.BudgetPeriod = in.Period
		account.UpdatedAt = s.now().UTC()
		updated = account
		return tx.UpdateAccount(ctx, account)
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actor, "account.budget", id, map[string]any{
		"limit":   nullString(in.Limit),
		"warning": nullString(in.WarningThreshold),
		"period":  in.Period,
	})
	s.invalidate(ctx, updated.InstitutionID)
	return updated, nil
}

// DeleteAccount removes an account that has no children, no balances and is
// not referenced by any transaction.
func (s *Service) DeleteAccount(ctx context.Context, id, actor string) error {
	var code, institutionID string
	err := s.withStableParent(ctx, "delete account", func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		lockIDs := []string{id}
		if current.ParentID != "" {
			lockIDs = append(lockIDs, current.ParentID)
		}
		slices.Sort(lockIDs)
		locked := make(map[string]Account, len(lockIDs))
		for _, lockID := range lockIDs {
			a, err := tx.GetAccountForUpdate(ctx, lockID)
			if err != nil {
				return err
			}
			locked[lockID] = a
		}
		if locked[id].ParentID != current.ParentID {
			return errParentMoved
		}
		account := locked[id]
		code, institutionID = account.Code, account.InstitutionID
		if len(account.ChildIDs) > 0 {
			return shared.InvalidState("delete account", "it has child accounts")
		}
		refs, err := tx.CountAccountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return shared.InvalidState("delete account", fmt.Sprintf("it is referenced by %d transactions", refs))
		}
		if !account.DebitBalance.IsZero() || !account.CreditBalance.IsZero() {
			return shared.InvalidState("delete account", "it carries balances")
		}
		if account.ParentID != "" {
			parent := locked[account.ParentID]
			parent.ChildIDs = removeID(parent.ChildIDs, id)
			parent.UpdatedAt = s.now().UTC()
			if err := tx.UpdateAccount(ctx, parent); err != nil {
				return err
			}
		}
		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "account.delete", id, map[string]any{"code": code})
	s.invalidate(ctx, institutionID)
	return nil
}

// errParentMoved aborts a unit of work whose account was re-parented between
// the unlocked read and taking the row locks.
var errParentMoved = errors.New("accounts: parent changed before lock")

const maxParentAttempts = 3

// withStableParent runs fn in a unit of work, starting over while fn reports
// errParentMoved.
func (s *Service) withStableParent(ctx context.Context, op string, fn func(context.Context, TxRepository) error) error {
	for attempt := 1; attempt <= maxParentAttempts; attempt++ {
		err := s.repo.WithTx(ctx, fn)
		if !errors.Is(err, errParentMoved) {
			return err
		}
		s.logger.DebugContext(ctx, "account re-parented concurrently, retrying", slog.String("op", op), slog.Int("attempt", attempt))
	}
	return shared.InvalidState(op, "parent changed concurrently")
}

// SeedResult lists the codes created and skipped by a seed run.
type SeedResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// SeedDefaultChart installs the embedded default chart for an institution.
func (s *Service) SeedDefaultChart(ctx context.Context, institutionID, actor string) (SeedResult, error) {
	chart, err := DefaultChart()
	if err != nil {
		return SeedResult{}, err
	}
	return s.SeedChart(ctx, institutionID, actor, chart)
}

// SeedChart creates every missing account of chart in one unit of work.
// Codes that already exist are skipped, so seeding is repeatable.
func (s *Service) SeedChart(ctx context.Context, institutionID, actor string, chart []ChartEntry) (SeedResult, error) {
	institutionID = strings.TrimSpace(institutionID)
	if institutionID == "" {
		return SeedResult{}, shared.Invalid("institutionId", "is required")
	}
	var result SeedResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = SeedResult{}
		idsByCode := make(map[string]string, len(chart))
		for _, entry := range chart {
			existing, err := tx.FindAccountByCode(ctx, institutionID, entry.Code)
			if err == nil {
				idsByCode[entry.Code] = existing.ID
				result.Skipped = append(result.Skipped, entry.Code)
				continue
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			in := normalizeCreate(CreateInput{
				InstitutionID: institutionID,
				Code:          entry.Code,
				Name:          entry.Name,
				Type:          entry.Type,
				Category:      entry.Category,
				SubCategory:   entry.SubCategory,
				ParentID:      idsByCode[entry.Parent],
				CreatedBy:     actor,
			})
			if err := validateCreate(in); err != nil {
				return err
			}
			created, err := s.create(ctx, tx, in)
			if err != nil {
				return fmt.Errorf("seed %s: %w", entry.Code, err)
			}
			idsByCode[entry.Code] = created.ID
			result.Created = append(result.Created, entry.Code)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	if len(result.Created) > 0 {
		s.logger.Info("chart seeded", slog.String("institution_id", institutionID), slog.Int("created", len(result.Created)), slog.Int("skipped", len(result.Skipped)))
		s.record(ctx, actor, "account.seed", institutionID, map[string]any{"created": result.Created})
		s.invalidate(ctx, institutionID)
	}
	return result, nil
}

// BudgetAlerts lists active accounts approaching or exceeding their budget.
// Parents are evaluated on their rolled-up balance.
func (s *Service) BudgetAlerts(ctx context.Context, institutionID string) ([]BudgetAlert, error) {
	all, err := s.repo.ListAccounts(ctx, ListFilter{InstitutionID: institutionID})
	if err != nil {
		return nil, err
	}
	var candidates []Account
	for _, a := range all {
		if !a.IsActive || (!a.BudgetLimit.Valid && !a.WarningThreshold.Valid) {
			continue
		}
		rollup := RollupOf(a, Descendants(a.ID, all))
		a.DebitBalance, a.CreditBalance = rollup.Debit, rollup.Credit
		candidates = append(candidates, a)
	}
	return CollectBudgetAlerts(candidates), nil
}

// ApplyPosting adds the deltas to an account's balances inside the caller's
// unit of work. Only the transaction engine calls it, while posting or
// reversing; it is the single mutation path for balances.
func (s *Service) ApplyPosting(ctx context.Context, tx TxRepository, accountID string, debitDelta, creditDelta decimal.Decimal) (Account, error) {
	if debitDelta.IsNegative() || creditDelta.IsNegative() {
		return Account{}, shared.Invalid("delta", "posting deltas must not be negative")
	}
	account, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, &shared.NotFoundError{Entity: "active account", ID: accountID}
	}
	account.DebitBalance = account.DebitBalance.Add(debitDelta)
	account.CreditBalance = account.CreditBalance.Add(creditDelta)
	if err := tx.UpdateAccountBalances(ctx, accountID, account.DebitBalance, account.CreditBalance); err != nil {
		return Account{}, err
	}
	return account, nil
}

func (s *Service) record(ctx context.Context, actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, internalShared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "account",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record account audit", slog.String("action", action), slog.String("account_id", entityID), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, institutionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, institutionID); err != nil {
		s.logger.Warn("bump report cache", slog.String("institution_id", institutionID), slog.Any("error", err))
	}
}

func normalizeCreate(in CreateInput) CreateInput {
	in.InstitutionID = strings.TrimSpace(in.InstitutionID)
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	in.Category = strings.ToUpper(strings.TrimSpace(in.Category))
	in.SubCategory = strings.ToUpper(strings.TrimSpace(in.SubCategory))
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.BudgetPeriod = BudgetPeriod(strings.ToUpper(strings.TrimSpace(string(in.BudgetPeriod))))
	return in
}

func validateCreate(in CreateInput) error {
	switch {
	case in.InstitutionID == "":
		return shared.Invalid("institutionId", "is required")
	case in.Code == "":
		return shared.Invalid("accountCode", "is required")
	case in.Name == "":
		return shared.Invalid("accountName", "is required")
	case !in.Type.Valid():
		return shared.Invalid("accountType", "unknown type %q", in.Type)
	case in.Category == "":
		return shared.Invalid("category", "is required")
	}
	return validateBudget(in.BudgetLimit, in.WarningThreshold, in.BudgetPeriod)
}

func validateBudget(limit, warning decimal.NullDecimal, period BudgetPeriod) error {
	if limit.Valid && limit.Decimal.IsNegative() {
		return shared.Invalid("budgetLimit", "must not be negative")
	}
	if warning.Valid && warning.Decimal.IsNegative() {
		return shared.Invalid("warningThreshold", "must not be negative")
	}
	if limit.Valid && warning.Valid && warning.Decimal.GreaterThan(limit.Decimal) {
		return shared.Invalid("warningThreshold", "must not exceed the budget limit")
	}
	if !period.Valid() {
		return shared.Invalid("budgetPeriod", "unknown period %q", period)
	}
	return nil
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
