package reports

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

// AccountReader is the registry read surface used by reports.
type AccountReader interface {
	GetAccount(ctx context.Context, id string) (accounts.Account, error)
	ListAccounts(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error)
}

// TransactionReader is the engine read surface used by reports.
type TransactionReader interface {
	ListTransactions(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error)
}

// Service computes read-only aggregations. It never writes.
type Service struct {
	accounts AccountReader
	txns     TransactionReader
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the reporting service. cache may be nil.
func NewService(accountReader AccountReader, txnReader TransactionReader, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{accounts: accountReader, txns: txnReader, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Statistics summarises an institution's transactions dated within [from, to].
func (s *Service) Statistics(ctx context.Context, institutionID string, from, to time.Time) (Statistics, error) {
	if err := checkScope(institutionID, from, to); err != nil {
		return Statistics{}, err
	}
	var stats Statistics
	err := s.cached(ctx, "statistics", institutionID, &stats, func(ctx context.Context) (any, error) {
		txns, err := s.txns.ListTransactions(ctx, transactions.Filter{InstitutionID: institutionID})
		if err != nil {
			return nil, err
		}
		return BuildStatistics(institutionID, txns, from, to), nil
	}, formatDate(from), formatDate(to))
	return stats, err
}

// Unbalanced lists the institution's transactions that do not balance.
func (s *Service) Unbalanced(ctx context.Context, institutionID string) ([]TransactionSummary, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return nil, err
	}
	txns, err := s.txns.ListTransactions(ctx, transactions.Filter{
		InstitutionID: institutionID,
		Statuses:      []transactions.Status{transactions.StatusDraft},
	})
	if err != nil {
		return nil, err
	}
	return UnbalancedOf(txns), nil
}

// PendingApproval lists transactions awaiting approval, oldest first.
func (s *Service) PendingApproval(ctx context.Context, institutionID string) ([]TransactionSummary, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return nil, err
	}
	txns, err := s.txns.ListTransactions(ctx, transactions.Filter{
		InstitutionID: institutionID,
		Statuses:      []transactions.Status{transactions.StatusPending},
	})
	if err != nil {
		return nil, err
	}
	return PendingOf(txns), nil
}

// Search matches query case-insensitively against descriptive fields.
func (s *Service) Search(ctx context.Context, institutionID, query string, statuses []transactions.Status) ([]TransactionSummary, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, shared.Invalid("q", "is required")
	}
	txns, err := s.txns.ListTransactions(ctx, transactions.Filter{InstitutionID: institutionID, Statuses: statuses, Query: query})
	if err != nil {
		return nil, err
	}
	out := make([]TransactionSummary, 0, len(txns))
	for _, t := range txns {
		out = append(out, Summarize(t))
	}
	return out, nil
}

// AccountStatement lists applied lines touching one account.
func (s *Service) AccountStatement(ctx context.Context, accountID string, from, to time.Time) (AccountStatement, error) {
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return AccountStatement{}, shared.Invalid("from", "must not be after to")
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return AccountStatement{}, err
	}
	txns, err := s.txns.ListTransactions(ctx, transactions.Filter{
		InstitutionID: account.InstitutionID,
		AccountID:     account.ID,
		Statuses:      []transactions.Status{transactions.StatusPosted, transactions.StatusReversed},
	})
	if err != nil {
		return AccountStatement{}, err
	}
	return BuildAccountStatement(account, txns, from, to), nil
}

// TrialBalance groups the stored balances of every account.
func (s *Service) TrialBalance(ctx context.Context, institutionID string) (TrialBalance, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	err := s.cached(ctx, "trial-balance", institutionID, &tb, func(ctx context.Context) (any, error) {
		list, err := s.accounts.ListAccounts(ctx, accounts.ListFilter{InstitutionID: institutionID})
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(StoredBalances(list)), nil
	})
	return tb, err
}

// IncomeStatement reports income and expense activity dated within [from, to].
func (s *Service) IncomeStatement(ctx context.Context, institutionID string, from, to time.Time) (IncomeStatement, error) {
	if err := checkScope(institutionID, from, to); err != nil {
		return IncomeStatement{}, err
	}
	var pl IncomeStatement
	err := s.cached(ctx, "income-statement", institutionID, &pl, func(ctx context.Context) (any, error) {
		list, txns, err := s.load(ctx, institutionID)
		if err != nil {
			return nil, err
		}
		return BuildIncomeStatement(Activity(list, txns, from, to)), nil
	}, formatDate(from), formatDate(to))
	return pl, err
}

// BalanceSheet reports the stored balances of balance sheet accounts.
func (s *Service) BalanceSheet(ctx context.Context, institutionID string) (BalanceSheet, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return BalanceSheet{}, err
	}
	var bs BalanceSheet
	err := s.cached(ctx, "balance-sheet", institutionID, &bs, func(ctx context.Context) (any, error) {
		list, err := s.accounts.ListAccounts(ctx, accounts.ListFilter{InstitutionID: institutionID})
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(StoredBalances(list)), nil
	})
	return bs, err
}

// CheckIntegrity replays applied journal lines against stored balances.
// Accounts and transactions are read separately, so a posting that commits
// between the two reads can look like drift; a failed check is repeated and
// only drifts seen both times are reported.
func (s *Service) CheckIntegrity(ctx context.Context, institutionID string) (IntegrityReport, error) {
	if err := checkScope(institutionID, time.Time{}, time.Time{}); err != nil {
		return IntegrityReport{}, err
	}
	first, err := s.checkOnce(ctx, institutionID)
	if err != nil || first.OK {
		return first, err
	}
	second, err := s.checkOnce(ctx, institutionID)
	if err != nil {
		return IntegrityReport{}, err
	}
	seen := make(map[string]bool, len(first.Drifts))
	for _, d := range first.Drifts {
		seen[d.AccountID] = true
	}
	drifts := second.Drifts[:0]
	for _, d := range second.Drifts {
		if seen[d.AccountID] {
			drifts = append(drifts, d)
		}
	}
	second.Drifts = drifts
	second.OK = len(second.Drifts) == 0 && len(second.Unbalanced) == 0
	if !second.OK {
		s.logger.WarnContext(ctx, "ledger integrity check failed",
			slog.String("institution_id", institutionID),
			slog.Int("drifts", len(second.Drifts)),
			slog.Int("unbalanced", len(second.Unbalanced)),
		)
	}
	return second, nil
}

func (s *Service) checkOnce(ctx context.Context, institutionID string) (IntegrityReport, error) {
	list, txns, err := s.load(ctx, institutionID)
	if err != nil {
		return IntegrityReport{}, err
	}
	return CheckBalances(institutionID, list, txns, s.now().UTC()), nil
}

// load reads the institution's accounts and transactions concurrently.
func (s *Service) load(ctx context.Context, institutionID string) ([]accounts.Account, []transactions.Transaction, error) {
	var (
		list []accounts.Account
		txns []transactions.Transaction
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = s.accounts.ListAccounts(ctx, accounts.ListFilter{InstitutionID: institutionID})
		return err
	})
	g.Go(func() error {
		var err error
		txns, err = s.txns.ListTransactions(ctx, transactions.Filter{InstitutionID: institutionID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return list, txns, nil
}

func (s *Service) cached(ctx context.Context, report, institutionID string, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, institutionID, append([]string{report}, parts...)...)
	if err != nil {
		s.logger.WarnContext(ctx, "report cache unavailable", slog.String("report", report), slog.Any("error", err))
		key = strings.Join(append([]string{"ledger:reports", institutionID, report}, parts...), ":")
		return (*Cache)(nil).FetchJSON(ctx, report, key, dest, loader)
	}
	return s.cache.FetchJSON(ctx, report, key, dest, loader)
}

func checkScope(institutionID string, from, to time.Time) error {
	if strings.TrimSpace(institutionID) == "" {
		return shared.Invalid("institutionId", "is required")
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return shared.Invalid("from", "must not be after to")
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
