package reports_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/accounting/store"
	"github.com/odyssey-erp/ledger/internal/accounting/transactions"
)

const inst = "school-1"

var march = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type counter struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCounter() *counter {
	return &counter{hits: map[string]int{}, misses: map[string]int{}}
}

func (c *counter) CacheHit(report string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[report]++
}

func (c *counter) CacheMiss(report string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses[report]++
}

type fixture struct {
	mem      *store.Memory
	registry *accounts.Service
	engine   *transactions.Service
	reports  *reports.Service
	cache    *reports.Cache
	observer *counter
	byCode   map[string]accounts.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := store.NewMemory()
	observer := newCounter()
	cache := reports.NewCache(client, time.Minute).WithObserver(observer)
	registry := accounts.NewService(mem.Accounts(), mem, nil)
	engine := transactions.NewService(transactions.Deps{
		Repo:     mem.Transactions(),
		Accounts: registry,
		Audit:    mem,
		Cache:    cache,
	})
	svc := reports.NewService(registry, mem, cache, nil)
	svc.WithNow(func() time.Time { return march.AddDate(0, 0, 20) })

	f := &fixture{mem: mem, registry: registry, engine: engine, reports: svc, cache: cache, observer: observer, byCode: map[string]accounts.Account{}}
	for _, def := range []struct {
		code string
		typ  accounts.AccountType
	}{
		{"1100", accounts.AccountTypeAsset},
		{"2100", accounts.AccountTypeLiability},
		{"3100", accounts.AccountTypeEquity},
		{"4100", accounts.AccountTypeIncome},
		{"5100", accounts.AccountTypeExpense},
	} {
		a, err := registry.CreateAccount(context.Background(), accounts.CreateInput{
			InstitutionID: inst,
			Code:          def.code,
			Name:          def.code,
			Type:          def.typ,
			Category:      "GENERAL",
		})
		require.NoError(t, err)
		f.byCode[def.code] = a
	}
	return f
}

func (f *fixture) entries(debitCode, creditCode, amount string) journals.Entries {
	v := decimal.RequireFromString(amount)
	return journals.Entries{
		{AccountID: f.byCode[debitCode].ID, Debit: v, Credit: decimal.Zero},
		{AccountID: f.byCode[creditCode].ID, Debit: decimal.Zero, Credit: v},
	}
}

func (f *fixture) draft(t *testing.T, typ transactions.Type, date time.Time, entries journals.Entries) transactions.Transaction {
	t.Helper()
	txn, err := f.engine.Create(context.Background(), transactions.CreateInput{
		InstitutionID: inst,
		Type:          typ,
		Description:   "report fixture",
		Date:          date,
		Entries:       entries,
		CreatedBy:     "clerk",
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) post(t *testing.T, typ transactions.Type, date time.Time, entries journals.Entries) transactions.Transaction {
	t.Helper()
	ctx := context.Background()
	txn := f.draft(t, typ, date, entries)
	_, err := f.engine.Submit(ctx, txn.ID, "clerk")
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, txn.ID, "bursar", "")
	require.NoError(t, err)
	posting, err := f.engine.Post(ctx, txn.ID, "bursar")
	require.NoError(t, err)
	return posting.Transaction
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestStatementsReflectPostedActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, transactions.TypeOpeningBalance, march, f.entries("1100", "3100", "1000"))
	f.post(t, transactions.TypeIncome, march.AddDate(0, 0, 4), f.entries("1100", "4100", "600"))
	f.post(t, transactions.TypeExpense, march.AddDate(0, 0, 6), f.entries("5100", "1100", "250"))
	f.post(t, transactions.TypeTransfer, march.AddDate(0, 0, 8), f.entries("1100", "2100", "300"))
	f.draft(t, transactions.TypeIncome, march.AddDate(0, 0, 9), f.entries("1100", "4100", "9999"))

	tb, err := f.reports.TrialBalance(ctx, inst)
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	requireAmount(t, "2150", tb.TotalDebit)
	require.Len(t, tb.Groups, 5)

	pl, err := f.reports.IncomeStatement(ctx, inst, march, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	requireAmount(t, "600", pl.Income.Total)
	requireAmount(t, "250", pl.Expense.Total)
	requireAmount(t, "350", pl.NetIncome)

	bs, err := f.reports.BalanceSheet(ctx, inst)
	require.NoError(t, err)
	requireAmount(t, "1650", bs.Assets.Total)
	requireAmount(t, "350", bs.CurrentSurplus)
	require.True(t, bs.Balanced)

	stats, err := f.reports.Statistics(ctx, inst, march, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, 5, stats.Total)
	require.Equal(t, 4, stats.ByStatus[transactions.StatusPosted])
	requireAmount(t, "600", stats.PostedIncome)
	requireAmount(t, "250", stats.PostedExpense)

	statement, err := f.reports.AccountStatement(ctx, f.byCode["1100"].ID, march.AddDate(0, 0, 2), time.Time{})
	require.NoError(t, err)
	requireAmount(t, "1000", statement.Opening)
	require.Len(t, statement.Lines, 3)
	requireAmount(t, "1650", statement.Closing)
}

func TestIncomeStatementNetsReversals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.post(t, transactions.TypeIncome, march.AddDate(0, 0, 2), f.entries("1100", "4100", "400"))
	_, err := f.engine.Reverse(ctx, txn.ID, "entered twice", "bursar")
	require.NoError(t, err)

	pl, err := f.reports.IncomeStatement(ctx, inst, time.Time{}, time.Time{})
	require.NoError(t, err)
	requireAmount(t, "0", pl.Income.Total)

	report, err := f.reports.CheckIntegrity(ctx, inst)
	require.NoError(t, err)
	require.True(t, report.OK, "%+v", report)
	require.Equal(t, 2, report.Transactions)
}

func TestReportCacheInvalidatedByPosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, transactions.TypeIncome, march, f.entries("1100", "4100", "100"))

	first, err := f.reports.TrialBalance(ctx, inst)
	require.NoError(t, err)
	second, err := f.reports.TrialBalance(ctx, inst)
	require.NoError(t, err)
	requireAmount(t, first.TotalDebit.String(), second.TotalDebit)
	require.Equal(t, 1, f.observer.misses["trial-balance"])
	require.Equal(t, 1, f.observer.hits["trial-balance"])

	f.post(t, transactions.TypeIncome, march, f.entries("1100", "4100", "50"))
	third, err := f.reports.TrialBalance(ctx, inst)
	require.NoError(t, err)
	requireAmount(t, "150", third.TotalDebit)
	require.Equal(t, 2, f.observer.misses["trial-balance"])
}

func TestCheckIntegrityReportsPersistentDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, transactions.TypeIncome, march, f.entries("1100", "4100", "100"))

	// A posted row whose lines never reached the balances.
	err := f.mem.Transactions().WithTx(ctx, func(ctx context.Context, tx transactions.TxRepository) error {
		return tx.InsertTransaction(ctx, transactions.Transaction{
			ID:            "ghost",
			Number:        "TXN-2026-999999",
			InstitutionID: inst,
			Type:          transactions.TypeIncome,
			Status:        transactions.StatusPosted,
			Date:          march,
			Entries:       f.entries("1100", "4100", "25"),
			TotalAmount:   decimal.RequireFromString("25"),
		})
	})
	require.NoError(t, err)

	report, err := f.reports.CheckIntegrity(ctx, inst)
	require.NoError(t, err)
	require.False(t, report.OK)
	require.Len(t, report.Drifts, 2)
	for _, d := range report.Drifts {
		switch d.AccountID {
		case f.byCode["1100"].ID:
			requireAmount(t, "100", d.StoredDebit)
			requireAmount(t, "125", d.ExpectedDebit)
		case f.byCode["4100"].ID:
			requireAmount(t, "125", d.ExpectedCredit)
		default:
			t.Fatalf("unexpected drift on %s", d.Code)
		}
	}
}

func TestPendingAndUnbalancedLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.draft(t, transactions.TypeIncome, march, f.entries("1100", "4100", "70"))
	_, err := f.engine.Submit(ctx, pending.ID, "clerk")
	require.NoError(t, err)
	lopsided := f.draft(t, transactions.TypeIncome, march, journals.Entries{
		{AccountID: f.byCode["1100"].ID, Debit: decimal.RequireFromString("10"), Credit: decimal.Zero},
	})

	list, err := f.reports.PendingApproval(ctx, inst)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, pending.ID, list[0].TransactionID)

	unbalanced, err := f.reports.Unbalanced(ctx, inst)
	require.NoError(t, err)
	require.Len(t, unbalanced, 1)
	require.Equal(t, lopsided.ID, unbalanced[0].TransactionID)

	found, err := f.reports.Search(ctx, inst, "FIXTURE", nil)
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestReportScopeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reports.TrialBalance(ctx, " ")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.reports.Statistics(ctx, inst, march.AddDate(0, 1, 0), march)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.reports.Search(ctx, inst, "  ", nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.reports.AccountStatement(ctx, "missing", time.Time{}, time.Time{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCacheWithoutRedisStillBuilds(t *testing.T) {
	cache := reports.NewCache(nil, 0)
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, inst, "trial-balance")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:school-1:trial-balance:v0", key)

	calls := 0
	var out map[string]int
	for i := 0; i < 2; i++ {
		err = cache.FetchJSON(ctx, "trial-balance", key, &out, func(context.Context) (any, error) {
			calls++
			return map[string]int{"n": calls}, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	require.Equal(t, 2, out["n"])
	require.NoError(t, cache.Bump(ctx, inst))
}

func TestCacheBumpRetiresOlderKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := reports.NewCache(client, time.Minute)
	ctx := context.Background()

	ver, err := cache.Version(ctx, inst)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	calls := 0
	load := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}
	fetch := func() map[string]int {
		key, err := cache.BuildKey(ctx, inst, "trial-balance")
		require.NoError(t, err)
		var out map[string]int
		require.NoError(t, cache.FetchJSON(ctx, "trial-balance", key, &out, load))
		return out
	}

	require.Equal(t, 1, fetch()["n"])
	require.Equal(t, 1, fetch()["n"])
	require.NoError(t, cache.Bump(ctx, inst))
	require.Equal(t, 2, fetch()["n"])

	key, err := cache.BuildKey(ctx, inst, "trial-balance")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:school-1:trial-balance:v2", key)
}

func TestCacheSharedBuildOutlivesCancelledCaller(t *testing.T) {
	cache := reports.NewCache(nil, 0)
	started := make(chan struct{})
	unblock := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
		once  sync.Once
	)
	load := func(ctx context.Context) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-unblock:
			return map[string]int{"n": 1}, nil
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		var out map[string]int
		first <- cache.FetchJSON(firstCtx, "trial-balance", "k", &out, load)
	}()
	<-started

	type result struct {
		out map[string]int
		err error
	}
	second := make(chan result, 1)
	go func() {
		var out map[string]int
		err := cache.FetchJSON(context.Background(), "trial-balance", "k", &out, load)
		second <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-first, context.Canceled)
	close(unblock)

	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, 1, res.out["n"])
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}
