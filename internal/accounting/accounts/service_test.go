package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/accounting/store"
	"github.com/odyssey-erp/ledger/internal/audit"
)

const inst = "school-1"

func newRegistry(t *testing.T) (*accounts.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return accounts.NewService(mem.Accounts(), mem, nil), mem
}

func mustCreate(t *testing.T, svc *accounts.Service, in accounts.CreateInput) accounts.Account {
	t.Helper()
	if in.InstitutionID == "" {
		in.InstitutionID = inst
	}
	if in.Name == "" {
		in.Name = in.Code
	}
	if in.Category == "" {
		in.Category = "GENERAL"
	}
	a, err := svc.CreateAccount(context.Background(), in)
	require.NoError(t, err)
	return a
}

func post(t *testing.T, mem *store.Memory, svc *accounts.Service, id string, debit, credit int64) {
	t.Helper()
	err := mem.Accounts().WithTx(context.Background(), func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := svc.ApplyPosting(ctx, tx, id, decimal.NewFromInt(debit), decimal.NewFromInt(credit))
		return err
	})
	require.NoError(t, err)
}

func TestCreateAccountStartsAtZero(t *testing.T) {
	svc, _ := newRegistry(t)
	a := mustCreate(t, svc, accounts.CreateInput{Code: "A-100", Type: "asset", Category: "cash", CreatedBy: "u1"})

	require.Equal(t, accounts.AccountTypeAsset, a.Type)
	require.Equal(t, "CASH", a.Category)
	require.True(t, a.IsActive)
	require.True(t, a.DebitBalance.IsZero())
	require.True(t, a.CreditBalance.IsZero())
	require.Zero(t, a.Level)
	require.Empty(t, a.ChildIDs)
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _ := newRegistry(t)
	cases := map[string]accounts.CreateInput{
		"missing institution": {Code: "1", Name: "x", Type: accounts.AccountTypeAsset, Category: "CASH"},
		"missing code":        {InstitutionID: inst, Name: "x", Type: accounts.AccountTypeAsset, Category: "CASH"},
		"unknown type":        {InstitutionID: inst, Code: "1", Name: "x", Type: "REVENUE", Category: "CASH"},
		"missing category":    {InstitutionID: inst, Code: "1", Name: "x", Type: accounts.AccountTypeAsset},
		"warning over limit": {InstitutionID: inst, Code: "1", Name: "x", Type: accounts.AccountTypeExpense, Category: "OPS",
			BudgetLimit: decimal.NewNullDecimal(decimal.NewFromInt(10)), WarningThreshold: decimal.NewNullDecimal(decimal.NewFromInt(20))},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateAccount(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	svc, _ := newRegistry(t)
	mustCreate(t, svc, accounts.CreateInput{Code: "A-100", Type: accounts.AccountTypeAsset})

	_, err := svc.CreateAccount(context.Background(), accounts.CreateInput{InstitutionID: inst, Code: "a-100", Name: "dup", Type: accounts.AccountTypeAsset, Category: "CASH"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	other, err := svc.CreateAccount(context.Background(), accounts.CreateInput{InstitutionID: "school-2", Code: "A-100", Name: "ok", Type: accounts.AccountTypeAsset, Category: "CASH"})
	require.NoError(t, err)
	require.Equal(t, "school-2", other.InstitutionID)
}

func TestParentLinksAndHierarchy(t *testing.T) {
	svc, _ := newRegistry(t)
	ctx := context.Background()
	root := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	mid := mustCreate(t, svc, accounts.CreateInput{Code: "1100", Type: accounts.AccountTypeAsset, ParentID: root.ID})
	leaf := mustCreate(t, svc, accounts.CreateInput{Code: "1110", Type: accounts.AccountTypeAsset, ParentID: mid.ID})

	require.Equal(t, 2, leaf.Level)
	gotRoot, err := svc.GetAccount(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, []string{mid.ID}, gotRoot.ChildIDs)

	path, err := svc.Hierarchy(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, []string{root.ID, mid.ID, leaf.ID}, []string{path[0].ID, path[1].ID, path[2].ID})

	subtree, err := svc.Subtree(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, subtree, 3)
	require.Equal(t, root.ID, subtree[0].ID)
}

func TestParentMustMatchTypeAndInstitution(t *testing.T) {
	svc, _ := newRegistry(t)
	asset := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	foreign := mustCreate(t, svc, accounts.CreateInput{InstitutionID: "school-2", Code: "1000", Type: accounts.AccountTypeAsset})

	_, err := svc.CreateAccount(context.Background(), accounts.CreateInput{InstitutionID: inst, Code: "4000", Name: "Fees", Type: accounts.AccountTypeIncome, Category: "TUITION", ParentID: asset.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAccount(context.Background(), accounts.CreateInput{InstitutionID: inst, Code: "1001", Name: "Cash", Type: accounts.AccountTypeAsset, Category: "CASH", ParentID: foreign.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAccount(context.Background(), accounts.CreateInput{InstitutionID: inst, Code: "1002", Name: "Cash", Type: accounts.AccountTypeAsset, Category: "CASH", ParentID: "missing"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMoveAccountRejectsCycleAndRelevels(t *testing.T) {
	svc, _ := newRegistry(t)
	ctx := context.Background()
	a := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	b := mustCreate(t, svc, accounts.CreateInput{Code: "1100", Type: accounts.AccountTypeAsset, ParentID: a.ID})
	c := mustCreate(t, svc, accounts.CreateInput{Code: "1110", Type: accounts.AccountTypeAsset, ParentID: b.ID})
	other := mustCreate(t, svc, accounts.CreateInput{Code: "1200", Type: accounts.AccountTypeAsset})

	_, err := svc.MoveAccount(ctx, a.ID, c.ID, "u1")
	require.ErrorIs(t, err, shared.ErrValidation)

	moved, err := svc.MoveAccount(ctx, b.ID, other.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, other.ID, moved.ParentID)
	require.Equal(t, 1, moved.Level)

	oldParent, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, oldParent.ChildIDs)

	newParent, err := svc.GetAccount(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{b.ID}, newParent.ChildIDs)

	grandchild, err := svc.GetAccount(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, grandchild.Level)

	root, err := svc.MoveAccount(ctx, b.ID, "", "u1")
	require.NoError(t, err)
	require.True(t, root.IsRoot())
	grandchild, err = svc.GetAccount(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, grandchild.Level)
}

func TestApplyPostingAndNetBalance(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	cash := mustCreate(t, svc, accounts.CreateInput{Code: "A-100", Type: accounts.AccountTypeAsset})
	fees := mustCreate(t, svc, accounts.CreateInput{Code: "A-400", Type: accounts.AccountTypeIncome})

	post(t, mem, svc, cash.ID, 500, 0)
	post(t, mem, svc, cash.ID, 0, 120)
	post(t, mem, svc, fees.ID, 0, 500)

	gotCash, err := svc.GetAccount(ctx, cash.ID)
	require.NoError(t, err)
	require.True(t, gotCash.DebitBalance.Equal(decimal.NewFromInt(500)))
	require.True(t, gotCash.CreditBalance.Equal(decimal.NewFromInt(120)))
	require.True(t, gotCash.NetBalance().Equal(decimal.NewFromInt(380)))

	gotFees, err := svc.GetAccount(ctx, fees.ID)
	require.NoError(t, err)
	require.True(t, gotFees.NetBalance().Equal(decimal.NewFromInt(500)))

	err = mem.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := svc.ApplyPosting(ctx, tx, cash.ID, decimal.NewFromInt(-1), decimal.Zero)
		return err
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyPostingRejectsInactiveAccount(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	cash := mustCreate(t, svc, accounts.CreateInput{Code: "A-100", Type: accounts.AccountTypeAsset})
	_, err := svc.SetActive(ctx, cash.ID, false, "u1")
	require.NoError(t, err)

	err = mem.Accounts().WithTx(ctx, func(ctx context.Context, tx accounts.TxRepository) error {
		_, err := svc.ApplyPosting(ctx, tx, cash.ID, decimal.NewFromInt(1), decimal.Zero)
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRollupBalance(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	parent := mustCreate(t, svc, accounts.CreateInput{Code: "5000", Type: accounts.AccountTypeExpense})
	salaries := mustCreate(t, svc, accounts.CreateInput{Code: "5100", Type: accounts.AccountTypeExpense, ParentID: parent.ID})
	utilities := mustCreate(t, svc, accounts.CreateInput{Code: "5200", Type: accounts.AccountTypeExpense, ParentID: parent.ID})

	post(t, mem, svc, salaries.ID, 300, 0)
	post(t, mem, svc, utilities.ID, 70, 20)

	rollup, err := svc.RollupBalance(ctx, parent.ID)
	require.NoError(t, err)
	require.True(t, rollup.Debit.Equal(decimal.NewFromInt(370)))
	require.True(t, rollup.Credit.Equal(decimal.NewFromInt(20)))
	require.True(t, rollup.Net.Equal(decimal.NewFromInt(350)))

	stored, err := svc.GetAccount(ctx, parent.ID)
	require.NoError(t, err)
	require.True(t, stored.DebitBalance.IsZero())
}

func TestBudgetAlerts(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	parent := mustCreate(t, svc, accounts.CreateInput{Code: "5000", Type: accounts.AccountTypeExpense})
	child := mustCreate(t, svc, accounts.CreateInput{Code: "5100", Type: accounts.AccountTypeExpense, ParentID: parent.ID})
	quiet := mustCreate(t, svc, accounts.CreateInput{Code: "5200", Type: accounts.AccountTypeExpense})

	_, err := svc.UpdateBudget(ctx, parent.ID, accounts.BudgetInput{
		Limit:            decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		WarningThreshold: decimal.NewNullDecimal(decimal.NewFromInt(800)),
		Period:           accounts.BudgetPeriodYearly,
	}, "u1")
	require.NoError(t, err)
	_, err = svc.UpdateBudget(ctx, child.ID, accounts.BudgetInput{Limit: decimal.NewNullDecimal(decimal.NewFromInt(500))}, "u1")
	require.NoError(t, err)
	_, err = svc.UpdateBudget(ctx, quiet.ID, accounts.BudgetInput{Limit: decimal.NewNullDecimal(decimal.NewFromInt(500))}, "u1")
	require.NoError(t, err)

	post(t, mem, svc, child.ID, 800, 0)

	alerts, err := svc.BudgetAlerts(ctx, inst)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	byCode := map[string]accounts.BudgetStatus{}
	for _, alert := range alerts {
		byCode[alert.Code] = alert.Status
	}
	require.Equal(t, accounts.BudgetStatusApproaching, byCode["5000"])
	require.Equal(t, accounts.BudgetStatusExceeded, byCode["5100"])
}

func TestDeleteAccountGuards(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	parent := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	child := mustCreate(t, svc, accounts.CreateInput{Code: "1100", Type: accounts.AccountTypeAsset, ParentID: parent.ID})

	require.ErrorIs(t, svc.DeleteAccount(ctx, parent.ID, "u1"), shared.ErrInvalidState)

	post(t, mem, svc, child.ID, 1, 0)
	require.ErrorIs(t, svc.DeleteAccount(ctx, child.ID, "u1"), shared.ErrInvalidState)

	post(t, mem, svc, child.ID, 0, 1)
	// Equal debit and credit still count as balances carried.
	require.ErrorIs(t, svc.DeleteAccount(ctx, child.ID, "u1"), shared.ErrInvalidState)

	spare := mustCreate(t, svc, accounts.CreateInput{Code: "1200", Type: accounts.AccountTypeAsset, ParentID: parent.ID})
	require.NoError(t, svc.DeleteAccount(ctx, spare.ID, "u1"))
	_, err := svc.GetAccount(ctx, spare.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	got, err := svc.GetAccount(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{child.ID}, got.ChildIDs)
}

func TestSeedDefaultChartIsRepeatable(t *testing.T) {
	svc, _ := newRegistry(t)
	ctx := context.Background()

	first, err := svc.SeedDefaultChart(ctx, inst, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, first.Created)
	require.Empty(t, first.Skipped)

	second, err := svc.SeedDefaultChart(ctx, inst, "u1")
	require.NoError(t, err)
	require.Empty(t, second.Created)
	require.Len(t, second.Skipped, len(first.Created))

	list, err := svc.ListAccounts(ctx, accounts.ListFilter{InstitutionID: inst})
	require.NoError(t, err)
	require.Len(t, list, len(first.Created))
	for _, a := range list {
		if a.ParentID == "" {
			continue
		}
		parent, err := svc.GetAccount(ctx, a.ParentID)
		require.NoError(t, err)
		require.Equal(t, parent.Type, a.Type)
		require.Contains(t, parent.ChildIDs, a.ID)
	}
}

func TestAuditTrailRecordsAccountChanges(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	a := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset, CreatedBy: "u1"})
	_, err := svc.SetActive(ctx, a.ID, false, "u2")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, a.ID, false, "u2")
	require.NoError(t, err)

	logs, err := mem.QueryAuditLogs(ctx, audit.Query{Entity: "account", EntityID: a.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "account.create", logs[0].Action)
	require.Equal(t, "account.deactivate", logs[1].Action)
}

type bumpCounter struct {
	bumps map[string]int
}

func (b *bumpCounter) Bump(_ context.Context, institutionID string) error {
	b.bumps[institutionID]++
	return nil
}

func TestAccountChangesBumpReportCache(t *testing.T) {
	mem := store.NewMemory()
	cache := &bumpCounter{bumps: map[string]int{}}
	svc := accounts.NewService(mem.Accounts(), mem, nil).WithCache(cache)
	ctx := context.Background()

	a := mustCreate(t, svc, accounts.CreateInput{Code: "6100", Type: "expense"})
	require.Equal(t, 1, cache.bumps[inst])

	_, err := svc.SetActive(ctx, a.ID, false, "u1")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, a.ID, false, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, cache.bumps[inst], "no-op toggle keeps the cache")

	require.NoError(t, svc.DeleteAccount(ctx, a.ID, "u1"))
	require.Equal(t, 3, cache.bumps[inst])

	_, err = svc.CreateAccount(ctx, accounts.CreateInput{InstitutionID: inst, Type: "expense", Name: "x", Category: "GENERAL"})
	require.Error(t, err)
	require.Equal(t, 3, cache.bumps[inst], "failed change keeps the cache")
}

// reparentParked moves child under to inside a unit of work that holds its
// locks until release closes.
func reparentParked(t *testing.T, mem *store.Memory, child, from, to string) (release chan struct{}, done chan error) {
	t.Helper()
	held := make(chan struct{})
	release, done = make(chan struct{}), make(chan error, 1)
	go func() {
		done <- mem.Accounts().WithTx(context.Background(), func(ctx context.Context, tx accounts.TxRepository) error {
			locked := map[string]accounts.Account{}
			for _, id := range []string{child, from, to} {
				a, err := tx.GetAccountForUpdate(ctx, id)
				if err != nil {
					return err
				}
				locked[id] = a
			}
			close(held)
			<-release
			c, src, dst := locked[child], locked[from], locked[to]
			c.ParentID = to
			src.ChildIDs = nil
			dst.ChildIDs = append(dst.ChildIDs, child)
			for _, a := range []accounts.Account{c, src, dst} {
				if err := tx.UpdateAccount(ctx, a); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	<-held
	return release, done
}

func TestMoveAccountRereadsParentMovedWhileWaiting(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	p1 := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	p2 := mustCreate(t, svc, accounts.CreateInput{Code: "1200", Type: accounts.AccountTypeAsset})
	target := mustCreate(t, svc, accounts.CreateInput{Code: "1300", Type: accounts.AccountTypeAsset})
	x := mustCreate(t, svc, accounts.CreateInput{Code: "1100", Type: accounts.AccountTypeAsset, ParentID: p1.ID})

	release, done := reparentParked(t, mem, x.ID, p1.ID, p2.ID)

	type result struct {
		moved accounts.Account
		err   error
	}
	out := make(chan result, 1)
	go func() {
		moved, err := svc.MoveAccount(ctx, x.ID, target.ID, "u1")
		out <- result{moved, err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, <-done)

	res := <-out
	require.NoError(t, res.err)
	require.Equal(t, target.ID, res.moved.ParentID)

	for id, want := range map[string][]string{p1.ID: nil, p2.ID: nil, target.ID: {x.ID}} {
		got, err := svc.GetAccount(ctx, id)
		require.NoError(t, err)
		require.ElementsMatch(t, want, got.ChildIDs, "children of %s", got.Code)
	}
}

func TestDeleteAccountRereadsParentMovedWhileWaiting(t *testing.T) {
	svc, mem := newRegistry(t)
	ctx := context.Background()
	p1 := mustCreate(t, svc, accounts.CreateInput{Code: "1000", Type: accounts.AccountTypeAsset})
	p2 := mustCreate(t, svc, accounts.CreateInput{Code: "1200", Type: accounts.AccountTypeAsset})
	x := mustCreate(t, svc, accounts.CreateInput{Code: "1100", Type: accounts.AccountTypeAsset, ParentID: p1.ID})

	release, done := reparentParked(t, mem, x.ID, p1.ID, p2.ID)

	deleted := make(chan error, 1)
	go func() { deleted <- svc.DeleteAccount(ctx, x.ID, "u1") }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-deleted)

	got, err := svc.GetAccount(ctx, p2.ID)
	require.NoError(t, err)
	require.Empty(t, got.ChildIDs)
}
