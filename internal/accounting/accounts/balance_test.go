package accounts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestNetBalanceFollowsNormalSide(t *testing.T) {
	cases := []struct {
		typ  AccountType
		want string
	}{
		{AccountTypeAsset, "70"},
		{AccountTypeExpense, "70"},
		{AccountTypeLiability, "-70"},
		{AccountTypeEquity, "-70"},
		{AccountTypeIncome, "-70"},
	}
	for _, tc := range cases {
		got := NetBalance(tc.typ, d("100"), d("30"))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("%s: expected %s got %s", tc.typ, tc.want, got)
		}
	}
}

func TestBudgetThresholds(t *testing.T) {
	a := Account{
		Type:             AccountTypeExpense,
		BudgetLimit:      decimal.NewNullDecimal(d("1000")),
		WarningThreshold: decimal.NewNullDecimal(d("800")),
	}
	cases := []struct {
		debit string
		want  BudgetStatus
	}{
		{"0", BudgetStatusWithin},
		{"799.99", BudgetStatusWithin},
		{"800", BudgetStatusApproaching},
		{"1000", BudgetStatusApproaching},
		{"1000.01", BudgetStatusExceeded},
	}
	for _, tc := range cases {
		a.DebitBalance = d(tc.debit)
		require.Equal(t, tc.want, Budget(a), "debit %s", tc.debit)
	}
	require.Equal(t, BudgetStatusNone, Budget(Account{Type: AccountTypeExpense}))
}

func TestParseChartRejectsForwardParent(t *testing.T) {
	_, err := ParseChart([]byte(`accounts:
  - {code: "1100", name: Cash, type: ASSET, category: CASH, parent: "1000"}
  - {code: "1000", name: Assets, type: ASSET, category: CASH}
`))
	require.Error(t, err)

	_, err = ParseChart([]byte(`accounts:
  - {code: "1000", name: Assets, type: ASSETS, category: CASH}
`))
	require.Error(t, err)
}

func TestDefaultChartParses(t *testing.T) {
	chart, err := DefaultChart()
	require.NoError(t, err)
	require.NotEmpty(t, chart)
	types := map[string]AccountType{}
	for _, entry := range chart {
		types[entry.Code] = entry.Type
		if entry.Parent != "" {
			require.Equal(t, types[entry.Parent], entry.Type, "chart entry %s", entry.Code)
		}
	}
}

func TestLabels(t *testing.T) {
	require.Equal(t, "Current Assets", CategoryLabel("CURRENT_ASSETS"))
	require.Equal(t, "Asset", TypeLabel(AccountTypeAsset))
}
