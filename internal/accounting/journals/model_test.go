package journals

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEntryValidate(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		ok    bool
	}{
		{"debit only", Entry{AccountID: "a", Debit: d("10"), Credit: decimal.Zero}, true},
		{"credit only", Entry{AccountID: "a", Debit: decimal.Zero, Credit: d("0.01")}, true},
		{"both zero", Entry{AccountID: "a", Debit: decimal.Zero, Credit: decimal.Zero}, false},
		{"both set", Entry{AccountID: "a", Debit: d("1"), Credit: d("1")}, false},
		{"negative", Entry{AccountID: "a", Debit: d("-5"), Credit: decimal.Zero}, false},
		{"missing account", Entry{Debit: d("5"), Credit: decimal.Zero}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate(0)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestEntriesEmptyIsNeverBalanced(t *testing.T) {
	var es Entries
	require.False(t, es.IsBalanced())
	err := es.CheckBalanced()
	require.ErrorIs(t, err, shared.ErrEmptyTransaction)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.False(t, errors.Is(err, shared.ErrUnbalanced))
	require.ErrorIs(t, es.Validate(), shared.ErrEmptyTransaction)
}

func TestEntriesBalanceUsesExactDecimals(t *testing.T) {
	es := Entries{
		{AccountID: "cash", Debit: d("0.1"), Credit: decimal.Zero},
		{AccountID: "cash", Debit: d("0.2"), Credit: decimal.Zero},
		{AccountID: "income", Debit: decimal.Zero, Credit: d("0.3")},
	}
	require.True(t, es.IsBalanced())
	require.NoError(t, es.CheckBalanced())

	es[2].Credit = d("0.3000001")
	var unbalanced *shared.UnbalancedError
	require.ErrorAs(t, es.CheckBalanced(), &unbalanced)
	require.True(t, unbalanced.Debit.Equal(d("0.3")))
}

func TestEntriesReverseSwapsSides(t *testing.T) {
	es := Entries{
		{AccountID: "cash", Debit: d("500"), Credit: decimal.Zero, Description: "fee"},
		{AccountID: "income", Debit: decimal.Zero, Credit: d("500")},
	}
	rev := es.Reverse()
	require.Len(t, rev, 2)
	for i := range es {
		require.Equal(t, es[i].AccountID, rev[i].AccountID)
		require.True(t, rev[i].Debit.Equal(es[i].Credit))
		require.True(t, rev[i].Credit.Equal(es[i].Debit))
	}
	require.Equal(t, SideCredit, rev[0].Side())
	require.True(t, es[0].Debit.Equal(d("500")), "original must not change")
}

func TestEntriesDeltasAggregatePerAccount(t *testing.T) {
	es := Entries{
		{AccountID: "b", Debit: decimal.Zero, Credit: d("30")},
		{AccountID: "a", Debit: d("10"), Credit: decimal.Zero},
		{AccountID: "a", Debit: d("20"), Credit: decimal.Zero},
	}
	require.Equal(t, []string{"a", "b"}, es.AccountIDs())
	deltas := es.Deltas()
	require.Len(t, deltas, 2)
	require.Equal(t, "a", deltas[0].AccountID)
	require.True(t, deltas[0].Debit.Equal(d("30")))
	require.True(t, deltas[1].Credit.Equal(d("30")))
	require.True(t, es.Total().Equal(d("30")))
	require.True(t, es.References("b"))
	require.False(t, es.References("c"))
}
