package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories. The type fixes the normal balance side.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists every type in statement order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeIncome,
	AccountTypeExpense,
}

// Valid reports whether t is a known type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase the balance.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// BudgetPeriod is the window a budget limit applies to.
type BudgetPeriod string

const (
	BudgetPeriodMonthly   BudgetPeriod = "MONTHLY"
	BudgetPeriodQuarterly BudgetPeriod = "QUARTERLY"
	BudgetPeriodYearly    BudgetPeriod = "YEARLY"
)

// Valid reports whether p is empty or a known period.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case "", BudgetPeriodMonthly, BudgetPeriodQuarterly, BudgetPeriodYearly:
		return true
	}
	return false
}

// Account models a chart of accounts node.
type Account struct {
	ID               string              `json:"accountId"`
	InstitutionID    string              `json:"institutionId"`
	Code             string              `json:"accountCode"`
	Name             string              `json:"accountName"`
	Description      string              `json:"description,omitempty"`
	Type             AccountType         `json:"accountType"`
	Category         string              `json:"category"`
	SubCategory      string              `json:"subCategory,omitempty"`
	ParentID         string              `json:"parentAccountId,omitempty"`
	ChildIDs         []string            `json:"childAccountIds"`
	Level            int                 `json:"level"`
	DebitBalance     decimal.Decimal     `json:"debitBalance"`
	CreditBalance    decimal.Decimal     `json:"creditBalance"`
	BudgetLimit      decimal.NullDecimal `json:"budgetLimit"`
	WarningThreshold decimal.NullDecimal `json:"warningThreshold"`
	BudgetPeriod     BudgetPeriod        `json:"budgetPeriod,omitempty"`
	IsActive         bool                `json:"isActive"`
	CreatedBy        string              `json:"createdBy,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// IsRoot reports whether the account has no parent.
func (a Account) IsRoot() bool { return a.ParentID == "" }

// Clone returns a deep copy.
func (a Account) Clone() Account {
	if a.ChildIDs != nil {
		a.ChildIDs = append([]string(nil), a.ChildIDs...)
	}
	return a
}

// CreateInput carries the fields accepted by CreateAccount.
type CreateInput struct {
	InstitutionID    string
	Code             string
	Name             string
	Description      string
	Type             AccountType
	Category         string
	SubCategory      string
	ParentID         string
	BudgetLimit      decimal.NullDecimal
	WarningThreshold decimal.NullDecimal
	BudgetPeriod     BudgetPeriod
	CreatedBy        string
}

// BudgetInput updates the reporting-only budget controls.
type BudgetInput struct {
	Limit            decimal.NullDecimal
	WarningThreshold decimal.NullDecimal
	Period           BudgetPeriod
}

// ListFilter narrows ListAccounts. Zero values mean "any".
type ListFilter struct {
	InstitutionID string
	Type          AccountType
	Category      string
	ParentID      string
	RootsOnly     bool
	ActiveOnly    bool
}

// Match reports whether a satisfies the filter.
func (f ListFilter) Match(a Account) bool {
	switch {
	case f.InstitutionID != "" && a.InstitutionID != f.InstitutionID:
		return false
	case f.Type != "" && a.Type != f.Type:
		return false
	case f.Category != "" && a.Category != f.Category:
		return false
	case f.ParentID != "" && a.ParentID != f.ParentID:
		return false
	case f.RootsOnly && !a.IsRoot():
		return false
	case f.ActiveOnly && !a.IsActive:
		return false
	}
	return true
}
