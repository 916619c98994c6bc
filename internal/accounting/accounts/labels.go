package accounts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var typeLabels = map[AccountType]string{
	AccountTypeAsset:     "Asset",
	AccountTypeLiability: "Liability",
	AccountTypeEquity:    "Equity",
	AccountTypeIncome:    "Income",
	AccountTypeExpense:   "Expense",
}

var categoryLabels = map[string]string{
	"CURRENT_ASSETS":        "Current Assets",
	"FIXED_ASSETS":          "Fixed Assets",
	"CURRENT_LIABILITIES":   "Current Liabilities",
	"LONG_TERM_LIABILITIES": "Long-term Liabilities",
	"TUITION_FEES":          "Tuition Fees",
	"OTHER_INCOME":          "Other Income",
	"OPERATING_EXPENSES":    "Operating Expenses",
	"ADMINISTRATIVE":        "Administrative Expenses",
}

// TypeLabel returns the display name of an account type.
func TypeLabel(t AccountType) string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return Humanize(string(t))
}

// CategoryLabel returns the display name of a category code.
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return Humanize(category)
}

// Humanize turns an upper snake case code into title case words.
func Humanize(code string) string {
	if code == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(strings.ReplaceAll(code, "_", " ")))
}
