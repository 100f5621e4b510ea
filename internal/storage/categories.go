package storage

import "finbot/internal/core"

// DefaultCategory is one built-in category seeded at initialization.
type DefaultCategory struct {
	Name string
	Kind core.Kind
}

// DefaultCategories is the built-in set every backend seeds. Transactions
// may still create further categories on first use.
var DefaultCategories = []DefaultCategory{
	{Name: "salary", Kind: core.Income},
	{Name: "freelance", Kind: core.Income},
	{Name: "investments", Kind: core.Income},
	{Name: "gifts", Kind: core.Income},
	{Name: "other_income", Kind: core.Income},

	{Name: "food", Kind: core.Expense},
	{Name: "transport", Kind: core.Expense},
	{Name: "housing", Kind: core.Expense},
	{Name: "entertainment", Kind: core.Expense},
	{Name: "health", Kind: core.Expense},
	{Name: "clothes", Kind: core.Expense},
	{Name: "electronics", Kind: core.Expense},
	{Name: "other_expense", Kind: core.Expense},
}
