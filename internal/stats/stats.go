// Package stats is the aggregation engine: pure functions that fold a
// transaction set into totals, category breakdowns and percentage shares.
// It never touches storage or the cache.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

type (
	// Statistics is the derived aggregate over a transaction set.
	// Balance is always TotalIncome - TotalExpense.
	Statistics struct {
		TotalIncome  decimal.Decimal
		TotalExpense decimal.Decimal
		Balance      decimal.Decimal
		Transactions []core.Transaction
	}

	// CategoryStatistics is one (category, kind) total.
	CategoryStatistics struct {
		Category string
		Kind     core.Kind
		Total    decimal.Decimal
	}

	// CategoryShare is a per-category amount plus its percentage of the
	// kind total. Percent keeps full precision; round at display time.
	CategoryShare struct {
		Category string
		Amount   decimal.Decimal
		Percent  decimal.Decimal
	}

	// Breakdown holds the per-kind detail lists, sorted by amount descending.
	Breakdown struct {
		Income  []CategoryShare
		Expense []CategoryShare
	}
)

var oneHundred = decimal.NewFromInt(100)

// Summarize partitions transactions by kind and sums each side.
func Summarize(transactions []core.Transaction) Statistics {
	s := Statistics{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		Transactions: transactions,
	}
	for _, t := range transactions {
		switch t.Kind {
		case core.Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case core.Expense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s
}

// SummarizeByCategory groups by (category, kind) and sums per group.
// Results are ordered by total descending; ties break on category name
// ascending so output is deterministic.
func SummarizeByCategory(transactions []core.Transaction) []CategoryStatistics {
	type groupKey struct {
		category string
		kind     core.Kind
	}
	totals := make(map[groupKey]decimal.Decimal)
	for _, t := range transactions {
		k := groupKey{category: t.Category, kind: t.Kind}
		totals[k] = totals[k].Add(t.Amount)
	}

	out := make([]CategoryStatistics, 0, len(totals))
	for k, total := range totals {
		out = append(out, CategoryStatistics{
			Category: k.category,
			Kind:     k.kind,
			Total:    total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// DetailedBreakdown computes per-category amounts and their share of the
// kind total for each side. A kind with a zero total yields 0 percent for
// every category rather than dividing by zero.
func DetailedBreakdown(transactions []core.Transaction) Breakdown {
	s := Summarize(transactions)

	incomeTotals := make(map[string]decimal.Decimal)
	expenseTotals := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		switch t.Kind {
		case core.Income:
			incomeTotals[t.Category] = incomeTotals[t.Category].Add(t.Amount)
		case core.Expense:
			expenseTotals[t.Category] = expenseTotals[t.Category].Add(t.Amount)
		}
	}

	return Breakdown{
		Income:  shares(incomeTotals, s.TotalIncome),
		Expense: shares(expenseTotals, s.TotalExpense),
	}
}

func shares(totals map[string]decimal.Decimal, kindTotal decimal.Decimal) []CategoryShare {
	out := make([]CategoryShare, 0, len(totals))
	for category, amount := range totals {
		percent := decimal.Zero
		if kindTotal.Sign() > 0 {
			percent = amount.Div(kindTotal).Mul(oneHundred)
		}
		out = append(out, CategoryShare{
			Category: category,
			Amount:   amount,
			Percent:  percent,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// PercentString renders a share percentage rounded to one decimal place.
// Rounding happens here, at the presentation boundary, never in the
// stored values.
func (s CategoryShare) PercentString() string {
	return s.Percent.StringFixed(1)
}
