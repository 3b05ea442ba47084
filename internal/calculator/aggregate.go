package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// aggregates holds the raw decimal rollup of one period's records before it
// is shaped into a snapshot.
type aggregates struct {
	total    decimal.Decimal
	count    int
	mean     decimal.Decimal
	median   decimal.Decimal
	min      decimal.Decimal
	max      decimal.Decimal
	merchant map[string]struct{}

	uncategorized      int
	distinctCategories int // named categories only; Uncategorized excluded
	categories         []model.CategoryMetrics
	statuses           map[string]model.GroupMetrics
	currencies         map[string]model.GroupMetrics
}

type groupAccum struct {
	total decimal.Decimal
	count int
	min   decimal.Decimal
	max   decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// aggregate computes the full rollup of a record set.
func aggregate(recs []model.FinancialRecord) aggregates {
	agg := aggregates{
		merchant:   make(map[string]struct{}),
		statuses:   make(map[string]model.GroupMetrics),
		currencies: make(map[string]model.GroupMetrics),
	}
	if len(recs) == 0 {
		return agg
	}

	amounts := make([]decimal.Decimal, 0, len(recs))
	byCategory := make(map[string]*groupAccum)
	byStatus := make(map[string]*groupAccum)
	byCurrency := make(map[string]*groupAccum)

	accum := func(m map[string]*groupAccum, key string, amt decimal.Decimal) *groupAccum {
		g, ok := m[key]
		if !ok {
			g = &groupAccum{min: amt, max: amt}
			m[key] = g
		} else {
			if amt.LessThan(g.min) {
				g.min = amt
			}
			if amt.GreaterThan(g.max) {
				g.max = amt
			}
		}
		g.total = g.total.Add(amt)
		g.count++
		return g
	}

	for _, r := range recs {
		amt := r.Amount
		agg.total = agg.total.Add(amt)
		agg.count++
		amounts = append(amounts, amt)
		agg.merchant[r.Merchant] = struct{}{}

		cat := r.CategoryOrDefault()
		if cat == model.Uncategorized {
			agg.uncategorized++
		}
		accum(byCategory, cat, amt)
		accum(byStatus, r.Status, amt)
		accum(byCurrency, r.Currency, amt)
	}

	for st, g := range byStatus {
		agg.statuses[st] = model.GroupMetrics{Total: round2(g.total), Count: g.count}
	}
	for cur, g := range byCurrency {
		agg.currencies[cur] = model.GroupMetrics{Total: round2(g.total), Count: g.count}
	}

	agg.distinctCategories = len(byCategory)
	if agg.uncategorized > 0 {
		agg.distinctCategories--
	}

	agg.mean = agg.total.Div(decimal.NewFromInt(int64(agg.count))).Round(2)
	agg.median = median(amounts)
	agg.min, agg.max = minMax(amounts)

	// Category breakdown, descending by total. Percent is the category's
	// share of the period total; the Uncategorized bucket is included, so
	// the shares sum to ~100 (rounding drift aside).
	for cat, g := range byCategory {
		entry := model.CategoryMetrics{
			Category: cat,
			Total:    round2(g.total),
			Count:    g.count,
			Average:  round2(g.total.Div(decimal.NewFromInt(int64(g.count)))),
			Min:      round2(g.min),
			Max:      round2(g.max),
		}
		if agg.total.IsPositive() {
			entry.Percent = round2(g.total.Div(agg.total).Mul(oneHundred))
		}
		agg.categories = append(agg.categories, entry)
	}
	sort.Slice(agg.categories, func(i, j int) bool {
		if agg.categories[i].Total != agg.categories[j].Total {
			return agg.categories[i].Total > agg.categories[j].Total
		}
		return agg.categories[i].Category < agg.categories[j].Category
	})

	return agg
}

// median returns the middle amount, averaging the two middle values for even
// counts.
func median(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(amounts))
	copy(sorted, amounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)).Round(2)
}

func minMax(amounts []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(amounts) == 0 {
		return decimal.Zero, decimal.Zero
	}
	lo, hi := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a.LessThan(lo) {
			lo = a
		}
		if a.GreaterThan(hi) {
			hi = a
		}
	}
	return lo, hi
}

// buildTrend compares the current rollup against the previous period's.
// A zero previous total yields 0% change and is_increase=false rather than a
// division error.
func buildTrend(cur, prev aggregates) model.Trend {
	t := model.Trend{
		AmountDelta:     round2(cur.total.Sub(prev.total)),
		CountDelta:      cur.count - prev.count,
		AverageDelta:    round2(cur.mean.Sub(prev.mean)),
		PreviousTotal:   round2(prev.total),
		PreviousCount:   prev.count,
		PreviousAverage: round2(prev.mean),
	}
	t.AmountChange = pctChange(cur.total, prev.total)
	t.CountChange = pctChange(decimal.NewFromInt(int64(cur.count)), decimal.NewFromInt(int64(prev.count)))
	t.AverageChange = pctChange(cur.mean, prev.mean)
	t.IsIncrease = prev.total.IsPositive() && cur.total.GreaterThan(prev.total)
	return t
}

func pctChange(cur, prev decimal.Decimal) float64 {
	if prev.IsZero() {
		return 0
	}
	return round2(cur.Sub(prev).Div(prev).Mul(oneHundred))
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
