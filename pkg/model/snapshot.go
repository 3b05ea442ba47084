package model

import "time"

// CategoryMetrics is one entry of a snapshot's category breakdown.
type CategoryMetrics struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Percent  float64 `json:"percent"` // share of the period's total amount
}

// GroupMetrics is a total/count pair used by the status and currency breakdowns.
type GroupMetrics struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Trend compares a snapshot against the immediately preceding period.
type Trend struct {
	AmountChange    float64 `json:"amount_change"` // percent
	AmountDelta     float64 `json:"amount_delta"`  // absolute
	CountChange     float64 `json:"count_change"`
	CountDelta      int     `json:"count_delta"`
	AverageChange   float64 `json:"average_change"`
	AverageDelta    float64 `json:"average_delta"`
	PreviousTotal   float64 `json:"previous_total"`
	PreviousCount   int     `json:"previous_count"`
	PreviousAverage float64 `json:"previous_average"`
	IsIncrease      bool    `json:"is_increase"`
}

// MetricsSnapshot is the computed aggregate for one (account, period, bucket)
// triple. It is a derived, reconstructible cache entry; never persisted.
type MetricsSnapshot struct {
	AccountID   int64     `json:"account_id"`
	Period      Period    `json:"period"`
	BucketDate  string    `json:"bucket_date"` // ISO 8601 (2006-01-02)
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalAmount      float64 `json:"total_amount"`
	TransactionCount int     `json:"transaction_count"`
	AverageAmount    float64 `json:"average_amount"`
	MedianAmount     float64 `json:"median_amount"`
	MinAmount        float64 `json:"min_amount"`
	MaxAmount        float64 `json:"max_amount"`

	UniqueMerchants    int `json:"unique_merchants"`
	UniqueCategories   int `json:"unique_categories"`
	UncategorizedCount int `json:"uncategorized_count"`

	CategoryBreakdown []CategoryMetrics       `json:"category_breakdown"`
	StatusBreakdown   map[string]GroupMetrics `json:"status_breakdown"`
	CurrencyBreakdown map[string]GroupMetrics `json:"currency_breakdown"`

	Trend Trend `json:"trend"`

	// Error is set when computation failed and the snapshot is a degraded
	// zeroed placeholder. Callers always receive the full shape.
	Error string `json:"error,omitempty"`
}
