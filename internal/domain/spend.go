package domain

import "time"

// CategorySpendSummary is the outgoing total for one category over a window.
type CategorySpendSummary struct {
	Category   string  `json:"category"`
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Window     Window  `json:"window"`
}

// MerchantSpendSummary is the outgoing total for one merchant.
type MerchantSpendSummary struct {
	Merchant        string    `json:"merchant"`
	TotalSpent      float64   `json:"totalSpent"`
	Count           int       `json:"transactionCount"`
	Categories      []string  `json:"categories"`
	LastTransaction time.Time `json:"lastTransaction"`
}

// PeriodFlow is the money in and out for one reporting period.
type PeriodFlow struct {
	Period   string  `json:"period"`
	Spending float64 `json:"spending"`
	Income   float64 `json:"income"`
	NetFlow  float64 `json:"netFlow"`
}

// TrendPeriod is the bucket size of a spending trend.
type TrendPeriod string

const (
	PeriodMonthly TrendPeriod = "monthly"
	PeriodWeekly  TrendPeriod = "weekly"
	PeriodDaily   TrendPeriod = "daily"
)
