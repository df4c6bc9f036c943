package api

import (
	"net/http"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/spend"
)

// SpendingCategories handles GET /analytics/spending/categories.
func (h *Handler) SpendingCategories(w http.ResponseWriter, r *http.Request) {
	window, err := queryWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	categories, err := h.insights.Categories(r.Context(), userID(r, ""), window)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories":    categories,
		"totalSpending": spend.Total(categories),
	})
}

// SpendingTrends handles GET /analytics/spending/trends.
func (h *Handler) SpendingTrends(w http.ResponseWriter, r *http.Request) {
	months, err := queryInt(r, "months")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	period := domain.TrendPeriod(r.URL.Query().Get("period"))

	report, err := h.insights.Trends(r.Context(), userID(r, ""), period, months)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// TopMerchants handles GET /analytics/merchants.
func (h *Handler) TopMerchants(w http.ResponseWriter, r *http.Request) {
	window, err := queryWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	merchants, err := h.insights.Merchants(r.Context(), userID(r, ""), window, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"merchants": merchants,
	})
}

// RewardOptimization handles GET /rewards/optimization.
func (h *Handler) RewardOptimization(w http.ResponseWriter, r *http.Request) {
	plan, err := h.insights.Optimization(r.Context(), userID(r, ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// BestCard handles GET /rewards/best-card.
func (h *Handler) BestCard(w http.ResponseWriter, r *http.Request) {
	choice, err := h.insights.BestCard(r.Context(), userID(r, ""), r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, choice)
}

// BudgetAnalysis handles GET /budget/analysis.
func (h *Handler) BudgetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.insights.BudgetAnalysis(r.Context(), userID(r, ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
