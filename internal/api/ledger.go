package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// CreateTransaction handles POST /transactions. With a worker running the
// transaction is queued on the bus and 202 is returned; otherwise it is
// stored and scanned before responding.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)

	tx, err := req.ToTransaction(h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.async {
		if err := bus.PublishEvent(ctx, h.bus, tx.UserID, domain.TopicTransactionIngested, tx); err != nil {
			h.writeError(w, r, fmt.Errorf("%w: queue transaction: %v", domain.ErrUpstreamUnavailable, err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     tx.ID,
			"status": "queued",
		})
		return
	}

	if err := h.repo.SaveTransaction(ctx, tx); err != nil {
		h.writeError(w, r, err)
		return
	}

	result := h.scans.ScanTransaction(ctx, tx)
	h.insights.Invalidate(ctx, tx.UserID)

	stored, err := h.repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": stored,
		"flagged":     len(result.Flagged) > 0,
	})
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
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

	filter := domain.TransactionFilter{
		UserID: userID(r, ""),
		CardID: r.URL.Query().Get("cardId"),
		From:   window.From,
		To:     window.To,
		Limit:  limit,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TransactionStatus(raw)
		if !status.Valid() {
			h.writeError(w, r, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, raw))
			return
		}
		filter.Statuses = []domain.TransactionStatus{status}
	}

	txs, err := h.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.repo.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// CreateCard handles POST /cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req domain.CardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)

	card, err := req.ToCard(h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.repo.SaveCard(r.Context(), card); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.insights.Invalidate(r.Context(), card.UserID)

	writeJSON(w, http.StatusCreated, card)
}

// ListCards handles GET /cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.repo.ListCards(r.Context(), userID(r, ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cards == nil {
		cards = []*domain.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}
