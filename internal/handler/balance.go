package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/model"
	"github.com/mmeshcher/pos-till/internal/repository"
)

type balanceResponse struct {
	Date           string `json:"date"`
	TotalSales     int64  `json:"total_sales"`
	TotalEntries   int64  `json:"total_entries"`
	TotalPayments  int64  `json:"total_payments"`
	TotalProviders int64  `json:"total_providers"`
	Balance        int64  `json:"balance"`
}

func newBalanceResponse(b model.DailyBalance) balanceResponse {
	return balanceResponse{
		Date:           b.Date.Format(time.DateOnly),
		TotalSales:     b.TotalSales,
		TotalEntries:   b.TotalEntries,
		TotalPayments:  b.TotalPayments,
		TotalProviders: b.TotalProviders,
		Balance:        b.Balance,
	}
}

// parseDay разбирает дату YYYY-MM-DD. Пустая строка означает сегодня.
func (h *Handler) parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().In(h.location), nil
	}
	return time.ParseInLocation(time.DateOnly, raw, h.location)
}

// GetBalance считает итоги за день без сохранения.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	b, err := h.balance.Compute(r.Context(), day)
	if err != nil {
		h.logger.Error("compute balance error", zap.Error(err), zap.Time("day", day))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newBalanceResponse(b))
}

// SaveBalance пересчитывает и сохраняет итоги за день.
func (h *Handler) SaveBalance(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	b, err := h.balance.Save(r.Context(), day)
	if err != nil {
		h.logger.Error("save balance error", zap.Error(err), zap.Time("day", day))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newBalanceResponse(b))
}

// GetBalanceHistory возвращает сохранённые дневные итоги.
func (h *Handler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	balances, err := h.balance.History(r.Context())
	if err != nil {
		h.logger.Error("get balance history error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	if len(balances) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, newBalanceResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteBalance удаляет сохранённые итоги за день.
func (h *Handler) DeleteBalance(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation(time.DateOnly, chi.URLParam(r, "date"), h.location)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if err := h.balance.Delete(r.Context(), day); err != nil {
		if errors.Is(err, repository.ErrBalanceNotFound) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.logger.Error("delete balance error", zap.Error(err), zap.Time("day", day))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
