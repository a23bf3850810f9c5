// Package handler содержит HTTP-обработчики API кассы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/ledger"
	"github.com/mmeshcher/pos-till/internal/model"
	"github.com/mmeshcher/pos-till/internal/repository"
	"github.com/mmeshcher/pos-till/internal/service"
	"github.com/mmeshcher/pos-till/internal/validation"
)

// Ledger определяет операции кассовой смены, используемые обработчиками.
type Ledger interface {
	State() ledger.State
	Start(ctx context.Context) (ledger.State, error)
	Preview(ctx context.Context, c model.DrawerCounts) (*ledger.CloseResult, error)
	Close(ctx context.Context, c model.DrawerCounts, confirmZero bool) (*ledger.CloseResult, error)
	ClearActiveMarker(ctx context.Context) (int64, error)
	History(ctx context.Context, limit int) ([]model.ShiftHistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id int64) error
}

// Service определяет операции продаж и выплат.
type Service interface {
	RecordSale(ctx context.Context, items []model.SaleItem) (*model.Sale, error)
	RegisterPayment(ctx context.Context, amount int64, category string, isSupplier bool) (*model.Payment, error)
	DeletePayment(ctx context.Context, id int64) (*model.Payment, error)
	ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error)
}

// BalanceAggregator определяет операции с дневными итогами.
type BalanceAggregator interface {
	Compute(ctx context.Context, day time.Time) (model.DailyBalance, error)
	Save(ctx context.Context, day time.Time) (model.DailyBalance, error)
	History(ctx context.Context) ([]model.DailyBalance, error)
	Delete(ctx context.Context, day time.Time) error
}

// Handler реализует HTTP-обработчики API кассы.
type Handler struct {
	ledger       Ledger
	service      Service
	balance      BalanceAggregator
	logger       *zap.Logger
	historyLimit int
	location     *time.Location
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(l Ledger, s Service, b BalanceAggregator, logger *zap.Logger, historyLimit int, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		ledger:       l,
		service:      s,
		balance:      b,
		logger:       logger,
		historyLimit: historyLimit,
		location:     loc,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type stateResponse struct {
	Active           bool   `json:"active"`
	OpenedAt         string `json:"opened_at,omitempty"`
	AccumulatedSales int64  `json:"accumulated_sales"`
}

func newStateResponse(s ledger.State) stateResponse {
	resp := stateResponse{Active: s.Active, AccumulatedSales: s.AccumulatedSales}
	if s.Active {
		resp.OpenedAt = s.OpenedAt.Format(time.RFC3339)
	}
	return resp
}

// GetShift возвращает состояние смены.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStateResponse(h.ledger.State()))
}

// StartShift открывает новую смену.
func (h *Handler) StartShift(w http.ResponseWriter, r *http.Request) {
	state, err := h.ledger.Start(r.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrShiftActive) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("start shift error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newStateResponse(state))
}

type closeRequest struct {
	model.DrawerCounts
	ConfirmZero bool `json:"confirm_zero"`
}

type closeResponse struct {
	ShiftID          int64  `json:"shift_id,omitempty"`
	OpenedAt         string `json:"opened_at"`
	ClosedAt         string `json:"closed_at"`
	Cash             int64  `json:"cash"`
	Change           int64  `json:"change"`
	Mobile           int64  `json:"mobile"`
	Card             int64  `json:"card"`
	Sales            int64  `json:"sales"`
	SupplierPayments int64  `json:"supplier_payments"`
	GenericPayments  int64  `json:"generic_payments"`
	Total            int64  `json:"total"`
}

func newCloseResponse(res *ledger.CloseResult) closeResponse {
	return closeResponse{
		ShiftID:          res.ShiftID,
		OpenedAt:         res.OpenedAt.Format(time.RFC3339),
		ClosedAt:         res.ClosedAt.Format(time.RFC3339),
		Cash:             res.Snapshot.Cash,
		Change:           res.Snapshot.Change,
		Mobile:           res.Snapshot.Mobile,
		Card:             res.Snapshot.Card,
		Sales:            res.Snapshot.Sales,
		SupplierPayments: res.SupplierPayments,
		GenericPayments:  res.GenericPayments,
		Total:            res.Snapshot.Total,
	}
}

func (h *Handler) decodeClose(w http.ResponseWriter, r *http.Request) (closeRequest, bool) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeCloseError переводит ошибку сверки в HTTP-статус.
func (h *Handler) writeCloseError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrNoActiveShift):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidCounts):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ledger.ErrZeroCounts):
		http.Error(w, err.Error(), http.StatusPreconditionRequired)
	case errors.Is(err, ledger.ErrPersistClose):
		http.Error(w, ledger.ErrPersistClose.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
	}
}

// PreviewClose считает итоги закрытия без сохранения.
func (h *Handler) PreviewClose(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeClose(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.Preview(r.Context(), req.DrawerCounts)
	if err != nil {
		h.writeCloseError(w, "preview close", err)
		return
	}

	writeJSON(w, http.StatusOK, newCloseResponse(res))
}

// CloseShift закрывает смену с введёнными суммами кассы.
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeClose(w, r)
	if !ok {
		return
	}

	res, err := h.ledger.Close(r.Context(), req.DrawerCounts, req.ConfirmZero)
	if err != nil {
		h.writeCloseError(w, "close shift", err)
		return
	}

	writeJSON(w, http.StatusOK, newCloseResponse(res))
}

// ClearMarker принудительно удаляет маркер открытой смены.
func (h *Handler) ClearMarker(w http.ResponseWriter, r *http.Request) {
	n, err := h.ledger.ClearActiveMarker(r.Context())
	if err != nil {
		h.logger.Error("clear shift marker error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"markers": n})
}

type historyResponse struct {
	ID               int64  `json:"id"`
	OpenedAt         string `json:"opened_at"`
	ClosedAt         string `json:"closed_at"`
	Cash             int64  `json:"cash"`
	Change           int64  `json:"change"`
	Mobile           int64  `json:"mobile"`
	Card             int64  `json:"card"`
	Sales            int64  `json:"sales"`
	SupplierPayments int64  `json:"supplier_payments"`
	GenericPayments  int64  `json:"generic_payments"`
	Total            int64  `json:"total"`
}

// GetShiftHistory возвращает закрытые смены, новые первыми.
func (h *Handler) GetShiftHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.History(r.Context(), h.historyLimit)
	if err != nil {
		h.logger.Error("get shift history error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		item := historyResponse{
			ID:               e.Record.ID,
			OpenedAt:         e.Record.OpenedAt.Format(time.RFC3339),
			Cash:             e.Snapshot.Cash,
			Change:           e.Snapshot.Change,
			Mobile:           e.Snapshot.Mobile,
			Card:             e.Snapshot.Card,
			Sales:            e.Snapshot.Sales,
			SupplierPayments: e.SupplierPayments,
			GenericPayments:  e.GenericPayments,
			Total:            e.Snapshot.Total,
		}
		if e.Record.ClosedAt != nil {
			item.ClosedAt = e.Record.ClosedAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteShiftHistory удаляет закрытую смену из истории.
func (h *Handler) DeleteShiftHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if err := h.ledger.DeleteHistoryEntry(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrShiftNotFound) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.logger.Error("delete shift history error", zap.Error(err), zap.Int64("shiftID", id))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type saleItemRequest struct {
	Code     string  `json:"code"`
	Price    int64   `json:"price" validate:"gte=0"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type saleRequest struct {
	Items []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type saleResponse struct {
	ID     int64  `json:"id"`
	SoldAt string `json:"sold_at"`
	Total  int64  `json:"total"`
}

// RecordSale проводит продажу.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	items := make([]model.SaleItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.SaleItem{Code: it.Code, Price: it.Price, Quantity: it.Quantity})
	}

	sale, err := h.service.RecordSale(r.Context(), items)
	if err != nil {
		if errors.Is(err, service.ErrEmptySale) || errors.Is(err, service.ErrInvalidItem) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("record sale error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, saleResponse{
		ID:     sale.ID,
		SoldAt: sale.SoldAt.Format(time.RFC3339),
		Total:  sale.Total,
	})
}

type paymentRequest struct {
	Amount     int64  `json:"amount" validate:"gt=0"`
	Category   string `json:"category" validate:"required"`
	IsSupplier bool   `json:"is_supplier"`
}

type paymentResponse struct {
	ID         int64  `json:"id"`
	PaidAt     string `json:"paid_at"`
	Amount     int64  `json:"amount"`
	Category   string `json:"category"`
	IsSupplier bool   `json:"is_supplier"`
}

func newPaymentResponse(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:         p.ID,
		PaidAt:     p.PaidAt.Format(time.RFC3339),
		Amount:     p.Amount,
		Category:   p.Category,
		IsSupplier: p.IsSupplier,
	}
}

// RegisterPayment регистрирует выплату из кассы.
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	p, err := h.service.RegisterPayment(r.Context(), req.Amount, req.Category, req.IsSupplier)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) || errors.Is(err, service.ErrEmptyCategory) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("register payment error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newPaymentResponse(*p))
}

// GetPayments возвращает выплаты поставщикам или прочие выплаты.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	isSupplier := false
	if raw := r.URL.Query().Get("supplier"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeStatus(w, http.StatusBadRequest)
			return
		}
		isSupplier = v
	}

	payments, err := h.service.ListPayments(r.Context(), isSupplier, h.historyLimit)
	if err != nil {
		h.logger.Error("list payments error", zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, newPaymentResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeletePayment удаляет выплату.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	p, err := h.service.DeletePayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			writeStatus(w, http.StatusNotFound)
			return
		}
		h.logger.Error("delete payment error", zap.Error(err), zap.Int64("paymentID", id))
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newPaymentResponse(*p))
}
