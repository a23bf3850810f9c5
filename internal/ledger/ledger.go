// Package ledger реализует учёт кассовой смены: открытие, накопление продаж,
// сверку при закрытии и восстановление открытой смены после перезапуска.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/model"
	"github.com/mmeshcher/pos-till/internal/repository"
	"github.com/mmeshcher/pos-till/internal/validation"
)

// ErrShiftActive возвращается при попытке открыть смену, когда другая уже открыта.
var (
	ErrShiftActive = errors.New("shift already active")
	// ErrNoActiveShift возвращается при закрытии без открытой смены.
	ErrNoActiveShift = errors.New("no active shift")
	// ErrZeroCounts сообщает, что все суммы кассы нулевые и требуется подтверждение оператора.
	ErrZeroCounts = errors.New("all drawer counts are zero, confirmation required")
	// ErrInvalidCounts возвращается, если суммы кассы не прошли проверку.
	ErrInvalidCounts = errors.New("invalid drawer counts")
	// ErrPersistClose возвращается, если закрытую смену не удалось сохранить. Смена остаётся открытой.
	ErrPersistClose = errors.New("failed to persist shift close, try closing again")
)

// Store описывает контракт хранилища, используемый кассовой сменой.
type Store interface {
	SumPaymentAmounts(ctx context.Context, isSupplier bool, from, to time.Time) (int64, error)
	SumSaleTotals(ctx context.Context, from, to time.Time) (int64, error)
	FindOpenShift(ctx context.Context) (*model.ShiftRecord, error)
	InsertShift(ctx context.Context, rec model.ShiftRecord) (int64, error)
	CloseShift(ctx context.Context, rec model.ShiftRecord) (int64, error)
	DeleteShift(ctx context.Context, id int64) error
	DeleteOpenShifts(ctx context.Context) (int64, error)
	ListShifts(ctx context.Context, closedOnly bool, limit int) ([]model.ShiftRecord, error)
}

// State содержит состояние смены в памяти.
type State struct {
	Active           bool      `json:"active"`
	OpenedAt         time.Time `json:"opened_at,omitempty"`
	AccumulatedSales int64     `json:"accumulated_sales"`
}

// CloseResult содержит итоги сверки смены.
type CloseResult struct {
	ShiftID          int64              `json:"shift_id,omitempty"`
	OpenedAt         time.Time          `json:"opened_at"`
	ClosedAt         time.Time          `json:"closed_at"`
	Counts           model.DrawerCounts `json:"counts"`
	SupplierPayments int64              `json:"supplier_payments"`
	GenericPayments  int64              `json:"generic_payments"`
	Snapshot         model.Snapshot     `json:"snapshot"`
}

// RecoveryNotice описывает результат восстановления смены при запуске.
type RecoveryNotice struct {
	Restored         bool      `json:"restored"`
	OpenedAt         time.Time `json:"opened_at,omitempty"`
	AccumulatedSales int64     `json:"accumulated_sales"`
}

// Ledger ведёт одну открытую смену. Все операции сериализованы мьютексом,
// поэтому повторное закрытие дождётся первого и получит ErrNoActiveShift.
type Ledger struct {
	store   Store
	logger  *zap.Logger
	now     func() time.Time
	loc     *time.Location
	ceiling int64

	mu               sync.Mutex
	active           bool
	openedAt         time.Time
	accumulatedSales int64
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithClock задаёт источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation задаёт часовой пояс, по которому считаются границы дня.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithCountCeiling задаёт верхнюю границу для сумм кассы. Ноль отключает проверку.
func WithCountCeiling(ceiling int64) Option {
	return func(l *Ledger) { l.ceiling = ceiling }
}

// New создаёт учёт смены поверх хранилища.
func New(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// State возвращает текущее состояние смены.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Ledger) stateLocked() State {
	return State{
		Active:           l.active,
		OpenedAt:         l.openedAt,
		AccumulatedSales: l.accumulatedSales,
	}
}

func (l *Ledger) resetLocked() {
	l.active = false
	l.openedAt = time.Time{}
	l.accumulatedSales = 0
}

// ComputeTotal возвращает итог сверки:
// cash + change - mobile - card + sales - supplier - generic.
func ComputeTotal(c model.DrawerCounts, sales, supplierPayments, genericPayments int64) int64 {
	return c.Cash + c.Change - c.Mobile - c.Card + sales - supplierPayments - genericPayments
}

// sumPayments читает сумму выплат. Ошибка чтения даёт ноль и предупреждение в лог.
func (l *Ledger) sumPayments(ctx context.Context, isSupplier bool, from, to time.Time) int64 {
	total, err := l.store.SumPaymentAmounts(ctx, isSupplier, from, to)
	if err != nil {
		l.logger.Warn("sum payments failed, assuming zero",
			zap.Error(err),
			zap.Bool("supplier", isSupplier),
			zap.Time("from", from),
			zap.Time("to", to),
		)
		return 0
	}
	return total
}

func (l *Ledger) checkCounts(c model.DrawerCounts) error {
	if err := validation.DrawerCounts(c, l.ceiling); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCounts, err)
	}
	return nil
}

func (l *Ledger) reconcileLocked(ctx context.Context, c model.DrawerCounts) CloseResult {
	closedAt := l.now()
	if closedAt.Before(l.openedAt) {
		closedAt = l.openedAt
	}

	supplier := l.sumPayments(ctx, true, l.openedAt, closedAt)
	generic := l.sumPayments(ctx, false, l.openedAt, closedAt)

	return CloseResult{
		OpenedAt:         l.openedAt,
		ClosedAt:         closedAt,
		Counts:           c,
		SupplierPayments: supplier,
		GenericPayments:  generic,
		Snapshot: model.Snapshot{
			Cash:   c.Cash,
			Change: c.Change,
			Mobile: c.Mobile,
			Card:   c.Card,
			Sales:  l.accumulatedSales,
			Total:  ComputeTotal(c, l.accumulatedSales, supplier, generic),
		},
	}
}

// Start открывает новую смену. Маркер открытой смены сохраняется без гарантии:
// ошибка записи только логируется, оператор может продолжать работу.
func (l *Ledger) Start(ctx context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		return l.stateLocked(), ErrShiftActive
	}

	open, err := l.store.FindOpenShift(ctx)
	switch {
	case err == nil:
		l.logger.Info("start rejected, open shift marker found", zap.Int64("shiftID", open.ID), zap.Time("openedAt", open.OpenedAt))
		return l.stateLocked(), ErrShiftActive
	case !errors.Is(err, repository.ErrShiftNotFound):
		l.logger.Warn("find open shift failed, assuming none", zap.Error(err))
	}

	l.active = true
	l.openedAt = l.now()
	l.accumulatedSales = 0

	if _, err := l.store.InsertShift(ctx, model.ShiftRecord{OpenedAt: l.openedAt}); err != nil {
		l.logger.Warn("persist open shift marker failed, crash recovery not guaranteed", zap.Error(err))
	}

	l.logger.Info("shift started", zap.Time("openedAt", l.openedAt))
	return l.stateLocked(), nil
}

// OnSale прибавляет сумму продажи к накопленным продажам открытой смены.
func (l *Ledger) OnSale(amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return
	}
	l.accumulatedSales += amount
	l.logger.Debug("sale registered in shift", zap.Int64("amount", amount), zap.Int64("accumulated", l.accumulatedSales))
}

// OnPaymentRegistered только информирует: суммы выплат пересчитываются из хранилища при закрытии.
func (l *Ledger) OnPaymentRegistered(amount int64, isSupplier bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		l.logger.Info("payment registered in shift", zap.Int64("amount", amount), zap.Bool("supplier", isSupplier))
	}
}

// OnPaymentDeleted только информирует, как и OnPaymentRegistered.
func (l *Ledger) OnPaymentDeleted(amount int64, isSupplier bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		l.logger.Info("payment deleted in shift", zap.Int64("amount", amount), zap.Bool("supplier", isSupplier))
	}
}

// Preview считает итоги закрытия без сохранения.
func (l *Ledger) Preview(ctx context.Context, c model.DrawerCounts) (*CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return nil, ErrNoActiveShift
	}
	if err := l.checkCounts(c); err != nil {
		return nil, err
	}

	res := l.reconcileLocked(ctx, c)
	return &res, nil
}

// Close закрывает смену: пересчитывает выплаты за [openedAt, now] из хранилища,
// сохраняет закрытую запись со снимком и удаляет маркер. Если сохранить не удалось,
// смена остаётся открытой и закрытие можно повторить.
func (l *Ledger) Close(ctx context.Context, c model.DrawerCounts, confirmZero bool) (*CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active {
		return nil, ErrNoActiveShift
	}
	if err := l.checkCounts(c); err != nil {
		return nil, err
	}
	if c.IsZero() && !confirmZero {
		return nil, ErrZeroCounts
	}

	res := l.reconcileLocked(ctx, c)

	closedAt := res.ClosedAt
	snapshot := res.Snapshot
	id, err := l.store.CloseShift(ctx, model.ShiftRecord{
		OpenedAt: res.OpenedAt,
		ClosedAt: &closedAt,
		Snapshot: &snapshot,
	})
	if err != nil {
		l.logger.Error("persist shift close failed", zap.Error(err), zap.Time("openedAt", res.OpenedAt))
		return nil, fmt.Errorf("%w: %w", ErrPersistClose, err)
	}
	res.ShiftID = id

	l.resetLocked()

	l.logger.Info("shift closed",
		zap.Int64("shiftID", id),
		zap.Int64("sales", snapshot.Sales),
		zap.Int64("supplierPayments", res.SupplierPayments),
		zap.Int64("genericPayments", res.GenericPayments),
		zap.Int64("total", snapshot.Total),
	)
	return &res, nil
}

// Recover восстанавливает открытую смену после перезапуска. Продажи пересчитываются
// с начала календарного дня открытия смены, а не с точного времени открытия.
// Ошибки чтения не возвращаются: смена считается неоткрытой, в лог пишется предупреждение.
func (l *Ledger) Recover(ctx context.Context) RecoveryNotice {
	l.mu.Lock()
	defer l.mu.Unlock()

	open, err := l.store.FindOpenShift(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrShiftNotFound) {
			l.logger.Warn("find open shift failed, assuming none", zap.Error(err))
		}
		return RecoveryNotice{}
	}

	from := startOfDay(open.OpenedAt, l.loc)
	sales, err := l.store.SumSaleTotals(ctx, from, l.now())
	if err != nil {
		l.logger.Warn("sum sales failed, assuming zero", zap.Error(err), zap.Time("from", from))
		sales = 0
	}

	l.active = true
	l.openedAt = open.OpenedAt
	l.accumulatedSales = sales

	l.logger.Info("open shift restored", zap.Time("openedAt", open.OpenedAt), zap.Int64("accumulatedSales", sales))
	return RecoveryNotice{
		Restored:         true,
		OpenedAt:         open.OpenedAt,
		AccumulatedSales: sales,
	}
}

// ClearActiveMarker удаляет маркеры открытой смены и сбрасывает состояние.
// Накопленные продажи теряются без записи закрытия, поэтому они пишутся в лог.
func (l *Ledger) ClearActiveMarker(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.store.DeleteOpenShifts(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear open shift marker: %w", err)
	}

	if l.active || n > 0 {
		l.logger.Warn("open shift discarded without close",
			zap.Int64("markers", n),
			zap.Time("openedAt", l.openedAt),
			zap.Int64("discardedSales", l.accumulatedSales),
		)
	}
	l.resetLocked()
	return n, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
