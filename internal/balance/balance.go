// Package balance считает и хранит итоги кассы за календарный день.
package balance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/model"
)

// Store описывает контракт хранилища для дневных итогов.
type Store interface {
	SumPaymentAmounts(ctx context.Context, isSupplier bool, from, to time.Time) (int64, error)
	SumSaleTotals(ctx context.Context, from, to time.Time) (int64, error)
	ReplaceDailyBalance(ctx context.Context, b model.DailyBalance) error
	ListDailyBalances(ctx context.Context) ([]model.DailyBalance, error)
	DeleteDailyBalance(ctx context.Context, day time.Time) error
}

// Aggregator считает дневной баланс: продажи минус выплаты поставщикам и прочие выплаты.
type Aggregator struct {
	store  Store
	logger *zap.Logger
	loc    *time.Location
}

// NewAggregator создаёт агрегатор. Границы дня считаются в часовом поясе loc.
func NewAggregator(store Store, logger *zap.Logger, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger, loc: loc}
}

// DayWindow возвращает границы дня [start, end] включительно с точностью до микросекунды.
func DayWindow(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Microsecond)
	return start, end
}

// Compute считает итоги за день без сохранения.
func (a *Aggregator) Compute(ctx context.Context, day time.Time) (model.DailyBalance, error) {
	from, to := DayWindow(day, a.loc)

	sales, err := a.store.SumSaleTotals(ctx, from, to)
	if err != nil {
		return model.DailyBalance{}, fmt.Errorf("sum sales: %w", err)
	}
	supplier, err := a.store.SumPaymentAmounts(ctx, true, from, to)
	if err != nil {
		return model.DailyBalance{}, fmt.Errorf("sum supplier payments: %w", err)
	}
	generic, err := a.store.SumPaymentAmounts(ctx, false, from, to)
	if err != nil {
		return model.DailyBalance{}, fmt.Errorf("sum generic payments: %w", err)
	}

	y, m, d := day.Date()
	return model.DailyBalance{
		Date:          time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		TotalSales:    sales,
		TotalEntries:  supplier,
		TotalPayments: generic,
		Balance:       sales - supplier - generic,
	}, nil
}

// Save пересчитывает итоги за день и заменяет сохранённую запись.
func (a *Aggregator) Save(ctx context.Context, day time.Time) (model.DailyBalance, error) {
	b, err := a.Compute(ctx, day)
	if err != nil {
		return model.DailyBalance{}, err
	}

	if err := a.store.ReplaceDailyBalance(ctx, b); err != nil {
		return model.DailyBalance{}, fmt.Errorf("save daily balance: %w", err)
	}

	a.logger.Info("daily balance saved",
		zap.String("day", b.Date.Format(time.DateOnly)),
		zap.Int64("sales", b.TotalSales),
		zap.Int64("balance", b.Balance),
	)
	return b, nil
}

// History возвращает сохранённые дневные итоги, новые первыми.
func (a *Aggregator) History(ctx context.Context) ([]model.DailyBalance, error) {
	return a.store.ListDailyBalances(ctx)
}

// Delete удаляет сохранённые итоги за день.
func (a *Aggregator) Delete(ctx context.Context, day time.Time) error {
	return a.store.DeleteDailyBalance(ctx, day)
}
