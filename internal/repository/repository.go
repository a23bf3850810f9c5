// Package repository содержит реализации хранилища смен, продаж и выплат
// для PostgreSQL и локального файла SQLite.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/pos-till/internal/model"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// ErrShiftNotFound возвращается, если запись смены не найдена.
var (
	ErrShiftNotFound = errors.New("shift not found")
	// ErrOpenShiftExists возвращается при попытке создать второй маркер открытой смены.
	ErrOpenShiftExists = errors.New("open shift marker already exists")
	// ErrPaymentNotFound возвращается, если выплата не найдена.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrBalanceNotFound возвращается, если дневной баланс за дату не найден.
	ErrBalanceNotFound = errors.New("daily balance not found")
	// ErrShiftNotClosed возвращается при попытке сохранить незакрытую смену как закрытую.
	ErrShiftNotClosed = errors.New("shift record has no close time")
)

// dayLayout используется для хранения даты дневного баланса.
const dayLayout = "2006-01-02"

func runMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func snapshotText(r *model.Snapshot) *string {
	if r == nil {
		return nil
	}
	s := r.Encode()
	return &s
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Store объединяет операции хранилища, общие для PostgreSQL и SQLite.
type Store interface {
	Close() error

	SumPaymentAmounts(ctx context.Context, isSupplier bool, from, to time.Time) (int64, error)
	SumSaleTotals(ctx context.Context, from, to time.Time) (int64, error)

	FindOpenShift(ctx context.Context) (*model.ShiftRecord, error)
	InsertShift(ctx context.Context, rec model.ShiftRecord) (int64, error)
	CloseShift(ctx context.Context, rec model.ShiftRecord) (int64, error)
	DeleteShift(ctx context.Context, id int64) error
	DeleteOpenShifts(ctx context.Context) (int64, error)
	ListShifts(ctx context.Context, closedOnly bool, limit int) ([]model.ShiftRecord, error)

	CreateSale(ctx context.Context, sale model.Sale) (int64, error)
	CreatePayment(ctx context.Context, p model.Payment) (int64, error)
	DeletePayment(ctx context.Context, id int64) (*model.Payment, error)
	ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error)

	ReplaceDailyBalance(ctx context.Context, b model.DailyBalance) error
	ListDailyBalances(ctx context.Context) ([]model.DailyBalance, error)
	DeleteDailyBalance(ctx context.Context, day time.Time) error
}

var (
	_ Store = (*PostgresRepository)(nil)
	_ Store = (*SQLiteRepository)(nil)
)

// Open открывает хранилище по имени драйвера: "postgres" использует dsn, "sqlite" использует path.
func Open(driver, dsn, path string) (Store, error) {
	switch driver {
	case "postgres":
		repo, err := NewPostgresRepository(dsn)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "sqlite":
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
