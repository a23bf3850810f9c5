package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/mmeshcher/pos-till/internal/model"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := runMigrations(ctx, db, "postgres", "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SumPaymentAmounts возвращает сумму выплат указанного вида в интервале [from, to].
func (r *PostgresRepository) SumPaymentAmounts(ctx context.Context, isSupplier bool, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payments
		 WHERE is_supplier = $1 AND paid_at >= $2 AND paid_at <= $3`,
		isSupplier, from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// SumSaleTotals возвращает сумму продаж в интервале [from, to].
func (r *PostgresRepository) SumSaleTotals(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)
		 FROM sales
		 WHERE sold_at >= $1 AND sold_at <= $2`,
		from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum sales: %w", err)
	}
	return total, nil
}

// FindOpenShift возвращает самый свежий маркер открытой смены.
func (r *PostgresRepository) FindOpenShift(ctx context.Context) (*model.ShiftRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 WHERE closed_at IS NULL
		 ORDER BY opened_at DESC
		 LIMIT 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("select open shift: %w", err)
	}

	shifts, err := pgx.CollectRows(rows, scanShift)
	if err != nil {
		return nil, fmt.Errorf("scan open shift: %w", err)
	}
	if len(shifts) == 0 {
		return nil, ErrShiftNotFound
	}

	return &shifts[0], nil
}

// InsertShift сохраняет запись смены и возвращает её идентификатор.
func (r *PostgresRepository) InsertShift(ctx context.Context, rec model.ShiftRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO shifts (opened_at, closed_at, snapshot) VALUES ($1, $2, $3) RETURNING id`,
		rec.OpenedAt, rec.ClosedAt, snapshotText(rec.Snapshot),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, ErrOpenShiftExists
		}
		return 0, fmt.Errorf("insert shift: %w", err)
	}
	return id, nil
}

// CloseShift в одной транзакции сохраняет закрытую смену и удаляет маркер открытой смены.
func (r *PostgresRepository) CloseShift(ctx context.Context, rec model.ShiftRecord) (int64, error) {
	if rec.ClosedAt == nil {
		return 0, ErrShiftNotClosed
	}

	var id int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM shifts WHERE closed_at IS NULL`); err != nil {
			return fmt.Errorf("delete open marker: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO shifts (opened_at, closed_at, snapshot) VALUES ($1, $2, $3) RETURNING id`,
			rec.OpenedAt, rec.ClosedAt, snapshotText(rec.Snapshot),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert closed shift: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// DeleteShift удаляет закрытую смену по идентификатору. Маркер открытой смены не удаляется.
func (r *PostgresRepository) DeleteShift(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shifts WHERE id = $1 AND closed_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

// DeleteOpenShifts удаляет все маркеры открытых смен и возвращает их количество.
func (r *PostgresRepository) DeleteOpenShifts(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shifts WHERE closed_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("delete open shifts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListShifts возвращает смены, новые первыми. Закрытые упорядочены по времени закрытия.
func (r *PostgresRepository) ListShifts(ctx context.Context, closedOnly bool, limit int) ([]model.ShiftRecord, error) {
	query := `SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 ORDER BY closed_at DESC NULLS FIRST, opened_at DESC
		 LIMIT $1`
	if closedOnly {
		query = `SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 WHERE closed_at IS NOT NULL
		 ORDER BY closed_at DESC
		 LIMIT $1`
	}

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select shifts: %w", err)
	}

	shifts, err := pgx.CollectRows(rows, scanShift)
	if err != nil {
		return nil, fmt.Errorf("scan shifts: %w", err)
	}
	return shifts, nil
}

func scanShift(row pgx.CollectableRow) (model.ShiftRecord, error) {
	var (
		rec      model.ShiftRecord
		closedAt *time.Time
		snapshot *string
	)
	if err := row.Scan(&rec.ID, &rec.OpenedAt, &closedAt, &snapshot); err != nil {
		return rec, err
	}
	rec.ClosedAt = closedAt
	if snapshot != nil {
		s := model.DecodeSnapshot(*snapshot)
		rec.Snapshot = &s
	}
	return rec, nil
}

// CreateSale сохраняет продажу вместе с позициями.
func (r *PostgresRepository) CreateSale(ctx context.Context, sale model.Sale) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO sales (sold_at, total) VALUES ($1, $2) RETURNING id`,
		sale.SoldAt, sale.Total,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range sale.Items {
		batch.Queue(
			`INSERT INTO sale_items (sale_id, code, price, quantity) VALUES ($1, $2, $3, $4)`,
			id, item.Code, item.Price, item.Quantity,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert sale items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// CreatePayment сохраняет выплату.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p model.Payment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (paid_at, amount, category, is_supplier) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.PaidAt, p.Amount, p.Category, p.IsSupplier,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

// DeletePayment удаляет выплату и возвращает удалённую запись.
func (r *PostgresRepository) DeletePayment(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	err := r.pool.QueryRow(ctx,
		`DELETE FROM payments WHERE id = $1
		 RETURNING id, paid_at, amount, category, is_supplier`,
		id,
	).Scan(&p.ID, &p.PaidAt, &p.Amount, &p.Category, &p.IsSupplier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("delete payment: %w", err)
	}
	return &p, nil
}

// ListPayments возвращает выплаты указанного вида, новые первыми.
func (r *PostgresRepository) ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, paid_at, amount, category, is_supplier
		 FROM payments
		 WHERE is_supplier = $1
		 ORDER BY paid_at DESC
		 LIMIT $2`,
		isSupplier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.PaidAt, &p.Amount, &p.Category, &p.IsSupplier); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReplaceDailyBalance в одной транзакции заменяет итоги за день.
func (r *PostgresRepository) ReplaceDailyBalance(ctx context.Context, b model.DailyBalance) error {
	day := truncateDay(b.Date)

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `DELETE FROM daily_balances WHERE day = $1`, day); err != nil {
			return fmt.Errorf("delete daily balance: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO daily_balances (day, total_sales, total_entries, total_payments, total_providers, balance)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			day, b.TotalSales, b.TotalEntries, b.TotalPayments, b.TotalProviders, b.Balance,
		)
		if err != nil {
			return fmt.Errorf("insert daily balance: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ListDailyBalances возвращает сохранённые дневные итоги, новые первыми.
func (r *PostgresRepository) ListDailyBalances(ctx context.Context) ([]model.DailyBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT day, total_sales, total_entries, total_payments, total_providers, balance
		 FROM daily_balances
		 ORDER BY day DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select daily balances: %w", err)
	}
	defer rows.Close()

	var res []model.DailyBalance
	for rows.Next() {
		var b model.DailyBalance
		if err := rows.Scan(&b.Date, &b.TotalSales, &b.TotalEntries, &b.TotalPayments, &b.TotalProviders, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan daily balance: %w", err)
		}
		b.Date = truncateDay(b.Date)
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteDailyBalance удаляет итоги за день.
func (r *PostgresRepository) DeleteDailyBalance(ctx context.Context, day time.Time) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM daily_balances WHERE day = $1`, truncateDay(day))
	if err != nil {
		return fmt.Errorf("delete daily balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceNotFound
	}
	return nil
}
