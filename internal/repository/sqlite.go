package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mmeshcher/pos-till/internal/model"
)

// SQLiteRepository хранит данные кассы в локальном файле SQLite.
// Время хранится в микросекундах Unix, соединение одно: у кассы один писатель.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository открывает файл базы (":memory:" для базы в памяти) и применяет миграции.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает файл базы.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// SumPaymentAmounts возвращает сумму выплат указанного вида в интервале [from, to].
func (r *SQLiteRepository) SumPaymentAmounts(ctx context.Context, isSupplier bool, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payments
		 WHERE is_supplier = ? AND paid_at >= ? AND paid_at <= ?`,
		isSupplier, toMicros(from), toMicros(to),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// SumSaleTotals возвращает сумму продаж в интервале [from, to].
func (r *SQLiteRepository) SumSaleTotals(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0)
		 FROM sales
		 WHERE sold_at >= ? AND sold_at <= ?`,
		toMicros(from), toMicros(to),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum sales: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteShift(row rowScanner) (model.ShiftRecord, error) {
	var (
		rec      model.ShiftRecord
		openedAt int64
		closedAt sql.NullInt64
		snapshot sql.NullString
	)
	if err := row.Scan(&rec.ID, &openedAt, &closedAt, &snapshot); err != nil {
		return rec, err
	}
	rec.OpenedAt = fromMicros(openedAt)
	if closedAt.Valid {
		t := fromMicros(closedAt.Int64)
		rec.ClosedAt = &t
	}
	if snapshot.Valid {
		s := model.DecodeSnapshot(snapshot.String)
		rec.Snapshot = &s
	}
	return rec, nil
}

// FindOpenShift возвращает самый свежий маркер открытой смены.
func (r *SQLiteRepository) FindOpenShift(ctx context.Context) (*model.ShiftRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 WHERE closed_at IS NULL
		 ORDER BY opened_at DESC
		 LIMIT 1`,
	)

	rec, err := scanSQLiteShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShiftNotFound
		}
		return nil, fmt.Errorf("select open shift: %w", err)
	}
	return &rec, nil
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

// InsertShift сохраняет запись смены и возвращает её идентификатор.
func (r *SQLiteRepository) InsertShift(ctx context.Context, rec model.ShiftRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO shifts (opened_at, closed_at, snapshot) VALUES (?, ?, ?)`,
		toMicros(rec.OpenedAt), nullableMicros(rec.ClosedAt), snapshotText(rec.Snapshot),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrOpenShiftExists
		}
		return 0, fmt.Errorf("insert shift: %w", err)
	}
	return res.LastInsertId()
}

// CloseShift в одной транзакции сохраняет закрытую смену и удаляет маркер открытой смены.
func (r *SQLiteRepository) CloseShift(ctx context.Context, rec model.ShiftRecord) (int64, error) {
	if rec.ClosedAt == nil {
		return 0, ErrShiftNotClosed
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shifts WHERE closed_at IS NULL`); err != nil {
		return 0, fmt.Errorf("delete open marker: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO shifts (opened_at, closed_at, snapshot) VALUES (?, ?, ?)`,
		toMicros(rec.OpenedAt), nullableMicros(rec.ClosedAt), snapshotText(rec.Snapshot),
	)
	if err != nil {
		return 0, fmt.Errorf("insert closed shift: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// DeleteShift удаляет закрытую смену по идентификатору. Маркер открытой смены не удаляется.
func (r *SQLiteRepository) DeleteShift(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = ? AND closed_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrShiftNotFound
	}
	return nil
}

// DeleteOpenShifts удаляет все маркеры открытых смен и возвращает их количество.
func (r *SQLiteRepository) DeleteOpenShifts(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shifts WHERE closed_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("delete open shifts: %w", err)
	}
	return res.RowsAffected()
}

// ListShifts возвращает смены, новые первыми. Закрытые упорядочены по времени закрытия.
func (r *SQLiteRepository) ListShifts(ctx context.Context, closedOnly bool, limit int) ([]model.ShiftRecord, error) {
	query := `SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 ORDER BY closed_at IS NOT NULL, closed_at DESC, opened_at DESC
		 LIMIT ?`
	if closedOnly {
		query = `SELECT id, opened_at, closed_at, snapshot
		 FROM shifts
		 WHERE closed_at IS NOT NULL
		 ORDER BY closed_at DESC
		 LIMIT ?`
	}

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select shifts: %w", err)
	}
	defer rows.Close()

	var res []model.ShiftRecord
	for rows.Next() {
		rec, err := scanSQLiteShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateSale сохраняет продажу вместе с позициями.
func (r *SQLiteRepository) CreateSale(ctx context.Context, sale model.Sale) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sales (sold_at, total) VALUES (?, ?)`,
		toMicros(sale.SoldAt), sale.Total,
	)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sale_items (sale_id, code, price, quantity) VALUES (?, ?, ?, ?)`,
			id, item.Code, item.Price, item.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// CreatePayment сохраняет выплату.
func (r *SQLiteRepository) CreatePayment(ctx context.Context, p model.Payment) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (paid_at, amount, category, is_supplier) VALUES (?, ?, ?, ?)`,
		toMicros(p.PaidAt), p.Amount, p.Category, p.IsSupplier,
	)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return res.LastInsertId()
}

func scanSQLitePayment(row rowScanner) (model.Payment, error) {
	var (
		p      model.Payment
		paidAt int64
	)
	if err := row.Scan(&p.ID, &paidAt, &p.Amount, &p.Category, &p.IsSupplier); err != nil {
		return p, err
	}
	p.PaidAt = fromMicros(paidAt)
	return p, nil
}

// DeletePayment удаляет выплату и возвращает удалённую запись.
func (r *SQLiteRepository) DeletePayment(ctx context.Context, id int64) (*model.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := scanSQLitePayment(tx.QueryRowContext(ctx,
		`SELECT id, paid_at, amount, category, is_supplier FROM payments WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &p, nil
}

// ListPayments возвращает выплаты указанного вида, новые первыми.
func (r *SQLiteRepository) ListPayments(ctx context.Context, isSupplier bool, limit int) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, paid_at, amount, category, is_supplier
		 FROM payments
		 WHERE is_supplier = ?
		 ORDER BY paid_at DESC
		 LIMIT ?`,
		isSupplier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		p, err := scanSQLitePayment(rows)
		if err != nil {
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
func (r *SQLiteRepository) ReplaceDailyBalance(ctx context.Context, b model.DailyBalance) error {
	day := truncateDay(b.Date).Format(dayLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_balances WHERE day = ?`, day); err != nil {
		return fmt.Errorf("delete daily balance: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_balances (day, total_sales, total_entries, total_payments, total_providers, balance)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		day, b.TotalSales, b.TotalEntries, b.TotalPayments, b.TotalProviders, b.Balance,
	)
	if err != nil {
		return fmt.Errorf("insert daily balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListDailyBalances возвращает сохранённые дневные итоги, новые первыми.
func (r *SQLiteRepository) ListDailyBalances(ctx context.Context) ([]model.DailyBalance, error) {
	rows, err := r.db.QueryContext(ctx,
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
		var (
			b   model.DailyBalance
			day string
		)
		if err := rows.Scan(&day, &b.TotalSales, &b.TotalEntries, &b.TotalPayments, &b.TotalProviders, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan daily balance: %w", err)
		}
		b.Date, err = time.Parse(dayLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteDailyBalance удаляет итоги за день.
func (r *SQLiteRepository) DeleteDailyBalance(ctx context.Context, day time.Time) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM daily_balances WHERE day = ?`, truncateDay(day).Format(dayLayout))
	if err != nil {
		return fmt.Errorf("delete daily balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrBalanceNotFound
	}
	return nil
}
