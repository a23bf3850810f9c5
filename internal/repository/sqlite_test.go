package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/pos-till/internal/model"
)

func newMemoryRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

var base = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func TestSQLite_SumsAreInclusive(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	for _, p := range []model.Payment{
		{PaidAt: base, Amount: 100, Category: "Dos Pinos", IsSupplier: true},
		{PaidAt: base.Add(time.Hour), Amount: 250, Category: "Bimbo", IsSupplier: true},
		{PaidAt: base.Add(2 * time.Hour), Amount: 40, Category: "agua", IsSupplier: false},
		{PaidAt: base.Add(3 * time.Hour), Amount: 999, Category: "Dos Pinos", IsSupplier: true},
	} {
		_, err := repo.CreatePayment(ctx, p)
		require.NoError(t, err)
	}

	supplier, err := repo.SumPaymentAmounts(ctx, true, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(350), supplier)

	generic, err := repo.SumPaymentAmounts(ctx, false, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(40), generic)

	empty, err := repo.SumPaymentAmounts(ctx, true, base.Add(-time.Hour), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestSQLite_SalesWithItems(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	_, err := repo.CreateSale(ctx, model.Sale{
		SoldAt: base,
		Total:  3858,
		Items: []model.SaleItem{
			{Code: "A1", Price: 1500, Quantity: 2},
			{Code: "QUESO", Price: 2450, Quantity: 0.35},
		},
	})
	require.NoError(t, err)
	_, err = repo.CreateSale(ctx, model.Sale{SoldAt: base.Add(24 * time.Hour), Total: 500})
	require.NoError(t, err)

	total, err := repo.SumSaleTotals(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3858), total)
}

func TestSQLite_SingleOpenMarker(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	_, err := repo.FindOpenShift(ctx)
	assert.ErrorIs(t, err, ErrShiftNotFound)

	id, err := repo.InsertShift(ctx, model.ShiftRecord{OpenedAt: base})
	require.NoError(t, err)

	_, err = repo.InsertShift(ctx, model.ShiftRecord{OpenedAt: base.Add(time.Minute)})
	assert.ErrorIs(t, err, ErrOpenShiftExists)

	open, err := repo.FindOpenShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, open.ID)
	assert.True(t, open.IsOpen())
	assert.True(t, open.OpenedAt.Equal(base))
}

func TestSQLite_CloseShiftReplacesMarker(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	_, err := repo.InsertShift(ctx, model.ShiftRecord{OpenedAt: base})
	require.NoError(t, err)

	closedAt := base.Add(9 * time.Hour)
	snapshot := model.Snapshot{Cash: 1000, Change: 500, Sales: 7000, Total: 8500}
	id, err := repo.CloseShift(ctx, model.ShiftRecord{OpenedAt: base, ClosedAt: &closedAt, Snapshot: &snapshot})
	require.NoError(t, err)

	_, err = repo.FindOpenShift(ctx)
	assert.ErrorIs(t, err, ErrShiftNotFound)

	shifts, err := repo.ListShifts(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, id, shifts[0].ID)
	require.NotNil(t, shifts[0].ClosedAt)
	assert.True(t, shifts[0].ClosedAt.Equal(closedAt))
	require.NotNil(t, shifts[0].Snapshot)
	assert.Equal(t, snapshot, *shifts[0].Snapshot)

	_, err = repo.CloseShift(ctx, model.ShiftRecord{OpenedAt: base})
	assert.ErrorIs(t, err, ErrShiftNotClosed)
}

func TestSQLite_ListShiftsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	for i := 0; i < 3; i++ {
		opened := base.Add(time.Duration(i) * 24 * time.Hour)
		closed := opened.Add(8 * time.Hour)
		_, err := repo.CloseShift(ctx, model.ShiftRecord{OpenedAt: opened, ClosedAt: &closed, Snapshot: &model.Snapshot{Total: int64(i)}})
		require.NoError(t, err)
	}
	_, err := repo.InsertShift(ctx, model.ShiftRecord{OpenedAt: base.Add(72 * time.Hour)})
	require.NoError(t, err)

	closed, err := repo.ListShifts(ctx, true, 2)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, int64(2), closed[0].Snapshot.Total)
	assert.Equal(t, int64(1), closed[1].Snapshot.Total)

	all, err := repo.ListShifts(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].IsOpen())
}

func TestSQLite_DeleteShiftKeepsMarker(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	markerID, err := repo.InsertShift(ctx, model.ShiftRecord{OpenedAt: base})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.DeleteShift(ctx, markerID), ErrShiftNotFound)

	n, err := repo.DeleteOpenShifts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.DeleteOpenShifts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_MalformedSnapshotDecodesToZero(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO shifts (opened_at, closed_at, snapshot) VALUES (?, ?, ?)`,
		toMicros(base), toMicros(base.Add(time.Hour)), "10,20,abc",
	)
	require.NoError(t, err)

	shifts, err := repo.ListShifts(ctx, true, 1)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	require.NotNil(t, shifts[0].Snapshot)
	assert.Equal(t, model.Snapshot{}, *shifts[0].Snapshot)
}

func TestSQLite_DeletePaymentReturnsRecord(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	id, err := repo.CreatePayment(ctx, model.Payment{PaidAt: base, Amount: 700, Category: "luz"})
	require.NoError(t, err)

	p, err := repo.DeletePayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(700), p.Amount)
	assert.Equal(t, "luz", p.Category)
	assert.False(t, p.IsSupplier)

	_, err = repo.DeletePayment(ctx, id)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	list, err := repo.ListPayments(ctx, false, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_DailyBalanceReplace(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ReplaceDailyBalance(ctx, model.DailyBalance{Date: day, TotalSales: 100, Balance: 100}))
	require.NoError(t, repo.ReplaceDailyBalance(ctx, model.DailyBalance{Date: day, TotalSales: 300, TotalEntries: 50, Balance: 250}))
	require.NoError(t, repo.ReplaceDailyBalance(ctx, model.DailyBalance{Date: day.AddDate(0, 0, -1), Balance: 10}))

	list, err := repo.ListDailyBalances(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Date.Equal(day))
	assert.Equal(t, int64(250), list[0].Balance)
	assert.Equal(t, int64(50), list[0].TotalEntries)

	require.NoError(t, repo.DeleteDailyBalance(ctx, day))
	assert.ErrorIs(t, repo.DeleteDailyBalance(ctx, day), ErrBalanceNotFound)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "", "")
	assert.Error(t, err)
}
