package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-till/internal/model"
	"github.com/mmeshcher/pos-till/internal/repository"
)

// TestShiftSurvivesRestart проходит полный цикл смены на SQLite с перезапуском посередине.
func TestShiftSurvivesRestart(t *testing.T) {
	ctx := context.Background()

	repo, err := repository.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	opts := []Option{WithClock(clock.now), WithLocation(time.UTC), WithCountCeiling(1_000_000)}

	// продажа до открытия смены, но в тот же день
	_, err = repo.CreateSale(ctx, model.Sale{SoldAt: clock.t.Add(-time.Hour), Total: 1000})
	require.NoError(t, err)

	first := New(repo, zap.NewNop(), opts...)
	_, err = first.Start(ctx)
	require.NoError(t, err)

	clock.advance(time.Hour)
	_, err = repo.CreateSale(ctx, model.Sale{SoldAt: clock.t, Total: 2500})
	require.NoError(t, err)
	first.OnSale(2500)

	_, err = repo.CreatePayment(ctx, model.Payment{PaidAt: clock.t, Amount: 400, Category: "Dos Pinos", IsSupplier: true})
	require.NoError(t, err)

	// перезапуск: новое состояние в памяти поверх того же хранилища
	clock.advance(time.Hour)
	second := New(repo, zap.NewNop(), opts...)
	notice := second.Recover(ctx)
	require.True(t, notice.Restored)
	assert.Equal(t, int64(3500), notice.AccumulatedSales)

	_, err = second.Start(ctx)
	assert.ErrorIs(t, err, ErrShiftActive)

	clock.advance(time.Hour)
	res, err := second.Close(ctx, model.DrawerCounts{Cash: 2000, Change: 500, Card: 300}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(400), res.SupplierPayments)
	assert.Equal(t, int64(2000+500-300+3500-400), res.Snapshot.Total)

	_, err = repo.FindOpenShift(ctx)
	assert.ErrorIs(t, err, repository.ErrShiftNotFound)

	history, err := second.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Snapshot, history[0].Snapshot)
	assert.Equal(t, int64(400), history[0].SupplierPayments)

	third := New(repo, zap.NewNop(), opts...)
	assert.False(t, third.Recover(ctx).Restored)
}
