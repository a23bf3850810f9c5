package ledger

import (
	"context"
	"fmt"

	"github.com/mmeshcher/pos-till/internal/model"
)

// DefaultHistoryLimit ограничивает количество закрытий в истории.
const DefaultHistoryLimit = 50

// History возвращает последние закрытые смены. Выплаты поставщикам и прочие выплаты
// пересчитываются из хранилища за период каждой смены.
func (l *Ledger) History(ctx context.Context, limit int) ([]model.ShiftHistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	shifts, err := l.store.ListShifts(ctx, true, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed shifts: %w", err)
	}

	entries := make([]model.ShiftHistoryEntry, 0, len(shifts))
	for _, s := range shifts {
		if s.ClosedAt == nil {
			continue
		}

		entry := model.ShiftHistoryEntry{Record: s}
		if s.Snapshot != nil {
			entry.Snapshot = *s.Snapshot
		}
		entry.SupplierPayments = l.sumPayments(ctx, true, s.OpenedAt, *s.ClosedAt)
		entry.GenericPayments = l.sumPayments(ctx, false, s.OpenedAt, *s.ClosedAt)

		entries = append(entries, entry)
	}

	return entries, nil
}

// DeleteHistoryEntry удаляет закрытую смену из истории.
func (l *Ledger) DeleteHistoryEntry(ctx context.Context, id int64) error {
	if err := l.store.DeleteShift(ctx, id); err != nil {
		return fmt.Errorf("delete shift %d: %w", id, err)
	}
	return nil
}
