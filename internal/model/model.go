// Package model содержит доменные сущности кассового учёта смен.
package model

import "time"

// ShiftRecord описывает запись о смене в хранилище.
// Запись без ClosedAt является маркером открытой смены.
type ShiftRecord struct {
	ID       int64
	OpenedAt time.Time
	ClosedAt *time.Time
	Snapshot *Snapshot
}

// IsOpen сообщает, является ли запись маркером открытой смены.
func (r ShiftRecord) IsOpen() bool {
	return r.ClosedAt == nil
}

// DrawerCounts содержит суммы, введённые оператором при закрытии смены.
type DrawerCounts struct {
	Cash   int64 `json:"cash" validate:"gte=0"`
	Change int64 `json:"change" validate:"gte=0"`
	Mobile int64 `json:"mobile" validate:"gte=0"`
	Card   int64 `json:"card" validate:"gte=0"`
}

// IsZero сообщает, что все четыре суммы равны нулю.
func (c DrawerCounts) IsZero() bool {
	return c.Cash == 0 && c.Change == 0 && c.Mobile == 0 && c.Card == 0
}

// SaleItem описывает позицию продажи. Quantity может быть дробным для весового товара.
type SaleItem struct {
	Code     string
	Price    int64
	Quantity float64
}

// Sale описывает завершённую продажу.
type Sale struct {
	ID     int64
	SoldAt time.Time
	Total  int64
	Items  []SaleItem
}

// Payment описывает выплату из кассы: поставщику или прочую.
type Payment struct {
	ID         int64
	PaidAt     time.Time
	Amount     int64
	Category   string
	IsSupplier bool
}

// ShiftHistoryEntry содержит закрытую смену с пересчитанными выплатами за её период.
type ShiftHistoryEntry struct {
	Record           ShiftRecord
	Snapshot         Snapshot
	SupplierPayments int64
	GenericPayments  int64
}

// DailyBalance содержит итоги за календарный день.
type DailyBalance struct {
	Date           time.Time
	TotalSales     int64
	TotalEntries   int64
	TotalPayments  int64
	TotalProviders int64
	Balance        int64
}
