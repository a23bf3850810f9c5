package model

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const snapshotFields = 6

// Snapshot содержит итоговые суммы смены, зафиксированные при закрытии.
type Snapshot struct {
	Cash   int64 `json:"cash"`
	Change int64 `json:"change"`
	Mobile int64 `json:"mobile"`
	Card   int64 `json:"card"`
	Sales  int64 `json:"sales"`
	Total  int64 `json:"total"`
}

// Encode кодирует снимок в строку формата cash,change,mobile,card,sales,total.
func (s Snapshot) Encode() string {
	fields := []int64{s.Cash, s.Change, s.Mobile, s.Card, s.Sales, s.Total}
	parts := make([]string, 0, snapshotFields)
	for _, f := range fields {
		parts = append(parts, strconv.FormatInt(f, 10))
	}
	return strings.Join(parts, ",")
}

// DecodeSnapshot разбирает строку снимка. Старые записи с дробной частью ("50000.0")
// усекаются до целого. Любая повреждённая строка даёт нулевой снимок без ошибки.
func DecodeSnapshot(raw string) Snapshot {
	parts := strings.Split(raw, ",")
	if len(parts) < snapshotFields {
		return Snapshot{}
	}

	values := make([]int64, snapshotFields)
	for i := 0; i < snapshotFields; i++ {
		d, err := decimal.NewFromString(strings.TrimSpace(parts[i]))
		if err != nil {
			return Snapshot{}
		}
		values[i] = d.IntPart()
	}

	return Snapshot{
		Cash:   values[0],
		Change: values[1],
		Mobile: values[2],
		Card:   values[3],
		Sales:  values[4],
		Total:  values[5],
	}
}
