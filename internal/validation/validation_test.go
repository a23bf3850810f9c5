package validation

import (
	"errors"
	"testing"

	"github.com/mmeshcher/pos-till/internal/model"
)

func TestDrawerCounts(t *testing.T) {
	tests := []struct {
		name    string
		counts  model.DrawerCounts
		ceiling int64
		valid   bool
	}{
		{
			name:    "all within ceiling",
			counts:  model.DrawerCounts{Cash: 50000, Change: 10000, Mobile: 5000, Card: 8000},
			ceiling: 1_000_000,
			valid:   true,
		},
		{
			name:    "all zero",
			counts:  model.DrawerCounts{},
			ceiling: 1_000_000,
			valid:   true,
		},
		{
			name:    "negative cash",
			counts:  model.DrawerCounts{Cash: -1},
			ceiling: 1_000_000,
			valid:   false,
		},
		{
			name:    "card above ceiling",
			counts:  model.DrawerCounts{Card: 1_000_001},
			ceiling: 1_000_000,
			valid:   false,
		},
		{
			name:    "ceiling disabled",
			counts:  model.DrawerCounts{Cash: 5_000_000_000},
			ceiling: 0,
			valid:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DrawerCounts(tt.counts, tt.ceiling)
			if tt.valid && err != nil {
				t.Fatalf("DrawerCounts(%+v) = %v, want nil", tt.counts, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("DrawerCounts(%+v) = %v, want ErrInvalidInput", tt.counts, err)
			}
		})
	}
}

func TestStruct(t *testing.T) {
	type payment struct {
		Amount   int64  `validate:"gt=0"`
		Category string `validate:"required"`
	}

	if err := Struct(payment{Amount: 10, Category: "rent"}); err != nil {
		t.Fatalf("Struct() = %v, want nil", err)
	}
	if err := Struct(payment{Amount: 0, Category: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Struct() = %v, want ErrInvalidInput", err)
	}
}
