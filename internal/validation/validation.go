// Package validation содержит функции валидации входных данных кассы.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mmeshcher/pos-till/internal/model"
)

// ErrInvalidInput возвращается, если входные данные не прошли проверку.
var ErrInvalidInput = errors.New("invalid input")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру по тегам validate.
func Struct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// DrawerCounts проверяет суммы закрытия смены: неотрицательные и не выше ceiling.
// Ceiling <= 0 отключает верхнюю границу.
func DrawerCounts(c model.DrawerCounts, ceiling int64) error {
	if err := Struct(c); err != nil {
		return err
	}

	if ceiling <= 0 {
		return nil
	}

	named := []struct {
		name  string
		value int64
	}{
		{"cash", c.Cash},
		{"change", c.Change},
		{"mobile", c.Mobile},
		{"card", c.Card},
	}
	for _, n := range named {
		if n.value > ceiling {
			return fmt.Errorf("%w: %s exceeds %d", ErrInvalidInput, n.name, ceiling)
		}
	}
	return nil
}
