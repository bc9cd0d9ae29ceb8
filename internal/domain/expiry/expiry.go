// Пакет expiry — вычисление момента окончания доступа.
package expiry

import "time"

// Compute возвращает now (UTC) + units*unit или nil, если units == nil (бессрочно).
// Функция чистая: текущее время передаёт вызывающий.
func Compute(now time.Time, units *int, unit time.Duration) *time.Time {
	if units == nil {
		return nil
	}
	at := now.UTC().Add(time.Duration(*units) * unit)
	return &at
}
