// Package timerange проверяет попадание времени суток в разрешённые интервалы "HH:MM".
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/models"
)

const minutesPerDay = 24 * 60

// Parse переводит "HH:MM" в минуты от полуночи.
func Parse(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("timerange: invalid time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("timerange: invalid hours in %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("timerange: invalid minutes in %q", s)
	}
	return hours*60 + minutes, nil
}

// InRange сообщает, попадает ли minute в [start, end] включительно.
// При start > end интервал переходит через полночь.
func InRange(minute, start, end int) bool {
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

// Allowed сообщает, попадает ли now (в часовом поясе loc) хотя бы в один интервал.
// Некорректные интервалы пропускаются. Если корректных интервалов нет,
// ограничения не действуют.
func Allowed(now time.Time, loc *time.Location, ranges []models.TimeRange) bool {
	local := now.In(loc)
	minute := (local.Hour()*60 + local.Minute()) % minutesPerDay

	valid := 0
	for _, r := range ranges {
		start, err := Parse(r.Start)
		if err != nil {
			continue
		}
		end, err := Parse(r.End)
		if err != nil {
			continue
		}
		valid++
		if InRange(minute, start, end) {
			return true
		}
	}
	return valid == 0
}
