package repository

import (
	"context"
	"fmt"
)

// MaxRecentRounds — верхняя граница выборки раундов.
const MaxRecentRounds = 1000

// RecentRounds возвращает множители n последних раундов, начиная с самого нового.
// Раундов может оказаться меньше n. n больше MaxRecentRounds урезается.
func (s *Storage) RecentRounds(ctx context.Context, n int) ([]float64, error) {
	const op = "storage.RecentRounds"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxRecentRounds {
		n = MaxRecentRounds
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT multiplier FROM rounds ORDER BY created_at DESC, id DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]float64, 0, n)
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
