package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// GetUser возвращает пользователя по идентификатору.
func (s *Storage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, chat_id, username, role, energy, is_access_allowed,
			      password_id IS NOT NULL, last_signal_request_at
			  FROM users
			  WHERE id = $1`
	u := &models.User{}
	var last sql.NullTime
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&u.ID, &u.ChatID, &u.Username,
		&u.Role, &u.Energy, &u.IsAccessAllowed, &u.HasCredential, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if last.Valid {
		u.LastSignalRequestAt = &last.Time
	}
	return u, nil
}

// FindEligibleUsers возвращает идентификаторы пользователей, которым можно выдать сигнал:
// доступ разрешён, есть энергия и пароль, период восстановления истёк
// (последняя выдача не позже readyBefore) и нет незавершённого сигнала.
func (s *Storage) FindEligibleUsers(ctx context.Context, readyBefore time.Time) ([]int64, error) {
	const op = "storage.FindEligibleUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.id
			  FROM users u
			  WHERE u.is_access_allowed = TRUE
			    AND u.energy >= 1
			    AND u.password_id IS NOT NULL
			    AND (u.last_signal_request_at IS NULL OR u.last_signal_request_at <= $1)
			    AND NOT EXISTS (
			        SELECT 1 FROM signals s
			        WHERE s.user_id = u.id AND s.status IN ('pending', 'active')
			    )
			  ORDER BY u.id`
	rows, err := s.DB.QueryContext(ctx, query, readyBefore)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

// RefillEnergy устанавливает энергию всех пользователей в amount.
// Возвращает количество обновлённых записей.
func (s *Storage) RefillEnergy(ctx context.Context, amount int) (int64, error) {
	const op = "storage.RefillEnergy"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE users SET energy = $1`, amount)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
