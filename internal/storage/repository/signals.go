package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/models"
)

const signalColumns = `id, user_id, multiplier, amount, status, created_at, activated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	sig := &models.Signal{}
	var activated sql.NullTime
	if err := row.Scan(&sig.ID, &sig.UserID, &sig.Multiplier, &sig.Amount,
		&sig.Status, &sig.CreatedAt, &activated); err != nil {
		return nil, err
	}
	if activated.Valid {
		sig.ActivatedAt = &activated.Time
	}
	return sig, nil
}

// GrantSignal выдаёт пользователю новый сигнал в статусе pending.
// Строка пользователя блокируется, наличие незавершённого сигнала проверяется
// повторно внутри транзакции. Если сигнал уже есть или запись проиграла гонку
// параллельной выдаче, возвращается models.ErrSignalExists.
func (s *Storage) GrantSignal(ctx context.Context, userID int64, now time.Time) (*models.Signal, error) {
	const op = "storage.GrantSignal"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var sig *models.Signal
	err := WithTx(ctx, s.DB, nil, func(tx DBTX) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrUserNotFound
			}
			return err
		}

		var exists bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS (
				SELECT 1 FROM signals
				WHERE user_id = $1 AND status IN ('pending', 'active')
			)`, userID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return models.ErrSignalExists
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET last_signal_request_at = $2 WHERE id = $1`, userID, now); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `INSERT INTO signals (user_id, multiplier, amount, status, created_at)
				VALUES ($1, 0, 0, 'pending', $2)
				RETURNING `+signalColumns, userID, now)
		sig, err = scanSignal(row)
		return err
	})
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSignalExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sig, nil
}

// GetSignal возвращает сигнал по идентификатору.
func (s *Storage) GetSignal(ctx context.Context, signalID int64) (*models.Signal, error) {
	const op = "storage.GetSignal"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sig, err := scanSignal(s.DB.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1`, signalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSignalNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sig, nil
}

// ActivateSignal переводит сигнал из pending в active с указанным множителем.
// Возвращает false, если сигнал уже удалён или не находится в pending.
func (s *Storage) ActivateSignal(ctx context.Context, signalID int64, multiplier float64, at time.Time) (bool, error) {
	const op = "storage.ActivateSignal"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE signals
			SET status = 'active', multiplier = $2, activated_at = $3
			WHERE id = $1 AND status = 'pending'`, signalID, multiplier, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// ClaimSignal подтверждает активный сигнал пользователя и списывает одну единицу энергии.
// Сигнал должен принадлежать пользователю, быть в статусе active и активирован
// позже activatedAfter. Переход active -> completed выполняется одним условным
// UPDATE под блокировкой строки пользователя, поэтому при параллельных вызовах
// успешен ровно один, остальные получают models.ErrSignalNotFound.
func (s *Storage) ClaimSignal(ctx context.Context, userID, signalID int64, activatedAfter time.Time) (*models.Signal, error) {
	const op = "storage.ClaimSignal"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var sig *models.Signal
	err := WithTx(ctx, s.DB, nil, func(tx DBTX) error {
		var energy int
		err := tx.QueryRowContext(ctx, `SELECT energy FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&energy)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrUserNotFound
			}
			return err
		}
		if energy < 1 {
			return models.ErrInsufficientEnergy
		}

		row := tx.QueryRowContext(ctx, `UPDATE signals SET status = 'completed'
				WHERE id = $1 AND user_id = $2 AND status = 'active' AND activated_at > $3
				RETURNING `+signalColumns, signalID, userID, activatedAfter)
		sig, err = scanSignal(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrSignalNotFound
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE users SET energy = energy - 1 WHERE id = $1`, userID)
		return err
	})
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSignalNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sig, nil
}

// FindOpenSignal возвращает незавершённый (pending или active) сигнал пользователя.
func (s *Storage) FindOpenSignal(ctx context.Context, userID int64) (*models.Signal, error) {
	const op = "storage.FindOpenSignal"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sig, err := scanSignal(s.DB.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
			WHERE user_id = $1 AND status IN ('pending', 'active')
			ORDER BY created_at DESC
			LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSignalNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sig, nil
}

// DeletePendingByUser удаляет pending сигналы пользователя.
func (s *Storage) DeletePendingByUser(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.DeletePendingByUser"
	return s.deleteWhere(ctx, op, `DELETE FROM signals WHERE user_id = $1 AND status = 'pending'`, userID)
}

// DeleteExpiredActive удаляет активные сигналы, активированные не позже cutoff.
func (s *Storage) DeleteExpiredActive(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "storage.DeleteExpiredActive"
	return s.deleteWhere(ctx, op, `DELETE FROM signals WHERE status = 'active' AND activated_at <= $1`, cutoff)
}

// DeleteExpiredPending удаляет pending сигналы, созданные не позже cutoff.
func (s *Storage) DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "storage.DeleteExpiredPending"
	return s.deleteWhere(ctx, op, `DELETE FROM signals WHERE status = 'pending' AND created_at <= $1`, cutoff)
}

func (s *Storage) deleteWhere(ctx context.Context, op, query string, args ...any) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// likeEscaper экранирует спецсимволы шаблона LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListSignals возвращает историю сигналов (кроме pending), начиная с самых новых.
func (s *Storage) ListSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error) {
	const op = "storage.ListSignals"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	conds := []string{"status <> 'pending'"}
	var args []any
	where := func(format string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}
	if filter.ID != nil {
		where("id = $%d", *filter.ID)
	}
	if filter.UserID != nil {
		where("user_id = $%d", *filter.UserID)
	}
	if filter.Multiplier != nil {
		where("multiplier = $%d", *filter.Multiplier)
	}
	if filter.Amount != nil {
		where("amount = $%d", *filter.Amount)
	}
	if filter.Status != "" {
		where("status = $%d", filter.Status)
	}
	if filter.Username != "" {
		where(`user_id IN (SELECT id FROM users WHERE username LIKE $%d ESCAPE '\')`,
			"%"+likeEscaper.Replace(filter.Username)+"%")
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM signals WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		signalColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.Signal, 0, filter.Limit)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
