package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetSetting возвращает сырое JSON-значение настройки key.
// found == false, если ключа нет в таблице.
func (s *Storage) GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error) {
	const op = "storage.GetSetting"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return json.RawMessage(raw), true, nil
}
