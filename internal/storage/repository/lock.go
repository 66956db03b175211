package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"time"
)

const unlockTimeout = 5 * time.Second

// Имена кластерных блокировок периодических задач.
const (
	LockAdmission    = "signal-admission"
	LockEnergyRefill = "energy-refill"
)

// LockKey переводит имя блокировки в ключ pg_advisory_lock.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// TryWithLock пытается без ожидания захватить advisory-блокировку name
// и, если удалось, выполняет fn. Блокировка живёт на выделенном соединении
// и снимается при любом исходе fn, включая панику.
// Возвращает false, если блокировку держит другой процесс.
func (s *Storage) TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	const op = "storage.TryWithLock"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: get conn: %w", op, err)
	}

	key := LockKey(name)
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("%s: try lock: %w", op, err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	defer releaseLock(conn, key)

	return true, fn(ctx)
}

// releaseLock снимает блокировку на отдельном контексте, чтобы отмена ctx задачи
// не оставила её висеть. Если снять не удалось, соединение выбрасывается
// из пула, и сервер освободит блокировку вместе с сессией.
func releaseLock(conn *sql.Conn, key int64) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	var released bool
	err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released)
	if err != nil || !released {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = conn.Close()
}
