package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/magabrotheeeer/signal-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signalRowColumns = []string{"id", "user_id", "multiplier", "amount", "status", "created_at", "activated_at"}

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return &Storage{DB: db}, mock
}

func TestStorage_GetUser(t *testing.T) {
	last := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
		check   func(t *testing.T, u *models.User)
	}{
		{
			name: "user found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, chat_id, username, role, energy`).
					WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "username", "role", "energy",
						"is_access_allowed", "has_credential", "last_signal_request_at"}).
						AddRow(7, "100500", "bob", "user", 3, true, true, last))
			},
			check: func(t *testing.T, u *models.User) {
				assert.Equal(t, int64(7), u.ID)
				assert.Equal(t, "100500", u.ChatID)
				assert.Equal(t, 3, u.Energy)
				assert.True(t, u.HasCredential)
				require.NotNil(t, u.LastSignalRequestAt)
				assert.True(t, last.Equal(*u.LastSignalRequestAt))
			},
		},
		{
			name: "user not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, chat_id, username, role, energy`).
					WithArgs(int64(7)).
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: models.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			tt.setup(mock)

			u, err := storage.GetUser(context.Background(), 7)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				tt.check(t, u)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_FindEligibleUsers(t *testing.T) {
	storage, mock := newMockStorage(t)
	readyBefore := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`u\.energy >= 1`).
		WithArgs(readyBefore).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(5))

	ids, err := storage.FindEligibleUsers(context.Background(), readyBefore)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GrantSignal(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "granted",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(`UPDATE users SET last_signal_request_at`).
					WithArgs(int64(3), now).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO signals`).
					WithArgs(int64(3), now).
					WillReturnRows(sqlmock.NewRows(signalRowColumns).AddRow(11, 3, 0.0, 0, "pending", now, nil))
				mock.ExpectCommit()
			},
		},
		{
			name: "open signal already exists",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
				mock.ExpectRollback()
			},
			wantErr: models.ErrSignalExists,
		},
		{
			name: "unique violation is a lost race",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(`UPDATE users SET last_signal_request_at`).
					WithArgs(int64(3), now).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO signals`).
					WithArgs(int64(3), now).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
				mock.ExpectRollback()
			},
			wantErr: models.ErrSignalExists,
		},
		{
			name: "user vanished",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
					WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: models.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			tt.setup(mock)

			sig, err := storage.GrantSignal(context.Background(), 3, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sig)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(11), sig.ID)
				assert.Equal(t, models.SignalStatusPending, sig.Status)
				assert.Nil(t, sig.ActivatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_ActivateSignal(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "pending signal activated", affected: 1, want: true},
		{name: "signal gone", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			mock.ExpectExec(`UPDATE signals\s+SET status = 'active'`).
				WithArgs(int64(4), 2.35, at).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := storage.ActivateSignal(context.Background(), 4, 2.35, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_ClaimSignal(t *testing.T) {
	cutoff := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	activated := cutoff.Add(10 * time.Second)

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "claimed",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT energy FROM users`).
					WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"energy"}).AddRow(2))
				mock.ExpectQuery(`UPDATE signals SET status = 'completed'`).
					WithArgs(int64(9), int64(1), cutoff).
					WillReturnRows(sqlmock.NewRows(signalRowColumns).AddRow(9, 1, 2.5, 0, "completed", cutoff, activated))
				mock.ExpectExec(`UPDATE users SET energy = energy - 1`).
					WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "no energy",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT energy FROM users`).
					WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"energy"}).AddRow(0))
				mock.ExpectRollback()
			},
			wantErr: models.ErrInsufficientEnergy,
		},
		{
			name: "signal not active",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT energy FROM users`).
					WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"energy"}).AddRow(2))
				mock.ExpectQuery(`UPDATE signals SET status = 'completed'`).
					WithArgs(int64(9), int64(1), cutoff).
					WillReturnRows(sqlmock.NewRows(signalRowColumns))
				mock.ExpectRollback()
			},
			wantErr: models.ErrSignalNotFound,
		},
		{
			name: "unknown user",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT energy FROM users`).
					WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			wantErr: models.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			tt.setup(mock)

			sig, err := storage.ClaimSignal(context.Background(), 1, 9, cutoff)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.SignalStatusCompleted, sig.Status)
				require.NotNil(t, sig.ActivatedAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_FindOpenSignal_NotFound(t *testing.T) {
	storage, mock := newMockStorage(t)
	mock.ExpectQuery(`status IN \('pending', 'active'\)`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(signalRowColumns))

	_, err := storage.FindOpenSignal(context.Background(), 2)
	assert.ErrorIs(t, err, models.ErrSignalNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_DeleteExpired(t *testing.T) {
	storage, mock := newMockStorage(t)
	cutoff := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM signals WHERE status = 'active' AND activated_at <= \$1`).
		WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM signals WHERE status = 'pending' AND created_at <= \$1`).
		WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := storage.DeleteExpiredActive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = storage.DeleteExpiredPending(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_ListSignals(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	userID := int64(5)
	signalID := int64(2)
	multiplier := 2.1
	amount := 0

	tests := []struct {
		name   string
		filter models.SignalFilter
		query  string
		args   []driver.Value
	}{
		{
			name:   "all users",
			filter: models.SignalFilter{Limit: 10},
			query:  `WHERE status <> 'pending' ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`,
			args:   []driver.Value{10, 0},
		},
		{
			name:   "own completed signals",
			filter: models.SignalFilter{UserID: &userID, Status: "completed", Limit: 5, Offset: 5},
			query:  `user_id = \$1 AND status = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`,
			args:   []driver.Value{userID, "completed", 5, 5},
		},
		{
			name:   "by id multiplier and amount",
			filter: models.SignalFilter{ID: &signalID, Multiplier: &multiplier, Amount: &amount, Limit: 10},
			query:  `id = \$1 AND multiplier = \$2 AND amount = \$3 ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`,
			args:   []driver.Value{signalID, multiplier, amount, 10, 0},
		},
		{
			name:   "username substring escapes wildcards",
			filter: models.SignalFilter{Username: `bob_1%`, Limit: 10},
			query:  `user_id IN \(SELECT id FROM users WHERE username LIKE \$1 ESCAPE '\\'\) ORDER BY`,
			args:   []driver.Value{`%bob\_1\%%`, 10, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			mock.ExpectQuery(tt.query).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(signalRowColumns).
					AddRow(2, 5, 2.1, 0, "completed", created, created))

			got, err := storage.ListSignals(context.Background(), tt.filter)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, models.SignalStatusCompleted, got[0].Status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecentRounds(t *testing.T) {
	storage, mock := newMockStorage(t)
	mock.ExpectQuery(`SELECT multiplier FROM rounds`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"multiplier"}).AddRow(1.2).AddRow(2.4))

	got, err := storage.RecentRounds(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.2, 2.4}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_RecentRoundsLimitIsCapped(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantLimit int
	}{
		{name: "at cap", n: MaxRecentRounds, wantLimit: MaxRecentRounds},
		{name: "above cap", n: MaxRecentRounds + 1, wantLimit: MaxRecentRounds},
		{name: "max int", n: math.MaxInt, wantLimit: MaxRecentRounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t)
			mock.ExpectQuery(`SELECT multiplier FROM rounds`).
				WithArgs(tt.wantLimit).
				WillReturnRows(sqlmock.NewRows([]string{"multiplier"}).AddRow(1.5))

			got, err := storage.RecentRounds(context.Background(), tt.n)
			require.NoError(t, err)
			assert.Equal(t, []float64{1.5}, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecentRoundsNonPositive(t *testing.T) {
	storage, mock := newMockStorage(t)

	got, err := storage.RecentRounds(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_GetSetting(t *testing.T) {
	storage, mock := newMockStorage(t)
	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("analysis_rounds").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`"15"`)))
	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	raw, found, err := storage.GetSetting(context.Background(), "analysis_rounds")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"15"`, string(raw))

	raw, found, err = storage.GetSetting(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, raw)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_TryWithLock(t *testing.T) {
	t.Run("acquired and released", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		key := LockKey(LockAdmission)
		mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
			WithArgs(key).WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
		mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
			WithArgs(key).WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))

		called := false
		ok, err := storage.TryWithLock(context.Background(), LockAdmission, func(context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("held elsewhere", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(false))

		ok, err := storage.TryWithLock(context.Background(), LockAdmission, func(context.Context) error {
			t.Fatal("must not run without the lock")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("released when fn fails", func(t *testing.T) {
		storage, mock := newMockStorage(t)
		mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
		mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
			WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))

		boom := errors.New("boom")
		ok, err := storage.TryWithLock(context.Background(), LockAdmission, func(context.Context) error {
			return boom
		})
		assert.True(t, ok)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLockKey_Distinct(t *testing.T) {
	assert.Equal(t, LockKey(LockAdmission), LockKey(LockAdmission))
	assert.NotEqual(t, LockKey(LockAdmission), LockKey(LockEnergyRefill))
}
