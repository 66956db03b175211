package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает пользователя с паролем, доступом и указанной энергией
func (f *TestDataFactory) CreateUser(t *testing.T, energy int) int64 {
	t.Helper()
	var passwordID, userID int64
	err := f.storage.DB.QueryRow(`INSERT INTO passwords (password) VALUES (md5(random()::text)) RETURNING id`).
		Scan(&passwordID)
	require.NoError(t, err)
	err = f.storage.DB.QueryRow(`INSERT INTO users (chat_id, username, energy, is_access_allowed, password_id)
		VALUES ('1', 'tester', $1, TRUE, $2) RETURNING id`, energy, passwordID).Scan(&userID)
	require.NoError(t, err)
	return userID
}

// CreateSignal создает сигнал в заданном состоянии
func (f *TestDataFactory) CreateSignal(t *testing.T, userID int64, status string, createdAt time.Time, activatedAt *time.Time) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO signals (user_id, multiplier, status, created_at, activated_at)
		VALUES ($1, 2.5, $2, $3, $4) RETURNING id`, userID, status, createdAt, activatedAt).Scan(&id)
	require.NoError(t, err)
	return id
}

// TestVerification содержит общие функции для проверки результатов тестов
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает новый объект для проверки результатов
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// OpenSignals возвращает количество незавершённых сигналов пользователя
func (v *TestVerification) OpenSignals(t *testing.T, userID int64) int {
	t.Helper()
	var count int
	err := v.storage.DB.QueryRow(`SELECT COUNT(*) FROM signals
		WHERE user_id = $1 AND status IN ('pending', 'active')`, userID).Scan(&count)
	require.NoError(t, err)
	return count
}

// Energy возвращает текущую энергию пользователя
func (v *TestVerification) Energy(t *testing.T, userID int64) int {
	t.Helper()
	var energy int
	require.NoError(t, v.storage.DB.QueryRow(`SELECT energy FROM users WHERE id = $1`, userID).Scan(&energy))
	return energy
}

// SignalExists проверяет наличие сигнала
func (v *TestVerification) SignalExists(t *testing.T, signalID int64) bool {
	t.Helper()
	var exists bool
	require.NoError(t, v.storage.DB.QueryRow(`SELECT EXISTS (SELECT 1 FROM signals WHERE id = $1)`, signalID).
		Scan(&exists))
	return exists
}

// setupTestDatabase поднимает контейнер PostgreSQL и применяет миграции
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(connStr)
	require.NoError(t, err)

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	t.Cleanup(func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return storage
}
