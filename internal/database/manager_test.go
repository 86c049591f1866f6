package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/maslennikov-ig/MC-2-sub003/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Manager) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	manager, err := NewManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return mock, manager
}

func TestNewManager_NilDB(t *testing.T) {
	_, err := NewManager(nil, PoolConfig{}, nil)
	assert.Error(t, err)
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Name: "regen"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}
	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	manager, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Ping(context.Background()))
	assert.Equal(t, "sqlite", manager.DB().Dialector.Name())
}

func TestManager_Ping(t *testing.T) {
	mock, manager := setupMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Stats(t *testing.T) {
	_, manager := setupMockDB(t)
	stats := manager.Stats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

func TestManager_WithTransaction(t *testing.T) {
	mock, manager := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRetry(t *testing.T) {
	mock, manager := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WithTransactionRetry_Permanent(t *testing.T) {
	mock, manager := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("unique constraint violated")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not retried")
}

func TestManager_Close(t *testing.T) {
	mock, manager := setupMockDB(t)
	manager.config.HealthCheckInterval = 0

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrClosed)
	assert.ErrorIs(t, manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil }), ErrClosed)
}

func TestManager_HealthCheckLoopStops(t *testing.T) {
	manager, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	manager.config.HealthCheckInterval = time.Millisecond

	done := make(chan struct{})
	go func() {
		_ = manager.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("database is locked")))
	assert.True(t, isTransient(errors.New("pq: could not serialize access (SQLSTATE 40001)")))
	assert.False(t, isTransient(errors.New("syntax error")))
	assert.False(t, isTransient(ErrClosed))
	assert.False(t, isTransient(nil))
}
