package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fluxscan/pkg/config"
)

func connect(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestNewWithInvalidURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "invalid://url", MaxConns: 5}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	db := connect(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.NotZero(t, status.Stats.MaxConns)
}

func TestWithTx(t *testing.T) {
	db := connect(t)
	ctx := context.Background()

	var got int
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, "SELECT 1").Scan(&got)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	assert.Error(t, db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "SELECT * FROM table_that_does_not_exist")
		return err
	}))
}

func TestCloseTwice(t *testing.T) {
	db := connect(t)
	db.Close()
	db.Close()
}
