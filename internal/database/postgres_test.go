package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/internal/config"
)

func TestApplyPoolConfig(t *testing.T) {
	poolConfig, err := pgxpool.ParseConfig("postgres://u:p@db:5432/camtrap")
	require.NoError(t, err)

	applyPoolConfig(poolConfig, config.PostgresConfig{MaxOpen: 8, MaxIdle: 2, ConnMaxLifetime: time.Hour})
	assert.EqualValues(t, 8, poolConfig.MaxConns)
	assert.EqualValues(t, 2, poolConfig.MinConns)
	assert.Equal(t, time.Hour, poolConfig.MaxConnLifetime)
	assert.Equal(t, "camtrap", poolConfig.ConnConfig.RuntimeParams["application_name"])

	poolConfig, err = pgxpool.ParseConfig("postgres://u:p@db:5432/camtrap?application_name=ops")
	require.NoError(t, err)
	applyPoolConfig(poolConfig, config.PostgresConfig{MaxOpen: 2, MaxIdle: 5})
	assert.EqualValues(t, 0, poolConfig.MinConns)
	assert.Equal(t, "ops", poolConfig.ConnConfig.RuntimeParams["application_name"])
}

func TestNewPostgresPoolRejectsEmptyDSN(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), config.PostgresConfig{})
	assert.ErrorContains(t, err, "dsn is empty")
}
