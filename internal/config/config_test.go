package config_test

import (
	"strings"
	"testing"
	"time"

	"db-sync/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
state:
  backend: sqlite
  path: /tmp/state.db
jobs:
  - name: orders
    schedule: "*/15 * * * *"
    source: { driver: mysql, dsn: "root:root@tcp(127.0.0.1:3306)/shop", table: orders }
    destination: { driver: postgres, dsn: "postgres://localhost/dw", table: public.orders_copy }
    query: "SELECT id, amount FROM {table} WHERE amount > 0"
    deleted_column: is_deleted
    batch_size: 500
    retry: { max_retries: 5, base_delay: 2s }
    throttle_delay: 10ms
  - name: users
    source: { driver: pgx, dsn: "postgres://localhost/app", table: users }
    destination: { driver: sqlserver, dsn: "sqlserver://sa@localhost", table: dbo.users }
`

func load(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(sample)))
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := load(t)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/state.db", cfg.State.Path)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
	require.Len(t, cfg.Jobs, 2)

	orders, err := cfg.Job("orders")
	require.NoError(t, err)
	assert.Equal(t, 500, orders.BatchSize)
	assert.Equal(t, 5, orders.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, orders.Retry.BaseDelay)
	assert.Equal(t, 10*time.Millisecond, orders.ThrottleDelay)
	assert.Equal(t, "id", orders.PrimaryKey, "default key column")
	assert.Equal(t, "SELECT id, amount FROM orders WHERE amount > 0", orders.ExtractionQuery())
	assert.NoError(t, orders.Validate())

	users, err := cfg.Job("users")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBatchSize, users.BatchSize)
	assert.Equal(t, "SELECT * FROM users", users.ExtractionQuery())
	assert.Equal(t, 3, users.Retry.MaxRetries)
	assert.NoError(t, users.Validate())

	_, err = cfg.Job("missing")
	assert.Error(t, err)
}

func validJob() config.Job {
	j := config.Job{
		Name:        "orders",
		Source:      config.Endpoint{Driver: "mysql", DSN: "dsn", Table: "orders"},
		Destination: config.Endpoint{Driver: "oracle", DSN: "dsn", Table: "ORDERS"},
	}
	j.ApplyDefaults()
	return j
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(j *config.Job)
		want   string
	}{
		{"no name", func(j *config.Job) { j.Name = "" }, "name is required"},
		{"unknown driver", func(j *config.Job) { j.Source.Driver = "sqlite3" }, "not supported"},
		{"missing dsn", func(j *config.Job) { j.Destination.DSN = "" }, "destination.dsn"},
		{"unsafe table", func(j *config.Job) { j.Source.Table = "orders; DROP TABLE x" }, "not a valid identifier"},
		{"no placeholder", func(j *config.Job) { j.Query = "SELECT * FROM orders" }, "exactly one"},
		{"two placeholders", func(j *config.Job) { j.Query = "SELECT * FROM {table} JOIN {table}" }, "found 2"},
		{"zero batch", func(j *config.Job) { j.BatchSize = -1 }, "batch_size"},
		{"negative retry", func(j *config.Job) { j.Retry.MaxRetries = -1 }, "retry"},
		{"bad mode", func(j *config.Job) { j.Mode = "upsert" }, "unknown mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := validJob()
			tc.mutate(&j)
			err := j.Validate()
			var verr *config.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	j := validJob()
	assert.NoError(t, j.Validate())
}
