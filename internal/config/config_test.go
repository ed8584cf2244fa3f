package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig() *Config {
	var cfg Config
	cfg.Database.Host = "db"
	cfg.Database.Port = 3306
	cfg.Database.User = "app"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "screenwatch"
	cfg.Database.SSLMode = "disable"
	return &cfg
}

func TestMySQLDSN(t *testing.T) {
	dsn := testConfig().MySQLDSN()

	assert.Contains(t, dsn, "app:secret@tcp(db:3306)/screenwatch?")
	assert.Contains(t, dsn, "parseTime=true")
	// without clientFoundRows the driver reports changed rows, and a
	// same-value UPDATE (e.g. SetProcessing on an already-processing row)
	// would look like a missing row to the repository guards
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestPostgresDSN(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Port = 5432
	assert.Equal(t,
		"host=db port=5432 user=app password=secret dbname=screenwatch sslmode=disable",
		cfg.PostgresDSN())
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
	assert.Equal(t, 60, cfg.Queue.JobTimeoutSeconds)
	assert.Equal(t, 30, cfg.Vision.RateLimitPerMinute)
	assert.Equal(t, 3, cfg.Vision.MaxRetries)
	assert.Equal(t, 24, cfg.Reconciler.CompletedRetentionHours)
	assert.Equal(t, 7*24, cfg.Reconciler.FailedRetentionHours)
}
