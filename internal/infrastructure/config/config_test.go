package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LEDGER_APP_NAME",
	"LEDGER_APP_ENV",
	"LEDGER_DATABASE_DRIVER",
	"LEDGER_DATABASE_HOST",
	"LEDGER_DATABASE_PORT",
	"LEDGER_DATABASE_PASSWORD",
	"LEDGER_DATABASE_SSLMODE",
	"LEDGER_DATABASE_MAX_OPEN_CONNS",
	"LEDGER_DATABASE_MAX_IDLE_CONNS",
	"LEDGER_PIPELINE_TOLERANCE",
	"LEDGER_PIPELINE_GRACE_PERIOD_DAYS",
	"LEDGER_PIPELINE_SCHEDULE_HOUR",
	"LEDGER_PIPELINE_TIMEZONE",
	"LEDGER_INGEST_DEFAULT_ENCODING",
	"LEDGER_STORAGE_BACKEND",
	"LEDGER_STORAGE_BUCKET",
	"LEDGER_REDIS_HOST",
	"LEDGER_CONFIG_FILE",
	"LEDGER_ENV_FILE",
	"LEDGER_DOCS_ENABLED",
	"LEDGER_DOCS_ALLOWED_IPS",
}

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := make(map[string]string, len(envKeys))
	for _, k := range envKeys {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for _, k := range envKeys {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "procurement-ledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "ledger", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "0", cfg.Pipeline.Tolerance)
		assert.True(t, cfg.Pipeline.ToleranceDecimal().IsZero())
		assert.Equal(t, 30*24*time.Hour, cfg.Pipeline.GracePeriod())
		assert.Equal(t, 6, cfg.Pipeline.ScheduleHour)
		assert.Equal(t, "end_of_following_month", cfg.Pipeline.DuePolicy)
		assert.Equal(t, "local", cfg.Storage.Backend)
		assert.Equal(t, 30*time.Second, cfg.HTTP.QueryTimeout)
		assert.Equal(t, int64(50<<20), cfg.Ingest.MaxUploadBytes)
		assert.False(t, cfg.Redis.Enabled())
		assert.Equal(t, "Asia/Tokyo", cfg.Pipeline.Location().String())
	})

	t.Run("loads values from environment variables with LEDGER prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_APP_NAME", "ledger-test")
		os.Setenv("LEDGER_DATABASE_DRIVER", "sqlite")
		os.Setenv("LEDGER_PIPELINE_TOLERANCE", "0.50")
		os.Setenv("LEDGER_PIPELINE_GRACE_PERIOD_DAYS", "45")
		os.Setenv("LEDGER_PIPELINE_SCHEDULE_HOUR", "0")
		os.Setenv("LEDGER_REDIS_HOST", "redis.local")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "ledger-test", cfg.App.Name)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "0.5", cfg.Pipeline.ToleranceDecimal().String())
		assert.Equal(t, 45, cfg.Pipeline.GracePeriodDays)
		assert.Equal(t, 0, cfg.Pipeline.ScheduleHour)
		assert.True(t, cfg.Redis.Enabled())
		assert.Equal(t, "redis.local:6379", cfg.Redis.Addr())
	})

	t.Run("loads env file", func(t *testing.T) {
		clearEnv()
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("LEDGER_APP_NAME=from-dotenv\n"), 0o600))
		os.Setenv("LEDGER_ENV_FILE", path)
		defer os.Unsetenv("LEDGER_APP_NAME")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.App.Name)
	})

	t.Run("loads explicit config file", func(t *testing.T) {
		clearEnv()
		path := filepath.Join(t.TempDir(), "ledger.toml")
		content := "[pipeline]\ngrace_period_days = 14\ndue_policy = \"net_30\"\n[storage]\nbackend = \"none\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		os.Setenv("LEDGER_CONFIG_FILE", path)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 14, cfg.Pipeline.GracePeriodDays)
		assert.Equal(t, "net_30", cfg.Pipeline.DuePolicy)
		assert.Equal(t, "none", cfg.Storage.Backend)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("LEDGER_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects negative tolerance", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_PIPELINE_TOLERANCE", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pipeline.tolerance")
	})

	t.Run("rejects unparsable tolerance", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_PIPELINE_TOLERANCE", "ten yen")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_DATABASE_DRIVER", "duckdb")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects unknown encoding", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_INGEST_DEFAULT_ENCODING", "latin1")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("rejects bad timezone", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_PIPELINE_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("s3 backend requires bucket", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_STORAGE_BACKEND", "s3")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")

		os.Setenv("LEDGER_STORAGE_BUCKET", "ledger-archive")
		_, err = Load()
		require.NoError(t, err)
	})

	t.Run("production requires database password", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_APP_ENV", "production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")

		os.Setenv("LEDGER_DATABASE_PASSWORD", "secret")
		os.Setenv("LEDGER_DATABASE_SSLMODE", "require")
		_, err = Load()
		require.NoError(t, err)
	})

	t.Run("production docs must be restricted", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEDGER_APP_ENV", "production")
		os.Setenv("LEDGER_DATABASE_PASSWORD", "secret")
		os.Setenv("LEDGER_DATABASE_SSLMODE", "require")
		os.Setenv("LEDGER_DOCS_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "docs.allowed_ips")

		os.Setenv("LEDGER_DOCS_ALLOWED_IPS", "10.0.0.0/8")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Docs.AllowedIPs)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "ledger", Password: "p@ss/word", DBName: "ledger", SSLMode: "disable"}
	assert.Equal(t, "postgres://ledger:p%40ss%2Fword@db:5432/ledger?sslmode=disable", d.DSN())
}
