package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.DispatcherEnabled())
	require.Equal(t, time.Hour, cfg.DefaultEventDuration)
	require.Equal(t, 5, cfg.OutboxMaxAttempts)
	require.Equal(t, "tracker-change-log", cfg.ConsumerGroupID)
	require.Equal(t, []string{"calendar_events", "activity_sessions", "cooking_sessions"}, cfg.ConsumerTopics)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/tracker.db")
	t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("DEFAULT_EVENT_DURATION", "45m")
	t.Setenv("TIMEZONE", "Europe/Berlin")

	cfg := Load()
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, "/tmp/tracker.db", cfg.SQLitePath)
	require.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 25, cfg.OutboxBatchSize, "invalid ints fall back to the default")
	require.True(t, cfg.AuthDisabled)
	require.Equal(t, 45*time.Minute, cfg.DefaultEventDuration)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", loc.String())
}

func TestValidate(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	cfg := Load()
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.DispatcherEnabled())

	cfg.StoreDriver = DriverSQLite
	require.ErrorContains(t, cfg.Validate(), "KAFKA_BROKERS")

	cfg.StoreDriver = "mysql"
	require.ErrorContains(t, cfg.Validate(), "unknown STORE_DRIVER")

	cfg = Load()
	cfg.Timezone = "Mars/Olympus"
	require.ErrorContains(t, cfg.Validate(), "invalid TIMEZONE")
}
