package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/config"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(testLogger(), "no-such-config-file")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, []string{"localhost:*"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 5, cfg.Server.ConnectionLimit.MaxPerUser)
	require.Equal(t, "cycle", cfg.Server.ConnectionLimit.Mode)
	require.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	require.Equal(t, 25*time.Second, cfg.Transport.HeartbeatInterval)
	require.Equal(t, 30*time.Second, cfg.Realtime.RingingDeadline)
	require.Equal(t, 30*time.Second, cfg.Realtime.LastActiveWindow)
	require.Equal(t, "./data", cfg.Storage.Dir)
	require.False(t, cfg.Storage.InMemory)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FREETALK_SERVER_ADDRESS", ":9999")
	t.Setenv("FREETALK_LOGLEVEL", "debug")
	t.Setenv("FREETALK_REALTIME_RINGINGDEADLINE", "10s")
	t.Setenv("FREETALK_STORAGE_INMEMORY", "true")

	cfg, err := config.Load(testLogger(), "no-such-config-file")
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Server.Address)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 10*time.Second, cfg.Realtime.RingingDeadline)
	require.True(t, cfg.Storage.InMemory)
}
