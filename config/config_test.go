package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/respcache"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName+".yaml"), []byte(body), 0644))
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, "game", cfg.Server.Name)
		assert.Equal(t, "0.0.0.0:7777", cfg.Address())
		assert.Equal(t, uint32(protocol.DefaultMaxFrameSize), cfg.Server.MaxFrameSize)
		assert.Equal(t, protocol.DefaultBufferSize, cfg.Server.InitialBufferSize)
		assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, time.Duration(0), cfg.Server.ReadTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, respcache.BackendNone, cfg.Cache.Backend)
		assert.Empty(t, cfg.Cache.Routes)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		dir := writeConfig(t, `
server:
  name: arena
  host: 127.0.0.1
  port: 9000
  max_connections: 500
  read_timeout: 90s
logging:
  level: debug
cache:
  backend: memory
  ttl: 2s
  routes:
    - Room.ListRoom
`)
		cfg, err := Load(dir)
		require.NoError(t, err)

		assert.Equal(t, "arena", cfg.Server.Name)
		assert.Equal(t, "127.0.0.1:9000", cfg.Address())
		assert.Equal(t, 500, cfg.Server.MaxConnections)
		assert.Equal(t, 90*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, respcache.BackendMemory, cfg.Cache.Backend)
		assert.Equal(t, 2*time.Second, cfg.Cache.TTL)
		assert.Equal(t, []string{"Room.ListRoom"}, cfg.Cache.Routes)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		dir := writeConfig(t, "server:\n  port: 9000\n")
		t.Setenv("GAMESERVER_SERVER_PORT", "9100")
		t.Setenv("GAMESERVER_LOGGING_LEVEL", "warn")

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		dir := writeConfig(t, "server: [unterminated\n")
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		dir := writeConfig(t, `
server:
  port: 70000
logging:
  level: verbose
cache:
  backend: memcached
  routes:
    - Room.Fly
`)
		_, err := Load(dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, respcache.ErrUnknownBackend)
		assert.Contains(t, err.Error(), "server.port")
		assert.Contains(t, err.Error(), "logging.level")
		assert.Contains(t, err.Error(), "cache.routes")
	})
}

func TestConfig_Options(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  name: arena
  max_frame_size: 4096
  slow_handler_threshold: 50ms
cache:
  backend: redis
  redis_addr: cache:6379
  redis_db: 2
  routes: [Room.ListRoom, Game.ShowTimer]
`))
	require.NoError(t, err)

	t.Run("server options", func(t *testing.T) {
		opts := cfg.ServerOptions()
		assert.Equal(t, "arena", opts.Name)
		assert.Equal(t, uint32(4096), opts.MaxFrameSize)
		assert.Equal(t, 50*time.Millisecond, opts.SlowHandlerThreshold)
	})

	t.Run("logger options use the server name", func(t *testing.T) {
		opts := cfg.LoggerOptions()
		assert.Equal(t, "arena", opts.Service)
		assert.Equal(t, "info", opts.Level)
	})

	t.Run("cache options are namespaced", func(t *testing.T) {
		opts := cfg.CacheOptions()
		assert.Equal(t, respcache.BackendRedis, opts.Backend)
		assert.Equal(t, "cache:6379", opts.RedisAddr)
		assert.Equal(t, 2, opts.RedisDB)
		assert.Equal(t, "arena:", opts.Namespace)
	})

	t.Run("cache routes are parsed", func(t *testing.T) {
		routes, err := cfg.CacheRoutes()
		require.NoError(t, err)
		assert.Equal(t, []dispatch.Route{
			{Category: protocol.RequestRoom, Action: protocol.ActionListRoom},
			{Category: protocol.RequestGame, Action: protocol.ActionShowTimer},
		}, routes)
	})
}
