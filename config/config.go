// Package config loads the game server's configuration from a YAML file and
// GAMESERVER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cyberinferno/gameserver/dispatch"
	"github.com/cyberinferno/gameserver/logger"
	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/respcache"
	"github.com/cyberinferno/gameserver/server"
)

const (
	envVarPrefix = "GAMESERVER"
	fileName     = "gameserver"
)

// Config contains every option of the game server.
type Config struct {
	Server struct {
		// Name used in log messages and as the service field.
		Name string `mapstructure:"name"`
		// Hostname or IP address to listen on.
		Host string `mapstructure:"host"`
		// TCP port to listen on; 0 picks a free port.
		Port int `mapstructure:"port"`
		// Maximum number of concurrent connections; 0 is unlimited.
		MaxConnections int `mapstructure:"max_connections"`
		// Largest declared frame length accepted from a client.
		MaxFrameSize uint32 `mapstructure:"max_frame_size"`
		// Initial receive buffer capacity per connection.
		InitialBufferSize int `mapstructure:"initial_buffer_size"`
		// Idle connections are closed after this long; 0 disables it.
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		// Handler calls slower than this are logged at warn level.
		SlowHandlerThreshold time.Duration `mapstructure:"slow_handler_threshold"`
	} `mapstructure:"server"`

	Logging struct {
		// Minimum level written. Options: debug, info, warn, error
		Level string `mapstructure:"level"`
		// Directory for daily log files. Blank writes to stdout only.
		Dir string `mapstructure:"dir"`
	} `mapstructure:"logging"`

	Cache struct {
		// Response cache backend. Options: none, memory, redis
		Backend string `mapstructure:"backend"`
		// Lifetime of a cached response.
		TTL time.Duration `mapstructure:"ttl"`
		// Expired entry sweep interval for the memory backend.
		CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
		RedisAddr       string        `mapstructure:"redis_addr"`
		RedisPassword   string        `mapstructure:"redis_password"`
		RedisDB         int           `mapstructure:"redis_db"`
		// Routes whose responses are cached, e.g. "Room.ListRoom".
		Routes []string `mapstructure:"routes"`
	} `mapstructure:"cache"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "game")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7777)
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("server.max_frame_size", protocol.DefaultMaxFrameSize)
	v.SetDefault("server.initial_buffer_size", protocol.DefaultBufferSize)
	v.SetDefault("server.read_timeout", "0s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.slow_handler_threshold", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "")

	v.SetDefault("cache.backend", respcache.BackendNone)
	v.SetDefault("cache.ttl", "5s")
	v.SetDefault("cache.cleanup_interval", "1m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.routes", []string{})
}

// Load reads gameserver.yaml from configPath, if present, and applies
// GAMESERVER_* environment overrides on top of the defaults. Nested keys map
// to variables by upper-casing and replacing dots, so server.port is set with
// GAMESERVER_SERVER_PORT.
//
// Parameters:
//   - configPath: Directory containing gameserver.yaml; blank searches the
//     working directory
//
// Returns:
//   - The validated configuration
//   - An error if the file is malformed or a value is invalid
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "."
	}
	v.AddConfigPath(configPath)
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for _, k := range v.AllKeys() {
		envVar := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVar, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and that every cache route names a known
// category and action.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}
	if c.Server.MaxFrameSize != 0 && c.Server.MaxFrameSize < protocol.CodesSize {
		errs = append(errs, fmt.Errorf("server.max_frame_size must be at least %d", protocol.CodesSize))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	switch c.Cache.Backend {
	case "", respcache.BackendNone, respcache.BackendMemory, respcache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: %w", c.Cache.Backend, respcache.ErrUnknownBackend))
	}
	if _, err := c.CacheRoutes(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Address returns the listen address as host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServerOptions returns the connection manager options.
func (c *Config) ServerOptions() server.Options {
	return server.Options{
		Name:                 c.Server.Name,
		MaxConnections:       c.Server.MaxConnections,
		MaxFrameSize:         c.Server.MaxFrameSize,
		InitialBufferSize:    c.Server.InitialBufferSize,
		ReadTimeout:          c.Server.ReadTimeout,
		WriteTimeout:         c.Server.WriteTimeout,
		SlowHandlerThreshold: c.Server.SlowHandlerThreshold,
	}
}

// LoggerOptions returns the logger options.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Service: c.Server.Name,
		Level:   c.Logging.Level,
		Dir:     c.Logging.Dir,
		Console: true,
	}
}

// CacheOptions returns the response cache options.
func (c *Config) CacheOptions() respcache.Options {
	return respcache.Options{
		Backend:         c.Cache.Backend,
		DefaultTTL:      c.Cache.TTL,
		CleanupInterval: c.Cache.CleanupInterval,
		RedisAddr:       c.Cache.RedisAddr,
		RedisPassword:   c.Cache.RedisPassword,
		RedisDB:         c.Cache.RedisDB,
		Namespace:       c.Server.Name + ":",
	}
}

// CacheRoutes parses the configured cache routes.
func (c *Config) CacheRoutes() ([]dispatch.Route, error) {
	routes := make([]dispatch.Route, 0, len(c.Cache.Routes))
	for _, s := range c.Cache.Routes {
		route, err := dispatch.ParseRoute(s)
		if err != nil {
			return nil, fmt.Errorf("cache.routes: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, nil
}
