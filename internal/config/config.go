package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the relay's full configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Store      StoreConfig      `mapstructure:"store"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Locks      LocksConfig      `mapstructure:"locks"`
	Cursors    CursorsConfig    `mapstructure:"cursors"`
	Rooms      RoomsConfig      `mapstructure:"rooms"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string `mapstructure:"addr"`
	// ReadHeaderTimeout bounds the handshake request headers
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists accepted Origin headers; empty accepts any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	// JWTSecret is the shared HS256 secret
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenTTL is the lifetime of tokens minted by the dev token command
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// StoreConfig selects the ephemeral lock/cursor store.
type StoreConfig struct {
	// Backend is "memory" or "redis"
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	// Timeout bounds every store call
	Timeout time.Duration `mapstructure:"timeout"`
	// JanitorInterval is how often the memory store purges expired keys
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// PresenceConfig selects the durable presence store.
type PresenceConfig struct {
	// Backend is "memory" or "sqlite"
	Backend         string        `mapstructure:"backend"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

// LocksConfig controls edit locks.
type LocksConfig struct {
	Lease time.Duration `mapstructure:"lease"`
}

// CursorsConfig controls the cursor cache.
type CursorsConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RoomsConfig controls room partitioning and admission.
type RoomsConfig struct {
	Shards int `mapstructure:"shards"`
	// Authorizer is "static" or "http"
	Authorizer    string `mapstructure:"authorizer"`
	AuthorizerURL string `mapstructure:"authorizer_url"`
	// Allow maps room ID to user IDs for the static authorizer; "*" matches any.
	// Empty denies every join.
	Allow     map[string][]string `mapstructure:"allow"`
	CacheTTL  time.Duration       `mapstructure:"cache_ttl"`
	CacheSize int                 `mapstructure:"cache_size"`
	// AuthorizeTimeout bounds each membership check
	AuthorizeTimeout time.Duration `mapstructure:"authorize_timeout"`
}

// ConnectionConfig controls per-connection behavior.
type ConnectionConfig struct {
	OutboxSize        int           `mapstructure:"outbox_size"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// ActivityConfig selects the activity sink.
type ActivityConfig struct {
	// Sink is a comma-separated list of "nop", "sqlite" and "http".
	Sink       string `mapstructure:"sink"`
	WebhookURL string `mapstructure:"webhook_url"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Workers    int    `mapstructure:"workers"`
	QueueSize  int    `mapstructure:"queue_size"`
}

// Sinks returns the configured sink names, trimmed and without empties.
func (a ActivityConfig) Sinks() []string {
	var out []string
	for _, name := range strings.Split(a.Sink, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// HealthConfig controls dependency probing.
type HealthConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxFailures int           `mapstructure:"max_failures"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level"`
	// Format is "json" or "console"
	Format string `mapstructure:"format"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			AllowedOrigins:    []string{},
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Backend:         "memory",
			RedisAddr:       "localhost:6379",
			Timeout:         2 * time.Second,
			JanitorInterval: 30 * time.Second,
		},
		Presence: PresenceConfig{
			Backend:         "memory",
			SQLitePath:      "designsync.db",
			FreshnessWindow: 5 * time.Minute,
		},
		Locks: LocksConfig{
			Lease: 5 * time.Minute,
		},
		Cursors: CursorsConfig{
			TTL: 30 * time.Second,
		},
		Rooms: RoomsConfig{
			Shards:           16,
			Authorizer:       "static",
			CacheTTL:         time.Minute,
			CacheSize:        4096,
			AuthorizeTimeout: 2 * time.Second,
		},
		Connection: ConnectionConfig{
			OutboxSize:        256,
			WriteWait:         10 * time.Second,
			PongWait:          60 * time.Second,
			PingPeriod:        54 * time.Second,
			MaxMessageBytes:   64 * 1024,
			MessagesPerSecond: 60,
			Burst:             120,
		},
		Activity: ActivityConfig{
			Sink:       "nop",
			SQLitePath: "designsync.db",
			Workers:    2,
			QueueSize:  1024,
		},
		Health: HealthConfig{
			Interval:    10 * time.Second,
			MaxFailures: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SetDefaults registers every default on v so env vars and config files only
// need to name what they change.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_password", d.Store.RedisPassword)
	v.SetDefault("store.redis_db", d.Store.RedisDB)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("store.janitor_interval", d.Store.JanitorInterval)

	v.SetDefault("presence.backend", d.Presence.Backend)
	v.SetDefault("presence.sqlite_path", d.Presence.SQLitePath)
	v.SetDefault("presence.freshness_window", d.Presence.FreshnessWindow)

	v.SetDefault("locks.lease", d.Locks.Lease)
	v.SetDefault("cursors.ttl", d.Cursors.TTL)

	v.SetDefault("rooms.shards", d.Rooms.Shards)
	v.SetDefault("rooms.authorizer", d.Rooms.Authorizer)
	v.SetDefault("rooms.authorizer_url", d.Rooms.AuthorizerURL)
	v.SetDefault("rooms.cache_ttl", d.Rooms.CacheTTL)
	v.SetDefault("rooms.cache_size", d.Rooms.CacheSize)
	v.SetDefault("rooms.authorize_timeout", d.Rooms.AuthorizeTimeout)

	v.SetDefault("connection.outbox_size", d.Connection.OutboxSize)
	v.SetDefault("connection.write_wait", d.Connection.WriteWait)
	v.SetDefault("connection.pong_wait", d.Connection.PongWait)
	v.SetDefault("connection.ping_period", d.Connection.PingPeriod)
	v.SetDefault("connection.max_message_bytes", d.Connection.MaxMessageBytes)
	v.SetDefault("connection.messages_per_second", d.Connection.MessagesPerSecond)
	v.SetDefault("connection.burst", d.Connection.Burst)

	v.SetDefault("activity.sink", d.Activity.Sink)
	v.SetDefault("activity.webhook_url", d.Activity.WebhookURL)
	v.SetDefault("activity.sqlite_path", d.Activity.SQLitePath)
	v.SetDefault("activity.workers", d.Activity.Workers)
	v.SetDefault("activity.queue_size", d.Activity.QueueSize)

	v.SetDefault("health.interval", d.Health.Interval)
	v.SetDefault("health.max_failures", d.Health.MaxFailures)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "DESIGNSYNC"

// NewViper returns a viper instance with defaults registered and environment
// overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
