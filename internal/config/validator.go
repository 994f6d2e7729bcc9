package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks c and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Addr == "" {
		add("server.addr", c.Server.Addr, "must not be empty")
	}
	if len(c.Auth.JWTSecret) < 16 {
		add("auth.jwt_secret", "<redacted>", "must be at least 16 bytes")
	}

	if !slices.Contains([]string{"memory", "redis"}, c.Store.Backend) {
		add("store.backend", c.Store.Backend, "must be memory or redis")
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		add("store.redis_addr", c.Store.RedisAddr, "required for the redis backend")
	}
	if c.Store.Timeout <= 0 {
		add("store.timeout", c.Store.Timeout, "must be positive")
	}

	if !slices.Contains([]string{"memory", "sqlite"}, c.Presence.Backend) {
		add("presence.backend", c.Presence.Backend, "must be memory or sqlite")
	}
	if c.Presence.Backend == "sqlite" && c.Presence.SQLitePath == "" {
		add("presence.sqlite_path", c.Presence.SQLitePath, "required for the sqlite backend")
	}
	if c.Presence.FreshnessWindow <= 0 {
		add("presence.freshness_window", c.Presence.FreshnessWindow, "must be positive")
	}

	if c.Locks.Lease <= 0 {
		add("locks.lease", c.Locks.Lease, "must be positive")
	}
	if c.Cursors.TTL <= 0 {
		add("cursors.ttl", c.Cursors.TTL, "must be positive")
	}

	if c.Rooms.Shards < 1 {
		add("rooms.shards", c.Rooms.Shards, "must be at least 1")
	}
	switch c.Rooms.Authorizer {
	case "static":
	case "http":
		if !validHTTPURL(c.Rooms.AuthorizerURL) {
			add("rooms.authorizer_url", c.Rooms.AuthorizerURL, "must be an http(s) URL")
		}
	default:
		add("rooms.authorizer", c.Rooms.Authorizer, "must be static or http")
	}

	if c.Connection.OutboxSize < 1 {
		add("connection.outbox_size", c.Connection.OutboxSize, "must be at least 1")
	}
	if c.Connection.PingPeriod <= 0 || c.Connection.PingPeriod >= c.Connection.PongWait {
		add("connection.ping_period", c.Connection.PingPeriod, "must be positive and shorter than pong_wait")
	}
	if c.Connection.MaxMessageBytes <= 0 {
		add("connection.max_message_bytes", c.Connection.MaxMessageBytes, "must be positive")
	}
	if c.Connection.MessagesPerSecond <= 0 || c.Connection.Burst < 1 {
		add("connection.messages_per_second", c.Connection.MessagesPerSecond, "rate and burst must be positive")
	}

	for _, sink := range c.Activity.Sinks() {
		switch sink {
		case "nop":
		case "sqlite":
			if c.Activity.SQLitePath == "" {
				add("activity.sqlite_path", c.Activity.SQLitePath, "required for the sqlite sink")
			}
		case "http":
			if !validHTTPURL(c.Activity.WebhookURL) {
				add("activity.webhook_url", c.Activity.WebhookURL, "must be an http(s) URL")
			}
		default:
			add("activity.sink", sink, "must be nop, sqlite or http")
		}
	}

	if c.Health.Interval <= 0 {
		add("health.interval", c.Health.Interval, "must be positive")
	}

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(ValidLogLevels(), ", "))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		add("logging.format", c.Logging.Format, "must be json or console")
	}

	return errs
}

func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
