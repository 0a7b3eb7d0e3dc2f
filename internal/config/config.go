// Package config defines the top-level configuration for predictmarket and
// provides validation helpers.
package config

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTMARKET_* environment variables.
type Config struct {
	Platforms PlatformsConfig `toml:"platforms"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Matching  MatchingConfig  `toml:"matching"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PlatformsConfig lists the prediction-market platforms to query. Adapters
// are registered in this field order.
type PlatformsConfig struct {
	Manifold   PlatformConfig  `toml:"manifold"`
	Polymarket PlatformConfig  `toml:"polymarket"`
	Metaculus  MetaculusConfig `toml:"metaculus"`
	PredictIt  PlatformConfig  `toml:"predictit"`
	Kalshi     KalshiConfig    `toml:"kalshi"`
}

// PlatformConfig holds the settings every adapter shares.
type PlatformConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	Timeout     duration `toml:"timeout"`
	SearchLimit int      `toml:"search_limit"`
	// RateLimit is the number of requests allowed per upstream.rate_window.
	// Zero disables throttling. Requires redis.
	RateLimit int `toml:"rate_limit"`
}

// MetaculusConfig adds the optional API token.
type MetaculusConfig struct {
	PlatformConfig
	APIToken string `toml:"api_token"`
}

// KalshiConfig holds Kalshi API credentials. Signing is optional; market data
// endpoints are public.
type KalshiConfig struct {
	PlatformConfig
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
}

// UpstreamConfig holds settings applied to all outgoing platform requests.
type UpstreamConfig struct {
	RateWindow duration `toml:"rate_window"`
}

// MatchingConfig tunes cross-platform market matching.
type MatchingConfig struct {
	MinConfidence       float64 `toml:"min_confidence"`
	EntityBoost         float64 `toml:"entity_boost"`
	YearMismatchPenalty float64 `toml:"year_mismatch_penalty"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters. The
// database only stores comparison run history.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs rate limiting
// and the comparison event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the run archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// NotifyConfig holds spread alert settings. Alerts go out for compare runs
// whose widest spread reaches MinSpread, to every sender that is configured.
type NotifyConfig struct {
	MinSpread         float64 `toml:"min_spread"`
	DiscordWebhookURL string  `toml:"discord_webhook_url"`
	TelegramToken     string  `toml:"telegram_token"`
	TelegramChatID    string  `toml:"telegram_chat_id"`
}

// Enabled reports whether any alert sender is configured.
func (n NotifyConfig) Enabled() bool {
	return n.DiscordWebhookURL != "" || (n.TelegramToken != "" && n.TelegramChatID != "")
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerMinute caps requests per client IP. Zero disables it.
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	ShutdownTimeout    duration `toml:"shutdown_timeout"`
	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For
	// and X-Real-IP. Empty means the peer address is always the client.
	TrustedProxies []string `toml:"trusted_proxies"`
}

func defaultPlatform(baseURL string) PlatformConfig {
	return PlatformConfig{
		Enabled:     true,
		BaseURL:     baseURL,
		Timeout:     duration{15 * time.Second},
		SearchLimit: 10,
	}
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Platforms: PlatformsConfig{
			Manifold:   defaultPlatform("https://api.manifold.markets"),
			Polymarket: defaultPlatform("https://gamma-api.polymarket.com"),
			Metaculus:  MetaculusConfig{PlatformConfig: defaultPlatform("https://www.metaculus.com")},
			PredictIt:  defaultPlatform("https://www.predictit.org"),
			Kalshi:     KalshiConfig{PlatformConfig: defaultPlatform("https://api.elections.kalshi.com/trade-api/v2")},
		},
		Upstream: UpstreamConfig{
			RateWindow: duration{time.Second},
		},
		Matching: MatchingConfig{
			MinConfidence:       0.5,
			EntityBoost:         0.25,
			YearMismatchPenalty: 0.5,
		},
		Supabase: SupabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictmarket-runs",
			ForcePathStyle: true,
			Prefix:         "runs",
		},
		Server: ServerConfig{
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 120,
			ShutdownTimeout:    duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			MinSpread: 0.1,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var (
	modes     = []string{"server", "tools"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// problems collects validation failures so they are reported together.
type problems []string

// require records msg when ok is false.
func (p *problems) require(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func inUnit(v float64) bool { return v > 0 && v <= 1 }

// Validate reports every invalid or missing setting in one error.
func (c *Config) Validate() error {
	var p problems

	p.require(slices.Contains(modes, strings.ToLower(c.Mode)),
		"unknown mode %q, expected one of %s", c.Mode, strings.Join(modes, ", "))
	p.require(slices.Contains(logLevels, strings.ToLower(c.LogLevel)),
		"unknown log_level %q, expected one of %s", c.LogLevel, strings.Join(logLevels, ", "))

	c.Platforms.validate(&p)
	p.require(c.Upstream.RateWindow.Duration > 0, "upstream: rate_window must be positive")

	m := c.Matching
	p.require(inUnit(m.MinConfidence), "matching: min_confidence %v outside (0, 1]", m.MinConfidence)
	p.require(m.EntityBoost >= 0 && m.EntityBoost < 1, "matching: entity_boost %v outside [0, 1)", m.EntityBoost)
	p.require(inUnit(m.YearMismatchPenalty), "matching: year_mismatch_penalty %v outside (0, 1]", m.YearMismatchPenalty)

	if db := c.Supabase; db.Enabled {
		if strings.TrimSpace(db.DSN) == "" {
			p.require(db.Host != "", "supabase: host is required unless dsn is set")
			p.require(validPort(db.Port), "supabase: port %d out of range", db.Port)
			p.require(db.Database != "", "supabase: database is required unless dsn is set")
		}
		p.require(db.PoolMaxConns >= 1, "supabase: pool_max_conns must be at least 1")
		p.require(db.PoolMinConns >= 0 && db.PoolMinConns <= db.PoolMaxConns,
			"supabase: pool_min_conns %d must lie in [0, pool_max_conns]", db.PoolMinConns)
	}
	if r := c.Redis; r.Enabled {
		p.require(r.Addr != "", "redis: addr is required")
		p.require(r.PoolSize >= 1, "redis: pool_size must be at least 1")
	}
	if b := c.S3; b.Enabled {
		p.require(b.Endpoint != "", "s3: endpoint is required")
		p.require(b.Bucket != "", "s3: bucket is required")
	}
	if strings.EqualFold(c.Mode, "server") {
		p.require(validPort(c.Server.Port), "server: port %d out of range", c.Server.Port)
		p.require(c.Server.RateLimitPerMinute >= 0, "server: rate_limit_per_minute cannot be negative")
		for _, tp := range c.Server.TrustedProxies {
			p.require(validProxy(tp), "server: trusted_proxies entry %q is not an IP or CIDR", tp)
		}
	}

	n := c.Notify
	p.require(inUnit(n.MinSpread), "notify: min_spread %v outside (0, 1]", n.MinSpread)
	p.require((n.TelegramToken == "") == (n.TelegramChatID == ""),
		"notify: telegram_token and telegram_chat_id go together")

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration (%d problems):\n  - %s", len(p), strings.Join(p, "\n  - "))
}

func (ps PlatformsConfig) validate(p *problems) {
	enabled := 0
	for _, np := range ps.list() {
		if !np.cfg.Enabled {
			continue
		}
		enabled++
		pc := np.cfg
		p.require(pc.BaseURL != "", "platforms.%s: base_url is required", np.name)
		p.require(pc.Timeout.Duration > 0, "platforms.%s: timeout must be positive", np.name)
		p.require(pc.SearchLimit >= 1, "platforms.%s: search_limit must be at least 1", np.name)
		p.require(pc.RateLimit >= 0, "platforms.%s: rate_limit cannot be negative", np.name)
	}
	p.require(enabled > 0, "platforms: at least one platform must be enabled")

	k := ps.Kalshi
	hasKey := k.RsaPrivateKeyPath != "" || k.EncryptedKeyPath != ""
	p.require(!hasKey || k.ApiKey != "", "platforms.kalshi: api_key is required with a private key")
	p.require(k.EncryptedKeyPath == "" || k.KeyPassword != "",
		"platforms.kalshi: key_password is required with encrypted_key_path")
}

type namedPlatform struct {
	name string
	cfg  PlatformConfig
}

// list returns the platform sections in registration order.
func (p PlatformsConfig) list() []namedPlatform {
	return []namedPlatform{
		{"manifold", p.Manifold},
		{"polymarket", p.Polymarket},
		{"metaculus", p.Metaculus.PlatformConfig},
		{"predictit", p.PredictIt},
		{"kalshi", p.Kalshi.PlatformConfig},
	}
}

// TimeoutOf returns the request timeout for a platform section.
func (p PlatformConfig) TimeoutOf() time.Duration { return p.Timeout.Duration }

// RateWindowOf returns the upstream rate-limit window.
func (u UpstreamConfig) RateWindowOf() time.Duration { return u.RateWindow.Duration }

// ShutdownTimeoutOf returns the graceful shutdown deadline.
func (s ServerConfig) ShutdownTimeoutOf() time.Duration { return s.ShutdownTimeout.Duration }
