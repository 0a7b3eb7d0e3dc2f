package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "PREDICTMARKET_"

// Load builds a Config from Defaults, the TOML file at path (skipped when
// empty), an optional .env file, and PREDICTMARKET_* variables, in that order
// of precedence. Callers run Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides copies set, parseable PREDICTMARKET_* variables over cfg.
// Unparseable values are ignored so the file or default value stands.
func applyEnvOverrides(cfg *Config) {
	// platforms
	platformEnv(&cfg.Platforms.Manifold, "MANIFOLD")
	platformEnv(&cfg.Platforms.Polymarket, "POLYMARKET")
	platformEnv(&cfg.Platforms.Metaculus.PlatformConfig, "METACULUS")
	platformEnv(&cfg.Platforms.PredictIt, "PREDICTIT")
	platformEnv(&cfg.Platforms.Kalshi.PlatformConfig, "KALSHI")

	override(&cfg.Platforms.Metaculus.APIToken, "METACULUS_API_TOKEN", asString)

	// kalshi
	override(&cfg.Platforms.Kalshi.ApiKey, "KALSHI_API_KEY", asString)
	override(&cfg.Platforms.Kalshi.RsaPrivateKeyPath, "KALSHI_RSA_PRIVATE_KEY_PATH", asString)
	override(&cfg.Platforms.Kalshi.EncryptedKeyPath, "KALSHI_ENCRYPTED_KEY_PATH", asString)
	override(&cfg.Platforms.Kalshi.KeyPassword, "KALSHI_KEY_PASSWORD", asString)

	// upstream / matching
	override(&cfg.Upstream.RateWindow, "UPSTREAM_RATE_WINDOW", asDuration)
	override(&cfg.Matching.MinConfidence, "MATCHING_MIN_CONFIDENCE", asFloat)
	override(&cfg.Matching.EntityBoost, "MATCHING_ENTITY_BOOST", asFloat)
	override(&cfg.Matching.YearMismatchPenalty, "MATCHING_YEAR_MISMATCH_PENALTY", asFloat)

	// supabase
	override(&cfg.Supabase.Enabled, "SUPABASE_ENABLED", strconv.ParseBool)
	override(&cfg.Supabase.DSN, "SUPABASE_DSN", asString)
	override(&cfg.Supabase.DSN, "SUPABASE_URL", asString) // compatibility alias
	override(&cfg.Supabase.Host, "SUPABASE_HOST", asString)
	override(&cfg.Supabase.Port, "SUPABASE_PORT", strconv.Atoi)
	override(&cfg.Supabase.Database, "SUPABASE_DATABASE", asString)
	override(&cfg.Supabase.User, "SUPABASE_USER", asString)
	override(&cfg.Supabase.Password, "SUPABASE_PASSWORD", asString)
	override(&cfg.Supabase.SSLMode, "SUPABASE_SSL_MODE", asString)
	override(&cfg.Supabase.PoolMaxConns, "SUPABASE_POOL_MAX_CONNS", strconv.Atoi)
	override(&cfg.Supabase.PoolMinConns, "SUPABASE_POOL_MIN_CONNS", strconv.Atoi)
	override(&cfg.Supabase.RunMigrations, "SUPABASE_RUN_MIGRATIONS", strconv.ParseBool)

	// redis
	override(&cfg.Redis.Enabled, "REDIS_ENABLED", strconv.ParseBool)
	override(&cfg.Redis.Addr, "REDIS_ADDR", asString)
	override(&cfg.Redis.Password, "REDIS_PASSWORD", asString)
	override(&cfg.Redis.DB, "REDIS_DB", strconv.Atoi)
	override(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE", strconv.Atoi)
	override(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES", strconv.Atoi)
	override(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED", strconv.ParseBool)

	// s3
	override(&cfg.S3.Enabled, "S3_ENABLED", strconv.ParseBool)
	override(&cfg.S3.Endpoint, "S3_ENDPOINT", asString)
	override(&cfg.S3.Region, "S3_REGION", asString)
	override(&cfg.S3.Bucket, "S3_BUCKET", asString)
	override(&cfg.S3.AccessKey, "S3_ACCESS_KEY", asString)
	override(&cfg.S3.SecretKey, "S3_SECRET_KEY", asString)
	override(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE", strconv.ParseBool)
	override(&cfg.S3.Prefix, "S3_PREFIX", asString)

	// server
	override(&cfg.Server.Port, "SERVER_PORT", strconv.Atoi)
	override(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS", asList)
	override(&cfg.Server.APIKey, "SERVER_API_KEY", asString)
	override(&cfg.Server.RateLimitPerMinute, "SERVER_RATE_LIMIT_PER_MINUTE", strconv.Atoi)
	override(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT", asDuration)
	override(&cfg.Server.TrustedProxies, "SERVER_TRUSTED_PROXIES", asList)

	// notify
	override(&cfg.Notify.MinSpread, "NOTIFY_MIN_SPREAD", asFloat)
	override(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL", asString)
	override(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN", asString)
	override(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID", asString)

	// top-level
	override(&cfg.Mode, "MODE", asString)
	override(&cfg.LogLevel, "LOG_LEVEL", asString)
}

func platformEnv(p *PlatformConfig, name string) {
	override(&p.Enabled, name+"_ENABLED", strconv.ParseBool)
	override(&p.BaseURL, name+"_BASE_URL", asString)
	override(&p.Timeout, name+"_TIMEOUT", asDuration)
	override(&p.SearchLimit, name+"_SEARCH_LIMIT", strconv.Atoi)
	override(&p.RateLimit, name+"_RATE_LIMIT", strconv.Atoi)
}

// override sets *dst from envPrefix+key when the variable is non-empty and
// parse accepts it.
func override[T any](dst *T, key string, parse func(string) (T, error)) {
	raw := os.Getenv(envPrefix + key)
	if raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func asString(s string) (string, error) { return s, nil }

func asFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func asDuration(s string) (duration, error) {
	d, err := time.ParseDuration(s)
	return duration{Duration: d}, err
}

// asList splits a comma-separated value, dropping blanks. An all-blank list
// is rejected.
func asList(s string) ([]string, error) {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list %q", s)
	}
	return out, nil
}
