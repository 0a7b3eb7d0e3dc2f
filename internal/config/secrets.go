package config

import "slices"

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Use it whenever the active configuration is logged or printed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Platforms.Metaculus.APIToken)
	redact(&out.Platforms.Kalshi.ApiKey)
	redact(&out.Platforms.Kalshi.KeyPassword)

	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.TelegramToken)

	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	out.Server.TrustedProxies = slices.Clone(cfg.Server.TrustedProxies)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
