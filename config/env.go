package config

import "time"

// parseEnv overlays Config fields from environment variables. Unset or
// malformed values leave the current value in place.
//
// Recognized variables:
//
//	PINCHAT_STORE           store backend (memory, redis, postgres)
//	PINCHAT_REDIS_ADDR      Redis address
//	PINCHAT_DATABASE_DSN    PostgreSQL DSN
//	PINCHAT_SWEEP_INTERVAL  sweep interval as a Go duration, e.g. "60s"
//	PINCHAT_SESSION_CACHE   session token cache file
//	PINCHAT_SESSION_SECRET  session token HMAC secret
func parseEnv(config *Config, getenv func(string) string) {
	if v := getenv("PINCHAT_STORE"); v != "" {
		config.StoreBackend = v
	}
	if v := getenv("PINCHAT_REDIS_ADDR"); v != "" {
		config.RedisAddr = v
	}
	if v := getenv("PINCHAT_DATABASE_DSN"); v != "" {
		config.DatabaseDSN = v
	}
	if v := getenv("PINCHAT_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.SweepInterval = d
		}
	}
	if v := getenv("PINCHAT_SESSION_CACHE"); v != "" {
		config.SessionCachePath = v
	}
	if v := getenv("PINCHAT_SESSION_SECRET"); v != "" {
		config.SessionSecret = v
	}
}
