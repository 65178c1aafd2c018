package config

import (
	"flag"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-store string     store backend (memory, redis, postgres)
//	-redis string     Redis address
//	-dsn string       PostgreSQL DSN
//	-sweep duration   sweep interval (e.g. 60s)
//	-cache string     session token cache file
//	-secret string    session token HMAC secret
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("pinchat", flag.ContinueOnError)

	fs.StringVar(&config.StoreBackend, "store", config.StoreBackend, "store backend: memory, redis or postgres")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.DatabaseDSN, "dsn", config.DatabaseDSN, "database DSN")
	sweep := fs.Duration("sweep", config.SweepInterval, "expiry sweep interval")
	fs.StringVar(&config.SessionCachePath, "cache", config.SessionCachePath, "session cache file")
	fs.StringVar(&config.SessionSecret, "secret", config.SessionSecret, "session token secret")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sweep > 0 {
		config.SweepInterval = *sweep
	}
	return nil
}
