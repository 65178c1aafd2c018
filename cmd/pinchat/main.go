package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/edgeee/pinchat/chat"
	"github.com/edgeee/pinchat/config"
	"github.com/edgeee/pinchat/store"
	"github.com/edgeee/pinchat/store/memory"
	"github.com/edgeee/pinchat/store/postgres"
	"github.com/edgeee/pinchat/store/redis"
	"github.com/edgeee/pinchat/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SessionCachePath), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	logFile, err := os.OpenFile(cfg.SessionCachePath+".log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	// Logs go to a file so they don't tear the terminal UI.
	logger := slog.New(slog.NewTextHandler(logFile, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Could not close store", "error", err.Error())
		}
	}()

	sweeper := chat.NewSweeper(st, logger)
	sweeper.Interval = cfg.SweepInterval
	go sweeper.Run(ctx)

	session := chat.NewSession(st, logger)
	cache := &chat.SessionCache{
		Path:     cfg.SessionCachePath,
		Secret:   []byte(cfg.SessionSecret),
		Validity: 24 * time.Hour,
	}
	if account, err := cache.Load(); err == nil {
		session.Resume(ctx, account)
	} else if !errors.Is(err, chat.ErrNoCachedSession) {
		logger.Warn("Could not resume session", "error", err.Error())
	}

	return tui.Run(tui.New(session, cache, logger))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(logger), func() error { return nil }, nil
	case config.BackendRedis:
		r, err := redis.Connect(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return r, r.Close, nil
	case config.BackendPostgres:
		pg, err := postgres.Connect(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
