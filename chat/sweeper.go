package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgeee/pinchat/store"
)

// DefaultSweepInterval is how often the sweeper scans the message corpus.
const DefaultSweepInterval = time.Minute

// A Sweeper periodically removes messages past their expiry timestamp. Each
// pass reads the full corpus once; a full scan every tick is deliberate and
// only viable at small scale. Sweeping is best-effort: any client may sweep
// concurrently and deletes of already-gone messages are no-ops.
type Sweeper struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewSweeper returns a Sweeper over st ticking at DefaultSweepInterval.
func NewSweeper(st store.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		Store:    st,
		Logger:   logger,
		Interval: DefaultSweepInterval,
		Now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.Logger.Error("Sweep failed", "error", err.Error())
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.Logger.Error("Sweep failed", "error", err.Error())
			}
		}
	}
}

// Sweep performs one pass. Messages without an expiry timestamp are never
// touched. A failing delete is logged and skipped; it does not abort the
// pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	snap, err := s.Store.ReadOnce(ctx, messagesPath)
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	corpus, ok := snap.(map[string]any)
	if !ok {
		return nil
	}

	clock := s.Now
	if clock == nil {
		clock = time.Now
	}
	now := clock().UnixMilli()
	removed := 0
	for channelID, rawChannel := range corpus {
		channel, ok := rawChannel.(map[string]any)
		if !ok {
			continue
		}
		for messageID, rawMsg := range channel {
			var doc messageDoc
			if err := store.Decode(rawMsg, &doc); err != nil {
				s.Logger.Error("Could not decode message", "channel", channelID, "message", messageID, "error", err.Error())
				continue
			}
			if doc.ExpiresAt == 0 || doc.ExpiresAt > now {
				continue
			}
			if err := s.Store.Delete(ctx, store.Join(messagesPath, channelID, messageID)); err != nil {
				s.Logger.Error("Could not delete expired message", "channel", channelID, "message", messageID, "error", err.Error())
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.Logger.Info("Sweep removed expired messages", "count", removed)
	}
	return nil
}
