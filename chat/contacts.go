package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/edgeee/pinchat/store"
)

// A ContactDirectory derives a user's known counterparties from the channel
// ids present in the store.
type ContactDirectory struct {
	Store  store.Store
	Logger *slog.Logger
}

// NewContactDirectory returns a ContactDirectory backed by st.
func NewContactDirectory(st store.Store, logger *slog.Logger) *ContactDirectory {
	return &ContactDirectory{Store: st, Logger: logger}
}

// List scans all channel ids and collects every PIN paired with the given
// one. No channels yields an empty list. The result is sorted for stable
// rendering.
func (d *ContactDirectory) List(ctx context.Context, pin string) ([]string, error) {
	snap, err := d.Store.ReadOnce(ctx, messagesPath)
	if err != nil {
		return nil, fmt.Errorf("read channels: %w", err)
	}

	contacts := []string{}
	branch, ok := snap.(map[string]any)
	if !ok {
		return contacts, nil
	}

	seen := make(map[string]struct{})
	for channelID := range branch {
		a, b, ok := SplitChannelID(channelID)
		if !ok {
			continue
		}
		var other string
		switch pin {
		case a:
			other = b
		case b:
			other = a
		default:
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		contacts = append(contacts, other)
	}

	sort.Strings(contacts)
	return contacts, nil
}
