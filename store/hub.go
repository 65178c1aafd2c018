package store

import (
	"context"
	"log/slog"
	"sync"
)

// A SnapshotFunc produces the current snapshot for a path. Backends hand one
// to their Hub so subscribers can be served the state that follows a change.
type SnapshotFunc func(ctx context.Context, path string) (any, error)

// A Hub fans out change notifications to path subscribers. It guarantees the
// Subscribe contract: the callback fires once with the current snapshot
// before Subscribe returns, and never again after the returned cancel
// function returns.
type Hub struct {
	snapshot SnapshotFunc
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	path     string
	onChange func(any)

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(snapshot any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onChange(snapshot)
}

// NewHub returns a Hub that serves snapshots via fn.
func NewHub(fn SnapshotFunc, logger *slog.Logger) *Hub {
	return &Hub{
		snapshot: fn,
		logger:   logger,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Subscribe registers onChange for path, delivers the current snapshot and
// returns the cancel function.
func (h *Hub) Subscribe(path string, onChange func(any)) (func(), error) {
	sub := &subscriber{path: path, onChange: onChange}

	// The subscriber lock is held from registration through the initial
	// delivery. A Broadcast racing Subscribe either misses the registration
	// and its change is covered by the initial snapshot, or it blocks on the
	// subscriber lock and its fresher snapshot lands after the initial one.
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	sub.mu.Lock()
	h.mu.Unlock()

	snap, err := h.snapshot(context.Background(), path)
	if err != nil {
		sub.mu.Unlock()
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		return nil, err
	}
	sub.onChange(snap)
	sub.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()

		// Taking the subscriber lock here means any in-flight deliver has
		// finished before the cancel function returns.
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
	}, nil
}

// Broadcast notifies every subscriber related to the changed path with a
// fresh snapshot of its own root.
func (h *Hub) Broadcast(ctx context.Context, changed string) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		if Related(sub.path, changed) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		snap, err := h.snapshot(ctx, sub.path)
		if err != nil {
			h.logger.Error("Could not snapshot for subscriber", "path", sub.path, "error", err.Error())
			continue
		}
		sub.deliver(snap)
	}
}
