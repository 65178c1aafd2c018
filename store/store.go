// Package store defines the realtime document store contract shared by all
// backends. A store holds a tree of JSON-like documents addressed by
// slash-separated logical paths, e.g. "users/123456" or
// "messages/111111_222222/<id>". Writers mutate documents; readers either
// take one-shot snapshots or register live subscriptions that fire on every
// change under a path until cancelled.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// A Store provides read, write and live-subscription access to a document
// tree. Concurrent writes to the same path are serialized by the backend;
// last write wins. None of the methods retry on failure.
type Store interface {
	// Write replaces the document at path with value.
	Write(ctx context.Context, path string, value any) error

	// Update merges the given fields into the document at path, creating it
	// if absent. Fields not named are left untouched.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Delete removes the document or subtree at path. Deleting an absent
	// path is a no-op.
	Delete(ctx context.Context, path string) error

	// Append stores value under a freshly generated child id of path and
	// returns the id.
	Append(ctx context.Context, path string, value any) (string, error)

	// ReadOnce returns a snapshot of the document or subtree at path, or
	// nil if nothing exists there. Subtrees come back as nested
	// map[string]any values.
	ReadOnce(ctx context.Context, path string) (any, error)

	// Subscribe registers onChange for the subtree at path. The callback is
	// invoked once with the current snapshot and again after every change
	// until the returned function is called. After the returned function
	// returns, no further invocations are observed. Callbacks must not
	// block.
	Subscribe(path string, onChange func(snapshot any)) (unsubscribe func(), err error)
}

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the segments of a path.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Related reports whether a change at changed is visible to a subscription
// rooted at sub: either path is an ancestor of the other, or they are equal.
func Related(sub, changed string) bool {
	if sub == changed || sub == "" || changed == "" {
		return true
	}
	return strings.HasPrefix(changed, sub+"/") || strings.HasPrefix(sub, changed+"/")
}

// Decode converts a snapshot value (as returned by ReadOnce or a
// subscription) into dst via JSON round-tripping.
func Decode(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}

// Normalize converts an arbitrary value into the plain JSON shape the tree
// holds (map[string]any, []any, float64, string, bool, nil).
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}
