// Package redis provides a document store backed by Redis. Each document is
// a JSON blob keyed by its path; per-parent index sets make subtree reads
// possible, and a pub/sub channel carries change notifications that feed
// live subscriptions.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edgeee/pinchat/store"
)

const (
	docPrefix      = "doc:"
	indexPrefix    = "idx:"
	changesChannel = "store:changes"
)

// Redis provides storage in Redis.
type Redis struct {
	cli    *redis.Client
	logger *slog.Logger
	hub    *store.Hub

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// Connect connects to the Redis server, pings it to ensure the connection is
// working and starts the change listener.
func Connect(ctx context.Context, addr string, logger *slog.Logger) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	r := &Redis{
		cli:    cli,
		logger: logger,
	}
	r.hub = store.NewHub(r.snapshot, logger)

	r.pubsub = cli.Subscribe(ctx, changesChannel)
	r.wg.Add(1)
	go r.dispatch()

	return r, nil
}

// Close stops the change listener and releases the client. Subscriptions
// stop firing once Close returns.
func (r *Redis) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	r.wg.Wait()
	return r.cli.Close()
}

func (r *Redis) dispatch() {
	defer r.wg.Done()
	for msg := range r.pubsub.Channel() {
		r.hub.Broadcast(context.Background(), msg.Payload)
	}
}

// Write replaces the document at path with value.
func (r *Redis) Write(ctx context.Context, path string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docPrefix+path, blob, 0)
			registerAncestors(ctx, pipe, path)
			return nil
		})
		return err
	}, docPrefix+path)
	if err != nil {
		return fmt.Errorf("redis write: %w", err)
	}

	r.publish(ctx, path)
	return nil
}

// Update merges fields into the document at path, creating it if absent. A
// nil field value removes that field.
func (r *Redis) Update(ctx context.Context, path string, fields map[string]any) error {
	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		doc := make(map[string]any)
		raw, err := tx.Get(ctx, docPrefix+path).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("get: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
		}
		for k, v := range fields {
			if v == nil {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
		blob, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docPrefix+path, blob, 0)
			registerAncestors(ctx, pipe, path)
			return nil
		})
		return err
	}, docPrefix+path)
	if err != nil {
		return fmt.Errorf("redis update: %w", err)
	}

	r.publish(ctx, path)
	return nil
}

// Delete removes the document or subtree at path. Absent paths are a no-op.
func (r *Redis) Delete(ctx context.Context, path string) error {
	if err := r.deleteTree(ctx, path); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	segs := store.Split(path)
	if len(segs) > 0 {
		parent := store.Join(segs[:len(segs)-1]...)
		if err := r.cli.SRem(ctx, indexPrefix+parent, segs[len(segs)-1]).Err(); err != nil {
			return fmt.Errorf("redis delete: unindex: %w", err)
		}
	}

	r.publish(ctx, path)
	return nil
}

func (r *Redis) deleteTree(ctx context.Context, path string) error {
	children, err := r.cli.SMembers(ctx, indexPrefix+path).Result()
	if err != nil {
		return fmt.Errorf("smembers: %w", err)
	}
	for _, child := range children {
		if err := r.deleteTree(ctx, store.Join(path, child)); err != nil {
			return err
		}
	}
	if err := r.cli.Del(ctx, docPrefix+path, indexPrefix+path).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Append stores value under a generated child id and returns the id.
func (r *Redis) Append(ctx context.Context, path string, value any) (string, error) {
	id := uuid.NewString()
	if err := r.Write(ctx, store.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

// ReadOnce returns a snapshot of the document or subtree at path, or nil.
func (r *Redis) ReadOnce(ctx context.Context, path string) (any, error) {
	raw, err := r.cli.Get(ctx, docPrefix+path).Result()
	if err == nil {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", path, err)
		}
		return doc, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	children, err := r.cli.SMembers(ctx, indexPrefix+path).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	out := make(map[string]any, len(children))
	for _, child := range children {
		sub, err := r.ReadOnce(ctx, store.Join(path, child))
		if err != nil {
			return nil, err
		}
		// Stale index entries resolve to nil and are skipped.
		if sub != nil {
			out[child] = sub
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Subscribe registers a live callback for the subtree at path.
func (r *Redis) Subscribe(path string, onChange func(any)) (func(), error) {
	return r.hub.Subscribe(path, onChange)
}

func (r *Redis) snapshot(ctx context.Context, path string) (any, error) {
	return r.ReadOnce(ctx, path)
}

func (r *Redis) publish(ctx context.Context, path string) {
	if err := r.cli.Publish(ctx, changesChannel, path).Err(); err != nil {
		r.logger.Error("Could not publish change", "path", path, "error", err.Error())
	}
}

// registerAncestors records path in the child index of each of its parents
// so interior paths can be read back as subtrees.
func registerAncestors(ctx context.Context, pipe redis.Pipeliner, path string) {
	segs := store.Split(path)
	for i := len(segs) - 1; i >= 0; i-- {
		parent := store.Join(segs[:i]...)
		pipe.SAdd(ctx, indexPrefix+parent, segs[i])
	}
}
