// Package memory provides an in-process document store. It backs the unit
// tests and the -store memory mode, and is the reference implementation of
// the store contract.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/edgeee/pinchat/store"
)

// Memory holds the document tree in process memory.
type Memory struct {
	mu   sync.RWMutex
	root map[string]any
	hub  *store.Hub
}

// New returns an empty in-memory store.
func New(logger *slog.Logger) *Memory {
	m := &Memory{
		root: make(map[string]any),
	}
	m.hub = store.NewHub(m.snapshot, logger)
	return m
}

// Write replaces the document at path with value.
func (m *Memory) Write(ctx context.Context, path string, value any) error {
	norm, err := store.Normalize(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.set(store.Split(path), norm)
	m.mu.Unlock()

	m.hub.Broadcast(ctx, path)
	return nil
}

// Update merges fields into the document at path.
func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	norm, err := store.Normalize(fields)
	if err != nil {
		return err
	}
	patch, ok := norm.(map[string]any)
	if !ok {
		return fmt.Errorf("update %s: fields do not form a document", path)
	}

	m.mu.Lock()
	segs := store.Split(path)
	doc, ok := m.get(segs).(map[string]any)
	if !ok {
		doc = make(map[string]any)
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	m.set(segs, doc)
	m.mu.Unlock()

	m.hub.Broadcast(ctx, path)
	return nil
}

// Delete removes the subtree at path. Absent paths are a no-op.
func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	removed := m.remove(m.root, store.Split(path))
	m.mu.Unlock()

	if removed {
		m.hub.Broadcast(ctx, path)
	}
	return nil
}

// Append stores value under a generated child id and returns the id.
func (m *Memory) Append(ctx context.Context, path string, value any) (string, error) {
	id := uuid.NewString()
	if err := m.Write(ctx, store.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

// ReadOnce returns a deep copy of the subtree at path, or nil.
func (m *Memory) ReadOnce(_ context.Context, path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyTree(m.get(store.Split(path))), nil
}

// Subscribe registers a live callback for the subtree at path.
func (m *Memory) Subscribe(path string, onChange func(any)) (func(), error) {
	return m.hub.Subscribe(path, onChange)
}

func (m *Memory) snapshot(ctx context.Context, path string) (any, error) {
	return m.ReadOnce(ctx, path)
}

// get walks the tree. Caller holds the lock.
func (m *Memory) get(segs []string) any {
	var cur any = m.root
	for _, seg := range segs {
		branch, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = branch[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// set replaces the subtree at segs, creating intermediate branches. Caller
// holds the lock.
func (m *Memory) set(segs []string, value any) {
	if len(segs) == 0 {
		if branch, ok := value.(map[string]any); ok {
			m.root = branch
		}
		return
	}
	cur := m.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

// remove deletes the subtree at segs and prunes branches left empty. Returns
// whether anything was removed. Caller holds the lock.
func (m *Memory) remove(branch map[string]any, segs []string) bool {
	if len(segs) == 0 {
		return false
	}
	if len(segs) == 1 {
		if _, ok := branch[segs[0]]; !ok {
			return false
		}
		delete(branch, segs[0])
		return true
	}
	child, ok := branch[segs[0]].(map[string]any)
	if !ok {
		return false
	}
	removed := m.remove(child, segs[1:])
	if removed && len(child) == 0 {
		delete(branch, segs[0])
	}
	return removed
}

func copyTree(v any) any {
	branch, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(branch))
	for k, child := range branch {
		out[k] = copyTree(child)
	}
	return out
}
