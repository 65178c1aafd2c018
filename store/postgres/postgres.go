// Package postgres provides a document store backed by PostgreSQL. Documents
// live in a single table keyed by path; LISTEN/NOTIFY carries change
// notifications that feed live subscriptions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/edgeee/pinchat/store"
)

const changesChannel = "store_changes"

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun    *bun.DB
	logger *slog.Logger
	hub    *store.Hub

	listener *pgdriver.Listener
	wg       sync.WaitGroup
}

// Connect connects to the database, pings it to ensure the connection is
// working, creates the documents table if needed and starts the change
// listener.
func Connect(ctx context.Context, connStr string, logger *slog.Logger) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())

	pg := &Postgres{
		bun:    db,
		logger: logger,
	}
	pg.hub = store.NewHub(pg.snapshot, logger)

	if _, err := db.NewCreateTable().Model((*document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	pg.listener = pgdriver.NewListener(db)
	if err := pg.listener.Listen(ctx, changesChannel); err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	pg.wg.Add(1)
	go pg.dispatch()

	return pg, nil
}

// Close stops the change listener and releases the database. Subscriptions
// stop firing once Close returns.
func (pg *Postgres) Close() error {
	if err := pg.listener.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	pg.wg.Wait()
	return pg.bun.Close()
}

func (pg *Postgres) dispatch() {
	defer pg.wg.Done()
	for notif := range pg.listener.Channel() {
		pg.hub.Broadcast(context.Background(), notif.Payload)
	}
}

// Write replaces the document at path with value.
func (pg *Postgres) Write(ctx context.Context, path string, value any) error {
	doc, err := newDocument(path, value)
	if err != nil {
		return err
	}
	_, err = pg.bun.NewInsert().
		Model(doc).
		On("CONFLICT (path) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	pg.notify(ctx, path)
	return nil
}

// Update merges fields into the document at path, creating it if absent. A
// nil field value removes that field. The read-modify-write runs in a
// transaction so concurrent updates to the same path serialize.
func (pg *Postgres) Update(ctx context.Context, path string, fields map[string]any) error {
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing document
		err := tx.NewSelect().
			Model(&existing).
			Where("path = ?", path).
			For("UPDATE").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select: %w", err)
		}

		merged := make(map[string]any)
		if err == nil {
			if decodeErr := existing.decode(&merged); decodeErr != nil {
				return decodeErr
			}
		}
		for k, v := range fields {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}

		doc, err := newDocument(path, merged)
		if err != nil {
			return err
		}
		_, err = tx.NewInsert().
			Model(doc).
			On("CONFLICT (path) DO UPDATE").
			Set("value = EXCLUDED.value").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}

	pg.notify(ctx, path)
	return nil
}

// Delete removes the document or subtree at path. Absent paths are a no-op.
func (pg *Postgres) Delete(ctx context.Context, path string) error {
	_, err := pg.bun.NewDelete().
		Model((*document)(nil)).
		Where("path = ? OR path LIKE ?", path, path+"/%").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	pg.notify(ctx, path)
	return nil
}

// Append stores value under a generated child id and returns the id.
func (pg *Postgres) Append(ctx context.Context, path string, value any) (string, error) {
	id := uuid.NewString()
	if err := pg.Write(ctx, store.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

// ReadOnce returns a snapshot of the document or subtree at path, or nil.
func (pg *Postgres) ReadOnce(ctx context.Context, path string) (any, error) {
	var exact document
	err := pg.bun.NewSelect().
		Model(&exact).
		Where("path = ?", path).
		Scan(ctx)
	if err == nil {
		var out any
		if err := exact.decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select: %w", err)
	}

	var docs []document
	if err := pg.bun.NewSelect().
		Model(&docs).
		Where("path LIKE ?", path+"/%").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("select subtree: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	out := make(map[string]any)
	for _, doc := range docs {
		rel := store.Split(doc.Path[len(path)+1:])
		var value any
		if err := doc.decode(&value); err != nil {
			return nil, err
		}
		insert(out, rel, value)
	}
	return out, nil
}

// Subscribe registers a live callback for the subtree at path.
func (pg *Postgres) Subscribe(path string, onChange func(any)) (func(), error) {
	return pg.hub.Subscribe(path, onChange)
}

func (pg *Postgres) snapshot(ctx context.Context, path string) (any, error) {
	return pg.ReadOnce(ctx, path)
}

func (pg *Postgres) notify(ctx context.Context, path string) {
	if err := pgdriver.Notify(ctx, pg.bun, changesChannel, path); err != nil {
		pg.logger.Error("Could not notify change", "path", path, "error", err.Error())
	}
}

// insert places value into the nested map at the relative segment path.
func insert(tree map[string]any, segs []string, value any) {
	for _, seg := range segs[:len(segs)-1] {
		next, ok := tree[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			tree[seg] = next
		}
		tree = next
	}
	tree[segs[len(segs)-1]] = value
}
