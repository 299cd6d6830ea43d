package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shaharia-lab/f1mcp/observability"
)

// PostgresStore is a Store backed by PostgreSQL, for deployments where
// multiple server instances share one cache.
type PostgresStore struct {
	db     *sql.DB
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	logger observability.Logger
	now    func() time.Time
}

// NewPostgresStore creates a PostgresStore on top of an opened database
// handle and initializes the schema.
func NewPostgresStore(db *sql.DB, logger observability.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	store := &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := store.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	);`

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries (expires_at);
	`

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create cache_entries table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("failed to create expiry index: %w", err)
	}

	return nil
}

// GetOrCompute implements Store. The single-compute guarantee is per
// process; instances sharing one database may each compute once.
func (s *PostgresStore) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (json.RawMessage, error) {
	if value, ok, err := s.lookup(ctx, key); err != nil {
		return nil, err
	} else if ok {
		s.hits.Add(1)
		return value, nil
	}
	s.misses.Add(1)

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		if value, ok, err := s.lookup(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return value, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		if err := s.store(ctx, key, value, ttl); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(json.RawMessage), nil
}

// Invalidate implements Store.
func (s *PostgresStore) Invalidate(ctx context.Context, keyPrefix string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key LIKE $1 || '%'`, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache entries: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count invalidated entries: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"prefix":  keyPrefix,
		"removed": removed,
	}).Debug("Cache invalidated")

	return removed, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var entryCount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE expires_at > $1`,
		s.now().UnixMilli()).Scan(&entryCount)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count cache entries: %w", err)
	}

	return Stats{
		EntryCount: entryCount,
		HitCount:   s.hits.Load(),
		MissCount:  s.misses.Load(),
	}, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = $1 AND expires_at > $2`,
		key, s.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) store(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		key, []byte(value), now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}
