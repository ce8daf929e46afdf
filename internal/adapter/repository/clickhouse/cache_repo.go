package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
)

// CacheRepository persists composed analysis results as JSON blobs,
// implementing resultcache.Store. Rows are versioned by insert time so
// ReplacingMergeTree collapses rewrites of the same key.
type CacheRepository struct {
	conn *Connection
}

// NewCacheRepository creates a new cache repository.
func NewCacheRepository(conn *Connection) *CacheRepository {
	return &CacheRepository{conn: conn}
}

var _ resultcache.Store = (*CacheRepository)(nil)

// Get returns the stored result and its write time, or resultcache.ErrMiss.
func (r *CacheRepository) Get(ctx context.Context, key string) (*entity.AnalysisResult, time.Time, error) {
	query := fmt.Sprintf(`
		SELECT payload, stored_at
		FROM %s.analysis_cache
		FINAL
		WHERE key = ?
		LIMIT 1
	`, r.conn.Database())

	var (
		payload  string
		storedAt time.Time
	)
	row := r.conn.QueryRow(ctx, query, key)
	if err := row.Scan(&payload, &storedAt); err != nil {
		// clickhouse-go returns sql.ErrNoRows-compatible errors as plain
		// scan failures on empty result sets; treat any scan failure of
		// the single-row lookup as a miss unless the connection is down.
		if pingErr := r.conn.Ping(ctx); pingErr != nil {
			return nil, time.Time{}, fmt.Errorf("cache lookup: %w", err)
		}
		return nil, time.Time{}, resultcache.ErrMiss
	}

	var result entity.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode cached result: %w", err)
	}

	return &result, storedAt, nil
}

// Put writes or replaces the entry for a key.
func (r *CacheRepository) Put(ctx context.Context, key string, result *entity.AnalysisResult, storedAt time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s.analysis_cache (key, payload, stored_at, ttl_seconds, version)
		VALUES (?, ?, ?, ?, ?)
	`, r.conn.Database())

	if err := r.conn.Exec(ctx, query,
		key,
		string(payload),
		storedAt.UTC(),
		uint32(ttl.Seconds()),
		uint64(storedAt.UnixNano()),
	); err != nil {
		return fmt.Errorf("store cached result: %w", err)
	}
	return nil
}

// Delete removes the entry for a key.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s.analysis_cache WHERE key = ?`, r.conn.Database())
	if err := r.conn.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete cached result: %w", err)
	}
	return nil
}
