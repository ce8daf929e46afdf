package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
)

// QuotaRepository persists quota consumption as append-only events,
// implementing ratelimit.Repository. Counting at read time over the
// (scope, bucket, identity) ordering key keeps writes contention-free
// and makes quota state survive restarts.
type QuotaRepository struct {
	conn *Connection
}

// NewQuotaRepository creates a new quota repository.
func NewQuotaRepository(conn *Connection) *QuotaRepository {
	return &QuotaRepository{conn: conn}
}

var _ ratelimit.Repository = (*QuotaRepository)(nil)

// Count returns the number of consumption events in a bucket.
func (r *QuotaRepository) Count(ctx context.Context, scope, bucket, identity string) (int, error) {
	query := fmt.Sprintf(`
		SELECT count()
		FROM %s.quota_events
		WHERE scope = ? AND bucket = ? AND identity = ?
	`, r.conn.Database())

	var count uint64
	row := r.conn.QueryRow(ctx, query, scope, bucket, identity)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count quota events: %w", err)
	}
	return int(count), nil
}

// Increment appends one consumption event.
func (r *QuotaRepository) Increment(ctx context.Context, scope, bucket, identity string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.quota_events (scope, bucket, identity, ts)
		VALUES (?, ?, ?, ?)
	`, r.conn.Database())

	if err := r.conn.Exec(ctx, query, scope, bucket, identity, time.Now().UTC()); err != nil {
		return fmt.Errorf("record quota event: %w", err)
	}
	return nil
}

// Cleanup drops day-scoped events older than the cutoff day. The table
// TTL is the backstop; this keeps read-time counts cheap.
func (r *QuotaRepository) Cleanup(ctx context.Context, beforeDay string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s.quota_events
		WHERE scope IN (?, ?) AND bucket < ?
	`, r.conn.Database())

	if err := r.conn.Exec(ctx, query, ratelimit.ScopeIdentity, ratelimit.ScopeGlobalDaily, beforeDay); err != nil {
		return fmt.Errorf("cleanup quota events: %w", err)
	}
	return nil
}
