package clickhouse

import (
	"context"
	"fmt"
)

// schema holds the table definitions. ReplacingMergeTree keeps cache
// rows deduplicated by key; quota events are append-only and counted
// at read time, which fits ClickHouse better than in-place counters.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS %s.analysis_cache (
		key          String,
		payload      String,
		stored_at    DateTime64(3, 'UTC'),
		ttl_seconds  UInt32,
		version      UInt64
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY key
	TTL toDateTime(stored_at) + INTERVAL 7 DAY`,

	`CREATE TABLE IF NOT EXISTS %s.quota_events (
		scope     LowCardinality(String),
		bucket    String,
		identity  String,
		ts        DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (scope, bucket, identity, ts)
	TTL toDateTime(ts) + INTERVAL 60 DAY`,
}

// InitSchema creates the tables if they do not exist.
func InitSchema(ctx context.Context, conn *Connection) error {
	for _, stmt := range schema {
		if err := conn.Exec(ctx, fmt.Sprintf(stmt, conn.Database())); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
