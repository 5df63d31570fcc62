package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements SnapshotStore on Postgres, upserting by run id.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with a lib/pq DSN and ensures the snapshots
// table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS discovery_snapshots (
			run_id         UUID PRIMARY KEY,
			created_at     TIMESTAMPTZ NOT NULL,
			document       JSONB NOT NULL,
			resource_count INTEGER NOT NULL,
			link_count     INTEGER NOT NULL,
			failure_count  INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	const query = `
		INSERT INTO discovery_snapshots (
			run_id, created_at, document, resource_count, link_count, failure_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			document = EXCLUDED.document,
			resource_count = EXCLUDED.resource_count,
			link_count = EXCLUDED.link_count,
			failure_count = EXCLUDED.failure_count
	`
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		snap.RunID, createdAt, string(snap.Document),
		snap.ResourceCount, snap.LinkCount, snap.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	const query = `
		SELECT run_id, created_at, resource_count, link_count, failure_count
		FROM discovery_snapshots
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.RunID, &info.CreatedAt, &info.ResourceCount, &info.LinkCount, &info.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
