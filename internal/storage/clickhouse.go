package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"cloud-atlas/pkg/platform"
)

// ClickHouseConfig holds ClickHouse connection configuration
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultClickHouseConfig builds configuration from the environment with
// development defaults.
func DefaultClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		Host:     platform.GetEnv("CLICKHOUSE_HOST", "localhost"),
		Port:     platform.GetEnvInt("CLICKHOUSE_PORT", 9000),
		Database: platform.GetEnv("CLICKHOUSE_DATABASE", "atlas"),
		Username: platform.GetEnv("CLICKHOUSE_USER", "default"),
		Password: platform.GetEnv("CLICKHOUSE_PASSWORD", ""),
		Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
	}
}

// ClickHouseStore implements SnapshotStore on ClickHouse, append-only with
// ReplacingMergeTree dedup by run id.
type ClickHouseStore struct {
	conn clickhouse.Conn
	cfg  *ClickHouseConfig
}

// NewClickHouseStore connects and ensures the snapshots table exists. A nil
// cfg falls back to environment configuration.
func NewClickHouseStore(ctx context.Context, cfg *ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg == nil {
		cfg = DefaultClickHouseConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	store := &ClickHouseStore{conn: conn, cfg: cfg}
	if err := store.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *ClickHouseStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS discovery_snapshots (
			run_id         UUID,
			created_at     DateTime64(3),
			document       String,
			resource_count UInt32,
			link_count     UInt32,
			failure_count  UInt32
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY run_id
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// SaveSnapshot inserts one discovery run
func (s *ClickHouseStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	const query = `
		INSERT INTO discovery_snapshots (
			run_id, created_at, document, resource_count, link_count, failure_count
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return s.conn.Exec(ctx, query,
		snap.RunID,
		createdAt,
		string(snap.Document),
		uint32(snap.ResourceCount),
		uint32(snap.LinkCount),
		uint32(snap.FailureCount),
	)
}

// ListSnapshots returns the most recent runs, newest first
func (s *ClickHouseStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	const query = `
		SELECT run_id, created_at, resource_count, link_count, failure_count
		FROM discovery_snapshots FINAL
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var resources, links, failures uint32
		if err := rows.Scan(&info.RunID, &info.CreatedAt, &resources, &links, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		info.ResourceCount = int(resources)
		info.LinkCount = int(links)
		info.FailureCount = int(failures)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
