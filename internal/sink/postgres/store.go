// Package postgres provides Postgres-backed persistence for job records and
// the cross-run dedup index.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobsift/jobsift/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for job records.
type StoreConfig struct {
	DSN             string
	Table           string
	IndexTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements ingest.RecordSink and ingest.DedupIndex on a shared pool.
type Store struct {
	pool       dbPool
	table      string
	indexTable string
}

// NewStore creates a Postgres-backed store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, cfg.Table, cfg.IndexTable)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbPool, table, indexTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, table, indexTable)
}

func newStore(pool dbPool, table, indexTable string) (*Store, error) {
	if table == "" {
		table = "job_records"
	}
	if indexTable == "" {
		indexTable = "dedup_index"
	}
	for _, name := range []string{table, indexTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &Store{pool: pool, table: table, indexTable: indexTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert writes the record, replacing any previous row for the same identity
// key.
func (s *Store) Upsert(ctx context.Context, key ingest.RecordKey, record ingest.JobRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if key.Site == "" || key.ExternalID == "" {
		return fmt.Errorf("record key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	site,
	external_id,
	title,
	company,
	location,
	other_locations,
	salary,
	posted_at,
	posted_raw,
	description,
	url,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (site, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	other_locations = EXCLUDED.other_locations,
	salary = EXCLUDED.salary,
	posted_at = EXCLUDED.posted_at,
	posted_raw = EXCLUDED.posted_raw,
	description = EXCLUDED.description,
	url = EXCLUDED.url,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	args := []any{
		key.Site,
		key.ExternalID,
		record.Title,
		record.Company,
		record.Location,
		record.OtherLocations,
		record.Salary,
		record.PostedAt,
		record.PostedRaw,
		record.Description,
		record.URL,
		record.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert job record: %w", err)
	}
	return nil
}

// Exists reports whether a row is stored for the key.
func (s *Store) Exists(ctx context.Context, key ingest.RecordKey) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("record store is not configured")
	}
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE site = $1 AND external_id = $2)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, key.Site, key.ExternalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check job record: %w", err)
	}
	return exists, nil
}

// HasKey reports whether the identity key is present in the dedup index.
func (s *Store) HasKey(ctx context.Context, site, externalID string) (bool, error) {
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE site = $1 AND external_id = $2)`, s.indexTable)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, site, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check dedup key: %w", err)
	}
	return exists, nil
}

// HasContent reports whether the content hash is present in the dedup index.
func (s *Store) HasContent(ctx context.Context, site, contentHash string) (bool, error) {
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE site = $1 AND content_hash = $2)`, s.indexTable)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, site, contentHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check dedup content: %w", err)
	}
	return exists, nil
}

// Add records both identity keys in the dedup index. Re-adding an existing
// key is a no-op, so a re-run over the same listings stays idempotent.
func (s *Store) Add(ctx context.Context, site, externalID, contentHash string) error {
	query := fmt.Sprintf(`
INSERT INTO %s (site, external_id, content_hash, added_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (site, external_id) DO NOTHING`, s.indexTable)
	// Contentless records index as NULL so they can never content-match.
	var hash *string
	if contentHash != "" {
		hash = &contentHash
	}
	if _, err := s.pool.Exec(ctx, query, site, externalID, hash); err != nil {
		return fmt.Errorf("add dedup entry: %w", err)
	}
	return nil
}
