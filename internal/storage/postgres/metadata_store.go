// Package postgres stores article metadata in Postgres.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/storage"
)

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// MetadataStore upserts article rows keyed by source_guid.
type MetadataStore struct {
	pool   pool
	table  string
	upsert string
}

// New connects to Postgres and creates the table if it is missing.
func New(ctx context.Context, cfg Config) (*MetadataStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*MetadataStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	updates := make([]string, 0, len(storage.Columns)-1)
	placeholders := make([]string, 0, len(storage.Columns))
	for i, col := range storage.Columns {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		if col != "source_guid" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	upsert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
ON CONFLICT (source_guid) DO UPDATE SET %s`,
		name,
		strings.Join(storage.Columns, ", "),
		strings.Join(placeholders, ","),
		strings.Join(updates, ", "),
	)
	return &MetadataStore{pool: p, table: name, upsert: upsert}, nil
}

// EnsureSchema creates the article table when it does not exist.
func (s *MetadataStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	source_guid TEXT PRIMARY KEY,
	source_name TEXT,
	source_domain TEXT,
	search_engine_name TEXT,
	source_url TEXT,
	source_article_title TEXT,
	date_retrieved TIMESTAMPTZ,
	search_query TEXT,
	suspected_duplicate TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// UpsertArticles writes all rows in a single transaction.
func (s *MetadataStore) UpsertArticles(ctx context.Context, articles []harvest.Article) error {
	if len(articles) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, a := range articles {
		if _, err := tx.Exec(ctx, s.upsert, args(a)...); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert article %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *MetadataStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func args(a harvest.Article) []any {
	var retrieved *time.Time
	if a.DateRetrieved != nil {
		t := a.DateRetrieved.UTC()
		retrieved = &t
	}
	return []any{
		a.ID,
		a.SourceName,
		a.SourceDomain,
		a.SearchEngineName,
		a.SourceURL,
		a.SourceTitle,
		retrieved,
		a.SearchQuery,
		a.SuspectedDuplicate,
	}
}
