// Package sqlite stores article metadata in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/storage"
)

// Config locates the database file.
type Config struct {
	Path  string
	Name  string
	Table string
}

// MetadataStore upserts article rows with INSERT OR REPLACE.
type MetadataStore struct {
	db     *sql.DB
	table  string
	upsert string
}

// New opens (creating if needed) the database at Path/Name and ensures the
// table exists.
func New(ctx context.Context, cfg Config) (*MetadataStore, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("database name is required")
	}
	table, err := storage.TableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", filepath.Join(cfg.Path, cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &MetadataStore{db: db, table: table}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(storage.Columns)), ",")
	s.upsert = fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(storage.Columns, ", "), placeholders)
	return s, nil
}

func (s *MetadataStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		source_guid TEXT PRIMARY KEY,
		source_name TEXT,
		source_domain TEXT,
		search_engine_name TEXT,
		source_url TEXT,
		source_article_title TEXT,
		date_retrieved TEXT,
		search_query TEXT,
		suspected_duplicate TEXT
	)`, s.table)
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// UpsertArticles writes every article in one transaction. Rows with an
// existing source_guid are replaced.
func (s *MetadataStore) UpsertArticles(ctx context.Context, articles []harvest.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.upsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range articles {
		if _, err := stmt.ExecContext(ctx, storage.Row(a)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert article %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *MetadataStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *MetadataStore) Close() error {
	return s.db.Close()
}
