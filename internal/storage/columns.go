package storage

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// DefaultTable is the metadata table name.
const DefaultTable = "articles"

// Columns lists the persisted metadata fields in table and export order.
// Article content is never part of it.
var Columns = []string{
	"source_guid",
	"source_name",
	"source_domain",
	"search_engine_name",
	"source_url",
	"source_article_title",
	"date_retrieved",
	"search_query",
	"suspected_duplicate",
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns name, or DefaultTable when empty, rejecting anything that
// is not a plain SQL identifier.
func TableName(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

// Row returns the column values for a in Columns order. date_retrieved is
// NULL until content has been fetched.
func Row(a harvest.Article) []any {
	retrieved := sql.NullString{String: a.RetrievedAt(), Valid: a.DateRetrieved != nil}
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
