// Package input loads the topic and domain lists a run searches over.
package input

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
)

// DefaultMaxArticles applies to a domain row whose limit cell is blank. It
// matches one page of search results.
const DefaultMaxArticles = 10

// maxLimit bounds a per-domain limit read from a spreadsheet cell.
const maxLimit = math.MaxInt32

// TopicsConfig names a spreadsheet column of topics, or an inline list.
type TopicsConfig struct {
	File   string   `mapstructure:"file"`
	Sheet  string   `mapstructure:"sheet"`
	Column string   `mapstructure:"column"`
	List   []string `mapstructure:"list"`
}

// DomainEntry is one inline domain row. A nil MaxArticles means
// DefaultMaxArticles.
type DomainEntry struct {
	Domain      string `mapstructure:"domain"`
	MaxArticles *int   `mapstructure:"max_articles"`
}

// Limit returns the entry's limit with the same rules as a spreadsheet cell.
func (e DomainEntry) Limit() int {
	if e.MaxArticles == nil {
		return DefaultMaxArticles
	}
	return max(*e.MaxArticles, 0)
}

// DomainsConfig names the spreadsheet columns holding domains and their
// per-query limits, or an inline list.
type DomainsConfig struct {
	File         string        `mapstructure:"file"`
	Sheet        string        `mapstructure:"sheet"`
	DomainColumn string        `mapstructure:"domain_column"`
	MaxColumn    string        `mapstructure:"max_column"`
	List         []DomainEntry `mapstructure:"list"`
}

// LoadTopics returns the non-blank topics in sheet order. The spreadsheet
// takes precedence over the inline list.
func LoadTopics(cfg TopicsConfig) ([]string, error) {
	if cfg.File == "" {
		return cleanList(cfg.List), nil
	}
	rows, header, err := readSheet(cfg.File, cfg.Sheet)
	if err != nil {
		return nil, err
	}
	col, err := columnIndex(header, cfg.Column)
	if err != nil {
		return nil, err
	}
	var topics []string
	for _, row := range rows {
		if topic := cell(row, col); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

// LoadDomains returns the domain rows in sheet order. Rows without a domain
// are skipped.
func LoadDomains(cfg DomainsConfig) ([]harvest.Domain, error) {
	if cfg.File == "" {
		domains := make([]harvest.Domain, 0, len(cfg.List))
		for _, e := range cfg.List {
			name := strings.TrimSpace(e.Domain)
			if name == "" {
				continue
			}
			domains = append(domains, harvest.Domain{Name: name, MaxArticles: e.Limit()})
		}
		return domains, nil
	}

	rows, header, err := readSheet(cfg.File, cfg.Sheet)
	if err != nil {
		return nil, err
	}
	domainCol, err := columnIndex(header, cfg.DomainColumn)
	if err != nil {
		return nil, err
	}
	maxCol, err := columnIndex(header, cfg.MaxColumn)
	if err != nil {
		return nil, err
	}

	var domains []harvest.Domain
	for i, row := range rows {
		name := cell(row, domainCol)
		if name == "" {
			continue
		}
		limit, err := parseLimit(cell(row, maxCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		domains = append(domains, harvest.Domain{Name: name, MaxArticles: limit})
	}
	return domains, nil
}

func readSheet(file, sheet string) ([][]string, []string, error) {
	f, err := excelize.OpenFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q of %s: %w", sheet, file, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q of %s is empty", sheet, file)
	}
	return rows[1:], rows[0], nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found in header %v", name, header)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseLimit accepts integers and integral floats such as "5.0", which is how
// some spreadsheet tools store whole numbers.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultMaxArticles, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid max articles %q", raw)
	}
	if f > maxLimit {
		return 0, fmt.Errorf("max articles %q exceeds %d", raw, maxLimit)
	}
	return int(max(f, 0)), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
