// Package excel maintains the spreadsheet export of article metadata.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/topic-harvester/internal/harvest"
	"github.com/JakeFAU/topic-harvester/internal/storage"
)

const defaultSheet = "Articles"

// Config locates the workbook.
type Config struct {
	Path     string
	FileName string
	Sheet    string
}

// Exporter merges article rows into an .xlsx workbook, keeping one row per
// source_url.
type Exporter struct {
	mu    sync.Mutex
	file  string
	sheet string
}

// New builds an Exporter. The workbook is created on first export.
func New(cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.FileName) == "" {
		return nil, fmt.Errorf("export file name is required")
	}
	if !strings.EqualFold(filepath.Ext(cfg.FileName), ".xlsx") {
		return nil, fmt.Errorf("export file %q must have an .xlsx extension", cfg.FileName)
	}
	sheet := cfg.Sheet
	if sheet == "" {
		sheet = defaultSheet
	}
	return &Exporter{file: filepath.Join(cfg.Path, cfg.FileName), sheet: sheet}, nil
}

// Path returns the workbook location.
func (e *Exporter) Path() string { return e.file }

// Export merges articles into the workbook. A row whose id is already present
// replaces that row in place. A row with a new id whose source_url is already
// present is dropped, so the first occurrence of each URL wins.
func (e *Exporter) Export(_ context.Context, articles []harvest.Article) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.load()
	if err != nil {
		return err
	}
	rows = merge(rows, articles)
	return e.save(rows)
}

// Rows returns the current workbook contents keyed by column name.
func (e *Exporter) Rows() ([]map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows, err := e.load()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]string, len(storage.Columns))
		for i, col := range storage.Columns {
			m[col] = r[i]
		}
		out = append(out, m)
	}
	return out, nil
}

const (
	colID  = 0
	colURL = 4
)

func merge(rows [][]string, articles []harvest.Article) [][]string {
	byID := make(map[string]int, len(rows))
	for i, r := range rows {
		byID[r[colID]] = i
	}
	for _, a := range articles {
		rec := record(a)
		if i, ok := byID[a.ID]; ok {
			rows[i] = rec
			continue
		}
		byID[a.ID] = len(rows)
		rows = append(rows, rec)
	}

	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if _, dup := seen[r[colURL]]; dup {
			continue
		}
		seen[r[colURL]] = struct{}{}
		out = append(out, r)
	}
	return out
}

func record(a harvest.Article) []string {
	return []string{
		a.ID,
		a.SourceName,
		a.SourceDomain,
		a.SearchEngineName,
		a.SourceURL,
		a.SourceTitle,
		a.RetrievedAt(),
		a.SearchQuery,
		a.SuspectedDuplicate,
	}
}

// load reads existing rows, mapping cells by header name so that column
// order in an older workbook does not matter.
func (e *Exporter) load() ([][]string, error) {
	f, err := excelize.OpenFile(e.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", e.file, err)
	}
	defer f.Close()

	// Workbooks written by older exports may only have a default sheet.
	sheet := e.sheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(raw[0]))
	for i, h := range raw[0] {
		index[strings.TrimSpace(h)] = i
	}
	rows := make([][]string, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		rec := make([]string, len(storage.Columns))
		for i, col := range storage.Columns {
			if j, ok := index[col]; ok && j < len(cells) {
				rec[i] = cells[j]
			}
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// save writes the workbook to a temporary file and renames it over the
// previous export.
func (e *Exporter) save(rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(storage.Columns))
	for i, col := range storage.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(e.sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		values := make([]any, len(r))
		for j, v := range r {
			values[j] = v
		}
		if err := f.SetSheetRow(e.sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	dir := filepath.Dir(e.file)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	tmpName := tmp.Name()
	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, e.file); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace export: %w", err)
	}
	return nil
}
