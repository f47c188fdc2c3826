package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Sheet is a tabular file read fully into memory: one header row followed by
// data rows.
type Sheet struct {
	Header []string
	Rows   [][]string
}

// ReadSheet reads a .csv, .tsv, or .xlsx file. The first row is the header.
func ReadSheet(ctx context.Context, path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, eris.Errorf("fetcher: %s has no header row", path)
		}
		return &Sheet{Header: rows[0], Rows: rows[1:]}, nil
	case ".csv", ".tsv":
		return readDelimited(ctx, path)
	default:
		return nil, eris.Errorf("fetcher: unsupported sheet format %q", filepath.Ext(path))
	}
}

func readDelimited(ctx context.Context, path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	opts := CSVOptions{HasHeader: true, TrimSpace: true, LazyQuotes: true, SkipBlank: true}
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Delimiter = '\t'
	}
	headerCh := make(chan []string, 1)
	opts.HeaderCh = headerCh

	rowCh, errCh := StreamCSV(ctx, f, opts)
	sheet := &Sheet{}
	for row := range rowCh {
		sheet.Rows = append(sheet.Rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	select {
	case sheet.Header = <-headerCh:
	default:
		return nil, eris.Errorf("fetcher: %s has no header row", path)
	}
	return sheet, nil
}

// Column returns the index of the first header cell matching any of names,
// or -1. Matching ignores case, surrounding space, and the difference
// between spaces, dashes, and underscores.
func (s *Sheet) Column(names ...string) int {
	for _, name := range names {
		want := headerKey(name)
		for i, h := range s.Header {
			if headerKey(h) == want {
				return i
			}
		}
	}
	return -1
}

// Value returns row[col], or "" when col is out of range.
func Value(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func headerKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", " ", "-", " ").Replace(strings.Join(strings.Fields(s), " "))
}
