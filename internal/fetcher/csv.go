// Package fetcher reads the tabular files (CSV and XLSX) that reference data
// and counselling records arrive in.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

const utf8BOM = "\ufeff"

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // first row goes to HeaderCh instead of the row channel
	HeaderCh   chan<- []string // optional
	Comment    rune            // 0 = none
	LazyQuotes bool
	TrimSpace  bool
	SkipBlank  bool // drop rows whose cells are all empty after trimming
}

// StreamCSV parses r and sends rows on the returned channel. A leading UTF-8
// byte order mark, as written by spreadsheet exports, is removed. Rows may have
// differing field counts. Both channels are closed when parsing ends; the
// caller must drain the row channel.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		send := func(ch chan<- []string, rec []string) bool {
			select {
			case ch <- rec:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return false
			}
		}

		for line := 0; ; line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if line == 0 && len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], utf8BOM)
			}
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}

			if line == 0 && opts.HasHeader {
				if opts.HeaderCh != nil && !send(opts.HeaderCh, record) {
					return
				}
				continue
			}
			if opts.SkipBlank && isBlank(record) {
				continue
			}
			if !send(rowCh, record) {
				return
			}
		}
	}()

	return rowCh, errCh
}
