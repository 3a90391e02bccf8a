package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV records from r and sends them to a channel, header
// included. Errors are sent on the error channel. Both channels are closed
// when processing completes.
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
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // exports are often ragged

		for {
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

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// readCSV collects a full stream into a Table.
func readCSV(ctx context.Context, data []byte, opts CSVOptions) (*Table, error) {
	rowCh, errCh := StreamCSV(ctx, bytes.NewReader(data), opts)

	var records [][]string
	for row := range rowCh {
		records = append(records, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return newTable(records), nil
}

// parseCSV decodes as UTF-8 first and retries exactly once with the
// configured fallback encoding.
func parseCSV(ctx context.Context, name string, data []byte, opts Options) (*Table, error) {
	csvOpts := CSVOptions{
		Delimiter:  opts.Delimiter,
		Comment:    opts.Comment,
		LazyQuotes: opts.LazyQuotes,
		TrimSpace:  opts.TrimSpace,
	}

	fallbackName := opts.FallbackEncoding
	if fallbackName == "" {
		fallbackName = DefaultFallbackEncoding
	}

	text, err := decodeUTF8(data)
	if err == nil {
		var tbl *Table
		tbl, err = readCSV(ctx, text, csvOpts)
		if err == nil {
			return tbl, nil
		}
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
	}

	logFallback(name, fallbackName, err)

	text, fbErr := decodeWith(fallbackName, data)
	if fbErr == nil {
		var tbl *Table
		tbl, fbErr = readCSV(ctx, text, csvOpts)
		if fbErr == nil {
			return tbl, nil
		}
	}
	return nil, &ParseError{
		Source:   name,
		Encoding: "utf-8",
		Fallback: fallbackName,
		Err:      fbErr,
	}
}
