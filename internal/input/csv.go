package input

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// csvOptions configures the streaming CSV reader.
type csvOptions struct {
	Delimiter rune            // default ','
	HeaderCh  chan<- []string // receives the header row; must be buffered
	Comment   rune            // comment character (0 = none)
}

// streamCSV reads r and sends data rows on the returned channel. The first
// row is the header and goes to HeaderCh. Fields are trimmed. Both channels
// are closed when reading stops; at most one error is sent.
func streamCSV(ctx context.Context, r io.Reader, opts csvOptions) (<-chan []string, <-chan error) {
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
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1 // spreadsheets export ragged rows

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "input: csv cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "input: read csv row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(strings.TrimPrefix(field, "\ufeff"))
			}

			if first {
				first = false
				if opts.HeaderCh != nil {
					opts.HeaderCh <- record
				}
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "input: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
