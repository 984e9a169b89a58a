package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune   // 0 sniffs ',', ';', tab or '|' from the first line
	Encoding   string // source charset, default UTF-8
	Comment    rune   // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

var sniffCandidates = []byte{',', ';', '\t', '|'}

// sniffDelimiter picks the candidate that occurs most often in the first
// line, outside quotes. Ties go to the earlier candidate, so ',' wins by
// default.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	counts := make(map[byte]int, len(sniffCandidates))
	quoted := false
	for _, b := range head {
		if b == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[b]++
		}
	}
	best := sniffCandidates[0]
	for _, c := range sniffCandidates[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return rune(best)
}

func newCSVReader(r io.Reader, opts CSVOptions) (*csv.Reader, error) {
	src, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(src, 64<<10)
	comma := opts.Delimiter
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	reader := csv.NewReader(br)
	reader.Comma = comma
	reader.Comment = opts.Comment
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1
	return reader, nil
}

// StreamCSV reads delimited text and sends records to a channel, the header
// row included. Lines whose fields are all empty are skipped. Both channels
// are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader, err := newCSVReader(r, opts)
		if err != nil {
			errCh <- err
			return
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if blankRecord(record) {
				continue
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

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ReadCSV drains StreamCSV into a header and data rows. The header gets the
// same cleanup as ReadXLSX; rows are padded or cut to its width. An empty
// input yields a nil header.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]string, [][]string, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var header []string
	var rows [][]string
	for rec := range rowCh {
		if header == nil {
			header = normalizeHeader(rec)
			continue
		}
		rows = append(rows, fitWidth(rec, len(header)))
	}
	if err := <-errCh; err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}

func fitWidth(rec []string, n int) []string {
	if len(rec) >= n {
		return rec[:n]
	}
	padded := make([]string, n)
	copy(padded, rec)
	return padded
}
