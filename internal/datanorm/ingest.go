package datanorm

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxShapeWarnings bounds the per-row column-count warnings; the rest are
// summarized in a single line.
const maxShapeWarnings = 20

// foreignDelimiters are separators that indicate the file is not comma
// delimited when they show up inside a single-column header and most rows.
var foreignDelimiters = []string{";", "\t", "|"}

type column struct {
	name  string
	index int
}

// Ingest parses comma-delimited text from r into a ParsedTable. The first
// record is the header row. Headers and cells are trimmed; empty rows are
// dropped and every non-fatal anomaly is recorded in the table diagnostics.
//
// If ctx is done before parsing finishes, r is closed when it implements
// io.Closer and the returned error matches both ErrCancelled and ctx.Err().
func Ingest(ctx context.Context, r io.Reader) (*ParsedTable, error) {
	if err := ctx.Err(); err != nil {
		closeSource(r)
		return nil, cancelled(err)
	}
	stop := context.AfterFunc(ctx, func() { closeSource(r) })
	defer stop()

	decoded := transform.NewReader(&ctxReader{ctx: ctx, r: r}, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{Reason: "no headers"}
		}
		return nil, &FormatError{Reason: "unreadable header row", Line: 1, Err: err}
	}

	table := &ParsedTable{}
	cols, empty, dups := resolveHeaders(header)
	if len(cols) == 0 {
		return nil, &FormatError{Reason: "no headers", Line: 1}
	}
	for _, c := range cols {
		table.Headers = append(table.Headers, c.name)
	}
	if empty > 0 {
		table.Diagnostics.Warnings = append(table.Diagnostics.Warnings,
			fmt.Sprintf("%d empty header(s) ignored", empty))
	}
	if len(dups) > 0 {
		table.Diagnostics.Warnings = append(table.Diagnostics.Warnings,
			"duplicate headers: "+strings.Join(dups, ", "))
	}

	var (
		dropped    int
		shapeCount int
		sample     [][]string
	)
	prevEnd := recordEnd(reader, header)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx.Err())
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				table.Diagnostics.Errors = append(table.Diagnostics.Errors, parseErrorMessage(pe))
				prevEnd = pe.Line
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		// encoding/csv skips empty lines without returning them.
		if gap := line - prevEnd - 1; gap > 0 {
			dropped += gap
		}
		prevEnd = recordEnd(reader, record)
		if len(sample) < 5 {
			sample = append(sample, record)
		}

		if isBlankRecord(record) {
			dropped++
			continue
		}
		if len(record) != len(header) {
			shapeCount++
			if shapeCount <= maxShapeWarnings {
				table.Diagnostics.Warnings = append(table.Diagnostics.Warnings,
					fmt.Sprintf("line %d has %d columns, expected %d", line, len(record), len(header)))
			}
		}
		table.Rows = append(table.Rows, buildRow(cols, record))
	}

	if d, ok := foreignDelimiter(header, sample); ok {
		return nil, &FormatError{Reason: fmt.Sprintf("file appears to be delimited by %q, expected comma", d), Line: 1}
	}
	if shapeCount > maxShapeWarnings {
		table.Diagnostics.Warnings = append(table.Diagnostics.Warnings,
			fmt.Sprintf("%d more line(s) with an unexpected column count", shapeCount-maxShapeWarnings))
	}
	if dropped > 0 {
		table.Diagnostics.Warnings = append(table.Diagnostics.Warnings,
			fmt.Sprintf("%d empty row(s) removed", dropped))
	}

	table.RowCount = len(table.Rows)
	if table.RowCount == 0 {
		fe := &FormatError{Reason: "no data rows"}
		if len(table.Diagnostics.Errors) > 0 {
			fe.Err = errors.New(table.Diagnostics.Errors[0])
		}
		return nil, fe
	}
	return table, nil
}

// IngestFile opens a local .csv file and ingests it. The file is always
// closed before IngestFile returns.
func IngestFile(ctx context.Context, path string) (*ParsedTable, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFile)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Ingest(ctx, f)
}

// resolveHeaders trims the header row and returns the usable columns, the
// number of empty headers, and the names that occur more than once.
func resolveHeaders(header []string) ([]column, int, []string) {
	cols := make([]column, 0, len(header))
	seen := make(map[string]int, len(header))
	var (
		empty int
		dups  []string
	)
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			empty++
			continue
		}
		seen[name]++
		if seen[name] == 2 {
			dups = append(dups, name)
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols, empty, dups
}

// buildRow maps a record onto the usable columns. Missing cells become ""
// and when a header name repeats, the leftmost column supplies the value.
func buildRow(cols []column, record []string) map[string]string {
	row := make(map[string]string, len(cols))
	for _, c := range cols {
		if _, taken := row[c.name]; taken {
			continue
		}
		var cell string
		if c.index < len(record) {
			cell = strings.TrimSpace(record[c.index])
		}
		row[c.name] = cell
	}
	return row
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// recordEnd returns the physical line the record just read ends on.
func recordEnd(reader *csv.Reader, record []string) int {
	last := len(record) - 1
	line, _ := reader.FieldPos(last)
	return line + strings.Count(record[last], "\n")
}

// parseErrorMessage names the lines a rejected record covered. An unclosed
// quote swallows every line up to the end of the file.
func parseErrorMessage(pe *csv.ParseError) string {
	if pe.Line > pe.StartLine {
		return fmt.Sprintf("lines %d-%d: %v", pe.StartLine, pe.Line, pe.Err)
	}
	return fmt.Sprintf("line %d: %v", pe.Line, pe.Err)
}

// foreignDelimiter detects a file that was split on some other separator:
// the header is a single field containing the separator and so are most
// sampled rows. Commas inside those rows, such as list cells, are ignored.
func foreignDelimiter(header []string, sample [][]string) (string, bool) {
	if len(header) != 1 {
		return "", false
	}
	for _, d := range foreignDelimiters {
		if !strings.Contains(header[0], d) {
			continue
		}
		var rows, hits int
		for _, rec := range sample {
			if isBlankRecord(rec) {
				continue
			}
			rows++
			if strings.Contains(strings.Join(rec, ","), d) {
				hits++
			}
		}
		if hits*2 > rows || rows == 0 {
			return d, true
		}
	}
	return "", false
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func closeSource(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
