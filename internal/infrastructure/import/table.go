package csvimport

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is the container format of a source file
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat guesses the format from a file name, defaulting to CSV
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	}
	return FormatCSV
}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatTSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// Row is one source row with its line number
type Row struct {
	LineNumber int
	Data       map[string]string
	RawFields  []string
}

func newRow(line int, headers, fields []string) *Row {
	row := &Row{LineNumber: line, RawFields: fields}
	if headers != nil {
		row.Data = make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(fields) {
				row.Data[h] = fields[i]
			} else {
				row.Data[h] = ""
			}
		}
	}
	return row
}

// Get returns the value for a column by header name
func (r *Row) Get(header string) string {
	return r.Data[header]
}

// At returns the value at a zero-based position
func (r *Row) At(index int) string {
	if index < 0 || index >= len(r.RawFields) {
		return ""
	}
	return r.RawFields[index]
}

// IsEmpty returns true if the row has no non-empty values
func (r *Row) IsEmpty() bool {
	for _, v := range r.RawFields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Table is a fully read source
type Table struct {
	Headers []string
	Rows    []*Row
}

// ReadOptions controls how a source is turned into a Table
type ReadOptions struct {
	Format    Format
	Encoding  Encoding
	Delimiter rune
	Sheet     string // XLSX only; first sheet when empty
	NoHeader  bool
}

// ReadTable reads a whole source. Blank rows are skipped.
func ReadTable(r io.Reader, opts ReadOptions) (*Table, error) {
	switch opts.Format {
	case FormatXLSX:
		return readWorkbook(r, opts)
	case FormatTSV:
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
	case FormatCSV, "":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	enc := opts.Encoding
	if enc == "" {
		enc = EncodingUTF8
	}
	parserOpts := []ParserOption{WithEncoding(enc)}
	if opts.Delimiter != 0 {
		parserOpts = append(parserOpts, WithDelimiter(opts.Delimiter))
	}

	parser, err := NewCSVParser(r, parserOpts...)
	if err != nil {
		return nil, err
	}
	if !opts.NoHeader {
		if err := parser.ParseHeader(); err != nil {
			return nil, err
		}
	}
	rows, err := parser.ReadAllRows()
	if err != nil {
		return nil, err
	}
	return &Table{Headers: parser.Headers(), Rows: rows}, nil
}

// readWorkbook reads one sheet of an XLSX workbook. Cell values are the
// formatted strings excelize returns, so dates keep their display format.
func readWorkbook(r io.Reader, opts ReadOptions) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoSheet
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	table := &Table{}
	line := 0
	if !opts.NoHeader {
		table.Headers = make([]string, len(records[0]))
		for i, h := range records[0] {
			table.Headers[i] = trimSpaces(h)
		}
		if len(table.Headers) == 0 {
			return nil, ErrMissingHeader
		}
		records = records[1:]
		line = 1
	}

	for _, rec := range records {
		line++
		for i := range rec {
			rec[i] = trimSpaces(rec[i])
		}
		row := newRow(line, table.Headers, rec)
		if row.IsEmpty() {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
