package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoding is the character encoding of a delimited source
type Encoding string

const (
	EncodingUTF8     Encoding = "utf-8"
	EncodingShiftJIS Encoding = "shift_jis"
)

var encodingAliases = map[string]Encoding{
	"":            EncodingUTF8,
	"utf-8":       EncodingUTF8,
	"utf8":        EncodingUTF8,
	"shift_jis":   EncodingShiftJIS,
	"shift-jis":   EncodingShiftJIS,
	"sjis":        EncodingShiftJIS,
	"cp932":       EncodingShiftJIS,
	"windows-31j": EncodingShiftJIS,
}

// ParseEncoding normalizes an encoding name. Empty means UTF-8.
func ParseEncoding(s string) (Encoding, error) {
	if enc, ok := encodingAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return enc, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedEncoding, s)
}

// decode wraps r so it yields UTF-8.
func (e Encoding) decode(r io.Reader) (io.Reader, error) {
	switch e {
	case EncodingUTF8, "":
		return r, nil
	case EncodingShiftJIS:
		return transform.NewReader(r, japanese.ShiftJIS.NewDecoder()), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, e)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffSize is how much of the decoded source is checked for valid UTF-8
const sniffSize = 4096

// CSVParser reads delimited text row by row. Fields are trimmed of ASCII
// and ideographic spaces, and quotes are read leniently since exports from
// procurement systems often carry stray ones.
type CSVParser struct {
	r       *csv.Reader
	headers []string
	columns map[string]int
	line    int
	rows    int
}

// ParserOption configures a CSVParser
type ParserOption func(*parserOptions)

type parserOptions struct {
	delimiter rune
	encoding  Encoding
}

// WithDelimiter sets the field delimiter. The default is a comma.
func WithDelimiter(d rune) ParserOption {
	return func(o *parserOptions) { o.delimiter = d }
}

// WithEncoding sets the source encoding. The default is UTF-8.
func WithEncoding(enc Encoding) ParserOption {
	return func(o *parserOptions) { o.encoding = enc }
}

// NewCSVParser prepares r for reading. A leading BOM is dropped; an empty
// source or one that does not decode to UTF-8 is rejected up front.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	o := parserOptions{delimiter: ',', encoding: EncodingUTF8}
	for _, opt := range opts {
		opt(&o)
	}
	src, err := o.encoding.decode(r)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(src, sniffSize)
	if err := sniff(br); err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = o.delimiter
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return &CSVParser{r: cr, columns: make(map[string]int)}, nil
}

// sniff drops a BOM and validates the first block of br.
func sniff(br *bufio.Reader) error {
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return fmt.Errorf("read source: %w", err)
	}
	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
		head = head[len(utf8BOM):]
	}
	if len(head) == 0 {
		return ErrEmptyFile
	}
	// A full block may end inside a multi-byte rune
	if len(head) >= sniffSize-len(utf8BOM) {
		for cut := 0; cut < utf8.UTFMax && !utf8.Valid(head); cut++ {
			head = head[:len(head)-1]
		}
	}
	if !utf8.Valid(head) {
		return ErrInvalidEncoding
	}
	return nil
}

// ParseHeader reads the first row as column names.
func (p *CSVParser) ParseHeader() error {
	record, err := p.r.Read()
	switch {
	case errors.Is(err, io.EOF):
		return ErrMissingHeader
	case err != nil:
		return fmt.Errorf("read header: %w", err)
	case len(record) == 0:
		return ErrMissingHeader
	}
	p.headers = trimAll(record)
	for i, h := range p.headers {
		p.columns[h] = i
	}
	p.line = 1
	return nil
}

// Headers returns the column names, nil before ParseHeader.
func (p *CSVParser) Headers() []string { return p.headers }

// HasHeader reports whether name is a column.
func (p *CSVParser) HasHeader(name string) bool {
	_, ok := p.columns[name]
	return ok
}

// ValidateHeaders returns the required columns that are absent.
func (p *CSVParser) ValidateHeaders(required []string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// ReadRow reads the next row, or io.EOF. Without a parsed header only
// RawFields is set.
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	p.line++
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", p.line, err)
	}
	p.rows++
	return newRow(p.line, p.headers, trimAll(record)), nil
}

// ReadAllRows reads the remaining rows, skipping blank ones. Rows read
// before a failure are returned with the error.
func (p *CSVParser) ReadAllRows() ([]*Row, error) {
	var rows []*Row
	for {
		row, err := p.ReadRow()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if !row.IsEmpty() {
			rows = append(rows, row)
		}
	}
}

// TotalRows is the number of data rows read so far, blank ones included.
func (p *CSVParser) TotalRows() int { return p.rows }

func trimAll(fields []string) []string {
	for i, f := range fields {
		fields[i] = trimSpaces(f)
	}
	return fields
}

func trimSpaces(s string) string { return strings.TrimFunc(s, isPadding) }

// isPadding matches ASCII whitespace and the ideographic space U+3000.
func isPadding(r rune) bool {
	return r == '　' || (r < utf8.RuneSelf && unicode.IsSpace(r))
}
