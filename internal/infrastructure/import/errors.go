package csvimport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Import error codes
const (
	ErrCodeImportInvalidFile         = "ERR_IMPORT_INVALID_FILE"
	ErrCodeImportEmptyFile           = "ERR_IMPORT_EMPTY_FILE"
	ErrCodeImportInvalidEncoding     = "ERR_IMPORT_INVALID_ENCODING"
	ErrCodeImportUnsupportedEncoding = "ERR_IMPORT_UNSUPPORTED_ENCODING"
	ErrCodeImportMalformedRow        = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeImportMissingColumn       = "ERR_IMPORT_MISSING_COLUMN"
	ErrCodeImportInvalidDecimal      = "ERR_IMPORT_INVALID_DECIMAL"
	ErrCodeImportInvalidDate         = "ERR_IMPORT_INVALID_DATE"
	ErrCodeImportNegativeAmount      = "ERR_IMPORT_NEGATIVE_AMOUNT"
	ErrCodeImportRequiredValue       = "ERR_IMPORT_REQUIRED_VALUE"
)

var (
	// ErrEmptyFile is returned when the source has no content at all
	ErrEmptyFile = errors.New("source file is empty")

	// ErrInvalidEncoding is returned when the decoded content is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrUnsupportedEncoding is returned for encodings other than UTF-8 and Shift_JIS
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrUnsupportedFormat is returned for unknown source formats
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrMissingHeader is returned when a named mapping meets a source without a header row
	ErrMissingHeader = errors.New("source missing header row")

	// ErrNoSheet is returned when a workbook has no readable sheet
	ErrNoSheet = errors.New("workbook has no sheet")
)

// RowError represents a problem in a specific source row
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// NewRowError creates a new RowError
func NewRowError(row int, column, code, message string) RowError {
	return RowError{Row: row, Column: column, Code: code, Message: message}
}

// NewRowErrorWithValue creates a new RowError carrying the offending value
func NewRowErrorWithValue(row int, column, code, message, value string) RowError {
	return RowError{Row: row, Column: column, Code: code, Message: message, Value: value}
}

// ErrorCollection keeps the first maxErrors row errors and counts all of
// them, per column as well as in total.
type ErrorCollection struct {
	errors     []RowError
	maxErrors  int
	totalCount int
	byColumn   map[string]int
}

// NewErrorCollection creates a new ErrorCollection with a maximum error limit
func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorCollection{
		errors:    make([]RowError, 0, min(maxErrors, 16)),
		maxErrors: maxErrors,
		byColumn:  make(map[string]int),
	}
}

// Add adds an error to the collection
func (ec *ErrorCollection) Add(err RowError) {
	ec.totalCount++
	if err.Column != "" {
		ec.byColumn[err.Column]++
	}
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// AddCoercion records a value that could not be parsed and became null
func (ec *ErrorCollection) AddCoercion(row int, column, code, expected, value string) {
	ec.Add(NewRowErrorWithValue(row, column, code,
		fmt.Sprintf("expected %s, coerced to null", expected), value))
}

// Errors returns the collected errors
func (ec *ErrorCollection) Errors() []RowError {
	return ec.errors
}

// Count returns the number of collected errors (up to maxErrors)
func (ec *ErrorCollection) Count() int {
	return len(ec.errors)
}

// TotalCount returns the total number of errors including those not collected
func (ec *ErrorCollection) TotalCount() int {
	return ec.totalCount
}

// ByColumn returns the total error count per column
func (ec *ErrorCollection) ByColumn() map[string]int {
	out := make(map[string]int, len(ec.byColumn))
	for k, v := range ec.byColumn {
		out[k] = v
	}
	return out
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollection) HasErrors() bool {
	return ec.totalCount > 0
}

// IsTruncated returns true if some errors were not collected due to the limit
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > ec.maxErrors
}

// ErrorSummary returns collected errors counted by code
func (ec *ErrorCollection) ErrorSummary() map[string]int {
	summary := make(map[string]int)
	for _, err := range ec.errors {
		summary[err.Code]++
	}
	return summary
}

// String returns a string representation of all errors
func (ec *ErrorCollection) String() string {
	if !ec.HasErrors() {
		return "no errors"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s) found", ec.totalCount)
	if ec.IsTruncated() {
		fmt.Fprintf(&sb, " (showing first %d)", ec.maxErrors)
	}
	sb.WriteString(":\n")
	for _, err := range ec.errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}

	columns := make([]string, 0, len(ec.byColumn))
	for c := range ec.byColumn {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, c := range columns {
		fmt.Fprintf(&sb, "  %s: %d\n", c, ec.byColumn[c])
	}
	return sb.String()
}
