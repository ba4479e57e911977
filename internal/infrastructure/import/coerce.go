package csvimport

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// DateLayouts are tried in order when a field mapping has no layout
var DateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006.01.02",
	"20060102",
	"2006年1月2日",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"01-02-06",
	"1/2/2006",
}

// Coercer turns a source table into typed raw records. Unparsable amount
// and date values become null and are counted; they never fail the batch.
type Coercer struct {
	loc       *time.Location
	maxErrors int
}

// CoercerOption configures a Coercer
type CoercerOption func(*Coercer)

// WithLocation sets the zone dates without an offset are read in
func WithLocation(loc *time.Location) CoercerOption {
	return func(c *Coercer) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithMaxErrors caps the number of row errors kept in detail
func WithMaxErrors(n int) CoercerOption {
	return func(c *Coercer) {
		c.maxErrors = n
	}
}

// NewCoercer creates a Coercer
func NewCoercer(opts ...CoercerOption) *Coercer {
	c := &Coercer{loc: time.UTC, maxErrors: 100}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CoerceResult is the typed batch plus what went wrong on the way
type CoerceResult struct {
	Batch  *ledger.RawBatch
	Errors *ErrorCollection
}

// Malformed returns the collected coercions as domain errors
func (r *CoerceResult) Malformed() []ledger.MalformedInputError {
	out := make([]ledger.MalformedInputError, 0, r.Errors.Count())
	for _, e := range r.Errors.Errors() {
		if e.Code != ErrCodeImportInvalidDecimal && e.Code != ErrCodeImportInvalidDate {
			continue
		}
		out = append(out, ledger.MalformedInputError{Row: e.Row, Column: e.Column, Value: e.Value, Reason: e.Message})
	}
	return out
}

// fieldValues holds one row's coerced values by target field
type fieldValues struct {
	strings  map[string]string
	decimals map[string]decimal.NullDecimal
	dates    map[string]*time.Time
	valid    bool
}

func (v *fieldValues) str(name string) string { return v.strings[name] }

func (v *fieldValues) dec(name string) decimal.NullDecimal { return v.decimals[name] }

func (v *fieldValues) date(name string) *time.Time { return v.dates[name] }

// Coerce validates the mapping against the table and converts every row.
// The returned batch has Info.Kind, RowCount, ValidRows and Coerced set;
// envelope fields other than RowIndex are assigned by the raw store.
func (c *Coercer) Coerce(t *Table, m *SchemaMapping) (*CoerceResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.CheckSource(t); err != nil {
		return nil, err
	}

	errs := NewErrorCollection(c.maxErrors)
	batch := &ledger.RawBatch{Info: ledger.BatchInfo{Kind: m.Kind, RowCount: len(t.Rows)}}

	for i, row := range t.Rows {
		vals := c.coerceRow(row, m, errs)
		if vals.valid {
			batch.Info.ValidRows++
		}
		env := ledger.Envelope{RowIndex: i}

		switch m.Kind {
		case ledger.RecordKindOrder:
			batch.Orders = append(batch.Orders, ledger.OrderRecord{
				Envelope:         env,
				SequenceNo:       vals.str("sequence_no"),
				OrganizationName: vals.str("organization_name"),
				ProcurementName:  vals.str("procurement_name"),
				ContractDate:     vals.date("contract_date"),
				ContractorName:   vals.str("contractor_name"),
				ContractAmount:   vals.dec("contract_amount"),
				CorporateNumber:  vals.str("corporate_number"),
			})
		case ledger.RecordKindInvoice:
			batch.Invoices = append(batch.Invoices, ledger.InvoiceRecord{
				Envelope:      env,
				OrderID:       vals.str("order_id"),
				InvoiceNumber: vals.str("invoice_number"),
				Amount:        vals.dec("invoice_amount"),
				InvoiceDate:   vals.date("invoice_date"),
			})
		case ledger.RecordKindPayment:
			batch.Payments = append(batch.Payments, ledger.PaymentRecord{
				Envelope:      env,
				OrderID:       vals.str("order_id"),
				InvoiceNumber: vals.str("invoice_number"),
				Amount:        vals.dec("payment_amount"),
				PaymentDate:   vals.date("payment_date"),
				Note:          vals.str("note"),
			})
		case ledger.RecordKindCorporate:
			batch.Corporates = append(batch.Corporates, ledger.CorporateRecord{
				Envelope:          env,
				CorporateNumber:   vals.str("corporate_number"),
				CorporateName:     vals.str("corporate_name"),
				AddressPrefecture: vals.str("address_prefecture"),
				AddressCity:       vals.str("address_city"),
			})
		}
	}

	batch.Info.Coerced = errs.TotalCount()
	return &CoerceResult{Batch: batch, Errors: errs}, nil
}

func (c *Coercer) coerceRow(row *Row, m *SchemaMapping, errs *ErrorCollection) *fieldValues {
	vals := &fieldValues{
		strings:  make(map[string]string),
		decimals: make(map[string]decimal.NullDecimal),
		dates:    make(map[string]*time.Time),
		valid:    true,
	}

	for _, f := range m.Fields {
		def, _ := lookupField(m.Kind, f.Field)
		raw := trimSpaces(m.value(row, f))
		column := f.Column
		if column == "" {
			column = f.Field
		}

		present := raw != ""
		switch def.Type {
		case TypeDecimal:
			d, ok := ParseAmount(raw)
			if present && !ok {
				errs.AddCoercion(row.LineNumber, column, ErrCodeImportInvalidDecimal, "decimal", raw)
			}
			vals.decimals[f.Field] = d
			present = d.Valid
		case TypeDate:
			d, ok := c.ParseDate(raw, f.Layout)
			if present && !ok {
				errs.AddCoercion(row.LineNumber, column, ErrCodeImportInvalidDate, "date", raw)
			}
			vals.dates[f.Field] = d
			present = d != nil
		default:
			vals.strings[f.Field] = raw
		}

		if def.Valued && !present {
			vals.valid = false
		}
	}
	return vals
}

// ParseAmount parses a monetary value. Full-width digits are folded,
// thousands separators and currency marks are dropped, and a leading
// "△" or "▲" marks a negative amount. Empty input is a valid null.
func ParseAmount(s string) (decimal.NullDecimal, bool) {
	s = width.Narrow.String(strings.TrimSpace(s))
	if s == "" {
		return decimal.NullDecimal{}, true
	}

	negative := false
	for _, mark := range []string{"△", "▲"} {
		if strings.HasPrefix(s, mark) {
			negative = true
			s = strings.TrimPrefix(s, mark)
		}
	}
	s = strings.NewReplacer(",", "", "円", "", "¥", "", "\\", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NewNullDecimal(d), true
}

// ParseDate parses a calendar date in the coercer's zone and returns it as
// midnight UTC. Empty input is a valid null.
func (c *Coercer) ParseDate(s, layout string) (*time.Time, bool) {
	s = width.Narrow.String(strings.TrimSpace(s))
	if s == "" {
		return nil, true
	}

	layouts := DateLayouts
	if layout != "" {
		layouts = []string{layout}
	}
	for _, l := range layouts {
		t, err := time.ParseInLocation(l, s, c.loc)
		if err != nil {
			continue
		}
		d := ledger.Truncate(t, c.loc)
		return &d, true
	}
	return nil, false
}

// String implements fmt.Stringer for debugging output
func (r *CoerceResult) String() string {
	return fmt.Sprintf("%s batch: %d rows, %d valid, %d coerced",
		r.Batch.Info.Kind, r.Batch.Info.RowCount, r.Batch.Info.ValidRows, r.Batch.Info.Coerced)
}
