package csvimport

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FieldType is the target type a source value is coerced to
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
)

// fieldSpec describes one known target field of a record kind. Mapped
// fields must appear in every mapping; valued fields must coerce to a
// non-null value for the row to count as valid.
type fieldSpec struct {
	Name   string
	Type   FieldType
	Mapped bool
	Valued bool
}

var kindFields = map[ledger.RecordKind][]fieldSpec{
	ledger.RecordKindOrder: {
		{Name: "sequence_no", Type: TypeString, Mapped: true, Valued: true},
		{Name: "organization_name", Type: TypeString},
		{Name: "procurement_name", Type: TypeString},
		{Name: "contract_date", Type: TypeDate, Mapped: true, Valued: true},
		{Name: "contractor_name", Type: TypeString},
		{Name: "contract_amount", Type: TypeDecimal, Mapped: true, Valued: true},
		{Name: "corporate_number", Type: TypeString},
	},
	ledger.RecordKindInvoice: {
		{Name: "order_id", Type: TypeString, Mapped: true},
		{Name: "invoice_number", Type: TypeString},
		{Name: "invoice_amount", Type: TypeDecimal, Mapped: true, Valued: true},
		{Name: "invoice_date", Type: TypeDate, Mapped: true, Valued: true},
	},
	ledger.RecordKindPayment: {
		{Name: "order_id", Type: TypeString, Mapped: true},
		{Name: "invoice_number", Type: TypeString},
		{Name: "payment_amount", Type: TypeDecimal, Mapped: true, Valued: true},
		{Name: "payment_date", Type: TypeDate, Mapped: true, Valued: true},
		{Name: "note", Type: TypeString},
	},
	ledger.RecordKindCorporate: {
		{Name: "corporate_number", Type: TypeString, Mapped: true, Valued: true},
		{Name: "corporate_name", Type: TypeString, Mapped: true},
		{Name: "address_prefecture", Type: TypeString},
		{Name: "address_city", Type: TypeString},
	},
}

func lookupField(kind ledger.RecordKind, name string) (fieldSpec, bool) {
	for _, f := range kindFields[kind] {
		if f.Name == name {
			return f, true
		}
	}
	return fieldSpec{}, false
}

// FieldMapping binds one target field to a source column, either by header
// name or by zero-based position.
type FieldMapping struct {
	Field    string `yaml:"field" json:"field" validate:"required"`
	Column   string `yaml:"column,omitempty" json:"column,omitempty"`
	Index    *int   `yaml:"index,omitempty" json:"index,omitempty" validate:"omitempty,min=0"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Layout   string `yaml:"layout,omitempty" json:"layout,omitempty"`
}

// SchemaMapping is the declared column mapping for one record kind
type SchemaMapping struct {
	Kind       ledger.RecordKind `yaml:"kind" json:"kind" validate:"required"`
	Positional bool              `yaml:"positional,omitempty" json:"positional,omitempty"`
	Fields     []FieldMapping    `yaml:"fields" json:"fields" validate:"required,min=1,dive"`
}

var structValidator = validator.New()

// Validate checks the mapping against the known fields of its kind. It
// fails with ledger.ErrMappingInvalid listing every problem found.
func (m *SchemaMapping) Validate() error {
	if err := structValidator.Struct(m); err != nil {
		return ledger.ErrMappingInvalid.WithCause(err)
	}
	if !m.Kind.IsValid() {
		return ledger.ErrMappingInvalid.WithMessage("unknown record kind: " + string(m.Kind))
	}

	var problems []string
	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if _, ok := lookupField(m.Kind, f.Field); !ok {
			problems = append(problems, fmt.Sprintf("unknown field %q", f.Field))
			continue
		}
		if seen[f.Field] {
			problems = append(problems, fmt.Sprintf("field %q mapped twice", f.Field))
		}
		seen[f.Field] = true
		if m.Positional && f.Index == nil {
			problems = append(problems, fmt.Sprintf("field %q needs an index", f.Field))
		}
		if !m.Positional && f.Column == "" {
			problems = append(problems, fmt.Sprintf("field %q needs a column", f.Field))
		}
	}
	for _, def := range kindFields[m.Kind] {
		if def.Mapped && !seen[def.Name] {
			problems = append(problems, fmt.Sprintf("mandatory field %q is not mapped", def.Name))
		}
	}

	if len(problems) > 0 {
		return ledger.ErrMappingInvalid.WithMessage(
			fmt.Sprintf("%s mapping: %s", m.Kind, strings.Join(problems, "; ")))
	}
	return nil
}

// CheckSource verifies that the source carries every column the mapping
// needs. Positional mappings check the width of each row instead, so only
// named mappings are checked against headers.
func (m *SchemaMapping) CheckSource(t *Table) error {
	if m.Positional {
		return nil
	}
	if t.Headers == nil {
		return ledger.ErrMappingInvalid.WithCause(ErrMissingHeader)
	}
	present := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		present[h] = true
	}

	var missing []string
	for _, f := range m.Fields {
		def, _ := lookupField(m.Kind, f.Field)
		if (def.Mapped || f.Required) && !present[f.Column] {
			missing = append(missing, f.Column)
		}
	}
	if len(missing) > 0 {
		return ledger.ErrMappingInvalid.WithMessage("source is missing required columns: " + strings.Join(missing, ", "))
	}
	return nil
}

// value resolves the raw string for f in row
func (m *SchemaMapping) value(row *Row, f FieldMapping) string {
	if m.Positional {
		return row.At(*f.Index)
	}
	return row.Get(f.Column)
}

// DefaultMapping returns the built-in named mapping whose column names equal
// the field names.
func DefaultMapping(kind ledger.RecordKind) (*SchemaMapping, error) {
	specs, ok := kindFields[kind]
	if !ok {
		return nil, ledger.ErrUnknownKind.WithMessage("unknown record kind: " + string(kind))
	}
	m := &SchemaMapping{Kind: kind, Fields: make([]FieldMapping, 0, len(specs))}
	for _, s := range specs {
		m.Fields = append(m.Fields, FieldMapping{Field: s.Name, Column: s.Name, Required: s.Mapped})
	}
	return m, nil
}

// MappingSet holds one mapping per record kind
type MappingSet map[ledger.RecordKind]*SchemaMapping

// Get returns the mapping for kind, falling back to DefaultMapping
func (s MappingSet) Get(kind ledger.RecordKind) (*SchemaMapping, error) {
	if m, ok := s[kind]; ok {
		return m, nil
	}
	return DefaultMapping(kind)
}

type mappingFile struct {
	Mappings []*SchemaMapping `yaml:"mappings"`
}

// ParseMappings decodes and validates a YAML mapping document
func ParseMappings(data []byte) (MappingSet, error) {
	var doc mappingFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ledger.ErrMappingInvalid.WithCause(err)
	}
	set := make(MappingSet, len(doc.Mappings))
	var errs []error
	for _, m := range doc.Mappings {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := set[m.Kind]; dup {
			errs = append(errs, ledger.ErrMappingInvalid.WithMessage("duplicate mapping for kind "+string(m.Kind)))
			continue
		}
		set[m.Kind] = m
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// LoadMappings reads a YAML mapping file. An empty path yields the defaults.
func LoadMappings(path string) (MappingSet, error) {
	if path == "" {
		return MappingSet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	return ParseMappings(data)
}
