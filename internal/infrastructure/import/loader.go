package csvimport

import (
	"fmt"
	"io"

	"github.com/erp/ledger/internal/domain/ledger"
)

// Loader reads a source of a given kind through its schema mapping
type Loader struct {
	mappings MappingSet
	coercer  *Coercer
}

// NewLoader creates a Loader. A nil mapping set uses only the defaults.
func NewLoader(mappings MappingSet, coercer *Coercer) *Loader {
	if mappings == nil {
		mappings = MappingSet{}
	}
	if coercer == nil {
		coercer = NewCoercer()
	}
	return &Loader{mappings: mappings, coercer: coercer}
}

// Mapping returns the effective mapping for kind
func (l *Loader) Mapping(kind ledger.RecordKind) (*SchemaMapping, error) {
	return l.mappings.Get(kind)
}

// Load reads r completely and coerces it into a raw batch of kind
func (l *Loader) Load(r io.Reader, kind ledger.RecordKind, opts ReadOptions) (*CoerceResult, error) {
	m, err := l.mappings.Get(kind)
	if err != nil {
		return nil, err
	}
	if m.Positional {
		opts.NoHeader = true
	}

	table, err := ReadTable(r, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s source: %w", kind, err)
	}
	return l.coercer.Coerce(table, m)
}
