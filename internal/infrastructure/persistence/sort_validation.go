package persistence

import (
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// BatchSortFields are the raw_batches columns a batch listing can sort by
var BatchSortFields = map[string]bool{
	"seq":         true,
	"ingested_at": true,
	"row_count":   true,
	"valid_rows":  true,
	"kind":        true,
}

// batchOrder builds the ORDER BY clause of a batch listing. Ties are broken
// by arrival order so pages stay stable.
func batchOrder(filter ledger.BatchFilter) string {
	field := ValidateSortField(filter.SortBy, BatchSortFields, "seq")
	order := field + " " + ValidateSortOrder(filter.SortOrder)
	if field != "seq" {
		order += ", seq DESC"
	}
	return order
}
