package ledger

import "sort"

// SortRowsForExport orders rows by order date descending, undated rows
// last, then by sequence number.
func SortRowsForExport(rows []LedgerRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].OrderDate(), rows[j].OrderDate()
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].SequenceNo < rows[j].SequenceNo
	})
}

// SortExceptionsForExport orders exceptions by detected_at descending, then
// order key. Kind and the referenced document break the remaining ties.
func SortExceptionsForExport(exceptions []ExceptionRecord) {
	sort.SliceStable(exceptions, func(i, j int) bool {
		a, b := exceptions[i], exceptions[j]
		switch {
		case !a.DetectedAt.Equal(b.DetectedAt):
			return a.DetectedAt.After(b.DetectedAt)
		case a.OrderKey != b.OrderKey:
			return a.OrderKey < b.OrderKey
		case a.Kind != b.Kind:
			return a.Kind < b.Kind
		case a.DocumentKind != b.DocumentKind:
			return a.DocumentKind < b.DocumentKind
		}
		return a.DocumentRef < b.DocumentRef
	})
}

// RowQuery selects ledger rows from a snapshot
type RowQuery struct {
	// Statuses filters by set membership; empty means all
	Statuses []BillingStatus
	// Limit caps the result (the N most recently dated rows); 0 means no limit
	Limit int
	// Offset skips rows after ordering
	Offset int
}

// ExceptionQuery selects exceptions from a snapshot
type ExceptionQuery struct {
	Kinds       []ExceptionKind
	MinSeverity Severity
	OrderKey    string
	Limit       int
	Offset      int
}
