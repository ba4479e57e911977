package ledger

import (
	"sort"
	"strings"
)

// Keyed is a raw record that has a business key and an ingestion envelope
type Keyed interface {
	Key() string
	Meta() Envelope
}

// DedupResult holds the current version per key plus the rows excluded for
// having no usable key.
type DedupResult[T Keyed] struct {
	Records   []T
	Discarded []DiscardedKeyError
	// Superseded counts versions that lost to a later ingestion of the same key
	Superseded int
}

// Deduplicate collapses every ingested version of a business key to the
// single most recently ingested one. The winner is taken wholesale; fields
// are never merged across versions. Rows with a blank key are dropped and
// reported. Output is ordered by key.
func Deduplicate[T Keyed](kind RecordKind, rows []T) DedupResult[T] {
	result := DedupResult[T]{}
	current := make(map[string]T, len(rows))

	for _, row := range rows {
		key := strings.TrimSpace(row.Key())
		if key == "" {
			result.Discarded = append(result.Discarded, DiscardedKeyError{Kind: kind, Envelope: row.Meta()})
			continue
		}
		existing, seen := current[key]
		if !seen {
			current[key] = row
			continue
		}
		result.Superseded++
		if existing.Meta().Before(row.Meta()) {
			current[key] = row
		}
	}

	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result.Records = make([]T, 0, len(keys))
	for _, k := range keys {
		result.Records = append(result.Records, current[k])
	}
	return result
}

// DeduplicateOrders resolves the current version of every order
func DeduplicateOrders(rows []OrderRecord) DedupResult[OrderRecord] {
	res := Deduplicate(RecordKindOrder, rows)
	for i := range res.Records {
		res.Records[i].SequenceNo = strings.TrimSpace(res.Records[i].SequenceNo)
	}
	return res
}

// DeduplicateCorporates resolves the current version of every corporate master entry
func DeduplicateCorporates(rows []CorporateRecord) DedupResult[CorporateRecord] {
	res := Deduplicate(RecordKindCorporate, rows)
	for i := range res.Records {
		res.Records[i].CorporateNumber = strings.TrimSpace(res.Records[i].CorporateNumber)
	}
	return res
}
