package ledger

import (
	"fmt"

	"github.com/erp/ledger/internal/domain/shared"
)

// Ledger error codes
const (
	CodeMalformedInput = "MALFORMED_INPUT"
	CodeDiscardedKey   = "DISCARDED_KEY"
	CodeClassification = "CLASSIFICATION"
	CodeRunAborted     = "RUN_ABORTED"
	CodeRunInProgress  = "RUN_IN_PROGRESS"
	CodeNoSnapshot     = "NO_SNAPSHOT"
	CodeUnknownKind    = "UNKNOWN_RECORD_KIND"
	CodeMappingInvalid = "MAPPING_INVALID"
	CodeNoValidRows    = "NO_VALID_ROWS"
	CodeDuplicateBatch = "DUPLICATE_BATCH"
)

var (
	ErrRunInProgress  = shared.NewDomainError(CodeRunInProgress, "a reconciliation run is already in progress")
	ErrNoSnapshot     = shared.NewDomainError(CodeNoSnapshot, "no ledger snapshot has been published yet")
	ErrUnknownKind    = shared.NewDomainError(CodeUnknownKind, "unknown record kind")
	ErrMappingInvalid = shared.NewDomainError(CodeMappingInvalid, "schema mapping is invalid")
	ErrNoValidRows    = shared.NewDomainError(CodeNoValidRows, "batch contains no valid rows after coercion")
	ErrRunAborted     = shared.NewDomainError(CodeRunAborted, "reconciliation run aborted")
	// ErrDuplicateBatch is returned by a RawStore when the fingerprint is already stored
	ErrDuplicateBatch = shared.NewDomainError(CodeDuplicateBatch, "a batch with the same fingerprint already exists")
)

// MalformedInputError describes a field that could not be parsed and was
// coerced to null. It is recovered locally and only counted.
type MalformedInputError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("row %d: column %q value %q coerced to null: %s", e.Row, e.Column, e.Value, e.Reason)
}

// DiscardedKeyError describes a row excluded from deduplication because
// its business key was null or empty.
type DiscardedKeyError struct {
	Kind     RecordKind
	Envelope Envelope
}

func (e *DiscardedKeyError) Error() string {
	return fmt.Sprintf("%s row %d of batch %s discarded: empty business key", e.Kind, e.Envelope.RowIndex, e.Envelope.BatchID)
}

// ClassificationError explains why an order was classified INVALID.
// It never escapes the run; it is carried on the ledger row as a reason.
type ClassificationError struct {
	SequenceNo string
	Reason     string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("order %s cannot be classified: %s", e.SequenceNo, e.Reason)
}

// RunAbortError is fatal to a run. The prior snapshot stays authoritative.
type RunAbortError struct {
	Stage string
	Cause error
}

func (e *RunAbortError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("reconciliation aborted at %s", e.Stage)
	}
	return fmt.Sprintf("reconciliation aborted at %s: %v", e.Stage, e.Cause)
}

func (e *RunAbortError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRunAborted}
	}
	return []error{ErrRunAborted, e.Cause}
}

// Abort wraps cause as a RunAbortError for stage
func Abort(stage string, cause error) *RunAbortError {
	return &RunAbortError{Stage: stage, Cause: cause}
}
