package dto

import (
	"net/http"

	"github.com/erp/ledger/internal/domain/ledger"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency is not ready
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeForbidden is used when the client may not access a resource
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodePayloadTooLarge is used when an upload exceeds the size limit
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
	// ErrCodeRateLimited is used when a client exceeds its request rate
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Ledger error codes
const (
	// ErrCodeRunInProgress is used when another reconciliation run holds the lock
	ErrCodeRunInProgress = "ERR_RUN_IN_PROGRESS"
	// ErrCodeRunAborted is used when a run failed and the prior snapshot stays current
	ErrCodeRunAborted = "ERR_RUN_ABORTED"
	// ErrCodeNoSnapshot is used before the first successful run
	ErrCodeNoSnapshot = "ERR_NO_SNAPSHOT"
	// ErrCodeUnknownKind is used for an unknown record kind
	ErrCodeUnknownKind = "ERR_UNKNOWN_RECORD_KIND"
	// ErrCodeMappingInvalid is used when a source does not fit its schema mapping
	ErrCodeMappingInvalid = "ERR_MAPPING_INVALID"
	// ErrCodeNoValidRows is used when a batch has no valid row after coercion
	ErrCodeNoValidRows = "ERR_NO_VALID_ROWS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeForbidden:     http.StatusForbidden,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	// Ledger errors
	ErrCodeRunInProgress:  http.StatusConflict,
	ErrCodeRunAborted:     http.StatusInternalServerError,
	ErrCodeNoSnapshot:     http.StatusNotFound,
	ErrCodeUnknownKind:    http.StatusBadRequest,
	ErrCodeMappingInvalid: http.StatusUnprocessableEntity,
	ErrCodeNoValidRows:    http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"ALREADY_EXISTS":          ErrCodeAlreadyExists,
	"INVALID_INPUT":           ErrCodeInvalidInput,
	"INVALID_STATE":           ErrCodeConflict,
	"CONFLICT":                ErrCodeConflict,
	"VALIDATION_ERROR":        ErrCodeValidation,
	"BAD_REQUEST":             ErrCodeBadRequest,
	"INTERNAL_ERROR":          ErrCodeInternal,
	ledger.CodeRunInProgress:  ErrCodeRunInProgress,
	ledger.CodeRunAborted:     ErrCodeRunAborted,
	ledger.CodeNoSnapshot:     ErrCodeNoSnapshot,
	ledger.CodeUnknownKind:    ErrCodeUnknownKind,
	ledger.CodeMappingInvalid: ErrCodeMappingInvalid,
	ledger.CodeNoValidRows:    ErrCodeNoValidRows,
	ledger.CodeMalformedInput: ErrCodeValidationFormat,
	ledger.CodeClassification: ErrCodeInternal,
	ledger.CodeDiscardedKey:   ErrCodeInternal,
	ledger.CodeDuplicateBatch: ErrCodeAlreadyExists,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
