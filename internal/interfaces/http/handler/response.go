package handler

import "github.com/erp/ledger/internal/interfaces/http/dto"

// APIResponse represents a generic API response for OpenAPI documentation
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// RunFailedResponse is returned when a run aborts; the run record is kept
// in the history and echoed back
// @Description Failed run response
type RunFailedResponse struct {
	Success bool             `json:"success" example:"false"`
	Data    *dto.RunResponse `json:"data,omitempty"`
	Error   *dto.ErrorInfo   `json:"error,omitempty"`
}
