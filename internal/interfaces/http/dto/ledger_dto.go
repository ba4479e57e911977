package dto

import (
	"strings"
	"time"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	csvimport "github.com/erp/ledger/internal/infrastructure/import"
	"github.com/shopspring/decimal"
)

// formatDate renders a calendar date as YYYY-MM-DD, nil stays nil
func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(ledger.DateLayout)
	return &s
}

func nullAmount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// LedgerRowResponse is the external shape of one ledger row
// @Description One reconciled procurement order
type LedgerRowResponse struct {
	SequenceNo        string  `json:"sequence_no" example:"2026-0001"`
	OrganizationName  string  `json:"organization_name"`
	ProcurementName   string  `json:"procurement_name"`
	ContractDate      *string `json:"contract_date" example:"2026-01-15"`
	ContractorName    string  `json:"contractor_name"`
	ContractAmount    *string `json:"contract_amount" example:"1200000.00"`
	CorporateNumber   string  `json:"corporate_number"`
	CorporateName     string  `json:"corporate_name,omitempty"`
	AddressPrefecture string  `json:"address_prefecture,omitempty"`
	AddressCity       string  `json:"address_city,omitempty"`
	TotalInvoiced     string  `json:"total_invoiced" example:"1200000.00"`
	TotalPaid         string  `json:"total_paid" example:"0.00"`
	Outstanding       string  `json:"outstanding" example:"1200000.00"`
	InvoiceCount      int     `json:"invoice_count"`
	PaymentCount      int     `json:"payment_count"`
	LastInvoiceDate   *string `json:"last_invoice_date"`
	LastPaymentDate   *string `json:"last_payment_date"`
	DueDate           *string `json:"due_date"`
	DaysOverdue       int     `json:"days_overdue"`
	BillingStatus     string  `json:"billing_status" example:"OVERDUE"`
	PaymentStatus     string  `json:"payment_status" example:"UNPAID"`
	InvalidReason     string  `json:"invalid_reason,omitempty"`
}

// ToLedgerRowResponse converts a domain row
func ToLedgerRowResponse(r ledger.LedgerRow) LedgerRowResponse {
	return LedgerRowResponse{
		SequenceNo:        r.SequenceNo,
		OrganizationName:  r.OrganizationName,
		ProcurementName:   r.ProcurementName,
		ContractDate:      formatDate(r.ContractDate),
		ContractorName:    r.ContractorName,
		ContractAmount:    nullAmount(r.ContractAmount),
		CorporateNumber:   r.CorporateNumber,
		CorporateName:     r.CorporateName,
		AddressPrefecture: r.AddressPrefecture,
		AddressCity:       r.AddressCity,
		TotalInvoiced:     amount(r.TotalInvoiced),
		TotalPaid:         amount(r.TotalPaid),
		Outstanding:       amount(r.Outstanding()),
		InvoiceCount:      r.InvoiceCount,
		PaymentCount:      r.PaymentCount,
		LastInvoiceDate:   formatDate(r.LastInvoiceDate),
		LastPaymentDate:   formatDate(r.LastPaymentDate),
		DueDate:           formatDate(r.DueDate),
		DaysOverdue:       r.DaysOverdue,
		BillingStatus:     string(r.BillingStatus),
		PaymentStatus:     string(r.PaymentStatus),
		InvalidReason:     r.InvalidReason,
	}
}

// ToLedgerRowResponses converts a slice of domain rows
func ToLedgerRowResponses(rows []ledger.LedgerRow) []LedgerRowResponse {
	out := make([]LedgerRowResponse, len(rows))
	for i, r := range rows {
		out[i] = ToLedgerRowResponse(r)
	}
	return out
}

// ExceptionResponse is the external shape of one exception record
type ExceptionResponse struct {
	OrderKey       string  `json:"order_key"`
	Kind           string  `json:"kind" example:"OVERDUE"`
	Severity       string  `json:"severity" example:"HIGH"`
	DetectedAt     string  `json:"detected_at" example:"2026-03-15"`
	Detail         string  `json:"detail"`
	DocumentKind   string  `json:"document_kind,omitempty"`
	DocumentRef    string  `json:"document_ref,omitempty"`
	DaysSinceOrder *int    `json:"days_since_order,omitempty"`
	DaysOverdue    *int    `json:"days_overdue,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
}

// ToExceptionResponses converts domain exceptions
func ToExceptionResponses(records []ledger.ExceptionRecord) []ExceptionResponse {
	out := make([]ExceptionResponse, len(records))
	for i, e := range records {
		out[i] = ExceptionResponse{
			OrderKey:       e.OrderKey,
			Kind:           string(e.Kind),
			Severity:       string(e.Severity),
			DetectedAt:     e.DetectedAt.Format(ledger.DateLayout),
			Detail:         e.Detail,
			DocumentKind:   string(e.DocumentKind),
			DocumentRef:    e.DocumentRef,
			DaysSinceOrder: e.DaysSinceOrder,
			DaysOverdue:    e.DaysOverdue,
			DueDate:        formatDate(e.DueDate),
		}
	}
	return out
}

// SummaryResponse is the external shape of snapshot totals
type SummaryResponse struct {
	TotalOrders     int            `json:"total_orders"`
	TotalAmount     string         `json:"total_amount"`
	TotalInvoiced   string         `json:"total_invoiced"`
	TotalPaid       string         `json:"total_paid"`
	UnbilledAmount  string         `json:"unbilled_amount"`
	OverdueAmount   string         `json:"overdue_amount"`
	ExceptionCount  int            `json:"exception_count"`
	ByStatus        map[string]int `json:"by_status"`
	ByExceptionKind map[string]int `json:"by_exception_kind"`
}

// ToSummaryResponse converts a domain summary
func ToSummaryResponse(s ledger.Summary) SummaryResponse {
	byStatus := make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		byStatus[string(k)] = v
	}
	byKind := make(map[string]int, len(s.ByExceptionKind))
	for k, v := range s.ByExceptionKind {
		byKind[string(k)] = v
	}
	return SummaryResponse{
		TotalOrders:     s.TotalOrders,
		TotalAmount:     amount(s.TotalAmount),
		TotalInvoiced:   amount(s.TotalInvoiced),
		TotalPaid:       amount(s.TotalPaid),
		UnbilledAmount:  amount(s.UnbilledAmount),
		OverdueAmount:   amount(s.OverdueAmount),
		ExceptionCount:  s.ExceptionCount,
		ByStatus:        byStatus,
		ByExceptionKind: byKind,
	}
}

// SnapshotResponse describes a published snapshot without its rows
type SnapshotResponse struct {
	Version     int64           `json:"version"`
	RunID       string          `json:"run_id"`
	AsOf        string          `json:"as_of" example:"2026-03-15"`
	PublishedAt time.Time       `json:"published_at"`
	Checksum    string          `json:"checksum"`
	RowCount    int             `json:"row_count"`
	Summary     SummaryResponse `json:"summary"`
	Warnings    ledger.Warnings `json:"warnings"`
}

// ToSnapshotResponse converts a snapshot header, nil stays nil
func ToSnapshotResponse(h *ledger.SnapshotHeader) *SnapshotResponse {
	if h == nil {
		return nil
	}
	return &SnapshotResponse{
		Version:     h.Version,
		RunID:       h.RunID,
		AsOf:        h.AsOf.Format(ledger.DateLayout),
		PublishedAt: h.PublishedAt,
		Checksum:    h.Checksum,
		RowCount:    h.RowCount,
		Summary:     ToSummaryResponse(h.Summary),
		Warnings:    h.Warnings,
	}
}

// ToSnapshotResponses converts a list of headers
func ToSnapshotResponses(headers []ledger.SnapshotHeader) []SnapshotResponse {
	out := make([]SnapshotResponse, len(headers))
	for i := range headers {
		out[i] = *ToSnapshotResponse(&headers[i])
	}
	return out
}

// RowsResponse is a list of rows tagged with the snapshot they were read from
type RowsResponse struct {
	SnapshotVersion int64               `json:"snapshot_version"`
	AsOf            string              `json:"as_of"`
	Rows            []LedgerRowResponse `json:"rows"`
}

// ToRowsResponse converts a query result
func ToRowsResponse(res *ledgerapp.RowsResult) RowsResponse {
	return RowsResponse{
		SnapshotVersion: res.Snapshot.Version,
		AsOf:            res.Snapshot.AsOf.Format(ledger.DateLayout),
		Rows:            ToLedgerRowResponses(res.Rows),
	}
}

// RowResponse is a single row tagged with its snapshot
type RowResponse struct {
	SnapshotVersion int64             `json:"snapshot_version"`
	AsOf            string            `json:"as_of"`
	Row             LedgerRowResponse `json:"row"`
}

// ExceptionsResponse is a list of exceptions tagged with their snapshot
type ExceptionsResponse struct {
	SnapshotVersion int64               `json:"snapshot_version"`
	AsOf            string              `json:"as_of"`
	Exceptions      []ExceptionResponse `json:"exceptions"`
}

// ToExceptionsResponse converts a query result
func ToExceptionsResponse(res *ledgerapp.ExceptionsResult) ExceptionsResponse {
	return ExceptionsResponse{
		SnapshotVersion: res.Snapshot.Version,
		AsOf:            res.Snapshot.AsOf.Format(ledger.DateLayout),
		Exceptions:      ToExceptionResponses(res.Exceptions),
	}
}

// RunResponse is the external shape of a run history entry
type RunResponse struct {
	ID              string          `json:"id"`
	Trigger         string          `json:"trigger"`
	Status          string          `json:"status" example:"SUCCEEDED"`
	AsOf            string          `json:"as_of"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	SnapshotVersion *int64          `json:"snapshot_version,omitempty"`
	Checksum        string          `json:"checksum,omitempty"`
	Warnings        ledger.Warnings `json:"warnings"`
	Error           string          `json:"error,omitempty"`
	ArchiveLocation string          `json:"archive_location,omitempty"`
}

// ToRunResponse converts a run record, nil stays nil
func ToRunResponse(r *ledger.RunRecord) *RunResponse {
	if r == nil {
		return nil
	}
	return &RunResponse{
		ID:              r.ID,
		Trigger:         r.Trigger,
		Status:          string(r.Status),
		AsOf:            r.AsOf.Format(ledger.DateLayout),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		SnapshotVersion: r.SnapshotVersion,
		Checksum:        r.Checksum,
		Warnings:        r.Warnings,
		Error:           r.Error,
	}
}

// ToRunResponses converts a list of run records
func ToRunResponses(runs []ledger.RunRecord) []RunResponse {
	out := make([]RunResponse, len(runs))
	for i := range runs {
		out[i] = *ToRunResponse(&runs[i])
	}
	return out
}

// StatusResponse reports the current snapshot and the latest runs
type StatusResponse struct {
	Current           *SnapshotResponse `json:"current"`
	LastSuccessfulRun *RunResponse      `json:"last_successful_run"`
	LastRun           *RunResponse      `json:"last_run"`
	NextScheduledRun  *time.Time        `json:"next_scheduled_run,omitempty"`
}

// ToStatusResponse converts a pipeline status
func ToStatusResponse(s *ledgerapp.Status) StatusResponse {
	return StatusResponse{
		Current:           ToSnapshotResponse(s.Current),
		LastSuccessfulRun: ToRunResponse(s.LastSuccessfulRun),
		LastRun:           ToRunResponse(s.LastRun),
	}
}

// BatchResponse describes one immutable raw batch
type BatchResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Seq         int64     `json:"seq"`
	IngestedAt  time.Time `json:"ingested_at"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	RowCount    int       `json:"row_count"`
	ValidRows   int       `json:"valid_rows"`
	Coerced     int       `json:"coerced_fields"`
}

// ToBatchResponse converts a batch header, nil stays nil
func ToBatchResponse(b *ledger.BatchInfo) *BatchResponse {
	if b == nil {
		return nil
	}
	return &BatchResponse{
		ID:          b.ID,
		Kind:        string(b.Kind),
		Seq:         b.Seq,
		IngestedAt:  b.IngestedAt,
		Source:      b.Source,
		Fingerprint: b.Fingerprint,
		RowCount:    b.RowCount,
		ValidRows:   b.ValidRows,
		Coerced:     b.Coerced,
	}
}

// ToBatchResponses converts a list of batch headers
func ToBatchResponses(batches []ledger.BatchInfo) []BatchResponse {
	out := make([]BatchResponse, len(batches))
	for i := range batches {
		out[i] = *ToBatchResponse(&batches[i])
	}
	return out
}

// IngestResponse reports the outcome of one ingestion
// @Description Result of a source file ingestion
type IngestResponse struct {
	Batch          *BatchResponse       `json:"batch,omitempty"`
	Duplicate      bool                 `json:"duplicate"`
	TotalRows      int                  `json:"total_rows" example:"100"`
	ValidRows      int                  `json:"valid_rows" example:"98"`
	CoercedFields  int                  `json:"coerced_fields" example:"2"`
	ErrorsByColumn map[string]int       `json:"errors_by_column,omitempty"`
	Errors         []csvimport.RowError `json:"errors,omitempty"`
	IsTruncated    bool                 `json:"is_truncated,omitempty"`
}

// ToIngestResponse converts an ingest report
func ToIngestResponse(r *ledgerapp.IngestReport) IngestResponse {
	return IngestResponse{
		Batch:          ToBatchResponse(r.Batch),
		Duplicate:      r.Duplicate,
		TotalRows:      r.TotalRows,
		ValidRows:      r.ValidRows,
		CoercedFields:  r.CoercedFields,
		ErrorsByColumn: r.ErrorsByColumn,
		Errors:         r.Errors,
		IsTruncated:    r.IsTruncated,
	}
}

// IngestForm holds the non-file fields of a multipart ingestion
type IngestForm struct {
	Format     string `form:"format" binding:"omitempty,oneof=csv tsv xlsx"`
	Encoding   string `form:"encoding"`
	Sheet      string `form:"sheet"`
	SnapshotAt string `form:"snapshot_at"`
}

// RowsQuery binds the query string of the rows endpoint
type RowsQuery struct {
	Status  string `form:"status"`
	Version int64  `form:"version" binding:"omitempty,min=0"`
	PageRequest
}

// Statuses splits the comma separated status filter
func (q RowsQuery) Statuses() []ledger.BillingStatus {
	var out []ledger.BillingStatus
	for _, p := range splitList(q.Status) {
		out = append(out, ledger.BillingStatus(strings.ToUpper(p)))
	}
	return out
}

// RecentQuery binds the query string of the recent rows endpoint
type RecentQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=0,max=1000"`
}

// ExceptionsQuery binds the query string of the exceptions endpoint
type ExceptionsQuery struct {
	Kind     string `form:"kind"`
	Severity string `form:"severity"`
	OrderKey string `form:"order_key"`
	Version  int64  `form:"version" binding:"omitempty,min=0"`
	PageRequest
}

// ToDomain builds the exception query
func (q ExceptionsQuery) ToDomain() ledger.ExceptionQuery {
	var kinds []ledger.ExceptionKind
	for _, p := range splitList(q.Kind) {
		kinds = append(kinds, ledger.ExceptionKind(strings.ToUpper(p)))
	}
	return ledger.ExceptionQuery{
		Kinds:       kinds,
		MinSeverity: ledger.Severity(strings.ToUpper(strings.TrimSpace(q.Severity))),
		OrderKey:    strings.TrimSpace(q.OrderKey),
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
}

// BatchesQuery binds the query string of the batches endpoint
type BatchesQuery struct {
	Kind      string `form:"kind"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=seq ingested_at row_count valid_rows kind"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
	PageRequest
}

// VersionsQuery binds the query string of the snapshot versions endpoint
type VersionsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=0,max=1000"`
}

// RunRequest triggers a reconciliation run. Every field is optional.
type RunRequest struct {
	AsOf            string           `json:"as_of" binding:"omitempty,calendar_date" example:"2026-03-15"`
	Tolerance       *decimal.Decimal `json:"tolerance" swaggertype:"string" example:"0.00"`
	GracePeriodDays *int             `json:"grace_period_days" binding:"omitempty,min=0" example:"0"`
}

// RunResultResponse reports a finished run
type RunResultResponse struct {
	Run             *RunResponse      `json:"run"`
	Snapshot        *SnapshotResponse `json:"snapshot,omitempty"`
	ArchiveLocation string            `json:"archive_location,omitempty"`
}

// ToRunResultResponse converts a run result
func ToRunResultResponse(res *ledgerapp.RunResult) RunResultResponse {
	return RunResultResponse{
		Run:             ToRunResponse(res.Run),
		Snapshot:        ToSnapshotResponse(res.Snapshot),
		ArchiveLocation: res.ArchiveLocation,
	}
}

// RegisterPaymentRequest records one payment outside the file feeds
type RegisterPaymentRequest struct {
	OrderID        string          `json:"order_id" binding:"required,max=64"`
	InvoiceNumber  string          `json:"invoice_number" binding:"omitempty,max=64"`
	Amount         decimal.Decimal `json:"amount" binding:"required" swaggertype:"string" example:"1200.50"`
	PaymentDate    string          `json:"payment_date" binding:"required,calendar_date" example:"2026-02-27"`
	Note           string          `json:"note" binding:"omitempty,max=500"`
	IdempotencyKey string          `json:"idempotency_key" binding:"omitempty,max=128"`
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(ledger.DateLayout, strings.TrimSpace(s), time.UTC)
}

// ParseTimestamp accepts RFC 3339 or a bare calendar date
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return ParseDate(s)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
