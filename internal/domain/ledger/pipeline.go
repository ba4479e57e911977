package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunOptions are the per-run overrides of a reconciliation
type RunOptions struct {
	// AsOf is the "current date" the run is evaluated at
	AsOf        time.Time
	Tolerance   decimal.Decimal
	GracePeriod time.Duration
	DuePolicy   DuePolicy
}

// DefaultRunOptions returns options evaluated at asOf with default thresholds
func DefaultRunOptions(asOf time.Time) RunOptions {
	d := DefaultDetectorConfig()
	return RunOptions{
		AsOf:        asOf,
		Tolerance:   d.Tolerance,
		GracePeriod: d.GracePeriod,
		DuePolicy:   EndOfFollowingMonth{},
	}
}

// Result is the unpublished output of one pipeline pass
type Result struct {
	Content
	Warnings  Warnings
	Discarded []DiscardedKeyError
	Invalid   []ClassificationError
}

// Pipeline wires deduplication, reconciliation, classification and
// exception detection into one pure pass over a raw set.
type Pipeline struct {
	classifier *Classifier
}

// NewPipeline creates a pipeline with the default rule table
func NewPipeline() *Pipeline {
	return &Pipeline{classifier: NewClassifier(nil)}
}

// Build computes the full ledger for raw as of opts.AsOf. It returns a
// RunAbortError when the deduplicated order set is empty, since publishing
// it would replace the ledger with nothing.
func (p *Pipeline) Build(raw *RawSet, opts RunOptions) (*Result, error) {
	if raw == nil {
		return nil, Abort("load", nil)
	}
	asOf := Truncate(opts.AsOf, time.UTC)

	orders := DeduplicateOrders(raw.Orders)
	corporates := DeduplicateCorporates(raw.Corporates)
	if len(orders.Records) == 0 {
		return nil, Abort("deduplicate", ErrNoValidRows.WithMessage("no order records with a usable sequence_no"))
	}

	rec := NewReconciler(opts.DuePolicy).Reconcile(orders.Records, raw.Invoices, raw.Payments, corporates.Records)

	res := &Result{
		Warnings: Warnings{
			DiscardedKeys: map[RecordKind]int{
				RecordKindOrder:     len(orders.Discarded),
				RecordKindCorporate: len(corporates.Discarded),
			},
			SupersededVersions: map[RecordKind]int{
				RecordKindOrder:     orders.Superseded,
				RecordKindCorporate: corporates.Superseded,
			},
			NullInvoiceAmounts: rec.Stats.NullInvoiceAmounts,
			NullPaymentAmounts: rec.Stats.NullPaymentAmounts,
			OrphanInvoices:     len(rec.OrphanInvoices),
			OrphanPayments:     len(rec.OrphanPayments),
		},
	}
	res.Discarded = append(res.Discarded, orders.Discarded...)
	res.Discarded = append(res.Discarded, corporates.Discarded...)

	rows := rec.Rows
	for i := range rows {
		p.classifier.ClassifyRow(&rows[i], asOf)
		if rows[i].BillingStatus == BillingStatusInvalid {
			res.Warnings.InvalidOrders++
			res.Invalid = append(res.Invalid, ClassificationError{SequenceNo: rows[i].SequenceNo, Reason: rows[i].InvalidReason})
		}
	}

	detector := NewDetector(DetectorConfig{Tolerance: opts.Tolerance, GracePeriod: opts.GracePeriod})
	exceptions := detector.Detect(rows, rec.OrphanInvoices, rec.OrphanPayments, asOf)

	SortRowsForExport(rows)
	SortExceptionsForExport(exceptions)
	res.Content = Content{
		AsOf:       asOf,
		Rows:       rows,
		Exceptions: exceptions,
		Summary:    Summarize(rows, exceptions),
	}
	return res, nil
}
