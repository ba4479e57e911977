// Command ledgerctl runs the ledger pipeline from the command line: ingest
// source files, trigger a run and inspect the published snapshot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/config"
	csvimport "github.com/erp/ledger/internal/infrastructure/import"
	"github.com/shopspring/decimal"
)

var version = "dev"

const dateLayout = "2006-01-02"

var errUsage = errors.New("usage")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errUsage
	}

	var cmd func(context.Context, *bootstrap.App, []string, io.Writer) error
	switch args[0] {
	case "ingest":
		cmd = ingestCmd
	case "run":
		cmd = runCmd
	case "show":
		cmd = showCmd
	case "exceptions":
		cmd = exceptionsCmd
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", args[0])
		printUsage(out)
		return errUsage
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ServiceVersion: version, AutoMigrate: true})
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close(context.WithoutCancel(ctx))
	}()
	return cmd(ctx, app, args[1:], out)
}

func ingestCmd(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(out)
	kind := fs.String("kind", "", "Record kind: order, invoice, payment or corporate")
	file := fs.String("file", "", "Source file (csv, tsv or xlsx)")
	format := fs.String("format", "", "Source format (default: from the file extension)")
	encoding := fs.String("encoding", app.Config.Ingest.DefaultEncoding, "Text encoding of csv/tsv sources")
	sheet := fs.String("sheet", "", "Worksheet of xlsx sources (default: first sheet)")
	at := fs.String("at", "", "Snapshot timestamp, YYYY-MM-DD or RFC3339 (default: now)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *kind == "" || *file == "" {
		fs.Usage()
		return errUsage
	}

	recordKind, err := ledger.ParseRecordKind(*kind)
	if err != nil {
		return err
	}
	req := ledgerapp.IngestRequest{
		Kind:   recordKind,
		Source: filepath.Base(*file),
		Format: csvimport.DetectFormat(*file),
		Sheet:  *sheet,
	}
	if *format != "" {
		if req.Format, err = csvimport.ParseFormat(*format); err != nil {
			return err
		}
	}
	if req.Encoding, err = csvimport.ParseEncoding(*encoding); err != nil {
		return err
	}
	if *at != "" {
		if req.SnapshotAt, err = parseTime(*at, app.Config.Pipeline.Location()); err != nil {
			return fmt.Errorf("invalid -at: %w", err)
		}
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	req.Body = f

	report, err := app.Ingest.Ingest(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func runCmd(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	asOf := fs.String("as-of", "", "Evaluation date YYYY-MM-DD (default: today)")
	tolerance := fs.String("tolerance", "", "Amount tolerance (default: pipeline.tolerance)")
	graceDays := fs.Int("grace-days", -1, "Missing-invoice grace period in days (default: pipeline.grace_period_days)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	req := ledgerapp.RunRequest{Trigger: ledgerapp.TriggerCLI}
	if *asOf != "" {
		t, err := time.ParseInLocation(dateLayout, *asOf, app.Config.Pipeline.Location())
		if err != nil {
			return fmt.Errorf("invalid -as-of: %w", err)
		}
		req.AsOf = &t
	}
	if *tolerance != "" {
		d, err := decimal.NewFromString(*tolerance)
		if err != nil {
			return fmt.Errorf("invalid -tolerance: %w", err)
		}
		req.Tolerance = &d
	}
	if *graceDays >= 0 {
		req.GracePeriodDays = graceDays
	}

	result, err := app.Runs.Run(ctx, req)
	if result != nil {
		if werr := writeJSON(out, result); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func showCmd(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(out)
	status := fs.String("status", "", "Comma separated billing statuses")
	limit := fs.Int("limit", 0, "Show the N most recently dated rows (default: all)")
	snapshot := fs.Int64("version", 0, "Snapshot version (default: current)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	q := ledger.RowQuery{Limit: *limit}
	for _, s := range splitList(*status) {
		q.Statuses = append(q.Statuses, ledger.BillingStatus(strings.ToUpper(s)))
	}
	result, err := app.Queries.Rows(ctx, *snapshot, q)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "snapshot v%d as of %s (%d rows)\n\n",
		result.Snapshot.Version, result.Snapshot.AsOf.Format(dateLayout), result.Snapshot.RowCount)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQUENCE\tORGANIZATION\tCONTRACTOR\tAMOUNT\tINVOICED\tPAID\tDUE\tBILLING\tPAYMENT")
	for _, r := range result.Rows {
		amount := "-"
		if r.ContractAmount.Valid {
			amount = r.ContractAmount.Decimal.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SequenceNo, r.OrganizationName, r.ContractorName, amount,
			r.TotalInvoiced.String(), r.TotalPaid.String(), formatDate(r.DueDate),
			r.BillingStatus, r.PaymentStatus)
	}
	return tw.Flush()
}

func exceptionsCmd(ctx context.Context, app *bootstrap.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("exceptions", flag.ContinueOnError)
	fs.SetOutput(out)
	kinds := fs.String("kind", "", "Comma separated exception kinds")
	severity := fs.String("min-severity", "", "Lowest severity to show")
	order := fs.String("order", "", "Only exceptions of this order key")
	limit := fs.Int("limit", 0, "Maximum number of exceptions")
	snapshot := fs.Int64("version", 0, "Snapshot version (default: current)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	q := ledger.ExceptionQuery{
		MinSeverity: ledger.Severity(strings.ToUpper(*severity)),
		OrderKey:    *order,
		Limit:       *limit,
	}
	for _, k := range splitList(*kinds) {
		q.Kinds = append(q.Kinds, ledger.ExceptionKind(strings.ToUpper(k)))
	}
	result, err := app.Queries.Exceptions(ctx, *snapshot, q)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "snapshot v%d as of %s (%d exceptions)\n\n",
		result.Snapshot.Version, result.Snapshot.AsOf.Format(dateLayout), len(result.Exceptions))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tKIND\tSEVERITY\tDETECTED\tDETAIL")
	for _, e := range result.Exceptions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.OrderKey, e.Kind, e.Severity, e.DetectedAt.Format(dateLayout), e.Detail)
	}
	return tw.Flush()
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Procurement Ledger CLI

Usage:
  ledgerctl <command> [flags]

Commands:
  ingest      Append a source file as a raw batch
              -kind order|invoice|payment|corporate -file path [-format] [-encoding] [-sheet] [-at]
  run         Reconcile all raw batches and publish a snapshot
              [-as-of YYYY-MM-DD] [-tolerance] [-grace-days]
  show        Print ledger rows of a snapshot
              [-status OVERDUE,BILLED] [-limit] [-version]
  exceptions  Print exceptions of a snapshot
              [-kind] [-min-severity] [-order] [-limit] [-version]

Configuration is read from config.toml and LEDGER_* environment variables.`)
}
