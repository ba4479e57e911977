package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

var testAsOf = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testAsOf.AddDate(0, 0, -n)
	return &t
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func env(batch int64, row int, at time.Time) Envelope {
	return Envelope{
		BatchID:    "batch-" + decimal.NewFromInt(batch).String(),
		BatchSeq:   batch,
		RowIndex:   row,
		IngestedAt: at,
	}
}

func order(seq, amt string, contract *time.Time) OrderRecord {
	o := OrderRecord{
		Envelope:         env(1, 0, testAsOf),
		SequenceNo:       seq,
		OrganizationName: "Ministry of Land",
		ProcurementName:  "Bridge survey " + seq,
		ContractDate:     contract,
		ContractorName:   "Acme Engineering",
		CorporateNumber:  "1010001000001",
	}
	if amt != "" {
		o.ContractAmount = amount(amt)
	}
	return o
}

func invoice(orderID, amt string, at *time.Time) InvoiceRecord {
	return InvoiceRecord{Envelope: env(2, 0, testAsOf), OrderID: orderID, Amount: amount(amt), InvoiceDate: at}
}

func payment(orderID, amt string, at *time.Time) PaymentRecord {
	return PaymentRecord{Envelope: env(3, 0, testAsOf), OrderID: orderID, Amount: amount(amt), PaymentDate: at}
}
