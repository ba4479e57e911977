package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DuePolicy computes the payment due date for an invoice date
type DuePolicy interface {
	DueDate(invoiceDate time.Time) time.Time
	Name() string
}

// EndOfFollowingMonth is the default contractual term: payment is due on
// the last day of the month after the invoice month.
type EndOfFollowingMonth struct{}

// DueDate returns the last calendar day of the month following invoiceDate
func (EndOfFollowingMonth) DueDate(invoiceDate time.Time) time.Time {
	y, m, _ := invoiceDate.Date()
	// Day 0 of month m+2 is the last day of month m+1.
	return time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC)
}

// Name returns the policy name
func (EndOfFollowingMonth) Name() string { return "end_of_following_month" }

// NetDays is a fixed "net N days" payment term
type NetDays int

// DueDate returns invoiceDate plus N days
func (n NetDays) DueDate(invoiceDate time.Time) time.Time {
	return Truncate(invoiceDate, time.UTC).AddDate(0, 0, int(n))
}

// Name returns the policy name
func (n NetDays) Name() string { return fmt.Sprintf("net_%d", int(n)) }

// ParseDuePolicy parses "end_of_following_month" or "net_<days>"
func ParseDuePolicy(s string) (DuePolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "end_of_following_month":
		return EndOfFollowingMonth{}, nil
	case strings.HasPrefix(s, "net_"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "net_"))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid net days policy %q", s)
		}
		return NetDays(n), nil
	}
	return nil, fmt.Errorf("unknown due date policy %q", s)
}
