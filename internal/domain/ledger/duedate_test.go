package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndOfFollowingMonth(t *testing.T) {
	tests := []struct {
		name    string
		invoice time.Time
		want    time.Time
	}{
		{"mid month", *date(2025, 1, 15), *date(2025, 2, 28)},
		{"leap year february", *date(2024, 1, 31), *date(2024, 2, 29)},
		{"december rolls year", *date(2024, 12, 1), *date(2025, 1, 31)},
		{"november to december", *date(2025, 11, 30), *date(2025, 12, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EndOfFollowingMonth{}.DueDate(tt.invoice))
		})
	}
}

func TestNetDays(t *testing.T) {
	assert.Equal(t, *date(2025, 2, 14), NetDays(30).DueDate(*date(2025, 1, 15)))
	assert.Equal(t, "net_30", NetDays(30).Name())
}

func TestParseDuePolicy(t *testing.T) {
	p, err := ParseDuePolicy("")
	require.NoError(t, err)
	assert.Equal(t, "end_of_following_month", p.Name())

	p, err = ParseDuePolicy("NET_45")
	require.NoError(t, err)
	assert.Equal(t, NetDays(45), p)

	_, err = ParseDuePolicy("net_x")
	assert.Error(t, err)
	_, err = ParseDuePolicy("quarterly")
	assert.Error(t, err)
}
