package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordKind(t *testing.T) {
	for _, kind := range AllRecordKinds {
		got, err := ParseRecordKind(" " + string(kind) + " ")
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	got, err := ParseRecordKind("Invoice")
	require.NoError(t, err)
	assert.Equal(t, RecordKindInvoice, got)

	_, err = ParseRecordKind("receipt")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Contains(t, err.Error(), "order, invoice, payment, corporate")
	assert.False(t, RecordKind("receipt").IsValid())
}
