package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAppendOnlyKeepsSuccessfulAttempts(t *testing.T) {
	var l Ledger
	l = l.Append(Attempt{ProductID: "A", Requested: 2, Observed: 5, Outcome: OutcomeSuccess})
	l = l.Append(Attempt{ProductID: "B", Requested: 1, Observed: 0, Outcome: OutcomeInsufficientStock})
	l = l.Append(Attempt{ProductID: "C", Requested: 1, Observed: 3, Outcome: OutcomeConflict})
	l = l.Append(Attempt{ProductID: "A", Requested: 1, Observed: 3, Outcome: OutcomeSuccess})

	require.Len(t, l, 2)
	assert.Equal(t, "A", l[0].ProductID)
	assert.Equal(t, 2, l[0].Requested)
	assert.Equal(t, "A", l[1].ProductID)
	assert.Equal(t, 1, l[1].Requested)
}

func TestAttemptNewStock(t *testing.T) {
	a := Attempt{ProductID: "X", Requested: 3, Observed: 3, Outcome: OutcomeSuccess}
	assert.Equal(t, 0, a.NewStock())
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{
		OutcomeSuccess:           "success",
		OutcomeInsufficientStock: "insufficient_stock",
		OutcomeConflict:          "conflict",
		OutcomeNotFound:          "not_found",
		Outcome(0):               "error",
	}
	for o, want := range cases {
		assert.Equal(t, want, o.String())
	}
}
