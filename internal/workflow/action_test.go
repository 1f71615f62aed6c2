package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for _, a := range AllActions {
		got, err := ParseAction(" " + a.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAction("REMIND")
	require.NoError(t, err)
	assert.Equal(t, ActionRemind, got)

	_, err = ParseAction("delete")
	assert.Error(t, err)
}

func TestActionSet(t *testing.T) {
	s := NewActionSet(ActionCancel, ActionViewDetail, ActionCancel)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Action{ActionViewDetail, ActionCancel}, s.Actions())
	assert.Equal(t, "{view, cancel}", s.String())
	assert.True(t, s.SubsetOf(s.With(ActionApprove)))
	assert.False(t, s.With(ActionApprove).SubsetOf(s))
	assert.False(t, ActionViewDetail.Mutates())
	assert.True(t, ActionRemind.Mutates())
}
