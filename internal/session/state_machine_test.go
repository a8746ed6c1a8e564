package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardPath(t *testing.T) {
	path := []Status{StatusDraft, StatusMapping, StatusReviewing, StatusStaged, StatusPosting, StatusPosted, StatusExported, StatusArchived}
	for i := 1; i < len(path); i++ {
		assert.True(t, IsValidTransition(path[i-1], path[i]),
			"expected %s -> %s to be allowed", path[i-1], path[i])
	}
}

func TestPostedCannotBeSkipped(t *testing.T) {
	// No state reaches posted except posting, and posting is only reachable
	// from staged.
	for from, targets := range AllowedTransitions() {
		for _, to := range targets {
			if to == StatusPosted {
				assert.Equal(t, StatusPosting, from)
			}
			if to == StatusPosting {
				assert.Equal(t, StatusStaged, from)
			}
		}
	}
}

func TestCancelOnlyBeforePosting(t *testing.T) {
	assert.True(t, CanCancel(StatusDraft))
	assert.True(t, CanCancel(StatusMapping))
	assert.True(t, CanCancel(StatusReviewing))
	assert.True(t, CanCancel(StatusStaged))

	assert.False(t, CanCancel(StatusPosting))
	assert.False(t, CanCancel(StatusPosted))
	assert.False(t, CanCancel(StatusExported))
	assert.False(t, CanCancel(StatusArchived))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(StatusArchived))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusPosted))
}

func TestFailedPromotionReturnsToStaged(t *testing.T) {
	assert.True(t, IsValidTransition(StatusPosting, StatusStaged))
}

func TestValidateTransitionError(t *testing.T) {
	err := ValidateTransition("sess-1", StatusDraft, StatusPosted)
	require.Error(t, err)

	var tErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusDraft, tErr.FromStatus)
	assert.Equal(t, StatusPosted, tErr.ToStatus)
	assert.Equal(t, "sess-1", tErr.SessionID)
}
