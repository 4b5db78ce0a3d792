package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/lost-found/backend/internal/models"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from models.ClaimStatus
		ev   Event
		to   models.ClaimStatus
	}{
		{models.ClaimPending, EventSubmitProof, models.ClaimAwaitingVerification},
		{models.ClaimPending, EventApprove, models.ClaimApproved},
		{models.ClaimPending, EventReject, models.ClaimRejected},
		{models.ClaimPending, EventExpire, models.ClaimExpired},
		{models.ClaimAwaitingVerification, EventApprove, models.ClaimApproved},
		{models.ClaimAwaitingVerification, EventReject, models.ClaimRejected},
		{models.ClaimApproved, EventConfirmHandoff, models.ClaimCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestTransitionRefused(t *testing.T) {
	tests := []struct {
		from models.ClaimStatus
		ev   Event
	}{
		{models.ClaimAwaitingVerification, EventSubmitProof},
		{models.ClaimAwaitingVerification, EventExpire},
		{models.ClaimApproved, EventReject},
		{models.ClaimApproved, EventExpire},
		{models.ClaimPending, EventConfirmHandoff},
		{models.ClaimRejected, EventApprove},
		{models.ClaimCompleted, EventConfirmHandoff},
		{models.ClaimExpired, EventApprove},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			_, err := Transition(tt.from, tt.ev)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []models.ClaimStatus{models.ClaimRejected, models.ClaimCompleted, models.ClaimExpired} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []models.ClaimStatus{models.ClaimPending, models.ClaimAwaitingVerification, models.ClaimApproved} {
		assert.False(t, IsTerminal(s), s)
	}
}

func TestSources(t *testing.T) {
	assert.Equal(t, []models.ClaimStatus{models.ClaimPending, models.ClaimAwaitingVerification}, Sources(EventApprove))
	assert.Equal(t, []models.ClaimStatus{models.ClaimApproved}, Sources(EventConfirmHandoff))
	assert.Equal(t, []models.ClaimStatus{models.ClaimPending}, Sources(EventExpire))
}

func TestDecisionEvent(t *testing.T) {
	ev, to, err := decisionEvent("approved")
	require.NoError(t, err)
	assert.Equal(t, EventApprove, ev)
	assert.Equal(t, models.ClaimApproved, to)

	_, _, err = decisionEvent("maybe")
	assert.ErrorIs(t, err, ErrValidation)
}
