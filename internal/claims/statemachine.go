package claims

import (
	"fmt"

	"github.com/anonto42/lost-found/backend/internal/models"
)

type Event string

const (
	EventSubmitProof    Event = "submit_proof"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventConfirmHandoff Event = "confirm_handoff"
	EventExpire         Event = "expire"
)

// transitions is the only place claim status moves are defined.
var transitions = map[models.ClaimStatus]map[Event]models.ClaimStatus{
	models.ClaimPending: {
		EventSubmitProof: models.ClaimAwaitingVerification,
		EventApprove:     models.ClaimApproved,
		EventReject:      models.ClaimRejected,
		EventExpire:      models.ClaimExpired,
	},
	models.ClaimAwaitingVerification: {
		EventApprove: models.ClaimApproved,
		EventReject:  models.ClaimRejected,
	},
	models.ClaimApproved: {
		EventConfirmHandoff: models.ClaimCompleted,
	},
}

// Transition returns the status a claim in from moves to on ev, or an error
// wrapping ErrInvalidTransition.
func Transition(from models.ClaimStatus, ev Event) (models.ClaimStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}

// Sources lists every status that accepts ev, in table order.
func Sources(ev Event) []models.ClaimStatus {
	var out []models.ClaimStatus
	for _, s := range []models.ClaimStatus{
		models.ClaimPending,
		models.ClaimAwaitingVerification,
		models.ClaimApproved,
	} {
		if _, ok := transitions[s][ev]; ok {
			out = append(out, s)
		}
	}
	return out
}

func IsTerminal(s models.ClaimStatus) bool {
	return len(transitions[s]) == 0
}

func decisionEvent(decision string) (Event, models.ClaimStatus, error) {
	switch decision {
	case models.DecisionApproved:
		return EventApprove, models.ClaimApproved, nil
	case models.DecisionRejected:
		return EventReject, models.ClaimRejected, nil
	}
	return "", "", fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
}
