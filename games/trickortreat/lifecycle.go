/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

// Trick lifecycle:
//
//	Active -> Deserted
//
// Treat lifecycle:
//
//	Pending -> Completed
//	Pending -> Deserted
//
// Deserted and Completed are terminal. The transitions below are only ever
// applied by the scoring engine, which pairs each with its point accounting.

// TrickState is derived from the active flag; tricks are never completed.
type TrickState string

const (
	TrickActive   TrickState = "active"
	TrickDeserted TrickState = "deserted"
)

func (t PlayerTrick) State() TrickState {
	if t.Active {
		return TrickActive
	}

	return TrickDeserted
}

func (s TreatStatus) Terminal() bool {
	return s == TreatCompleted || s == TreatDeserted
}

func (s TreatStatus) Valid() bool {
	return s == TreatPending || s.Terminal()
}

// checkTrickTransition validates moving a trick owned by playerID to next.
func checkTrickTransition(t *PlayerTrick, playerID string, next TrickState) error {
	if t.PlayerID != playerID {
		return invalidState("trick %s does not belong to player %s", t.ID, playerID)
	}

	if t.State() != TrickActive || next != TrickDeserted {
		return invalidState("trick %s cannot move from %s to %s", t.ID, t.State(), next)
	}

	return nil
}

// checkTreatTransition validates moving a treat owned by playerID to next.
func checkTreatTransition(t *PlayerTreat, playerID string, next TreatStatus) error {
	if t.PlayerID != playerID {
		return invalidState("treat %s does not belong to player %s", t.ID, playerID)
	}

	if t.Status != TreatPending || !next.Terminal() {
		return invalidState("treat %s cannot move from %s to %s", t.ID, t.Status, next)
	}

	return nil
}
