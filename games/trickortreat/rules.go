package trickortreat

import (
	"errors"
)

// Rules are the point values and limits of a game.
type Rules struct {
	PointsPerTrick          int // earned by each active trick every turn its owner starts
	PointsPerCompletedTreat int
	PointsPerDesertedTreat  int // deducted
	MaxActiveTricks         int // 0 means unlimited
	MaxPendingTreats        int // 0 means unlimited
}

func DefaultRules() Rules {
	return Rules{
		PointsPerTrick:          1,
		PointsPerCompletedTreat: 1,
		PointsPerDesertedTreat:  1,
	}
}

func (r Rules) Validate() error {
	switch {
	case r.PointsPerTrick < 1:
		return errors.New("points per trick must be at least 1")
	case r.PointsPerCompletedTreat < 0, r.PointsPerDesertedTreat < 0:
		return errors.New("treat points must not be negative")
	case r.MaxActiveTricks < 0, r.MaxPendingTreats < 0:
		return errors.New("limits must not be negative")
	}

	return nil
}
