/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// TurnStartResult is the outcome of crediting a player's active tricks at
// the start of their turn.
type TurnStartResult struct {
	PointsAwarded  int  `json:"points_awarded"`
	ActiveTricks   int  `json:"active_tricks_count"`
	TotalScore     int  `json:"new_total_score"`
	AlreadyStarted bool `json:"already_started"`
}

// ActionResult is the outcome of a trick or treat lifecycle action.
type ActionResult struct {
	ItemID       string `json:"item_id"`
	PointsChange int    `json:"points_change"`
	TotalScore   int    `json:"new_total_score"`
}

// Activity is what a player currently has in play.
type Activity struct {
	Player        Player        `json:"player"`
	ActiveTricks  []PlayerTrick `json:"active_tricks"`
	PendingTreats []PlayerTreat `json:"pending_treats"`
}

// ScoringEngine is the only code that changes a player's score. Every
// mutation runs in one storage transaction together with its history row.
type ScoringEngine struct {
	repo   Repository
	rules  Rules
	logger *slog.Logger
}

func NewScoringEngine(repo Repository, rules Rules, logger *slog.Logger) *ScoringEngine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &ScoringEngine{
		repo:   repo,
		rules:  rules,
		logger: logger,
	}
}

func (e *ScoringEngine) Rules() Rules {
	return e.rules
}

// StartTurn credits every active trick of the player once for turnNumber.
// Repeating the call for the same player and turn number awards nothing and
// reports the current total.
func (e *ScoringEngine) StartTurn(ctx context.Context, playerID, sessionID string, turnNumber int) (*TurnStartResult, error) {
	var res TurnStartResult

	err := e.repo.WithTx(ctx, func(q Queries) error {
		res = TurnStartResult{}

		p, err := sessionPlayer(ctx, q, sessionID, playerID)
		if err != nil {
			return err
		}

		if _, err := activeSession(ctx, q, sessionID); err != nil {
			return err
		}

		tricks, err := q.GetActiveTricks(ctx, playerID, sessionID)
		if err != nil {
			return err
		}
		res.ActiveTricks = len(tricks)
		res.TotalScore = p.Score

		started, err := q.QueryTurnHistory(ctx, sessionID, playerID, turnNumber, ActionTurnStart)
		if err != nil {
			return err
		}
		if started {
			res.AlreadyStarted = true
			return nil
		}

		err = q.AppendTurnHistory(ctx, TurnHistory{
			SessionID:  sessionID,
			PlayerID:   playerID,
			TurnNumber: turnNumber,
			Action:     ActionTurnStart,
		})
		if err != nil {
			return err
		}

		for _, t := range tricks {
			if t.LastPointTurn >= turnNumber {
				continue
			}

			if err := q.UpdateTrick(ctx, t.ID, true, turnNumber, e.rules.PointsPerTrick); err != nil {
				return err
			}
			res.PointsAwarded += e.rules.PointsPerTrick
		}

		if res.PointsAwarded == 0 {
			return nil
		}

		res.TotalScore, err = q.AdjustPlayerScore(ctx, playerID, res.PointsAwarded)

		return err
	})

	// Another request claimed this turn start first.
	if errors.Is(err, ErrDuplicateAction) {
		return e.startedResult(ctx, playerID, sessionID)
	}
	if err != nil {
		return nil, scoringErr("start turn", err)
	}

	if res.PointsAwarded > 0 {
		e.logger.Debug("turn started", "session", sessionID, "player", playerID, "turn", turnNumber,
			"points", res.PointsAwarded, "score", res.TotalScore)
	}

	return &res, nil
}

func (e *ScoringEngine) startedResult(ctx context.Context, playerID, sessionID string) (*TurnStartResult, error) {
	p, err := e.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, scoringErr("start turn", err)
	}

	tricks, err := e.repo.GetActiveTricks(ctx, playerID, sessionID)
	if err != nil {
		return nil, scoringErr("start turn", err)
	}

	return &TurnStartResult{
		ActiveTricks:   len(tricks),
		TotalScore:     p.Score,
		AlreadyStarted: true,
	}, nil
}

// SelectNewTrick activates a trick for the player in the session's current
// turn. It earns nothing until a later turn starts.
func (e *ScoringEngine) SelectNewTrick(ctx context.Context, playerID, sessionID, quizID string) (*ActionResult, error) {
	return e.selectQuiz(ctx, playerID, sessionID, quizID, ActionNewTrick)
}

// SelectNewTreat records a pending treat for the player in the session's
// current turn.
func (e *ScoringEngine) SelectNewTreat(ctx context.Context, playerID, sessionID, quizID string) (*ActionResult, error) {
	return e.selectQuiz(ctx, playerID, sessionID, quizID, ActionNewTreat)
}

func (e *ScoringEngine) selectQuiz(ctx context.Context, playerID, sessionID, quizID string, kind ActionKind) (*ActionResult, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return nil, invalidInput("quiz id is empty")
	}

	var res ActionResult

	err := e.repo.WithTx(ctx, func(q Queries) error {
		p, err := sessionPlayer(ctx, q, sessionID, playerID)
		if err != nil {
			return err
		}

		if _, err := activeSession(ctx, q, sessionID); err != nil {
			return err
		}

		turn, err := currentTurn(ctx, q, sessionID)
		if err != nil {
			return err
		}

		done, err := q.QueryTurnHistory(ctx, sessionID, playerID, turn.TurnNumber, ActionNewTrick, ActionNewTreat)
		if err != nil {
			return err
		}
		if done {
			return ErrAlreadyDoneQuiz
		}

		res = ActionResult{TotalScore: p.Score}

		switch kind {
		case ActionNewTrick:
			if err := e.checkTrickLimit(ctx, q, playerID, sessionID); err != nil {
				return err
			}

			t, err := q.InsertTrick(ctx, playerID, sessionID, quizID, turn.TurnNumber)
			if err != nil {
				return err
			}
			res.ItemID = t.ID

			err = q.IncrementCounter(ctx, playerID, CounterTricksSelected)
			if err != nil {
				return err
			}
		case ActionNewTreat:
			if err := e.checkTreatLimit(ctx, q, playerID, sessionID); err != nil {
				return err
			}

			t, err := q.InsertTreat(ctx, playerID, sessionID, quizID)
			if err != nil {
				return err
			}
			res.ItemID = t.ID

			err = q.IncrementCounter(ctx, playerID, CounterTreatsSelected)
			if err != nil {
				return err
			}
		}

		return q.AppendTurnHistory(ctx, TurnHistory{
			SessionID:  sessionID,
			PlayerID:   playerID,
			TurnNumber: turn.TurnNumber,
			Action:     kind,
			QuizID:     quizID,
		})
	})
	if errors.Is(err, ErrDuplicateAction) {
		err = ErrAlreadyDoneQuiz
	}
	if err != nil {
		return nil, scoringErr(string(kind), err)
	}

	e.logger.Debug("quiz selected", "session", sessionID, "player", playerID, "action", kind, "quiz", quizID, "item", res.ItemID)

	return &res, nil
}

func (e *ScoringEngine) checkTrickLimit(ctx context.Context, q Queries, playerID, sessionID string) error {
	if e.rules.MaxActiveTricks == 0 {
		return nil
	}

	tricks, err := q.GetActiveTricks(ctx, playerID, sessionID)
	if err != nil {
		return err
	}

	if len(tricks) >= e.rules.MaxActiveTricks {
		return invalidState("player %s already has %d active tricks", playerID, len(tricks))
	}

	return nil
}

func (e *ScoringEngine) checkTreatLimit(ctx context.Context, q Queries, playerID, sessionID string) error {
	if e.rules.MaxPendingTreats == 0 {
		return nil
	}

	treats, err := q.GetTreats(ctx, playerID, sessionID)
	if err != nil {
		return err
	}

	pending := 0
	for _, t := range treats {
		if t.Status == TreatPending {
			pending++
		}
	}

	if pending >= e.rules.MaxPendingTreats {
		return invalidState("player %s already has %d pending treats", playerID, pending)
	}

	return nil
}

// CompleteTreat resolves a pending treat in the player's favour.
func (e *ScoringEngine) CompleteTreat(ctx context.Context, treatID, playerID string) (*ActionResult, error) {
	return e.resolveTreat(ctx, treatID, playerID, TreatCompleted)
}

// DesertTreat abandons a pending treat. The penalty may take the score below zero.
func (e *ScoringEngine) DesertTreat(ctx context.Context, treatID, playerID string) (*ActionResult, error) {
	return e.resolveTreat(ctx, treatID, playerID, TreatDeserted)
}

func (e *ScoringEngine) resolveTreat(ctx context.Context, treatID, playerID string, status TreatStatus) (*ActionResult, error) {
	var (
		points  int
		counter Counter
		action  ActionKind
	)

	switch status {
	case TreatCompleted:
		points, counter, action = e.rules.PointsPerCompletedTreat, CounterTreatsComplete, ActionCompleteTreat
	case TreatDeserted:
		points, counter, action = -e.rules.PointsPerDesertedTreat, CounterTreatsDeserted, ActionDesertTreat
	default:
		return nil, invalidState("treats cannot be resolved to %s", status)
	}

	res := ActionResult{ItemID: treatID, PointsChange: points}

	err := e.repo.WithTx(ctx, func(q Queries) error {
		t, err := q.GetTreat(ctx, treatID)
		if err != nil {
			return err
		}

		if err := checkTreatTransition(t, playerID, status); err != nil {
			return err
		}

		if _, err := activeSession(ctx, q, t.SessionID); err != nil {
			return err
		}

		// Compare-and-set against pending: a racing resolution fails here.
		if err := q.UpdateTreatStatus(ctx, treatID, status, points); err != nil {
			return err
		}

		res.TotalScore, err = q.AdjustPlayerScore(ctx, playerID, points)
		if err != nil {
			return err
		}

		if err := q.IncrementCounter(ctx, playerID, counter); err != nil {
			return err
		}

		return appendAction(ctx, q, t.SessionID, playerID, action, t.QuizID)
	})
	if err != nil {
		return nil, scoringErr(string(action), err)
	}

	e.logger.Debug("treat resolved", "player", playerID, "treat", treatID, "status", status, "score", res.TotalScore)

	return &res, nil
}

// DesertTrick deactivates an active trick. Leaving a trick costs nothing,
// unlike deserting a treat.
func (e *ScoringEngine) DesertTrick(ctx context.Context, trickID, playerID string) (*ActionResult, error) {
	res := ActionResult{ItemID: trickID}

	err := e.repo.WithTx(ctx, func(q Queries) error {
		t, err := q.GetTrick(ctx, trickID)
		if err != nil {
			return err
		}

		if err := checkTrickTransition(t, playerID, TrickDeserted); err != nil {
			return err
		}

		if _, err := activeSession(ctx, q, t.SessionID); err != nil {
			return err
		}

		if err := q.UpdateTrick(ctx, trickID, false, t.LastPointTurn, 0); err != nil {
			return err
		}

		if err := q.IncrementCounter(ctx, playerID, CounterTricksDeserted); err != nil {
			return err
		}

		p, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		res.TotalScore = p.Score

		return appendAction(ctx, q, t.SessionID, playerID, ActionDesertTrick, t.QuizID)
	})
	if err != nil {
		return nil, scoringErr(string(ActionDesertTrick), err)
	}

	e.logger.Debug("trick deserted", "player", playerID, "trick", trickID)

	return &res, nil
}

// appendAction logs a resolution against the session's current turn number.
func appendAction(ctx context.Context, q Queries, sessionID, playerID string, action ActionKind, quizID string) error {
	number := 0

	turn, err := q.GetTurn(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		number = turn.TurnNumber
	}

	return q.AppendTurnHistory(ctx, TurnHistory{
		SessionID:  sessionID,
		PlayerID:   playerID,
		TurnNumber: number,
		Action:     action,
		QuizID:     quizID,
	})
}

// CalculatePlayerScore derives the score from scratch: every point a trick
// has generated, plus the points of every resolved treat (negative for
// deserted ones).
func (e *ScoringEngine) CalculatePlayerScore(ctx context.Context, playerID string) (int, error) {
	score, err := calculateScore(ctx, e.repo, playerID)
	if err != nil {
		return 0, scoringErr("calculate score", err)
	}

	return score, nil
}

func calculateScore(ctx context.Context, q Queries, playerID string) (int, error) {
	p, err := q.GetPlayer(ctx, playerID)
	if err != nil {
		return 0, err
	}

	tricks, err := q.GetTricks(ctx, p.ID, p.SessionID)
	if err != nil {
		return 0, err
	}

	treats, err := q.GetTreats(ctx, p.ID, p.SessionID)
	if err != nil {
		return 0, err
	}

	score := 0
	for _, t := range tricks {
		score += t.PointsGenerated
	}

	for _, t := range treats {
		switch t.Status {
		case TreatCompleted:
			score += t.PointsAwarded
		case TreatDeserted:
			score -= abs(t.PointsAwarded)
		}
	}

	return score, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}

// ReconcilePlayerScore rewrites the stored running score to match
// CalculatePlayerScore when the two have drifted apart.
func (e *ScoringEngine) ReconcilePlayerScore(ctx context.Context, playerID string) (int, error) {
	var score int

	err := e.repo.WithTx(ctx, func(q Queries) error {
		p, err := q.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}

		calculated, err := calculateScore(ctx, q, playerID)
		if err != nil {
			return err
		}

		score = p.Score
		if calculated == p.Score {
			return nil
		}

		e.logger.Warn("score drift", "player", playerID, "stored", p.Score, "calculated", calculated)

		score, err = q.AdjustPlayerScore(ctx, playerID, calculated-p.Score)

		return err
	})
	if err != nil {
		return 0, scoringErr("reconcile score", err)
	}

	return score, nil
}

// PlayerActivity lists the player's active tricks and pending treats, newest first.
func (e *ScoringEngine) PlayerActivity(ctx context.Context, playerID string) (*Activity, error) {
	p, err := e.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	tricks, err := e.repo.GetActiveTricks(ctx, p.ID, p.SessionID)
	if err != nil {
		return nil, err
	}

	treats, err := e.repo.GetTreats(ctx, p.ID, p.SessionID)
	if err != nil {
		return nil, err
	}

	activity := &Activity{
		Player:        *p,
		ActiveTricks:  tricks,
		PendingTreats: []PlayerTreat{},
	}
	if activity.ActiveTricks == nil {
		activity.ActiveTricks = []PlayerTrick{}
	}

	for _, t := range treats {
		if t.Status == TreatPending {
			activity.PendingTreats = append(activity.PendingTreats, t)
		}
	}

	return activity, nil
}
