/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Phase is the turn engine state of a session.
type Phase string

const (
	PhaseNoSession Phase = "no_session"
	PhaseActive    Phase = "active"
	PhasePaused    Phase = "paused"
	PhaseEnded     Phase = "ended"
)

func phaseOf(s *Session) Phase {
	if s == nil {
		return PhaseNoSession
	}

	switch s.State {
	case SessionActive:
		return PhaseActive
	case SessionPaused:
		return PhasePaused
	case SessionEnded:
		return PhaseEnded
	}

	return PhaseNoSession
}

// TurnStatus is what a turn display needs to know about the current turn.
type TurnStatus struct {
	Phase          Phase   `json:"phase"`
	Turn           *Turn   `json:"turn,omitempty"`
	CurrentPlayer  *Player `json:"current_player,omitempty"`
	TurnStarted    bool    `json:"turn_started"`
	QuizDoneInTurn bool    `json:"quiz_done_in_turn"`
	PlayerCount    int     `json:"player_count"`
}

// TurnEngine owns session setup, the roster and turn rotation. It never
// touches scores.
type TurnEngine struct {
	repo   Repository
	logger *slog.Logger
}

func NewTurnEngine(repo Repository, logger *slog.Logger) *TurnEngine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &TurnEngine{
		repo:   repo,
		logger: logger,
	}
}

// cleanNames trims every name and drops the blank ones.
func cleanNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cleaned = append(cleaned, name)
	}

	return cleaned
}

// CreateSession creates a session with players at positions 0..n-1 in input
// order, and a turn record pointing at the first of them as turn number 1.
func (e *TurnEngine) CreateSession(ctx context.Context, name string, playerNames []string) (*Session, []Player, error) {
	names := cleanNames(playerNames)
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one player name is required", ErrNoPlayers)
	}

	var (
		session *Session
		players []Player
	)

	err := e.repo.WithTx(ctx, func(q Queries) error {
		var err error

		players = players[:0]

		session, err = q.CreateSession(ctx, strings.TrimSpace(name))
		if err != nil {
			return err
		}

		for i, n := range names {
			p, err := q.InsertPlayer(ctx, session.ID, n, i)
			if err != nil {
				return err
			}
			players = append(players, *p)
		}

		return q.UpdateTurn(ctx, session.ID, players[0].ID, 0, 1)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Debug("session created", "session", session.ID, "name", session.Name, "players", len(players))

	return session, players, nil
}

// NextTurn passes the turn to the player after the current one, wrapping at
// the end of the roster, and bumps the turn number.
func (e *TurnEngine) NextTurn(ctx context.Context, sessionID string) (*Player, *Turn, error) {
	var (
		next Player
		turn Turn
	)

	err := e.repo.WithTx(ctx, func(q Queries) error {
		if _, err := activeSession(ctx, q, sessionID); err != nil {
			return err
		}

		players, err := q.GetPlayers(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(players) == 0 {
			return ErrNoPlayers
		}

		current, err := currentTurn(ctx, q, sessionID)
		if err != nil {
			return err
		}

		idx := -1
		for i, p := range players {
			if p.ID == current.CurrentPlayerID {
				idx = i
				break
			}
		}

		nextIndex := (idx + 1) % len(players)
		next = players[nextIndex]
		turn = Turn{
			SessionID:       sessionID,
			CurrentPlayerID: next.ID,
			TurnIndex:       nextIndex,
			TurnNumber:      current.TurnNumber + 1,
		}

		return q.UpdateTurn(ctx, sessionID, turn.CurrentPlayerID, turn.TurnIndex, turn.TurnNumber)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Debug("turn advanced", "session", sessionID, "player", next.ID, "index", turn.TurnIndex, "number", turn.TurnNumber)

	return &next, &turn, nil
}

// SetCurrentPlayer hands the turn straight to playerID. Moving to a
// different player counts as a new turn; choosing the current player again
// changes nothing.
func (e *TurnEngine) SetCurrentPlayer(ctx context.Context, sessionID, playerID string) (*Turn, error) {
	var turn Turn

	err := e.repo.WithTx(ctx, func(q Queries) error {
		if _, err := activeSession(ctx, q, sessionID); err != nil {
			return err
		}

		p, err := sessionPlayer(ctx, q, sessionID, playerID)
		if err != nil {
			return err
		}

		number := 1
		current, err := q.GetTurn(ctx, sessionID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		case current.CurrentPlayerID == p.ID:
			turn = *current
			return nil
		default:
			number = current.TurnNumber + 1
		}

		turn = Turn{
			SessionID:       sessionID,
			CurrentPlayerID: p.ID,
			TurnIndex:       p.OrderPosition,
			TurnNumber:      number,
		}

		return q.UpdateTurn(ctx, sessionID, turn.CurrentPlayerID, turn.TurnIndex, turn.TurnNumber)
	})
	if err != nil {
		return nil, err
	}

	return &turn, nil
}

// AddPlayer appends a player after the last order position. The current turn
// is left alone unless the session had no turn record at all.
func (e *TurnEngine) AddPlayer(ctx context.Context, sessionID, name string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("player name is empty")
	}

	var player *Player

	err := e.repo.WithTx(ctx, func(q Queries) error {
		session, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State == SessionEnded {
			return invalidState("session %s has ended", sessionID)
		}

		players, err := q.GetPlayers(ctx, sessionID)
		if err != nil {
			return err
		}

		position := 0
		for _, p := range players {
			position = max(position, p.OrderPosition+1)
		}

		player, err = q.InsertPlayer(ctx, sessionID, name, position)
		if err != nil {
			return err
		}

		_, err = q.GetTurn(ctx, sessionID)
		if errors.Is(err, ErrNotFound) {
			return q.UpdateTurn(ctx, sessionID, player.ID, player.OrderPosition, 1)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("player added", "session", sessionID, "player", player.ID, "position", player.OrderPosition)

	return player, nil
}

func (e *TurnEngine) Pause(ctx context.Context, sessionID string) error {
	return e.transition(ctx, sessionID, SessionActive, SessionPaused)
}

func (e *TurnEngine) Resume(ctx context.Context, sessionID string) error {
	return e.transition(ctx, sessionID, SessionPaused, SessionActive)
}

// End finishes a session for good. It is valid from active or paused.
func (e *TurnEngine) End(ctx context.Context, sessionID string) error {
	return e.repo.WithTx(ctx, func(q Queries) error {
		s, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.State == SessionEnded {
			return invalidState("session %s has already ended", sessionID)
		}

		return q.SetSessionState(ctx, sessionID, SessionEnded)
	})
}

func (e *TurnEngine) transition(ctx context.Context, sessionID string, from, to SessionState) error {
	err := e.repo.WithTx(ctx, func(q Queries) error {
		s, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.State != from {
			return invalidState("session %s is %s, not %s", sessionID, s.State, from)
		}

		return q.SetSessionState(ctx, sessionID, to)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("session state changed", "session", sessionID, "from", from, "to", to)

	return nil
}

// Status reports the phase of the session and the state of its current turn.
func (e *TurnEngine) Status(ctx context.Context, sessionID string) (*TurnStatus, error) {
	session, err := e.repo.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return &TurnStatus{Phase: PhaseNoSession}, err
	}
	if err != nil {
		return nil, err
	}

	status := &TurnStatus{Phase: phaseOf(session)}

	players, err := e.repo.GetPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	status.PlayerCount = len(players)

	turn, err := e.repo.GetTurn(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}
	status.Turn = turn

	for i := range players {
		if players[i].ID != turn.CurrentPlayerID {
			continue
		}

		status.CurrentPlayer = &players[i]
		break
	}

	if status.CurrentPlayer == nil {
		return status, nil
	}

	status.TurnStarted, err = e.repo.QueryTurnHistory(ctx, sessionID, turn.CurrentPlayerID, turn.TurnNumber, ActionTurnStart)
	if err != nil {
		return nil, err
	}

	status.QuizDoneInTurn, err = e.repo.QueryTurnHistory(ctx, sessionID, turn.CurrentPlayerID, turn.TurnNumber, ActionNewTrick, ActionNewTreat)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// ListSessions returns every session, newest first, with its roster size and
// current player.
func (e *TurnEngine) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	sessions, err := e.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summary, err := summarize(ctx, e.repo, &s)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}

	return summaries, nil
}

func summarize(ctx context.Context, q Queries, s *Session) (*SessionSummary, error) {
	summary := &SessionSummary{Session: *s}

	players, err := q.GetPlayers(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	summary.PlayerCount = len(players)

	turn, err := q.GetTurn(ctx, s.ID)
	if errors.Is(err, ErrNotFound) {
		return summary, nil
	}
	if err != nil {
		return nil, err
	}

	summary.CurrentPlayerID = turn.CurrentPlayerID
	summary.TurnIndex = turn.TurnIndex
	for _, p := range players {
		if p.ID == turn.CurrentPlayerID {
			summary.CurrentPlayerName = p.Name
			break
		}
	}

	return summary, nil
}

// activeSession loads a session and rejects paused or ended ones.
func activeSession(ctx context.Context, q Queries, sessionID string) (*Session, error) {
	s, err := q.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !s.Active() {
		return nil, invalidState("session %s is %s", sessionID, s.State)
	}

	return s, nil
}

// sessionPlayer loads a player and checks it belongs to sessionID.
func sessionPlayer(ctx context.Context, q Queries, sessionID, playerID string) (*Player, error) {
	p, err := q.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if p.SessionID != sessionID {
		return nil, fmt.Errorf("%w: %s is not in session %s", ErrPlayerNotFound, playerID, sessionID)
	}

	return p, nil
}

func currentTurn(ctx context.Context, q Queries, sessionID string) (*Turn, error) {
	t, err := q.GetTurn(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoTurnState, sessionID)
	}

	return t, err
}
