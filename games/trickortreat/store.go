/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// State is a snapshot of one session as the UI sees it.
type State struct {
	Session       *SessionSummary    `json:"session"`
	Players       []Player           `json:"players"`
	CurrentPlayer *Player            `json:"current_player"`
	Turn          *Turn              `json:"turn"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
}

func (s State) clone() State {
	c := State{
		Players:     slices.Clone(s.Players),
		Leaderboard: slices.Clone(s.Leaderboard),
	}

	if s.Session != nil {
		session := *s.Session
		c.Session = &session
	}

	if s.Turn != nil {
		turn := *s.Turn
		c.Turn = &turn
	}

	if s.CurrentPlayer != nil {
		player := *s.CurrentPlayer
		c.CurrentPlayer = &player
	}

	return c
}

// SessionStore holds the in-memory snapshot of one loaded session and
// notifies subscribers after every change. Mutations go through the turn and
// scoring engines one at a time, then the snapshot is rebuilt from storage.
type SessionStore struct {
	repo    Repository
	turns   *TurnEngine
	scoring *ScoringEngine
	board   *Projector
	logger  *slog.Logger

	// writeMu serialises mutations of the loaded session.
	writeMu sync.Mutex

	mu         sync.RWMutex
	state      State
	listeners  map[int]func(State)
	nextID     int
	lastActive time.Time
}

func NewSessionStore(repo Repository, rules Rules, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SessionStore{
		repo:       repo,
		turns:      NewTurnEngine(repo, logger),
		scoring:    NewScoringEngine(repo, rules, logger),
		board:      NewProjector(repo),
		logger:     logger,
		listeners:  make(map[int]func(State)),
		lastActive: time.Now(),
	}
}

func (s *SessionStore) Turns() *TurnEngine {
	return s.turns
}

func (s *SessionStore) Scoring() *ScoringEngine {
	return s.scoring
}

// State returns a copy of the current snapshot.
func (s *SessionStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.clone()
}

// LastActive is the time of the last load or mutation.
func (s *SessionStore) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastActive
}

// SessionID is the id of the loaded session, or "" when none is loaded.
func (s *SessionStore) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Session == nil {
		return ""
	}

	return s.state.Session.ID
}

// Subscribe calls fn with the current snapshot right away and again after
// every change, until the returned function is called.
func (s *SessionStore) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.state.clone()
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.listeners, id)
	}
}

func (s *SessionStore) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.lastActive = time.Now()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state.clone())
	}
}

// build reads the full state of sessionID from storage.
func (s *SessionStore) build(ctx context.Context, sessionID string) (State, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	summary, err := summarize(ctx, s.repo, session)
	if err != nil {
		return State{}, err
	}

	players, err := s.repo.GetPlayers(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	state := State{
		Session: summary,
		Players: players,
	}

	turn, err := s.repo.GetTurn(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return State{}, err
	default:
		state.Turn = turn
		for i := range players {
			if players[i].ID == turn.CurrentPlayerID {
				state.CurrentPlayer = &players[i]
				break
			}
		}
	}

	state.Leaderboard, err = s.board.Leaderboard(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	return state, nil
}

// Load replaces the snapshot with sessionID read from storage. The snapshot
// is left as it was when the session does not exist.
func (s *SessionStore) Load(ctx context.Context, sessionID string) error {
	state, err := s.build(ctx, sessionID)
	if err != nil {
		return err
	}

	s.setState(state)

	return nil
}

// Refresh re-reads the loaded session from storage.
func (s *SessionStore) Refresh(ctx context.Context) error {
	id := s.SessionID()
	if id == "" {
		return ErrNoSession
	}

	return s.Load(ctx, id)
}

// Clear drops the snapshot. Nothing in storage changes.
func (s *SessionStore) Clear() {
	s.setState(State{})
}

// CreateSession creates and loads a new session.
func (s *SessionStore) CreateSession(ctx context.Context, name string, playerNames []string) (*Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session, _, err := s.turns.CreateSession(ctx, name, playerNames)
	if err != nil {
		return nil, err
	}

	if err := s.Load(ctx, session.ID); err != nil {
		return nil, err
	}

	return session, nil
}

// mutate runs fn against the loaded session and refreshes the snapshot. A
// refresh failure after fn succeeded is logged and the stale snapshot kept.
func (s *SessionStore) mutate(ctx context.Context, fn func(sessionID string) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id := s.SessionID()
	if id == "" {
		return ErrNoSession
	}

	if err := fn(id); err != nil {
		return err
	}

	if err := s.Load(ctx, id); err != nil {
		s.logger.Warn("refresh after update failed, showing stale state", "session", id, "error", err)
	}

	return nil
}

func (s *SessionStore) NextTurn(ctx context.Context) (next *Player, err error) {
	err = s.mutate(ctx, func(id string) error {
		next, _, err = s.turns.NextTurn(ctx, id)
		return err
	})

	return next, err
}

func (s *SessionStore) SetCurrentPlayer(ctx context.Context, playerID string) error {
	return s.mutate(ctx, func(id string) error {
		_, err := s.turns.SetCurrentPlayer(ctx, id, playerID)
		return err
	})
}

func (s *SessionStore) AddPlayer(ctx context.Context, name string) (player *Player, err error) {
	err = s.mutate(ctx, func(id string) error {
		player, err = s.turns.AddPlayer(ctx, id, name)
		return err
	})

	return player, err
}

func (s *SessionStore) Pause(ctx context.Context) error {
	return s.mutate(ctx, func(id string) error { return s.turns.Pause(ctx, id) })
}

func (s *SessionStore) Resume(ctx context.Context) error {
	return s.mutate(ctx, func(id string) error { return s.turns.Resume(ctx, id) })
}

func (s *SessionStore) End(ctx context.Context) error {
	return s.mutate(ctx, func(id string) error { return s.turns.End(ctx, id) })
}

// StartTurn starts the current turn for the current player.
func (s *SessionStore) StartTurn(ctx context.Context) (res *TurnStartResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		turn, err := currentTurn(ctx, s.repo, id)
		if err != nil {
			return err
		}

		res, err = s.scoring.StartTurn(ctx, turn.CurrentPlayerID, id, turn.TurnNumber)
		return err
	})

	return res, err
}

func (s *SessionStore) SelectNewTrick(ctx context.Context, playerID, quizID string) (res *ActionResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		res, err = s.scoring.SelectNewTrick(ctx, playerID, id, quizID)
		return err
	})

	return res, err
}

func (s *SessionStore) SelectNewTreat(ctx context.Context, playerID, quizID string) (res *ActionResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		res, err = s.scoring.SelectNewTreat(ctx, playerID, id, quizID)
		return err
	})

	return res, err
}

func (s *SessionStore) CompleteTreat(ctx context.Context, playerID, treatID string) (res *ActionResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		if err := s.ownedBySession(ctx, id, playerID); err != nil {
			return err
		}

		res, err = s.scoring.CompleteTreat(ctx, treatID, playerID)
		return err
	})

	return res, err
}

func (s *SessionStore) DesertTreat(ctx context.Context, playerID, treatID string) (res *ActionResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		if err := s.ownedBySession(ctx, id, playerID); err != nil {
			return err
		}

		res, err = s.scoring.DesertTreat(ctx, treatID, playerID)
		return err
	})

	return res, err
}

func (s *SessionStore) DesertTrick(ctx context.Context, playerID, trickID string) (res *ActionResult, err error) {
	err = s.mutate(ctx, func(id string) error {
		if err := s.ownedBySession(ctx, id, playerID); err != nil {
			return err
		}

		res, err = s.scoring.DesertTrick(ctx, trickID, playerID)
		return err
	})

	return res, err
}

// PlayerActivity is the loaded session's view of one player's tricks and treats.
func (s *SessionStore) PlayerActivity(ctx context.Context, playerID string) (*Activity, error) {
	id := s.SessionID()
	if id == "" {
		return nil, ErrNoSession
	}

	if err := s.ownedBySession(ctx, id, playerID); err != nil {
		return nil, err
	}

	return s.scoring.PlayerActivity(ctx, playerID)
}

func (s *SessionStore) ownedBySession(ctx context.Context, sessionID, playerID string) error {
	_, err := sessionPlayer(ctx, s.repo, sessionID, playerID)

	return err
}
