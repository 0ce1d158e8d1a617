/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memData is everything the in-process repository holds. Entities are stored
// by value.
type memData struct {
	sessions map[string]Session
	players  map[string]Player
	turns    map[string]Turn
	tricks   map[string]PlayerTrick
	treats   map[string]PlayerTreat
	history  []TurnHistory
}

// MemoryRepository keeps all sessions in process memory. It is the default
// storage when no database is configured, and the storage used in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: &memData{
			sessions: make(map[string]Session),
			players:  make(map[string]Player),
			turns:    make(map[string]Turn),
			tricks:   make(map[string]PlayerTrick),
			treats:   make(map[string]PlayerTreat),
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp rows.
func (m *MemoryRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// WithTx writes straight into the live data under the lock and keeps an undo
// log, so a transaction costs only what it touches. The log is replayed in
// reverse when fn fails or panics.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memQueries{data: m.data, now: m.now, tx: true}

	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	committed = true

	return nil
}

// locked runs fn directly against the live data.
func (m *MemoryRepository) locked(ctx context.Context, fn func(q *memQueries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(&memQueries{data: m.data, now: m.now})
}

func (m *MemoryRepository) CreateSession(ctx context.Context, name string) (s *Session, err error) {
	err = m.locked(ctx, func(q *memQueries) error { s, err = q.CreateSession(ctx, name); return err })
	return s, err
}

func (m *MemoryRepository) GetSession(ctx context.Context, sessionID string) (s *Session, err error) {
	err = m.locked(ctx, func(q *memQueries) error { s, err = q.GetSession(ctx, sessionID); return err })
	return s, err
}

func (m *MemoryRepository) ListSessions(ctx context.Context) (s []Session, err error) {
	err = m.locked(ctx, func(q *memQueries) error { s, err = q.ListSessions(ctx); return err })
	return s, err
}

func (m *MemoryRepository) SetSessionState(ctx context.Context, sessionID string, state SessionState) error {
	return m.locked(ctx, func(q *memQueries) error { return q.SetSessionState(ctx, sessionID, state) })
}

func (m *MemoryRepository) InsertPlayer(ctx context.Context, sessionID, name string, orderPosition int) (p *Player, err error) {
	err = m.locked(ctx, func(q *memQueries) error { p, err = q.InsertPlayer(ctx, sessionID, name, orderPosition); return err })
	return p, err
}

func (m *MemoryRepository) GetPlayer(ctx context.Context, playerID string) (p *Player, err error) {
	err = m.locked(ctx, func(q *memQueries) error { p, err = q.GetPlayer(ctx, playerID); return err })
	return p, err
}

func (m *MemoryRepository) GetPlayers(ctx context.Context, sessionID string) (p []Player, err error) {
	err = m.locked(ctx, func(q *memQueries) error { p, err = q.GetPlayers(ctx, sessionID); return err })
	return p, err
}

func (m *MemoryRepository) AdjustPlayerScore(ctx context.Context, playerID string, delta int) (score int, err error) {
	err = m.locked(ctx, func(q *memQueries) error { score, err = q.AdjustPlayerScore(ctx, playerID, delta); return err })
	return score, err
}

func (m *MemoryRepository) IncrementCounter(ctx context.Context, playerID string, counter Counter) error {
	return m.locked(ctx, func(q *memQueries) error { return q.IncrementCounter(ctx, playerID, counter) })
}

func (m *MemoryRepository) GetTurn(ctx context.Context, sessionID string) (t *Turn, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetTurn(ctx, sessionID); return err })
	return t, err
}

func (m *MemoryRepository) UpdateTurn(ctx context.Context, sessionID, currentPlayerID string, turnIndex, turnNumber int) error {
	return m.locked(ctx, func(q *memQueries) error {
		return q.UpdateTurn(ctx, sessionID, currentPlayerID, turnIndex, turnNumber)
	})
}

func (m *MemoryRepository) GetTrick(ctx context.Context, trickID string) (t *PlayerTrick, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetTrick(ctx, trickID); return err })
	return t, err
}

func (m *MemoryRepository) GetTricks(ctx context.Context, playerID, sessionID string) (t []PlayerTrick, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetTricks(ctx, playerID, sessionID); return err })
	return t, err
}

func (m *MemoryRepository) GetActiveTricks(ctx context.Context, playerID, sessionID string) (t []PlayerTrick, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetActiveTricks(ctx, playerID, sessionID); return err })
	return t, err
}

func (m *MemoryRepository) InsertTrick(ctx context.Context, playerID, sessionID, quizID string, turnNumber int) (t *PlayerTrick, err error) {
	err = m.locked(ctx, func(q *memQueries) error {
		t, err = q.InsertTrick(ctx, playerID, sessionID, quizID, turnNumber)
		return err
	})
	return t, err
}

func (m *MemoryRepository) UpdateTrick(ctx context.Context, trickID string, active bool, lastPointTurn, pointsDelta int) error {
	return m.locked(ctx, func(q *memQueries) error {
		return q.UpdateTrick(ctx, trickID, active, lastPointTurn, pointsDelta)
	})
}

func (m *MemoryRepository) GetTreat(ctx context.Context, treatID string) (t *PlayerTreat, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetTreat(ctx, treatID); return err })
	return t, err
}

func (m *MemoryRepository) GetTreats(ctx context.Context, playerID, sessionID string) (t []PlayerTreat, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.GetTreats(ctx, playerID, sessionID); return err })
	return t, err
}

func (m *MemoryRepository) InsertTreat(ctx context.Context, playerID, sessionID, quizID string) (t *PlayerTreat, err error) {
	err = m.locked(ctx, func(q *memQueries) error { t, err = q.InsertTreat(ctx, playerID, sessionID, quizID); return err })
	return t, err
}

func (m *MemoryRepository) UpdateTreatStatus(ctx context.Context, treatID string, status TreatStatus, pointsAwarded int) error {
	return m.locked(ctx, func(q *memQueries) error { return q.UpdateTreatStatus(ctx, treatID, status, pointsAwarded) })
}

func (m *MemoryRepository) AppendTurnHistory(ctx context.Context, entry TurnHistory) error {
	return m.locked(ctx, func(q *memQueries) error { return q.AppendTurnHistory(ctx, entry) })
}

func (m *MemoryRepository) QueryTurnHistory(ctx context.Context, sessionID, playerID string, turnNumber int, kinds ...ActionKind) (ok bool, err error) {
	err = m.locked(ctx, func(q *memQueries) error {
		ok, err = q.QueryTurnHistory(ctx, sessionID, playerID, turnNumber, kinds...)
		return err
	})
	return ok, err
}

// memQueries implements Queries over a memData the caller has locked.
type memQueries struct {
	data *memData
	now  func() time.Time

	tx   bool
	undo []func()
}

func (q *memQueries) rollback() {
	for i := len(q.undo) - 1; i >= 0; i-- {
		q.undo[i]()
	}

	q.undo = nil
}

// put stores v under key, remembering the previous entry inside a transaction.
func put[K comparable, V any](q *memQueries, m map[K]V, key K, v V) {
	if q.tx {
		old, existed := m[key]
		q.undo = append(q.undo, func() {
			if existed {
				m[key] = old
			} else {
				delete(m, key)
			}
		})
	}

	m[key] = v
}

func (q *memQueries) CreateSession(_ context.Context, name string) (*Session, error) {
	now := q.now()
	s := Session{
		ID:        uuid.NewString(),
		Name:      name,
		State:     SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	put(q, q.data.sessions, s.ID, s)

	return &s, nil
}

func (q *memQueries) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s, ok := q.data.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	return &s, nil
}

func (q *memQueries) ListSessions(_ context.Context) ([]Session, error) {
	sessions := slices.Collect(maps.Values(q.data.sessions))
	slices.SortFunc(sessions, func(a, b Session) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return sessions, nil
}

func (q *memQueries) SetSessionState(_ context.Context, sessionID string, state SessionState) error {
	s, ok := q.data.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	s.State = state
	s.UpdatedAt = q.now()
	put(q, q.data.sessions, sessionID, s)

	return nil
}

func (q *memQueries) InsertPlayer(_ context.Context, sessionID, name string, orderPosition int) (*Player, error) {
	if _, ok := q.data.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	now := q.now()
	p := Player{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		Name:          name,
		OrderPosition: orderPosition,
		Version:       PlayerVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	put(q, q.data.players, p.ID, p)

	return &p, nil
}

func (q *memQueries) GetPlayer(_ context.Context, playerID string) (*Player, error) {
	p, ok := q.data.players[playerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	return &p, nil
}

func (q *memQueries) GetPlayers(_ context.Context, sessionID string) ([]Player, error) {
	var players []Player
	for _, p := range q.data.players {
		if p.SessionID == sessionID {
			players = append(players, p)
		}
	}

	slices.SortFunc(players, func(a, b Player) int {
		return cmp.Or(
			cmp.Compare(a.OrderPosition, b.OrderPosition),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return players, nil
}

func (q *memQueries) AdjustPlayerScore(_ context.Context, playerID string, delta int) (int, error) {
	p, ok := q.data.players[playerID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	p.Score += delta
	p.UpdatedAt = q.now()
	put(q, q.data.players, playerID, p)

	return p.Score, nil
}

func (q *memQueries) IncrementCounter(_ context.Context, playerID string, counter Counter) error {
	p, ok := q.data.players[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	switch counter {
	case CounterTricksSelected:
		p.TricksSelected++
	case CounterTreatsSelected:
		p.TreatsSelected++
	case CounterTricksDeserted:
		p.TricksDeserted++
	case CounterTreatsComplete:
		p.TreatsComplete++
	case CounterTreatsDeserted:
		p.TreatsDeserted++
	default:
		return fmt.Errorf("unknown counter %q", counter)
	}

	p.UpdatedAt = q.now()
	put(q, q.data.players, playerID, p)

	return nil
}

func (q *memQueries) GetTurn(_ context.Context, sessionID string) (*Turn, error) {
	t, ok := q.data.turns[sessionID]
	if !ok {
		return nil, fmt.Errorf("turn for session %s: %w", sessionID, ErrNotFound)
	}

	return &t, nil
}

func (q *memQueries) UpdateTurn(_ context.Context, sessionID, currentPlayerID string, turnIndex, turnNumber int) error {
	if _, ok := q.data.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	put(q, q.data.turns, sessionID, Turn{
		SessionID:       sessionID,
		CurrentPlayerID: currentPlayerID,
		TurnIndex:       turnIndex,
		TurnNumber:      turnNumber,
		UpdatedAt:       q.now(),
	})

	return nil
}

func (q *memQueries) GetTrick(_ context.Context, trickID string) (*PlayerTrick, error) {
	t, ok := q.data.tricks[trickID]
	if !ok {
		return nil, fmt.Errorf("trick %s: %w", trickID, ErrNotFound)
	}

	return &t, nil
}

func (q *memQueries) GetTricks(_ context.Context, playerID, sessionID string) ([]PlayerTrick, error) {
	return q.tricksWhere(func(t PlayerTrick) bool {
		return t.PlayerID == playerID && t.SessionID == sessionID
	}), nil
}

func (q *memQueries) GetActiveTricks(_ context.Context, playerID, sessionID string) ([]PlayerTrick, error) {
	return q.tricksWhere(func(t PlayerTrick) bool {
		return t.PlayerID == playerID && t.SessionID == sessionID && t.Active
	}), nil
}

// tricksWhere returns matching tricks, newest activation first.
func (q *memQueries) tricksWhere(match func(PlayerTrick) bool) []PlayerTrick {
	var tricks []PlayerTrick
	for _, t := range q.data.tricks {
		if match(t) {
			tricks = append(tricks, t)
		}
	}

	slices.SortFunc(tricks, func(a, b PlayerTrick) int {
		return cmp.Or(b.ActivatedAt.Compare(a.ActivatedAt), cmp.Compare(a.ID, b.ID))
	})

	return tricks
}

func (q *memQueries) InsertTrick(_ context.Context, playerID, sessionID, quizID string, turnNumber int) (*PlayerTrick, error) {
	if _, ok := q.data.players[playerID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	t := PlayerTrick{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		SessionID:     sessionID,
		QuizID:        quizID,
		ActivatedAt:   q.now(),
		Active:        true,
		LastPointTurn: turnNumber,
	}
	put(q, q.data.tricks, t.ID, t)

	return &t, nil
}

func (q *memQueries) UpdateTrick(_ context.Context, trickID string, active bool, lastPointTurn, pointsDelta int) error {
	t, ok := q.data.tricks[trickID]
	if !ok {
		return fmt.Errorf("trick %s: %w", trickID, ErrNotFound)
	}

	if !active {
		if !t.Active {
			return invalidState("trick %s is not active", trickID)
		}

		now := q.now()
		t.DesertedAt = &now
	}

	t.Active = active
	t.LastPointTurn = lastPointTurn
	t.PointsGenerated += pointsDelta
	put(q, q.data.tricks, trickID, t)

	return nil
}

func (q *memQueries) GetTreat(_ context.Context, treatID string) (*PlayerTreat, error) {
	t, ok := q.data.treats[treatID]
	if !ok {
		return nil, fmt.Errorf("treat %s: %w", treatID, ErrNotFound)
	}

	return &t, nil
}

// GetTreats returns the player's treats, newest selection first.
func (q *memQueries) GetTreats(_ context.Context, playerID, sessionID string) ([]PlayerTreat, error) {
	var treats []PlayerTreat
	for _, t := range q.data.treats {
		if t.PlayerID == playerID && t.SessionID == sessionID {
			treats = append(treats, t)
		}
	}

	slices.SortFunc(treats, func(a, b PlayerTreat) int {
		return cmp.Or(b.SelectedAt.Compare(a.SelectedAt), cmp.Compare(a.ID, b.ID))
	})

	return treats, nil
}

func (q *memQueries) InsertTreat(_ context.Context, playerID, sessionID, quizID string) (*PlayerTreat, error) {
	if _, ok := q.data.players[playerID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	t := PlayerTreat{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		SessionID:  sessionID,
		QuizID:     quizID,
		SelectedAt: q.now(),
		Status:     TreatPending,
	}
	put(q, q.data.treats, t.ID, t)

	return &t, nil
}

func (q *memQueries) UpdateTreatStatus(_ context.Context, treatID string, status TreatStatus, pointsAwarded int) error {
	t, ok := q.data.treats[treatID]
	if !ok {
		return fmt.Errorf("treat %s: %w", treatID, ErrNotFound)
	}

	if t.Status != TreatPending {
		return invalidState("treat %s is %s", treatID, t.Status)
	}

	now := q.now()
	switch status {
	case TreatCompleted:
		t.CompletedAt = &now
	case TreatDeserted:
		t.DesertedAt = &now
	default:
		return invalidState("cannot move treat %s to %s", treatID, status)
	}

	t.Status = status
	t.PointsAwarded = pointsAwarded
	put(q, q.data.treats, treatID, t)

	return nil
}

func (q *memQueries) AppendTurnHistory(_ context.Context, entry TurnHistory) error {
	for _, h := range q.data.history {
		if h.SessionID != entry.SessionID || h.PlayerID != entry.PlayerID || h.TurnNumber != entry.TurnNumber {
			continue
		}

		if h.Action == ActionTurnStart && entry.Action == ActionTurnStart {
			return fmt.Errorf("%w: turn %d already started", ErrDuplicateAction, entry.TurnNumber)
		}

		if h.Action.SelectsQuiz() && entry.Action.SelectsQuiz() {
			return fmt.Errorf("%w: quiz already selected in turn %d", ErrDuplicateAction, entry.TurnNumber)
		}
	}

	if entry.At.IsZero() {
		entry.At = q.now()
	}
	if q.tx {
		n := len(q.data.history)
		q.undo = append(q.undo, func() { q.data.history = q.data.history[:n] })
	}
	q.data.history = append(q.data.history, entry)

	return nil
}

func (q *memQueries) QueryTurnHistory(_ context.Context, sessionID, playerID string, turnNumber int, kinds ...ActionKind) (bool, error) {
	for _, h := range q.data.history {
		if h.SessionID == sessionID && h.PlayerID == playerID && h.TurnNumber == turnNumber &&
			(len(kinds) == 0 || slices.Contains(kinds, h.Action)) {
			return true, nil
		}
	}

	return false, nil
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Queries    = (*memQueries)(nil)
)
