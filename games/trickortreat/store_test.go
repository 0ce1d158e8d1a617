package trickortreat

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects every snapshot a store pushes to it.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) push(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = append(r.states, s)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.states[len(r.states)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.states)
}

func newStore(t *testing.T) (*SessionStore, *MemoryRepository) {
	t.Helper()

	repo := NewMemoryRepository()

	return NewSessionStore(repo, DefaultRules(), nil), repo
}

func TestStoreWithoutSession(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	assert.Empty(t, store.SessionID())
	assert.Nil(t, store.State().Session)

	require.ErrorIs(t, store.Refresh(ctx), ErrNoSession)

	_, err := store.NextTurn(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = store.StartTurn(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestStoreSubscribeReceivesEveryChange(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe := store.Subscribe(rec.push)
	require.Equal(t, 1, rec.count(), "subscribers get the current snapshot immediately")
	assert.Nil(t, rec.last().Session)

	session, err := store.CreateSession(ctx, "Halloween", []string{"Ana", "Beto"})
	require.NoError(t, err)

	state := rec.last()
	require.NotNil(t, state.Session)
	assert.Equal(t, session.ID, state.Session.ID)
	assert.Equal(t, 2, state.Session.PlayerCount)
	require.Len(t, state.Players, 2)
	require.NotNil(t, state.CurrentPlayer)
	assert.Equal(t, "Ana", state.CurrentPlayer.Name)
	assert.Equal(t, 1, state.Turn.TurnNumber)
	assert.Len(t, state.Leaderboard, 2)

	next, err := store.NextTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Beto", next.Name)
	assert.Equal(t, "Beto", rec.last().CurrentPlayer.Name)
	assert.Equal(t, 2, rec.last().Turn.TurnNumber)

	seen := rec.count()
	unsubscribe()

	_, err = store.NextTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.count())
	assert.Equal(t, "Ana", store.State().CurrentPlayer.Name)
}

func TestStoreLoadMissingKeepsState(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "Halloween", []string{"Ana"})
	require.NoError(t, err)

	err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, session.ID, store.SessionID())
}

func TestStoreClearLeavesStorageAlone(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "Halloween", []string{"Ana"})
	require.NoError(t, err)

	store.Clear()
	assert.Empty(t, store.SessionID())

	_, err = repo.GetSession(ctx, session.ID)
	require.NoError(t, err)

	require.NoError(t, store.Load(ctx, session.ID))
	assert.Equal(t, session.ID, store.SessionID())
}

func TestStoreScoringFlow(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "Halloween", []string{"Ana", "Beto"})
	require.NoError(t, err)
	ana := store.State().Players[0]
	beto := store.State().Players[1]

	trick, err := store.SelectNewTrick(ctx, ana.ID, "q1")
	require.NoError(t, err)
	assert.Equal(t, 0, trick.TotalScore)

	_, err = store.SelectNewTreat(ctx, ana.ID, "q2")
	require.ErrorIs(t, err, ErrAlreadyDoneQuiz)

	_, err = store.NextTurn(ctx)
	require.NoError(t, err)

	treat, err := store.SelectNewTreat(ctx, beto.ID, "q3")
	require.NoError(t, err)
	_, err = store.DesertTreat(ctx, beto.ID, treat.ItemID)
	require.NoError(t, err)

	_, err = store.NextTurn(ctx)
	require.NoError(t, err)

	res, err := store.StartTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PointsAwarded)

	again, err := store.StartTurn(ctx)
	require.NoError(t, err)
	assert.True(t, again.AlreadyStarted)

	board := store.State().Leaderboard
	require.Len(t, board, 2)
	assert.Equal(t, ana.ID, board[0].PlayerID)
	assert.Equal(t, 1, board[0].CurrentScore)
	assert.Equal(t, beto.ID, board[1].PlayerID)
	assert.Equal(t, -1, board[1].CurrentScore)

	activity, err := store.PlayerActivity(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, activity.ActiveTricks, 1)

	_, err = store.DesertTrick(ctx, ana.ID, trick.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 0, store.State().Leaderboard[0].ActiveTricks)
}

func TestStoreRejectsPlayerFromAnotherSession(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	other, _, err := NewTurnEngine(repo, nil).CreateSession(ctx, "Other", []string{"Zed"})
	require.NoError(t, err)
	players, err := repo.GetPlayers(ctx, other.ID)
	require.NoError(t, err)
	zed := players[0]

	treat, err := NewScoringEngine(repo, DefaultRules(), nil).SelectNewTreat(ctx, zed.ID, other.ID, "q1")
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, "Halloween", []string{"Ana"})
	require.NoError(t, err)

	_, err = store.CompleteTreat(ctx, zed.ID, treat.ItemID)
	require.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = store.PlayerActivity(ctx, zed.ID)
	require.ErrorIs(t, err, ErrPlayerNotFound)

	got, err := repo.GetTreat(ctx, treat.ItemID)
	require.NoError(t, err)
	assert.Equal(t, TreatPending, got.Status)
}

func TestStoreSessionLifecycle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "Halloween", []string{"Ana"})
	require.NoError(t, err)

	require.NoError(t, store.Pause(ctx))
	assert.Equal(t, SessionPaused, store.State().Session.State)

	_, err = store.AddPlayer(ctx, "Beto")
	require.NoError(t, err, "the roster may change while paused")
	assert.Len(t, store.State().Players, 2)

	require.NoError(t, store.Resume(ctx))

	require.NoError(t, store.SetCurrentPlayer(ctx, store.State().Players[1].ID))
	assert.Equal(t, "Beto", store.State().CurrentPlayer.Name)

	require.NoError(t, store.End(ctx))
	assert.Equal(t, SessionEnded, store.State().Session.State)

	_, err = store.NextTurn(ctx)
	require.ErrorIs(t, err, ErrInvalidState)
}

// flakyReads fails session reads made outside a transaction once broken is
// set, so writes still commit but the store cannot rebuild its snapshot.
type flakyReads struct {
	*MemoryRepository
	broken atomic.Bool
}

var errReplicaGone = errors.New("replica gone")

func (r *flakyReads) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if r.broken.Load() {
		return nil, errReplicaGone
	}

	return r.MemoryRepository.GetSession(ctx, sessionID)
}

func TestStoreKeepsSnapshotWhenRefreshFails(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	repo := &flakyReads{MemoryRepository: NewMemoryRepository()}
	store := NewSessionStore(repo, DefaultRules(), logger)

	session, err := store.CreateSession(ctx, "Halloween", []string{"Ana", "Beto"})
	require.NoError(t, err)

	rec := &recorder{}
	store.Subscribe(rec.push)
	require.Equal(t, 1, rec.count())

	repo.broken.Store(true)

	next, err := store.NextTurn(ctx)
	require.NoError(t, err, "the turn was advanced even though the refresh failed")
	assert.Equal(t, "Beto", next.Name)

	turn, err := repo.GetTurn(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnNumber)
	assert.Equal(t, next.ID, turn.CurrentPlayerID)

	state := store.State()
	assert.Equal(t, 1, state.Turn.TurnNumber)
	assert.Equal(t, "Ana", state.CurrentPlayer.Name)
	assert.Equal(t, 1, rec.count(), "subscribers are not told about a snapshot that was not rebuilt")

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), errReplicaGone.Error())

	repo.broken.Store(false)
	require.NoError(t, store.Refresh(ctx))
	assert.Equal(t, "Beto", store.State().CurrentPlayer.Name)
}
