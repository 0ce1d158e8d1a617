package trickortreat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tickingClock hands out strictly increasing times so ordering by
// timestamp is deterministic.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)

	return c.now
}

type fixture struct {
	ctx     context.Context
	repo    *MemoryRepository
	turns   *TurnEngine
	scoring *ScoringEngine
	session *Session
	players []Player
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	clock := &tickingClock{now: time.Date(2025, 10, 31, 18, 0, 0, 0, time.UTC)}
	repo.SetClock(clock.Now)

	f := &fixture{
		ctx:     context.Background(),
		repo:    repo,
		turns:   NewTurnEngine(repo, nil),
		scoring: NewScoringEngine(repo, DefaultRules(), nil),
	}

	if len(names) > 0 {
		var err error
		f.session, f.players, err = f.turns.CreateSession(f.ctx, "Halloween", names)
		require.NoError(t, err)
	}

	return f
}

func (f *fixture) player(t *testing.T, i int) *Player {
	t.Helper()

	p, err := f.repo.GetPlayer(f.ctx, f.players[i].ID)
	require.NoError(t, err)

	return p
}

func (f *fixture) turn(t *testing.T) *Turn {
	t.Helper()

	turn, err := f.repo.GetTurn(f.ctx, f.session.ID)
	require.NoError(t, err)

	return turn
}

// advanceTo moves the session forward until its turn number is n.
func (f *fixture) advanceTo(t *testing.T, n int) {
	t.Helper()

	for f.turn(t).TurnNumber < n {
		_, _, err := f.turns.NextTurn(f.ctx, f.session.ID)
		require.NoError(t, err)
	}
}
