package trickortreat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankSharesPositionsOnTies(t *testing.T) {
	entries := Rank([]LeaderboardEntry{
		{PlayerName: "C", CurrentScore: 7, OrderPosition: 2},
		{PlayerName: "A", CurrentScore: 10, OrderPosition: 0},
		{PlayerName: "B", CurrentScore: 10, OrderPosition: 1},
	})

	var ranks []int
	var names []string
	for _, e := range entries {
		ranks = append(ranks, e.Rank)
		names = append(names, e.PlayerName)
	}

	assert.Equal(t, []int{1, 1, 3}, ranks)
	assert.Equal(t, []string{"A", "B", "C"}, names)
}

func TestRankBreaksTiesOnTrickPointsThenSeat(t *testing.T) {
	entries := Rank([]LeaderboardEntry{
		{PlayerName: "seat0", CurrentScore: 5, TrickPoints: 1, OrderPosition: 0},
		{PlayerName: "seat1", CurrentScore: 5, TrickPoints: 4, OrderPosition: 1},
		{PlayerName: "seat2", CurrentScore: 5, TrickPoints: 1, OrderPosition: 2},
		{PlayerName: "seat3", CurrentScore: -2, OrderPosition: 3},
	})

	require.Len(t, entries, 4)
	assert.Equal(t, "seat1", entries[0].PlayerName)
	assert.Equal(t, "seat0", entries[1].PlayerName)
	assert.Equal(t, "seat2", entries[2].PlayerName)
	assert.Equal(t, "seat3", entries[3].PlayerName)

	// The tie-break orders rows but never splits a rank.
	for _, e := range entries[:3] {
		assert.Equal(t, 1, e.Rank)
	}
	assert.Equal(t, 4, entries[3].Rank)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}

func TestLeaderboardProjection(t *testing.T) {
	f := newFixture(t, "Ana", "Beto", "Carla")
	ana, beto, carla := f.players[0], f.players[1], f.players[2]

	_, err := f.scoring.SelectNewTrick(f.ctx, ana.ID, f.session.ID, "q1")
	require.NoError(t, err)

	treat, err := f.scoring.SelectNewTreat(f.ctx, beto.ID, f.session.ID, "q2")
	require.NoError(t, err)
	_, err = f.scoring.CompleteTreat(f.ctx, treat.ItemID, beto.ID)
	require.NoError(t, err)

	treat, err = f.scoring.SelectNewTreat(f.ctx, carla.ID, f.session.ID, "q3")
	require.NoError(t, err)
	_, err = f.scoring.DesertTreat(f.ctx, treat.ItemID, carla.ID)
	require.NoError(t, err)

	f.advanceTo(t, 4)
	_, err = f.scoring.StartTurn(f.ctx, ana.ID, f.session.ID, 4)
	require.NoError(t, err)

	_, err = f.scoring.SelectNewTreat(f.ctx, ana.ID, f.session.ID, "q4")
	require.NoError(t, err)

	board, err := NewProjector(f.repo).Leaderboard(f.ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, board, 3)

	// Ana and Beto tie on 1; Ana's trick points put her first.
	first := board[0]
	assert.Equal(t, ana.ID, first.PlayerID)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, 1, first.CurrentScore)
	assert.Equal(t, 1, first.ActiveTricks)
	assert.Equal(t, 1, first.TrickPoints)
	assert.Equal(t, 1, first.PendingTreats)
	assert.Equal(t, 1, first.TricksSelected)
	assert.Equal(t, 1, first.TreatsSelected)

	second := board[1]
	assert.Equal(t, beto.ID, second.PlayerID)
	assert.Equal(t, 1, second.Rank)
	assert.Equal(t, 1, second.CompletedTreats)
	assert.Equal(t, 1, second.TreatPoints)
	assert.Equal(t, 1, second.TreatsCompleted)

	last := board[2]
	assert.Equal(t, carla.ID, last.PlayerID)
	assert.Equal(t, 3, last.Rank)
	assert.Equal(t, -1, last.CurrentScore)
	assert.Equal(t, 1, last.DesertedTreats)
	assert.Equal(t, -1, last.TreatPoints)
	assert.Equal(t, 1, last.TreatsDeserted)
}

func TestLeaderboardUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := NewProjector(f.repo).Leaderboard(f.ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLeaderboardDesertedTrickKeepsPointsOutOfActiveTotals(t *testing.T) {
	f := newFixture(t, "Ana")
	ana := f.players[0]

	sel, err := f.scoring.SelectNewTrick(f.ctx, ana.ID, f.session.ID, "q1")
	require.NoError(t, err)
	f.advanceTo(t, 2)
	_, err = f.scoring.StartTurn(f.ctx, ana.ID, f.session.ID, 2)
	require.NoError(t, err)
	_, err = f.scoring.DesertTrick(f.ctx, sel.ItemID, ana.ID)
	require.NoError(t, err)

	board, err := NewProjector(f.repo).Leaderboard(f.ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].CurrentScore)
	assert.Equal(t, 0, board[0].ActiveTricks)
	assert.Equal(t, 0, board[0].TrickPoints)
	assert.Equal(t, 1, board[0].TricksDeserted)
}
