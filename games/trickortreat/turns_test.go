package trickortreat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionAssignsPositionsInInputOrder(t *testing.T) {
	f := newFixture(t, "  Ana ", "", "Beto", "   ", "Carla")

	require.Len(t, f.players, 3)
	for i, want := range []string{"Ana", "Beto", "Carla"} {
		assert.Equal(t, want, f.players[i].Name)
		assert.Equal(t, i, f.players[i].OrderPosition)
		assert.Equal(t, PlayerVersion, f.players[i].Version)
	}

	turn := f.turn(t)
	assert.Equal(t, f.players[0].ID, turn.CurrentPlayerID)
	assert.Equal(t, 0, turn.TurnIndex)
	assert.Equal(t, 1, turn.TurnNumber)
	assert.Equal(t, SessionActive, f.session.State)
}

func TestCreateSessionRequiresAPlayer(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.turns.CreateSession(f.ctx, "Empty", []string{" ", ""})
	require.ErrorIs(t, err, ErrNoPlayers)

	sessions, err := f.repo.ListSessions(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestNextTurnWrapsAroundRoster(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D", "E")

	for step := 1; step <= 6; step++ {
		before := f.turn(t)

		next, turn, err := f.turns.NextTurn(f.ctx, f.session.ID)
		require.NoError(t, err)

		assert.Equal(t, (before.TurnIndex+1)%5, turn.TurnIndex)
		assert.Equal(t, before.TurnNumber+1, turn.TurnNumber)
		assert.Equal(t, f.players[turn.TurnIndex].ID, next.ID)
	}

	// Five players, six advances: index 4 wrapped back to 0 and on to 1.
	assert.Equal(t, 1, f.turn(t).TurnIndex)
	assert.Equal(t, 7, f.turn(t).TurnNumber)
}

func TestNextTurnFromLastPlayerWrapsToFirst(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D", "E")

	_, err := f.turns.SetCurrentPlayer(f.ctx, f.session.ID, f.players[4].ID)
	require.NoError(t, err)
	require.Equal(t, 4, f.turn(t).TurnIndex)

	next, turn, err := f.turns.NextTurn(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, turn.TurnIndex)
	assert.Equal(t, f.players[0].ID, next.ID)
}

func TestNextTurnLooksUpCurrentPlayerAfterRosterChange(t *testing.T) {
	f := newFixture(t, "A", "B")

	_, _, err := f.turns.NextTurn(f.ctx, f.session.ID)
	require.NoError(t, err)
	require.Equal(t, f.players[1].ID, f.turn(t).CurrentPlayerID)

	added, err := f.turns.AddPlayer(f.ctx, f.session.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, 2, added.OrderPosition)
	assert.Equal(t, f.players[1].ID, f.turn(t).CurrentPlayerID, "adding a player must not move the turn")

	next, turn, err := f.turns.NextTurn(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, added.ID, next.ID)
	assert.Equal(t, 2, turn.TurnIndex)
}

func TestNextTurnWithoutTurnRecord(t *testing.T) {
	f := newFixture(t)

	s, err := f.repo.CreateSession(f.ctx, "bare")
	require.NoError(t, err)
	_, err = f.repo.InsertPlayer(f.ctx, s.ID, "Ana", 0)
	require.NoError(t, err)

	_, _, err = f.turns.NextTurn(f.ctx, s.ID)
	require.ErrorIs(t, err, ErrNoTurnState)
}

func TestNextTurnWithoutPlayers(t *testing.T) {
	f := newFixture(t)

	s, err := f.repo.CreateSession(f.ctx, "bare")
	require.NoError(t, err)

	_, _, err = f.turns.NextTurn(f.ctx, s.ID)
	require.ErrorIs(t, err, ErrNoPlayers)
}

func TestSetCurrentPlayer(t *testing.T) {
	f := newFixture(t, "A", "B", "C")

	turn, err := f.turns.SetCurrentPlayer(f.ctx, f.session.ID, f.players[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, turn.TurnIndex)
	assert.Equal(t, 2, turn.TurnNumber)

	again, err := f.turns.SetCurrentPlayer(f.ctx, f.session.ID, f.players[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TurnNumber, "choosing the current player is not a new turn")

	_, others, err := f.turns.CreateSession(f.ctx, "Other", []string{"Z"})
	require.NoError(t, err)
	_, err = f.turns.SetCurrentPlayer(f.ctx, f.session.ID, others[0].ID)
	require.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = f.turns.SetCurrentPlayer(f.ctx, f.session.ID, "missing")
	require.ErrorIs(t, err, ErrPlayerNotFound)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddPlayerRejectsBlankName(t *testing.T) {
	f := newFixture(t, "A")

	_, err := f.turns.AddPlayer(f.ctx, f.session.ID, "   ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPauseResumeEnd(t *testing.T) {
	f := newFixture(t, "A", "B")
	before := f.turn(t)

	require.NoError(t, f.turns.Pause(f.ctx, f.session.ID))
	require.ErrorIs(t, f.turns.Pause(f.ctx, f.session.ID), ErrInvalidState)

	_, _, err := f.turns.NextTurn(f.ctx, f.session.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, before, f.turn(t), "pausing must not touch the turn")

	status, err := f.turns.Status(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaused, status.Phase)

	require.NoError(t, f.turns.Resume(f.ctx, f.session.ID))
	require.ErrorIs(t, f.turns.Resume(f.ctx, f.session.ID), ErrInvalidState)

	require.NoError(t, f.turns.End(f.ctx, f.session.ID))
	require.ErrorIs(t, f.turns.End(f.ctx, f.session.ID), ErrInvalidState)
	require.ErrorIs(t, f.turns.Resume(f.ctx, f.session.ID), ErrInvalidState)

	_, err = f.turns.AddPlayer(f.ctx, f.session.ID, "Late")
	require.ErrorIs(t, err, ErrInvalidState)

	status, err = f.turns.Status(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, status.Phase)
}

func TestStatusReportsTurnProgress(t *testing.T) {
	f := newFixture(t, "Ana", "Beto")

	status, err := f.turns.Status(f.ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, PhaseNoSession, status.Phase)

	status, err = f.turns.Status(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, status.Phase)
	assert.Equal(t, 2, status.PlayerCount)
	require.NotNil(t, status.CurrentPlayer)
	assert.Equal(t, "Ana", status.CurrentPlayer.Name)
	assert.False(t, status.TurnStarted)
	assert.False(t, status.QuizDoneInTurn)

	_, err = f.scoring.StartTurn(f.ctx, f.players[0].ID, f.session.ID, 1)
	require.NoError(t, err)
	_, err = f.scoring.SelectNewTreat(f.ctx, f.players[0].ID, f.session.ID, "quiz-1")
	require.NoError(t, err)

	status, err = f.turns.Status(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.True(t, status.TurnStarted)
	assert.True(t, status.QuizDoneInTurn)
}

func TestListSessionsNewestFirst(t *testing.T) {
	f := newFixture(t, "Ana", "Beto")

	second, _, err := f.turns.CreateSession(f.ctx, "Second", []string{"Carla"})
	require.NoError(t, err)

	summaries, err := f.turns.ListSessions(f.ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, second.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].PlayerCount)
	assert.Equal(t, "Carla", summaries[0].CurrentPlayerName)

	assert.Equal(t, f.session.ID, summaries[1].ID)
	assert.Equal(t, 2, summaries[1].PlayerCount)
	assert.Equal(t, "Ana", summaries[1].CurrentPlayerName)
}
