/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type queries struct {
	db querier
}

const sessionColumns = `id, session_name, state, created_at, updated_at`

func scanSession(row pgx.Row) (*trickortreat.Session, error) {
	var s trickortreat.Session

	err := row.Scan(&s.ID, &s.Name, &s.State, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (q *queries) CreateSession(ctx context.Context, name string) (*trickortreat.Session, error) {
	s, err := scanSession(q.db.QueryRow(ctx,
		`INSERT INTO game_sessions (id, session_name, state)
		 VALUES ($1, $2, $3)
		 RETURNING `+sessionColumns,
		uuid.NewString(), name, trickortreat.SessionActive,
	))
	if err != nil {
		return nil, mapErr(err)
	}

	return s, nil
}

func (q *queries) GetSession(ctx context.Context, sessionID string) (*trickortreat.Session, error) {
	s, err := scanSession(q.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, mapErr(err))
	}

	return s, nil
}

func (q *queries) ListSessions(ctx context.Context) ([]trickortreat.Session, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var sessions []trickortreat.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}

	return sessions, mapErr(rows.Err())
}

func (q *queries) SetSessionState(ctx context.Context, sessionID string, state trickortreat.SessionState) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE game_sessions SET state = $2, updated_at = now() WHERE id = $1`,
		sessionID, state)
	if err != nil {
		return mapErr(err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, trickortreat.ErrNotFound)
	}

	return nil
}

const playerColumns = `id, session_id, name, order_position, current_score,
	total_tricks_selected, total_treats_selected, total_tricks_deserted,
	total_treats_completed, total_treats_deserted, score, version, created_at, updated_at`

func scanPlayer(row pgx.Row) (*trickortreat.Player, error) {
	var (
		p      trickortreat.Player
		legacy *int
	)

	err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.OrderPosition, &p.Score,
		&p.TricksSelected, &p.TreatsSelected, &p.TricksDeserted,
		&p.TreatsComplete, &p.TreatsDeserted, &legacy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	foldLegacy(&p, legacy)

	return &p, nil
}

// foldLegacy moves the flat score of a pre-version-2 row into Score.
func foldLegacy(p *trickortreat.Player, legacyScore *int) {
	if p.Version < trickortreat.PlayerVersion && p.Score == 0 && legacyScore != nil {
		p.Score = *legacyScore
	}

	p.Version = trickortreat.PlayerVersion
}

func (q *queries) InsertPlayer(ctx context.Context, sessionID, name string, orderPosition int) (*trickortreat.Player, error) {
	p, err := scanPlayer(q.db.QueryRow(ctx,
		`INSERT INTO players (id, session_id, name, order_position, version)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+playerColumns,
		uuid.NewString(), sessionID, name, orderPosition, trickortreat.PlayerVersion,
	))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, mapErr(err))
	}

	return p, nil
}

func (q *queries) GetPlayer(ctx context.Context, playerID string) (*trickortreat.Player, error) {
	p, err := scanPlayer(q.db.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", trickortreat.ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return nil, mapErr(err)
	}

	return p, nil
}

func (q *queries) GetPlayers(ctx context.Context, sessionID string) ([]trickortreat.Player, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+playerColumns+` FROM players
		 WHERE session_id = $1
		 ORDER BY order_position, created_at, id`,
		sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var players []trickortreat.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}

	return players, mapErr(rows.Err())
}

// AdjustPlayerScore folds a legacy score in on first write, the same way
// scanPlayer does on read.
func (q *queries) AdjustPlayerScore(ctx context.Context, playerID string, delta int) (int, error) {
	var score int

	err := q.db.QueryRow(ctx,
		`UPDATE players
		 SET current_score = CASE
		         WHEN version < $3 AND current_score = 0 THEN COALESCE(score, 0)
		         ELSE current_score
		     END + $2,
		     version = $3,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING current_score`,
		playerID, delta, trickortreat.PlayerVersion,
	).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", trickortreat.ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return 0, mapErr(err)
	}

	return score, nil
}

var counterColumns = map[trickortreat.Counter]string{
	trickortreat.CounterTricksSelected: "total_tricks_selected",
	trickortreat.CounterTreatsSelected: "total_treats_selected",
	trickortreat.CounterTricksDeserted: "total_tricks_deserted",
	trickortreat.CounterTreatsComplete: "total_treats_completed",
	trickortreat.CounterTreatsDeserted: "total_treats_deserted",
}

func (q *queries) IncrementCounter(ctx context.Context, playerID string, counter trickortreat.Counter) error {
	column, ok := counterColumns[counter]
	if !ok {
		return fmt.Errorf("unknown counter %q", counter)
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE players SET `+column+` = `+column+` + 1, updated_at = now() WHERE id = $1`,
		playerID)
	if err != nil {
		return mapErr(err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", trickortreat.ErrPlayerNotFound, playerID)
	}

	return nil
}

func (q *queries) GetTurn(ctx context.Context, sessionID string) (*trickortreat.Turn, error) {
	var t trickortreat.Turn

	err := q.db.QueryRow(ctx,
		`SELECT session_id, current_player_id, turn_index, turn_number, updated_at
		 FROM turns WHERE session_id = $1`,
		sessionID,
	).Scan(&t.SessionID, &t.CurrentPlayerID, &t.TurnIndex, &t.TurnNumber, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("turn for session %s: %w", sessionID, mapErr(err))
	}

	return &t, nil
}

func (q *queries) UpdateTurn(ctx context.Context, sessionID, currentPlayerID string, turnIndex, turnNumber int) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO turns (session_id, current_player_id, turn_index, turn_number, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (session_id) DO UPDATE
		 SET current_player_id = EXCLUDED.current_player_id,
		     turn_index = EXCLUDED.turn_index,
		     turn_number = EXCLUDED.turn_number,
		     updated_at = EXCLUDED.updated_at`,
		sessionID, currentPlayerID, turnIndex, turnNumber)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, mapErr(err))
	}

	return nil
}

const trickColumns = `id, player_id, session_id, quiz_id, activated_at, deserted_at,
	is_active, points_generated, last_point_turn`

func scanTrick(row pgx.Row) (*trickortreat.PlayerTrick, error) {
	var t trickortreat.PlayerTrick

	err := row.Scan(&t.ID, &t.PlayerID, &t.SessionID, &t.QuizID, &t.ActivatedAt, &t.DesertedAt,
		&t.Active, &t.PointsGenerated, &t.LastPointTurn)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (q *queries) GetTrick(ctx context.Context, trickID string) (*trickortreat.PlayerTrick, error) {
	t, err := scanTrick(q.db.QueryRow(ctx,
		`SELECT `+trickColumns+` FROM player_tricks WHERE id = $1`, trickID))
	if err != nil {
		return nil, fmt.Errorf("trick %s: %w", trickID, mapErr(err))
	}

	return t, nil
}

func (q *queries) GetTricks(ctx context.Context, playerID, sessionID string) ([]trickortreat.PlayerTrick, error) {
	return q.tricks(ctx,
		`SELECT `+trickColumns+` FROM player_tricks
		 WHERE player_id = $1 AND session_id = $2
		 ORDER BY activated_at DESC, id`,
		playerID, sessionID)
}

func (q *queries) GetActiveTricks(ctx context.Context, playerID, sessionID string) ([]trickortreat.PlayerTrick, error) {
	return q.tricks(ctx,
		`SELECT `+trickColumns+` FROM player_tricks
		 WHERE player_id = $1 AND session_id = $2 AND is_active
		 ORDER BY activated_at DESC, id`,
		playerID, sessionID)
}

func (q *queries) tricks(ctx context.Context, sql string, args ...any) ([]trickortreat.PlayerTrick, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var tricks []trickortreat.PlayerTrick
	for rows.Next() {
		t, err := scanTrick(rows)
		if err != nil {
			return nil, err
		}
		tricks = append(tricks, *t)
	}

	return tricks, mapErr(rows.Err())
}

func (q *queries) InsertTrick(ctx context.Context, playerID, sessionID, quizID string, turnNumber int) (*trickortreat.PlayerTrick, error) {
	t, err := scanTrick(q.db.QueryRow(ctx,
		`INSERT INTO player_tricks (id, player_id, session_id, quiz_id, last_point_turn)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+trickColumns,
		uuid.NewString(), playerID, sessionID, quizID, turnNumber,
	))
	if err != nil {
		return nil, mapErr(err)
	}

	return t, nil
}

// UpdateTrick refuses to deactivate a trick that is no longer active.
func (q *queries) UpdateTrick(ctx context.Context, trickID string, active bool, lastPointTurn, pointsDelta int) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE player_tricks
		 SET is_active = $2::boolean,
		     last_point_turn = $3,
		     points_generated = points_generated + $4,
		     deserted_at = CASE WHEN $2::boolean THEN deserted_at ELSE now() END,
		     updated_at = now()
		 WHERE id = $1 AND (is_active OR $2::boolean)`,
		trickID, active, lastPointTurn, pointsDelta)
	if err != nil {
		return mapErr(err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := q.GetTrick(ctx, trickID); err != nil {
		return err
	}

	return fmt.Errorf("%w: trick %s is not active", trickortreat.ErrInvalidState, trickID)
}

const treatColumns = `id, player_id, session_id, quiz_id, selected_at, completed_at,
	deserted_at, status, points_awarded`

func scanTreat(row pgx.Row) (*trickortreat.PlayerTreat, error) {
	var t trickortreat.PlayerTreat

	err := row.Scan(&t.ID, &t.PlayerID, &t.SessionID, &t.QuizID, &t.SelectedAt, &t.CompletedAt,
		&t.DesertedAt, &t.Status, &t.PointsAwarded)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (q *queries) GetTreat(ctx context.Context, treatID string) (*trickortreat.PlayerTreat, error) {
	t, err := scanTreat(q.db.QueryRow(ctx,
		`SELECT `+treatColumns+` FROM player_treats WHERE id = $1`, treatID))
	if err != nil {
		return nil, fmt.Errorf("treat %s: %w", treatID, mapErr(err))
	}

	return t, nil
}

func (q *queries) GetTreats(ctx context.Context, playerID, sessionID string) ([]trickortreat.PlayerTreat, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+treatColumns+` FROM player_treats
		 WHERE player_id = $1 AND session_id = $2
		 ORDER BY selected_at DESC, id`,
		playerID, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var treats []trickortreat.PlayerTreat
	for rows.Next() {
		t, err := scanTreat(rows)
		if err != nil {
			return nil, err
		}
		treats = append(treats, *t)
	}

	return treats, mapErr(rows.Err())
}

func (q *queries) InsertTreat(ctx context.Context, playerID, sessionID, quizID string) (*trickortreat.PlayerTreat, error) {
	t, err := scanTreat(q.db.QueryRow(ctx,
		`INSERT INTO player_treats (id, player_id, session_id, quiz_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+treatColumns,
		uuid.NewString(), playerID, sessionID, quizID, trickortreat.TreatPending,
	))
	if err != nil {
		return nil, mapErr(err)
	}

	return t, nil
}

// UpdateTreatStatus only moves a pending treat; the status check and the
// write are one statement.
func (q *queries) UpdateTreatStatus(ctx context.Context, treatID string, status trickortreat.TreatStatus, pointsAwarded int) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: cannot move treat %s to %s", trickortreat.ErrInvalidState, treatID, status)
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE player_treats
		 SET status = $2,
		     points_awarded = $3,
		     completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END,
		     deserted_at = CASE WHEN $2 = 'deserted' THEN now() ELSE deserted_at END,
		     updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		treatID, string(status), pointsAwarded)
	if err != nil {
		return mapErr(err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	t, err := q.GetTreat(ctx, treatID)
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: treat %s is %s", trickortreat.ErrInvalidState, treatID, t.Status)
}

func (q *queries) AppendTurnHistory(ctx context.Context, entry trickortreat.TurnHistory) error {
	var quiz *string
	if entry.QuizID != "" {
		quiz = &entry.QuizID
	}

	_, err := q.db.Exec(ctx,
		`INSERT INTO turn_history (session_id, player_id, turn_number, action_taken, quiz_selected)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.SessionID, entry.PlayerID, entry.TurnNumber, string(entry.Action), quiz)

	return mapErr(err)
}

func (q *queries) QueryTurnHistory(ctx context.Context, sessionID, playerID string, turnNumber int, kinds ...trickortreat.ActionKind) (bool, error) {
	actions := make([]string, 0, len(kinds))
	for _, k := range kinds {
		actions = append(actions, string(k))
	}

	var found bool

	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM turn_history
		     WHERE session_id = $1 AND player_id = $2 AND turn_number = $3
		       AND (cardinality($4::text[]) = 0 OR action_taken = ANY($4::text[]))
		 )`,
		sessionID, playerID, turnNumber, actions,
	).Scan(&found)

	return found, mapErr(err)
}
