/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"time"
)

// SessionState is the lifecycle state of a game session.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionPaused SessionState = "paused"
	SessionEnded  SessionState = "ended"
)

// Session is a single game night: a named, ordered roster of players taking turns.
type Session struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s Session) Active() bool {
	return s.State == SessionActive
}

// PlayerVersion is bumped whenever the stored player shape changes.
const PlayerVersion = 2

// Player is the versioned player record. Older rows kept their points in a
// flat "score" column; storage folds that into Score before a Player ever
// reaches the engines.
type Player struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Name           string    `json:"name"`
	OrderPosition  int       `json:"order_position"`
	Score          int       `json:"current_score"`
	TricksSelected int       `json:"total_tricks_selected"`
	TreatsSelected int       `json:"total_treats_selected"`
	TricksDeserted int       `json:"total_tricks_deserted"`
	TreatsComplete int       `json:"total_treats_completed"`
	TreatsDeserted int       `json:"total_treats_deserted"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Counter names one of the cumulative per-player counters.
type Counter string

const (
	CounterTricksSelected Counter = "tricks_selected"
	CounterTreatsSelected Counter = "treats_selected"
	CounterTricksDeserted Counter = "tricks_deserted"
	CounterTreatsComplete Counter = "treats_completed"
	CounterTreatsDeserted Counter = "treats_deserted"
)

// Turn is the single rotation record of a session.
type Turn struct {
	SessionID       string    `json:"session_id"`
	CurrentPlayerID string    `json:"current_player_id"`
	TurnIndex       int       `json:"turn_index"`
	TurnNumber      int       `json:"turn_number"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PlayerTrick is one activation of a trick. It earns points every turn its
// owner starts until it is deserted.
type PlayerTrick struct {
	ID              string     `json:"id"`
	PlayerID        string     `json:"player_id"`
	SessionID       string     `json:"session_id"`
	QuizID          string     `json:"quiz_id"`
	ActivatedAt     time.Time  `json:"activated_at"`
	DesertedAt      *time.Time `json:"deserted_at"`
	Active          bool       `json:"is_active"`
	PointsGenerated int        `json:"points_generated"`
	LastPointTurn   int        `json:"last_point_turn"`
}

// TreatStatus is the resolution state of a treat.
type TreatStatus string

const (
	TreatPending   TreatStatus = "pending"
	TreatCompleted TreatStatus = "completed"
	TreatDeserted  TreatStatus = "deserted"
)

// PlayerTreat is one selected treat. It resolves exactly once.
type PlayerTreat struct {
	ID            string      `json:"id"`
	PlayerID      string      `json:"player_id"`
	SessionID     string      `json:"session_id"`
	QuizID        string      `json:"quiz_id"`
	SelectedAt    time.Time   `json:"selected_at"`
	CompletedAt   *time.Time  `json:"completed_at"`
	DesertedAt    *time.Time  `json:"deserted_at"`
	Status        TreatStatus `json:"status"`
	PointsAwarded int         `json:"points_awarded"`
}

// ActionKind is the kind of a turn history row.
type ActionKind string

const (
	ActionTurnStart     ActionKind = "turn_start"
	ActionNewTrick      ActionKind = "new_trick"
	ActionNewTreat      ActionKind = "new_treat"
	ActionCompleteTreat ActionKind = "complete_treat"
	ActionDesertTrick   ActionKind = "desert_trick"
	ActionDesertTreat   ActionKind = "desert_treat"
)

// SelectsQuiz reports whether the action counts against the one-quiz-per-turn rule.
func (a ActionKind) SelectsQuiz() bool {
	return a == ActionNewTrick || a == ActionNewTreat
}

// TurnHistory is an append-only log row.
type TurnHistory struct {
	SessionID  string     `json:"session_id"`
	PlayerID   string     `json:"player_id"`
	TurnNumber int        `json:"turn_number"`
	Action     ActionKind `json:"action_taken"`
	QuizID     string     `json:"quiz_selected,omitempty"`
	At         time.Time  `json:"created_at"`
}

// SessionSummary is a session as shown in a session list.
type SessionSummary struct {
	Session
	PlayerCount       int    `json:"player_count"`
	CurrentPlayerID   string `json:"current_player_id,omitempty"`
	CurrentPlayerName string `json:"current_player_name,omitempty"`
	TurnIndex         int    `json:"turn_index"`
}
