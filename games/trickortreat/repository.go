/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"context"
)

// Queries is the plain CRUD surface the engines need from persistent storage.
// Point computation never lives behind it.
type Queries interface {
	CreateSession(ctx context.Context, name string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	SetSessionState(ctx context.Context, sessionID string, state SessionState) error

	InsertPlayer(ctx context.Context, sessionID, name string, orderPosition int) (*Player, error)
	GetPlayer(ctx context.Context, playerID string) (*Player, error)
	// GetPlayers returns the session roster ordered by position.
	GetPlayers(ctx context.Context, sessionID string) ([]Player, error)
	AdjustPlayerScore(ctx context.Context, playerID string, delta int) (int, error)
	IncrementCounter(ctx context.Context, playerID string, counter Counter) error

	// GetTurn returns ErrNotFound when the session has no turn record yet.
	GetTurn(ctx context.Context, sessionID string) (*Turn, error)
	// UpdateTurn creates the turn record when it is missing.
	UpdateTurn(ctx context.Context, sessionID, currentPlayerID string, turnIndex, turnNumber int) error

	GetTrick(ctx context.Context, trickID string) (*PlayerTrick, error)
	GetTricks(ctx context.Context, playerID, sessionID string) ([]PlayerTrick, error)
	GetActiveTricks(ctx context.Context, playerID, sessionID string) ([]PlayerTrick, error)
	InsertTrick(ctx context.Context, playerID, sessionID, quizID string, turnNumber int) (*PlayerTrick, error)
	// UpdateTrick sets the active flag and last credited turn and adds
	// pointsDelta to the generated points. Deactivating an inactive trick
	// fails with ErrInvalidState.
	UpdateTrick(ctx context.Context, trickID string, active bool, lastPointTurn, pointsDelta int) error

	GetTreat(ctx context.Context, treatID string) (*PlayerTreat, error)
	GetTreats(ctx context.Context, playerID, sessionID string) ([]PlayerTreat, error)
	InsertTreat(ctx context.Context, playerID, sessionID, quizID string) (*PlayerTreat, error)
	// UpdateTreatStatus resolves a pending treat. Any other current status
	// fails with ErrInvalidState and leaves the row untouched.
	UpdateTreatStatus(ctx context.Context, treatID string, status TreatStatus, pointsAwarded int) error

	// AppendTurnHistory fails with ErrDuplicateAction on a second turn_start,
	// or a second quiz selection, for the same session, player and turn number.
	AppendTurnHistory(ctx context.Context, entry TurnHistory) error
	QueryTurnHistory(ctx context.Context, sessionID, playerID string, turnNumber int, kinds ...ActionKind) (bool, error)
}

// Repository is Queries plus atomic multi-statement writes.
type Repository interface {
	Queries

	// WithTx runs fn against a transactional view. Every write made through
	// q commits together when fn returns nil and is discarded otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
