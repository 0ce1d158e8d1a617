package trickortreat

import (
	"cmp"
	"context"
	"slices"
)

// LeaderboardEntry is one player's standing within a session.
type LeaderboardEntry struct {
	PlayerID        string `json:"player_id"`
	PlayerName      string `json:"player_name"`
	OrderPosition   int    `json:"order_position"`
	CurrentScore    int    `json:"current_score"`
	ActiveTricks    int    `json:"active_tricks_count"`
	TrickPoints     int    `json:"total_tricks_points"`
	CompletedTreats int    `json:"completed_treats_count"`
	PendingTreats   int    `json:"pending_treats_count"`
	DesertedTreats  int    `json:"deserted_treats_count"`
	TreatPoints     int    `json:"total_treats_points"`
	TricksSelected  int    `json:"total_tricks_selected"`
	TreatsSelected  int    `json:"total_treats_selected"`
	TricksDeserted  int    `json:"total_tricks_deserted"`
	TreatsCompleted int    `json:"total_treats_completed"`
	TreatsDeserted  int    `json:"total_treats_deserted"`
	Rank            int    `json:"rank"`
}

// Projector derives session standings from stored players, tricks and treats.
type Projector struct {
	repo Queries
}

func NewProjector(repo Queries) *Projector {
	return &Projector{repo: repo}
}

func (p *Projector) Leaderboard(ctx context.Context, sessionID string) ([]LeaderboardEntry, error) {
	if _, err := p.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	players, err := p.repo.GetPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(players))
	for _, player := range players {
		entry := LeaderboardEntry{
			PlayerID:        player.ID,
			PlayerName:      player.Name,
			OrderPosition:   player.OrderPosition,
			CurrentScore:    player.Score,
			TricksSelected:  player.TricksSelected,
			TreatsSelected:  player.TreatsSelected,
			TricksDeserted:  player.TricksDeserted,
			TreatsCompleted: player.TreatsComplete,
			TreatsDeserted:  player.TreatsDeserted,
		}

		tricks, err := p.repo.GetActiveTricks(ctx, player.ID, sessionID)
		if err != nil {
			return nil, err
		}

		for _, t := range tricks {
			entry.ActiveTricks++
			entry.TrickPoints += t.PointsGenerated
		}

		treats, err := p.repo.GetTreats(ctx, player.ID, sessionID)
		if err != nil {
			return nil, err
		}

		for _, t := range treats {
			switch t.Status {
			case TreatCompleted:
				entry.CompletedTreats++
			case TreatPending:
				entry.PendingTreats++
			case TreatDeserted:
				entry.DesertedTreats++
			}
			entry.TreatPoints += t.PointsAwarded
		}

		entries = append(entries, entry)
	}

	return Rank(entries), nil
}

// Rank orders entries by score, then active trick points, then seat, and
// assigns competition ranks on score alone: equal scores share a rank and
// the next score takes its position in the list (10, 10, 7 rank 1, 1, 3).
func Rank(entries []LeaderboardEntry) []LeaderboardEntry {
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.CurrentScore, a.CurrentScore),
			cmp.Compare(b.TrickPoints, a.TrickPoints),
			cmp.Compare(a.OrderPosition, b.OrderPosition),
		)
	})

	for i := range entries {
		if i > 0 && entries[i].CurrentScore == entries[i-1].CurrentScore {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}

	return entries
}
