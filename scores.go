package main

import "sort"

// PlayerScore is one row of a ranking table.
type PlayerScore struct {
	PlayerID    string      `json:"playerId"`
	PlayerName  string      `json:"playerName"`
	Score       int         `json:"score"`
	Rank        int         `json:"rank"`
	RoundScores []int       `json:"roundScores,omitempty"`
	Stats       PlayerStats `json:"stats,omitempty"`
}

// rankScores sorts descending by score and assigns standard competition
// ranks: tied players share the higher rank, and the next distinct score
// ranks 1 + the number of players ahead (1,2,2,4).
func rankScores(scores []PlayerScore) []PlayerScore {
	out := make([]PlayerScore, len(scores))
	copy(out, scores)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerName < out[j].PlayerName
	})

	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}

	return out
}

// roundRanking ranks the given players by their current round score.
func roundRanking(players []*Player) []PlayerScore {
	scores := make([]PlayerScore, 0, len(players))
	for _, p := range players {
		if p.Role != RolePlayer {
			continue
		}
		scores = append(scores, PlayerScore{
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Score:      p.RoundScore,
		})
	}
	return rankScores(scores)
}

// finalRanking ranks the given players by their cumulative session score,
// attaching the per-round score history.
func finalRanking(players []*Player, roundScores map[string][]int) []PlayerScore {
	scores := make([]PlayerScore, 0, len(players))
	for _, p := range players {
		if p.Role != RolePlayer {
			continue
		}
		scores = append(scores, PlayerScore{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			Score:       p.Score,
			RoundScores: roundScores[p.ID],
			Stats:       p.Stats,
		})
	}
	return rankScores(scores)
}
