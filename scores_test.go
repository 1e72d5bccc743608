package main

import "testing"

func TestRankScoresCompetitionRanking(t *testing.T) {
	ranked := rankScores([]PlayerScore{
		{PlayerID: "a", PlayerName: "alice", Score: 30},
		{PlayerID: "b", PlayerName: "bob", Score: 50},
		{PlayerID: "c", PlayerName: "carol", Score: 30},
		{PlayerID: "d", PlayerName: "dave", Score: 10},
	})

	wantRanks := map[string]int{"b": 1, "a": 2, "c": 2, "d": 4}
	for _, ps := range ranked {
		if ps.Rank != wantRanks[ps.PlayerID] {
			t.Errorf("player %s ranked %d, want %d", ps.PlayerID, ps.Rank, wantRanks[ps.PlayerID])
		}
	}

	if ranked[0].PlayerID != "b" {
		t.Errorf("expected bob first, got %s", ranked[0].PlayerID)
	}
}

func TestRankScoresNegative(t *testing.T) {
	ranked := rankScores([]PlayerScore{
		{PlayerID: "a", PlayerName: "alice", Score: -5},
		{PlayerID: "b", PlayerName: "bob", Score: 0},
	})

	if ranked[0].PlayerID != "b" || ranked[0].Rank != 1 {
		t.Errorf("expected bob first with rank 1, got %s rank %d", ranked[0].PlayerID, ranked[0].Rank)
	}
	if ranked[1].PlayerID != "a" || ranked[1].Rank != 2 {
		t.Errorf("expected alice second with rank 2, got %s rank %d", ranked[1].PlayerID, ranked[1].Rank)
	}
}

func TestRoundRankingSkipsMaster(t *testing.T) {
	players := []*Player{
		{ID: "m", Name: "host", Role: RoleMaster, RoundScore: 100},
		{ID: "a", Name: "alice", Role: RolePlayer, RoundScore: 20},
		{ID: "b", Name: "bob", Role: RolePlayer, RoundScore: 10},
	}

	ranked := roundRanking(players)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked players, got %d", len(ranked))
	}
	if ranked[0].PlayerID != "a" || ranked[0].Score != 20 {
		t.Errorf("expected alice first with 20, got %s with %d", ranked[0].PlayerID, ranked[0].Score)
	}
}

func TestFinalRankingCarriesHistory(t *testing.T) {
	players := []*Player{
		{ID: "a", Name: "alice", Role: RolePlayer, Score: 35, Stats: PlayerStats{Buzzes: 4}},
		{ID: "b", Name: "bob", Role: RolePlayer, Score: 15},
	}
	history := map[string][]int{
		"a": {20, 15},
		"b": {5, 10},
	}

	ranked := finalRanking(players, history)
	if ranked[0].PlayerID != "a" {
		t.Fatalf("expected alice first, got %s", ranked[0].PlayerID)
	}
	if len(ranked[0].RoundScores) != 2 || ranked[0].RoundScores[0] != 20 {
		t.Errorf("unexpected round history: %v", ranked[0].RoundScores)
	}
	if ranked[0].Stats.Buzzes != 4 {
		t.Errorf("expected stats to carry over, got %+v", ranked[0].Stats)
	}
}
