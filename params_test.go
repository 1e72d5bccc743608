package main

import "testing"

func TestResolveParamsLayering(t *testing.T) {
	system := ModeParams{
		SongDuration: 30,
		AnswerTimer:  10,
		NumChoices:   4,
		PointsTitle:  10,
		PointsArtist: 5,
		AllowRebuzz:  true,
	}

	modeDefaults := &ParamOverrides{
		ManualValidation: boolPtr(true),
		NumChoices:       intPtr(6),
	}

	roundOverrides := &ParamOverrides{
		SongDuration: intPtr(45),
		NumChoices:   intPtr(3),
	}

	got := resolveParams(system, modeDefaults, roundOverrides)

	if got.SongDuration != 45 {
		t.Errorf("SongDuration = %d, want 45", got.SongDuration)
	}
	if got.NumChoices != 3 {
		t.Errorf("NumChoices = %d, want 3 (round overrides mode)", got.NumChoices)
	}
	if !got.ManualValidation {
		t.Error("ManualValidation should come through from mode defaults")
	}
	if got.AnswerTimer != 10 {
		t.Errorf("AnswerTimer = %d, want system default 10", got.AnswerTimer)
	}
	if !got.AllowRebuzz {
		t.Error("AllowRebuzz should pass through from system defaults")
	}
}

func TestResolveParamsNilLayers(t *testing.T) {
	system := ModeParams{SongDuration: 30, PointsTitle: 10}

	got := resolveParams(system, nil, nil)
	if got != system {
		t.Errorf("nil layers should leave system defaults untouched: %+v", got)
	}
}

func TestResolveParamsZeroOverride(t *testing.T) {
	system := ModeParams{PenaltyEnabled: true, PenaltyAmount: 5}

	got := resolveParams(system, &ParamOverrides{
		PenaltyEnabled: boolPtr(false),
		PenaltyAmount:  intPtr(0),
	})

	if got.PenaltyEnabled {
		t.Error("explicit false override should win over system true")
	}
	if got.PenaltyAmount != 0 {
		t.Errorf("explicit zero override should win, got %d", got.PenaltyAmount)
	}
}
