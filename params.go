package main

// resolveParams merges override layers over the system defaults. Later
// layers win; nil layers and nil fields pass through.
func resolveParams(system ModeParams, layers ...*ParamOverrides) ModeParams {
	out := system

	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.SongDuration != nil {
			out.SongDuration = *l.SongDuration
		}
		if l.AnswerTimer != nil {
			out.AnswerTimer = *l.AnswerTimer
		}
		if l.NumChoices != nil {
			out.NumChoices = *l.NumChoices
		}
		if l.PointsTitle != nil {
			out.PointsTitle = *l.PointsTitle
		}
		if l.PointsArtist != nil {
			out.PointsArtist = *l.PointsArtist
		}
		if l.PenaltyEnabled != nil {
			out.PenaltyEnabled = *l.PenaltyEnabled
		}
		if l.PenaltyAmount != nil {
			out.PenaltyAmount = *l.PenaltyAmount
		}
		if l.AllowRebuzz != nil {
			out.AllowRebuzz = *l.AllowRebuzz
		}
		if l.ManualValidation != nil {
			out.ManualValidation = *l.ManualValidation
		}
		if l.FuzzyMatch != nil {
			out.FuzzyMatch = *l.FuzzyMatch
		}
		if l.LevenshteinDistance != nil {
			out.LevenshteinDistance = *l.LevenshteinDistance
		}
	}

	return out
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
