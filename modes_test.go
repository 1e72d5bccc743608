package main

import "testing"

func testParams() ModeParams {
	return ModeParams{
		SongDuration:        30,
		AnswerTimer:         10,
		NumChoices:          4,
		PointsTitle:         10,
		PointsArtist:        5,
		AllowRebuzz:         true,
		FuzzyMatch:          true,
		LevenshteinDistance: 2,
	}
}

func testRoundSong(params ModeParams) *RoundSong {
	return &RoundSong{
		Index: 0,
		Song: &Song{
			ID:     "s1",
			Title:  "Bohemian Rhapsody",
			Artist: "Queen",
		},
		Status:         SongPlaying,
		LockedOut:      make(map[string]bool),
		BuzzTimestamps: make(map[string]int64),
		Params:         params,
	}
}

func TestModeRegistry(t *testing.T) {
	for _, tag := range []string{ModeFastBuzz, ModeBuzzAndChoice, ModeTextInput, ModePictureRound} {
		m := modeFor(tag)
		if m == nil {
			t.Fatalf("mode %q not registered", tag)
		}
		if m.Type() != tag {
			t.Errorf("mode %q reports type %q", tag, m.Type())
		}
	}
	if modeFor("nonsense") != nil {
		t.Error("unknown mode tag should resolve to nil")
	}
}

func TestFastBuzzValidation(t *testing.T) {
	m := modeFor(ModeFastBuzz)
	rs := testRoundSong(testParams())

	correct := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "correct"}, rs)
	if !correct.IsCorrect || correct.PointsAwarded != 10 {
		t.Errorf("correct validation: got %+v", correct)
	}

	wrong := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "wrong"}, rs)
	if wrong.IsCorrect || !wrong.LockOutPlayer {
		t.Errorf("wrong validation should lock out: got %+v", wrong)
	}
	if wrong.PointsAwarded != 0 {
		t.Errorf("no penalty configured, got %d points", wrong.PointsAwarded)
	}
}

func TestFastBuzzPenalty(t *testing.T) {
	m := modeFor(ModeFastBuzz)
	params := testParams()
	params.PenaltyEnabled = true
	params.PenaltyAmount = 3
	rs := testRoundSong(params)

	wrong := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "wrong"}, rs)
	if wrong.PointsAwarded != -3 {
		t.Errorf("expected -3 penalty, got %d", wrong.PointsAwarded)
	}
}

func TestBuzzChoiceArtistAnswer(t *testing.T) {
	m := modeFor(ModeBuzzAndChoice)
	rs := testRoundSong(testParams())
	rs.ArtistQuestion = &Question{Kind: AnswerArtist, Correct: "Queen", Choices: []string{"Queen", "ABBA"}}
	rs.TitleQuestion = &Question{Kind: AnswerTitle, Correct: "Bohemian Rhapsody", Choices: []string{"Bohemian Rhapsody", "Waterloo"}}

	res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerArtist, Value: "Queen"}, rs)
	if !res.IsCorrect || res.PointsAwarded != 5 {
		t.Errorf("correct artist: got %+v", res)
	}
	if !res.ShowTitleChoices {
		t.Error("title choices should follow a correct artist answer")
	}

	wrong := m.HandleAnswer(&Answer{PlayerID: "b", Type: AnswerArtist, Value: "ABBA"}, rs)
	if wrong.IsCorrect || wrong.PointsAwarded != 0 {
		t.Errorf("wrong artist: got %+v", wrong)
	}
	if !wrong.ShowTitleChoices {
		t.Error("title choices should follow even a wrong artist answer")
	}
}

func TestBuzzChoiceTitleTruthTable(t *testing.T) {
	m := modeFor(ModeBuzzAndChoice)

	cases := []struct {
		name          string
		artistCorrect bool
		titleValue    string
		wantPoints    int
		wantLockout   bool
	}{
		{"both correct", true, "Bohemian Rhapsody", 10, false},
		{"artist wrong, title correct", false, "Bohemian Rhapsody", 0, true},
		{"artist correct, title wrong", true, "Waterloo", 0, true},
		{"both wrong", false, "Waterloo", 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rs := testRoundSong(testParams())
			rs.ArtistQuestion = &Question{Kind: AnswerArtist, Correct: "Queen"}
			rs.TitleQuestion = &Question{Kind: AnswerTitle, Correct: "Bohemian Rhapsody"}
			rs.Answers = append(rs.Answers, &Answer{
				PlayerID:  "a",
				Type:      AnswerArtist,
				IsCorrect: c.artistCorrect,
			})

			res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: c.titleValue}, rs)
			if res.PointsAwarded != c.wantPoints {
				t.Errorf("points = %d, want %d", res.PointsAwarded, c.wantPoints)
			}
			if res.LockOutPlayer != c.wantLockout {
				t.Errorf("lockout = %t, want %t", res.LockOutPlayer, c.wantLockout)
			}
		})
	}
}

func TestBuzzChoiceBothWrongPenalty(t *testing.T) {
	m := modeFor(ModeBuzzAndChoice)
	params := testParams()
	params.PenaltyEnabled = true
	params.PenaltyAmount = 2
	rs := testRoundSong(params)
	rs.ArtistQuestion = &Question{Kind: AnswerArtist, Correct: "Queen"}
	rs.TitleQuestion = &Question{Kind: AnswerTitle, Correct: "Bohemian Rhapsody"}
	rs.Answers = append(rs.Answers, &Answer{PlayerID: "a", Type: AnswerArtist, IsCorrect: false})

	res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "Waterloo"}, rs)
	if res.PointsAwarded != -2 {
		t.Errorf("expected -2 penalty for a fully wrong pair, got %d", res.PointsAwarded)
	}
}

func TestBuzzChoiceEndsAfterBothAnswers(t *testing.T) {
	m := modeFor(ModeBuzzAndChoice)
	rs := testRoundSong(testParams())
	rs.ActivePlayerID = "a"
	rs.Answers = []*Answer{
		{PlayerID: "a", Type: AnswerArtist},
	}

	if m.ShouldEndSong(rs, 3) {
		t.Error("song should continue with only the artist answered")
	}

	rs.Answers = append(rs.Answers, &Answer{PlayerID: "a", Type: AnswerTitle})
	if !m.ShouldEndSong(rs, 3) {
		t.Error("song should end once the active player answered both questions")
	}
}

func TestTextInputFuzzyAnswer(t *testing.T) {
	m := modeFor(ModeTextInput)
	rs := testRoundSong(testParams())

	res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "bohemian rapsody"}, rs)
	if !res.IsCorrect || res.PointsAwarded != 10 {
		t.Errorf("fuzzy title within threshold: got %+v", res)
	}

	artist := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerArtist, Value: "quen"}, rs)
	if !artist.IsCorrect || artist.PointsAwarded != 5 {
		t.Errorf("fuzzy artist within threshold: got %+v", artist)
	}

	miss := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "something else"}, rs)
	if miss.IsCorrect || miss.LockOutPlayer {
		t.Errorf("wrong text answer should neither score nor lock out: got %+v", miss)
	}
}

func TestTextInputExactWhenFuzzyDisabled(t *testing.T) {
	m := modeFor(ModeTextInput)
	params := testParams()
	params.FuzzyMatch = false
	rs := testRoundSong(params)

	if res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "bohemian rapsody"}, rs); res.IsCorrect {
		t.Error("near miss should fail with fuzzy matching disabled")
	}
	if res := m.HandleAnswer(&Answer{PlayerID: "a", Type: AnswerTitle, Value: "Bohemian Rhapsody"}, rs); !res.IsCorrect {
		t.Error("exact match should pass with fuzzy matching disabled")
	}
}

func TestTextInputNeverBuzzes(t *testing.T) {
	m := modeFor(ModeTextInput)
	rs := testRoundSong(testParams())

	if m.CanBuzz("a", rs) {
		t.Error("text input mode must not allow buzzing")
	}
	if _, ok := m.BuzzPayload(rs); ok {
		t.Error("text input mode must reject buzz payloads")
	}
	if m.RequiresExclusiveAnswer() {
		t.Error("text input answers are open to every player")
	}
	if m.ShouldEndSong(rs, 2) {
		t.Error("text rounds end only on the song timer or a skip")
	}
}

func TestBaseCanBuzzRules(t *testing.T) {
	m := modeFor(ModeFastBuzz)
	rs := testRoundSong(testParams())

	if !m.CanBuzz("a", rs) {
		t.Error("open song should accept a buzz")
	}

	rs.LockedOut["a"] = true
	if m.CanBuzz("a", rs) {
		t.Error("locked-out player must not buzz")
	}

	rs.ActivePlayerID = "b"
	rs.Status = SongAnswering
	if m.CanBuzz("b", rs) {
		t.Error("the active player must not re-buzz")
	}

	rs.Status = SongFinished
	if m.CanBuzz("c", rs) {
		t.Error("finished song must not accept buzzes")
	}
}

func TestShouldEndSongAllLockedOut(t *testing.T) {
	m := modeFor(ModeFastBuzz)
	rs := testRoundSong(testParams())
	rs.LockedOut["a"] = true

	if m.ShouldEndSong(rs, 2) {
		t.Error("one of two locked out should not end the song")
	}

	rs.LockedOut["b"] = true
	if !m.ShouldEndSong(rs, 2) {
		t.Error("all players locked out should end the song")
	}
}

func TestPictureRoundInheritsBuzzChoice(t *testing.T) {
	m := modeFor(ModePictureRound)
	if m.Type() != ModePictureRound {
		t.Fatalf("unexpected type %q", m.Type())
	}
	if !m.PausesOnBuzz() {
		t.Error("picture round should pause on buzz like buzz-and-choice")
	}
	if m.RequiresManualValidation() {
		t.Error("picture round answers are validated by the server")
	}
}
