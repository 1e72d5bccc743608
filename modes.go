package main

// Mode types
const (
	ModeFastBuzz      = "fast_buzz"
	ModeBuzzAndChoice = "buzz_and_choice"
	ModeTextInput     = "text_input"
	ModePictureRound  = "picture_round"
)

// Mode is one rule variant plugged into the engine. Handlers are pure rule
// evaluation; side effects on the RoundSong are limited to bookkeeping.
type Mode interface {
	Type() string

	// DefaultParams overlays onto the system defaults; round params
	// overlay onto the result.
	DefaultParams() *ParamOverrides

	StartRound(r *Round)
	StartSong(songs SongRepo, rs *RoundSong, mediaType string) error

	HandleAnswer(a *Answer, rs *RoundSong) AnswerResult
	ValidateAnswer(a *Answer, rs *RoundSong) bool

	CanBuzz(playerID string, rs *RoundSong) bool
	ShouldEndSong(rs *RoundSong, activePlayers int) bool

	// BuzzPayload returns the extra data sent to the buzzer only. ok=false
	// rejects the buzz entirely.
	BuzzPayload(rs *RoundSong) (artistQuestion *Question, ok bool)

	PausesOnBuzz() bool
	RequiresManualValidation() bool

	// RequiresExclusiveAnswer reports whether only the active buzzer may
	// answer.
	RequiresExclusiveAnswer() bool
}

// modeRegistry maps a mode tag to its handler. Populated at startup, never
// mutated afterwards.
var modeRegistry = map[string]Mode{}

func registerMode(m Mode) {
	modeRegistry[m.Type()] = m
}

func modeFor(modeType string) Mode {
	return modeRegistry[modeType]
}

func modeTypes() []string {
	out := make([]string, 0, len(modeRegistry))
	for t := range modeRegistry {
		out = append(out, t)
	}
	return out
}

func init() {
	registerMode(fastBuzzMode{})
	registerMode(buzzChoiceMode{})
	registerMode(textInputMode{})
	registerMode(pictureRoundMode{})
}

// baseMode supplies the shared defaults; concrete modes embed it and
// override what differs.
type baseMode struct{}

func (baseMode) DefaultParams() *ParamOverrides { return nil }

func (baseMode) StartRound(*Round) {}

func (baseMode) StartSong(SongRepo, *RoundSong, string) error { return nil }

// CanBuzz is the default buzz gate: song live, player not locked out and
// not already holding the buzz.
func (baseMode) CanBuzz(playerID string, rs *RoundSong) bool {
	if rs.Status != SongPlaying && rs.Status != SongAnswering {
		return false
	}
	if rs.LockedOut[playerID] {
		return false
	}
	return playerID != rs.ActivePlayerID
}

// ShouldEndSong default: already finished, or everyone still in the game is
// locked out.
func (baseMode) ShouldEndSong(rs *RoundSong, activePlayers int) bool {
	if rs.Status == SongFinished {
		return true
	}
	return activePlayers > 0 && len(rs.LockedOut) >= activePlayers
}

func (baseMode) BuzzPayload(*RoundSong) (*Question, bool) { return nil, true }

func (baseMode) PausesOnBuzz() bool             { return false }
func (baseMode) RequiresManualValidation() bool { return false }
func (baseMode) RequiresExclusiveAnswer() bool  { return true }

// fastBuzzMode: players buzz, answer out loud, and the master validates
// with value "correct" or "wrong".
type fastBuzzMode struct{ baseMode }

func (fastBuzzMode) Type() string { return ModeFastBuzz }

func (fastBuzzMode) DefaultParams() *ParamOverrides {
	return &ParamOverrides{ManualValidation: boolPtr(true)}
}

func (fastBuzzMode) PausesOnBuzz() bool             { return true }
func (fastBuzzMode) RequiresManualValidation() bool { return true }

func (m fastBuzzMode) ValidateAnswer(a *Answer, _ *RoundSong) bool {
	return a.Value == "correct"
}

func (m fastBuzzMode) HandleAnswer(a *Answer, rs *RoundSong) AnswerResult {
	if m.ValidateAnswer(a, rs) {
		return AnswerResult{
			IsCorrect:     true,
			PointsAwarded: rs.Params.PointsTitle,
		}
	}

	res := AnswerResult{LockOutPlayer: true}
	if rs.Params.PenaltyEnabled {
		res.PointsAwarded = -rs.Params.PenaltyAmount
	}
	return res
}

// ShouldEndSong: a validated correct answer ends the song; the engine marks
// the song finished before consulting this, so the base rule covers it.

// buzzChoiceMode: buzzing opens two sequential multiple-choice questions,
// artist first, title second.
type buzzChoiceMode struct{ baseMode }

func (buzzChoiceMode) Type() string { return ModeBuzzAndChoice }

func (buzzChoiceMode) PausesOnBuzz() bool { return true }

func (buzzChoiceMode) StartSong(songs SongRepo, rs *RoundSong, mediaType string) error {
	rs.ArtistQuestion = buildQuestion(songs, rs.Song, mediaType, AnswerArtist, rs.Params.NumChoices)
	rs.TitleQuestion = buildQuestion(songs, rs.Song, mediaType, AnswerTitle, rs.Params.NumChoices)
	if rs.ArtistQuestion == nil || rs.TitleQuestion == nil {
		return gameErr(ErrInternal, "could not build questions for song %s", rs.Song.ID)
	}
	return nil
}

func (buzzChoiceMode) BuzzPayload(rs *RoundSong) (*Question, bool) {
	if rs.ArtistQuestion == nil {
		return nil, false
	}
	return rs.ArtistQuestion, true
}

func (m buzzChoiceMode) ValidateAnswer(a *Answer, rs *RoundSong) bool {
	q := rs.TitleQuestion
	if a.Type == AnswerArtist {
		q = rs.ArtistQuestion
	}
	if q == nil {
		return false
	}
	return mediaFor(MediaMusic).ValidateMatch(a.Value, q.Correct)
}

// HandleAnswer implements the truth table: artist correct earns its points
// immediately and the title question follows either way; only a full
// correct pair escapes lockout.
func (m buzzChoiceMode) HandleAnswer(a *Answer, rs *RoundSong) AnswerResult {
	valid := m.ValidateAnswer(a, rs)

	if a.Type == AnswerArtist {
		res := AnswerResult{IsCorrect: valid, ShowTitleChoices: true}
		if valid {
			res.PointsAwarded = rs.Params.PointsArtist
		}
		return res
	}

	artistAnswer := rs.AnswerOf(a.PlayerID, AnswerArtist)
	artistCorrect := artistAnswer != nil && artistAnswer.IsCorrect

	res := AnswerResult{IsCorrect: valid}
	switch {
	case valid && artistCorrect:
		res.PointsAwarded = rs.Params.PointsTitle
	case valid && !artistCorrect:
		res.LockOutPlayer = true
	case !valid && artistCorrect:
		res.LockOutPlayer = true
	default:
		res.LockOutPlayer = true
		if rs.Params.PenaltyEnabled {
			res.PointsAwarded = -rs.Params.PenaltyAmount
		}
	}
	return res
}

// ShouldEndSong additionally ends the song once the active player has
// answered both question types.
func (m buzzChoiceMode) ShouldEndSong(rs *RoundSong, activePlayers int) bool {
	if m.baseMode.ShouldEndSong(rs, activePlayers) {
		return true
	}
	if rs.ActivePlayerID == "" {
		return false
	}
	return rs.HasAnswered(rs.ActivePlayerID, AnswerArtist) &&
		rs.HasAnswered(rs.ActivePlayerID, AnswerTitle)
}

// textInputMode: no buzzing; every player types title and artist guesses
// freely, matched within a Levenshtein threshold.
type textInputMode struct{ baseMode }

func (textInputMode) Type() string { return ModeTextInput }

func (textInputMode) CanBuzz(string, *RoundSong) bool { return false }

func (textInputMode) BuzzPayload(*RoundSong) (*Question, bool) { return nil, false }

func (textInputMode) RequiresExclusiveAnswer() bool { return false }

func (m textInputMode) ValidateAnswer(a *Answer, rs *RoundSong) bool {
	correct := rs.Song.Title
	if a.Type == AnswerArtist {
		correct = rs.Song.Artist
	}

	threshold := rs.Params.LevenshteinDistance
	if !rs.Params.FuzzyMatch {
		threshold = 0
	}
	return fuzzyMatch(a.Value, correct, threshold)
}

func (m textInputMode) HandleAnswer(a *Answer, rs *RoundSong) AnswerResult {
	if !m.ValidateAnswer(a, rs) {
		return AnswerResult{}
	}

	points := rs.Params.PointsTitle
	if a.Type == AnswerArtist {
		points = rs.Params.PointsArtist
	}
	return AnswerResult{IsCorrect: true, PointsAwarded: points}
}

// ShouldEndSong: text rounds only end on the song timer or a master skip.
func (textInputMode) ShouldEndSong(rs *RoundSong, _ int) bool {
	return rs.Status == SongFinished
}

// pictureRoundMode reuses the buzz-and-choice rules over picture media.
type pictureRoundMode struct{ buzzChoiceMode }

func (pictureRoundMode) Type() string { return ModePictureRound }
