package main

import (
	"time"
)

// Room statuses
type RoomStatus string

const (
	RoomLobby         RoomStatus = "lobby"
	RoomPlaying       RoomStatus = "playing"
	RoomBetweenRounds RoomStatus = "between_rounds"
	RoomFinished      RoomStatus = "finished"
)

// Session statuses
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionPlaying  SessionStatus = "playing"
	SessionPaused   SessionStatus = "paused"
	SessionFinished SessionStatus = "finished"
)

// Round statuses
type RoundStatus string

const (
	RoundPending  RoundStatus = "pending"
	RoundActive   RoundStatus = "active"
	RoundFinished RoundStatus = "finished"
)

// Per-song statuses
type SongStatus string

const (
	SongPending   SongStatus = "pending"
	SongPlaying   SongStatus = "playing"
	SongAnswering SongStatus = "answering"
	SongFinished  SongStatus = "finished"
)

type Role string

const (
	RoleMaster Role = "master"
	RolePlayer Role = "player"
)

// Answer question types
const (
	AnswerTitle  = "title"
	AnswerArtist = "artist"
)

type Room struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	Code        string     `json:"code" gorm:"uniqueIndex"`
	MasterIP    string     `json:"masterIp"`
	Status      RoomStatus `json:"status" gorm:"index"`
	MaxPlayers  int        `json:"maxPlayers"`
	MasterToken string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type PlayerStats struct {
	Buzzes         int `json:"buzzes"`
	CorrectAnswers int `json:"correctAnswers"`
	WrongAnswers   int `json:"wrongAnswers"`
}

type Player struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	RoomID      string      `json:"roomId" gorm:"index;uniqueIndex:idx_room_name,priority:1"`
	Name        string      `json:"name" gorm:"uniqueIndex:idx_room_name,priority:2"`
	Role        Role        `json:"role"`
	Connected   bool        `json:"connected"`
	Score       int         `json:"score"`
	RoundScore  int         `json:"roundScore"`
	IsActive    bool        `json:"isActive"`
	IsLockedOut bool        `json:"isLockedOut"`
	Stats       PlayerStats `json:"stats" gorm:"embedded;embeddedPrefix:stat_"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Session struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	RoomID            string        `json:"roomId" gorm:"index"`
	Status            SessionStatus `json:"status"`
	CurrentRoundIndex int           `json:"currentRoundIndex"`
	CurrentSongIndex  int           `json:"currentSongIndex"`
	StartedAt         time.Time     `json:"startedAt"`
	EndedAt           *time.Time    `json:"endedAt,omitempty"`
}

// SongFilters selects a pool of songs for a round.
type SongFilters struct {
	Genre        string `json:"genre,omitempty"`
	YearMin      int    `json:"yearMin,omitempty"`
	YearMax      int    `json:"yearMax,omitempty"`
	ArtistName   string `json:"artistName,omitempty"`
	SongCount    int    `json:"songCount,omitempty"`
	IncludeNiche bool   `json:"includeNiche,omitempty"`
}

// SimilarFilter selects a pool of songs resembling a given one, used for
// distractor generation.
type SimilarFilter struct {
	Genre         string
	YearMin       int
	YearMax       int
	Language      string
	ExcludeSongID string
	Limit         int
}

// Round is created in advance at game start and immutable once active.
// Songs are materialised at that point; gameplay state lives on RoundSong.
type Round struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Index       int             `json:"index"`
	ModeType    string          `json:"modeType"`
	MediaType   string          `json:"mediaType"`
	Params      *ParamOverrides `json:"params,omitempty"`
	SongFilters *SongFilters    `json:"songFilters,omitempty"`
	Status      RoundStatus     `json:"status"`
	Songs       []*RoundSong    `json:"songs"`
}

// Question holds one multiple-choice prompt: the correct value is recorded
// separately from the shuffled choice set and never sent to players.
type Question struct {
	Kind    string   `json:"kind"`
	Correct string   `json:"-"`
	Choices []string `json:"choices"`
}

type RoundSong struct {
	Index          int              `json:"index"`
	Song           *Song            `json:"song"`
	Status         SongStatus       `json:"status"`
	ActivePlayerID string           `json:"activePlayerId,omitempty"`
	LockedOut      map[string]bool  `json:"lockedOutPlayerIds"`
	BuzzTimestamps map[string]int64 `json:"buzzTimestamps"`
	TitleQuestion  *Question        `json:"titleQuestion,omitempty"`
	ArtistQuestion *Question        `json:"artistQuestion,omitempty"`
	Answers        []*Answer        `json:"answers"`
	Params         ModeParams       `json:"params"`

	// true once the current active player has submitted at least one
	// answer; preemption by an earlier timestamp is disallowed after that
	activeAnswered bool
}

type Song struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Title        string `json:"title"`
	Artist       string `json:"artist" gorm:"index"`
	Album        string `json:"album,omitempty"`
	Year         int    `json:"year" gorm:"index"`
	Genre        string `json:"genre,omitempty" gorm:"index"`
	Language     string `json:"language,omitempty"`
	Duration     int    `json:"duration"`
	ClipStart    int    `json:"clipStart"`
	ClipDuration int    `json:"clipDuration"`
	FilePath     string `json:"filePath"`
	Format       string `json:"format"`
	Niche        bool   `json:"niche,omitempty"`
}

type Answer struct {
	ID            string    `json:"id"`
	PlayerID      string    `json:"playerId"`
	RoundID       string    `json:"roundId"`
	SongID        string    `json:"songId"`
	Type          string    `json:"type"`
	Value         string    `json:"value"`
	SubmittedAt   time.Time `json:"submittedAt"`
	TimeToAnswer  int64     `json:"timeToAnswer"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsAwarded int       `json:"pointsAwarded"`
}

type Playlist struct {
	ID      string   `json:"id" gorm:"primaryKey"`
	Name    string   `json:"name"`
	SongIDs []string `json:"songIds" gorm:"serializer:json"`
}

// ModeParams is the fully-resolved parameter set in effect for one song.
type ModeParams struct {
	SongDuration        int  `json:"songDuration"`
	AnswerTimer         int  `json:"answerTimer"`
	NumChoices          int  `json:"numChoices"`
	PointsTitle         int  `json:"pointsTitle"`
	PointsArtist        int  `json:"pointsArtist"`
	PenaltyEnabled      bool `json:"penaltyEnabled"`
	PenaltyAmount       int  `json:"penaltyAmount"`
	AllowRebuzz         bool `json:"allowRebuzz"`
	ManualValidation    bool `json:"manualValidation"`
	FuzzyMatch          bool `json:"fuzzyMatch"`
	LevenshteinDistance int  `json:"levenshteinDistance"`
}

// ParamOverrides is a partial ModeParams; nil fields pass through the layer
// below when resolving.
type ParamOverrides struct {
	SongDuration        *int  `json:"songDuration,omitempty"`
	AnswerTimer         *int  `json:"answerTimer,omitempty"`
	NumChoices          *int  `json:"numChoices,omitempty"`
	PointsTitle         *int  `json:"pointsTitle,omitempty"`
	PointsArtist        *int  `json:"pointsArtist,omitempty"`
	PenaltyEnabled      *bool `json:"penaltyEnabled,omitempty"`
	PenaltyAmount       *int  `json:"penaltyAmount,omitempty"`
	AllowRebuzz         *bool `json:"allowRebuzz,omitempty"`
	ManualValidation    *bool `json:"manualValidation,omitempty"`
	FuzzyMatch          *bool `json:"fuzzyMatch,omitempty"`
	LevenshteinDistance *int  `json:"levenshteinDistance,omitempty"`
}

// AnswerResult is what a mode's HandleAnswer returns; the engine applies it.
type AnswerResult struct {
	IsCorrect         bool   `json:"isCorrect"`
	PointsAwarded     int    `json:"pointsAwarded"`
	Message           string `json:"message,omitempty"`
	ShowTitleChoices  bool   `json:"-"`
	ShowArtistChoices bool   `json:"-"`
	LockOutPlayer     bool   `json:"-"`
}

// MediaContent is the normalised view of a content item.
type MediaContent struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Artist   string            `json:"artist,omitempty"`
	FilePath string            `json:"filePath,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasAnswered reports whether playerID already submitted an answer of the
// given question type for this song.
func (rs *RoundSong) HasAnswered(playerID, answerType string) bool {
	for _, a := range rs.Answers {
		if a.PlayerID == playerID && a.Type == answerType {
			return true
		}
	}
	return false
}

// AnswerOf returns playerID's recorded answer of the given type, if any.
func (rs *RoundSong) AnswerOf(playerID, answerType string) *Answer {
	for _, a := range rs.Answers {
		if a.PlayerID == playerID && a.Type == answerType {
			return a
		}
	}
	return nil
}
