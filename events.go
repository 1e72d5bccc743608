package main

import "encoding/json"

// Every frame on the wire is {"type": <string>, "data": <object>}.

// ClientMessage is an inbound frame; Data stays raw until the handler for
// the type decodes it.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client → server message types
const (
	MsgPlayerJoin   = "player:join"
	MsgPlayerLeave  = "player:leave"
	MsgPlayerKick   = "player:kick"
	MsgStateSync    = "state:sync"
	MsgPlayerBuzz   = "player:buzz"
	MsgPlayerAnswer = "player:answer"
	MsgGamePause    = "game:pause"
	MsgGameResume   = "game:resume"
	MsgGameSkip     = "game:skip"
)

// Server → client event types
const (
	EvConnected          = "connected"
	EvStateSynced        = "state:synced"
	EvError              = "error"
	EvPlayerJoined       = "player:joined"
	EvPlayerLeft         = "player:left"
	EvPlayerKicked       = "player:kicked"
	EvPlayerDisconnected = "player:disconnected"
	EvPlayerReconnected  = "player:reconnected"
	EvGameStarted        = "game:started"
	EvRoundStarted       = "round:started"
	EvSongStarted        = "song:started"
	EvPlayerBuzzed       = "player:buzzed"
	EvBuzzRejected       = "buzz:rejected"
	EvAnswerResult       = "answer:result"
	EvChoicesArtist      = "choices:artist"
	EvChoicesTitle       = "choices:title"
	EvSongEnded          = "song:ended"
	EvRoundEnded         = "round:ended"
	EvRoundBetween       = "round:between"
	EvGameEnded          = "game:ended"
	EvGamePaused         = "game:paused"
	EvGameResumed        = "game:resumed"
	EvGameSkipped        = "game:skipped"
)

// Inbound payloads

type JoinData struct {
	Name string `json:"name"`
}

type KickData struct {
	PlayerID string `json:"playerId"`
}

type BuzzData struct {
	SongIndex int   `json:"songIndex"`
	Timestamp int64 `json:"timestamp"`
}

type AnswerData struct {
	SongIndex int    `json:"songIndex"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// Outbound payloads

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectedData struct {
	RoomID string `json:"roomId"`
}

type StateSyncedData struct {
	Room         *Room          `json:"room"`
	Players      []*Player      `json:"players"`
	CurrentRound *RoundSnapshot `json:"currentRound,omitempty"`
}

// RoundSnapshot is the audience-safe view of the current round; correct
// answers are stripped before it reaches players.
type RoundSnapshot struct {
	RoundIndex int        `json:"roundIndex"`
	ModeType   string     `json:"modeType"`
	MediaType  string     `json:"mediaType"`
	SongCount  int        `json:"songCount"`
	SongIndex  int        `json:"songIndex"`
	SongStatus SongStatus `json:"songStatus"`
	ActiveID   string     `json:"activePlayerId,omitempty"`
}

type PlayerJoinedData struct {
	Player *Player `json:"player"`
	Room   *Room   `json:"room"`
}

type PlayerLeftData struct {
	PlayerID         string `json:"playerId"`
	PlayerName       string `json:"playerName"`
	RemainingPlayers int    `json:"remainingPlayers"`
}

type PlayerKickedData struct {
	Reason string `json:"reason"`
}

type PlayerPresenceData struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type GameStartedData struct {
	Session *Session `json:"session"`
	Room    *Room    `json:"room"`
}

type RoundStartedData struct {
	RoundIndex int    `json:"roundIndex"`
	ModeType   string `json:"modeType"`
	MediaType  string `json:"mediaType"`
	SongCount  int    `json:"songCount"`
}

type SongStartedData struct {
	SongIndex     int    `json:"songIndex"`
	Duration      int    `json:"duration"`
	ClipStart     int    `json:"clipStart"`
	AudioPlayback string `json:"audioPlayback"`
	FilePath      string `json:"filePath,omitempty"`

	// master only
	SongTitle  string `json:"songTitle,omitempty"`
	SongArtist string `json:"songArtist,omitempty"`
}

type PlayerBuzzedData struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	SongIndex  int    `json:"songIndex"`
	Timestamp  int64  `json:"timestamp"`

	// buzzer only
	ArtistQuestion *Question `json:"artistQuestion,omitempty"`
}

type BuzzRejectedData struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type AnswerResultData struct {
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	AnswerType    string `json:"answerType"`
	IsCorrect     bool   `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
	Message       string `json:"message,omitempty"`
}

type ChoicesData struct {
	PlayerID string   `json:"playerId"`
	Choices  []string `json:"choices"`
}

type SongEndedData struct {
	SongIndex     int    `json:"songIndex"`
	CorrectTitle  string `json:"correctTitle"`
	CorrectArtist string `json:"correctArtist"`
}

type RoundEndedData struct {
	RoundIndex int           `json:"roundIndex"`
	Scores     []PlayerScore `json:"scores"`
}

type RoundBetweenData struct {
	CompletedRoundIndex int           `json:"completedRoundIndex"`
	NextRoundIndex      int           `json:"nextRoundIndex"`
	NextRoundMode       string        `json:"nextRoundMode"`
	NextRoundMedia      string        `json:"nextRoundMedia"`
	Scores              []PlayerScore `json:"scores"`
}

type FinalScore struct {
	PlayerID    string      `json:"playerId"`
	PlayerName  string      `json:"playerName"`
	TotalScore  int         `json:"totalScore"`
	Rank        int         `json:"rank"`
	RoundScores []int       `json:"roundScores"`
	Stats       PlayerStats `json:"stats"`
}

type GameEndedData struct {
	FinalScores []FinalScore `json:"finalScores"`
}

func errorEvent(err error) Event {
	return Event{Type: EvError, Data: errPayload(err)}
}
