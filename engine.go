package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// RoundConfig describes one round of a game about to start. Songs come
// from an explicit list, from filters, or at random.
type RoundConfig struct {
	ModeType    string          `json:"modeType"`
	MediaType   string          `json:"mediaType"`
	Params      *ParamOverrides `json:"params,omitempty"`
	SongFilters *SongFilters    `json:"songFilters,omitempty"`
	SongIDs     []string        `json:"songIds,omitempty"`
}

const defaultSongsPerRound = 5

// Engine events. Everything that can touch a room's state — client frames,
// timer firings, disconnects, the HTTP start call — enters the engine's
// FIFO inbox and is processed strictly one at a time.

type engineEvent interface{ engineEvent() }

type evClientMessage struct {
	conn *Conn
	msg  ClientMessage
}

type evAttach struct{ conn *Conn }
type evDetach struct{ conn *Conn }

type timerKind int

const (
	timerSong timerKind = iota
	timerAnswer
	timerBetween
)

type evTimer struct {
	kind  timerKind
	epoch uint64
}

type evGrace struct {
	playerID string
	epoch    uint64
}

type evStart struct {
	configs []RoundConfig
	reply   chan error
}

func (evClientMessage) engineEvent() {}
func (evAttach) engineEvent()        {}
func (evDetach) engineEvent()        {}
func (evTimer) engineEvent()         {}
func (evGrace) engineEvent()         {}
func (evStart) engineEvent()         {}

// deadlineTimer is a logical deadline. The epoch tag lets the engine ignore
// firings armed before a pause, resume or cancel. pausedByBuzz records that
// the clock froze because a buzz holds the song, not because the master
// paused the game; a game:resume must not restart such a clock.
type deadlineTimer struct {
	epoch        uint64
	timer        *time.Timer
	deadline     time.Time
	remaining    time.Duration
	paused       bool
	pausedByBuzz bool
	armed        bool
}

// Engine owns all mutable gameplay state for one room and is its single
// writer. Handlers run to completion; no locks are needed inside.
type Engine struct {
	cfg   *Config
	store *Store
	hub   *Hub

	roomID string
	inbox  chan engineEvent
	quit   chan struct{}

	room    *Room
	session *Session
	rounds  []*Round
	players map[string]*Player

	// per-player round score history, by round index
	roundScores map[string][]int

	songStartedAt time.Time

	epoch        uint64
	songTimer    deadlineTimer
	answerTimer  deadlineTimer
	betweenTimer deadlineTimer
	graceEpochs  map[string]uint64
}

func newEngine(cfg *Config, store *Store, hub *Hub, room *Room) (*Engine, error) {
	players, err := store.Players.FindByRoom(room.ID)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		hub:         hub,
		roomID:      room.ID,
		inbox:       make(chan engineEvent, 64),
		quit:        make(chan struct{}),
		room:        room,
		players:     make(map[string]*Player, len(players)),
		roundScores: make(map[string][]int),
		graceEpochs: make(map[string]uint64),
	}
	for _, p := range players {
		e.players[p.ID] = p
	}
	return e, nil
}

func (e *Engine) run() {
	for {
		select {
		case ev := <-e.inbox:
			e.dispatch(ev)
		case <-e.quit:
			e.cancelTimers()
			return
		}
	}
}

func (e *Engine) stop() {
	select {
	case <-e.quit:
	default:
		close(e.quit)
	}
}

// post enqueues an event; it never blocks a stopped engine.
func (e *Engine) post(ev engineEvent) {
	select {
	case e.inbox <- ev:
	case <-e.quit:
	}
}

// dispatch processes exactly one event. A panic in a handler is contained
// here so one bad event cannot kill the room.
func (e *Engine) dispatch(ev engineEvent) {
	defer func() {
		if r := recover(); r != nil {
			logf(e.cfg, "ERROR: engine panic in room %s: %v\n%s", e.roomID, r, debug.Stack())
			if cm, ok := ev.(evClientMessage); ok {
				cm.conn.trySend(errorEvent(gameErr(ErrInternal, "internal server error")))
			}
		}
	}()

	if e.hub != nil && e.hub.metrics != nil {
		e.hub.metrics.eventsProcessed.Inc()
	}

	switch ev := ev.(type) {
	case evClientMessage:
		e.handleClientMessage(ev.conn, ev.msg)
	case evAttach:
		e.handleAttach(ev.conn)
	case evDetach:
		e.handleDetach(ev.conn)
	case evTimer:
		e.handleTimer(ev)
	case evGrace:
		e.handleGrace(ev)
	case evStart:
		ev.reply <- e.startGame(ev.configs)
	}
}

func (e *Engine) handleClientMessage(conn *Conn, msg ClientMessage) {
	var err error

	switch msg.Type {
	case MsgPlayerJoin:
		var data JoinData
		if err = decode(msg.Data, &data); err == nil {
			err = e.join(conn, data)
		}
	case MsgPlayerLeave:
		err = e.leave(conn)
	case MsgPlayerKick:
		var data KickData
		if err = decode(msg.Data, &data); err == nil {
			err = e.kick(conn, data)
		}
	case MsgStateSync:
		e.sendStateSync(conn)
	case MsgPlayerBuzz:
		var data BuzzData
		if err = decode(msg.Data, &data); err == nil {
			err = e.handleBuzz(conn, data)
		}
	case MsgPlayerAnswer:
		var data AnswerData
		if err = decode(msg.Data, &data); err == nil {
			err = e.handleAnswer(conn, data)
		}
	case MsgGamePause:
		err = e.pauseGame(conn)
	case MsgGameResume:
		err = e.resumeGame(conn)
	case MsgGameSkip:
		err = e.skipSong(conn)
	default:
		err = gameErr(ErrTransport, "unknown message type %q", msg.Type)
	}

	if err != nil {
		conn.trySend(errorEvent(err))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return gameErr(ErrTransport, "missing message data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return gameErr(ErrTransport, "malformed message data")
	}
	return nil
}

func (e *Engine) emit(ev Event, audience Audience) {
	e.hub.Broadcast(e.roomID, ev, audience)
}

// Connection lifecycle

func (e *Engine) handleAttach(conn *Conn) {
	conn.trySend(Event{Type: EvConnected, Data: ConnectedData{RoomID: e.roomID}})

	if conn.playerID != "" {
		p, ok := e.players[conn.playerID]
		if !ok {
			conn.trySend(errorEvent(gameErr(ErrNotFound, "unknown player %s", conn.playerID)))
			conn.playerID = ""
			return
		}

		delete(e.graceEpochs, p.ID)
		if !p.Connected {
			p.Connected = true
			e.persistPlayer(p, PlayerUpdate{Connected: boolPtr(true)})
			e.emit(Event{Type: EvPlayerReconnected, Data: PlayerPresenceData{
				PlayerID:   p.ID,
				PlayerName: p.Name,
			}}, AudienceAll())
			logf(e.cfg, "GAME: Player %q reconnected to %s", p.Name, e.room.Code)
		}
	}

	e.sendStateSync(conn)
}

func (e *Engine) handleDetach(conn *Conn) {
	if conn.playerID == "" {
		return
	}
	p, ok := e.players[conn.playerID]
	if !ok {
		return
	}
	if e.hub.PlayerConnected(e.roomID, p.ID) {
		// Another socket for the same player is still live.
		return
	}

	// The player gets a grace window to reconnect before the room is told.
	e.epoch++
	ep := e.epoch
	e.graceEpochs[p.ID] = ep
	pid := p.ID
	time.AfterFunc(e.cfg.playerGrace, func() {
		e.post(evGrace{playerID: pid, epoch: ep})
	})
}

func (e *Engine) handleGrace(ev evGrace) {
	ep, ok := e.graceEpochs[ev.playerID]
	if !ok || ep != ev.epoch {
		return
	}
	delete(e.graceEpochs, ev.playerID)

	p, ok := e.players[ev.playerID]
	if !ok || e.hub.PlayerConnected(e.roomID, p.ID) {
		return
	}

	if e.room.Status == RoomLobby {
		// Lobby players who never come back are dropped entirely.
		e.removePlayer(p, EvPlayerLeft)
		return
	}

	p.Connected = false
	e.persistPlayer(p, PlayerUpdate{Connected: boolPtr(false)})
	e.emit(Event{Type: EvPlayerDisconnected, Data: PlayerPresenceData{
		PlayerID:   p.ID,
		PlayerName: p.Name,
	}}, AudienceAll())
	logf(e.cfg, "GAME: Player %q disconnected from %s", p.Name, e.room.Code)

	// A vanished buzzer releases the song.
	if rs := e.currentSong(); rs != nil && rs.ActivePlayerID == p.ID {
		e.releaseBuzz(rs, p)
	}
}

// Roster

func validPlayerName(name string) error {
	if len(name) < 1 || len(name) > 20 {
		return gameErr(ErrValidation, "player name must be 1-20 characters")
	}
	for _, r := range name {
		if r == '<' || r == '>' {
			return gameErr(ErrValidation, "player name must not contain angle brackets")
		}
	}
	return nil
}

func (e *Engine) join(conn *Conn, data JoinData) error {
	if conn.role == RoleMaster {
		return gameErr(ErrState, "the master does not join as a player")
	}
	if conn.playerID != "" {
		return gameErr(ErrState, "already joined")
	}
	if err := validPlayerName(data.Name); err != nil {
		return err
	}
	if e.room.Status != RoomLobby {
		return gameErr(ErrState, "game already in progress")
	}
	if e.room.MaxPlayers > 0 && e.playerCount() >= e.room.MaxPlayers {
		return gameErr(ErrConflict, "room is full")
	}

	p := &Player{
		ID:        uuid.NewString(),
		RoomID:    e.roomID,
		Name:      data.Name,
		Role:      RolePlayer,
		Connected: true,
		CreatedAt: time.Now(),
	}
	if err := e.store.Players.Create(p); err != nil {
		if err == ErrStoreConflict {
			return gameErr(ErrConflict, "name %q is already taken", data.Name)
		}
		return err
	}

	e.players[p.ID] = p
	conn.playerID = p.ID
	conn.role = RolePlayer

	e.emit(Event{Type: EvPlayerJoined, Data: PlayerJoinedData{
		Player: p,
		Room:   e.room,
	}}, AudienceAll())
	logf(e.cfg, "GAME: Player %q joined %s", p.Name, e.room.Code)

	e.hub.snapshotLobby(e.room, e.playerList())
	return nil
}

func (e *Engine) leave(conn *Conn) error {
	if conn.playerID == "" {
		return gameErr(ErrState, "not joined")
	}
	p, ok := e.players[conn.playerID]
	if !ok {
		return gameErr(ErrNotFound, "unknown player")
	}
	conn.playerID = ""
	e.removePlayer(p, EvPlayerLeft)
	return nil
}

func (e *Engine) kick(conn *Conn, data KickData) error {
	if conn.role != RoleMaster {
		return gameErr(ErrAuth, "only the master may kick players")
	}
	p, ok := e.players[data.PlayerID]
	if !ok {
		return gameErr(ErrNotFound, "unknown player %s", data.PlayerID)
	}

	e.emit(Event{Type: EvPlayerKicked, Data: PlayerKickedData{
		Reason: "removed by the game master",
	}}, AudiencePlayer(p.ID))
	e.hub.ClosePlayer(e.roomID, p.ID)
	e.removePlayer(p, EvPlayerLeft)
	logf(e.cfg, "GAME: Player %q kicked from %s", p.Name, e.room.Code)
	return nil
}

func (e *Engine) removePlayer(p *Player, eventType string) {
	delete(e.players, p.ID)
	delete(e.graceEpochs, p.ID)
	if err := e.store.Players.Delete(p.ID); err != nil && err != ErrStoreNotFound {
		logf(e.cfg, "STORE: deleting player %s: %v", p.ID, err)
	}

	if rs := e.currentSong(); rs != nil && rs.ActivePlayerID == p.ID {
		e.releaseBuzz(rs, p)
	}

	e.emit(Event{Type: eventType, Data: PlayerLeftData{
		PlayerID:         p.ID,
		PlayerName:       p.Name,
		RemainingPlayers: e.playerCount(),
	}}, AudienceAll())

	e.hub.snapshotLobby(e.room, e.playerList())
}

func (e *Engine) playerCount() int {
	count := 0
	for _, p := range e.players {
		if p.Role == RolePlayer {
			count++
		}
	}
	return count
}

// activePlayerCount is the number of connected players still able to play
// the current song.
func (e *Engine) activePlayerCount() int {
	count := 0
	for _, p := range e.players {
		if p.Role == RolePlayer && p.Connected {
			count++
		}
	}
	return count
}

func (e *Engine) playerList() []*Player {
	out := make([]*Player, 0, len(e.players))
	for _, p := range e.players {
		out = append(out, p)
	}
	return out
}

// State sync

func (e *Engine) sendStateSync(conn *Conn) {
	data := StateSyncedData{
		Room:    e.room,
		Players: e.playerList(),
	}

	if round := e.currentRound(); round != nil {
		snapshot := &RoundSnapshot{
			RoundIndex: round.Index,
			ModeType:   round.ModeType,
			MediaType:  round.MediaType,
			SongCount:  len(round.Songs),
		}
		if rs := e.currentSong(); rs != nil {
			snapshot.SongIndex = rs.Index
			snapshot.SongStatus = rs.Status
			snapshot.ActiveID = rs.ActivePlayerID
		}
		data.CurrentRound = snapshot
	}

	conn.trySend(Event{Type: EvStateSynced, Data: data})
}

// Game lifecycle

func (e *Engine) startGame(configs []RoundConfig) error {
	if e.room.Status != RoomLobby {
		return gameErr(ErrState, "room is not in the lobby")
	}
	if e.activePlayerCount() < 2 {
		return gameErr(ErrState, "at least 2 connected players are required")
	}

	if len(configs) == 0 {
		configs = []RoundConfig{{ModeType: ModeFastBuzz, MediaType: MediaMusic}}
	}

	rounds := make([]*Round, 0, len(configs))
	for i, rc := range configs {
		round, err := e.buildRound(i, rc)
		if err != nil {
			return err
		}
		rounds = append(rounds, round)
	}

	session := &Session{
		ID:        uuid.NewString(),
		RoomID:    e.roomID,
		Status:    SessionPlaying,
		StartedAt: time.Now(),
	}
	if err := e.store.Sessions.Create(session); err != nil {
		return err
	}
	for _, r := range rounds {
		r.SessionID = session.ID
	}

	e.session = session
	e.rounds = rounds
	e.setRoomStatus(RoomPlaying)

	// The roster is frozen for scoring from here on.
	if err := e.store.Players.ResetScores(e.roomID); err != nil {
		logf(e.cfg, "STORE: resetting scores for %s: %v", e.roomID, err)
	}
	for _, p := range e.players {
		p.Score = 0
		p.RoundScore = 0
		e.roundScores[p.ID] = make([]int, 0, len(rounds))
	}

	e.hub.dropSnapshot(e.roomID)
	if e.hub.metrics != nil {
		e.hub.metrics.gamesStarted.Inc()
	}
	logf(e.cfg, "GAME: Game started in %s with %d rounds", e.room.Code, len(rounds))

	e.emit(Event{Type: EvGameStarted, Data: GameStartedData{
		Session: session,
		Room:    e.room,
	}}, AudienceAll())

	e.startRound(0)
	return nil
}

func (e *Engine) buildRound(index int, rc RoundConfig) (*Round, error) {
	mode := modeFor(rc.ModeType)
	if mode == nil {
		return nil, gameErr(ErrValidation, "unknown mode type %q", rc.ModeType)
	}
	if rc.MediaType == "" {
		rc.MediaType = MediaMusic
	}
	if !validMediaType(rc.MediaType) {
		return nil, gameErr(ErrValidation, "unknown media type %q", rc.MediaType)
	}

	var (
		songs []*Song
		err   error
	)
	switch {
	case len(rc.SongIDs) > 0:
		songs, err = e.store.Songs.FindByIDs(rc.SongIDs)
	case rc.SongFilters != nil:
		filters := *rc.SongFilters
		if filters.SongCount == 0 {
			filters.SongCount = defaultSongsPerRound
		}
		songs, err = e.store.Songs.FindByFilters(filters)
	default:
		songs, err = e.store.Songs.GetRandom(defaultSongsPerRound, false)
	}
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, gameErr(ErrValidation, "round %d has no songs", index)
	}

	params := resolveParams(e.cfg.systemParams(), mode.DefaultParams(), rc.Params)

	round := &Round{
		ID:          uuid.NewString(),
		Index:       index,
		ModeType:    rc.ModeType,
		MediaType:   rc.MediaType,
		Params:      rc.Params,
		SongFilters: rc.SongFilters,
		Status:      RoundPending,
		Songs:       make([]*RoundSong, 0, len(songs)),
	}
	for i, s := range songs {
		round.Songs = append(round.Songs, &RoundSong{
			Index:          i,
			Song:           s,
			Status:         SongPending,
			LockedOut:      make(map[string]bool),
			BuzzTimestamps: make(map[string]int64),
			Params:         params,
		})
	}
	return round, nil
}

func (e *Engine) currentRound() *Round {
	if e.session == nil || e.session.CurrentRoundIndex >= len(e.rounds) {
		return nil
	}
	return e.rounds[e.session.CurrentRoundIndex]
}

func (e *Engine) currentSong() *RoundSong {
	round := e.currentRound()
	if round == nil || e.session.CurrentSongIndex >= len(round.Songs) {
		return nil
	}
	return round.Songs[e.session.CurrentSongIndex]
}

func (e *Engine) startRound(index int) {
	round := e.rounds[index]
	round.Status = RoundActive
	e.session.CurrentRoundIndex = index
	e.session.CurrentSongIndex = 0

	for _, p := range e.players {
		p.RoundScore = 0
		e.persistPlayer(p, PlayerUpdate{RoundScore: intPtr(0)})
	}

	modeFor(round.ModeType).StartRound(round)

	e.emit(Event{Type: EvRoundStarted, Data: RoundStartedData{
		RoundIndex: round.Index,
		ModeType:   round.ModeType,
		MediaType:  round.MediaType,
		SongCount:  len(round.Songs),
	}}, AudienceAll())
	logf(e.cfg, "GAME: Round %d (%s/%s) started in %s",
		round.Index, round.ModeType, round.MediaType, e.room.Code)

	e.startSong(round, 0)
}

func (e *Engine) startSong(round *Round, index int) {
	rs := round.Songs[index]
	e.session.CurrentSongIndex = index

	// Lockouts are scoped to one song.
	rs.Status = SongPlaying
	rs.LockedOut = make(map[string]bool)
	rs.BuzzTimestamps = make(map[string]int64)
	rs.ActivePlayerID = ""
	rs.activeAnswered = false
	for _, p := range e.players {
		if p.IsLockedOut || p.IsActive {
			p.IsLockedOut = false
			p.IsActive = false
			e.persistPlayer(p, PlayerUpdate{
				IsLockedOut: boolPtr(false),
				IsActive:    boolPtr(false),
			})
		}
	}

	mode := modeFor(round.ModeType)
	if err := mode.StartSong(e.store.Songs, rs, round.MediaType); err != nil {
		logf(e.cfg, "ERROR: starting song %d of round %d in %s: %v",
			index, round.Index, e.room.Code, err)
		e.endSong(round, rs)
		return
	}

	e.songStartedAt = time.Now()
	e.armTimer(&e.songTimer, timerSong, time.Duration(rs.Params.SongDuration)*time.Second)

	base := SongStartedData{
		SongIndex:     rs.Index,
		Duration:      rs.Params.SongDuration,
		ClipStart:     rs.Song.ClipStart,
		AudioPlayback: audioPlaybackFor(round.MediaType),
	}

	// Players never see the answers; the master sees everything.
	e.emit(Event{Type: EvSongStarted, Data: base}, AudiencePlayers())

	withAnswers := base
	withAnswers.FilePath = rs.Song.FilePath
	withAnswers.SongTitle = rs.Song.Title
	withAnswers.SongArtist = rs.Song.Artist
	e.emit(Event{Type: EvSongStarted, Data: withAnswers}, AudienceMaster())
}

// audioPlaybackFor names which role plays the media clip out loud.
func audioPlaybackFor(mediaType string) string {
	if mediaType == MediaPicture {
		return "all"
	}
	return "master"
}

// Buzz arbitration

func (e *Engine) handleBuzz(conn *Conn, data BuzzData) error {
	if conn.playerID == "" {
		return gameErr(ErrState, "join the room before buzzing")
	}
	p, ok := e.players[conn.playerID]
	if !ok {
		return gameErr(ErrNotFound, "unknown player")
	}
	if e.session == nil || e.session.Status == SessionPaused {
		return gameErr(ErrState, "game is not running")
	}

	round := e.currentRound()
	rs := e.currentSong()
	if round == nil || rs == nil || rs.Index != data.SongIndex {
		return gameErr(ErrState, "song %d is not current", data.SongIndex)
	}

	// A locked-out buzz is a no-op.
	if rs.LockedOut[p.ID] {
		return nil
	}

	mode := modeFor(round.ModeType)
	if !mode.CanBuzz(p.ID, rs) {
		e.emit(Event{Type: EvBuzzRejected, Data: BuzzRejectedData{
			PlayerID: p.ID,
			Reason:   "buzzing is not available",
		}}, AudiencePlayer(p.ID))
		return nil
	}

	// The client timestamp decides the race, not arrival order. A
	// later-arriving, earlier-stamped buzz preempts the current holder
	// until that holder has answered. A losing buzz is bookkeeping-free.
	if rs.ActivePlayerID != "" {
		activeTs := rs.BuzzTimestamps[rs.ActivePlayerID]
		if rs.activeAnswered || data.Timestamp >= activeTs {
			e.emit(Event{Type: EvBuzzRejected, Data: BuzzRejectedData{
				PlayerID: p.ID,
				Reason:   "another player buzzed first",
			}}, AudiencePlayer(p.ID))
			return nil
		}

		ousted := e.players[rs.ActivePlayerID]
		if ousted != nil {
			ousted.IsActive = false
			e.persistPlayer(ousted, PlayerUpdate{IsActive: boolPtr(false)})
			e.emit(Event{Type: EvBuzzRejected, Data: BuzzRejectedData{
				PlayerID: ousted.ID,
				Reason:   "outbuzzed by an earlier timestamp",
			}}, AudiencePlayer(ousted.ID))
		}
	}

	artistQuestion, ok := mode.BuzzPayload(rs)
	if !ok {
		e.emit(Event{Type: EvBuzzRejected, Data: BuzzRejectedData{
			PlayerID: p.ID,
			Reason:   "buzzing is not available",
		}}, AudiencePlayer(p.ID))
		return nil
	}

	if e.hub.metrics != nil {
		e.hub.metrics.buzzes.Inc()
	}
	p.Stats.Buzzes++

	// Keep the earliest tick each player claims for this song.
	if prev, seen := rs.BuzzTimestamps[p.ID]; !seen || data.Timestamp < prev {
		rs.BuzzTimestamps[p.ID] = data.Timestamp
	}

	wasAnswering := rs.Status == SongAnswering
	rs.ActivePlayerID = p.ID
	rs.activeAnswered = false
	rs.Status = SongAnswering
	p.IsActive = true
	e.persistPlayer(p, PlayerUpdate{IsActive: boolPtr(true)})

	if mode.PausesOnBuzz() && !wasAnswering {
		e.pauseTimer(&e.songTimer)
		e.songTimer.pausedByBuzz = true
	}
	e.armTimer(&e.answerTimer, timerAnswer, time.Duration(rs.Params.AnswerTimer)*time.Second)

	buzzed := PlayerBuzzedData{
		PlayerID:   p.ID,
		PlayerName: p.Name,
		SongIndex:  rs.Index,
		Timestamp:  data.Timestamp,
	}
	e.emit(Event{Type: EvPlayerBuzzed, Data: buzzed}, AudienceExcept(p.ID))

	// Choices ride along for the buzzer only.
	withExtras := buzzed
	withExtras.ArtistQuestion = artistQuestion
	e.emit(Event{Type: EvPlayerBuzzed, Data: withExtras}, AudiencePlayer(p.ID))

	return nil
}

// releaseBuzz returns a song to the playing state after the active player
// drops out or answers wrong with rebuzz allowed.
func (e *Engine) releaseBuzz(rs *RoundSong, p *Player) {
	rs.ActivePlayerID = ""
	rs.activeAnswered = false
	if p != nil {
		p.IsActive = false
		e.persistPlayer(p, PlayerUpdate{IsActive: boolPtr(false)})
	}
	e.stopTimer(&e.answerTimer)
	if rs.Status == SongAnswering {
		rs.Status = SongPlaying
		// The clock is no longer held by the buzz; restart it unless the
		// master has the whole game paused.
		e.songTimer.pausedByBuzz = false
		if e.session == nil || e.session.Status != SessionPaused {
			e.resumeTimer(&e.songTimer, timerSong)
		}
	}
}

// Answer flow

func (e *Engine) handleAnswer(conn *Conn, data AnswerData) error {
	if data.Type != AnswerTitle && data.Type != AnswerArtist {
		return gameErr(ErrValidation, "unknown answer type %q", data.Type)
	}
	if e.session == nil || e.session.Status == SessionPaused {
		return gameErr(ErrState, "game is not running")
	}

	round := e.currentRound()
	rs := e.currentSong()
	if round == nil || rs == nil || rs.Index != data.SongIndex {
		return gameErr(ErrState, "song %d is not current", data.SongIndex)
	}
	if rs.Status != SongPlaying && rs.Status != SongAnswering {
		return gameErr(ErrState, "song is not accepting answers")
	}

	mode := modeFor(round.ModeType)

	var p *Player
	if mode.RequiresManualValidation() {
		// The master answers on behalf of the active player.
		if conn.role != RoleMaster {
			return gameErr(ErrAuth, "only the master validates answers in this mode")
		}
		if rs.ActivePlayerID == "" {
			return gameErr(ErrState, "no active player to validate")
		}
		p = e.players[rs.ActivePlayerID]
	} else {
		if conn.playerID == "" {
			return gameErr(ErrState, "join the room before answering")
		}
		p = e.players[conn.playerID]
		if p == nil {
			return gameErr(ErrNotFound, "unknown player")
		}
		if mode.RequiresExclusiveAnswer() && p.ID != rs.ActivePlayerID {
			return gameErr(ErrState, "you do not hold the buzz")
		}
	}
	if p == nil {
		return gameErr(ErrNotFound, "unknown player")
	}

	if rs.LockedOut[p.ID] {
		return gameErr(ErrState, "locked out for this song")
	}
	if rs.HasAnswered(p.ID, data.Type) {
		return gameErr(ErrState, "already answered the %s question", data.Type)
	}

	answer := &Answer{
		ID:           uuid.NewString(),
		PlayerID:     p.ID,
		RoundID:      round.ID,
		SongID:       rs.Song.ID,
		Type:         data.Type,
		Value:        data.Value,
		SubmittedAt:  time.Now(),
		TimeToAnswer: time.Since(e.songStartedAt).Milliseconds(),
	}

	result := mode.HandleAnswer(answer, rs)
	answer.IsCorrect = result.IsCorrect
	answer.PointsAwarded = result.PointsAwarded
	rs.Answers = append(rs.Answers, answer)

	if p.ID == rs.ActivePlayerID {
		rs.activeAnswered = true
	}

	e.applyResult(p, rs, answer, result)

	if e.hub.metrics != nil {
		e.hub.metrics.answers.WithLabelValues(fmt.Sprintf("%t", result.IsCorrect)).Inc()
	}

	e.emit(Event{Type: EvAnswerResult, Data: AnswerResultData{
		PlayerID:      p.ID,
		PlayerName:    p.Name,
		AnswerType:    answer.Type,
		IsCorrect:     result.IsCorrect,
		PointsAwarded: result.PointsAwarded,
		Message:       result.Message,
	}}, AudienceAll())

	// Follow-up prompts go to the active player only.
	if result.ShowTitleChoices && rs.TitleQuestion != nil {
		e.emit(Event{Type: EvChoicesTitle, Data: ChoicesData{
			PlayerID: p.ID,
			Choices:  rs.TitleQuestion.Choices,
		}}, AudiencePlayer(p.ID))
		e.armTimer(&e.answerTimer, timerAnswer, time.Duration(rs.Params.AnswerTimer)*time.Second)
		return nil
	}
	if result.ShowArtistChoices && rs.ArtistQuestion != nil {
		e.emit(Event{Type: EvChoicesArtist, Data: ChoicesData{
			PlayerID: p.ID,
			Choices:  rs.ArtistQuestion.Choices,
		}}, AudiencePlayer(p.ID))
		e.armTimer(&e.answerTimer, timerAnswer, time.Duration(rs.Params.AnswerTimer)*time.Second)
		return nil
	}

	e.settleAfterAnswer(round, rs, p, result)
	return nil
}

// applyResult mutates scores, stats and lockout for one answer outcome.
func (e *Engine) applyResult(p *Player, rs *RoundSong, answer *Answer, result AnswerResult) {
	if result.IsCorrect {
		p.Stats.CorrectAnswers++
	} else {
		p.Stats.WrongAnswers++
	}

	if result.PointsAwarded != 0 {
		p.Score += result.PointsAwarded
		p.RoundScore += result.PointsAwarded
	}

	upd := PlayerUpdate{
		Score:      intPtr(p.Score),
		RoundScore: intPtr(p.RoundScore),
		Stats:      &p.Stats,
	}
	if result.LockOutPlayer {
		rs.LockedOut[p.ID] = true
		p.IsLockedOut = true
		upd.IsLockedOut = boolPtr(true)
	}
	e.persistPlayer(p, upd)
}

// settleAfterAnswer decides whether the song ends or reopens for buzzing.
func (e *Engine) settleAfterAnswer(round *Round, rs *RoundSong, p *Player, result AnswerResult) {
	mode := modeFor(round.ModeType)

	// Under manual validation a confirmed correct answer resolves the song
	// outright.
	if result.IsCorrect && mode.RequiresManualValidation() {
		rs.Status = SongFinished
	}

	if mode.ShouldEndSong(rs, e.activePlayerCount()) {
		e.endSong(round, rs)
		return
	}

	if p.ID == rs.ActivePlayerID {
		if !result.IsCorrect && !rs.Params.AllowRebuzz {
			e.endSong(round, rs)
			return
		}
		e.releaseBuzz(rs, p)
	}
}

// handleAnswerTimeout treats an expired answer deadline as a wrong answer
// from the active player: no penalty, lockout, then the usual settling.
func (e *Engine) handleAnswerTimeout() {
	round := e.currentRound()
	rs := e.currentSong()
	if round == nil || rs == nil || rs.Status != SongAnswering || rs.ActivePlayerID == "" {
		return
	}

	p := e.players[rs.ActivePlayerID]
	if p == nil {
		return
	}

	pendingType := AnswerTitle
	if rs.ArtistQuestion != nil && !rs.HasAnswered(p.ID, AnswerArtist) {
		pendingType = AnswerArtist
	}

	rs.LockedOut[p.ID] = true
	p.IsLockedOut = true
	p.Stats.WrongAnswers++
	e.persistPlayer(p, PlayerUpdate{IsLockedOut: boolPtr(true), Stats: &p.Stats})

	e.emit(Event{Type: EvAnswerResult, Data: AnswerResultData{
		PlayerID:   p.ID,
		PlayerName: p.Name,
		AnswerType: pendingType,
		IsCorrect:  false,
		Message:    "time expired",
	}}, AudienceAll())

	mode := modeFor(round.ModeType)
	if mode.ShouldEndSong(rs, e.activePlayerCount()) || !rs.Params.AllowRebuzz {
		e.endSong(round, rs)
		return
	}
	e.releaseBuzz(rs, p)
}

// Song and round progression

func (e *Engine) endSong(round *Round, rs *RoundSong) {
	e.stopTimer(&e.songTimer)
	e.stopTimer(&e.answerTimer)

	if rs.ActivePlayerID != "" {
		if p := e.players[rs.ActivePlayerID]; p != nil {
			p.IsActive = false
			e.persistPlayer(p, PlayerUpdate{IsActive: boolPtr(false)})
		}
		rs.ActivePlayerID = ""
	}
	rs.activeAnswered = false
	rs.Status = SongFinished

	e.emit(Event{Type: EvSongEnded, Data: SongEndedData{
		SongIndex:     rs.Index,
		CorrectTitle:  rs.Song.Title,
		CorrectArtist: rs.Song.Artist,
	}}, AudienceAll())

	if rs.Index+1 < len(round.Songs) {
		if _, err := e.store.Sessions.NextSong(e.session.ID); err != nil {
			logf(e.cfg, "STORE: advancing song in session %s: %v", e.session.ID, err)
		}
		e.startSong(round, rs.Index+1)
		return
	}

	e.endRound(round)
}

func (e *Engine) endRound(round *Round) {
	round.Status = RoundFinished

	scores := roundRanking(e.playerList())
	for _, p := range e.players {
		if p.Role == RolePlayer {
			e.roundScores[p.ID] = append(e.roundScores[p.ID], p.RoundScore)
		}
	}

	e.emit(Event{Type: EvRoundEnded, Data: RoundEndedData{
		RoundIndex: round.Index,
		Scores:     scores,
	}}, AudienceAll())
	logf(e.cfg, "GAME: Round %d ended in %s", round.Index, e.room.Code)

	if round.Index+1 < len(e.rounds) {
		next := e.rounds[round.Index+1]
		e.setRoomStatus(RoomBetweenRounds)

		e.emit(Event{Type: EvRoundBetween, Data: RoundBetweenData{
			CompletedRoundIndex: round.Index,
			NextRoundIndex:      next.Index,
			NextRoundMode:       next.ModeType,
			NextRoundMedia:      next.MediaType,
			Scores:              scores,
		}}, AudienceAll())

		if e.cfg.betweenRounds > 0 {
			e.armTimer(&e.betweenTimer, timerBetween, e.cfg.betweenRounds)
		}
		return
	}

	e.endGame()
}

func (e *Engine) advanceRound() {
	e.stopTimer(&e.betweenTimer)

	next := e.session.CurrentRoundIndex + 1
	if next >= len(e.rounds) {
		return
	}
	if _, err := e.store.Sessions.NextRound(e.session.ID); err != nil {
		logf(e.cfg, "STORE: advancing round in session %s: %v", e.session.ID, err)
	}

	e.setRoomStatus(RoomPlaying)
	e.startRound(next)
}

func (e *Engine) endGame() {
	final := make([]FinalScore, 0, len(e.players))
	for _, ps := range finalRanking(e.playerList(), e.roundScores) {
		final = append(final, FinalScore{
			PlayerID:    ps.PlayerID,
			PlayerName:  ps.PlayerName,
			TotalScore:  ps.Score,
			Rank:        ps.Rank,
			RoundScores: ps.RoundScores,
			Stats:       ps.Stats,
		})
	}

	now := time.Now()
	e.session.Status = SessionFinished
	e.session.EndedAt = &now
	if err := e.store.Sessions.EndSession(e.session.ID); err != nil {
		logf(e.cfg, "STORE: ending session %s: %v", e.session.ID, err)
	}
	e.setRoomStatus(RoomFinished)
	e.cancelTimers()

	e.emit(Event{Type: EvGameEnded, Data: GameEndedData{FinalScores: final}}, AudienceAll())
	logf(e.cfg, "GAME: Game ended in %s", e.room.Code)
}

// Master controls

func (e *Engine) pauseGame(conn *Conn) error {
	if conn.role != RoleMaster {
		return gameErr(ErrAuth, "only the master may pause the game")
	}
	if e.session == nil || e.session.Status != SessionPlaying {
		return gameErr(ErrState, "game is not running")
	}

	e.session.Status = SessionPaused
	if err := e.store.Sessions.SetStatus(e.session.ID, SessionPaused); err != nil {
		logf(e.cfg, "STORE: pausing session %s: %v", e.session.ID, err)
	}
	e.pauseTimer(&e.songTimer)
	e.pauseTimer(&e.answerTimer)

	e.emit(Event{Type: EvGamePaused}, AudienceAll())
	return nil
}

func (e *Engine) resumeGame(conn *Conn) error {
	if conn.role != RoleMaster {
		return gameErr(ErrAuth, "only the master may resume the game")
	}

	// Between rounds, resume doubles as the advance signal.
	if e.room.Status == RoomBetweenRounds {
		e.advanceRound()
		return nil
	}

	if e.session == nil || e.session.Status != SessionPaused {
		return gameErr(ErrState, "game is not paused")
	}

	e.session.Status = SessionPlaying
	if err := e.store.Sessions.SetStatus(e.session.ID, SessionPlaying); err != nil {
		logf(e.cfg, "STORE: resuming session %s: %v", e.session.ID, err)
	}
	// A clock frozen by a held buzz stays frozen until the buzz settles.
	if !e.songTimer.pausedByBuzz {
		e.resumeTimer(&e.songTimer, timerSong)
	}
	e.resumeTimer(&e.answerTimer, timerAnswer)

	e.emit(Event{Type: EvGameResumed}, AudienceAll())
	return nil
}

func (e *Engine) skipSong(conn *Conn) error {
	if conn.role != RoleMaster {
		return gameErr(ErrAuth, "only the master may skip")
	}
	round := e.currentRound()
	rs := e.currentSong()
	if round == nil || rs == nil || rs.Status == SongFinished {
		return gameErr(ErrState, "no song to skip")
	}

	e.emit(Event{Type: EvGameSkipped}, AudienceAll())
	e.endSong(round, rs)
	return nil
}

// Timers

func (e *Engine) armTimer(t *deadlineTimer, kind timerKind, d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	e.epoch++
	ep := e.epoch
	t.epoch = ep
	t.deadline = time.Now().Add(d)
	t.paused = false
	t.pausedByBuzz = false
	t.armed = true
	t.timer = time.AfterFunc(d, func() {
		e.post(evTimer{kind: kind, epoch: ep})
	})
}

func (e *Engine) pauseTimer(t *deadlineTimer) {
	if !t.armed || t.paused {
		return
	}
	t.remaining = time.Until(t.deadline)
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.timer.Stop()
	t.paused = true

	// Invalidate any firing already in flight.
	e.epoch++
	t.epoch = e.epoch
}

func (e *Engine) resumeTimer(t *deadlineTimer, kind timerKind) {
	if !t.armed || !t.paused {
		return
	}
	e.armTimer(t, kind, t.remaining)
}

func (e *Engine) stopTimer(t *deadlineTimer) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armed = false
	t.paused = false
	t.pausedByBuzz = false
	e.epoch++
	t.epoch = e.epoch
}

func (e *Engine) cancelTimers() {
	e.stopTimer(&e.songTimer)
	e.stopTimer(&e.answerTimer)
	e.stopTimer(&e.betweenTimer)
}

func (e *Engine) handleTimer(ev evTimer) {
	switch ev.kind {
	case timerSong:
		if ev.epoch != e.songTimer.epoch || !e.songTimer.armed {
			return
		}
		e.songTimer.armed = false
		round := e.currentRound()
		rs := e.currentSong()
		if round == nil || rs == nil || rs.Status == SongFinished {
			return
		}
		e.endSong(round, rs)

	case timerAnswer:
		if ev.epoch != e.answerTimer.epoch || !e.answerTimer.armed {
			return
		}
		e.answerTimer.armed = false
		e.handleAnswerTimeout()

	case timerBetween:
		if ev.epoch != e.betweenTimer.epoch || !e.betweenTimer.armed {
			return
		}
		e.betweenTimer.armed = false
		if e.room.Status == RoomBetweenRounds {
			e.advanceRound()
		}
	}
}

// Persistence helpers

func (e *Engine) setRoomStatus(status RoomStatus) {
	e.room.Status = status
	if _, err := e.store.Rooms.Update(e.roomID, RoomUpdate{Status: &status}); err != nil {
		logf(e.cfg, "STORE: updating room %s status: %v", e.roomID, err)
	}
}

func (e *Engine) persistPlayer(p *Player, upd PlayerUpdate) {
	if _, err := e.store.Players.Update(p.ID, upd); err != nil && err != ErrStoreNotFound {
		logf(e.cfg, "STORE: updating player %s: %v", p.ID, err)
	}
}
