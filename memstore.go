package main

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is the zero-configuration store: everything lives in maps behind
// one mutex. It backs local runs without postgres and doubles as the test
// store. Uniqueness of room codes and (roomId, name) is enforced here so
// simultaneous creates cannot both succeed.
type memStore struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	players   map[string]*Player
	sessions  map[string]*Session
	songs     map[string]*Song
	playlists map[string]*Playlist
}

func newMemStore() *Store {
	m := &memStore{
		rooms:     make(map[string]*Room),
		players:   make(map[string]*Player),
		sessions:  make(map[string]*Session),
		songs:     make(map[string]*Song),
		playlists: make(map[string]*Playlist),
	}
	return &Store{
		Rooms:     (*memRoomRepo)(m),
		Players:   (*memPlayerRepo)(m),
		Sessions:  (*memSessionRepo)(m),
		Songs:     (*memSongRepo)(m),
		Playlists: (*memPlaylistRepo)(m),
	}
}

type memRoomRepo memStore
type memPlayerRepo memStore
type memSessionRepo memStore
type memSongRepo memStore
type memPlaylistRepo memStore

func copyRoom(r *Room) *Room {
	c := *r
	return &c
}

func copyPlayer(p *Player) *Player {
	c := *p
	return &c
}

// Rooms

func (m *memRoomRepo) FindByID(id string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return copyRoom(r), nil
}

func (m *memRoomRepo) FindByCode(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rooms {
		if r.Code == code {
			return copyRoom(r), nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *memRoomRepo) FindByStatus(status RoomStatus) ([]*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Room
	for _, r := range m.rooms {
		if r.Status == status {
			out = append(out, copyRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRoomRepo) Create(room *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room.ID]; ok {
		return ErrStoreConflict
	}
	for _, r := range m.rooms {
		if r.Code == room.Code && r.Status != RoomFinished {
			return ErrStoreConflict
		}
	}
	m.rooms[room.ID] = copyRoom(room)
	return nil
}

func (m *memRoomRepo) Update(id string, upd RoomUpdate) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Status != nil {
		r.Status = *upd.Status
	}
	if upd.MaxPlayers != nil {
		r.MaxPlayers = *upd.MaxPlayers
	}
	r.UpdatedAt = time.Now()
	return copyRoom(r), nil
}

// Delete cascades to players and sessions of the room.
func (m *memRoomRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.rooms, id)
	for pid, p := range m.players {
		if p.RoomID == id {
			delete(m.players, pid)
		}
	}
	for sid, s := range m.sessions {
		if s.RoomID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

func (m *memRoomRepo) GetMasterToken(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return "", ErrStoreNotFound
	}
	return r.MasterToken, nil
}

// Players

func (m *memPlayerRepo) FindByID(id string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return copyPlayer(p), nil
}

func (m *memPlayerRepo) FindByRoom(roomID string) ([]*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Player
	for _, p := range m.players {
		if p.RoomID == roomID {
			out = append(out, copyPlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memPlayerRepo) FindByRoomAndName(roomID, name string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.players {
		if p.RoomID == roomID && strings.EqualFold(p.Name, name) {
			return copyPlayer(p), nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *memPlayerRepo) CountConnected(roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.players {
		if p.RoomID == roomID && p.Role == RolePlayer && p.Connected {
			count++
		}
	}
	return count, nil
}

func (m *memPlayerRepo) Create(player *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[player.ID]; ok {
		return ErrStoreConflict
	}
	for _, p := range m.players {
		if p.RoomID == player.RoomID && strings.EqualFold(p.Name, player.Name) {
			return ErrStoreConflict
		}
	}
	m.players[player.ID] = copyPlayer(player)
	return nil
}

func (m *memPlayerRepo) Update(id string, upd PlayerUpdate) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Connected != nil {
		p.Connected = *upd.Connected
	}
	if upd.Score != nil {
		p.Score = *upd.Score
	}
	if upd.RoundScore != nil {
		p.RoundScore = *upd.RoundScore
	}
	if upd.IsActive != nil {
		p.IsActive = *upd.IsActive
	}
	if upd.IsLockedOut != nil {
		p.IsLockedOut = *upd.IsLockedOut
	}
	if upd.Stats != nil {
		p.Stats = *upd.Stats
	}
	return copyPlayer(p), nil
}

func (m *memPlayerRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.players, id)
	return nil
}

func (m *memPlayerRepo) DeleteByRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.players {
		if p.RoomID == roomID {
			delete(m.players, id)
		}
	}
	return nil
}

func (m *memPlayerRepo) ResetScores(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.players {
		if p.RoomID == roomID {
			p.Score = 0
			p.RoundScore = 0
		}
	}
	return nil
}

// Sessions

func (m *memSessionRepo) FindByID(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	c := *s
	return &c, nil
}

func (m *memSessionRepo) FindByRoom(roomID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.RoomID == roomID && s.Status != SessionFinished {
			c := *s
			return &c, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (m *memSessionRepo) Create(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; ok {
		return ErrStoreConflict
	}
	c := *session
	m.sessions[session.ID] = &c
	return nil
}

func (m *memSessionRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) EndSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrStoreNotFound
	}
	now := time.Now()
	s.Status = SessionFinished
	s.EndedAt = &now
	return nil
}

func (m *memSessionRepo) NextRound(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	s.CurrentRoundIndex++
	s.CurrentSongIndex = 0
	c := *s
	return &c, nil
}

func (m *memSessionRepo) NextSong(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	s.CurrentSongIndex++
	c := *s
	return &c, nil
}

func (m *memSessionRepo) SetStatus(id string, status SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrStoreNotFound
	}
	s.Status = status
	return nil
}

// Songs

func (m *memSongRepo) FindByID(id string) (*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.songs[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	c := *s
	return &c, nil
}

func (m *memSongRepo) FindByIDs(ids []string) ([]*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Song, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.songs[id]; ok {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memSongRepo) FindByFilters(filters SongFilters) ([]*Song, error) {
	m.mu.RLock()

	var pool []*Song
	for _, s := range m.songs {
		if !matchesFilters(s, filters) {
			continue
		}
		c := *s
		pool = append(pool, &c)
	}
	m.mu.RUnlock()

	shuffleSongs(pool)
	if filters.SongCount > 0 && len(pool) > filters.SongCount {
		pool = pool[:filters.SongCount]
	}
	return pool, nil
}

func matchesFilters(s *Song, f SongFilters) bool {
	if s.Niche && !f.IncludeNiche {
		return false
	}
	if f.Genre != "" && !strings.EqualFold(s.Genre, f.Genre) {
		return false
	}
	if f.ArtistName != "" && !strings.EqualFold(s.Artist, f.ArtistName) {
		return false
	}
	if f.YearMin != 0 && s.Year < f.YearMin {
		return false
	}
	if f.YearMax != 0 && s.Year > f.YearMax {
		return false
	}
	return true
}

func (m *memSongRepo) FindSimilar(filter SimilarFilter) ([]*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Song
	for _, s := range m.songs {
		if s.ID == filter.ExcludeSongID {
			continue
		}
		// Same-genre or same-era, matching the sql store's predicate.
		if !strings.EqualFold(s.Genre, filter.Genre) &&
			(s.Year < filter.YearMin || s.Year > filter.YearMax) {
			continue
		}
		if filter.Language != "" && s.Language != "" && !strings.EqualFold(s.Language, filter.Language) {
			continue
		}
		c := *s
		out = append(out, &c)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memSongRepo) GetRandom(count int, includeNiche bool) ([]*Song, error) {
	m.mu.RLock()

	var pool []*Song
	for _, s := range m.songs {
		if s.Niche && !includeNiche {
			continue
		}
		c := *s
		pool = append(pool, &c)
	}
	m.mu.RUnlock()

	shuffleSongs(pool)
	if count > 0 && len(pool) > count {
		pool = pool[:count]
	}
	return pool, nil
}

func (m *memSongRepo) List() ([]*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Song, 0, len(m.songs))
	for _, s := range m.songs {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memSongRepo) Create(song *Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.songs[song.ID]; ok {
		return ErrStoreConflict
	}
	for _, s := range m.songs {
		if strings.EqualFold(s.Title, song.Title) && strings.EqualFold(s.Artist, song.Artist) {
			return ErrStoreConflict
		}
	}
	c := *song
	m.songs[song.ID] = &c
	return nil
}

func (m *memSongRepo) Update(song *Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.songs[song.ID]; !ok {
		return ErrStoreNotFound
	}
	c := *song
	m.songs[song.ID] = &c
	return nil
}

func (m *memSongRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.songs[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.songs, id)
	return nil
}

// Playlists

func (m *memPlaylistRepo) FindByID(id string) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.playlists[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	c := *p
	c.SongIDs = append([]string(nil), p.SongIDs...)
	return &c, nil
}

func (m *memPlaylistRepo) List() ([]*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Playlist, 0, len(m.playlists))
	for _, p := range m.playlists {
		c := *p
		c.SongIDs = append([]string(nil), p.SongIDs...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPlaylistRepo) Create(playlist *Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playlists[playlist.ID]; ok {
		return ErrStoreConflict
	}
	c := *playlist
	c.SongIDs = append([]string(nil), playlist.SongIDs...)
	m.playlists[playlist.ID] = &c
	return nil
}

func (m *memPlaylistRepo) Update(playlist *Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playlists[playlist.ID]; !ok {
		return ErrStoreNotFound
	}
	c := *playlist
	c.SongIDs = append([]string(nil), playlist.SongIDs...)
	m.playlists[playlist.ID] = &c
	return nil
}

func (m *memPlaylistRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playlists[id]; !ok {
		return ErrStoreNotFound
	}
	delete(m.playlists, id)
	return nil
}

func (m *memPlaylistRepo) SetSongs(id string, songIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.playlists[id]
	if !ok {
		return ErrStoreNotFound
	}
	p.SongIDs = append([]string(nil), songIDs...)
	return nil
}

func shuffleSongs(songs []*Song) {
	rand.Shuffle(len(songs), func(i, j int) {
		songs[i], songs[j] = songs[j], songs[i]
	})
}
