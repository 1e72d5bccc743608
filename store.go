package main

import "errors"

// Sentinel store errors; errKind maps them onto the wire taxonomy.
var (
	ErrStoreNotFound = errors.New("record not found")
	ErrStoreConflict = errors.New("record conflicts with an existing one")
)

// RoomUpdate is the mutable subset of a Room. Nil fields are left unchanged.
type RoomUpdate struct {
	Name       *string
	Status     *RoomStatus
	MaxPlayers *int
}

// PlayerUpdate is the mutable subset of a Player.
type PlayerUpdate struct {
	Name        *string
	Connected   *bool
	Score       *int
	RoundScore  *int
	IsActive    *bool
	IsLockedOut *bool
	Stats       *PlayerStats
}

type RoomRepo interface {
	FindByID(id string) (*Room, error)
	FindByCode(code string) (*Room, error)
	FindByStatus(status RoomStatus) ([]*Room, error)
	Create(room *Room) error
	Update(id string, upd RoomUpdate) (*Room, error)
	Delete(id string) error
	GetMasterToken(id string) (string, error)
}

type PlayerRepo interface {
	FindByID(id string) (*Player, error)
	FindByRoom(roomID string) ([]*Player, error)
	FindByRoomAndName(roomID, name string) (*Player, error)
	CountConnected(roomID string) (int, error)
	Create(player *Player) error
	Update(id string, upd PlayerUpdate) (*Player, error)
	Delete(id string) error
	DeleteByRoom(roomID string) error
	ResetScores(roomID string) error
}

type SessionRepo interface {
	FindByID(id string) (*Session, error)
	FindByRoom(roomID string) (*Session, error)
	Create(session *Session) error
	Delete(id string) error
	EndSession(id string) error
	NextRound(id string) (*Session, error)
	NextSong(id string) (*Session, error)
	SetStatus(id string, status SessionStatus) error
}

type SongRepo interface {
	FindByID(id string) (*Song, error)
	FindByIDs(ids []string) ([]*Song, error)
	FindByFilters(filters SongFilters) ([]*Song, error)
	FindSimilar(filter SimilarFilter) ([]*Song, error)
	GetRandom(count int, includeNiche bool) ([]*Song, error)
	List() ([]*Song, error)
	Create(song *Song) error
	Update(song *Song) error
	Delete(id string) error
}

type PlaylistRepo interface {
	FindByID(id string) (*Playlist, error)
	List() ([]*Playlist, error)
	Create(playlist *Playlist) error
	Update(playlist *Playlist) error
	Delete(id string) error
	SetSongs(id string, songIDs []string) error
}

// Store bundles the five repository contracts the engine depends on.
// Implementations must be safe for concurrent use across rooms.
type Store struct {
	Rooms     RoomRepo
	Players   PlayerRepo
	Sessions  SessionRepo
	Songs     SongRepo
	Playlists PlaylistRepo
}
