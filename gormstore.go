package main

import (
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormStore persists rooms, players, sessions, songs and playlists in
// postgres. In-flight gameplay state (rounds, buzzes, answers) is engine
// memory only; rooms are ephemeral once play begins.
type gormStore struct {
	db *gorm.DB
}

func newGormStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Room{}, &Player{}, &Session{}, &Song{}, &Playlist{}); err != nil {
		return nil, err
	}

	g := &gormStore{db: db}
	return &Store{
		Rooms:     (*gormRoomRepo)(g),
		Players:   (*gormPlayerRepo)(g),
		Sessions:  (*gormSessionRepo)(g),
		Songs:     (*gormSongRepo)(g),
		Playlists: (*gormPlaylistRepo)(g),
	}, nil
}

type gormRoomRepo gormStore
type gormPlayerRepo gormStore
type gormSessionRepo gormStore
type gormSongRepo gormStore
type gormPlaylistRepo gormStore

func mapGormErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrStoreNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrStoreConflict
	default:
		return err
	}
}

// Rooms

func (g *gormRoomRepo) FindByID(id string) (*Room, error) {
	var room Room
	if err := g.db.First(&room, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &room, nil
}

func (g *gormRoomRepo) FindByCode(code string) (*Room, error) {
	var room Room
	if err := g.db.First(&room, "code = ?", code).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &room, nil
}

func (g *gormRoomRepo) FindByStatus(status RoomStatus) ([]*Room, error) {
	var rooms []*Room
	if err := g.db.Where("status = ?", status).Order("created_at").Find(&rooms).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return rooms, nil
}

func (g *gormRoomRepo) Create(room *Room) error {
	return mapGormErr(g.db.Create(room).Error)
}

func (g *gormRoomRepo) Update(id string, upd RoomUpdate) (*Room, error) {
	updates := map[string]any{"updated_at": time.Now()}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Status != nil {
		updates["status"] = *upd.Status
	}
	if upd.MaxPlayers != nil {
		updates["max_players"] = *upd.MaxPlayers
	}

	res := g.db.Model(&Room{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrStoreNotFound
	}
	return (*gormRoomRepo)(g).FindByID(id)
}

// Delete cascades to players and sessions of the room.
func (g *gormRoomRepo) Delete(id string) error {
	return mapGormErr(g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&Player{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&Session{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Room{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

func (g *gormRoomRepo) GetMasterToken(id string) (string, error) {
	var room Room
	if err := g.db.Select("master_token").First(&room, "id = ?", id).Error; err != nil {
		return "", mapGormErr(err)
	}
	return room.MasterToken, nil
}

// Players

func (g *gormPlayerRepo) FindByID(id string) (*Player, error) {
	var player Player
	if err := g.db.First(&player, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &player, nil
}

func (g *gormPlayerRepo) FindByRoom(roomID string) ([]*Player, error) {
	var players []*Player
	if err := g.db.Where("room_id = ?", roomID).Order("created_at").Find(&players).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return players, nil
}

func (g *gormPlayerRepo) FindByRoomAndName(roomID, name string) (*Player, error) {
	var player Player
	err := g.db.Where("room_id = ? AND lower(name) = lower(?)", roomID, name).First(&player).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &player, nil
}

func (g *gormPlayerRepo) CountConnected(roomID string) (int, error) {
	var count int64
	err := g.db.Model(&Player{}).
		Where("room_id = ? AND role = ? AND connected", roomID, RolePlayer).
		Count(&count).Error
	return int(count), mapGormErr(err)
}

// Create enforces case-insensitive name uniqueness within the room; the
// idx_room_name index alone only catches exact-case duplicates.
func (g *gormPlayerRepo) Create(player *Player) error {
	var count int64
	g.db.Model(&Player{}).
		Where("room_id = ? AND lower(name) = lower(?)", player.RoomID, player.Name).
		Count(&count)
	if count > 0 {
		return ErrStoreConflict
	}
	return mapGormErr(g.db.Create(player).Error)
}

func (g *gormPlayerRepo) Update(id string, upd PlayerUpdate) (*Player, error) {
	updates := map[string]any{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Connected != nil {
		updates["connected"] = *upd.Connected
	}
	if upd.Score != nil {
		updates["score"] = *upd.Score
	}
	if upd.RoundScore != nil {
		updates["round_score"] = *upd.RoundScore
	}
	if upd.IsActive != nil {
		updates["is_active"] = *upd.IsActive
	}
	if upd.IsLockedOut != nil {
		updates["is_locked_out"] = *upd.IsLockedOut
	}
	if upd.Stats != nil {
		updates["stat_buzzes"] = upd.Stats.Buzzes
		updates["stat_correct_answers"] = upd.Stats.CorrectAnswers
		updates["stat_wrong_answers"] = upd.Stats.WrongAnswers
	}

	res := g.db.Model(&Player{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrStoreNotFound
	}
	return (*gormPlayerRepo)(g).FindByID(id)
}

func (g *gormPlayerRepo) Delete(id string) error {
	res := g.db.Delete(&Player{}, "id = ?", id)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormPlayerRepo) DeleteByRoom(roomID string) error {
	return mapGormErr(g.db.Where("room_id = ?", roomID).Delete(&Player{}).Error)
}

func (g *gormPlayerRepo) ResetScores(roomID string) error {
	return mapGormErr(g.db.Model(&Player{}).
		Where("room_id = ?", roomID).
		Updates(map[string]any{"score": 0, "round_score": 0}).Error)
}

// Sessions

func (g *gormSessionRepo) FindByID(id string) (*Session, error) {
	var session Session
	if err := g.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &session, nil
}

func (g *gormSessionRepo) FindByRoom(roomID string) (*Session, error) {
	var session Session
	err := g.db.Where("room_id = ? AND status <> ?", roomID, SessionFinished).First(&session).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return &session, nil
}

func (g *gormSessionRepo) Create(session *Session) error {
	return mapGormErr(g.db.Create(session).Error)
}

func (g *gormSessionRepo) Delete(id string) error {
	res := g.db.Delete(&Session{}, "id = ?", id)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormSessionRepo) EndSession(id string) error {
	now := time.Now()
	res := g.db.Model(&Session{}).Where("id = ?", id).
		Updates(map[string]any{"status": SessionFinished, "ended_at": now})
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormSessionRepo) NextRound(id string) (*Session, error) {
	err := g.db.Model(&Session{}).Where("id = ?", id).
		Updates(map[string]any{
			"current_round_index": gorm.Expr("current_round_index + 1"),
			"current_song_index":  0,
		}).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return (*gormSessionRepo)(g).FindByID(id)
}

func (g *gormSessionRepo) NextSong(id string) (*Session, error) {
	err := g.db.Model(&Session{}).Where("id = ?", id).
		Update("current_song_index", gorm.Expr("current_song_index + 1")).Error
	if err != nil {
		return nil, mapGormErr(err)
	}
	return (*gormSessionRepo)(g).FindByID(id)
}

func (g *gormSessionRepo) SetStatus(id string, status SessionStatus) error {
	res := g.db.Model(&Session{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

// Songs

func (g *gormSongRepo) FindByID(id string) (*Song, error) {
	var song Song
	if err := g.db.First(&song, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &song, nil
}

func (g *gormSongRepo) FindByIDs(ids []string) ([]*Song, error) {
	var songs []*Song
	if err := g.db.Where("id IN ?", ids).Find(&songs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return songs, nil
}

func (g *gormSongRepo) FindByFilters(filters SongFilters) ([]*Song, error) {
	q := g.db.Model(&Song{})
	if !filters.IncludeNiche {
		q = q.Where("not niche")
	}
	if filters.Genre != "" {
		q = q.Where("lower(genre) = lower(?)", filters.Genre)
	}
	if filters.ArtistName != "" {
		q = q.Where("lower(artist) = lower(?)", filters.ArtistName)
	}
	if filters.YearMin != 0 {
		q = q.Where("year >= ?", filters.YearMin)
	}
	if filters.YearMax != 0 {
		q = q.Where("year <= ?", filters.YearMax)
	}
	q = q.Order("random()")
	if filters.SongCount > 0 {
		q = q.Limit(filters.SongCount)
	}

	var songs []*Song
	if err := q.Find(&songs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return songs, nil
}

func (g *gormSongRepo) FindSimilar(filter SimilarFilter) ([]*Song, error) {
	q := g.db.Model(&Song{}).Where("id <> ?", filter.ExcludeSongID)
	q = q.Where("lower(genre) = lower(?) OR (year >= ? AND year <= ?)",
		filter.Genre, filter.YearMin, filter.YearMax)
	if filter.Language != "" {
		q = q.Where("language = '' OR lower(language) = lower(?)", filter.Language)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var songs []*Song
	if err := q.Find(&songs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return songs, nil
}

func (g *gormSongRepo) GetRandom(count int, includeNiche bool) ([]*Song, error) {
	q := g.db.Model(&Song{}).Order("random()")
	if !includeNiche {
		q = q.Where("not niche")
	}
	if count > 0 {
		q = q.Limit(count)
	}

	var songs []*Song
	if err := q.Find(&songs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return songs, nil
}

func (g *gormSongRepo) List() ([]*Song, error) {
	var songs []*Song
	if err := g.db.Order("title").Find(&songs).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return songs, nil
}

func (g *gormSongRepo) Create(song *Song) error {
	var count int64
	g.db.Model(&Song{}).
		Where("lower(title) = lower(?) AND lower(artist) = lower(?)", song.Title, song.Artist).
		Count(&count)
	if count > 0 {
		return ErrStoreConflict
	}
	return mapGormErr(g.db.Create(song).Error)
}

func (g *gormSongRepo) Update(song *Song) error {
	res := g.db.Model(&Song{}).Where("id = ?", song.ID).Updates(song)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormSongRepo) Delete(id string) error {
	res := g.db.Delete(&Song{}, "id = ?", id)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

// Playlists

func (g *gormPlaylistRepo) FindByID(id string) (*Playlist, error) {
	var playlist Playlist
	if err := g.db.First(&playlist, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &playlist, nil
}

func (g *gormPlaylistRepo) List() ([]*Playlist, error) {
	var playlists []*Playlist
	if err := g.db.Order("name").Find(&playlists).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return playlists, nil
}

func (g *gormPlaylistRepo) Create(playlist *Playlist) error {
	return mapGormErr(g.db.Create(playlist).Error)
}

func (g *gormPlaylistRepo) Update(playlist *Playlist) error {
	res := g.db.Model(&Playlist{}).Where("id = ?", playlist.ID).Updates(playlist)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormPlaylistRepo) Delete(id string) error {
	res := g.db.Delete(&Playlist{}, "id = ?", id)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (g *gormPlaylistRepo) SetSongs(id string, songIDs []string) error {
	res := g.db.Model(&Playlist{}).Where("id = ?", id).Update("song_ids", songIDs)
	if res.Error != nil {
		return mapGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}
