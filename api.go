package main

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	roomCodeLength   = 4
	roomCodeAttempts = 16
	maxBodyBytes     = 1 << 20
)

// roomCode generates an unambiguous uppercase join code: no I, O, 0 or 1.
func roomCode(n int) string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

func masterToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	writeJSON(cfg, w, httpStatus(errKind(err)), map[string]any{
		"error": errPayload(err),
	})
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return gameErr(ErrValidation, "malformed request body")
	}
	return nil
}

// requireMaster checks the X-Master-Token header (or token query parameter)
// against the room's stored token.
func requireMaster(store *Store, r *http.Request, roomID string) error {
	token := r.Header.Get("X-Master-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return gameErr(ErrAuth, "missing master token")
	}

	stored, err := store.Rooms.GetMasterToken(roomID)
	if err != nil {
		return gameErr(ErrNotFound, "unknown room %s", roomID)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return gameErr(ErrAuth, "invalid master token")
	}
	return nil
}

// requireAdmin gates the library endpoints behind basic auth. An empty
// configured password disables them entirely.
func requireAdmin(cfg *Config, r *http.Request) error {
	if cfg.adminPassword == "" {
		return gameErr(ErrAuth, "library administration is disabled")
	}
	_, pass, ok := r.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.adminPassword)) != 1 {
		return gameErr(ErrAuth, "invalid credentials")
	}
	return nil
}

// Rooms

type createRoomRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type createRoomResponse struct {
	Room        *Room  `json:"room"`
	MasterToken string `json:"masterToken"`
}

func handleCreateRoom(cfg *Config, store *Store, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, err)
			return
		}
		if req.MaxPlayers < 0 {
			writeError(cfg, w, gameErr(ErrValidation, "maxPlayers must not be negative"))
			return
		}

		room := &Room{
			ID:          uuid.NewString(),
			Name:        req.Name,
			MasterIP:    realIP(r),
			Status:      RoomLobby,
			MaxPlayers:  req.MaxPlayers,
			MasterToken: masterToken(),
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		var err error
		for i := 0; i < roomCodeAttempts; i++ {
			room.Code = roomCode(roomCodeLength)
			if err = store.Rooms.Create(room); err != ErrStoreConflict {
				break
			}
		}
		if err != nil {
			writeError(cfg, w, gameErr(ErrInternal, "could not allocate a room code"))
			return
		}

		hub.snapshotLobby(room, nil)
		logf(cfg, "API: Room %s (%s) created by %s", room.Code, room.ID, realIP(r))

		writeJSON(cfg, w, http.StatusCreated, createRoomResponse{
			Room:        room,
			MasterToken: room.MasterToken,
		})
	}
}

func handleListRooms(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		rooms, err := store.Rooms.FindByStatus(RoomLobby)
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"rooms": rooms})
	}
}

func handleGetRoom(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := findRoom(store, ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		players, err := store.Players.FindByRoom(room.ID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"room":    room,
			"players": players,
		})
	}
}

// findRoom resolves either a room id or a join code.
func findRoom(store *Store, key string) (*Room, error) {
	if len(key) == roomCodeLength {
		if room, err := store.Rooms.FindByCode(key); err == nil {
			return room, nil
		}
	}
	room, err := store.Rooms.FindByID(key)
	if err != nil {
		return nil, gameErr(ErrNotFound, "unknown room %s", key)
	}
	return room, nil
}

func handleDeleteRoom(cfg *Config, store *Store, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := findRoom(store, ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		if err := requireMaster(store, r, room.ID); err != nil {
			writeError(cfg, w, err)
			return
		}

		hub.Release(room.ID)
		hub.dropSnapshot(room.ID)
		if err := store.Rooms.Delete(room.ID); err != nil {
			writeError(cfg, w, err)
			return
		}

		logf(cfg, "API: Room %s (%s) deleted", room.Code, room.ID)
		writeJSON(cfg, w, http.StatusOK, map[string]any{"deleted": room.ID})
	}
}

func handleListPlayers(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := findRoom(store, ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		players, err := store.Players.FindByRoom(room.ID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"players": players})
	}
}

type startGameRequest struct {
	Rounds []RoundConfig `json:"rounds"`
}

func handleStartGame(cfg *Config, store *Store, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := findRoom(store, ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		if err := requireMaster(store, r, room.ID); err != nil {
			writeError(cfg, w, err)
			return
		}

		var req startGameRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, err)
			return
		}

		if err := hub.StartGame(room.ID, req.Rounds); err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{"started": room.ID})
	}
}

// Discovery

func handleListModes(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		modes := make([]map[string]any, 0, len(modeRegistry))
		for _, t := range modeTypes() {
			m := modeFor(t)
			modes = append(modes, map[string]any{
				"type":             t,
				"manualValidation": m.RequiresManualValidation(),
				"pausesOnBuzz":     m.PausesOnBuzz(),
			})
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"modes": modes})
	}
}

func handleListMedia(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, map[string]any{"mediaTypes": mediaTypes()})
	}
}

// Song library (admin)

func handleListSongs(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		songs, err := store.Songs.List()
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"songs": songs})
	}
}

func validateSong(s *Song) error {
	if s.Title == "" || s.Artist == "" {
		return gameErr(ErrValidation, "title and artist are required")
	}
	if s.FilePath == "" {
		return gameErr(ErrValidation, "filePath is required")
	}
	return nil
}

func handleCreateSong(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}

		var song Song
		if err := readJSON(r, &song); err != nil {
			writeError(cfg, w, err)
			return
		}
		if err := validateSong(&song); err != nil {
			writeError(cfg, w, err)
			return
		}
		if song.ID == "" {
			song.ID = uuid.NewString()
		}

		if err := store.Songs.Create(&song); err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusCreated, &song)
	}
}

func handleGetSong(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		song, err := store.Songs.FindByID(ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, song)
	}
}

func handleUpdateSong(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}

		var song Song
		if err := readJSON(r, &song); err != nil {
			writeError(cfg, w, err)
			return
		}
		song.ID = ps.ByName("id")
		if err := validateSong(&song); err != nil {
			writeError(cfg, w, err)
			return
		}

		if err := store.Songs.Update(&song); err != nil {
			writeError(cfg, w, err)
			return
		}

		// Distractor pools built from the old row are stale now.
		similarPools.Remove(song.ID)

		writeJSON(cfg, w, http.StatusOK, &song)
	}
}

func handleDeleteSong(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		id := ps.ByName("id")
		if err := store.Songs.Delete(id); err != nil {
			writeError(cfg, w, err)
			return
		}
		similarPools.Remove(id)
		writeJSON(cfg, w, http.StatusOK, map[string]any{"deleted": id})
	}
}

// Playlists (admin)

func handleListPlaylists(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		playlists, err := store.Playlists.List()
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"playlists": playlists})
	}
}

func handleCreatePlaylist(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}

		var playlist Playlist
		if err := readJSON(r, &playlist); err != nil {
			writeError(cfg, w, err)
			return
		}
		if playlist.Name == "" {
			writeError(cfg, w, gameErr(ErrValidation, "name is required"))
			return
		}
		if playlist.ID == "" {
			playlist.ID = uuid.NewString()
		}

		if err := store.Playlists.Create(&playlist); err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusCreated, &playlist)
	}
}

func handleGetPlaylist(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		playlist, err := store.Playlists.FindByID(ps.ByName("id"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, playlist)
	}
}

type setPlaylistSongsRequest struct {
	SongIDs []string `json:"songIds"`
}

func handleSetPlaylistSongs(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}

		var req setPlaylistSongsRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, err)
			return
		}

		// Reject references to songs that do not exist.
		songs, err := store.Songs.FindByIDs(req.SongIDs)
		if err != nil {
			writeError(cfg, w, err)
			return
		}
		if len(songs) != len(req.SongIDs) {
			writeError(cfg, w, gameErr(ErrValidation, "playlist references unknown songs"))
			return
		}

		if err := store.Playlists.SetSongs(ps.ByName("id"), req.SongIDs); err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"updated": ps.ByName("id")})
	}
}

func handleDeletePlaylist(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := requireAdmin(cfg, r); err != nil {
			writeError(cfg, w, err)
			return
		}
		id := ps.ByName("id")
		if err := store.Playlists.Delete(id); err != nil {
			writeError(cfg, w, err)
			return
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"deleted": id})
	}
}

// Lobby mirror

func handleListLobbies(cfg *Config, store *Store, snapshots *SnapshotStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if snapshots != nil {
			lobbies, err := snapshots.ListLobbies()
			if err == nil {
				writeJSON(cfg, w, http.StatusOK, map[string]any{"lobbies": lobbies})
				return
			}
			logf(cfg, "REDIS: listing lobbies: %v", err)
		}

		// Fall back to the primary store when the mirror is absent.
		rooms, err := store.Rooms.FindByStatus(RoomLobby)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		lobbies := make([]LobbySnapshot, 0, len(rooms))
		for _, room := range rooms {
			count, err := store.Players.CountConnected(room.ID)
			if err != nil {
				continue
			}
			lobbies = append(lobbies, LobbySnapshot{
				RoomID:      room.ID,
				Code:        room.Code,
				Name:        room.Name,
				PlayerCount: count,
				MaxPlayers:  room.MaxPlayers,
				UpdatedAt:   room.UpdatedAt,
			})
		}
		writeJSON(cfg, w, http.StatusOK, map[string]any{"lobbies": lobbies})
	}
}

// QR codes

func serveRoomQR(cfg *Config, store *Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		room, err := store.Rooms.FindByCode(ps.ByName("code"))
		if err != nil {
			writeError(cfg, w, gameErr(ErrNotFound, "unknown room code"))
			return
		}

		joinURL := cfg.scheme() + "://" + r.Host + cfg.prefix + "/join/" + room.Code
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			writeError(cfg, w, gameErr(ErrInternal, "could not render QR code"))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: QR code for %s (%s) to %s in %s",
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func registerAPIRoutes(cfg *Config, store *Store, hub *Hub, snapshots *SnapshotStore, mux *httprouter.Router, errs chan<- error) {
	prefix := cfg.prefix

	mux.POST(prefix+"/api/rooms", handleCreateRoom(cfg, store, hub))
	mux.GET(prefix+"/api/rooms", handleListRooms(cfg, store))
	mux.GET(prefix+"/api/rooms/:id", handleGetRoom(cfg, store))
	mux.DELETE(prefix+"/api/rooms/:id", handleDeleteRoom(cfg, store, hub))
	mux.GET(prefix+"/api/rooms/:id/players", handleListPlayers(cfg, store))
	mux.POST(prefix+"/api/rooms/:id/start", handleStartGame(cfg, store, hub))

	mux.GET(prefix+"/api/lobbies", handleListLobbies(cfg, store, snapshots))

	mux.GET(prefix+"/api/modes", handleListModes(cfg))
	mux.GET(prefix+"/api/media", handleListMedia(cfg))

	mux.GET(prefix+"/api/songs", handleListSongs(cfg, store))
	mux.POST(prefix+"/api/songs", handleCreateSong(cfg, store))
	mux.GET(prefix+"/api/songs/:id", handleGetSong(cfg, store))
	mux.PUT(prefix+"/api/songs/:id", handleUpdateSong(cfg, store))
	mux.DELETE(prefix+"/api/songs/:id", handleDeleteSong(cfg, store))

	mux.GET(prefix+"/api/playlists", handleListPlaylists(cfg, store))
	mux.POST(prefix+"/api/playlists", handleCreatePlaylist(cfg, store))
	mux.GET(prefix+"/api/playlists/:id", handleGetPlaylist(cfg, store))
	mux.PUT(prefix+"/api/playlists/:id/songs", handleSetPlaylistSongs(cfg, store))
	mux.DELETE(prefix+"/api/playlists/:id", handleDeletePlaylist(cfg, store))

	mux.GET(prefix+"/room/:code/qr", serveRoomQR(cfg, store, errs))

	mux.GET(prefix+"/ws/:roomid", serveWS(cfg, hub))
}
