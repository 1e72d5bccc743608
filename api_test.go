package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type apiRig struct {
	cfg    *Config
	store  *Store
	hub    *Hub
	router *httprouter.Router
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()

	cfg := testConfig()
	cfg.adminPassword = "hunter2"

	store := newMemStore()
	hub := newHub(cfg, store, nil, nil)

	router := httprouter.New()
	errs := make(chan error, 16)
	registerAPIRoutes(cfg, store, hub, nil, router, errs)

	return &apiRig{cfg: cfg, store: store, hub: hub, router: router}
}

func (r *apiRig) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for _, o := range opts {
		o(req)
	}

	rec := httptest.NewRecorder()
	r.router.ServeHTTP(rec, req)
	return rec
}

func asAdmin(req *http.Request) {
	req.SetBasicAuth("admin", "hunter2")
}

func withToken(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("X-Master-Token", token)
	}
}

func (r *apiRig) createRoom(t *testing.T) createRoomResponse {
	t.Helper()

	rec := r.do(t, http.MethodPost, "/api/rooms", createRoomRequest{Name: "test", MaxPlayers: 8})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateRoom(t *testing.T) {
	rig := newAPIRig(t)

	resp := rig.createRoom(t)
	require.Len(t, resp.Room.Code, roomCodeLength)
	require.NotEmpty(t, resp.MasterToken)
	require.Equal(t, RoomLobby, resp.Room.Status)

	// The token is handed out exactly once; the room object never carries it.
	raw, err := json.Marshal(resp.Room)
	require.NoError(t, err)
	require.NotContains(t, string(raw), resp.MasterToken)
}

func TestGetRoomByIDAndCode(t *testing.T) {
	rig := newAPIRig(t)
	created := rig.createRoom(t)

	for _, key := range []string{created.Room.ID, created.Room.Code} {
		rec := rig.do(t, http.MethodGet, "/api/rooms/"+key, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Room    *Room     `json:"room"`
			Players []*Player `json:"players"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, created.Room.ID, resp.Room.ID)
	}

	rec := rig.do(t, http.MethodGet, "/api/rooms/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRoomRequiresToken(t *testing.T) {
	rig := newAPIRig(t)
	created := rig.createRoom(t)

	rec := rig.do(t, http.MethodDelete, "/api/rooms/"+created.Room.ID, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = rig.do(t, http.MethodDelete, "/api/rooms/"+created.Room.ID, nil, withToken("wrong"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = rig.do(t, http.MethodDelete, "/api/rooms/"+created.Room.ID, nil, withToken(created.MasterToken))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := rig.store.Rooms.FindByID(created.Room.ID)
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestStartGameEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	created := rig.createRoom(t)

	rec := rig.do(t, http.MethodPost, "/api/rooms/"+created.Room.ID+"/start",
		startGameRequest{}, withToken(created.MasterToken))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code,
		"an empty lobby cannot start: %s", rec.Body.String())

	rec = rig.do(t, http.MethodPost, "/api/rooms/"+created.Room.ID+"/start", startGameRequest{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListModesAndMedia(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodGet, "/api/modes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), ModeFastBuzz)
	require.Contains(t, rec.Body.String(), ModePictureRound)

	rec = rig.do(t, http.MethodGet, "/api/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), MediaMusic)
}

func TestSongEndpointsRequireAdmin(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodGet, "/api/songs", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	song := Song{Title: "Test Song", Artist: "Test Artist", FilePath: "/media/test.mp3"}
	rec = rig.do(t, http.MethodPost, "/api/songs", song)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = rig.do(t, http.MethodPost, "/api/songs", song, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Song
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = rig.do(t, http.MethodGet, "/api/songs", nil, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Test Song")

	rec = rig.do(t, http.MethodDelete, "/api/songs/"+created.ID, nil, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSongValidation(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/api/songs", Song{Title: "No Artist"}, asAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	rig := newAPIRig(t)
	rig.cfg.adminPassword = ""

	rec := rig.do(t, http.MethodGet, "/api/songs", nil, asAdmin)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaylistEndpoints(t *testing.T) {
	rig := newAPIRig(t)
	seedSongs(t, rig.store, 3)

	rec := rig.do(t, http.MethodPost, "/api/playlists", Playlist{Name: "Party"}, asAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Playlist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = rig.do(t, http.MethodPut, "/api/playlists/"+created.ID+"/songs",
		setPlaylistSongsRequest{SongIDs: []string{"song-00", "song-01"}}, asAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = rig.do(t, http.MethodPut, "/api/playlists/"+created.ID+"/songs",
		setPlaylistSongsRequest{SongIDs: []string{"song-00", "missing"}}, asAdmin)
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown song ids are rejected")

	pl, err := rig.store.Playlists.FindByID(created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"song-00", "song-01"}, pl.SongIDs)
}

func TestRoomQRCode(t *testing.T) {
	rig := newAPIRig(t)
	created := rig.createRoom(t)

	rec := rig.do(t, http.MethodGet, "/room/"+created.Room.Code+"/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Body.Bytes())

	rec = rig.do(t, http.MethodGet, "/room/ZZZZ/qr", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLobbiesFallback(t *testing.T) {
	rig := newAPIRig(t)
	created := rig.createRoom(t)

	rec := rig.do(t, http.MethodGet, "/api/lobbies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Room.Code)
}
