package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lobbyKeyPrefix = "tuneclash:lobby:"
	lobbyTTL       = 24 * time.Hour
	redisTimeout   = 3 * time.Second
)

// LobbySnapshot is the redis-mirrored view of a joinable room, consumed by
// external lobby browsers without touching the game server.
type LobbySnapshot struct {
	RoomID      string    `json:"roomId"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	PlayerCount int       `json:"playerCount"`
	MaxPlayers  int       `json:"maxPlayers"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SnapshotStore mirrors lobby rosters into redis. All writes are best
// effort: a broken mirror must never affect gameplay.
type SnapshotStore struct {
	cfg *Config
	rdb *redis.Client
}

func newSnapshotStore(cfg *Config, addr string) (*SnapshotStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &SnapshotStore{cfg: cfg, rdb: rdb}, nil
}

func (s *SnapshotStore) SaveLobby(room *Room, players []*Player) {
	count := 0
	for _, p := range players {
		if p.Role == RolePlayer {
			count++
		}
	}

	snap := LobbySnapshot{
		RoomID:      room.ID,
		Code:        room.Code,
		Name:        room.Name,
		PlayerCount: count,
		MaxPlayers:  room.MaxPlayers,
		UpdatedAt:   time.Now(),
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := s.rdb.Set(ctx, lobbyKeyPrefix+room.ID, raw, lobbyTTL).Err(); err != nil {
		logf(s.cfg, "REDIS: saving lobby %s: %v", room.ID, err)
	}
}

func (s *SnapshotStore) Delete(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := s.rdb.Del(ctx, lobbyKeyPrefix+roomID).Err(); err != nil {
		logf(s.cfg, "REDIS: dropping lobby %s: %v", roomID, err)
	}
}

// ListLobbies returns every mirrored lobby, skipping entries that fail to
// decode.
func (s *SnapshotStore) ListLobbies() ([]LobbySnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	var out []LobbySnapshot
	iter := s.rdb.Scan(ctx, 0, lobbyKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var snap LobbySnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SnapshotStore) Close() error {
	return s.rdb.Close()
}
