package main

import (
	"context"
	"time"
)

// housekeepingLoop purges rooms nobody will come back to: any room, in any
// status, older than the retention window. Retention counts from creation,
// so a lingering lobby cannot outlive the window by staying busy. Cascade
// deletion of players and sessions is the store's job.
func housekeepingLoop(ctx context.Context, cfg *Config, store *Store, hub *Hub) {
	ticker := time.NewTicker(cfg.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeRooms(cfg, store, hub, time.Now())
		}
	}
}

func purgeRooms(cfg *Config, store *Store, hub *Hub, now time.Time) {
	cutoff := now.Add(-cfg.purgeAfter)

	statuses := []RoomStatus{RoomFinished, RoomLobby, RoomPlaying, RoomBetweenRounds}

	purged := 0
	for _, status := range statuses {
		rooms, err := store.Rooms.FindByStatus(status)
		if err != nil {
			logf(cfg, "PURGE: listing %s rooms: %v", status, err)
			continue
		}

		for _, room := range rooms {
			if !room.CreatedAt.Before(cutoff) {
				continue
			}

			hub.Release(room.ID)
			hub.dropSnapshot(room.ID)
			if err := store.Rooms.Delete(room.ID); err != nil {
				logf(cfg, "PURGE: deleting room %s: %v", room.ID, err)
				continue
			}
			purged++
		}
	}

	if purged > 0 {
		logf(cfg, "PURGE: Removed %d stale rooms", purged)
	}
}
