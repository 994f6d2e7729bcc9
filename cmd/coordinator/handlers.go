package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/designsync/internal/coordinator"
	"github.com/dreamware/designsync/internal/shard"
)

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.relay)
	mux.HandleFunc("/health", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/rooms", a.handleRooms)
	mux.HandleFunc("/rooms/", a.handleRoom)
	return mux
}

// handleHealth reports 200 while every dependency is healthy, 503 otherwise.
func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !a.monitor.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		Healthy      bool                           `json:"healthy"`
		Sessions     int                            `json:"sessions"`
		Dependencies []coordinator.DependencyHealth `json:"dependencies"`
	}{
		Healthy:      status == http.StatusOK,
		Sessions:     a.relay.SessionCount(),
		Dependencies: a.monitor.Snapshot(),
	})
}

// handleRooms lists known rooms with their member counts and the shard
// layout.
func (a *app) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rooms := a.registry.Rooms()
	if rooms == nil {
		rooms = []shard.RoomInfo{}
	}
	writeJSON(w, http.StatusOK, struct {
		Rooms     []shard.RoomInfo  `json:"rooms"`
		Shards    []shard.ShardInfo `json:"shards"`
		NumShards int               `json:"num_shards"`
	}{
		Rooms:     rooms,
		Shards:    a.registry.ShardInfo(),
		NumShards: a.registry.NumShards(),
	})
}

// handleRoom returns the members of one room: GET /rooms/{id}.
func (a *app) handleRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}

	rooms := a.registry.Rooms()
	if slices.IndexFunc(rooms, func(info shard.RoomInfo) bool { return info.ID == roomID }) < 0 {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	members := a.registry.MembersOf(roomID)
	if members == nil {
		members = []shard.Member{}
	}
	writeJSON(w, http.StatusOK, struct {
		ID      string         `json:"id"`
		Shard   int            `json:"shard"`
		Members []shard.Member `json:"members"`
	}{
		ID:      roomID,
		Shard:   a.registry.ShardForRoom(roomID),
		Members: members,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
