package internal

import (
	"sort"
	"sync"
	"sync/atomic"
)

// all active rooms state. One lock covers the whole table: create, join,
// leave and history appends are serialized across every room, and publishing
// under that lock keeps per-room order identical for all subscribers.
type Hub struct {
	mutex           sync.RWMutex
	rooms           map[string]*Room
	historySize     int
	channelCapacity int
	relayed         atomic.Uint64
	dropped         atomic.Uint64
}

// RoomInfo is a read-only summary used by the room listing endpoint.
type RoomInfo struct {
	Name    string `json:"name"`
	Users   int    `json:"users"`
	History int    `json:"history"`
}

// builds an empty hub ready to serve websocket requests
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHistorySize, DefaultChannelCapacity)
}

func NewHubWithConfig(historySize, channelCapacity int) *Hub {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if channelCapacity <= 0 {
		channelCapacity = DefaultChannelCapacity
	}
	return &Hub{
		rooms:           make(map[string]*Room),
		historySize:     historySize,
		channelCapacity: channelCapacity,
	}
}

// takes a peek into the room map. We use it for the lightweight /exists
func (hub *Hub) Exists(key string) bool {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	_, ok := hub.rooms[key]
	return ok
}

// GetOrCreate returns the room for key, creating it on first use.
func (hub *Hub) GetOrCreate(key string) *Room {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if room, exists := hub.rooms[key]; exists {
		return room
	}
	room := newRoom(key, hub.historySize, hub.channelCapacity)
	hub.rooms[key] = room
	return room
}

// Join appends member to the presence list and publishes the new snapshot.
// The same user may appear more than once.
func (hub *Hub) Join(room *Room, member Member) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	room.presence = append(room.presence, member)
	hub.publishLocked(room, PresenceEnvelope(room.presence))
}

// Leave drops every presence entry of userID and republishes the snapshot,
// also when the user was not present.
func (hub *Hub) Leave(room *Room, userID string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	room.removeMember(userID)
	hub.publishLocked(room, PresenceEnvelope(room.presence))
}

// RecordAndBroadcast appends envelope to the room history and publishes it.
func (hub *Hub) RecordAndBroadcast(room *Room, envelope []byte) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	room.history.push(envelope)
	hub.relayed.Add(1)
	hub.publishLocked(room, envelope)
}

// ReplayHistory returns the buffered envelopes oldest first.
func (hub *Hub) ReplayHistory(room *Room) [][]byte {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return room.history.snapshot()
}

// Presence returns a copy of the room's presence list in join order.
func (hub *Hub) Presence(room *Room) []Member {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return room.presenceCopy()
}

// Rooms lists every known room sorted by name.
func (hub *Hub) Rooms() []RoomInfo {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	infos := make([]RoomInfo, 0, len(hub.rooms))
	for key, room := range hub.rooms {
		infos = append(infos, RoomInfo{Name: key, Users: len(room.presence), History: room.history.len()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Relayed counts envelopes accepted by RecordAndBroadcast.
func (hub *Hub) Relayed() uint64 {
	return hub.relayed.Load()
}

// Dropped reports how many deliveries were skipped because a subscriber's
// queue was full.
func (hub *Hub) Dropped() uint64 {
	return hub.dropped.Load()
}

// Close shuts every room channel down so that live sessions observe a closed
// subscription and leave.
func (hub *Hub) Close() {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	for _, room := range hub.rooms {
		room.channel.close()
	}
}

func (hub *Hub) publishLocked(room *Room, envelope []byte) {
	if dropped := room.channel.publish(envelope); dropped > 0 {
		hub.dropped.Add(uint64(dropped))
	}
}
