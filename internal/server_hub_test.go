package internal

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func decodePresence(t *testing.T, payload []byte) []string {
	t.Helper()
	var envelope ChatEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if envelope.Type != EnvelopeUsers {
		t.Fatalf("expected users envelope, got %s", payload)
	}
	return envelope.List
}

func TestHubGetOrCreateIsIdempotentUnderConcurrency(t *testing.T) {
	hub := NewHub()
	const workers = 32
	rooms := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = hub.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if rooms[i] != rooms[0] {
			t.Fatalf("worker %d got a different room instance", i)
		}
	}
	if len(hub.Rooms()) != 1 {
		t.Fatalf("expected exactly one room, got %d", len(hub.Rooms()))
	}
}

func TestHubJoinAndLeavePublishPresence(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(DefaultRoom)
	sub := room.Subscribe()
	defer sub.Close()

	hub.Join(room, Member{UserID: "u1", Name: "ann"})
	hub.Leave(room, "u1")

	if got := decodePresence(t, <-sub.C); len(got) != 1 || got[0] != "ann" {
		t.Fatalf("join snapshot: %v", got)
	}
	if got := decodePresence(t, <-sub.C); len(got) != 0 {
		t.Fatalf("leave snapshot should be empty, got %v", got)
	}
}

func TestHubPresenceAfterJoinsAndLeaves(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("ops")
	for i := 0; i < 5; i++ {
		hub.Join(room, Member{UserID: fmt.Sprintf("u%d", i), Name: fmt.Sprintf("user%d", i)})
	}
	hub.Leave(room, "u1")
	hub.Leave(room, "u3")

	presence := hub.Presence(room)
	want := []string{"user0", "user2", "user4"}
	if len(presence) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(presence))
	}
	for i, member := range presence {
		if member.Name != want[i] {
			t.Fatalf("member %d: expected %s, got %s", i, want[i], member.Name)
		}
	}
}

func TestHubLeaveRemovesEveryEntryOfUser(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("dupes")
	hub.Join(room, Member{UserID: "u1", Name: "ann"})
	hub.Join(room, Member{UserID: "u1", Name: "ann"})
	hub.Join(room, Member{UserID: "u2", Name: "bob"})
	if len(hub.Presence(room)) != 3 {
		t.Fatalf("duplicate joins should both be listed")
	}
	hub.Leave(room, "u1")
	presence := hub.Presence(room)
	if len(presence) != 1 || presence[0].UserID != "u2" {
		t.Fatalf("unexpected presence %v", presence)
	}
}

func TestHubLeaveOfAbsentUserStillPublishes(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("quiet")
	sub := room.Subscribe()
	defer sub.Close()

	hub.Leave(room, "ghost")
	select {
	case payload := <-sub.C:
		if got := decodePresence(t, payload); len(got) != 0 {
			t.Fatalf("expected empty snapshot, got %v", got)
		}
	default:
		t.Fatal("expected a presence snapshot")
	}
}

func TestHubRecordAndReplayInOrder(t *testing.T) {
	hub := NewHubWithConfig(3, 10)
	room := hub.GetOrCreate("log")
	for i := 1; i <= 4; i++ {
		hub.RecordAndBroadcast(room, []byte(fmt.Sprintf("m%d", i)))
	}
	replay := hub.ReplayHistory(room)
	want := []string{"m2", "m3", "m4"}
	if len(replay) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(replay))
	}
	for i := range want {
		if string(replay[i]) != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], replay[i])
		}
	}
	if hub.Relayed() != 4 {
		t.Fatalf("expected 4 relayed envelopes, got %d", hub.Relayed())
	}
}

func TestHubSubscribersSeeSameOrder(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate("order")
	first := room.Subscribe()
	second := room.Subscribe()
	defer first.Close()
	defer second.Close()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				hub.RecordAndBroadcast(room, []byte(fmt.Sprintf("p%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	for i := 0; i < 40; i++ {
		a, b := <-first.C, <-second.C
		if string(a) != string(b) {
			t.Fatalf("position %d: %s != %s", i, a, b)
		}
	}
}

func TestHubCountsDroppedDeliveries(t *testing.T) {
	hub := NewHubWithConfig(10, 1)
	room := hub.GetOrCreate("busy")
	sub := room.Subscribe()
	defer sub.Close()

	hub.RecordAndBroadcast(room, []byte("one"))
	hub.RecordAndBroadcast(room, []byte("two"))
	if hub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", hub.Dropped())
	}
	if len(hub.ReplayHistory(room)) != 2 {
		t.Fatal("history must keep envelopes a subscriber missed")
	}
}

func TestHubRoomsAndExists(t *testing.T) {
	hub := NewHub()
	if hub.Exists("b") {
		t.Fatal("room should not exist yet")
	}
	hub.GetOrCreate("b")
	roomA := hub.GetOrCreate("a")
	hub.Join(roomA, Member{UserID: "u1", Name: "ann"})
	hub.RecordAndBroadcast(roomA, []byte("hi"))

	if !hub.Exists("b") {
		t.Fatal("room b should exist")
	}
	infos := hub.Rooms()
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("unexpected rooms %+v", infos)
	}
	if infos[0].Users != 1 || infos[0].History != 1 {
		t.Fatalf("unexpected summary for a: %+v", infos[0])
	}
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	sub := hub.GetOrCreate("closing").Subscribe()
	hub.Close()
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed subscription")
	}
}
