package internal

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("ip") || !limiter.Allow("ip") {
		t.Fatal("first two hits should pass")
	}
	if limiter.Allow("ip") {
		t.Fatal("third hit inside the window should be refused")
	}
	if !limiter.Allow("other") {
		t.Fatal("keys are limited independently")
	}
	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("ip") {
		t.Fatal("window should have slid")
	}
}

func TestOnlineUsersCountsSessions(t *testing.T) {
	online := NewOnlineUsers()
	if !online.Connect("u1") {
		t.Fatal("first session should report online")
	}
	if online.Connect("u1") {
		t.Fatal("second session is not a transition")
	}
	if online.Count() != 1 || !online.Online("u1") {
		t.Fatal("expected one online user")
	}
	if online.Disconnect("u1") {
		t.Fatal("one session still open")
	}
	if !online.Disconnect("u1") {
		t.Fatal("last session should report offline")
	}
	if online.Disconnect("u1") || online.Online("u1") {
		t.Fatal("unknown user should stay offline")
	}
}
