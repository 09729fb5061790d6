package internal

import "sync"

// OnlineUsers counts live sessions per user across every room, so the server
// can tell a user's first connection and last disconnection apart from
// additional tabs.
type OnlineUsers struct {
	mu       sync.Mutex
	sessions map[string]int
}

func NewOnlineUsers() *OnlineUsers {
	return &OnlineUsers{sessions: make(map[string]int)}
}

// Connect registers a session and reports whether it is the user's first.
func (o *OnlineUsers) Connect(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[userID]++
	return o.sessions[userID] == 1
}

// Disconnect releases a session and reports whether it was the user's last.
func (o *OnlineUsers) Disconnect(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	count, ok := o.sessions[userID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(o.sessions, userID)
		return true
	}
	o.sessions[userID] = count - 1
	return false
}

func (o *OnlineUsers) Online(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[userID] > 0
}

// Count returns the number of distinct users with at least one session.
func (o *OnlineUsers) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
