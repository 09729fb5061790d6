package internal

const (
	DefaultRoom            = "lobby"
	DefaultHistorySize     = 60
	DefaultChannelCapacity = 100
)

// Member is one presence entry of a room.
type Member struct {
	UserID string
	Name   string
}

// single room: fan-out channel, presence list and recent history.
// presence and history are guarded by the owning hub's lock
type Room struct {
	key      string
	channel  *roomChannel
	presence []Member
	history  *historyBuffer
}

func newRoom(key string, historySize, channelCapacity int) *Room {
	return &Room{
		key:      key,
		channel:  newRoomChannel(channelCapacity),
		presence: make([]Member, 0),
		history:  newHistoryBuffer(historySize),
	}
}

// Key returns the room name.
func (room *Room) Key() string {
	return room.key
}

// Subscribe attaches a new consumer to the room's broadcast channel.
func (room *Room) Subscribe() *Subscription {
	return room.channel.subscribe()
}

func (room *Room) removeMember(userID string) int {
	kept := room.presence[:0]
	removed := 0
	for _, member := range room.presence {
		if member.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, member)
	}
	// clear the tail so removed members are not retained by the backing array
	for i := len(kept); i < len(room.presence); i++ {
		room.presence[i] = Member{}
	}
	room.presence = kept
	return removed
}

func (room *Room) presenceCopy() []Member {
	out := make([]Member, len(room.presence))
	copy(out, room.presence)
	return out
}
