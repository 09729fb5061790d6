package internal

// fixed capacity FIFO of serialized envelopes. Pushing into a full buffer
// drops the oldest entry. Callers hold the hub lock.
type historyBuffer struct {
	entries  [][]byte
	start    int
	count    int
	capacity int
}

func newHistoryBuffer(capacity int) *historyBuffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &historyBuffer{entries: make([][]byte, capacity), capacity: capacity}
}

func (history *historyBuffer) push(envelope []byte) {
	if history.count < history.capacity {
		history.entries[(history.start+history.count)%history.capacity] = envelope
		history.count++
		return
	}
	history.entries[history.start] = envelope
	history.start = (history.start + 1) % history.capacity
}

// snapshot returns the buffered envelopes oldest first.
func (history *historyBuffer) snapshot() [][]byte {
	out := make([][]byte, 0, history.count)
	for i := 0; i < history.count; i++ {
		out = append(out, history.entries[(history.start+i)%history.capacity])
	}
	return out
}

func (history *historyBuffer) len() int {
	return history.count
}
