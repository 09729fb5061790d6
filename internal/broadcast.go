package internal

import "sync"

// roomChannel fans one producer out to any number of subscribers. Every
// subscriber owns a bounded queue; a full queue means that subscriber misses
// the message, the producer never waits.
type roomChannel struct {
	mutex       sync.Mutex
	capacity    int
	nextID      uint64
	subscribers map[uint64]chan []byte
	closed      bool
}

func newRoomChannel(capacity int) *roomChannel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &roomChannel{
		capacity:    capacity,
		subscribers: make(map[uint64]chan []byte),
	}
}

// Subscription is one consumer's view of a room channel. C is closed when the
// subscription is closed or the room channel shuts down.
type Subscription struct {
	C       <-chan []byte
	id      uint64
	channel *roomChannel
	once    sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.channel.unsubscribe(sub.id)
	})
}

func (channel *roomChannel) subscribe() *Subscription {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	queue := make(chan []byte, channel.capacity)
	id := channel.nextID
	channel.nextID++
	if channel.closed {
		close(queue)
	} else {
		channel.subscribers[id] = queue
	}
	return &Subscription{C: queue, id: id, channel: channel}
}

func (channel *roomChannel) unsubscribe(id uint64) {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	if queue, ok := channel.subscribers[id]; ok {
		delete(channel.subscribers, id)
		close(queue)
	}
}

// publish hands payload to every subscriber without blocking and reports how
// many subscribers missed it.
func (channel *roomChannel) publish(payload []byte) (dropped int) {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	for _, queue := range channel.subscribers {
		select {
		case queue <- payload:
		default:
			dropped++
		}
	}
	return dropped
}

func (channel *roomChannel) subscriberCount() int {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	return len(channel.subscribers)
}

func (channel *roomChannel) close() {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()
	if channel.closed {
		return
	}
	channel.closed = true
	for id, queue := range channel.subscribers {
		delete(channel.subscribers, id)
		close(queue)
	}
}
