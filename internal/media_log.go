package internal

import "sync"

// MediaEntry records one uploaded file. Entries are never mutated.
type MediaEntry struct {
	Path string
	Size int64
	Room string
}

// MediaLog keeps uploads in arrival order, oldest first. It has its own lock
// and is never touched while the hub lock is held.
type MediaLog struct {
	mutex   sync.RWMutex
	entries []MediaEntry
}

func NewMediaLog() *MediaLog {
	return &MediaLog{entries: make([]MediaEntry, 0)}
}

// Append records an upload. Duplicates are kept.
func (log *MediaLog) Append(entry MediaEntry) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.entries = append(log.entries, entry)
}

// PopOldest removes and returns the oldest entry.
func (log *MediaLog) PopOldest() (MediaEntry, bool) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	if len(log.entries) == 0 {
		return MediaEntry{}, false
	}
	oldest := log.entries[0]
	log.entries[0] = MediaEntry{}
	log.entries = log.entries[1:]
	return oldest, true
}

// TotalSize sums the sizes of all tracked entries.
func (log *MediaLog) TotalSize() int64 {
	log.mutex.RLock()
	defer log.mutex.RUnlock()
	var total int64
	for _, entry := range log.entries {
		total += entry.Size
	}
	return total
}

func (log *MediaLog) Len() int {
	log.mutex.RLock()
	defer log.mutex.RUnlock()
	return len(log.entries)
}

// Entries returns a copy of the log, oldest first.
func (log *MediaLog) Entries() []MediaEntry {
	log.mutex.RLock()
	defer log.mutex.RUnlock()
	out := make([]MediaEntry, len(log.entries))
	copy(out, log.entries)
	return out
}
