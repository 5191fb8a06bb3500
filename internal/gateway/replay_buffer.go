package gateway

import "sync"

// ReplayEntry is one broadcast envelope kept for gap backfill.
type ReplayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one symbol, oldest
// evicted first. Seqs are pushed in increasing order.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []ReplayEntry
	head    int // index of the oldest entry once full
	cap     int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayDepth
	}
	return &ReplayBuffer{entries: make([]ReplayEntry, 0, capacity), cap: capacity}
}

// Push appends an envelope, overwriting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) < rb.cap {
		rb.entries = append(rb.entries, ReplayEntry{Seq: seq, Data: cp})
		return
	}
	rb.entries[rb.head] = ReplayEntry{Seq: seq, Data: cp}
	rb.head = (rb.head + 1) % rb.cap
}

// Range returns entries with seq in [fromSeq, toSeq], in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []ReplayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []ReplayEntry
	n := len(rb.entries)
	for i := 0; i < n; i++ {
		e := rb.entries[(rb.head+i)%n]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
