package orderbook

import "container/heap"

// bookEntry is what actually sits in a priority queue: the ordering key plus
// the order id. Quantities and states are always read from the authoritative
// activeOrders map after a pop, so an entry can go stale without harm.
type bookEntry struct {
	id        int64
	price     float64
	timestamp int64
}

// bookHeap implements heap.Interface over bookEntry with a side-specific
// priority function.
type bookHeap struct {
	entries []bookEntry
	before  func(a, b *bookEntry) bool
}

func newBidHeap() *bookHeap { return &bookHeap{before: bidBefore} }
func newAskHeap() *bookHeap { return &bookHeap{before: askBefore} }

func (h *bookHeap) Len() int { return len(h.entries) }

func (h *bookHeap) Less(i, j int) bool {
	return h.before(&h.entries[i], &h.entries[j])
}

func (h *bookHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *bookHeap) Push(x any) {
	h.entries = append(h.entries, x.(bookEntry))
}

func (h *bookHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	return e
}

func (h *bookHeap) push(e bookEntry) {
	heap.Push(h, e)
}

func (h *bookHeap) pop() (bookEntry, bool) {
	if len(h.entries) == 0 {
		return bookEntry{}, false
	}
	return heap.Pop(h).(bookEntry), true
}

func (h *bookHeap) peek() (bookEntry, bool) {
	if len(h.entries) == 0 {
		return bookEntry{}, false
	}
	return h.entries[0], true
}

// clone copies the heap so FOK pre-checks can walk the book without
// disturbing it.
func (h *bookHeap) clone() *bookHeap {
	c := &bookHeap{
		entries: make([]bookEntry, len(h.entries)),
		before:  h.before,
	}
	copy(c.entries, h.entries)
	return c
}

func (h *bookHeap) clear() {
	h.entries = h.entries[:0]
}
