package orderbook

import (
	"sort"

	"github.com/gammazero/deque"
)

// stopBook holds pending stop orders keyed by stop price. Orders at the same
// price keep insertion order in a per-price FIFO; trigger sweeps traverse
// prices ascending, matching the natural ordered traversal of the pending
// collection.
type stopBook struct {
	prices []float64 // sorted ascending
	queues map[float64]*deque.Deque[int64]
	count  int
}

func newStopBook() *stopBook {
	return &stopBook{queues: make(map[float64]*deque.Deque[int64])}
}

func (s *stopBook) add(price float64, orderID int64) {
	q, ok := s.queues[price]
	if !ok {
		q = &deque.Deque[int64]{}
		s.queues[price] = q
		i := sort.SearchFloat64s(s.prices, price)
		s.prices = append(s.prices, 0)
		copy(s.prices[i+1:], s.prices[i:])
		s.prices[i] = price
	}
	q.PushBack(orderID)
	s.count++
}

// remove drops a single pending stop, e.g. on cancel.
func (s *stopBook) remove(price float64, orderID int64) bool {
	q, ok := s.queues[price]
	if !ok {
		return false
	}
	for i := 0; i < q.Len(); i++ {
		if q.At(i) == orderID {
			q.Remove(i)
			s.count--
			if q.Len() == 0 {
				s.dropPrice(price)
			}
			return true
		}
	}
	return false
}

// collect removes and returns, in ascending price order, every pending stop
// whose key satisfies the trigger predicate.
func (s *stopBook) collect(triggered func(price float64) bool) []int64 {
	var ids []int64
	remaining := s.prices[:0]
	for _, price := range s.prices {
		if !triggered(price) {
			remaining = append(remaining, price)
			continue
		}
		q := s.queues[price]
		for q.Len() > 0 {
			ids = append(ids, q.PopFront())
			s.count--
		}
		delete(s.queues, price)
	}
	s.prices = remaining
	return ids
}

func (s *stopBook) dropPrice(price float64) {
	delete(s.queues, price)
	i := sort.SearchFloat64s(s.prices, price)
	if i < len(s.prices) && s.prices[i] == price {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

func (s *stopBook) size() int {
	return s.count
}

func (s *stopBook) clear() {
	s.prices = nil
	s.queues = make(map[float64]*deque.Deque[int64])
	s.count = 0
}

// each visits pending stops in ascending price, insertion order within a
// price.
func (s *stopBook) each(fn func(price float64, orderID int64)) {
	for _, price := range s.prices {
		q := s.queues[price]
		for i := 0; i < q.Len(); i++ {
			fn(price, q.At(i))
		}
	}
}
