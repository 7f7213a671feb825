package orderbook

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ReplayEngine drives a fresh book through a saved event log. Matching is
// deterministic, so replaying the NEW/CANCEL/AMEND stream regenerates the
// original fills; logged FILL records are only used for validation.
type ReplayEngine struct {
	book   *OrderBook
	events []OrderEvent
	idx    int

	eventsProcessed int
	replayStart     time.Time

	log *zap.SugaredLogger
}

func NewReplayEngine(symbol string) *ReplayEngine {
	return &ReplayEngine{
		book: New(symbol),
		log:  zap.NewNop().Sugar(),
	}
}

func (r *ReplayEngine) SetLogger(log *zap.SugaredLogger) {
	if log != nil {
		r.log = log
		r.book.SetLogger(log)
	}
}

// Book exposes the reconstructed book for inspection.
func (r *ReplayEngine) Book() *OrderBook { return r.book }

// LoadFromFile reads and parses an event log. The engine state is replaced
// only if the whole file parses.
func (r *ReplayEngine) LoadFromFile(path string) error {
	events, err := readEventFile(path)
	if err != nil {
		return err
	}
	r.events = events
	r.Reset()
	r.log.Infow("event log loaded", "path", path, "events", len(events))
	return nil
}

// LoadEvents installs an in-memory event stream, e.g. straight from a live
// book.
func (r *ReplayEngine) LoadEvents(events []OrderEvent) {
	r.events = append([]OrderEvent(nil), events...)
	r.Reset()
}

// Reset rewinds to the beginning with a fresh book.
func (r *ReplayEngine) Reset() {
	r.idx = 0
	r.eventsProcessed = 0
	symbol := r.book.Symbol()
	log := r.book.log
	r.book = New(symbol)
	r.book.log = log
}

func (r *ReplayEngine) HasNext() bool {
	return r.idx < len(r.events)
}

func (r *ReplayEngine) TotalEvents() int { return len(r.events) }

func (r *ReplayEngine) CurrentIndex() int { return r.idx }

func (r *ReplayEngine) Progress() float64 {
	if len(r.events) == 0 {
		return 0
	}
	return float64(r.idx) * 100 / float64(len(r.events))
}

func (r *ReplayEngine) PeekNext() (OrderEvent, bool) {
	if !r.HasNext() {
		return OrderEvent{}, false
	}
	return r.events[r.idx], true
}

// ReplayNext applies exactly one event (step mode).
func (r *ReplayEngine) ReplayNext() error {
	if !r.HasNext() {
		return ErrReplayExhausted
	}
	applyEvent(r.book, r.events[r.idx])
	r.idx++
	r.eventsProcessed++
	return nil
}

// ReplayN applies up to n events.
func (r *ReplayEngine) ReplayN(n int) error {
	for i := 0; i < n && r.HasNext(); i++ {
		if err := r.ReplayNext(); err != nil {
			return err
		}
	}
	return nil
}

// SkipTo positions the stream at idx, replaying from the start when moving
// backwards.
func (r *ReplayEngine) SkipTo(idx int) error {
	if idx < 0 || idx > len(r.events) {
		return fmt.Errorf("replay index %d out of range", idx)
	}
	if idx < r.idx {
		r.Reset()
	}
	return r.ReplayN(idx - r.idx)
}

// ReplayInstant runs the whole stream as fast as possible.
func (r *ReplayEngine) ReplayInstant() {
	r.replayStart = time.Now()
	r.Reset()
	for r.HasNext() {
		r.ReplayNext() //nolint:errcheck // HasNext guards exhaustion
	}
	r.logSummary()
}

// ReplayTimed replays with inter-arrival gaps scaled by the speed
// multiplier (2.0 = twice as fast).
func (r *ReplayEngine) ReplayTimed(speed float64) {
	if len(r.events) == 0 {
		return
	}
	r.replayStart = time.Now()
	r.Reset()

	last := r.events[0].Timestamp
	first := true
	for r.HasNext() {
		e, _ := r.PeekNext()
		if !first && speed > 0 {
			gap := time.Duration(float64(e.Timestamp-last) / speed)
			if gap > 0 {
				time.Sleep(gap)
			}
		}
		last = e.Timestamp
		first = false
		r.ReplayNext() //nolint:errcheck
	}
	r.logSummary()
}

// Validate compares the regenerated fills element-wise against an expected
// sequence on (buy, sell, price, qty), with a small tolerance on price.
func (r *ReplayEngine) Validate(expected []Fill) error {
	got := r.book.Fills()
	if len(got) != len(expected) {
		return fmt.Errorf("fill count mismatch: expected %d, replayed %d",
			len(expected), len(got))
	}
	for i := range expected {
		e, g := expected[i], got[i]
		if e.BuyOrderID != g.BuyOrderID || e.SellOrderID != g.SellOrderID ||
			e.Quantity != g.Quantity || math.Abs(e.Price-g.Price) > 1e-4 {
			return fmt.Errorf("fill %d mismatch: expected %v, replayed %v", i, e, g)
		}
	}
	return nil
}

func (r *ReplayEngine) logSummary() {
	r.log.Infow("replay complete",
		"events_processed", r.eventsProcessed,
		"fills_generated", len(r.book.Fills()),
		"elapsed", time.Since(r.replayStart))
}
