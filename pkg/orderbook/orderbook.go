package orderbook

import (
	"math"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

// OrderBook is a single-symbol limit order book with deterministic
// price-time priority matching. It is strictly single-threaded: every
// operation runs to quiescence, including stop cascades, before returning.
type OrderBook struct {
	symbol string

	bids *bookHeap
	asks *bookHeap

	// activeOrders holds the authoritative, mutable record per order id.
	// cancelledOrders retains terminal orders for queries.
	activeOrders    map[int64]*Order
	cancelledOrders map[int64]*Order

	fills  []Fill
	router *FillRouter

	stopBuys     *stopBook
	stopSells    *stopBook
	triggerQueue deque.Deque[*Order]
	sweeping     bool

	lastTradePrice float64

	events         []OrderEvent
	loggingEnabled bool

	latencies       *LatencyTracker
	ordersProcessed uint64
	snapshotCounter uint64

	lastTimestamp int64
	now           func() int64

	log *zap.SugaredLogger
}

// New builds an empty book for one symbol. Self-trade prevention is on by
// default; fee rates default to zero.
func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol:          symbol,
		bids:            newBidHeap(),
		asks:            newAskHeap(),
		activeOrders:    make(map[int64]*Order),
		cancelledOrders: make(map[int64]*Order),
		router:          NewFillRouter(true),
		stopBuys:        newStopBook(),
		stopSells:       newStopBook(),
		latencies:       NewLatencyTracker(),
		now:             func() int64 { return time.Now().UnixNano() },
		log:             zap.NewNop().Sugar(),
	}
}

func (b *OrderBook) Symbol() string { return b.symbol }

// SetLogger attaches a structured logger. The book is silent by default.
func (b *OrderBook) SetLogger(log *zap.SugaredLogger) {
	if log != nil {
		b.log = log
	}
}

// Router exposes the fill router for callback registration and fee/STP
// configuration.
func (b *OrderBook) Router() *FillRouter { return b.router }

func (b *OrderBook) EnableLogging()  { b.loggingEnabled = true }
func (b *OrderBook) DisableLogging() { b.loggingEnabled = false }
func (b *OrderBook) IsLogging() bool { return b.loggingEnabled }

func (b *OrderBook) Events() []OrderEvent { return b.events }
func (b *OrderBook) EventCount() int      { return len(b.events) }
func (b *OrderBook) ClearEvents()         { b.events = nil }

func (b *OrderBook) Fills() []Fill { return b.fills }

func (b *OrderBook) LastTradePrice() float64 { return b.lastTradePrice }

func (b *OrderBook) OrdersProcessed() uint64 { return b.ordersProcessed }

func (b *OrderBook) Latencies() *LatencyTracker { return b.latencies }

func (b *OrderBook) PendingStopCount() int {
	return b.stopBuys.size() + b.stopSells.size()
}

// nextTimestamp issues a strictly monotonic insertion tick.
func (b *OrderBook) nextTimestamp() int64 {
	ts := b.now()
	if ts <= b.lastTimestamp {
		ts = b.lastTimestamp + 1
	}
	b.lastTimestamp = ts
	return ts
}

// Submit runs the full order lifecycle: validation, stop interception,
// matching, TIF finalization. State is visible afterwards via queries.
func (b *OrderBook) Submit(o *Order) {
	start := time.Now()
	defer func() {
		b.latencies.Record(time.Since(start).Nanoseconds())
		b.ordersProcessed++
	}()

	if o.Quantity <= 0 || o.RemainingQty <= 0 {
		o.State = StateRejected
		b.cancelledOrders[o.ID] = o
		b.log.Warnw("order rejected", "order_id", o.ID, "reason", "non-positive quantity")
		return
	}

	o.Timestamp = b.nextTimestamp()

	if o.IsStop && !o.StopTriggered {
		if ref, fromTrade, ok := b.triggerReference(o.Side); ok && stopSatisfied(o, ref, fromTrade) {
			o.State = StateActive
			b.activeOrders[o.ID] = o
			b.triggerStop(o, ref)
			return
		}

		o.State = StatePending
		b.activeOrders[o.ID] = o
		if o.Side == BUY {
			b.stopBuys.add(o.StopPrice, o.ID)
		} else {
			b.stopSells.add(o.StopPrice, o.ID)
		}
		b.log.Debugw("stop order parked",
			"order_id", o.ID, "side", o.Side, "stop_price", o.StopPrice)
		return
	}

	o.State = StateActive
	b.activeOrders[o.ID] = o

	if b.loggingEnabled {
		b.events = append(b.events, newOrderEvent(o))
	}

	b.matchOrder(o)
	b.finalizeAfterMatching(o)
}

// Cancel marks an order CANCELLED and tombstones its book entry. It returns
// false for unknown ids and for orders already in a terminal state.
func (b *OrderBook) Cancel(orderID int64) bool {
	o, ok := b.activeOrders[orderID]
	if !ok {
		b.log.Debugw("cancel ignored", "order_id", orderID, "reason", "unknown or already processed")
		return false
	}
	if o.IsTerminal() || o.IsFilled() {
		return false
	}

	if o.IsStop && !o.StopTriggered {
		if o.Side == BUY {
			b.stopBuys.remove(o.StopPrice, o.ID)
		} else {
			b.stopSells.remove(o.StopPrice, o.ID)
		}
	}

	if b.loggingEnabled {
		b.events = append(b.events, cancelEvent(b.nextTimestamp(), orderID))
	}

	o.State = StateCancelled
	b.cancelledOrders[orderID] = o
	delete(b.activeOrders, orderID)

	// The priority queues cannot remove mid-queue entries; the stale entry
	// is skipped on pop.
	b.log.Debugw("order cancelled", "order_id", orderID)
	return true
}

// Amend cancels the order and resubmits it under the same id with a fresh
// timestamp, so it loses priority and may cross the book immediately. Only
// the single AMEND event is logged; the nested cancel and resubmit run with
// logging suppressed so that replay applies the amend exactly once.
func (b *OrderBook) Amend(orderID int64, newPrice *float64, newQty *int64) bool {
	o, ok := b.activeOrders[orderID]
	if !ok || o.IsTerminal() || o.IsFilled() {
		return false
	}

	side := o.Side
	account := o.AccountID
	tif := o.TIF
	price := o.Price
	if newPrice != nil {
		price = *newPrice
	}
	qty := o.RemainingQty
	if newQty != nil {
		qty = *newQty
	}

	amended, err := NewLimitOrder(orderID, account, side, price, qty, tif)
	if err != nil {
		b.log.Warnw("amend rejected", "order_id", orderID, "error", err)
		return false
	}

	if b.loggingEnabled {
		// Copy the optionals so the logged event cannot alias caller state.
		var np *float64
		if newPrice != nil {
			v := *newPrice
			np = &v
		}
		var nq *int64
		if newQty != nil {
			v := *newQty
			nq = &v
		}
		b.events = append(b.events, amendEvent(b.nextTimestamp(), orderID, np, nq))
	}

	wasLogging := b.loggingEnabled
	b.loggingEnabled = false
	defer func() { b.loggingEnabled = wasLogging }()

	if !b.Cancel(orderID) {
		return false
	}
	delete(b.cancelledOrders, orderID)
	b.Submit(amended)
	return true
}

// GetOrder returns a value copy from the active or the terminal registry.
func (b *OrderBook) GetOrder(orderID int64) (Order, bool) {
	if o, ok := b.activeOrders[orderID]; ok {
		return *o, true
	}
	if o, ok := b.cancelledOrders[orderID]; ok {
		return *o, true
	}
	return Order{}, false
}

// BestBid returns a value copy of the top live bid, lazily discarding
// tombstoned entries.
func (b *OrderBook) BestBid() (Order, bool) {
	return b.bestOf(b.bids)
}

// BestAsk returns a value copy of the top live ask.
func (b *OrderBook) BestAsk() (Order, bool) {
	return b.bestOf(b.asks)
}

func (b *OrderBook) bestOf(h *bookHeap) (Order, bool) {
	for {
		e, ok := h.peek()
		if !ok {
			return Order{}, false
		}
		o, live := b.activeOrders[e.id]
		if !live || o.IsTerminal() || o.IsFilled() {
			h.pop()
			continue
		}
		if e.price != o.Price || e.timestamp != o.Timestamp {
			h.pop() // superseded by an amend; the live entry is elsewhere
			continue
		}
		return *o, true
	}
}

// Spread returns ask minus bid, absent when either side is empty.
func (b *OrderBook) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

func (b *OrderBook) BidsSize() int { return b.bids.Len() }
func (b *OrderBook) AsksSize() int { return b.asks.Len() }

// ActiveBidCount counts live resting bids (excluding tombstoned heap
// entries).
func (b *OrderBook) ActiveBidCount() int { return b.activeRestingCount(BUY) }

// ActiveAskCount counts live resting asks.
func (b *OrderBook) ActiveAskCount() int { return b.activeRestingCount(SELL) }

func (b *OrderBook) activeRestingCount(side Side) int {
	n := 0
	for _, o := range b.activeOrders {
		if o.Side == side && o.IsActive() && !(o.IsStop && !o.StopTriggered) {
			n++
		}
	}
	return n
}

// triggerReference picks the one reference price used to evaluate a stop on
// placement: the last trade when known, otherwise the side-appropriate
// best-of-book signal. The second result reports whether the reference is a
// real trade print. Returns ok=false in a truly empty market.
func (b *OrderBook) triggerReference(side Side) (ref float64, fromTrade, ok bool) {
	if b.lastTradePrice > 0 {
		return b.lastTradePrice, true, true
	}

	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()

	if side == SELL {
		// Sell stops trigger on falling prices: use the lowest available
		// signal.
		switch {
		case okB && okA:
			return math.Min(bid.Price, ask.Price), false, true
		case okB:
			return bid.Price, false, true
		case okA:
			return ask.Price, false, true
		}
		return 0, false, false
	}

	// Buy stops trigger on rising prices: use the highest available signal.
	switch {
	case okB && okA:
		return math.Max(bid.Price, ask.Price), false, true
	case okA:
		return ask.Price, false, true
	case okB:
		return bid.Price, false, true
	}
	return 0, false, false
}

// stopSatisfied compares a reference price against the stop. Trade prints
// compare inclusively: a print equal to the stop price triggers. A resting
// quote is not a print, so book-derived references must be strictly through
// the stop.
func stopSatisfied(o *Order, ref float64, inclusive bool) bool {
	if o.Side == SELL {
		if inclusive {
			return ref <= o.StopPrice
		}
		return ref < o.StopPrice
	}
	if inclusive {
		return ref >= o.StopPrice
	}
	return ref > o.StopPrice
}

// triggerStop converts a stop into its target type and routes it through the
// matching loop.
func (b *OrderBook) triggerStop(o *Order, ref float64) {
	b.log.Infow("stop order triggered",
		"order_id", o.ID, "side", o.Side, "stop_price", o.StopPrice, "ref_price", ref)

	o.StopTriggered = true
	o.IsStop = false
	if o.StopBecomes == MARKET {
		o.Type = MARKET
		o.Price = marketSentinelPrice(o.Side)
		if o.TIF == GTC || o.TIF == DAY {
			// A market order cannot rest.
			o.TIF = IOC
		}
	} else {
		o.Type = LIMIT
		// Price stays the order's post-trigger limit price.
	}

	o.State = StateActive
	b.activeOrders[o.ID] = o

	b.matchOrder(o)
	b.finalizeAfterMatching(o)
}

// CheckStopTriggers sweeps pending stops against a trade print. Cascades are
// driven by an iterative worklist: trades generated by a triggered stop
// enqueue further stops instead of recursing.
func (b *OrderBook) CheckStopTriggers(tradePrice float64) {
	b.lastTradePrice = tradePrice

	for _, id := range b.stopBuys.collect(func(p float64) bool { return tradePrice >= p }) {
		if o, ok := b.activeOrders[id]; ok && o.State == StatePending {
			b.triggerQueue.PushBack(o)
		}
	}
	for _, id := range b.stopSells.collect(func(p float64) bool { return tradePrice <= p }) {
		if o, ok := b.activeOrders[id]; ok && o.State == StatePending {
			b.triggerQueue.PushBack(o)
		}
	}

	if b.sweeping {
		return
	}
	b.sweeping = true
	defer func() { b.sweeping = false }()

	for b.triggerQueue.Len() > 0 {
		o := b.triggerQueue.PopFront()
		if o.State != StatePending || o.StopTriggered {
			continue
		}
		b.triggerStop(o, b.lastTradePrice)
	}
}

// Reset drops all state, leaving configuration (router callbacks, fees,
// logging flag) intact.
func (b *OrderBook) Reset() {
	b.bids.clear()
	b.asks.clear()
	b.activeOrders = make(map[int64]*Order)
	b.cancelledOrders = make(map[int64]*Order)
	b.fills = nil
	b.events = nil
	b.stopBuys.clear()
	b.stopSells.clear()
	b.triggerQueue.Clear()
	b.lastTradePrice = 0
	b.latencies = NewLatencyTracker()
	b.ordersProcessed = 0
}
