package orderbook

import (
	"fmt"
	"math"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

type OrderType string

const (
	LIMIT  OrderType = "LIMIT"
	MARKET OrderType = "MARKET"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	DAY TimeInForce = "DAY"
)

type OrderState string

const (
	StatePending         OrderState = "PENDING"
	StateActive          OrderState = "ACTIVE"
	StatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	StateFilled          OrderState = "FILLED"
	StateCancelled       OrderState = "CANCELLED"
	StateRejected        OrderState = "REJECTED"
)

// Order is the book's unit of work. The copy held in activeOrders is the
// authoritative one; copies inside the priority queues may be stale and are
// revalidated on pop (lazy deletion).
type Order struct {
	ID        int64
	AccountID int64
	Side      Side
	Type      OrderType
	TIF       TimeInForce
	Price     float64

	Quantity     int64 // original, immutable after construction
	RemainingQty int64 // visible + hidden
	DisplayQty   int64
	HiddenQty    int64
	PeakSize     int64 // > 0 marks an iceberg

	IsStop        bool
	StopTriggered bool
	StopPrice     float64
	StopBecomes   OrderType

	Timestamp int64 // monotonic insertion tick, ns
	State     OrderState
}

// NewLimitOrder builds a plain limit order. Quantity must be positive.
func NewLimitOrder(id, accountID int64, side Side, price float64, qty int64, tif TimeInForce) (*Order, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return nil, ErrInvalidPrice
	}
	if tif == "" {
		tif = GTC
	}
	return &Order{
		ID:           id,
		AccountID:    accountID,
		Side:         side,
		Type:         LIMIT,
		TIF:          tif,
		Price:        price,
		Quantity:     qty,
		RemainingQty: qty,
		DisplayQty:   qty,
		State:        StatePending,
	}, nil
}

// NewMarketOrder builds a market order. Callers never supply a price: the
// sentinel (+Inf for buys, 0 for sells) keeps the crossing predicate total.
// GTC is coerced to IOC since a market order cannot rest.
func NewMarketOrder(id, accountID int64, side Side, qty int64, tif TimeInForce) (*Order, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if tif == "" || tif == GTC || tif == DAY {
		tif = IOC
	}
	return &Order{
		ID:           id,
		AccountID:    accountID,
		Side:         side,
		Type:         MARKET,
		TIF:          tif,
		Price:        marketSentinelPrice(side),
		Quantity:     qty,
		RemainingQty: qty,
		DisplayQty:   qty,
		State:        StatePending,
	}, nil
}

// NewIcebergOrder builds a limit order that shows at most peakSize at a time.
// A peak at or above the full quantity degrades to a plain limit order.
func NewIcebergOrder(id, accountID int64, side Side, price float64, qty, peakSize int64, tif TimeInForce) (*Order, error) {
	if peakSize <= 0 {
		return nil, ErrInvalidPeakSize
	}
	o, err := NewLimitOrder(id, accountID, side, price, qty, tif)
	if err != nil {
		return nil, err
	}
	if peakSize >= qty {
		return o, nil
	}
	o.PeakSize = peakSize
	o.DisplayQty = peakSize
	o.HiddenQty = qty - peakSize
	return o, nil
}

// NewStopMarketOrder parks until stopPrice is touched, then becomes a market
// order.
func NewStopMarketOrder(id, accountID int64, side Side, stopPrice float64, qty int64) (*Order, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if stopPrice <= 0 || math.IsNaN(stopPrice) {
		return nil, ErrInvalidStopPrice
	}
	return &Order{
		ID:           id,
		AccountID:    accountID,
		Side:         side,
		Type:         MARKET,
		TIF:          IOC,
		Price:        marketSentinelPrice(side),
		Quantity:     qty,
		RemainingQty: qty,
		DisplayQty:   qty,
		IsStop:       true,
		StopPrice:    stopPrice,
		StopBecomes:  MARKET,
		State:        StatePending,
	}, nil
}

// NewStopLimitOrder parks until stopPrice is touched, then becomes a limit
// order at limitPrice.
func NewStopLimitOrder(id, accountID int64, side Side, stopPrice, limitPrice float64, qty int64, tif TimeInForce) (*Order, error) {
	o, err := NewLimitOrder(id, accountID, side, limitPrice, qty, tif)
	if err != nil {
		return nil, err
	}
	if stopPrice <= 0 || math.IsNaN(stopPrice) {
		return nil, ErrInvalidStopPrice
	}
	o.IsStop = true
	o.StopPrice = stopPrice
	o.StopBecomes = LIMIT
	return o, nil
}

func marketSentinelPrice(side Side) float64 {
	if side == BUY {
		return math.Inf(1)
	}
	return 0
}

func (o *Order) IsFilled() bool {
	return o.RemainingQty == 0 || o.State == StateFilled
}

func (o *Order) IsActive() bool {
	return o.State == StateActive || o.State == StatePartiallyFilled
}

func (o *Order) IsTerminal() bool {
	return o.State == StateFilled || o.State == StateCancelled || o.State == StateRejected
}

func (o *Order) IsMarket() bool {
	return o.Type == MARKET
}

func (o *Order) IsIceberg() bool {
	return o.PeakSize > 0
}

// CanRest reports whether the unfilled remainder may stay in the book.
func (o *Order) CanRest() bool {
	if o.State == StateCancelled || o.State == StateRejected {
		return false
	}
	return o.TIF == GTC || o.TIF == DAY
}

// NeedsRefresh reports whether an iceberg's display is exhausted while hidden
// reserve remains.
func (o *Order) NeedsRefresh() bool {
	return o.IsIceberg() && o.DisplayQty == 0 && o.HiddenQty > 0
}

// RefreshDisplay reveals the next peak and stamps a new timestamp: a
// refreshed iceberg loses its time priority.
func (o *Order) RefreshDisplay(ts int64) {
	reveal := o.PeakSize
	if reveal > o.HiddenQty {
		reveal = o.HiddenQty
	}
	o.DisplayQty = reveal
	o.HiddenQty -= reveal
	o.Timestamp = ts
}

// consume books a traded quantity against the order, keeping
// display + hidden == remaining at all times.
func (o *Order) consume(qty int64) {
	o.RemainingQty -= qty
	if !o.IsIceberg() {
		o.DisplayQty = o.RemainingQty
		return
	}
	o.DisplayQty -= qty
	if o.DisplayQty < 0 {
		// Aggressive iceberg traded through its display; the overrun comes
		// out of the hidden reserve.
		o.HiddenQty += o.DisplayQty
		o.DisplayQty = 0
	}
}

func (o *Order) String() string {
	price := fmt.Sprintf("%.2f", o.Price)
	if o.IsMarket() {
		price = "MARKET"
	}
	return fmt.Sprintf("Order{id=%d, type=%s, side=%s, price=%s, qty=%d/%d, state=%s, ts=%d}",
		o.ID, o.Type, o.Side, price, o.RemainingQty, o.Quantity, o.State, o.Timestamp)
}

// bidBefore reports whether a takes priority over b on the bid side:
// higher price first, earlier timestamp on ties.
func bidBefore(a, b *bookEntry) bool {
	if a.price != b.price {
		return a.price > b.price
	}
	return a.timestamp < b.timestamp
}

// askBefore reports whether a takes priority over b on the ask side:
// lower price first, earlier timestamp on ties.
func askBefore(a, b *bookEntry) bool {
	if a.price != b.price {
		return a.price < b.price
	}
	return a.timestamp < b.timestamp
}
