package orderbook

import "sort"

// PriceLevel aggregates resting quantity at one price.
type PriceLevel struct {
	Price         float64
	TotalQuantity int64
	NumOrders     int
}

// MarketDataSnapshot is the read-only top-of-book view handed to strategies.
// It is a value copy; holders are never affected by later book mutation.
type MarketDataSnapshot struct {
	Symbol    string
	BidPrice  float64
	BidSize   int64
	AskPrice  float64
	AskSize   int64
	LastPrice float64
	Spread    float64
	Timestamp int64
}

// MarketSnapshot captures the current top of book. LastPrice falls back to
// the mid when no trade has printed yet.
func (b *OrderBook) MarketSnapshot() MarketDataSnapshot {
	snap := MarketDataSnapshot{
		Symbol:    b.symbol,
		LastPrice: b.lastTradePrice,
		Timestamp: b.now(),
	}

	bid, okB := b.BestBid()
	if okB {
		snap.BidPrice = bid.Price
		snap.BidSize = bid.RemainingQty
	}
	ask, okA := b.BestAsk()
	if okA {
		snap.AskPrice = ask.Price
		snap.AskSize = ask.RemainingQty
	}
	if okB && okA {
		snap.Spread = ask.Price - bid.Price
		if snap.LastPrice == 0 {
			snap.LastPrice = (bid.Price + ask.Price) / 2
		}
	}

	return snap
}

// BidLevels aggregates live bids by price, best first, up to maxLevels.
func (b *OrderBook) BidLevels(maxLevels int) []PriceLevel {
	return b.levels(BUY, maxLevels)
}

// AskLevels aggregates live asks by price, best first, up to maxLevels.
func (b *OrderBook) AskLevels(maxLevels int) []PriceLevel {
	return b.levels(SELL, maxLevels)
}

func (b *OrderBook) levels(side Side, maxLevels int) []PriceLevel {
	byPrice := make(map[float64]*PriceLevel)
	for _, o := range b.activeOrders {
		if o.Side != side || !o.IsActive() || (o.IsStop && !o.StopTriggered) {
			continue
		}
		lvl, ok := byPrice[o.Price]
		if !ok {
			lvl = &PriceLevel{Price: o.Price}
			byPrice[o.Price] = lvl
		}
		lvl.TotalQuantity += o.RemainingQty
		lvl.NumOrders++
	}

	levels := make([]PriceLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		levels = append(levels, *lvl)
	}
	if side == BUY {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	} else {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	}

	if maxLevels > 0 && len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	return levels
}
