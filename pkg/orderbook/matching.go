package orderbook

// canMatch reports whether the aggressive order crosses the passive price.
// Market orders always cross; their sentinel prices keep this predicate
// total anyway.
func canMatch(aggressive, passive *Order) bool {
	if aggressive.IsMarket() {
		return true
	}
	if aggressive.Side == BUY {
		return aggressive.Price >= passive.Price
	}
	return aggressive.Price <= passive.Price
}

// canFill walks a copy of the opposite book accumulating crossable quantity,
// for the FOK pre-check. Quantities come from the authoritative records;
// tombstoned and duplicate entries are skipped.
func (b *OrderBook) canFill(o *Order) bool {
	counter := b.asks
	if o.Side == SELL {
		counter = b.bids
	}

	walk := counter.clone()
	seen := make(map[int64]bool)
	var available int64

	for available < o.Quantity {
		e, ok := walk.pop()
		if !ok {
			break
		}
		p, live := b.activeOrders[e.id]
		if !live || p.IsTerminal() || p.IsFilled() || seen[e.id] {
			continue
		}
		if e.price != p.Price || e.timestamp != p.Timestamp {
			continue // superseded entry; the live one is elsewhere
		}
		seen[e.id] = true
		if !canMatch(o, p) {
			break
		}
		// Quantity the router would refuse does not count as available, or
		// a FOK could partially fill and then die against its own account.
		if b.router.selfTradePrevention && o.AccountID != 0 && p.AccountID == o.AccountID {
			continue
		}
		available += p.RemainingQty
	}

	return available >= o.Quantity
}

// checkFOK cancels a fill-or-kill order outright when the book cannot fill
// it in full. No partial fills are ever emitted for FOK.
func (b *OrderBook) checkFOK(o *Order) bool {
	if o.TIF != FOK {
		return true
	}
	if b.canFill(o) {
		return true
	}

	o.State = StateCancelled
	if b.loggingEnabled {
		b.events = append(b.events, cancelEvent(b.nextTimestamp(), o.ID))
	}
	b.log.Infow("fok order cancelled",
		"order_id", o.ID, "quantity", o.Quantity, "reason", "insufficient liquidity")
	return false
}

// matchOrder runs the aggressive order against the opposite side until it is
// filled, the book no longer crosses, or the opposite side empties. Trades
// are staged and only committed once the fill router accepts them.
func (b *OrderBook) matchOrder(o *Order) {
	if !b.checkFOK(o) {
		return
	}

	counter := b.asks
	if o.Side == SELL {
		counter = b.bids
	}

	// Entries rejected by the router (self-trade) are parked here and
	// re-pushed after the loop, so the passive order keeps its place in the
	// book while the aggressor moves on to the next resting order.
	var skipped []bookEntry

	for o.RemainingQty > 0 {
		e, ok := counter.pop()
		if !ok {
			break
		}

		p, live := b.activeOrders[e.id]
		if !live || p.IsTerminal() || p.IsFilled() {
			continue // lazy deletion
		}

		// A record with exhausted display but quantity left is a stale
		// pre-refresh copy; the refreshed entry is elsewhere in the queue.
		if p.DisplayQty == 0 && p.RemainingQty > 0 {
			continue
		}

		// An entry whose key no longer matches the record was superseded
		// (amend re-queued the order at a fresh timestamp); the current
		// entry is elsewhere in the queue.
		if e.price != p.Price || e.timestamp != p.Timestamp {
			continue
		}

		if !canMatch(o, p) {
			counter.push(bookEntry{id: p.ID, price: p.Price, timestamp: p.Timestamp})
			break
		}

		available := p.RemainingQty
		if p.IsIceberg() {
			available = p.DisplayQty
		}
		qty := min64(o.RemainingQty, available)
		price := p.Price // passive order sets the print

		fill := Fill{
			BuyOrderID:  o.ID,
			SellOrderID: p.ID,
			Price:       price,
			Quantity:    qty,
			Timestamp:   b.nextTimestamp(),
		}
		if o.Side == SELL {
			fill.BuyOrderID, fill.SellOrderID = p.ID, o.ID
		}

		// Stage, then commit only on router acceptance: a rejected trade
		// must leave both orders untouched.
		if !b.router.RouteFill(fill, o, p, b.symbol) {
			skipped = append(skipped, e)
			continue
		}

		o.consume(qty)
		p.consume(qty)
		b.fills = append(b.fills, fill)
		if b.loggingEnabled {
			b.events = append(b.events, fillEvent(fill))
		}
		b.updateOrderState(o)
		b.updateOrderState(p)

		b.log.Debugw("trade executed",
			"buy_order_id", fill.BuyOrderID, "sell_order_id", fill.SellOrderID,
			"price", price, "quantity", qty)

		b.CheckStopTriggers(price)

		if p.NeedsRefresh() {
			p.RefreshDisplay(b.nextTimestamp())
			counter.push(bookEntry{id: p.ID, price: p.Price, timestamp: p.Timestamp})
		} else if p.RemainingQty > 0 && p.DisplayQty > 0 {
			counter.push(bookEntry{id: p.ID, price: p.Price, timestamp: p.Timestamp})
		}
		// Fully consumed entries are simply dropped.
	}

	for _, e := range skipped {
		counter.push(e)
	}

	b.handleUnfilled(o)
}

// handleUnfilled rests the residual of a GTC/DAY order or cancels the
// residual of an order that cannot rest (IOC, killed FOK).
func (b *OrderBook) handleUnfilled(o *Order) {
	if o.RemainingQty == 0 {
		return
	}

	if o.CanRest() {
		// An aggressive iceberg that traded through its display rests with
		// a refreshed display slice so the queue never holds a zero-display
		// record.
		if o.NeedsRefresh() {
			o.RefreshDisplay(o.Timestamp)
		}
		side := b.bids
		if o.Side == SELL {
			side = b.asks
		}
		side.push(bookEntry{id: o.ID, price: o.Price, timestamp: o.Timestamp})
		return
	}

	o.State = StateCancelled
	if o.TIF == IOC {
		filled := o.Quantity - o.RemainingQty
		if filled > 0 {
			b.log.Infow("ioc order partially filled, remainder cancelled",
				"order_id", o.ID, "filled", filled, "quantity", o.Quantity)
		} else {
			b.log.Infow("ioc order cancelled",
				"order_id", o.ID, "reason", "no immediate liquidity")
		}
	}
}

// updateOrderState moves the order through the fill states without ever
// overwriting a terminal state.
func (b *OrderBook) updateOrderState(o *Order) {
	if o.State == StateCancelled || o.State == StateRejected {
		return
	}
	if o.RemainingQty == 0 {
		o.State = StateFilled
	} else if o.RemainingQty < o.Quantity {
		o.State = StatePartiallyFilled
	}
}

// finalizeAfterMatching pins the TIF-dependent terminal state: an IOC with
// residual is CANCELLED, never left PARTIALLY_FILLED.
func (b *OrderBook) finalizeAfterMatching(o *Order) {
	if o.IsTerminal() {
		return
	}

	if o.TIF == IOC {
		if o.RemainingQty > 0 {
			o.State = StateCancelled
		} else {
			o.State = StateFilled
		}
		return
	}

	// FOK is resolved by the pre-check.

	if o.RemainingQty == 0 {
		o.State = StateFilled
	} else if o.RemainingQty < o.Quantity {
		o.State = StatePartiallyFilled
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
