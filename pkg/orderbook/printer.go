package orderbook

import (
	"fmt"
	"io"
)

// PrintTopOfBook writes the current best bid/ask and spread.
func (b *OrderBook) PrintTopOfBook(w io.Writer) {
	fmt.Fprintln(w, "--- Top of Book ---")
	if bid, ok := b.BestBid(); ok {
		fmt.Fprintf(w, "Best Bid: %.2f (qty: %d)\n", bid.Price, bid.RemainingQty)
	} else {
		fmt.Fprintln(w, "Best Bid: N/A")
	}
	if ask, ok := b.BestAsk(); ok {
		fmt.Fprintf(w, "Best Ask: %.2f (qty: %d)\n", ask.Price, ask.RemainingQty)
	} else {
		fmt.Fprintln(w, "Best Ask: N/A")
	}
	if spread, ok := b.Spread(); ok {
		fmt.Fprintf(w, "Spread: %.4f\n", spread)
	} else {
		fmt.Fprintln(w, "Spread: N/A")
	}
}

// PrintBookSummary writes a condensed view of the book state.
func (b *OrderBook) PrintBookSummary(w io.Writer) {
	fmt.Fprintln(w, "\n=== Current Book State ===")
	fmt.Fprintf(w, "Resting bids: %d\n", b.ActiveBidCount())
	fmt.Fprintf(w, "Resting asks: %d\n", b.ActiveAskCount())

	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	switch {
	case okB && okA:
		spread := ask.Price - bid.Price
		fmt.Fprintf(w, "Best Bid: $%.2f (%d)  Best Ask: $%.2f (%d)  Spread: $%.4f",
			bid.Price, bid.RemainingQty, ask.Price, ask.RemainingQty, spread)
		switch {
		case spread < 0:
			fmt.Fprintln(w, " CROSSED BOOK!")
		case spread == 0:
			fmt.Fprintln(w, " (locked)")
		case spread < 0.10:
			fmt.Fprintln(w, " (tight)")
		default:
			fmt.Fprintln(w, " (wide)")
		}
	case okB:
		fmt.Fprintf(w, "Bid-only market: best bid $%.2f\n", bid.Price)
	case okA:
		fmt.Fprintf(w, "Ask-only market: best ask $%.2f\n", ask.Price)
	default:
		fmt.Fprintln(w, "Empty book (no orders)")
	}
}

// PrintMarketDepth writes an aggregated ladder with the given number of
// levels per side, asks on top.
func (b *OrderBook) PrintMarketDepth(w io.Writer, levels int) {
	bidLevels := b.BidLevels(levels)
	askLevels := b.AskLevels(levels)

	fmt.Fprintf(w, "\n=== Market Depth (%d levels) ===\n", levels)

	fmt.Fprintln(w, " ASKS:")
	if len(askLevels) == 0 {
		fmt.Fprintln(w, "  (no asks)")
	}
	for i := len(askLevels) - 1; i >= 0; i-- {
		lvl := askLevels[i]
		fmt.Fprintf(w, "  $%8.2f | %6d (%d)\n", lvl.Price, lvl.TotalQuantity, lvl.NumOrders)
	}

	if spread, ok := b.Spread(); ok {
		fmt.Fprintf(w, "  ---- spread $%.4f ----\n", spread)
	} else {
		fmt.Fprintln(w, "  ---- (one-sided) ----")
	}

	fmt.Fprintln(w, " BIDS:")
	if len(bidLevels) == 0 {
		fmt.Fprintln(w, "  (no bids)")
	}
	for _, lvl := range bidLevels {
		fmt.Fprintf(w, "  $%8.2f | %6d (%d)\n", lvl.Price, lvl.TotalQuantity, lvl.NumOrders)
	}
}

// PrintFills writes the trade timeline in chronological order.
func (b *OrderBook) PrintFills(w io.Writer) {
	fmt.Fprintln(w, "\n=== Fills ===")
	if len(b.fills) == 0 {
		fmt.Fprintln(w, "No fills yet.")
		return
	}
	for i, f := range b.fills {
		fmt.Fprintf(w, "[%d] %s\n", i+1, f)
	}
}

// PrintPendingStops lists parked stops per side in trigger-price order.
func (b *OrderBook) PrintPendingStops(w io.Writer) {
	fmt.Fprintln(w, "\n=== Pending Stop Orders ===")
	if b.PendingStopCount() == 0 {
		fmt.Fprintln(w, "No pending stop orders.")
		return
	}

	printSide := func(label string, sb *stopBook) {
		if sb.size() == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", label)
		sb.each(func(price float64, id int64) {
			if o, ok := b.activeOrders[id]; ok {
				fmt.Fprintf(w, "  $%.2f -> order #%d (%d)\n", price, o.ID, o.Quantity)
			}
		})
	}
	printSide("Stop-Buy (trigger at or above)", b.stopBuys)
	printSide("Stop-Sell (trigger at or below)", b.stopSells)
}

// PrintLatencyStats writes submit-latency percentiles and a histogram.
func (b *OrderBook) PrintLatencyStats(w io.Writer) {
	if b.latencies.Count() == 0 {
		fmt.Fprintln(w, "No orders inserted yet!")
		return
	}

	stats := b.latencies.Stats()
	fmt.Fprintln(w, "\n=== Order Insertion Latency ===")
	fmt.Fprintf(w, "Total orders: %d\n", stats.Count)
	fmt.Fprintf(w, "Average: %.0f ns\n", stats.Mean)
	fmt.Fprintf(w, "Min: %d ns\n", stats.Min)
	fmt.Fprintf(w, "Max: %d ns\n", stats.Max)
	fmt.Fprintf(w, "p50: %d ns\n", stats.P50)
	fmt.Fprintf(w, "p95: %d ns\n", stats.P95)
	fmt.Fprintf(w, "p99: %d ns\n", stats.P99)

	for _, bucket := range b.latencies.histogram() {
		pct := float64(bucket.Count) * 100 / float64(stats.Count)
		fmt.Fprintf(w, "%-12s %6d (%.1f%%)\n", bucket.Label, bucket.Count, pct)
	}
}

// PrintMatchStats writes aggregate volume and notional statistics.
func (b *OrderBook) PrintMatchStats(w io.Writer) {
	fmt.Fprintln(w, "\n=== Matching Statistics ===")
	fmt.Fprintf(w, "Total orders processed: %d\n", b.ordersProcessed)
	fmt.Fprintf(w, "Total fills generated: %d\n", len(b.fills))

	if len(b.fills) > 0 {
		var volume int64
		var notional float64
		minPrice, maxPrice := b.fills[0].Price, b.fills[0].Price
		for _, f := range b.fills {
			volume += f.Quantity
			notional += f.Price * float64(f.Quantity)
			if f.Price < minPrice {
				minPrice = f.Price
			}
			if f.Price > maxPrice {
				maxPrice = f.Price
			}
		}
		fmt.Fprintf(w, "Total volume traded: %d\n", volume)
		fmt.Fprintf(w, "Total notional value: $%.2f\n", notional)
		fmt.Fprintf(w, "Average fill size: %.1f\n", float64(volume)/float64(len(b.fills)))
		fmt.Fprintf(w, "VWAP: $%.2f\n", notional/float64(volume))
		fmt.Fprintf(w, "Price range: $%.2f - $%.2f\n", minPrice, maxPrice)
	}

	b.PrintLatencyStats(w)
}

// PrintFillRateAnalysis writes how many submitted orders participated in at
// least one fill.
func (b *OrderBook) PrintFillRateAnalysis(w io.Writer) {
	if b.ordersProcessed == 0 {
		fmt.Fprintln(w, "No orders to analyze!")
		return
	}

	filled := make(map[int64]bool)
	for _, f := range b.fills {
		filled[f.BuyOrderID] = true
		filled[f.SellOrderID] = true
	}

	rate := float64(len(filled)) * 100 / float64(b.ordersProcessed)
	fmt.Fprintln(w, "\n=== Fill Rate Analysis ===")
	fmt.Fprintf(w, "Orders that generated fills: %d / %d (%.1f%%)\n",
		len(filled), b.ordersProcessed, rate)
	fmt.Fprintf(w, "Orders with no fill: %d\n", b.ordersProcessed-uint64(len(filled)))
}
