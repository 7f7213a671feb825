package orderbook

import (
	"math"
	"testing"
)

func TestNewLimitOrderValidation(t *testing.T) {
	if _, err := NewLimitOrder(1, 0, BUY, 100.0, 0, GTC); err != ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := NewLimitOrder(1, 0, BUY, 100.0, -5, GTC); err != ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := NewLimitOrder(1, 0, BUY, 0, 10, GTC); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := NewLimitOrder(1, 0, BUY, math.Inf(1), 10, GTC); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice for infinite price, got %v", err)
	}

	o, err := NewLimitOrder(1, 7, SELL, 101.5, 25, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.TIF != GTC {
		t.Errorf("empty tif should default to GTC, got %s", o.TIF)
	}
	if o.DisplayQty != 25 || o.HiddenQty != 0 || o.RemainingQty != 25 {
		t.Errorf("unexpected quantities: %+v", o)
	}
}

func TestNewMarketOrderSentinelsAndTIF(t *testing.T) {
	buy, err := NewMarketOrder(1, 0, BUY, 10, GTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsInf(buy.Price, 1) {
		t.Errorf("market buy should carry +Inf sentinel, got %f", buy.Price)
	}
	if buy.TIF != IOC {
		t.Errorf("market GTC should coerce to IOC, got %s", buy.TIF)
	}

	sell, err := NewMarketOrder(2, 0, SELL, 10, FOK)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sell.Price != 0 {
		t.Errorf("market sell should carry 0 sentinel, got %f", sell.Price)
	}
	if sell.TIF != FOK {
		t.Errorf("explicit FOK should be kept, got %s", sell.TIF)
	}
}

func TestNewIcebergOrder(t *testing.T) {
	o, err := NewIcebergOrder(1, 0, SELL, 100.0, 500, 100, GTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.DisplayQty != 100 || o.HiddenQty != 400 || o.PeakSize != 100 {
		t.Errorf("unexpected iceberg split: %+v", o)
	}
	if o.DisplayQty+o.HiddenQty != o.RemainingQty {
		t.Errorf("display+hidden != remaining: %+v", o)
	}

	if _, err := NewIcebergOrder(2, 0, SELL, 100.0, 500, 0, GTC); err != ErrInvalidPeakSize {
		t.Fatalf("expected ErrInvalidPeakSize, got %v", err)
	}
}

func TestIcebergPeakAtOrAboveQuantityDegrades(t *testing.T) {
	o, err := NewIcebergOrder(1, 0, BUY, 100.0, 50, 50, GTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.IsIceberg() {
		t.Errorf("peak >= qty should degrade to plain limit: %+v", o)
	}
	if o.DisplayQty != 50 || o.HiddenQty != 0 {
		t.Errorf("degraded iceberg should be fully displayed: %+v", o)
	}
}

func TestRefreshDisplayResetsTimestamp(t *testing.T) {
	o, _ := NewIcebergOrder(1, 0, SELL, 100.0, 300, 100, GTC)
	o.Timestamp = 10

	o.consume(100)
	if !o.NeedsRefresh() {
		t.Fatalf("display exhausted with hidden left should need refresh: %+v", o)
	}

	o.RefreshDisplay(99)
	if o.Timestamp != 99 {
		t.Errorf("refresh must stamp the new timestamp, got %d", o.Timestamp)
	}
	if o.DisplayQty != 100 || o.HiddenQty != 100 || o.RemainingQty != 200 {
		t.Errorf("unexpected post-refresh split: %+v", o)
	}
}

func TestRefreshDisplayFinalSliver(t *testing.T) {
	o, _ := NewIcebergOrder(1, 0, SELL, 100.0, 130, 100, GTC)
	o.consume(100)
	o.RefreshDisplay(1)
	if o.DisplayQty != 30 || o.HiddenQty != 0 {
		t.Errorf("final reveal should expose the sliver: %+v", o)
	}
	o.consume(30)
	if o.NeedsRefresh() {
		t.Errorf("exhausted iceberg must not need refresh: %+v", o)
	}
}

func TestConsumeKeepsInvariant(t *testing.T) {
	o, _ := NewIcebergOrder(1, 0, BUY, 100.0, 500, 100, GTC)
	// Aggressive iceberg trading through its display dips into hidden.
	o.consume(150)
	if o.RemainingQty != 350 {
		t.Fatalf("expected remaining 350, got %d", o.RemainingQty)
	}
	if o.DisplayQty+o.HiddenQty != o.RemainingQty {
		t.Errorf("display+hidden != remaining after aggressive consume: %+v", o)
	}
}

func TestComparators(t *testing.T) {
	cheapEarly := &bookEntry{id: 1, price: 99, timestamp: 1}
	cheapLate := &bookEntry{id: 2, price: 99, timestamp: 2}
	rich := &bookEntry{id: 3, price: 101, timestamp: 3}

	if !bidBefore(rich, cheapEarly) {
		t.Errorf("higher bid price must come first")
	}
	if !bidBefore(cheapEarly, cheapLate) {
		t.Errorf("equal bid price must break ties by earlier timestamp")
	}
	if !askBefore(cheapEarly, rich) {
		t.Errorf("lower ask price must come first")
	}
	if !askBefore(cheapEarly, cheapLate) {
		t.Errorf("equal ask price must break ties by earlier timestamp")
	}
}

func TestCanRest(t *testing.T) {
	for tif, want := range map[TimeInForce]bool{GTC: true, DAY: true, IOC: false, FOK: false} {
		o, _ := NewLimitOrder(1, 0, BUY, 100, 10, tif)
		if o.CanRest() != want {
			t.Errorf("tif %s: CanRest = %v, want %v", tif, o.CanRest(), want)
		}
	}

	o, _ := NewLimitOrder(1, 0, BUY, 100, 10, GTC)
	o.State = StateCancelled
	if o.CanRest() {
		t.Errorf("cancelled order must not rest")
	}
}
