package orderbook

import "testing"

func mustIceberg(t *testing.T, id, account int64, side Side, price float64, qty, peak int64) *Order {
	t.Helper()
	o, err := NewIcebergOrder(id, account, side, price, qty, peak, GTC)
	if err != nil {
		t.Fatalf("build iceberg order: %v", err)
	}
	return o
}

func TestIcebergShowsOnlyPeak(t *testing.T) {
	ob := New("TEST")
	ob.Submit(mustIceberg(t, 1, 0, SELL, 100.0, 500, 100))

	ask, ok := ob.BestAsk()
	if !ok {
		t.Fatalf("iceberg should be resting")
	}
	if ask.DisplayQty != 100 || ask.HiddenQty != 400 {
		t.Errorf("expected 100 visible / 400 hidden, got %+v", ask)
	}
}

func TestIcebergRefreshAndPriorityLoss(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustIceberg(t, 1, 0, SELL, 100.0, 500, 100))
	ob.Submit(mustLimit(t, 2, 0, SELL, 100.0, 50, GTC))
	ob.Submit(mustLimit(t, 3, 0, BUY, 100.0, 100, GTC))

	fills := ob.Fills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	// Time priority: the iceberg arrived first and its display covers the
	// whole incoming order.
	if fills[0].BuyOrderID != 3 || fills[0].SellOrderID != 1 || fills[0].Quantity != 100 {
		t.Fatalf("unexpected fill: %+v", fills[0])
	}

	o1, _ := ob.GetOrder(1)
	if o1.DisplayQty != 100 || o1.HiddenQty != 300 || o1.RemainingQty != 400 {
		t.Errorf("iceberg should have refreshed to 100/300: %+v", o1)
	}

	// The refresh stamped a new timestamp: #2 now has priority at the level.
	ob.Submit(mustLimit(t, 4, 0, BUY, 100.0, 50, GTC))
	fills = ob.Fills()
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if fills[1].SellOrderID != 2 {
		t.Errorf("refreshed iceberg must lose priority to order 2, fill: %+v", fills[1])
	}
}

func TestIcebergSweepThroughRefreshes(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustIceberg(t, 1, 0, SELL, 100.0, 300, 100))

	// Three successive takers walk the whole reserve out.
	for i := int64(0); i < 3; i++ {
		ob.Submit(mustLimit(t, 2+i, 0, BUY, 100.0, 100, GTC))
	}

	o, _ := ob.GetOrder(1)
	if o.State != StateFilled || o.RemainingQty != 0 {
		t.Fatalf("iceberg should be fully consumed: %+v", o)
	}
	if len(ob.Fills()) != 3 {
		t.Errorf("expected 3 fills, got %d", len(ob.Fills()))
	}
	if _, ok := ob.BestAsk(); ok {
		t.Errorf("ask side should be empty")
	}
}

func TestIcebergAggressorPartialFill(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustLimit(t, 1, 0, SELL, 100.0, 150, GTC))
	ob.Submit(mustIceberg(t, 2, 0, BUY, 100.0, 500, 100))

	o, _ := ob.GetOrder(2)
	if o.RemainingQty != 350 {
		t.Fatalf("expected remaining 350, got %+v", o)
	}
	if o.DisplayQty+o.HiddenQty != o.RemainingQty {
		t.Errorf("display+hidden must equal remaining at all times: %+v", o)
	}
	if o.State != StatePartiallyFilled {
		t.Errorf("iceberg aggressor should be PARTIALLY_FILLED: %+v", o)
	}
}

func TestIcebergInvariantDuringPartialDisplayFill(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustIceberg(t, 1, 0, SELL, 100.0, 500, 100))
	ob.Submit(mustLimit(t, 2, 0, BUY, 100.0, 40, GTC))

	o, _ := ob.GetOrder(1)
	if o.DisplayQty != 60 || o.HiddenQty != 400 || o.RemainingQty != 460 {
		t.Fatalf("expected 60/400 of 460, got %+v", o)
	}
}

func TestDegradedIcebergBehavesAsLimit(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustIceberg(t, 1, 0, SELL, 100.0, 50, 80))
	ob.Submit(mustLimit(t, 2, 0, BUY, 100.0, 50, GTC))

	fills := ob.Fills()
	if len(fills) != 1 || fills[0].Quantity != 50 {
		t.Fatalf("degraded iceberg should match like a plain limit: %+v", fills)
	}
	o, _ := ob.GetOrder(1)
	if o.State != StateFilled {
		t.Errorf("degraded iceberg should be FILLED: %+v", o)
	}
}
