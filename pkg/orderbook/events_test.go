package orderbook

import (
	"errors"
	"strings"
	"testing"
)

func TestEventCSVHeaderContract(t *testing.T) {
	want := "timestamp_ns,event_type,order_id,side,order_type,tif,price,quantity," +
		"peak_size,account_id,new_price,new_quantity,buy_order_id,sell_order_id," +
		"fill_price,fill_quantity"
	if eventCSVHeader != want {
		t.Fatalf("event header drifted from the contract:\n got %s\nwant %s", eventCSVHeader, want)
	}
}

func TestNewEventRoundTrip(t *testing.T) {
	o := mustIceberg(t, 42, 9, SELL, 101.5, 500, 100)
	o.Timestamp = 12345
	e := newOrderEvent(o)

	parsed, err := ParseEvent(e.CSV())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Type != EventNew || parsed.OrderID != 42 || parsed.Side != SELL {
		t.Errorf("mangled identity: %+v", parsed)
	}
	if parsed.Price != 101.5 || parsed.Quantity != 500 || parsed.PeakSize != 100 {
		t.Errorf("mangled economics: %+v", parsed)
	}
	if parsed.AccountID != 9 || parsed.TIF != GTC || parsed.Timestamp != 12345 {
		t.Errorf("mangled metadata: %+v", parsed)
	}
}

func TestMarketOrderLogsZeroPrice(t *testing.T) {
	o := mustMarket(t, 7, 0, BUY, 10, IOC)
	o.Timestamp = 1
	e := newOrderEvent(o)
	if e.Price != 0 {
		t.Fatalf("market sentinel must not hit the wire, got %f", e.Price)
	}
	cols := strings.Split(e.CSV(), ",")
	if cols[6] != "0" {
		t.Errorf("wire price should be zero, got %q", cols[6])
	}
}

func TestCancelEventRoundTrip(t *testing.T) {
	e := cancelEvent(99, 7)
	parsed, err := ParseEvent(e.CSV())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Type != EventCancel || parsed.OrderID != 7 || parsed.Timestamp != 99 {
		t.Errorf("mangled cancel: %+v", parsed)
	}
}

func TestAmendEventRoundTrip(t *testing.T) {
	price := 105.25
	qty := int64(40)
	e := amendEvent(5, 3, &price, &qty)

	parsed, err := ParseEvent(e.CSV())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.NewPrice == nil || *parsed.NewPrice != 105.25 {
		t.Errorf("lost new price: %+v", parsed)
	}
	if parsed.NewQuantity == nil || *parsed.NewQuantity != 40 {
		t.Errorf("lost new quantity: %+v", parsed)
	}

	// Absent fields stay absent.
	e2 := amendEvent(5, 3, nil, &qty)
	parsed2, err := ParseEvent(e2.CSV())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed2.NewPrice != nil {
		t.Errorf("absent new_price must parse as nil")
	}
	if parsed2.NewQuantity == nil || *parsed2.NewQuantity != 40 {
		t.Errorf("lost new quantity: %+v", parsed2)
	}
}

func TestFillEventRoundTrip(t *testing.T) {
	e := fillEvent(Fill{BuyOrderID: 1, SellOrderID: 2, Price: 100.5, Quantity: 25, Timestamp: 77})
	parsed, err := ParseEvent(e.CSV())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.BuyOrderID != 1 || parsed.SellOrderID != 2 ||
		parsed.FillPrice != 100.5 || parsed.FillQuantity != 25 {
		t.Errorf("mangled fill: %+v", parsed)
	}
}

func TestParseEventRejectsUnknownType(t *testing.T) {
	line := "1,BOGUS,2,,,,,,,,,,,,,"
	if _, err := ParseEvent(line); !errors.Is(err, ErrEventParse) {
		t.Fatalf("unknown event type must be fatal, got %v", err)
	}
}

func TestParseEventRejectsShortLine(t *testing.T) {
	if _, err := ParseEvent("1,NEW,2"); !errors.Is(err, ErrEventParse) {
		t.Fatalf("short line must be fatal, got %v", err)
	}
}

func TestParseEventRejectsBadNumeric(t *testing.T) {
	line := "1,NEW,xx,BUY,LIMIT,GTC,100,10,0,0,,,,,,"
	if _, err := ParseEvent(line); !errors.Is(err, ErrEventParse) {
		t.Fatalf("bad numeric must be fatal, got %v", err)
	}
}

func TestBookLogsLifecycleEvents(t *testing.T) {
	ob := New("TEST")
	ob.EnableLogging()

	ob.Submit(mustLimit(t, 1, 0, SELL, 100.0, 50, GTC))
	ob.Submit(mustLimit(t, 2, 0, BUY, 100.0, 50, GTC))
	ob.Submit(mustLimit(t, 3, 0, BUY, 99.0, 10, GTC))
	ob.Cancel(3)

	types := make([]EventType, 0, len(ob.Events()))
	for _, e := range ob.Events() {
		types = append(types, e.Type)
	}
	want := []EventType{EventNew, EventNew, EventFill, EventNew, EventCancel}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
}

func TestAmendLogsSingleAmendEvent(t *testing.T) {
	ob := New("TEST")
	ob.EnableLogging()

	ob.Submit(mustLimit(t, 1, 0, BUY, 100.0, 10, GTC))
	price := 101.0
	ob.Amend(1, &price, nil)

	var amends, cancels, news int
	for _, e := range ob.Events() {
		switch e.Type {
		case EventAmend:
			amends++
		case EventCancel:
			cancels++
		case EventNew:
			news++
		}
	}
	if amends != 1 {
		t.Errorf("expected exactly one AMEND event, got %d", amends)
	}
	if cancels != 0 || news != 1 {
		t.Errorf("amend internals must not log: cancels=%d news=%d", cancels, news)
	}
}

func TestDisabledLoggingRecordsNothing(t *testing.T) {
	ob := New("TEST")
	ob.Submit(mustLimit(t, 1, 0, BUY, 100.0, 10, GTC))
	if ob.EventCount() != 0 {
		t.Fatalf("logging disabled by default, got %d events", ob.EventCount())
	}
}
