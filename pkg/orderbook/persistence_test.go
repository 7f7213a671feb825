package orderbook

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotEncodeDecodeRoundTrip(t *testing.T) {
	ob := New("TEST")

	ob.Submit(mustLimit(t, 1, 5, BUY, 99.0, 100, GTC))
	ob.Submit(mustIceberg(t, 2, 6, SELL, 101.0, 300, 50))
	ob.Submit(mustStopMarket(t, 3, 7, SELL, 90.0, 40))
	ob.Submit(mustLimit(t, 4, 8, SELL, 99.0, 30, GTC)) // prints at 99

	snap := ob.CreateSnapshot()
	decoded, err := DecodeSnapshot(snap.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Encode() != snap.Encode() {
		t.Fatalf("snapshot round trip must be byte-identical")
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("decoded snapshot should validate: %v", err)
	}

	if len(decoded.ActiveOrders) != 2 { // partially filled bid + iceberg ask
		t.Errorf("expected 2 active orders, got %d", len(decoded.ActiveOrders))
	}
	if len(decoded.PendingStops) != 1 {
		t.Errorf("expected 1 pending stop, got %d", len(decoded.PendingStops))
	}
	if len(decoded.Fills) != 1 {
		t.Errorf("expected 1 fill, got %d", len(decoded.Fills))
	}
	if decoded.LastTradePrice != 99.0 {
		t.Errorf("expected last trade 99, got %f", decoded.LastTradePrice)
	}
}

func TestSnapshotSaveLoadRestoresBook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.txt")

	ob := New("TEST")
	ob.Submit(mustLimit(t, 1, 0, BUY, 99.0, 100, GTC))
	ob.Submit(mustIceberg(t, 2, 0, SELL, 101.0, 300, 50))
	ob.Submit(mustStopMarket(t, 3, 0, SELL, 90.0, 40))

	if err := ob.SaveSnapshot(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New("TEST")
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	bid, ok := restored.BestBid()
	if !ok || bid.ID != 1 || bid.Price != 99.0 {
		t.Errorf("bid not restored: %+v", bid)
	}
	ask, ok := restored.BestAsk()
	if !ok || ask.ID != 2 || ask.DisplayQty != 50 || ask.HiddenQty != 250 {
		t.Errorf("iceberg not restored: %+v", ask)
	}
	if restored.PendingStopCount() != 1 {
		t.Errorf("pending stop not restored")
	}

	// The restored book must keep matching deterministically.
	restored.Submit(mustLimit(t, 10, 0, BUY, 101.0, 50, GTC))
	fills := restored.Fills()
	if len(fills) != 1 || fills[0].SellOrderID != 2 {
		t.Errorf("restored iceberg should trade: %+v", fills)
	}
}

func TestSnapshotRejectsUnknownVersion(t *testing.T) {
	ob := New("TEST")
	snap := ob.CreateSnapshot()
	text := strings.Replace(snap.Encode(), "version=1.0", "version=9.9", 1)

	if _, err := DecodeSnapshot(text); !errors.Is(err, ErrSnapshotSchema) {
		t.Fatalf("unknown schema must be fatal, got %v", err)
	}
}

func TestSnapshotRejectsCountMismatch(t *testing.T) {
	ob := New("TEST")
	ob.Submit(mustLimit(t, 1, 0, BUY, 99.0, 100, GTC))
	text := strings.Replace(ob.CreateSnapshot().Encode(),
		"active_orders_count=1", "active_orders_count=2", 1)

	if _, err := DecodeSnapshot(text); err == nil {
		t.Fatalf("count mismatch must be fatal")
	}
}

func TestSnapshotValidateRejectsBadStates(t *testing.T) {
	snap := Snapshot{Version: snapshotVersion}
	snap.ActiveOrders = []Order{{ID: 1, State: StateCancelled, Quantity: 10}}
	if err := snap.Validate(); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("cancelled order in actives must fail validation, got %v", err)
	}

	snap = Snapshot{Version: snapshotVersion}
	snap.PendingStops = []Order{{ID: 1, IsStop: false, State: StatePending, Quantity: 5}}
	if err := snap.Validate(); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("non-stop pending entry must fail validation, got %v", err)
	}
}

func TestLoadSnapshotFailureLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(path, []byte("version=9.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ob := New("TEST")
	ob.Submit(mustLimit(t, 1, 0, BUY, 99.0, 100, GTC))

	if err := ob.LoadSnapshot(path); err == nil {
		t.Fatalf("bad snapshot must fail")
	}
	if bid, ok := ob.BestBid(); !ok || bid.ID != 1 {
		t.Errorf("failed load must not corrupt in-memory state")
	}
}

func TestSaveAndReadEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.csv")

	ob := New("TEST")
	ob.EnableLogging()
	ob.Submit(mustLimit(t, 1, 0, SELL, 100.0, 50, GTC))
	ob.Submit(mustLimit(t, 2, 0, BUY, 100.0, 50, GTC))

	if err := ob.SaveEvents(path); err != nil {
		t.Fatalf("save events: %v", err)
	}

	events, err := readEventFile(path)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != len(ob.Events()) {
		t.Fatalf("expected %d events, got %d", len(ob.Events()), len(events))
	}
	for i, e := range events {
		if e.CSV() != ob.Events()[i].CSV() {
			t.Errorf("event %d drifted through the file: %q vs %q",
				i, e.CSV(), ob.Events()[i].CSV())
		}
	}
}

func TestCheckpointRecovery(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snap.txt")
	eventsPath := filepath.Join(dir, "events.csv")

	ob := New("TEST")
	ob.EnableLogging()

	// Pre-checkpoint activity.
	ob.Submit(mustLimit(t, 1, 0, SELL, 100.0, 50, GTC))
	ob.Submit(mustLimit(t, 2, 0, BUY, 100.0, 30, GTC)) // partial fill
	if err := ob.SaveSnapshot(snapPath); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	// Post-checkpoint activity.
	ob.Submit(mustLimit(t, 3, 0, BUY, 100.0, 20, GTC)) // consumes the rest
	ob.Submit(mustLimit(t, 4, 0, BUY, 99.0, 10, GTC))
	if err := ob.SaveEvents(eventsPath); err != nil {
		t.Fatalf("save events: %v", err)
	}

	recovered := New("TEST")
	if err := recovered.RecoverFromCheckpoint(snapPath, eventsPath); err != nil {
		t.Fatalf("recover: %v", err)
	}

	// Same terminal states and book shape as the original run. Order 2
	// filled before the checkpoint; the snapshot keeps only active orders
	// and pending stops, so order 2 survives only in its fill record and is
	// not recovered as an order.
	for _, id := range []int64{1, 3, 4} {
		want, _ := ob.GetOrder(id)
		got, ok := recovered.GetOrder(id)
		if !ok {
			t.Fatalf("order %d missing after recovery", id)
		}
		if got.State != want.State || got.RemainingQty != want.RemainingQty {
			t.Errorf("order %d diverged: want %s/%d, got %s/%d",
				id, want.State, want.RemainingQty, got.State, got.RemainingQty)
		}
	}

	wantBid, _ := ob.BestBid()
	gotBid, ok := recovered.BestBid()
	if !ok || gotBid.ID != wantBid.ID || gotBid.Price != wantBid.Price {
		t.Errorf("best bid diverged: want %+v, got %+v", wantBid, gotBid)
	}
}
