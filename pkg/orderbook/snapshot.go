package orderbook

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// snapshotVersion is the schema version this build writes and accepts.
const snapshotVersion = "1.0"

// Snapshot is a complete, self-sufficient image of the book state.
type Snapshot struct {
	Version              string
	SnapshotID           uint64
	SnapshotTime         int64
	LastTradePrice       float64
	TotalOrdersProcessed uint64
	Latencies            []int64
	ActiveOrders         []Order
	PendingStops         []Order
	Fills                []Fill
}

// CreateSnapshot captures the current state. Active orders are those resting
// or partially filled; pending stops are listed separately in trigger order.
func (b *OrderBook) CreateSnapshot() Snapshot {
	// The snapshot time shares the book's monotonic tick stream so that
	// "events since the snapshot" is a plain timestamp comparison.
	snap := Snapshot{
		Version:              snapshotVersion,
		SnapshotID:           b.snapshotCounter,
		SnapshotTime:         b.nextTimestamp(),
		LastTradePrice:       b.lastTradePrice,
		TotalOrdersProcessed: b.ordersProcessed,
		Latencies:            append([]int64(nil), b.latencies.Samples()...),
		Fills:                append([]Fill(nil), b.fills...),
	}

	for _, o := range b.activeOrders {
		if o.IsActive() && !(o.IsStop && !o.StopTriggered) {
			snap.ActiveOrders = append(snap.ActiveOrders, *o)
		}
	}
	sort.Slice(snap.ActiveOrders, func(i, j int) bool {
		return snap.ActiveOrders[i].ID < snap.ActiveOrders[j].ID
	})

	appendStop := func(_ float64, id int64) {
		if o, ok := b.activeOrders[id]; ok {
			snap.PendingStops = append(snap.PendingStops, *o)
		}
	}
	b.stopBuys.each(appendStop)
	b.stopSells.each(appendStop)

	return snap
}

// RestoreFromSnapshot replaces all book state with the snapshot's content.
func (b *OrderBook) RestoreFromSnapshot(snap Snapshot) {
	b.Reset()

	b.lastTradePrice = snap.LastTradePrice
	b.fills = append([]Fill(nil), snap.Fills...)
	b.latencies.Restore(snap.Latencies)
	b.ordersProcessed = snap.TotalOrdersProcessed

	for i := range snap.ActiveOrders {
		o := snap.ActiveOrders[i] // copy
		b.activeOrders[o.ID] = &o
		if o.Timestamp > b.lastTimestamp {
			b.lastTimestamp = o.Timestamp
		}
		side := b.bids
		if o.Side == SELL {
			side = b.asks
		}
		side.push(bookEntry{id: o.ID, price: o.Price, timestamp: o.Timestamp})
	}

	for i := range snap.PendingStops {
		o := snap.PendingStops[i]
		b.activeOrders[o.ID] = &o
		if o.Timestamp > b.lastTimestamp {
			b.lastTimestamp = o.Timestamp
		}
		if o.Side == BUY {
			b.stopBuys.add(o.StopPrice, o.ID)
		} else {
			b.stopSells.add(o.StopPrice, o.ID)
		}
	}

	b.log.Infow("order book restored from snapshot",
		"active_orders", len(snap.ActiveOrders),
		"pending_stops", len(snap.PendingStops),
		"fills", len(snap.Fills))
}

// Validate checks internal consistency before a snapshot is allowed to
// replace live state.
func (s Snapshot) Validate() error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: %q", ErrSnapshotSchema, s.Version)
	}

	seen := make(map[int64]bool)
	for _, o := range s.ActiveOrders {
		if seen[o.ID] {
			return fmt.Errorf("%w: duplicate order id %d", ErrSnapshotCorrupt, o.ID)
		}
		seen[o.ID] = true
		if o.State != StateActive && o.State != StatePartiallyFilled {
			return fmt.Errorf("%w: active order %d has state %s", ErrSnapshotCorrupt, o.ID, o.State)
		}
		if o.RemainingQty < 0 || o.RemainingQty > o.Quantity {
			return fmt.Errorf("%w: order %d remaining %d of %d", ErrSnapshotCorrupt, o.ID, o.RemainingQty, o.Quantity)
		}
	}
	for _, o := range s.PendingStops {
		if seen[o.ID] {
			return fmt.Errorf("%w: duplicate order id %d", ErrSnapshotCorrupt, o.ID)
		}
		seen[o.ID] = true
		if !o.IsStop || o.StopTriggered {
			return fmt.Errorf("%w: pending stop %d is not a pending stop", ErrSnapshotCorrupt, o.ID)
		}
	}
	return nil
}

func orderRecord(o Order) string {
	cols := []string{
		strconv.FormatInt(o.ID, 10),
		strconv.FormatInt(o.AccountID, 10),
		string(o.Side),
		string(o.Type),
		string(o.TIF),
		formatPrice(o.Price),
		strconv.FormatInt(o.Quantity, 10),
		strconv.FormatInt(o.RemainingQty, 10),
		strconv.FormatInt(o.DisplayQty, 10),
		strconv.FormatInt(o.HiddenQty, 10),
		strconv.FormatInt(o.PeakSize, 10),
		boolField(o.IsStop),
		boolField(o.StopTriggered),
		formatPrice(o.StopPrice),
		string(o.StopBecomes),
		strconv.FormatInt(o.Timestamp, 10),
		string(o.State),
	}
	return strings.Join(cols, ",")
}

func parseOrderRecord(line string) (Order, error) {
	cols := strings.Split(line, ",")
	if len(cols) != 17 {
		return Order{}, fmt.Errorf("%w: order record has %d fields", ErrSnapshotCorrupt, len(cols))
	}

	var o Order
	var err error
	if o.ID, err = strconv.ParseInt(cols[0], 10, 64); err != nil {
		return Order{}, fmt.Errorf("%w: order id %q", ErrSnapshotCorrupt, cols[0])
	}
	if o.AccountID, err = strconv.ParseInt(cols[1], 10, 64); err != nil {
		return Order{}, fmt.Errorf("%w: account id %q", ErrSnapshotCorrupt, cols[1])
	}
	o.Side = Side(cols[2])
	o.Type = OrderType(cols[3])
	o.TIF = TimeInForce(cols[4])
	if o.Price, err = strconv.ParseFloat(cols[5], 64); err != nil {
		return Order{}, fmt.Errorf("%w: price %q", ErrSnapshotCorrupt, cols[5])
	}
	ints := []struct {
		dst *int64
		col int
	}{
		{&o.Quantity, 6}, {&o.RemainingQty, 7}, {&o.DisplayQty, 8},
		{&o.HiddenQty, 9}, {&o.PeakSize, 10}, {&o.Timestamp, 15},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.ParseInt(cols[f.col], 10, 64); err != nil {
			return Order{}, fmt.Errorf("%w: field %d %q", ErrSnapshotCorrupt, f.col, cols[f.col])
		}
	}
	o.IsStop = cols[11] == "1"
	o.StopTriggered = cols[12] == "1"
	if o.StopPrice, err = strconv.ParseFloat(cols[13], 64); err != nil {
		return Order{}, fmt.Errorf("%w: stop price %q", ErrSnapshotCorrupt, cols[13])
	}
	o.StopBecomes = OrderType(cols[14])
	o.State = OrderState(cols[16])
	return o, nil
}

func fillRecord(f Fill) string {
	return strings.Join([]string{
		strconv.FormatInt(f.BuyOrderID, 10),
		strconv.FormatInt(f.SellOrderID, 10),
		formatPrice(f.Price),
		strconv.FormatInt(f.Quantity, 10),
		strconv.FormatInt(f.Timestamp, 10),
	}, ",")
}

func parseFillRecord(line string) (Fill, error) {
	cols := strings.Split(line, ",")
	if len(cols) != 5 {
		return Fill{}, fmt.Errorf("%w: fill record has %d fields", ErrSnapshotCorrupt, len(cols))
	}
	var f Fill
	var err error
	if f.BuyOrderID, err = strconv.ParseInt(cols[0], 10, 64); err != nil {
		return Fill{}, fmt.Errorf("%w: buy id %q", ErrSnapshotCorrupt, cols[0])
	}
	if f.SellOrderID, err = strconv.ParseInt(cols[1], 10, 64); err != nil {
		return Fill{}, fmt.Errorf("%w: sell id %q", ErrSnapshotCorrupt, cols[1])
	}
	if f.Price, err = strconv.ParseFloat(cols[2], 64); err != nil {
		return Fill{}, fmt.Errorf("%w: price %q", ErrSnapshotCorrupt, cols[2])
	}
	if f.Quantity, err = strconv.ParseInt(cols[3], 10, 64); err != nil {
		return Fill{}, fmt.Errorf("%w: quantity %q", ErrSnapshotCorrupt, cols[3])
	}
	if f.Timestamp, err = strconv.ParseInt(cols[4], 10, 64); err != nil {
		return Fill{}, fmt.Errorf("%w: timestamp %q", ErrSnapshotCorrupt, cols[4])
	}
	return f, nil
}

// Encode renders the schema-versioned text layout.
func (s Snapshot) Encode() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "version=%s\n", s.Version)
	fmt.Fprintf(&sb, "snapshot_id=%d\n", s.SnapshotID)
	fmt.Fprintf(&sb, "snapshot_time_epoch_ns=%d\n", s.SnapshotTime)
	fmt.Fprintf(&sb, "last_trade_price=%s\n", formatPrice(s.LastTradePrice))
	fmt.Fprintf(&sb, "total_orders_processed=%d\n", s.TotalOrdersProcessed)
	fmt.Fprintf(&sb, "latency_count=%d\n", len(s.Latencies))
	lats := make([]string, len(s.Latencies))
	for i, ns := range s.Latencies {
		lats[i] = strconv.FormatInt(ns, 10)
	}
	fmt.Fprintf(&sb, "latencies=%s\n", strings.Join(lats, ","))
	fmt.Fprintf(&sb, "active_orders_count=%d\n", len(s.ActiveOrders))
	for _, o := range s.ActiveOrders {
		sb.WriteString(orderRecord(o))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "pending_stops_count=%d\n", len(s.PendingStops))
	for _, o := range s.PendingStops {
		sb.WriteString(orderRecord(o))
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "fills_count=%d\n", len(s.Fills))
	for _, f := range s.Fills {
		sb.WriteString(fillRecord(f))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DecodeSnapshot parses the text layout, enforcing declared counts.
func DecodeSnapshot(data string) (Snapshot, error) {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	var s Snapshot
	idx := 0

	next := func() (string, error) {
		if idx >= len(lines) {
			return "", fmt.Errorf("%w: truncated file", ErrSnapshotCorrupt)
		}
		line := lines[idx]
		idx++
		return line, nil
	}
	keyed := func(key string) (string, error) {
		line, err := next()
		if err != nil {
			return "", err
		}
		prefix := key + "="
		if !strings.HasPrefix(line, prefix) {
			return "", fmt.Errorf("%w: expected %s, got %q", ErrSnapshotCorrupt, key, line)
		}
		return strings.TrimPrefix(line, prefix), nil
	}
	keyedUint := func(key string) (uint64, error) {
		v, err := keyed(key)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q", ErrSnapshotCorrupt, key, v)
		}
		return n, nil
	}

	var err error
	if s.Version, err = keyed("version"); err != nil {
		return Snapshot{}, err
	}
	if s.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrSnapshotSchema, s.Version)
	}
	if s.SnapshotID, err = keyedUint("snapshot_id"); err != nil {
		return Snapshot{}, err
	}
	ts, err := keyed("snapshot_time_epoch_ns")
	if err != nil {
		return Snapshot{}, err
	}
	if s.SnapshotTime, err = strconv.ParseInt(ts, 10, 64); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot_time %q", ErrSnapshotCorrupt, ts)
	}
	ltp, err := keyed("last_trade_price")
	if err != nil {
		return Snapshot{}, err
	}
	if s.LastTradePrice, err = strconv.ParseFloat(ltp, 64); err != nil {
		return Snapshot{}, fmt.Errorf("%w: last_trade_price %q", ErrSnapshotCorrupt, ltp)
	}
	if s.TotalOrdersProcessed, err = keyedUint("total_orders_processed"); err != nil {
		return Snapshot{}, err
	}

	latCount, err := keyedUint("latency_count")
	if err != nil {
		return Snapshot{}, err
	}
	latLine, err := keyed("latencies")
	if err != nil {
		return Snapshot{}, err
	}
	if latLine != "" {
		for _, tok := range strings.Split(latLine, ",") {
			ns, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: latency %q", ErrSnapshotCorrupt, tok)
			}
			s.Latencies = append(s.Latencies, ns)
		}
	}
	if uint64(len(s.Latencies)) != latCount {
		return Snapshot{}, fmt.Errorf("%w: latency_count %d, got %d", ErrSnapshotCorrupt, latCount, len(s.Latencies))
	}

	activeCount, err := keyedUint("active_orders_count")
	if err != nil {
		return Snapshot{}, err
	}
	for i := uint64(0); i < activeCount; i++ {
		line, err := next()
		if err != nil {
			return Snapshot{}, err
		}
		o, err := parseOrderRecord(line)
		if err != nil {
			return Snapshot{}, err
		}
		s.ActiveOrders = append(s.ActiveOrders, o)
	}

	stopCount, err := keyedUint("pending_stops_count")
	if err != nil {
		return Snapshot{}, err
	}
	for i := uint64(0); i < stopCount; i++ {
		line, err := next()
		if err != nil {
			return Snapshot{}, err
		}
		o, err := parseOrderRecord(line)
		if err != nil {
			return Snapshot{}, err
		}
		s.PendingStops = append(s.PendingStops, o)
	}

	fillCount, err := keyedUint("fills_count")
	if err != nil {
		return Snapshot{}, err
	}
	for i := uint64(0); i < fillCount; i++ {
		line, err := next()
		if err != nil {
			return Snapshot{}, err
		}
		f, err := parseFillRecord(line)
		if err != nil {
			return Snapshot{}, err
		}
		s.Fills = append(s.Fills, f)
	}

	return s, nil
}

// writeFileRetrying writes a persistence artifact, retrying transient IO
// errors with exponential backoff before giving up.
func writeFileRetrying(path string, data []byte) error {
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(func() error {
		return os.WriteFile(path, data, 0o644)
	}, boff)
}

// SaveSnapshot writes the current state to path and bumps the snapshot
// counter.
func (b *OrderBook) SaveSnapshot(path string) error {
	snap := b.CreateSnapshot()
	b.snapshotCounter++
	if err := writeFileRetrying(path, []byte(snap.Encode())); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	b.log.Infow("snapshot saved", "path", path, "snapshot_id", snap.SnapshotID)
	return nil
}

// LoadSnapshot reads, validates and applies a snapshot. On any error the
// in-memory state is left untouched.
func (b *OrderBook) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := DecodeSnapshot(string(data))
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	b.RestoreFromSnapshot(snap)
	return nil
}

// SaveEvents flushes the event log as CSV with the contract header.
func (b *OrderBook) SaveEvents(path string) error {
	var sb strings.Builder
	sb.WriteString(eventCSVHeader)
	sb.WriteByte('\n')
	for _, e := range b.events {
		sb.WriteString(e.CSV())
		sb.WriteByte('\n')
	}
	if err := writeFileRetrying(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	b.log.Infow("events saved", "path", path, "count", len(b.events))
	return nil
}

// SaveCheckpoint writes a snapshot plus the full event log;
// RecoverFromCheckpoint skips the events at or before the snapshot time.
func (b *OrderBook) SaveCheckpoint(snapshotPath, eventsPath string) error {
	if err := b.SaveSnapshot(snapshotPath); err != nil {
		return err
	}
	return b.SaveEvents(eventsPath)
}

// RecoverFromCheckpoint loads a snapshot, then re-applies NEW/CANCEL/AMEND
// events in order. FILL events are regenerated by matching and skipped. All
// inputs are parsed before any state is replaced.
func (b *OrderBook) RecoverFromCheckpoint(snapshotPath, eventsPath string) error {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	snap, err := DecodeSnapshot(string(data))
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	events, err := readEventFile(eventsPath)
	if err != nil {
		return err
	}

	b.RestoreFromSnapshot(snap)

	wasLogging := b.loggingEnabled
	b.loggingEnabled = false
	defer func() { b.loggingEnabled = wasLogging }()

	applied := 0
	for _, e := range events {
		if e.Timestamp <= snap.SnapshotTime {
			continue // already reflected in the snapshot
		}
		if applyEvent(b, e) {
			applied++
		}
	}
	b.log.Infow("recovered from checkpoint",
		"snapshot", snapshotPath, "events_applied", applied)
	return nil
}

func readEventFile(path string) ([]OrderEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || lines[0] != eventCSVHeader {
		return nil, fmt.Errorf("%w: missing or unexpected header", ErrEventParse)
	}

	var events []OrderEvent
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		e, err := ParseEvent(line)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// applyEvent routes one log record back through the book. FILL records are
// advisory and skipped.
func applyEvent(b *OrderBook, e OrderEvent) bool {
	switch e.Type {
	case EventNew:
		var o *Order
		var err error
		switch {
		case e.PeakSize > 0:
			o, err = NewIcebergOrder(e.OrderID, e.AccountID, e.Side, e.Price, e.Quantity, e.PeakSize, e.TIF)
		case e.OrderType == MARKET:
			o, err = NewMarketOrder(e.OrderID, e.AccountID, e.Side, e.Quantity, e.TIF)
		default:
			o, err = NewLimitOrder(e.OrderID, e.AccountID, e.Side, e.Price, e.Quantity, e.TIF)
		}
		if err != nil {
			return false
		}
		b.Submit(o)
		return true
	case EventCancel:
		b.Cancel(e.OrderID)
		return true
	case EventAmend:
		b.Amend(e.OrderID, e.NewPrice, e.NewQuantity)
		return true
	}
	return false
}
