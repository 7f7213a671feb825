package orderbook

import (
	"fmt"
	"strconv"
	"strings"
)

type EventType string

const (
	EventNew    EventType = "NEW"
	EventCancel EventType = "CANCEL"
	EventAmend  EventType = "AMEND"
	EventFill   EventType = "FILL"
)

// eventCSVHeader declares the column order; it is part of the on-disk
// contract and must not change.
const eventCSVHeader = "timestamp_ns,event_type,order_id,side,order_type,tif," +
	"price,quantity,peak_size,account_id,new_price,new_quantity," +
	"buy_order_id,sell_order_id,fill_price,fill_quantity"

const eventCSVFields = 16

// OrderEvent is one append-only log record. Fields that do not apply to the
// event type stay zero and serialize as empty columns.
type OrderEvent struct {
	Timestamp int64
	Type      EventType

	// NEW / CANCEL / AMEND
	OrderID int64

	// NEW
	Side      Side
	OrderType OrderType
	TIF       TimeInForce
	Price     float64
	Quantity  int64
	PeakSize  int64
	AccountID int64

	// AMEND
	NewPrice    *float64
	NewQuantity *int64

	// FILL (advisory; replay regenerates fills)
	BuyOrderID   int64
	SellOrderID  int64
	FillPrice    float64
	FillQuantity int64
}

func newOrderEvent(o *Order) OrderEvent {
	price := o.Price
	if o.IsMarket() {
		price = 0 // sentinel prices never hit the wire
	}
	return OrderEvent{
		Timestamp: o.Timestamp,
		Type:      EventNew,
		OrderID:   o.ID,
		Side:      o.Side,
		OrderType: o.Type,
		TIF:       o.TIF,
		Price:     price,
		Quantity:  o.Quantity,
		PeakSize:  o.PeakSize,
		AccountID: o.AccountID,
	}
}

func cancelEvent(ts, orderID int64) OrderEvent {
	return OrderEvent{Timestamp: ts, Type: EventCancel, OrderID: orderID}
}

func amendEvent(ts, orderID int64, newPrice *float64, newQty *int64) OrderEvent {
	return OrderEvent{
		Timestamp:   ts,
		Type:        EventAmend,
		OrderID:     orderID,
		NewPrice:    newPrice,
		NewQuantity: newQty,
	}
}

func fillEvent(f Fill) OrderEvent {
	return OrderEvent{
		Timestamp:    f.Timestamp,
		Type:         EventFill,
		BuyOrderID:   f.BuyOrderID,
		SellOrderID:  f.SellOrderID,
		FillPrice:    f.Price,
		FillQuantity: f.Quantity,
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// CSV renders the event as one log line in header column order.
func (e OrderEvent) CSV() string {
	cols := make([]string, eventCSVFields)
	cols[0] = strconv.FormatInt(e.Timestamp, 10)
	cols[1] = string(e.Type)

	switch e.Type {
	case EventNew:
		cols[2] = strconv.FormatInt(e.OrderID, 10)
		cols[3] = string(e.Side)
		cols[4] = string(e.OrderType)
		cols[5] = string(e.TIF)
		cols[6] = formatPrice(e.Price)
		cols[7] = strconv.FormatInt(e.Quantity, 10)
		cols[8] = strconv.FormatInt(e.PeakSize, 10)
		cols[9] = strconv.FormatInt(e.AccountID, 10)
	case EventCancel:
		cols[2] = strconv.FormatInt(e.OrderID, 10)
	case EventAmend:
		cols[2] = strconv.FormatInt(e.OrderID, 10)
		if e.NewPrice != nil {
			cols[10] = formatPrice(*e.NewPrice)
		}
		if e.NewQuantity != nil {
			cols[11] = strconv.FormatInt(*e.NewQuantity, 10)
		}
	case EventFill:
		cols[12] = strconv.FormatInt(e.BuyOrderID, 10)
		cols[13] = strconv.FormatInt(e.SellOrderID, 10)
		cols[14] = formatPrice(e.FillPrice)
		cols[15] = strconv.FormatInt(e.FillQuantity, 10)
	}

	return strings.Join(cols, ",")
}

func (e OrderEvent) String() string {
	switch e.Type {
	case EventNew:
		s := fmt.Sprintf("NEW order=%d side=%s type=%s tif=%s price=%.2f qty=%d",
			e.OrderID, e.Side, e.OrderType, e.TIF, e.Price, e.Quantity)
		if e.PeakSize > 0 {
			s += fmt.Sprintf(" peak=%d", e.PeakSize)
		}
		return s
	case EventCancel:
		return fmt.Sprintf("CANCEL order=%d", e.OrderID)
	case EventAmend:
		s := fmt.Sprintf("AMEND order=%d", e.OrderID)
		if e.NewPrice != nil {
			s += fmt.Sprintf(" new_price=%.2f", *e.NewPrice)
		}
		if e.NewQuantity != nil {
			s += fmt.Sprintf(" new_qty=%d", *e.NewQuantity)
		}
		return s
	case EventFill:
		return fmt.Sprintf("FILL buy=%d sell=%d price=%.2f qty=%d",
			e.BuyOrderID, e.SellOrderID, e.FillPrice, e.FillQuantity)
	}
	return "UNKNOWN"
}

// ParseEvent decodes one CSV line. An unknown event type or a malformed
// field is fatal to the caller's load operation.
func ParseEvent(line string) (OrderEvent, error) {
	cols := strings.Split(line, ",")
	if len(cols) != eventCSVFields {
		return OrderEvent{}, fmt.Errorf("%w: expected %d fields, got %d",
			ErrEventParse, eventCSVFields, len(cols))
	}

	ts, err := strconv.ParseInt(cols[0], 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("%w: timestamp %q", ErrEventParse, cols[0])
	}

	e := OrderEvent{Timestamp: ts, Type: EventType(cols[1])}
	switch e.Type {
	case EventNew:
		if e.OrderID, err = strconv.ParseInt(cols[2], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: order_id %q", ErrEventParse, cols[2])
		}
		e.Side = Side(cols[3])
		if e.Side != BUY && e.Side != SELL {
			return OrderEvent{}, fmt.Errorf("%w: side %q", ErrEventParse, cols[3])
		}
		e.OrderType = OrderType(cols[4])
		if e.OrderType != LIMIT && e.OrderType != MARKET {
			return OrderEvent{}, fmt.Errorf("%w: order_type %q", ErrEventParse, cols[4])
		}
		e.TIF = TimeInForce(cols[5])
		if e.Price, err = strconv.ParseFloat(cols[6], 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: price %q", ErrEventParse, cols[6])
		}
		if e.Quantity, err = strconv.ParseInt(cols[7], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: quantity %q", ErrEventParse, cols[7])
		}
		if e.PeakSize, err = strconv.ParseInt(cols[8], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: peak_size %q", ErrEventParse, cols[8])
		}
		if e.AccountID, err = strconv.ParseInt(cols[9], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: account_id %q", ErrEventParse, cols[9])
		}
	case EventCancel:
		if e.OrderID, err = strconv.ParseInt(cols[2], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: order_id %q", ErrEventParse, cols[2])
		}
	case EventAmend:
		if e.OrderID, err = strconv.ParseInt(cols[2], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: order_id %q", ErrEventParse, cols[2])
		}
		if cols[10] != "" {
			p, err := strconv.ParseFloat(cols[10], 64)
			if err != nil {
				return OrderEvent{}, fmt.Errorf("%w: new_price %q", ErrEventParse, cols[10])
			}
			e.NewPrice = &p
		}
		if cols[11] != "" {
			q, err := strconv.ParseInt(cols[11], 10, 64)
			if err != nil {
				return OrderEvent{}, fmt.Errorf("%w: new_quantity %q", ErrEventParse, cols[11])
			}
			e.NewQuantity = &q
		}
	case EventFill:
		if e.BuyOrderID, err = strconv.ParseInt(cols[12], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: buy_order_id %q", ErrEventParse, cols[12])
		}
		if e.SellOrderID, err = strconv.ParseInt(cols[13], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: sell_order_id %q", ErrEventParse, cols[13])
		}
		if e.FillPrice, err = strconv.ParseFloat(cols[14], 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: fill_price %q", ErrEventParse, cols[14])
		}
		if e.FillQuantity, err = strconv.ParseInt(cols[15], 10, 64); err != nil {
			return OrderEvent{}, fmt.Errorf("%w: fill_quantity %q", ErrEventParse, cols[15])
		}
	default:
		return OrderEvent{}, fmt.Errorf("%w: unknown event type %q", ErrEventParse, cols[1])
	}

	return e, nil
}
