package orderbook

import "fmt"

// Fill is one executed trade between a buy and a sell order. The price is
// always the resting order's price.
type Fill struct {
	BuyOrderID  int64
	SellOrderID int64
	Price       float64
	Quantity    int64
	Timestamp   int64
}

func (f Fill) String() string {
	return fmt.Sprintf("Fill{buy=%d, sell=%d, price=%.2f, qty=%d}",
		f.BuyOrderID, f.SellOrderID, f.Price, f.Quantity)
}
