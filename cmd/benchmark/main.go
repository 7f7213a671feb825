package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

const (
	numOrders = 1_000_000
	minPrice  = 100.0
	maxPrice  = 200.0
	minQty    = 1
	maxQty    = 100
)

func randomOrder(rng *rand.Rand, id int64) *orderbook.Order {
	side := orderbook.BUY
	if rng.Intn(2) == 0 {
		side = orderbook.SELL
	}
	price := minPrice + rng.Float64()*(maxPrice-minPrice)
	qty := int64(rng.Intn(maxQty-minQty+1) + minQty)

	o, err := orderbook.NewLimitOrder(id, 0, side,
		float64(int(price*100))/100, qty, orderbook.GTC)
	if err != nil {
		log.Fatalf("build order: %v", err)
	}
	return o
}

func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	book := orderbook.New("BENCH")
	book.Router().SetSelfTradePrevention(false)

	totalMatched := 0
	var totalQty int64
	book.Router().RegisterFillCallback(func(f *orderbook.EnhancedFill) {
		totalMatched++
		totalQty += f.Base.Quantity
		if totalMatched <= 5 {
			log.Printf("match: buy[%d] <=> sell[%d] @ %.2f qty %d",
				f.Base.BuyOrderID, f.Base.SellOrderID, f.Base.Price, f.Base.Quantity)
		}
	})

	start := time.Now()
	for i := int64(1); i <= numOrders; i++ {
		book.Submit(randomOrder(rng, i))
	}
	elapsed := time.Since(start)

	fmt.Printf("\nProcessed %d orders in %s (%.0f orders/sec)\n",
		numOrders, elapsed, float64(numOrders)/elapsed.Seconds())
	fmt.Printf("Fills: %d, volume: %d\n", totalMatched, totalQty)

	book.PrintLatencyStats(os.Stdout)
	book.PrintBookSummary(os.Stdout)
}
