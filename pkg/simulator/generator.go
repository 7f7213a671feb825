package simulator

import (
	"math"
	"math/rand"

	"github.com/gammazero/deque"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

const minPrice = 0.01

// GeneratorConfig shapes the synthetic flow.
type GeneratorConfig struct {
	Symbol     string
	StartPrice float64
	Drift      float64
	Volatility float64
	Spread     float64
	TickSize   float64
	MinSize    int64
	MaxSize    int64
	DepthLevels int
	Seed       int64

	MakerBuyAccount  int64
	MakerSellAccount int64
	TakerBuyAccount  int64
	TakerSellAccount int64
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:           "GEN",
		StartPrice:       100.0,
		Volatility:       0.5,
		Spread:           0.02,
		TickSize:         0.01,
		MinSize:          50,
		MaxSize:          200,
		DepthLevels:      2,
		Seed:             1337,
		MakerBuyAccount:  6001,
		MakerSellAccount: 6002,
		TakerBuyAccount:  7001,
		TakerSellAccount: 7002,
	}
}

type SnapshotCallback func(snap orderbook.MarketDataSnapshot)

// Generator drives a book with a seeded random walk: layered maker
// liquidity, occasional taker market orders and rotation of stale resting
// orders.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand

	lastMid     float64
	nextOrderID int64
	restingIDs  deque.Deque[int64]
	callbacks   []SnapshotCallback
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = minPrice
	}
	return &Generator{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		lastMid:     cfg.StartPrice,
		nextOrderID: 100000,
	}
}

func (g *Generator) Config() GeneratorConfig { return g.cfg }

func (g *Generator) CurrentMid() float64 { return g.lastMid }

// Reset rewinds the walk to a new starting price.
func (g *Generator) Reset(price float64) {
	g.lastMid = math.Max(price, minPrice)
	g.restingIDs.Clear()
	g.nextOrderID = 100000
}

func (g *Generator) RegisterCallback(cb SnapshotCallback) {
	g.callbacks = append(g.callbacks, cb)
}

func (g *Generator) ClearCallbacks() {
	g.callbacks = nil
}

func (g *Generator) quantity() int64 {
	span := g.cfg.MaxSize - g.cfg.MinSize
	qty := g.cfg.MinSize
	if span > 0 {
		qty += int64(g.rng.Float64() * float64(span))
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}

// NextSnapshot advances the walk one tick and returns the implied quote.
func (g *Generator) NextSnapshot() orderbook.MarketDataSnapshot {
	shock := g.rng.NormFloat64() * g.cfg.Volatility
	g.lastMid = math.Max(minPrice, g.lastMid+g.cfg.Drift+shock)
	halfSpread := g.cfg.Spread / 2

	snap := orderbook.MarketDataSnapshot{
		Symbol:    g.cfg.Symbol,
		LastPrice: g.lastMid,
		BidPrice:  math.Max(minPrice, g.lastMid-halfSpread),
	}
	snap.AskPrice = math.Max(snap.BidPrice+g.cfg.TickSize, g.lastMid+halfSpread)
	snap.BidSize = g.quantity()
	snap.AskSize = g.quantity()
	snap.Spread = snap.AskPrice - snap.BidPrice
	return snap
}

// GenerateSeries produces a batch of snapshots, emitting each to callbacks.
func (g *Generator) GenerateSeries(steps int) []orderbook.MarketDataSnapshot {
	series := make([]orderbook.MarketDataSnapshot, 0, steps)
	for i := 0; i < steps; i++ {
		snap := g.NextSnapshot()
		series = append(series, snap)
		g.emit(snap)
	}
	return series
}

func (g *Generator) emit(snap orderbook.MarketDataSnapshot) {
	for _, cb := range g.callbacks {
		cb(snap)
	}
}

// Step advances one tick and, when a book is given, submits maker liquidity,
// occasionally cancels stale orders and occasionally fires a taker market
// order.
func (g *Generator) Step(book *orderbook.OrderBook, marketOrderProb float64) {
	snap := g.NextSnapshot()
	g.emit(snap)

	if book == nil {
		return
	}
	g.submitLiquidity(book, snap)
	g.maybeCancelResting(book, 0.1)
	g.maybeSubmitMarket(book, marketOrderProb)
}

func (g *Generator) submitLiquidity(book *orderbook.OrderBook, snap orderbook.MarketDataSnapshot) {
	for level := 0; level < g.cfg.DepthLevels; level++ {
		offset := float64(level) * g.cfg.TickSize

		bidPrice := math.Max(minPrice, snap.BidPrice-offset)
		askPrice := math.Max(minPrice, snap.AskPrice+offset)

		bid, err := orderbook.NewLimitOrder(g.nextID(), g.cfg.MakerBuyAccount+int64(level),
			orderbook.BUY, bidPrice, g.quantity(), orderbook.GTC)
		if err == nil {
			book.Submit(bid)
			g.restingIDs.PushBack(bid.ID)
		}

		ask, err := orderbook.NewLimitOrder(g.nextID(), g.cfg.MakerSellAccount+int64(level),
			orderbook.SELL, askPrice, g.quantity(), orderbook.GTC)
		if err == nil {
			book.Submit(ask)
			g.restingIDs.PushBack(ask.ID)
		}
	}

	// Keep the resting pool bounded.
	for g.restingIDs.Len() > 400 {
		book.Cancel(g.restingIDs.PopFront())
	}
}

func (g *Generator) maybeCancelResting(book *orderbook.OrderBook, probability float64) {
	if g.restingIDs.Len() == 0 || g.rng.Float64() >= probability {
		return
	}
	// Cancel may fail when the order already filled; that is fine.
	book.Cancel(g.restingIDs.PopFront())
}

func (g *Generator) maybeSubmitMarket(book *orderbook.OrderBook, probability float64) {
	if g.rng.Float64() > probability {
		return
	}

	side := orderbook.BUY
	account := g.cfg.TakerBuyAccount
	if g.rng.Float64() < 0.5 {
		side = orderbook.SELL
		account = g.cfg.TakerSellAccount
	}

	o, err := orderbook.NewMarketOrder(g.nextID(), account, side, g.quantity(), orderbook.IOC)
	if err == nil {
		book.Submit(o)
	}
}

// InjectSelfTrade submits a crossing maker/taker pair from the same account,
// to exercise self-trade prevention paths.
func (g *Generator) InjectSelfTrade(book *orderbook.OrderBook, accountID int64, price float64, qty int64) {
	tradePrice := math.Max(price, minPrice)

	maker, err := orderbook.NewLimitOrder(g.nextID(), accountID, orderbook.SELL, tradePrice, qty, orderbook.GTC)
	if err != nil {
		return
	}
	book.Submit(maker)

	taker, err := orderbook.NewLimitOrder(g.nextID(), accountID, orderbook.BUY, tradePrice, qty, orderbook.GTC)
	if err != nil {
		return
	}
	book.Submit(taker)
}

func (g *Generator) nextID() int64 {
	id := g.nextOrderID
	g.nextOrderID++
	return id
}
