package simulator

import (
	"github.com/tradesim/matchbook/pkg/orderbook"
)

// TradingSignal is a strategy's intent; the simulator turns it into an order
// with a fresh id.
type TradingSignal struct {
	Side     orderbook.Side
	Type     orderbook.OrderType
	Price    float64
	Quantity int64
	TIF      orderbook.TimeInForce
}

// Strategy consumes market-data snapshots and emits signals. Callbacks run
// synchronously inside the simulation step and must not submit, cancel or
// amend orders directly; new orders only leave through GenerateSignals.
type Strategy interface {
	Name() string
	AccountID() int64
	Enabled() bool

	Initialize()
	OnMarketData(snap orderbook.MarketDataSnapshot)
	OnFill(fill *orderbook.EnhancedFill)
	OnTimer()

	GenerateSignals() []TradingSignal
}

// BaseStrategy carries the identity fields shared by all strategies.
type BaseStrategy struct {
	name      string
	accountID int64
	enabled   bool
}

func NewBaseStrategy(name string, accountID int64) BaseStrategy {
	return BaseStrategy{name: name, accountID: accountID, enabled: true}
}

func (b *BaseStrategy) Name() string      { return b.name }
func (b *BaseStrategy) AccountID() int64  { return b.accountID }
func (b *BaseStrategy) Enabled() bool     { return b.enabled }
func (b *BaseStrategy) SetEnabled(v bool) { b.enabled = v }

func (b *BaseStrategy) Initialize()                                {}
func (b *BaseStrategy) OnMarketData(orderbook.MarketDataSnapshot)  {}
func (b *BaseStrategy) OnFill(*orderbook.EnhancedFill)             {}
func (b *BaseStrategy) OnTimer()                                   {}
