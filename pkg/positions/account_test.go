package positions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

func fill(price float64, qty int64) orderbook.Fill {
	return orderbook.Fill{BuyOrderID: 1, SellOrderID: 2, Price: price, Quantity: qty}
}

func TestOpenLongPosition(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 50), orderbook.BUY, "ABC", 0)

	pos := a.Positions["ABC"]
	require.NotNil(t, pos)
	assert.Equal(t, int64(50), pos.Quantity)
	assert.InDelta(t, 100.0, pos.AveragePrice, 1e-9)
	assert.True(t, pos.IsLong())

	cash, _ := a.CashBalance.Float64()
	assert.InDelta(t, 95_000.0, cash, 1e-9)
}

func TestAveragingUpKeepsVWAP(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 50), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(110.0, 50), orderbook.BUY, "ABC", 0)

	pos := a.Positions["ABC"]
	assert.Equal(t, int64(100), pos.Quantity)
	assert.InDelta(t, 105.0, pos.AveragePrice, 1e-9)
}

func TestPartialCloseRealizesPnL(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 100), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(110.0, 40), orderbook.SELL, "ABC", 0)

	pos := a.Positions["ABC"]
	assert.Equal(t, int64(60), pos.Quantity)
	assert.InDelta(t, 400.0, pos.RealizedPnL, 1e-9) // (110-100) * 40
	assert.InDelta(t, 100.0, pos.AveragePrice, 1e-9)
	assert.Equal(t, 1, a.WinningTrades)
}

func TestFullCloseFlattens(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 100), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(95.0, 100), orderbook.SELL, "ABC", 0)

	pos := a.Positions["ABC"]
	assert.True(t, pos.IsFlat())
	assert.InDelta(t, -500.0, pos.RealizedPnL, 1e-9)
	assert.Zero(t, pos.AveragePrice)
	assert.Zero(t, pos.TotalCostBasis)
	assert.Equal(t, 1, a.LosingTrades)
}

func TestReversalOpensOppositePosition(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 50), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(104.0, 80), orderbook.SELL, "ABC", 0)

	pos := a.Positions["ABC"]
	assert.Equal(t, int64(-30), pos.Quantity)
	assert.True(t, pos.IsShort())
	assert.InDelta(t, 104.0, pos.AveragePrice, 1e-9)
	assert.InDelta(t, 200.0, pos.RealizedPnL, 1e-9) // (104-100) * 50
}

func TestShortPositionPnL(t *testing.T) {
	a := NewAccount(1, "bob", 100_000)
	a.ProcessFill(fill(100.0, 50), orderbook.SELL, "ABC", 0)
	a.ProcessFill(fill(90.0, 50), orderbook.BUY, "ABC", 0)

	pos := a.Positions["ABC"]
	assert.True(t, pos.IsFlat())
	assert.InDelta(t, 500.0, pos.RealizedPnL, 1e-9) // short 100, cover 90
}

func TestFeesAccrueInCash(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 100), orderbook.BUY, "ABC", 0.001)

	fees, _ := a.FeesPaid.Float64()
	assert.InDelta(t, 10.0, fees, 1e-9) // 10_000 notional * 10 bps

	cash, _ := a.CashBalance.Float64()
	assert.InDelta(t, 100_000-10_000-10, cash, 1e-9)
}

func TestUnrealizedPnLMarks(t *testing.T) {
	a := NewAccount(1, "alice", 100_000)
	a.ProcessFill(fill(100.0, 50), orderbook.BUY, "ABC", 0)

	pos := a.Positions["ABC"]
	pos.UpdateUnrealizedPnL(104.0)
	assert.InDelta(t, 200.0, pos.UnrealizedPnL, 1e-9)

	assert.InDelta(t, 200.0, a.TotalPnL(map[string]float64{"ABC": 104.0}), 1e-9)
	assert.InDelta(t, 100_000-5000+50*104.0, a.AccountValue(map[string]float64{"ABC": 104.0}), 1e-9)
}

func TestPerformanceAccessors(t *testing.T) {
	a := NewAccount(1, "alice", 10_000)
	a.ProcessFill(fill(100.0, 10), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(110.0, 10), orderbook.SELL, "ABC", 0) // +100
	a.ProcessFill(fill(100.0, 10), orderbook.BUY, "ABC", 0)
	a.ProcessFill(fill(95.0, 10), orderbook.SELL, "ABC", 0) // -50

	assert.InDelta(t, 50.0, a.WinRate(), 1e-9)
	assert.InDelta(t, 2.0, a.ProfitFactor(), 1e-9)
	assert.InDelta(t, 100.0, a.AverageWin(), 1e-9)
	assert.InDelta(t, 50.0, a.AverageLoss(), 1e-9)
	assert.InDelta(t, 0.5, a.ReturnOnCapital(), 1e-9) // 50 / 10_000
}
