package positions

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

// Position is the per-symbol net holding of one account. Quantity is signed:
// positive long, negative short.
type Position struct {
	Symbol         string
	Quantity       int64
	AveragePrice   float64 // volume-weighted entry price
	RealizedPnL    float64
	UnrealizedPnL  float64
	TotalCostBasis float64
}

func (p *Position) IsFlat() bool  { return p.Quantity == 0 }
func (p *Position) IsLong() bool  { return p.Quantity > 0 }
func (p *Position) IsShort() bool { return p.Quantity < 0 }

// UpdateUnrealizedPnL marks the open position to the given price.
func (p *Position) UpdateUnrealizedPnL(currentPrice float64) {
	if p.Quantity == 0 {
		p.UnrealizedPnL = 0
		return
	}
	p.UnrealizedPnL = (currentPrice - p.AveragePrice) * float64(p.Quantity)
}

// Account tracks cash, positions, fees and trade statistics for one trading
// account. Cash and fees use decimal arithmetic so long fee accrual does not
// drift.
type Account struct {
	ID          int64
	Name        string
	InitialCash decimal.Decimal
	CashBalance decimal.Decimal
	FeesPaid    decimal.Decimal

	Positions    map[string]*Position
	TradeHistory []orderbook.Fill

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	GrossProfit   float64
	GrossLoss     float64
}

func NewAccount(id int64, name string, initialCash float64) *Account {
	cash := decimal.NewFromFloat(initialCash)
	return &Account{
		ID:          id,
		Name:        name,
		InitialCash: cash,
		CashBalance: cash,
		Positions:   make(map[string]*Position),
	}
}

// ProcessFill books one side of a fill against the account: cash, fees,
// position and statistics.
func (a *Account) ProcessFill(fill orderbook.Fill, side orderbook.Side, symbol string, feeRate float64) {
	a.TradeHistory = append(a.TradeHistory, fill)

	notional := decimal.NewFromFloat(fill.Price).Mul(decimal.NewFromInt(fill.Quantity))
	fee := notional.Mul(decimal.NewFromFloat(feeRate))
	a.FeesPaid = a.FeesPaid.Add(fee)

	if side == orderbook.BUY {
		a.CashBalance = a.CashBalance.Sub(notional.Add(fee))
	} else {
		a.CashBalance = a.CashBalance.Add(notional.Sub(fee))
	}

	a.updatePositionOnFill(fill, side, symbol)
	a.TotalTrades++
}

func (a *Account) updatePositionOnFill(fill orderbook.Fill, side orderbook.Side, symbol string) {
	pos, ok := a.Positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		a.Positions[symbol] = pos
	}

	signedQty := fill.Quantity
	if side == orderbook.SELL {
		signedQty = -fill.Quantity
	}

	oldQty := pos.Quantity
	oldAvgPrice := pos.AveragePrice

	switch {
	case oldQty == 0:
		// Opening a new position.
		pos.Quantity = signedQty
		pos.AveragePrice = fill.Price
		pos.TotalCostBasis = math.Abs(float64(signedQty)) * fill.Price

	case (oldQty > 0) == (signedQty > 0):
		// Adding in the same direction: re-average the cost basis.
		newQty := oldQty + signedQty
		pos.TotalCostBasis += math.Abs(float64(signedQty)) * fill.Price
		pos.AveragePrice = pos.TotalCostBasis / math.Abs(float64(newQty))
		pos.Quantity = newQty

	default:
		absOld := absInt64(oldQty)
		absNew := absInt64(signedQty)

		if absNew <= absOld {
			// Partially or fully closing.
			var exitPnL float64
			if oldQty > 0 {
				exitPnL = (fill.Price - oldAvgPrice) * float64(absNew)
			} else {
				exitPnL = (oldAvgPrice - fill.Price) * float64(absNew)
			}
			pos.RealizedPnL += exitPnL
			pos.Quantity += signedQty
			a.updateStatistics(exitPnL)

			if pos.Quantity == 0 {
				pos.AveragePrice = 0
				pos.TotalCostBasis = 0
			} else {
				reduction := float64(absNew) / float64(absOld)
				pos.TotalCostBasis *= 1 - reduction
			}
		} else {
			// Reversing: close everything, reopen the remainder opposite.
			var exitPnL float64
			if oldQty > 0 {
				exitPnL = (fill.Price - oldAvgPrice) * float64(absOld)
			} else {
				exitPnL = (oldAvgPrice - fill.Price) * float64(absOld)
			}
			pos.RealizedPnL += exitPnL
			a.updateStatistics(exitPnL)

			remaining := absNew - absOld
			if signedQty > 0 {
				pos.Quantity = remaining
			} else {
				pos.Quantity = -remaining
			}
			pos.AveragePrice = fill.Price
			pos.TotalCostBasis = float64(remaining) * fill.Price
		}
	}
}

func (a *Account) updateStatistics(pnl float64) {
	if pnl > 0 {
		a.WinningTrades++
		a.GrossProfit += pnl
	} else if pnl < 0 {
		a.LosingTrades++
		a.GrossLoss += math.Abs(pnl)
	}
}

// TotalRealizedPnL sums realized P&L across all positions.
func (a *Account) TotalRealizedPnL() float64 {
	total := 0.0
	for _, pos := range a.Positions {
		total += pos.RealizedPnL
	}
	return total
}

// TotalUnrealizedPnL sums the latest marks across all positions.
func (a *Account) TotalUnrealizedPnL() float64 {
	total := 0.0
	for _, pos := range a.Positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// TotalPnL is realized plus unrealized at the given marks.
func (a *Account) TotalPnL(currentPrices map[string]float64) float64 {
	total := a.TotalRealizedPnL()
	for symbol, pos := range a.Positions {
		if price, ok := currentPrices[symbol]; ok && pos.Quantity != 0 {
			total += (price - pos.AveragePrice) * float64(pos.Quantity)
		}
	}
	return total
}

// AccountValue is cash plus positions at market.
func (a *Account) AccountValue(currentPrices map[string]float64) float64 {
	value, _ := a.CashBalance.Float64()
	for symbol, pos := range a.Positions {
		if price, ok := currentPrices[symbol]; ok && pos.Quantity != 0 {
			value += price * float64(pos.Quantity)
		}
	}
	return value
}

// Leverage is gross exposure over account value.
func (a *Account) Leverage(currentPrices map[string]float64) float64 {
	value := a.AccountValue(currentPrices)
	if value <= 0 {
		return 0
	}
	exposure := 0.0
	for symbol, pos := range a.Positions {
		if price, ok := currentPrices[symbol]; ok {
			exposure += math.Abs(float64(pos.Quantity) * price)
		}
	}
	return exposure / value
}

// MarginUsed assumes a 100% margin requirement on gross exposure.
func (a *Account) MarginUsed(currentPrices map[string]float64) float64 {
	margin := 0.0
	for symbol, pos := range a.Positions {
		if price, ok := currentPrices[symbol]; ok {
			margin += math.Abs(float64(pos.Quantity) * price)
		}
	}
	return margin
}

// WinRate is winning closes over all closes, in percent.
func (a *Account) WinRate() float64 {
	closed := a.WinningTrades + a.LosingTrades
	if closed == 0 {
		return 0
	}
	return float64(a.WinningTrades) * 100 / float64(closed)
}

// ProfitFactor is gross profit over gross loss.
func (a *Account) ProfitFactor() float64 {
	if a.GrossLoss == 0 {
		if a.GrossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return a.GrossProfit / a.GrossLoss
}

func (a *Account) AverageWin() float64 {
	if a.WinningTrades == 0 {
		return 0
	}
	return a.GrossProfit / float64(a.WinningTrades)
}

func (a *Account) AverageLoss() float64 {
	if a.LosingTrades == 0 {
		return 0
	}
	return a.GrossLoss / float64(a.LosingTrades)
}

// ReturnOnCapital is realized P&L over initial cash, in percent.
func (a *Account) ReturnOnCapital() float64 {
	initial, _ := a.InitialCash.Float64()
	if initial == 0 {
		return 0
	}
	return a.TotalRealizedPnL() * 100 / initial
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
