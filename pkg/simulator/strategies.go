package simulator

import (
	"math"

	"github.com/gammazero/deque"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

// MomentumStrategy buys strength over a lookback window and exits the long
// on take-profit or stop-loss. It does not open short positions on weakness.
type MomentumStrategy struct {
	BaseStrategy

	lookback       int
	entryThreshold float64 // fractional move to enter
	takeProfitPct  float64
	stopLossPct    float64
	quoteSize      int64

	prices     deque.Deque[float64]
	position   int64
	entryPrice float64
	lastMid    float64
}

func NewMomentumStrategy(name string, accountID int64, lookback int, entryThreshold float64) *MomentumStrategy {
	return &MomentumStrategy{
		BaseStrategy:   NewBaseStrategy(name, accountID),
		lookback:       lookback,
		entryThreshold: entryThreshold,
		takeProfitPct:  0.02,
		stopLossPct:    0.01,
		quoteSize:      100,
	}
}

func (s *MomentumStrategy) OnMarketData(snap orderbook.MarketDataSnapshot) {
	if snap.LastPrice <= 0 {
		return
	}
	s.lastMid = snap.LastPrice
	s.prices.PushBack(snap.LastPrice)
	for s.prices.Len() > s.lookback {
		s.prices.PopFront()
	}
}

func (s *MomentumStrategy) OnFill(fill *orderbook.EnhancedFill) {
	qty := fill.Base.Quantity
	if fill.BuyAccountID == s.AccountID() {
		if s.position == 0 {
			s.entryPrice = fill.Base.Price
		}
		s.position += qty
	}
	if fill.SellAccountID == s.AccountID() {
		s.position -= qty
		if s.position == 0 {
			s.entryPrice = 0
		}
	}
}

func (s *MomentumStrategy) momentum() float64 {
	if s.prices.Len() < s.lookback {
		return 0
	}
	first := s.prices.Front()
	last := s.prices.Back()
	if first == 0 {
		return 0
	}
	return (last - first) / first
}

func (s *MomentumStrategy) GenerateSignals() []TradingSignal {
	if s.lastMid <= 0 {
		return nil
	}

	if s.position > 0 {
		gain := (s.lastMid - s.entryPrice) / s.entryPrice
		if gain >= s.takeProfitPct || gain <= -s.stopLossPct {
			return []TradingSignal{{
				Side: orderbook.SELL, Type: orderbook.MARKET,
				Quantity: s.position, TIF: orderbook.IOC,
			}}
		}
		return nil
	}

	if s.momentum() > s.entryThreshold {
		return []TradingSignal{{
			Side: orderbook.BUY, Type: orderbook.MARKET,
			Quantity: s.quoteSize, TIF: orderbook.IOC,
		}}
	}
	return nil
}

// MeanReversionStrategy fades moves beyond a z-score band around the rolling
// mean.
type MeanReversionStrategy struct {
	BaseStrategy

	window        int
	entryStdDevs  float64
	exitStdDevs   float64
	quoteSize     int64

	prices   deque.Deque[float64]
	position int64
	lastMid  float64
}

func NewMeanReversionStrategy(name string, accountID int64, window int, entryStdDevs float64) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		BaseStrategy: NewBaseStrategy(name, accountID),
		window:       window,
		entryStdDevs: entryStdDevs,
		exitStdDevs:  0.5,
		quoteSize:    100,
	}
}

func (s *MeanReversionStrategy) OnMarketData(snap orderbook.MarketDataSnapshot) {
	if snap.LastPrice <= 0 {
		return
	}
	s.lastMid = snap.LastPrice
	s.prices.PushBack(snap.LastPrice)
	for s.prices.Len() > s.window {
		s.prices.PopFront()
	}
}

func (s *MeanReversionStrategy) OnFill(fill *orderbook.EnhancedFill) {
	if fill.BuyAccountID == s.AccountID() {
		s.position += fill.Base.Quantity
	}
	if fill.SellAccountID == s.AccountID() {
		s.position -= fill.Base.Quantity
	}
}

func (s *MeanReversionStrategy) zScore() float64 {
	n := s.prices.Len()
	if n < s.window {
		return 0
	}
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += s.prices.At(i)
	}
	mean /= float64(n)

	variance := 0.0
	for i := 0; i < n; i++ {
		d := s.prices.At(i) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))
	if std < 1e-9 {
		return 0
	}
	return (s.lastMid - mean) / std
}

func (s *MeanReversionStrategy) GenerateSignals() []TradingSignal {
	z := s.zScore()

	if s.position != 0 && math.Abs(z) < s.exitStdDevs {
		side := orderbook.SELL
		qty := s.position
		if s.position < 0 {
			side = orderbook.BUY
			qty = -s.position
		}
		return []TradingSignal{{
			Side: side, Type: orderbook.MARKET, Quantity: qty, TIF: orderbook.IOC,
		}}
	}

	if s.position == 0 {
		if z > s.entryStdDevs {
			return []TradingSignal{{
				Side: orderbook.SELL, Type: orderbook.MARKET,
				Quantity: s.quoteSize, TIF: orderbook.IOC,
			}}
		}
		if z < -s.entryStdDevs {
			return []TradingSignal{{
				Side: orderbook.BUY, Type: orderbook.MARKET,
				Quantity: s.quoteSize, TIF: orderbook.IOC,
			}}
		}
	}
	return nil
}

// MarketMakerStrategy quotes both sides around the mid, skewing quotes away
// from its inventory.
type MarketMakerStrategy struct {
	BaseStrategy

	spreadBps      float64
	inventoryLimit int64
	quoteSize      int64
	skewFactor     float64

	position int64
	lastMid  float64
	tickSize float64
}

func NewMarketMakerStrategy(name string, accountID int64, spreadBps float64, quoteSize int64) *MarketMakerStrategy {
	return &MarketMakerStrategy{
		BaseStrategy:   NewBaseStrategy(name, accountID),
		spreadBps:      spreadBps,
		inventoryLimit: 1000,
		quoteSize:      quoteSize,
		skewFactor:     0.5,
		tickSize:       0.01,
	}
}

func (s *MarketMakerStrategy) OnMarketData(snap orderbook.MarketDataSnapshot) {
	if snap.LastPrice > 0 {
		s.lastMid = snap.LastPrice
	}
}

func (s *MarketMakerStrategy) OnFill(fill *orderbook.EnhancedFill) {
	if fill.BuyAccountID == s.AccountID() {
		s.position += fill.Base.Quantity
	}
	if fill.SellAccountID == s.AccountID() {
		s.position -= fill.Base.Quantity
	}
}

func (s *MarketMakerStrategy) quotes() (bid, ask float64) {
	halfSpread := s.lastMid * s.spreadBps / 10000 / 2
	if halfSpread < s.tickSize {
		halfSpread = s.tickSize
	}
	// Positive inventory pushes both quotes down to encourage selling.
	skew := float64(s.position) / float64(s.inventoryLimit) * halfSpread * s.skewFactor
	bid = s.lastMid - halfSpread - skew
	ask = s.lastMid + halfSpread - skew
	return roundToTick(bid, s.tickSize), roundToTick(ask, s.tickSize)
}

func (s *MarketMakerStrategy) GenerateSignals() []TradingSignal {
	if s.lastMid <= 0 {
		return nil
	}

	var signals []TradingSignal
	bid, ask := s.quotes()
	if s.position < s.inventoryLimit && bid > 0 {
		signals = append(signals, TradingSignal{
			Side: orderbook.BUY, Type: orderbook.LIMIT,
			Price: bid, Quantity: s.quoteSize, TIF: orderbook.IOC,
		})
	}
	if s.position > -s.inventoryLimit {
		signals = append(signals, TradingSignal{
			Side: orderbook.SELL, Type: orderbook.LIMIT,
			Price: ask, Quantity: s.quoteSize, TIF: orderbook.IOC,
		})
	}
	return signals
}

func roundToTick(price, tick float64) float64 {
	return math.Round(price/tick) * tick
}
