package simulator

import (
	"fmt"
	"io"
	"math"

	"github.com/tradesim/matchbook/pkg/positions"
)

// PnLPoint is one sample of aggregate P&L.
type PnLPoint struct {
	Timestamp int64
	PnL       float64
}

// PerformanceMetrics aggregates run statistics across all accounts plus a
// sampled P&L timeseries.
type PerformanceMetrics struct {
	PnLTimeseries []PnLPoint

	SharpeRatio   float64
	MaxDrawdown   float64
	TotalFeesPaid float64
	TotalTrades   int
	WinRate       float64
}

func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{}
}

// Record appends one P&L sample.
func (m *PerformanceMetrics) Record(timestamp int64, pnl float64) {
	m.PnLTimeseries = append(m.PnLTimeseries, PnLPoint{Timestamp: timestamp, PnL: pnl})
}

// Calculate recomputes aggregates from the accounts and the timeseries.
func (m *PerformanceMetrics) Calculate(accounts []*positions.Account) {
	m.TotalTrades = 0
	m.TotalFeesPaid = 0
	m.WinRate = 0
	m.SharpeRatio = 0
	m.MaxDrawdown = 0

	totalWins := 0
	totalClosed := 0
	for _, account := range accounts {
		m.TotalTrades += account.TotalTrades
		fees, _ := account.FeesPaid.Float64()
		m.TotalFeesPaid += fees
		totalWins += account.WinningTrades
		totalClosed += account.WinningTrades + account.LosingTrades
	}

	if totalClosed > 0 {
		m.WinRate = float64(totalWins) * 100 / float64(totalClosed)
	}

	if len(m.PnLTimeseries) >= 2 {
		m.SharpeRatio = m.sharpeRatio()
		m.MaxDrawdown = m.maxDrawdown()
	}
}

func (m *PerformanceMetrics) sharpeRatio() float64 {
	returns := make([]float64, 0, len(m.PnLTimeseries)-1)
	for i := 1; i < len(m.PnLTimeseries); i++ {
		prev := m.PnLTimeseries[i-1].PnL
		curr := m.PnLTimeseries[i].PnL
		if math.Abs(prev) < 1e-6 {
			returns = append(returns, 0)
		} else {
			returns = append(returns, (curr-prev)/math.Abs(prev))
		}
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(returns)))
	if stddev < 1e-10 {
		return 0
	}

	// Annualized, assuming 252 trading days.
	return mean / stddev * math.Sqrt(252)
}

func (m *PerformanceMetrics) maxDrawdown() float64 {
	maxDD := 0.0
	peak := m.PnLTimeseries[0].PnL
	for i := 1; i < len(m.PnLTimeseries); i++ {
		pnl := m.PnLTimeseries[i].PnL
		if pnl > peak {
			peak = pnl
		}
		if peak > 0 {
			if dd := (peak - pnl) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// PrintReport writes the aggregate performance summary.
func (m *PerformanceMetrics) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n=== Performance Metrics ===")
	fmt.Fprintf(w, "Total trades: %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Win rate: %.1f%%\n", m.WinRate)
	fmt.Fprintf(w, "Total fees paid: $%.2f\n", m.TotalFeesPaid)
	fmt.Fprintf(w, "Sharpe ratio: %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown: %.1f%%\n", m.MaxDrawdown)
}
