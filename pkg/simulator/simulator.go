package simulator

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/tradesim/matchbook/pkg/metrics"
	"github.com/tradesim/matchbook/pkg/orderbook"
	"github.com/tradesim/matchbook/pkg/positions"
)

// TradingSimulator wires the book, the fill router, the position manager and
// a set of strategies into one single-threaded loop. Fills observed inside a
// submit are buffered and dispatched to strategies only after the submit
// returns, honoring the engine's re-entrancy contract.
type TradingSimulator struct {
	book       *orderbook.OrderBook
	positions  *positions.Manager
	strategies []Strategy

	nextOrderID  int64
	pendingFills []*orderbook.EnhancedFill

	perf    *PerformanceMetrics
	metrics *metrics.EngineMetrics

	log *zap.SugaredLogger
}

func NewTradingSimulator(symbol string, feeRate float64) *TradingSimulator {
	s := &TradingSimulator{
		book:        orderbook.New(symbol),
		positions:   positions.NewManager(feeRate),
		nextOrderID: 1,
		perf:        NewPerformanceMetrics(),
		log:         zap.NewNop().Sugar(),
	}
	s.setup()
	return s
}

func (s *TradingSimulator) setup() {
	s.book.Router().RegisterFillCallback(func(fill *orderbook.EnhancedFill) {
		s.positions.ProcessFill(fill.Base, fill.BuyAccountID, fill.SellAccountID, fill.Symbol)
		// Strategy notification is deferred; callbacks must not reach back
		// into the engine.
		s.pendingFills = append(s.pendingFills, fill)
		if s.metrics != nil {
			s.metrics.ObserveFill(fill.Base.Quantity)
		}
	})

	s.book.Router().RegisterSelfTradeCallback(func(accountID int64, o1, o2 *orderbook.Order) {
		s.log.Warnw("self-trade prevented",
			"account_id", accountID, "order_1", o1.ID, "order_2", o2.ID)
		if s.metrics != nil {
			s.metrics.ObserveSelfTrade()
		}
	})
}

func (s *TradingSimulator) SetLogger(log *zap.SugaredLogger) {
	if log != nil {
		s.log = log
		s.book.SetLogger(log)
		s.positions.SetLogger(log)
	}
}

// SetMetrics attaches Prometheus instrumentation; nil disables it.
func (s *TradingSimulator) SetMetrics(m *metrics.EngineMetrics) {
	s.metrics = m
}

func (s *TradingSimulator) Book() *orderbook.OrderBook { return s.book }

func (s *TradingSimulator) Positions() *positions.Manager { return s.positions }

func (s *TradingSimulator) Performance() *PerformanceMetrics { return s.perf }

func (s *TradingSimulator) CreateAccount(id int64, name string, initialCash float64) error {
	return s.positions.CreateAccount(id, name, initialCash)
}

// AddStrategy registers a strategy; its account must exist first.
func (s *TradingSimulator) AddStrategy(strategy Strategy) error {
	if !s.positions.HasAccount(strategy.AccountID()) {
		return fmt.Errorf("account %d must be created before adding strategy %s",
			strategy.AccountID(), strategy.Name())
	}
	s.strategies = append(s.strategies, strategy)
	return nil
}

// Submit pushes an externally built order through the book with simulator
// accounting.
func (s *TradingSimulator) Submit(o *orderbook.Order) {
	s.book.Submit(o)
	if s.metrics != nil {
		s.metrics.ObserveSubmit()
	}
	s.dispatchFills()
}

// NextOrderID hands out simulator-scoped order ids.
func (s *TradingSimulator) NextOrderID() int64 {
	id := s.nextOrderID
	s.nextOrderID++
	return id
}

// RunSimulation executes the given number of steps.
func (s *TradingSimulator) RunSimulation(steps int) {
	for _, strategy := range s.strategies {
		strategy.Initialize()
	}

	s.log.Infow("simulation starting", "steps", steps, "strategies", len(s.strategies))
	for step := 0; step < steps; step++ {
		s.ProcessStep()
	}
	s.log.Infow("simulation complete",
		"fills", len(s.book.Fills()),
		"orders_processed", s.book.OrdersProcessed())
}

// ProcessStep runs one tick: market data out, signals in, orders matched,
// fills dispatched, P&L sampled.
func (s *TradingSimulator) ProcessStep() {
	snap := s.book.MarketSnapshot()

	for _, strategy := range s.strategies {
		strategy.OnMarketData(snap)
	}

	for _, strategy := range s.strategies {
		if !strategy.Enabled() {
			continue
		}
		for _, signal := range strategy.GenerateSignals() {
			o, err := s.signalToOrder(strategy, signal)
			if err != nil {
				s.log.Warnw("signal rejected",
					"strategy", strategy.Name(), "error", err)
				continue
			}
			s.Submit(o)
		}
	}

	s.perf.Record(snap.Timestamp, s.positions.TotalPnL())

	for _, strategy := range s.strategies {
		strategy.OnTimer()
	}
}

func (s *TradingSimulator) signalToOrder(strategy Strategy, signal TradingSignal) (*orderbook.Order, error) {
	id := s.NextOrderID()
	if signal.Type == orderbook.MARKET {
		return orderbook.NewMarketOrder(id, strategy.AccountID(), signal.Side, signal.Quantity, signal.TIF)
	}
	return orderbook.NewLimitOrder(id, strategy.AccountID(), signal.Side, signal.Price, signal.Quantity, signal.TIF)
}

// dispatchFills delivers buffered fills to the strategies that participated.
func (s *TradingSimulator) dispatchFills() {
	fills := s.pendingFills
	s.pendingFills = nil
	for _, fill := range fills {
		for _, strategy := range s.strategies {
			if strategy.AccountID() == fill.BuyAccountID ||
				strategy.AccountID() == fill.SellAccountID {
				strategy.OnFill(fill)
			}
		}
	}
}

// PrintFinalReport writes the end-of-run summary.
func (s *TradingSimulator) PrintFinalReport(w io.Writer) {
	fmt.Fprintln(w, "\n=== SIMULATION FINAL REPORT ===")
	s.book.PrintMatchStats(w)
	s.book.PrintFillRateAnalysis(w)
	s.positions.PrintSummary(w)

	s.perf.Calculate(s.positions.Accounts())
	s.perf.PrintReport(w)

	router := s.book.Router()
	fmt.Fprintf(w, "\nRouted fills: %d (self-trades prevented: %d)\n",
		router.TotalFills(), router.SelfTradesPrevented())
	fmt.Fprintf(w, "Total account value: $%.2f\n", s.positions.TotalAccountValue())
	fmt.Fprintf(w, "Total P&L: $%.2f\n", s.positions.TotalPnL())
}

// ExportResults writes the account summary CSV.
func (s *TradingSimulator) ExportResults(path string) error {
	return s.positions.ExportAccounts(path)
}
