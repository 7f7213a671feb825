package positions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tradesim/matchbook/pkg/orderbook"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// RiskLimits caps an account's exposure. Disabled by default.
type RiskLimits struct {
	MaxPositionSize float64
	MaxLossPerDay   float64
	MaxLeverage     float64
	Enabled         bool
}

func defaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize: 1_000_000,
		MaxLossPerDay:   50_000,
		MaxLeverage:     3.0,
	}
}

// Manager routes fills to accounts and marks positions. It never calls back
// into the engine: the book emits, the manager consumes.
type Manager struct {
	accounts       map[int64]*Account
	currentPrices  map[string]float64
	defaultFeeRate float64
	limits         map[int64]RiskLimits

	log *zap.SugaredLogger
}

func NewManager(feeRate float64) *Manager {
	return &Manager{
		accounts:       make(map[int64]*Account),
		currentPrices:  make(map[string]float64),
		defaultFeeRate: feeRate,
		limits:         make(map[int64]RiskLimits),
		log:            zap.NewNop().Sugar(),
	}
}

func (m *Manager) SetLogger(log *zap.SugaredLogger) {
	if log != nil {
		m.log = log
	}
}

// CreateAccount registers a new account with its starting cash.
func (m *Manager) CreateAccount(id int64, name string, initialCash float64) error {
	if _, ok := m.accounts[id]; ok {
		return fmt.Errorf("%w: %d", ErrAccountExists, id)
	}
	m.accounts[id] = NewAccount(id, name, initialCash)
	m.log.Infow("account created", "account_id", id, "name", name, "initial_cash", initialCash)
	return nil
}

func (m *Manager) HasAccount(id int64) bool {
	_, ok := m.accounts[id]
	return ok
}

func (m *Manager) Account(id int64) (*Account, bool) {
	a, ok := m.accounts[id]
	return a, ok
}

func (m *Manager) AccountIDs() []int64 {
	ids := make([]int64, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Manager) Accounts() []*Account {
	accounts := make([]*Account, 0, len(m.accounts))
	for _, id := range m.AccountIDs() {
		accounts = append(accounts, m.accounts[id])
	}
	return accounts
}

// ProcessFill books both sides of a fill. Unknown accounts (including the
// anonymous id 0) are skipped rather than erroring so synthetic feeds can
// trade against untracked counterparties.
func (m *Manager) ProcessFill(fill orderbook.Fill, buyAccountID, sellAccountID int64, symbol string) {
	m.UpdatePrice(symbol, fill.Price)

	if buyer, ok := m.accounts[buyAccountID]; ok {
		buyer.ProcessFill(fill, orderbook.BUY, symbol, m.defaultFeeRate)
	}
	if seller, ok := m.accounts[sellAccountID]; ok {
		seller.ProcessFill(fill, orderbook.SELL, symbol, m.defaultFeeRate)
	}
}

// UpdatePrice marks every account's position in the symbol.
func (m *Manager) UpdatePrice(symbol string, price float64) {
	m.currentPrices[symbol] = price
	for _, account := range m.accounts {
		if pos, ok := account.Positions[symbol]; ok {
			pos.UpdateUnrealizedPnL(price)
		}
	}
}

func (m *Manager) UpdatePrices(prices map[string]float64) {
	for symbol, price := range prices {
		m.UpdatePrice(symbol, price)
	}
}

func (m *Manager) CurrentPrice(symbol string) float64 {
	return m.currentPrices[symbol]
}

func (m *Manager) CurrentPrices() map[string]float64 {
	return m.currentPrices
}

// SetRiskLimits enables limits for the account.
func (m *Manager) SetRiskLimits(accountID int64, maxPosition, maxLoss, maxLeverage float64) error {
	if !m.HasAccount(accountID) {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, accountID)
	}
	m.limits[accountID] = RiskLimits{
		MaxPositionSize: maxPosition,
		MaxLossPerDay:   maxLoss,
		MaxLeverage:     maxLeverage,
		Enabled:         true,
	}
	return nil
}

func (m *Manager) EnableRiskLimits(accountID int64) {
	limits, ok := m.limits[accountID]
	if !ok {
		limits = defaultRiskLimits()
	}
	limits.Enabled = true
	m.limits[accountID] = limits
}

func (m *Manager) DisableRiskLimits(accountID int64) {
	if limits, ok := m.limits[accountID]; ok {
		limits.Enabled = false
		m.limits[accountID] = limits
	}
}

// CheckRiskLimits reports whether a prospective trade stays inside the
// account's limits. Accounts without enabled limits always pass.
func (m *Manager) CheckRiskLimits(accountID int64, symbol string, quantity int64, price float64) bool {
	limits, ok := m.limits[accountID]
	if !ok || !limits.Enabled {
		return true
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return false
	}

	current := int64(0)
	if pos, ok := account.Positions[symbol]; ok {
		current = pos.Quantity
	}
	projected := float64(absInt64(current+quantity)) * price
	if projected > limits.MaxPositionSize {
		m.log.Warnw("risk limit breach: position size",
			"account_id", accountID, "symbol", symbol, "projected", projected)
		return false
	}

	if pnl := account.TotalPnL(m.currentPrices); pnl < -limits.MaxLossPerDay {
		m.log.Warnw("risk limit breach: daily loss", "account_id", accountID, "pnl", pnl)
		return false
	}

	if lev := account.Leverage(m.currentPrices); lev > limits.MaxLeverage {
		m.log.Warnw("risk limit breach: leverage", "account_id", accountID, "leverage", lev)
		return false
	}

	return true
}

// TotalAccountValue aggregates value across all accounts at current marks.
func (m *Manager) TotalAccountValue() float64 {
	total := 0.0
	for _, account := range m.accounts {
		total += account.AccountValue(m.currentPrices)
	}
	return total
}

func (m *Manager) TotalPnL() float64 {
	total := 0.0
	for _, account := range m.accounts {
		total += account.TotalPnL(m.currentPrices)
	}
	return total
}

func (m *Manager) TotalFeesPaid() float64 {
	total := 0.0
	for _, account := range m.accounts {
		fees, _ := account.FeesPaid.Float64()
		total += fees
	}
	return total
}

func (m *Manager) TotalTrades() int {
	total := 0
	for _, account := range m.accounts {
		total += account.TotalTrades
	}
	return total
}

// PrintSummary writes a per-account table.
func (m *Manager) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n=== Accounts ===")
	for _, account := range m.Accounts() {
		cash, _ := account.CashBalance.Float64()
		fees, _ := account.FeesPaid.Float64()
		fmt.Fprintf(w, "[%d] %-16s cash=$%.2f pnl=$%.2f fees=$%.2f trades=%d\n",
			account.ID, account.Name, cash,
			account.TotalPnL(m.currentPrices), fees, account.TotalTrades)
		for _, symbol := range sortedSymbols(account.Positions) {
			pos := account.Positions[symbol]
			fmt.Fprintf(w, "    %-8s qty=%d avg=$%.2f realized=$%.2f unrealized=$%.2f\n",
				symbol, pos.Quantity, pos.AveragePrice, pos.RealizedPnL, pos.UnrealizedPnL)
		}
	}
}

// ExportAccounts writes a CSV summary of all accounts.
func (m *Manager) ExportAccounts(path string) error {
	var sb strings.Builder
	sb.WriteString("account_id,name,cash_balance,realized_pnl,unrealized_pnl,fees_paid,total_trades,win_rate\n")
	for _, account := range m.Accounts() {
		cash, _ := account.CashBalance.Float64()
		fees, _ := account.FeesPaid.Float64()
		fmt.Fprintf(&sb, "%d,%s,%.2f,%.2f,%.2f,%.2f,%d,%.1f\n",
			account.ID, account.Name, cash,
			account.TotalRealizedPnL(), account.TotalUnrealizedPnL(),
			fees, account.TotalTrades, account.WinRate())
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("export accounts: %w", err)
	}
	return nil
}

// Reset drops every account and mark, for fresh simulation runs.
func (m *Manager) Reset() {
	m.accounts = make(map[int64]*Account)
	m.currentPrices = make(map[string]float64)
	m.limits = make(map[int64]RiskLimits)
}

// ResetAccount restores one account to its initial cash with no positions.
func (m *Manager) ResetAccount(id int64) error {
	account, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAccountNotFound, id)
	}
	initial, _ := account.InitialCash.Float64()
	m.accounts[id] = NewAccount(id, account.Name, initial)
	return nil
}

func sortedSymbols(positions map[string]*Position) []string {
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
