package positions

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManagerWithAccounts(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(0)
	require.NoError(t, m.CreateAccount(1, "alice", 100_000))
	require.NoError(t, m.CreateAccount(2, "bob", 100_000))
	return m
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	m := newManagerWithAccounts(t)
	err := m.CreateAccount(1, "again", 1)
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.ElementsMatch(t, []int64{1, 2}, m.AccountIDs())
}

func TestProcessFillRoutesBothSides(t *testing.T) {
	m := newManagerWithAccounts(t)

	m.ProcessFill(fill(100.0, 50), 1, 2, "ABC")

	alice, _ := m.Account(1)
	bob, _ := m.Account(2)
	assert.Equal(t, int64(50), alice.Positions["ABC"].Quantity)
	assert.Equal(t, int64(-50), bob.Positions["ABC"].Quantity)
	assert.Equal(t, 2, m.TotalTrades())
	assert.InDelta(t, 100.0, m.CurrentPrice("ABC"), 1e-9)
}

func TestProcessFillSkipsUnknownAccounts(t *testing.T) {
	m := newManagerWithAccounts(t)

	// Anonymous/synthetic counterparties are simply not tracked.
	m.ProcessFill(fill(100.0, 50), 1, 0, "ABC")

	alice, _ := m.Account(1)
	assert.Equal(t, int64(50), alice.Positions["ABC"].Quantity)
	assert.Equal(t, 1, m.TotalTrades())
}

func TestUpdatePriceMarksAllAccounts(t *testing.T) {
	m := newManagerWithAccounts(t)
	m.ProcessFill(fill(100.0, 50), 1, 2, "ABC")

	m.UpdatePrice("ABC", 104.0)

	alice, _ := m.Account(1)
	bob, _ := m.Account(2)
	assert.InDelta(t, 200.0, alice.Positions["ABC"].UnrealizedPnL, 1e-9)
	assert.InDelta(t, -200.0, bob.Positions["ABC"].UnrealizedPnL, 1e-9)
	// Long and short marks cancel out in aggregate.
	assert.InDelta(t, 0.0, m.TotalPnL(), 1e-9)
}

func TestRiskLimitsPositionSize(t *testing.T) {
	m := newManagerWithAccounts(t)
	require.NoError(t, m.SetRiskLimits(1, 10_000, 1_000, 3.0))

	assert.True(t, m.CheckRiskLimits(1, "ABC", 50, 100.0))    // 5_000 exposure
	assert.False(t, m.CheckRiskLimits(1, "ABC", 200, 100.0))  // 20_000 exposure
	assert.True(t, m.CheckRiskLimits(2, "ABC", 1000, 1000.0)) // no limits enabled
}

func TestRiskLimitsToggle(t *testing.T) {
	m := newManagerWithAccounts(t)
	require.NoError(t, m.SetRiskLimits(1, 1, 1, 0.1))
	assert.False(t, m.CheckRiskLimits(1, "ABC", 100, 100.0))

	m.DisableRiskLimits(1)
	assert.True(t, m.CheckRiskLimits(1, "ABC", 100, 100.0))

	m.EnableRiskLimits(1)
	assert.False(t, m.CheckRiskLimits(1, "ABC", 100, 100.0))
}

func TestAggregates(t *testing.T) {
	m := NewManager(0.001)
	require.NoError(t, m.CreateAccount(1, "alice", 50_000))
	require.NoError(t, m.CreateAccount(2, "bob", 50_000))

	m.ProcessFill(fill(100.0, 10), 1, 2, "ABC")

	assert.Equal(t, 2, m.TotalTrades())
	assert.InDelta(t, 2.0, m.TotalFeesPaid(), 1e-9) // 1_000 notional * 10 bps * 2 sides
	// Cash moved between the two accounts minus fees; positions mark flat.
	assert.InDelta(t, 100_000-2.0, m.TotalAccountValue(), 1e-9)
}

func TestExportAccounts(t *testing.T) {
	m := newManagerWithAccounts(t)
	m.ProcessFill(fill(100.0, 50), 1, 2, "ABC")

	path := filepath.Join(t.TempDir(), "accounts.csv")
	require.NoError(t, m.ExportAccounts(path))
	assert.FileExists(t, path)
}

func TestResetAccount(t *testing.T) {
	m := newManagerWithAccounts(t)
	m.ProcessFill(fill(100.0, 50), 1, 2, "ABC")

	require.NoError(t, m.ResetAccount(1))
	alice, _ := m.Account(1)
	assert.Empty(t, alice.Positions)
	cash, _ := alice.CashBalance.Float64()
	assert.InDelta(t, 100_000.0, cash, 1e-9)

	assert.ErrorIs(t, m.ResetAccount(99), ErrAccountNotFound)
}
