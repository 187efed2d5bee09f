package statemanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/automation"
	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWalletBook struct{ dir *mockDirectory }

func (b stubWalletBook) Lookup(address string) (models.Wallet, bool) { return b.dir.Lookup(address) }

func (b stubWalletBook) Settings(address string) models.WalletSettings {
	return models.DefaultWalletSettings()
}

type stubOrders struct{}

func (stubOrders) Execute(ctx context.Context, req models.TradeRequest) models.TransactionQueueEntry {
	return models.TransactionQueueEntry{Status: models.StatusSuccess}
}

// stopHook runs a callback right after the engine has stopped its monitors,
// while the clear is still in progress.
type stopHook struct {
	*automation.Engine
	afterStop func()
}

func (h *stopHook) StopAllMonitors() {
	h.Engine.StopAllMonitors()
	if h.afterStop != nil {
		h.afterStop()
	}
}

// clearRecorder captures monitors and positions at the end of the clear step.
type clearRecorder struct {
	sync.Mutex
	sm        *StateManager
	engine    *automation.Engine
	monitors  []string
	positions int
	seen      bool
}

func (r *clearRecorder) StateChanged(reason string) {
	if reason != "clear-token" {
		return
	}
	monitors := r.engine.ActiveMonitors()
	positions := len(r.sm.PositionsInMint(mintM1))
	r.Lock()
	defer r.Unlock()
	r.monitors, r.positions, r.seen = monitors, positions, true
}

func newEngineFixture(t *testing.T) (*fixture, *automation.Engine, *stopHook) {
	t.Helper()
	f := newFixture()
	repo, err := persistence.NewInMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	engine := automation.NewEngine(f.sm, stubWalletBook{f.directory}, stubOrders{}, repo,
		automation.Options{TickInterval: time.Hour}, zap.NewNop())
	t.Cleanup(engine.Close)
	require.NoError(t, engine.SetAutoSellEnabled(true))
	for _, addr := range []string{walletW, walletX} {
		require.NoError(t, engine.SetWalletAutoSell(addr, true))
		require.NoError(t, engine.AddTrigger(addr))
	}

	hook := &stopHook{Engine: engine}
	f.sm.SetAutomation(hook)
	return f, engine, hook
}

// TestClearLeavesNoMonitorsUnderConcurrentBuy queues a buy while the clear is
// stopping monitors; the buy must not be applied until the clear is done.
func TestClearLeavesNoMonitorsUnderConcurrentBuy(t *testing.T) {
	f, engine, hook := newEngineFixture(t)
	recorder := &clearRecorder{sm: f.sm, engine: engine}
	f.sm.AddObserver(recorder)
	f.sm.Start()
	defer f.sm.Stop()

	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))
	require.Equal(t, []string{walletW}, engine.ActiveMonitors())

	hook.afterStop = func() {
		hook.afterStop = nil
		f.sm.HandleFeedMessage(buy(t, walletX, mintM1, 1, 100, 100, 10))
		time.Sleep(50 * time.Millisecond)
	}
	f.sm.ClearActiveToken()

	recorder.Lock()
	assert.True(t, recorder.seen)
	assert.Empty(t, recorder.monitors, "clearing must leave zero monitors")
	assert.Zero(t, recorder.positions)
	recorder.Unlock()

	// The queued buy is applied afterwards as a fresh first buy.
	assert.Eventually(t, func() bool { return f.sm.Position(walletX) != nil }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		m := engine.ActiveMonitors()
		return len(m) == 1 && m[0] == walletX
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.sm.Position(walletW))
}

// TestSwitchingTokenStopsMonitors tracks a new mint over an open position.
func TestSwitchingTokenStopsMonitors(t *testing.T) {
	f, engine, _ := newEngineFixture(t)
	f.sm.Start()
	defer f.sm.Stop()

	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))
	f.sm.HandleTradeEvent(buy(t, walletX, mintM1, 1, 100, 100, 10))
	require.Len(t, engine.ActiveMonitors(), 2)

	require.NoError(t, f.sm.TrackToken(mintM2))
	assert.Empty(t, engine.ActiveMonitors())
	assert.Empty(t, f.sm.PositionsInMint(mintM1))
	require.NotNil(t, f.sm.ActiveToken())
	assert.Equal(t, mintM2, f.sm.ActiveToken().Mint)
}

// TestManualOperationsAfterStop fall back to running inline.
func TestManualOperationsAfterStop(t *testing.T) {
	f := newFixture()
	f.sm.Start()
	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))
	f.sm.Stop()

	f.sm.DropPosition(walletW)
	assert.Nil(t, f.sm.Position(walletW))
	f.sm.ClearActiveToken()
	assert.Nil(t, f.sm.ActiveToken())

	err := f.sm.DispatchAndWait(context.Background(), NormalizedEvent{Type: ClearActiveTokenEvent})
	assert.ErrorIs(t, err, ErrStopped)
}
