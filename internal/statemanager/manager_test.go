package statemanager

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	walletW   = "WalletW1111111111111111111111111111111111"
	walletX   = "WalletX1111111111111111111111111111111111"
	devWallet = "DevWallet111111111111111111111111111111111"
	mintM1    = "Mint1111111111111111111111111111111111pump"
	mintM2    = "Mint2222222222222222222222222222222222pump"
)

var testNow = time.Unix(1700000000, 0)

// mockStateRepository is a mock implementation of the StateRepository interface for testing.
type mockStateRepository struct {
	sync.Mutex
	saved        map[string][]byte
	saveError    error
	saveDoneChan chan bool // Channel to signal when Save is done
}

func newMockStateRepository() *mockStateRepository {
	return &mockStateRepository{
		saved:        make(map[string][]byte),
		saveDoneChan: make(chan bool, 16),
	}
}

func (m *mockStateRepository) Save(key string, v interface{}) error {
	m.Lock()
	defer m.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.saved[key] = data
	m.saveDoneChan <- true
	return m.saveError
}

func (m *mockStateRepository) Load(key string, v interface{}) (bool, error) {
	m.Lock()
	defer m.Unlock()
	data, ok := m.saved[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *mockStateRepository) Delete(key string) error {
	m.Lock()
	defer m.Unlock()
	delete(m.saved, key)
	return nil
}

func (m *mockStateRepository) Close() error { return nil }

func (m *mockStateRepository) savedPortfolio(t *testing.T) models.PortfolioStats {
	t.Helper()
	var stats models.PortfolioStats
	found, err := m.Load(persistence.KeyPortfolioStats, &stats)
	require.NoError(t, err)
	require.True(t, found)
	return stats
}

// mockDirectory resolves a fixed set of wallets.
type mockDirectory struct {
	wallets map[string]models.Wallet
	dev     *models.Wallet
}

func newMockDirectory() *mockDirectory {
	dev := models.Wallet{Address: devWallet, Name: "Dev Wallet", IsDevWallet: true}
	return &mockDirectory{
		wallets: map[string]models.Wallet{
			walletW: {Address: walletW, Name: "Wallet 1"},
			walletX: {Address: walletX, Name: "Wallet 2"},
		},
		dev: &dev,
	}
}

func (d *mockDirectory) Lookup(address string) (models.Wallet, bool) {
	if d.dev != nil && d.dev.Address == address {
		return *d.dev, true
	}
	w, ok := d.wallets[address]
	return w, ok
}

func (d *mockDirectory) DevWallet() (models.Wallet, bool) {
	if d.dev == nil {
		return models.Wallet{}, false
	}
	return *d.dev, true
}

// mockAutomation records the triggers raised by the reconciler.
type mockAutomation struct {
	sync.Mutex
	started   []string
	stopAll   int
	created   []models.ActiveToken
	onStopAll func()
}

func (a *mockAutomation) StartMonitor(address string) {
	a.Lock()
	defer a.Unlock()
	a.started = append(a.started, address)
}

func (a *mockAutomation) StopAllMonitors() {
	if a.onStopAll != nil {
		a.onStopAll()
	}
	a.Lock()
	defer a.Unlock()
	a.stopAll++
}

func (a *mockAutomation) TokenCreated(token models.ActiveToken) {
	a.Lock()
	defer a.Unlock()
	a.created = append(a.created, token)
}

// mockSubscriber records token channel subscriptions.
type mockSubscriber struct {
	sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (s *mockSubscriber) SubscribeToken(mint string) error {
	s.Lock()
	defer s.Unlock()
	s.subscribed = append(s.subscribed, mint)
	return nil
}

func (s *mockSubscriber) UnsubscribeToken(mint string) error {
	s.Lock()
	defer s.Unlock()
	s.unsubscribed = append(s.unsubscribed, mint)
	return nil
}

type fixture struct {
	sm         *StateManager
	repo       *mockStateRepository
	automation *mockAutomation
	subscriber *mockSubscriber
	directory  *mockDirectory
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMockStateRepository(),
		automation: &mockAutomation{},
		subscriber: &mockSubscriber{},
		directory:  newMockDirectory(),
	}
	f.sm = NewStateManager(nil, f.directory, f.repo, Options{Now: func() time.Time { return testNow }}, zap.NewNop())
	f.sm.SetAutomation(f.automation)
	f.sm.SetTokenSubscriber(f.subscriber)
	return f
}

func msg(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

func buy(t *testing.T, wallet, mint string, sol, tokens, newBalance, mcap float64) []byte {
	return msg(t, map[string]interface{}{
		"txType": "buy", "traderPublicKey": wallet, "mint": mint,
		"solAmount": sol, "tokenAmount": tokens, "newTokenBalance": newBalance, "marketCapSol": mcap,
	})
}

func sell(t *testing.T, wallet, mint string, sol, tokens, newBalance float64) []byte {
	return msg(t, map[string]interface{}{
		"txType": "sell", "traderPublicKey": wallet, "mint": mint,
		"solAmount": sol, "tokenAmount": tokens, "newTokenBalance": newBalance,
	})
}

// TestNewStateManager verifies that the StateManager is initialized correctly.
func TestNewStateManager(t *testing.T) {
	f := newFixture()
	require.NotNil(t, f.sm, "StateManager should not be nil")

	snapshot := f.sm.GetStateSnapshot()
	require.NotNil(t, snapshot)
	assert.Nil(t, snapshot.ActiveToken)
	assert.Empty(t, snapshot.Positions)

	assert.NotNil(t, f.sm.eventChannel, "eventChannel should be created")
	assert.NotNil(t, f.sm.persistenceChan, "persistenceChan should be created")
	assert.NotNil(t, f.sm.stopChan, "stopChan should be created")
}

// TestBuyOpensPosition reconciles a first buy into a fresh position.
func TestBuyOpensPosition(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))

	pos := f.sm.Position(walletW)
	require.NotNil(t, pos)
	assert.Equal(t, 100.0, pos.Balance)
	assert.Equal(t, 100.0, pos.TotalBought)
	assert.Equal(t, 1.0, pos.TotalInvested)
	assert.InDelta(t, 0.01, pos.AvgPrice, 1e-12)
	assert.Equal(t, 10.0, pos.EntryMarketCapSol)
	assert.Len(t, pos.Trades, 1)

	token := f.sm.ActiveToken()
	require.NotNil(t, token, "first buy from a trading wallet sets the active token")
	assert.Equal(t, "M1", token.Mint)
	assert.Equal(t, []string{"M1"}, f.subscriber.subscribed)
	assert.Equal(t, []string{walletW}, f.automation.started)
}

// TestPartialSellRecordsWin follows the buy with a profitable partial sell.
func TestPartialSellRecordsWin(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 0.6, 50, 50))

	pos := f.sm.Position(walletW)
	require.NotNil(t, pos)
	assert.Equal(t, 50.0, pos.Balance)
	assert.Len(t, pos.Trades, 2)
	assert.Equal(t, "sell", pos.Trades[1].TxType)
	assert.Equal(t, models.PortfolioStats{WinCount: 1}, f.sm.Portfolio())
}

// TestCostBasisUsesAverageEntryPrice pins the win/loss rule: proceeds are
// compared with soldAmount x avgPrice, not with the market price, so a sale
// below the average entry counts as a loss even while market cap is rising.
func TestCostBasisUsesAverageEntryPrice(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 3, 100, 200, 40))
	// avgPrice is now 0.02; 50 tokens cost 1 SOL on average.
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 0.9, 50, 150))
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 1.1, 50, 100))

	assert.Equal(t, models.PortfolioStats{WinCount: 1, LossCount: 1}, f.sm.Portfolio())
}

// TestBalanceAlwaysFollowsFeed checks that balance is the last reported
// post-trade balance, never a local sum.
func TestBalanceAlwaysFollowsFeed(t *testing.T) {
	f := newFixture()
	reported := []float64{100, 90, 400, 250}
	for _, bal := range reported {
		f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, bal, 10))
		assert.Equal(t, bal, f.sm.Position(walletW).Balance)
	}
	assert.Equal(t, 400.0, f.sm.Position(walletW).TotalBought)
}

// TestAveragePriceInvariant holds avgPrice == invested/bought after every buy.
func TestAveragePriceInvariant(t *testing.T) {
	f := newFixture()
	buys := []struct{ sol, tokens, mcap float64 }{
		{1, 100, 10}, {0.5, 20, 30}, {2.25, 300, 45}, {0.1, 1, 60},
	}
	balance := 0.0
	for _, b := range buys {
		balance += b.tokens
		f.sm.HandleTradeEvent(buy(t, walletW, "M1", b.sol, b.tokens, balance, b.mcap))
		pos := f.sm.Position(walletW)
		require.NotNil(t, pos)
		assert.InDelta(t, pos.TotalInvested/pos.TotalBought, pos.AvgPrice, 1e-12)
	}

	pos := f.sm.Position(walletW)
	expectedEntry := (10*100 + 30*20 + 45*300 + 60*1) / 421.0
	assert.InDelta(t, expectedEntry, pos.EntryMarketCapSol, 1e-9)
	assert.Len(t, pos.Trades, len(buys))
}

// TestBuyInDifferentTokenReplacesPosition starts over when the mint changes.
func TestBuyInDifferentTokenReplacesPosition(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	f.sm.HandleTradeEvent(buy(t, walletW, "M2", 2, 50, 50, 20))

	pos := f.sm.Position(walletW)
	require.NotNil(t, pos)
	assert.Equal(t, "M2", pos.Mint)
	assert.Equal(t, 50.0, pos.TotalBought)
	assert.Equal(t, 2.0, pos.TotalInvested)
	assert.Len(t, pos.Trades, 1)
}

// TestSellToZeroClosesPosition drops the position whatever the prior balance.
func TestSellToZeroClosesPosition(t *testing.T) {
	for _, prior := range []float64{1, 100, 1e9} {
		f := newFixture()
		f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, prior, prior, 10))
		f.sm.HandleTradeEvent(sell(t, walletW, "M1", 0.1, 5, 0))
		assert.Nil(t, f.sm.Position(walletW))
	}

	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	// newTokenBalance missing counts as zero.
	f.sm.HandleTradeEvent(msg(t, map[string]interface{}{"txType": "sell", "traderPublicKey": walletW, "solAmount": 2, "tokenAmount": 100}))
	assert.Nil(t, f.sm.Position(walletW))
	assert.Equal(t, models.PortfolioStats{WinCount: 1}, f.sm.Portfolio())
}

// TestWinLossCountsMatchedSellsOnly counts only sells that hit an open position.
func TestWinLossCountsMatchedSellsOnly(t *testing.T) {
	f := newFixture()
	// No position yet.
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 1, 10, 0))
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	// Sell in a token the wallet does not hold.
	f.sm.HandleTradeEvent(sell(t, walletW, "M2", 1, 10, 90))
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 0.1, 20, 80))
	f.sm.HandleTradeEvent(sell(t, walletW, "M1", 5, 20, 60))
	f.sm.HandleTradeEvent(sell(t, "stranger", "M1", 5, 20, 60))

	stats := f.sm.Portfolio()
	assert.Equal(t, 2, stats.WinCount+stats.LossCount)
	assert.Equal(t, 60.0, f.sm.Position(walletW).Balance)
}

// TestDevCreateOpensPositionAndTriggersAutomation covers a create with an embedded initial buy.
func TestDevCreateOpensPositionAndTriggersAutomation(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(msg(t, map[string]interface{}{
		"txType": "create", "traderPublicKey": devWallet, "mint": mintM1,
		"symbol": "DOGE", "name": "Doge", "initialBuy": 1000, "solAmount": 0.5, "marketCapSol": 28,
	}))

	token := f.sm.ActiveToken()
	require.NotNil(t, token)
	assert.Equal(t, mintM1, token.Mint)
	assert.Equal(t, "DOGE", token.Symbol)

	pos := f.sm.Position(devWallet)
	require.NotNil(t, pos)
	assert.Equal(t, 1000.0, pos.Balance)
	assert.Equal(t, 1000.0, pos.TotalBought)
	assert.Equal(t, 0.5, pos.TotalInvested)
	assert.InDelta(t, 0.0005, pos.AvgPrice, 1e-12)

	assert.Equal(t, []string{devWallet}, f.automation.started)
	require.Len(t, f.automation.created, 1)
	assert.Equal(t, mintM1, f.automation.created[0].Mint)
}

// TestCreateFromTradingWalletIgnored only lets the dev wallet announce tokens.
func TestCreateFromTradingWalletIgnored(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(msg(t, map[string]interface{}{
		"txType": "create", "traderPublicKey": walletW, "mint": mintM1, "initialBuy": 1000, "solAmount": 0.5,
	}))
	assert.Nil(t, f.sm.ActiveToken())
	assert.Nil(t, f.sm.Position(walletW))
	assert.Empty(t, f.automation.created)
}

// TestDevBuyDoesNotSetActiveToken keeps first-buy detection to trading wallets.
func TestDevBuyDoesNotSetActiveToken(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, devWallet, "M1", 1, 100, 100, 10))
	assert.Nil(t, f.sm.ActiveToken())
	assert.NotNil(t, f.sm.Position(devWallet))
}

// TestTokenTradeUpdatesStats aggregates trades of other participants in the active token.
func TestTokenTradeUpdatesStats(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))

	f.sm.HandleTradeEvent(msg(t, map[string]interface{}{
		"txType": "buy", "traderPublicKey": "someone", "mint": mintM1,
		"solAmount": 2, "marketCapSol": 50, "vSolInBondingCurve": 45,
	}))
	f.sm.HandleTradeEvent(msg(t, map[string]interface{}{
		"txType": "sell", "traderPublicKey": "other", "mint": mintM1,
		"solAmount": 0.5, "marketCapSol": 40,
	}))

	snap := f.sm.GetStateSnapshot()
	// The wallet's own buy is also a token-channel trade.
	assert.Equal(t, 2, snap.Stats.BuyCount)
	assert.Equal(t, 1, snap.Stats.SellCount)
	assert.InDelta(t, 2.5, snap.Stats.NetFlow, 1e-12)
	assert.InDelta(t, 3.5, snap.Stats.TotalVolume, 1e-12)
	assert.InDelta(t, 40*162.0, snap.Stats.MarketCapUSD, 1e-9)
	assert.Equal(t, 45.0, snap.Stats.SolInBondingCurve)
	assert.Len(t, snap.Stats.RecentTrades, 3)
	assert.Equal(t, 40.0, snap.Positions[walletW].CurrentMarketCapSol)

	// Other participants' token trades do not pollute the activity log.
	assert.Len(t, snap.Activity, 1)
}

// TestUnmatchedEventDropped records the event but mutates no position.
func TestUnmatchedEventDropped(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, "stranger", "M1", 1, 100, 100, 10))

	snap := f.sm.GetStateSnapshot()
	assert.Nil(t, snap.ActiveToken)
	assert.Empty(t, snap.Positions)
	require.Len(t, snap.Activity, 1)
	assert.False(t, snap.Activity[0].Matched)
}

// TestMalformedAndControlMessages never mutate state.
func TestMalformedAndControlMessages(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent([]byte(`{"txType":"buy",`))
	f.sm.HandleTradeEvent([]byte(`{"message":"Successfully subscribed to keys"}`))
	f.sm.HandleTradeEvent([]byte(`{"errors":"invalid key"}`))

	snap := f.sm.GetStateSnapshot()
	assert.Empty(t, snap.Activity)
	assert.Empty(t, snap.Positions)
}

// TestActivityLogBounded keeps only the newest entries.
func TestActivityLogBounded(t *testing.T) {
	f := newFixture()
	for i := 0; i < 60; i++ {
		f.sm.HandleTradeEvent(msg(t, map[string]interface{}{"txType": "buy", "traderPublicKey": "stranger", "solAmount": float64(i + 1)}))
	}
	snap := f.sm.GetStateSnapshot()
	require.Len(t, snap.Activity, 50)
	assert.Equal(t, 60.0, snap.Activity[0].SolAmount)
}

// TestClearActiveToken stops monitors before positions are dropped.
func TestClearActiveToken(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))
	f.sm.HandleTradeEvent(buy(t, walletX, mintM1, 1, 100, 100, 10))
	f.sm.HandleTradeEvent(buy(t, devWallet, mintM2, 1, 100, 100, 10))

	positionsAtStop := -1
	f.automation.onStopAll = func() {
		positionsAtStop = len(f.sm.PositionsInMint(mintM1))
	}

	f.sm.ClearActiveToken()

	assert.Equal(t, 2, positionsAtStop, "monitors stop while positions still exist")
	assert.Equal(t, 1, f.automation.stopAll)
	assert.Nil(t, f.sm.ActiveToken())
	assert.Empty(t, f.sm.PositionsInMint(mintM1))
	assert.NotNil(t, f.sm.Position(devWallet), "positions in other tokens survive")
	assert.Equal(t, models.TokenMarketStats{}, f.sm.GetStateSnapshot().Stats)
	assert.Equal(t, []string{mintM1}, f.subscriber.unsubscribed)

	// Clearing twice is harmless.
	f.sm.ClearActiveToken()
	assert.Equal(t, 2, f.automation.stopAll)
}

// TestTrackToken validates the mint and switches tokens.
func TestTrackToken(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.sm.TrackToken("short"), ErrInvalidMint)

	f.sm.HandleTradeEvent(buy(t, walletW, mintM1, 1, 100, 100, 10))
	require.NoError(t, f.sm.TrackToken(mintM2))

	token := f.sm.ActiveToken()
	require.NotNil(t, token)
	assert.Equal(t, mintM2, token.Mint)
	assert.Equal(t, "TRACKING", token.Symbol)
	assert.Nil(t, f.sm.Position(walletW), "switching tokens drops positions in the old one")
	assert.Equal(t, []string{mintM1, mintM2}, f.subscriber.subscribed)
}

// TestEventLoopPersistsPortfolio runs events through the loop and waits for the save.
func TestEventLoopPersistsPortfolio(t *testing.T) {
	f := newFixture()
	f.sm.Start()
	defer f.sm.Stop()

	f.sm.HandleFeedMessage(buy(t, walletW, "M1", 1, 100, 100, 10))
	f.sm.HandleFeedMessage(sell(t, walletW, "M1", 0.2, 50, 50))

	select {
	case <-f.repo.saveDoneChan:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for portfolio save")
	}
	assert.Equal(t, models.PortfolioStats{LossCount: 1}, f.repo.savedPortfolio(t))
}

// TestLoadPortfolio restores the persisted counters.
func TestLoadPortfolio(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.repo.Save(persistence.KeyPortfolioStats, models.PortfolioStats{WinCount: 3, LossCount: 2}))
	<-f.repo.saveDoneChan

	require.NoError(t, f.sm.LoadPortfolio())
	assert.Equal(t, models.PortfolioStats{WinCount: 3, LossCount: 2}, f.sm.Portfolio())
}

// TestResetPositions installs imported counters and drops positions.
func TestResetPositions(t *testing.T) {
	f := newFixture()
	f.sm.HandleTradeEvent(buy(t, walletW, "M1", 1, 100, 100, 10))
	f.sm.ResetPositions(models.PortfolioStats{WinCount: 7})

	assert.Nil(t, f.sm.Position(walletW))
	assert.Equal(t, 7, f.sm.Portfolio().WinCount)
	assert.Equal(t, 1, f.automation.stopAll)
}
