package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	dev := models.Wallet{Name: "Dev Wallet", Address: "DEV", PrivateKey: "dk", APIKey: "da", IsDevWallet: true}
	custom := models.WalletSettings{BuyAmounts: []float64{1, 2, 3}, SellPercentages: []float64{10, 20, 30}, BuySlippage: 50, SellSlippage: 60, PriorityFee: 0.001}
	return Snapshot{
		DevWallet: &dev,
		TradingWallets: []models.Wallet{
			{Name: "Wallet 1", Address: "W1", PrivateKey: "k1", APIKey: "a1"},
			{Name: "Wallet 2", Address: "W2", PrivateKey: "k2", APIKey: "a2"},
		},
		Settings: map[string]models.WalletSettings{"W1": custom},
		Positions: map[string]*models.Position{
			"W1":  {Mint: "M", Symbol: "PEPE", Balance: 100, TotalInvested: 1, AvgPrice: 0.01, EntryMarketCapSol: 30},
			"DEV": {Mint: "M", Symbol: "PEPE", Balance: 5},
		},
		Balances:    map[string]float64{"W1": 2, "W2": 3, "DEV": 1},
		Initial:     map[string]float64{"W1": 1, "W2": 3},
		InitialTime: time.Unix(1700000000, 0).UTC(),
		AutoTrade: models.AutoTradeConfig{
			AutoBuy: models.AutoBuyConfig{Enabled: true, Sequence: []models.AutoBuyEntry{
				{WalletAddress: "W2", Amount: 0.5, DelayMs: 200, Slippage: 80, PriorityFee: 0.0001},
				{WalletAddress: "GONE", Amount: 1},
			}},
			AutoSell: models.AutoSellConfig{Enabled: true, Wallets: map[string]*models.WalletAutoSell{
				"W1": {Enabled: true, Slippage: 99, Triggers: []models.SellTrigger{{Type: models.TriggerProfit, Value: 2, SellPercent: 50}}},
			}},
		},
		MassLaunch: models.MassLaunchConfig{Enabled: true, Launches: []models.LaunchSpec{
			{WalletAddress: "W2", PrivateKey: "k2", APIKey: "a2", TokenName: "Moon", Symbol: "MOON", InitialBuy: 0.2, DelayMs: 500, SellAfterSeconds: 20, SellPercent: 100},
		}},
		Portfolio:   models.PortfolioStats{WinCount: 4, LossCount: 2},
		ActiveToken: &models.ActiveToken{Mint: "M", Symbol: "PEPE", Name: "Pepe"},
		TokenStats:  models.TokenMarketStats{BuyCount: 7, SellCount: 3, MarketCapUSD: 9000},
		SolPriceUSD: 100,
	}
}

func TestBuildDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := Build(sampleSnapshot(), now)

	assert.Equal(t, Producer, doc.ExportedBy)
	assert.Equal(t, now, doc.ExportDate)
	assert.Equal(t, 3, doc.WalletsCount)
	require.NotNil(t, doc.DevWallet)
	assert.Equal(t, 5.0, doc.DevWallet.Position.Balance)

	require.Len(t, doc.TradingWallets, 2)
	w1, w2 := doc.TradingWallets[0], doc.TradingWallets[1]
	assert.Equal(t, 50.0, w1.Settings.BuySlippage)
	assert.Equal(t, models.DefaultWalletSettings(), *w2.Settings)
	require.NotNil(t, w1.CurrentPosition)
	assert.Equal(t, 3000.0, w1.CurrentPosition.EntryMarketCap, "entry market cap exported in USD")
	assert.Nil(t, w2.CurrentPosition)
	assert.Equal(t, 1.0, w1.InitialBalance)

	seq := doc.AutoTradeSettings.AutoBuy.Sequence
	require.Len(t, seq, 2)
	assert.Equal(t, "Wallet 2", seq[0].WalletName)
	assert.Equal(t, "Unknown", seq[1].WalletName)
	require.Len(t, doc.AutoTradeSettings.AutoSell.WalletConfigs, 1)
	assert.Equal(t, "Wallet 1", doc.AutoTradeSettings.AutoSell.WalletConfigs[0].WalletName)

	assert.Equal(t, "Wallet 2", doc.SpamLaunchSettings.Launches[0].WalletName)
	assert.Equal(t, 6.0, doc.PortfolioStats.TotalCurrentBalance)
	assert.Equal(t, 4.0, doc.PortfolioStats.TotalInitialBalance)
	assert.Equal(t, 7, doc.ActiveToken.Stats.BuyCount)
	assert.Equal(t, 9000.0, doc.ActiveToken.Stats.CurrentMarketCapUSD)
}

// TestFileRoundTrip writes an export and restores it from disk.
func TestFileRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	path := filepath.Join(t.TempDir(), "exports", FileName(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "pump-wallets-export-2024-05-01.json", filepath.Base(path))
	require.NoError(t, WriteFile(path, Build(snap, time.Now())))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	doc, err := ReadFile(path)
	require.NoError(t, err)
	r := doc.Restore()

	require.NotNil(t, r.DevWallet)
	assert.Equal(t, *snap.DevWallet, *r.DevWallet)
	assert.Equal(t, snap.TradingWallets, r.TradingWallets)
	assert.Equal(t, snap.Settings["W1"], r.Settings["W1"])
	assert.Equal(t, models.DefaultWalletSettings(), r.Settings["W2"])

	assert.Equal(t, snap.AutoTrade.AutoBuy, r.AutoTrade.AutoBuy)
	assert.Equal(t, snap.AutoTrade.AutoSell.Wallets["W1"], r.AutoTrade.AutoSell.Wallets["W1"])
	assert.True(t, r.AutoTrade.AutoSell.Enabled)

	require.Len(t, r.MassLaunch.Launches, 1)
	launch := r.MassLaunch.Launches[0]
	assert.Equal(t, "k2", launch.PrivateKey, "credentials restored from the wallet")
	assert.Equal(t, "a2", launch.APIKey)
	assert.Equal(t, "Wallet 2", launch.WalletName)
	assert.Equal(t, int64(500), launch.DelayMs)
	assert.Equal(t, snap.Portfolio, r.Portfolio)
}

func TestRestoreNormalizesPartialSettings(t *testing.T) {
	doc, err := Decode([]byte(`{
		"exportedBy": "Pump.fun Multi-Wallet Dashboard",
		"tradingWallets": [
			{"name": "A", "address": "WA", "privateKey": "k", "apiKey": "a", "settings": {"buySlippage": 40}},
			{"name": "B", "address": "WB", "privateKey": "k", "apiKey": "a"}
		]
	}`))
	require.NoError(t, err)
	r := doc.Restore()

	assert.Nil(t, r.DevWallet)
	require.Contains(t, r.Settings, "WA")
	assert.Equal(t, 40.0, r.Settings["WA"].BuySlippage)
	assert.Equal(t, 99.0, r.Settings["WA"].SellSlippage)
	assert.NotContains(t, r.Settings, "WB", "registry applies defaults")
	assert.False(t, r.AutoTrade.AutoBuy.Enabled)
	assert.NotNil(t, r.AutoTrade.AutoSell.Wallets)
	assert.Zero(t, r.Portfolio)
}

func TestDecodeRejectsForeignFiles(t *testing.T) {
	_, err := Decode([]byte(`{"exportedBy": "Some Other Tool", "tradingWallets": []}`))
	assert.True(t, errors.Is(err, ErrForeignExport))

	_, err = Decode([]byte(`{"tradingWallets": []}`))
	assert.True(t, errors.Is(err, ErrForeignExport))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrForeignExport))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
