package reporter

import (
	"bytes"
	"testing"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/portfolio"
	"pumpfun-dashboard-go/internal/storage"

	"github.com/stretchr/testify/assert"
)

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	WriteStatus(&buf, Status{
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Connected:   true,
		ActiveToken: &models.ActiveToken{Mint: "MintAddress", Symbol: "PEPE"},
		Market:      models.TokenMarketStats{BuyCount: 3, SellCount: 1, MarketCapUSD: 12000, NetFlow: 1.5},
		Holdings:    portfolio.Holdings{TotalTokens: 30_000_000, HoldingPercent: 3},
		Wallets: []WalletRow{
			{Wallet: models.Wallet{Name: "Wallet 1", Address: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAZZZZ"}, Balance: 1.25, HasBalance: true, AutoSell: true},
			{Wallet: models.Wallet{Name: "Dev Wallet", Address: "DEV", IsDevWallet: true}},
		},
		Positions: map[string]*models.Position{
			"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAZZZZ": {Symbol: "PEPE", Balance: 1000, TotalInvested: 1, EntryMarketCapSol: 40, CurrentMarketCapSol: 60},
		},
		Portfolio: portfolio.Stats{TotalInitial: 4, TotalCurrent: 4.5, RealizedPnL: 0.5, RealizedPnLPercent: 12.5, WinRate: 75, Wins: 3, Losses: 1},
		Queue: []models.TransactionQueueEntry{
			{ID: "q1", Action: models.Sell, WalletName: "Wallet 1", TokenSymbol: "PEPE", Percentage: 50, Status: models.StatusProcessing, Attempts: 2},
		},
		Monitors: []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAZZZZ"},
	})

	out := buf.String()
	assert.Contains(t, out, "feed connected")
	assert.Contains(t, out, "PEPE (MintAddress)")
	assert.Contains(t, out, "$12000")
	assert.Contains(t, out, "+1.5000")
	assert.Contains(t, out, "AAAAAA...ZZZZ")
	assert.Contains(t, out, "Dev Wallet (dev)")
	assert.Contains(t, out, "+0.5000 (+50.00%)", "live PnL of the position")
	assert.Contains(t, out, "75.0% (3W / 1L)")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "Auto-sell monitors:")
}

func TestWriteStatusWithoutToken(t *testing.T) {
	var buf bytes.Buffer
	WriteStatus(&buf, Status{GeneratedAt: time.Now()})
	out := buf.String()
	assert.Contains(t, out, "feed disconnected")
	assert.Contains(t, out, "No active token")
	assert.NotContains(t, out, "Transaction queue")
}

func TestWriteJournal(t *testing.T) {
	var buf bytes.Buffer
	WriteJournal(&buf, []models.TransactionQueueEntry{
		{Source: "autobuy", Action: models.Buy, WalletName: "Wallet 2", TokenSymbol: "PEPE", Amount: 0.25, Status: models.StatusSuccess, Signature: "5sig", CompletedAt: time.Now()},
		{Source: "nuke", Action: models.Sell, WalletName: "Wallet 3", TokenSymbol: "PEPE", Percentage: 100, Status: models.StatusError, Error: "Unknown error", CompletedAt: time.Now()},
	}, storage.OrderStats{Total: 2, Succeeded: 1, Failed: 1, SolBought: 0.25})

	out := buf.String()
	assert.Contains(t, out, "0.25 SOL")
	assert.Contains(t, out, "5sig")
	assert.Contains(t, out, "Unknown error")
	assert.Contains(t, out, "1 ok / 1 failed")
}

func TestWriteWalletList(t *testing.T) {
	var buf bytes.Buffer
	WriteWalletList(&buf, []models.Wallet{
		{Name: "Dev Wallet", Address: "DEV", IsDevWallet: true},
		{Name: "Wallet 1", Address: "W1"},
	}, map[string]models.WalletSettings{})

	out := buf.String()
	assert.Contains(t, out, "0.1, 0.5, 1")
	assert.Contains(t, out, "25%, 50%, 100%")
	assert.Contains(t, out, "80 / 99")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Wallet 1")), bytes.Index(buf.Bytes(), []byte("Dev Wallet")), "dev wallet listed last")
}
