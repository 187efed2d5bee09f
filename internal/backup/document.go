package backup

import (
	"time"

	"pumpfun-dashboard-go/internal/models"
)

// Producer tags every export; imports carrying another tag are rejected.
const Producer = "Pump.fun Multi-Wallet Dashboard"

// Document is the export file.
type Document struct {
	ExportDate         time.Time          `json:"exportDate"`
	ExportedBy         string             `json:"exportedBy"`
	WalletsCount       int                `json:"walletsCount"`
	DevWallet          *DevWallet         `json:"devWallet"`
	TradingWallets     []TradingWallet    `json:"tradingWallets"`
	AutoTradeSettings  *AutoTradeSettings `json:"autoTradeSettings"`
	SpamLaunchSettings *SpamLaunch        `json:"spamLaunchSettings"`
	PortfolioStats     *PortfolioStats    `json:"portfolioStats"`
	ActiveToken        *ActiveToken       `json:"activeToken"`
}

type DevWallet struct {
	Name           string           `json:"name"`
	Address        string           `json:"address"`
	PrivateKey     string           `json:"privateKey"`
	APIKey         string           `json:"apiKey"`
	CurrentBalance float64          `json:"currentBalance"`
	Position       *models.Position `json:"position"`
}

type TradingWallet struct {
	Name            string                 `json:"name"`
	Address         string                 `json:"address"`
	PrivateKey      string                 `json:"privateKey"`
	APIKey          string                 `json:"apiKey"`
	CurrentBalance  float64                `json:"currentBalance"`
	InitialBalance  float64                `json:"initialBalance"`
	Settings        *models.WalletSettings `json:"settings"`
	CurrentPosition *PositionSummary       `json:"currentPosition"`
}

// PositionSummary is informational; imports start without positions.
type PositionSummary struct {
	Token          string  `json:"token"`
	TokenMint      string  `json:"tokenMint"`
	Balance        float64 `json:"balance"`
	TotalInvested  float64 `json:"totalInvested"`
	AvgPrice       float64 `json:"avgPrice"`
	EntryMarketCap float64 `json:"entryMarketCap"` // USD
}

type AutoTradeSettings struct {
	AutoBuy  AutoBuySettings  `json:"autoBuy"`
	AutoSell AutoSellSettings `json:"autoSell"`
}

type AutoBuySettings struct {
	Enabled  bool           `json:"enabled"`
	Sequence []AutoBuyEntry `json:"sequence"`
}

type AutoBuyEntry struct {
	WalletName string `json:"walletName"`
	models.AutoBuyEntry
}

type AutoSellSettings struct {
	Enabled       bool             `json:"enabled"`
	WalletConfigs []WalletAutoSell `json:"walletConfigs"`
}

type WalletAutoSell struct {
	WalletName    string               `json:"walletName"`
	WalletAddress string               `json:"walletAddress"`
	Enabled       bool                 `json:"enabled"`
	Triggers      []models.SellTrigger `json:"triggers"`
	Slippage      float64              `json:"slippage,omitempty"`
}

type SpamLaunch struct {
	Enabled  bool           `json:"enabled"`
	Launches []LaunchRecord `json:"launches"`
}

// LaunchRecord is a launch without key material; credentials are restored
// from the matching wallet on import.
type LaunchRecord struct {
	WalletName       string             `json:"walletName"`
	WalletAddress    string             `json:"walletAddress"`
	TokenName        string             `json:"tokenName"`
	Symbol           string             `json:"symbol"`
	Description      string             `json:"description"`
	ImageURL         string             `json:"imageUrl"`
	SocialLinks      models.SocialLinks `json:"socialLinks"`
	InitialBuy       float64            `json:"initialBuy"`
	DelayMs          int64              `json:"delay"`
	SellAfterSeconds float64            `json:"sellAfterSeconds"`
	SellPercent      float64            `json:"sellPercent"`
}

type PortfolioStats struct {
	WinCount            int       `json:"winCount"`
	LossCount           int       `json:"lossCount"`
	TotalInitialBalance float64   `json:"totalInitialBalance"`
	TotalCurrentBalance float64   `json:"totalCurrentBalance"`
	InitialBalanceTime  time.Time `json:"initialBalanceTime"`
}

type ActiveToken struct {
	Mint       string      `json:"mint"`
	Symbol     string      `json:"symbol"`
	Name       string      `json:"name"`
	DetectedAt time.Time   `json:"detectedAt"`
	Stats      ActiveStats `json:"stats"`
}

type ActiveStats struct {
	BuyCount            int     `json:"buyCount"`
	SellCount           int     `json:"sellCount"`
	NetFlow             float64 `json:"netFlow"`
	TotalVolume         float64 `json:"totalVolume"`
	CurrentMarketCapUSD float64 `json:"currentMarketCapUSD"`
}
