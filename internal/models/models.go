package models

import "time"

// Config holds every tunable of the dashboard. Zero values are replaced by
// config.ApplyDefaults.
type Config struct {
	FeedURL         string `json:"feed_url" yaml:"feed_url"`
	TradeAPIURL     string `json:"trade_api_url" yaml:"trade_api_url"`
	CreateWalletURL string `json:"create_wallet_url" yaml:"create_wallet_url"`
	CompanionURL    string `json:"companion_url" yaml:"companion_url"` // mass-launch companion service
	RPCEndpoint     string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	DBPath          string `json:"db_path" yaml:"db_path"`
	JournalPath     string `json:"journal_path" yaml:"journal_path"`
	DryRun          bool   `json:"dry_run" yaml:"dry_run"`

	SolPriceUSD       float64 `json:"sol_price_usd" yaml:"sol_price_usd"`
	BaseSolInCurve    float64 `json:"base_sol_in_curve" yaml:"base_sol_in_curve"`
	Pool              Pool    `json:"pool" yaml:"pool"`
	ActivityLogSize   int     `json:"activity_log_size" yaml:"activity_log_size"`
	TokenTradeLogSize int     `json:"token_trade_log_size" yaml:"token_trade_log_size"`

	ReconnectIntervalSec     int `json:"reconnect_interval_sec" yaml:"reconnect_interval_sec"`
	SubscribeStaggerMs       int `json:"subscribe_stagger_ms" yaml:"subscribe_stagger_ms"`
	WebSocketPingIntervalSec int `json:"websocket_ping_interval_sec" yaml:"websocket_ping_interval_sec"`
	AutoSellIntervalMs       int `json:"auto_sell_interval_ms" yaml:"auto_sell_interval_ms"`
	RetryAttempts            int `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelayMs             int `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	QueueExpirySec           int `json:"queue_expiry_sec" yaml:"queue_expiry_sec"`
	BalanceRefreshSec        int `json:"balance_refresh_sec" yaml:"balance_refresh_sec"`
	StatusReportSec          int `json:"status_report_sec" yaml:"status_report_sec"`
	CompanionTimeoutSec      int `json:"companion_timeout_sec" yaml:"companion_timeout_sec"`
	HTTPClientTimeoutSec     int `json:"http_client_timeout_sec" yaml:"http_client_timeout_sec"`
	PersistenceQueueLength   int `json:"persistence_queue_length" yaml:"persistence_queue_length"`

	LogConfig LogConfig `json:"log" yaml:"log"`
}

// LogConfig configures zap output and lumberjack rotation.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Output     string `json:"output" yaml:"output"`           // console, file, both
	File       string `json:"file" yaml:"file"`               // log file path
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // MB
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // rotated files kept
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // days
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Pool selects the venue the trade API routes an order to.
type Pool string

const (
	PoolAuto    Pool = "auto"
	PoolPump    Pool = "pump"
	PoolRaydium Pool = "raydium"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Wallet is a tracked trading identity.
type Wallet struct {
	Address     string `json:"address"`
	PrivateKey  string `json:"privateKey"`
	APIKey      string `json:"apiKey"`
	Name        string `json:"name"`
	IsDevWallet bool   `json:"isDevWallet,omitempty"`
}

// WalletSettings are the per-wallet trading presets.
type WalletSettings struct {
	BuyAmounts      []float64 `json:"buyAmounts"`
	SellPercentages []float64 `json:"sellPercentages"`
	BuySlippage     float64   `json:"buySlippage"`
	SellSlippage    float64   `json:"sellSlippage"`
	PriorityFee     float64   `json:"priorityFee"`

	LegacyBuyAmount float64 `json:"buyAmount,omitempty"` // single-preset format
}

// DefaultWalletSettings returns the presets every new wallet starts with.
func DefaultWalletSettings() WalletSettings {
	return WalletSettings{
		BuyAmounts:      []float64{0.1, 0.5, 1},
		SellPercentages: []float64{25, 50, 100},
		BuySlippage:     80,
		SellSlippage:    99,
		PriorityFee:     0.00005,
	}
}

// Normalize fills fields missing from older stored settings.
func (s *WalletSettings) Normalize() {
	def := DefaultWalletSettings()
	if len(s.BuyAmounts) == 0 && s.LegacyBuyAmount > 0 {
		s.BuyAmounts = []float64{s.LegacyBuyAmount, def.BuyAmounts[1], def.BuyAmounts[2]}
	}
	s.LegacyBuyAmount = 0
	if len(s.BuyAmounts) != len(def.BuyAmounts) {
		merged := append([]float64(nil), def.BuyAmounts...)
		copy(merged, s.BuyAmounts)
		s.BuyAmounts = merged
	}
	if len(s.SellPercentages) != len(def.SellPercentages) {
		merged := append([]float64(nil), def.SellPercentages...)
		copy(merged, s.SellPercentages)
		s.SellPercentages = merged
	}
	if s.BuySlippage <= 0 {
		s.BuySlippage = def.BuySlippage
	}
	if s.SellSlippage <= 0 {
		s.SellSlippage = def.SellSlippage
	}
	if s.PriorityFee <= 0 {
		s.PriorityFee = def.PriorityFee
	}
}

// Clone returns a copy that shares no slices with s.
func (s WalletSettings) Clone() WalletSettings {
	s.BuyAmounts = append([]float64(nil), s.BuyAmounts...)
	s.SellPercentages = append([]float64(nil), s.SellPercentages...)
	return s
}

// TradeRecord is one entry of a position's trade history.
type TradeRecord struct {
	Signature       string    `json:"signature,omitempty"`
	TxType          string    `json:"txType"`
	SolAmount       float64   `json:"solAmount"`
	TokenAmount     float64   `json:"tokenAmount"`
	NewTokenBalance float64   `json:"newTokenBalance"`
	MarketCapSol    float64   `json:"marketCapSol"`
	Timestamp       time.Time `json:"timestamp"`
}

// Position is a wallet's holding in the active token. Balance is always the
// feed's reported post-trade balance.
type Position struct {
	Mint                string        `json:"mint"`
	Symbol              string        `json:"symbol"`
	Name                string        `json:"name"`
	Balance             float64       `json:"balance"`
	TotalBought         float64       `json:"totalBought"`
	TotalInvested       float64       `json:"totalInvested"`
	AvgPrice            float64       `json:"avgPrice"`
	EntryMarketCapSol   float64       `json:"entryMarketCapSol"`
	CurrentMarketCapSol float64       `json:"currentMarketCapSol"`
	EntryTime           time.Time     `json:"entryTimestamp"`
	Trades              []TradeRecord `json:"trades"`
}

// Clone deep-copies the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.Trades = append([]TradeRecord(nil), p.Trades...)
	return &c
}

// ActiveToken is the single token the dashboard tracks.
type ActiveToken struct {
	Mint       string    `json:"mint"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	DetectedAt time.Time `json:"detectedAt"`
}

// TokenTrade is a compact record of a token-channel trade.
type TokenTrade struct {
	Trader       string    `json:"trader"`
	TxType       string    `json:"txType"`
	SolAmount    float64   `json:"solAmount"`
	TokenAmount  float64   `json:"tokenAmount"`
	MarketCapSol float64   `json:"marketCapSol"`
	Timestamp    time.Time `json:"timestamp"`
}

// TokenMarketStats aggregates the active token's trade channel.
type TokenMarketStats struct {
	BuyCount          int          `json:"buys"`
	SellCount         int          `json:"sells"`
	NetFlow           float64      `json:"netFlow"`
	TotalVolume       float64      `json:"volume"`
	MarketCapUSD      float64      `json:"marketCap"`
	SolInBondingCurve float64      `json:"vSolInBondingCurve"`
	RecentTrades      []TokenTrade `json:"recentTrades,omitempty"`
}

// AutoBuyEntry is one step of the auto-buy sequence. Delay is in milliseconds.
type AutoBuyEntry struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
	DelayMs       int64   `json:"delay"`
	Slippage      float64 `json:"slippage"`
	PriorityFee   float64 `json:"priorityFee"`
}

// AutoBuyConfig configures buys fired when the dev wallet creates a token.
type AutoBuyConfig struct {
	Enabled  bool           `json:"enabled"`
	Sequence []AutoBuyEntry `json:"sequence"`
}

// TriggerType names an auto-sell condition.
type TriggerType string

const (
	TriggerTime      TriggerType = "time"
	TriggerProfit    TriggerType = "profit"
	TriggerMarketCap TriggerType = "marketcap"
	TriggerDevSell   TriggerType = "devSell"
)

// DefaultValue is the threshold a trigger gets when switched to this type.
func (t TriggerType) DefaultValue() float64 {
	switch t {
	case TriggerTime:
		return 30
	case TriggerProfit:
		return 2
	case TriggerMarketCap:
		return 50000
	}
	return 0
}

// SellTrigger fires a sell of SellPercent once its condition holds.
type SellTrigger struct {
	Type        TriggerType `json:"type"`
	Value       float64     `json:"value"`
	SellPercent float64     `json:"sellPercent"`
}

// DefaultSellTrigger is the trigger added by the "add trigger" action.
func DefaultSellTrigger() SellTrigger {
	return SellTrigger{Type: TriggerTime, Value: 30, SellPercent: 100}
}

// WalletAutoSell is one wallet's auto-sell setup.
type WalletAutoSell struct {
	Enabled  bool          `json:"enabled"`
	Triggers []SellTrigger `json:"triggers"`
	Slippage float64       `json:"slippage"`
}

// AutoSellConfig maps wallet addresses to their auto-sell setup.
type AutoSellConfig struct {
	Enabled bool                       `json:"enabled"`
	Wallets map[string]*WalletAutoSell `json:"wallets"`
}

// AutoTradeConfig is persisted under the autoTradeConfig key.
type AutoTradeConfig struct {
	AutoBuy  AutoBuyConfig  `json:"autoBuy"`
	AutoSell AutoSellConfig `json:"autoSell"`
}

// Clone deep-copies the configuration.
func (c AutoTradeConfig) Clone() AutoTradeConfig {
	out := AutoTradeConfig{
		AutoBuy: AutoBuyConfig{
			Enabled:  c.AutoBuy.Enabled,
			Sequence: append([]AutoBuyEntry(nil), c.AutoBuy.Sequence...),
		},
		AutoSell: AutoSellConfig{
			Enabled: c.AutoSell.Enabled,
			Wallets: make(map[string]*WalletAutoSell, len(c.AutoSell.Wallets)),
		},
	}
	for addr, w := range c.AutoSell.Wallets {
		if w == nil {
			continue
		}
		wc := *w
		wc.Triggers = append([]SellTrigger(nil), w.Triggers...)
		out.AutoSell.Wallets[addr] = &wc
	}
	return out
}

// SocialLinks are optional token metadata links.
type SocialLinks struct {
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
	Website  string `json:"website"`
}

// LaunchSpec describes one token launch performed by the companion service.
type LaunchSpec struct {
	WalletName       string      `json:"walletName"`
	WalletAddress    string      `json:"walletAddress"`
	PrivateKey       string      `json:"privateKey"`
	APIKey           string      `json:"apiKey"`
	TokenName        string      `json:"tokenName"`
	Symbol           string      `json:"symbol"`
	Description      string      `json:"description"`
	ImageURL         string      `json:"imageUrl"`
	SocialLinks      SocialLinks `json:"socialLinks"`
	InitialBuy       float64     `json:"initialBuy"`
	DelayMs          int64       `json:"delay"`
	SellAfterSeconds float64     `json:"sellAfterSeconds"`
	SellPercent      float64     `json:"sellPercent"`
}

// MassLaunchConfig is persisted under the spamLaunchConfig key.
type MassLaunchConfig struct {
	Enabled  bool         `json:"enabled"`
	Launches []LaunchSpec `json:"launches"`
}

// OrderStatus is the lifecycle state of a queue entry.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusSuccess    OrderStatus = "success"
	StatusError      OrderStatus = "error"
)

// Terminal reports whether no further transitions happen.
func (s OrderStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// TradeRequest is an order handed to the executor.
type TradeRequest struct {
	Action        Side
	Mint          string
	TokenSymbol   string
	WalletAddress string
	WalletName    string
	PrivateKey    string
	APIKey        string
	Amount        float64 // SOL for buys, tokens for sells
	SellAll       bool    // sell "100%"
	Percentage    float64
	Slippage      float64
	PriorityFee   float64
	Pool          Pool
	IsAutoBuy     bool
	Source        string // manual, autobuy, autosell, nuke
}

// TransactionQueueEntry is the visible record of an in-flight order.
type TransactionQueueEntry struct {
	ID            string      `json:"id"`
	Action        Side        `json:"action"`
	WalletAddress string      `json:"walletAddress"`
	WalletName    string      `json:"walletName"`
	Mint          string      `json:"mint"`
	TokenSymbol   string      `json:"tokenSymbol"`
	Amount        float64     `json:"amount"`
	Percentage    float64     `json:"percentage,omitempty"`
	Status        OrderStatus `json:"status"`
	Signature     string      `json:"signature,omitempty"`
	Error         string      `json:"error,omitempty"`
	Attempts      int         `json:"attempts"`
	Source        string      `json:"source"`
	CreatedAt     time.Time   `json:"createdAt"`
	CompletedAt   time.Time   `json:"completedAt,omitempty"`
}

// ActivityEntry is a line of the recent-activity log.
type ActivityEntry struct {
	Time          time.Time `json:"time"`
	WalletAddress string    `json:"walletAddress"`
	WalletName    string    `json:"walletName"`
	TxType        string    `json:"txType"`
	Mint          string    `json:"mint"`
	Symbol        string    `json:"symbol"`
	SolAmount     float64   `json:"solAmount"`
	TokenAmount   float64   `json:"tokenAmount"`
	Signature     string    `json:"signature,omitempty"`
	Matched       bool      `json:"matched"`
	Note          string    `json:"note,omitempty"`
}

// PortfolioStats is the win/loss record persisted under portfolioStats.
type PortfolioStats struct {
	WinCount  int `json:"winCount"`
	LossCount int `json:"lossCount"`
}
