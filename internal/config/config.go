package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pumpfun-dashboard-go/internal/models"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL         = "wss://pumpportal.fun/api/data"
	DefaultTradeAPIURL     = "https://pumpportal.fun/api/trade"
	DefaultCreateWalletURL = "https://pumpportal.fun/api/create-wallet"
	DefaultCompanionURL    = "http://localhost:3000"
	DefaultRPCEndpoint     = "https://api.mainnet-beta.solana.com"
	heliusRPCTemplate      = "https://mainnet.helius-rpc.com/?api-key=%s"
)

// LoadConfig reads a JSON or YAML (by extension) config file, applies
// defaults and then environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// Default returns a config with every default applied, used when no file
// exists.
func Default() *models.Config {
	cfg := &models.Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults replaces zero values with the documented defaults.
func ApplyDefaults(cfg *models.Config) {
	setString(&cfg.FeedURL, DefaultFeedURL)
	setString(&cfg.TradeAPIURL, DefaultTradeAPIURL)
	setString(&cfg.CreateWalletURL, DefaultCreateWalletURL)
	setString(&cfg.CompanionURL, DefaultCompanionURL)
	setString(&cfg.RPCEndpoint, DefaultRPCEndpoint)
	setString(&cfg.DBPath, "data/dashboard")
	setString(&cfg.JournalPath, "data/journal.db")

	if cfg.Pool == "" {
		cfg.Pool = models.PoolAuto
	}
	setFloat(&cfg.SolPriceUSD, 162)
	setFloat(&cfg.BaseSolInCurve, 30)
	setInt(&cfg.ActivityLogSize, 50)
	setInt(&cfg.TokenTradeLogSize, 100)

	setInt(&cfg.ReconnectIntervalSec, 5)
	setInt(&cfg.SubscribeStaggerMs, 100)
	setInt(&cfg.WebSocketPingIntervalSec, 30)
	setInt(&cfg.AutoSellIntervalMs, 1000)
	setInt(&cfg.RetryAttempts, 3)
	setInt(&cfg.RetryDelayMs, 500)
	setInt(&cfg.QueueExpirySec, 10)
	setInt(&cfg.BalanceRefreshSec, 30)
	setInt(&cfg.StatusReportSec, 30)
	setInt(&cfg.CompanionTimeoutSec, 30)
	setInt(&cfg.HTTPClientTimeoutSec, 10)
	setInt(&cfg.PersistenceQueueLength, 128)

	setString(&cfg.LogConfig.Level, "info")
	setString(&cfg.LogConfig.Output, "console")
	setString(&cfg.LogConfig.File, "logs/dashboard.log")
	setInt(&cfg.LogConfig.MaxSize, 50)
	setInt(&cfg.LogConfig.MaxBackups, 5)
	setInt(&cfg.LogConfig.MaxAge, 14)
}

// ApplyEnv overrides endpoints and paths from the process environment.
// HELIUS_API_KEY builds a Helius RPC URL unless RPC_ENDPOINT is set.
func ApplyEnv(cfg *models.Config) {
	if v := os.Getenv("PUMPPORTAL_API_URL"); v != "" {
		cfg.TradeAPIURL = v
	}
	if v := os.Getenv("PUMPPORTAL_WS_URL"); v != "" {
		cfg.FeedURL = v
	}
	if v := os.Getenv("COMPANION_URL"); v != "" {
		cfg.CompanionURL = v
	}
	if v := os.Getenv("DASHBOARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RPC_ENDPOINT"); v != "" {
		cfg.RPCEndpoint = v
	} else if key := os.Getenv("HELIUS_API_KEY"); key != "" {
		cfg.RPCEndpoint = fmt.Sprintf(heliusRPCTemplate, key)
	}
	if v := strings.ToLower(os.Getenv("DRY_RUN")); v == "1" || v == "true" {
		cfg.DryRun = true
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst <= 0 {
		*dst = def
	}
}
