package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pumpfun-dashboard-go/internal/models"
)

// ErrForeignExport rejects files written by anything but this dashboard.
var ErrForeignExport = errors.New("backup: file was not exported by " + Producer)

// Snapshot is everything an export captures.
type Snapshot struct {
	DevWallet      *models.Wallet
	TradingWallets []models.Wallet
	Settings       map[string]models.WalletSettings
	Positions      map[string]*models.Position
	Balances       map[string]float64
	Initial        map[string]float64
	InitialTime    time.Time
	AutoTrade      models.AutoTradeConfig
	MassLaunch     models.MassLaunchConfig
	Portfolio      models.PortfolioStats
	ActiveToken    *models.ActiveToken
	TokenStats     models.TokenMarketStats
	SolPriceUSD    float64
}

// Restored is what an import applies.
type Restored struct {
	DevWallet      *models.Wallet
	TradingWallets []models.Wallet
	Settings       map[string]models.WalletSettings
	AutoTrade      models.AutoTradeConfig
	MassLaunch     models.MassLaunchConfig
	Portfolio      models.PortfolioStats
}

// Build assembles the export document.
func Build(s Snapshot, now time.Time) *Document {
	names := make(map[string]string)
	for _, w := range s.TradingWallets {
		names[w.Address] = w.Name
	}
	if s.DevWallet != nil {
		names[s.DevWallet.Address] = s.DevWallet.Name
	}
	nameOf := func(address string) string {
		if n, ok := names[address]; ok {
			return n
		}
		return "Unknown"
	}

	doc := &Document{
		ExportDate:   now.UTC(),
		ExportedBy:   Producer,
		WalletsCount: len(names),
	}

	if d := s.DevWallet; d != nil {
		doc.DevWallet = &DevWallet{
			Name:           d.Name,
			Address:        d.Address,
			PrivateKey:     d.PrivateKey,
			APIKey:         d.APIKey,
			CurrentBalance: s.Balances[d.Address],
			Position:       s.Positions[d.Address].Clone(),
		}
	}

	doc.TradingWallets = make([]TradingWallet, 0, len(s.TradingWallets))
	for _, w := range s.TradingWallets {
		settings, ok := s.Settings[w.Address]
		if !ok {
			settings = models.DefaultWalletSettings()
		}
		settings = settings.Clone()
		tw := TradingWallet{
			Name:           w.Name,
			Address:        w.Address,
			PrivateKey:     w.PrivateKey,
			APIKey:         w.APIKey,
			CurrentBalance: s.Balances[w.Address],
			InitialBalance: s.Initial[w.Address],
			Settings:       &settings,
		}
		if p := s.Positions[w.Address]; p != nil {
			tw.CurrentPosition = &PositionSummary{
				Token:          p.Symbol,
				TokenMint:      p.Mint,
				Balance:        p.Balance,
				TotalInvested:  p.TotalInvested,
				AvgPrice:       p.AvgPrice,
				EntryMarketCap: p.EntryMarketCapSol * s.SolPriceUSD,
			}
		}
		doc.TradingWallets = append(doc.TradingWallets, tw)
	}

	auto := &AutoTradeSettings{
		AutoBuy:  AutoBuySettings{Enabled: s.AutoTrade.AutoBuy.Enabled, Sequence: []AutoBuyEntry{}},
		AutoSell: AutoSellSettings{Enabled: s.AutoTrade.AutoSell.Enabled, WalletConfigs: []WalletAutoSell{}},
	}
	for _, e := range s.AutoTrade.AutoBuy.Sequence {
		auto.AutoBuy.Sequence = append(auto.AutoBuy.Sequence, AutoBuyEntry{WalletName: nameOf(e.WalletAddress), AutoBuyEntry: e})
	}
	addresses := make([]string, 0, len(s.AutoTrade.AutoSell.Wallets))
	for addr := range s.AutoTrade.AutoSell.Wallets {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addr := range addresses {
		w := s.AutoTrade.AutoSell.Wallets[addr]
		if w == nil {
			continue
		}
		auto.AutoSell.WalletConfigs = append(auto.AutoSell.WalletConfigs, WalletAutoSell{
			WalletName:    nameOf(addr),
			WalletAddress: addr,
			Enabled:       w.Enabled,
			Triggers:      append([]models.SellTrigger{}, w.Triggers...),
			Slippage:      w.Slippage,
		})
	}
	doc.AutoTradeSettings = auto

	spam := &SpamLaunch{Enabled: s.MassLaunch.Enabled, Launches: []LaunchRecord{}}
	for _, l := range s.MassLaunch.Launches {
		spam.Launches = append(spam.Launches, LaunchRecord{
			WalletName:       nameOf(l.WalletAddress),
			WalletAddress:    l.WalletAddress,
			TokenName:        l.TokenName,
			Symbol:           l.Symbol,
			Description:      l.Description,
			ImageURL:         l.ImageURL,
			SocialLinks:      l.SocialLinks,
			InitialBuy:       l.InitialBuy,
			DelayMs:          l.DelayMs,
			SellAfterSeconds: l.SellAfterSeconds,
			SellPercent:      l.SellPercent,
		})
	}
	doc.SpamLaunchSettings = spam

	stats := &PortfolioStats{
		WinCount:           s.Portfolio.WinCount,
		LossCount:          s.Portfolio.LossCount,
		InitialBalanceTime: s.InitialTime,
	}
	for _, v := range s.Initial {
		stats.TotalInitialBalance += v
	}
	for _, v := range s.Balances {
		stats.TotalCurrentBalance += v
	}
	doc.PortfolioStats = stats

	if t := s.ActiveToken; t != nil {
		doc.ActiveToken = &ActiveToken{
			Mint:       t.Mint,
			Symbol:     t.Symbol,
			Name:       t.Name,
			DetectedAt: t.DetectedAt,
			Stats: ActiveStats{
				BuyCount:            s.TokenStats.BuyCount,
				SellCount:           s.TokenStats.SellCount,
				NetFlow:             s.TokenStats.NetFlow,
				TotalVolume:         s.TokenStats.TotalVolume,
				CurrentMarketCapUSD: s.TokenStats.MarketCapUSD,
			},
		}
	}
	return doc
}

// Decode parses an export and checks its producer tag.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid import file format: %w", err)
	}
	if doc.ExportedBy != Producer {
		return nil, ErrForeignExport
	}
	return &doc, nil
}

// Restore converts the document into the configuration to apply. Wallets
// without settings are left out of the map so the registry gives them
// defaults; partial settings are normalized.
func (d *Document) Restore() Restored {
	r := Restored{Settings: make(map[string]models.WalletSettings)}
	keys := make(map[string]models.Wallet)

	if dw := d.DevWallet; dw != nil && dw.Address != "" {
		w := models.Wallet{Name: dw.Name, Address: dw.Address, PrivateKey: dw.PrivateKey, APIKey: dw.APIKey, IsDevWallet: true}
		r.DevWallet = &w
		keys[w.Address] = w
	}
	for _, tw := range d.TradingWallets {
		w := models.Wallet{Name: tw.Name, Address: tw.Address, PrivateKey: tw.PrivateKey, APIKey: tw.APIKey}
		r.TradingWallets = append(r.TradingWallets, w)
		keys[w.Address] = w
		if tw.Settings != nil {
			s := tw.Settings.Clone()
			s.Normalize()
			r.Settings[w.Address] = s
		}
	}

	r.AutoTrade = models.AutoTradeConfig{
		AutoSell: models.AutoSellConfig{Wallets: make(map[string]*models.WalletAutoSell)},
	}
	if a := d.AutoTradeSettings; a != nil {
		r.AutoTrade.AutoBuy.Enabled = a.AutoBuy.Enabled
		for _, e := range a.AutoBuy.Sequence {
			r.AutoTrade.AutoBuy.Sequence = append(r.AutoTrade.AutoBuy.Sequence, e.AutoBuyEntry)
		}
		r.AutoTrade.AutoSell.Enabled = a.AutoSell.Enabled
		for _, wc := range a.AutoSell.WalletConfigs {
			r.AutoTrade.AutoSell.Wallets[wc.WalletAddress] = &models.WalletAutoSell{
				Enabled:  wc.Enabled,
				Triggers: append([]models.SellTrigger{}, wc.Triggers...),
				Slippage: wc.Slippage,
			}
		}
	}

	if sl := d.SpamLaunchSettings; sl != nil {
		r.MassLaunch.Enabled = sl.Enabled
		for _, l := range sl.Launches {
			spec := models.LaunchSpec{
				WalletName:       l.WalletName,
				WalletAddress:    l.WalletAddress,
				TokenName:        l.TokenName,
				Symbol:           l.Symbol,
				Description:      l.Description,
				ImageURL:         l.ImageURL,
				SocialLinks:      l.SocialLinks,
				InitialBuy:       l.InitialBuy,
				DelayMs:          l.DelayMs,
				SellAfterSeconds: l.SellAfterSeconds,
				SellPercent:      l.SellPercent,
			}
			if w, ok := keys[l.WalletAddress]; ok {
				spec.PrivateKey = w.PrivateKey
				spec.APIKey = w.APIKey
			}
			r.MassLaunch.Launches = append(r.MassLaunch.Launches, spec)
		}
	}

	if p := d.PortfolioStats; p != nil {
		r.Portfolio = models.PortfolioStats{WinCount: p.WinCount, LossCount: p.LossCount}
	}
	return r
}

// FileName is the default export file name for a given day.
func FileName(now time.Time) string {
	return fmt.Sprintf("pump-wallets-export-%s.json", now.Format("2006-01-02"))
}

// WriteFile writes the document as indented JSON. Exports hold private keys,
// so the file is only readable by its owner.
func WriteFile(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes an export.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file %s: %w", path, err)
	}
	return Decode(data)
}
