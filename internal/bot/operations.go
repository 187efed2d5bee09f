package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pumpfun-dashboard-go/internal/automation"
	"pumpfun-dashboard-go/internal/backup"
	"pumpfun-dashboard-go/internal/launcher"
	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/portfolio"
	"pumpfun-dashboard-go/internal/registry"
	"pumpfun-dashboard-go/internal/statemanager"

	"go.uber.org/zap"
)

// Wallets exposes the wallet registry.
func (d *Dashboard) Wallets() *registry.Registry { return d.wallets }

// Engine exposes the automated trading engine for configuration edits.
func (d *Dashboard) Engine() *automation.Engine { return d.engine }

// Launcher exposes the mass-launch runner.
func (d *Dashboard) Launcher() *launcher.Runner { return d.launcher }

// State exposes the position reconciler.
func (d *Dashboard) State() *statemanager.StateManager { return d.state }

// ResolveWallet finds a wallet by address, or by name ignoring case.
func (d *Dashboard) ResolveWallet(ref string) (models.Wallet, error) {
	ref = strings.TrimSpace(ref)
	if w, ok := d.wallets.Lookup(ref); ok {
		return w, nil
	}
	for _, w := range d.wallets.All() {
		if strings.EqualFold(w.Name, ref) {
			return w, nil
		}
	}
	return models.Wallet{}, fmt.Errorf("%w: %s", registry.ErrWalletNotFound, ref)
}

// AddWallet imports a trading wallet.
func (d *Dashboard) AddWallet(w models.Wallet) (models.Wallet, error) {
	return d.wallets.Add(w)
}

// CreateWallet provisions a wallet through the trading API.
func (d *Dashboard) CreateWallet(ctx context.Context, dev bool) (models.Wallet, error) {
	return d.wallets.Create(ctx, d.deps.Exchange, dev)
}

// RemoveWallet deletes a wallet and everything tracked for it.
func (d *Dashboard) RemoveWallet(address string) error {
	return d.wallets.Remove(address)
}

// TrackToken makes mint the active token by hand.
func (d *Dashboard) TrackToken(mint string) error {
	return d.state.TrackToken(mint)
}

// ClearToken stops the monitors and forgets the active token.
func (d *Dashboard) ClearToken() {
	d.state.ClearActiveToken()
}

func (d *Dashboard) Buy(ctx context.Context, address string, amount float64) (models.TransactionQueueEntry, error) {
	return d.engine.Buy(ctx, address, amount)
}

func (d *Dashboard) BuyPreset(ctx context.Context, address string, index int) (models.TransactionQueueEntry, error) {
	return d.engine.BuyPreset(ctx, address, index)
}

func (d *Dashboard) Sell(ctx context.Context, address string, percent float64) (models.TransactionQueueEntry, error) {
	return d.engine.Sell(ctx, address, percent)
}

func (d *Dashboard) SellPreset(ctx context.Context, address string, index int) (models.TransactionQueueEntry, error) {
	return d.engine.SellPreset(ctx, address, index)
}

// Nuke sells percent of every open position in the active token.
func (d *Dashboard) Nuke(ctx context.Context, percent float64) ([]models.TransactionQueueEntry, error) {
	return d.engine.Nuke(ctx, percent)
}

// LaunchNow runs the configured mass-launch batch immediately.
func (d *Dashboard) LaunchNow(ctx context.Context) ([]launcher.Outcome, error) {
	return d.launcher.Execute(ctx)
}

// RefreshBalances fetches every wallet's SOL balance once.
func (d *Dashboard) RefreshBalances(ctx context.Context) {
	d.tracker.Refresh(ctx, d.wallets.Addresses())
}

// Snapshot collects everything an export needs.
func (d *Dashboard) Snapshot() backup.Snapshot {
	state := d.state.GetStateSnapshot()
	balances := d.tracker.Snapshot()
	s := backup.Snapshot{
		TradingWallets: d.wallets.TradingWallets(),
		Settings:       d.wallets.AllSettings(),
		Positions:      state.Positions,
		Balances:       balances.Current,
		Initial:        balances.Initial,
		InitialTime:    balances.InitialTime,
		AutoTrade:      d.engine.Config(),
		MassLaunch:     d.launcher.Config(),
		Portfolio:      state.Portfolio,
		ActiveToken:    state.ActiveToken,
		TokenStats:     state.Stats,
		SolPriceUSD:    d.config.SolPriceUSD,
	}
	if dev, ok := d.wallets.DevWallet(); ok {
		s.DevWallet = &dev
	}
	return s
}

// Export writes the configuration document to path and returns it.
func (d *Dashboard) Export(path string) (*backup.Document, error) {
	doc := backup.Build(d.Snapshot(), time.Now())
	if err := backup.WriteFile(path, doc); err != nil {
		return nil, err
	}
	d.logger.Info("Configuration exported", zap.String("path", path), zap.Int("wallets", doc.WalletsCount))
	return doc, nil
}

// Import replaces wallets, settings, automation and mass-launch configs and
// the win/loss record with the contents of an export. Positions are dropped
// and balances start over; the feed re-subscribes every imported wallet.
func (d *Dashboard) Import(path string) (*backup.Document, error) {
	doc, err := backup.ReadFile(path)
	if err != nil {
		return nil, err
	}
	restored := doc.Restore()
	d.logger.Info("Importing configuration",
		zap.String("path", path),
		zap.Time("export_date", doc.ExportDate),
		zap.Int("wallets", doc.WalletsCount))

	d.state.ResetPositions(restored.Portfolio)
	if err := d.wallets.Replace(restored.TradingWallets, restored.DevWallet, restored.Settings); err != nil {
		return nil, fmt.Errorf("import wallets: %w", err)
	}
	if err := d.engine.ReplaceConfig(restored.AutoTrade); err != nil {
		return nil, fmt.Errorf("import auto-trade config: %w", err)
	}
	if err := d.launcher.Replace(restored.MassLaunch); err != nil {
		return nil, fmt.Errorf("import mass-launch config: %w", err)
	}
	d.tracker.Restore(portfolio.Balances{})

	if d.IsRunning() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			d.RefreshBalances(ctx)
		}()
	}
	d.logger.Info("Configuration imported",
		zap.Int("trading_wallets", len(restored.TradingWallets)),
		zap.Int("wins", restored.Portfolio.WinCount),
		zap.Int("losses", restored.Portfolio.LossCount))
	return doc, nil
}
