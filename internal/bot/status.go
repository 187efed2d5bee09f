package bot

import (
	"context"
	"io"
	"time"

	"pumpfun-dashboard-go/internal/portfolio"
	"pumpfun-dashboard-go/internal/reporter"

	"go.uber.org/zap"
)

// journalReportSize is how many journaled orders Report prints.
const journalReportSize = 20

// monitorStatus prints the status report on an interval.
func (d *Dashboard) monitorStatus(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(d.config.StatusReportSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.printStatus()
		}
	}
}

func (d *Dashboard) printStatus() {
	status := d.Status()
	d.outMu.Lock()
	defer d.outMu.Unlock()
	reporter.WriteStatus(d.out, status)
}

// Status assembles the current status report.
func (d *Dashboard) Status() reporter.Status {
	state := d.state.GetStateSnapshot()
	balances := d.tracker.Snapshot()
	autoTrade := d.engine.Config()

	s := reporter.Status{
		GeneratedAt: time.Now(),
		Connected:   d.feed.IsConnected(),
		ActiveToken: state.ActiveToken,
		Market:      state.Stats,
		Positions:   state.Positions,
		Portfolio:   d.tracker.Stats(state.Portfolio),
		Queue:       d.executor.Queue(),
		Monitors:    d.engine.ActiveMonitors(),
	}
	if t := state.ActiveToken; t != nil {
		s.Holdings = portfolio.Summarize(state.Positions, t.Mint, d.config.SolPriceUSD, state.Stats.MarketCapUSD)
		s.OthersSol = portfolio.OthersSol(state.Stats.SolInBondingCurve, d.config.BaseSolInCurve, state.Positions, t.Mint)
	}
	for _, w := range d.wallets.All() {
		row := reporter.WalletRow{Wallet: w, InitialBalance: balances.Initial[w.Address]}
		row.Balance, row.HasBalance = balances.Current[w.Address]
		if cfg := autoTrade.AutoSell.Wallets[w.Address]; cfg != nil {
			row.AutoSell = autoTrade.AutoSell.Enabled && cfg.Enabled
		}
		s.Wallets = append(s.Wallets, row)
	}
	return s
}

// Report writes the wallet list, the portfolio summary and the most recent
// journaled orders.
func (d *Dashboard) Report(w io.Writer) error {
	reporter.WriteWalletList(w, d.wallets.All(), d.wallets.AllSettings())
	reporter.WritePortfolio(w, d.tracker.Stats(d.state.Portfolio()))
	if d.deps.Journal == nil {
		return nil
	}
	orders, err := d.deps.Journal.Recent(journalReportSize)
	if err != nil {
		return err
	}
	stats, err := d.deps.Journal.Stats()
	if err != nil {
		return err
	}
	reporter.WriteJournal(w, orders, stats)
	d.logger.Debug("Report written", zap.Int("orders", len(orders)))
	return nil
}
