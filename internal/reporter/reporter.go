package reporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/portfolio"
	"pumpfun-dashboard-go/internal/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WalletRow is one line of the wallet table.
type WalletRow struct {
	Wallet         models.Wallet
	Balance        float64
	HasBalance     bool
	InitialBalance float64
	AutoSell       bool
}

// Status is everything the periodic status report prints.
type Status struct {
	GeneratedAt time.Time
	Connected   bool
	ActiveToken *models.ActiveToken
	Market      models.TokenMarketStats
	Holdings    portfolio.Holdings
	OthersSol   float64
	Wallets     []WalletRow
	Positions   map[string]*models.Position
	Portfolio   portfolio.Stats
	Queue       []models.TransactionQueueEntry
	Monitors    []string
}

// WriteStatus renders the full status report.
func WriteStatus(w io.Writer, s Status) {
	feed := "disconnected"
	if s.Connected {
		feed = "connected"
	}
	fmt.Fprintf(w, "========== Dashboard status %s (feed %s) ==========\n", s.GeneratedAt.Format("2006-01-02 15:04:05"), feed)
	if s.ActiveToken != nil {
		WriteToken(w, *s.ActiveToken, s.Market, s.Holdings, s.OthersSol)
	} else {
		fmt.Fprintln(w, "No active token")
	}
	WriteWallets(w, s.Wallets, s.Positions)
	WritePortfolio(w, s.Portfolio)
	if len(s.Queue) > 0 {
		WriteQueue(w, s.Queue)
	}
	if len(s.Monitors) > 0 {
		fmt.Fprintf(w, "Auto-sell monitors: %s\n", strings.Join(s.Monitors, ", "))
	}
}

// WriteToken prints the active token and its trade-channel statistics.
func WriteToken(w io.Writer, token models.ActiveToken, m models.TokenMarketStats, h portfolio.Holdings, othersSol float64) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", token.Symbol, token.Mint))
	t.AppendRows([]table.Row{
		{"Market cap (USD)", fmt.Sprintf("$%.0f", m.MarketCapUSD)},
		{"Buys / sells", fmt.Sprintf("%d / %d", m.BuyCount, m.SellCount)},
		{"Net flow (SOL)", signed(m.NetFlow)},
		{"Volume (SOL)", fmt.Sprintf("%.4f", m.TotalVolume)},
		{"SOL in curve", fmt.Sprintf("%.4f", m.SolInBondingCurve)},
		{"Others' SOL", fmt.Sprintf("%.4f", othersSol)},
		{"Held tokens", fmt.Sprintf("%.0f (%.2f%%)", h.TotalTokens, h.HoldingPercent)},
		{"Avg entry MC (USD)", fmt.Sprintf("$%.0f", h.AvgEntryMarketCapUSD)},
		{"MC change", percent(h.MarketCapPnLPercent)},
	})
	t.Render()
}

// WriteWallets prints one row per wallet with its live position.
func WriteWallets(w io.Writer, rows []WalletRow, positions map[string]*models.Position) {
	t := newTable(w)
	t.SetTitle("Wallets")
	t.AppendHeader(table.Row{"Name", "Address", "SOL", "Initial", "Token", "Balance", "Invested", "Value", "PnL", "Auto-sell"})
	for _, r := range rows {
		name := r.Wallet.Name
		if r.Wallet.IsDevWallet {
			name += " (dev)"
		}
		balance := "-"
		if r.HasBalance {
			balance = fmt.Sprintf("%.4f", r.Balance)
		}
		row := table.Row{name, shortAddress(r.Wallet.Address), balance, fmt.Sprintf("%.4f", r.InitialBalance)}
		if p := positions[r.Wallet.Address]; p != nil {
			pnl := portfolio.LivePnL(p)
			row = append(row, p.Symbol, fmt.Sprintf("%.0f", p.Balance), fmt.Sprintf("%.4f", p.TotalInvested),
				fmt.Sprintf("%.4f", pnl.Value), fmt.Sprintf("%s (%s)", signed(pnl.PnL), percent(pnl.Percent)))
		} else {
			row = append(row, "-", "-", "-", "-", "-")
		}
		row = append(row, onOff(r.AutoSell))
		t.AppendRow(row)
	}
	t.Render()
}

// WritePortfolio prints balances, realized P&L and the win rate.
func WritePortfolio(w io.Writer, s portfolio.Stats) {
	t := newTable(w)
	t.SetTitle("Portfolio")
	since := "-"
	if !s.InitialBalanceTime.IsZero() {
		since = s.InitialBalanceTime.Format("2006-01-02 15:04")
	}
	t.AppendRows([]table.Row{
		{"Initial balance", fmt.Sprintf("%.4f SOL", s.TotalInitial)},
		{"Current balance", fmt.Sprintf("%.4f SOL", s.TotalCurrent)},
		{"Realized PnL", fmt.Sprintf("%s SOL (%s)", signed(s.RealizedPnL), percent(s.RealizedPnLPercent))},
		{"Win rate", fmt.Sprintf("%.1f%% (%dW / %dL)", s.WinRate, s.Wins, s.Losses)},
		{"Tracking since", since},
	})
	t.Render()
}

// WriteQueue prints the visible transaction queue.
func WriteQueue(w io.Writer, queue []models.TransactionQueueEntry) {
	t := newTable(w)
	t.SetTitle("Transaction queue")
	t.AppendHeader(table.Row{"ID", "Action", "Wallet", "Token", "Amount", "Status", "Attempts", "Detail"})
	for _, e := range queue {
		t.AppendRow(table.Row{e.ID, e.Action, e.WalletName, e.TokenSymbol, amount(e), e.Status, e.Attempts, detail(e)})
	}
	t.Render()
}

// WriteJournal prints journaled orders with aggregate counts as the footer.
func WriteJournal(w io.Writer, orders []models.TransactionQueueEntry, stats storage.OrderStats) {
	t := newTable(w)
	t.SetTitle("Order journal")
	t.AppendHeader(table.Row{"Completed", "Source", "Action", "Wallet", "Token", "Amount", "Status", "Attempts", "Detail"})
	for _, e := range orders {
		t.AppendRow(table.Row{
			e.CompletedAt.Format("2006-01-02 15:04:05"), e.Source, e.Action, e.WalletName, e.TokenSymbol,
			amount(e), e.Status, e.Attempts, detail(e),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", stats.Total,
		fmt.Sprintf("%d ok / %d failed", stats.Succeeded, stats.Failed), "", fmt.Sprintf("%.4f SOL bought", stats.SolBought)})
	t.Render()
}

// WriteWalletList prints the registry without positions.
func WriteWalletList(w io.Writer, wallets []models.Wallet, settings map[string]models.WalletSettings) {
	t := newTable(w)
	t.SetTitle("Wallets")
	t.AppendHeader(table.Row{"Name", "Address", "Dev", "Buy presets", "Sell presets", "Slippage", "Fee"})
	sorted := append([]models.Wallet(nil), wallets...)
	sort.SliceStable(sorted, func(i, j int) bool { return !sorted[i].IsDevWallet && sorted[j].IsDevWallet })
	for _, wl := range sorted {
		s, ok := settings[wl.Address]
		if !ok {
			s = models.DefaultWalletSettings()
		}
		t.AppendRow(table.Row{
			wl.Name, wl.Address, onOff(wl.IsDevWallet), floats(s.BuyAmounts, ""), floats(s.SellPercentages, "%"),
			fmt.Sprintf("%g / %g", s.BuySlippage, s.SellSlippage), s.PriorityFee,
		})
	}
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func amount(e models.TransactionQueueEntry) string {
	if e.Action == models.Buy {
		return fmt.Sprintf("%g SOL", e.Amount)
	}
	if e.Percentage > 0 {
		return fmt.Sprintf("%g%%", e.Percentage)
	}
	return fmt.Sprintf("%g", e.Amount)
}

func detail(e models.TransactionQueueEntry) string {
	if e.Error != "" {
		return e.Error
	}
	return e.Signature
}

func shortAddress(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "..." + a[len(a)-4:]
}

func signed(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.4f", v)
	}
	return fmt.Sprintf("%.4f", v)
}

func percent(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

func onOff(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func floats(vs []float64, suffix string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%g%s", v, suffix)
	}
	return strings.Join(parts, ", ")
}
