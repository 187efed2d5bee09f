package portfolio

import (
	"math"
	"time"

	"pumpfun-dashboard-go/internal/models"
)

// TokenSupply is the fixed supply of a pump.fun token.
const TokenSupply = 1_000_000_000

// Stats is the portfolio summary.
type Stats struct {
	TotalInitial       float64
	TotalCurrent       float64
	RealizedPnL        float64
	RealizedPnLPercent float64
	WinRate            float64
	Wins               int
	Losses             int
	InitialBalanceTime time.Time
}

// PositionPnL is the live valuation of one position.
type PositionPnL struct {
	Value   float64
	PnL     float64
	Percent float64
}

// LivePnL values a position by scaling what was invested with the market
// cap move since entry.
func LivePnL(p *models.Position) PositionPnL {
	if p == nil || p.EntryMarketCapSol <= 0 {
		return PositionPnL{}
	}
	current := p.CurrentMarketCapSol
	if current <= 0 {
		current = p.EntryMarketCapSol
	}
	value := p.TotalInvested * current / p.EntryMarketCapSol
	out := PositionPnL{Value: value, PnL: value - p.TotalInvested}
	if p.TotalInvested > 0 {
		out.Percent = out.PnL / p.TotalInvested * 100
	}
	return out
}

// OthersSol estimates SOL other participants put into the curve: curve SOL
// minus the initial virtual reserve minus what our wallets invested.
func OthersSol(solInCurve, baseSolInCurve float64, positions map[string]*models.Position, mint string) float64 {
	if solInCurve <= 0 {
		return 0
	}
	mine := 0.0
	for _, p := range positions {
		if p != nil && p.Mint == mint {
			mine += p.TotalInvested
		}
	}
	return math.Max(0, solInCurve-baseSolInCurve-mine)
}

// Holdings summarises every tracked position in one token.
type Holdings struct {
	TotalTokens          float64
	HoldingPercent       float64
	CostValueSol         float64
	AvgEntryMarketCapSol float64
	AvgEntryMarketCapUSD float64
	MarketCapPnLPercent  float64
}

// Summarize aggregates the positions held in mint.
func Summarize(positions map[string]*models.Position, mint string, solPriceUSD, marketCapUSD float64) Holdings {
	var h Holdings
	weighted, bought := 0.0, 0.0
	for _, p := range positions {
		if p == nil || p.Mint != mint {
			continue
		}
		h.TotalTokens += p.Balance
		h.CostValueSol += p.Balance * p.AvgPrice
		weighted += p.EntryMarketCapSol * p.TotalBought
		bought += p.TotalBought
	}
	h.HoldingPercent = h.TotalTokens / TokenSupply * 100
	if bought > 0 {
		h.AvgEntryMarketCapSol = weighted / bought
	}
	h.AvgEntryMarketCapUSD = h.AvgEntryMarketCapSol * solPriceUSD
	if h.AvgEntryMarketCapUSD > 0 && marketCapUSD > 0 {
		h.MarketCapPnLPercent = (marketCapUSD/h.AvgEntryMarketCapUSD - 1) * 100
	}
	return h
}
