package statemanager

import (
	"fmt"
	"strings"

	"pumpfun-dashboard-go/internal/event"
	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

const (
	trackedSymbol = "TRACKING"
	trackedName   = "Tracked Token"
)

// HandleTradeEvent reconciles one raw feed message into wallet positions and
// token stats and returns once it is applied. It never returns an error:
// malformed or unmatched messages are logged and dropped.
func (sm *StateManager) HandleTradeEvent(data []byte) {
	sm.serialize(FeedMessageEvent, data)
}

func (sm *StateManager) handleTradeEvent(data []byte) {
	ev, err := event.Parse(data, sm.opts.Now())
	if err != nil {
		sm.logger.Warn("Dropping malformed feed message", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}
	if ev.Control {
		sm.logger.Debug("Feed control message", zap.Any("message", ev.Raw))
		return
	}

	wallet, matched := sm.lookupWallet(ev.Trader)

	sm.mutate("trade", func() bool {
		changed := false
		if matched {
			sm.processWalletTrade(ev, wallet)
			changed = true
		}

		tokenTrade := ev.MarketCapSol > 0 && ev.Mint != "" &&
			sm.state.ActiveToken != nil && ev.Mint == sm.state.ActiveToken.Mint
		if tokenTrade {
			sm.processTokenTrade(ev)
			changed = true
		}

		if !matched && !tokenTrade {
			sm.logger.Debug("Unmatched trade event",
				zap.String("trader", ev.Trader),
				zap.String("txType", ev.TxType),
				zap.String("mint", ev.Mint))
			sm.recordActivity(ev, models.Wallet{Address: ev.Trader}, false)
			changed = true
		}
		return changed
	})
}

func (sm *StateManager) lookupWallet(address string) (models.Wallet, bool) {
	if address == "" || sm.wallets == nil {
		return models.Wallet{}, false
	}
	if dev, ok := sm.wallets.DevWallet(); ok && dev.Address == address {
		return dev, true
	}
	return sm.wallets.Lookup(address)
}

func (sm *StateManager) processWalletTrade(ev *event.TradeEvent, wallet models.Wallet) {
	sm.recordActivity(ev, wallet, true)

	switch ev.Kind {
	case event.KindCreate:
		if !wallet.IsDevWallet {
			sm.logger.Debug("Ignoring create event from a non-dev wallet", zap.String("wallet", wallet.Name))
			return
		}
		sm.handleCreate(ev, wallet)
	case event.KindBuy:
		sm.handleBuy(ev, wallet)
	case event.KindSell:
		sm.handleSell(ev, wallet)
	default:
		sm.logger.Debug("Unrecognized trade type, position untouched",
			zap.String("wallet", wallet.Name), zap.String("txType", ev.TxType))
	}
}

func (sm *StateManager) handleCreate(ev *event.TradeEvent, wallet models.Wallet) {
	if ev.Mint == "" {
		sm.logger.Warn("Create event without mint", zap.String("wallet", wallet.Name))
		return
	}

	if sm.state.ActiveToken == nil {
		sm.setActiveTokenLocked(models.ActiveToken{
			Mint:       ev.Mint,
			Symbol:     ev.Symbol,
			Name:       ev.Name,
			DetectedAt: sm.opts.Now(),
		})
	} else if sm.state.ActiveToken.Mint != ev.Mint {
		sm.logger.Warn("Dev wallet created a token while another is tracked; clear the active token to follow it",
			zap.String("active", sm.state.ActiveToken.Mint),
			zap.String("created", ev.Mint))
		return
	}
	token := *sm.state.ActiveToken

	sm.logger.Info("Token created by dev wallet",
		zap.String("mint", ev.Mint), zap.String("symbol", ev.Symbol), zap.Float64("initialBuy", ev.InitialBuy))

	if ev.InitialBuy > 0 {
		balance := ev.NewTokenBalance
		if balance <= 0 {
			balance = ev.InitialBuy
		}
		sm.state.Positions[wallet.Address] = &models.Position{
			Mint:                ev.Mint,
			Symbol:              ev.Symbol,
			Name:                ev.Name,
			Balance:             balance,
			TotalBought:         ev.InitialBuy,
			TotalInvested:       ev.SolAmount,
			AvgPrice:            ev.SolAmount / ev.InitialBuy,
			EntryMarketCapSol:   ev.MarketCapSol,
			CurrentMarketCapSol: ev.MarketCapSol,
			EntryTime:           ev.Timestamp,
			Trades:              []models.TradeRecord{tradeRecord(ev, balance)},
		}
		sm.startMonitor(wallet.Address)
	}

	if sm.automation != nil {
		sm.after(func() { sm.automation.TokenCreated(token) })
	}
}

func (sm *StateManager) handleBuy(ev *event.TradeEvent, wallet models.Wallet) {
	if ev.Mint == "" {
		sm.logger.Warn("Buy event without mint", zap.String("wallet", wallet.Name))
		return
	}

	if sm.state.ActiveToken == nil && !wallet.IsDevWallet {
		sm.logger.Info("First buy detected, tracking token", zap.String("mint", ev.Mint), zap.String("wallet", wallet.Name))
		sm.setActiveTokenLocked(models.ActiveToken{
			Mint:       ev.Mint,
			Symbol:     ev.Symbol,
			Name:       ev.Name,
			DetectedAt: sm.opts.Now(),
		})
	}

	pos := sm.state.Positions[wallet.Address]
	if pos == nil || pos.Mint != ev.Mint {
		price := 0.0
		if ev.TokenAmount > 0 {
			price = ev.SolAmount / ev.TokenAmount
		}
		sm.state.Positions[wallet.Address] = &models.Position{
			Mint:                ev.Mint,
			Symbol:              ev.Symbol,
			Name:                ev.Name,
			Balance:             ev.NewTokenBalance,
			TotalBought:         ev.TokenAmount,
			TotalInvested:       ev.SolAmount,
			AvgPrice:            price,
			EntryMarketCapSol:   ev.MarketCapSol,
			CurrentMarketCapSol: ev.MarketCapSol,
			EntryTime:           ev.Timestamp,
			Trades:              []models.TradeRecord{tradeRecord(ev, ev.NewTokenBalance)},
		}
	} else {
		newBought := pos.TotalBought + ev.TokenAmount
		if newBought > 0 {
			pos.EntryMarketCapSol = (pos.EntryMarketCapSol*pos.TotalBought + ev.MarketCapSol*ev.TokenAmount) / newBought
			pos.AvgPrice = (pos.TotalInvested + ev.SolAmount) / newBought
		}
		pos.TotalBought = newBought
		pos.TotalInvested += ev.SolAmount
		pos.Balance = ev.NewTokenBalance
		if ev.MarketCapSol > 0 {
			pos.CurrentMarketCapSol = ev.MarketCapSol
		}
		pos.Trades = append(pos.Trades, tradeRecord(ev, ev.NewTokenBalance))
	}

	sm.logger.Info("Buy reconciled",
		zap.String("wallet", wallet.Name),
		zap.Float64("sol", ev.SolAmount),
		zap.Float64("tokens", ev.TokenAmount),
		zap.Float64("balance", ev.NewTokenBalance))
	sm.startMonitor(wallet.Address)
}

func (sm *StateManager) handleSell(ev *event.TradeEvent, wallet models.Wallet) {
	pos := sm.state.Positions[wallet.Address]
	if pos == nil {
		sm.logger.Debug("Sell for a wallet without a position", zap.String("wallet", wallet.Name))
		return
	}
	if ev.Mint != "" && ev.Mint != pos.Mint {
		sm.logger.Debug("Sell in a token the wallet is not tracked in",
			zap.String("wallet", wallet.Name), zap.String("mint", ev.Mint), zap.String("position", pos.Mint))
		return
	}

	// Win/loss compares proceeds against the sold amount at the average entry
	// price, not against the market price at the time of the sale.
	costBasis := ev.TokenAmount * pos.AvgPrice
	win := ev.SolAmount > costBasis
	if win {
		sm.state.Portfolio.WinCount++
	} else {
		sm.state.Portfolio.LossCount++
	}

	pos.Balance = ev.NewTokenBalance
	if pos.Balance <= 0 {
		delete(sm.state.Positions, wallet.Address)
		sm.logger.Info("Position closed",
			zap.String("wallet", wallet.Name), zap.Float64("proceeds", ev.SolAmount), zap.Bool("win", win))
		return
	}

	if ev.MarketCapSol > 0 {
		pos.CurrentMarketCapSol = ev.MarketCapSol
	}
	pos.Trades = append(pos.Trades, tradeRecord(ev, pos.Balance))
	sm.logger.Info("Partial sell reconciled",
		zap.String("wallet", wallet.Name), zap.Float64("balance", pos.Balance), zap.Bool("win", win))
}

func (sm *StateManager) processTokenTrade(ev *event.TradeEvent) {
	stats := &sm.state.Stats
	switch ev.Kind {
	case event.KindBuy:
		stats.BuyCount++
		stats.NetFlow += ev.SolAmount
	case event.KindSell:
		stats.SellCount++
		stats.NetFlow -= ev.SolAmount
	}
	stats.TotalVolume += ev.SolAmount
	stats.MarketCapUSD = ev.MarketCapSol * sm.opts.SolPriceUSD
	if ev.HasVSol {
		stats.SolInBondingCurve = ev.VSolInBondingCurve
	}

	trade := models.TokenTrade{
		Trader:       ev.Trader,
		TxType:       ev.TxType,
		SolAmount:    ev.SolAmount,
		TokenAmount:  ev.TokenAmount,
		MarketCapSol: ev.MarketCapSol,
		Timestamp:    ev.Timestamp,
	}
	stats.RecentTrades = prepend(stats.RecentTrades, trade, sm.opts.TokenTradeLimit)

	for _, p := range sm.state.Positions {
		if p != nil && p.Mint == ev.Mint {
			p.CurrentMarketCapSol = ev.MarketCapSol
		}
	}
}

func (sm *StateManager) recordActivity(ev *event.TradeEvent, wallet models.Wallet, matched bool) {
	entry := models.ActivityEntry{
		Time:          ev.Timestamp,
		WalletAddress: wallet.Address,
		WalletName:    wallet.Name,
		TxType:        ev.TxType,
		Mint:          ev.Mint,
		Symbol:        ev.Symbol,
		SolAmount:     ev.SolAmount,
		TokenAmount:   ev.TokenAmount,
		Signature:     ev.Signature,
		Matched:       matched,
	}
	sm.state.Activity = prepend(sm.state.Activity, entry, sm.opts.ActivityLimit)
}

// RecordActivity appends an externally produced entry (mass-launch results).
func (sm *StateManager) RecordActivity(entry models.ActivityEntry) {
	if entry.Time.IsZero() {
		entry.Time = sm.opts.Now()
	}
	sm.mutate("activity", func() bool {
		sm.state.Activity = prepend(sm.state.Activity, entry, sm.opts.ActivityLimit)
		return true
	})
}

// TrackToken starts tracking mint manually.
func (sm *StateManager) TrackToken(mint string) error {
	mint = strings.TrimSpace(mint)
	if len(mint) < minMintLength {
		return fmt.Errorf("%w: %q", ErrInvalidMint, mint)
	}
	sm.SetActiveToken(models.ActiveToken{
		Mint:       mint,
		Symbol:     trackedSymbol,
		Name:       trackedName,
		DetectedAt: sm.opts.Now(),
	})
	return nil
}

// SetActiveToken replaces the active token. Switching to a different mint
// first clears the previous token's positions and monitors.
func (sm *StateManager) SetActiveToken(token models.ActiveToken) {
	if token.DetectedAt.IsZero() {
		token.DetectedAt = sm.opts.Now()
	}
	sm.serialize(SetActiveTokenEvent, token)
}

func (sm *StateManager) setActiveToken(token models.ActiveToken) {
	if current := sm.ActiveToken(); current != nil && current.Mint != token.Mint {
		sm.clearActiveToken()
	}
	sm.mutate("active-token", func() bool {
		sm.setActiveTokenLocked(token)
		return true
	})
}

// ClearActiveToken stops every auto-sell monitor, then drops the active
// token, every position in it and the token stats. No trade is applied
// between the two steps.
func (sm *StateManager) ClearActiveToken() {
	sm.serialize(ClearActiveTokenEvent, nil)
}

func (sm *StateManager) clearActiveToken() {
	if sm.automation != nil {
		sm.automation.StopAllMonitors()
	}

	sm.mutate("clear-token", func() bool {
		token := sm.state.ActiveToken
		if token == nil {
			return false
		}
		for addr, p := range sm.state.Positions {
			if p == nil || p.Mint == token.Mint {
				delete(sm.state.Positions, addr)
			}
		}
		sm.state.Stats = models.TokenMarketStats{}
		sm.state.ActiveToken = nil

		if sm.subscribedMint == token.Mint {
			sm.subscribedMint = ""
			if sm.subscriber != nil {
				mint := token.Mint
				sm.after(func() {
					if err := sm.subscriber.UnsubscribeToken(mint); err != nil {
						sm.logger.Debug("Token unsubscribe skipped", zap.Error(err))
					}
				})
			}
		}
		sm.logger.Info("Active token cleared", zap.String("mint", token.Mint))
		return true
	})
}

// DropPosition removes a wallet's position (the wallet left the registry).
func (sm *StateManager) DropPosition(address string) {
	sm.serialize(DropPositionEvent, address)
}

func (sm *StateManager) dropPosition(address string) {
	sm.mutate("drop-position", func() bool {
		if _, ok := sm.state.Positions[address]; !ok {
			return false
		}
		delete(sm.state.Positions, address)
		return true
	})
}

// ResetPositions stops all monitors, drops every position and installs
// stats as the win/loss record. Used when a configuration is imported.
func (sm *StateManager) ResetPositions(stats models.PortfolioStats) {
	sm.serialize(ResetPositionsEvent, stats)
}

func (sm *StateManager) resetPositions(stats models.PortfolioStats) {
	if sm.automation != nil {
		sm.automation.StopAllMonitors()
	}
	sm.mutate("reset", func() bool {
		sm.state.Positions = make(map[string]*models.Position)
		sm.state.Portfolio = stats
		return true
	})
}

func (sm *StateManager) setActiveTokenLocked(token models.ActiveToken) {
	sm.state.ActiveToken = &token
	sm.state.Stats = models.TokenMarketStats{}
	sm.logger.Info("Active token set", zap.String("mint", token.Mint), zap.String("symbol", token.Symbol))

	if sm.subscribedMint == token.Mint {
		return
	}
	sm.subscribedMint = token.Mint
	if sm.subscriber != nil {
		mint := token.Mint
		sm.after(func() {
			if err := sm.subscriber.SubscribeToken(mint); err != nil {
				// The feed re-subscribes the active token on reconnect.
				sm.logger.Warn("Token subscription deferred", zap.String("mint", mint), zap.Error(err))
			}
		})
	}
}

func (sm *StateManager) startMonitor(address string) {
	if sm.automation == nil {
		return
	}
	sm.after(func() { sm.automation.StartMonitor(address) })
}

func tradeRecord(ev *event.TradeEvent, balance float64) models.TradeRecord {
	return models.TradeRecord{
		Signature:       ev.Signature,
		TxType:          ev.TxType,
		SolAmount:       ev.SolAmount,
		TokenAmount:     ev.TokenAmount,
		NewTokenBalance: balance,
		MarketCapSol:    ev.MarketCapSol,
		Timestamp:       ev.Timestamp,
	}
}

// prepend inserts item at the front and trims to limit.
func prepend[T any](list []T, item T, limit int) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, item)
	out = append(out, list...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
