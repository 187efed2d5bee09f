package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// Buy submits a manual buy of amount SOL in the active token.
func (e *Engine) Buy(ctx context.Context, address string, amount float64) (models.TransactionQueueEntry, error) {
	token := e.state.ActiveToken()
	if token == nil {
		return models.TransactionQueueEntry{}, ErrNoActiveToken
	}
	if amount <= 0 {
		return models.TransactionQueueEntry{}, ErrInvalidValue
	}
	wallet, ok := e.wallets.Lookup(address)
	if !ok {
		return models.TransactionQueueEntry{}, fmt.Errorf("%w: %s", ErrUnknownWallet, address)
	}
	settings := e.wallets.Settings(address)

	return e.executor.Execute(ctx, models.TradeRequest{
		Action:        models.Buy,
		Mint:          token.Mint,
		TokenSymbol:   token.Symbol,
		WalletAddress: wallet.Address,
		WalletName:    wallet.Name,
		PrivateKey:    wallet.PrivateKey,
		APIKey:        wallet.APIKey,
		Amount:        amount,
		Slippage:      settings.BuySlippage,
		PriorityFee:   settings.PriorityFee,
		Pool:          e.opts.Pool,
		Source:        SourceManual,
	}), nil
}

func (e *Engine) BuyPreset(ctx context.Context, address string, index int) (models.TransactionQueueEntry, error) {
	amounts := e.wallets.Settings(address).BuyAmounts
	if index < 0 || index >= len(amounts) {
		return models.TransactionQueueEntry{}, fmt.Errorf("%w: buy preset %d", ErrInvalidIndex, index)
	}
	return e.Buy(ctx, address, amounts[index])
}

// Sell submits a manual sell of percent of the wallet's position.
func (e *Engine) Sell(ctx context.Context, address string, percent float64) (models.TransactionQueueEntry, error) {
	return e.sell(ctx, address, percent, SourceManual, 0)
}

func (e *Engine) SellPreset(ctx context.Context, address string, index int) (models.TransactionQueueEntry, error) {
	percentages := e.wallets.Settings(address).SellPercentages
	if index < 0 || index >= len(percentages) {
		return models.TransactionQueueEntry{}, fmt.Errorf("%w: sell preset %d", ErrInvalidIndex, index)
	}
	return e.Sell(ctx, address, percentages[index])
}

// sell builds the order from the wallet's current position. A slippage of
// zero means the wallet's sell slippage.
func (e *Engine) sell(ctx context.Context, address string, percent float64, source string, slippage float64) (models.TransactionQueueEntry, error) {
	if percent <= 0 || percent > 100 {
		return models.TransactionQueueEntry{}, ErrInvalidValue
	}
	pos := e.state.Position(address)
	if pos == nil || pos.Balance <= 0 {
		return models.TransactionQueueEntry{}, ErrNoPosition
	}
	wallet, ok := e.wallets.Lookup(address)
	if !ok {
		return models.TransactionQueueEntry{}, fmt.Errorf("%w: %s", ErrUnknownWallet, address)
	}
	settings := e.wallets.Settings(address)
	if slippage <= 0 {
		slippage = settings.SellSlippage
	}

	req := models.TradeRequest{
		Action:        models.Sell,
		Mint:          pos.Mint,
		TokenSymbol:   pos.Symbol,
		WalletAddress: wallet.Address,
		WalletName:    wallet.Name,
		PrivateKey:    wallet.PrivateKey,
		APIKey:        wallet.APIKey,
		Percentage:    percent,
		Slippage:      slippage,
		PriorityFee:   settings.PriorityFee,
		Pool:          e.opts.Pool,
		Source:        source,
	}
	if percent == 100 {
		req.SellAll = true
		req.Amount = pos.Balance
	} else {
		req.Amount = pos.Balance * percent / 100
	}
	return e.executor.Execute(ctx, req), nil
}

// Nuke sells percent of every nonzero position in the active token. Wallets
// are sold concurrently; a failed order never holds up the others.
func (e *Engine) Nuke(ctx context.Context, percent float64) ([]models.TransactionQueueEntry, error) {
	token := e.state.ActiveToken()
	if token == nil {
		return nil, ErrNoActiveToken
	}
	if percent <= 0 || percent > 100 {
		return nil, ErrInvalidValue
	}

	positions := e.state.PositionsInMint(token.Mint)
	addresses := make([]string, 0, len(positions))
	for addr, p := range positions {
		if p.Balance > 0 {
			addresses = append(addresses, addr)
		}
	}
	sort.Strings(addresses)
	e.logger.Warn("Nuking positions", zap.Float64("percent", percent), zap.Int("wallets", len(addresses)))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.TransactionQueueEntry
	)
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			entry, err := e.sell(ctx, addr, percent, SourceNuke, 0)
			if err != nil {
				e.logger.Warn("Nuke skipped wallet", zap.String("wallet", addr), zap.Error(err))
				return
			}
			mu.Lock()
			results = append(results, entry)
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return results, nil
}
