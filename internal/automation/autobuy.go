package automation

import (
	"context"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

// TokenCreated fires the auto-buy sequence in the background.
func (e *Engine) TokenCreated(token models.ActiveToken) {
	e.goAsync(func(ctx context.Context) {
		e.ExecuteAutoBuySequence(ctx)
	})
}

// ExecuteAutoBuySequence submits one buy per valid sequence entry. Entries
// run concurrently, each after its own delay; the call returns once every
// entry has resolved. Nothing happens without an active token or while
// auto-buy is disabled.
func (e *Engine) ExecuteAutoBuySequence(ctx context.Context) []models.TransactionQueueEntry {
	token := e.state.ActiveToken()
	e.mu.RLock()
	enabled := e.config.AutoBuy.Enabled
	sequence := append([]models.AutoBuyEntry(nil), e.config.AutoBuy.Sequence...)
	e.mu.RUnlock()

	if token == nil || !enabled {
		e.logger.Debug("Auto-buy skipped", zap.Bool("hasToken", token != nil), zap.Bool("enabled", enabled))
		return nil
	}
	e.logger.Info("Executing auto-buy sequence", zap.String("symbol", token.Symbol), zap.Int("entries", len(sequence)))

	results := make([]*models.TransactionQueueEntry, len(sequence))
	var wg sync.WaitGroup
	for i, item := range sequence {
		wg.Add(1)
		go func(i int, item models.AutoBuyEntry) {
			defer wg.Done()
			if item.WalletAddress == "" || item.Amount <= 0 {
				e.logger.Info("Skipping auto-buy entry: invalid wallet or amount", zap.Int("entry", i+1))
				return
			}
			wallet, ok := e.wallets.Lookup(item.WalletAddress)
			if !ok {
				e.logger.Info("Skipping auto-buy entry: wallet not found", zap.Int("entry", i+1))
				return
			}
			if item.DelayMs > 0 {
				if err := e.sleep(ctx, time.Duration(item.DelayMs)*time.Millisecond); err != nil {
					return
				}
			}

			slippage := item.Slippage
			if slippage <= 0 {
				slippage = defaultAutoBuySlippage
			}
			fee := item.PriorityFee
			if fee <= 0 {
				fee = defaultAutoBuyPriorityFee
			}
			entry := e.executor.Execute(ctx, models.TradeRequest{
				Action:        models.Buy,
				Mint:          token.Mint,
				TokenSymbol:   token.Symbol,
				WalletAddress: wallet.Address,
				WalletName:    wallet.Name,
				PrivateKey:    wallet.PrivateKey,
				APIKey:        wallet.APIKey,
				Amount:        item.Amount,
				Slippage:      slippage,
				PriorityFee:   fee,
				Pool:          e.opts.Pool,
				IsAutoBuy:     true,
				Source:        SourceAutoBuy,
			})
			results[i] = &entry
		}(i, item)
	}
	wg.Wait()

	out := make([]models.TransactionQueueEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	e.logger.Info("Auto-buy sequence completed", zap.Int("submitted", len(out)))
	return out
}
