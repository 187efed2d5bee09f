package automation

import (
	"context"
	"time"

	"pumpfun-dashboard-go/internal/models"

	"go.uber.org/zap"
)

type monitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartMonitor starts the auto-sell monitor for a wallet when auto-sell is
// enabled for it and it has triggers. Already running monitors are kept.
func (e *Engine) StartMonitor(address string) {
	e.mu.RLock()
	w := e.config.AutoSell.Wallets[address]
	wanted := e.config.AutoSell.Enabled && w != nil && w.Enabled && len(w.Triggers) > 0
	e.mu.RUnlock()
	if !wanted {
		return
	}

	e.monMu.Lock()
	defer e.monMu.Unlock()
	if e.closed {
		return
	}
	if _, running := e.monitors[address]; running {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	m := &monitor{cancel: cancel, done: make(chan struct{})}
	e.monitors[address] = m
	go e.runMonitor(ctx, address, m)
	e.logger.Info("Auto-sell monitor started", zap.String("wallet", address))
}

// StopMonitor stops one wallet's monitor and waits for it to exit.
func (e *Engine) StopMonitor(address string) {
	e.monMu.Lock()
	m := e.monitors[address]
	delete(e.monitors, address)
	e.monMu.Unlock()
	if m == nil {
		return
	}
	m.cancel()
	<-m.done
	e.logger.Info("Auto-sell monitor stopped", zap.String("wallet", address))
}

// StopAllMonitors stops every monitor and waits until none is running.
// Calling it with no monitors is a no-op.
func (e *Engine) StopAllMonitors() {
	e.monMu.Lock()
	running := e.monitors
	e.monitors = make(map[string]*monitor)
	e.monMu.Unlock()

	for _, m := range running {
		m.cancel()
	}
	for _, m := range running {
		<-m.done
	}
	if len(running) > 0 {
		e.logger.Info("Stopped all auto-sell monitors", zap.Int("count", len(running)))
	}
}

func (e *Engine) ActiveMonitors() []string {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	out := make([]string, 0, len(e.monitors))
	for addr := range e.monitors {
		out = append(out, addr)
	}
	return out
}

func (e *Engine) runMonitor(ctx context.Context, address string, m *monitor) {
	defer close(m.done)
	defer e.forget(address, m)

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.checkTriggers(address) {
				return
			}
		}
	}
}

func (e *Engine) forget(address string, m *monitor) {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	if e.monitors[address] == m {
		delete(e.monitors, address)
	}
}

// checkTriggers runs one tick for a wallet. At most one trigger fires; it is
// consumed and its sell submitted. The result reports whether the monitor
// should keep running.
func (e *Engine) checkTriggers(address string) bool {
	pos := e.state.Position(address)
	if pos == nil || pos.Balance <= 0 {
		e.logger.Debug("Position gone, monitor exits", zap.String("wallet", address))
		return false
	}
	marketCapUSD := e.state.MarketCapUSD()
	devClosed := e.state.DevPositionClosed()
	now := e.opts.Now()

	e.mu.Lock()
	w := e.config.AutoSell.Wallets[address]
	if w == nil || !w.Enabled {
		e.mu.Unlock()
		return true
	}
	fired := -1
	for i, t := range w.Triggers {
		if evaluateTrigger(t, pos, now, marketCapUSD, devClosed) {
			fired = i
			break
		}
	}
	if fired < 0 {
		keep := len(w.Triggers) > 0
		e.mu.Unlock()
		return keep
	}
	trigger := w.Triggers[fired]
	w.Triggers = append(w.Triggers[:fired:fired], w.Triggers[fired+1:]...)
	remaining := len(w.Triggers)
	slippage := w.Slippage
	e.mu.Unlock()

	e.logger.Info("Auto-sell trigger fired",
		zap.String("wallet", address),
		zap.String("type", string(trigger.Type)),
		zap.Float64("value", trigger.Value),
		zap.Float64("sellPercent", trigger.SellPercent))

	e.goAsync(func(ctx context.Context) {
		if _, err := e.sell(ctx, address, trigger.SellPercent, SourceAutoSell, slippage); err != nil {
			e.logger.Warn("Auto-sell skipped", zap.String("wallet", address), zap.Error(err))
		}
	})
	return remaining > 0
}

// evaluateTrigger reports whether a trigger's condition holds:
//
//   - time: seconds since the first buy reach the value
//   - profit: current over entry market cap (SOL) reaches the multiple;
//     without a current quote the entry value is used
//   - market cap: the USD market cap reaches the value
//   - dev sell: the creator has closed their position
func evaluateTrigger(t models.SellTrigger, pos *models.Position, now time.Time, marketCapUSD float64, devClosed bool) bool {
	switch t.Type {
	case models.TriggerTime:
		return !pos.EntryTime.IsZero() && now.Sub(pos.EntryTime).Seconds() >= t.Value
	case models.TriggerProfit:
		if pos.EntryMarketCapSol <= 0 {
			return false
		}
		current := pos.CurrentMarketCapSol
		if current <= 0 {
			current = pos.EntryMarketCapSol
		}
		return current/pos.EntryMarketCapSol >= t.Value
	case models.TriggerMarketCap:
		return marketCapUSD >= t.Value
	case models.TriggerDevSell:
		return devClosed
	}
	return false
}
