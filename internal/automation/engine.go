package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"

	"go.uber.org/zap"
)

var (
	ErrNoActiveToken  = errors.New("automation: no active token")
	ErrNoPosition     = errors.New("automation: wallet holds no position")
	ErrUnknownWallet  = errors.New("automation: wallet not found")
	ErrInvalidValue   = errors.New("automation: value must be positive")
	ErrInvalidIndex   = errors.New("automation: index out of range")
	ErrInvalidTrigger = errors.New("automation: unknown trigger type")
)

// Order sources recorded on queue entries.
const (
	SourceManual   = "manual"
	SourceAutoBuy  = "autobuy"
	SourceAutoSell = "autosell"
	SourceNuke     = "nuke"
)

const (
	defaultAutoBuySlippage    = 80
	defaultAutoBuyPriorityFee = 0.00005
	defaultAutoSellSlippage   = 99
)

// StateReader is the read side of the position reconciler.
type StateReader interface {
	Position(address string) *models.Position
	PositionsInMint(mint string) map[string]*models.Position
	ActiveToken() *models.ActiveToken
	MarketCapUSD() float64
	DevPositionClosed() bool
}

// WalletBook resolves wallets and their trading settings.
type WalletBook interface {
	Lookup(address string) (models.Wallet, bool)
	Settings(address string) models.WalletSettings
}

// OrderExecutor submits orders. Execute never fails; the outcome is in the entry.
type OrderExecutor interface {
	Execute(ctx context.Context, req models.TradeRequest) models.TransactionQueueEntry
}

// Options tune the engine.
type Options struct {
	TickInterval time.Duration
	Pool         models.Pool
	Now          func() time.Time
}

func (o *Options) setDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Pool == "" {
		o.Pool = models.PoolAuto
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine runs auto-buy sequences, the auto-sell monitors and manual orders.
type Engine struct {
	mu     sync.RWMutex
	config models.AutoTradeConfig

	state    StateReader
	wallets  WalletBook
	executor OrderExecutor
	repo     persistence.StateRepository
	opts     Options

	monMu    sync.Mutex
	monitors map[string]*monitor
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error

	logger *zap.Logger
}

// NewEngine creates an engine with an empty configuration.
func NewEngine(state StateReader, wallets WalletBook, executor OrderExecutor, repo persistence.StateRepository, opts Options, logger *zap.Logger) *Engine {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:   emptyConfig(),
		state:    state,
		wallets:  wallets,
		executor: executor,
		repo:     repo,
		opts:     opts,
		monitors: make(map[string]*monitor),
		ctx:      ctx,
		cancel:   cancel,
		sleep:    sleepContext,
		logger:   logger,
	}
}

func emptyConfig() models.AutoTradeConfig {
	return models.AutoTradeConfig{
		AutoSell: models.AutoSellConfig{Wallets: make(map[string]*models.WalletAutoSell)},
	}
}

// Close stops every monitor and waits for orders the engine fired itself.
func (e *Engine) Close() {
	e.monMu.Lock()
	e.closed = true
	e.monMu.Unlock()
	e.StopAllMonitors()
	e.cancel()
	e.wg.Wait()
}

// Load restores the persisted configuration, filling defaults for fields
// older versions did not store.
func (e *Engine) Load() error {
	if e.repo == nil {
		return nil
	}
	cfg := emptyConfig()
	if _, err := e.repo.Load(persistence.KeyAutoTradeConfig, &cfg); err != nil {
		return fmt.Errorf("load auto-trade config: %w", err)
	}
	normalizeConfig(&cfg)

	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()
	return nil
}

func normalizeConfig(cfg *models.AutoTradeConfig) {
	if cfg.AutoSell.Wallets == nil {
		cfg.AutoSell.Wallets = make(map[string]*models.WalletAutoSell)
	}
	for addr, w := range cfg.AutoSell.Wallets {
		if w == nil {
			delete(cfg.AutoSell.Wallets, addr)
			continue
		}
		if w.Slippage <= 0 {
			w.Slippage = defaultAutoSellSlippage
		}
	}
}

// Config returns a copy.
func (e *Engine) Config() models.AutoTradeConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.Clone()
}

// ReplaceConfig installs cfg wholesale (configuration import).
func (e *Engine) ReplaceConfig(cfg models.AutoTradeConfig) error {
	cfg = cfg.Clone()
	normalizeConfig(&cfg)
	return e.edit(func(c *models.AutoTradeConfig) error {
		*c = cfg
		return nil
	})
}

func (e *Engine) SetAutoBuyEnabled(enabled bool) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		c.AutoBuy.Enabled = enabled
		return nil
	})
}

func (e *Engine) SetAutoSellEnabled(enabled bool) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		c.AutoSell.Enabled = enabled
		return nil
	})
}

func (e *Engine) AddAutoBuyEntry(entry models.AutoBuyEntry) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		c.AutoBuy.Sequence = append(c.AutoBuy.Sequence, entry)
		return nil
	})
}

func (e *Engine) UpdateAutoBuyEntry(index int, entry models.AutoBuyEntry) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		if index < 0 || index >= len(c.AutoBuy.Sequence) {
			return fmt.Errorf("%w: sequence entry %d", ErrInvalidIndex, index)
		}
		c.AutoBuy.Sequence[index] = entry
		return nil
	})
}

func (e *Engine) RemoveAutoBuyEntry(index int) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		if index < 0 || index >= len(c.AutoBuy.Sequence) {
			return fmt.Errorf("%w: sequence entry %d", ErrInvalidIndex, index)
		}
		c.AutoBuy.Sequence = append(c.AutoBuy.Sequence[:index], c.AutoBuy.Sequence[index+1:]...)
		return nil
	})
}

// SetWalletAutoSell enables or disables auto-sell for one wallet.
func (e *Engine) SetWalletAutoSell(address string, enabled bool) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		walletConfig(c, address).Enabled = enabled
		return nil
	})
}

func (e *Engine) SetWalletAutoSellSlippage(address string, slippage float64) error {
	if slippage <= 0 {
		return ErrInvalidValue
	}
	return e.edit(func(c *models.AutoTradeConfig) error {
		walletConfig(c, address).Slippage = slippage
		return nil
	})
}

// AddTrigger appends the default trigger to a wallet.
func (e *Engine) AddTrigger(address string) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		w := walletConfig(c, address)
		w.Triggers = append(w.Triggers, models.DefaultSellTrigger())
		return nil
	})
}

// RemoveTrigger deletes the wallet's trigger at index.
func (e *Engine) RemoveTrigger(address string, index int) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		w := walletConfig(c, address)
		if index < 0 || index >= len(w.Triggers) {
			return fmt.Errorf("%w: trigger %d", ErrInvalidIndex, index)
		}
		w.Triggers = append(w.Triggers[:index], w.Triggers[index+1:]...)
		return nil
	})
}

// SetTriggerType switches a trigger's condition and resets its threshold to
// the type's default.
func (e *Engine) SetTriggerType(address string, index int, typ models.TriggerType) error {
	switch typ {
	case models.TriggerTime, models.TriggerProfit, models.TriggerMarketCap, models.TriggerDevSell:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, typ)
	}
	return e.editTrigger(address, index, func(t *models.SellTrigger) {
		t.Type = typ
		if v := typ.DefaultValue(); v > 0 {
			t.Value = v
		}
	})
}

func (e *Engine) SetTriggerValue(address string, index int, value float64) error {
	if value <= 0 {
		return ErrInvalidValue
	}
	return e.editTrigger(address, index, func(t *models.SellTrigger) { t.Value = value })
}

func (e *Engine) SetTriggerSellPercent(address string, index int, percent float64) error {
	if percent <= 0 || percent > 100 {
		return ErrInvalidValue
	}
	return e.editTrigger(address, index, func(t *models.SellTrigger) { t.SellPercent = percent })
}

// ForgetWallet drops a removed wallet from the auto-sell setup and the buy sequence.
func (e *Engine) ForgetWallet(address string) error {
	e.StopMonitor(address)
	return e.edit(func(c *models.AutoTradeConfig) error {
		delete(c.AutoSell.Wallets, address)
		seq := c.AutoBuy.Sequence[:0]
		for _, entry := range c.AutoBuy.Sequence {
			if entry.WalletAddress != address {
				seq = append(seq, entry)
			}
		}
		c.AutoBuy.Sequence = seq
		return nil
	})
}

func (e *Engine) editTrigger(address string, index int, fn func(t *models.SellTrigger)) error {
	return e.edit(func(c *models.AutoTradeConfig) error {
		w := walletConfig(c, address)
		if index < 0 || index >= len(w.Triggers) {
			return fmt.Errorf("%w: trigger %d", ErrInvalidIndex, index)
		}
		fn(&w.Triggers[index])
		return nil
	})
}

// edit applies fn under the lock and persists the result. Nothing is saved
// when fn fails; a failed save keeps the in-memory change.
func (e *Engine) edit(fn func(c *models.AutoTradeConfig) error) error {
	e.mu.Lock()
	if err := fn(&e.config); err != nil {
		e.mu.Unlock()
		return err
	}
	snapshot := e.config.Clone()
	e.mu.Unlock()
	return e.save(snapshot)
}

func (e *Engine) save(cfg models.AutoTradeConfig) error {
	if e.repo == nil {
		return nil
	}
	if err := e.repo.Save(persistence.KeyAutoTradeConfig, cfg); err != nil {
		e.logger.Error("Failed to save auto-trade config", zap.Error(err))
		return fmt.Errorf("save auto-trade config: %w", err)
	}
	return nil
}

// walletConfig returns the wallet's auto-sell entry, creating a disabled one.
func walletConfig(c *models.AutoTradeConfig, address string) *models.WalletAutoSell {
	if c.AutoSell.Wallets == nil {
		c.AutoSell.Wallets = make(map[string]*models.WalletAutoSell)
	}
	w := c.AutoSell.Wallets[address]
	if w == nil {
		w = &models.WalletAutoSell{Slippage: defaultAutoSellSlippage}
		c.AutoSell.Wallets[address] = w
	}
	return w
}

// goAsync runs fn on the engine's context, tracked by Close. After Close it
// does nothing.
//
// Only auto-buy sequences and trigger sells run this way. Manual orders
// stay on the caller's goroutine.
func (e *Engine) goAsync(fn func(ctx context.Context)) {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
