package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pumpfun-dashboard-go/internal/automation"
	"pumpfun-dashboard-go/internal/exchange"
	"pumpfun-dashboard-go/internal/executor"
	"pumpfun-dashboard-go/internal/feed"
	"pumpfun-dashboard-go/internal/launcher"
	"pumpfun-dashboard-go/internal/models"
	"pumpfun-dashboard-go/internal/persistence"
	"pumpfun-dashboard-go/internal/portfolio"
	"pumpfun-dashboard-go/internal/registry"
	"pumpfun-dashboard-go/internal/statemanager"
	"pumpfun-dashboard-go/internal/storage"

	"go.uber.org/zap"
)

// Deps are the external collaborators of a dashboard.
type Deps struct {
	Repo      persistence.StateRepository
	Journal   *storage.Journal // optional
	Exchange  exchange.Exchange
	Balances  portfolio.BalanceFetcher
	Companion launcher.Companion
	Out       io.Writer // status reports and notices; defaults to stdout
}

// Dashboard owns every component and wires them together.
type Dashboard struct {
	config *models.Config
	deps   Deps

	wallets  *registry.Registry
	state    *statemanager.StateManager
	executor *executor.Executor
	engine   *automation.Engine
	launcher *launcher.Runner
	feed     *feed.Client
	tracker  *portfolio.Tracker

	out   io.Writer
	outMu sync.Mutex

	mutex     sync.Mutex
	isRunning bool
	loaded    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *zap.Logger
}

// New builds a dashboard from its collaborators. Call Load before use.
func New(cfg *models.Config, deps Deps, logger *zap.Logger) *Dashboard {
	d := &Dashboard{config: cfg, deps: deps, out: deps.Out, logger: logger}
	if d.out == nil {
		d.out = os.Stdout
	}

	d.wallets = registry.New(deps.Repo, logger.Named("registry"))
	d.state = statemanager.NewStateManager(nil, d.wallets, deps.Repo, statemanager.Options{
		SolPriceUSD:     cfg.SolPriceUSD,
		ActivityLimit:   cfg.ActivityLogSize,
		TokenTradeLimit: cfg.TokenTradeLogSize,
		PersistQueue:    cfg.PersistenceQueueLength,
	}, logger.Named("state"))

	d.executor = executor.New(deps.Exchange, executor.Options{
		MaxAttempts: cfg.RetryAttempts,
		RetryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Expiry:      time.Duration(cfg.QueueExpirySec) * time.Second,
	}, logger.Named("executor"))
	if deps.Journal != nil {
		d.executor.SetJournal(deps.Journal)
	}
	d.executor.OnChange(d.orderChanged)

	d.engine = automation.NewEngine(d.state, d.wallets, d.executor, deps.Repo, automation.Options{
		TickInterval: time.Duration(cfg.AutoSellIntervalMs) * time.Millisecond,
		Pool:         cfg.Pool,
	}, logger.Named("automation"))

	d.launcher = launcher.NewRunner(deps.Companion, d.state, deps.Repo, logger.Named("launcher"))
	d.launcher.SetNotifier(d)

	d.feed = feed.New(feed.Options{
		URL:               cfg.FeedURL,
		ReconnectInterval: time.Duration(cfg.ReconnectIntervalSec) * time.Second,
		SubscribeStagger:  time.Duration(cfg.SubscribeStaggerMs) * time.Millisecond,
		PingInterval:      time.Duration(cfg.WebSocketPingIntervalSec) * time.Second,
	}, d.state.HandleFeedMessage, d.wallets.Addresses, logger.Named("feed"))

	d.tracker = portfolio.NewTracker(deps.Balances, logger.Named("portfolio"))

	d.state.SetAutomation(d)
	d.state.SetTokenSubscriber(d.feed)
	d.state.AddObserver(d)
	d.wallets.AddListener(d)
	return d
}

// Load restores persisted wallets, settings, configurations and the win/loss
// record, and starts the reconciler's loops.
func (d *Dashboard) Load() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.loaded {
		return nil
	}
	if err := d.wallets.Load(); err != nil {
		return err
	}
	if err := d.state.LoadPortfolio(); err != nil {
		return err
	}
	if err := d.engine.Load(); err != nil {
		return err
	}
	if err := d.launcher.Load(); err != nil {
		return err
	}
	d.state.Start()
	d.loaded = true
	d.logger.Info("Dashboard loaded", zap.Int("wallets", len(d.wallets.All())))
	return nil
}

// Start connects the feed and starts balance polling and the status report.
func (d *Dashboard) Start(ctx context.Context) error {
	if err := d.Load(); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.isRunning = true

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		if err := d.feed.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("Feed stopped", zap.Error(err))
		}
	}()
	go func() {
		defer d.wg.Done()
		d.tracker.Run(runCtx, time.Duration(d.config.BalanceRefreshSec)*time.Second, d.wallets.Addresses)
	}()
	go func() {
		defer d.wg.Done()
		d.monitorStatus(runCtx)
	}()

	d.logger.Info("Dashboard started",
		zap.String("feed", d.config.FeedURL),
		zap.Bool("dry_run", d.config.DryRun))
	return nil
}

// Stop ends the background loops, cancels automation and flushes state.
func (d *Dashboard) Stop() {
	d.mutex.Lock()
	running := d.isRunning
	d.isRunning = false
	cancel := d.cancel
	d.mutex.Unlock()

	if running {
		cancel()
		d.wg.Wait()
	}
	d.engine.Close()
	d.launcher.Close()
	d.state.Stop()
	d.logger.Info("Dashboard stopped")
}

// Close stops the dashboard and releases the repository and the journal.
func (d *Dashboard) Close() error {
	d.Stop()
	var errs []error
	if d.deps.Journal != nil {
		errs = append(errs, d.deps.Journal.Close())
	}
	if d.deps.Repo != nil {
		errs = append(errs, d.deps.Repo.Close())
	}
	return errors.Join(errs...)
}

// IsRunning reports whether Start has been called without Stop.
func (d *Dashboard) IsRunning() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.isRunning
}

// Open builds a dashboard with the production collaborators named by cfg:
// badger state, the sqlite journal, the trade API (or the paper exchange in
// dry-run mode), Solana RPC balances and the launch companion.
func Open(cfg *models.Config, logger *zap.Logger) (*Dashboard, error) {
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.JournalPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			repo.Close()
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	db, err := storage.InitDB(cfg.JournalPath)
	if err != nil {
		repo.Close()
		return nil, err
	}

	var ex exchange.Exchange
	if cfg.DryRun {
		logger.Warn("Dry run: orders go to the paper exchange")
		ex = exchange.NewPaperExchange()
	} else {
		ex = exchange.NewPumpPortalExchange(cfg.TradeAPIURL, cfg.CreateWalletURL,
			time.Duration(cfg.HTTPClientTimeoutSec)*time.Second, logger.Named("exchange"))
	}

	return New(cfg, Deps{
		Repo:      repo,
		Journal:   storage.NewJournal(db),
		Exchange:  ex,
		Balances:  portfolio.NewSolanaBalanceFetcher(cfg.RPCEndpoint),
		Companion: launcher.NewClient(cfg.CompanionURL, time.Duration(cfg.CompanionTimeoutSec)*time.Second, logger.Named("companion")),
	}, logger), nil
}

// StartMonitor implements statemanager.Automation.
func (d *Dashboard) StartMonitor(address string) { d.engine.StartMonitor(address) }

// StopAllMonitors implements statemanager.Automation.
func (d *Dashboard) StopAllMonitors() { d.engine.StopAllMonitors() }

// TokenCreated fans a dev-wallet create out to auto-buy and mass launch.
func (d *Dashboard) TokenCreated(token models.ActiveToken) {
	d.engine.TokenCreated(token)
	d.launcher.TokenCreated(token)
}

// WalletAdded subscribes a new wallet on the feed right away.
func (d *Dashboard) WalletAdded(w models.Wallet) {
	if err := d.feed.SubscribeAccount(w.Address); err != nil && !errors.Is(err, feed.ErrNotConnected) {
		d.logger.Warn("Wallet subscription failed", zap.String("wallet", w.Address), zap.Error(err))
	}
}

// WalletRemoved drops everything kept for a removed wallet.
func (d *Dashboard) WalletRemoved(address string) {
	if err := d.feed.UnsubscribeAccount(address); err != nil && !errors.Is(err, feed.ErrNotConnected) {
		d.logger.Warn("Wallet unsubscribe failed", zap.String("wallet", address), zap.Error(err))
	}
	d.engine.StopMonitor(address)
	if err := d.engine.ForgetWallet(address); err != nil {
		d.logger.Warn("Failed to drop automation config of removed wallet", zap.String("wallet", address), zap.Error(err))
	}
	d.state.DropPosition(address)
	d.tracker.Forget(address)
}

// StateChanged implements statemanager.Observer.
func (d *Dashboard) StateChanged(reason string) {
	d.logger.Debug("State changed", zap.String("reason", reason))
}

// Notify prints a user-facing notice.
func (d *Dashboard) Notify(msg string) {
	d.logger.Info("Notice", zap.String("message", msg))
	d.outMu.Lock()
	defer d.outMu.Unlock()
	fmt.Fprintln(d.out, msg)
}

func (d *Dashboard) orderChanged(e models.TransactionQueueEntry) {
	if !e.Status.Terminal() {
		return
	}
	log := d.logger.With(
		zap.String("id", e.ID),
		zap.String("action", string(e.Action)),
		zap.String("wallet", e.WalletName),
		zap.String("source", e.Source),
		zap.Int("attempts", e.Attempts))
	if e.Status == models.StatusSuccess {
		log.Info("Order confirmed", zap.String("signature", e.Signature))
		return
	}
	log.Warn("Order failed", zap.String("error", e.Error))
}
